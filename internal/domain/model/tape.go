package model

import (
	"fmt"
	"time"
)

// TapeState — состояние ленты в жизненном цикле.
type TapeState string

const (
	TapeStateActive            TapeState = "ACTIVE"
	TapeStateDisabled          TapeState = "DISABLED"
	TapeStateRepacking         TapeState = "REPACKING"
	TapeStateRepackingPending  TapeState = "REPACKING_PENDING"
	TapeStateRepackingDisabled TapeState = "REPACKING_DISABLED"
	TapeStateBroken            TapeState = "BROKEN"
	TapeStateBrokenPending     TapeState = "BROKEN_PENDING"
	TapeStateExported          TapeState = "EXPORTED"
	TapeStateExportedPending   TapeState = "EXPORTED_PENDING"
)

// AllTapeStates — все допустимые состояния в порядке объявления.
var AllTapeStates = []TapeState{
	TapeStateActive,
	TapeStateDisabled,
	TapeStateRepacking,
	TapeStateRepackingPending,
	TapeStateRepackingDisabled,
	TapeStateBroken,
	TapeStateBrokenPending,
	TapeStateExported,
	TapeStateExportedPending,
}

// Valid сообщает, является ли состояние одним из допустимых.
func (s TapeState) Valid() bool {
	for _, st := range AllTapeStates {
		if s == st {
			return true
		}
	}
	return false
}

// Reclaimable — из каких состояний допускается reclaim ленты.
func (s TapeState) Reclaimable() bool {
	return s == TapeStateActive || s == TapeStateDisabled
}

// Retrievable — можно ли читать файлы с ленты в этом состоянии.
func (s TapeState) Retrievable() bool {
	return s == TapeStateActive || s == TapeStateDisabled
}

// Transient — состояние, из которого лента обычно возвращается в работу
// без вмешательства: перепаковка или ожидание смены состояния.
func (s TapeState) Transient() bool {
	switch s {
	case TapeStateRepacking, TapeStateRepackingPending, TapeStateRepackingDisabled,
		TapeStateBrokenPending, TapeStateExportedPending:
		return true
	}
	return false
}

// RetrievableTapeStates — состояния лент, с которых допускается чтение.
var RetrievableTapeStates = []TapeState{TapeStateActive, TapeStateDisabled}

// ParseTapeState преобразует строку в TapeState.
func ParseTapeState(s string) (TapeState, error) {
	st := TapeState(s)
	if !st.Valid() {
		return "", fmt.Errorf("неизвестное состояние ленты %q", s)
	}
	return st, nil
}

// SecurityIdentity — кто выполняет операцию (пользователь и хост).
type SecurityIdentity struct {
	Username string
	Host     string
}

// String возвращает идентичность в формате "user@host".
func (s SecurityIdentity) String() string {
	return s.Username + "@" + s.Host
}

// EntryLog — отметка создания или изменения записи.
type EntryLog struct {
	Username string
	Host     string
	Time     time.Time
}

// NewEntryLog создаёт EntryLog для identity на момент now.
func NewEntryLog(identity SecurityIdentity, now time.Time) EntryLog {
	return EntryLog{Username: identity.Username, Host: identity.Host, Time: now}
}

// TapeLog — отметка операции с лентой на приводе.
type TapeLog struct {
	Drive string
	Time  time.Time
}

// Tape — лента каталога.
// Хранится в таблице tape. Ёмкость берётся из типа носителя.
type Tape struct {
	VID                string
	MediaType          string
	Vendor             string
	LogicalLibraryName string
	TapePoolName       string
	VO                 string
	// CapacityInBytes — ёмкость типа носителя
	CapacityInBytes   int64
	DataOnTapeInBytes int64
	MasterDataInBytes int64
	NbMasterFiles     int64
	LastFSeq          int64
	Full              bool
	Dirty             bool
	State             TapeState
	// StateReason — nil для ACTIVE
	StateReason         *string
	StateUpdateTime     time.Time
	StateModifiedBy     string
	EncryptionKeyName   *string
	PurchaseOrder       *string
	VerificationStatus  *string
	LabelLog            *TapeLog
	LastReadLog         *TapeLog
	LastWriteLog        *TapeLog
	ReadMountCount      int64
	WriteMountCount     int64
	Comment             *string
	CreationLog         EntryLog
	LastModificationLog EntryLog
}

// CreateTapeAttributes — параметры создания ленты.
type CreateTapeAttributes struct {
	VID                string
	MediaType          string
	Vendor             string
	LogicalLibraryName string
	TapePoolName       string
	Full               bool
	// State — пустое значение означает ACTIVE
	State             TapeState
	StateReason       *string
	EncryptionKeyName *string
	PurchaseOrder     *string
	Comment           *string
}

// TapeSearchCriteria — критерии поиска лент.
// nil означает «не задано»; заданные критерии объединяются через AND.
type TapeSearchCriteria struct {
	VID             *string
	MediaType       *string
	Vendor          *string
	LogicalLibrary  *string
	TapePool        *string
	VO              *string
	CapacityInBytes *int64
	State           *TapeState
	Full            *bool
	DiskFileIDs     *[]string
	PurchaseOrder   *string
}

// TapeForWriting — лента, пригодная для записи.
type TapeForWriting struct {
	VID               string
	MediaType         string
	Vendor            string
	TapePool          string
	VO                string
	CapacityInBytes   int64
	DataOnTapeInBytes int64
	LastFSeq          int64
}

// TapeMountType — тип монтирования ленты.
type TapeMountType string

const (
	TapeMountArchive  TapeMountType = "archive"
	TapeMountRetrieve TapeMountType = "retrieve"
)
