package model

import "time"

// DefaultRequesterName — пользователь, правило которого применяется,
// если для запрашивающего и его группы правил нет.
const DefaultRequesterName = "default"

// MountPolicy — правила приоритета и возраста запросов при монтировании.
type MountPolicy struct {
	Name                  string
	ArchivePriority       uint64
	ArchiveMinRequestAge  uint64
	RetrievePriority      uint64
	RetrieveMinRequestAge uint64
	Comment               string
	CreationLog           EntryLog
	LastModificationLog   EntryLog
}

// RequesterIdentity — пользователь дискового инстанса, запрашивающий операцию.
type RequesterIdentity struct {
	Name  string
	Group string
}

// RequesterMountRule — политика монтирования для пользователя.
type RequesterMountRule struct {
	DiskInstance string
	Name         string
	MountPolicy  string
	Comment      string
	CreationLog  EntryLog
}

// RequesterGroupMountRule — политика монтирования для группы.
type RequesterGroupMountRule struct {
	DiskInstance string
	Group        string
	MountPolicy  string
	Comment      string
	CreationLog  EntryLog
}

// RequesterActivityMountRule — политика монтирования для пользователя
// и активности, заданной регулярным выражением.
type RequesterActivityMountRule struct {
	DiskInstance  string
	Name          string
	ActivityRegex string
	MountPolicy   string
	Comment       string
	CreationLog   EntryLog
}

// RetrieveFileQueueCriteria — результат подготовки чтения файла.
type RetrieveFileQueueCriteria struct {
	ArchiveFile ArchiveFile
	MountPolicy MountPolicy
	// Activity — активность, по которой выбрана политика (если выбрана по активности)
	Activity   *string
	PreparedAt time.Time
}
