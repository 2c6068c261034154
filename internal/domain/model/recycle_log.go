package model

import "time"

// Причины переноса копий в журнал удалённых копий.
const (
	RecycleReasonRepack = "repack"
)

// FileRecycleLog — снимок удалённой или заменённой копии на ленте
// с денормализованными атрибутами архивного файла.
// Хранится в таблице file_recycle_log.
type FileRecycleLog struct {
	ID                      uint64
	VID                     string
	FSeq                    uint64
	BlockID                 uint64
	CopyNb                  uint8
	TapeFileCreationTime    time.Time
	ArchiveFileID           uint64
	DiskInstanceName        string
	DiskFileID              string
	DiskFileIDWhenDeleted   string
	DiskFileUID             uint32
	DiskFileGID             uint32
	SizeInBytes             uint64
	Checksums               ChecksumBlob
	StorageClassName        string
	ArchiveFileCreationTime time.Time
	ReconciliationTime      time.Time
	CollocationHint         *string
	DiskFilePath            *string
	ReasonLog               string
	RecycleLogTime          time.Time
}

// RecycleTapeFileSearchCriteria — критерии выборки журнала удалённых копий.
type RecycleTapeFileSearchCriteria struct {
	VID           *string
	DiskFileIDs   *[]string
	ArchiveFileID *uint64
	DiskInstance  *string
	CopyNb        *uint8
	// RecycleLogTimeMin/Max — интервал времени переноса (включительно)
	RecycleLogTimeMin *time.Time
	RecycleLogTimeMax *time.Time
}
