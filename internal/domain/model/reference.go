package model

// VirtualOrganization — виртуальная организация, владеющая пулами и классами хранения.
type VirtualOrganization struct {
	Name                string
	ReadMaxDrives       uint64
	WriteMaxDrives      uint64
	MaxFileSize         uint64
	Comment             string
	CreationLog         EntryLog
	LastModificationLog EntryLog
}

// MediaType — тип носителя; задаёт ёмкость лент.
type MediaType struct {
	Name                 string
	Cartridge            string
	CapacityInBytes      uint64
	PrimaryDensityCode   *uint8
	SecondaryDensityCode *uint8
	NbWraps              *uint32
	MinLPos              *uint64
	MaxLPos              *uint64
	Comment              string
	CreationLog          EntryLog
	LastModificationLog  EntryLog
}

// LogicalLibrary — логическая библиотека лент.
type LogicalLibrary struct {
	Name                string
	IsDisabled          bool
	DisabledReason      *string
	Comment             string
	CreationLog         EntryLog
	LastModificationLog EntryLog
}

// TapePool — пул лент. Счётчики вычисляются агрегацией по таблице tape.
type TapePool struct {
	Name                string
	VO                  string
	NbPartialTapes      uint64
	Encryption          bool
	Supply              *string
	Comment             string
	NbTapes             uint64
	NbEmptyTapes        uint64
	NbDisabledTapes     uint64
	NbFullTapes         uint64
	NbWritableTapes     uint64
	CapacityBytes       uint64
	DataBytes           uint64
	NbPhysicalFiles     uint64
	CreationLog         EntryLog
	LastModificationLog EntryLog
}

// StorageClass — класс хранения: число копий файла.
type StorageClass struct {
	ID                  uint64
	Name                string
	NbCopies            uint8
	VO                  string
	Comment             string
	CreationLog         EntryLog
	LastModificationLog EntryLog
}

// ArchiveRoute — пул лент, в который пишется копия CopyNb файлов класса хранения.
// У класса хранения с NbCopies копиями должно быть ровно NbCopies маршрутов.
type ArchiveRoute struct {
	StorageClass        string
	CopyNb              uint8
	TapePool            string
	Comment             string
	CreationLog         EntryLog
	LastModificationLog EntryLog
}
