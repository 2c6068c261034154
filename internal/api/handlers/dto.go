// dto.go — JSON-представления сущностей каталога и их преобразование
// из/в доменные модели.
package handlers

import (
	"time"

	"github.com/bigkaa/goartstore/tape-catalogue/internal/domain/model"
)

// --- Общие ---

// EntryLogDTO — кто и когда изменил запись.
type EntryLogDTO struct {
	Username string    `json:"username"`
	Host     string    `json:"host"`
	Time     time.Time `json:"time"`
}

// TapeLogDTO — привод и время события ленты.
type TapeLogDTO struct {
	Drive string    `json:"drive"`
	Time  time.Time `json:"time"`
}

// ChecksumDTO — контрольная сумма файла.
type ChecksumDTO struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// RequesterDTO — пользователь дискового инстанса, от имени которого идёт запрос.
type RequesterDTO struct {
	Name  string `json:"name"`
	Group string `json:"group"`
}

func entryLogDTO(l model.EntryLog) *EntryLogDTO {
	if l.Username == "" && l.Time.IsZero() {
		return nil
	}
	return &EntryLogDTO{Username: l.Username, Host: l.Host, Time: l.Time}
}

func tapeLogDTO(l *model.TapeLog) *TapeLogDTO {
	if l == nil {
		return nil
	}
	return &TapeLogDTO{Drive: l.Drive, Time: l.Time}
}

func checksumsDTO(b model.ChecksumBlob) []ChecksumDTO {
	out := make([]ChecksumDTO, 0, len(b))
	for _, c := range b {
		out = append(out, ChecksumDTO{Type: string(c.Type), Value: c.Value})
	}
	return out
}

func checksumsModel(in []ChecksumDTO) model.ChecksumBlob {
	if len(in) == 0 {
		return nil
	}
	out := make(model.ChecksumBlob, 0, len(in))
	for _, c := range in {
		out = append(out, model.Checksum{Type: model.ChecksumType(c.Type), Value: c.Value})
	}
	return out
}

func (r RequesterDTO) model() model.RequesterIdentity {
	return model.RequesterIdentity{Name: r.Name, Group: r.Group}
}

// --- Ленты ---

// TapeDTO — лента.
type TapeDTO struct {
	VID                 string       `json:"vid"`
	MediaType           string       `json:"media_type"`
	Vendor              string       `json:"vendor"`
	LogicalLibrary      string       `json:"logical_library"`
	TapePool            string       `json:"tape_pool"`
	VO                  string       `json:"vo"`
	CapacityInBytes     int64        `json:"capacity_in_bytes"`
	DataOnTapeInBytes   int64        `json:"data_on_tape_in_bytes"`
	MasterDataInBytes   int64        `json:"master_data_in_bytes"`
	NbMasterFiles       int64        `json:"nb_master_files"`
	LastFSeq            int64        `json:"last_fseq"`
	Full                bool         `json:"full"`
	Dirty               bool         `json:"dirty"`
	State               string       `json:"state"`
	StateReason         *string      `json:"state_reason,omitempty"`
	StateUpdateTime     time.Time    `json:"state_update_time"`
	StateModifiedBy     string       `json:"state_modified_by"`
	EncryptionKeyName   *string      `json:"encryption_key_name,omitempty"`
	PurchaseOrder       *string      `json:"purchase_order,omitempty"`
	VerificationStatus  *string      `json:"verification_status,omitempty"`
	LabelLog            *TapeLogDTO  `json:"label_log,omitempty"`
	LastReadLog         *TapeLogDTO  `json:"last_read_log,omitempty"`
	LastWriteLog        *TapeLogDTO  `json:"last_write_log,omitempty"`
	ReadMountCount      int64        `json:"read_mount_count"`
	WriteMountCount     int64        `json:"write_mount_count"`
	Comment             *string      `json:"comment,omitempty"`
	CreationLog         *EntryLogDTO `json:"creation_log,omitempty"`
	LastModificationLog *EntryLogDTO `json:"last_modification_log,omitempty"`
}

func tapeDTO(t *model.Tape) TapeDTO {
	return TapeDTO{
		VID:                 t.VID,
		MediaType:           t.MediaType,
		Vendor:              t.Vendor,
		LogicalLibrary:      t.LogicalLibraryName,
		TapePool:            t.TapePoolName,
		VO:                  t.VO,
		CapacityInBytes:     t.CapacityInBytes,
		DataOnTapeInBytes:   t.DataOnTapeInBytes,
		MasterDataInBytes:   t.MasterDataInBytes,
		NbMasterFiles:       t.NbMasterFiles,
		LastFSeq:            t.LastFSeq,
		Full:                t.Full,
		Dirty:               t.Dirty,
		State:               string(t.State),
		StateReason:         t.StateReason,
		StateUpdateTime:     t.StateUpdateTime,
		StateModifiedBy:     t.StateModifiedBy,
		EncryptionKeyName:   t.EncryptionKeyName,
		PurchaseOrder:       t.PurchaseOrder,
		VerificationStatus:  t.VerificationStatus,
		LabelLog:            tapeLogDTO(t.LabelLog),
		LastReadLog:         tapeLogDTO(t.LastReadLog),
		LastWriteLog:        tapeLogDTO(t.LastWriteLog),
		ReadMountCount:      t.ReadMountCount,
		WriteMountCount:     t.WriteMountCount,
		Comment:             t.Comment,
		CreationLog:         entryLogDTO(t.CreationLog),
		LastModificationLog: entryLogDTO(t.LastModificationLog),
	}
}

// CreateTapeRequest — тело POST /api/v1/tapes.
type CreateTapeRequest struct {
	VID               string  `json:"vid"`
	MediaType         string  `json:"media_type"`
	Vendor            string  `json:"vendor"`
	LogicalLibrary    string  `json:"logical_library"`
	TapePool          string  `json:"tape_pool"`
	Full              bool    `json:"full"`
	State             string  `json:"state,omitempty"`
	StateReason       *string `json:"state_reason,omitempty"`
	EncryptionKeyName *string `json:"encryption_key_name,omitempty"`
	PurchaseOrder     *string `json:"purchase_order,omitempty"`
	Comment           *string `json:"comment,omitempty"`
}

func (r CreateTapeRequest) model() model.CreateTapeAttributes {
	return model.CreateTapeAttributes{
		VID:                r.VID,
		MediaType:          r.MediaType,
		Vendor:             r.Vendor,
		LogicalLibraryName: r.LogicalLibrary,
		TapePoolName:       r.TapePool,
		Full:               r.Full,
		State:              model.TapeState(r.State),
		StateReason:        r.StateReason,
		EncryptionKeyName:  r.EncryptionKeyName,
		PurchaseOrder:      r.PurchaseOrder,
		Comment:            r.Comment,
	}
}

// ModifyTapeStateRequest — тело PUT /api/v1/tapes/{vid}/state.
type ModifyTapeStateRequest struct {
	State     string  `json:"state"`
	PrevState *string `json:"prev_state,omitempty"`
	Reason    *string `json:"reason,omitempty"`
}

// ModifyTapeRequest — тело PATCH /api/v1/tapes/{vid}.
// Пустая строка очищает значение.
type ModifyTapeRequest struct {
	Comment            *string `json:"comment,omitempty"`
	VerificationStatus *string `json:"verification_status,omitempty"`
	EncryptionKeyName  *string `json:"encryption_key_name,omitempty"`
}

// FlagRequest — тело PUT /api/v1/tapes/{vid}/full и /dirty.
type FlagRequest struct {
	Value bool `json:"value"`
}

// DriveRequest — тело POST /api/v1/tapes/{vid}/labelled.
type DriveRequest struct {
	Drive string `json:"drive"`
}

// MountRequest — тело POST /api/v1/tapes/{vid}/mounts.
type MountRequest struct {
	Drive string `json:"drive"`
	Type  string `json:"type"`
}

// TapeForWritingDTO — лента, доступная для записи.
type TapeForWritingDTO struct {
	VID               string `json:"vid"`
	MediaType         string `json:"media_type"`
	Vendor            string `json:"vendor"`
	TapePool          string `json:"tape_pool"`
	VO                string `json:"vo"`
	CapacityInBytes   int64  `json:"capacity_in_bytes"`
	DataOnTapeInBytes int64  `json:"data_on_tape_in_bytes"`
	LastFSeq          int64  `json:"last_fseq"`
}

func tapeForWritingDTO(t model.TapeForWriting) TapeForWritingDTO {
	return TapeForWritingDTO{
		VID:               t.VID,
		MediaType:         t.MediaType,
		Vendor:            t.Vendor,
		TapePool:          t.TapePool,
		VO:                t.VO,
		CapacityInBytes:   t.CapacityInBytes,
		DataOnTapeInBytes: t.DataOnTapeInBytes,
		LastFSeq:          t.LastFSeq,
	}
}

// --- Архивные файлы ---

// TapeFileDTO — копия файла на ленте.
type TapeFileDTO struct {
	VID          string    `json:"vid"`
	FSeq         uint64    `json:"fseq"`
	BlockID      uint64    `json:"block_id"`
	Size         uint64    `json:"size"`
	CopyNb       uint8     `json:"copy_nb"`
	CreationTime time.Time `json:"creation_time"`
}

// ArchiveFileDTO — архивный файл с копиями.
type ArchiveFileDTO struct {
	ArchiveFileID      uint64        `json:"archive_file_id"`
	DiskInstance       string        `json:"disk_instance"`
	DiskFileID         string        `json:"disk_file_id"`
	DiskFileOwnerUID   uint32        `json:"disk_file_owner_uid"`
	DiskFileGID        uint32        `json:"disk_file_gid"`
	Size               uint64        `json:"size"`
	Checksums          []ChecksumDTO `json:"checksums"`
	StorageClass       string        `json:"storage_class"`
	CollocationHint    *string       `json:"collocation_hint,omitempty"`
	CreationTime       time.Time     `json:"creation_time"`
	ReconciliationTime time.Time     `json:"reconciliation_time"`
	TapeFiles          []TapeFileDTO `json:"tape_files"`
}

func archiveFileDTO(f *model.ArchiveFile) ArchiveFileDTO {
	tapeFiles := make([]TapeFileDTO, 0, len(f.TapeFiles))
	for _, tf := range f.TapeFiles {
		tapeFiles = append(tapeFiles, TapeFileDTO{
			VID:          tf.VID,
			FSeq:         tf.FSeq,
			BlockID:      tf.BlockID,
			Size:         tf.FileSize,
			CopyNb:       tf.CopyNb,
			CreationTime: tf.CreationTime,
		})
	}
	return ArchiveFileDTO{
		ArchiveFileID:      f.ArchiveFileID,
		DiskInstance:       f.DiskInstance,
		DiskFileID:         f.DiskFileID,
		DiskFileOwnerUID:   f.DiskFileOwnerUID,
		DiskFileGID:        f.DiskFileGID,
		Size:               f.FileSize,
		Checksums:          checksumsDTO(f.Checksums),
		StorageClass:       f.StorageClass,
		CollocationHint:    f.CollocationHint,
		CreationTime:       f.CreationTime,
		ReconciliationTime: f.ReconciliationTime,
		TapeFiles:          tapeFiles,
	}
}

// TapeFileWrittenDTO — событие записи одной копии на ленту.
type TapeFileWrittenDTO struct {
	ArchiveFileID    uint64        `json:"archive_file_id"`
	DiskInstance     string        `json:"disk_instance"`
	DiskFileID       string        `json:"disk_file_id"`
	DiskFileOwnerUID uint32        `json:"disk_file_owner_uid"`
	DiskFileGID      uint32        `json:"disk_file_gid"`
	Size             uint64        `json:"size"`
	Checksums        []ChecksumDTO `json:"checksums"`
	StorageClass     string        `json:"storage_class"`
	VID              string        `json:"vid"`
	FSeq             uint64        `json:"fseq"`
	BlockID          uint64        `json:"block_id"`
	CopyNb           uint8         `json:"copy_nb"`
	TapeDrive        string        `json:"tape_drive"`
}

// FilesWrittenRequest — тело POST /api/v1/tape-files/written.
type FilesWrittenRequest struct {
	Files []TapeFileWrittenDTO `json:"files"`
}

func (r FilesWrittenRequest) model() []model.TapeFileWritten {
	out := make([]model.TapeFileWritten, 0, len(r.Files))
	for _, f := range r.Files {
		out = append(out, model.TapeFileWritten{
			ArchiveFileID:    f.ArchiveFileID,
			DiskInstance:     f.DiskInstance,
			DiskFileID:       f.DiskFileID,
			DiskFileOwnerUID: f.DiskFileOwnerUID,
			DiskFileGID:      f.DiskFileGID,
			Size:             f.Size,
			Checksums:        checksumsModel(f.Checksums),
			StorageClassName: f.StorageClass,
			VID:              f.VID,
			FSeq:             f.FSeq,
			BlockID:          f.BlockID,
			CopyNb:           f.CopyNb,
			TapeDrive:        f.TapeDrive,
		})
	}
	return out
}

// RecycleArchiveFileRequest — тело POST /api/v1/archive-files/{id}/recycle.
type RecycleArchiveFileRequest struct {
	Requester    RequesterDTO  `json:"requester"`
	DiskInstance string        `json:"disk_instance"`
	DiskFileID   string        `json:"disk_file_id,omitempty"`
	DiskFilePath string        `json:"disk_file_path"`
	Size         *uint64       `json:"size,omitempty"`
	Checksums    []ChecksumDTO `json:"checksums,omitempty"`
}

func (r RecycleArchiveFileRequest) model(archiveFileID uint64) model.DeleteArchiveRequest {
	return model.DeleteArchiveRequest{
		Requester:     r.Requester.model(),
		ArchiveFileID: archiveFileID,
		DiskInstance:  r.DiskInstance,
		DiskFileID:    r.DiskFileID,
		DiskFilePath:  r.DiskFilePath,
		FileSize:      r.Size,
		Checksums:     checksumsModel(r.Checksums),
	}
}

// RetrieveCriteriaRequest — тело POST /api/v1/archive-files/{id}/retrieve-criteria.
type RetrieveCriteriaRequest struct {
	DiskInstance string       `json:"disk_instance"`
	Requester    RequesterDTO `json:"requester"`
	Activity     *string      `json:"activity,omitempty"`
	MountPolicy  *string      `json:"mount_policy,omitempty"`
}

// RetrieveCriteriaDTO — результат подготовки чтения.
type RetrieveCriteriaDTO struct {
	ArchiveFile ArchiveFileDTO `json:"archive_file"`
	MountPolicy MountPolicyDTO `json:"mount_policy"`
	Activity    *string        `json:"activity,omitempty"`
	PreparedAt  time.Time      `json:"prepared_at"`
}

func retrieveCriteriaDTO(c *model.RetrieveFileQueueCriteria) RetrieveCriteriaDTO {
	return RetrieveCriteriaDTO{
		ArchiveFile: archiveFileDTO(&c.ArchiveFile),
		MountPolicy: mountPolicyDTO(&c.MountPolicy),
		Activity:    c.Activity,
		PreparedAt:  c.PreparedAt,
	}
}

// UpdateDiskFileIDRequest — тело PUT /api/v1/archive-files/{id}/disk-file-id.
type UpdateDiskFileIDRequest struct {
	DiskInstance string `json:"disk_instance"`
	DiskFileID   string `json:"disk_file_id"`
}

// NextArchiveFileIDRequest — тело POST /api/v1/archive-files/next-id.
type NextArchiveFileIDRequest struct {
	DiskInstance string       `json:"disk_instance"`
	StorageClass string       `json:"storage_class"`
	Requester    RequesterDTO `json:"requester"`
}

// NextArchiveFileIDResponse — выделенный идентификатор архивного файла.
type NextArchiveFileIDResponse struct {
	ArchiveFileID uint64 `json:"archive_file_id"`
}

// --- Журнал удалённых копий ---

// RecycleLogDTO — запись журнала удалённых копий.
type RecycleLogDTO struct {
	ID                      uint64        `json:"id"`
	VID                     string        `json:"vid"`
	FSeq                    uint64        `json:"fseq"`
	BlockID                 uint64        `json:"block_id"`
	CopyNb                  uint8         `json:"copy_nb"`
	TapeFileCreationTime    time.Time     `json:"tape_file_creation_time"`
	ArchiveFileID           uint64        `json:"archive_file_id"`
	DiskInstance            string        `json:"disk_instance"`
	DiskFileID              string        `json:"disk_file_id"`
	DiskFileIDWhenDeleted   string        `json:"disk_file_id_when_deleted"`
	DiskFileUID             uint32        `json:"disk_file_uid"`
	DiskFileGID             uint32        `json:"disk_file_gid"`
	Size                    uint64        `json:"size"`
	Checksums               []ChecksumDTO `json:"checksums"`
	StorageClass            string        `json:"storage_class"`
	ArchiveFileCreationTime time.Time     `json:"archive_file_creation_time"`
	ReconciliationTime      time.Time     `json:"reconciliation_time"`
	CollocationHint         *string       `json:"collocation_hint,omitempty"`
	DiskFilePath            *string       `json:"disk_file_path,omitempty"`
	ReasonLog               string        `json:"reason_log"`
	RecycleLogTime          time.Time     `json:"recycle_log_time"`
}

func recycleLogDTO(e *model.FileRecycleLog) RecycleLogDTO {
	return RecycleLogDTO{
		ID:                      e.ID,
		VID:                     e.VID,
		FSeq:                    e.FSeq,
		BlockID:                 e.BlockID,
		CopyNb:                  e.CopyNb,
		TapeFileCreationTime:    e.TapeFileCreationTime,
		ArchiveFileID:           e.ArchiveFileID,
		DiskInstance:            e.DiskInstanceName,
		DiskFileID:              e.DiskFileID,
		DiskFileIDWhenDeleted:   e.DiskFileIDWhenDeleted,
		DiskFileUID:             e.DiskFileUID,
		DiskFileGID:             e.DiskFileGID,
		Size:                    e.SizeInBytes,
		Checksums:               checksumsDTO(e.Checksums),
		StorageClass:            e.StorageClassName,
		ArchiveFileCreationTime: e.ArchiveFileCreationTime,
		ReconciliationTime:      e.ReconciliationTime,
		CollocationHint:         e.CollocationHint,
		DiskFilePath:            e.DiskFilePath,
		ReasonLog:               e.ReasonLog,
		RecycleLogTime:          e.RecycleLogTime,
	}
}

// RestoreRequest — тело POST /api/v1/recycle-log/restore.
type RestoreRequest struct {
	VID           *string   `json:"vid,omitempty"`
	DiskFileIDs   *[]string `json:"disk_file_ids,omitempty"`
	ArchiveFileID *uint64   `json:"archive_file_id,omitempty"`
	DiskInstance  *string   `json:"disk_instance,omitempty"`
	CopyNb        *uint8    `json:"copy_nb,omitempty"`
	NewDiskFileID string    `json:"new_disk_file_id,omitempty"`
}

func (r RestoreRequest) criteria() model.RecycleTapeFileSearchCriteria {
	return model.RecycleTapeFileSearchCriteria{
		VID:           r.VID,
		DiskFileIDs:   r.DiskFileIDs,
		ArchiveFileID: r.ArchiveFileID,
		DiskInstance:  r.DiskInstance,
		CopyNb:        r.CopyNb,
	}
}

// --- Справочники ---

// VirtualOrganizationDTO — виртуальная организация.
type VirtualOrganizationDTO struct {
	Name                string       `json:"name"`
	ReadMaxDrives       uint64       `json:"read_max_drives"`
	WriteMaxDrives      uint64       `json:"write_max_drives"`
	MaxFileSize         uint64       `json:"max_file_size"`
	Comment             string       `json:"comment"`
	CreationLog         *EntryLogDTO `json:"creation_log,omitempty"`
	LastModificationLog *EntryLogDTO `json:"last_modification_log,omitempty"`
}

func virtualOrganizationDTO(v *model.VirtualOrganization) VirtualOrganizationDTO {
	return VirtualOrganizationDTO{
		Name:                v.Name,
		ReadMaxDrives:       v.ReadMaxDrives,
		WriteMaxDrives:      v.WriteMaxDrives,
		MaxFileSize:         v.MaxFileSize,
		Comment:             v.Comment,
		CreationLog:         entryLogDTO(v.CreationLog),
		LastModificationLog: entryLogDTO(v.LastModificationLog),
	}
}

func (v VirtualOrganizationDTO) model() model.VirtualOrganization {
	return model.VirtualOrganization{
		Name:           v.Name,
		ReadMaxDrives:  v.ReadMaxDrives,
		WriteMaxDrives: v.WriteMaxDrives,
		MaxFileSize:    v.MaxFileSize,
		Comment:        v.Comment,
	}
}

// MediaTypeDTO — тип носителя.
type MediaTypeDTO struct {
	Name                 string       `json:"name"`
	Cartridge            string       `json:"cartridge"`
	CapacityInBytes      uint64       `json:"capacity_in_bytes"`
	PrimaryDensityCode   *uint8       `json:"primary_density_code,omitempty"`
	SecondaryDensityCode *uint8       `json:"secondary_density_code,omitempty"`
	NbWraps              *uint32      `json:"nb_wraps,omitempty"`
	MinLPos              *uint64      `json:"min_lpos,omitempty"`
	MaxLPos              *uint64      `json:"max_lpos,omitempty"`
	Comment              string       `json:"comment"`
	CreationLog          *EntryLogDTO `json:"creation_log,omitempty"`
	LastModificationLog  *EntryLogDTO `json:"last_modification_log,omitempty"`
}

func mediaTypeDTO(m *model.MediaType) MediaTypeDTO {
	return MediaTypeDTO{
		Name:                 m.Name,
		Cartridge:            m.Cartridge,
		CapacityInBytes:      m.CapacityInBytes,
		PrimaryDensityCode:   m.PrimaryDensityCode,
		SecondaryDensityCode: m.SecondaryDensityCode,
		NbWraps:              m.NbWraps,
		MinLPos:              m.MinLPos,
		MaxLPos:              m.MaxLPos,
		Comment:              m.Comment,
		CreationLog:          entryLogDTO(m.CreationLog),
		LastModificationLog:  entryLogDTO(m.LastModificationLog),
	}
}

func (m MediaTypeDTO) model() model.MediaType {
	return model.MediaType{
		Name:                 m.Name,
		Cartridge:            m.Cartridge,
		CapacityInBytes:      m.CapacityInBytes,
		PrimaryDensityCode:   m.PrimaryDensityCode,
		SecondaryDensityCode: m.SecondaryDensityCode,
		NbWraps:              m.NbWraps,
		MinLPos:              m.MinLPos,
		MaxLPos:              m.MaxLPos,
		Comment:              m.Comment,
	}
}

// LogicalLibraryDTO — логическая библиотека.
type LogicalLibraryDTO struct {
	Name                string       `json:"name"`
	IsDisabled          bool         `json:"is_disabled"`
	DisabledReason      *string      `json:"disabled_reason,omitempty"`
	Comment             string       `json:"comment"`
	CreationLog         *EntryLogDTO `json:"creation_log,omitempty"`
	LastModificationLog *EntryLogDTO `json:"last_modification_log,omitempty"`
}

func logicalLibraryDTO(l *model.LogicalLibrary) LogicalLibraryDTO {
	return LogicalLibraryDTO{
		Name:                l.Name,
		IsDisabled:          l.IsDisabled,
		DisabledReason:      l.DisabledReason,
		Comment:             l.Comment,
		CreationLog:         entryLogDTO(l.CreationLog),
		LastModificationLog: entryLogDTO(l.LastModificationLog),
	}
}

func (l LogicalLibraryDTO) model() model.LogicalLibrary {
	return model.LogicalLibrary{
		Name:           l.Name,
		IsDisabled:     l.IsDisabled,
		DisabledReason: l.DisabledReason,
		Comment:        l.Comment,
	}
}

// SetLibraryDisabledRequest — тело PUT /api/v1/logical-libraries/{name}/disabled.
type SetLibraryDisabledRequest struct {
	Disabled bool    `json:"disabled"`
	Reason   *string `json:"reason,omitempty"`
}

// TapePoolDTO — пул лент со сводными счётчиками.
type TapePoolDTO struct {
	Name                string       `json:"name"`
	VO                  string       `json:"vo"`
	NbPartialTapes      uint64       `json:"nb_partial_tapes"`
	Encryption          bool         `json:"encryption"`
	Supply              *string      `json:"supply,omitempty"`
	Comment             string       `json:"comment"`
	NbTapes             uint64       `json:"nb_tapes"`
	NbEmptyTapes        uint64       `json:"nb_empty_tapes"`
	NbDisabledTapes     uint64       `json:"nb_disabled_tapes"`
	NbFullTapes         uint64       `json:"nb_full_tapes"`
	NbWritableTapes     uint64       `json:"nb_writable_tapes"`
	CapacityBytes       uint64       `json:"capacity_bytes"`
	DataBytes           uint64       `json:"data_bytes"`
	NbPhysicalFiles     uint64       `json:"nb_physical_files"`
	CreationLog         *EntryLogDTO `json:"creation_log,omitempty"`
	LastModificationLog *EntryLogDTO `json:"last_modification_log,omitempty"`
}

func tapePoolDTO(p *model.TapePool) TapePoolDTO {
	return TapePoolDTO{
		Name:                p.Name,
		VO:                  p.VO,
		NbPartialTapes:      p.NbPartialTapes,
		Encryption:          p.Encryption,
		Supply:              p.Supply,
		Comment:             p.Comment,
		NbTapes:             p.NbTapes,
		NbEmptyTapes:        p.NbEmptyTapes,
		NbDisabledTapes:     p.NbDisabledTapes,
		NbFullTapes:         p.NbFullTapes,
		NbWritableTapes:     p.NbWritableTapes,
		CapacityBytes:       p.CapacityBytes,
		DataBytes:           p.DataBytes,
		NbPhysicalFiles:     p.NbPhysicalFiles,
		CreationLog:         entryLogDTO(p.CreationLog),
		LastModificationLog: entryLogDTO(p.LastModificationLog),
	}
}

func (p TapePoolDTO) model() model.TapePool {
	return model.TapePool{
		Name:           p.Name,
		VO:             p.VO,
		NbPartialTapes: p.NbPartialTapes,
		Encryption:     p.Encryption,
		Supply:         p.Supply,
		Comment:        p.Comment,
	}
}

// StorageClassDTO — класс хранения.
type StorageClassDTO struct {
	ID                  uint64       `json:"id"`
	Name                string       `json:"name"`
	NbCopies            uint8        `json:"nb_copies"`
	VO                  string       `json:"vo"`
	Comment             string       `json:"comment"`
	CreationLog         *EntryLogDTO `json:"creation_log,omitempty"`
	LastModificationLog *EntryLogDTO `json:"last_modification_log,omitempty"`
}

func storageClassDTO(s *model.StorageClass) StorageClassDTO {
	return StorageClassDTO{
		ID:                  s.ID,
		Name:                s.Name,
		NbCopies:            s.NbCopies,
		VO:                  s.VO,
		Comment:             s.Comment,
		CreationLog:         entryLogDTO(s.CreationLog),
		LastModificationLog: entryLogDTO(s.LastModificationLog),
	}
}

func (s StorageClassDTO) model() model.StorageClass {
	return model.StorageClass{Name: s.Name, NbCopies: s.NbCopies, VO: s.VO, Comment: s.Comment}
}

// ArchiveRouteDTO — маршрут копии класса хранения в пул лент.
type ArchiveRouteDTO struct {
	StorageClass        string       `json:"storage_class"`
	CopyNb              uint8        `json:"copy_nb"`
	TapePool            string       `json:"tape_pool"`
	Comment             string       `json:"comment"`
	CreationLog         *EntryLogDTO `json:"creation_log,omitempty"`
	LastModificationLog *EntryLogDTO `json:"last_modification_log,omitempty"`
}

func archiveRouteDTO(a *model.ArchiveRoute) ArchiveRouteDTO {
	return ArchiveRouteDTO{
		StorageClass:        a.StorageClass,
		CopyNb:              a.CopyNb,
		TapePool:            a.TapePool,
		Comment:             a.Comment,
		CreationLog:         entryLogDTO(a.CreationLog),
		LastModificationLog: entryLogDTO(a.LastModificationLog),
	}
}

func (a ArchiveRouteDTO) model() model.ArchiveRoute {
	return model.ArchiveRoute{StorageClass: a.StorageClass, CopyNb: a.CopyNb, TapePool: a.TapePool, Comment: a.Comment}
}

// MountPolicyDTO — политика монтирования.
type MountPolicyDTO struct {
	Name                  string       `json:"name"`
	ArchivePriority       uint64       `json:"archive_priority"`
	ArchiveMinRequestAge  uint64       `json:"archive_min_request_age"`
	RetrievePriority      uint64       `json:"retrieve_priority"`
	RetrieveMinRequestAge uint64       `json:"retrieve_min_request_age"`
	Comment               string       `json:"comment"`
	CreationLog           *EntryLogDTO `json:"creation_log,omitempty"`
	LastModificationLog   *EntryLogDTO `json:"last_modification_log,omitempty"`
}

func mountPolicyDTO(m *model.MountPolicy) MountPolicyDTO {
	return MountPolicyDTO{
		Name:                  m.Name,
		ArchivePriority:       m.ArchivePriority,
		ArchiveMinRequestAge:  m.ArchiveMinRequestAge,
		RetrievePriority:      m.RetrievePriority,
		RetrieveMinRequestAge: m.RetrieveMinRequestAge,
		Comment:               m.Comment,
		CreationLog:           entryLogDTO(m.CreationLog),
		LastModificationLog:   entryLogDTO(m.LastModificationLog),
	}
}

func (m MountPolicyDTO) model() model.MountPolicy {
	return model.MountPolicy{
		Name:                  m.Name,
		ArchivePriority:       m.ArchivePriority,
		ArchiveMinRequestAge:  m.ArchiveMinRequestAge,
		RetrievePriority:      m.RetrievePriority,
		RetrieveMinRequestAge: m.RetrieveMinRequestAge,
		Comment:               m.Comment,
	}
}

// MountRuleDTO — правило выбора политики монтирования.
// Для правил группы задаётся group, для правил активности — activity_regex.
type MountRuleDTO struct {
	DiskInstance  string       `json:"disk_instance"`
	Name          string       `json:"name,omitempty"`
	Group         string       `json:"group,omitempty"`
	ActivityRegex string       `json:"activity_regex,omitempty"`
	MountPolicy   string       `json:"mount_policy"`
	Comment       string       `json:"comment"`
	CreationLog   *EntryLogDTO `json:"creation_log,omitempty"`
}

func requesterRuleDTO(r *model.RequesterMountRule) MountRuleDTO {
	return MountRuleDTO{
		DiskInstance: r.DiskInstance,
		Name:         r.Name,
		MountPolicy:  r.MountPolicy,
		Comment:      r.Comment,
		CreationLog:  entryLogDTO(r.CreationLog),
	}
}

func groupRuleDTO(r *model.RequesterGroupMountRule) MountRuleDTO {
	return MountRuleDTO{
		DiskInstance: r.DiskInstance,
		Group:        r.Group,
		MountPolicy:  r.MountPolicy,
		Comment:      r.Comment,
		CreationLog:  entryLogDTO(r.CreationLog),
	}
}

func activityRuleDTO(r *model.RequesterActivityMountRule) MountRuleDTO {
	return MountRuleDTO{
		DiskInstance:  r.DiskInstance,
		Name:          r.Name,
		ActivityRegex: r.ActivityRegex,
		MountPolicy:   r.MountPolicy,
		Comment:       r.Comment,
		CreationLog:   entryLogDTO(r.CreationLog),
	}
}

func (m MountRuleDTO) requesterRule() model.RequesterMountRule {
	return model.RequesterMountRule{DiskInstance: m.DiskInstance, Name: m.Name, MountPolicy: m.MountPolicy, Comment: m.Comment}
}

func (m MountRuleDTO) groupRule() model.RequesterGroupMountRule {
	return model.RequesterGroupMountRule{DiskInstance: m.DiskInstance, Group: m.Group, MountPolicy: m.MountPolicy, Comment: m.Comment}
}

func (m MountRuleDTO) activityRule() model.RequesterActivityMountRule {
	return model.RequesterActivityMountRule{
		DiskInstance:  m.DiskInstance,
		Name:          m.Name,
		ActivityRegex: m.ActivityRegex,
		MountPolicy:   m.MountPolicy,
		Comment:       m.Comment,
	}
}

// mapSlice применяет преобразование к каждому элементу среза.
func mapSlice[T any, D any](in []*T, conv func(*T) D) []D {
	out := make([]D, 0, len(in))
	for _, v := range in {
		out = append(out, conv(v))
	}
	return out
}
