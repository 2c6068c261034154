package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/tape-catalogue/internal/domain/model"
)

// TapeRepository — доступ к таблице tape.
type TapeRepository interface {
	// Create вставляет ленту с нулевыми счётчиками.
	Create(ctx context.Context, t *model.Tape) error
	// Exists проверяет наличие ленты.
	Exists(ctx context.Context, vid string) (bool, error)
	// Lock блокирует строку ленты до конца транзакции.
	Lock(ctx context.Context, vid string) error
	// Get возвращает ленту по VID.
	Get(ctx context.Context, vid string) (*model.Tape, error)
	// List возвращает ленты по критериям, упорядоченные по VID.
	List(ctx context.Context, criteria model.TapeSearchCriteria) ([]*model.Tape, error)
	// ListByVIDs возвращает найденные ленты из списка VID.
	ListByVIDs(ctx context.Context, vids []string) ([]*model.Tape, error)
	// ListForWriting возвращает ленты библиотеки, пригодные для записи.
	ListForWriting(ctx context.Context, logicalLibrary string) ([]model.TapeForWriting, error)
	// UpdateState меняет состояние; prevState — условие на текущее состояние.
	UpdateState(ctx context.Context, vid string, state model.TapeState, prevState *model.TapeState,
		reason *string, modifiedBy string, now time.Time) (bool, error)
	// SetFull устанавливает флаг full.
	SetFull(ctx context.Context, vid string, full bool, log model.EntryLog) (bool, error)
	// SetDirty устанавливает флаг dirty.
	SetDirty(ctx context.Context, vid string, dirty bool, log model.EntryLog) (bool, error)
	// SetDirtyByArchiveFile помечает dirty все ленты с копиями архивного файла.
	SetDirtyByArchiveFile(ctx context.Context, archiveFileID uint64) (int64, error)
	// SetLabelled записывает отметку о разметке ленты.
	SetLabelled(ctx context.Context, vid, drive string, now time.Time) (bool, error)
	// IncrementMountCount увеличивает счётчик монтирований и отметку последнего монтирования.
	IncrementMountCount(ctx context.Context, vid string, mountType model.TapeMountType, drive string, now time.Time) (bool, error)
	// UpdateOptional меняет необязательное текстовое поле ленты.
	UpdateOptional(ctx context.Context, vid string, field TapeOptionalField, value *string, log model.EntryLog) (bool, error)
	// AddWrittenFiles обновляет счётчики после записи пачки файлов.
	AddWrittenFiles(ctx context.Context, vid string, w WrittenFilesSummary) error
	// ResetForReclaim обнуляет счётчики и флаги ленты.
	ResetForReclaim(ctx context.Context, vid string, log model.EntryLog) (bool, error)
	// DeleteIfEmpty удаляет ленту без копий и записей журнала удалённых копий.
	DeleteIfEmpty(ctx context.Context, vid string) (bool, error)
}

// TapeOptionalField — изменяемое необязательное поле ленты.
type TapeOptionalField string

const (
	TapeFieldComment            TapeOptionalField = "user_comment"
	TapeFieldVerificationStatus TapeOptionalField = "verification_status"
	TapeFieldEncryptionKeyName  TapeOptionalField = "encryption_key_name"
)

// WrittenFilesSummary — итог записи пачки файлов на ленту.
type WrittenFilesSummary struct {
	DataBytes   uint64
	MasterBytes uint64
	NbFiles     uint64
	LastFSeq    uint64
	Drive       string
	Time        time.Time
}

type tapeRepo struct {
	db      DBTX
	dialect Dialect
}

// NewTapeRepository создаёт репозиторий лент.
func NewTapeRepository(db DBTX, dialect Dialect) TapeRepository {
	return &tapeRepo{db: db, dialect: dialect}
}

const tapeColumns = `
	t.vid, t.media_type_name, t.vendor, t.logical_library_name, t.tape_pool_name,
	tp.virtual_organization_name, mt.capacity_in_bytes,
	t.data_on_tape_in_bytes, t.master_data_in_bytes, t.nb_master_files, t.last_fseq,
	t.is_full, t.is_dirty, t.state, t.state_reason, t.state_update_time, t.state_modified_by,
	t.encryption_key_name, t.purchase_order, t.verification_status,
	t.label_drive, t.label_time, t.last_read_drive, t.last_read_time,
	t.last_write_drive, t.last_write_time,
	t.read_mount_count, t.write_mount_count, t.user_comment,
	t.creation_log_user_name, t.creation_log_host_name, t.creation_log_time,
	t.last_modification_log_user_name, t.last_modification_log_host_name, t.last_modification_log_time`

const tapeFrom = `
	FROM tape t
	JOIN tape_pool tp ON tp.tape_pool_name = t.tape_pool_name
	JOIN media_type mt ON mt.media_type_name = t.media_type_name`

func scanTape(row pgx.Row) (*model.Tape, error) {
	t := &model.Tape{}
	var (
		state                             string
		labelDrive, readDrive, writeDrive *string
		labelTime, readTime, writeTime    *time.Time
	)
	err := row.Scan(
		&t.VID, &t.MediaType, &t.Vendor, &t.LogicalLibraryName, &t.TapePoolName,
		&t.VO, &t.CapacityInBytes,
		&t.DataOnTapeInBytes, &t.MasterDataInBytes, &t.NbMasterFiles, &t.LastFSeq,
		&t.Full, &t.Dirty, &state, &t.StateReason, &t.StateUpdateTime, &t.StateModifiedBy,
		&t.EncryptionKeyName, &t.PurchaseOrder, &t.VerificationStatus,
		&labelDrive, &labelTime, &readDrive, &readTime,
		&writeDrive, &writeTime,
		&t.ReadMountCount, &t.WriteMountCount, &t.Comment,
		&t.CreationLog.Username, &t.CreationLog.Host, &t.CreationLog.Time,
		&t.LastModificationLog.Username, &t.LastModificationLog.Host, &t.LastModificationLog.Time,
	)
	if err != nil {
		return nil, err
	}
	t.State = model.TapeState(state)
	t.LabelLog = tapeLog(labelDrive, labelTime)
	t.LastReadLog = tapeLog(readDrive, readTime)
	t.LastWriteLog = tapeLog(writeDrive, writeTime)
	return t, nil
}

func tapeLog(drive *string, at *time.Time) *model.TapeLog {
	if drive == nil || at == nil {
		return nil
	}
	return &model.TapeLog{Drive: *drive, Time: *at}
}

func (r *tapeRepo) Create(ctx context.Context, t *model.Tape) error {
	query := `
		INSERT INTO tape (vid, media_type_name, vendor, logical_library_name, tape_pool_name,
			encryption_key_name, purchase_order, is_full, is_dirty,
			state, state_reason, state_update_time, state_modified_by, user_comment,
			creation_log_user_name, creation_log_host_name, creation_log_time,
			last_modification_log_user_name, last_modification_log_host_name, last_modification_log_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9, $10, $11, $12, $13,
			$14, $15, $16, $14, $15, $16)`

	_, err := r.db.Exec(ctx, query,
		t.VID, t.MediaType, t.Vendor, t.LogicalLibraryName, t.TapePoolName,
		t.EncryptionKeyName, t.PurchaseOrder, t.Full,
		string(t.State), t.StateReason, t.StateUpdateTime, t.StateModifiedBy, t.Comment,
		t.CreationLog.Username, t.CreationLog.Host, t.CreationLog.Time,
	)
	if err != nil {
		return mapWriteError(err, "ленты "+t.VID)
	}
	t.Dirty = true
	t.LastModificationLog = t.CreationLog
	return nil
}

func (r *tapeRepo) Exists(ctx context.Context, vid string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tape WHERE vid = $1)`, vid).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки ленты: %w", err)
	}
	return exists, nil
}

func (r *tapeRepo) Lock(ctx context.Context, vid string) error {
	var locked string
	err := r.db.QueryRow(ctx, `SELECT vid FROM tape WHERE vid = $1`+lockSuffix(r.dialect, true), vid).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка блокировки ленты: %w", err)
	}
	return nil
}

func (r *tapeRepo) Get(ctx context.Context, vid string) (*model.Tape, error) {
	query := `SELECT ` + tapeColumns + tapeFrom + ` WHERE t.vid = $1`

	t, err := scanTape(r.db.QueryRow(ctx, query, vid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения ленты: %w", err)
	}
	return t, nil
}

// buildTapeWhere строит WHERE по критериям поиска лент.
func buildTapeWhere(c model.TapeSearchCriteria, startArg int) (string, []any) {
	b := newWhereBuilder(startArg)
	if c.VID != nil {
		b.add("t.vid = $%d", *c.VID)
	}
	if c.MediaType != nil {
		b.add("t.media_type_name = $%d", *c.MediaType)
	}
	if c.Vendor != nil {
		b.add("t.vendor = $%d", *c.Vendor)
	}
	if c.LogicalLibrary != nil {
		b.add("t.logical_library_name = $%d", *c.LogicalLibrary)
	}
	if c.TapePool != nil {
		b.add("t.tape_pool_name = $%d", *c.TapePool)
	}
	if c.VO != nil {
		b.add("tp.virtual_organization_name = $%d", *c.VO)
	}
	if c.CapacityInBytes != nil {
		b.add("mt.capacity_in_bytes = $%d", *c.CapacityInBytes)
	}
	if c.State != nil {
		b.add("t.state = $%d", string(*c.State))
	}
	if c.Full != nil {
		b.add("t.is_full = $%d", *c.Full)
	}
	if c.PurchaseOrder != nil {
		b.add("t.purchase_order = $%d", *c.PurchaseOrder)
	}
	if c.DiskFileIDs != nil {
		b.add(`t.vid IN (
			SELECT tf.vid FROM tape_file tf
			JOIN archive_file af ON af.archive_file_id = tf.archive_file_id
			WHERE af.disk_file_id = ANY($%d))`, *c.DiskFileIDs)
	}
	return b.where(), b.args
}

func (r *tapeRepo) List(ctx context.Context, criteria model.TapeSearchCriteria) ([]*model.Tape, error) {
	where, args := buildTapeWhere(criteria, 1)
	query := `SELECT ` + tapeColumns + tapeFrom + ` ` + where + ` ORDER BY t.vid`
	return r.query(ctx, query, args...)
}

func (r *tapeRepo) ListByVIDs(ctx context.Context, vids []string) ([]*model.Tape, error) {
	query := `SELECT ` + tapeColumns + tapeFrom + ` WHERE t.vid = ANY($1) ORDER BY t.vid`
	return r.query(ctx, query, vids)
}

func (r *tapeRepo) query(ctx context.Context, query string, args ...any) ([]*model.Tape, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка лент: %w", err)
	}
	defer rows.Close()

	var result []*model.Tape
	for rows.Next() {
		t, err := scanTape(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования ленты: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (r *tapeRepo) ListForWriting(ctx context.Context, logicalLibrary string) ([]model.TapeForWriting, error) {
	query := `
		SELECT t.vid, t.media_type_name, t.vendor, t.tape_pool_name, tp.virtual_organization_name,
			mt.capacity_in_bytes, t.data_on_tape_in_bytes, t.last_fseq
		FROM tape t
		JOIN tape_pool tp ON tp.tape_pool_name = t.tape_pool_name
		JOIN media_type mt ON mt.media_type_name = t.media_type_name
		JOIN logical_library ll ON ll.logical_library_name = t.logical_library_name
		WHERE t.logical_library_name = $1
			AND t.state = $2
			AND NOT t.is_full
			AND t.label_drive IS NOT NULL
			AND t.label_time IS NOT NULL
			AND NOT ll.is_disabled
		ORDER BY t.data_on_tape_in_bytes DESC, t.vid`

	rows, err := r.db.Query(ctx, query, logicalLibrary, string(model.TapeStateActive))
	if err != nil {
		return nil, fmt.Errorf("ошибка получения лент для записи: %w", err)
	}
	defer rows.Close()

	var result []model.TapeForWriting
	for rows.Next() {
		var t model.TapeForWriting
		if err := rows.Scan(&t.VID, &t.MediaType, &t.Vendor, &t.TapePool, &t.VO,
			&t.CapacityInBytes, &t.DataOnTapeInBytes, &t.LastFSeq); err != nil {
			return nil, fmt.Errorf("ошибка сканирования ленты для записи: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (r *tapeRepo) UpdateState(ctx context.Context, vid string, state model.TapeState, prevState *model.TapeState,
	reason *string, modifiedBy string, now time.Time) (bool, error) {
	query := `
		UPDATE tape
		SET state = $2, state_reason = $3, state_update_time = $4, state_modified_by = $5
		WHERE vid = $1`
	args := []any{vid, string(state), reason, now, modifiedBy}
	if prevState != nil {
		query += ` AND state = $6`
		args = append(args, string(*prevState))
	}
	return r.execUpdate(ctx, "состояния ленты", query, args...)
}

func (r *tapeRepo) SetFull(ctx context.Context, vid string, full bool, log model.EntryLog) (bool, error) {
	query := `
		UPDATE tape
		SET is_full = $2, last_modification_log_user_name = $3,
			last_modification_log_host_name = $4, last_modification_log_time = $5
		WHERE vid = $1`
	return r.execUpdate(ctx, "флага full", query, vid, full, log.Username, log.Host, log.Time)
}

func (r *tapeRepo) SetDirty(ctx context.Context, vid string, dirty bool, log model.EntryLog) (bool, error) {
	query := `
		UPDATE tape
		SET is_dirty = $2, last_modification_log_user_name = $3,
			last_modification_log_host_name = $4, last_modification_log_time = $5
		WHERE vid = $1`
	return r.execUpdate(ctx, "флага dirty", query, vid, dirty, log.Username, log.Host, log.Time)
}

func (r *tapeRepo) SetDirtyByArchiveFile(ctx context.Context, archiveFileID uint64) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE tape SET is_dirty = TRUE
		WHERE vid IN (SELECT vid FROM tape_file WHERE archive_file_id = $1)`, archiveFileID)
	if err != nil {
		return 0, fmt.Errorf("ошибка установки флага dirty: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *tapeRepo) SetLabelled(ctx context.Context, vid, drive string, now time.Time) (bool, error) {
	query := `UPDATE tape SET label_drive = $2, label_time = $3 WHERE vid = $1`
	return r.execUpdate(ctx, "отметки разметки", query, vid, drive, now)
}

func (r *tapeRepo) IncrementMountCount(ctx context.Context, vid string, mountType model.TapeMountType,
	drive string, now time.Time) (bool, error) {
	var query string
	switch mountType {
	case model.TapeMountArchive:
		query = `
			UPDATE tape
			SET write_mount_count = write_mount_count + 1, last_write_drive = $2, last_write_time = $3
			WHERE vid = $1`
	case model.TapeMountRetrieve:
		query = `
			UPDATE tape
			SET read_mount_count = read_mount_count + 1, last_read_drive = $2, last_read_time = $3
			WHERE vid = $1`
	default:
		return false, fmt.Errorf("неизвестный тип монтирования %q", mountType)
	}
	return r.execUpdate(ctx, "счётчика монтирований", query, vid, drive, now)
}

func (r *tapeRepo) UpdateOptional(ctx context.Context, vid string, field TapeOptionalField, value *string,
	log model.EntryLog) (bool, error) {
	switch field {
	case TapeFieldComment, TapeFieldVerificationStatus, TapeFieldEncryptionKeyName:
	default:
		return false, fmt.Errorf("поле ленты %q не изменяется", field)
	}
	query := fmt.Sprintf(`
		UPDATE tape
		SET %s = $2, last_modification_log_user_name = $3,
			last_modification_log_host_name = $4, last_modification_log_time = $5
		WHERE vid = $1`, field)
	return r.execUpdate(ctx, string(field), query, vid, value, log.Username, log.Host, log.Time)
}

func (r *tapeRepo) AddWrittenFiles(ctx context.Context, vid string, w WrittenFilesSummary) error {
	query := `
		UPDATE tape
		SET data_on_tape_in_bytes = data_on_tape_in_bytes + $2,
			master_data_in_bytes = master_data_in_bytes + $3,
			nb_master_files = nb_master_files + $4,
			last_fseq = $5,
			is_dirty = TRUE,
			last_write_drive = $6,
			last_write_time = $7
		WHERE vid = $1`
	ok, err := r.execUpdate(ctx, "счётчиков записи", query,
		vid, w.DataBytes, w.MasterBytes, w.NbFiles, w.LastFSeq, w.Drive, w.Time)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (r *tapeRepo) ResetForReclaim(ctx context.Context, vid string, log model.EntryLog) (bool, error) {
	query := `
		UPDATE tape
		SET data_on_tape_in_bytes = 0, master_data_in_bytes = 0, nb_master_files = 0,
			last_fseq = 0, is_full = FALSE, is_dirty = FALSE, verification_status = NULL,
			last_modification_log_user_name = $2, last_modification_log_host_name = $3,
			last_modification_log_time = $4
		WHERE vid = $1`
	return r.execUpdate(ctx, "счётчиков при reclaim", query, vid, log.Username, log.Host, log.Time)
}

func (r *tapeRepo) DeleteIfEmpty(ctx context.Context, vid string) (bool, error) {
	query := `
		DELETE FROM tape t
		WHERE t.vid = $1
			AND NOT EXISTS (SELECT 1 FROM tape_file tf WHERE tf.vid = t.vid)
			AND NOT EXISTS (SELECT 1 FROM file_recycle_log frl WHERE frl.vid = t.vid)`
	tag, err := r.db.Exec(ctx, query, vid)
	if err != nil {
		return false, fmt.Errorf("ошибка удаления ленты: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// execUpdate выполняет UPDATE и сообщает, была ли изменена строка.
func (r *tapeRepo) execUpdate(ctx context.Context, what, query string, args ...any) (bool, error) {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("ошибка обновления %s: %w", what, err)
	}
	return tag.RowsAffected() > 0, nil
}
