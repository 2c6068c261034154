package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/tape-catalogue/internal/domain/model"
)

// FileRecycleLogRepository — доступ к таблице file_recycle_log.
type FileRecycleLogRepository interface {
	// InsertFromArchiveFile копирует копию в журнал, подставляя текущие
	// атрибуты архивного файла. inserted=false — архивного файла нет.
	InsertFromArchiveFile(ctx context.Context, e RecycleEntry) (inserted bool, err error)
	// List возвращает до limit записей по критериям (limit <= 0 — без ограничения).
	List(ctx context.Context, criteria model.RecycleTapeFileSearchCriteria, limit int, lock bool) ([]*model.FileRecycleLog, error)
	// Search открывает курсор по записям журнала.
	Search(ctx context.Context, criteria model.RecycleTapeFileSearchCriteria) (*FileRecycleLogRows, error)
	// CountByVID возвращает число записей журнала для ленты.
	CountByVID(ctx context.Context, vid string) (int64, error)
	// Delete удаляет запись по идентификатору.
	Delete(ctx context.Context, id uint64) (bool, error)
	// DeleteByVID удаляет все записи ленты.
	DeleteByVID(ctx context.Context, vid string) (int64, error)
}

// RecycleEntry — данные копии, переносимой в журнал удалённых копий.
type RecycleEntry struct {
	ID            uint64
	ArchiveFileID uint64
	TapeFile      model.TapeFile
	// DiskFileIDWhenDeleted — nil означает текущий disk_file_id архивного файла
	DiskFileIDWhenDeleted *string
	DiskFilePath          *string
	Reason                string
	Time                  time.Time
}

type fileRecycleLogRepo struct {
	db      DBTX
	dialect Dialect
}

// NewFileRecycleLogRepository создаёт репозиторий журнала удалённых копий.
func NewFileRecycleLogRepository(db DBTX, dialect Dialect) FileRecycleLogRepository {
	return &fileRecycleLogRepo{db: db, dialect: dialect}
}

const recycleLogColumns = `
	frl.file_recycle_log_id, frl.vid, frl.fseq, frl.block_id, frl.copy_nb, frl.tape_file_creation_time,
	frl.archive_file_id, frl.disk_instance_name, frl.disk_file_id, frl.disk_file_id_when_deleted,
	frl.disk_file_uid, frl.disk_file_gid, frl.size_in_bytes, frl.checksum_blob, frl.checksum_adler32,
	sc.storage_class_name, frl.archive_file_creation_time, frl.reconciliation_time,
	frl.collocation_hint, frl.disk_file_path, frl.reason_log, frl.recycle_log_time`

const recycleLogFrom = `
	FROM file_recycle_log frl
	JOIN storage_class sc ON sc.storage_class_id = frl.storage_class_id`

func scanRecycleLog(row pgx.Row) (*model.FileRecycleLog, error) {
	e := &model.FileRecycleLog{}
	var (
		blob    []byte
		adler32 int64
	)
	err := row.Scan(
		&e.ID, &e.VID, &e.FSeq, &e.BlockID, &e.CopyNb, &e.TapeFileCreationTime,
		&e.ArchiveFileID, &e.DiskInstanceName, &e.DiskFileID, &e.DiskFileIDWhenDeleted,
		&e.DiskFileUID, &e.DiskFileGID, &e.SizeInBytes, &blob, &adler32,
		&e.StorageClassName, &e.ArchiveFileCreationTime, &e.ReconciliationTime,
		&e.CollocationHint, &e.DiskFilePath, &e.ReasonLog, &e.RecycleLogTime,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка сканирования записи журнала: %w", err)
	}
	if e.Checksums, err = decodeChecksums(blob, adler32); err != nil {
		return nil, fmt.Errorf("запись журнала %d: %w", e.ID, err)
	}
	return e, nil
}

func (r *fileRecycleLogRepo) InsertFromArchiveFile(ctx context.Context, e RecycleEntry) (bool, error) {
	query := `
		INSERT INTO file_recycle_log (file_recycle_log_id, vid, fseq, block_id, copy_nb,
			tape_file_creation_time, archive_file_id, disk_instance_name, disk_file_id,
			disk_file_id_when_deleted, disk_file_uid, disk_file_gid, size_in_bytes,
			checksum_blob, checksum_adler32, storage_class_id, archive_file_creation_time,
			reconciliation_time, collocation_hint, disk_file_path, reason_log, recycle_log_time)
		SELECT $1, $2, $3, $4, $5, $6,
			af.archive_file_id, af.disk_instance_name, af.disk_file_id,
			COALESCE($7, af.disk_file_id), af.disk_file_uid, af.disk_file_gid, af.size_in_bytes,
			af.checksum_blob, af.checksum_adler32, af.storage_class_id, af.creation_time,
			af.reconciliation_time, af.collocation_hint, $8, $9, $10
		FROM archive_file af
		WHERE af.archive_file_id = $11`

	tf := e.TapeFile
	tag, err := r.db.Exec(ctx, query,
		e.ID, tf.VID, tf.FSeq, tf.BlockID, tf.CopyNb, tf.CreationTime,
		e.DiskFileIDWhenDeleted, e.DiskFilePath, e.Reason, e.Time,
		e.ArchiveFileID,
	)
	if err != nil {
		return false, mapWriteError(err, "записи журнала удалённых копий")
	}
	return tag.RowsAffected() > 0, nil
}

// buildRecycleLogWhere строит WHERE по критериям выборки журнала.
func buildRecycleLogWhere(c model.RecycleTapeFileSearchCriteria, startArg int) (string, []any) {
	b := newWhereBuilder(startArg)
	if c.VID != nil {
		b.add("frl.vid = $%d", *c.VID)
	}
	if c.DiskFileIDs != nil {
		b.add("frl.disk_file_id = ANY($%d)", *c.DiskFileIDs)
	}
	if c.ArchiveFileID != nil {
		b.add("frl.archive_file_id = $%d", *c.ArchiveFileID)
	}
	if c.DiskInstance != nil {
		b.add("frl.disk_instance_name = $%d", *c.DiskInstance)
	}
	if c.CopyNb != nil {
		b.add("frl.copy_nb = $%d", *c.CopyNb)
	}
	if c.RecycleLogTimeMin != nil {
		b.add("frl.recycle_log_time >= $%d", *c.RecycleLogTimeMin)
	}
	if c.RecycleLogTimeMax != nil {
		b.add("frl.recycle_log_time <= $%d", *c.RecycleLogTimeMax)
	}
	return b.where(), b.args
}

func (r *fileRecycleLogRepo) List(ctx context.Context, criteria model.RecycleTapeFileSearchCriteria, limit int,
	lock bool) ([]*model.FileRecycleLog, error) {
	where, args := buildRecycleLogWhere(criteria, 1)
	query := `SELECT ` + recycleLogColumns + recycleLogFrom + ` ` + where + ` ORDER BY frl.file_recycle_log_id`
	query += limitClause(limit)
	if lock {
		// Блокируются только строки журнала, а не справочник классов хранения.
		query = `SELECT ` + recycleLogColumns + recycleLogFrom + ` WHERE frl.file_recycle_log_id IN (
			SELECT frl.file_recycle_log_id FROM file_recycle_log frl ` + where + `
			ORDER BY frl.file_recycle_log_id` + limitClause(limit) + lockSuffix(r.dialect, true) + `)
			ORDER BY frl.file_recycle_log_id`
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки журнала удалённых копий: %w", err)
	}
	defer rows.Close()

	var result []*model.FileRecycleLog
	for rows.Next() {
		e, err := scanRecycleLog(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}

func (r *fileRecycleLogRepo) Search(ctx context.Context, criteria model.RecycleTapeFileSearchCriteria) (*FileRecycleLogRows, error) {
	where, args := buildRecycleLogWhere(criteria, 1)
	query := `SELECT ` + recycleLogColumns + recycleLogFrom + ` ` + where + ` ORDER BY frl.file_recycle_log_id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки журнала удалённых копий: %w", err)
	}
	return &FileRecycleLogRows{rows: rows}, nil
}

func (r *fileRecycleLogRepo) CountByVID(ctx context.Context, vid string) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM file_recycle_log WHERE vid = $1`, vid).Scan(&n); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта записей журнала: %w", err)
	}
	return n, nil
}

func (r *fileRecycleLogRepo) Delete(ctx context.Context, id uint64) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM file_recycle_log WHERE file_recycle_log_id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("ошибка удаления записи журнала: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *fileRecycleLogRepo) DeleteByVID(ctx context.Context, vid string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM file_recycle_log WHERE vid = $1`, vid)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления записей журнала ленты: %w", err)
	}
	return tag.RowsAffected(), nil
}

// FileRecycleLogRows — курсор по записям журнала удалённых копий.
type FileRecycleLogRows struct {
	rows    pgx.Rows
	current *model.FileRecycleLog
	err     error
}

// Next переходит к следующей записи.
func (it *FileRecycleLogRows) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.rows.Next() {
		if err := it.rows.Err(); err != nil {
			it.err = fmt.Errorf("ошибка чтения журнала удалённых копий: %w", err)
		}
		return false
	}
	e, err := scanRecycleLog(it.rows)
	if err != nil {
		it.err = err
		return false
	}
	it.current = e
	return true
}

// Entry возвращает текущую запись.
func (it *FileRecycleLogRows) Entry() *model.FileRecycleLog { return it.current }

// Err возвращает ошибку, прервавшую перебор.
func (it *FileRecycleLogRows) Err() error { return it.err }

// Close закрывает курсор.
func (it *FileRecycleLogRows) Close() { it.rows.Close() }
