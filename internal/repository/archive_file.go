package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/tape-catalogue/internal/domain/model"
)

// ArchiveFileRepository — доступ к таблице archive_file.
type ArchiveFileRepository interface {
	// Insert вставляет архивный файл; повторная вставка того же ID — no-op (inserted=false).
	Insert(ctx context.Context, f *model.ArchiveFile, storageClassID uint64) (inserted bool, err error)
	// Lock блокирует строку архивного файла до конца транзакции.
	Lock(ctx context.Context, archiveFileID uint64) error
	// Get возвращает архивный файл со всеми копиями.
	Get(ctx context.Context, archiveFileID uint64) (*model.ArchiveFile, error)
	// GetWithTapeStates возвращает архивный файл только с копиями на лентах в заданных состояниях.
	GetWithTapeStates(ctx context.Context, archiveFileID uint64, states []model.TapeState) (*model.ArchiveFile, error)
	// Delete удаляет строку архивного файла.
	Delete(ctx context.Context, archiveFileID uint64) (bool, error)
	// UpdateDiskFileID меняет идентификатор дискового файла.
	UpdateDiskFileID(ctx context.Context, archiveFileID uint64, diskInstance, diskFileID string) (bool, error)
	// Search открывает курсор по архивным файлам, сгруппированным с копиями.
	Search(ctx context.Context, criteria model.ArchiveFileSearchCriteria) (*ArchiveFileRows, error)
}

type archiveFileRepo struct {
	db      DBTX
	dialect Dialect
}

// NewArchiveFileRepository создаёт репозиторий архивных файлов.
func NewArchiveFileRepository(db DBTX, dialect Dialect) ArchiveFileRepository {
	return &archiveFileRepo{db: db, dialect: dialect}
}

const archiveFileColumns = `
	af.archive_file_id, af.disk_instance_name, af.disk_file_id, af.disk_file_uid, af.disk_file_gid,
	af.size_in_bytes, af.checksum_blob, af.checksum_adler32, sc.storage_class_name,
	af.collocation_hint, af.creation_time, af.reconciliation_time`

const archiveFileFrom = `
	FROM archive_file af
	JOIN storage_class sc ON sc.storage_class_id = af.storage_class_id`

const tapeFileColumns = `tf.vid, tf.fseq, tf.block_id, tf.logical_size_in_bytes, tf.copy_nb, tf.creation_time`

func archiveFileScanDest(f *model.ArchiveFile, blob *[]byte, adler32 *int64) []any {
	return []any{
		&f.ArchiveFileID, &f.DiskInstance, &f.DiskFileID, &f.DiskFileOwnerUID, &f.DiskFileGID,
		&f.FileSize, blob, adler32, &f.StorageClass,
		&f.CollocationHint, &f.CreationTime, &f.ReconciliationTime,
	}
}

// decodeChecksums восстанавливает набор контрольных сумм из checksum_blob,
// а при его отсутствии — из checksum_adler32.
func decodeChecksums(blob []byte, adler32 int64) (model.ChecksumBlob, error) {
	if len(blob) > 0 {
		return model.DeserializeChecksumBlob(blob)
	}
	if adler32 == 0 {
		return nil, nil
	}
	return model.ChecksumBlob{{Type: model.ChecksumAdler32, Value: fmt.Sprintf("%08x", uint32(adler32))}}, nil
}

func (r *archiveFileRepo) Insert(ctx context.Context, f *model.ArchiveFile, storageClassID uint64) (bool, error) {
	query := `
		INSERT INTO archive_file (archive_file_id, disk_instance_name, disk_file_id,
			disk_file_uid, disk_file_gid, size_in_bytes, checksum_blob, checksum_adler32,
			storage_class_id, collocation_hint, creation_time, reconciliation_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (archive_file_id) DO NOTHING`

	blob, err := f.Checksums.Serialize()
	if err != nil {
		return false, fmt.Errorf("архивный файл %d: %w", f.ArchiveFileID, err)
	}
	tag, err := r.db.Exec(ctx, query,
		f.ArchiveFileID, f.DiskInstance, f.DiskFileID, f.DiskFileOwnerUID, f.DiskFileGID,
		f.FileSize, blob, int64(f.Checksums.Adler32()),
		storageClassID, f.CollocationHint, f.CreationTime, f.ReconciliationTime,
	)
	if err != nil {
		return false, mapWriteError(err, fmt.Sprintf("архивного файла %d", f.ArchiveFileID))
	}
	return tag.RowsAffected() > 0, nil
}

func (r *archiveFileRepo) Lock(ctx context.Context, archiveFileID uint64) error {
	var locked uint64
	query := `SELECT archive_file_id FROM archive_file WHERE archive_file_id = $1` + lockSuffix(r.dialect, true)
	if err := r.db.QueryRow(ctx, query, archiveFileID).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка блокировки архивного файла: %w", err)
	}
	return nil
}

func (r *archiveFileRepo) Get(ctx context.Context, archiveFileID uint64) (*model.ArchiveFile, error) {
	return r.get(ctx, archiveFileID, nil)
}

func (r *archiveFileRepo) GetWithTapeStates(ctx context.Context, archiveFileID uint64,
	states []model.TapeState) (*model.ArchiveFile, error) {
	names := make([]string, 0, len(states))
	for _, s := range states {
		names = append(names, string(s))
	}
	return r.get(ctx, archiveFileID, names)
}

func (r *archiveFileRepo) get(ctx context.Context, archiveFileID uint64, tapeStates []string) (*model.ArchiveFile, error) {
	f := &model.ArchiveFile{}
	var (
		blob    []byte
		adler32 int64
	)
	query := `SELECT ` + archiveFileColumns + archiveFileFrom + ` WHERE af.archive_file_id = $1`
	if err := r.db.QueryRow(ctx, query, archiveFileID).Scan(archiveFileScanDest(f, &blob, &adler32)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения архивного файла: %w", err)
	}
	checksums, err := decodeChecksums(blob, adler32)
	if err != nil {
		return nil, fmt.Errorf("архивный файл %d: %w", archiveFileID, err)
	}
	f.Checksums = checksums

	tfQuery := `SELECT ` + tapeFileColumns + ` FROM tape_file tf`
	args := []any{archiveFileID}
	if tapeStates != nil {
		tfQuery += ` JOIN tape t ON t.vid = tf.vid WHERE tf.archive_file_id = $1 AND t.state = ANY($2)`
		args = append(args, tapeStates)
	} else {
		tfQuery += ` WHERE tf.archive_file_id = $1`
	}
	tfQuery += ` ORDER BY tf.copy_nb`

	rows, err := r.db.Query(ctx, tfQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения копий архивного файла: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tf model.TapeFile
		if err := rows.Scan(&tf.VID, &tf.FSeq, &tf.BlockID, &tf.FileSize, &tf.CopyNb, &tf.CreationTime); err != nil {
			return nil, fmt.Errorf("ошибка сканирования копии: %w", err)
		}
		f.TapeFiles = append(f.TapeFiles, tf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения копий архивного файла: %w", err)
	}
	return f, nil
}

func (r *archiveFileRepo) Delete(ctx context.Context, archiveFileID uint64) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM archive_file WHERE archive_file_id = $1`, archiveFileID)
	if err != nil {
		return false, fmt.Errorf("ошибка удаления архивного файла: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *archiveFileRepo) UpdateDiskFileID(ctx context.Context, archiveFileID uint64, diskInstance,
	diskFileID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE archive_file SET disk_file_id = $3
		WHERE archive_file_id = $1 AND disk_instance_name = $2`,
		archiveFileID, diskInstance, diskFileID)
	if err != nil {
		return false, mapWriteError(err, "идентификатора дискового файла")
	}
	return tag.RowsAffected() > 0, nil
}

// buildArchiveFileWhere строит WHERE по критериям выборки архивных файлов.
func buildArchiveFileWhere(c model.ArchiveFileSearchCriteria, startArg int) (string, []any) {
	b := newWhereBuilder(startArg)
	if c.ArchiveFileID != nil {
		b.add("af.archive_file_id = $%d", *c.ArchiveFileID)
	}
	if c.DiskInstance != nil {
		b.add("af.disk_instance_name = $%d", *c.DiskInstance)
	}
	if c.DiskFileIDs != nil {
		b.add("af.disk_file_id = ANY($%d)", *c.DiskFileIDs)
	}
	if c.VID != nil {
		b.add("tf.vid = $%d", *c.VID)
	}
	if c.FSeq != nil {
		b.add("tf.fseq = $%d", *c.FSeq)
	}
	if c.CopyNb != nil {
		b.add("tf.copy_nb = $%d", *c.CopyNb)
	}
	return b.where(), b.args
}

func (r *archiveFileRepo) Search(ctx context.Context, criteria model.ArchiveFileSearchCriteria) (*ArchiveFileRows, error) {
	where, args := buildArchiveFileWhere(criteria, 1)
	query := `SELECT ` + archiveFileColumns + `, ` + tapeFileColumns + archiveFileFrom + `
		LEFT JOIN tape_file tf ON tf.archive_file_id = af.archive_file_id
		` + where + `
		ORDER BY af.archive_file_id, tf.copy_nb`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки архивных файлов: %w", err)
	}
	return &ArchiveFileRows{rows: rows}, nil
}

// ArchiveFileRows — курсор по архивным файлам. Строки результата
// (файл × копия) группируются в один ArchiveFile.
type ArchiveFileRows struct {
	rows    pgx.Rows
	peeked  *archiveFileRow
	current *model.ArchiveFile
	err     error
}

type archiveFileRow struct {
	file *model.ArchiveFile
	tf   *model.TapeFile
}

// Next переходит к следующему архивному файлу.
func (it *ArchiveFileRows) Next() bool {
	if it.err != nil {
		return false
	}

	var cur *model.ArchiveFile
	if it.peeked != nil {
		cur = it.peeked.file
		appendTapeFile(cur, it.peeked.tf)
		it.peeked = nil
	}

	for it.rows.Next() {
		row, err := scanArchiveFileRow(it.rows)
		if err != nil {
			it.err = err
			return false
		}
		if cur == nil {
			cur = row.file
			appendTapeFile(cur, row.tf)
			continue
		}
		if row.file.ArchiveFileID != cur.ArchiveFileID {
			it.peeked = row
			break
		}
		appendTapeFile(cur, row.tf)
	}

	if it.peeked == nil {
		if err := it.rows.Err(); err != nil {
			it.err = fmt.Errorf("ошибка чтения архивных файлов: %w", err)
			return false
		}
	}
	if cur == nil {
		return false
	}
	it.current = cur
	return true
}

// ArchiveFile возвращает текущий архивный файл.
func (it *ArchiveFileRows) ArchiveFile() *model.ArchiveFile { return it.current }

// Err возвращает ошибку, прервавшую перебор.
func (it *ArchiveFileRows) Err() error { return it.err }

// Close закрывает курсор.
func (it *ArchiveFileRows) Close() { it.rows.Close() }

func scanArchiveFileRow(rows pgx.Rows) (*archiveFileRow, error) {
	f := &model.ArchiveFile{}
	var (
		blob    []byte
		adler32 int64
		vid     *string
		fseq    *uint64
		blockID *uint64
		size    *uint64
		copyNb  *uint8
		created *time.Time
	)
	dest := append(archiveFileScanDest(f, &blob, &adler32), &vid, &fseq, &blockID, &size, &copyNb, &created)
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("ошибка сканирования архивного файла: %w", err)
	}
	checksums, err := decodeChecksums(blob, adler32)
	if err != nil {
		return nil, fmt.Errorf("архивный файл %d: %w", f.ArchiveFileID, err)
	}
	f.Checksums = checksums

	row := &archiveFileRow{file: f}
	if vid != nil {
		row.tf = &model.TapeFile{
			VID:          *vid,
			FSeq:         *fseq,
			BlockID:      *blockID,
			FileSize:     *size,
			CopyNb:       *copyNb,
			CreationTime: *created,
		}
	}
	return row, nil
}

func appendTapeFile(f *model.ArchiveFile, tf *model.TapeFile) {
	if tf != nil {
		f.TapeFiles = append(f.TapeFiles, *tf)
	}
}
