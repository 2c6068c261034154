package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/tape-catalogue/internal/domain/model"
)

// TapeFileRepository — доступ к таблице tape_file.
type TapeFileRepository interface {
	// Insert вставляет копию архивного файла.
	Insert(ctx context.Context, tf model.TapeFile, archiveFileID uint64) error
	// Get возвращает копию по номеру.
	Get(ctx context.Context, archiveFileID uint64, copyNb uint8) (*model.TapeFile, error)
	// ListOtherCopies возвращает копии с тем же номером, но в другой позиции (vid, fseq).
	ListOtherCopies(ctx context.Context, archiveFileID uint64, copyNb uint8, vid string, fseq uint64) ([]model.TapeFile, error)
	// CountByArchiveFile возвращает число копий архивного файла.
	CountByArchiveFile(ctx context.Context, archiveFileID uint64) (int64, error)
	// CountByVID возвращает число копий на ленте.
	CountByVID(ctx context.Context, vid string) (int64, error)
	// ListTapeStates возвращает состояния лент, на которых есть копии архивного файла.
	ListTapeStates(ctx context.Context, archiveFileID uint64) ([]TapeFileState, error)
	// Delete удаляет копию по позиции на ленте.
	Delete(ctx context.Context, vid string, fseq uint64) (bool, error)
	// DeleteByArchiveFile удаляет все копии архивного файла.
	DeleteByArchiveFile(ctx context.Context, archiveFileID uint64) (int64, error)
}

// TapeFileState — копия и состояние её ленты.
type TapeFileState struct {
	VID    string
	CopyNb uint8
	State  model.TapeState
}

type tapeFileRepo struct {
	db DBTX
}

// NewTapeFileRepository создаёт репозиторий копий на лентах.
func NewTapeFileRepository(db DBTX) TapeFileRepository {
	return &tapeFileRepo{db: db}
}

func (r *tapeFileRepo) Insert(ctx context.Context, tf model.TapeFile, archiveFileID uint64) error {
	query := `
		INSERT INTO tape_file (vid, fseq, block_id, logical_size_in_bytes, copy_nb, creation_time, archive_file_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		tf.VID, tf.FSeq, tf.BlockID, tf.FileSize, tf.CopyNb, tf.CreationTime, archiveFileID)
	if err != nil {
		return mapWriteError(err, fmt.Sprintf("копии %s/%d", tf.VID, tf.FSeq))
	}
	return nil
}

func (r *tapeFileRepo) Get(ctx context.Context, archiveFileID uint64, copyNb uint8) (*model.TapeFile, error) {
	query := `SELECT ` + tapeFileColumns + ` FROM tape_file tf WHERE tf.archive_file_id = $1 AND tf.copy_nb = $2`

	tf := &model.TapeFile{}
	err := r.db.QueryRow(ctx, query, archiveFileID, copyNb).Scan(
		&tf.VID, &tf.FSeq, &tf.BlockID, &tf.FileSize, &tf.CopyNb, &tf.CreationTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения копии: %w", err)
	}
	return tf, nil
}

func (r *tapeFileRepo) ListOtherCopies(ctx context.Context, archiveFileID uint64, copyNb uint8, vid string,
	fseq uint64) ([]model.TapeFile, error) {
	query := `
		SELECT ` + tapeFileColumns + `
		FROM tape_file tf
		WHERE tf.archive_file_id = $1 AND tf.copy_nb = $2
			AND NOT (tf.vid = $3 AND tf.fseq = $4)`

	rows, err := r.db.Query(ctx, query, archiveFileID, copyNb, vid, fseq)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска старых копий: %w", err)
	}
	defer rows.Close()

	var result []model.TapeFile
	for rows.Next() {
		var tf model.TapeFile
		if err := rows.Scan(&tf.VID, &tf.FSeq, &tf.BlockID, &tf.FileSize, &tf.CopyNb, &tf.CreationTime); err != nil {
			return nil, fmt.Errorf("ошибка сканирования копии: %w", err)
		}
		result = append(result, tf)
	}
	return result, rows.Err()
}

func (r *tapeFileRepo) CountByArchiveFile(ctx context.Context, archiveFileID uint64) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM tape_file WHERE archive_file_id = $1`, archiveFileID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта копий архивного файла: %w", err)
	}
	return n, nil
}

func (r *tapeFileRepo) CountByVID(ctx context.Context, vid string) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM tape_file WHERE vid = $1`, vid).Scan(&n); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта копий на ленте: %w", err)
	}
	return n, nil
}

func (r *tapeFileRepo) ListTapeStates(ctx context.Context, archiveFileID uint64) ([]TapeFileState, error) {
	query := `
		SELECT tf.vid, tf.copy_nb, t.state
		FROM tape_file tf
		JOIN tape t ON t.vid = tf.vid
		WHERE tf.archive_file_id = $1
		ORDER BY tf.copy_nb`

	rows, err := r.db.Query(ctx, query, archiveFileID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения состояний лент: %w", err)
	}
	defer rows.Close()

	var result []TapeFileState
	for rows.Next() {
		var (
			s     TapeFileState
			state string
		)
		if err := rows.Scan(&s.VID, &s.CopyNb, &state); err != nil {
			return nil, fmt.Errorf("ошибка сканирования состояния ленты: %w", err)
		}
		s.State = model.TapeState(state)
		result = append(result, s)
	}
	return result, rows.Err()
}

func (r *tapeFileRepo) Delete(ctx context.Context, vid string, fseq uint64) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM tape_file WHERE vid = $1 AND fseq = $2`, vid, fseq)
	if err != nil {
		return false, fmt.Errorf("ошибка удаления копии: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *tapeFileRepo) DeleteByArchiveFile(ctx context.Context, archiveFileID uint64) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM tape_file WHERE archive_file_id = $1`, archiveFileID)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления копий архивного файла: %w", err)
	}
	return tag.RowsAffected(), nil
}
