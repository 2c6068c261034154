package catalogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/tape-catalogue/internal/domain/model"
	"github.com/bigkaa/goartstore/tape-catalogue/internal/repository"
)

// Метки причин для метрики tc_recycled_tape_files_total.
const (
	recycleLabelRepack     = "repack"
	recycleLabelDelete     = "delete"
	recycleLabelCopyDelete = "copy_delete"
)

// FileRecycleLogCatalogue — журнал удалённых и заменённых копий (file recycle log).
// Методы с параметром tx выполняются в транзакции вызывающего.
type FileRecycleLogCatalogue struct {
	deps
}

// CopyTapeFilesToFileRecycleLog переносит в журнал все копии архивного файла.
func (c *FileRecycleLogCatalogue) CopyTapeFilesToFileRecycleLog(ctx context.Context, tx repository.DBTX,
	f *model.ArchiveFile, reason string) error {
	for _, tf := range f.TapeFiles {
		entry := repository.RecycleEntry{
			ArchiveFileID: f.ArchiveFileID,
			TapeFile:      tf,
			Reason:        reason,
		}
		if err := c.insert(ctx, tx, entry, recycleLabelDelete); err != nil {
			return err
		}
	}
	return nil
}

// CopyArchiveFileToFileRecycleLog переносит в журнал все копии файла,
// удаляемого по запросу дискового инстанса.
func (c *FileRecycleLogCatalogue) CopyArchiveFileToFileRecycleLog(ctx context.Context, tx repository.DBTX,
	f *model.ArchiveFile, req model.DeleteArchiveRequest) error {
	reason := fmt.Sprintf("Удалён пользователем %s с инстанса %s", req.Requester.Name, req.DiskInstance)
	diskFileID := f.DiskFileID
	if req.DiskFileID != "" {
		diskFileID = req.DiskFileID
	}
	var diskFilePath *string
	if req.DiskFilePath != "" {
		diskFilePath = &req.DiskFilePath
	}

	for _, tf := range f.TapeFiles {
		entry := repository.RecycleEntry{
			ArchiveFileID:         f.ArchiveFileID,
			TapeFile:              tf,
			DiskFileIDWhenDeleted: &diskFileID,
			DiskFilePath:          diskFilePath,
			Reason:                reason,
		}
		if err := c.insert(ctx, tx, entry, recycleLabelDelete); err != nil {
			return err
		}
	}
	return nil
}

// InsertFileInFileRecycleLog добавляет копию в журнал. Атрибуты архивного файла
// копируются из archive_file в момент вставки; если файла уже нет — внутренняя ошибка.
func (c *FileRecycleLogCatalogue) InsertFileInFileRecycleLog(ctx context.Context, tx repository.DBTX,
	entry repository.RecycleEntry) error {
	label := recycleLabelDelete
	if entry.Reason == model.RecycleReasonRepack {
		label = recycleLabelRepack
	}
	return c.insert(ctx, tx, entry, label)
}

func (c *FileRecycleLogCatalogue) insert(ctx context.Context, tx repository.DBTX, entry repository.RecycleEntry,
	label string) error {
	id, err := c.dialect.NextID(ctx, tx, repository.FileRecycleLogIDSequence)
	if err != nil {
		return err
	}
	entry.ID = id
	if entry.Time.IsZero() {
		entry.Time = c.now()
	}

	inserted, err := repository.NewFileRecycleLogRepository(tx, c.dialect).InsertFromArchiveFile(ctx, entry)
	if err != nil {
		return err
	}
	if !inserted {
		return fmt.Errorf("%w: архивный файл %d, копия %s/%d",
			ErrArchiveFileVanished, entry.ArchiveFileID, entry.TapeFile.VID, entry.TapeFile.FSeq)
	}

	recycledTapeFilesTotal.WithLabelValues(label).Inc()
	c.logger.Debug("Копия перенесена в журнал удалённых копий",
		slog.Uint64("archive_file_id", entry.ArchiveFileID),
		slog.String("vid", entry.TapeFile.VID),
		slog.Uint64("fseq", entry.TapeFile.FSeq),
		slog.String("reason", entry.Reason),
	)
	return nil
}

// InsertOldCopiesOfFilesIfAnyOnFileRecycleLog переносит в журнал копии с тем же
// номером, что у tf, но в другой позиции на лентах (результат перепаковки).
// Возвращает перенесённые копии: вызывающий удаляет их после вставки новой.
func (c *FileRecycleLogCatalogue) InsertOldCopiesOfFilesIfAnyOnFileRecycleLog(ctx context.Context,
	tx repository.DBTX, tf model.TapeFile, archiveFileID uint64) ([]model.TapeFile, error) {
	old, err := repository.NewTapeFileRepository(tx).ListOtherCopies(ctx, archiveFileID, tf.CopyNb, tf.VID, tf.FSeq)
	if err != nil {
		return nil, err
	}
	for _, o := range old {
		entry := repository.RecycleEntry{
			ArchiveFileID: archiveFileID,
			TapeFile:      o,
			Reason:        model.RecycleReasonRepack,
		}
		if err := c.insert(ctx, tx, entry, recycleLabelRepack); err != nil {
			return nil, err
		}
	}
	return old, nil
}

// GetFileRecycleLogItor открывает итератор по журналу. Итератор держит
// собственное подключение из пула до вызова Close.
func (c *FileRecycleLogCatalogue) GetFileRecycleLogItor(ctx context.Context,
	criteria model.RecycleTapeFileSearchCriteria) (_ *FileRecycleLogItor, err error) {
	defer observe("GetFileRecycleLogItor", time.Now(), &err)

	if err := c.checkCriteria(ctx, c.pool, criteria); err != nil {
		return nil, wrapInternal("GetFileRecycleLogItor", err)
	}

	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, wrapInternal("GetFileRecycleLogItor", fmt.Errorf("ошибка получения подключения: %w", err))
	}
	rows, err := repository.NewFileRecycleLogRepository(conn, c.dialect).Search(ctx, criteria)
	if err != nil {
		conn.Release()
		return nil, wrapInternal("GetFileRecycleLogItor", err)
	}
	return &FileRecycleLogItor{rows: rows, release: conn.Release}, nil
}

// checkCriteria проверяет критерии выборки журнала.
func (c *FileRecycleLogCatalogue) checkCriteria(ctx context.Context, db repository.DBTX,
	criteria model.RecycleTapeFileSearchCriteria) error {
	if criteria.VID != nil && *criteria.VID == "" {
		return fmt.Errorf("%w: vid", ErrEmptySearchCriterion)
	}
	if criteria.DiskInstance != nil && *criteria.DiskInstance == "" {
		return fmt.Errorf("%w: diskInstance", ErrEmptySearchCriterion)
	}
	if criteria.DiskFileIDs != nil && len(*criteria.DiskFileIDs) == 0 {
		return fmt.Errorf("%w: diskFileIds", ErrEmptySearchCriterion)
	}
	if criteria.RecycleLogTimeMin != nil && criteria.RecycleLogTimeMax != nil &&
		criteria.RecycleLogTimeMin.After(*criteria.RecycleLogTimeMax) {
		return fmt.Errorf("%w: начало интервала позже конца", ErrInvalidValue)
	}
	if criteria.VID != nil {
		exists, err := repository.NewTapeRepository(db, c.dialect).Exists(ctx, *criteria.VID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: %s", ErrNonExistentTape, *criteria.VID)
		}
	}
	return nil
}

// findSingle блокирует и возвращает единственную запись журнала по критериям.
func (c *FileRecycleLogCatalogue) findSingle(ctx context.Context, tx pgx.Tx,
	criteria model.RecycleTapeFileSearchCriteria) (*model.FileRecycleLog, error) {
	if err := c.checkCriteria(ctx, tx, criteria); err != nil {
		return nil, err
	}
	entries, err := repository.NewFileRecycleLogRepository(tx, c.dialect).List(ctx, criteria, 2, true)
	if err != nil {
		return nil, err
	}
	switch len(entries) {
	case 0:
		return nil, ErrNoRecycledFile
	case 1:
		return entries[0], nil
	default:
		return nil, ErrAmbiguousRecycledFile
	}
}

// RestoreFileInRecycleLog восстанавливает копию из журнала. Критериям должна
// соответствовать ровно одна запись. Если архивного файла уже нет, он создаётся
// заново с newDiskFileID (пустой — идентификатор на момент удаления).
func (c *FileRecycleLogCatalogue) RestoreFileInRecycleLog(ctx context.Context,
	criteria model.RecycleTapeFileSearchCriteria, newDiskFileID string) (err error) {
	defer observe("RestoreFileInRecycleLog", time.Now(), &err)

	var (
		restored             *model.FileRecycleLog
		archiveFileRecreated bool
	)
	err = c.txRunner.RunInTx(ctx, func(tx pgx.Tx) error {
		entry, err := c.findSingle(ctx, tx, criteria)
		if err != nil {
			return err
		}

		archiveFiles := repository.NewArchiveFileRepository(tx, c.dialect)
		tapeFiles := repository.NewTapeFileRepository(tx)

		err = archiveFiles.Lock(ctx, entry.ArchiveFileID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			if err := c.recreateArchiveFile(ctx, tx, entry, newDiskFileID); err != nil {
				return err
			}
			archiveFileRecreated = true
		case err != nil:
			return err
		default:
			_, err := tapeFiles.Get(ctx, entry.ArchiveFileID, entry.CopyNb)
			if err == nil {
				return fmt.Errorf("%w: архивный файл %d, копия %d",
					ErrCopyAlreadyExists, entry.ArchiveFileID, entry.CopyNb)
			}
			if !errors.Is(err, repository.ErrNotFound) {
				return err
			}
		}

		tf := model.TapeFile{
			VID:          entry.VID,
			FSeq:         entry.FSeq,
			BlockID:      entry.BlockID,
			FileSize:     entry.SizeInBytes,
			CopyNb:       entry.CopyNb,
			CreationTime: entry.TapeFileCreationTime,
		}
		if err := tapeFiles.Insert(ctx, tf, entry.ArchiveFileID); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("%w: позиция %s/%d занята", ErrCopyAlreadyExists, tf.VID, tf.FSeq)
			}
			return err
		}
		if _, err := repository.NewFileRecycleLogRepository(tx, c.dialect).Delete(ctx, entry.ID); err != nil {
			return err
		}
		restored = entry
		return nil
	})
	if err != nil {
		return wrapInternal("RestoreFileInRecycleLog", err)
	}

	c.logger.Info("Копия восстановлена из журнала удалённых копий",
		slog.Uint64("archive_file_id", restored.ArchiveFileID),
		slog.String("vid", restored.VID),
		slog.Uint64("fseq", restored.FSeq),
		slog.Int("copy_nb", int(restored.CopyNb)),
		slog.Bool("archive_file_recreated", archiveFileRecreated),
	)
	return nil
}

// recreateArchiveFile заново создаёт удалённый архивный файл по записи журнала.
func (c *FileRecycleLogCatalogue) recreateArchiveFile(ctx context.Context, tx pgx.Tx, entry *model.FileRecycleLog,
	newDiskFileID string) error {
	storageClassID, err := repository.NewReferenceRepository(tx, c.dialect).GetStorageClassID(ctx, entry.StorageClassName)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNonExistentStorageClass, entry.StorageClassName)
		}
		return err
	}

	diskFileID := newDiskFileID
	if diskFileID == "" {
		diskFileID = entry.DiskFileIDWhenDeleted
	}
	f := &model.ArchiveFile{
		ArchiveFileID:      entry.ArchiveFileID,
		DiskInstance:       entry.DiskInstanceName,
		DiskFileID:         diskFileID,
		DiskFileOwnerUID:   entry.DiskFileUID,
		DiskFileGID:        entry.DiskFileGID,
		FileSize:           entry.SizeInBytes,
		Checksums:          entry.Checksums,
		StorageClass:       entry.StorageClassName,
		CollocationHint:    entry.CollocationHint,
		CreationTime:       entry.ArchiveFileCreationTime,
		ReconciliationTime: c.now(),
	}
	if _, err := repository.NewArchiveFileRepository(tx, c.dialect).Insert(ctx, f, storageClassID); err != nil {
		return err
	}
	return nil
}

// DeleteFilesFromRecycleLog удаляет все записи журнала для ленты.
// Вызывается только при reclaim в транзакции вызывающего.
func (c *FileRecycleLogCatalogue) DeleteFilesFromRecycleLog(ctx context.Context, tx repository.DBTX,
	vid string) (int64, error) {
	return repository.NewFileRecycleLogRepository(tx, c.dialect).DeleteByVID(ctx, vid)
}

// DeleteFileFromRecycleLog окончательно удаляет одну запись журнала.
func (c *FileRecycleLogCatalogue) DeleteFileFromRecycleLog(ctx context.Context, admin model.SecurityIdentity,
	criteria model.RecycleTapeFileSearchCriteria) (err error) {
	defer observe("DeleteFileFromRecycleLog", time.Now(), &err)

	var deleted *model.FileRecycleLog
	err = c.txRunner.RunInTx(ctx, func(tx pgx.Tx) error {
		entry, err := c.findSingle(ctx, tx, criteria)
		if err != nil {
			return err
		}
		if _, err := repository.NewFileRecycleLogRepository(tx, c.dialect).Delete(ctx, entry.ID); err != nil {
			return err
		}
		deleted = entry
		return nil
	})
	if err != nil {
		return wrapInternal("DeleteFileFromRecycleLog", err)
	}

	c.logger.Info("Запись журнала удалённых копий удалена",
		slog.String("admin", admin.String()),
		slog.Uint64("archive_file_id", deleted.ArchiveFileID),
		slog.String("vid", deleted.VID),
		slog.Uint64("fseq", deleted.FSeq),
	)
	return nil
}
