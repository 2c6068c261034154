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

// ArchiveFileCatalogue — архивные файлы: удаление, выборка, выдача идентификаторов.
type ArchiveFileCatalogue struct {
	deps
	recycleLog *FileRecycleLogCatalogue
	tapeFiles  *TapeFileCatalogue
	policies   *mountPolicyResolver
}

// DeleteArchiveFile удаляет архивный файл и все его копии, минуя журнал
// удалённых копий. Отсутствующий файл — не ошибка.
// Устаревший путь, основной — MoveArchiveFileToRecycleLog.
func (c *ArchiveFileCatalogue) DeleteArchiveFile(ctx context.Context, diskInstance string,
	archiveFileID uint64) (err error) {
	defer observe("DeleteArchiveFile", time.Now(), &err)

	var deleted *model.ArchiveFile
	err = c.txRunner.RunInTx(ctx, func(tx pgx.Tx) error {
		f, err := c.lockAndGet(ctx, tx, archiveFileID)
		if err != nil || f == nil {
			return err
		}
		if f.DiskInstance != diskInstance {
			return fmt.Errorf("%w: файл %d принадлежит %s, запрошено удаление из %s",
				ErrDiskInstanceMismatch, archiveFileID, f.DiskInstance, diskInstance)
		}
		if err := c.deleteLocked(ctx, tx, archiveFileID); err != nil {
			return err
		}
		deleted = f
		return nil
	})
	if err != nil {
		return wrapInternal("DeleteArchiveFile", err)
	}

	if deleted == nil {
		c.logger.Warn("Удаляемый архивный файл не найден",
			slog.Uint64("archive_file_id", archiveFileID),
			slog.String("disk_instance", diskInstance),
		)
		return nil
	}
	c.logger.Warn("Архивный файл удалён без переноса в журнал удалённых копий",
		slog.Uint64("archive_file_id", archiveFileID),
		slog.String("disk_instance", deleted.DiskInstance),
		slog.String("disk_file_id", deleted.DiskFileID),
		slog.Uint64("size", deleted.FileSize),
		slog.Int("tape_files", len(deleted.TapeFiles)),
	)
	return nil
}

// MoveArchiveFileToRecycleLog удаляет архивный файл по запросу дискового
// инстанса, перенося все его копии в журнал удалённых копий.
// Отсутствующий файл — не ошибка.
func (c *ArchiveFileCatalogue) MoveArchiveFileToRecycleLog(ctx context.Context,
	req model.DeleteArchiveRequest) (err error) {
	defer observe("MoveArchiveFileToRecycleLog", time.Now(), &err)

	if req.DiskInstance == "" {
		return fmt.Errorf("%w: diskInstance", ErrMissingValue)
	}
	if req.DiskFilePath == "" {
		return fmt.Errorf("%w: diskFilePath", ErrMissingValue)
	}

	var deleted *model.ArchiveFile
	err = c.txRunner.RunInTx(ctx, func(tx pgx.Tx) error {
		f, err := c.lockAndGet(ctx, tx, req.ArchiveFileID)
		if err != nil || f == nil {
			return err
		}
		if err := checkDeleteRequest(f, req); err != nil {
			return err
		}
		if err := c.recycleLog.CopyArchiveFileToFileRecycleLog(ctx, tx, f, req); err != nil {
			return err
		}
		if err := c.deleteLocked(ctx, tx, req.ArchiveFileID); err != nil {
			return err
		}
		deleted = f
		return nil
	})
	if err != nil {
		return wrapInternal("MoveArchiveFileToRecycleLog", err)
	}

	if deleted == nil {
		c.logger.Warn("Удаляемый архивный файл не найден",
			slog.Uint64("archive_file_id", req.ArchiveFileID),
			slog.String("disk_instance", req.DiskInstance),
		)
		return nil
	}
	c.logger.Info("Архивный файл перенесён в журнал удалённых копий",
		slog.Uint64("archive_file_id", req.ArchiveFileID),
		slog.String("disk_instance", req.DiskInstance),
		slog.String("disk_file_id", deleted.DiskFileID),
		slog.String("disk_file_path", req.DiskFilePath),
		slog.String("requester", req.Requester.Name),
		slog.Int("tape_files", len(deleted.TapeFiles)),
	)
	return nil
}

// checkDeleteRequest сверяет запрос удаления с каталогом.
func checkDeleteRequest(f *model.ArchiveFile, req model.DeleteArchiveRequest) error {
	if f.DiskInstance != req.DiskInstance {
		return fmt.Errorf("%w: файл %d принадлежит %s, запрошено удаление из %s",
			ErrDiskInstanceMismatch, f.ArchiveFileID, f.DiskInstance, req.DiskInstance)
	}
	if req.DiskFileID != "" && req.DiskFileID != f.DiskFileID {
		return fmt.Errorf("%w: diskFileId %s, в каталоге %s", ErrDeleteRequestMismatch, req.DiskFileID, f.DiskFileID)
	}
	if req.FileSize != nil && *req.FileSize != f.FileSize {
		return fmt.Errorf("%w: размер %d, в каталоге %d", ErrDeleteRequestMismatch, *req.FileSize, f.FileSize)
	}
	if len(req.Checksums) > 0 {
		if err := f.Checksums.Validate(req.Checksums); err != nil {
			return fmt.Errorf("%w: %v", ErrDeleteRequestMismatch, err)
		}
	}
	return nil
}

// lockAndGet блокирует архивный файл и возвращает его со всеми копиями.
// Отсутствующий файл — nil без ошибки.
func (c *ArchiveFileCatalogue) lockAndGet(ctx context.Context, tx pgx.Tx, archiveFileID uint64) (*model.ArchiveFile, error) {
	archiveFiles := repository.NewArchiveFileRepository(tx, c.dialect)
	if err := archiveFiles.Lock(ctx, archiveFileID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return archiveFiles.Get(ctx, archiveFileID)
}

// deleteLocked помечает ленты dirty, удаляет копии и сам архивный файл.
func (c *ArchiveFileCatalogue) deleteLocked(ctx context.Context, tx pgx.Tx, archiveFileID uint64) error {
	if _, err := repository.NewTapeRepository(tx, c.dialect).SetDirtyByArchiveFile(ctx, archiveFileID); err != nil {
		return err
	}
	if err := c.tapeFiles.DeleteTapeFiles(ctx, tx, archiveFileID); err != nil {
		return err
	}
	if _, err := repository.NewArchiveFileRepository(tx, c.dialect).Delete(ctx, archiveFileID); err != nil {
		return err
	}
	return nil
}

// GetArchiveFileByID возвращает архивный файл со всеми копиями.
func (c *ArchiveFileCatalogue) GetArchiveFileByID(ctx context.Context, archiveFileID uint64) (_ *model.ArchiveFile, err error) {
	defer observe("GetArchiveFileByID", time.Now(), &err)

	f, err := repository.NewArchiveFileRepository(c.pool, c.dialect).Get(ctx, archiveFileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrNonExistentArchiveFile, archiveFileID)
		}
		return nil, wrapInternal("GetArchiveFileByID", err)
	}
	return f, nil
}

// GetArchiveFilesItor открывает итератор по архивным файлам. Итератор держит
// собственное подключение из пула до вызова Close.
func (c *ArchiveFileCatalogue) GetArchiveFilesItor(ctx context.Context,
	criteria model.ArchiveFileSearchCriteria) (_ *ArchiveFileItor, err error) {
	defer observe("GetArchiveFilesItor", time.Now(), &err)

	if err := checkArchiveFileSearchCriteria(criteria); err != nil {
		return nil, err
	}
	if criteria.VID != nil {
		exists, err := repository.NewTapeRepository(c.pool, c.dialect).Exists(ctx, *criteria.VID)
		if err != nil {
			return nil, wrapInternal("GetArchiveFilesItor", err)
		}
		if !exists {
			return nil, fmt.Errorf("%w: %s", ErrNonExistentTape, *criteria.VID)
		}
	}

	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, wrapInternal("GetArchiveFilesItor", fmt.Errorf("ошибка получения подключения: %w", err))
	}
	rows, err := repository.NewArchiveFileRepository(conn, c.dialect).Search(ctx, criteria)
	if err != nil {
		conn.Release()
		return nil, wrapInternal("GetArchiveFilesItor", err)
	}
	return &ArchiveFileItor{rows: rows, release: conn.Release}, nil
}

// checkArchiveFileSearchCriteria проверяет критерии выборки архивных файлов.
func checkArchiveFileSearchCriteria(c model.ArchiveFileSearchCriteria) error {
	if c.DiskInstance != nil && *c.DiskInstance == "" {
		return fmt.Errorf("%w: diskInstance", ErrEmptySearchCriterion)
	}
	if c.VID != nil && *c.VID == "" {
		return fmt.Errorf("%w: vid", ErrEmptySearchCriterion)
	}
	if c.DiskFileIDs != nil {
		if len(*c.DiskFileIDs) == 0 {
			return fmt.Errorf("%w: diskFileIds", ErrEmptySearchCriterion)
		}
		if c.DiskInstance == nil {
			return fmt.Errorf("%w: diskFileIds требует diskInstance", ErrMissingValue)
		}
	}
	if c.FSeq != nil && c.VID == nil {
		return fmt.Errorf("%w: fSeq требует vid", ErrMissingValue)
	}
	return nil
}

// UpdateDiskFileID меняет идентификатор дискового файла (после переименования
// или миграции на дисковом инстансе).
func (c *ArchiveFileCatalogue) UpdateDiskFileID(ctx context.Context, archiveFileID uint64, diskInstance,
	diskFileID string) (err error) {
	defer observe("UpdateDiskFileID", time.Now(), &err)

	if diskInstance == "" {
		return fmt.Errorf("%w: diskInstance", ErrMissingValue)
	}
	if diskFileID == "" {
		return fmt.Errorf("%w: diskFileId", ErrMissingValue)
	}
	ok, err := repository.NewArchiveFileRepository(c.pool, c.dialect).
		UpdateDiskFileID(ctx, archiveFileID, diskInstance, diskFileID)
	if err != nil {
		return wrapInternal("UpdateDiskFileID", err)
	}
	if !ok {
		return fmt.Errorf("%w: %d на %s", ErrNonExistentArchiveFile, archiveFileID, diskInstance)
	}
	c.logger.Info("Идентификатор дискового файла изменён",
		slog.Uint64("archive_file_id", archiveFileID),
		slog.String("disk_instance", diskInstance),
		slog.String("disk_file_id", diskFileID),
	)
	return nil
}

// CheckAndGetNextArchiveFileID выдаёт идентификатор для нового архивного файла.
// Класс хранения должен существовать и иметь маршрут архивации для каждой копии,
// у запрашивающего должна быть политика монтирования.
func (c *ArchiveFileCatalogue) CheckAndGetNextArchiveFileID(ctx context.Context, diskInstance, storageClass string,
	requester model.RequesterIdentity) (_ uint64, err error) {
	defer observe("CheckAndGetNextArchiveFileID", time.Now(), &err)

	if diskInstance == "" {
		return 0, fmt.Errorf("%w: diskInstance", ErrMissingValue)
	}
	if storageClass == "" {
		return 0, fmt.Errorf("%w: storageClass", ErrMissingValue)
	}

	routing, err := repository.NewReferenceRepository(c.pool, c.dialect).GetStorageClassRouting(ctx, storageClass)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, fmt.Errorf("%w: %s", ErrNonExistentStorageClass, storageClass)
		}
		return 0, wrapInternal("CheckAndGetNextArchiveFileID", err)
	}
	if err := checkRouting(storageClass, routing); err != nil {
		return 0, err
	}
	if _, err := c.policies.forRequester(ctx, c.pool, diskInstance, requester); err != nil {
		return 0, wrapInternal("CheckAndGetNextArchiveFileID", err)
	}

	id, err := c.dialect.NextID(ctx, c.pool, repository.ArchiveFileIDSequence)
	if err != nil {
		return 0, wrapInternal("CheckAndGetNextArchiveFileID", err)
	}
	return id, nil
}

// checkRouting требует по маршруту архивации на каждую копию класса хранения.
func checkRouting(storageClass string, routing *repository.StorageClassRouting) error {
	if routing.NbRoutes == 0 {
		return fmt.Errorf("%w: %s", ErrNoArchiveRoutes, storageClass)
	}
	if routing.NbRoutes != int(routing.NbCopies) {
		return fmt.Errorf("%w: класс %s, копий %d, маршрутов %d",
			ErrArchiveRoutesIncomplete, storageClass, routing.NbCopies, routing.NbRoutes)
	}
	return nil
}
