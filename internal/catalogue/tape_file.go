package catalogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/tape-catalogue/internal/domain/model"
	"github.com/bigkaa/goartstore/tape-catalogue/internal/repository"
)

// TapeFileCatalogue — копии архивных файлов на лентах: запись пачек,
// замена копий при перепаковке, подготовка чтения.
type TapeFileCatalogue struct {
	deps
	recycleLog *FileRecycleLogCatalogue
	policies   *mountPolicyResolver
}

// InsertTapeFile вставляет копию в транзакции вызывающего. Прежняя копия с тем же
// номером в другой позиции переносится в журнал с причиной "repack" и удаляется.
func (c *TapeFileCatalogue) InsertTapeFile(ctx context.Context, tx repository.DBTX, tf model.TapeFile,
	archiveFileID uint64) error {
	old, err := c.recycleLog.InsertOldCopiesOfFilesIfAnyOnFileRecycleLog(ctx, tx, tf, archiveFileID)
	if err != nil {
		return err
	}

	tapeFiles := repository.NewTapeFileRepository(tx)
	if err := tapeFiles.Insert(ctx, tf, archiveFileID); err != nil {
		return err
	}
	for _, o := range old {
		if _, err := tapeFiles.Delete(ctx, o.VID, o.FSeq); err != nil {
			return err
		}
		c.logger.Info("Копия заменена новой",
			slog.Uint64("archive_file_id", archiveFileID),
			slog.Int("copy_nb", int(o.CopyNb)),
			slog.String("old_vid", o.VID),
			slog.Uint64("old_fseq", o.FSeq),
			slog.String("vid", tf.VID),
			slog.Uint64("fseq", tf.FSeq),
		)
	}
	return nil
}

// DeleteTapeFiles удаляет все копии архивного файла в транзакции вызывающего.
func (c *TapeFileCatalogue) DeleteTapeFiles(ctx context.Context, tx repository.DBTX, archiveFileID uint64) error {
	_, err := repository.NewTapeFileRepository(tx).DeleteByArchiveFile(ctx, archiveFileID)
	return err
}

// DeleteTapeFileCopy переносит одну копию в журнал удалённых копий.
// Последнюю копию файла удалить нельзя.
func (c *TapeFileCatalogue) DeleteTapeFileCopy(ctx context.Context, archiveFileID uint64, copyNb uint8,
	reason string) (err error) {
	defer observe("DeleteTapeFileCopy", time.Now(), &err)

	if reason == "" {
		return fmt.Errorf("%w: reason", ErrMissingValue)
	}

	var removed *model.TapeFile
	err = c.txRunner.RunInTx(ctx, func(tx pgx.Tx) error {
		if err := repository.NewArchiveFileRepository(tx, c.dialect).Lock(ctx, archiveFileID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: %d", ErrNonExistentArchiveFile, archiveFileID)
			}
			return err
		}

		tapeFiles := repository.NewTapeFileRepository(tx)
		tf, err := tapeFiles.Get(ctx, archiveFileID, copyNb)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: архивный файл %d, копия %d", ErrNonExistentTapeFile, archiveFileID, copyNb)
			}
			return err
		}
		n, err := tapeFiles.CountByArchiveFile(ctx, archiveFileID)
		if err != nil {
			return err
		}
		if n <= 1 {
			return fmt.Errorf("%w: архивный файл %d", ErrLastCopy, archiveFileID)
		}

		entry := repository.RecycleEntry{ArchiveFileID: archiveFileID, TapeFile: *tf, Reason: reason}
		if err := c.recycleLog.insert(ctx, tx, entry, recycleLabelCopyDelete); err != nil {
			return err
		}
		if _, err := tapeFiles.Delete(ctx, tf.VID, tf.FSeq); err != nil {
			return err
		}
		if _, err := repository.NewTapeRepository(tx, c.dialect).SetDirty(ctx, tf.VID, true, c.entryLog(c.system)); err != nil {
			return err
		}
		removed = tf
		return nil
	})
	if err != nil {
		return wrapInternal("DeleteTapeFileCopy", err)
	}

	c.logger.Info("Копия перенесена в журнал удалённых копий",
		slog.Uint64("archive_file_id", archiveFileID),
		slog.Int("copy_nb", int(copyNb)),
		slog.String("vid", removed.VID),
		slog.Uint64("fseq", removed.FSeq),
		slog.String("reason", reason),
	)
	return nil
}

// FilesWrittenToTape фиксирует пачку файлов, записанных на одну ленту:
// обновляет счётчики ленты, создаёт архивные файлы и вставляет копии.
// Номера fSeq должны продолжать последовательность ленты без пропусков.
func (c *TapeFileCatalogue) FilesWrittenToTape(ctx context.Context, events []model.TapeFileWritten) (err error) {
	defer observe("FilesWrittenToTape", time.Now(), &err)

	if len(events) == 0 {
		return nil
	}
	batch, err := sortWrittenBatch(events)
	if err != nil {
		return wrapInternal("FilesWrittenToTape", err)
	}
	vid := batch[0].VID
	last := batch[len(batch)-1]

	err = c.txRunner.RunInTx(ctx, func(tx pgx.Tx) error {
		tapes := repository.NewTapeRepository(tx, c.dialect)
		if err := tapes.Lock(ctx, vid); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrTapeVanished, vid)
			}
			return err
		}
		t, err := tapes.Get(ctx, vid)
		if err != nil {
			return err
		}

		expected := uint64(t.LastFSeq) + 1
		summary := repository.WrittenFilesSummary{
			LastFSeq: last.FSeq,
			Drive:    last.TapeDrive,
			Time:     c.now(),
		}
		for _, ev := range batch {
			if ev.FSeq != expected {
				return fmt.Errorf("%w: лента %s, ожидался %d, получен %d", ErrFSeqMismatch, vid, expected, ev.FSeq)
			}
			expected++
			summary.DataBytes += ev.Size
			summary.MasterBytes += ev.Size
			summary.NbFiles++
		}
		if err := tapes.AddWrittenFiles(ctx, vid, summary); err != nil {
			return err
		}

		storageClasses := make(map[string]uint64)
		for _, ev := range batch {
			if err := c.insertWrittenFile(ctx, tx, ev, storageClasses, summary.Time); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return wrapInternal("FilesWrittenToTape", err)
	}

	c.logger.Info("Пачка файлов записана на ленту",
		slog.String("vid", vid),
		slog.Int("files", len(batch)),
		slog.Uint64("last_fseq", last.FSeq),
		slog.String("drive", last.TapeDrive),
	)
	return nil
}

// sortWrittenBatch проверяет, что пачка относится к одной ленте и не содержит
// повторов архивных файлов, и упорядочивает её по fSeq.
func sortWrittenBatch(events []model.TapeFileWritten) ([]model.TapeFileWritten, error) {
	batch := make([]model.TapeFileWritten, len(events))
	copy(batch, events)
	sort.Slice(batch, func(i, j int) bool { return batch[i].FSeq < batch[j].FSeq })

	vid := batch[0].VID
	seen := make(map[uint64]struct{}, len(batch))
	for _, ev := range batch {
		if ev.VID != vid {
			return nil, fmt.Errorf("%w: %s и %s", ErrMultipleVIDsInBatch, vid, ev.VID)
		}
		if _, dup := seen[ev.ArchiveFileID]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateArchiveFile, ev.ArchiveFileID)
		}
		seen[ev.ArchiveFileID] = struct{}{}
	}
	return batch, nil
}

// insertWrittenFile создаёт архивный файл (если его ещё нет) и вставляет копию.
// Существующий архивный файл должен совпадать по размеру и контрольным суммам.
func (c *TapeFileCatalogue) insertWrittenFile(ctx context.Context, tx pgx.Tx, ev model.TapeFileWritten,
	storageClasses map[string]uint64, now time.Time) error {
	storageClassID, ok := storageClasses[ev.StorageClassName]
	if !ok {
		id, err := repository.NewReferenceRepository(tx, c.dialect).GetStorageClassID(ctx, ev.StorageClassName)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrNonExistentStorageClass, ev.StorageClassName)
			}
			return err
		}
		storageClasses[ev.StorageClassName] = id
		storageClassID = id
	}

	archiveFiles := repository.NewArchiveFileRepository(tx, c.dialect)
	f := &model.ArchiveFile{
		ArchiveFileID:      ev.ArchiveFileID,
		DiskInstance:       ev.DiskInstance,
		DiskFileID:         ev.DiskFileID,
		DiskFileOwnerUID:   ev.DiskFileOwnerUID,
		DiskFileGID:        ev.DiskFileGID,
		FileSize:           ev.Size,
		Checksums:          ev.Checksums,
		StorageClass:       ev.StorageClassName,
		CreationTime:       now,
		ReconciliationTime: now,
	}
	inserted, err := archiveFiles.Insert(ctx, f, storageClassID)
	if err != nil {
		return err
	}
	if !inserted {
		existing, err := archiveFiles.Get(ctx, ev.ArchiveFileID)
		if err != nil {
			return err
		}
		if existing.FileSize != ev.Size {
			return fmt.Errorf("%w: архивный файл %d, размер %d, в каталоге %d",
				ErrArchiveFileMismatch, ev.ArchiveFileID, ev.Size, existing.FileSize)
		}
		if err := existing.Checksums.Validate(ev.Checksums); err != nil {
			return fmt.Errorf("%w: архивный файл %d: %v", ErrArchiveFileMismatch, ev.ArchiveFileID, err)
		}
	}

	tf := model.TapeFile{
		VID:          ev.VID,
		FSeq:         ev.FSeq,
		BlockID:      ev.BlockID,
		FileSize:     ev.Size,
		CopyNb:       ev.CopyNb,
		CreationTime: now,
	}
	return c.InsertTapeFile(ctx, tx, tf, ev.ArchiveFileID)
}

// PrepareToRetrieveFile проверяет, что файл можно прочитать, и выбирает
// политику монтирования. Читаются только копии на лентах ACTIVE и DISABLED.
func (c *TapeFileCatalogue) PrepareToRetrieveFile(ctx context.Context, diskInstance string, archiveFileID uint64,
	requester model.RequesterIdentity, activity, mountPolicyName *string) (_ *model.RetrieveFileQueueCriteria, err error) {
	defer observe("PrepareToRetrieveFile", time.Now(), &err)

	if diskInstance == "" {
		return nil, fmt.Errorf("%w: diskInstance", ErrMissingValue)
	}
	if requester.Name == "" {
		return nil, fmt.Errorf("%w: requester", ErrMissingValue)
	}

	f, err := repository.NewArchiveFileRepository(c.pool, c.dialect).
		GetWithTapeStates(ctx, archiveFileID, model.RetrievableTapeStates)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrNonExistentArchiveFile, archiveFileID)
		}
		return nil, wrapInternal("PrepareToRetrieveFile", err)
	}
	if f.DiskInstance != diskInstance {
		return nil, fmt.Errorf("%w: файл %d принадлежит %s, запрошен из %s",
			ErrDiskInstanceMismatch, archiveFileID, f.DiskInstance, diskInstance)
	}
	if len(f.TapeFiles) == 0 {
		return nil, c.unavailable(ctx, archiveFileID)
	}

	mp, matched, err := c.policies.forRetrieve(ctx, c.pool, diskInstance, requester, activity, mountPolicyName)
	if err != nil {
		return nil, wrapInternal("PrepareToRetrieveFile", err)
	}

	return &model.RetrieveFileQueueCriteria{
		ArchiveFile: *f,
		MountPolicy: *mp,
		Activity:    matched,
		PreparedAt:  c.now(),
	}, nil
}

// unavailable формирует ошибку для файла без читаемых копий. Временная
// недоступность (перепаковка, ожидание смены состояния) пишется в лог
// как предупреждение, постоянная — как ошибка.
func (c *TapeFileCatalogue) unavailable(ctx context.Context, archiveFileID uint64) error {
	states, err := repository.NewTapeFileRepository(c.pool).ListTapeStates(ctx, archiveFileID)
	if err != nil {
		return wrapInternal("PrepareToRetrieveFile", err)
	}

	if len(states) == 0 {
		c.logger.Error("Файл постоянно недоступен: нет копий на лентах",
			slog.Uint64("archive_file_id", archiveFileID),
		)
		return fmt.Errorf("%w: у файла %d нет копий на лентах", ErrFileUnavailable, archiveFileID)
	}

	for _, s := range states {
		if s.State.Transient() {
			c.logger.Warn("Файл временно недоступен",
				slog.Uint64("archive_file_id", archiveFileID),
				slog.String("vid", s.VID),
				slog.String("state", string(s.State)),
			)
			return fmt.Errorf("%w: файл %d временно недоступен, лента %s в состоянии %s",
				ErrFileUnavailable, archiveFileID, s.VID, s.State)
		}
	}

	s := states[0]
	c.logger.Error("Файл постоянно недоступен",
		slog.Uint64("archive_file_id", archiveFileID),
		slog.String("vid", s.VID),
		slog.String("state", string(s.State)),
	)
	return fmt.Errorf("%w: файл %d, лента %s в состоянии %s", ErrFileUnavailable, archiveFileID, s.VID, s.State)
}
