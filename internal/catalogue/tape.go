package catalogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/tape-catalogue/internal/domain/model"
	"github.com/bigkaa/goartstore/tape-catalogue/internal/repository"
)

// TapeCatalogue — жизненный цикл лент: создание, смена состояния,
// флаги full/dirty, отметки монтирования, reclaim и удаление.
type TapeCatalogue struct {
	deps
	recycleLog *FileRecycleLogCatalogue
}

// CreateTape регистрирует новую ленту с нулевыми счётчиками.
func (c *TapeCatalogue) CreateTape(ctx context.Context, admin model.SecurityIdentity,
	tape model.CreateTapeAttributes) (err error) {
	defer observe("CreateTape", time.Now(), &err)

	state, reason, err := validateCreateTape(&tape)
	if err != nil {
		return err
	}

	now := c.now()
	t := &model.Tape{
		VID:                tape.VID,
		MediaType:          tape.MediaType,
		Vendor:             tape.Vendor,
		LogicalLibraryName: tape.LogicalLibraryName,
		TapePoolName:       tape.TapePoolName,
		Full:               tape.Full,
		State:              state,
		StateReason:        reason,
		StateUpdateTime:    now,
		StateModifiedBy:    admin.String(),
		EncryptionKeyName:  tape.EncryptionKeyName,
		PurchaseOrder:      tape.PurchaseOrder,
		Comment:            tape.Comment,
		CreationLog:        model.NewEntryLog(admin, now),
	}

	err = c.txRunner.RunInTx(ctx, func(tx pgx.Tx) error {
		tapes := repository.NewTapeRepository(tx, c.dialect)
		refs := repository.NewReferenceRepository(tx, c.dialect)

		exists, err := tapes.Exists(ctx, t.VID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrTapeAlreadyExists, t.VID)
		}

		checks := []struct {
			exists func(context.Context, string) (bool, error)
			name   string
			err    error
		}{
			{refs.LogicalLibraryExists, t.LogicalLibraryName, ErrNonExistentLogicalLibrary},
			{refs.TapePoolExists, t.TapePoolName, ErrNonExistentTapePool},
			{refs.MediaTypeExists, t.MediaType, ErrNonExistentMediaType},
		}
		for _, check := range checks {
			ok, err := check.exists(ctx, check.name)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s", check.err, check.name)
			}
		}

		if err := tapes.Create(ctx, t); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("%w: %s", ErrTapeAlreadyExists, t.VID)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return wrapInternal("CreateTape", err)
	}

	c.logger.Info("Лента создана",
		slog.String("vid", t.VID),
		slog.String("media_type", t.MediaType),
		slog.String("logical_library", t.LogicalLibraryName),
		slog.String("tape_pool", t.TapePoolName),
		slog.String("state", string(t.State)),
		slog.String("admin", admin.String()),
	)
	return nil
}

// validateCreateTape проверяет атрибуты новой ленты в порядке:
// обязательные поля, VID, состояние, причина.
func validateCreateTape(tape *model.CreateTapeAttributes) (model.TapeState, *string, error) {
	required := []struct {
		name  string
		value string
	}{
		{"vid", tape.VID},
		{"mediaType", tape.MediaType},
		{"vendor", tape.Vendor},
		{"logicalLibraryName", tape.LogicalLibraryName},
		{"tapePoolName", tape.TapePoolName},
	}
	for _, r := range required {
		if r.value == "" {
			return "", nil, fmt.Errorf("%w: %s", ErrMissingValue, r.name)
		}
	}
	if strings.ToUpper(tape.VID) != tape.VID {
		return "", nil, fmt.Errorf("%w: %s должен быть в верхнем регистре", ErrInvalidVID, tape.VID)
	}

	state := tape.State
	if state == "" {
		state = model.TapeStateActive
	}
	reason, err := checkStateReason(state, tape.StateReason)
	if err != nil {
		return "", nil, err
	}
	return state, reason, nil
}

// checkStateReason проверяет состояние и причину. Для ACTIVE причина
// сбрасывается, для остальных состояний обязательна.
func checkStateReason(state model.TapeState, reason *string) (*string, error) {
	if !state.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrNonExistentTapeState, state)
	}
	if state == model.TapeStateActive {
		return nil, nil
	}
	if reason == nil || strings.TrimSpace(*reason) == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyReasonWhenStateNotActive, state)
	}
	cleaned := strings.TrimSpace(*reason)
	return &cleaned, nil
}

// ModifyTapeState меняет состояние ленты. Если задан prevState, изменение
// выполняется только при совпадении текущего состояния.
func (c *TapeCatalogue) ModifyTapeState(ctx context.Context, admin model.SecurityIdentity, vid string,
	newState model.TapeState, prevState *model.TapeState, reason *string) (err error) {
	defer observe("ModifyTapeState", time.Now(), &err)

	if vid == "" {
		return fmt.Errorf("%w: vid", ErrMissingValue)
	}
	if prevState != nil && !prevState.Valid() {
		return fmt.Errorf("%w: %s", ErrNonExistentTapeState, *prevState)
	}
	cleaned, err := checkStateReason(newState, reason)
	if err != nil {
		return err
	}

	ok, err := repository.NewTapeRepository(c.pool, c.dialect).
		UpdateState(ctx, vid, newState, prevState, cleaned, admin.String(), c.now())
	if err != nil {
		return wrapInternal("ModifyTapeState", err)
	}
	if !ok {
		if prevState != nil {
			return fmt.Errorf("%w: %s в состоянии %s", ErrNonExistentTape, vid, *prevState)
		}
		return fmt.Errorf("%w: %s", ErrNonExistentTape, vid)
	}

	attrs := []any{
		slog.String("vid", vid),
		slog.String("state", string(newState)),
		slog.String("admin", admin.String()),
	}
	if cleaned != nil {
		attrs = append(attrs, slog.String("reason", *cleaned))
	}
	c.logger.Info("Состояние ленты изменено", attrs...)
	return nil
}

// SetTapeFull устанавливает флаг full. Повторная установка того же значения допустима.
func (c *TapeCatalogue) SetTapeFull(ctx context.Context, admin model.SecurityIdentity, vid string,
	full bool) (err error) {
	defer observe("SetTapeFull", time.Now(), &err)

	ok, err := repository.NewTapeRepository(c.pool, c.dialect).SetFull(ctx, vid, full, c.entryLog(admin))
	if err != nil {
		return wrapInternal("SetTapeFull", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNonExistentTape, vid)
	}
	c.logger.Info("Флаг full изменён",
		slog.String("vid", vid),
		slog.Bool("full", full),
		slog.String("admin", admin.String()),
	)
	return nil
}

// SetTapeDirty устанавливает флаг dirty.
func (c *TapeCatalogue) SetTapeDirty(ctx context.Context, admin model.SecurityIdentity, vid string,
	dirty bool) (err error) {
	defer observe("SetTapeDirty", time.Now(), &err)

	ok, err := repository.NewTapeRepository(c.pool, c.dialect).SetDirty(ctx, vid, dirty, c.entryLog(admin))
	if err != nil {
		return wrapInternal("SetTapeDirty", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNonExistentTape, vid)
	}
	return nil
}

// NoSpaceLeftOnTape помечает ленту заполненной по сигналу привода.
// Отсутствие ленты здесь — внутренняя ошибка.
func (c *TapeCatalogue) NoSpaceLeftOnTape(ctx context.Context, vid string) (err error) {
	defer observe("NoSpaceLeftOnTape", time.Now(), &err)

	ok, err := repository.NewTapeRepository(c.pool, c.dialect).SetFull(ctx, vid, true, c.entryLog(c.system))
	if err != nil {
		return wrapInternal("NoSpaceLeftOnTape", err)
	}
	if !ok {
		return wrapInternal("NoSpaceLeftOnTape", fmt.Errorf("%w: %s", ErrTapeVanished, vid))
	}
	c.logger.Info("На ленте нет места, лента помечена как заполненная", slog.String("vid", vid))
	return nil
}

// TapeLabelled записывает отметку о разметке ленты.
func (c *TapeCatalogue) TapeLabelled(ctx context.Context, vid, drive string) (err error) {
	defer observe("TapeLabelled", time.Now(), &err)

	if drive == "" {
		return fmt.Errorf("%w: drive", ErrMissingValue)
	}
	ok, err := repository.NewTapeRepository(c.pool, c.dialect).SetLabelled(ctx, vid, drive, c.now())
	if err != nil {
		return wrapInternal("TapeLabelled", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNonExistentTape, vid)
	}
	return nil
}

// TapeMountedForArchive увеличивает счётчик монтирований для записи.
func (c *TapeCatalogue) TapeMountedForArchive(ctx context.Context, vid, drive string) (err error) {
	defer observe("TapeMountedForArchive", time.Now(), &err)
	return c.tapeMounted(ctx, vid, drive, model.TapeMountArchive)
}

// TapeMountedForRetrieve увеличивает счётчик монтирований для чтения.
func (c *TapeCatalogue) TapeMountedForRetrieve(ctx context.Context, vid, drive string) (err error) {
	defer observe("TapeMountedForRetrieve", time.Now(), &err)
	return c.tapeMounted(ctx, vid, drive, model.TapeMountRetrieve)
}

func (c *TapeCatalogue) tapeMounted(ctx context.Context, vid, drive string, mountType model.TapeMountType) error {
	if drive == "" {
		return fmt.Errorf("%w: drive", ErrMissingValue)
	}
	ok, err := repository.NewTapeRepository(c.pool, c.dialect).IncrementMountCount(ctx, vid, mountType, drive, c.now())
	if err != nil {
		return wrapInternal("TapeMounted", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNonExistentTape, vid)
	}
	return nil
}

// ReclaimTape возвращает заполненную ленту без действующих копий в работу:
// очищает журнал удалённых копий ленты и обнуляет счётчики.
func (c *TapeCatalogue) ReclaimTape(ctx context.Context, admin model.SecurityIdentity, vid string) (err error) {
	defer observe("ReclaimTape", time.Now(), &err)

	var purged int64
	err = c.txRunner.RunInTx(ctx, func(tx pgx.Tx) error {
		tapes := repository.NewTapeRepository(tx, c.dialect)

		if err := tapes.Lock(ctx, vid); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrNonExistentTape, vid)
			}
			return err
		}
		t, err := tapes.Get(ctx, vid)
		if err != nil {
			return err
		}

		if !t.State.Reclaimable() {
			return fmt.Errorf("%w: %s в состоянии %s", ErrTapeNotReclaimable, vid, t.State)
		}
		if !t.Full {
			return fmt.Errorf("%w: %s", ErrTapeNotFull, vid)
		}
		live, err := repository.NewTapeFileRepository(tx).CountByVID(ctx, vid)
		if err != nil {
			return err
		}
		if live > 0 {
			return fmt.Errorf("%w: %s, копий: %d", ErrTapeHasLiveFiles, vid, live)
		}

		if purged, err = c.recycleLog.DeleteFilesFromRecycleLog(ctx, tx, vid); err != nil {
			return err
		}
		if _, err := tapes.ResetForReclaim(ctx, vid, c.entryLog(admin)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return wrapInternal("ReclaimTape", err)
	}

	c.logger.Info("Лента возвращена в работу (reclaim)",
		slog.String("vid", vid),
		slog.Int64("recycle_log_purged", purged),
		slog.String("admin", admin.String()),
	)
	return nil
}

// DeleteTape удаляет пустую ленту: без копий и без записей в журнале удалённых копий.
func (c *TapeCatalogue) DeleteTape(ctx context.Context, vid string) (err error) {
	defer observe("DeleteTape", time.Now(), &err)

	tapes := repository.NewTapeRepository(c.pool, c.dialect)
	deleted, err := tapes.DeleteIfEmpty(ctx, vid)
	if err != nil {
		return wrapInternal("DeleteTape", err)
	}
	if !deleted {
		exists, err := tapes.Exists(ctx, vid)
		if err != nil {
			return wrapInternal("DeleteTape", err)
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrNonEmptyTape, vid)
		}
		return fmt.Errorf("%w: %s", ErrNonExistentTape, vid)
	}

	c.logger.Info("Лента удалена", slog.String("vid", vid))
	return nil
}

// GetTapes возвращает ленты по критериям, упорядоченные по VID.
func (c *TapeCatalogue) GetTapes(ctx context.Context, criteria model.TapeSearchCriteria) (_ []*model.Tape, err error) {
	defer observe("GetTapes", time.Now(), &err)

	if err := checkTapeSearchCriteria(criteria); err != nil {
		return nil, err
	}
	if criteria.TapePool != nil {
		exists, err := repository.NewReferenceRepository(c.pool, c.dialect).TapePoolExists(ctx, *criteria.TapePool)
		if err != nil {
			return nil, wrapInternal("GetTapes", err)
		}
		if !exists {
			return nil, fmt.Errorf("%w: %s", ErrNonExistentTapePool, *criteria.TapePool)
		}
	}

	tapes, err := repository.NewTapeRepository(c.pool, c.dialect).List(ctx, criteria)
	if err != nil {
		return nil, wrapInternal("GetTapes", err)
	}
	return tapes, nil
}

// checkTapeSearchCriteria отклоняет заданные, но пустые критерии.
func checkTapeSearchCriteria(c model.TapeSearchCriteria) error {
	strs := []struct {
		name  string
		value *string
	}{
		{"vid", c.VID},
		{"mediaType", c.MediaType},
		{"vendor", c.Vendor},
		{"logicalLibrary", c.LogicalLibrary},
		{"tapePool", c.TapePool},
		{"vo", c.VO},
		{"purchaseOrder", c.PurchaseOrder},
	}
	for _, s := range strs {
		if s.value != nil && *s.value == "" {
			return fmt.Errorf("%w: %s", ErrEmptySearchCriterion, s.name)
		}
	}
	if c.DiskFileIDs != nil && len(*c.DiskFileIDs) == 0 {
		return fmt.Errorf("%w: diskFileIds", ErrEmptySearchCriterion)
	}
	if c.CapacityInBytes != nil && *c.CapacityInBytes <= 0 {
		return fmt.Errorf("%w: capacityInBytes должен быть положительным", ErrInvalidValue)
	}
	if c.State != nil && !c.State.Valid() {
		return fmt.Errorf("%w: %s", ErrNonExistentTapeState, *c.State)
	}
	return nil
}

// GetTapesByVID возвращает ленты по списку VID. Если ignoreMissing=false,
// отсутствие любой из лент — внутренняя ошибка.
func (c *TapeCatalogue) GetTapesByVID(ctx context.Context, vids []string,
	ignoreMissing bool) (_ map[string]*model.Tape, err error) {
	defer observe("GetTapesByVID", time.Now(), &err)

	result := make(map[string]*model.Tape, len(vids))
	if len(vids) == 0 {
		return result, nil
	}

	tapes, err := repository.NewTapeRepository(c.pool, c.dialect).ListByVIDs(ctx, vids)
	if err != nil {
		return nil, wrapInternal("GetTapesByVID", err)
	}
	for _, t := range tapes {
		result[t.VID] = t
	}

	if !ignoreMissing {
		var missing []string
		for _, vid := range vids {
			if _, ok := result[vid]; !ok {
				missing = append(missing, vid)
			}
		}
		if len(missing) > 0 {
			return nil, wrapInternal("GetTapesByVID",
				fmt.Errorf("%w: нет %s", ErrNotAllTapesFound, strings.Join(missing, ", ")))
		}
	}
	return result, nil
}

// GetTapesForWriting возвращает ленты библиотеки, пригодные для записи:
// ACTIVE, не заполненные, размеченные, библиотека не отключена.
func (c *TapeCatalogue) GetTapesForWriting(ctx context.Context, logicalLibrary string) (_ []model.TapeForWriting, err error) {
	defer observe("GetTapesForWriting", time.Now(), &err)

	if logicalLibrary == "" {
		return nil, fmt.Errorf("%w: logicalLibrary", ErrMissingValue)
	}
	tapes, err := repository.NewTapeRepository(c.pool, c.dialect).ListForWriting(ctx, logicalLibrary)
	if err != nil {
		return nil, wrapInternal("GetTapesForWriting", err)
	}
	return tapes, nil
}

// ModifyTapeComment меняет комментарий ленты; nil удаляет комментарий.
func (c *TapeCatalogue) ModifyTapeComment(ctx context.Context, admin model.SecurityIdentity, vid string,
	comment *string) (err error) {
	defer observe("ModifyTapeComment", time.Now(), &err)
	return c.modifyOptional(ctx, admin, vid, repository.TapeFieldComment, comment)
}

// ModifyTapeVerificationStatus меняет статус проверки ленты.
func (c *TapeCatalogue) ModifyTapeVerificationStatus(ctx context.Context, admin model.SecurityIdentity, vid string,
	status *string) (err error) {
	defer observe("ModifyTapeVerificationStatus", time.Now(), &err)
	return c.modifyOptional(ctx, admin, vid, repository.TapeFieldVerificationStatus, status)
}

// ModifyTapeEncryptionKeyName меняет имя ключа шифрования ленты.
func (c *TapeCatalogue) ModifyTapeEncryptionKeyName(ctx context.Context, admin model.SecurityIdentity, vid string,
	keyName *string) (err error) {
	defer observe("ModifyTapeEncryptionKeyName", time.Now(), &err)
	return c.modifyOptional(ctx, admin, vid, repository.TapeFieldEncryptionKeyName, keyName)
}

func (c *TapeCatalogue) modifyOptional(ctx context.Context, admin model.SecurityIdentity, vid string,
	field repository.TapeOptionalField, value *string) error {
	if value != nil && strings.TrimSpace(*value) == "" {
		value = nil
	}
	ok, err := repository.NewTapeRepository(c.pool, c.dialect).UpdateOptional(ctx, vid, field, value, c.entryLog(admin))
	if err != nil {
		return wrapInternal("ModifyTape", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNonExistentTape, vid)
	}
	c.logger.Info("Лента изменена",
		slog.String("vid", vid),
		slog.String("field", string(field)),
		slog.String("admin", admin.String()),
	)
	return nil
}
