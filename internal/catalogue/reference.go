package catalogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/bigkaa/goartstore/tape-catalogue/internal/domain/model"
	"github.com/bigkaa/goartstore/tape-catalogue/internal/repository"
)

// ReferenceCatalogue — справочники каталога и политики монтирования.
type ReferenceCatalogue struct {
	deps
	policies *mountPolicyResolver
}

// mapCreateError переводит ошибки ограничений при создании записи
// в пользовательские: дубликат и отсутствующая связанная сущность.
func mapCreateError(op, name string, err error, missing error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	case missing != nil && errors.Is(err, repository.ErrForeignKey):
		return fmt.Errorf("%w: %v", missing, err)
	default:
		return wrapInternal(op, err)
	}
}

func requireNonEmpty(fields ...[2]string) error {
	for _, f := range fields {
		if f[1] == "" {
			return fmt.Errorf("%w: %s", ErrMissingValue, f[0])
		}
	}
	return nil
}

func (c *ReferenceCatalogue) logCreated(what, name string, admin model.SecurityIdentity) {
	c.logger.Info("Создана запись справочника",
		slog.String("kind", what),
		slog.String("name", name),
		slog.String("admin", admin.String()),
	)
}

// CreateVirtualOrganization создаёт виртуальную организацию.
func (c *ReferenceCatalogue) CreateVirtualOrganization(ctx context.Context, admin model.SecurityIdentity,
	vo model.VirtualOrganization) (err error) {
	defer observe("CreateVirtualOrganization", time.Now(), &err)

	if err := requireNonEmpty([2]string{"name", vo.Name}); err != nil {
		return err
	}
	vo.CreationLog = c.entryLog(admin)
	err = repository.NewReferenceRepository(c.pool, c.dialect).CreateVirtualOrganization(ctx, &vo)
	if err = mapCreateError("CreateVirtualOrganization", vo.Name, err, nil); err != nil {
		return err
	}
	c.logCreated("virtual_organization", vo.Name, admin)
	return nil
}

// GetVirtualOrganizations возвращает все виртуальные организации.
func (c *ReferenceCatalogue) GetVirtualOrganizations(ctx context.Context) (_ []*model.VirtualOrganization, err error) {
	defer observe("GetVirtualOrganizations", time.Now(), &err)

	vos, err := repository.NewReferenceRepository(c.pool, c.dialect).ListVirtualOrganizations(ctx)
	return vos, wrapInternal("GetVirtualOrganizations", err)
}

// CreateMediaType создаёт тип носителя. Ёмкость ленты определяется типом носителя.
func (c *ReferenceCatalogue) CreateMediaType(ctx context.Context, admin model.SecurityIdentity,
	mt model.MediaType) (err error) {
	defer observe("CreateMediaType", time.Now(), &err)

	if err := requireNonEmpty([2]string{"name", mt.Name}, [2]string{"cartridge", mt.Cartridge}); err != nil {
		return err
	}
	if mt.CapacityInBytes == 0 {
		return fmt.Errorf("%w: capacityInBytes должен быть положительным", ErrInvalidValue)
	}
	if mt.MinLPos != nil && mt.MaxLPos != nil && *mt.MinLPos > *mt.MaxLPos {
		return fmt.Errorf("%w: minLPos больше maxLPos", ErrInvalidValue)
	}
	mt.CreationLog = c.entryLog(admin)
	err = repository.NewReferenceRepository(c.pool, c.dialect).CreateMediaType(ctx, &mt)
	if err = mapCreateError("CreateMediaType", mt.Name, err, nil); err != nil {
		return err
	}
	c.logCreated("media_type", mt.Name, admin)
	return nil
}

// GetMediaTypes возвращает все типы носителей.
func (c *ReferenceCatalogue) GetMediaTypes(ctx context.Context) (_ []*model.MediaType, err error) {
	defer observe("GetMediaTypes", time.Now(), &err)

	mts, err := repository.NewReferenceRepository(c.pool, c.dialect).ListMediaTypes(ctx)
	return mts, wrapInternal("GetMediaTypes", err)
}

// CreateLogicalLibrary создаёт логическую библиотеку.
func (c *ReferenceCatalogue) CreateLogicalLibrary(ctx context.Context, admin model.SecurityIdentity,
	ll model.LogicalLibrary) (err error) {
	defer observe("CreateLogicalLibrary", time.Now(), &err)

	if err := requireNonEmpty([2]string{"name", ll.Name}); err != nil {
		return err
	}
	if !ll.IsDisabled {
		ll.DisabledReason = nil
	}
	ll.CreationLog = c.entryLog(admin)
	err = repository.NewReferenceRepository(c.pool, c.dialect).CreateLogicalLibrary(ctx, &ll)
	if err = mapCreateError("CreateLogicalLibrary", ll.Name, err, nil); err != nil {
		return err
	}
	c.logCreated("logical_library", ll.Name, admin)
	return nil
}

// GetLogicalLibraries возвращает все логические библиотеки.
func (c *ReferenceCatalogue) GetLogicalLibraries(ctx context.Context) (_ []*model.LogicalLibrary, err error) {
	defer observe("GetLogicalLibraries", time.Now(), &err)

	lls, err := repository.NewReferenceRepository(c.pool, c.dialect).ListLogicalLibraries(ctx)
	return lls, wrapInternal("GetLogicalLibraries", err)
}

// SetLogicalLibraryDisabled включает или отключает логическую библиотеку.
// Ленты отключённой библиотеки не выдаются для записи.
func (c *ReferenceCatalogue) SetLogicalLibraryDisabled(ctx context.Context, admin model.SecurityIdentity,
	name string, disabled bool, reason *string) (err error) {
	defer observe("SetLogicalLibraryDisabled", time.Now(), &err)

	if !disabled {
		reason = nil
	}
	ok, err := repository.NewReferenceRepository(c.pool, c.dialect).
		SetLogicalLibraryDisabled(ctx, name, disabled, reason, c.entryLog(admin))
	if err != nil {
		return wrapInternal("SetLogicalLibraryDisabled", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNonExistentLogicalLibrary, name)
	}
	c.logger.Info("Логическая библиотека изменена",
		slog.String("name", name),
		slog.Bool("disabled", disabled),
		slog.String("admin", admin.String()),
	)
	return nil
}

// CreateTapePool создаёт пул лент виртуальной организации.
func (c *ReferenceCatalogue) CreateTapePool(ctx context.Context, admin model.SecurityIdentity,
	tp model.TapePool) (err error) {
	defer observe("CreateTapePool", time.Now(), &err)

	if err := requireNonEmpty([2]string{"name", tp.Name}, [2]string{"vo", tp.VO}); err != nil {
		return err
	}
	tp.CreationLog = c.entryLog(admin)
	err = repository.NewReferenceRepository(c.pool, c.dialect).CreateTapePool(ctx, &tp)
	if err = mapCreateError("CreateTapePool", tp.Name, err, ErrNonExistentVO); err != nil {
		return err
	}
	c.logCreated("tape_pool", tp.Name, admin)
	return nil
}

// GetTapePools возвращает пулы лент со счётчиками, агрегированными по лентам.
func (c *ReferenceCatalogue) GetTapePools(ctx context.Context) (_ []*model.TapePool, err error) {
	defer observe("GetTapePools", time.Now(), &err)

	pools, err := repository.NewReferenceRepository(c.pool, c.dialect).ListTapePools(ctx, nil)
	return pools, wrapInternal("GetTapePools", err)
}

// GetTapePool возвращает пул лент по имени.
func (c *ReferenceCatalogue) GetTapePool(ctx context.Context, name string) (_ *model.TapePool, err error) {
	defer observe("GetTapePool", time.Now(), &err)

	pools, err := repository.NewReferenceRepository(c.pool, c.dialect).ListTapePools(ctx, &name)
	if err != nil {
		return nil, wrapInternal("GetTapePool", err)
	}
	if len(pools) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNonExistentTapePool, name)
	}
	return pools[0], nil
}

// CreateStorageClass создаёт класс хранения с идентификатором из последовательности.
func (c *ReferenceCatalogue) CreateStorageClass(ctx context.Context, admin model.SecurityIdentity,
	sc model.StorageClass) (_ *model.StorageClass, err error) {
	defer observe("CreateStorageClass", time.Now(), &err)

	if err := requireNonEmpty([2]string{"name", sc.Name}, [2]string{"vo", sc.VO}); err != nil {
		return nil, err
	}
	if sc.NbCopies == 0 {
		return nil, fmt.Errorf("%w: nbCopies должен быть не меньше 1", ErrInvalidValue)
	}
	sc.CreationLog = c.entryLog(admin)
	err = repository.NewReferenceRepository(c.pool, c.dialect).CreateStorageClass(ctx, &sc)
	if err = mapCreateError("CreateStorageClass", sc.Name, err, ErrNonExistentVO); err != nil {
		return nil, err
	}
	c.logCreated("storage_class", sc.Name, admin)
	return &sc, nil
}

// GetStorageClasses возвращает все классы хранения.
func (c *ReferenceCatalogue) GetStorageClasses(ctx context.Context) (_ []*model.StorageClass, err error) {
	defer observe("GetStorageClasses", time.Now(), &err)

	scs, err := repository.NewReferenceRepository(c.pool, c.dialect).ListStorageClasses(ctx)
	return scs, wrapInternal("GetStorageClasses", err)
}

// CreateArchiveRoute направляет копию CopyNb файлов класса хранения в пул лент.
// Номер копии — от 1 до числа копий класса.
func (c *ReferenceCatalogue) CreateArchiveRoute(ctx context.Context, admin model.SecurityIdentity,
	route model.ArchiveRoute) (err error) {
	defer observe("CreateArchiveRoute", time.Now(), &err)

	if err := requireNonEmpty(
		[2]string{"storageClass", route.StorageClass},
		[2]string{"tapePool", route.TapePool},
	); err != nil {
		return err
	}
	name := fmt.Sprintf("%s/%d", route.StorageClass, route.CopyNb)

	repo := repository.NewReferenceRepository(c.pool, c.dialect)
	routing, err := repo.GetStorageClassRouting(ctx, route.StorageClass)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNonExistentStorageClass, route.StorageClass)
		}
		return wrapInternal("CreateArchiveRoute", err)
	}
	if route.CopyNb == 0 || route.CopyNb > routing.NbCopies {
		return fmt.Errorf("%w: copyNb %d, у класса %s копий %d",
			ErrInvalidValue, route.CopyNb, route.StorageClass, routing.NbCopies)
	}
	ok, err := repo.TapePoolExists(ctx, route.TapePool)
	if err != nil {
		return wrapInternal("CreateArchiveRoute", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNonExistentTapePool, route.TapePool)
	}

	route.CreationLog = c.entryLog(admin)
	err = repo.CreateArchiveRoute(ctx, &route, routing.ID)
	if err = mapCreateError("CreateArchiveRoute", name, err, ErrNonExistentTapePool); err != nil {
		return err
	}
	c.logCreated("archive_route", name+" -> "+route.TapePool, admin)
	return nil
}

// GetArchiveRoutes возвращает все маршруты архивации.
func (c *ReferenceCatalogue) GetArchiveRoutes(ctx context.Context) (_ []*model.ArchiveRoute, err error) {
	defer observe("GetArchiveRoutes", time.Now(), &err)

	routes, err := repository.NewReferenceRepository(c.pool, c.dialect).ListArchiveRoutes(ctx)
	return routes, wrapInternal("GetArchiveRoutes", err)
}

// DeleteArchiveRoute удаляет маршрут архивации копии класса хранения.
func (c *ReferenceCatalogue) DeleteArchiveRoute(ctx context.Context, admin model.SecurityIdentity,
	storageClass string, copyNb uint8) (err error) {
	defer observe("DeleteArchiveRoute", time.Now(), &err)

	ok, err := repository.NewReferenceRepository(c.pool, c.dialect).DeleteArchiveRoute(ctx, storageClass, copyNb)
	if err != nil {
		return wrapInternal("DeleteArchiveRoute", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s/%d", ErrNonExistentArchiveRoute, storageClass, copyNb)
	}
	c.logger.Info("Маршрут архивации удалён",
		slog.String("storage_class", storageClass),
		slog.Int("copy_nb", int(copyNb)),
		slog.String("admin", admin.String()),
	)
	return nil
}

// CreateMountPolicy создаёт политику монтирования.
func (c *ReferenceCatalogue) CreateMountPolicy(ctx context.Context, admin model.SecurityIdentity,
	mp model.MountPolicy) (err error) {
	defer observe("CreateMountPolicy", time.Now(), &err)

	if err := requireNonEmpty([2]string{"name", mp.Name}); err != nil {
		return err
	}
	mp.CreationLog = c.entryLog(admin)
	err = repository.NewMountPolicyRepository(c.pool).Create(ctx, &mp)
	if err = mapCreateError("CreateMountPolicy", mp.Name, err, nil); err != nil {
		return err
	}
	c.logCreated("mount_policy", mp.Name, admin)
	return nil
}

// GetMountPolicies возвращает все политики монтирования.
func (c *ReferenceCatalogue) GetMountPolicies(ctx context.Context) (_ []*model.MountPolicy, err error) {
	defer observe("GetMountPolicies", time.Now(), &err)

	mps, err := repository.NewMountPolicyRepository(c.pool).List(ctx)
	return mps, wrapInternal("GetMountPolicies", err)
}

// CreateRequesterMountRule назначает политику монтирования пользователю дискового инстанса.
func (c *ReferenceCatalogue) CreateRequesterMountRule(ctx context.Context, admin model.SecurityIdentity,
	rule model.RequesterMountRule) (err error) {
	defer observe("CreateRequesterMountRule", time.Now(), &err)

	if err := requireNonEmpty(
		[2]string{"diskInstance", rule.DiskInstance},
		[2]string{"requesterName", rule.Name},
		[2]string{"mountPolicy", rule.MountPolicy},
	); err != nil {
		return err
	}
	rule.CreationLog = c.entryLog(admin)
	err = repository.NewMountPolicyRepository(c.pool).CreateRequesterRule(ctx, &rule)
	name := rule.DiskInstance + ":" + rule.Name
	if err = mapCreateError("CreateRequesterMountRule", name, err, ErrNonExistentMountPolicy); err != nil {
		return err
	}
	c.policies.invalidate()
	c.logCreated("requester_mount_rule", name, admin)
	return nil
}

// CreateRequesterGroupMountRule назначает политику монтирования группе.
func (c *ReferenceCatalogue) CreateRequesterGroupMountRule(ctx context.Context, admin model.SecurityIdentity,
	rule model.RequesterGroupMountRule) (err error) {
	defer observe("CreateRequesterGroupMountRule", time.Now(), &err)

	if err := requireNonEmpty(
		[2]string{"diskInstance", rule.DiskInstance},
		[2]string{"requesterGroup", rule.Group},
		[2]string{"mountPolicy", rule.MountPolicy},
	); err != nil {
		return err
	}
	rule.CreationLog = c.entryLog(admin)
	err = repository.NewMountPolicyRepository(c.pool).CreateRequesterGroupRule(ctx, &rule)
	name := rule.DiskInstance + ":" + rule.Group
	if err = mapCreateError("CreateRequesterGroupMountRule", name, err, ErrNonExistentMountPolicy); err != nil {
		return err
	}
	c.policies.invalidate()
	c.logCreated("requester_group_mount_rule", name, admin)
	return nil
}

// CreateRequesterActivityMountRule назначает политику монтирования пользователю
// для активностей, соответствующих регулярному выражению.
func (c *ReferenceCatalogue) CreateRequesterActivityMountRule(ctx context.Context, admin model.SecurityIdentity,
	rule model.RequesterActivityMountRule) (err error) {
	defer observe("CreateRequesterActivityMountRule", time.Now(), &err)

	if err := requireNonEmpty(
		[2]string{"diskInstance", rule.DiskInstance},
		[2]string{"requesterName", rule.Name},
		[2]string{"activityRegex", rule.ActivityRegex},
		[2]string{"mountPolicy", rule.MountPolicy},
	); err != nil {
		return err
	}
	if _, err := regexp.Compile(rule.ActivityRegex); err != nil {
		return fmt.Errorf("%w: activityRegex: %v", ErrInvalidValue, err)
	}
	rule.CreationLog = c.entryLog(admin)
	err = repository.NewMountPolicyRepository(c.pool).CreateRequesterActivityRule(ctx, &rule)
	name := rule.DiskInstance + ":" + rule.Name + ":" + rule.ActivityRegex
	if err = mapCreateError("CreateRequesterActivityMountRule", name, err, ErrNonExistentMountPolicy); err != nil {
		return err
	}
	c.policies.invalidate()
	c.logCreated("requester_activity_mount_rule", name, admin)
	return nil
}

// GetRequesterMountRules возвращает правила пользователей.
func (c *ReferenceCatalogue) GetRequesterMountRules(ctx context.Context) (_ []*model.RequesterMountRule, err error) {
	defer observe("GetRequesterMountRules", time.Now(), &err)

	rules, err := repository.NewMountPolicyRepository(c.pool).ListRequesterRules(ctx)
	return rules, wrapInternal("GetRequesterMountRules", err)
}

// GetRequesterGroupMountRules возвращает правила групп.
func (c *ReferenceCatalogue) GetRequesterGroupMountRules(ctx context.Context) (_ []*model.RequesterGroupMountRule, err error) {
	defer observe("GetRequesterGroupMountRules", time.Now(), &err)

	rules, err := repository.NewMountPolicyRepository(c.pool).ListRequesterGroupRules(ctx)
	return rules, wrapInternal("GetRequesterGroupMountRules", err)
}

// GetRequesterActivityMountRules возвращает правила активностей.
func (c *ReferenceCatalogue) GetRequesterActivityMountRules(ctx context.Context) (_ []*model.RequesterActivityMountRule, err error) {
	defer observe("GetRequesterActivityMountRules", time.Now(), &err)

	rules, err := repository.NewMountPolicyRepository(c.pool).ListRequesterActivityRules(ctx)
	return rules, wrapInternal("GetRequesterActivityMountRules", err)
}
