package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/tape-catalogue/internal/domain/model"
)

// ReferenceRepository — доступ к справочникам, от которых зависят ленты
// и архивные файлы: виртуальные организации, типы носителей, логические
// библиотеки, пулы лент, классы хранения.
type ReferenceRepository interface {
	CreateVirtualOrganization(ctx context.Context, vo *model.VirtualOrganization) error
	ListVirtualOrganizations(ctx context.Context) ([]*model.VirtualOrganization, error)

	CreateMediaType(ctx context.Context, mt *model.MediaType) error
	ListMediaTypes(ctx context.Context) ([]*model.MediaType, error)
	MediaTypeExists(ctx context.Context, name string) (bool, error)

	CreateLogicalLibrary(ctx context.Context, ll *model.LogicalLibrary) error
	ListLogicalLibraries(ctx context.Context) ([]*model.LogicalLibrary, error)
	LogicalLibraryExists(ctx context.Context, name string) (bool, error)
	SetLogicalLibraryDisabled(ctx context.Context, name string, disabled bool, reason *string, log model.EntryLog) (bool, error)

	CreateTapePool(ctx context.Context, tp *model.TapePool) error
	// ListTapePools возвращает пулы со счётчиками, агрегированными по лентам.
	ListTapePools(ctx context.Context, name *string) ([]*model.TapePool, error)
	TapePoolExists(ctx context.Context, name string) (bool, error)

	// CreateStorageClass присваивает классу ID из последовательности.
	CreateStorageClass(ctx context.Context, sc *model.StorageClass) error
	ListStorageClasses(ctx context.Context) ([]*model.StorageClass, error)
	// GetStorageClassID возвращает ID класса хранения по имени.
	GetStorageClassID(ctx context.Context, name string) (uint64, error)
	// GetStorageClassRouting возвращает число копий класса и число его маршрутов.
	GetStorageClassRouting(ctx context.Context, name string) (*StorageClassRouting, error)

	CreateArchiveRoute(ctx context.Context, route *model.ArchiveRoute, storageClassID uint64) error
	ListArchiveRoutes(ctx context.Context) ([]*model.ArchiveRoute, error)
	DeleteArchiveRoute(ctx context.Context, storageClass string, copyNb uint8) (bool, error)
}

// StorageClassRouting — сводка маршрутов архивации класса хранения.
type StorageClassRouting struct {
	ID       uint64
	NbCopies uint8
	NbRoutes int
}

type referenceRepo struct {
	db      DBTX
	dialect Dialect
}

// NewReferenceRepository создаёт репозиторий справочников.
func NewReferenceRepository(db DBTX, dialect Dialect) ReferenceRepository {
	return &referenceRepo{db: db, dialect: dialect}
}

const entryLogColumns = `creation_log_user_name, creation_log_host_name, creation_log_time,
	last_modification_log_user_name, last_modification_log_host_name, last_modification_log_time`

func entryLogDest(creation, lastMod *model.EntryLog) []any {
	return []any{
		&creation.Username, &creation.Host, &creation.Time,
		&lastMod.Username, &lastMod.Host, &lastMod.Time,
	}
}

func (r *referenceRepo) CreateVirtualOrganization(ctx context.Context, vo *model.VirtualOrganization) error {
	query := `
		INSERT INTO virtual_organization (virtual_organization_name, read_max_drives, write_max_drives,
			max_file_size, user_comment, ` + entryLogColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $6, $7, $8)`

	_, err := r.db.Exec(ctx, query, vo.Name, vo.ReadMaxDrives, vo.WriteMaxDrives, vo.MaxFileSize, vo.Comment,
		vo.CreationLog.Username, vo.CreationLog.Host, vo.CreationLog.Time)
	if err != nil {
		return mapWriteError(err, "виртуальной организации "+vo.Name)
	}
	vo.LastModificationLog = vo.CreationLog
	return nil
}

func (r *referenceRepo) ListVirtualOrganizations(ctx context.Context) ([]*model.VirtualOrganization, error) {
	query := `
		SELECT virtual_organization_name, read_max_drives, write_max_drives, max_file_size, user_comment,
			` + entryLogColumns + `
		FROM virtual_organization
		ORDER BY virtual_organization_name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения виртуальных организаций: %w", err)
	}
	defer rows.Close()

	var result []*model.VirtualOrganization
	for rows.Next() {
		vo := &model.VirtualOrganization{}
		dest := append([]any{&vo.Name, &vo.ReadMaxDrives, &vo.WriteMaxDrives, &vo.MaxFileSize, &vo.Comment},
			entryLogDest(&vo.CreationLog, &vo.LastModificationLog)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("ошибка сканирования виртуальной организации: %w", err)
		}
		result = append(result, vo)
	}
	return result, rows.Err()
}

func (r *referenceRepo) CreateMediaType(ctx context.Context, mt *model.MediaType) error {
	query := `
		INSERT INTO media_type (media_type_name, cartridge, capacity_in_bytes, primary_density_code,
			secondary_density_code, nb_wraps, min_lpos, max_lpos, user_comment, ` + entryLogColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $10, $11, $12)`

	_, err := r.db.Exec(ctx, query, mt.Name, mt.Cartridge, mt.CapacityInBytes, mt.PrimaryDensityCode,
		mt.SecondaryDensityCode, mt.NbWraps, mt.MinLPos, mt.MaxLPos, mt.Comment,
		mt.CreationLog.Username, mt.CreationLog.Host, mt.CreationLog.Time)
	if err != nil {
		return mapWriteError(err, "типа носителя "+mt.Name)
	}
	mt.LastModificationLog = mt.CreationLog
	return nil
}

func (r *referenceRepo) ListMediaTypes(ctx context.Context) ([]*model.MediaType, error) {
	query := `
		SELECT media_type_name, cartridge, capacity_in_bytes, primary_density_code, secondary_density_code,
			nb_wraps, min_lpos, max_lpos, user_comment, ` + entryLogColumns + `
		FROM media_type
		ORDER BY media_type_name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения типов носителей: %w", err)
	}
	defer rows.Close()

	var result []*model.MediaType
	for rows.Next() {
		mt := &model.MediaType{}
		dest := append([]any{&mt.Name, &mt.Cartridge, &mt.CapacityInBytes, &mt.PrimaryDensityCode,
			&mt.SecondaryDensityCode, &mt.NbWraps, &mt.MinLPos, &mt.MaxLPos, &mt.Comment},
			entryLogDest(&mt.CreationLog, &mt.LastModificationLog)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("ошибка сканирования типа носителя: %w", err)
		}
		result = append(result, mt)
	}
	return result, rows.Err()
}

func (r *referenceRepo) MediaTypeExists(ctx context.Context, name string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM media_type WHERE media_type_name = $1)`, name)
}

func (r *referenceRepo) CreateLogicalLibrary(ctx context.Context, ll *model.LogicalLibrary) error {
	query := `
		INSERT INTO logical_library (logical_library_name, is_disabled, disabled_reason, user_comment,
			` + entryLogColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query, ll.Name, ll.IsDisabled, ll.DisabledReason, ll.Comment,
		ll.CreationLog.Username, ll.CreationLog.Host, ll.CreationLog.Time)
	if err != nil {
		return mapWriteError(err, "логической библиотеки "+ll.Name)
	}
	ll.LastModificationLog = ll.CreationLog
	return nil
}

func (r *referenceRepo) ListLogicalLibraries(ctx context.Context) ([]*model.LogicalLibrary, error) {
	query := `
		SELECT logical_library_name, is_disabled, disabled_reason, user_comment, ` + entryLogColumns + `
		FROM logical_library
		ORDER BY logical_library_name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения логических библиотек: %w", err)
	}
	defer rows.Close()

	var result []*model.LogicalLibrary
	for rows.Next() {
		ll := &model.LogicalLibrary{}
		dest := append([]any{&ll.Name, &ll.IsDisabled, &ll.DisabledReason, &ll.Comment},
			entryLogDest(&ll.CreationLog, &ll.LastModificationLog)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("ошибка сканирования логической библиотеки: %w", err)
		}
		result = append(result, ll)
	}
	return result, rows.Err()
}

func (r *referenceRepo) LogicalLibraryExists(ctx context.Context, name string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM logical_library WHERE logical_library_name = $1)`, name)
}

func (r *referenceRepo) SetLogicalLibraryDisabled(ctx context.Context, name string, disabled bool, reason *string,
	log model.EntryLog) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE logical_library
		SET is_disabled = $2, disabled_reason = $3, last_modification_log_user_name = $4,
			last_modification_log_host_name = $5, last_modification_log_time = $6
		WHERE logical_library_name = $1`,
		name, disabled, reason, log.Username, log.Host, log.Time)
	if err != nil {
		return false, fmt.Errorf("ошибка обновления логической библиотеки: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *referenceRepo) CreateTapePool(ctx context.Context, tp *model.TapePool) error {
	query := `
		INSERT INTO tape_pool (tape_pool_name, virtual_organization_name, nb_partial_tapes, is_encrypted,
			supply, user_comment, ` + entryLogColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $7, $8, $9)`

	_, err := r.db.Exec(ctx, query, tp.Name, tp.VO, tp.NbPartialTapes, tp.Encryption, tp.Supply, tp.Comment,
		tp.CreationLog.Username, tp.CreationLog.Host, tp.CreationLog.Time)
	if err != nil {
		return mapWriteError(err, "пула лент "+tp.Name)
	}
	tp.LastModificationLog = tp.CreationLog
	return nil
}

func (r *referenceRepo) ListTapePools(ctx context.Context, name *string) ([]*model.TapePool, error) {
	b := newWhereBuilder(1)
	if name != nil {
		b.add("tp.tape_pool_name = $%d", *name)
	}
	query := `
		SELECT tp.tape_pool_name, tp.virtual_organization_name, tp.nb_partial_tapes, tp.is_encrypted,
			tp.supply, tp.user_comment,
			COUNT(t.vid),
			COUNT(t.vid) FILTER (WHERE t.data_on_tape_in_bytes = 0),
			COUNT(t.vid) FILTER (WHERE t.state = 'DISABLED'),
			COUNT(t.vid) FILTER (WHERE t.is_full),
			COUNT(t.vid) FILTER (WHERE NOT t.is_full AND t.state = 'ACTIVE'),
			COALESCE(SUM(mt.capacity_in_bytes), 0)::BIGINT,
			COALESCE(SUM(t.data_on_tape_in_bytes), 0)::BIGINT,
			COALESCE(SUM(t.nb_master_files), 0)::BIGINT,
			tp.creation_log_user_name, tp.creation_log_host_name, tp.creation_log_time,
			tp.last_modification_log_user_name, tp.last_modification_log_host_name, tp.last_modification_log_time
		FROM tape_pool tp
		LEFT JOIN tape t ON t.tape_pool_name = tp.tape_pool_name
		LEFT JOIN media_type mt ON mt.media_type_name = t.media_type_name
		` + b.where() + `
		GROUP BY tp.tape_pool_name
		ORDER BY tp.tape_pool_name`

	rows, err := r.db.Query(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения пулов лент: %w", err)
	}
	defer rows.Close()

	var result []*model.TapePool
	for rows.Next() {
		tp := &model.TapePool{}
		dest := append([]any{&tp.Name, &tp.VO, &tp.NbPartialTapes, &tp.Encryption, &tp.Supply, &tp.Comment,
			&tp.NbTapes, &tp.NbEmptyTapes, &tp.NbDisabledTapes, &tp.NbFullTapes, &tp.NbWritableTapes,
			&tp.CapacityBytes, &tp.DataBytes, &tp.NbPhysicalFiles},
			entryLogDest(&tp.CreationLog, &tp.LastModificationLog)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("ошибка сканирования пула лент: %w", err)
		}
		result = append(result, tp)
	}
	return result, rows.Err()
}

func (r *referenceRepo) TapePoolExists(ctx context.Context, name string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM tape_pool WHERE tape_pool_name = $1)`, name)
}

func (r *referenceRepo) CreateStorageClass(ctx context.Context, sc *model.StorageClass) error {
	id, err := r.dialect.NextID(ctx, r.db, StorageClassIDSequence)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO storage_class (storage_class_id, storage_class_name, nb_copies, virtual_organization_name,
			user_comment, ` + entryLogColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $6, $7, $8)`

	_, err = r.db.Exec(ctx, query, id, sc.Name, sc.NbCopies, sc.VO, sc.Comment,
		sc.CreationLog.Username, sc.CreationLog.Host, sc.CreationLog.Time)
	if err != nil {
		return mapWriteError(err, "класса хранения "+sc.Name)
	}
	sc.ID = id
	sc.LastModificationLog = sc.CreationLog
	return nil
}

func (r *referenceRepo) ListStorageClasses(ctx context.Context) ([]*model.StorageClass, error) {
	query := `
		SELECT storage_class_id, storage_class_name, nb_copies, virtual_organization_name, user_comment,
			` + entryLogColumns + `
		FROM storage_class
		ORDER BY storage_class_name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения классов хранения: %w", err)
	}
	defer rows.Close()

	var result []*model.StorageClass
	for rows.Next() {
		sc := &model.StorageClass{}
		dest := append([]any{&sc.ID, &sc.Name, &sc.NbCopies, &sc.VO, &sc.Comment},
			entryLogDest(&sc.CreationLog, &sc.LastModificationLog)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("ошибка сканирования класса хранения: %w", err)
		}
		result = append(result, sc)
	}
	return result, rows.Err()
}

func (r *referenceRepo) GetStorageClassID(ctx context.Context, name string) (uint64, error) {
	var id uint64
	err := r.db.QueryRow(ctx, `SELECT storage_class_id FROM storage_class WHERE storage_class_name = $1`, name).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("ошибка получения класса хранения: %w", err)
	}
	return id, nil
}

func (r *referenceRepo) GetStorageClassRouting(ctx context.Context, name string) (*StorageClassRouting, error) {
	query := `
		SELECT sc.storage_class_id, sc.nb_copies, COUNT(ar.copy_nb)
		FROM storage_class sc
		LEFT JOIN archive_route ar ON ar.storage_class_id = sc.storage_class_id
		WHERE sc.storage_class_name = $1
		GROUP BY sc.storage_class_id, sc.nb_copies`

	var routing StorageClassRouting
	if err := r.db.QueryRow(ctx, query, name).Scan(&routing.ID, &routing.NbCopies, &routing.NbRoutes); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения маршрутов класса хранения: %w", err)
	}
	return &routing, nil
}

func (r *referenceRepo) CreateArchiveRoute(ctx context.Context, route *model.ArchiveRoute, storageClassID uint64) error {
	query := `
		INSERT INTO archive_route (storage_class_id, copy_nb, tape_pool_name, user_comment, ` + entryLogColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query, storageClassID, route.CopyNb, route.TapePool, route.Comment,
		route.CreationLog.Username, route.CreationLog.Host, route.CreationLog.Time)
	if err != nil {
		return mapWriteError(err, fmt.Sprintf("маршрута архивации %s/%d", route.StorageClass, route.CopyNb))
	}
	route.LastModificationLog = route.CreationLog
	return nil
}

func (r *referenceRepo) ListArchiveRoutes(ctx context.Context) ([]*model.ArchiveRoute, error) {
	query := `
		SELECT sc.storage_class_name, ar.copy_nb, ar.tape_pool_name, ar.user_comment,
			ar.creation_log_user_name, ar.creation_log_host_name, ar.creation_log_time,
			ar.last_modification_log_user_name, ar.last_modification_log_host_name, ar.last_modification_log_time
		FROM archive_route ar
		JOIN storage_class sc ON sc.storage_class_id = ar.storage_class_id
		ORDER BY sc.storage_class_name, ar.copy_nb`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения маршрутов архивации: %w", err)
	}
	defer rows.Close()

	var result []*model.ArchiveRoute
	for rows.Next() {
		ar := &model.ArchiveRoute{}
		dest := append([]any{&ar.StorageClass, &ar.CopyNb, &ar.TapePool, &ar.Comment},
			entryLogDest(&ar.CreationLog, &ar.LastModificationLog)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("ошибка сканирования маршрута архивации: %w", err)
		}
		result = append(result, ar)
	}
	return result, rows.Err()
}

func (r *referenceRepo) DeleteArchiveRoute(ctx context.Context, storageClass string, copyNb uint8) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM archive_route
		WHERE copy_nb = $2
			AND storage_class_id = (SELECT storage_class_id FROM storage_class WHERE storage_class_name = $1)`,
		storageClass, copyNb)
	if err != nil {
		return false, fmt.Errorf("ошибка удаления маршрута архивации: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *referenceRepo) exists(ctx context.Context, query, name string) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, query, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("ошибка проверки справочника: %w", err)
	}
	return exists, nil
}
