package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/tape-catalogue/internal/domain/model"
)

// MountPolicyRepository — доступ к политикам монтирования и правилам их выбора.
type MountPolicyRepository interface {
	Create(ctx context.Context, mp *model.MountPolicy) error
	Get(ctx context.Context, name string) (*model.MountPolicy, error)
	List(ctx context.Context) ([]*model.MountPolicy, error)

	CreateRequesterRule(ctx context.Context, rule *model.RequesterMountRule) error
	CreateRequesterGroupRule(ctx context.Context, rule *model.RequesterGroupMountRule) error
	CreateRequesterActivityRule(ctx context.Context, rule *model.RequesterActivityMountRule) error
	ListRequesterRules(ctx context.Context) ([]*model.RequesterMountRule, error)
	ListRequesterGroupRules(ctx context.Context) ([]*model.RequesterGroupMountRule, error)
	ListRequesterActivityRules(ctx context.Context) ([]*model.RequesterActivityMountRule, error)

	// GetRequesterPolicy возвращает политику из правила пользователя.
	GetRequesterPolicy(ctx context.Context, diskInstance, requester string) (*model.MountPolicy, error)
	// GetRequesterGroupPolicy возвращает политику из правила группы.
	GetRequesterGroupPolicy(ctx context.Context, diskInstance, group string) (*model.MountPolicy, error)
	// ListActivityPolicies возвращает правила активностей пользователя с их политиками.
	ListActivityPolicies(ctx context.Context, diskInstance, requester string) ([]ActivityPolicy, error)
}

// ActivityPolicy — регулярное выражение активности и соответствующая политика.
type ActivityPolicy struct {
	ActivityRegex string
	Policy        *model.MountPolicy
}

type mountPolicyRepo struct {
	db DBTX
}

// NewMountPolicyRepository создаёт репозиторий политик монтирования.
func NewMountPolicyRepository(db DBTX) MountPolicyRepository {
	return &mountPolicyRepo{db: db}
}

const mountPolicyColumns = `
	mp.mount_policy_name, mp.archive_priority, mp.archive_min_request_age,
	mp.retrieve_priority, mp.retrieve_min_request_age, mp.user_comment,
	mp.creation_log_user_name, mp.creation_log_host_name, mp.creation_log_time,
	mp.last_modification_log_user_name, mp.last_modification_log_host_name, mp.last_modification_log_time`

func mountPolicyDest(mp *model.MountPolicy) []any {
	return append([]any{&mp.Name, &mp.ArchivePriority, &mp.ArchiveMinRequestAge,
		&mp.RetrievePriority, &mp.RetrieveMinRequestAge, &mp.Comment},
		entryLogDest(&mp.CreationLog, &mp.LastModificationLog)...)
}

func (r *mountPolicyRepo) Create(ctx context.Context, mp *model.MountPolicy) error {
	query := `
		INSERT INTO mount_policy (mount_policy_name, archive_priority, archive_min_request_age,
			retrieve_priority, retrieve_min_request_age, user_comment, ` + entryLogColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $7, $8, $9)`

	_, err := r.db.Exec(ctx, query, mp.Name, mp.ArchivePriority, mp.ArchiveMinRequestAge,
		mp.RetrievePriority, mp.RetrieveMinRequestAge, mp.Comment,
		mp.CreationLog.Username, mp.CreationLog.Host, mp.CreationLog.Time)
	if err != nil {
		return mapWriteError(err, "политики монтирования "+mp.Name)
	}
	mp.LastModificationLog = mp.CreationLog
	return nil
}

func (r *mountPolicyRepo) Get(ctx context.Context, name string) (*model.MountPolicy, error) {
	query := `SELECT ` + mountPolicyColumns + ` FROM mount_policy mp WHERE mp.mount_policy_name = $1`
	return r.getOne(ctx, query, name)
}

func (r *mountPolicyRepo) List(ctx context.Context) ([]*model.MountPolicy, error) {
	query := `SELECT ` + mountPolicyColumns + ` FROM mount_policy mp ORDER BY mp.mount_policy_name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения политик монтирования: %w", err)
	}
	defer rows.Close()

	var result []*model.MountPolicy
	for rows.Next() {
		mp := &model.MountPolicy{}
		if err := rows.Scan(mountPolicyDest(mp)...); err != nil {
			return nil, fmt.Errorf("ошибка сканирования политики монтирования: %w", err)
		}
		result = append(result, mp)
	}
	return result, rows.Err()
}

func (r *mountPolicyRepo) CreateRequesterRule(ctx context.Context, rule *model.RequesterMountRule) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO requester_mount_rule (disk_instance_name, requester_name, mount_policy_name, user_comment,
			creation_log_user_name, creation_log_host_name, creation_log_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rule.DiskInstance, rule.Name, rule.MountPolicy, rule.Comment,
		rule.CreationLog.Username, rule.CreationLog.Host, rule.CreationLog.Time)
	if err != nil {
		return mapWriteError(err, "правила пользователя "+rule.Name)
	}
	return nil
}

func (r *mountPolicyRepo) CreateRequesterGroupRule(ctx context.Context, rule *model.RequesterGroupMountRule) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO requester_group_mount_rule (disk_instance_name, requester_group_name, mount_policy_name,
			user_comment, creation_log_user_name, creation_log_host_name, creation_log_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rule.DiskInstance, rule.Group, rule.MountPolicy, rule.Comment,
		rule.CreationLog.Username, rule.CreationLog.Host, rule.CreationLog.Time)
	if err != nil {
		return mapWriteError(err, "правила группы "+rule.Group)
	}
	return nil
}

func (r *mountPolicyRepo) CreateRequesterActivityRule(ctx context.Context, rule *model.RequesterActivityMountRule) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO requester_activity_mount_rule (disk_instance_name, requester_name, activity_regex,
			mount_policy_name, user_comment, creation_log_user_name, creation_log_host_name, creation_log_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rule.DiskInstance, rule.Name, rule.ActivityRegex, rule.MountPolicy, rule.Comment,
		rule.CreationLog.Username, rule.CreationLog.Host, rule.CreationLog.Time)
	if err != nil {
		return mapWriteError(err, "правила активности "+rule.ActivityRegex)
	}
	return nil
}

func (r *mountPolicyRepo) ListRequesterRules(ctx context.Context) ([]*model.RequesterMountRule, error) {
	rows, err := r.db.Query(ctx, `
		SELECT disk_instance_name, requester_name, mount_policy_name, user_comment,
			creation_log_user_name, creation_log_host_name, creation_log_time
		FROM requester_mount_rule
		ORDER BY disk_instance_name, requester_name`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения правил пользователей: %w", err)
	}
	defer rows.Close()

	var result []*model.RequesterMountRule
	for rows.Next() {
		rule := &model.RequesterMountRule{}
		if err := rows.Scan(&rule.DiskInstance, &rule.Name, &rule.MountPolicy, &rule.Comment,
			&rule.CreationLog.Username, &rule.CreationLog.Host, &rule.CreationLog.Time); err != nil {
			return nil, fmt.Errorf("ошибка сканирования правила пользователя: %w", err)
		}
		result = append(result, rule)
	}
	return result, rows.Err()
}

func (r *mountPolicyRepo) ListRequesterGroupRules(ctx context.Context) ([]*model.RequesterGroupMountRule, error) {
	rows, err := r.db.Query(ctx, `
		SELECT disk_instance_name, requester_group_name, mount_policy_name, user_comment,
			creation_log_user_name, creation_log_host_name, creation_log_time
		FROM requester_group_mount_rule
		ORDER BY disk_instance_name, requester_group_name`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения правил групп: %w", err)
	}
	defer rows.Close()

	var result []*model.RequesterGroupMountRule
	for rows.Next() {
		rule := &model.RequesterGroupMountRule{}
		if err := rows.Scan(&rule.DiskInstance, &rule.Group, &rule.MountPolicy, &rule.Comment,
			&rule.CreationLog.Username, &rule.CreationLog.Host, &rule.CreationLog.Time); err != nil {
			return nil, fmt.Errorf("ошибка сканирования правила группы: %w", err)
		}
		result = append(result, rule)
	}
	return result, rows.Err()
}

func (r *mountPolicyRepo) ListRequesterActivityRules(ctx context.Context) ([]*model.RequesterActivityMountRule, error) {
	rows, err := r.db.Query(ctx, `
		SELECT disk_instance_name, requester_name, activity_regex, mount_policy_name, user_comment,
			creation_log_user_name, creation_log_host_name, creation_log_time
		FROM requester_activity_mount_rule
		ORDER BY disk_instance_name, requester_name, activity_regex`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения правил активностей: %w", err)
	}
	defer rows.Close()

	var result []*model.RequesterActivityMountRule
	for rows.Next() {
		rule := &model.RequesterActivityMountRule{}
		if err := rows.Scan(&rule.DiskInstance, &rule.Name, &rule.ActivityRegex, &rule.MountPolicy, &rule.Comment,
			&rule.CreationLog.Username, &rule.CreationLog.Host, &rule.CreationLog.Time); err != nil {
			return nil, fmt.Errorf("ошибка сканирования правила активности: %w", err)
		}
		result = append(result, rule)
	}
	return result, rows.Err()
}

func (r *mountPolicyRepo) GetRequesterPolicy(ctx context.Context, diskInstance, requester string) (*model.MountPolicy, error) {
	query := `
		SELECT ` + mountPolicyColumns + `
		FROM requester_mount_rule rmr
		JOIN mount_policy mp ON mp.mount_policy_name = rmr.mount_policy_name
		WHERE rmr.disk_instance_name = $1 AND rmr.requester_name = $2`
	return r.getOne(ctx, query, diskInstance, requester)
}

func (r *mountPolicyRepo) GetRequesterGroupPolicy(ctx context.Context, diskInstance, group string) (*model.MountPolicy, error) {
	query := `
		SELECT ` + mountPolicyColumns + `
		FROM requester_group_mount_rule rgmr
		JOIN mount_policy mp ON mp.mount_policy_name = rgmr.mount_policy_name
		WHERE rgmr.disk_instance_name = $1 AND rgmr.requester_group_name = $2`
	return r.getOne(ctx, query, diskInstance, group)
}

func (r *mountPolicyRepo) ListActivityPolicies(ctx context.Context, diskInstance, requester string) ([]ActivityPolicy, error) {
	query := `
		SELECT ramr.activity_regex, ` + mountPolicyColumns + `
		FROM requester_activity_mount_rule ramr
		JOIN mount_policy mp ON mp.mount_policy_name = ramr.mount_policy_name
		WHERE ramr.disk_instance_name = $1 AND ramr.requester_name = $2
		ORDER BY mp.retrieve_priority DESC, ramr.activity_regex`

	rows, err := r.db.Query(ctx, query, diskInstance, requester)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения правил активностей: %w", err)
	}
	defer rows.Close()

	var result []ActivityPolicy
	for rows.Next() {
		ap := ActivityPolicy{Policy: &model.MountPolicy{}}
		dest := append([]any{&ap.ActivityRegex}, mountPolicyDest(ap.Policy)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("ошибка сканирования правила активности: %w", err)
		}
		result = append(result, ap)
	}
	return result, rows.Err()
}

func (r *mountPolicyRepo) getOne(ctx context.Context, query string, args ...any) (*model.MountPolicy, error) {
	mp := &model.MountPolicy{}
	if err := r.db.QueryRow(ctx, query, args...).Scan(mountPolicyDest(mp)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения политики монтирования: %w", err)
	}
	return mp, nil
}
