package catalogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bigkaa/goartstore/tape-catalogue/internal/domain/model"
	"github.com/bigkaa/goartstore/tape-catalogue/internal/repository"
)

// mountPolicyResolver выбирает политику монтирования для запрашивающего.
// Политики по правилам пользователя и группы кэшируются в LRU с TTL.
type mountPolicyResolver struct {
	deps
	cache *expirable.LRU[string, model.MountPolicy]
}

func newMountPolicyResolver(size int, ttl time.Duration, d deps) *mountPolicyResolver {
	return &mountPolicyResolver{
		deps:  d,
		cache: expirable.NewLRU[string, model.MountPolicy](size, nil, ttl),
	}
}

// invalidate очищает кэш после изменения правил.
func (r *mountPolicyResolver) invalidate() {
	r.cache.Purge()
}

func policyCacheKey(diskInstance string, requester model.RequesterIdentity) string {
	return diskInstance + "\x00" + requester.Name + "\x00" + requester.Group
}

// forRequester выбирает политику по правилам пользователя, затем группы,
// затем пользователя "default".
func (r *mountPolicyResolver) forRequester(ctx context.Context, db repository.DBTX, diskInstance string,
	requester model.RequesterIdentity) (*model.MountPolicy, error) {
	key := policyCacheKey(diskInstance, requester)
	if mp, ok := r.cache.Get(key); ok {
		mountPolicyCacheHitsTotal.Inc()
		return &mp, nil
	}
	mountPolicyCacheMissesTotal.Inc()

	repo := repository.NewMountPolicyRepository(db)
	lookups := []func() (*model.MountPolicy, error){
		func() (*model.MountPolicy, error) { return repo.GetRequesterPolicy(ctx, diskInstance, requester.Name) },
		func() (*model.MountPolicy, error) { return repo.GetRequesterGroupPolicy(ctx, diskInstance, requester.Group) },
		func() (*model.MountPolicy, error) {
			return repo.GetRequesterPolicy(ctx, diskInstance, model.DefaultRequesterName)
		},
	}
	for _, lookup := range lookups {
		mp, err := lookup()
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		r.cache.Add(key, *mp)
		return mp, nil
	}

	return nil, fmt.Errorf("%w: пользователь %s, группа %s, инстанс %s",
		ErrNoMountPolicy, requester.Name, requester.Group, diskInstance)
}

// forRetrieve выбирает политику для чтения: явно заданная по имени,
// затем правило активности с наибольшим приоритетом чтения,
// затем правила пользователя и групп.
// Возвращает также активность, по которой выбрана политика.
func (r *mountPolicyResolver) forRetrieve(ctx context.Context, db repository.DBTX, diskInstance string,
	requester model.RequesterIdentity, activity, mountPolicyName *string) (*model.MountPolicy, *string, error) {
	repo := repository.NewMountPolicyRepository(db)

	if mountPolicyName != nil && *mountPolicyName != "" {
		mp, err := repo.Get(ctx, *mountPolicyName)
		switch {
		case err == nil:
			return mp, nil, nil
		case errors.Is(err, repository.ErrNotFound):
			r.logger.Warn("Указанная политика монтирования не найдена, выбор по правилам",
				slog.String("mount_policy", *mountPolicyName),
				slog.String("requester", requester.Name),
			)
		default:
			return nil, nil, err
		}
	}

	if activity != nil && *activity != "" {
		rules, err := repo.ListActivityPolicies(ctx, diskInstance, requester.Name)
		if err != nil {
			return nil, nil, err
		}
		// Правила упорядочены по убыванию приоритета чтения.
		for _, rule := range rules {
			re, err := regexp.Compile(rule.ActivityRegex)
			if err != nil {
				r.logger.Error("Некорректное регулярное выражение в правиле активности",
					slog.String("activity_regex", rule.ActivityRegex),
					slog.String("error", err.Error()),
				)
				continue
			}
			if re.MatchString(*activity) {
				return rule.Policy, activity, nil
			}
		}
	}

	mp, err := r.forRequester(ctx, db, diskInstance, requester)
	if err != nil {
		return nil, nil, err
	}
	return mp, nil, nil
}
