// pool_stats.go — фоновая публикация статистики пулов лент в Prometheus.
//
// PoolStatsService запускает горутину с ticker (TC_POOL_STATS_INTERVAL),
// которая читает сводные счётчики пулов из каталога и обновляет gauges.
// Пулы, исчезнувшие из каталога, удаляются из метрик.
//
// Prometheus-метрики:
//   - tc_tape_pool_tapes — количество лент пула по видам (total, empty, disabled, full, writable)
//   - tc_tape_pool_capacity_bytes — суммарная ёмкость лент пула
//   - tc_tape_pool_data_bytes — объём данных на лентах пула
//   - tc_tape_pool_physical_files — количество копий файлов на лентах пула
//   - tc_tape_pool_stats_errors_total — неудачные обновления
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/tape-catalogue/internal/domain/model"
)

var (
	poolTapes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tc_tape_pool_tapes",
		Help: "Количество лент пула по видам",
	}, []string{"tape_pool", "vo", "kind"})

	poolCapacityBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tc_tape_pool_capacity_bytes",
		Help: "Суммарная ёмкость лент пула в байтах",
	}, []string{"tape_pool", "vo"})

	poolDataBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tc_tape_pool_data_bytes",
		Help: "Объём данных на лентах пула в байтах",
	}, []string{"tape_pool", "vo"})

	poolPhysicalFiles = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tc_tape_pool_physical_files",
		Help: "Количество копий файлов на лентах пула",
	}, []string{"tape_pool", "vo"})

	poolStatsErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tc_tape_pool_stats_errors_total",
		Help: "Количество неудачных обновлений статистики пулов лент",
	})
)

// TapePoolLister — источник сводных счётчиков пулов лент.
type TapePoolLister interface {
	GetTapePools(ctx context.Context) ([]*model.TapePool, error)
}

// PoolStatsService — фоновый сервис статистики пулов лент.
type PoolStatsService struct {
	pools    TapePoolLister
	interval time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	known map[string]struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoolStatsService создаёт сервис статистики пулов лент.
func NewPoolStatsService(pools TapePoolLister, interval time.Duration, logger *slog.Logger) *PoolStatsService {
	return &PoolStatsService{
		pools:    pools,
		interval: interval,
		logger:   logger.With(slog.String("component", "pool_stats")),
		known:    make(map[string]struct{}),
	}
}

// Start выполняет первое обновление и запускает периодическое.
// Вызывается один раз при старте приложения.
func (s *PoolStatsService) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		s.logger.Info("Публикация статистики пулов лент запущена",
			slog.String("interval", s.interval.String()),
		)
		s.refreshLogged(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Публикация статистики пулов лент остановлена")
				return
			case <-ticker.C:
				s.refreshLogged(ctx)
			}
		}
	}()
}

// Stop останавливает фоновую горутину и ждёт завершения.
func (s *PoolStatsService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}

func (s *PoolStatsService) refreshLogged(ctx context.Context) {
	if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("Ошибка обновления статистики пулов лент", slog.String("error", err.Error()))
	}
}

// Refresh читает пулы из каталога и обновляет метрики.
func (s *PoolStatsService) Refresh(ctx context.Context) error {
	pools, err := s.pools.GetTapePools(ctx)
	if err != nil {
		poolStatsErrors.Inc()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(pools))
	for _, p := range pools {
		seen[p.Name] = struct{}{}
		// Пул мог сменить VO — старые серии удаляются целиком.
		deletePoolSeries(p.Name)

		poolTapes.WithLabelValues(p.Name, p.VO, "total").Set(float64(p.NbTapes))
		poolTapes.WithLabelValues(p.Name, p.VO, "empty").Set(float64(p.NbEmptyTapes))
		poolTapes.WithLabelValues(p.Name, p.VO, "disabled").Set(float64(p.NbDisabledTapes))
		poolTapes.WithLabelValues(p.Name, p.VO, "full").Set(float64(p.NbFullTapes))
		poolTapes.WithLabelValues(p.Name, p.VO, "writable").Set(float64(p.NbWritableTapes))
		poolCapacityBytes.WithLabelValues(p.Name, p.VO).Set(float64(p.CapacityBytes))
		poolDataBytes.WithLabelValues(p.Name, p.VO).Set(float64(p.DataBytes))
		poolPhysicalFiles.WithLabelValues(p.Name, p.VO).Set(float64(p.NbPhysicalFiles))
	}

	for name := range s.known {
		if _, ok := seen[name]; !ok {
			deletePoolSeries(name)
		}
	}
	s.known = seen

	s.logger.Debug("Статистика пулов лент обновлена", slog.Int("pools", len(pools)))
	return nil
}

func deletePoolSeries(name string) {
	labels := prometheus.Labels{"tape_pool": name}
	poolTapes.DeletePartialMatch(labels)
	poolCapacityBytes.DeletePartialMatch(labels)
	poolDataBytes.DeletePartialMatch(labels)
	poolPhysicalFiles.DeletePartialMatch(labels)
}
