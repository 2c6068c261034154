package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/bigkaa/goartstore/tape-catalogue/internal/domain/model"
)

type fakePools struct {
	mu    sync.Mutex
	pools []*model.TapePool
	err   error
	calls int
}

func (f *fakePools) GetTapePools(context.Context) ([]*model.TapePool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.pools, f.err
}

func (f *fakePools) set(pools []*model.TapePool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pools, f.err = pools, err
}

func (f *fakePools) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// gaugeValue возвращает значение серии или false, если её нет.
func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, labels prometheus.Labels) (float64, bool) {
	t.Helper()
	ch := make(chan prometheus.Metric, 64)
	vec.Collect(ch)
	close(ch)

	for m := range ch {
		var out dto.Metric
		if err := m.Write(&out); err != nil {
			t.Fatal(err)
		}
		match := true
		for _, lp := range out.GetLabel() {
			if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
				match = false
			}
		}
		if match {
			return out.GetGauge().GetValue(), true
		}
	}
	return 0, false
}

func TestPoolStatsService_Refresh(t *testing.T) {
	src := &fakePools{pools: []*model.TapePool{
		{Name: "stats_pool_a", VO: "atlas", NbTapes: 5, NbFullTapes: 2, NbWritableTapes: 3, CapacityBytes: 90e12, DataBytes: 10e12, NbPhysicalFiles: 1200},
		{Name: "stats_pool_b", VO: "cms", NbTapes: 1, NbEmptyTapes: 1},
	}}
	s := NewPoolStatsService(src, time.Minute, testLogger())

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if v, ok := gaugeValue(t, poolTapes, prometheus.Labels{"tape_pool": "stats_pool_a", "kind": "full"}); !ok || v != 2 {
		t.Errorf("full лент пула a = %v (%v), ожидалось 2", v, ok)
	}
	if v, ok := gaugeValue(t, poolDataBytes, prometheus.Labels{"tape_pool": "stats_pool_a"}); !ok || v != 10e12 {
		t.Errorf("data_bytes пула a = %v (%v)", v, ok)
	}
	if v, ok := gaugeValue(t, poolTapes, prometheus.Labels{"tape_pool": "stats_pool_b", "kind": "empty"}); !ok || v != 1 {
		t.Errorf("empty лент пула b = %v (%v), ожидалось 1", v, ok)
	}

	// Пул b удалён из каталога — его серии исчезают.
	src.set(src.pools[:1], nil)
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, ok := gaugeValue(t, poolTapes, prometheus.Labels{"tape_pool": "stats_pool_b"}); ok {
		t.Error("серии удалённого пула остались в метриках")
	}
	if _, ok := gaugeValue(t, poolTapes, prometheus.Labels{"tape_pool": "stats_pool_a"}); !ok {
		t.Error("серии существующего пула пропали")
	}
}

func TestPoolStatsService_RefreshError(t *testing.T) {
	src := &fakePools{pools: []*model.TapePool{{Name: "stats_pool_err", VO: "lhcb", NbTapes: 7}}}
	s := NewPoolStatsService(src, time.Minute, testLogger())
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Ошибка чтения не стирает последние известные значения.
	src.set(nil, errors.New("соединение разорвано"))
	if err := s.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh не вернул ошибку источника")
	}
	if v, ok := gaugeValue(t, poolTapes, prometheus.Labels{"tape_pool": "stats_pool_err", "kind": "total"}); !ok || v != 7 {
		t.Errorf("total = %v (%v), ожидалось сохранённое значение 7", v, ok)
	}
}

func TestPoolStatsService_StartStop(t *testing.T) {
	src := &fakePools{}
	s := NewPoolStatsService(src, 50*time.Millisecond, testLogger())

	s.Start(context.Background())
	time.Sleep(200 * time.Millisecond)
	s.Stop()

	calls := src.callCount()
	if calls < 2 {
		t.Errorf("обновлений = %d, ожидалось первое и хотя бы одно периодическое", calls)
	}

	time.Sleep(100 * time.Millisecond)
	if src.callCount() != calls {
		t.Error("обновления продолжаются после Stop")
	}
}
