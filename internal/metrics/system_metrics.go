package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/prepforge/billing-service/pkg/logger"
)

// SystemMetrics интерфейс для системных метрик
type SystemMetrics interface {
	Record()
	StartRecording(interval time.Duration)
	Stop()
}

type systemMetrics struct {
	log        *logger.Logger
	startedAt  time.Time
	uptime     prometheus.Gauge
	goroutines prometheus.Gauge
	heapAlloc  prometheus.Gauge
	heapSystem prometheus.Gauge
	gcRuns     prometheus.Counter
	lastNumGC  uint32
	stopCh     chan struct{}
}

// NewSystemMetrics создает новые системные метрики
func NewSystemMetrics(registry *prometheus.Registry, log *logger.Logger) SystemMetrics {
	uptime := promauto.With(registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "system_uptime_seconds",
			Help: "Time since the process started",
		},
	)

	goroutines := promauto.With(registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "system_goroutines",
			Help: "Current number of goroutines",
		},
	)

	heapAlloc := promauto.With(registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "system_heap_alloc_bytes",
			Help: "Currently allocated heap memory in bytes",
		},
	)

	heapSystem := promauto.With(registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "system_memory_system_bytes",
			Help: "Total memory obtained from system in bytes",
		},
	)

	gcRuns := promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "system_gc_runs_total",
			Help: "Total number of completed garbage collections",
		},
	)

	return &systemMetrics{
		log:        log,
		startedAt:  time.Now(),
		uptime:     uptime,
		goroutines: goroutines,
		heapAlloc:  heapAlloc,
		heapSystem: heapSystem,
		gcRuns:     gcRuns,
		stopCh:     make(chan struct{}),
	}
}

// Record записывает текущие значения системных метрик
func (m *systemMetrics) Record() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.uptime.Set(time.Since(m.startedAt).Seconds())
	m.goroutines.Set(float64(runtime.NumGoroutine()))
	m.heapAlloc.Set(float64(memStats.HeapAlloc))
	m.heapSystem.Set(float64(memStats.Sys))

	if memStats.NumGC >= m.lastNumGC {
		m.gcRuns.Add(float64(memStats.NumGC - m.lastNumGC))
	}
	m.lastNumGC = memStats.NumGC
}

// StartRecording начинает запись метрик с заданным интервалом
func (m *systemMetrics) StartRecording(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.Record()
			case <-m.stopCh:
				return
			}
		}
	}()
	m.log.Info("System metrics recording started with interval %s", interval)
}

// Stop останавливает запись метрик
func (m *systemMetrics) Stop() {
	close(m.stopCh)
	m.log.Info("System metrics recording stopped")
}
