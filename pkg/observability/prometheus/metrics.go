package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "workpool"

// DefaultRegistry holds every workpool collector plus the Go and process
// collectors.
var DefaultRegistry = NewRegistry()

// NewRegistry creates a registry preloaded with the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// PoolMetrics records worker pool activity. It satisfies worker.Observer.
type PoolMetrics struct {
	submitted prometheus.Counter
	completed prometheus.Counter
	panicked  prometheus.Counter
	duration  prometheus.Histogram
}

// NewPoolMetrics creates pool metrics and registers them on reg.
func NewPoolMetrics(reg prometheus.Registerer) *PoolMetrics {
	m := &PoolMetrics{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Jobs accepted onto the queue.",
		}),
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Jobs that returned normally.",
		}),
		panicked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_panicked_total",
			Help:      "Jobs that panicked and were recovered by their worker.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Job execution time.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 9),
		}),
	}
	reg.MustRegister(m.submitted, m.completed, m.panicked, m.duration)
	return m
}

func (m *PoolMetrics) JobQueued() {
	m.submitted.Inc()
}

func (m *PoolMetrics) JobStarted(int) {}

func (m *PoolMetrics) JobFinished(_ int, d time.Duration, panicked bool) {
	m.duration.Observe(d.Seconds())
	if panicked {
		m.panicked.Inc()
		return
	}
	m.completed.Inc()
}

// PoolState is what the pool gauges read at scrape time.
type PoolState interface {
	Size() int
	QueueLen() int
	Busy() int
}

// RegisterPoolGauges registers gauges that read queue depth, busy workers
// and pool size from pool on every scrape.
func RegisterPoolGauges(reg prometheus.Registerer, pool PoolState) {
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Jobs waiting to be dequeued.",
		}, func() float64 { return float64(pool.QueueLen()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_busy",
			Help:      "Workers currently running a job.",
		}, func() float64 { return float64(pool.Busy()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers",
			Help:      "Fixed number of workers in the pool.",
		}, func() float64 { return float64(pool.Size()) }),
	)
}

// ConnMetrics records connections handled by the listener.
type ConnMetrics struct {
	handled *prometheus.CounterVec
	dropped prometheus.Counter
}

// NewConnMetrics creates connection metrics and registers them on reg.
func NewConnMetrics(reg prometheus.Registerer) *ConnMetrics {
	m := &ConnMetrics{
		handled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Connections answered, by response status.",
		}, []string{"status"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_dropped_total",
			Help:      "Connections closed because they could not be submitted to the pool.",
		}),
	}
	reg.MustRegister(m.handled, m.dropped)
	return m
}

func (m *ConnMetrics) ConnHandled(status int) {
	m.handled.WithLabelValues(strconv.Itoa(status)).Inc()
}

func (m *ConnMetrics) ConnDropped() {
	m.dropped.Inc()
}
