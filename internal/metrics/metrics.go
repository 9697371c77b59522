package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "medtracker"

// Metrics holds the Prometheus collectors of one process. All methods are
// safe on a nil receiver so components can run without metrics.
type Metrics struct {
	startTime time.Time
	registry  *prometheus.Registry

	commands        *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	eventsPublished *prometheus.CounterVec
	eventsFailed    *prometheus.CounterVec
	pollDuration    prometheus.Histogram
	medications     prometheus.Gauge
	wsClients       prometheus.Gauge

	commandsTotal  atomic.Int64
	commandsFailed atomic.Int64
	transitionsAll atomic.Int64
	pollsTotal     atomic.Int64
	lastPoll       atomic.Int64 // unix nanos
	medicationsNow atomic.Int64
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

// New creates a Metrics with its own registry, including Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		startTime: time.Now(),
		registry:  reg,
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands handled, by command and result code.",
		}, []string{"command", "result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Status transitions detected by the poller, by new status.",
		}, []string{"status"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "State change events delivered, by sink.",
		}, []string{"sink"}),
		eventsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_failed_total",
			Help:      "State change events that failed to deliver, by sink.",
		}, []string{"sink"}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Time spent evaluating every medication in one poll.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		medications: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "medications",
			Help:      "Medications currently tracked.",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected event stream clients.",
		}),
	}

	reg.MustRegister(
		m.commands,
		m.transitions,
		m.eventsPublished,
		m.eventsFailed,
		m.pollDuration,
		m.medications,
		m.wsClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the Prometheus text exposition.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordCommand counts a command outcome. result is "ok" or an error code.
func (m *Metrics) RecordCommand(command, result string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, result).Inc()
	m.commandsTotal.Add(1)
	if result != "ok" {
		m.commandsFailed.Add(1)
	}
}

func (m *Metrics) RecordTransition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
	m.transitionsAll.Add(1)
}

func (m *Metrics) RecordEvent(sink string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.eventsFailed.WithLabelValues(sink).Inc()
		return
	}
	m.eventsPublished.WithLabelValues(sink).Inc()
}

func (m *Metrics) RecordPoll(d time.Duration) {
	if m == nil {
		return
	}
	m.pollDuration.Observe(d.Seconds())
	m.pollsTotal.Add(1)
	m.lastPoll.Store(time.Now().UnixNano())
}

func (m *Metrics) SetMedications(n int) {
	if m == nil {
		return
	}
	m.medications.Set(float64(n))
	m.medicationsNow.Store(int64(n))
}

func (m *Metrics) IncrementWebSocketClients() {
	if m == nil {
		return
	}
	m.wsClients.Inc()
}

func (m *Metrics) DecrementWebSocketClients() {
	if m == nil {
		return
	}
	m.wsClients.Dec()
}

// Snapshot is a JSON-friendly summary for the health endpoint.
type Snapshot struct {
	Uptime         string     `json:"uptime"`
	UptimeSeconds  int64      `json:"uptime_seconds"`
	Medications    int64      `json:"medications"`
	CommandsTotal  int64      `json:"commands_total"`
	CommandsFailed int64      `json:"commands_failed"`
	Transitions    int64      `json:"transitions"`
	Polls          int64      `json:"polls"`
	LastPoll       *time.Time `json:"last_poll,omitempty"`
}

func (m *Metrics) Snapshot() *Snapshot {
	if m == nil {
		return &Snapshot{}
	}
	uptime := time.Since(m.startTime)
	s := &Snapshot{
		Uptime:         uptime.Round(time.Second).String(),
		UptimeSeconds:  int64(uptime.Seconds()),
		Medications:    m.medicationsNow.Load(),
		CommandsTotal:  m.commandsTotal.Load(),
		CommandsFailed: m.commandsFailed.Load(),
		Transitions:    m.transitionsAll.Load(),
		Polls:          m.pollsTotal.Load(),
	}
	if last := m.lastPoll.Load(); last != 0 {
		t := time.Unix(0, last)
		s.LastPoll = &t
	}
	return s
}
