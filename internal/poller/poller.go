// Package poller periodically re-evaluates every medication and emits one
// event per status transition.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gmsas95/medtracker/internal/events"
	"github.com/gmsas95/medtracker/internal/medication"
	"github.com/gmsas95/medtracker/internal/metrics"
	"github.com/gmsas95/medtracker/internal/tracker"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Config holds poller configuration
type Config struct {
	Interval       time.Duration // time between evaluations
	PublishTimeout time.Duration // per transition
}

// Poller drives status evaluation.
type Poller struct {
	config    Config
	tracker   *tracker.Tracker
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger

	evalMu sync.Mutex // serializes evaluation and guards last
	last   map[string]medication.Status

	cancel  context.CancelFunc
	cron    *cron.Cron
	running bool
	mu      sync.RWMutex
}

// New creates a poller and subscribes it to tracker changes, so a command
// is reflected without waiting for the next tick.
func New(config Config, t *tracker.Tracker, publisher events.Publisher, m *metrics.Metrics, logger *zap.Logger) *Poller {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 10 * time.Second
	}

	p := &Poller{
		config:    config,
		tracker:   t,
		publisher: publisher,
		metrics:   m,
		logger:    logger.Named("poller"),
		last:      make(map[string]medication.Status),
	}
	t.Subscribe(p.onChange)
	return p
}

// Start runs one evaluation immediately and then one per interval.
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("poller already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New(
		cron.WithLocation(p.tracker.Location()),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{p.logger.Sugar()})),
	)
	spec := fmt.Sprintf("@every %s", p.config.Interval)
	if _, err := c.AddFunc(spec, func() { p.Poll(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule poll %q: %w", spec, err)
	}

	p.Poll(ctx)
	c.Start()
	p.cron = c
	p.cancel = cancel
	p.running = true

	p.logger.Info("Poller started", zap.Duration("interval", p.config.Interval))
	return nil
}

// Stop waits for a running evaluation to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	c, cancel := p.cron, p.cancel
	p.cron, p.cancel = nil, nil
	p.mu.Unlock()

	<-c.Stop().Done()
	cancel()
	p.logger.Info("Poller stopped")
}

// IsRunning returns whether the poller is active
func (p *Poller) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Poll evaluates every medication once, publishes the transitions it finds
// and returns them.
func (p *Poller) Poll(ctx context.Context) []events.Event {
	p.evalMu.Lock()
	defer p.evalMu.Unlock()

	start := time.Now()
	snaps := p.tracker.Snapshots(p.tracker.Now())

	seen := make(map[string]struct{}, len(snaps))
	var emitted []events.Event
	for _, s := range snaps {
		seen[s.ID] = struct{}{}
		if ev, ok := p.observe(ctx, s); ok {
			emitted = append(emitted, ev)
		}
	}
	for id := range p.last {
		if _, ok := seen[id]; !ok {
			delete(p.last, id)
		}
	}

	p.metrics.RecordPoll(time.Since(start))
	p.logger.Debug("Poll complete",
		zap.Int("medications", len(snaps)),
		zap.Int("transitions", len(emitted)),
		zap.Duration("took", time.Since(start)))
	return emitted
}

// Refresh evaluates a single medication.
func (p *Poller) Refresh(ctx context.Context, id string) (events.Event, bool) {
	p.evalMu.Lock()
	defer p.evalMu.Unlock()

	s, err := p.tracker.Snapshot(id, p.tracker.Now())
	if err != nil {
		delete(p.last, id)
		return events.Event{}, false
	}
	return p.observe(ctx, s)
}

// Statuses returns the last observed status of every medication.
func (p *Poller) Statuses() map[string]medication.Status {
	p.evalMu.Lock()
	defer p.evalMu.Unlock()

	out := make(map[string]medication.Status, len(p.last))
	for id, s := range p.last {
		out[id] = s
	}
	return out
}

// observe records s and publishes an event if its status changed. A
// medication seen for the first time is compared against not_due.
func (p *Poller) observe(ctx context.Context, s medication.Snapshot) (events.Event, bool) {
	old, ok := p.last[s.ID]
	if !ok {
		old = medication.StatusNotDue
	}
	p.last[s.ID] = s.Status
	if old == s.Status {
		return events.Event{}, false
	}

	ev := events.NewEvent(s, old)
	p.metrics.RecordTransition(string(s.Status))

	pubCtx, cancel := context.WithTimeout(ctx, p.config.PublishTimeout)
	defer cancel()
	if err := p.publisher.Publish(pubCtx, ev); err != nil {
		p.logger.Error("Failed to publish status change",
			zap.String("medication_id", s.ID),
			zap.String("new_status", string(s.Status)),
			zap.Error(err))
	}
	return ev, true
}

func (p *Poller) onChange(c tracker.Change) {
	switch c.Kind {
	case tracker.ChangeRemoved:
		p.evalMu.Lock()
		delete(p.last, c.MedicationID)
		p.evalMu.Unlock()
	case tracker.ChangeImported:
		p.Poll(context.Background())
	default:
		p.Refresh(context.Background(), c.MedicationID)
	}
}

// cronLogger routes robfig/cron's logging through zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
