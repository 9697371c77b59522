package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gmsas95/medtracker/internal/config"
	"github.com/go-redis/redis/v8"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// RedisPublisher appends events to a Redis stream. Calls go through a
// circuit breaker so a dead Redis costs one fast failure per poll instead
// of a dial timeout per event.
type RedisPublisher struct {
	client  *redis.Client
	stream  string
	maxLen  int64
	breaker *gobreaker.CircuitBreaker[string]
	logger  *zap.Logger
}

// NewRedisClient builds a client from the events configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewRedisPublisher(client *redis.Client, cfg config.RedisConfig, logger *zap.Logger) *RedisPublisher {
	logger = logger.Named("redis")

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "redis-events",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &RedisPublisher{
		client:  client,
		stream:  cfg.Stream,
		maxLen:  cfg.MaxLen,
		breaker: breaker,
		logger:  logger,
	}
}

func (p *RedisPublisher) Name() string { return "redis" }

// Publish adds one stream entry. The entry carries the event JSON under
// "data" plus the id and new status as plain fields for consumers that
// filter without decoding.
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"medication_id": ev.MedicationID,
			"new_status":    string(ev.NewStatus),
			"data":          string(data),
			"timestamp":     ev.Timestamp.Unix(),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	id, err := p.breaker.Execute(func() (string, error) {
		return p.client.XAdd(ctx, args).Result()
	})
	if err != nil {
		return fmt.Errorf("publish to stream %s: %w", p.stream, err)
	}

	p.logger.Debug("Event published",
		zap.String("stream", p.stream),
		zap.String("entry_id", id),
		zap.String("medication_id", ev.MedicationID))
	return nil
}

// State reports the circuit breaker state.
func (p *RedisPublisher) State() string {
	return p.breaker.State().String()
}

func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
