package events

import (
	"context"

	"go.uber.org/zap"
)

// LogPublisher writes events to the structured log.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.Named("events")}
}

func (p *LogPublisher) Name() string { return "log" }

func (p *LogPublisher) Publish(ctx context.Context, ev Event) error {
	fields := []zap.Field{
		zap.String("medication_id", ev.MedicationID),
		zap.String("name", ev.Name),
		zap.String("dosage", ev.Dosage),
		zap.String("frequency", string(ev.Frequency)),
		zap.String("old_status", string(ev.OldStatus)),
		zap.String("new_status", string(ev.NewStatus)),
		zap.Int("missed_doses", ev.MissedDoses),
		zap.Float64("adherence_rate", ev.AdherenceRate),
	}
	if ev.NextDue != nil {
		fields = append(fields, zap.Time("next_due", *ev.NextDue))
	}
	if ev.LastTaken != nil {
		fields = append(fields, zap.Time("last_taken", *ev.LastTaken))
	}
	p.logger.Info("Medication status changed", fields...)
	return nil
}
