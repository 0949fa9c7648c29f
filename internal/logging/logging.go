package logging

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"popsies-quiz-service/internal/domain"
)

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// New builds the process logger. Development mode switches to console output.
func New(level string, development bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// FromContext decorates logger with the request's correlation id, if any.
func FromContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if id := CorrelationID(ctx); id != "" {
		return logger.With(zap.String("correlation_id", id))
	}
	return logger
}

// EventLogger is a publisher that writes every committed event to the log.
type EventLogger struct {
	Logger *zap.Logger
}

func (l EventLogger) Publish(ctx context.Context, events []domain.Event) error {
	logger := FromContext(ctx, l.Logger)
	for _, e := range events {
		fields := []zap.Field{
			zap.String("event", string(e.Type)),
			zap.String("session_id", e.SessionID),
			zap.Time("occurred_at", e.OccurredAt),
		}
		if e.ParticipantID != "" {
			fields = append(fields, zap.String("participant_id", e.ParticipantID))
		}
		if e.QuestionID != "" {
			fields = append(fields, zap.String("question_id", e.QuestionID), zap.Bool("correct", e.Correct), zap.Int("points", e.Points))
		}
		logger.Info("session event", fields...)
	}
	return nil
}
