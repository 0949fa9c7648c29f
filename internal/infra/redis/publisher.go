package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"popsies-quiz-service/internal/domain"
)

// Publisher fans committed session events out over Redis pub/sub, one channel
// per session: session:{id}:events.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Publish(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	pipe := p.client.Pipeline()
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", event.Type, err)
		}
		pipe.Publish(ctx, EventsChannel(event.SessionID), payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish events: %w", err)
	}
	return nil
}

// EventsChannel names the pub/sub channel carrying a session's events.
func EventsChannel(sessionID string) string {
	return "session:" + sessionID + ":events"
}
