package app_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"popsies-quiz-service/internal/app"
	"popsies-quiz-service/internal/domain"
	"popsies-quiz-service/internal/infra/memory"
)

func TestPublishersFanOutPastFailures(t *testing.T) {
	first, second := memory.NewRecorder(), memory.NewRecorder()
	fanout := app.Publishers{first, failingPublisher{}, nil, second}

	events := []domain.Event{{Type: domain.EventSessionCreated, SessionID: "s1"}}
	err := fanout.Publish(context.Background(), events)
	require.ErrorContains(t, err, "broker unavailable")
	require.Equal(t, events, first.Events())
	require.Equal(t, events, second.Events())
}
