package http

import (
	"testing"
	"time"

	"popsies-quiz-service/internal/app"
	"popsies-quiz-service/internal/domain"
	"popsies-quiz-service/internal/infra/memory"
)

func newTestService(t *testing.T) *app.SessionService {
	t.Helper()
	catalog := memory.NewCatalog(memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"quiz-1": {
			ID: "quiz-1",
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Text: "3", Correct: false},
						{ID: "o2", Text: "4", Correct: true},
					},
					Points: 100,
				},
				{ID: "q2", Options: []domain.Option{{ID: "o1", Correct: true}}},
			},
		},
	}), time.Minute)
	return app.NewSessionService(memory.NewSessionStore(), catalog)
}
