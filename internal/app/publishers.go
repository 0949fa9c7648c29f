package app

import (
	"context"
	"errors"

	"popsies-quiz-service/internal/domain"
)

// Publishers delivers events to every publisher in order. A failing publisher
// does not stop the others; all errors are joined.
type Publishers []Publisher

func (ps Publishers) Publish(ctx context.Context, events []domain.Event) error {
	var errs []error
	for _, p := range ps {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
