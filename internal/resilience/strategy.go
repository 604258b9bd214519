// Package resilience provides generic failure-handling building blocks:
// an ordered-strategy fallback combinator and transient-error
// classification.
package resilience

import (
	"context"
	"fmt"
)

// Strategy is one named way of producing a T. Strategies are evaluated in
// order by FirstSuccess; a strategy that fails hands over to the next one.
type Strategy[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// ExhaustedError reports that every strategy in the chain failed. It carries
// the name of the last strategy tried and its error.
type ExhaustedError struct {
	Attempts int
	LastName string
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d strategies exhausted, last %q: %v", e.Attempts, e.LastName, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// FirstSuccess evaluates strategies sequentially and returns the first
// successful result together with the winning strategy's name. Evaluation is
// strictly sequential, never parallel: the chain exists to look like a
// different client on each attempt, and racing attempts would amplify load
// against a service that may already be rate-limiting.
//
// onFailure, if non-nil, observes each failed attempt before the next
// strategy runs. Context cancellation stops the chain immediately.
func FirstSuccess[T any](ctx context.Context, strategies []Strategy[T], onFailure func(name string, err error)) (T, string, error) {
	var zero T
	var lastErr error
	lastName := ""

	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return zero, lastName, err
		}

		val, err := s.Run(ctx)
		if err == nil {
			return val, s.Name, nil
		}

		lastErr = err
		lastName = s.Name
		if onFailure != nil {
			onFailure(s.Name, err)
		}
	}

	return zero, lastName, &ExhaustedError{
		Attempts: len(strategies),
		LastName: lastName,
		Err:      lastErr,
	}
}
