package retry

import (
	"context"
	"time"
)

// Executor runs an operation, retrying transient failures with backoff.
type Executor struct {
	classifier Classifier
	backoff    *Backoff
	onRetry    func(attempt int, err error, delay time.Duration)
}

// NewExecutor creates a new retry executor.
func NewExecutor(classifier Classifier, backoff *Backoff) *Executor {
	return &Executor{
		classifier: classifier,
		backoff:    backoff,
	}
}

// WithOnRetry returns a copy of the executor that calls fn before each retry.
func (e *Executor) WithOnRetry(fn func(attempt int, err error, delay time.Duration)) *Executor {
	clone := *e
	clone.onRetry = fn
	return &clone
}

// Execute runs op until it succeeds, fails permanently, the retries are used up
// or ctx is done. It returns the last error.
func (e *Executor) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	err := op(ctx)

	for attempt := 0; attempt < e.backoff.MaxAttempts(); attempt++ {
		if err == nil || !e.classifier.IsTransient(err) {
			return err
		}

		delay := e.backoff.Delay(attempt)
		if e.onRetry != nil {
			e.onRetry(attempt+1, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		err = op(ctx)
	}

	return err
}
