package scrape

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrExhausted marks a checkpoint whose retry budget was consumed without a
// successful attempt.
var ErrExhausted = errors.New("checkpoint retry budget exhausted")

// stepOutcome tags the result of one attempt of a checkpointed step.
type stepOutcome int

const (
	// stepDone: the attempt succeeded, stop retrying.
	stepDone stepOutcome = iota
	// stepRetry: the attempt asked for another go (e.g. a CAPTCHA answer
	// timed out and the image must be re-captured).
	stepRetry
)

// withAttempts runs step up to maxAttempts times. An error returned by step
// is swallowed, logged, and counted against the budget; only context
// cancellation escapes early. Exhausting the budget fails with ErrExhausted.
func withAttempts(ctx context.Context, log *zap.Logger, name string, maxAttempts int, step func(ctx context.Context, attempt int) (stepOutcome, error)) error {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		out, err := step(ctx, attempt)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Info("Checkpoint attempt failed",
				zap.String("checkpoint", name),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", maxAttempts),
				zap.Error(err),
			)
			continue
		}
		if out == stepDone {
			return nil
		}
		log.Info("Checkpoint attempt retrying",
			zap.String("checkpoint", name),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
		)
	}
	return fmt.Errorf("%s: %w", name, ErrExhausted)
}
