// Package relay connects the automated browser session to a human operator.
// A CAPTCHA prompt is published as a status event carrying the cropped image;
// the answer arrives out-of-band through a run-keyed slot that the relay
// polls with a bounded budget.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrTimedOut reports that no answer arrived within the wait budget. The
// slot is left untouched so the orchestrator can retry the checkpoint with a
// fresh image.
var ErrTimedOut = errors.New("timed out waiting for captcha value")

// StatusAppender publishes progress events for a run.
type StatusAppender interface {
	AppendStatus(ctx context.Context, runID, message string, image []byte) error
}

// Relay implements the human-in-the-loop channel. It is single-consumer: the
// orchestrator must never have two prompts outstanding for the same run.
type Relay struct {
	slot   Slot
	status StatusAppender
	log    *zap.Logger
}

// New builds a relay over the given slot and status feed.
func New(slot Slot, status StatusAppender, logger *zap.Logger) *Relay {
	return &Relay{
		slot:   slot,
		status: status,
		log:    logger.Named("relay"),
	}
}

// Prompt publishes the CAPTCHA image and message to the run's status feed
// for the operator UI to display.
func (r *Relay) Prompt(ctx context.Context, runID string, image []byte, message string) error {
	if err := r.status.AppendStatus(ctx, runID, message, image); err != nil {
		return fmt.Errorf("publish captcha prompt: %w", err)
	}
	r.log.Info("Published captcha prompt", zap.String("run_id", runID), zap.Int("image_bytes", len(image)))
	return nil
}

// Await polls the slot until a value appears or timeout elapses. On success
// the value has already been consumed (read-then-clear), so a second Await
// without a new submission will time out.
func (r *Relay) Await(ctx context.Context, runID string, timeout, pollInterval time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)

	for {
		val, ok, err := r.slot.Take(ctx, runID)
		if err != nil {
			return "", err
		}
		if ok {
			r.log.Info("Received captcha value", zap.String("run_id", runID))
			return val, nil
		}
		if time.Now().Add(pollInterval).After(deadline) {
			return "", fmt.Errorf("run %s after %s: %w", runID, timeout, ErrTimedOut)
		}
		select {
		case <-time.After(pollInterval):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}
