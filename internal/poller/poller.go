// Package poller drives client-side verification polling: it re-asks the
// reconciliation engine for the current truth on an interval, bounded by an
// attempt budget. Exhausting the budget is "timed out", not "failed", because
// the payment may still resolve later through a callback.
package poller

import (
	"context"
	"time"

	"github.com/google/uuid"

	"eventpay/internal/service"
)

// Outcome is the terminal result of a polling run.
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimedOut  Outcome = "timed_out"
)

// Verifier is the slice of the payment service the poller needs.
type Verifier interface {
	VerifyPayment(ctx context.Context, registrationID uuid.UUID, referenceHint string) (*service.VerificationResult, error)
}

// Orchestrator polls verification until a terminal status or exhaustion.
type Orchestrator struct {
	verifier    Verifier
	interval    time.Duration
	maxAttempts int
}

// New creates an orchestrator. Defaults: 3s interval, 20 attempts.
func New(verifier Verifier, interval time.Duration, maxAttempts int) *Orchestrator {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 20
	}
	return &Orchestrator{
		verifier:    verifier,
		interval:    interval,
		maxAttempts: maxAttempts,
	}
}

// Poll verifies repeatedly until the status is terminal, the attempt budget is
// spent, or ctx is cancelled. The last verification result is returned with
// the outcome when one was obtained. Transient verification errors consume an
// attempt; only a run where every attempt errored returns a non-nil error.
func (o *Orchestrator) Poll(ctx context.Context, registrationID uuid.UUID, referenceHint string) (Outcome, *service.VerificationResult, error) {
	var last *service.VerificationResult
	var lastErr error

	for attempt := 0; attempt < o.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return OutcomeTimedOut, last, ctx.Err()
			case <-time.After(o.interval):
			}
		}

		result, err := o.verifier.VerifyPayment(ctx, registrationID, referenceHint)
		if err != nil {
			lastErr = err
			continue
		}
		last = result
		lastErr = nil

		switch {
		case result.IsConfirmed:
			return OutcomeConfirmed, result, nil
		case result.IsFailed:
			return OutcomeFailed, result, nil
		}
	}

	if last == nil && lastErr != nil {
		return OutcomeTimedOut, nil, lastErr
	}
	return OutcomeTimedOut, last, nil
}
