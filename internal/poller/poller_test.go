package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"eventpay/internal/service"
)

// scriptedVerifier replays a fixed sequence of verification results.
type scriptedVerifier struct {
	results []*service.VerificationResult
	errs    []error
	calls   int
}

func (v *scriptedVerifier) VerifyPayment(ctx context.Context, registrationID uuid.UUID, referenceHint string) (*service.VerificationResult, error) {
	i := v.calls
	if i >= len(v.results) {
		i = len(v.results) - 1
	}
	v.calls++
	var err error
	if i < len(v.errs) {
		err = v.errs[i]
	}
	return v.results[i], err
}

func pendingResult() *service.VerificationResult {
	return &service.VerificationResult{Status: "pending"}
}

func confirmedResult() *service.VerificationResult {
	return &service.VerificationResult{Status: "confirmed", IsConfirmed: true}
}

func failedResult() *service.VerificationResult {
	return &service.VerificationResult{Status: "failed", IsFailed: true}
}

func TestPoll_StopsOnConfirmation(t *testing.T) {
	verifier := &scriptedVerifier{
		results: []*service.VerificationResult{pendingResult(), pendingResult(), confirmedResult()},
	}
	o := New(verifier, time.Millisecond, 10)

	outcome, result, err := o.Poll(context.Background(), uuid.New(), "")

	assert.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, outcome)
	assert.True(t, result.IsConfirmed)
	assert.Equal(t, 3, verifier.calls)
}

func TestPoll_StopsOnFailure(t *testing.T) {
	verifier := &scriptedVerifier{
		results: []*service.VerificationResult{pendingResult(), failedResult()},
	}
	o := New(verifier, time.Millisecond, 10)

	outcome, result, err := o.Poll(context.Background(), uuid.New(), "")

	assert.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.True(t, result.IsFailed)
}

// Exhausting the budget without a verdict is timed out, not failed: the
// payment may still resolve through a late callback.
func TestPoll_ExhaustionIsTimedOutNotFailed(t *testing.T) {
	verifier := &scriptedVerifier{
		results: []*service.VerificationResult{pendingResult()},
	}
	o := New(verifier, time.Millisecond, 5)

	outcome, result, err := o.Poll(context.Background(), uuid.New(), "")

	assert.NoError(t, err)
	assert.Equal(t, OutcomeTimedOut, outcome)
	assert.Equal(t, "pending", result.Status)
	assert.Equal(t, 5, verifier.calls)
}

func TestPoll_TransientErrorsConsumeAttempts(t *testing.T) {
	verifier := &scriptedVerifier{
		results: []*service.VerificationResult{nil, confirmedResult()},
		errs:    []error{errors.New("db timeout"), nil},
	}
	o := New(verifier, time.Millisecond, 10)

	outcome, result, err := o.Poll(context.Background(), uuid.New(), "")

	assert.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, outcome)
	assert.NotNil(t, result)
	assert.Equal(t, 2, verifier.calls)
}

func TestPoll_AllAttemptsErrored(t *testing.T) {
	transient := errors.New("db timeout")
	verifier := &scriptedVerifier{
		results: []*service.VerificationResult{nil},
		errs:    []error{transient},
	}
	o := New(verifier, time.Millisecond, 3)

	outcome, result, err := o.Poll(context.Background(), uuid.New(), "")

	assert.Equal(t, OutcomeTimedOut, outcome)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, transient)
}

func TestPoll_ContextCancellation(t *testing.T) {
	verifier := &scriptedVerifier{
		results: []*service.VerificationResult{pendingResult()},
	}
	o := New(verifier, time.Hour, 10)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	outcome, result, err := o.Poll(ctx, uuid.New(), "")

	assert.Equal(t, OutcomeTimedOut, outcome)
	assert.Equal(t, "pending", result.Status)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_Defaults(t *testing.T) {
	o := New(&scriptedVerifier{results: []*service.VerificationResult{pendingResult()}}, 0, 0)
	assert.Equal(t, 3*time.Second, o.interval)
	assert.Equal(t, 20, o.maxAttempts)
}
