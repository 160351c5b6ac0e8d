package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"eventpay/internal/cache"
	"eventpay/internal/errors"
	"eventpay/internal/gateway"
	"eventpay/internal/model"
	"eventpay/internal/repository"
)

const verifyCacheTTL = 5 * time.Minute

// InitiatePaymentInput is a request to collect money for a registration.
// PaymentAmount may be less than TotalAmount (installment).
type InitiatePaymentInput struct {
	RegistrationID uuid.UUID
	EventID        uuid.UUID
	PayerAccount   string
	PayerName      string
	TotalAmount    decimal.Decimal
	PaymentAmount  decimal.Decimal
	Network        string
	Narration      string
}

// InitiatePaymentResult reports the synchronous outcome of an initiation.
type InitiatePaymentResult struct {
	TransactionReference string
	Status               model.PaymentRecordStatus
	Message              string
}

// CallbackResult reports what a webhook delivery resolved to.
type CallbackResult struct {
	RegistrationID       uuid.UUID
	TransactionReference string
	Status               model.PaymentRecordStatus
	AlreadyTerminal      bool
}

// VerificationResult answers "what is the truth right now" for a registration.
// Confirmed covers both paid and partial: money has landed, possibly not all
// of it yet.
type VerificationResult struct {
	Status           string                          `json:"status"` // pending | confirmed | failed
	IsConfirmed      bool                            `json:"is_confirmed"`
	IsFailed         bool                            `json:"is_failed"`
	PaymentStatus    model.RegistrationPaymentStatus `json:"payment_status"`
	TotalAmount      decimal.Decimal                 `json:"total_amount"`
	AmountPaid       decimal.Decimal                 `json:"amount_paid"`
	BalanceRemaining decimal.Decimal                 `json:"balance_remaining"`
	Message          string                          `json:"message"`
}

// PaymentService is the payment reconciliation engine. Initiation, callback,
// and verification all funnel through the same normalization and ledger logic
// so the outcome converges regardless of arrival order.
type PaymentService interface {
	InitiatePayment(ctx context.Context, input InitiatePaymentInput) (*InitiatePaymentResult, error)
	HandleCallback(ctx context.Context, payload json.RawMessage) (*CallbackResult, error)
	VerifyPayment(ctx context.Context, registrationID uuid.UUID, referenceHint string) (*VerificationResult, error)
}

type paymentService struct {
	registrationRepo repository.RegistrationRepository
	recordRepo       repository.PaymentRecordRepository
	auditRepo        repository.PaymentAuditLogRepository
	gateway          gateway.Client
	cache            *cache.Client
	normalizer       *StatusNormalizer

	// Serializes in-process writers per registration. The conditional SQL
	// updates are the real guard; this just cuts useless CAS contention.
	registrationMutexes sync.Map

	// Channel for async audit logging
	logChannel chan model.PaymentAuditLog
}

// NewPaymentService creates the reconciliation engine.
func NewPaymentService(
	registrationRepo repository.RegistrationRepository,
	recordRepo repository.PaymentRecordRepository,
	auditRepo repository.PaymentAuditLogRepository,
	gw gateway.Client,
	cache *cache.Client,
) PaymentService {
	service := &paymentService{
		registrationRepo: registrationRepo,
		recordRepo:       recordRepo,
		auditRepo:        auditRepo,
		gateway:          gw,
		cache:            cache,
		normalizer:       NewStatusNormalizer(),
		logChannel:       make(chan model.PaymentAuditLog, 100),
	}

	// Start async audit log worker
	go service.logWorker(context.Background())

	return service
}

// getMutex returns a mutex for a specific registration ID.
func (s *paymentService) getMutex(registrationID uuid.UUID) *sync.Mutex {
	key := registrationID.String()
	value, _ := s.registrationMutexes.LoadOrStore(key, &sync.Mutex{})
	return value.(*sync.Mutex)
}

// logWorker batches audit log writes off the request path.
func (s *paymentService) logWorker(ctx context.Context) {
	batch := make([]model.PaymentAuditLog, 0, 10)
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case entry, ok := <-s.logChannel:
			if !ok {
				if len(batch) > 0 {
					_ = s.auditRepo.CreateBatch(ctx, batch)
				}
				return
			}
			batch = append(batch, entry)
			if len(batch) >= 10 {
				_ = s.auditRepo.CreateBatch(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				_ = s.auditRepo.CreateBatch(ctx, batch)
				batch = batch[:0]
			}
		case <-ctx.Done():
			return
		}
	}
}

// audit queues an audit entry, falling back to a synchronous write when the
// channel is full.
func (s *paymentService) audit(ctx context.Context, recordID, registrationID uuid.UUID, source model.AuditSource, status model.PaymentRecordStatus, rawStatus, errMsg string) {
	entry := model.PaymentAuditLog{
		PaymentRecordID: recordID,
		RegistrationID:  registrationID,
		Source:          source,
		Status:          status,
		RawStatus:       rawStatus,
		ErrorMessage:    errMsg,
	}
	select {
	case s.logChannel <- entry:
	default:
		_ = s.auditRepo.Create(ctx, &entry)
	}
}

// InitiatePayment validates the request, calls the gateway exactly once,
// persists the attempt, and settles the ledger immediately when the gateway
// replies terminally. A gateway failure still leaves a persisted record so a
// late callback or a poll can finish the job.
func (s *paymentService) InitiatePayment(ctx context.Context, input InitiatePaymentInput) (*InitiatePaymentResult, error) {
	if input.RegistrationID == uuid.Nil {
		return nil, errors.ErrRegistrationNotFound
	}
	if input.PayerAccount == "" {
		return nil, errors.ErrMissingPayerAccount
	}
	if input.Network == "" {
		return nil, errors.ErrMissingNetwork
	}
	if input.PaymentAmount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.ErrInvalidAmount
	}

	registration, err := s.registrationRepo.FindByID(ctx, input.RegistrationID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("find registration: %w", err)
	}

	// The declared total owns the ledger's total_amount; it never decreases.
	if input.TotalAmount.GreaterThan(decimal.Zero) {
		if err := s.registrationRepo.EnsureTotalAmount(ctx, registration.ID, input.TotalAmount); err != nil {
			return nil, fmt.Errorf("set total amount: %w", err)
		}
	}

	// Local reference first so the record always has a correlation key even
	// when the gateway reply carries none.
	reference := gateway.NewReference()
	result, gatewayErr := s.gateway.Collect(ctx, gateway.CollectionRequest{
		PayerAccount: input.PayerAccount,
		PayerName:    input.PayerName,
		Amount:       input.PaymentAmount,
		Network:      input.Network,
		Narration:    input.Narration,
		Reference:    reference,
	})

	var raw json.RawMessage
	if result != nil {
		raw = result.RawResponse
		if result.Reference != "" {
			reference = result.Reference
		}
	}

	status, rawToken := s.normalizer.NormalizeRaw(raw)
	if gatewayErr != nil && status == model.PaymentRecordStatusCompleted {
		// A rejected call can never count as money received.
		status = model.PaymentRecordStatusPending
	}

	mutex := s.getMutex(registration.ID)
	mutex.Lock()
	defer mutex.Unlock()

	// The record is always created pending and only moved to a terminal state
	// through the settle path below, so the status CAS and the ledger write it
	// gates share one transaction even when the gateway settles synchronously.
	record := &model.PaymentRecord{
		RegistrationID:        registration.ID,
		TransactionReference:  reference,
		PayerAccount:          input.PayerAccount,
		Network:               input.Network,
		Amount:                input.PaymentAmount,
		Status:                model.PaymentRecordStatusPending,
		Narration:             input.Narration,
		RawInitiationResponse: raw,
	}
	if err := s.recordRepo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("create payment record: %w", err)
	}

	errMsg := ""
	if gatewayErr != nil {
		errMsg = gatewayErr.Error()
	}
	s.audit(ctx, record.ID, registration.ID, model.AuditSourceInitiation, status, rawToken, errMsg)

	// A stale failed verdict must not be served while a fresh attempt runs.
	_ = s.cache.Delete(ctx, verifyCacheKey(registration.ID))

	if status.Terminal() {
		// Some gateways settle synchronously; do not wait for a callback
		// that may never come.
		if _, err := s.settleRecord(ctx, record, status); err != nil {
			return nil, err
		}
	} else {
		// A fresh attempt supersedes an earlier failure.
		if err := s.registrationRepo.MarkPaymentPending(ctx, registration.ID); err != nil {
			return nil, fmt.Errorf("mark payment pending: %w", err)
		}
	}

	out := &InitiatePaymentResult{
		TransactionReference: reference,
		Status:               status,
		Message:              initiationMessage(status),
	}
	if gatewayErr != nil {
		return out, gatewayErr
	}
	return out, nil
}

// HandleCallback applies an asynchronous gateway delivery. Safe to apply any
// number of times: the payload is always recorded for audit, but a terminal
// record never changes and the ledger is only credited by the call that wins
// the pending->terminal transition.
func (s *paymentService) HandleCallback(ctx context.Context, payload json.RawMessage) (*CallbackResult, error) {
	var decoded map[string]interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("decode callback: %w", err)
	}

	record, err := s.lookupCallbackRecord(ctx, decoded)
	if err != nil {
		return nil, err
	}

	mutex := s.getMutex(record.RegistrationID)
	mutex.Lock()
	defer mutex.Unlock()

	// Keep the delivery verbatim even when it changes nothing.
	if err := s.recordRepo.AttachCallbackResponse(ctx, record.ID, payload); err != nil {
		return nil, fmt.Errorf("attach callback: %w", err)
	}

	status, rawToken := s.normalizer.Normalize(decoded)
	s.audit(ctx, record.ID, record.RegistrationID, model.AuditSourceCallback, status, rawToken, "")

	if record.Status.Terminal() {
		// A delivery that contradicts the settled state is rejected, not
		// applied. A duplicate of the same verdict is acknowledged.
		if status.Terminal() && status != record.Status {
			return nil, errors.ErrReconciliationConflict
		}
		return &CallbackResult{
			RegistrationID:       record.RegistrationID,
			TransactionReference: record.TransactionReference,
			Status:               record.Status,
			AlreadyTerminal:      true,
		}, nil
	}

	finalStatus, err := s.settleRecord(ctx, record, status)
	if err != nil {
		return nil, err
	}
	return &CallbackResult{
		RegistrationID:       record.RegistrationID,
		TransactionReference: record.TransactionReference,
		Status:               finalStatus,
	}, nil
}

// VerifyPayment reconciles from stored data only; it never calls the gateway.
// When both raw payloads exist and disagree, the callback response wins: it is
// the later truth. Safe to call arbitrarily often and concurrently.
func (s *paymentService) VerifyPayment(ctx context.Context, registrationID uuid.UUID, referenceHint string) (*VerificationResult, error) {
	if registrationID == uuid.Nil {
		return nil, errors.ErrRegistrationNotFound
	}

	// Only a confirmed verdict is safe to serve from cache: amount_paid never
	// decreases. A failed verdict is attempt-scoped and a fresh initiation
	// supersedes it, so failed and pending are always read from the ledger.
	cacheKey := verifyCacheKey(registrationID)
	var cached VerificationResult
	if s.cache.GetJSON(ctx, cacheKey, &cached) && cacheableVerdict(&cached) {
		return &cached, nil
	}

	registration, err := s.registrationRepo.FindByID(ctx, registrationID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("find registration: %w", err)
	}

	record, err := s.lookupVerificationRecord(ctx, registrationID, referenceHint)
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("find payment record: %w", err)
	}

	// No record yet (initiation write still in flight): the ledger's current
	// status is the best available answer, not an error.
	if record != nil && !record.Status.Terminal() {
		status, rawToken := s.reconcileStoredPayloads(record)
		s.audit(ctx, record.ID, registrationID, model.AuditSourceVerification, status, rawToken, "")

		if status.Terminal() {
			mutex := s.getMutex(registrationID)
			mutex.Lock()
			if _, err := s.settleRecord(ctx, record, status); err != nil {
				mutex.Unlock()
				return nil, err
			}
			mutex.Unlock()
		}
	}

	// Re-read the ledger after any settlement above.
	registration, err = s.registrationRepo.FindByID(ctx, registrationID)
	if err != nil {
		return nil, fmt.Errorf("reload registration: %w", err)
	}

	out := buildVerificationResult(registration)
	if cacheableVerdict(out) {
		s.cache.SetJSON(ctx, cacheKey, out, verifyCacheTTL)
	}
	return out, nil
}

func verifyCacheKey(registrationID uuid.UUID) string {
	return fmt.Sprintf("verify:%s", registrationID)
}

// cacheableVerdict reports whether a verification result may be cached and
// served without consulting the ledger. Confirmed is the only status that
// cannot regress; failed flips back to pending when a new attempt starts.
func cacheableVerdict(result *VerificationResult) bool {
	return result.IsConfirmed
}

// settleRecord applies a newly derived terminal status to the record and, only
// when this caller wins the CAS, to the ledger. Losing the CAS means another
// path already settled the attempt; that is the idempotence the three racing
// channels rely on. The CAS and the ledger write run in one transaction: a
// failed ledger write rolls the record back to pending, so a redelivery or a
// later verification re-attempts the credit instead of stranding it behind a
// terminal record.
func (s *paymentService) settleRecord(ctx context.Context, record *model.PaymentRecord, status model.PaymentRecordStatus) (model.PaymentRecordStatus, error) {
	if !status.Terminal() {
		return record.Status, nil
	}

	var won bool
	err := s.recordRepo.WithTransaction(ctx, func(records repository.PaymentRecordRepository, registrations repository.RegistrationRepository) error {
		var err error
		switch status {
		case model.PaymentRecordStatusCompleted:
			won, err = records.MarkCompleted(ctx, record.ID)
			if err != nil {
				return fmt.Errorf("mark completed: %w", err)
			}
			if won {
				if err := registrations.ApplyConfirmedPayment(ctx, record.RegistrationID, record.Amount); err != nil {
					return fmt.Errorf("apply confirmed payment: %w", err)
				}
			}
		case model.PaymentRecordStatusFailed:
			won, err = records.MarkFailed(ctx, record.ID)
			if err != nil {
				return fmt.Errorf("mark failed: %w", err)
			}
			if won {
				// Attempt-scoped: never erases money an earlier attempt confirmed.
				if _, err := registrations.MarkPaymentFailed(ctx, record.RegistrationID); err != nil {
					return fmt.Errorf("mark payment failed: %w", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return record.Status, err
	}

	if won && status == model.PaymentRecordStatusCompleted {
		_ = s.cache.Delete(ctx, verifyCacheKey(record.RegistrationID))
	}
	return status, nil
}

// reconcileStoredPayloads derives the freshest status a pending record's
// stored payloads support. Callback over initiation when both exist.
func (s *paymentService) reconcileStoredPayloads(record *model.PaymentRecord) (model.PaymentRecordStatus, string) {
	if len(record.RawCallbackResponse) > 0 {
		status, token := s.normalizer.NormalizeRaw(record.RawCallbackResponse)
		if status.Terminal() {
			return status, token
		}
	}
	return s.normalizer.NormalizeRaw(record.RawInitiationResponse)
}

// lookupCallbackRecord correlates a webhook to its payment record by
// transaction reference, falling back to the registration id when the
// reference is absent or unknown.
func (s *paymentService) lookupCallbackRecord(ctx context.Context, decoded map[string]interface{}) (*model.PaymentRecord, error) {
	if ref := extractCallbackReference(decoded); ref != "" {
		record, err := s.recordRepo.FindByTransactionReference(ctx, ref)
		if err == nil {
			return record, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("find by reference: %w", err)
		}
	}
	if regID := extractCallbackRegistrationID(decoded); regID != uuid.Nil {
		record, err := s.recordRepo.FindLatestByRegistration(ctx, regID)
		if err == nil {
			return record, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("find by registration: %w", err)
		}
	}
	return nil, errors.ErrPaymentRecordNotFound
}

func (s *paymentService) lookupVerificationRecord(ctx context.Context, registrationID uuid.UUID, referenceHint string) (*model.PaymentRecord, error) {
	if referenceHint != "" {
		record, err := s.recordRepo.FindByTransactionReference(ctx, referenceHint)
		if err == nil && record.RegistrationID == registrationID {
			return record, nil
		}
		// The hint is only a hint; fall through to the registration lookup.
	}
	return s.recordRepo.FindLatestByRegistration(ctx, registrationID)
}

func extractCallbackReference(decoded map[string]interface{}) string {
	scopes := []map[string]interface{}{decoded}
	if data, ok := decoded["data"].(map[string]interface{}); ok {
		scopes = append(scopes, data)
	}
	for _, scope := range scopes {
		for _, key := range []string{"transaction_reference", "transaction_id", "reference", "transactionid"} {
			if v, ok := scope[key].(string); ok && v != "" {
				return v
			}
		}
	}
	return ""
}

func extractCallbackRegistrationID(decoded map[string]interface{}) uuid.UUID {
	for _, key := range []string{"registration_id", "registrationId"} {
		if v, ok := decoded[key].(string); ok {
			if id, err := uuid.Parse(v); err == nil {
				return id
			}
		}
	}
	return uuid.Nil
}

func buildVerificationResult(registration *model.Registration) *VerificationResult {
	out := &VerificationResult{
		PaymentStatus:    registration.PaymentStatus,
		TotalAmount:      registration.TotalAmount,
		AmountPaid:       registration.AmountPaid,
		BalanceRemaining: registration.BalanceRemaining(),
	}
	switch {
	case registration.PaymentStatus.Confirmed():
		out.Status = "confirmed"
		out.IsConfirmed = true
		if registration.PaymentStatus == model.RegistrationPaymentPaid {
			out.Message = "Payment confirmed in full"
		} else {
			out.Message = fmt.Sprintf("Partial payment confirmed, %s remaining", out.BalanceRemaining)
		}
	case registration.PaymentStatus == model.RegistrationPaymentFailed:
		out.Status = "failed"
		out.IsFailed = true
		out.Message = "Payment failed"
	default:
		out.Status = "pending"
		out.Message = "Payment pending confirmation"
	}
	return out
}

func initiationMessage(status model.PaymentRecordStatus) string {
	switch status {
	case model.PaymentRecordStatusCompleted:
		return "Payment completed"
	case model.PaymentRecordStatusFailed:
		return "Payment failed"
	default:
		return "Payment initiated, awaiting confirmation"
	}
}
