package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"

	"eventpay/internal/cache"
	apperrors "eventpay/internal/errors"
	"eventpay/internal/gateway"
	"eventpay/internal/model"
	"eventpay/internal/repository"
)

// MockRegistrationRepository is a mock implementation of RegistrationRepository.
type MockRegistrationRepository struct {
	mock.Mock
}

func (m *MockRegistrationRepository) Create(ctx context.Context, registration *model.Registration) error {
	args := m.Called(ctx, registration)
	return args.Error(0)
}

func (m *MockRegistrationRepository) Update(ctx context.Context, registration *model.Registration) error {
	args := m.Called(ctx, registration)
	return args.Error(0)
}

func (m *MockRegistrationRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Registration, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Registration), args.Error(1)
}

func (m *MockRegistrationRepository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]model.Registration, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Registration), args.Error(1)
}

func (m *MockRegistrationRepository) EnsureTotalAmount(ctx context.Context, id uuid.UUID, total decimal.Decimal) error {
	args := m.Called(ctx, id, total)
	return args.Error(0)
}

func (m *MockRegistrationRepository) ApplyConfirmedPayment(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	args := m.Called(ctx, id, amount)
	return args.Error(0)
}

func (m *MockRegistrationRepository) MarkPaymentFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockRegistrationRepository) MarkPaymentPending(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockPaymentRecordRepository is a mock implementation of PaymentRecordRepository.
type MockPaymentRecordRepository struct {
	mock.Mock
	// registrations stands in for the transactional registration repository
	// handed to WithTransaction callbacks.
	registrations repository.RegistrationRepository
}

func (m *MockPaymentRecordRepository) Create(ctx context.Context, record *model.PaymentRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockPaymentRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.PaymentRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentRecord), args.Error(1)
}

func (m *MockPaymentRecordRepository) FindLatestByRegistration(ctx context.Context, registrationID uuid.UUID) (*model.PaymentRecord, error) {
	args := m.Called(ctx, registrationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentRecord), args.Error(1)
}

func (m *MockPaymentRecordRepository) FindByTransactionReference(ctx context.Context, reference string) (*model.PaymentRecord, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentRecord), args.Error(1)
}

func (m *MockPaymentRecordRepository) AttachCallbackResponse(ctx context.Context, id uuid.UUID, raw json.RawMessage) error {
	args := m.Called(ctx, id, raw)
	return args.Error(0)
}

func (m *MockPaymentRecordRepository) MarkCompleted(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentRecordRepository) MarkFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentRecordRepository) WithTransaction(ctx context.Context, fn func(records repository.PaymentRecordRepository, registrations repository.RegistrationRepository) error) error {
	return fn(m, m.registrations)
}

// MockAuditLogRepository is a mock implementation of PaymentAuditLogRepository.
type MockAuditLogRepository struct {
	mock.Mock
}

func (m *MockAuditLogRepository) Create(ctx context.Context, log *model.PaymentAuditLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *MockAuditLogRepository) CreateBatch(ctx context.Context, logs []model.PaymentAuditLog) error {
	args := m.Called(ctx, logs)
	return args.Error(0)
}

// MockGatewayClient is a mock implementation of gateway.Client.
type MockGatewayClient struct {
	mock.Mock
}

func (m *MockGatewayClient) Collect(ctx context.Context, req gateway.CollectionRequest) (*gateway.CollectionResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.CollectionResult), args.Error(1)
}

var _ repository.RegistrationRepository = (*MockRegistrationRepository)(nil)
var _ repository.PaymentRecordRepository = (*MockPaymentRecordRepository)(nil)
var _ repository.PaymentAuditLogRepository = (*MockAuditLogRepository)(nil)
var _ gateway.Client = (*MockGatewayClient)(nil)

type paymentTestEnv struct {
	regRepo *MockRegistrationRepository
	recRepo *MockPaymentRecordRepository
	auditRepo *MockAuditLogRepository
	gateway *MockGatewayClient
	service PaymentService
}

func newPaymentTestEnv() *paymentTestEnv {
	env := &paymentTestEnv{
		regRepo:   new(MockRegistrationRepository),
		recRepo:   new(MockPaymentRecordRepository),
		auditRepo: new(MockAuditLogRepository),
		gateway:   new(MockGatewayClient),
	}
	env.recRepo.registrations = env.regRepo
	// The async log worker may flush during or after a test.
	env.auditRepo.On("CreateBatch", mock.Anything, mock.Anything).Return(nil).Maybe()
	env.auditRepo.On("Create", mock.Anything, mock.Anything).Return(nil).Maybe()

	var nilCache *cache.Client
	env.service = NewPaymentService(env.regRepo, env.recRepo, env.auditRepo, env.gateway, nilCache)
	return env
}

func amountEq(expected string) interface{} {
	want, _ := decimal.NewFromString(expected)
	return mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(want) })
}

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func TestInitiatePayment_Validation(t *testing.T) {
	regID := uuid.New()

	tests := []struct {
		name          string
		input         InitiatePaymentInput
		expectedError error
	}{
		{
			name:          "missing registration id",
			input:         InitiatePaymentInput{PayerAccount: "0244000000", Network: "mtn", PaymentAmount: dec("80")},
			expectedError: apperrors.ErrRegistrationNotFound,
		},
		{
			name:          "missing payer account",
			input:         InitiatePaymentInput{RegistrationID: regID, Network: "mtn", PaymentAmount: dec("80")},
			expectedError: apperrors.ErrMissingPayerAccount,
		},
		{
			name:          "missing network",
			input:         InitiatePaymentInput{RegistrationID: regID, PayerAccount: "0244000000", PaymentAmount: dec("80")},
			expectedError: apperrors.ErrMissingNetwork,
		},
		{
			name:          "non-positive amount",
			input:         InitiatePaymentInput{RegistrationID: regID, PayerAccount: "0244000000", Network: "mtn", PaymentAmount: dec("0")},
			expectedError: apperrors.ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newPaymentTestEnv()

			result, err := env.service.InitiatePayment(context.Background(), tt.input)

			assert.ErrorIs(t, err, tt.expectedError)
			assert.Nil(t, result)
			// Validation failures must never reach the gateway.
			env.gateway.AssertNotCalled(t, "Collect")
		})
	}
}

// Scenario: the gateway settles synchronously. The ledger must be credited
// immediately instead of waiting for a callback that will never come.
func TestInitiatePayment_SynchronousSuccess(t *testing.T) {
	env := newPaymentTestEnv()
	regID := uuid.New()

	env.regRepo.On("FindByID", mock.Anything, regID).
		Return(&model.Registration{ID: regID, PaymentStatus: model.RegistrationPaymentPending}, nil)
	env.regRepo.On("EnsureTotalAmount", mock.Anything, regID, amountEq("80")).Return(nil)
	env.gateway.On("Collect", mock.Anything, mock.AnythingOfType("gateway.CollectionRequest")).
		Return(&gateway.CollectionResult{
			Reference:   "TX-100",
			RawResponse: json.RawMessage(`{"status":"success"}`),
		}, nil)

	var created *model.PaymentRecord
	env.recRepo.On("Create", mock.Anything, mock.AnythingOfType("*model.PaymentRecord")).
		Run(func(args mock.Arguments) {
			created = args.Get(1).(*model.PaymentRecord)
			created.ID = uuid.New()
		}).
		Return(nil)
	env.recRepo.On("MarkCompleted", mock.Anything, mock.Anything).Return(true, nil)
	env.regRepo.On("ApplyConfirmedPayment", mock.Anything, regID, amountEq("80")).Return(nil)

	result, err := env.service.InitiatePayment(context.Background(), InitiatePaymentInput{
		RegistrationID: regID,
		PayerAccount:   "0244000000",
		TotalAmount:    dec("80"),
		PaymentAmount:  dec("80"),
		Network:        "mtn",
	})

	assert.NoError(t, err)
	assert.Equal(t, "TX-100", result.TransactionReference)
	assert.Equal(t, model.PaymentRecordStatusCompleted, result.Status)

	assert.NotNil(t, created)
	assert.Equal(t, "TX-100", created.TransactionReference)

	env.regRepo.AssertExpectations(t)
	env.recRepo.AssertExpectations(t)
}

// Scenario: transport-level "success" with an awaiting-processing description
// stays pending; the later callback with code 000 completes it.
func TestInitiatePayment_AwaitingThenCallbackCompletes(t *testing.T) {
	env := newPaymentTestEnv()
	regID := uuid.New()
	awaitingRaw := json.RawMessage(`{"status":"success","data":{"collection":{"data":{"description":"Transaction initiated, awaiting processing"}}}}`)

	env.regRepo.On("FindByID", mock.Anything, regID).
		Return(&model.Registration{ID: regID, PaymentStatus: model.RegistrationPaymentPending}, nil)
	env.regRepo.On("EnsureTotalAmount", mock.Anything, regID, amountEq("80")).Return(nil)
	env.gateway.On("Collect", mock.Anything, mock.Anything).
		Return(&gateway.CollectionResult{Reference: "TX-200", RawResponse: awaitingRaw}, nil)

	var created *model.PaymentRecord
	env.recRepo.On("Create", mock.Anything, mock.AnythingOfType("*model.PaymentRecord")).
		Run(func(args mock.Arguments) { created = args.Get(1).(*model.PaymentRecord) }).
		Return(nil)
	env.regRepo.On("MarkPaymentPending", mock.Anything, regID).Return(nil)

	result, err := env.service.InitiatePayment(context.Background(), InitiatePaymentInput{
		RegistrationID: regID,
		PayerAccount:   "0244000000",
		TotalAmount:    dec("80"),
		PaymentAmount:  dec("80"),
		Network:        "mtn",
	})

	assert.NoError(t, err)
	assert.Equal(t, model.PaymentRecordStatusPending, result.Status)
	assert.Equal(t, model.PaymentRecordStatusPending, created.Status)
	assert.Nil(t, created.CompletedAt)

	// Callback arrives with the gateway's confirmation code.
	created.ID = uuid.New()
	env.recRepo.On("FindByTransactionReference", mock.Anything, "TX-200").Return(created, nil)
	env.recRepo.On("AttachCallbackResponse", mock.Anything, created.ID, mock.Anything).Return(nil)
	env.recRepo.On("MarkCompleted", mock.Anything, created.ID).Return(true, nil)
	env.regRepo.On("ApplyConfirmedPayment", mock.Anything, regID, amountEq("80")).Return(nil)

	cbResult, err := env.service.HandleCallback(context.Background(), json.RawMessage(`{"transaction_id":"TX-200","status":"000"}`))

	assert.NoError(t, err)
	assert.Equal(t, model.PaymentRecordStatusCompleted, cbResult.Status)
	assert.False(t, cbResult.AlreadyTerminal)

	env.regRepo.AssertNumberOfCalls(t, "ApplyConfirmedPayment", 1)
}

// Scenario: the same confirmation callback delivered twice credits the ledger
// exactly once.
func TestHandleCallback_DuplicateDeliveryIsIdempotent(t *testing.T) {
	env := newPaymentTestEnv()
	regID := uuid.New()
	recordID := uuid.New()

	pending := &model.PaymentRecord{
		ID:                   recordID,
		RegistrationID:       regID,
		TransactionReference: "TX-300",
		Amount:               dec("120"),
		Status:               model.PaymentRecordStatusPending,
	}
	completed := &model.PaymentRecord{
		ID:                   recordID,
		RegistrationID:       regID,
		TransactionReference: "TX-300",
		Amount:               dec("120"),
		Status:               model.PaymentRecordStatusCompleted,
	}

	env.recRepo.On("FindByTransactionReference", mock.Anything, "TX-300").Return(pending, nil).Once()
	env.recRepo.On("FindByTransactionReference", mock.Anything, "TX-300").Return(completed, nil).Once()
	env.recRepo.On("AttachCallbackResponse", mock.Anything, recordID, mock.Anything).Return(nil).Times(2)
	env.recRepo.On("MarkCompleted", mock.Anything, recordID).Return(true, nil).Once()
	env.regRepo.On("ApplyConfirmedPayment", mock.Anything, regID, amountEq("120")).Return(nil).Once()

	payload := json.RawMessage(`{"transaction_id":"TX-300","status":"000"}`)

	first, err := env.service.HandleCallback(context.Background(), payload)
	assert.NoError(t, err)
	assert.Equal(t, model.PaymentRecordStatusCompleted, first.Status)

	second, err := env.service.HandleCallback(context.Background(), payload)
	assert.NoError(t, err)
	assert.Equal(t, model.PaymentRecordStatusCompleted, second.Status)
	assert.True(t, second.AlreadyTerminal)

	env.regRepo.AssertNumberOfCalls(t, "ApplyConfirmedPayment", 1)
	env.recRepo.AssertExpectations(t)
}

// Scenario: a failure callback for a later attempt must not erase money an
// earlier attempt already confirmed. The ledger guard refuses the downgrade.
func TestHandleCallback_FailureNeverErasesConfirmedPayment(t *testing.T) {
	env := newPaymentTestEnv()
	regID := uuid.New()
	recordID := uuid.New()

	retry := &model.PaymentRecord{
		ID:                   recordID,
		RegistrationID:       regID,
		TransactionReference: "TX-400",
		Amount:               dec("230"),
		Status:               model.PaymentRecordStatusPending,
	}

	env.recRepo.On("FindByTransactionReference", mock.Anything, "TX-400").Return(retry, nil)
	env.recRepo.On("AttachCallbackResponse", mock.Anything, recordID, mock.Anything).Return(nil)
	env.recRepo.On("MarkFailed", mock.Anything, recordID).Return(true, nil)
	// amount_paid > 0 on the ledger: the conditional update applies nothing.
	env.regRepo.On("MarkPaymentFailed", mock.Anything, regID).Return(false, nil)

	result, err := env.service.HandleCallback(context.Background(), json.RawMessage(`{"transaction_id":"TX-400","status":"failed"}`))

	assert.NoError(t, err)
	assert.Equal(t, model.PaymentRecordStatusFailed, result.Status)
	env.regRepo.AssertNotCalled(t, "ApplyConfirmedPayment")
	env.regRepo.AssertExpectations(t)
}

func TestHandleCallback_UnknownReferenceFallsBackToRegistration(t *testing.T) {
	env := newPaymentTestEnv()
	regID := uuid.New()
	recordID := uuid.New()

	record := &model.PaymentRecord{
		ID:                   recordID,
		RegistrationID:       regID,
		TransactionReference: "TX-500",
		Amount:               dec("50"),
		Status:               model.PaymentRecordStatusPending,
	}

	env.recRepo.On("FindByTransactionReference", mock.Anything, "GW-REF").Return(nil, gorm.ErrRecordNotFound)
	env.recRepo.On("FindLatestByRegistration", mock.Anything, regID).Return(record, nil)
	env.recRepo.On("AttachCallbackResponse", mock.Anything, recordID, mock.Anything).Return(nil)
	env.recRepo.On("MarkCompleted", mock.Anything, recordID).Return(true, nil)
	env.regRepo.On("ApplyConfirmedPayment", mock.Anything, regID, amountEq("50")).Return(nil)

	payload := json.RawMessage(`{"transaction_id":"GW-REF","registration_id":"` + regID.String() + `","status":"success"}`)
	result, err := env.service.HandleCallback(context.Background(), payload)

	assert.NoError(t, err)
	assert.Equal(t, model.PaymentRecordStatusCompleted, result.Status)
}

func TestHandleCallback_NoMatchingRecord(t *testing.T) {
	env := newPaymentTestEnv()

	env.recRepo.On("FindByTransactionReference", mock.Anything, "TX-999").Return(nil, gorm.ErrRecordNotFound)

	result, err := env.service.HandleCallback(context.Background(), json.RawMessage(`{"transaction_id":"TX-999","status":"success"}`))

	assert.ErrorIs(t, err, apperrors.ErrPaymentRecordNotFound)
	assert.Nil(t, result)
}

// Scenario: verification called before the initiation write has landed. The
// ledger's current status is the answer, not an error.
func TestVerifyPayment_NoRecordFallsBackToLedger(t *testing.T) {
	env := newPaymentTestEnv()
	regID := uuid.New()

	env.regRepo.On("FindByID", mock.Anything, regID).
		Return(&model.Registration{
			ID:            regID,
			TotalAmount:   dec("350"),
			AmountPaid:    decimal.Zero,
			PaymentStatus: model.RegistrationPaymentPending,
		}, nil)
	env.recRepo.On("FindLatestByRegistration", mock.Anything, regID).Return(nil, gorm.ErrRecordNotFound)

	result, err := env.service.VerifyPayment(context.Background(), regID, "")

	assert.NoError(t, err)
	assert.Equal(t, "pending", result.Status)
	assert.False(t, result.IsConfirmed)
	assert.False(t, result.IsFailed)
	assert.True(t, result.BalanceRemaining.Equal(dec("350")))
}

// Scenario: a stored callback payload that never got processed (or raced with
// the poll) is resolved by verification, through the same CAS gate.
func TestVerifyPayment_ResolvesPendingRecordFromStoredCallback(t *testing.T) {
	env := newPaymentTestEnv()
	regID := uuid.New()
	recordID := uuid.New()

	record := &model.PaymentRecord{
		ID:                    recordID,
		RegistrationID:        regID,
		TransactionReference:  "TX-600",
		Amount:                dec("80"),
		Status:                model.PaymentRecordStatusPending,
		RawInitiationResponse: json.RawMessage(`{"status":"success","data":{"collection":{"data":{"description":"Transaction initiated, awaiting processing"}}}}`),
		RawCallbackResponse:   json.RawMessage(`{"status":"000"}`),
	}

	env.regRepo.On("FindByID", mock.Anything, regID).
		Return(&model.Registration{ID: regID, TotalAmount: dec("80"), PaymentStatus: model.RegistrationPaymentPending}, nil).Once()
	env.recRepo.On("FindLatestByRegistration", mock.Anything, regID).Return(record, nil)
	env.recRepo.On("MarkCompleted", mock.Anything, recordID).Return(true, nil)
	env.regRepo.On("ApplyConfirmedPayment", mock.Anything, regID, amountEq("80")).Return(nil)
	env.regRepo.On("FindByID", mock.Anything, regID).
		Return(&model.Registration{
			ID:            regID,
			TotalAmount:   dec("80"),
			AmountPaid:    dec("80"),
			PaymentStatus: model.RegistrationPaymentPaid,
		}, nil).Once()

	result, err := env.service.VerifyPayment(context.Background(), regID, "")

	assert.NoError(t, err)
	assert.Equal(t, "confirmed", result.Status)
	assert.True(t, result.IsConfirmed)
	assert.Equal(t, model.RegistrationPaymentPaid, result.PaymentStatus)
	assert.True(t, result.BalanceRemaining.IsZero())
}

// Scenario: verification loses the settle race against the callback path. The
// CAS refuses the second credit; the ledger is read fresh either way.
func TestVerifyPayment_LostSettleRaceDoesNotDoubleCredit(t *testing.T) {
	env := newPaymentTestEnv()
	regID := uuid.New()
	recordID := uuid.New()

	record := &model.PaymentRecord{
		ID:                  recordID,
		RegistrationID:      regID,
		TransactionReference: "TX-700",
		Amount:              dec("80"),
		Status:              model.PaymentRecordStatusPending,
		RawCallbackResponse: json.RawMessage(`{"status":"success"}`),
	}

	paid := &model.Registration{
		ID:            regID,
		TotalAmount:   dec("80"),
		AmountPaid:    dec("80"),
		PaymentStatus: model.RegistrationPaymentPaid,
	}

	env.regRepo.On("FindByID", mock.Anything, regID).Return(paid, nil)
	env.recRepo.On("FindLatestByRegistration", mock.Anything, regID).Return(record, nil)
	env.recRepo.On("MarkCompleted", mock.Anything, recordID).Return(false, nil)

	result, err := env.service.VerifyPayment(context.Background(), regID, "")

	assert.NoError(t, err)
	assert.Equal(t, "confirmed", result.Status)
	env.regRepo.AssertNotCalled(t, "ApplyConfirmedPayment")
}

// Scenario: partial payment reports confirmed-so-far with the open balance.
func TestVerifyPayment_PartialIsConfirmed(t *testing.T) {
	env := newPaymentTestEnv()
	regID := uuid.New()

	env.regRepo.On("FindByID", mock.Anything, regID).
		Return(&model.Registration{
			ID:            regID,
			TotalAmount:   dec("350"),
			AmountPaid:    dec("120"),
			PaymentStatus: model.RegistrationPaymentPartial,
		}, nil)
	env.recRepo.On("FindLatestByRegistration", mock.Anything, regID).
		Return(&model.PaymentRecord{
			ID:             uuid.New(),
			RegistrationID: regID,
			Status:         model.PaymentRecordStatusCompleted,
		}, nil)

	result, err := env.service.VerifyPayment(context.Background(), regID, "")

	assert.NoError(t, err)
	assert.Equal(t, "confirmed", result.Status)
	assert.True(t, result.IsConfirmed)
	assert.Equal(t, model.RegistrationPaymentPartial, result.PaymentStatus)
	assert.True(t, result.BalanceRemaining.Equal(dec("230")))
}

func TestInitiatePayment_GatewayUnreachableStillPersistsAttempt(t *testing.T) {
	env := newPaymentTestEnv()
	regID := uuid.New()

	env.regRepo.On("FindByID", mock.Anything, regID).
		Return(&model.Registration{ID: regID, PaymentStatus: model.RegistrationPaymentPending}, nil)
	env.regRepo.On("EnsureTotalAmount", mock.Anything, regID, amountEq("80")).Return(nil)
	env.gateway.On("Collect", mock.Anything, mock.Anything).
		Return(nil, &apperrors.GatewayError{Kind: "unreachable", Detail: "dial tcp: connection refused"})

	var created *model.PaymentRecord
	env.recRepo.On("Create", mock.Anything, mock.AnythingOfType("*model.PaymentRecord")).
		Run(func(args mock.Arguments) { created = args.Get(1).(*model.PaymentRecord) }).
		Return(nil)
	env.regRepo.On("MarkPaymentPending", mock.Anything, regID).Return(nil)

	result, err := env.service.InitiatePayment(context.Background(), InitiatePaymentInput{
		RegistrationID: regID,
		PayerAccount:   "0244000000",
		TotalAmount:    dec("80"),
		PaymentAmount:  dec("80"),
		Network:        "vodafone",
	})

	ge, ok := apperrors.IsGatewayError(err)
	assert.True(t, ok)
	assert.Equal(t, "unreachable", ge.Kind)

	// The attempt is persisted pending so a late callback can still land.
	assert.NotNil(t, created)
	assert.Equal(t, model.PaymentRecordStatusPending, created.Status)
	assert.True(t, strings.HasPrefix(created.TransactionReference, "EVP-"))
	assert.Equal(t, result.TransactionReference, created.TransactionReference)
}

func TestInitiatePayment_RejectedReplyNeverCountsAsPaid(t *testing.T) {
	env := newPaymentTestEnv()
	regID := uuid.New()

	env.regRepo.On("FindByID", mock.Anything, regID).
		Return(&model.Registration{ID: regID, PaymentStatus: model.RegistrationPaymentPending}, nil)
	env.regRepo.On("EnsureTotalAmount", mock.Anything, regID, amountEq("80")).Return(nil)
	// A confirmation-shaped body on a rejected call must not credit anything.
	env.gateway.On("Collect", mock.Anything, mock.Anything).
		Return(&gateway.CollectionResult{
			Reference:   "TX-800",
			RawResponse: json.RawMessage(`{"status":"success"}`),
		}, &apperrors.GatewayError{Kind: "rejected", Detail: "status 500"})

	env.recRepo.On("Create", mock.Anything, mock.AnythingOfType("*model.PaymentRecord")).Return(nil)
	env.regRepo.On("MarkPaymentPending", mock.Anything, regID).Return(nil)

	result, err := env.service.InitiatePayment(context.Background(), InitiatePaymentInput{
		RegistrationID: regID,
		PayerAccount:   "0244000000",
		TotalAmount:    dec("80"),
		PaymentAmount:  dec("80"),
		Network:        "mtn",
	})

	_, ok := apperrors.IsGatewayError(err)
	assert.True(t, ok)
	assert.Equal(t, model.PaymentRecordStatusPending, result.Status)
	env.regRepo.AssertNotCalled(t, "ApplyConfirmedPayment")
}

func TestInitiatePayment_FailureReplyMarksAttemptFailed(t *testing.T) {
	env := newPaymentTestEnv()
	regID := uuid.New()

	env.regRepo.On("FindByID", mock.Anything, regID).
		Return(&model.Registration{ID: regID, PaymentStatus: model.RegistrationPaymentPending}, nil)
	env.regRepo.On("EnsureTotalAmount", mock.Anything, regID, amountEq("80")).Return(nil)
	env.gateway.On("Collect", mock.Anything, mock.Anything).
		Return(&gateway.CollectionResult{
			Reference:   "TX-900",
			RawResponse: json.RawMessage(`{"status":"declined"}`),
		}, nil)

	env.recRepo.On("Create", mock.Anything, mock.AnythingOfType("*model.PaymentRecord")).
		Run(func(args mock.Arguments) { args.Get(1).(*model.PaymentRecord).ID = uuid.New() }).
		Return(nil)
	env.recRepo.On("MarkFailed", mock.Anything, mock.Anything).Return(true, nil)
	env.regRepo.On("MarkPaymentFailed", mock.Anything, regID).Return(true, nil)

	result, err := env.service.InitiatePayment(context.Background(), InitiatePaymentInput{
		RegistrationID: regID,
		PayerAccount:   "0244000000",
		TotalAmount:    dec("80"),
		PaymentAmount:  dec("80"),
		Network:        "mtn",
	})

	assert.NoError(t, err)
	assert.Equal(t, model.PaymentRecordStatusFailed, result.Status)
	env.regRepo.AssertNotCalled(t, "ApplyConfirmedPayment")
	env.regRepo.AssertExpectations(t)
}

// Scenario: the ledger write fails after the record CAS. The transaction rolls
// the record back to pending, so the redelivered callback re-attempts the
// credit instead of short-circuiting on a terminal record with no money behind
// it.
func TestHandleCallback_LedgerWriteFailureIsRetriedOnRedelivery(t *testing.T) {
	env := newPaymentTestEnv()
	regID := uuid.New()
	recordID := uuid.New()

	pending := func() *model.PaymentRecord {
		return &model.PaymentRecord{
			ID:                   recordID,
			RegistrationID:       regID,
			TransactionReference: "TX-1000",
			Amount:               dec("80"),
			Status:               model.PaymentRecordStatusPending,
		}
	}

	// First delivery: CAS wins, the credit fails, everything rolls back.
	env.recRepo.On("FindByTransactionReference", mock.Anything, "TX-1000").Return(pending(), nil).Once()
	env.recRepo.On("AttachCallbackResponse", mock.Anything, recordID, mock.Anything).Return(nil)
	env.recRepo.On("MarkCompleted", mock.Anything, recordID).Return(true, nil).Once()
	env.regRepo.On("ApplyConfirmedPayment", mock.Anything, regID, amountEq("80")).
		Return(errors.New("deadlock")).Once()

	payload := json.RawMessage(`{"transaction_id":"TX-1000","status":"000"}`)

	_, err := env.service.HandleCallback(context.Background(), payload)
	assert.Error(t, err)

	// Redelivery: the record is still pending after the rollback and the
	// credit lands this time.
	env.recRepo.On("FindByTransactionReference", mock.Anything, "TX-1000").Return(pending(), nil).Once()
	env.recRepo.On("MarkCompleted", mock.Anything, recordID).Return(true, nil).Once()
	env.regRepo.On("ApplyConfirmedPayment", mock.Anything, regID, amountEq("80")).Return(nil).Once()

	result, err := env.service.HandleCallback(context.Background(), payload)

	assert.NoError(t, err)
	assert.Equal(t, model.PaymentRecordStatusCompleted, result.Status)
	assert.False(t, result.AlreadyTerminal)
	env.regRepo.AssertNumberOfCalls(t, "ApplyConfirmedPayment", 2)
	env.recRepo.AssertExpectations(t)
}

// Scenario: a callback contradicting a settled record is rejected, never
// applied. A duplicate of the same verdict stays a no-op acknowledgement.
func TestHandleCallback_ContradictoryTerminalCallbackRejected(t *testing.T) {
	env := newPaymentTestEnv()
	regID := uuid.New()
	recordID := uuid.New()

	completed := &model.PaymentRecord{
		ID:                   recordID,
		RegistrationID:       regID,
		TransactionReference: "TX-1100",
		Amount:               dec("80"),
		Status:               model.PaymentRecordStatusCompleted,
	}

	env.recRepo.On("FindByTransactionReference", mock.Anything, "TX-1100").Return(completed, nil)
	env.recRepo.On("AttachCallbackResponse", mock.Anything, recordID, mock.Anything).Return(nil)

	result, err := env.service.HandleCallback(context.Background(), json.RawMessage(`{"transaction_id":"TX-1100","status":"failed"}`))

	assert.ErrorIs(t, err, apperrors.ErrReconciliationConflict)
	assert.Nil(t, result)
	env.recRepo.AssertNotCalled(t, "MarkFailed")
	env.regRepo.AssertNotCalled(t, "MarkPaymentFailed")
}

// Only confirmed verdicts may be served from cache: a cached failed would go
// stale the moment a retry flips the ledger back to pending.
func TestCacheableVerdict_OnlyConfirmed(t *testing.T) {
	assert.True(t, cacheableVerdict(&VerificationResult{Status: "confirmed", IsConfirmed: true}))
	assert.False(t, cacheableVerdict(&VerificationResult{Status: "failed", IsFailed: true}))
	assert.False(t, cacheableVerdict(&VerificationResult{Status: "pending"}))
}
