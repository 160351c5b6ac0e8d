package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"eventpay/internal/model"
)

// PaymentRecordRepository defines payment attempt persistence operations.
//
// The Mark* methods are compare-and-set primitives: they only apply when the
// record is still pending and report whether this call won the transition.
// Callback and verification race on the same rows, so every status write has
// to be a single conditional statement, never a read-modify-write.
type PaymentRecordRepository interface {
	Create(ctx context.Context, record *model.PaymentRecord) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.PaymentRecord, error)
	FindLatestByRegistration(ctx context.Context, registrationID uuid.UUID) (*model.PaymentRecord, error)
	FindByTransactionReference(ctx context.Context, reference string) (*model.PaymentRecord, error)
	AttachCallbackResponse(ctx context.Context, id uuid.UUID, raw json.RawMessage) error
	MarkCompleted(ctx context.Context, id uuid.UUID) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID) (bool, error)

	// WithTransaction runs fn inside one database transaction. The
	// repositories handed to fn write through that transaction, so a record
	// status CAS and the ledger write it gates commit or roll back together.
	WithTransaction(ctx context.Context, fn func(records PaymentRecordRepository, registrations RegistrationRepository) error) error
}

type paymentRecordRepository struct {
	db *gorm.DB
}

// NewPaymentRecordRepository creates a new payment record repository.
func NewPaymentRecordRepository(db *gorm.DB) PaymentRecordRepository {
	return &paymentRecordRepository{db: db}
}

// Create inserts a new payment attempt.
func (r *paymentRecordRepository) Create(ctx context.Context, record *model.PaymentRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// FindByID finds a payment record by ID.
func (r *paymentRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.PaymentRecord, error) {
	var record model.PaymentRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// FindLatestByRegistration returns the most recent attempt for a registration.
// The newest record is the authoritative one across retries.
func (r *paymentRecordRepository) FindLatestByRegistration(ctx context.Context, registrationID uuid.UUID) (*model.PaymentRecord, error) {
	var record model.PaymentRecord
	if err := r.db.WithContext(ctx).
		Where("registration_id = ?", registrationID).
		Order("created_at DESC").
		First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByTransactionReference finds a record by the gateway's correlation key.
func (r *paymentRecordRepository) FindByTransactionReference(ctx context.Context, reference string) (*model.PaymentRecord, error) {
	var record model.PaymentRecord
	if err := r.db.WithContext(ctx).Where("transaction_reference = ?", reference).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// AttachCallbackResponse stores the webhook payload verbatim. Always applied,
// even on terminal records, so duplicate callbacks stay auditable.
func (r *paymentRecordRepository) AttachCallbackResponse(ctx context.Context, id uuid.UUID, raw json.RawMessage) error {
	return r.db.WithContext(ctx).Model(&model.PaymentRecord{}).
		Where("id = ?", id).
		Update("raw_callback_response", []byte(raw)).Error
}

// MarkCompleted transitions pending -> completed. Returns true only for the
// caller that actually performed the transition.
func (r *paymentRecordRepository) MarkCompleted(ctx context.Context, id uuid.UUID) (bool, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&model.PaymentRecord{}).
		Where("id = ? AND status = ?", id, model.PaymentRecordStatusPending).
		Updates(map[string]interface{}{
			"status":       model.PaymentRecordStatusCompleted,
			"completed_at": &now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkFailed transitions pending -> failed. Returns true only for the caller
// that actually performed the transition.
func (r *paymentRecordRepository) MarkFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&model.PaymentRecord{}).
		Where("id = ? AND status = ?", id, model.PaymentRecordStatusPending).
		Updates(map[string]interface{}{
			"status":       model.PaymentRecordStatusFailed,
			"completed_at": &now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// WithTransaction runs fn with transactional views of the record and
// registration repositories. fn returning an error rolls everything back.
func (r *paymentRecordRepository) WithTransaction(ctx context.Context, fn func(records PaymentRecordRepository, registrations RegistrationRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&paymentRecordRepository{db: tx}, &registrationRepository{db: tx})
	})
}

// PaymentAuditLogRepository defines audit log persistence operations.
type PaymentAuditLogRepository interface {
	Create(ctx context.Context, log *model.PaymentAuditLog) error
	CreateBatch(ctx context.Context, logs []model.PaymentAuditLog) error
}

type paymentAuditLogRepository struct {
	db *gorm.DB
}

// NewPaymentAuditLogRepository creates a new audit log repository.
func NewPaymentAuditLogRepository(db *gorm.DB) PaymentAuditLogRepository {
	return &paymentAuditLogRepository{db: db}
}

// Create creates a single audit log entry.
func (r *paymentAuditLogRepository) Create(ctx context.Context, log *model.PaymentAuditLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// CreateBatch creates multiple audit log entries in one round trip.
func (r *paymentAuditLogRepository) CreateBatch(ctx context.Context, logs []model.PaymentAuditLog) error {
	if len(logs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(logs, 100).Error
}
