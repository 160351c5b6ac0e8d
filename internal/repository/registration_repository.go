package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"eventpay/internal/model"
)

// RegistrationRepository defines registration persistence plus the ledger's
// conditional-write primitives. Ledger fields only move forward: total never
// decreases, amount paid never decreases, and a confirmed status is never
// overwritten by a failure.
type RegistrationRepository interface {
	Create(ctx context.Context, registration *model.Registration) error
	Update(ctx context.Context, registration *model.Registration) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Registration, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]model.Registration, error)

	// EnsureTotalAmount raises total_amount to total if it is currently lower.
	EnsureTotalAmount(ctx context.Context, id uuid.UUID, total decimal.Decimal) error
	// ApplyConfirmedPayment credits amount to the ledger and derives paid or
	// partial in the same statement. Must be called exactly once per confirmed
	// attempt; the payment record's pending->completed CAS is that gate.
	ApplyConfirmedPayment(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
	// MarkPaymentFailed flags the registration failed only while nothing has
	// been confirmed. A failed retry never erases partial or paid.
	MarkPaymentFailed(ctx context.Context, id uuid.UUID) (bool, error)
	// MarkPaymentPending moves failed back to pending when a fresh attempt
	// starts. Confirmed states are left alone.
	MarkPaymentPending(ctx context.Context, id uuid.UUID) error
}

type registrationRepository struct {
	db *gorm.DB
}

// NewRegistrationRepository creates a new registration repository.
func NewRegistrationRepository(db *gorm.DB) RegistrationRepository {
	return &registrationRepository{db: db}
}

// Create creates a new registration.
func (r *registrationRepository) Create(ctx context.Context, registration *model.Registration) error {
	return r.db.WithContext(ctx).Create(registration).Error
}

// Update updates an existing registration.
func (r *registrationRepository) Update(ctx context.Context, registration *model.Registration) error {
	return r.db.WithContext(ctx).Save(registration).Error
}

// FindByID finds a registration by ID.
func (r *registrationRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Registration, error) {
	var registration model.Registration
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&registration).Error; err != nil {
		return nil, err
	}
	return &registration, nil
}

// ListByEvent lists registrations for an event.
func (r *registrationRepository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]model.Registration, error) {
	var registrations []model.Registration
	if err := r.db.WithContext(ctx).Where("event_id = ?", eventID).Find(&registrations).Error; err != nil {
		return nil, err
	}
	return registrations, nil
}

// EnsureTotalAmount raises total_amount to total if it is currently lower.
// A no-op when the stored total already matches or exceeds it.
func (r *registrationRepository) EnsureTotalAmount(ctx context.Context, id uuid.UUID, total decimal.Decimal) error {
	return r.db.WithContext(ctx).Model(&model.Registration{}).
		Where("id = ? AND total_amount < ?", id, total).
		Update("total_amount", total).Error
}

// ApplyConfirmedPayment credits the ledger atomically, applying the same
// derivation as Registration.SettleCredit. payment_status is assigned before
// amount_paid so both expressions read the pre-update value; MySQL applies SET
// clauses left to right.
func (r *registrationRepository) ApplyConfirmedPayment(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE registrations
		 SET payment_status = CASE
		       WHEN total_amount = 0 OR amount_paid + ? >= total_amount THEN 'paid'
		       ELSE 'partial'
		     END,
		     amount_paid = amount_paid + ?
		 WHERE id = ? AND deleted_at IS NULL`,
		amount, amount, id,
	).Error
}

// MarkPaymentFailed flags the registration failed only while no money has been
// confirmed. Returns whether the flag was applied.
func (r *registrationRepository) MarkPaymentFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Registration{}).
		Where("id = ? AND payment_status IN ? AND amount_paid = 0",
			id, []model.RegistrationPaymentStatus{model.RegistrationPaymentPending, model.RegistrationPaymentFailed}).
		Update("payment_status", model.RegistrationPaymentFailed)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkPaymentPending resets a failed registration to pending for a new attempt.
func (r *registrationRepository) MarkPaymentPending(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&model.Registration{}).
		Where("id = ? AND payment_status = ?", id, model.RegistrationPaymentFailed).
		Update("payment_status", model.RegistrationPaymentPending).Error
}
