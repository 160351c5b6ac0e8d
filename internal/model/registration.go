package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RegistrationPaymentStatus is the derived ledger state of a registration.
type RegistrationPaymentStatus string

const (
	RegistrationPaymentPending RegistrationPaymentStatus = "pending"
	RegistrationPaymentPartial RegistrationPaymentStatus = "partial"
	RegistrationPaymentPaid    RegistrationPaymentStatus = "paid"
	RegistrationPaymentFailed  RegistrationPaymentStatus = "failed"
)

// Confirmed reports whether any money has been confirmed for the registration.
func (s RegistrationPaymentStatus) Confirmed() bool {
	return s == RegistrationPaymentPaid || s == RegistrationPaymentPartial
}

// Registration is an attendee's registration for an event. It carries the
// payment ledger: TotalAmount is set once and never decreases, AmountPaid only
// grows, and PaymentStatus is derived from the two.
type Registration struct {
	ID            uuid.UUID                 `json:"id" gorm:"type:char(36);primaryKey"`
	EventID       uuid.UUID                 `json:"event_id" gorm:"type:char(36);not null;index"`
	AttendeeName  string                    `json:"attendee_name" gorm:"size:255;not null"`
	AttendeeEmail string                    `json:"attendee_email" gorm:"size:255;index"`
	AttendeePhone string                    `json:"attendee_phone" gorm:"size:32"`
	TotalAmount   decimal.Decimal           `json:"total_amount" gorm:"type:decimal(20,2);not null;default:0"`
	AmountPaid    decimal.Decimal           `json:"amount_paid" gorm:"type:decimal(20,2);not null;default:0"`
	PaymentStatus RegistrationPaymentStatus `json:"payment_status" gorm:"type:varchar(20);not null;default:'pending';index"`
	CreatedAt     time.Time                 `json:"created_at"`
	UpdatedAt     time.Time                 `json:"updated_at"`
	DeletedAt     gorm.DeletedAt            `json:"-" gorm:"index"`

	// Relations
	Event Event `json:"-" gorm:"foreignKey:EventID"`
}

// BeforeCreate sets UUID before creating the record.
func (r *Registration) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// BalanceRemaining returns max(0, TotalAmount-AmountPaid).
func (r *Registration) BalanceRemaining() decimal.Decimal {
	balance := r.TotalAmount.Sub(r.AmountPaid)
	if balance.IsNegative() {
		return decimal.Zero
	}
	return balance
}

// SettleCredit applies a confirmed credit to the in-memory ledger: AmountPaid
// grows by amount and PaymentStatus is derived as paid when the total is
// covered (or zero), partial otherwise. The conditional update in the
// registration repository applies the same rule in a single SQL statement;
// this method is the reference for that derivation.
func (r *Registration) SettleCredit(amount decimal.Decimal) {
	r.AmountPaid = r.AmountPaid.Add(amount)
	if r.TotalAmount.IsZero() || r.AmountPaid.GreaterThanOrEqual(r.TotalAmount) {
		r.PaymentStatus = RegistrationPaymentPaid
	} else {
		r.PaymentStatus = RegistrationPaymentPartial
	}
}
