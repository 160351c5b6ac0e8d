package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentRecordStatus is the canonical status of a single payment attempt.
type PaymentRecordStatus string

const (
	PaymentRecordStatusPending   PaymentRecordStatus = "pending"
	PaymentRecordStatusCompleted PaymentRecordStatus = "completed"
	PaymentRecordStatusFailed    PaymentRecordStatus = "failed"
)

// Terminal reports whether the status is final. A terminal record must never
// move back to pending or flip to the other terminal state.
func (s PaymentRecordStatus) Terminal() bool {
	return s == PaymentRecordStatusCompleted || s == PaymentRecordStatusFailed
}

// PaymentRecord is one attempt to collect money for a registration. A
// registration may accumulate several records across retries and installments;
// the most recent by creation time is authoritative for its current attempt.
type PaymentRecord struct {
	ID                   uuid.UUID           `json:"id" gorm:"type:char(36);primaryKey"`
	RegistrationID       uuid.UUID           `json:"registration_id" gorm:"type:char(36);not null;index"`
	TransactionReference string              `json:"transaction_reference" gorm:"size:64;not null;uniqueIndex"`
	PayerAccount         string              `json:"payer_account" gorm:"size:32;not null"`
	Network              string              `json:"network" gorm:"size:20;not null"`
	Amount               decimal.Decimal     `json:"amount" gorm:"type:decimal(20,2);not null"`
	Status               PaymentRecordStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	Narration            string              `json:"narration,omitempty" gorm:"size:255"`

	// Gateway payloads are stored verbatim so verification can re-derive the
	// canonical status later without another gateway call.
	RawInitiationResponse json.RawMessage `json:"raw_initiation_response,omitempty" gorm:"type:json"`
	RawCallbackResponse   json.RawMessage `json:"raw_callback_response,omitempty" gorm:"type:json"`

	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Registration Registration `json:"-" gorm:"foreignKey:RegistrationID"`
}

// BeforeCreate sets UUID before creating the record.
func (p *PaymentRecord) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
