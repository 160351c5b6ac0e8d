package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditSource identifies which reconciliation path produced a log entry.
type AuditSource string

const (
	AuditSourceInitiation   AuditSource = "initiation"
	AuditSourceCallback     AuditSource = "callback"
	AuditSourceVerification AuditSource = "verification"
)

// PaymentAuditLog records every status derivation for a payment attempt,
// regardless of whether it changed anything. Useful when a gateway disputes
// what it sent and when.
type PaymentAuditLog struct {
	ID              uuid.UUID           `json:"id" gorm:"type:char(36);primaryKey"`
	PaymentRecordID uuid.UUID           `json:"payment_record_id" gorm:"type:char(36);not null;index"`
	RegistrationID  uuid.UUID           `json:"registration_id" gorm:"type:char(36);not null;index"`
	Source          AuditSource         `json:"source" gorm:"type:varchar(20);not null"`
	Status          PaymentRecordStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	RawStatus       string              `json:"raw_status,omitempty" gorm:"size:255"`
	ErrorMessage    string              `json:"error_message,omitempty" gorm:"type:text"`
	CreatedAt       time.Time           `json:"created_at"`
	DeletedAt       gorm.DeletedAt      `json:"-" gorm:"index"`
}

// BeforeCreate sets UUID before creating the record.
func (l *PaymentAuditLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
