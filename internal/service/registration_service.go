package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"eventpay/internal/cache"
	"eventpay/internal/errors"
	"eventpay/internal/model"
	"eventpay/internal/repository"
)

const registrationCacheTTL = 1 * time.Minute

// CreateRegistrationInput is a request to register an attendee for an event.
type CreateRegistrationInput struct {
	EventID       uuid.UUID
	AttendeeName  string
	AttendeeEmail string
	AttendeePhone string
	// TotalAmount overrides the event price when set (group discounts etc).
	TotalAmount decimal.Decimal
}

// RegistrationService handles registration catalog operations.
type RegistrationService interface {
	CreateRegistration(ctx context.Context, input CreateRegistrationInput) (*model.Registration, error)
	GetRegistration(ctx context.Context, id uuid.UUID) (*model.Registration, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]model.Registration, error)
}

type registrationService struct {
	registrationRepo repository.RegistrationRepository
	eventRepo        repository.EventRepository
	cache            *cache.Client
}

// NewRegistrationService creates a new registration service.
func NewRegistrationService(registrationRepo repository.RegistrationRepository, eventRepo repository.EventRepository, cache *cache.Client) RegistrationService {
	return &registrationService{
		registrationRepo: registrationRepo,
		eventRepo:        eventRepo,
		cache:            cache,
	}
}

func (s *registrationService) cacheKey(id uuid.UUID) string {
	return fmt.Sprintf("registration:%s", id)
}

// CreateRegistration registers an attendee, defaulting the amount due to the
// event price.
func (s *registrationService) CreateRegistration(ctx context.Context, input CreateRegistrationInput) (*model.Registration, error) {
	event, err := s.eventRepo.FindByID(ctx, input.EventID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrEventNotFound
		}
		return nil, fmt.Errorf("find event: %w", err)
	}

	total := input.TotalAmount
	if total.LessThanOrEqual(decimal.Zero) {
		total = event.Price
	}

	registration := &model.Registration{
		EventID:       event.ID,
		AttendeeName:  input.AttendeeName,
		AttendeeEmail: input.AttendeeEmail,
		AttendeePhone: input.AttendeePhone,
		TotalAmount:   total,
		AmountPaid:    decimal.Zero,
		PaymentStatus: model.RegistrationPaymentPending,
	}
	if err := s.registrationRepo.Create(ctx, registration); err != nil {
		return nil, fmt.Errorf("create registration: %w", err)
	}
	return registration, nil
}

// GetRegistration retrieves a registration with a short-lived cache. Payment
// reconciliation reads the repository directly, so a briefly stale catalog
// read here is harmless.
func (s *registrationService) GetRegistration(ctx context.Context, id uuid.UUID) (*model.Registration, error) {
	var cached model.Registration
	if s.cache.GetJSON(ctx, s.cacheKey(id), &cached) {
		return &cached, nil
	}

	registration, err := s.registrationRepo.FindByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrRegistrationNotFound
		}
		return nil, err
	}

	s.cache.SetJSON(ctx, s.cacheKey(id), registration, registrationCacheTTL)
	return registration, nil
}

// ListByEvent lists registrations for an event.
func (s *registrationService) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]model.Registration, error) {
	return s.registrationRepo.ListByEvent(ctx, eventID)
}
