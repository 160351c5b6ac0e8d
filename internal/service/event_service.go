package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"eventpay/internal/cache"
	"eventpay/internal/errors"
	"eventpay/internal/model"
	"eventpay/internal/repository"
)

const eventCacheTTL = 5 * time.Minute

// EventService handles event catalog operations.
type EventService interface {
	CreateEvent(ctx context.Context, event *model.Event) error
	GetEvent(ctx context.Context, id uuid.UUID) (*model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
	SeedEvents(ctx context.Context, events []model.Event) (int, error)
}

type eventService struct {
	repo  repository.EventRepository
	cache *cache.Client
}

// NewEventService creates a new event service.
func NewEventService(repo repository.EventRepository, cache *cache.Client) EventService {
	return &eventService{repo: repo, cache: cache}
}

func (s *eventService) cacheKey(id uuid.UUID) string {
	return fmt.Sprintf("event:%s", id)
}

// CreateEvent creates a new event.
func (s *eventService) CreateEvent(ctx context.Context, event *model.Event) error {
	if err := s.repo.Create(ctx, event); err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	_ = s.cache.Delete(ctx, s.cacheKey(event.ID))
	return nil
}

// GetEvent retrieves an event by ID with caching.
func (s *eventService) GetEvent(ctx context.Context, id uuid.UUID) (*model.Event, error) {
	var cached model.Event
	if s.cache.GetJSON(ctx, s.cacheKey(id), &cached) {
		return &cached, nil
	}

	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrEventNotFound
		}
		return nil, err
	}

	s.cache.SetJSON(ctx, s.cacheKey(id), event, eventCacheTTL)
	return event, nil
}

// ListEvents lists all active events.
func (s *eventService) ListEvents(ctx context.Context) ([]model.Event, error) {
	return s.repo.ListActive(ctx)
}

// SeedEvents creates or updates events from external data.
func (s *eventService) SeedEvents(ctx context.Context, events []model.Event) (int, error) {
	count := 0
	for _, event := range events {
		existing, err := s.repo.FindByID(ctx, event.ID)
		if err != nil && err != gorm.ErrRecordNotFound {
			return count, fmt.Errorf("seed event %s: %w", event.ID, err)
		}

		if existing != nil {
			existing.Title = event.Title
			existing.Description = event.Description
			existing.Venue = event.Venue
			existing.StartsAt = event.StartsAt
			existing.Price = event.Price
			existing.Active = event.Active
			if err := s.repo.Update(ctx, existing); err != nil {
				return count, fmt.Errorf("update event %s: %w", event.ID, err)
			}
		} else {
			if err := s.repo.Create(ctx, &event); err != nil {
				return count, fmt.Errorf("create event %s: %w", event.ID, err)
			}
		}

		_ = s.cache.Delete(ctx, s.cacheKey(event.ID))
		count++
	}
	return count, nil
}
