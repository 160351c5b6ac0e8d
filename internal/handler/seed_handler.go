package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"eventpay/internal/model"
	"eventpay/internal/service"
)

// SeedHandler handles demo data endpoints.
type SeedHandler struct {
	eventService service.EventService
}

// NewSeedHandler creates a new seed handler.
func NewSeedHandler(eventService service.EventService) *SeedHandler {
	return &SeedHandler{eventService: eventService}
}

// SeedEventsResponse represents the seed response.
type SeedEventsResponse struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// SeedEvents godoc
// @Summary Seed demo events
// @Tags seed
// @Produce json
// @Success 200 {object} SeedEventsResponse
// @Failure 500 {object} map[string]string
// @Router /seed/events [get]
func (h *SeedHandler) SeedEvents(c echo.Context) error {
	events := demoEvents()
	count, err := h.eventService.SeedEvents(c.Request().Context(), events)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
	}

	return c.JSON(http.StatusOK, SeedEventsResponse{
		Message: "Events seeded successfully",
		Count:   count,
	})
}

func demoEvents() []model.Event {
	nextMonth := time.Now().AddDate(0, 1, 0)
	return []model.Event{
		{
			Title:       "Tech Summit",
			Description: "Annual developer conference",
			Venue:       "Accra International Conference Centre",
			StartsAt:    nextMonth,
			Price:       decimal.NewFromInt(350),
			Active:      true,
		},
		{
			Title:       "Startup Pitch Night",
			Description: "Monthly founders meetup",
			Venue:       "Impact Hub",
			StartsAt:    nextMonth.AddDate(0, 0, 7),
			Price:       decimal.NewFromInt(80),
			Active:      true,
		},
	}
}
