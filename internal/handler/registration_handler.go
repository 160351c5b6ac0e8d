package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"eventpay/internal/errors"
	"eventpay/internal/service"
)

// RegistrationHandler handles registration catalog endpoints.
type RegistrationHandler struct {
	registrationService service.RegistrationService
}

// NewRegistrationHandler creates a new registration handler.
func NewRegistrationHandler(registrationService service.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{registrationService: registrationService}
}

// CreateRegistrationRequest represents a registration creation request.
type CreateRegistrationRequest struct {
	EventID       string `json:"event_id" validate:"required,uuid"`
	AttendeeName  string `json:"attendee_name" validate:"required"`
	AttendeeEmail string `json:"attendee_email,omitempty" validate:"omitempty,email"`
	AttendeePhone string `json:"attendee_phone,omitempty"`
	TotalAmount   string `json:"total_amount,omitempty"`
}

// CreateRegistration godoc
// @Summary Register an attendee for an event
// @Tags registrations
// @Accept json
// @Produce json
// @Param request body CreateRegistrationRequest true "Registration data"
// @Success 201 {object} model.Registration
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /registrations [post]
func (h *RegistrationHandler) CreateRegistration(c echo.Context) error {
	var req CreateRegistrationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid request body",
			Code:  "INVALID_REQUEST",
		})
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: err.Error(),
			Code:  "VALIDATION_ERROR",
		})
	}

	eventID, err := uuid.Parse(req.EventID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid event_id",
			Code:  "INVALID_UUID",
		})
	}

	total := decimal.Zero
	if req.TotalAmount != "" {
		if total, err = decimal.NewFromString(req.TotalAmount); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
				Error: "invalid total_amount",
				Code:  "INVALID_AMOUNT",
			})
		}
	}

	registration, err := h.registrationService.CreateRegistration(c.Request().Context(), service.CreateRegistrationInput{
		EventID:       eventID,
		AttendeeName:  req.AttendeeName,
		AttendeeEmail: req.AttendeeEmail,
		AttendeePhone: req.AttendeePhone,
		TotalAmount:   total,
	})
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}

	return c.JSON(http.StatusCreated, registration)
}

// GetRegistration godoc
// @Summary Get a registration with its payment ledger
// @Tags registrations
// @Produce json
// @Param id path string true "Registration ID"
// @Success 200 {object} model.Registration
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /registrations/{id} [get]
func (h *RegistrationHandler) GetRegistration(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid registration id",
			Code:  "INVALID_UUID",
		})
	}

	registration, err := h.registrationService.GetRegistration(c.Request().Context(), id)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}

	return c.JSON(http.StatusOK, registration)
}

// ListByEvent godoc
// @Summary List registrations for an event
// @Tags registrations
// @Produce json
// @Security BearerAuth
// @Param eventId path string true "Event ID"
// @Success 200 {array} model.Registration
// @Failure 400 {object} errors.ErrorResponse
// @Router /events/{eventId}/registrations [get]
func (h *RegistrationHandler) ListByEvent(c echo.Context) error {
	eventID, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid event id",
			Code:  "INVALID_UUID",
		})
	}

	registrations, err := h.registrationService.ListByEvent(c.Request().Context(), eventID)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}

	return c.JSON(http.StatusOK, registrations)
}
