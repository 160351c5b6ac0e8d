package handler

import (
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"eventpay/internal/errors"
	"eventpay/internal/service"
)

// PaymentHandler handles payment endpoints: initiation, the gateway webhook,
// and client-driven verification.
type PaymentHandler struct {
	paymentService service.PaymentService
}

// NewPaymentHandler creates a new payment handler.
func NewPaymentHandler(paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

// InitiatePaymentRequest represents a payment initiation request.
type InitiatePaymentRequest struct {
	RegistrationID string `json:"registration_id" validate:"required,uuid"`
	EventID        string `json:"event_id,omitempty" validate:"omitempty,uuid"`
	PayerAccount   string `json:"payer_account" validate:"required"`
	PayerName      string `json:"payer_name,omitempty"`
	TotalAmount    string `json:"total_amount" validate:"required"`
	PaymentAmount  string `json:"payment_amount" validate:"required"`
	Network        string `json:"network" validate:"required"`
	Narration      string `json:"narration,omitempty"`
}

// InitiatePaymentResponse represents a payment initiation response.
type InitiatePaymentResponse struct {
	Success              bool   `json:"success"`
	TransactionReference string `json:"transaction_reference"`
	PaymentStatus        string `json:"payment_status"`
	Message              string `json:"message"`
}

// CallbackResponse acknowledges a gateway webhook delivery.
type CallbackResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
}

// VerifyPaymentResponse represents a verification response.
type VerifyPaymentResponse struct {
	Success bool `json:"success"`
	service.VerificationResult
}

// InitiatePayment godoc
// @Summary Initiate a mobile-money payment for a registration
// @Tags payments
// @Accept json
// @Produce json
// @Param request body InitiatePaymentRequest true "Payment data"
// @Success 200 {object} InitiatePaymentResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 502 {object} errors.ErrorResponse
// @Router /payments/initiate [post]
func (h *PaymentHandler) InitiatePayment(c echo.Context) error {
	var req InitiatePaymentRequest
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

	registrationID, err := uuid.Parse(req.RegistrationID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid registration_id",
			Code:  "INVALID_UUID",
		})
	}
	var eventID uuid.UUID
	if req.EventID != "" {
		if eventID, err = uuid.Parse(req.EventID); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
				Error: "invalid event_id",
				Code:  "INVALID_UUID",
			})
		}
	}
	totalAmount, err := decimal.NewFromString(req.TotalAmount)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid total_amount",
			Code:  "INVALID_AMOUNT",
		})
	}
	paymentAmount, err := decimal.NewFromString(req.PaymentAmount)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid payment_amount",
			Code:  "INVALID_AMOUNT",
		})
	}

	result, err := h.paymentService.InitiatePayment(c.Request().Context(), service.InitiatePaymentInput{
		RegistrationID: registrationID,
		EventID:        eventID,
		PayerAccount:   req.PayerAccount,
		PayerName:      req.PayerName,
		TotalAmount:    totalAmount,
		PaymentAmount:  paymentAmount,
		Network:        req.Network,
		Narration:      req.Narration,
	})
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}

	return c.JSON(http.StatusOK, InitiatePaymentResponse{
		Success:              true,
		TransactionReference: result.TransactionReference,
		PaymentStatus:        string(result.Status),
		Message:              result.Message,
	})
}

// HandleCallback godoc
// @Summary Receive the gateway's asynchronous payment callback
// @Tags payments
// @Accept json
// @Produce json
// @Success 200 {object} CallbackResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /payments/callback [post]
func (h *PaymentHandler) HandleCallback(c echo.Context) error {
	// The callback shape is owned by the gateway: keep the body verbatim and
	// let the reconciliation engine probe it.
	body, err := io.ReadAll(c.Request().Body)
	if err != nil || len(body) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "empty callback body",
			Code:  "INVALID_REQUEST",
		})
	}

	result, err := h.paymentService.HandleCallback(c.Request().Context(), body)
	if err != nil {
		// Non-2xx tells the gateway to redeliver; that is the retry loop for
		// persistence failures here.
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}

	return c.JSON(http.StatusOK, CallbackResponse{
		Success: true,
		Status:  string(result.Status),
	})
}

// VerifyPayment godoc
// @Summary Verify the current payment status of a registration
// @Tags payments
// @Produce json
// @Param registrationId path string true "Registration ID"
// @Param reference query string false "Transaction reference hint"
// @Success 200 {object} VerifyPaymentResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /payments/verify/{registrationId} [get]
func (h *PaymentHandler) VerifyPayment(c echo.Context) error {
	registrationID, err := uuid.Parse(c.Param("registrationId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid registration id",
			Code:  "INVALID_UUID",
		})
	}

	result, err := h.paymentService.VerifyPayment(c.Request().Context(), registrationID, c.QueryParam("reference"))
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}

	return c.JSON(http.StatusOK, VerifyPaymentResponse{
		Success:            true,
		VerificationResult: *result,
	})
}
