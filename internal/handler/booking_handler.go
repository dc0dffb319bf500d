package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yash-parekh715/nuvio/internal/domain"
	"github.com/yash-parekh715/nuvio/internal/dto"
	"github.com/yash-parekh715/nuvio/internal/service"
	"github.com/yash-parekh715/nuvio/pkg/database"
	"github.com/yash-parekh715/nuvio/pkg/middleware"
	"github.com/yash-parekh715/nuvio/pkg/response"
	"github.com/yash-parekh715/nuvio/pkg/telemetry"
)

// BookingHandler handles booking HTTP requests
type BookingHandler struct {
	reservations service.ReservationService
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(reservations service.ReservationService) *BookingHandler {
	return &BookingHandler{reservations: reservations}
}

// CreateReservation handles POST /bookings
func (h *BookingHandler) CreateReservation(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.create")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID := middleware.GetUserID(c)
	if userID == "" {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "authentication required")
		return
	}

	var req dto.CreateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("event_id", req.EventID),
		attribute.Int("ticket_count", req.TicketCount),
	)

	result, err := h.reservations.CreateReservation(ctx, userID, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("booking_id", result.ID))
	span.SetStatus(codes.Ok, "")
	response.Created(c, result)
}

// ConfirmReservation handles POST /bookings/:id/confirm
func (h *BookingHandler) ConfirmReservation(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.confirm")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID := middleware.GetUserID(c)
	if userID == "" {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "authentication required")
		return
	}

	bookingID := c.Param("id")
	if bookingID == "" {
		span.SetStatus(codes.Error, "booking id required")
		response.BadRequest(c, "booking id required")
		return
	}

	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.String("user_id", userID),
	)

	// The payment intent id is optional; an empty body falls back to the
	// intent recorded on the booking
	var req dto.ConfirmReservationRequest
	_ = c.ShouldBindJSON(&req)

	result, err := h.reservations.ConfirmReservation(ctx, bookingID, userID, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// CancelBooking handles POST /bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.cancel")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID := middleware.GetUserID(c)
	if userID == "" {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "authentication required")
		return
	}

	bookingID := c.Param("id")
	if bookingID == "" {
		span.SetStatus(codes.Error, "booking id required")
		response.BadRequest(c, "booking id required")
		return
	}

	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.String("user_id", userID),
	)

	result, err := h.reservations.CancelBooking(ctx, bookingID, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("refund_status", result.RefundStatus))
	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// GetPaymentOptions handles POST /bookings/:id/payment-options
func (h *BookingHandler) GetPaymentOptions(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.payment_options")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID := middleware.GetUserID(c)
	if userID == "" {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "authentication required")
		return
	}

	bookingID := c.Param("id")
	if bookingID == "" {
		span.SetStatus(codes.Error, "booking id required")
		response.BadRequest(c, "booking id required")
		return
	}

	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.String("user_id", userID),
	)

	var req dto.PaymentOptionsRequest
	_ = c.ShouldBindJSON(&req)

	result, err := h.reservations.GetPaymentOptions(ctx, bookingID, userID, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// GetBooking handles GET /bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.get")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID := middleware.GetUserID(c)
	if userID == "" {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "authentication required")
		return
	}

	bookingID := c.Param("id")
	if bookingID == "" {
		span.SetStatus(codes.Error, "booking id required")
		response.BadRequest(c, "booking id required")
		return
	}

	result, err := h.reservations.GetBooking(ctx, bookingID, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// ListBookings handles GET /bookings
func (h *BookingHandler) ListBookings(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.list")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID := middleware.GetUserID(c)
	if userID == "" {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "authentication required")
		return
	}

	var query dto.ListBookingsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid query")
		response.BadRequest(c, err.Error())
		return
	}

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("status_filter", query.Status),
	)

	result, err := h.reservations.GetBookings(ctx, userID, &query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetAttributes(attribute.Int("count", len(result.Bookings)))
	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// handleError converts domain errors to HTTP responses. Internal errors
// are not echoed back to the caller.
func (h *BookingHandler) handleError(c *gin.Context, err error) {
	var quotaErr *domain.QuotaExceededError
	var transitionErr *domain.InvalidTransitionError

	switch {
	case domain.IsNotFoundError(err):
		response.NotFound(c, err.Error())
	case domain.IsAccessDeniedError(err):
		response.Forbidden(c, err.Error())
	case domain.IsValidationError(err):
		response.BadRequest(c, err.Error())
	case domain.IsExpiredError(err):
		response.Error(c, http.StatusGone, "EXPIRED", err.Error(), "")
	case errors.Is(err, domain.ErrInsufficientCapacity):
		response.Conflict(c, "INSUFFICIENT_CAPACITY", err.Error())
	case errors.As(err, &quotaErr):
		response.Conflict(c, "QUOTA_EXCEEDED", err.Error())
	case errors.Is(err, domain.ErrAlreadyCancelled):
		response.Conflict(c, "ALREADY_CANCELLED", err.Error())
	case errors.Is(err, domain.ErrBookingStateChanged):
		response.Conflict(c, "CONFLICT", err.Error())
	case errors.As(err, &transitionErr):
		response.Conflict(c, "INVALID_STATE", err.Error())
	case errors.Is(err, domain.ErrEventStarted):
		response.Conflict(c, "EVENT_STARTED", err.Error())
	case errors.Is(err, domain.ErrEventNotActive),
		errors.Is(err, domain.ErrBookingClosed):
		response.Conflict(c, "BOOKING_CLOSED", err.Error())
	case errors.Is(err, domain.ErrPaymentNotVerified):
		response.Error(c, http.StatusPaymentRequired, "PAYMENT_NOT_VERIFIED", err.Error(), "")
	case service.IsLockUnavailable(err):
		response.ServiceUnavailable(c, "BUSY", "another reservation attempt is in progress, try again")
	case errors.Is(err, database.ErrTxRetriesExhausted):
		response.ServiceUnavailable(c, "BUSY", "the system is under contention, try again")
	default:
		response.InternalError(c)
	}
}
