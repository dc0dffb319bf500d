package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yash-parekh715/nuvio/internal/domain"
	"github.com/yash-parekh715/nuvio/internal/dto"
	"github.com/yash-parekh715/nuvio/pkg/lock"
	"github.com/yash-parekh715/nuvio/pkg/middleware"
)

// MockReservationService is a func-field mock of ReservationService
type MockReservationService struct {
	CreateReservationFunc          func(ctx context.Context, userID string, req *dto.CreateReservationRequest) (*dto.BookingResponse, error)
	ConfirmReservationFunc         func(ctx context.Context, bookingID, userID string, req *dto.ConfirmReservationRequest) (*dto.BookingResponse, error)
	CancelBookingFunc              func(ctx context.Context, bookingID, userID string) (*dto.CancellationResponse, error)
	GetPaymentOptionsFunc          func(ctx context.Context, bookingID, userID string, req *dto.PaymentOptionsRequest) (*dto.PaymentOptionsResponse, error)
	GetBookingFunc                 func(ctx context.Context, bookingID, userID string) (*dto.BookingResponse, error)
	GetBookingsFunc                func(ctx context.Context, userID string, query *dto.ListBookingsQuery) (*dto.PaginatedBookingsResponse, error)
	CleanupExpiredReservationsFunc func(ctx context.Context) (int, error)
}

func (m *MockReservationService) CreateReservation(ctx context.Context, userID string, req *dto.CreateReservationRequest) (*dto.BookingResponse, error) {
	if m.CreateReservationFunc != nil {
		return m.CreateReservationFunc(ctx, userID, req)
	}
	return nil, nil
}

func (m *MockReservationService) ConfirmReservation(ctx context.Context, bookingID, userID string, req *dto.ConfirmReservationRequest) (*dto.BookingResponse, error) {
	if m.ConfirmReservationFunc != nil {
		return m.ConfirmReservationFunc(ctx, bookingID, userID, req)
	}
	return nil, nil
}

func (m *MockReservationService) CancelBooking(ctx context.Context, bookingID, userID string) (*dto.CancellationResponse, error) {
	if m.CancelBookingFunc != nil {
		return m.CancelBookingFunc(ctx, bookingID, userID)
	}
	return nil, nil
}

func (m *MockReservationService) GetPaymentOptions(ctx context.Context, bookingID, userID string, req *dto.PaymentOptionsRequest) (*dto.PaymentOptionsResponse, error) {
	if m.GetPaymentOptionsFunc != nil {
		return m.GetPaymentOptionsFunc(ctx, bookingID, userID, req)
	}
	return nil, nil
}

func (m *MockReservationService) GetBooking(ctx context.Context, bookingID, userID string) (*dto.BookingResponse, error) {
	if m.GetBookingFunc != nil {
		return m.GetBookingFunc(ctx, bookingID, userID)
	}
	return nil, nil
}

func (m *MockReservationService) GetBookings(ctx context.Context, userID string, query *dto.ListBookingsQuery) (*dto.PaginatedBookingsResponse, error) {
	if m.GetBookingsFunc != nil {
		return m.GetBookingsFunc(ctx, userID, query)
	}
	return nil, nil
}

func (m *MockReservationService) CleanupExpiredReservations(ctx context.Context) (int, error) {
	if m.CleanupExpiredReservationsFunc != nil {
		return m.CleanupExpiredReservationsFunc(ctx)
	}
	return 0, nil
}

func setupTestRouter(svc *MockReservationService, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	if userID != "" {
		router.Use(func(c *gin.Context) {
			c.Set(middleware.UserIDKey, userID)
			c.Next()
		})
	}

	handler := NewBookingHandler(svc)
	bookings := router.Group("/bookings")
	{
		bookings.POST("", handler.CreateReservation)
		bookings.GET("", handler.ListBookings)
		bookings.GET("/:id", handler.GetBooking)
		bookings.POST("/:id/confirm", handler.ConfirmReservation)
		bookings.POST("/:id/cancel", handler.CancelBooking)
		bookings.POST("/:id/payment-options", handler.GetPaymentOptions)
	}
	return router
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func TestBookingHandler_CreateReservation(t *testing.T) {
	expiresAt := time.Now().Add(15 * time.Minute)

	tests := []struct {
		name           string
		userID         string
		request        any
		mockFunc       func(ctx context.Context, userID string, req *dto.CreateReservationRequest) (*dto.BookingResponse, error)
		expectedStatus int
		expectedCode   string
	}{
		{
			name:    "successful reservation",
			userID:  "user-123",
			request: &dto.CreateReservationRequest{EventID: "event-123", TicketCount: 2},
			mockFunc: func(ctx context.Context, userID string, req *dto.CreateReservationRequest) (*dto.BookingResponse, error) {
				return &dto.BookingResponse{
					ID:        "booking-123",
					Status:    "reserved",
					ExpiresAt: &expiresAt,
				}, nil
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "unauthorized without identity",
			userID:         "",
			request:        &dto.CreateReservationRequest{EventID: "event-123", TicketCount: 1},
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "UNAUTHORIZED",
		},
		{
			name:           "missing ticket count rejected by binding",
			userID:         "user-123",
			request:        map[string]any{"event_id": "event-123"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "BAD_REQUEST",
		},
		{
			name:    "insufficient capacity",
			userID:  "user-123",
			request: &dto.CreateReservationRequest{EventID: "event-123", TicketCount: 5},
			mockFunc: func(ctx context.Context, userID string, req *dto.CreateReservationRequest) (*dto.BookingResponse, error) {
				return nil, domain.ErrInsufficientCapacity
			},
			expectedStatus: http.StatusConflict,
			expectedCode:   "INSUFFICIENT_CAPACITY",
		},
		{
			name:    "quota exceeded",
			userID:  "user-123",
			request: &dto.CreateReservationRequest{EventID: "event-123", TicketCount: 3},
			mockFunc: func(ctx context.Context, userID string, req *dto.CreateReservationRequest) (*dto.BookingResponse, error) {
				return nil, &domain.QuotaExceededError{Limit: 4, Pending: 2, Requested: 3}
			},
			expectedStatus: http.StatusConflict,
			expectedCode:   "QUOTA_EXCEEDED",
		},
		{
			name:    "booking closed",
			userID:  "user-123",
			request: &dto.CreateReservationRequest{EventID: "event-123", TicketCount: 1},
			mockFunc: func(ctx context.Context, userID string, req *dto.CreateReservationRequest) (*dto.BookingResponse, error) {
				return nil, domain.ErrBookingClosed
			},
			expectedStatus: http.StatusConflict,
			expectedCode:   "BOOKING_CLOSED",
		},
		{
			name:    "lock contention maps to service unavailable",
			userID:  "user-123",
			request: &dto.CreateReservationRequest{EventID: "event-123", TicketCount: 1},
			mockFunc: func(ctx context.Context, userID string, req *dto.CreateReservationRequest) (*dto.BookingResponse, error) {
				return nil, lock.ErrNotAcquired
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedCode:   "BUSY",
		},
		{
			name:    "event not found",
			userID:  "user-123",
			request: &dto.CreateReservationRequest{EventID: "missing", TicketCount: 1},
			mockFunc: func(ctx context.Context, userID string, req *dto.CreateReservationRequest) (*dto.BookingResponse, error) {
				return nil, domain.ErrEventNotFound
			},
			expectedStatus: http.StatusNotFound,
			expectedCode:   "NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupTestRouter(&MockReservationService{CreateReservationFunc: tt.mockFunc}, tt.userID)
			rec, env := doJSON(t, router, http.MethodPost, "/bookings", tt.request)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedCode != "" {
				require.NotNil(t, env.Error)
				assert.Equal(t, tt.expectedCode, env.Error.Code)
			} else {
				assert.True(t, env.Success)
			}
		})
	}
}

func TestBookingHandler_ConfirmReservation(t *testing.T) {
	tests := []struct {
		name           string
		mockFunc       func(ctx context.Context, bookingID, userID string, req *dto.ConfirmReservationRequest) (*dto.BookingResponse, error)
		expectedStatus int
		expectedCode   string
	}{
		{
			name: "success",
			mockFunc: func(ctx context.Context, bookingID, userID string, req *dto.ConfirmReservationRequest) (*dto.BookingResponse, error) {
				return &dto.BookingResponse{ID: bookingID, Status: "confirmed"}, nil
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "expired hold",
			mockFunc: func(ctx context.Context, bookingID, userID string, req *dto.ConfirmReservationRequest) (*dto.BookingResponse, error) {
				return nil, domain.ErrBookingExpired
			},
			expectedStatus: http.StatusGone,
			expectedCode:   "EXPIRED",
		},
		{
			name: "already confirmed",
			mockFunc: func(ctx context.Context, bookingID, userID string, req *dto.ConfirmReservationRequest) (*dto.BookingResponse, error) {
				return nil, &domain.InvalidTransitionError{Operation: "confirm", Status: domain.BookingStatusConfirmed}
			},
			expectedStatus: http.StatusConflict,
			expectedCode:   "INVALID_STATE",
		},
		{
			name: "payment not verified",
			mockFunc: func(ctx context.Context, bookingID, userID string, req *dto.ConfirmReservationRequest) (*dto.BookingResponse, error) {
				return nil, domain.ErrPaymentNotVerified
			},
			expectedStatus: http.StatusPaymentRequired,
			expectedCode:   "PAYMENT_NOT_VERIFIED",
		},
		{
			name: "not the owner",
			mockFunc: func(ctx context.Context, bookingID, userID string, req *dto.ConfirmReservationRequest) (*dto.BookingResponse, error) {
				return nil, domain.ErrAccessDenied
			},
			expectedStatus: http.StatusForbidden,
			expectedCode:   "FORBIDDEN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupTestRouter(&MockReservationService{ConfirmReservationFunc: tt.mockFunc}, "user-123")
			rec, env := doJSON(t, router, http.MethodPost, "/bookings/booking-123/confirm", nil)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedCode != "" {
				require.NotNil(t, env.Error)
				assert.Equal(t, tt.expectedCode, env.Error.Code)
			}
		})
	}
}

func TestBookingHandler_CancelBooking(t *testing.T) {
	t.Run("returns refund outcome", func(t *testing.T) {
		svc := &MockReservationService{
			CancelBookingFunc: func(ctx context.Context, bookingID, userID string) (*dto.CancellationResponse, error) {
				return &dto.CancellationResponse{
					Booking:      &dto.BookingResponse{ID: bookingID, Status: "cancelled"},
					RefundStatus: "partial_refund",
					RefundAmount: 50,
				}, nil
			},
		}
		router := setupTestRouter(svc, "user-123")
		rec, env := doJSON(t, router, http.MethodPost, "/bookings/booking-123/cancel", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var result dto.CancellationResponse
		require.NoError(t, json.Unmarshal(env.Data, &result))
		assert.Equal(t, "partial_refund", result.RefundStatus)
		assert.Equal(t, 50.0, result.RefundAmount)
	})

	t.Run("double cancel conflicts", func(t *testing.T) {
		svc := &MockReservationService{
			CancelBookingFunc: func(ctx context.Context, bookingID, userID string) (*dto.CancellationResponse, error) {
				return nil, domain.ErrAlreadyCancelled
			},
		}
		router := setupTestRouter(svc, "user-123")
		rec, env := doJSON(t, router, http.MethodPost, "/bookings/booking-123/cancel", nil)

		assert.Equal(t, http.StatusConflict, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "ALREADY_CANCELLED", env.Error.Code)
	})
}

func TestBookingHandler_ListBookings(t *testing.T) {
	svc := &MockReservationService{
		GetBookingsFunc: func(ctx context.Context, userID string, query *dto.ListBookingsQuery) (*dto.PaginatedBookingsResponse, error) {
			assert.Equal(t, "confirmed", query.Status)
			assert.Equal(t, 2, query.Page)
			return &dto.PaginatedBookingsResponse{
				Bookings: []*dto.BookingResponse{{ID: "booking-1", Status: "confirmed"}},
				Page:     2,
				PageSize: 20,
			}, nil
		},
	}
	router := setupTestRouter(svc, "user-123")
	rec, env := doJSON(t, router, http.MethodGet, "/bookings?status=confirmed&page=2", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var result dto.PaginatedBookingsResponse
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Len(t, result.Bookings, 1)
	assert.Equal(t, "booking-1", result.Bookings[0].ID)
}

func TestBookingHandler_GetBooking_NotFound(t *testing.T) {
	svc := &MockReservationService{
		GetBookingFunc: func(ctx context.Context, bookingID, userID string) (*dto.BookingResponse, error) {
			return nil, domain.ErrBookingNotFound
		},
	}
	router := setupTestRouter(svc, "user-123")
	rec, env := doJSON(t, router, http.MethodGet, "/bookings/missing", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestBookingHandler_GetPaymentOptions(t *testing.T) {
	svc := &MockReservationService{
		GetPaymentOptionsFunc: func(ctx context.Context, bookingID, userID string, req *dto.PaymentOptionsRequest) (*dto.PaymentOptionsResponse, error) {
			return &dto.PaymentOptionsResponse{
				BookingID:       bookingID,
				PaymentIntentID: "pi_test_123",
				Amount:          100,
				Currency:        "usd",
			}, nil
		},
	}
	router := setupTestRouter(svc, "user-123")
	rec, env := doJSON(t, router, http.MethodPost, "/bookings/booking-123/payment-options", &dto.PaymentOptionsRequest{Method: "card"})

	require.Equal(t, http.StatusOK, rec.Code)
	var result dto.PaymentOptionsResponse
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, "pi_test_123", result.PaymentIntentID)
}
