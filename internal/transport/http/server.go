package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"slotbook/internal/domain"
	"slotbook/internal/service/booking"
	"slotbook/internal/service/payments"
)

type bookingService interface {
	Hold(ctx context.Context, slotID uuid.UUID, sessionID string, ttl time.Duration) (domain.TimeSlot, error)
	Release(ctx context.Context, slotID uuid.UUID, sessionID string) error
	ListAvailableSlots(ctx context.Context, serviceID uuid.UUID, from, to time.Time) ([]domain.TimeSlot, error)
	Create(ctx context.Context, in booking.CreateInput) (domain.Booking, error)
	IssueRescheduleToken(ctx context.Context, bookingID uuid.UUID) (string, time.Time, error)
	Reschedule(ctx context.Context, token string, newStart time.Time) (domain.Booking, error)
	Get(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error)
}

type paymentsService interface {
	HandleEvent(ctx context.Context, payload []byte, signatureHeader string) (payments.Ack, error)
}

// SignatureHeader carries the provider's HMAC signature on webhook deliveries.
const SignatureHeader = "Slotbook-Signature"

type Server struct {
	booking  bookingService
	payments paymentsService
	log      *slog.Logger
}

func NewServer(bookingSvc bookingService, paymentsSvc paymentsService, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		booking:  bookingSvc,
		payments: paymentsSvc,
		log:      log.With(slog.String("component", "http")),
	}
}

func (s *Server) Router(requestTimeout time.Duration) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(timeoutMiddleware(requestTimeout))

	v1 := r.Group("/v1")
	v1.GET("/slots", s.handleListSlots)
	v1.POST("/holds", s.handleHold)
	v1.POST("/holds/release", s.handleRelease)
	v1.POST("/bookings", s.handleCreateBooking)
	v1.GET("/bookings/:id", s.handleGetBooking)
	v1.POST("/bookings/:id/reschedule-token", s.handleIssueRescheduleToken)
	v1.POST("/reschedule", s.handleReschedule)
	v1.POST("/webhooks/payments", s.handleWebhook)

	return r
}

// timeoutMiddleware mirrors the usual server-side deadline: requests that
// arrive without one get the configured default.
func timeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return func(c *gin.Context) {
		if _, ok := c.Request.Context().Deadline(); !ok {
			ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
			defer cancel()
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}
