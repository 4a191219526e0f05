package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"slotbook/internal/domain"
	"slotbook/internal/service/booking"
)

type createBookingRequest struct {
	ServiceID   uuid.UUID `json:"service_id"`
	SlotID      uuid.UUID `json:"slot_id"`
	SessionID   string    `json:"session_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	ClientEmail string    `json:"client_email"`
	ClientPhone string    `json:"client_phone"`
}

type bookingResponse struct {
	ID            uuid.UUID `json:"id"`
	ServiceID     uuid.UUID `json:"service_id"`
	SlotID        uuid.UUID `json:"slot_id"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	ClientEmail   string    `json:"client_email"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	CreatedAt     time.Time `json:"created_at"`
}

func toBookingResponse(b domain.Booking) bookingResponse {
	return bookingResponse{
		ID:            b.ID,
		ServiceID:     b.ServiceID,
		SlotID:        b.SlotID,
		StartTime:     b.StartTime,
		EndTime:       b.EndTime,
		ClientEmail:   b.ClientEmail,
		Status:        string(b.Status),
		PaymentStatus: string(b.PaymentStatus),
		CreatedAt:     b.CreatedAt,
	}
}

func (s *Server) handleCreateBooking(c *gin.Context) {
	log := s.log.With(slog.String("route", "create_booking"))

	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		writeBadRequest(c, "request body must be valid JSON")
		return
	}

	b, err := s.booking.Create(c.Request.Context(), booking.CreateInput{
		SlotID:      req.SlotID,
		SessionID:   req.SessionID,
		ServiceID:   req.ServiceID,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		ClientEmail: req.ClientEmail,
		ClientPhone: req.ClientPhone,
	})
	if err != nil {
		log.Info("booking create rejected",
			slog.Any("err", err),
			slog.String("slot_id", req.SlotID.String()),
			slog.String("session_id", req.SessionID),
		)
		writeError(c, log, err)
		return
	}

	log.Info("booking created",
		slog.String("booking_id", b.ID.String()),
		slog.String("slot_id", b.SlotID.String()),
		slog.Time("start_time", b.StartTime),
		slog.Time("end_time", b.EndTime),
	)
	c.JSON(http.StatusCreated, gin.H{"booking": toBookingResponse(b)})
}

func (s *Server) handleGetBooking(c *gin.Context) {
	log := s.log.With(slog.String("route", "get_booking"))

	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeBadRequest(c, "booking id must be a UUID")
		return
	}

	b, err := s.booking.Get(c.Request.Context(), bookingID)
	if err != nil {
		writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": toBookingResponse(b)})
}

func (s *Server) handleIssueRescheduleToken(c *gin.Context) {
	log := s.log.With(slog.String("route", "issue_reschedule_token"))

	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeBadRequest(c, "booking id must be a UUID")
		return
	}

	token, expiresAt, err := s.booking.IssueRescheduleToken(c.Request.Context(), bookingID)
	if err != nil {
		writeError(c, log, err)
		return
	}

	log.Info("reschedule token issued",
		slog.String("booking_id", bookingID.String()),
		slog.Time("expires_at", expiresAt),
	)
	c.JSON(http.StatusOK, gin.H{"token": token, "expires_at": expiresAt})
}

type rescheduleRequest struct {
	Token        string    `json:"token"`
	NewStartTime time.Time `json:"new_start_time"`
}

func (s *Server) handleReschedule(c *gin.Context) {
	log := s.log.With(slog.String("route", "reschedule"))

	var req rescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		writeBadRequest(c, "request body must be valid JSON")
		return
	}

	b, err := s.booking.Reschedule(c.Request.Context(), req.Token, req.NewStartTime)
	if err != nil {
		log.Info("reschedule rejected", slog.Any("err", err))
		writeError(c, log, err)
		return
	}

	log.Info("booking rescheduled",
		slog.String("booking_id", b.ID.String()),
		slog.Time("start_time", b.StartTime),
		slog.Time("end_time", b.EndTime),
	)
	c.JSON(http.StatusOK, gin.H{"success": true, "booking": toBookingResponse(b)})
}
