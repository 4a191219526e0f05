package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"slotbook/internal/store"
)

type holdRequest struct {
	SlotID     uuid.UUID `json:"slot_id"`
	SessionID  string    `json:"session_id"`
	TTLSeconds int       `json:"ttl_seconds"`
}

type holdResponse struct {
	SlotID    uuid.UUID `json:"slot_id"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) handleHold(c *gin.Context) {
	log := s.log.With(slog.String("route", "hold"))

	var req holdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		writeBadRequest(c, "request body must be valid JSON")
		return
	}

	slot, err := s.booking.Hold(c.Request.Context(), req.SlotID, req.SessionID, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		logHoldFailure(log, req, err)
		// Held by someone else and already booked are the same answer to a
		// client trying to grab the slot.
		if errors.Is(err, store.ErrSlotUnavailable) {
			c.JSON(http.StatusConflict, errorBody{Code: "SLOT_TAKEN", Message: "This slot is no longer available. Pick a different one."})
			return
		}
		writeError(c, log, err)
		return
	}

	log.Info("slot held",
		slog.String("slot_id", slot.ID.String()),
		slog.String("session_id", req.SessionID),
		slog.Time("expires_at", *slot.HoldExpiresAt),
	)
	c.JSON(http.StatusOK, holdResponse{
		SlotID:    slot.ID,
		SessionID: slot.HeldBySessionID,
		ExpiresAt: *slot.HoldExpiresAt,
	})
}

func logHoldFailure(log *slog.Logger, req holdRequest, err error) {
	log.Info("hold rejected",
		slog.Any("err", err),
		slog.String("slot_id", req.SlotID.String()),
		slog.String("session_id", req.SessionID),
	)
}

type releaseRequest struct {
	SlotID    uuid.UUID `json:"slot_id"`
	SessionID string    `json:"session_id"`
}

func (s *Server) handleRelease(c *gin.Context) {
	log := s.log.With(slog.String("route", "release"))

	var req releaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		writeBadRequest(c, "request body must be valid JSON")
		return
	}

	if err := s.booking.Release(c.Request.Context(), req.SlotID, req.SessionID); err != nil {
		writeError(c, log, err)
		return
	}

	log.Debug("slot released",
		slog.String("slot_id", req.SlotID.String()),
		slog.String("session_id", req.SessionID),
	)
	c.JSON(http.StatusOK, gin.H{"released": true})
}

func (s *Server) handleListSlots(c *gin.Context) {
	log := s.log.With(slog.String("route", "list_slots"))

	serviceID, err := uuid.Parse(c.Query("service_id"))
	if err != nil {
		writeBadRequest(c, "service_id must be a UUID")
		return
	}
	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		writeBadRequest(c, "from must be an RFC 3339 timestamp")
		return
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		writeBadRequest(c, "to must be an RFC 3339 timestamp")
		return
	}

	slots, err := s.booking.ListAvailableSlots(c.Request.Context(), serviceID, from, to)
	if err != nil {
		writeError(c, log, err)
		return
	}

	out := make([]gin.H, 0, len(slots))
	for _, slot := range slots {
		out = append(out, gin.H{
			"id":         slot.ID,
			"service_id": slot.ServiceID,
			"start_time": slot.StartTime,
			"end_time":   slot.EndTime,
		})
	}
	c.JSON(http.StatusOK, gin.H{"slots": out})
}
