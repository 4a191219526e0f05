package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"slotbook/internal/service/booking"
	"slotbook/internal/store"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError maps the service error taxonomy onto stable {code, message}
// pairs. Unrecognized errors collapse to a generic internal error so storage
// details never leak to callers.
func writeError(c *gin.Context, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, store.ErrSlotAlreadyHeld):
		c.JSON(http.StatusConflict, errorBody{Code: "SLOT_TAKEN", Message: "Another session holds this slot. Pick a different one."})
	case errors.Is(err, store.ErrSlotUnavailable):
		c.JSON(http.StatusConflict, errorBody{Code: "SLOT_UNAVAILABLE", Message: "The requested time is no longer available."})
	case errors.Is(err, store.ErrSlotExpiredOrTaken):
		c.JSON(http.StatusConflict, errorBody{Code: "SLOT_EXPIRED_OR_TAKEN", Message: "Your hold expired or the slot was just booked. Pick a slot again."})
	case errors.Is(err, store.ErrInvalidToken):
		c.JSON(http.StatusBadRequest, errorBody{Code: "INVALID_OR_EXPIRED_TOKEN", Message: "This reschedule link is no longer valid."})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, errorBody{Code: "NOT_FOUND", Message: "The referenced record does not exist."})
	default:
		var vErr *booking.ValidationError
		if errors.As(err, &vErr) {
			c.JSON(http.StatusBadRequest, errorBody{Code: "INVALID_INPUT", Message: vErr.Error()})
			return
		}
		log.Error("request failed", slog.Any("err", err), slog.String("path", c.FullPath()))
		c.JSON(http.StatusInternalServerError, errorBody{Code: "INTERNAL", Message: "internal error"})
	}
}

func writeBadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorBody{Code: "INVALID_INPUT", Message: msg})
}
