package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"slotbook/internal/service/payments"
)

// handleWebhook is the provider-facing entry point. Status codes follow the
// transport/business split: 4xx means the delivery itself is unusable and
// must not be retried as-is, 5xx means we failed and the provider should
// retry, 200 means processed or deliberately skipped.
func (s *Server) handleWebhook(c *gin.Context) {
	log := s.log.With(slog.String("route", "payments_webhook"))

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		log.Warn("webhook body read failed", slog.Any("err", err))
		c.JSON(http.StatusBadRequest, errorBody{Code: "INVALID_PAYLOAD", Message: "request body could not be read"})
		return
	}

	ack, err := s.payments.HandleEvent(c.Request.Context(), payload, c.GetHeader(SignatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrInvalidSignature):
			log.Warn("webhook signature rejected", slog.Any("err", err))
			c.JSON(http.StatusBadRequest, errorBody{Code: "INVALID_SIGNATURE", Message: "signature verification failed"})
		case errors.Is(err, payments.ErrMalformedPayload):
			log.Warn("webhook payload rejected", slog.Any("err", err))
			c.JSON(http.StatusBadRequest, errorBody{Code: "INVALID_PAYLOAD", Message: "event payload could not be parsed"})
		case errors.Is(err, payments.ErrMissingSecret):
			log.Error("webhook secret not configured")
			c.JSON(http.StatusInternalServerError, errorBody{Code: "CONFIGURATION_ERROR", Message: "webhook processing is not configured"})
		default:
			log.Error("webhook processing failed", slog.Any("err", err))
			c.JSON(http.StatusInternalServerError, errorBody{Code: "INTERNAL", Message: "internal error"})
		}
		return
	}

	if ack.Skipped {
		c.JSON(http.StatusOK, gin.H{"skipped": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
