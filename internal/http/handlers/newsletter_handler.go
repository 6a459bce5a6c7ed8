// Newsletter HTTP handlers.
//
// This file exposes the delivery endpoints:
//   - POST /newsletters/send   (aggregate + render + email the first user)
//   - POST /emails/send        (plain test email to the first user)
//
// The send endpoint honors an optional Idempotency-Key header: a key with a
// live delivery receipt is acknowledged without re-sending.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-digest-backend/internal/domain"
	"github.com/tbourn/go-digest-backend/internal/services"
)

// HeaderIdempotencyKey is the request header carrying the delivery
// idempotency key.
const HeaderIdempotencyKey = "Idempotency-Key"

// maxIdempotencyKeyLen caps accepted key lengths.
const maxIdempotencyKeyLen = 200

// NewsletterService defines the delivery operations consumed by HTTP
// handlers.
type NewsletterService interface {
	// SendToFirstUser aggregates, renders, and emails the digest.
	SendToFirstUser(ctx context.Context, idempotencyKey string) (*domain.User, error)
	// SendTestEmail delivers a fixed message to verify mail configuration.
	SendTestEmail(ctx context.Context) (*domain.User, error)
}

// SendNewsletterResponse acknowledges a completed (or replayed) delivery.
type SendNewsletterResponse struct {
	Message string `json:"message"`
	Email   string `json:"email,omitempty"`
}

// SendNewsletter runs one aggregation for the first registered user and
// emails the rendered digest.
func (h *Handlers) SendNewsletter(c *gin.Context) {
	key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
	if len(key) > maxIdempotencyKeyLen {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Idempotency-Key too long")
		return
	}

	user, err := h.newsSvc.SendToFirstUser(c.Request.Context(), key)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNoUsers):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "no users found")
		case errors.Is(err, services.ErrDuplicateDelivery):
			// The earlier send stands; acknowledge without re-sending.
			ok(c, http.StatusOK, SendNewsletterResponse{
				Message: "newsletter already delivered for this key",
				Email:   user.Email,
			})
		case errors.Is(err, domain.ErrMalformedSubscriptions):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid subscriptions format")
		case errors.Is(err, services.ErrNoContent):
			fail(c, http.StatusInternalServerError, ErrCodeNoContent, "no content generated")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeSendFailed, "could not send newsletter")
		}
		return
	}

	ok(c, http.StatusOK, SendNewsletterResponse{
		Message: "newsletter sent successfully",
		Email:   user.Email,
	})
}

// SendTestEmail delivers a fixed plain message to the first user.
func (h *Handlers) SendTestEmail(c *gin.Context) {
	user, err := h.newsSvc.SendTestEmail(c.Request.Context())
	if err != nil {
		if errors.Is(err, services.ErrNoUsers) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "no users found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeSendFailed, "could not send email")
		return
	}

	ok(c, http.StatusOK, SendNewsletterResponse{
		Message: "email sent successfully",
		Email:   user.Email,
	})
}
