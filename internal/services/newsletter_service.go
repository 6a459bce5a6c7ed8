// Package services – NewsletterService
//
// This file implements the delivery orchestration around the digest core:
// pick the delivery target, validate the stored subscription list, run the
// router, render the bundle to HTML, and hand it to the mail transport.
// Sends can carry an idempotency key; a key with a live delivery receipt
// short-circuits before any provider call or email is made.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-digest-backend/internal/domain"
	"github.com/tbourn/go-digest-backend/internal/repo"
)

// Renderer converts a results bundle into the HTML body of a digest email.
type Renderer interface {
	Digest(bundle Bundle) (string, error)
}

// Mailer delivers one email. A single attempt, errors by value.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// NewsletterService assembles and delivers the digest email for the first
// registered user.
type NewsletterService struct {
	DB       *gorm.DB
	Digest   *DigestService
	Renderer Renderer
	Mailer   Mailer

	// Subject is the email subject line for digest deliveries.
	Subject string
	// ReceiptTTL bounds how long an idempotency key suppresses re-sends.
	ReceiptTTL time.Duration
	// Now is the clock used for receipts; overridable in tests.
	Now func() time.Time
}

// NewNewsletterService constructs a NewsletterService with sane defaults.
func NewNewsletterService(db *gorm.DB, digest *DigestService, renderer Renderer, mailer Mailer, receiptTTL time.Duration) *NewsletterService {
	if receiptTTL <= 0 {
		receiptTTL = 24 * time.Hour
	}
	return &NewsletterService{
		DB:         db,
		Digest:     digest,
		Renderer:   renderer,
		Mailer:     mailer,
		Subject:    "Daily Newsletter",
		ReceiptTTL: receiptTTL,
		Now:        time.Now,
	}
}

// SendToFirstUser runs one aggregation for the oldest user and emails the
// rendered digest to them.
//
// Semantics:
//   - No users → ErrNoUsers.
//   - idempotencyKey with a live receipt → ErrDuplicateDelivery, nothing sent.
//   - A malformed subscriptions value → domain.ErrMalformedSubscriptions,
//     rejected before the router runs.
//   - An empty bundle (nothing recognized) → ErrNoContent. A bundle where
//     every entry failed is still delivered; the recipient sees the failure
//     notes, matching the permissive delivery policy.
//   - Render or transport failures are returned as-is.
//
// On success the delivery receipt is recorded; a receipt write failure is
// logged and swallowed since the email is already out.
func (s *NewsletterService) SendToFirstUser(ctx context.Context, idempotencyKey string) (*domain.User, error) {
	user, err := repo.FirstUser(ctx, s.DB)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNoUsers
		}
		return nil, err
	}

	if idempotencyKey != "" {
		if _, err := repo.GetDeliveryReceipt(ctx, s.DB, user.ID, idempotencyKey, s.Now()); err == nil {
			return user, ErrDuplicateDelivery
		}
	}

	subs, err := domain.ParseSubscriptions([]byte(user.Subscriptions))
	if err != nil {
		return user, err
	}

	bundle := s.Digest.Route(ctx, subs)
	if len(bundle) == 0 {
		return user, ErrNoContent
	}

	body, err := s.Renderer.Digest(bundle)
	if err != nil {
		return user, err
	}

	if err := s.Mailer.Send(ctx, user.Email, s.Subject, body); err != nil {
		return user, err
	}

	if idempotencyKey != "" {
		if err := repo.PutDeliveryReceipt(ctx, s.DB, user.ID, idempotencyKey, s.Now(), s.ReceiptTTL); err != nil {
			log.Error().Err(err).Str("user_id", user.ID).Msg("failed to record delivery receipt")
		}
	}

	log.Info().Str("user_id", user.ID).Str("email", user.Email).Int("entries", len(bundle)).Msg("newsletter delivered")
	return user, nil
}

// SendTestEmail delivers a fixed plain message to the first user, used to
// verify the mail transport configuration.
func (s *NewsletterService) SendTestEmail(ctx context.Context) (*domain.User, error) {
	user, err := repo.FirstUser(ctx, s.DB)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNoUsers
		}
		return nil, err
	}
	if err := s.Mailer.Send(ctx, user.Email, "Test Email", "<p>This is a test email from the digest service.</p>"); err != nil {
		return user, err
	}
	return user, nil
}

// GormContentStore adapts the repo free functions to the ContentStore
// interface expected by DigestService. This keeps the digest core decoupled
// from the concrete repo package while reusing the existing functions.
type GormContentStore struct{}

// Latest proxies repo.LatestContent and unwraps the stored payload.
func (GormContentStore) Latest(ctx context.Context, db *gorm.DB, kind domain.ProviderKind, discriminators map[string]string, since time.Time) (json.RawMessage, error) {
	row, err := repo.LatestContent(ctx, db, kind, discriminators, since)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(row.Data), nil
}

// Insert proxies repo.InsertContent.
func (GormContentStore) Insert(ctx context.Context, db *gorm.DB, kind domain.ProviderKind, args map[string]any, payload json.RawMessage, discriminators map[string]string, fetchedAt time.Time) error {
	_, err := repo.InsertContent(ctx, db, kind, args, payload, discriminators, fetchedAt)
	return err
}
