// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for delivery
// receipts, used to make newsletter sends idempotent per user and key.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-digest-backend/internal/domain"
)

// GetDeliveryReceipt returns the receipt for (userID, key) if it exists and
// has not expired at now. Missing or expired receipts yield ErrNotFound.
func GetDeliveryReceipt(ctx context.Context, db *gorm.DB, userID, key string, now time.Time) (*domain.DeliveryReceipt, error) {
	var r domain.DeliveryReceipt
	err := db.WithContext(ctx).
		Where("user_id = ? AND key = ? AND expires_at > ?", userID, key, now.UTC()).
		First(&r).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

// PutDeliveryReceipt records a completed delivery. The (user_id, key) unique
// index makes a concurrent duplicate insert fail; callers may ignore that
// conflict since it means another request already recorded the send.
func PutDeliveryReceipt(ctx context.Context, db *gorm.DB, userID, key string, now time.Time, ttl time.Duration) error {
	r := &domain.DeliveryReceipt{
		ID:        uuid.NewString(),
		UserID:    userID,
		Key:       key,
		SentAt:    now.UTC(),
		ExpiresAt: now.UTC().Add(ttl),
	}
	return db.WithContext(ctx).Create(r).Error
}
