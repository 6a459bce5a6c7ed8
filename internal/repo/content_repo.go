// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the content cache store: append-only
// inserts of fetched provider payloads and latest-row lookups keyed by
// provider kind, exact-match discriminators, and a freshness floor.
package repo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-digest-backend/internal/domain"
)

// StartOfUTCDay returns midnight UTC of the calendar day containing t.
// Cache freshness is day-granular: anything fetched on the current UTC day
// is fresh, anything older is stale, regardless of hours elapsed.
func StartOfUTCDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// InsertContent appends a fetched payload to the cache together with its
// discriminator rows, atomically. There is no uniqueness constraint:
// concurrent inserts for the same discriminators produce harmless duplicate
// rows and lookups always pick the latest.
func InsertContent(ctx context.Context, db *gorm.DB, kind domain.ProviderKind, args map[string]any, payload json.RawMessage, discriminators map[string]string, fetchedAt time.Time) (*domain.CachedContent, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}

	row := &domain.CachedContent{
		ID:               uuid.NewString(),
		SubscriptionType: string(kind),
		Arguments:        string(argsJSON),
		Data:             string(payload),
		FetchedAt:        fetchedAt.UTC(),
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		for k, v := range discriminators {
			d := &domain.ContentDiscriminator{
				ID:               uuid.NewString(),
				ContentID:        row.ID,
				SubscriptionType: string(kind),
				Key:              k,
				Value:            v,
			}
			if err := tx.Create(d).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// LatestContent returns the single most recent cached row matching kind, all
// discriminators, and fetched_at >= since. A miss is ErrNotFound, which
// callers treat as "fetch live", not as a fault.
func LatestContent(ctx context.Context, db *gorm.DB, kind domain.ProviderKind, discriminators map[string]string, since time.Time) (*domain.CachedContent, error) {
	rows, err := LatestContents(ctx, db, kind, discriminators, since, 1)
	if err != nil {
		return nil, err
	}
	return &rows[0], nil
}

// LatestContents is the multi-row variant of LatestContent, newest first,
// capped at limit. Some news call paths read a handful of recent rows;
// callers must handle both single- and multi-row shapes.
func LatestContents(ctx context.Context, db *gorm.DB, kind domain.ProviderKind, discriminators map[string]string, since time.Time, limit int) ([]domain.CachedContent, error) {
	if limit < 1 {
		limit = 1
	}

	q := db.WithContext(ctx).
		Model(&domain.CachedContent{}).
		Where("subscription_type = ? AND fetched_at >= ?", string(kind), since.UTC())

	// One EXISTS-style subquery per discriminator; all must match exactly.
	for k, v := range discriminators {
		sub := db.Model(&domain.ContentDiscriminator{}).
			Select("content_id").
			Where("subscription_type = ? AND key = ? AND value = ?", string(kind), k, v)
		q = q.Where("id IN (?)", sub)
	}

	var rows []domain.CachedContent
	if err := q.Order("fetched_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows, nil
}
