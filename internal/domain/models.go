// Package domain defines the persistence models for users, cached provider
// content, and delivery receipts. These types are mapped with GORM and form
// the core data layer of the digest application.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// User represents a newsletter recipient. Each user carries a JSON-encoded
// list of subscriptions describing which providers feed their digest.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - FirstName / LastName: recipient name.
//   - Email: delivery address, unique across users.
//   - Subscriptions: JSON array of {name, details} entries. Stored as opaque
//     text; parsed with ParseSubscriptions at aggregation time.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker.
type User struct {
	ID            string         `json:"id"            gorm:"type:char(36);primaryKey"`
	FirstName     string         `json:"first_name"    gorm:"type:varchar(64);not null"`
	LastName      string         `json:"last_name"     gorm:"type:varchar(200);not null"`
	Email         string         `json:"email"         gorm:"type:varchar(255);not null;uniqueIndex"`
	Subscriptions string         `json:"subscriptions" gorm:"type:text;not null;default:'[]'"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-"             gorm:"index"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// CachedContent is one fetched provider result. The table is append-only:
// rows are never updated in place, a newer fetch for the same discriminators
// inserts a newer row and lookups pick the latest. Staleness is decided at
// read time against the start of the current UTC day; no expiry job exists.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - SubscriptionType: provider kind tag (e.g. "WeatherUpdateNow"); indexed.
//   - Arguments: JSON object with the request arguments that produced the
//     payload, kept for debugging and audit.
//   - Data: the provider's native JSON payload, opaque to the cache.
//   - FetchedAt: when the provider call completed; lookups order by this.
type CachedContent struct {
	ID               string    `json:"id"                gorm:"type:char(36);primaryKey"`
	SubscriptionType string    `json:"subscription_type" gorm:"type:varchar(100);not null;index:idx_content_kind_time,priority:1"`
	Arguments        string    `json:"arguments"         gorm:"type:text;not null"`
	Data             string    `json:"data"              gorm:"type:text;not null"`
	FetchedAt        time.Time `json:"fetched_at"        gorm:"not null;index:idx_content_kind_time,priority:2"`
}

// TableName returns the database table name for CachedContent.
func (CachedContent) TableName() string { return "cached_content" }

// ContentDiscriminator is the indexed side table used to match cache lookups
// against cached rows without text searching into the opaque JSON payload.
// Every CachedContent row owns one discriminator row per lookup key (weather:
// location; news: language and categories).
type ContentDiscriminator struct {
	ID               string `json:"id"                gorm:"type:char(36);primaryKey"`
	ContentID        string `json:"content_id"        gorm:"type:char(36);not null;index"`
	SubscriptionType string `json:"subscription_type" gorm:"type:varchar(100);not null;index:idx_disc_lookup,priority:1"`
	Key              string `json:"key"               gorm:"type:varchar(64);not null;index:idx_disc_lookup,priority:2"`
	Value            string `json:"value"             gorm:"type:varchar(255);not null;index:idx_disc_lookup,priority:3"`

	// Content is the owning cached row. Discriminators are cascade-deleted
	// with it.
	Content CachedContent `json:"-" gorm:"foreignKey:ContentID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ContentDiscriminator.
func (ContentDiscriminator) TableName() string { return "content_discriminators" }

// DeliveryReceipt records a completed newsletter delivery, keyed by the
// client-supplied idempotency key. A repeated send request carrying the same
// key within the TTL is acknowledged without re-sending the email.
type DeliveryReceipt struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:char(36);not null;uniqueIndex:ux_receipt_user_key,priority:1"`
	Key       string    `json:"key"        gorm:"type:varchar(200);not null;uniqueIndex:ux_receipt_user_key,priority:2"`
	SentAt    time.Time `json:"sent_at"    gorm:"not null"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null;index"`
}

// TableName returns the database table name for DeliveryReceipt.
func (DeliveryReceipt) TableName() string { return "delivery_receipts" }
