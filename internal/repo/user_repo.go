// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-digest-backend/internal/domain"
)

// CreateUser inserts a new user row. Subscriptions is stored as given; pass
// "[]" for a user without subscriptions.
func CreateUser(ctx context.Context, db *gorm.DB, firstName, lastName, email, subscriptions string) (*domain.User, error) {
	if subscriptions == "" {
		subscriptions = "[]"
	}
	u := &domain.User{
		ID:            uuid.NewString(),
		FirstName:     firstName,
		LastName:      lastName,
		Email:         email,
		Subscriptions: subscriptions,
		CreatedAt:     time.Now().UTC(),
	}
	return u, db.WithContext(ctx).Create(u).Error
}

// FirstUser returns the oldest user row, the delivery target of the
// single-recipient newsletter run.
func FirstUser(ctx context.Context, db *gorm.DB) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).Order("created_at ASC, id ASC").First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetUser fetches a user by ID.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// CountUsers returns the total number of users for pagination.
func CountUsers(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.User{}).Count(&total).Error
	return total, err
}

// ListUsersPage returns a page of users ordered deterministically
// (CreatedAt ASC, ID ASC).
func ListUsersPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.User, error) {
	var out []domain.User
	err := db.WithContext(ctx).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
