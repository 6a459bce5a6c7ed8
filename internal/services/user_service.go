// Package services – UserService
//
// This file implements user management: creating recipients and listing them
// with pagination. Subscription lists are validated at write time so a user
// row can never hold a value the aggregation run would have to reject.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-digest-backend/internal/domain"
	"github.com/tbourn/go-digest-backend/internal/repo"
)

// User-related errors.
var (
	// ErrInvalidEmail is returned when a user email is empty or not
	// plausibly an address.
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrDuplicateEmail is returned when a user with the same email already
	// exists.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrUserNotFound indicates that the requested user does not exist.
	ErrUserNotFound = errors.New("user not found")
)

// UserService provides recipient management on top of the user repository.
type UserService struct {
	DB *gorm.DB
}

// Create inserts a new user. rawSubscriptions may be nil (stored as "[]");
// otherwise it must be a JSON array of {name, details} entries, enforced
// here so malformed lists are rejected before they ever reach the router.
func (s *UserService) Create(ctx context.Context, firstName, lastName, email string, rawSubscriptions json.RawMessage) (*domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}

	subs := "[]"
	if len(rawSubscriptions) > 0 {
		if _, err := domain.ParseSubscriptions(rawSubscriptions); err != nil {
			return nil, err
		}
		subs = string(rawSubscriptions)
	}

	u, err := repo.CreateUser(ctx, s.DB, strings.TrimSpace(firstName), strings.TrimSpace(lastName), email, subs)
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || isDuplicate(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	return u, nil
}

// Get fetches one user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	u, err := repo.GetUser(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// ListPage returns a page of users and the total count. It applies defaults
// for invalid page/pageSize values.
func (s *UserService) ListPage(ctx context.Context, page, pageSize int) ([]domain.User, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountUsers(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.User{}, 0, nil
	}

	items, err := repo.ListUsersPage(ctx, s.DB, offset, pageSize)
	return items, total, err
}

// isDuplicate detects unique-constraint violations across drivers that may
// not map to gorm.ErrDuplicatedKey.
func isDuplicate(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
