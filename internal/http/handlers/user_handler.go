// User HTTP handlers.
//
// This file exposes REST endpoints for recipient resources:
//   - POST /users        (create)
//   - GET  /users        (list, paginated)
//   - GET  /users/{id}   (fetch)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-digest-backend/internal/domain"
	"github.com/tbourn/go-digest-backend/internal/services"
	"github.com/tbourn/go-digest-backend/internal/utils"
)

// UserService defines recipient management operations consumed by HTTP
// handlers. Implementations must honor the provided context.
type UserService interface {
	// Create registers a new recipient with an optional subscriptions array.
	Create(ctx context.Context, firstName, lastName, email string, rawSubscriptions json.RawMessage) (*domain.User, error)
	// Get fetches one recipient by ID.
	Get(ctx context.Context, id string) (*domain.User, error)
	// ListPage returns a page of recipients and the total count.
	ListPage(ctx context.Context, page, pageSize int) ([]domain.User, int64, error)
}

// CreateUserRequest is the JSON payload for creating a user.
type CreateUserRequest struct {
	FirstName     string          `json:"first_name" binding:"required,min=1,max=64"`
	LastName      string          `json:"last_name"  binding:"required,min=1,max=200"`
	Email         string          `json:"email"      binding:"required,email"`
	Subscriptions json.RawMessage `json:"subscriptions,omitempty"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListUsersResponse wraps a page of users and pagination information.
type ListUsersResponse struct {
	Users      []domain.User `json:"users"`
	Pagination Pagination    `json:"pagination"`
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// CreateUser registers a new recipient.
func (h *Handlers) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "first_name, last_name and a valid email are required")
		return
	}

	u, err := h.userSvc.Create(c.Request.Context(), req.FirstName, req.LastName, req.Email, req.Subscriptions)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidEmail):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, domain.ErrMalformedSubscriptions):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, services.ErrDuplicateEmail):
			fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, "could not create user")
		}
		return
	}

	ok(c, http.StatusCreated, u)
}

// GetUser fetches one recipient by ID.
func (h *Handlers) GetUser(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user id must be a UUID")
		return
	}

	u, err := h.userSvc.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not fetch user")
		return
	}

	ok(c, http.StatusOK, u)
}

// ListUsers returns a page of recipients.
func (h *Handlers) ListUsers(c *gin.Context) {
	page, pageSize := clampPagination(c)

	items, total, err := h.userSvc.ListPage(c.Request.Context(), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list users")
		return
	}

	totalPages := utils.TotalPages(total, pageSize)
	ok(c, http.StatusOK, ListUsersResponse{
		Users: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}
