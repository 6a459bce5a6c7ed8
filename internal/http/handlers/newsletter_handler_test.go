package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-digest-backend/internal/domain"
	"github.com/tbourn/go-digest-backend/internal/services"
)

// fakeNewsletterService implements NewsletterService with canned behavior.
type fakeNewsletterService struct {
	sendFn func(ctx context.Context, key string) (*domain.User, error)
	testFn func(ctx context.Context) (*domain.User, error)
}

func (f *fakeNewsletterService) SendToFirstUser(ctx context.Context, key string) (*domain.User, error) {
	return f.sendFn(ctx, key)
}

func (f *fakeNewsletterService) SendTestEmail(ctx context.Context) (*domain.User, error) {
	return f.testFn(ctx)
}

func newNewsletterRouter(svc NewsletterService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := New(nil, svc)
	r.POST("/newsletters/send", h.SendNewsletter)
	r.POST("/emails/send", h.SendTestEmail)
	return r
}

func TestSendNewsletter_Success(t *testing.T) {
	var gotKey string
	svc := &fakeNewsletterService{
		sendFn: func(_ context.Context, key string) (*domain.User, error) {
			gotKey = key
			return &domain.User{ID: "u1", Email: "ada@example.com"}, nil
		},
	}
	r := newNewsletterRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/newsletters/send", nil)
	req.Header.Set(HeaderIdempotencyKey, "  run-42  ")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
	if gotKey != "run-42" {
		t.Fatalf("idempotency key should be trimmed, got %q", gotKey)
	}
	var resp SendNewsletterResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Email != "ada@example.com" || !strings.Contains(resp.Message, "sent successfully") {
		t.Fatalf("unexpected body: %+v", resp)
	}
}

func TestSendNewsletter_DuplicateDeliveryIsAcknowledged(t *testing.T) {
	svc := &fakeNewsletterService{
		sendFn: func(context.Context, string) (*domain.User, error) {
			return &domain.User{ID: "u1", Email: "ada@example.com"}, services.ErrDuplicateDelivery
		},
	}
	r := newNewsletterRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/newsletters/send", nil)
	req.Header.Set(HeaderIdempotencyKey, "run-42")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("replay should be a 200 acknowledgment, got %d", w.Code)
	}
	var resp SendNewsletterResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.Contains(resp.Message, "already delivered") {
		t.Fatalf("unexpected message: %q", resp.Message)
	}
}

func TestSendNewsletter_KeyTooLong(t *testing.T) {
	called := false
	svc := &fakeNewsletterService{
		sendFn: func(context.Context, string) (*domain.User, error) {
			called = true
			return nil, nil
		},
	}
	r := newNewsletterRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/newsletters/send", nil)
	req.Header.Set(HeaderIdempotencyKey, strings.Repeat("k", maxIdempotencyKeyLen+1))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if called {
		t.Fatal("service must not run with an oversized key")
	}
}

func TestSendNewsletter_ErrorMapping(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{services.ErrNoUsers, http.StatusNotFound, ErrCodeNotFound},
		{domain.ErrMalformedSubscriptions, http.StatusBadRequest, ErrCodeBadRequest},
		{services.ErrNoContent, http.StatusInternalServerError, ErrCodeNoContent},
		{context.DeadlineExceeded, http.StatusInternalServerError, ErrCodeSendFailed},
	}
	for _, c := range cases {
		svc := &fakeNewsletterService{
			sendFn: func(context.Context, string) (*domain.User, error) {
				return &domain.User{Email: "ada@example.com"}, c.err
			},
		}
		r := newNewsletterRouter(svc)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/newsletters/send", nil))

		if w.Code != c.wantStatus {
			t.Fatalf("%v: status = %d, want %d", c.err, w.Code, c.wantStatus)
		}
		var resp ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode error envelope: %v", err)
		}
		if resp.Code != c.wantCode {
			t.Fatalf("%v: code = %q, want %q", c.err, resp.Code, c.wantCode)
		}
	}
}

func TestSendTestEmail_Success(t *testing.T) {
	svc := &fakeNewsletterService{
		testFn: func(context.Context) (*domain.User, error) {
			return &domain.User{Email: "ada@example.com"}, nil
		},
	}
	r := newNewsletterRouter(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/emails/send", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
}

func TestSendTestEmail_NoUsers(t *testing.T) {
	svc := &fakeNewsletterService{
		testFn: func(context.Context) (*domain.User, error) {
			return nil, services.ErrNoUsers
		},
	}
	r := newNewsletterRouter(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/emails/send", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}
