package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := RequestID()(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	rid, _ := c.Get("request_id").(string)
	if rid == "" {
		t.Fatal("expected request_id to be set on context")
	}
	if got := rec.Header().Get("X-Request-ID"); got != rid {
		t.Errorf("expected response header %q, got %q", rid, got)
	}
}

func TestRequestID_HonorsClientHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "client-supplied-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := RequestID()(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	if rid, _ := c.Get("request_id").(string); rid != "client-supplied-id" {
		t.Errorf("expected client-supplied id, got %q", rid)
	}
}

func TestRecovery_ConvertsPanicToHTTPError(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := Recovery(zerolog.Nop())(func(c echo.Context) error {
		panic("boom")
	})

	err := h(c)
	if err == nil {
		t.Fatal("expected error from recovered panic")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", httpErr.Code)
	}
}

func TestRateLimit_ExhaustsBurst(t *testing.T) {
	e := echo.New()
	cfg := RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 2}
	mw := RateLimit(cfg)

	handler := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	call := func() error {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		return handler(e.NewContext(req, rec))
	}

	for i := 0; i < 2; i++ {
		if err := call(); err != nil {
			t.Fatalf("request %d should be allowed: %v", i, err)
		}
	}

	err := call()
	if err == nil {
		t.Fatal("expected third request to be rejected")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
}

func TestRateLimit_SeparateKeysPerUser(t *testing.T) {
	e := echo.New()
	cfg := RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 1}
	mw := RateLimit(cfg)

	handler := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	call := func(userID string) error {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.Set("auth_user_id", userID)
		return handler(c)
	}

	if err := call("user-a"); err != nil {
		t.Fatalf("user-a first request should pass: %v", err)
	}
	if err := call("user-a"); err == nil {
		t.Fatal("user-a second request should be limited")
	}
	if err := call("user-b"); err != nil {
		t.Fatalf("user-b should have its own bucket: %v", err)
	}
}
