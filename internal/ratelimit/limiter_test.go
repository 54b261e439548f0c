package ratelimit

import (
	"errors"
	"testing"
	"time"

	"github.com/hideyau28/hk-marketplace-sub002/internal/apperr"
)

func newTestLimiter(max int, routes []string) (*Limiter, *time.Time) {
	l := New(time.Minute, max, routes)
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	l.nowFunc = func() time.Time { return now }
	return l, &now
}

func TestCheck_AllowsUpToMax(t *testing.T) {
	l, _ := newTestLimiter(3, []string{"POST:/orders"})

	for i := 0; i < 3; i++ {
		if err := l.Check("1.2.3.4", "POST:/orders"); err != nil {
			t.Fatalf("request %d should pass: %v", i+1, err)
		}
	}
	err := l.Check("1.2.3.4", "POST:/orders")
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Code != apperr.CodeRateLimited {
		t.Fatalf("expected RATE_LIMITED on request 4, got %v", err)
	}
}

func TestCheck_WindowResets(t *testing.T) {
	l, now := newTestLimiter(1, []string{"POST:/orders"})

	if err := l.Check("1.2.3.4", "POST:/orders"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if err := l.Check("1.2.3.4", "POST:/orders"); err == nil {
		t.Fatal("second request in the window must be limited")
	}

	*now = now.Add(61 * time.Second)
	if err := l.Check("1.2.3.4", "POST:/orders"); err != nil {
		t.Fatalf("request after window reset must pass: %v", err)
	}
}

func TestCheck_ClientsAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, []string{"POST:/orders"})

	if err := l.Check("1.2.3.4", "POST:/orders"); err != nil {
		t.Fatalf("client a: %v", err)
	}
	if err := l.Check("5.6.7.8", "POST:/orders"); err != nil {
		t.Fatalf("one client's burst must not limit another: %v", err)
	}
}

func TestCheck_UnlistedRouteIsUnthrottled(t *testing.T) {
	l, _ := newTestLimiter(1, []string{"POST:/orders"})

	for i := 0; i < 50; i++ {
		if err := l.Check("1.2.3.4", "GET:/orders"); err != nil {
			t.Fatalf("unlisted route must never be limited: %v", err)
		}
	}
}

func TestSweep_DropsExpiredBuckets(t *testing.T) {
	l, now := newTestLimiter(5, []string{"POST:/orders"})

	for i := 0; i < 20; i++ {
		_ = l.Check("client-"+string(rune('a'+i)), "POST:/orders")
	}
	if len(l.buckets) != 20 {
		t.Fatalf("expected 20 live buckets, got %d", len(l.buckets))
	}

	*now = now.Add(2 * time.Minute)
	_ = l.Check("fresh-client", "POST:/orders")
	if len(l.buckets) != 1 {
		t.Fatalf("sweep should drop expired buckets, got %d", len(l.buckets))
	}
}
