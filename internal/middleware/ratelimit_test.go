package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestLimiterStore_AllowAndCleanup(t *testing.T) {
	// allow 5 events immediately then the 6th should be rejected
	s := NewLimiterStore(5, 5, 100*time.Millisecond)
	defer s.Stop()

	key := "user:abc"
	for i := 0; i < 5; i++ {
		if !s.Allow(key) {
			t.Fatalf("expected allow at iteration %d", i)
		}
	}

	if s.Allow(key) {
		t.Fatalf("expected limiter to block after burst consumed")
	}

	// ensure cleanup eventually removes old entries
	s.mu.Lock()
	if e, ok := s.clients[key]; ok {
		e.lastSeen = time.Now().Add(-20 * time.Minute)
	}
	s.mu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		_, ok := s.clients[key]
		s.mu.Unlock()
		if !ok {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("expected cleanup to remove stale entry")
}

func TestRateLimit_KeysByUser(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := NewLimiterStore(1, 1, time.Minute)
	defer store.Stop()

	router := gin.New()
	router.GET("/ping", func(c *gin.Context) {
		c.Set(ContextUserID, c.Query("as"))
		c.Next()
	}, RateLimit(store), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	do := func(user string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping?as="+user, nil)
		router.ServeHTTP(w, req)
		return w.Code
	}

	if code := do("alice"); code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", code)
	}
	if code := do("alice"); code != http.StatusTooManyRequests {
		t.Fatalf("second request for same user should be limited, got %d", code)
	}
	// a different user has its own bucket
	if code := do("bob"); code != http.StatusOK {
		t.Fatalf("request for different user should pass, got %d", code)
	}
}
