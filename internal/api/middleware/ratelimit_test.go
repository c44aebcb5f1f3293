package middleware

import (
	"testing"
	"time"
)

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(1, 2)

	if !rl.Allow("10.0.0.1") || !rl.Allow("10.0.0.1") {
		t.Fatal("requests within burst must be allowed")
	}
	if rl.Allow("10.0.0.1") {
		t.Fatal("request past burst must be denied")
	}
	if !rl.Allow("10.0.0.2") {
		t.Fatal("limits must be tracked per key")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	rl.Allow("10.0.0.1")

	rl.visitors["10.0.0.1"].lastSeen = time.Now().Add(-time.Hour)
	rl.Allow("10.0.0.2")

	rl.Cleanup(10 * time.Minute)

	if _, ok := rl.visitors["10.0.0.1"]; ok {
		t.Fatal("stale visitor must be evicted")
	}
	if _, ok := rl.visitors["10.0.0.2"]; !ok {
		t.Fatal("recent visitor must survive cleanup")
	}
}
