package listener

import (
	"testing"
	"time"
)

func TestConnRateLimiterAllowsBurstThenBlocks(t *testing.T) {
	rl := newConnRateLimiter(3, time.Minute)
	addr := "203.0.113.5:51515"

	for i := 0; i < 3; i++ {
		if !rl.allow(addr) {
			t.Fatalf("expected connection %d to be allowed within burst", i)
		}
	}
	if rl.allow(addr) {
		t.Fatal("expected 4th connection to be rejected once burst is exhausted")
	}
}

func TestConnRateLimiterTracksIPsIndependently(t *testing.T) {
	rl := newConnRateLimiter(1, time.Minute)

	if !rl.allow("198.51.100.1:1234") {
		t.Fatal("expected first IP's first connection to be allowed")
	}
	if !rl.allow("198.51.100.2:5678") {
		t.Fatal("expected second IP's first connection to be allowed independently")
	}
	if rl.allow("198.51.100.1:1234") {
		t.Fatal("expected first IP's second connection to be rejected")
	}
}

func TestClientIPStripsPort(t *testing.T) {
	if got := clientIP("203.0.113.5:51515"); got != "203.0.113.5" {
		t.Errorf("clientIP() = %q, want %q", got, "203.0.113.5")
	}
}

func TestClientIPFallsBackOnMalformedAddr(t *testing.T) {
	if got := clientIP("not-a-host-port"); got != "not-a-host-port" {
		t.Errorf("clientIP() = %q, want passthrough", got)
	}
}
