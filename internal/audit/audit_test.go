package audit

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNormalize(t *testing.T) {
	now := time.Date(2019, time.March, 4, 3, 0, 0, 0, time.FixedZone("x", 3600))
	meta := json.RawMessage(`{"year":2018}`)
	entry := normalize(Entry{Action: "allocation.run", Metadata: meta}, now)

	if !strings.HasPrefix(entry.ID, "audit-") {
		t.Fatalf("unexpected id %q", entry.ID)
	}
	if entry.CreatedAt.Location() != time.UTC || !entry.CreatedAt.Equal(now) {
		t.Fatalf("expected utc timestamp, got %v", entry.CreatedAt)
	}
	if entry.PayloadDigest != DigestJSON(meta) || len(entry.PayloadDigest) != 64 {
		t.Fatalf("unexpected digest %q", entry.PayloadDigest)
	}

	kept := normalize(Entry{ID: "audit-1", PayloadDigest: "d"}, now)
	if kept.ID != "audit-1" || kept.PayloadDigest != "d" {
		t.Fatalf("existing fields must be kept: %+v", kept)
	}
}

func TestClientIP(t *testing.T) {
	trusted, err := ParseTrustedProxies("10.0.0.0/8, 192.168.1.5")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.7:5555"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")
	req.Header.Set("X-Real-IP", "5.6.7.8")
	if got := ClientIP(req, trusted); got != "203.0.113.7" {
		t.Fatalf("untrusted peer must not be able to spoof headers, got %q", got)
	}
	if got := ClientIP(req, nil); got != "203.0.113.7" {
		t.Fatalf("no trusted proxies: %q", got)
	}

	req.RemoteAddr = "10.1.2.3:443"
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 198.51.100.9, 192.168.1.5")
	if got := ClientIP(req, trusted); got != "198.51.100.9" {
		t.Fatalf("expected first untrusted hop from the right, got %q", got)
	}
	req.Header.Set("X-Forwarded-For", "10.9.9.9, 192.168.1.5")
	if got := ClientIP(req, trusted); got != "10.9.9.9" {
		t.Fatalf("all hops trusted: expected leftmost, got %q", got)
	}
	req.Header.Del("X-Forwarded-For")
	if got := ClientIP(req, trusted); got != "5.6.7.8" {
		t.Fatalf("real ip from trusted proxy: %q", got)
	}
	if ClientIP(nil, trusted) != "" {
		t.Fatalf("nil request must yield empty ip")
	}
	if _, err := ParseTrustedProxies("not-an-ip"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestJoinPlantIDs(t *testing.T) {
	if got := joinPlantIDs([]int{3, 50307}); got != "3,50307" {
		t.Fatalf("unexpected join %q", got)
	}
	if joinPlantIDs(nil) != "" {
		t.Fatalf("expected empty join")
	}
}
