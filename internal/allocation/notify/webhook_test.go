package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebhookNotifierPostsTextPayload(t *testing.T) {
	var got webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("unexpected content type %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL)
	err := n.Notify(context.Background(), AlertMessage{
		Year:              2018,
		ReportID:          "report-alloc-2018-20190101",
		ReportURL:         "http://localhost/report",
		RecommendedAction: "add_boiler_associations",
		Diagnostics:       map[string]any{"missing_association": 2},
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got.MsgType != "text" {
		t.Fatalf("expected text msgtype, got %q", got.MsgType)
	}
	for _, want := range []string{"[Allocation Alert]", "Year: 2018", "Suggested: add_boiler_associations", `"missing_association":2`} {
		if !strings.Contains(got.Text.Content, want) {
			t.Fatalf("content %q missing %q", got.Text.Content, want)
		}
	}
}

func TestWebhookNotifierErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	if err := NewWebhookNotifier(server.URL).Notify(context.Background(), AlertMessage{}); !errors.Is(err, ErrWebhookStatus) {
		t.Fatalf("expected ErrWebhookStatus, got %v", err)
	}
	if err := NewWebhookNotifier("").Notify(context.Background(), AlertMessage{}); err == nil {
		t.Fatalf("expected error for empty url")
	}
}
