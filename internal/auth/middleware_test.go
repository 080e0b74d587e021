package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func wrapOK(secret []byte) http.Handler {
	mw := NewMiddleware(secret, NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil))
	return mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAuthMiddleware_NoToken(t *testing.T) {
	handler := wrapOK([]byte("test-secret"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/allocation/reports", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestAuthMiddleware_ExemptPath(t *testing.T) {
	handler := wrapOK([]byte("test-secret"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestAuthMiddleware_ViewerForbiddenRun(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, RoleViewer, nil)
	handler := wrapOK(secret)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/allocation/run", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestAuthMiddleware_ViewerForbiddenReplay(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, RoleViewer, nil)
	handler := wrapOK(secret)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/allocation/reports/report-1/replay", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestAuthMiddleware_ViewerReadsReports(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, RoleViewer, []int{50307})
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil))
	var plants []int
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		plants = PlantIDsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/allocation/reports/report-1/export.xlsx", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if len(plants) != 1 || plants[0] != 50307 {
		t.Fatalf("expected plant scope in context, got %v", plants)
	}
}

func TestAuthMiddleware_AdminRuns(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, RoleAdmin, nil)
	handler := wrapOK(secret)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/allocation/run", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestParseJWT_Expired(t *testing.T) {
	secret := []byte("test-secret")
	token, err := IssueJWT(secret, "user-1", RoleAdmin, nil, -time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := ParseJWT(token, secret); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}

func TestPlantsAllowed(t *testing.T) {
	unrestricted := WithIdentity(context.Background(), RoleViewer, "u", nil)
	if !PlantsAllowed(unrestricted, nil) || !PlantsAllowed(unrestricted, []int{1, 2}) {
		t.Fatalf("unrestricted caller must see every plant")
	}
	restricted := WithIdentity(context.Background(), RoleViewer, "u", []int{1, 2})
	if !PlantsAllowed(restricted, []int{2}) {
		t.Fatalf("expected plant 2 allowed")
	}
	if PlantsAllowed(restricted, []int{2, 3}) {
		t.Fatalf("plant 3 must be rejected")
	}
	if PlantsAllowed(restricted, nil) {
		t.Fatalf("restricted caller cannot request all plants")
	}
}

func mustToken(t *testing.T, secret []byte, role Role, plantIDs []int) string {
	t.Helper()
	signed, err := IssueJWT(secret, "user-1", role, plantIDs, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
