package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "github.com/claimvault/claimvault/internal/errors"
	"github.com/claimvault/claimvault/internal/hybrid"
	"github.com/claimvault/claimvault/internal/recordstore"
	"github.com/claimvault/claimvault/internal/storage"
	"github.com/claimvault/claimvault/pkg/types"
)

func newTestServer(t *testing.T, maxBody int64) (http.Handler, *hybrid.Coordinator) {
	t.Helper()
	dir := t.TempDir()
	backups, err := storage.NewLocalStorage(filepath.Join(dir, "backups"))
	if err != nil {
		t.Fatal(err)
	}
	local, err := recordstore.New(recordstore.Config{
		ClaimsDir: filepath.Join(dir, "claims"),
		EventsDir: filepath.Join(dir, "events"),
		Backups:   backups,
	})
	if err != nil {
		t.Fatal(err)
	}
	c := hybrid.New(local, nil)
	return NewHandler(c, maxBody).Routes(), c
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func TestClaimLifecycleOverHTTP(t *testing.T) {
	h, _ := newTestServer(t, 0)

	rec := do(t, h, http.MethodPost, "/v1/claims", `{"claim_amount": 5000, "description": "vehicle damage"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var saved SaveClaimResponse
	decodeBody(t, rec, &saved)
	if saved.ClaimID == "" || saved.RequestID == "" {
		t.Fatalf("unexpected response: %+v", saved)
	}
	if rec.Header().Get("X-Request-ID") != saved.RequestID {
		t.Error("response body and header request ids differ")
	}

	rec = do(t, h, http.MethodGet, "/v1/claims/"+saved.ClaimID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var claim types.Claim
	decodeBody(t, rec, &claim)
	if claim.Status != types.StatusPending || claim.FraudScore != nil {
		t.Errorf("unexpected claim: %+v", claim)
	}

	rec = do(t, h, http.MethodPatch, "/v1/claims/"+saved.ClaimID, `{"status": "approved", "fraud_score": 0.15}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &claim)
	if claim.Status != "approved" || claim.FraudScore == nil || *claim.FraudScore != 0.15 {
		t.Errorf("unexpected updated claim: %+v", claim)
	}

	rec = do(t, h, http.MethodGet, "/v1/claims?limit=10", "")
	var list ListClaimsResponse
	decodeBody(t, rec, &list)
	if list.Count != 1 || list.Claims[0].ClaimID != saved.ClaimID {
		t.Errorf("unexpected listing: %+v", list)
	}

	rec = do(t, h, http.MethodGet, "/v1/events?entity_id="+saved.ClaimID, "")
	var events ListEventsResponse
	decodeBody(t, rec, &events)
	if events.Count == 0 {
		t.Error("expected events for the claim")
	}

	rec = do(t, h, http.MethodDelete, "/v1/claims/"+saved.ClaimID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/v1/claims/"+saved.ClaimID, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestSaveClaim_ValidationErrors(t *testing.T) {
	h, _ := newTestServer(t, 0)

	tests := []struct {
		name   string
		body   string
		status int
		errors []string
	}{
		{"missing description", `{"claim_amount": 10}`, http.StatusBadRequest, []string{"Missing required field: description"}},
		{"mistyped amount", `{"claim_amount": "ten", "description": "x"}`, http.StatusBadRequest, []string{"claim_amount must be a number"}},
		{"malformed json", `{"claim_amount":`, http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/v1/claims", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			var resp ErrorResponse
			decodeBody(t, rec, &resp)
			if resp.RequestID == "" {
				t.Error("error response should carry the request id")
			}
			if tt.errors != nil && strings.Join(resp.Errors, ",") != strings.Join(tt.errors, ",") {
				t.Errorf("errors = %v, want %v", resp.Errors, tt.errors)
			}
		})
	}
}

func TestUpdateClaim_Errors(t *testing.T) {
	h, c := newTestServer(t, 0)
	id, err := c.SaveClaim(context.Background(), types.NewClaim(1, "x"))
	if err != nil {
		t.Fatal(err)
	}

	if rec := do(t, h, http.MethodPatch, "/v1/claims/ghost", `{"status": "approved"}`); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPatch, "/v1/claims/"+id, `{"claim_id": "other"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for immutable field, got %d", rec.Code)
	}
}

func TestDeleteClaim_Missing(t *testing.T) {
	h, _ := newTestServer(t, 0)
	if rec := do(t, h, http.MethodDelete, "/v1/claims/ghost", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestListClaims_BadQuery(t *testing.T) {
	h, _ := newTestServer(t, 0)
	for _, target := range []string{"/v1/claims?limit=abc", "/v1/claims?offset=x", "/v1/events?limit=1.5"} {
		if rec := do(t, h, http.MethodGet, target, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, rec.Code)
		}
	}
}

func TestEvents(t *testing.T) {
	h, _ := newTestServer(t, 0)

	rec := do(t, h, http.MethodPost, "/v1/events", `{"event_type": "fraud_scored", "entity_id": "claim-9", "data": {"score": 0.4}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var saved SaveEventResponse
	decodeBody(t, rec, &saved)

	rec = do(t, h, http.MethodGet, "/v1/events?entity_id=claim-9", "")
	var list ListEventsResponse
	decodeBody(t, rec, &list)
	if list.Count != 1 || list.Events[0].EventID != saved.EventID {
		t.Errorf("unexpected events: %+v", list)
	}

	rec = do(t, h, http.MethodPost, "/v1/events", `{"event_type": "fraud_scored"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing entity_id, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t, 0)
	do(t, h, http.MethodGet, "/v1/claims/ghost", "")

	rec := do(t, h, http.MethodGet, "/health", "")
	var resp HealthResponse
	decodeBody(t, rec, &resp)
	if resp.Status != "ok" || resp.Mode != hybrid.ModeLocalOnly || resp.Remote != nil {
		t.Errorf("unexpected health: %+v", resp)
	}
	if len(resp.Routes) != 1 || resp.Routes[0].Operation != "get_claim" || resp.Routes[0].Count != 1 {
		t.Errorf("unexpected routes: %+v", resp.Routes)
	}
}

func TestBodyLimit(t *testing.T) {
	h, _ := newTestServer(t, 32)
	body := `{"claim_amount": 1, "description": "` + strings.Repeat("x", 64) + `"}`
	if rec := do(t, h, http.MethodPost, "/v1/claims", body); rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperrors.NewValidationError(apperrors.CodeInvalidClaim, "bad"), http.StatusBadRequest},
		{apperrors.NewNotFoundError("x"), http.StatusNotFound},
		{apperrors.NewRemoteError(apperrors.CodeRequestFailed, "down", nil), http.StatusBadGateway},
		{apperrors.NewStorageError(apperrors.CodeWriteFailed, "disk", nil), http.StatusInternalServerError},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := DefaultMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := do(t, h, http.MethodGet, "/", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestCorrelationIDPropagation(t *testing.T) {
	h, _ := newTestServer(t, 0)
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set("X-Correlation-ID", "corr-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Header().Get("X-Correlation-ID") != "corr-1" {
		t.Errorf("correlation id = %q", rec.Header().Get("X-Correlation-ID"))
	}
}

func TestLoggingIncludesCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	h, _ := newTestServer(t, 0)
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set("X-Correlation-ID", "corr-2")
	h.ServeHTTP(httptest.NewRecorder(), r)

	if !strings.Contains(buf.String(), "correlation_id=corr-2") {
		t.Errorf("access log missing correlation id: %q", buf.String())
	}
}

func TestClaimBackupsOverHTTP(t *testing.T) {
	h, _ := newTestServer(t, 0)

	rec := do(t, h, http.MethodPost, "/v1/claims", `{"claim_amount": 800, "description": "hail damage"}`)
	var saved SaveClaimResponse
	decodeBody(t, rec, &saved)
	base := "/v1/claims/" + saved.ClaimID + "/backups"

	var list ListBackupsResponse
	decodeBody(t, do(t, h, http.MethodGet, base, ""), &list)
	if list.Count != 0 || list.Backups == nil {
		t.Fatalf("expected an empty backup list, got %+v", list)
	}

	if rec := do(t, h, http.MethodPatch, "/v1/claims/"+saved.ClaimID, `{"status": "approved"}`); rec.Code != http.StatusOK {
		t.Fatalf("update failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, base, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	decodeBody(t, rec, &list)
	if list.Count != 1 || list.ClaimID != saved.ClaimID {
		t.Fatalf("expected one backup, got %+v", list)
	}

	rec = do(t, h, http.MethodGet, base+"/"+list.Backups[0], "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var old types.Claim
	decodeBody(t, rec, &old)
	if old.Status != types.StatusPending || old.Description != "hail damage" {
		t.Errorf("backup should hold the pre-update claim, got %+v", old)
	}

	if rec := do(t, h, http.MethodGet, "/v1/claims/other/backups/"+list.Backups[0], ""); rec.Code != http.StatusNotFound {
		t.Errorf("backup of another claim: expected 404, got %d", rec.Code)
	}
}
