package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/claimvault/claimvault/internal/hybrid"
	"github.com/claimvault/claimvault/internal/observability"
	"github.com/claimvault/claimvault/internal/remote"
	"github.com/claimvault/claimvault/internal/validate"
	"github.com/claimvault/claimvault/pkg/types"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// ClaimService is the subset of the hybrid coordinator the API needs.
type ClaimService interface {
	SaveClaimFromMap(ctx context.Context, data map[string]any) (string, error)
	GetClaim(ctx context.Context, id string) (*types.Claim, error)
	ListClaims(ctx context.Context, limit, offset int) ([]*types.Claim, error)
	UpdateClaim(ctx context.Context, id string, u types.ClaimUpdate) (*types.Claim, error)
	DeleteClaim(ctx context.Context, id string) (bool, error)
	SaveEvent(ctx context.Context, e *types.Event) string
	ListEvents(ctx context.Context, entityID string, limit int) []*types.Event
	ListBackups(ctx context.Context, id string) ([]string, error)
	ReadBackup(ctx context.Context, id, name string) (*types.Claim, error)
	Status() hybrid.Status
	Routes() []observability.RouteCount
}

// SaveClaimResponse is returned by POST /v1/claims.
type SaveClaimResponse struct {
	ClaimID   string `json:"claim_id"`
	RequestID string `json:"request_id"`
}

// ListClaimsResponse is returned by GET /v1/claims.
type ListClaimsResponse struct {
	Claims    []*types.Claim `json:"claims"`
	Count     int            `json:"count"`
	Limit     int            `json:"limit"`
	Offset    int            `json:"offset"`
	RequestID string         `json:"request_id"`
}

// DeleteClaimResponse is returned by DELETE /v1/claims/{id}.
type DeleteClaimResponse struct {
	ClaimID   string `json:"claim_id"`
	Deleted   bool   `json:"deleted"`
	RequestID string `json:"request_id"`
}

// SaveEventResponse is returned by POST /v1/events.
type SaveEventResponse struct {
	EventID   string `json:"event_id"`
	RequestID string `json:"request_id"`
}

// ListEventsResponse is returned by GET /v1/events.
type ListEventsResponse struct {
	Events    []*types.Event `json:"events"`
	Count     int            `json:"count"`
	RequestID string         `json:"request_id"`
}

// ListBackupsResponse is returned by GET /v1/claims/{id}/backups.
type ListBackupsResponse struct {
	ClaimID   string   `json:"claim_id"`
	Backups   []string `json:"backups"`
	Count     int      `json:"count"`
	RequestID string   `json:"request_id"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string               `json:"status"`
	Mode   string               `json:"mode"`
	Remote *remote.HealthStatus `json:"remote,omitempty"`

	Routes []observability.RouteCount `json:"routes"`
}

// Handler serves the claim API.
type Handler struct {
	svc     ClaimService
	maxBody int64
}

// NewHandler creates a Handler. Request bodies larger than maxBody bytes
// are rejected; maxBody <= 0 disables the limit.
func NewHandler(svc ClaimService, maxBody int64) *Handler {
	return &Handler{svc: svc, maxBody: maxBody}
}

// Routes returns the API mux wrapped in the default middleware chain.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/claims", h.saveClaim)
	mux.HandleFunc("GET /v1/claims", h.listClaims)
	mux.HandleFunc("GET /v1/claims/{id}", h.getClaim)
	mux.HandleFunc("PATCH /v1/claims/{id}", h.updateClaim)
	mux.HandleFunc("DELETE /v1/claims/{id}", h.deleteClaim)
	mux.HandleFunc("GET /v1/claims/{id}/backups", h.listBackups)
	mux.HandleFunc("GET /v1/claims/{id}/backups/{name}", h.getBackup)
	mux.HandleFunc("POST /v1/events", h.saveEvent)
	mux.HandleFunc("GET /v1/events", h.listEvents)
	mux.HandleFunc("GET /health", h.health)
	return DefaultMiddleware()(mux)
}

func (h *Handler) saveClaim(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	var data map[string]any
	if !h.decode(w, r, &data) {
		return
	}

	id, err := h.svc.SaveClaimFromMap(r.Context(), data)
	if err != nil {
		writeAppError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusCreated, SaveClaimResponse{ClaimID: id, RequestID: requestID})
}

func (h *Handler) listClaims(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), requestID)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), requestID)
		return
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	claims, err := h.svc.ListClaims(r.Context(), limit, offset)
	if err != nil {
		writeAppError(w, err, requestID)
		return
	}
	if claims == nil {
		claims = []*types.Claim{}
	}
	writeJSON(w, http.StatusOK, ListClaimsResponse{
		Claims:    claims,
		Count:     len(claims),
		Limit:     limit,
		Offset:    offset,
		RequestID: requestID,
	})
}

func (h *Handler) getClaim(w http.ResponseWriter, r *http.Request) {
	claim, err := h.svc.GetClaim(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, err, GetRequestID(r.Context()))
		return
	}
	writeJSON(w, http.StatusOK, claim)
}

func (h *Handler) updateClaim(w http.ResponseWriter, r *http.Request) {
	var u types.ClaimUpdate
	if !h.decode(w, r, &u) {
		return
	}

	claim, err := h.svc.UpdateClaim(r.Context(), r.PathValue("id"), u)
	if err != nil {
		writeAppError(w, err, GetRequestID(r.Context()))
		return
	}
	writeJSON(w, http.StatusOK, claim)
}

func (h *Handler) deleteClaim(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	id := r.PathValue("id")

	ok, err := h.svc.DeleteClaim(r.Context(), id)
	if err != nil {
		writeAppError(w, err, requestID)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("claim %s was not deleted from every store", id), requestID)
		return
	}
	writeJSON(w, http.StatusOK, DeleteClaimResponse{ClaimID: id, Deleted: true, RequestID: requestID})
}

func (h *Handler) listBackups(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	id := r.PathValue("id")

	names, err := h.svc.ListBackups(r.Context(), id)
	if err != nil {
		writeAppError(w, err, requestID)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, ListBackupsResponse{ClaimID: id, Backups: names, Count: len(names), RequestID: requestID})
}

func (h *Handler) getBackup(w http.ResponseWriter, r *http.Request) {
	claim, err := h.svc.ReadBackup(r.Context(), r.PathValue("id"), r.PathValue("name"))
	if err != nil {
		writeAppError(w, err, GetRequestID(r.Context()))
		return
	}
	writeJSON(w, http.StatusOK, claim)
}

func (h *Handler) saveEvent(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	var e types.Event
	if !h.decode(w, r, &e) {
		return
	}
	e.ApplyDefaults()
	if err := validate.Event(&e); err != nil {
		writeAppError(w, err, requestID)
		return
	}

	id := h.svc.SaveEvent(r.Context(), &e)
	if id == "" {
		writeError(w, http.StatusInternalServerError, "failed to save event", requestID)
		return
	}
	writeJSON(w, http.StatusCreated, SaveEventResponse{EventID: id, RequestID: requestID})
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), requestID)
		return
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	events := h.svc.ListEvents(r.Context(), r.URL.Query().Get("entity_id"), limit)
	if events == nil {
		events = []*types.Event{}
	}
	writeJSON(w, http.StatusOK, ListEventsResponse{Events: events, Count: len(events), RequestID: requestID})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	st := h.svc.Status()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Mode:   st.Mode,
		Remote: st.Remote,
		Routes: h.svc.Routes(),
	})
}

// decode reads a JSON body into v, writing a 400 or 413 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	requestID := GetRequestID(r.Context())
	body := r.Body
	if h.maxBody > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", requestID)
			return false
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), requestID)
		return false
	}
	return true
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}
