// Package hybrid combines the local record store and the remote store
// behind one interface.
//
// Writes always go to the local store first and must succeed there; the
// remote store receives a best-effort mirror. Reads prefer the remote store
// when it is in use. Deletes must succeed in both stores.
package hybrid

import (
	"context"
	"log"
	"time"

	apperrors "github.com/claimvault/claimvault/internal/errors"
	"github.com/claimvault/claimvault/internal/observability"
	"github.com/claimvault/claimvault/internal/remote"
	"github.com/claimvault/claimvault/internal/validate"
	"github.com/claimvault/claimvault/pkg/types"
)

// LocalStore is the authoritative store.
type LocalStore interface {
	SaveClaim(ctx context.Context, c *types.Claim) (string, error)
	GetClaim(ctx context.Context, id string) (*types.Claim, error)
	ListClaims(ctx context.Context, limit, offset int) ([]*types.Claim, error)
	DeleteClaim(ctx context.Context, id string) (bool, error)
	SaveEvent(ctx context.Context, e *types.Event) string
	ListEvents(ctx context.Context, entityID string, limit int) []*types.Event
	ListBackups(ctx context.Context, id string) ([]string, error)
	ReadBackup(ctx context.Context, id, name string) (*types.Claim, error)
}

// RemoteStore is the mirrored store.
type RemoteStore interface {
	IsHealthy() bool
	HealthStatus() remote.HealthStatus
	SaveClaim(ctx context.Context, c *types.Claim) (string, error)
	GetClaim(ctx context.Context, id string) (*types.Claim, error)
	ListClaims(ctx context.Context, limit, offset int) ([]*types.Claim, error)
	DeleteClaim(ctx context.Context, id string) (bool, error)
	SaveEvent(ctx context.Context, e *types.Event) (string, error)
	ListEvents(ctx context.Context, entityID string, limit int) ([]*types.Event, error)
}

// Coordinator routes operations between a LocalStore and an optional
// RemoteStore. Its fields are set at construction and never modified, so
// it is safe for concurrent use.
type Coordinator struct {
	local     LocalStore
	remote    RemoteStore
	useRemote bool
	status    Status
	stats     *observability.RouteStats
}

// Status describes how the Coordinator is routing.
type Status struct {
	Mode   string               `json:"mode"`
	Remote *remote.HealthStatus `json:"remote,omitempty"`
}

// Routing modes reported by Status.
const (
	ModeHybrid    = "hybrid"
	ModeLocalOnly = "local-only"
)

// Operation names recorded in route stats.
const (
	opSaveClaim   = "save_claim"
	opGetClaim    = "get_claim"
	opListClaims  = "list_claims"
	opDeleteClaim = "delete_claim"
	opSaveEvent   = "save_event"
	opListEvents  = "list_events"
	opBackups     = "claim_backups"
)

const statsWindow = 24 * time.Hour

// New creates a Coordinator. The remote store is used only if it is
// non-nil and healthy now; otherwise it is discarded for the lifetime of
// the Coordinator.
func New(local LocalStore, rs RemoteStore) *Coordinator {
	c := &Coordinator{
		local:  local,
		status: Status{Mode: ModeLocalOnly},
		stats:  observability.NewRouteStats(statsWindow),
	}
	if isNil(rs) {
		log.Printf("hybrid: no remote store, running local-only")
		return c
	}

	hs := rs.HealthStatus()
	c.status.Remote = &hs
	if !rs.IsHealthy() {
		log.Printf("[WARN] hybrid: remote store unhealthy, running local-only")
		return c
	}

	c.remote = rs
	c.useRemote = true
	c.status.Mode = ModeHybrid
	log.Printf("hybrid: remote store in use")
	return c
}

// isNil reports whether rs is nil or wraps a nil *remote.Store.
func isNil(rs RemoteStore) bool {
	if rs == nil {
		return true
	}
	s, ok := rs.(*remote.Store)
	return ok && s == nil
}

// UsingRemote reports whether operations are mirrored to the remote store.
func (c *Coordinator) UsingRemote() bool {
	return c.useRemote
}

// Status returns the routing status.
func (c *Coordinator) Status() Status {
	return c.status
}

// Routes returns per-operation routing counts.
func (c *Coordinator) Routes() []observability.RouteCount {
	c.stats.Prune()
	return c.stats.Snapshot()
}

// SaveClaim saves c locally, then mirrors it to the remote store. Only the
// local write can fail the call.
func (c *Coordinator) SaveClaim(ctx context.Context, claim *types.Claim) (string, error) {
	id, err := c.local.SaveClaim(ctx, claim)
	if err != nil {
		return "", err
	}

	if !c.useRemote {
		c.stats.Record(opSaveClaim, observability.OutcomeLocal)
		return id, nil
	}
	if _, err := c.remote.SaveClaim(ctx, claim); err != nil {
		log.Printf("[WARN] hybrid: failed to mirror claim %s to remote store: %v", id, err)
		c.stats.Record(opSaveClaim, observability.OutcomeMirrorFailed)
		return id, nil
	}
	c.stats.Record(opSaveClaim, observability.OutcomeMirrored)
	return id, nil
}

// SaveClaimFromMap validates a loosely typed claim and saves it.
func (c *Coordinator) SaveClaimFromMap(ctx context.Context, data map[string]any) (string, error) {
	claim, err := validate.ClaimFromMap(data)
	if err != nil {
		return "", err
	}
	return c.SaveClaim(ctx, claim)
}

// GetClaim returns a claim, asking the remote store first when it is in
// use. A remote hit is returned without reading the local store.
func (c *Coordinator) GetClaim(ctx context.Context, id string) (*types.Claim, error) {
	if c.useRemote {
		claim, err := c.remote.GetClaim(ctx, id)
		if err == nil {
			c.stats.Record(opGetClaim, observability.OutcomeRemote)
			return claim, nil
		}
		if !apperrors.IsNotFound(err) {
			log.Printf("[WARN] hybrid: remote get of claim %s failed, reading local store: %v", id, err)
		}
		c.stats.Record(opGetClaim, observability.OutcomeFallback)
		return c.local.GetClaim(ctx, id)
	}
	c.stats.Record(opGetClaim, observability.OutcomeLocal)
	return c.local.GetClaim(ctx, id)
}

// ListClaims returns the remote listing when it is non-empty, otherwise
// the local one. Results are never merged.
func (c *Coordinator) ListClaims(ctx context.Context, limit, offset int) ([]*types.Claim, error) {
	if c.useRemote {
		claims, err := c.remote.ListClaims(ctx, limit, offset)
		if err != nil {
			log.Printf("[WARN] hybrid: remote list of claims failed, reading local store: %v", err)
		} else if len(claims) > 0 {
			c.stats.Record(opListClaims, observability.OutcomeRemote)
			return claims, nil
		}
		c.stats.Record(opListClaims, observability.OutcomeFallback)
		return c.local.ListClaims(ctx, limit, offset)
	}
	c.stats.Record(opListClaims, observability.OutcomeLocal)
	return c.local.ListClaims(ctx, limit, offset)
}

// UpdateClaim reads the claim through GetClaim, merges u over it and saves
// the result through SaveClaim. A claim missing from both stores yields a
// NOT_FOUND error.
//
// Concurrent updates to the same claim are not serialized: each merges
// over the record it read and the last save wins.
func (c *Coordinator) UpdateClaim(ctx context.Context, id string, u types.ClaimUpdate) (*types.Claim, error) {
	current, err := c.GetClaim(ctx, id)
	if err != nil {
		return nil, err
	}

	merged, err := validate.ApplyUpdate(current, u)
	if err != nil {
		return nil, err
	}
	if _, err := c.SaveClaim(ctx, merged); err != nil {
		return nil, err
	}

	c.SaveEvent(ctx, types.NewEvent(types.EventClaimUpdated, id, map[string]any{"fields_updated": u.Fields()}))
	return merged, nil
}

// DeleteClaim deletes from the local store and, when in use, the remote
// store. It reports true only if every store it was sent to deleted the
// claim.
func (c *Coordinator) DeleteClaim(ctx context.Context, id string) (bool, error) {
	localOK, localErr := c.local.DeleteClaim(ctx, id)
	if !c.useRemote {
		c.stats.Record(opDeleteClaim, observability.OutcomeLocal)
		return localOK, localErr
	}

	remoteOK, remoteErr := c.remote.DeleteClaim(ctx, id)
	if remoteErr != nil {
		log.Printf("[WARN] hybrid: remote delete of claim %s failed: %v", id, remoteErr)
	}
	if localErr != nil {
		return false, localErr
	}
	if !localOK || !remoteOK {
		if localOK != remoteOK {
			log.Printf("[WARN] hybrid: claim %s deleted in only one store (local=%v remote=%v)", id, localOK, remoteOK)
			c.stats.Record(opDeleteClaim, observability.OutcomePartial)
		}
		return false, remoteErr
	}
	c.stats.Record(opDeleteClaim, observability.OutcomeMirrored)
	return true, nil
}

// SaveEvent records e locally and mirrors it. It never fails; an empty
// ID means the local write failed.
func (c *Coordinator) SaveEvent(ctx context.Context, e *types.Event) string {
	id := c.local.SaveEvent(ctx, e)
	if id == "" {
		return ""
	}

	if !c.useRemote {
		c.stats.Record(opSaveEvent, observability.OutcomeLocal)
		return id
	}
	if _, err := c.remote.SaveEvent(ctx, e); err != nil {
		log.Printf("[WARN] hybrid: failed to mirror event %s to remote store: %v", id, err)
		c.stats.Record(opSaveEvent, observability.OutcomeMirrorFailed)
		return id
	}
	c.stats.Record(opSaveEvent, observability.OutcomeMirrored)
	return id
}

// ListEvents returns the remote listing when it is non-empty, otherwise
// the local one.
func (c *Coordinator) ListEvents(ctx context.Context, entityID string, limit int) []*types.Event {
	if c.useRemote {
		events, err := c.remote.ListEvents(ctx, entityID, limit)
		if err != nil {
			log.Printf("[WARN] hybrid: remote list of events failed, reading local store: %v", err)
		} else if len(events) > 0 {
			c.stats.Record(opListEvents, observability.OutcomeRemote)
			return events
		}
		c.stats.Record(opListEvents, observability.OutcomeFallback)
		return c.local.ListEvents(ctx, entityID, limit)
	}
	c.stats.Record(opListEvents, observability.OutcomeLocal)
	return c.local.ListEvents(ctx, entityID, limit)
}

// ListBackups returns the backup names of a claim. Backups exist only on
// the local side.
func (c *Coordinator) ListBackups(ctx context.Context, id string) ([]string, error) {
	c.stats.Record(opBackups, observability.OutcomeLocal)
	return c.local.ListBackups(ctx, id)
}

// ReadBackup returns the claim as it was stored in one of its backups.
func (c *Coordinator) ReadBackup(ctx context.Context, id, name string) (*types.Claim, error) {
	c.stats.Record(opBackups, observability.OutcomeLocal)
	return c.local.ReadBackup(ctx, id, name)
}
