package hybrid

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	apperrors "github.com/claimvault/claimvault/internal/errors"
	"github.com/claimvault/claimvault/internal/recordstore"
	"github.com/claimvault/claimvault/internal/remote"
	"github.com/claimvault/claimvault/internal/storage"
	"github.com/claimvault/claimvault/pkg/types"
)

// countingLocal wraps a real record store and counts calls.
type countingLocal struct {
	*recordstore.Store
	mu    sync.Mutex
	calls map[string]int
}

func newCountingLocal(t *testing.T) *countingLocal {
	t.Helper()
	dir := t.TempDir()
	backups, err := storage.NewLocalStorage(filepath.Join(dir, "backups"))
	if err != nil {
		t.Fatal(err)
	}
	s, err := recordstore.New(recordstore.Config{
		ClaimsDir: filepath.Join(dir, "claims"),
		EventsDir: filepath.Join(dir, "events"),
		Backups:   backups,
	})
	if err != nil {
		t.Fatal(err)
	}
	return &countingLocal{Store: s, calls: map[string]int{}}
}

func (l *countingLocal) inc(op string) {
	l.mu.Lock()
	l.calls[op]++
	l.mu.Unlock()
}

func (l *countingLocal) count(op string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[op]
}

func (l *countingLocal) SaveClaim(ctx context.Context, c *types.Claim) (string, error) {
	l.inc("SaveClaim")
	return l.Store.SaveClaim(ctx, c)
}

func (l *countingLocal) GetClaim(ctx context.Context, id string) (*types.Claim, error) {
	l.inc("GetClaim")
	return l.Store.GetClaim(ctx, id)
}

func (l *countingLocal) ListClaims(ctx context.Context, limit, offset int) ([]*types.Claim, error) {
	l.inc("ListClaims")
	return l.Store.ListClaims(ctx, limit, offset)
}

func (l *countingLocal) DeleteClaim(ctx context.Context, id string) (bool, error) {
	l.inc("DeleteClaim")
	return l.Store.DeleteClaim(ctx, id)
}

func (l *countingLocal) SaveEvent(ctx context.Context, e *types.Event) string {
	l.inc("SaveEvent")
	return l.Store.SaveEvent(ctx, e)
}

func (l *countingLocal) ListEvents(ctx context.Context, entityID string, limit int) []*types.Event {
	l.inc("ListEvents")
	return l.Store.ListEvents(ctx, entityID, limit)
}

// fakeRemote is an in-memory RemoteStore that honors the unhealthy
// contract and can be told to fail.
type fakeRemote struct {
	mu        sync.Mutex
	healthy   bool
	claims    map[string]*types.Claim
	events    []*types.Event
	calls     map[string]int
	failSave  error
	failGet   error
	failList  error
	failDel   error
	deleteNop bool
}

func newFakeRemote(healthy bool) *fakeRemote {
	return &fakeRemote{healthy: healthy, claims: map[string]*types.Claim{}, calls: map[string]int{}}
}

func (r *fakeRemote) count(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

func (r *fakeRemote) totalCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, v := range r.calls {
		n += v
	}
	return n
}

func (r *fakeRemote) IsHealthy() bool { return r.healthy }

func (r *fakeRemote) HealthStatus() remote.HealthStatus {
	return remote.HealthStatus{Healthy: r.healthy, ClaimsTable: "claims", EventsTable: "events", AuthMethod: remote.AuthManagedIdentity}
}

func (r *fakeRemote) SaveClaim(ctx context.Context, c *types.Claim) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["SaveClaim"]++
	if r.failSave != nil {
		return "", r.failSave
	}
	r.claims[c.ClaimID] = c.Clone()
	return c.ClaimID, nil
}

func (r *fakeRemote) GetClaim(ctx context.Context, id string) (*types.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["GetClaim"]++
	if r.failGet != nil {
		return nil, r.failGet
	}
	c, ok := r.claims[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(id)
	}
	return c.Clone(), nil
}

func (r *fakeRemote) ListClaims(ctx context.Context, limit, offset int) ([]*types.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["ListClaims"]++
	if r.failList != nil {
		return nil, r.failList
	}
	all := make([]*types.Claim, 0, len(r.claims))
	for _, c := range r.claims {
		all = append(all, c.Clone())
	}
	sort.Slice(all, func(i, j int) bool { return all[i].SubmissionTime.After(all[j].SubmissionTime) })
	if offset >= len(all) {
		return []*types.Claim{}, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r *fakeRemote) DeleteClaim(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["DeleteClaim"]++
	if r.failDel != nil {
		return false, r.failDel
	}
	if r.deleteNop {
		return false, nil
	}
	_, ok := r.claims[id]
	delete(r.claims, id)
	return ok, nil
}

func (r *fakeRemote) SaveEvent(ctx context.Context, e *types.Event) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["SaveEvent"]++
	if r.failSave != nil {
		return "", r.failSave
	}
	r.events = append(r.events, e)
	return e.EventID, nil
}

func (r *fakeRemote) ListEvents(ctx context.Context, entityID string, limit int) ([]*types.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["ListEvents"]++
	if r.failList != nil {
		return nil, r.failList
	}
	var out []*types.Event
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		if entityID == "" || r.events[i].EntityID == entityID {
			out = append(out, r.events[i])
		}
	}
	return out, nil
}
