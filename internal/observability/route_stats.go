// Package observability counts how the hybrid coordinator routes each
// operation.
package observability

import (
	"sort"
	"sync"
	"time"
)

// Route outcomes.
const (
	// OutcomeLocal means only the local store served the call
	OutcomeLocal = "local"
	// OutcomeRemote means the remote store served the call
	OutcomeRemote = "remote"
	// OutcomeMirrored means a local write was copied to the remote store
	OutcomeMirrored = "mirrored"
	// OutcomeFallback means the remote store missed or failed and the
	// local store answered
	OutcomeFallback = "fallback"
	// OutcomeMirrorFailed means a local write could not be copied
	OutcomeMirrorFailed = "mirror_failed"
	// OutcomePartial means a delete succeeded in only one store
	OutcomePartial = "partial"
)

// RouteCount is the tally for one operation and outcome.
type RouteCount struct {
	Operation string    `json:"operation"`
	Outcome   string    `json:"outcome"`
	Count     int64     `json:"count"`
	LastSeen  time.Time `json:"last_seen"`
}

type routeKey struct {
	op      string
	outcome string
}

// RouteStats tracks RouteCounts. The zero value is not usable; a nil
// *RouteStats ignores every call.
type RouteStats struct {
	mu     sync.RWMutex
	counts map[routeKey]*RouteCount
	window time.Duration
}

// NewRouteStats creates a tracker. Entries not seen within window are
// dropped by Prune; window <= 0 keeps everything.
func NewRouteStats(window time.Duration) *RouteStats {
	return &RouteStats{counts: make(map[routeKey]*RouteCount), window: window}
}

// Record counts one occurrence of outcome for op.
func (s *RouteStats) Record(op, outcome string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := routeKey{op, outcome}
	rc, ok := s.counts[k]
	if !ok {
		rc = &RouteCount{Operation: op, Outcome: outcome}
		s.counts[k] = rc
	}
	rc.Count++
	rc.LastSeen = time.Now()
}

// Count returns the tally for op and outcome.
func (s *RouteStats) Count(op, outcome string) int64 {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rc, ok := s.counts[routeKey{op, outcome}]; ok {
		return rc.Count
	}
	return 0
}

// Snapshot returns a copy of every tally, ordered by operation then
// outcome.
func (s *RouteStats) Snapshot() []RouteCount {
	if s == nil {
		return []RouteCount{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RouteCount, 0, len(s.counts))
	for _, rc := range s.counts {
		out = append(out, *rc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Operation != out[j].Operation {
			return out[i].Operation < out[j].Operation
		}
		return out[i].Outcome < out[j].Outcome
	})
	return out
}

// Prune removes entries not seen within the window.
func (s *RouteStats) Prune() {
	if s == nil || s.window <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	threshold := time.Now().Add(-s.window)
	for k, rc := range s.counts {
		if rc.LastSeen.Before(threshold) {
			delete(s.counts, k)
		}
	}
}
