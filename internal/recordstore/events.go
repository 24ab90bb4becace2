package recordstore

import (
	"context"
	"log"
	"path/filepath"

	"github.com/claimvault/claimvault/internal/validate"
	"github.com/claimvault/claimvault/pkg/types"
)

// SaveEvent writes e to the event log and returns its ID. Events are
// telemetry: failures are logged and reported only as an empty ID.
func (s *Store) SaveEvent(ctx context.Context, e *types.Event) string {
	if e == nil {
		log.Printf("recordstore: error saving event: nil event")
		return ""
	}
	if err := ctx.Err(); err != nil {
		log.Printf("recordstore: error saving event: %v", err)
		return ""
	}

	e.ApplyDefaults()
	if !validID(e.EventID) {
		log.Printf("recordstore: error saving event: invalid event_id %q", e.EventID)
		return ""
	}
	if err := validate.Event(e); err != nil {
		log.Printf("recordstore: error saving event: %v", err)
		return ""
	}

	if err := writeJSONAtomic(filepath.Join(s.eventsDir, e.EventID+recordExt), e); err != nil {
		log.Printf("recordstore: error saving event %s: %v", e.EventID, err)
		return ""
	}
	return e.EventID
}

// ListEvents returns up to limit events, most recent first, restricted to
// entityID when it is non-empty. Errors are logged and yield the events
// collected so far.
func (s *Store) ListEvents(ctx context.Context, entityID string, limit int) []*types.Event {
	events := []*types.Event{}
	if limit <= 0 {
		return events
	}
	if err := ctx.Err(); err != nil {
		log.Printf("recordstore: error listing events: %v", err)
		return events
	}

	files, err := listRecordFiles(s.eventsDir)
	if err != nil {
		log.Printf("recordstore: error listing events: %v", err)
		return events
	}

	for _, f := range files {
		if len(events) >= limit {
			break
		}
		var e types.Event
		if err := readJSON(filepath.Join(s.eventsDir, f.name), &e); err != nil {
			log.Printf("recordstore: error loading event from %s: %v", f.name, err)
			continue
		}
		if entityID != "" && e.EntityID != entityID {
			continue
		}
		events = append(events, &e)
	}
	return events
}
