// Package recordstore persists claims and events on the local filesystem,
// one JSON file per record.
//
// Writes go through a temporary file in the destination directory followed
// by an atomic rename. The store takes no locks: concurrent writers to the
// same claim race and the last rename wins.
package recordstore

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/claimvault/claimvault/internal/errors"
	"github.com/claimvault/claimvault/internal/storage"
	"github.com/claimvault/claimvault/internal/validate"
	"github.com/claimvault/claimvault/pkg/types"
)

// Config holds record store configuration.
type Config struct {
	// ClaimsDir holds one file per claim
	ClaimsDir string

	// EventsDir holds one file per event
	EventsDir string

	// Backups receives a copy of a claim file before it is overwritten or
	// deleted. Nil disables backups.
	Backups storage.ObjectStorage
}

// Store is the local record store.
type Store struct {
	claimsDir string
	eventsDir string
	backups   storage.ObjectStorage
	now       func() time.Time
}

// New creates a record store, creating its directories if needed.
func New(cfg Config) (*Store, error) {
	if cfg.ClaimsDir == "" || cfg.EventsDir == "" {
		return nil, apperrors.NewConfigError(apperrors.CodeMissingSetting, "claims and events directories are required")
	}
	for _, dir := range []string{cfg.ClaimsDir, cfg.EventsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, apperrors.NewStorageError(apperrors.CodeWriteFailed,
				fmt.Sprintf("failed to create directory %s", dir), err)
		}
	}

	log.Printf("recordstore: initialized with claims directory %s", cfg.ClaimsDir)
	return &Store{
		claimsDir: cfg.ClaimsDir,
		eventsDir: cfg.EventsDir,
		backups:   cfg.Backups,
		now:       types.Now,
	}, nil
}

func (s *Store) claimPath(id string) string {
	return filepath.Join(s.claimsDir, id+recordExt)
}

// SaveClaim validates and persists c, replacing any existing record with
// the same ID. Missing defaults (ID, submission time, status) are filled in
// on c, and c.UpdatedTime is set to the write time. Returns the claim ID.
func (s *Store) SaveClaim(ctx context.Context, c *types.Claim) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c == nil {
		return "", validate.Claim(nil)
	}

	c.ApplyDefaults()
	if !validID(c.ClaimID) {
		return "", apperrors.NewValidationError(apperrors.CodeInvalidClaim, "claim data validation failed",
			fmt.Sprintf("claim_id %q is not a valid identifier", c.ClaimID))
	}
	if err := validate.Claim(c); err != nil {
		log.Printf("recordstore: validation error saving claim: %v", err)
		return "", err
	}

	path := s.claimPath(c.ClaimID)
	c.UpdatedTime = s.nextUpdatedTime(path)

	if _, err := os.Stat(path); err == nil {
		s.backup(ctx, path)
	}

	if err := writeJSONAtomic(path, c); err != nil {
		log.Printf("recordstore: error saving claim %s: %v", c.ClaimID, err)
		return "", apperrors.NewStorageError(apperrors.CodeWriteFailed, "failed to save claim", err)
	}

	s.SaveEvent(ctx, types.NewEvent(types.EventClaimSaved, c.ClaimID, map[string]any{"action": "save"}))

	log.Printf("recordstore: claim %s saved", c.ClaimID)
	return c.ClaimID, nil
}

// nextUpdatedTime returns the current time, or one microsecond past the
// stored updated_time when the clock has not advanced beyond it.
func (s *Store) nextUpdatedTime(path string) time.Time {
	now := s.now()
	var prev struct {
		UpdatedTime time.Time `json:"updated_time"`
	}
	if err := readJSON(path, &prev); err != nil {
		return now
	}
	if !now.After(prev.UpdatedTime) {
		return prev.UpdatedTime.Add(time.Microsecond)
	}
	return now
}

// GetClaim returns the claim with the given ID, or a NOT_FOUND error.
func (s *Store) GetClaim(ctx context.Context, id string) (*types.Claim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validID(id) {
		return nil, apperrors.NewNotFoundError(id)
	}

	var c types.Claim
	if err := readJSON(s.claimPath(id), &c); err != nil {
		if os.IsNotExist(err) {
			log.Printf("recordstore: claim %s not found", id)
			return nil, apperrors.NewNotFoundError(id)
		}
		log.Printf("recordstore: error retrieving claim %s: %v", id, err)
		return nil, apperrors.NewStorageError(apperrors.CodeReadFailed, "failed to read claim", err)
	}

	s.SaveEvent(ctx, types.NewEvent(types.EventClaimAccessed, id, map[string]any{"action": "get"}))
	return &c, nil
}

// ListClaims returns up to limit claims, most recently written first,
// after skipping offset. Unreadable files are logged and skipped.
func (s *Store) ListClaims(ctx context.Context, limit, offset int) ([]*types.Claim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	files, err := listRecordFiles(s.claimsDir)
	if err != nil {
		return nil, apperrors.NewStorageError(apperrors.CodeReadFailed, "failed to list claims", err)
	}

	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || offset >= len(files) {
		return []*types.Claim{}, nil
	}
	end := offset + limit
	if end > len(files) {
		end = len(files)
	}

	claims := make([]*types.Claim, 0, end-offset)
	for _, f := range files[offset:end] {
		var c types.Claim
		if err := readJSON(filepath.Join(s.claimsDir, f.name), &c); err != nil {
			log.Printf("recordstore: error loading claim from %s: %v", f.name, err)
			continue
		}
		claims = append(claims, &c)
	}
	return claims, nil
}

// UpdateClaim merges u over the stored claim and saves the result. It
// never creates a claim: a missing ID yields a NOT_FOUND error.
//
// The read-merge-write sequence is not guarded against concurrent updates
// to the same ID; the later save wins entirely.
func (s *Store) UpdateClaim(ctx context.Context, id string, u types.ClaimUpdate) (*types.Claim, error) {
	current, err := s.GetClaim(ctx, id)
	if err != nil {
		return nil, err
	}

	merged, err := validate.ApplyUpdate(current, u)
	if err != nil {
		return nil, err
	}
	if _, err := s.SaveClaim(ctx, merged); err != nil {
		return nil, err
	}

	s.SaveEvent(ctx, types.NewEvent(types.EventClaimUpdated, id, map[string]any{"fields_updated": u.Fields()}))

	log.Printf("recordstore: claim %s updated", id)
	return merged, nil
}

// DeleteClaim backs up and removes the claim. It returns false with a nil
// error when the claim does not exist.
func (s *Store) DeleteClaim(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !validID(id) {
		return false, nil
	}

	path := s.claimPath(id)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			log.Printf("recordstore: claim %s not found for deletion", id)
			return false, nil
		}
		return false, apperrors.NewStorageError(apperrors.CodeDeleteFailed, "failed to stat claim", err)
	}

	s.backup(ctx, path)

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		log.Printf("recordstore: error deleting claim %s: %v", id, err)
		return false, apperrors.NewStorageError(apperrors.CodeDeleteFailed, "failed to delete claim", err)
	}

	s.SaveEvent(ctx, types.NewEvent(types.EventClaimDeleted, id, map[string]any{"action": "delete"}))

	log.Printf("recordstore: claim %s deleted", id)
	return true, nil
}
