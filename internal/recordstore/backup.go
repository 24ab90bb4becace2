package recordstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	apperrors "github.com/claimvault/claimvault/internal/errors"
	"github.com/claimvault/claimvault/internal/storage"
	"github.com/claimvault/claimvault/pkg/types"
)

// backup copies the file at path to the backup sink. Backups are an audit
// trail, not a precondition of the write: failures are logged only.
func (s *Store) backup(ctx context.Context, path string) {
	if s.backups == nil {
		return
	}
	name := storage.BackupName(filepath.Base(path), s.now())
	if err := s.backups.Upload(ctx, path, name); err != nil {
		log.Printf("[WARN] recordstore: error creating backup of %s: %v", path, err)
		return
	}
	log.Printf("recordstore: created backup of %s at %s", path, name)
}

// ListBackups returns the backup object names for a claim, oldest first.
func (s *Store) ListBackups(ctx context.Context, id string) ([]string, error) {
	if s.backups == nil || !validID(id) {
		return []string{}, nil
	}
	names, err := s.backups.ListObjects(ctx, backupPrefix(id))
	if err != nil {
		return nil, apperrors.NewStorageError(apperrors.CodeBackupFailed, "failed to list backups", err)
	}
	sort.Strings(names)
	return names, nil
}

// ReadBackup decodes the claim held in the named backup of claim id. Names
// that do not belong to id are reported as not found.
func (s *Store) ReadBackup(ctx context.Context, id, name string) (*types.Claim, error) {
	if s.backups == nil || !validID(id) || !strings.HasPrefix(name, backupPrefix(id)) || !validID(name) {
		return nil, apperrors.NewNotFoundError(name)
	}

	tmp, err := os.CreateTemp("", "claim-backup-*.json")
	if err != nil {
		return nil, apperrors.NewStorageError(apperrors.CodeBackupFailed, "failed to create temp file", err)
	}
	tempPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tempPath)

	if err := s.backups.Download(ctx, name, tempPath); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, apperrors.NewNotFoundError(name)
		}
		return nil, apperrors.NewStorageError(apperrors.CodeBackupFailed, fmt.Sprintf("failed to read backup %s", name), err)
	}

	var c types.Claim
	if err := readJSON(tempPath, &c); err != nil {
		return nil, apperrors.NewStorageError(apperrors.CodeBackupFailed, "failed to decode backup", err)
	}
	return &c, nil
}

func backupPrefix(id string) string {
	return id + recordExt + "_"
}
