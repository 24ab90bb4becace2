// Package storage provides the object storage abstraction behind claim
// backups.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// BackupTimeLayout is the timestamp suffix format of backup object names.
const BackupTimeLayout = "20060102_150405"

// ObjectStorage abstracts where backup copies are kept.
// Implementations are the local filesystem and S3.
type ObjectStorage interface {
	// Upload copies the local file at localPath to objectPath.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Download copies objectPath to the local file at localPath.
	// Returns ErrObjectNotFound when the object does not exist.
	Download(ctx context.Context, objectPath, localPath string) error

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths under the given prefix.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// BackupName returns the object name a backup of fileName taken at t is
// stored under: "<fileName>_<YYYYMMDD_HHMMSS>.bak".
func BackupName(fileName string, t time.Time) string {
	return fmt.Sprintf("%s_%s.bak", fileName, t.UTC().Format(BackupTimeLayout))
}
