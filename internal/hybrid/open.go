package hybrid

import (
	"context"
	"fmt"

	"github.com/claimvault/claimvault/internal/config"
	"github.com/claimvault/claimvault/internal/recordstore"
	"github.com/claimvault/claimvault/internal/remote"
	"github.com/claimvault/claimvault/internal/storage"
)

// Open builds the backup sink, the record store and, through the remote
// connection policy, the remote store, and returns a Coordinator over
// them. It fails on configuration errors and, when fallback is disabled,
// on remote connection errors.
func Open(ctx context.Context, cfg *config.Config) (*Coordinator, error) {
	return OpenWith(ctx, cfg, remote.DefaultConnector())
}

// OpenWith is Open with an explicit remote Connector.
func OpenWith(ctx context.Context, cfg *config.Config, connector *remote.Connector) (*Coordinator, error) {
	backups, err := openBackups(ctx, cfg)
	if err != nil {
		return nil, err
	}

	local, err := recordstore.New(recordstore.Config{
		ClaimsDir: cfg.Storage.ClaimsDir,
		EventsDir: cfg.Storage.EventsDir,
		Backups:   backups,
	})
	if err != nil {
		return nil, err
	}

	rs, err := connector.Connect(ctx, cfg.Remote)
	if err != nil {
		return nil, err
	}
	if rs == nil {
		return New(local, nil), nil
	}
	return New(local, rs), nil
}

func openBackups(ctx context.Context, cfg *config.Config) (storage.ObjectStorage, error) {
	switch cfg.Backup.Type {
	case "", "local":
		return storage.NewLocalStorage(cfg.Storage.BackupDir)
	case "s3":
		s3cfg := storage.DefaultS3Config()
		if cfg.Backup.S3.Region != "" {
			s3cfg.Region = cfg.Backup.S3.Region
		}
		s3cfg.Endpoint = cfg.Backup.S3.Endpoint
		s3cfg.UsePathStyle = cfg.Backup.S3.UsePathStyle
		s3cfg.Prefix = cfg.Backup.S3.Prefix
		return storage.NewS3Storage(ctx, cfg.Backup.S3.Bucket, s3cfg)
	default:
		return nil, fmt.Errorf("unsupported backup type: %s", cfg.Backup.Type)
	}
}
