package remote

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/claimvault/claimvault/internal/config"
	apperrors "github.com/claimvault/claimvault/internal/errors"
)

// AuthMethod names the credential strategy a Store was built with.
type AuthMethod string

const (
	AuthNone            AuthMethod = "none"
	AuthStaticKey       AuthMethod = "static_key"
	AuthManagedIdentity AuthMethod = "managed_identity"
	AuthAssumedRole     AuthMethod = "assumed_role"
)

// Connector builds Stores from configuration. Its hooks default to the AWS
// SDK and are replaced in tests.
type Connector struct {
	// LoadConfig loads the base AWS configuration
	LoadConfig func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error)

	// AssumeRole wraps cfg's credentials in an STS AssumeRole provider
	AssumeRole func(cfg aws.Config, roleARN string) aws.CredentialsProvider

	// NewClient creates a DynamoDB client for endpoint
	NewClient func(cfg aws.Config, endpoint string) DynamoAPI
}

// DefaultConnector returns a Connector backed by the AWS SDK.
func DefaultConnector() *Connector {
	return &Connector{
		LoadConfig: awsconfig.LoadDefaultConfig,
		AssumeRole: func(cfg aws.Config, roleARN string) aws.CredentialsProvider {
			return aws.NewCredentialsCache(stscreds.NewAssumeRoleProvider(sts.NewFromConfig(cfg), roleARN))
		},
		NewClient: func(cfg aws.Config, endpoint string) DynamoAPI {
			return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
				o.BaseEndpoint = aws.String(endpoint)
			})
		},
	}
}

// Connect builds a Store with the default Connector.
func Connect(ctx context.Context, cfg config.RemoteConfig) (*Store, error) {
	return DefaultConnector().Connect(ctx, cfg)
}

// Connect applies the connection policy:
//
//	no endpoint, fallback allowed      -> nil Store, nil error (local-only)
//	no endpoint, fallback forbidden    -> CONFIG error
//	static key requested but missing   -> CONFIG error
//	auth or probe failure, fallback    -> logged; nil or unhealthy Store
//	auth or probe failure, no fallback -> REMOTE error
//
// A nil Store with a nil error means the caller runs local-only.
//
// A missing static key is a configuration mistake rather than an outage, so
// it is reported even when fallback_to_local is set. Earlier deployments
// degraded to local-only in that case; they must now either supply both key
// halves or enable managed identity.
func (c *Connector) Connect(ctx context.Context, cfg config.RemoteConfig) (*Store, error) {
	if !cfg.Configured() {
		if !cfg.FallbackToLocal {
			return nil, apperrors.NewConfigError(apperrors.CodeMissingSetting,
				"remote.endpoint is required when fallback_to_local is disabled")
		}
		log.Printf("remote: no endpoint configured, running local-only")
		return nil, nil
	}

	method := AuthManagedIdentity
	if !cfg.UseManagedIdentity {
		method = AuthStaticKey
		if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
			return nil, apperrors.NewConfigError(apperrors.CodeMissingSetting,
				"remote.access_key_id and remote.secret_access_key are required without managed identity")
		}
	} else if cfg.RoleARN != "" {
		method = AuthAssumedRole
	}

	awsCfg, err := c.loadConfig(ctx, cfg, method)
	if err == nil {
		err = verifyCredentials(ctx, awsCfg, cfg)
	}
	if err != nil {
		if !cfg.FallbackToLocal {
			return nil, apperrors.NewRemoteError(apperrors.CodeAuthFailed, "remote store authentication failed", err)
		}
		log.Printf("[WARN] remote: authentication via %s failed, falling back to local-only: %v", method, err)
		return nil, nil
	}

	store, err := NewStore(ctx, c.NewClient(awsCfg, cfg.Endpoint), Options{
		ClaimsTable:     cfg.ClaimsTable,
		EventsTable:     cfg.EventsTable,
		Endpoint:        cfg.Endpoint,
		AuthMethod:      method,
		FallbackToLocal: cfg.FallbackToLocal,
		Timeout:         cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	if !store.IsHealthy() {
		log.Printf("[WARN] remote: store unhealthy, falling back to local-only")
	}
	return store, nil
}

func (c *Connector) loadConfig(ctx context.Context, cfg config.RemoteConfig, method AuthMethod) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.MaxAttempts > 0 {
		opts = append(opts, awsconfig.WithRetryMaxAttempts(cfg.MaxAttempts))
	}
	if method == AuthStaticKey {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}

	awsCfg, err := c.LoadConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}
	if method == AuthAssumedRole {
		awsCfg.Credentials = c.AssumeRole(awsCfg, cfg.RoleARN)
	}
	return awsCfg, nil
}

// verifyCredentials resolves credentials once so that a missing identity
// is detected at startup rather than on the first request.
func verifyCredentials(ctx context.Context, awsCfg aws.Config, cfg config.RemoteConfig) error {
	if awsCfg.Credentials == nil {
		return apperrors.NewRemoteError(apperrors.CodeAuthFailed, "no credential provider resolved", nil)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := awsCfg.Credentials.Retrieve(ctx)
	return err
}
