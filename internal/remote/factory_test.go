package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/claimvault/claimvault/internal/config"
	apperrors "github.com/claimvault/claimvault/internal/errors"
)

// testConnector builds a Connector whose ambient credential chain yields
// ambient, and whose clients are fake.
type testConnector struct {
	*Connector
	fake         *fakeDynamo
	loaded       aws.Config
	assumedRole  string
	loadOptsSeen awsconfig.LoadOptions
}

func newTestConnector(ambient aws.CredentialsProvider) *testConnector {
	tc := &testConnector{fake: newFakeDynamo()}
	tc.Connector = &Connector{
		LoadConfig: func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
			var lo awsconfig.LoadOptions
			for _, fn := range optFns {
				if err := fn(&lo); err != nil {
					return aws.Config{}, err
				}
			}
			tc.loadOptsSeen = lo
			cfg := aws.Config{Region: lo.Region, Credentials: lo.Credentials, RetryMaxAttempts: lo.RetryMaxAttempts}
			if cfg.Credentials == nil {
				cfg.Credentials = ambient
			}
			tc.loaded = cfg
			return cfg, nil
		},
		AssumeRole: func(cfg aws.Config, roleARN string) aws.CredentialsProvider {
			tc.assumedRole = roleARN
			return cfg.Credentials
		},
		NewClient: func(cfg aws.Config, endpoint string) DynamoAPI {
			return tc.fake
		},
	}
	return tc
}

func workingCredentials() aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		return aws.Credentials{AccessKeyID: "AKIAAMBIENT", SecretAccessKey: "secret", Source: "test"}, nil
	})
}

func failingCredentials() aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		return aws.Credentials{}, errors.New("no EC2 IMDS role found")
	})
}

func remoteConfig() config.RemoteConfig {
	rc := config.DefaultConfig().Remote
	rc.Endpoint = "http://localhost:8000"
	rc.Timeout = time.Second
	return rc
}

func TestConnect_NoEndpoint(t *testing.T) {
	tc := newTestConnector(workingCredentials())

	rc := config.DefaultConfig().Remote
	rc.FallbackToLocal = true
	store, err := tc.Connect(context.Background(), rc)
	if store != nil || err != nil {
		t.Errorf("expected local-only (nil, nil), got %v, %v", store, err)
	}

	rc.FallbackToLocal = false
	store, err = tc.Connect(context.Background(), rc)
	if store != nil || apperrors.GetCategory(err) != apperrors.ErrCategoryConfig {
		t.Errorf("expected CONFIG error, got %v, %v", store, err)
	}
}

func TestConnect_StaticKey(t *testing.T) {
	tc := newTestConnector(failingCredentials())

	rc := remoteConfig()
	rc.AccessKeyID = "AKIASTATIC"
	rc.SecretAccessKey = "shh"
	rc.MaxAttempts = 4

	store, err := tc.Connect(context.Background(), rc)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !store.IsHealthy() {
		t.Fatal("expected healthy store")
	}
	if store.HealthStatus().AuthMethod != AuthStaticKey {
		t.Errorf("auth method = %s", store.HealthStatus().AuthMethod)
	}

	creds, err := tc.loaded.Credentials.Retrieve(context.Background())
	if err != nil || creds.AccessKeyID != "AKIASTATIC" {
		t.Errorf("static credentials not used: %+v, %v", creds, err)
	}
	if tc.loadOptsSeen.Region != rc.Region || tc.loadOptsSeen.RetryMaxAttempts != 4 {
		t.Errorf("load options = region %q attempts %d", tc.loadOptsSeen.Region, tc.loadOptsSeen.RetryMaxAttempts)
	}
}

func TestConnect_StaticKeyMissingIsFatalEvenWithFallback(t *testing.T) {
	tc := newTestConnector(workingCredentials())

	for _, fallback := range []bool{true, false} {
		rc := remoteConfig()
		rc.FallbackToLocal = fallback
		store, err := tc.Connect(context.Background(), rc)
		if store != nil || apperrors.GetCode(err) != apperrors.CodeMissingSetting {
			t.Errorf("fallback=%v: expected MISSING_SETTING, got %v, %v", fallback, store, err)
		}
	}
}

func TestConnect_ManagedIdentity(t *testing.T) {
	tc := newTestConnector(workingCredentials())

	rc := remoteConfig()
	rc.UseManagedIdentity = true

	store, err := tc.Connect(context.Background(), rc)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !store.IsHealthy() || store.HealthStatus().AuthMethod != AuthManagedIdentity {
		t.Errorf("unexpected status: %+v", store.HealthStatus())
	}
	if tc.assumedRole != "" {
		t.Error("no role should be assumed without role_arn")
	}
}

func TestConnect_AssumeRole(t *testing.T) {
	tc := newTestConnector(workingCredentials())

	rc := remoteConfig()
	rc.UseManagedIdentity = true
	rc.RoleARN = "arn:aws:iam::123456789012:role/claims-writer"

	store, err := tc.Connect(context.Background(), rc)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if tc.assumedRole != rc.RoleARN {
		t.Errorf("assumed role = %q", tc.assumedRole)
	}
	if store.HealthStatus().AuthMethod != AuthAssumedRole {
		t.Errorf("auth method = %s", store.HealthStatus().AuthMethod)
	}
}

func TestConnect_CredentialFailure(t *testing.T) {
	t.Run("fallback allowed", func(t *testing.T) {
		tc := newTestConnector(failingCredentials())
		rc := remoteConfig()
		rc.UseManagedIdentity = true
		rc.FallbackToLocal = true

		store, err := tc.Connect(context.Background(), rc)
		if store != nil || err != nil {
			t.Errorf("expected local-only, got %v, %v", store, err)
		}
		if tc.fake.count("DescribeTable") != 0 {
			t.Error("no probe should run without credentials")
		}
	})

	t.Run("fallback forbidden", func(t *testing.T) {
		tc := newTestConnector(failingCredentials())
		rc := remoteConfig()
		rc.UseManagedIdentity = true
		rc.FallbackToLocal = false

		store, err := tc.Connect(context.Background(), rc)
		if store != nil || apperrors.GetCode(err) != apperrors.CodeAuthFailed {
			t.Errorf("expected AUTH_FAILED, got %v, %v", store, err)
		}
	})
}

func TestConnect_ProbeFailure(t *testing.T) {
	t.Run("fallback allowed", func(t *testing.T) {
		tc := newTestConnector(workingCredentials())
		tc.fake.describeErr = errors.New("dial tcp: connection refused")
		rc := remoteConfig()
		rc.UseManagedIdentity = true
		rc.FallbackToLocal = true

		store, err := tc.Connect(context.Background(), rc)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if store == nil || store.IsHealthy() {
			t.Error("expected an unhealthy store")
		}
	})

	t.Run("fallback forbidden", func(t *testing.T) {
		tc := newTestConnector(workingCredentials())
		tc.fake.describeErr = errors.New("dial tcp: connection refused")
		rc := remoteConfig()
		rc.UseManagedIdentity = true
		rc.FallbackToLocal = false

		store, err := tc.Connect(context.Background(), rc)
		if store != nil || apperrors.GetCode(err) != apperrors.CodeProbeFailed {
			t.Errorf("expected PROBE_FAILED, got %v, %v", store, err)
		}
	})
}
