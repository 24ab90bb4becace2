// Package types provides the core record types for claimvault.
package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Claim statuses. The set is open: callers may store any status string and
// the store layer enforces no transitions between them.
const (
	StatusPending            = "pending"
	StatusReviewed           = "reviewed"
	StatusProcessing         = "processing"
	StatusApproved           = "approved"
	StatusRejected           = "rejected"
	StatusUnderInvestigation = "under_investigation"
)

// FileType classifies an uploaded artifact.
type FileType string

const (
	FileTypePDF   FileType = "pdf"
	FileTypeImage FileType = "image"
)

// FileInfo is the metadata of one uploaded artifact. It is owned by its
// Claim and never persisted on its own.
type FileInfo struct {
	// OriginalName is the filename as supplied by the uploader
	OriginalName string `json:"original_name" dynamodbav:"original_name"`

	// SavedName is the sanitized, unique name the file was stored under
	SavedName string `json:"saved_name" dynamodbav:"saved_name"`

	// FilePath is the storage path of the saved file
	FilePath string `json:"file_path" dynamodbav:"file_path"`

	// FileType is either "pdf" or "image"
	FileType FileType `json:"file_type" dynamodbav:"file_type"`

	// FileSize is the size in bytes
	FileSize int64 `json:"file_size" dynamodbav:"file_size"`
}

// Claim is a submitted insurance claim.
type Claim struct {
	// ClaimID is the primary key and, for the remote store, the partition key
	ClaimID string `json:"claim_id"`

	// ClaimAmount is the claimed amount; positivity is not enforced here
	ClaimAmount float64 `json:"claim_amount"`

	// Description is free text supplied by the claimant
	Description string `json:"description"`

	// UploadedFiles lists uploaded artifacts in upload order
	UploadedFiles []FileInfo `json:"uploaded_files"`

	// SubmissionTime is set once at creation
	SubmissionTime time.Time `json:"submission_time"`

	// UpdatedTime is set by the record store on every write
	UpdatedTime time.Time `json:"updated_time,omitzero"`

	// FraudScore is nil until the claim has been scored
	FraudScore *float64 `json:"fraud_score"`

	// Status is the caller-driven lifecycle state
	Status string `json:"status"`
}

// NewClaim returns a pending claim with a fresh ID and submission time.
func NewClaim(amount float64, description string) *Claim {
	return &Claim{
		ClaimID:        NewClaimID(),
		ClaimAmount:    amount,
		Description:    description,
		UploadedFiles:  []FileInfo{},
		SubmissionTime: Now(),
		Status:         StatusPending,
	}
}

// NewClaimID returns a random (version 4) claim ID.
func NewClaimID() string {
	return uuid.NewString()
}

// Now returns the current UTC time truncated to microseconds, the precision
// both stores can represent.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// ApplyDefaults fills the fields a claim receives on first save: an ID, a
// submission time, a status and a non-nil file list. Set fields are kept.
func (c *Claim) ApplyDefaults() {
	if c.ClaimID == "" {
		c.ClaimID = NewClaimID()
	}
	if c.SubmissionTime.IsZero() {
		c.SubmissionTime = Now()
	}
	if c.Status == "" {
		c.Status = StatusPending
	}
	if c.UploadedFiles == nil {
		c.UploadedFiles = []FileInfo{}
	}
}

// Clone returns a deep copy of the claim.
func (c *Claim) Clone() *Claim {
	if c == nil {
		return nil
	}
	cp := *c
	if c.UploadedFiles != nil {
		cp.UploadedFiles = make([]FileInfo, len(c.UploadedFiles))
		copy(cp.UploadedFiles, c.UploadedFiles)
	}
	if c.FraudScore != nil {
		score := *c.FraudScore
		cp.FraudScore = &score
	}
	return &cp
}

// ClaimUpdate holds the partial fields of an update, keyed by their JSON
// names. It is merged shallowly over the full record.
type ClaimUpdate map[string]any

// Fields returns the updated field names in sorted order.
func (u ClaimUpdate) Fields() []string {
	fields := make([]string, 0, len(u))
	for k := range u {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

// Apply merges the update over c and returns the merged claim. c is not
// modified. Changing claim_id or submission_time is rejected with
// ErrImmutableField; values that do not decode into the claim's field types
// are rejected with ErrInvalidField.
func (u ClaimUpdate) Apply(c *Claim) (*Claim, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode claim: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode claim: %w", err)
	}

	for _, field := range []string{"claim_id", "submission_time"} {
		v, ok := u[field]
		if !ok {
			continue
		}
		if !sameJSON(v, doc[field]) {
			return nil, fmt.Errorf("%w: %s", ErrImmutableField, field)
		}
	}

	for k, v := range u {
		doc[k] = v
	}

	merged, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidField, err)
	}
	var out Claim
	if err := json.Unmarshal(merged, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidField, err)
	}
	return &out, nil
}

// sameJSON reports whether a and b encode to the same JSON.
func sameJSON(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ja) == string(jb)
}
