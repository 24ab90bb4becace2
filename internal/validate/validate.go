// Package validate checks claim input at the boundary and converts loose
// JSON-shaped maps into typed records.
package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	apperrors "github.com/claimvault/claimvault/internal/errors"
	"github.com/claimvault/claimvault/pkg/types"
)

const claimValidationFailed = "claim data validation failed"

var requiredClaimFields = []string{"claim_amount", "description"}

// ClaimFields checks that a claim-shaped map carries the required fields
// with the right types.
func ClaimFields(data map[string]any) error {
	var errs []string
	for _, field := range requiredClaimFields {
		if _, ok := data[field]; !ok {
			errs = append(errs, "Missing required field: "+field)
		}
	}
	if len(errs) > 0 {
		return apperrors.NewValidationError(apperrors.CodeInvalidClaim, claimValidationFailed, errs...)
	}

	if !isNumber(data["claim_amount"]) {
		errs = append(errs, "claim_amount must be a number")
	}
	if _, ok := data["description"].(string); !ok {
		errs = append(errs, "description must be a string")
	}
	if len(errs) > 0 {
		return apperrors.NewValidationError(apperrors.CodeInvalidClaim, claimValidationFailed, errs...)
	}
	return nil
}

// ClaimFromMap validates data and decodes it into a Claim. Defaults are
// not applied; the record store does that on save.
func ClaimFromMap(data map[string]any) (*types.Claim, error) {
	if err := ClaimFields(data); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, apperrors.NewValidationError(apperrors.CodeInvalidClaim, claimValidationFailed, err.Error())
	}
	var c types.Claim
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, apperrors.NewValidationError(apperrors.CodeInvalidClaim, claimValidationFailed, err.Error())
	}
	return &c, nil
}

// Claim checks a typed claim before it is persisted. Negative amounts are
// accepted.
func Claim(c *types.Claim) error {
	if c == nil {
		return apperrors.NewValidationError(apperrors.CodeInvalidClaim, claimValidationFailed, "claim is required")
	}
	var errs []string
	if math.IsNaN(c.ClaimAmount) || math.IsInf(c.ClaimAmount, 0) {
		errs = append(errs, "claim_amount must be a finite number")
	}
	if strings.TrimSpace(c.Description) == "" {
		errs = append(errs, "Missing required field: description")
	}
	for i, f := range c.UploadedFiles {
		switch f.FileType {
		case types.FileTypePDF, types.FileTypeImage:
		default:
			errs = append(errs, fmt.Sprintf("uploaded_files[%d].file_type must be pdf or image", i))
		}
	}
	if c.FraudScore != nil && (math.IsNaN(*c.FraudScore) || math.IsInf(*c.FraudScore, 0)) {
		errs = append(errs, "fraud_score must be a finite number")
	}
	if len(errs) > 0 {
		return apperrors.NewValidationError(apperrors.CodeInvalidClaim, claimValidationFailed, errs...)
	}
	return nil
}

// ApplyUpdate merges u over c, converting merge failures into validation
// errors.
func ApplyUpdate(c *types.Claim, u types.ClaimUpdate) (*types.Claim, error) {
	merged, err := u.Apply(c)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrImmutableField), errors.Is(err, types.ErrInvalidField):
			return nil, apperrors.NewValidationError(apperrors.CodeInvalidUpdate, "claim update rejected", err.Error())
		default:
			return nil, apperrors.NewInternalError("failed to merge claim update", err)
		}
	}
	return merged, nil
}

// Event checks an event before it is persisted.
func Event(e *types.Event) error {
	if e == nil {
		return apperrors.NewValidationError(apperrors.CodeInvalidEvent, "event data validation failed", "event is required")
	}
	var errs []string
	if strings.TrimSpace(e.EventType) == "" {
		errs = append(errs, "Missing required field: event_type")
	}
	if strings.TrimSpace(e.EntityID) == "" {
		errs = append(errs, "Missing required field: entity_id")
	}
	if len(errs) > 0 {
		return apperrors.NewValidationError(apperrors.CodeInvalidEvent, "event data validation failed", errs...)
	}
	return nil
}

func isNumber(v any) bool {
	switch v.(type) {
	case float64, float32, int, int32, int64, uint, uint32, uint64, json.Number:
		return true
	default:
		return false
	}
}
