package remote

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/claimvault/claimvault/pkg/types"
)

// record_type values. Every item carries one so that a single GSI
// partition holds all records of a kind in time order.
const (
	recordTypeClaim = "claim"
	recordTypeEvent = "event"
)

// claimItem is the stored form of a Claim. Timestamps are fixed-width
// strings so that sort-key order is chronological.
type claimItem struct {
	ClaimID        string           `dynamodbav:"claim_id"`
	RecordType     string           `dynamodbav:"record_type"`
	ClaimAmount    float64          `dynamodbav:"claim_amount"`
	Description    string           `dynamodbav:"description"`
	UploadedFiles  []types.FileInfo `dynamodbav:"uploaded_files"`
	SubmissionTime string           `dynamodbav:"submission_time"`
	UpdatedTime    string           `dynamodbav:"updated_time,omitempty"`
	FraudScore     *float64         `dynamodbav:"fraud_score"`
	Status         string           `dynamodbav:"status"`
}

type eventItem struct {
	EventID    string         `dynamodbav:"event_id"`
	RecordType string         `dynamodbav:"record_type"`
	EventType  string         `dynamodbav:"event_type"`
	EntityID   string         `dynamodbav:"entity_id"`
	Data       map[string]any `dynamodbav:"data"`
	Timestamp  string         `dynamodbav:"timestamp"`
	UserID     *string        `dynamodbav:"user_id"`
}

func marshalClaim(c *types.Claim) (map[string]ddbtypes.AttributeValue, error) {
	item := claimItem{
		ClaimID:        c.ClaimID,
		RecordType:     recordTypeClaim,
		ClaimAmount:    c.ClaimAmount,
		Description:    c.Description,
		UploadedFiles:  c.UploadedFiles,
		SubmissionTime: types.FormatTimestamp(c.SubmissionTime),
		FraudScore:     c.FraudScore,
		Status:         c.Status,
	}
	if item.UploadedFiles == nil {
		item.UploadedFiles = []types.FileInfo{}
	}
	if !c.UpdatedTime.IsZero() {
		item.UpdatedTime = types.FormatTimestamp(c.UpdatedTime)
	}
	return attributevalue.MarshalMap(item)
}

func unmarshalClaim(av map[string]ddbtypes.AttributeValue) (*types.Claim, error) {
	var item claimItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, err
	}

	c := &types.Claim{
		ClaimID:       item.ClaimID,
		ClaimAmount:   item.ClaimAmount,
		Description:   item.Description,
		UploadedFiles: item.UploadedFiles,
		FraudScore:    item.FraudScore,
		Status:        item.Status,
	}
	if c.UploadedFiles == nil {
		c.UploadedFiles = []types.FileInfo{}
	}

	var err error
	if c.SubmissionTime, err = types.ParseTimestamp(item.SubmissionTime); err != nil {
		return nil, fmt.Errorf("claim %s: bad submission_time: %w", item.ClaimID, err)
	}
	if item.UpdatedTime != "" {
		if c.UpdatedTime, err = types.ParseTimestamp(item.UpdatedTime); err != nil {
			return nil, fmt.Errorf("claim %s: bad updated_time: %w", item.ClaimID, err)
		}
	}
	return c, nil
}

func marshalEvent(e *types.Event) (map[string]ddbtypes.AttributeValue, error) {
	data := e.Data
	if data == nil {
		data = map[string]any{}
	}
	return attributevalue.MarshalMap(eventItem{
		EventID:    e.EventID,
		RecordType: recordTypeEvent,
		EventType:  e.EventType,
		EntityID:   e.EntityID,
		Data:       data,
		Timestamp:  types.FormatTimestamp(e.Timestamp),
		UserID:     e.UserID,
	})
}

func unmarshalEvent(av map[string]ddbtypes.AttributeValue) (*types.Event, error) {
	var item eventItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, err
	}
	ts, err := types.ParseTimestamp(item.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("event %s: bad timestamp: %w", item.EventID, err)
	}
	e := &types.Event{
		EventID:   item.EventID,
		EventType: item.EventType,
		EntityID:  item.EntityID,
		Data:      item.Data,
		Timestamp: ts,
		UserID:    item.UserID,
	}
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	return e, nil
}
