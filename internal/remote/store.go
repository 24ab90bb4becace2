package remote

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	apperrors "github.com/claimvault/claimvault/internal/errors"
	"github.com/claimvault/claimvault/pkg/types"
)

// maxEndpointDisplay caps the endpoint length reported by HealthStatus.
const maxEndpointDisplay = 50

// Options configures a Store.
type Options struct {
	// ClaimsTable is keyed by claim_id
	ClaimsTable string

	// EventsTable is keyed by event_id
	EventsTable string

	// Endpoint is reported by HealthStatus only
	Endpoint string

	// AuthMethod is reported by HealthStatus only
	AuthMethod AuthMethod

	// FallbackToLocal makes a failed probe leave the Store unhealthy
	// instead of failing construction
	FallbackToLocal bool

	// Timeout bounds each call
	Timeout time.Duration
}

// HealthStatus describes a Store for diagnostics.
type HealthStatus struct {
	Healthy         bool       `json:"healthy"`
	ClaimsTable     string     `json:"claims_table"`
	EventsTable     string     `json:"events_table"`
	Endpoint        string     `json:"endpoint"`
	AuthMethod      AuthMethod `json:"auth_method"`
	FallbackToLocal bool       `json:"fallback_to_local"`
}

// Store persists claims and events in DynamoDB.
type Store struct {
	client  DynamoAPI
	opts    Options
	healthy bool
}

// NewStore creates a Store and probes both tables. A failed probe is fatal
// when opts.FallbackToLocal is false; otherwise the Store is returned
// unhealthy.
func NewStore(ctx context.Context, client DynamoAPI, opts Options) (*Store, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	s := &Store{client: client, opts: opts}

	if err := s.probe(ctx); err != nil {
		if !opts.FallbackToLocal {
			return nil, apperrors.NewRemoteError(apperrors.CodeProbeFailed, "remote store health probe failed", err)
		}
		log.Printf("[WARN] remote: health probe failed, marking store unhealthy: %v", err)
		return s, nil
	}

	s.healthy = true
	log.Printf("remote: connected to %s (tables %s, %s)", truncate(opts.Endpoint, maxEndpointDisplay), opts.ClaimsTable, opts.EventsTable)
	return s, nil
}

// probe reads the metadata of both tables.
func (s *Store) probe(ctx context.Context) error {
	for _, table := range []string{s.opts.ClaimsTable, s.opts.EventsTable} {
		callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		_, err := s.client.DescribeTable(callCtx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
		cancel()
		if err != nil {
			return fmt.Errorf("describe table %s: %w", table, err)
		}
	}
	return nil
}

// IsHealthy reports the result of the construction-time probe.
func (s *Store) IsHealthy() bool {
	return s != nil && s.healthy
}

// HealthStatus returns a diagnostic snapshot of the Store.
func (s *Store) HealthStatus() HealthStatus {
	return HealthStatus{
		Healthy:         s.IsHealthy(),
		ClaimsTable:     s.opts.ClaimsTable,
		EventsTable:     s.opts.EventsTable,
		Endpoint:        truncate(s.opts.Endpoint, maxEndpointDisplay),
		AuthMethod:      s.opts.AuthMethod,
		FallbackToLocal: s.opts.FallbackToLocal,
	}
}

func (s *Store) unavailable() error {
	return apperrors.ErrUnavailable
}

// SaveClaim writes c, replacing any item with the same claim_id.
func (s *Store) SaveClaim(ctx context.Context, c *types.Claim) (string, error) {
	if !s.IsHealthy() {
		return "", s.unavailable()
	}
	if c == nil || c.ClaimID == "" {
		return "", apperrors.NewValidationError(apperrors.CodeInvalidClaim, "claim data validation failed", "Missing required field: claim_id")
	}

	item, err := marshalClaim(c)
	if err != nil {
		return "", apperrors.NewInternalError("failed to marshal claim", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.opts.ClaimsTable),
		Item:      item,
	}); err != nil {
		return "", classify("save claim", err)
	}
	return c.ClaimID, nil
}

// GetClaim reads a claim by partition key. A missing item yields a
// NOT_FOUND error.
func (s *Store) GetClaim(ctx context.Context, id string) (*types.Claim, error) {
	if !s.IsHealthy() {
		return nil, s.unavailable()
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.opts.ClaimsTable),
		Key:            claimKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, classify("get claim", err)
	}
	if len(out.Item) == 0 {
		return nil, apperrors.NewNotFoundError(id)
	}

	c, err := unmarshalClaim(out.Item)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to unmarshal claim", err)
	}
	return c, nil
}

// ListClaims returns claims by submission time, newest first. The index
// has no offset: offset+limit items are read and the first offset dropped.
func (s *Store) ListClaims(ctx context.Context, limit, offset int) ([]*types.Claim, error) {
	if !s.IsHealthy() {
		return nil, s.unavailable()
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		return []*types.Claim{}, nil
	}

	items, err := s.queryNewest(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.opts.ClaimsTable),
		IndexName:                 aws.String(ClaimsBySubmissionIndex),
		KeyConditionExpression:    aws.String("#rt = :rt"),
		ExpressionAttributeNames:  map[string]string{"#rt": "record_type"},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{":rt": &ddbtypes.AttributeValueMemberS{Value: recordTypeClaim}},
	}, window(offset, limit))
	if err != nil {
		return nil, classify("list claims", err)
	}

	claims := []*types.Claim{}
	if offset >= len(items) {
		return claims, nil
	}
	for _, av := range items[offset:] {
		c, err := unmarshalClaim(av)
		if err != nil {
			log.Printf("remote: skipping unreadable claim item: %v", err)
			continue
		}
		claims = append(claims, c)
	}
	return claims, nil
}

// DeleteClaim removes a claim. It returns false with a nil error when no
// item existed.
func (s *Store) DeleteClaim(ctx context.Context, id string) (bool, error) {
	if !s.IsHealthy() {
		return false, s.unavailable()
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	out, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(s.opts.ClaimsTable),
		Key:          claimKey(id),
		ReturnValues: ddbtypes.ReturnValueAllOld,
	})
	if err != nil {
		return false, classify("delete claim", err)
	}
	return len(out.Attributes) > 0, nil
}

// SaveEvent writes an event and returns its ID.
func (s *Store) SaveEvent(ctx context.Context, e *types.Event) (string, error) {
	if !s.IsHealthy() {
		return "", s.unavailable()
	}
	if e == nil || e.EventID == "" {
		return "", apperrors.NewValidationError(apperrors.CodeInvalidEvent, "event data validation failed", "Missing required field: event_id")
	}

	item, err := marshalEvent(e)
	if err != nil {
		return "", apperrors.NewInternalError("failed to marshal event", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.opts.EventsTable),
		Item:      item,
	}); err != nil {
		return "", classify("save event", err)
	}
	return e.EventID, nil
}

// ListEvents returns up to limit events, newest first, restricted to
// entityID when it is non-empty.
func (s *Store) ListEvents(ctx context.Context, entityID string, limit int) ([]*types.Event, error) {
	if !s.IsHealthy() {
		return nil, s.unavailable()
	}
	if limit <= 0 {
		return []*types.Event{}, nil
	}

	in := &dynamodb.QueryInput{
		TableName:                 aws.String(s.opts.EventsTable),
		IndexName:                 aws.String(EventsByTimestampIndex),
		KeyConditionExpression:    aws.String("#rt = :rt"),
		ExpressionAttributeNames:  map[string]string{"#rt": "record_type"},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{":rt": &ddbtypes.AttributeValueMemberS{Value: recordTypeEvent}},
	}
	if entityID != "" {
		in.IndexName = aws.String(EventsByEntityIndex)
		in.KeyConditionExpression = aws.String("#eid = :eid")
		in.ExpressionAttributeNames = map[string]string{"#eid": "entity_id"}
		in.ExpressionAttributeValues = map[string]ddbtypes.AttributeValue{":eid": &ddbtypes.AttributeValueMemberS{Value: entityID}}
	}

	items, err := s.queryNewest(ctx, in, limit)
	if err != nil {
		return nil, classify("list events", err)
	}

	events := make([]*types.Event, 0, len(items))
	for _, av := range items {
		e, err := unmarshalEvent(av)
		if err != nil {
			log.Printf("remote: skipping unreadable event item: %v", err)
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// queryNewest runs a descending query and follows pages until max items
// are collected or the index is exhausted.
func (s *Store) queryNewest(ctx context.Context, in *dynamodb.QueryInput, max int) ([]map[string]ddbtypes.AttributeValue, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	in.ScanIndexForward = aws.Bool(false)
	var items []map[string]ddbtypes.AttributeValue
	for len(items) < max {
		in.Limit = aws.Int32(int32(min(max-len(items), math.MaxInt32)))
		out, err := s.client.Query(ctx, in)
		if err != nil {
			return nil, err
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
	if len(items) > max {
		items = items[:max]
	}
	return items, nil
}

// window returns offset+limit, saturating at math.MaxInt32 since DynamoDB
// page limits are int32.
func window(offset, limit int) int {
	if offset > math.MaxInt32-limit {
		return math.MaxInt32
	}
	return offset + limit
}

func claimKey(id string) map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		"claim_id": &ddbtypes.AttributeValueMemberS{Value: id},
	}
}

// classify converts an SDK error into a REMOTE error.
func classify(op string, err error) error {
	msg := "remote " + op + " failed"
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewRemoteError(apperrors.CodeRequestFailed, msg+": timed out", err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apperrors.CodeRequestFailed
		switch apiErr.ErrorCode() {
		case "UnrecognizedClientException", "AccessDeniedException", "InvalidSignatureException",
			"ExpiredTokenException", "MissingAuthenticationTokenException":
			code = apperrors.CodeAuthFailed
		}
		return apperrors.NewRemoteError(code, msg, err).WithDetails(map[string]interface{}{
			"aws_code": apiErr.ErrorCode(),
		})
	}
	return apperrors.NewRemoteError(apperrors.CodeRequestFailed, msg, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
