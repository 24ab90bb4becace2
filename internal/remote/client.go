// Package remote stores claims and events in Amazon DynamoDB.
//
// A Store is probed once at construction. The resulting health flag is
// sticky: an unhealthy Store makes no network calls and answers every
// operation with an UNAVAILABLE error until the process restarts.
package remote

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// DynamoAPI is the subset of the DynamoDB client used by Store.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Global secondary indexes used for ordered listing.
const (
	// ClaimsBySubmissionIndex: partition record_type, sort submission_time
	ClaimsBySubmissionIndex = "claims-by-submission-time"

	// EventsByTimestampIndex: partition record_type, sort timestamp
	EventsByTimestampIndex = "events-by-timestamp"

	// EventsByEntityIndex: partition entity_id, sort timestamp
	EventsByEntityIndex = "events-by-entity"
)
