package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type item = map[string]ddbtypes.AttributeValue

// fakeDynamo is an in-memory DynamoAPI with just enough index emulation
// for the queries Store issues.
type fakeDynamo struct {
	mu          sync.Mutex
	tables      map[string]map[string]item
	partition   map[string]string
	calls       map[string]int
	describeErr error
	putErr      error
	getErr      error
	pageSize    int
	limits      []int32
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{
		tables: map[string]map[string]item{
			"claims": {},
			"events": {},
		},
		partition: map[string]string{
			"claims": "claim_id",
			"events": "event_id",
		},
		calls: map[string]int{},
	}
}

func (f *fakeDynamo) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func str(av ddbtypes.AttributeValue) string {
	if s, ok := av.(*ddbtypes.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func (f *fakeDynamo) table(name *string) (map[string]item, string, error) {
	t, ok := f.tables[aws.ToString(name)]
	if !ok {
		return nil, "", &ddbtypes.ResourceNotFoundException{Message: aws.String("table not found")}
	}
	return t, f.partition[aws.ToString(name)], nil
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["PutItem"]++
	if f.putErr != nil {
		return nil, f.putErr
	}
	t, pk, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	t[str(in.Item[pk])] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GetItem"]++
	if f.getErr != nil {
		return nil, f.getErr
	}
	t, pk, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	return &dynamodb.GetItemOutput{Item: t[str(in.Key[pk])]}, nil
}

func (f *fakeDynamo) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["DeleteItem"]++
	t, pk, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	key := str(in.Key[pk])
	old := t[key]
	delete(t, key)
	out := &dynamodb.DeleteItemOutput{}
	if in.ReturnValues == ddbtypes.ReturnValueAllOld {
		out.Attributes = old
	}
	return out, nil
}

var fakeIndexes = map[string][2]string{
	ClaimsBySubmissionIndex: {"record_type", "submission_time"},
	EventsByTimestampIndex:  {"record_type", "timestamp"},
	EventsByEntityIndex:     {"entity_id", "timestamp"},
}

func (f *fakeDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Query"]++
	if in.Limit != nil {
		f.limits = append(f.limits, *in.Limit)
	}
	t, pk, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	idx, ok := fakeIndexes[aws.ToString(in.IndexName)]
	if !ok {
		return nil, fmt.Errorf("unknown index %q", aws.ToString(in.IndexName))
	}
	if len(in.ExpressionAttributeValues) != 1 {
		return nil, fmt.Errorf("expected one key condition value")
	}
	var want string
	for _, v := range in.ExpressionAttributeValues {
		want = str(v)
	}

	var matched []item
	for _, it := range t {
		if str(it[idx[0]]) == want {
			matched = append(matched, it)
		}
	}
	desc := in.ScanIndexForward != nil && !*in.ScanIndexForward
	sort.Slice(matched, func(i, j int) bool {
		a, b := str(matched[i][idx[1]]), str(matched[j][idx[1]])
		if a == b {
			a, b = str(matched[i][pk]), str(matched[j][pk])
		}
		if desc {
			return a > b
		}
		return a < b
	})

	start := 0
	if len(in.ExclusiveStartKey) > 0 {
		after := str(in.ExclusiveStartKey[pk])
		for i, it := range matched {
			if str(it[pk]) == after {
				start = i + 1
				break
			}
		}
	}
	end := len(matched)
	if in.Limit != nil && start+int(*in.Limit) < end {
		end = start + int(*in.Limit)
	}
	if f.pageSize > 0 && start+f.pageSize < end {
		end = start + f.pageSize
	}

	out := &dynamodb.QueryOutput{Items: matched[start:end]}
	if end < len(matched) {
		out.LastEvaluatedKey = item{pk: matched[end-1][pk]}
	}
	return out, nil
}

func (f *fakeDynamo) DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["DescribeTable"]++
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	if _, _, err := f.table(in.TableName); err != nil {
		return nil, err
	}
	return &dynamodb.DescribeTableOutput{Table: &ddbtypes.TableDescription{TableName: in.TableName}}, nil
}
