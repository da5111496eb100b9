package oplog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/hupe1980/pcedit/internal/bitmap"
)

// DDBClient is the subset of the DynamoDB API used by DynamoBackend.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	dynamodb.QueryAPIClient
}

// DynamoBackend stores sessions and their operations in one DynamoDB table.
//
// Table schema:
//   - Partition key: session_id (string)
//   - Sort key: version (number)
//
// Version 0 holds the session itself; version v > 0 holds the operation that
// produced session version v. Operations are written with
// attribute_not_exists(version), so two editors racing for the same version
// cannot both succeed. Indices are stored as serialized Roaring bitmaps.
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name pcedit-sessions \
//	  --attribute-definitions AttributeName=session_id,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=session_id,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type DynamoBackend struct {
	client DDBClient
	table  string
	now    func() time.Time
}

// NewDynamoBackend creates a backend on table.
func NewDynamoBackend(client DDBClient, table string) *DynamoBackend {
	return &DynamoBackend{client: client, table: table, now: time.Now}
}

const (
	attrSession   = "session_id"
	attrVersion   = "version"
	attrDataset   = "dataset_id"
	attrClosed    = "closed"
	attrCreatedAt = "created_at"
	attrID        = "id"
	attrAction    = "action"
	attrIndices   = "indices"
)

func numAttr(v uint64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatUint(v, 10)}
}

func strAttr(s string) *types.AttributeValueMemberS {
	return &types.AttributeValueMemberS{Value: s}
}

// CreateSession implements Backend.
func (d *DynamoBackend) CreateSession(ctx context.Context, datasetID string) (Session, error) {
	s := Session{ID: uuid.NewString(), DatasetID: datasetID, CreatedAt: d.now().UTC()}
	_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item: map[string]types.AttributeValue{
			attrSession:   strAttr(s.ID),
			attrVersion:   numAttr(0),
			attrDataset:   strAttr(datasetID),
			attrClosed:    &types.AttributeValueMemberBOOL{Value: false},
			attrCreatedAt: strAttr(s.CreatedAt.Format(time.RFC3339Nano)),
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		return Session{}, fmt.Errorf("oplog: create session in DynamoDB: %w", err)
	}
	return s, nil
}

// Session implements Backend.
func (d *DynamoBackend) Session(ctx context.Context, datasetID, sessionID string) (Session, error) {
	resp, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.table),
		Key: map[string]types.AttributeValue{
			attrSession: strAttr(sessionID),
			attrVersion: numAttr(0),
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return Session{}, fmt.Errorf("oplog: read session from DynamoDB: %w", err)
	}
	if resp.Item == nil {
		return Session{}, fmt.Errorf("%w: %s/%s", ErrSessionNotFound, datasetID, sessionID)
	}

	s := Session{ID: sessionID}
	if v, ok := resp.Item[attrDataset].(*types.AttributeValueMemberS); ok {
		s.DatasetID = v.Value
	}
	if s.DatasetID != datasetID {
		return Session{}, fmt.Errorf("%w: %s/%s", ErrSessionNotFound, datasetID, sessionID)
	}
	if v, ok := resp.Item[attrClosed].(*types.AttributeValueMemberBOOL); ok {
		s.Closed = v.Value
	}
	if v, ok := resp.Item[attrCreatedAt].(*types.AttributeValueMemberS); ok {
		s.CreatedAt, _ = time.Parse(time.RFC3339Nano, v.Value)
	}

	s.Version, err = d.head(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	return s, nil
}

// head returns the highest version stored for a session.
func (d *DynamoBackend) head(ctx context.Context, sessionID string) (uint64, error) {
	resp, err := d.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(d.table),
		KeyConditionExpression: aws.String("session_id = :sid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sid": strAttr(sessionID),
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
		ConsistentRead:   aws.Bool(true),
	})
	if err != nil {
		return 0, fmt.Errorf("oplog: query DynamoDB: %w", err)
	}
	if len(resp.Items) == 0 {
		return 0, nil
	}
	return parseVersion(resp.Items[0])
}

// Append implements Backend. Operations are written one by one; if a later
// one loses a race the earlier ones stay committed and are returned together
// with the error.
func (d *DynamoBackend) Append(ctx context.Context, datasetID, sessionID string, baseVersion uint64, ops []Op) ([]Record, error) {
	s, err := d.Session(ctx, datasetID, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Closed {
		return nil, ErrSessionClosed
	}
	if s.Version != baseVersion {
		return nil, fmt.Errorf("%w: base %d, current %d", ErrVersionConflict, baseVersion, s.Version)
	}

	out := make([]Record, 0, len(ops))
	for k, op := range ops {
		rec := Record{
			ID:        uuid.NewString(),
			Version:   baseVersion + uint64(k) + 1,
			Op:        op,
			CreatedAt: d.now().UTC(),
		}
		blob, err := bitmap.Of(op.Indices...).MarshalBinary()
		if err != nil {
			return out, fmt.Errorf("oplog: encode indices: %w", err)
		}

		_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(d.table),
			Item: map[string]types.AttributeValue{
				attrSession:   strAttr(sessionID),
				attrVersion:   numAttr(rec.Version),
				attrID:        strAttr(rec.ID),
				attrAction:    strAttr(string(op.Action)),
				attrIndices:   &types.AttributeValueMemberB{Value: blob},
				attrCreatedAt: strAttr(rec.CreatedAt.Format(time.RFC3339Nano)),
			},
			ConditionExpression: aws.String("attribute_not_exists(version)"),
		})
		if err != nil {
			var condErr *types.ConditionalCheckFailedException
			if errors.As(err, &condErr) {
				return out, fmt.Errorf("%w: version %d already written", ErrVersionConflict, rec.Version)
			}
			return out, fmt.Errorf("oplog: write operation to DynamoDB: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Operations implements History.
func (d *DynamoBackend) Operations(ctx context.Context, datasetID, sessionID string) ([]Record, error) {
	if _, err := d.Session(ctx, datasetID, sessionID); err != nil {
		return nil, err
	}

	p := dynamodb.NewQueryPaginator(d.client, &dynamodb.QueryInput{
		TableName:              aws.String(d.table),
		KeyConditionExpression: aws.String("session_id = :sid AND version > :zero"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sid":  strAttr(sessionID),
			":zero": numAttr(0),
		},
		ScanIndexForward: aws.Bool(true),
		ConsistentRead:   aws.Bool(true),
	})

	var out []Record
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("oplog: query DynamoDB: %w", err)
		}
		for _, item := range page.Items {
			rec, err := parseRecord(item)
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

func parseVersion(item map[string]types.AttributeValue) (uint64, error) {
	v, ok := item[attrVersion].(*types.AttributeValueMemberN)
	if !ok {
		return 0, errors.New("oplog: invalid version attribute in DynamoDB")
	}
	n, err := strconv.ParseUint(v.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("oplog: parse version: %w", err)
	}
	return n, nil
}

func parseRecord(item map[string]types.AttributeValue) (Record, error) {
	var rec Record
	var err error
	if rec.Version, err = parseVersion(item); err != nil {
		return Record{}, err
	}
	if v, ok := item[attrID].(*types.AttributeValueMemberS); ok {
		rec.ID = v.Value
	}
	if v, ok := item[attrAction].(*types.AttributeValueMemberS); ok {
		rec.Op.Action = Action(v.Value)
	}
	if v, ok := item[attrCreatedAt].(*types.AttributeValueMemberS); ok {
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, v.Value)
	}
	if v, ok := item[attrIndices].(*types.AttributeValueMemberB); ok {
		set := bitmap.New()
		if err := set.UnmarshalBinary(v.Value); err != nil {
			return Record{}, fmt.Errorf("oplog: decode indices of version %d: %w", rec.Version, err)
		}
		rec.Op.Indices = set.ToSlice()
	}
	return rec, nil
}
