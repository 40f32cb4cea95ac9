package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/malekus40/ticket-reimbursement-system/internal/aws"
	"github.com/malekus40/ticket-reimbursement-system/internal/logging"
)

// Store encapsulates idempotency records in the shared table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration // how long a key is honoured
	nowFunc   func() time.Time
	log       *zap.Logger
}

// NewStore returns a configured Store.
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration, log *zap.Logger) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
		log:       logging.OrNop(log),
	}
}

// PutRequest builds the transactional put for a new record. The put is
// conditioned on attribute_not_exists(PK) so a second request with the same key
// cancels the whole transaction.
func (s *Store) PutRequest(owner, key, ticketID, fingerprint string) (types.TransactWriteItem, error) {
	now := s.nowFunc().UTC()
	rec := Record{
		PK:             PartitionKey(owner, key),
		SK:             sortKey,
		ItemType:       ItemType,
		Owner:          owner,
		IdempotencyKey: key,
		TicketID:       ticketID,
		Fingerprint:    fingerprint,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.ttlWindow).Unix(),
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("marshal record: %w", err)
	}
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName:           &s.tableName,
			Item:                item,
			ConditionExpression: awsString("attribute_not_exists(PK)"),
		},
	}, nil
}

// Get retrieves the record for owner/key. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, owner, key string) (*Record, error) {
	pk := PartitionKey(owner, key)
	input := &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sortKey},
		},
		ConsistentRead: awsBool(true),
	}
	out, err := s.client.GetItem(ctx, input)
	if err != nil {
		s.log.Error("get idempotency record", zap.String("table", s.tableName), zap.String("pk", pk), zap.Error(err))
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &rec, nil
}

// Fingerprint hashes the request fields that must match on replay.
func Fingerprint(fields ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(fields, "\x00")))
	return hex.EncodeToString(sum[:])
}

// Helper
func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
