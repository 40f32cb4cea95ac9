package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/malekus40/ticket-reimbursement-system/internal/auth"
	"github.com/malekus40/ticket-reimbursement-system/internal/aws"
	"github.com/malekus40/ticket-reimbursement-system/internal/keys"
	"github.com/malekus40/ticket-reimbursement-system/internal/logging"
)

// Store persists user profiles in the reimbursement table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
	log       *zap.Logger
}

// NewStore creates a user Store.
func NewStore(client aws.DynamoDBAPI, tableName string, log *zap.Logger) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
		log:       logging.OrNop(log),
	}
}

// Create writes a new profile. Returns ErrUserExists if the username is taken.
func (s *Store) Create(ctx context.Context, u User) (*User, error) {
	u.CreatedAt = s.nowFunc().UTC()
	item, err := attributevalue.MarshalMap(userItem{
		PK:        keys.User(u.Username),
		SK:        keys.ProfileSK,
		ItemType:  ItemTypeUser,
		Username:  u.Username,
		Password:  u.PasswordHash,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal user: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(PK)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, ErrUserExists
		}
		s.log.Error("put user", zap.String("table", s.tableName), zap.String("username", u.Username), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return &u, nil
}

// Get fetches a profile by username. Returns ErrNotFound if absent.
func (s *Store) Get(ctx context.Context, username string) (*User, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: keys.User(username)},
			"SK": &types.AttributeValueMemberS{Value: keys.ProfileSK},
		},
	})
	if err != nil {
		s.log.Error("get user", zap.String("table", s.tableName), zap.String("username", username), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}

	var it userItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	role, err := auth.ParseRole(it.Role)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", username, err)
	}
	return &User{
		Username:     it.Username,
		PasswordHash: it.Password,
		Role:         role,
		CreatedAt:    it.CreatedAt,
	}, nil
}

func awsString(s string) *string { return &s }
