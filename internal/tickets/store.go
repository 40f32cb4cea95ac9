package tickets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/malekus40/ticket-reimbursement-system/internal/aws"
	"github.com/malekus40/ticket-reimbursement-system/internal/idempotency"
	"github.com/malekus40/ticket-reimbursement-system/internal/keys"
	"github.com/malekus40/ticket-reimbursement-system/internal/logging"
)

// Store persists tickets in the single reimbursement table. Every method makes
// exactly one DynamoDB call and never retries.
type Store struct {
	client      aws.DynamoDBAPI
	tableName   string
	statusIndex string
	idempotency *idempotency.Store
	nowFunc     func() time.Time
	log         *zap.Logger
}

// NewStore creates a ticket Store. statusIndex is the GSI partitioned on status.
func NewStore(client aws.DynamoDBAPI, tableName, statusIndex string, idem *idempotency.Store, log *zap.Logger) *Store {
	return &Store{
		client:      client,
		tableName:   tableName,
		statusIndex: statusIndex,
		idempotency: idem,
		nowFunc:     time.Now,
		log:         logging.OrNop(log),
	}
}

// Put writes a new ticket. Status is forced to pending and created_at is
// stamped here. The write fails with ErrConditionFailed instead of overwriting
// an existing owner/ticket_id.
func (s *Store) Put(ctx context.Context, t Ticket) (*Ticket, error) {
	item, stored, err := s.newItem(t)
	if err != nil {
		return nil, err
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return nil, s.fail("put ticket", stored.Owner, stored.TicketID, err)
	}
	return &stored, nil
}

// PutIdempotent writes the ticket and its idempotency record in one
// transaction. When the record already exists it returns errDuplicateRequest
// and nothing is written. A transaction racing another one on the same record
// returns ErrRequestInFlight.
func (s *Store) PutIdempotent(ctx context.Context, t Ticket, key, fingerprint string) (*Ticket, error) {
	if s.idempotency == nil {
		return nil, fmt.Errorf("%w: idempotency store not configured", ErrBackendUnavailable)
	}
	item, stored, err := s.newItem(t)
	if err != nil {
		return nil, err
	}
	record, err := s.idempotency.PutRequest(stored.Owner, key, stored.TicketID, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			record,
			{
				Put: &types.Put{
					TableName:           &s.tableName,
					Item:                item,
					ConditionExpression: awsString("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
		},
	})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) && len(tce.CancellationReasons) > 0 {
			switch awsValue(tce.CancellationReasons[0].Code) {
			case "ConditionalCheckFailed":
				return nil, errDuplicateRequest
			case "TransactionConflict":
				s.log.Warn("put ticket (idempotent)",
					zap.String("owner", stored.Owner),
					zap.String("idempotency_key", key),
					zap.Error(err),
				)
				return nil, ErrRequestInFlight
			}
		}
		return nil, s.fail("put ticket (idempotent)", stored.Owner, stored.TicketID, err)
	}
	return &stored, nil
}

// Get fetches a single ticket. Returns ErrNotFound if absent.
func (s *Store) Get(ctx context.Context, owner, ticketID string) (*Ticket, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            ticketKey(owner, ticketID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, s.fail("get ticket", owner, ticketID, err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	var it ticketItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("%w: unmarshal ticket: %v", ErrBackendUnavailable, err)
	}
	t := it.ticket()
	return &t, nil
}

// Transition moves a ticket out of pending. The update is conditioned on the
// stored status still being pending, so of two concurrent transitions exactly
// one succeeds and the other gets ErrConditionFailed. A missing ticket also
// fails the condition.
func (s *Store) Transition(ctx context.Context, owner, ticketID string, newStatus Status) (*Ticket, error) {
	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      ticketKey(owner, ticketID),
		UpdateExpression:         awsString("SET #status = :newStatus"),
		ConditionExpression:      awsString("#status = :pending"),
		ExpressionAttributeNames: map[string]string{"#status": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pending":   &types.AttributeValueMemberS{Value: string(StatusPending)},
			":newStatus": &types.AttributeValueMemberS{Value: string(newStatus)},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		return nil, s.fail("transition ticket", owner, ticketID, err)
	}

	var it ticketItem
	if err := attributevalue.UnmarshalMap(out.Attributes, &it); err != nil {
		return nil, fmt.Errorf("%w: unmarshal ticket: %v", ErrBackendUnavailable, err)
	}
	t := it.ticket()
	return &t, nil
}

// QueryByStatus returns every ticket with status via the status GSI. No
// matches yields an empty, non-nil slice.
func (s *Store) QueryByStatus(ctx context.Context, status Status) ([]Ticket, error) {
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:                &s.tableName,
		IndexName:                &s.statusIndex,
		KeyConditionExpression:   awsString("#status = :status"),
		ExpressionAttributeNames: map[string]string{"#status": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
		},
	})
	if err != nil {
		return nil, s.fail("query tickets by status", "", string(status), err)
	}
	return decodeTickets(out.Items)
}

// QueryByOwner returns every ticket in owner's partition. The SK prefix keeps
// the profile item out.
func (s *Store) QueryByOwner(ctx context.Context, owner string) ([]Ticket, error) {
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: awsString("PK = :pk AND begins_with(SK, :ticketPrefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":           &types.AttributeValueMemberS{Value: keys.User(owner)},
			":ticketPrefix": &types.AttributeValueMemberS{Value: keys.TicketPrefix},
		},
	})
	if err != nil {
		return nil, s.fail("query tickets by owner", owner, "", err)
	}
	return decodeTickets(out.Items)
}

func (s *Store) newItem(t Ticket) (map[string]types.AttributeValue, Ticket, error) {
	t.Status = StatusPending
	t.CreatedAt = s.nowFunc().UTC()

	item, err := attributevalue.MarshalMap(newTicketItem(t))
	if err != nil {
		return nil, Ticket{}, fmt.Errorf("%w: marshal ticket: %v", ErrBackendUnavailable, err)
	}
	return item, t, nil
}

// fail logs a store error and classifies it.
func (s *Store) fail(op, owner, id string, err error) error {
	fields := []zap.Field{
		zap.String("table", s.tableName),
		zap.String("owner", owner),
		zap.String("ticket_id", id),
		zap.Error(err),
	}
	if isConditionFailure(err) {
		s.log.Warn(op, fields...)
		return fmt.Errorf("%s: %w", op, ErrConditionFailed)
	}
	s.log.Error(op, fields...)
	return fmt.Errorf("%s: %w: %v", op, ErrBackendUnavailable, err)
}

func isConditionFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, r := range tce.CancellationReasons {
			if awsValue(r.Code) == "ConditionalCheckFailed" {
				return true
			}
		}
		return false
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException"
}

func decodeTickets(items []map[string]types.AttributeValue) ([]Ticket, error) {
	var raw []ticketItem
	if err := attributevalue.UnmarshalListOfMaps(items, &raw); err != nil {
		return nil, fmt.Errorf("%w: unmarshal tickets: %v", ErrBackendUnavailable, err)
	}
	out := make([]Ticket, 0, len(raw))
	for _, it := range raw {
		if it.ItemType != "" && it.ItemType != ItemTypeTicket {
			continue
		}
		out = append(out, it.ticket())
	}
	return out, nil
}

func ticketKey(owner, ticketID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: keys.User(owner)},
		"SK": &types.AttributeValueMemberS{Value: keys.Ticket(ticketID)},
	}
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }

func awsValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
