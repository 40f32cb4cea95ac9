package tickets

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/malekus40/ticket-reimbursement-system/internal/events"
	"github.com/malekus40/ticket-reimbursement-system/internal/idempotency"
	"github.com/malekus40/ticket-reimbursement-system/internal/logging"
)

// Repository is the persistence contract the Service depends on. *Store implements it.
type Repository interface {
	Put(ctx context.Context, t Ticket) (*Ticket, error)
	PutIdempotent(ctx context.Context, t Ticket, key, fingerprint string) (*Ticket, error)
	Get(ctx context.Context, owner, ticketID string) (*Ticket, error)
	Transition(ctx context.Context, owner, ticketID string, newStatus Status) (*Ticket, error)
	QueryByStatus(ctx context.Context, status Status) ([]Ticket, error)
	QueryByOwner(ctx context.Context, owner string) ([]Ticket, error)
}

// IdempotencyLookup resolves a recorded idempotency key.
type IdempotencyLookup interface {
	Get(ctx context.Context, owner, key string) (*idempotency.Record, error)
}

// Service holds the ticket business rules. It validates input before touching
// the Repository and leaves transition legality to the store's conditional write.
type Service struct {
	repo      Repository
	idem      IdempotencyLookup
	publisher events.Publisher
	newID     func() string
	nowFunc   func() time.Time
	log       *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher publishes ticket events after successful writes.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithIdempotency enables replay of idempotent creates.
func WithIdempotency(lookup IdempotencyLookup) Option {
	return func(s *Service) { s.idem = lookup }
}

// WithIDGenerator overrides uuid.NewString.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// NewService returns a Service backed by repo.
func NewService(repo Repository, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		publisher: events.Noop{},
		newID:     uuid.NewString,
		nowFunc:   time.Now,
		log:       logging.OrNop(log),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTicket files a new pending ticket for in.Owner.
func (s *Service) CreateTicket(ctx context.Context, in CreateInput) (*CreateResult, error) {
	in.Owner = strings.TrimSpace(in.Owner)
	in.Description = strings.TrimSpace(in.Description)
	if err := validateCreate(in); err != nil {
		s.log.Debug("create rejected", zap.String("owner", in.Owner), zap.Error(err))
		return nil, err
	}

	t := Ticket{
		TicketID:    s.newID(),
		Owner:       in.Owner,
		Amount:      in.Amount,
		Description: in.Description,
	}

	if in.IdempotencyKey == "" {
		created, err := s.repo.Put(ctx, t)
		if err != nil {
			return nil, err
		}
		s.publish(ctx, events.TypeTicketCreated, created)
		return &CreateResult{Ticket: created}, nil
	}

	fingerprint := requestFingerprint(in)
	created, err := s.repo.PutIdempotent(ctx, t, in.IdempotencyKey, fingerprint)
	if errors.Is(err, errDuplicateRequest) {
		return s.replay(ctx, in, fingerprint)
	}
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TypeTicketCreated, created)
	return &CreateResult{Ticket: created}, nil
}

// replay returns the ticket created by an earlier request with the same key.
func (s *Service) replay(ctx context.Context, in CreateInput, fingerprint string) (*CreateResult, error) {
	if s.idem == nil {
		return nil, fmt.Errorf("replay: %w", ErrConditionFailed)
	}
	rec, err := s.idem.Get(ctx, in.Owner, in.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("replay: %w: %v", ErrBackendUnavailable, err)
	}
	if rec == nil {
		// expired between the cancelled write and this read
		return nil, fmt.Errorf("replay: %w", ErrConditionFailed)
	}
	if rec.Fingerprint != fingerprint {
		return nil, ErrIdempotencyConflict
	}
	original, err := s.repo.Get(ctx, in.Owner, rec.TicketID)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	s.log.Info("idempotent create replayed",
		zap.String("owner", in.Owner),
		zap.String("ticket_id", original.TicketID),
	)
	return &CreateResult{Ticket: original, Replayed: true}, nil
}

// UpdateTicketStatus approves or denies a pending ticket.
func (s *Service) UpdateTicketStatus(ctx context.Context, owner, ticketID, newStatus string) (*Ticket, error) {
	if owner == "" || ticketID == "" || newStatus == "" {
		return nil, fmt.Errorf("%w: username, ticket_id and newStatus are required", ErrValidation)
	}
	target, ok := ParseTransition(newStatus)
	if !ok {
		return nil, fmt.Errorf("%w: status %q is not a legal transition", ErrValidation, newStatus)
	}

	updated, err := s.repo.Transition(ctx, owner, ticketID, target)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TypeTicketStatusChanged, updated)
	return updated, nil
}

// GetPendingTickets lists every ticket awaiting a decision.
func (s *Service) GetPendingTickets(ctx context.Context) ([]Ticket, error) {
	return s.repo.QueryByStatus(ctx, StatusPending)
}

// GetTicketsByUser lists owner's tickets.
func (s *Service) GetTicketsByUser(ctx context.Context, owner string) ([]Ticket, error) {
	if owner == "" {
		return nil, fmt.Errorf("%w: username is required", ErrValidation)
	}
	return s.repo.QueryByOwner(ctx, owner)
}

func (s *Service) publish(ctx context.Context, typ string, t *Ticket) {
	ev := events.TicketEvent{
		Type:       typ,
		TicketID:   t.TicketID,
		Owner:      t.Owner,
		Status:     string(t.Status),
		Amount:     t.Amount,
		OccurredAt: t.CreatedAt,
	}
	if typ == events.TypeTicketStatusChanged {
		ev.OccurredAt = s.nowFunc().UTC()
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.Warn("publish ticket event",
			zap.String("type", typ),
			zap.String("ticket_id", t.TicketID),
			zap.Error(err),
		)
	}
}

func validateCreate(in CreateInput) error {
	var missing []string
	if in.Owner == "" {
		missing = append(missing, "username")
	}
	if !(in.Amount > 0) {
		missing = append(missing, "amount")
	}
	if in.Description == "" {
		missing = append(missing, "description")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: invalid or missing %s", ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

func requestFingerprint(in CreateInput) string {
	return idempotency.Fingerprint(
		in.Owner,
		strconv.FormatFloat(in.Amount, 'f', -1, 64),
		in.Description,
	)
}
