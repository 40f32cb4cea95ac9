package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/malekus40/ticket-reimbursement-system/internal/aws"
)

// Publisher emits ticket events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev TicketEvent) error
}

// Noop discards events.
type Noop struct{}

func (Noop) Publish(context.Context, TicketEvent) error { return nil }

// SQSPublisher sends events as JSON messages through an aws.Publisher.
type SQSPublisher struct {
	sender *aws.Publisher
}

// NewSQSPublisher wraps sender.
func NewSQSPublisher(sender *aws.Publisher) *SQSPublisher {
	return &SQSPublisher{sender: sender}
}

// Publish marshals ev and sends it with event_type, ticket_id and username attributes.
func (p *SQSPublisher) Publish(ctx context.Context, ev TicketEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.sender.Send(ctx, string(body), map[string]string{
		"event_type": ev.Type,
		"ticket_id":  ev.TicketID,
		"username":   ev.Owner,
	})
}

// FromConfig returns an SQSPublisher when queueURL is set and Noop otherwise.
func FromConfig(client aws.SQSAPI, queueURL string) Publisher {
	if client == nil || queueURL == "" {
		return Noop{}
	}
	return NewSQSPublisher(aws.NewPublisher(client, queueURL))
}
