package tickets

import (
	"time"

	"github.com/malekus40/ticket-reimbursement-system/internal/keys"
)

// Status is a ticket's lifecycle state. pending is initial; approved and denied are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
)

// ParseTransition returns the target status for a legal transition out of pending.
func ParseTransition(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusApproved, StatusDenied:
		return st, true
	}
	return "", false
}

// Ticket is one reimbursement request.
type Ticket struct {
	TicketID    string    `json:"ticket_id"`
	Owner       string    `json:"username"`
	Amount      float64   `json:"amount"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateInput is what an employee submits. IdempotencyKey is optional.
type CreateInput struct {
	Owner          string
	Amount         float64
	Description    string
	IdempotencyKey string
}

// CreateResult is the outcome of CreateTicket. Replayed is set when an earlier
// request with the same idempotency key already created the ticket.
type CreateResult struct {
	Ticket   *Ticket
	Replayed bool
}

const ItemTypeTicket = "TICKET"

// ticketItem is the persisted shape of a Ticket.
type ticketItem struct {
	PK          string    `dynamodbav:"PK"`
	SK          string    `dynamodbav:"SK"`
	ItemType    string    `dynamodbav:"itemType"`
	TicketID    string    `dynamodbav:"ticket_id"`
	Owner       string    `dynamodbav:"username"`
	Amount      float64   `dynamodbav:"amount"`
	Description string    `dynamodbav:"description"`
	Status      string    `dynamodbav:"status"`
	CreatedAt   time.Time `dynamodbav:"created_at"`
}

func newTicketItem(t Ticket) ticketItem {
	return ticketItem{
		PK:          keys.User(t.Owner),
		SK:          keys.Ticket(t.TicketID),
		ItemType:    ItemTypeTicket,
		TicketID:    t.TicketID,
		Owner:       t.Owner,
		Amount:      t.Amount,
		Description: t.Description,
		Status:      string(t.Status),
		CreatedAt:   t.CreatedAt,
	}
}

// ticket converts the item back, deriving id and owner from the keys when
// the explicit attributes are absent.
func (it ticketItem) ticket() Ticket {
	t := Ticket{
		TicketID:    it.TicketID,
		Owner:       it.Owner,
		Amount:      it.Amount,
		Description: it.Description,
		Status:      Status(it.Status),
		CreatedAt:   it.CreatedAt,
	}
	if t.TicketID == "" {
		t.TicketID = keys.TicketIDFrom(it.SK)
	}
	if t.Owner == "" {
		t.Owner = keys.UsernameFrom(it.PK)
	}
	return t
}
