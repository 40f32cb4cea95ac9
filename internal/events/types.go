package events

import "time"

// Event types.
const (
	TypeTicketCreated       = "ticket.created"
	TypeTicketStatusChanged = "ticket.status_changed"
)

// TicketEvent is the message body published after a ticket is created or decided.
type TicketEvent struct {
	Type       string    `json:"event_type"`
	TicketID   string    `json:"ticket_id"`
	Owner      string    `json:"username"`
	Status     string    `json:"status"`
	Amount     float64   `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
}
