package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/malekus40/ticket-reimbursement-system/internal/aws/awstest"
)

func TestSQSPublisher_Publish(t *testing.T) {
	fake := awstest.NewFakeSQS()
	p := FromConfig(fake, "https://sqs.local/ticket-events")

	ev := TicketEvent{
		Type:       TypeTicketStatusChanged,
		TicketID:   "t-1",
		Owner:      "alice",
		Status:     "approved",
		Amount:     100,
		OccurredAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	msgs := fake.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	var got TicketEvent
	if err := json.Unmarshal([]byte(*msgs[0].MessageBody), &got); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if !got.OccurredAt.Equal(ev.OccurredAt) {
		t.Fatalf("occurred_at mismatch: %s", got.OccurredAt)
	}
	got.OccurredAt = ev.OccurredAt
	if got != ev {
		t.Fatalf("event mismatch: %+v", got)
	}
	if v := *msgs[0].MessageAttributes["event_type"].StringValue; v != TypeTicketStatusChanged {
		t.Fatalf("event_type attribute mismatch: %s", v)
	}
}

func TestFromConfig_NoQueue(t *testing.T) {
	if _, ok := FromConfig(awstest.NewFakeSQS(), "").(Noop); !ok {
		t.Fatalf("expected Noop publisher without a queue")
	}
	if _, ok := FromConfig(nil, "q").(Noop); !ok {
		t.Fatalf("expected Noop publisher without a client")
	}
}
