package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"

	"github.com/malekus40/ticket-reimbursement-system/internal/aws"
	ticketevents "github.com/malekus40/ticket-reimbursement-system/internal/events"
	"github.com/malekus40/ticket-reimbursement-system/internal/logging"
)

// Metric names published per ticket event.
const (
	MetricTicketsCreated  = "TicketsCreated"
	MetricTicketsApproved = "TicketsApproved"
	MetricTicketsDenied   = "TicketsDenied"
	MetricApprovedAmount  = "ApprovedAmount"
)

// MetricsRecorder sends metric data points. *aws.MetricsRecorder implements it.
type MetricsRecorder interface {
	Record(ctx context.Context, metrics ...aws.Metric) error
}

// Processor turns ticket events from SQS into CloudWatch metrics.
type Processor struct {
	metrics MetricsRecorder
	log     *zap.Logger
}

// NewProcessor creates a worker processor.
func NewProcessor(metrics MetricsRecorder, log *zap.Logger) *Processor {
	return &Processor{metrics: metrics, log: logging.OrNop(log)}
}

// Handle processes every record in the batch and reports the ones that failed,
// so only those are redelivered.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.log.Warn("ticket event failed", zap.String("message_id", rec.MessageId), zap.Error(err))
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: rec.MessageId,
			})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg ticketevents.TicketEvent
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}

	metrics, err := metricsFor(msg)
	if err != nil {
		return err
	}
	if err := p.metrics.Record(ctx, metrics...); err != nil {
		return err
	}

	p.log.Info("ticket event processed",
		zap.String("event_type", msg.Type),
		zap.String("ticket_id", msg.TicketID),
		zap.String("status", msg.Status),
	)
	return nil
}

// metricsFor maps an event to its data points.
func metricsFor(msg ticketevents.TicketEvent) ([]aws.Metric, error) {
	if msg.TicketID == "" {
		return nil, fmt.Errorf("event %q without ticket_id", msg.Type)
	}
	count := func(name string) aws.Metric {
		return aws.Metric{
			Name:       name,
			Value:      1,
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: map[string]string{"Status": msg.Status},
			Timestamp:  msg.OccurredAt,
		}
	}

	switch msg.Type {
	case ticketevents.TypeTicketCreated:
		return []aws.Metric{count(MetricTicketsCreated)}, nil
	case ticketevents.TypeTicketStatusChanged:
		switch msg.Status {
		case "approved":
			amount := count(MetricApprovedAmount)
			amount.Value = msg.Amount
			amount.Unit = cwtypes.StandardUnitNone
			return []aws.Metric{count(MetricTicketsApproved), amount}, nil
		case "denied":
			return []aws.Metric{count(MetricTicketsDenied)}, nil
		}
		return nil, fmt.Errorf("status change to %q", msg.Status)
	default:
		return nil, fmt.Errorf("unknown event type %q", msg.Type)
	}
}
