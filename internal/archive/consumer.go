package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/perkmint/perkmint-backend/pkg/enums"
	"github.com/perkmint/perkmint-backend/pkg/logger"
	"github.com/perkmint/perkmint-backend/pkg/metrics"
	"github.com/perkmint/perkmint-backend/pkg/outbox"
	"github.com/perkmint/perkmint-backend/pkg/outbox/payloads"
	"github.com/perkmint/perkmint-backend/pkg/outbox/registry"
)

const (
	archiveConsumerName = "settlement-archive"
	taskArchive         = "archive"
)

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// envelope is the decoded form of one domain topic message.
type envelope struct {
	EventID       string
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	Version       int
	OccurredAt    time.Time
	Payload       json.RawMessage
}

// Consumer streams settlement-relevant domain events into the BigQuery
// archive table. Redis idempotency keeps redelivered messages from producing
// duplicate rows; the mark is dropped on insert failure so retries can land.
type Consumer struct {
	subscription *gcppubsub.Subscriber
	inserter     tableInserter
	table        string
	manager      idempotencyChecker
	worker       *metrics.WorkerMetrics
	logg         *logger.Logger
	eventFilter  map[enums.OutboxEventType]struct{}
	decoders     *registry.DecoderRegistry
}

// NewConsumer builds the settlement archiver. The metrics handle may be nil.
func NewConsumer(
	subscription *gcppubsub.Subscriber,
	inserter tableInserter,
	table string,
	manager idempotencyChecker,
	worker *metrics.WorkerMetrics,
	logg *logger.Logger,
) (*Consumer, error) {
	if subscription == nil {
		return nil, errors.New("archive subscription is required")
	}
	if inserter == nil {
		return nil, errors.New("bigquery client is required")
	}
	if strings.TrimSpace(table) == "" {
		return nil, errors.New("bigquery table name is required")
	}
	if manager == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	return &Consumer{
		subscription: subscription,
		inserter:     inserter,
		table:        strings.TrimSpace(table),
		manager:      manager,
		worker:       worker,
		logg:         logg,
		// Lottery events never touch the ledger, so they stay out of the
		// settlement archive.
		eventFilter: map[enums.OutboxEventType]struct{}{
			enums.EventVoucherMinted:      {},
			enums.EventVoucherUsed:        {},
			enums.EventVoucherTransferred: {},
			enums.EventVoucherRecycled:    {},
			enums.EventSettlementReached:  {},
			enums.EventSettlementFailed:   {},
		},
		decoders: archiveDecoders(),
	}, nil
}

type processResult struct {
	nack bool
}

// Run consumes domain topic messages until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return c.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if c.process(innerCtx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (c *Consumer) process(ctx context.Context, msg *gcppubsub.Message) processResult {
	started := time.Now()
	fields := map[string]any{"message_id": msg.ID}
	logCtx := c.logg.WithFields(ctx, fields)

	env, err := c.buildEnvelope(msg)
	if err != nil {
		// Malformed messages never become valid; ack so they do not requeue.
		fields["error"] = err.Error()
		c.logg.Warn(c.logg.WithFields(ctx, fields), "invalid archive envelope")
		return processResult{}
	}
	fields["event_id"] = env.EventID
	fields["event_type"] = env.EventType
	fields["aggregate_type"] = env.AggregateType
	fields["aggregate_id"] = env.AggregateID
	fields["occurred_at"] = env.OccurredAt.Format(time.RFC3339Nano)
	logCtx = c.logg.WithFields(ctx, fields)

	if _, ok := c.eventFilter[env.EventType]; !ok {
		c.worker.AddItems(taskArchive, "filtered", 1)
		return processResult{}
	}

	// A payload that fails its schema never becomes valid; ack and drop.
	if _, err := c.decoders.Decode(env.EventType, env.Version, env.Payload); err != nil {
		fields["error"] = err.Error()
		c.logg.Warn(c.logg.WithFields(ctx, fields), "archive payload failed schema check")
		c.worker.AddItems(taskArchive, "malformed", 1)
		return processResult{}
	}

	eventID, err := uuid.Parse(env.EventID)
	if err != nil {
		c.logg.Warn(logCtx, "invalid event id")
		return processResult{}
	}

	already, err := c.manager.CheckAndMarkProcessed(logCtx, archiveConsumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		c.worker.IncFailure(taskArchive)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already archived")
		c.worker.AddItems(taskArchive, "duplicate", 1)
		return processResult{}
	}

	row, err := buildRow(env)
	if err != nil {
		c.logg.Error(logCtx, "failed to build settlement row", err)
		_ = c.manager.Delete(logCtx, archiveConsumerName, eventID)
		c.worker.IncFailure(taskArchive)
		return processResult{nack: true}
	}

	if err := c.inserter.InsertRows(logCtx, c.table, []any{row}); err != nil {
		c.logg.Error(logCtx, "failed to insert settlement row", err)
		_ = c.manager.Delete(logCtx, archiveConsumerName, eventID)
		c.worker.IncFailure(taskArchive)
		return processResult{nack: true}
	}

	c.worker.ObserveDuration(taskArchive, time.Since(started))
	c.worker.IncSuccess(taskArchive)
	c.worker.AddItems(taskArchive, "ingested", 1)
	c.logg.Info(logCtx, "settlement event archived")
	return processResult{}
}

func (c *Consumer) buildEnvelope(msg *gcppubsub.Message) (*envelope, error) {
	var stored outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &stored); err != nil {
		return nil, fmt.Errorf("decode payload envelope: %w", err)
	}

	eventType, err := enums.ParseOutboxEventType(strings.TrimSpace(msg.Attributes["event_type"]))
	if err != nil {
		return nil, fmt.Errorf("event_type: %w", err)
	}

	aggregateType, err := enums.ParseOutboxAggregateType(strings.TrimSpace(msg.Attributes["aggregate_type"]))
	if err != nil {
		return nil, fmt.Errorf("aggregate_type: %w", err)
	}

	aggregateID := strings.TrimSpace(msg.Attributes["aggregate_id"])
	if aggregateID == "" {
		return nil, errors.New("aggregate_id missing")
	}

	occurredAt := stored.OccurredAt
	if occurredAt.IsZero() {
		if created := strings.TrimSpace(msg.Attributes["created_at"]); created != "" {
			if parsed, err := time.Parse(time.RFC3339Nano, created); err == nil {
				occurredAt = parsed
			}
		}
	}

	eventID := strings.TrimSpace(stored.EventID)
	if eventID == "" {
		eventID = strings.TrimSpace(msg.Attributes["event_id"])
	}
	if eventID == "" {
		return nil, errors.New("event_id missing")
	}

	// Messages predating the version field archive as v1.
	version := stored.Version
	if version == 0 {
		version = 1
	}

	return &envelope{
		EventID:       eventID,
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Version:       version,
		OccurredAt:    occurredAt.UTC(),
		Payload:       stored.Data,
	}, nil
}

type settlementEventRow struct {
	EventID            string             `bigquery:"event_id"`
	EventType          string             `bigquery:"event_type"`
	AggregateType      string             `bigquery:"aggregate_type"`
	AggregateID        string             `bigquery:"aggregate_id"`
	OccurredAt         time.Time          `bigquery:"occurred_at"`
	VoucherID          *string            `bigquery:"voucher_id"`
	AuditTransactionID *string            `bigquery:"audit_transaction_id"`
	ExternalRef        *string            `bigquery:"external_ref"`
	Kind               *string            `bigquery:"kind"`
	Reason             *string            `bigquery:"reason"`
	Payload            cbigquery.NullJSON `bigquery:"payload"`
}

func buildRow(env *envelope) (*settlementEventRow, error) {
	payload := map[string]any{}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		if payload == nil {
			payload = map[string]any{}
		}
	}

	payloadJSON := cbigquery.NullJSON{}
	if len(env.Payload) > 0 {
		payloadJSON.Valid = true
		payloadJSON.JSONVal = string(env.Payload)
	}

	externalRef := stringValue(payload, "external_ref")
	if externalRef == nil {
		externalRef = stringValue(payload, "tx_hash")
	}

	return &settlementEventRow{
		EventID:            env.EventID,
		EventType:          string(env.EventType),
		AggregateType:      string(env.AggregateType),
		AggregateID:        env.AggregateID,
		OccurredAt:         env.OccurredAt,
		VoucherID:          stringValue(payload, "voucher_id"),
		AuditTransactionID: stringValue(payload, "audit_transaction_id"),
		ExternalRef:        externalRef,
		Kind:               stringValue(payload, "kind"),
		Reason:             stringValue(payload, "reason"),
		Payload:            payloadJSON,
	}, nil
}

func stringValue(payload map[string]any, key string) *string {
	if payload == nil {
		return nil
	}
	if raw, ok := payload[key]; ok {
		if str, ok := raw.(string); ok {
			trimmed := strings.TrimSpace(str)
			if trimmed != "" {
				return &trimmed
			}
		}
	}
	return nil
}

// archiveDecoders registers the typed schema for every archived event type
// so rows only land in BigQuery after decoding against their contract.
func archiveDecoders() *registry.DecoderRegistry {
	reg := registry.NewDecoderRegistry()
	for eventType, factory := range map[enums.OutboxEventType]func() any{
		enums.EventVoucherMinted:      func() any { return &payloads.VoucherMintedEvent{} },
		enums.EventVoucherUsed:        func() any { return &payloads.VoucherUsedEvent{} },
		enums.EventVoucherTransferred: func() any { return &payloads.VoucherTransferredEvent{} },
		enums.EventVoucherRecycled:    func() any { return &payloads.VoucherRecycledEvent{} },
		enums.EventSettlementReached:  func() any { return &payloads.SettlementConfirmedEvent{} },
		enums.EventSettlementFailed:   func() any { return &payloads.SettlementFailedEvent{} },
	} {
		reg.Register(eventType, 1, func(payload json.RawMessage) (interface{}, error) {
			dest := factory()
			if err := json.Unmarshal(payload, dest); err != nil {
				return nil, err
			}
			return dest, nil
		})
	}
	return reg
}
