package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"otc-service/internal/client"
	"otc-service/internal/models"
)

// KafkaSink publishes events keyed by identifier hash so one identifier stays on one partition.
type KafkaSink struct {
	producer *client.KafkaProducer
}

func NewKafkaSink(producer *client.KafkaProducer) *KafkaSink {
	return &KafkaSink{producer: producer}
}

func (s *KafkaSink) Record(ctx context.Context, event *models.AuditEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode audit event: %w", err)
	}
	return s.producer.ProduceMessage(ctx, []byte(event.IdentifierHash), value, map[string]string{
		"event_type": string(event.Type),
		"kind":       string(event.Kind),
	})
}

const clickhouseTable = "otc_events"

// ClickHouseSchema is applied by the migrate command.
const ClickHouseSchema = `
CREATE TABLE IF NOT EXISTS otc_events (
    id String,
    type LowCardinality(String),
    kind LowCardinality(String),
    identifier_hash String,
    bucket UInt16,
    attempts UInt16,
    occurred_at DateTime64(3, 'UTC')
) ENGINE = MergeTree
PARTITION BY toYYYYMM(occurred_at)
ORDER BY (kind, bucket, occurred_at)
TTL toDateTime(occurred_at) + INTERVAL 90 DAY`

type ClickHouseSink struct {
	client *client.ClickHouseClient
}

func NewClickHouseSink(c *client.ClickHouseClient) *ClickHouseSink {
	return &ClickHouseSink{client: c}
}

func (s *ClickHouseSink) Record(ctx context.Context, event *models.AuditEvent) error {
	return s.client.BatchInsert(ctx, "INSERT INTO "+clickhouseTable, [][]interface{}{{
		event.ID,
		string(event.Type),
		string(event.Kind),
		event.IdentifierHash,
		uint16(event.Bucket),
		uint16(event.Attempts),
		event.OccurredAt,
	}})
}

type ElasticsearchSink struct {
	client *client.ESClient
	index  string
}

func NewElasticsearchSink(c *client.ESClient, index string) *ElasticsearchSink {
	return &ElasticsearchSink{client: c, index: index}
}

func (s *ElasticsearchSink) Record(ctx context.Context, event *models.AuditEvent) error {
	return s.client.IndexDocument(ctx, s.index, event.ID, event)
}
