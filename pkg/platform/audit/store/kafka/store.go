// Package kafka streams audit events to a Kafka topic so downstream
// consumers can rebuild custody history outside the ledger process.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "tracechain/pkg/platform/audit"
)

// Producer is the subset of *kgo.Client used by the store.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Store implements audit.Store by producing one record per event. Records are
// keyed by actor address so one participant's history stays ordered within a
// partition.
type Store struct {
	producer Producer
	topic    string
}

func New(producer Producer, topic string) *Store {
	return &Store{producer: producer, topic: topic}
}

// message is the JSON payload published to Kafka.
type message struct {
	ID           string `json:"id"`
	Timestamp    string `json:"timestamp"`
	Action       string `json:"action"`
	Actor        string `json:"actor"`
	Counterparty string `json:"counterparty,omitempty"`
	TokenID      uint64 `json:"token_id,omitempty"`
	TransferID   uint64 `json:"transfer_id,omitempty"`
	Amount       int64  `json:"amount,omitempty"`
	Detail       string `json:"detail,omitempty"`
	RequestID    string `json:"request_id,omitempty"`
}

func encode(event audit.Event) ([]byte, error) {
	return json.Marshal(message{
		ID:           event.ID.String(),
		Timestamp:    event.Timestamp.UTC().Format(time.RFC3339Nano),
		Action:       string(event.Action),
		Actor:        event.Actor.String(),
		Counterparty: event.Counterparty.String(),
		TokenID:      uint64(event.TokenID),
		TransferID:   uint64(event.TransferID),
		Amount:       event.Amount,
		Detail:       event.Detail,
		RequestID:    event.RequestID,
	})
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	payload, err := encode(event)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.Actor),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(event.Action)},
		},
	}
	if err := s.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}
