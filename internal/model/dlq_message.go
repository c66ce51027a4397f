package model

import (
	"encoding/json"
	"time"
)

// RelayConsumerName marks DLQ rows produced by the relay itself rather than
// a log consumer.
const RelayConsumerName = "outbox-relay"

// DLQMessage is a terminal failure record: the event exhausted its retry
// budget and needs manual operator intervention. Created once, read-only
// afterwards.
type DLQMessage struct {
	ID           int64           `db:"id" json:"id"`
	ConsumerName string          `db:"consumer_name" json:"consumer_name"` // consumer name or "outbox-relay"
	EventID      string          `db:"event_id" json:"event_id"`
	Sequence     int64           `db:"sequence" json:"sequence"`
	Reason       string          `db:"reason" json:"reason"`
	Payload      json.RawMessage `db:"payload" json:"payload"` // raw payload snapshot
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}
