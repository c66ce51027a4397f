package model

import "time"

type CheckpointStatus string

const (
	CheckpointPending    CheckpointStatus = "pending"
	CheckpointProcessing CheckpointStatus = "processing"
	CheckpointCompleted  CheckpointStatus = "completed"
	CheckpointFailed     CheckpointStatus = "failed"
)

func (s CheckpointStatus) String() string {
	return string(s)
}

// ConsumerCheckpoint tracks per-consumer processing state for one event.
// Keyed by (consumer_name, event_id); a consumer's effective cursor is the
// highest sequence with status=completed.
type ConsumerCheckpoint struct {
	ConsumerName string           `db:"consumer_name"`
	EventID      string           `db:"event_id"`
	Sequence     int64            `db:"sequence"`
	Status       CheckpointStatus `db:"status"`
	Attempts     int              `db:"attempts"`
	LastError    string           `db:"last_error"`
	ProcessedAt  *time.Time       `db:"processed_at"`
}
