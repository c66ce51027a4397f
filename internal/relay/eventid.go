package relay

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/model"
)

// ErrMalformedEventType marks event types with fewer than two dot segments.
// Row-local: the row fails, the batch continues.
var ErrMalformedEventType = errors.New("relay: malformed event type")

// Namespace for derived event ids. Fixed so the same logical event always
// derives the same id across processes and restarts.
var eventIDNamespace = uuid.MustParse("7c9e4a2b-51d3-4bd0-8f67-2a90c1e5b8aa")

// DeriveEventID returns the event id for an outbox row. A caller-supplied
// dedupe key is used verbatim; otherwise a UUIDv5 is derived from
// tenant|type|aggregate|sha256(payload), so re-processing the same row after
// a crash reproduces the same id.
func DeriveEventID(ev model.OutboxEvent) string {
	if ev.DedupeKey != "" {
		return ev.DedupeKey
	}

	name := strings.Join([]string{
		ev.TenantID,
		ev.EventType,
		ev.AggregateID,
		PayloadHash(ev.Payload),
	}, "|")

	return uuid.NewSHA1(eventIDNamespace, []byte(name)).String()
}

// ParseEventType splits "<domain>.<name>.<version>": the final segment is the
// version, the remainder joined is the schema id.
func ParseEventType(eventType string) (schemaID, version string, err error) {
	parts := strings.Split(eventType, ".")
	if len(parts) < 2 {
		return "", "", ErrMalformedEventType
	}
	return strings.Join(parts[:len(parts)-1], "."), parts[len(parts)-1], nil
}

// PayloadHash is the sha256 hex digest of the original (un-redacted) payload,
// stored for tamper/duplicate detection.
func PayloadHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
