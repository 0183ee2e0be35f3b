package contracts

import (
	"time"

	"github.com/google/uuid"
)

// MessageType classifies an envelope. Only TypeTask envelopes are tracked
// in-flight and subject to retry and dead-lettering.
type MessageType string

const (
	TypeTask  MessageType = "task"
	TypeEvent MessageType = "event"
	TypeReply MessageType = "reply"
	TypeLog   MessageType = "log"
)

// IsValid reports whether t is one of the four closed message types.
func (t MessageType) IsValid() bool {
	switch t {
	case TypeTask, TypeEvent, TypeReply, TypeLog:
		return true
	}
	return false
}

// MetaAvailableAt is the meta key holding the epoch second before which an
// envelope must not be delivered.
const MetaAvailableAt = "available_at"

// MaxBackoff caps the retry backoff.
const MaxBackoff = 30 * time.Second

// Envelope is a single addressed, typed, timestamped message unit.
// The ID is assigned at creation and never changes; it is the unit of
// idempotency and acknowledgment.
type Envelope struct {
	ID        string         `json:"id"`
	To        string         `json:"to"`
	From      string         `json:"from"`
	Type      MessageType    `json:"type"`
	Topic     string         `json:"topic"`
	CreatedAt int64          `json:"created_at"`
	Payload   map[string]any `json:"payload"`
	Meta      map[string]any `json:"meta"`
	Attempts  int            `json:"attempts"`
}

// NewEnvelope creates an envelope with a generated ID and current timestamp.
// A nil payload or meta becomes an empty map; they are never absent.
func NewEnvelope(to, from string, msgType MessageType, topic string, payload, meta map[string]any) *Envelope {
	if payload == nil {
		payload = map[string]any{}
	}
	if meta == nil {
		meta = map[string]any{}
	}
	return &Envelope{
		ID:        uuid.New().String(),
		To:        to,
		From:      from,
		Type:      msgType,
		Topic:     topic,
		CreatedAt: time.Now().Unix(),
		Payload:   payload,
		Meta:      meta,
		Attempts:  0,
	}
}

// requiredFields are the keys every raw envelope record must carry.
var requiredFields = []string{"id", "to", "from", "type", "topic", "created_at", "payload", "meta"}

// Validate checks that raw is a well-formed envelope record: all required
// fields present, type one of the closed set, payload and meta mappings,
// created_at an integer. It returns a *ValidationError describing the first
// violation found.
func Validate(raw map[string]any) error {
	for _, field := range requiredFields {
		if _, ok := raw[field]; !ok {
			return &ValidationError{Field: field, Reason: "missing required field"}
		}
	}

	typeTag, ok := raw["type"].(string)
	if !ok || !MessageType(typeTag).IsValid() {
		return &ValidationError{Field: "type", Reason: "must be one of task, event, reply, log"}
	}

	if _, ok := raw["payload"].(map[string]any); !ok {
		return &ValidationError{Field: "payload", Reason: "must be a mapping"}
	}
	if _, ok := raw["meta"].(map[string]any); !ok {
		return &ValidationError{Field: "meta", Reason: "must be a mapping"}
	}

	if _, ok := asInt64(raw["created_at"]); !ok {
		return &ValidationError{Field: "created_at", Reason: "must be an integer timestamp"}
	}

	for _, field := range []string{"id", "to", "from", "topic"} {
		if _, ok := raw[field].(string); !ok {
			return &ValidationError{Field: field, Reason: "must be a string"}
		}
	}

	return nil
}

// FromRecord validates raw and constructs an Envelope from it. Attempts
// defaults to 0 when absent. It is the exact inverse of ToRecord.
func FromRecord(raw map[string]any) (*Envelope, error) {
	if err := Validate(raw); err != nil {
		return nil, err
	}

	createdAt, _ := asInt64(raw["created_at"])
	env := &Envelope{
		ID:        raw["id"].(string),
		To:        raw["to"].(string),
		From:      raw["from"].(string),
		Type:      MessageType(raw["type"].(string)),
		Topic:     raw["topic"].(string),
		CreatedAt: createdAt,
		Payload:   raw["payload"].(map[string]any),
		Meta:      raw["meta"].(map[string]any),
	}
	if attempts, ok := asInt64(raw["attempts"]); ok {
		env.Attempts = int(attempts)
	}
	return env, nil
}

// ToRecord returns the canonical mapping form of the envelope.
func (e *Envelope) ToRecord() map[string]any {
	return map[string]any{
		"id":         e.ID,
		"to":         e.To,
		"from":       e.From,
		"type":       string(e.Type),
		"topic":      e.Topic,
		"created_at": e.CreatedAt,
		"payload":    e.Payload,
		"meta":       e.Meta,
		"attempts":   e.Attempts,
	}
}

// NextBackoff returns the delay before a failed envelope becomes eligible for
// redelivery: min(2^max(attempts,1), 30) seconds. Deterministic and capped.
func (e *Envelope) NextBackoff() time.Duration {
	exp := e.Attempts
	if exp < 1 {
		exp = 1
	}
	if exp >= 5 {
		return MaxBackoff
	}
	backoff := time.Duration(1<<uint(exp)) * time.Second
	if backoff > MaxBackoff {
		return MaxBackoff
	}
	return backoff
}

// AvailableAt returns the epoch second before which the envelope must not be
// delivered. Zero means immediately available.
func (e *Envelope) AvailableAt() int64 {
	if v, ok := asInt64(e.Meta[MetaAvailableAt]); ok {
		return v
	}
	return 0
}

// SetAvailableAt schedules the envelope for delivery no earlier than ts.
func (e *Envelope) SetAvailableAt(ts int64) {
	if e.Meta == nil {
		e.Meta = map[string]any{}
	}
	e.Meta[MetaAvailableAt] = ts
}

// asInt64 accepts the integer shapes a record can arrive with: native ints
// from in-process callers and float64 from decoded JSON, rejecting fractions.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}
