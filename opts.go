package combus

import (
	"log/slog"
	"time"

	"github.com/glimte/combus-go/contracts"
	"github.com/glimte/combus-go/registry"
)

// Defaults for broker tuning.
const (
	DefaultMaxRetries   = 3
	DefaultPollInterval = 50 * time.Millisecond
)

// Option configures a Broker.
type Option func(*Broker)

// WithLogger sets the broker logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) {
		b.logger = logger
	}
}

// WithMaxRetries sets how many failed acknowledgments a task envelope may
// accumulate before it is dead-lettered.
func WithMaxRetries(retries int) Option {
	return func(b *Broker) {
		b.maxRetries = retries
	}
}

// WithPollInterval bounds the cooperative wait inside Receive.
func WithPollInterval(interval time.Duration) Option {
	return func(b *Broker) {
		if interval > 0 {
			b.pollInterval = interval
		}
	}
}

// WithRegistry supplies a pre-populated agent registry.
func WithRegistry(r *registry.AgentRegistry) Option {
	return func(b *Broker) {
		b.registry = r
	}
}

type sendConfig struct {
	sender  string
	msgType contracts.MessageType
	topic   string
	meta    map[string]any
}

// SendOption configures a single Send call.
type SendOption func(*sendConfig)

// WithSender sets the sender name recorded on the envelope.
func WithSender(sender string) SendOption {
	return func(c *sendConfig) {
		c.sender = sender
	}
}

// WithType sets the message type. The default is task.
func WithType(msgType contracts.MessageType) SendOption {
	return func(c *sendConfig) {
		c.msgType = msgType
	}
}

// WithTopic sets the free-form topic string.
func WithTopic(topic string) SendOption {
	return func(c *sendConfig) {
		c.topic = topic
	}
}

// WithMeta sets the envelope's side-channel metadata.
func WithMeta(meta map[string]any) SendOption {
	return func(c *sendConfig) {
		c.meta = meta
	}
}
