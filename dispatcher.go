package combus

import (
	"context"
	"log/slog"
	"time"

	"github.com/glimte/combus-go/contracts"
)

// Dispatcher is the caller-layer loop that consumes deliveries and invokes
// the answer capability of recipients that registered one. It lives outside
// the broker core: the broker validates deliverability and never calls into
// handles itself.
//
// For a task addressed to a recipient with the answer capability the
// dispatcher invokes Answer(payload), acknowledges the task, and publishes
// the result back to the sender as a reply envelope on the same topic.
// Deliveries of other types, and deliveries to plain handles, are
// acknowledged as delivered without invoking anything.
type Dispatcher struct {
	bus     *Broker
	logger  *slog.Logger
	timeout time.Duration
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithReceiveTimeout sets how long each poll waits for a delivery.
func WithReceiveTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// NewDispatcher creates a dispatcher over bus.
func NewDispatcher(bus *Broker, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		bus:     bus,
		logger:  slog.Default(),
		timeout: 250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DispatchOne waits up to the receive timeout for a delivery and processes
// it. It reports whether a delivery was handled.
func (d *Dispatcher) DispatchOne() bool {
	delivery, ok := d.bus.Receive(d.timeout)
	if !ok {
		return false
	}

	env := delivery.Envelope
	entry, registered := d.bus.Registry().Lookup(delivery.Recipient)

	// Only task envelopes solicit an answer. Answering replies would bounce
	// a reply back at the original responder and loop forever.
	if env.Type != contracts.TypeTask || !registered || !entry.CanAnswer() {
		d.logger.Debug("Delivered without invoking an answer",
			"recipient", delivery.Recipient, "id", env.ID, "type", string(env.Type))
		d.ackTask(env, true, nil)
		return true
	}

	reply := entry.Responder.Answer(env.Payload)
	d.ackTask(env, true, nil)

	if env.From == "" {
		d.logger.Debug("Reply dropped, envelope has no sender", "id", env.ID)
		return true
	}

	sent, err := d.bus.Send(env.From, map[string]any{"reply": reply},
		WithSender(delivery.Recipient),
		WithType(contracts.TypeReply),
		WithTopic(env.Topic),
	)
	if err != nil {
		d.logger.Error("Failed to publish reply", "id", env.ID, "error", err)
	} else if !sent {
		d.logger.Warn("Reply dropped, sender not registered",
			"id", env.ID, "sender", env.From)
	}
	return true
}

// Run dispatches until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.DispatchOne()
	}
}

// ackTask acknowledges task envelopes; other types carry no in-flight state.
func (d *Dispatcher) ackTask(env *contracts.Envelope, success bool, cause error) {
	if env.Type != contracts.TypeTask {
		return
	}
	if err := d.bus.Ack(env.ID, success, cause); err != nil {
		d.logger.Error("Failed to acknowledge", "id", env.ID, "error", err)
	}
}
