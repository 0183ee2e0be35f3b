package combus

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glimte/combus-go/config"
	"github.com/glimte/combus-go/contracts"
	"github.com/glimte/combus-go/internal/journal"
	"github.com/glimte/combus-go/internal/queue"
	"github.com/glimte/combus-go/registry"
)

// Delivery is one envelope handed to a consumer: the recipient it was
// addressed to, the envelope, and its serialized record form.
type Delivery struct {
	Recipient string
	Envelope  *contracts.Envelope
	Message   map[string]any
}

// Broker is the delivery engine: it mediates send, receive and acknowledge
// between registered agents, backed by a durable journal.
//
// All mutable state lives on the instance; there are no process-wide
// singletons. A single mutex guards the queue, the in-flight set and the
// journal append that records each transition, so no caller can observe the
// journal disagreeing with memory. Receive never sleeps while holding it.
type Broker struct {
	registry *registry.AgentRegistry
	journal  *journal.Journal
	logger   *slog.Logger

	maxRetries   int
	pollInterval time.Duration

	mu       sync.Mutex
	pending  *queue.PendingQueue
	inflight map[string]*contracts.Envelope

	notify chan struct{}
}

// New opens (or creates) the journal under journalDir, replays it to rebuild
// queue state, and returns a ready broker. Envelopes that were in-flight at
// the last shutdown are re-queued as pending, so no message is silently lost
// at the cost of possible re-delivery.
func New(journalDir string, opts ...Option) (*Broker, error) {
	b := &Broker{
		logger:       slog.Default(),
		maxRetries:   DefaultMaxRetries,
		pollInterval: DefaultPollInterval,
		pending:      queue.New(),
		inflight:     make(map[string]*contracts.Envelope),
		notify:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.registry == nil {
		b.registry = registry.New(registry.WithLogger(b.logger))
	}

	jnl, err := journal.Open(journalDir, journal.WithLogger(b.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	b.journal = jnl

	if err := b.restore(); err != nil {
		jnl.Close()
		return nil, err
	}
	return b, nil
}

// NewFromConfig builds a broker from a loaded configuration.
func NewFromConfig(cfg config.Config) (*Broker, error) {
	return New(cfg.Broker.JournalDir,
		WithLogger(cfg.Logger()),
		WithMaxRetries(cfg.Broker.MaxRetries),
		WithPollInterval(cfg.Broker.PollInterval),
	)
}

// restore rebuilds the pending queue from the journal. Recovered in-flight
// envelopes are appended after the pending ones, keeping their first-recorded
// order, with their availability clamped to now so they are immediately
// re-deliverable.
func (b *Broker) restore() error {
	result, err := b.journal.Replay()
	if err != nil {
		return fmt.Errorf("failed to replay journal: %w", err)
	}

	for _, env := range result.Pending {
		b.pending.Enqueue(env)
	}

	now := time.Now().Unix()
	for _, env := range result.Inflight {
		if env.AvailableAt() < now {
			env.SetAvailableAt(now)
		}
		b.pending.Enqueue(env)
	}

	if b.pending.Len() > 0 || result.Skipped > 0 {
		b.logger.Info("Journal replayed",
			"pending", b.pending.Len(),
			"recovered_inflight", len(result.Inflight),
			"skipped_lines", result.Skipped,
		)
	}
	return nil
}

// Register stores handle under name, overwriting any prior registration.
func (b *Broker) Register(name string, handle any) {
	b.registry.Register(name, handle)
}

// Unregister removes the registration for name; unknown names are a no-op.
func (b *Broker) Unregister(name string) {
	b.registry.Unregister(name)
}

// Agents returns the registered recipient names.
func (b *Broker) Agents() []string {
	return b.registry.Names()
}

// Registry exposes the agent registry for caller-layer capability dispatch.
func (b *Broker) Registry() *registry.AgentRegistry {
	return b.registry
}

// Send wraps payload in a new envelope addressed to to and enqueues it.
// It returns false without mutating any state when to is not registered.
// A non-nil error means the journal append failed and the message was not
// enqueued.
func (b *Broker) Send(to string, payload map[string]any, opts ...SendOption) (bool, error) {
	cfg := sendConfig{msgType: contracts.TypeTask}
	for _, opt := range opts {
		opt(&cfg)
	}

	if _, ok := b.registry.Lookup(to); !ok {
		b.logger.Warn("Send to unknown recipient", "recipient", to)
		return false, nil
	}

	env := contracts.NewEnvelope(to, cfg.sender, cfg.msgType, cfg.topic, payload, cfg.meta)
	return b.enqueue(env)
}

// SendEnvelope enqueues an already-constructed envelope, for re-injection and
// testing. The recipient must still be registered.
func (b *Broker) SendEnvelope(env *contracts.Envelope) (bool, error) {
	if _, ok := b.registry.Lookup(env.To); !ok {
		b.logger.Warn("Send to unknown recipient", "recipient", env.To)
		return false, nil
	}
	return b.enqueue(env)
}

// SendRaw validates a raw wire record, parses it, and enqueues the result.
// Malformed records surface a *contracts.ValidationError.
func (b *Broker) SendRaw(record map[string]any) (bool, error) {
	env, err := contracts.FromRecord(record)
	if err != nil {
		return false, err
	}
	return b.SendEnvelope(env)
}

// enqueue journals the send and places the envelope in the pending queue.
// The append happens before the queue mutation is visible.
func (b *Broker) enqueue(env *contracts.Envelope) (bool, error) {
	b.mu.Lock()
	if err := b.journal.Append(journal.EventSend, env, ""); err != nil {
		b.mu.Unlock()
		return false, fmt.Errorf("failed to journal send: %w", err)
	}
	b.pending.Enqueue(env)
	b.mu.Unlock()

	b.signal()
	return true, nil
}

// Receive returns the first envelope whose availability has passed, waiting
// cooperatively up to timeout for one to arrive. The second return value is
// false when nothing became available in time: an empty queue is silent, an
// expired positive timeout is reported at debug level. The wait never holds
// the broker lock, so producers are not blocked by a waiting consumer.
func (b *Broker) Receive(timeout time.Duration) (*Delivery, bool) {
	deadline := time.Now().Add(timeout)

	for {
		if delivery := b.tryReceive(); delivery != nil {
			return delivery, true
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			if timeout > 0 {
				b.logger.Debug("Receive timed out", "timeout", timeout)
			}
			return nil, false
		}

		wait := b.pollInterval
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-b.notify:
		case <-time.After(wait):
		}
	}
}

// tryReceive pops the first available envelope, journals the receive, and
// tracks task envelopes as in-flight. Returns nil when nothing is available.
func (b *Broker) tryReceive() *Delivery {
	b.mu.Lock()
	defer b.mu.Unlock()

	env := b.pending.PopAvailable(time.Now().Unix())
	if env == nil {
		return nil
	}

	if err := b.journal.Append(journal.EventReceive, env, ""); err != nil {
		// Not committed: the envelope goes back where it was.
		b.pending.EnqueueFront(env)
		b.logger.Error("Failed to journal receive", "id", env.ID, "error", err)
		return nil
	}

	if env.Type == contracts.TypeTask {
		b.inflight[env.ID] = env
	}

	return &Delivery{Recipient: env.To, Envelope: env, Message: env.ToRecord()}
}

// Ack resolves an in-flight envelope. Acknowledging an id that is not
// in-flight, including acknowledging twice, is a logged no-op.
//
// On success the envelope is terminal. On failure its attempt count grows;
// while attempts stay within the retry budget it is rescheduled with an
// exponential backoff, otherwise it is dead-lettered into both journals and
// never re-queued.
func (b *Broker) Ack(id string, success bool, cause error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	env, ok := b.inflight[id]
	if !ok {
		b.logger.Warn("Acknowledge for unknown message id", "id", id)
		return nil
	}

	errMsg := ""
	if cause != nil {
		errMsg = cause.Error()
	}

	if success {
		if err := b.journal.Append(journal.EventAck, env, ""); err != nil {
			return fmt.Errorf("failed to journal ack: %w", err)
		}
		delete(b.inflight, id)
		return nil
	}

	env.Attempts++
	if env.Attempts <= b.maxRetries {
		backoff := env.NextBackoff()
		env.SetAvailableAt(time.Now().Unix() + int64(backoff/time.Second))
		if err := b.journal.Append(journal.EventRetry, env, errMsg); err != nil {
			env.Attempts--
			return fmt.Errorf("failed to journal retry: %w", err)
		}
		delete(b.inflight, id)
		b.pending.Enqueue(env)
		b.logger.Info("Envelope rescheduled",
			"id", env.ID, "attempts", env.Attempts, "backoff", backoff, "error", errMsg)
		return nil
	}

	if err := b.journal.Append(journal.EventDLQ, env, errMsg); err != nil {
		env.Attempts--
		return fmt.Errorf("failed to journal dead-letter: %w", err)
	}
	delete(b.inflight, id)
	b.logger.Warn("Envelope dead-lettered",
		"id", env.ID, "attempts", env.Attempts, "error", errMsg)
	return nil
}

// PendingCount returns the number of envelopes awaiting delivery.
func (b *Broker) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending.Len()
}

// InflightCount returns the number of task envelopes awaiting acknowledgment.
func (b *Broker) InflightCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.inflight)
}

// Close releases the journal file handles. The broker must not be used after.
func (b *Broker) Close() error {
	return b.journal.Close()
}

// signal wakes at most one waiting receiver.
func (b *Broker) signal() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}
