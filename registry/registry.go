// Package registry maps recipient names to opaque agent handles.
//
// The registry is pure bookkeeping: the broker consults it only to decide
// whether a recipient is deliverable. Whether a handle can answer a message is
// decided once, at registration time, and exposed as a capability flag; the
// broker never probes or invokes handles itself.
package registry

import (
	"log/slog"

	"github.com/alphadose/haxmap"
)

// Responder is the optional answer capability a handle may carry. Dispatching
// to it is the caller layer's responsibility, not the broker's.
type Responder interface {
	Answer(payload map[string]any) map[string]any
}

// Entry is a registered agent: the opaque handle plus its capability tag.
type Entry struct {
	Handle    any
	Responder Responder
}

// CanAnswer reports whether the handle carries the answer capability.
func (e *Entry) CanAnswer() bool {
	return e.Responder != nil
}

// AgentRegistry holds the name-to-handle mapping. Safe for concurrent use.
type AgentRegistry struct {
	agents *haxmap.Map[string, *Entry]
	logger *slog.Logger
}

// Option configures an AgentRegistry.
type Option func(*AgentRegistry)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *AgentRegistry) {
		r.logger = logger
	}
}

// New creates an empty registry.
func New(opts ...Option) *AgentRegistry {
	r := &AgentRegistry{
		agents: haxmap.New[string, *Entry](),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register stores a handle under name, overwriting any prior handle. The
// answer capability is detected here, once, and fixed for the registration.
func (r *AgentRegistry) Register(name string, handle any) {
	entry := &Entry{Handle: handle}
	if responder, ok := handle.(Responder); ok {
		entry.Responder = responder
	}
	r.agents.Set(name, entry)
}

// Unregister removes the entry for name. Removing an unknown name is a logged
// no-op, not an error.
func (r *AgentRegistry) Unregister(name string) {
	if _, ok := r.agents.Get(name); !ok {
		r.logger.Warn("Unregister of unknown agent", "agent", name)
		return
	}
	r.agents.Del(name)
}

// Lookup returns the entry for name.
func (r *AgentRegistry) Lookup(name string) (*Entry, bool) {
	return r.agents.Get(name)
}

// Names returns the registered names, in no particular order.
func (r *AgentRegistry) Names() []string {
	names := make([]string, 0, r.agents.Len())
	r.agents.ForEach(func(name string, _ *Entry) bool {
		names = append(names, name)
		return true
	})
	return names
}
