package bridge

import (
	"fmt"

	combus "github.com/glimte/combus-go"
	"github.com/glimte/combus-go/contracts"
)

// recipientKeys are checked in order when extracting the recipient from a
// legacy payload.
var recipientKeys = []string{"recipient", "to", "target"}

// Communicator adapts legacy callers that pass a single payload mapping with
// the recipient embedded in it to the broker's primary Send API. The whole
// payload is forwarded as-is.
type Communicator struct {
	bus    *combus.Broker
	sender string
}

// CommunicatorOption configures a Communicator.
type CommunicatorOption func(*Communicator)

// WithSenderName sets the sender recorded on envelopes the adapter creates.
func WithSenderName(sender string) CommunicatorOption {
	return func(c *Communicator) {
		c.sender = sender
	}
}

// NewCommunicator wraps bus with the legacy communicate surface.
func NewCommunicator(bus *combus.Broker, opts ...CommunicatorOption) *Communicator {
	c := &Communicator{bus: bus}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Communicate extracts the recipient from payload under "recipient", "to" or
// "target" and sends the payload through the broker. It returns the broker's
// deliverability result; a payload naming no recipient is an error.
func (c *Communicator) Communicate(payload map[string]any) (bool, error) {
	recipient := extractRecipient(payload)
	if recipient == "" {
		return false, fmt.Errorf("communicate requires a recipient under one of %v", recipientKeys)
	}

	return c.bus.Send(recipient, payload,
		combus.WithSender(c.sender),
		combus.WithType(contracts.TypeTask),
	)
}

func extractRecipient(payload map[string]any) string {
	for _, key := range recipientKeys {
		if v, ok := payload[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
