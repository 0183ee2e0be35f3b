package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	combus "github.com/glimte/combus-go"
)

func newBus(t *testing.T) *combus.Broker {
	t.Helper()
	bus, err := combus.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { bus.Close() })
	return bus
}

func TestCommunicate(t *testing.T) {
	t.Run("extracts the recipient from each legacy key", func(t *testing.T) {
		for _, key := range []string{"recipient", "to", "target"} {
			t.Run(key, func(t *testing.T) {
				bus := newBus(t)
				bus.Register("codex", struct{}{})
				c := NewCommunicator(bus, WithSenderName("operator"))

				sent, err := c.Communicate(map[string]any{key: "codex", "msg": "ping"})
				require.NoError(t, err)
				assert.True(t, sent)

				delivery, ok := bus.Receive(10 * time.Millisecond)
				require.True(t, ok)
				assert.Equal(t, "codex", delivery.Recipient)
				assert.Equal(t, "ping", delivery.Envelope.Payload["msg"])
				assert.Equal(t, "operator", delivery.Envelope.From)
			})
		}
	})

	t.Run("prefers recipient over to and target", func(t *testing.T) {
		bus := newBus(t)
		bus.Register("first", struct{}{})
		bus.Register("second", struct{}{})
		c := NewCommunicator(bus)

		sent, err := c.Communicate(map[string]any{"recipient": "first", "to": "second"})
		require.NoError(t, err)
		assert.True(t, sent)

		delivery, ok := bus.Receive(10 * time.Millisecond)
		require.True(t, ok)
		assert.Equal(t, "first", delivery.Recipient)
	})

	t.Run("missing recipient is an error", func(t *testing.T) {
		c := NewCommunicator(newBus(t))
		sent, err := c.Communicate(map[string]any{"msg": "ping"})
		assert.Error(t, err)
		assert.False(t, sent)
	})

	t.Run("unknown recipient reports false without error", func(t *testing.T) {
		c := NewCommunicator(newBus(t))
		sent, err := c.Communicate(map[string]any{"to": "ghost"})
		require.NoError(t, err)
		assert.False(t, sent)
	})
}
