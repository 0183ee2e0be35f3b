package combus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glimte/combus-go/contracts"
)

type pongAgent struct{}

func (pongAgent) Answer(payload map[string]any) map[string]any {
	return map[string]any{"pong": payload["msg"]}
}

func TestDispatchOne(t *testing.T) {
	t.Run("invokes the answer capability and publishes the reply", func(t *testing.T) {
		b := newBroker(t, t.TempDir())
		b.Register("codex", pongAgent{})
		b.Register("operator", struct{}{})

		_, err := b.Send("codex", map[string]any{"msg": "ping"},
			WithSender("operator"), WithTopic("ping"))
		require.NoError(t, err)

		d := NewDispatcher(b, WithReceiveTimeout(50*time.Millisecond))
		require.True(t, d.DispatchOne())
		assert.Equal(t, 0, b.InflightCount())

		reply, ok := b.Receive(10 * time.Millisecond)
		require.True(t, ok)
		assert.Equal(t, "operator", reply.Recipient)
		assert.Equal(t, contracts.TypeReply, reply.Envelope.Type)
		assert.Equal(t, "ping", reply.Envelope.Topic)
		assert.Equal(t, "codex", reply.Envelope.From)

		payload, isMap := reply.Envelope.Payload["reply"].(map[string]any)
		require.True(t, isMap)
		assert.Equal(t, "ping", payload["pong"])
	})

	t.Run("plain handles are acknowledged as delivered", func(t *testing.T) {
		b := newBroker(t, t.TempDir())
		b.Register("sink", struct{}{})

		_, err := b.Send("sink", map[string]any{"msg": "fyi"})
		require.NoError(t, err)

		d := NewDispatcher(b, WithReceiveTimeout(50*time.Millisecond))
		require.True(t, d.DispatchOne())
		assert.Equal(t, 0, b.InflightCount())
		assert.Equal(t, 0, b.PendingCount())
	})

	t.Run("reports false when nothing is available", func(t *testing.T) {
		b := newBroker(t, t.TempDir())
		d := NewDispatcher(b, WithReceiveTimeout(10*time.Millisecond))
		assert.False(t, d.DispatchOne())
	})

	t.Run("replies between responders do not trigger further answers", func(t *testing.T) {
		b := newBroker(t, t.TempDir())
		b.Register("codex", pongAgent{})
		b.Register("scribe", pongAgent{})

		_, err := b.Send("scribe", map[string]any{"msg": "done"},
			WithSender("codex"), WithType(contracts.TypeReply), WithTopic("ping"))
		require.NoError(t, err)

		d := NewDispatcher(b, WithReceiveTimeout(50*time.Millisecond))
		require.True(t, d.DispatchOne())

		// The reply is consumed as a plain delivery. Answering it would
		// produce a reply to codex and ping-pong between the two forever.
		assert.Equal(t, 0, b.PendingCount())
		assert.Equal(t, 0, b.InflightCount())
	})

	t.Run("unregistered reply target drops the reply", func(t *testing.T) {
		b := newBroker(t, t.TempDir())
		b.Register("codex", pongAgent{})

		_, err := b.Send("codex", map[string]any{"msg": "ping"}, WithSender("nobody"))
		require.NoError(t, err)

		d := NewDispatcher(b, WithReceiveTimeout(50*time.Millisecond))
		require.True(t, d.DispatchOne())
		assert.Equal(t, 0, b.PendingCount())
	})
}

func TestDispatcherRun(t *testing.T) {
	b := newBroker(t, t.TempDir())
	b.Register("codex", pongAgent{})
	b.Register("operator", struct{}{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := NewDispatcher(b, WithReceiveTimeout(20*time.Millisecond))
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	_, err := b.Send("codex", map[string]any{"msg": "ping"},
		WithSender("operator"), WithTopic("ping"))
	require.NoError(t, err)

	// The dispatcher answers codex's task and also drains the reply delivered
	// back to operator, so eventually nothing is pending or in-flight.
	require.Eventually(t, func() bool {
		return b.PendingCount() == 0 && b.InflightCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop on context cancellation")
	}
}
