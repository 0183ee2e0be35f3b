package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glimte/combus-go/contracts"
)

func envelope(topic string) *contracts.Envelope {
	return contracts.NewEnvelope("codex", "operator", contracts.TypeTask, topic, nil, nil)
}

func TestPendingQueue(t *testing.T) {
	now := time.Now().Unix()

	t.Run("FIFO for immediately available envelopes", func(t *testing.T) {
		q := New()
		a := envelope("a")
		b := envelope("b")
		q.Enqueue(a)
		q.Enqueue(b)

		assert.Equal(t, a, q.PopAvailable(now))
		assert.Equal(t, b, q.PopAvailable(now))
		assert.Nil(t, q.PopAvailable(now))
	})

	t.Run("future envelopes are skipped in place", func(t *testing.T) {
		q := New()
		future := envelope("future")
		future.SetAvailableAt(now + 60)
		ready := envelope("ready")
		q.Enqueue(future)
		q.Enqueue(ready)

		got := q.PopAvailable(now)
		require.NotNil(t, got)
		assert.Equal(t, "ready", got.Topic)

		// The skipped envelope keeps its position.
		require.Equal(t, 1, q.Len())
		assert.Equal(t, "future", q.Items()[0].Topic)
		assert.Nil(t, q.PopAvailable(now))
	})

	t.Run("future envelopes keep relative order among themselves", func(t *testing.T) {
		q := New()
		first := envelope("first")
		first.SetAvailableAt(now + 10)
		second := envelope("second")
		second.SetAvailableAt(now + 10)
		q.Enqueue(first)
		q.Enqueue(second)

		assert.Nil(t, q.PopAvailable(now))
		assert.Equal(t, first, q.PopAvailable(now+11))
		assert.Equal(t, second, q.PopAvailable(now+11))
	})

	t.Run("envelope becomes available once its time passes", func(t *testing.T) {
		q := New()
		env := envelope("later")
		env.SetAvailableAt(now + 5)
		q.Enqueue(env)

		assert.Nil(t, q.PopAvailable(now))
		assert.Equal(t, env, q.PopAvailable(now+5))
	})
}
