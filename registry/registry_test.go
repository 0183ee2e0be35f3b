package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoAgent struct{}

func (echoAgent) Answer(payload map[string]any) map[string]any {
	return payload
}

func TestRegister(t *testing.T) {
	t.Run("stores and looks up a handle", func(t *testing.T) {
		r := New()
		handle := struct{ name string }{"codex"}
		r.Register("codex", handle)

		entry, ok := r.Lookup("codex")
		require.True(t, ok)
		assert.Equal(t, handle, entry.Handle)
	})

	t.Run("registering again overwrites the handle", func(t *testing.T) {
		r := New()
		r.Register("codex", "first")
		r.Register("codex", "second")

		entry, ok := r.Lookup("codex")
		require.True(t, ok)
		assert.Equal(t, "second", entry.Handle)
		assert.Len(t, r.Names(), 1)
	})

	t.Run("capability is decided at registration", func(t *testing.T) {
		r := New()
		r.Register("plain", struct{}{})
		r.Register("smart", echoAgent{})

		plain, _ := r.Lookup("plain")
		assert.False(t, plain.CanAnswer())

		smart, _ := r.Lookup("smart")
		require.True(t, smart.CanAnswer())
		reply := smart.Responder.Answer(map[string]any{"msg": "ping"})
		assert.Equal(t, "ping", reply["msg"])
	})
}

func TestUnregister(t *testing.T) {
	t.Run("removes an existing entry", func(t *testing.T) {
		r := New()
		r.Register("codex", struct{}{})
		r.Unregister("codex")

		_, ok := r.Lookup("codex")
		assert.False(t, ok)
	})

	t.Run("unknown name is a no-op", func(t *testing.T) {
		r := New()
		assert.NotPanics(t, func() { r.Unregister("ghost") })
	})
}

func TestNames(t *testing.T) {
	r := New()
	assert.Empty(t, r.Names())

	r.Register("a", struct{}{})
	r.Register("b", struct{}{})
	assert.ElementsMatch(t, []string{"a", "b"}, r.Names())
}
