package funnel

import (
	"context"
	"testing"
	"time"

	"github.com/mbolis/quick-funnel/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryPutGet(t *testing.T) {
	reg := NewRegistry()
	eng := New("f1", nil, "", nil, newFakeStore(), newFakeClock())

	reg.Put(eng)

	got, ok := reg.Get(eng.ConversationID())
	require.True(t, ok)
	assert.Same(t, eng, got)

	_, ok = reg.Get("nope")
	assert.False(t, ok)
}

func TestRegistryEvict(t *testing.T) {
	reg := NewRegistry()
	clock := newFakeClock()

	stale := New("f1", nil, "", nil, newFakeStore(), clock)
	reg.Put(stale)

	// later activity on a second engine
	clock.mu.Lock()
	clock.now = clock.now.Add(2 * time.Hour)
	clock.mu.Unlock()
	live := New("f1", []model.Block{questionBlock("b1", "Nome?")}, "", nil, newFakeStore(), clock)
	require.NoError(t, live.Start(context.Background()))
	reg.Put(live)

	cutoff := clock.Now().Add(-time.Hour)
	assert.Equal(t, 1, reg.Evict(cutoff))

	_, ok := reg.Get(stale.ConversationID())
	assert.False(t, ok)
	_, ok = reg.Get(live.ConversationID())
	assert.True(t, ok)
}
