package strip

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecayTask_FadesOut(t *testing.T) {
	store := NewStore()
	store.Set(0, Color{R: 200}, 3)
	store.Set(1, Color{G: 200}, 0)
	store.Set(2, Color{B: 200}, 1000)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewDecayTask(store, 5*time.Millisecond, true).Run(ctx) }()

	assert.Eventually(t, func() bool {
		_, faded := store.Get(0)
		_, zero := store.Get(1)
		return !faded && !zero
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	st, ok := store.Get(2)
	require.True(t, ok, "long fade is still running")
	assert.Less(t, st.FadeRemaining, 1000)
}

func TestNewDecayTask_DefaultInterval(t *testing.T) {
	d := NewDecayTask(NewStore(), 0, false)
	assert.Equal(t, DefaultDecayInterval, d.interval)
}
