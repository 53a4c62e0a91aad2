package app

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNextDelay(t *testing.T) {
	assert.Equal(t, 40*time.Second, nextDelay(time.Minute, 20*time.Second))
	assert.Equal(t, time.Duration(0), nextDelay(time.Minute, time.Minute))
	assert.Equal(t, time.Duration(0), nextDelay(time.Minute, 3*time.Minute))
}

func TestRun_OneCycleAtATimeUntilCancelled(t *testing.T) {
	f := newFixture(t)
	f.opt.CheckOnly = true
	clock := clockwork.NewFakeClock()
	keeper := NewKeeper(f.opt, f.ledger, f.aggregator, nil, clock, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- keeper.Run(ctx) }()

	// the first cycle runs right away, then the keeper sleeps on the clock
	clock.BlockUntil(1)
	assert.Equal(t, uint64(1), keeper.Cycles())

	clock.Advance(30 * time.Second)
	assert.Equal(t, uint64(1), keeper.Cycles())

	clock.Advance(30 * time.Second)
	clock.BlockUntil(1)
	assert.Equal(t, uint64(2), keeper.Cycles())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("keeper did not stop")
	}
	assert.Equal(t, uint64(2), keeper.Cycles())
}
