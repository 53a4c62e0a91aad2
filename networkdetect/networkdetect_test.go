package networkdetect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHost(t *testing.T) {
	host, err := Host("https://api.mainnet-beta.solana.com")
	require.NoError(t, err)
	assert.Equal(t, "api.mainnet-beta.solana.com", host)
	host, err = Host("http://127.0.0.1:8899")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", host)
	_, err = Host("127.0.0.1")
	assert.Error(t, err)
}

func TestFastest(t *testing.T) {
	rtts := map[string]time.Duration{
		"a.example": 40 * time.Millisecond,
		"b.example": 12 * time.Millisecond,
	}
	probe := func(ctx context.Context, host string) (time.Duration, error) {
		if rtt, ok := rtts[host]; ok {
			return rtt, nil
		}
		return 0, errors.New("unreachable")
	}
	d := NewDetectorWithProbe(probe, zap.NewNop())
	best, rtt, err := d.Fastest(context.Background(), []string{"https://a.example", "http://b.example:8899", "https://c.example", "::bad"})
	require.NoError(t, err)
	assert.Equal(t, "http://b.example:8899", best)
	assert.Equal(t, 12*time.Millisecond, rtt)

	_, _, err = d.Fastest(context.Background(), []string{"https://c.example"})
	assert.ErrorIs(t, err, ErrNoReachableNode)
}
