package bridge

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRaceReturnsFirstSuccessAndJoinsLosers(t *testing.T) {
	t.Parallel()
	var stopped atomic.Int64
	slow := func(ctx context.Context) (string, error) {
		<-ctx.Done()
		stopped.Add(1)
		return "", ctx.Err()
	}
	fast := func(ctx context.Context) (string, error) {
		time.Sleep(10 * time.Millisecond)
		return "fast", nil
	}

	got, err := race(context.Background(), slow, fast, slow)
	require.NoError(t, err)
	assert.Equal(t, "fast", got)
	assert.EqualValues(t, 2, stopped.Load(), "losers must have returned before race does")
}

func TestRaceSurfacesDeadline(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	block := func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}

	_, err := race(ctx, block, block)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRaceFailingSourceCancelsTheRest(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	fail := func(context.Context) (int, error) { return 0, boom }
	block := func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}

	_, err := race(context.Background(), block, fail)
	assert.ErrorIs(t, err, boom)
}
