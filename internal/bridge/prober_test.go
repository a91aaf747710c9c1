package bridge

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"SPost-Planner/internal/core/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAvailableReportsResponderAnswer(t *testing.T) {
	t.Parallel()
	for _, available := range []bool{true, false} {
		bus := network.NewMemoryPubSub()
		respond(t, bus, TypeCheck, func(env Envelope) *Envelope {
			out := CheckResponse(env.RequestID, available)
			return &out
		})
		p := NewProber(bus, emptyLocator(), ProberConfig{ProbeTimeout: time.Second})
		assert.Equal(t, available, p.CheckAvailable(context.Background()))
	}
}

func TestCheckAvailableWithoutResponderIsFalseAfterProbeTimeout(t *testing.T) {
	t.Parallel()
	bus := network.NewMemoryPubSub()
	p := NewProber(bus, emptyLocator(), ProberConfig{})

	start := time.Now()
	available := p.CheckAvailable(context.Background())
	elapsed := time.Since(start)

	assert.False(t, available)
	assert.GreaterOrEqual(t, elapsed, DefaultProbeTimeout)
	assert.Less(t, elapsed, DefaultProbeTimeout+time.Second)
	assert.Equal(t, 0, bus.Subscribers(PageTopic))
}

func TestCheckAvailableIgnoresProbeRepliesForOthers(t *testing.T) {
	t.Parallel()
	bus := network.NewMemoryPubSub()
	respond(t, bus, TypeCheck, func(Envelope) *Envelope {
		out := CheckResponse("req_1_someoneelse", true)
		return &out
	})
	p := NewProber(bus, emptyLocator(), ProberConfig{ProbeTimeout: 200 * time.Millisecond})
	assert.False(t, p.CheckAvailable(context.Background()))
}

func TestWaitForBridgeReturnsPresentCapabilityImmediately(t *testing.T) {
	t.Parallel()
	bus := network.NewMemoryPubSub()
	capability := &fakeCapability{}
	p := NewProber(bus, fixedLocator(capability), ProberConfig{})

	start := time.Now()
	got, err := p.WaitForBridge(context.Background(), DefaultCapability, time.Second)
	require.NoError(t, err)
	assert.Same(t, capability, got)
	assert.Less(t, time.Since(start), DefaultBurstAttempts*DefaultBurstDelay)
	assert.Equal(t, 0, bus.Subscribers(PageTopic))
}

func TestWaitForBridgeFindsCapabilityDuringBurst(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	capability := &fakeCapability{}
	locator := LocatorFunc(func(string) (Capability, bool) {
		if calls.Add(1) < 3 {
			return nil, false
		}
		return capability, true
	})
	p := NewProber(network.NewMemoryPubSub(), locator, ProberConfig{})

	got, err := p.WaitForBridge(context.Background(), DefaultCapability, time.Second)
	require.NoError(t, err)
	assert.Same(t, capability, got)
	assert.EqualValues(t, 3, calls.Load())
}

func TestWaitForBridgeResolvesOnReadyBroadcast(t *testing.T) {
	t.Parallel()
	bus := network.NewMemoryPubSub()
	registry := NewRegistry(bus, PageTopic)
	// A poll interval this long leaves the ready broadcast as the only way in.
	p := NewProber(bus, registry, ProberConfig{PollInterval: time.Hour})

	capability := &fakeCapability{}
	go func() {
		time.Sleep(400 * time.Millisecond)
		_ = registry.Inject(DefaultCapability, capability)
	}()

	start := time.Now()
	got, err := p.WaitForBridge(context.Background(), DefaultCapability, 5*time.Second)
	require.NoError(t, err)
	assert.Same(t, capability, got)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 0, bus.Subscribers(PageTopic))
}

func TestWaitForBridgeIgnoresReadyForOtherCapabilities(t *testing.T) {
	t.Parallel()
	bus := network.NewMemoryPubSub()
	registry := NewRegistry(bus, PageTopic)
	p := NewProber(bus, registry, ProberConfig{PollInterval: time.Hour})

	go func() {
		time.Sleep(300 * time.Millisecond)
		_ = registry.Inject("NotionBridge", &fakeCapability{})
	}()

	_, err := p.WaitForBridge(context.Background(), DefaultCapability, 800*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
}

func TestWaitForBridgeWakesOnReadyForAlias(t *testing.T) {
	t.Parallel()
	bus := network.NewMemoryPubSub()
	registry := NewRegistry(bus, PageTopic)
	p := NewProber(bus, WithAliases(registry, "LinkedInPlanner"), ProberConfig{PollInterval: time.Hour})

	legacy := &fakeCapability{}
	go func() {
		time.Sleep(300 * time.Millisecond)
		_ = registry.Inject("LinkedInPlanner", legacy)
	}()

	start := time.Now()
	got, err := p.WaitForBridge(context.Background(), DefaultCapability, 3*time.Second)
	require.NoError(t, err)
	assert.Same(t, legacy, got)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWaitForBridgeResolvesByPollingWithoutBroadcast(t *testing.T) {
	t.Parallel()
	bus := network.NewMemoryPubSub()
	capability := &fakeCapability{}
	appearAt := time.Now().Add(400 * time.Millisecond)
	locator := LocatorFunc(func(string) (Capability, bool) {
		if time.Now().Before(appearAt) {
			return nil, false
		}
		return capability, true
	})
	p := NewProber(bus, locator, ProberConfig{PollInterval: 20 * time.Millisecond})

	got, err := p.WaitForBridge(context.Background(), DefaultCapability, 5*time.Second)
	require.NoError(t, err)
	assert.Same(t, capability, got)
	assert.Equal(t, 0, bus.Subscribers(PageTopic))
}

func TestWaitForBridgeTimesOutAndReleasesEverything(t *testing.T) {
	t.Parallel()
	bus := network.NewMemoryPubSub()
	p := NewProber(bus, emptyLocator(), ProberConfig{})

	const timeout = 600 * time.Millisecond
	start := time.Now()
	_, err := p.WaitForBridge(context.Background(), DefaultCapability, timeout)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+500*time.Millisecond)
	assert.Equal(t, 0, bus.Subscribers(PageTopic))
}

func TestWaitForBridgeReportsCallerCancellation(t *testing.T) {
	t.Parallel()
	bus := network.NewMemoryPubSub()
	p := NewProber(bus, emptyLocator(), ProberConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(300 * time.Millisecond)
		cancel()
	}()

	_, err := p.WaitForBridge(ctx, DefaultCapability, 5*time.Second)
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 0, bus.Subscribers(PageTopic))
}
