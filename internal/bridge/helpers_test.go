package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"

	"SPost-Planner/internal/core/network"
	"github.com/stretchr/testify/require"
)

// respond answers every envelope of type kind on the page topic with the
// envelope reply builds. A nil reply means stay silent.
func respond(t *testing.T, bus network.PubSub, kind string, reply func(Envelope) *Envelope) {
	t.Helper()
	ch, cancel, err := bus.Subscribe(PageTopic)
	require.NoError(t, err)
	t.Cleanup(cancel)
	go func() {
		for msg := range ch {
			env, err := DecodeEnvelope(msg.Payload)
			if err != nil || env.Type != kind {
				continue
			}
			out := reply(env)
			if out == nil {
				continue
			}
			b, _ := json.Marshal(out)
			_ = bus.Publish(PageTopic, b)
		}
	}()
}

func publishEnvelope(t *testing.T, bus network.PubSub, env Envelope) {
	t.Helper()
	b, err := json.Marshal(env)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(PageTopic, b))
}

// countingBus counts publishes on top of a memory bus.
type countingBus struct {
	*network.MemoryPubSub
	published atomic.Int64
}

func (b *countingBus) Publish(topic string, payload []byte) error {
	b.published.Add(1)
	return b.MemoryPubSub.Publish(topic, payload)
}

type fakeCapability struct {
	mu        sync.Mutex
	published []Post
	scheduled []Post

	publishErr   error
	connected    bool
	connectedErr error
	data         DataSnapshot
}

func (f *fakeCapability) Publish(_ context.Context, post Post) (PublishResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return PublishResult{}, f.publishErr
	}
	f.published = append(f.published, post)
	return PublishResult{URN: "urn:li:share:1"}, nil
}

func (f *fakeCapability) Schedule(_ context.Context, post Post) (ScheduleResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, post)
	return ScheduleResult{ID: "sched-1", ScheduledAt: post.ScheduledAt, Status: "scheduled"}, nil
}

func (f *fakeCapability) IsConnected(context.Context) (bool, error) {
	return f.connected, f.connectedErr
}

func (f *fakeCapability) GetData(context.Context) (DataSnapshot, error) {
	return f.data, nil
}

func (f *fakeCapability) lastScheduled() Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scheduled[len(f.scheduled)-1]
}

type staticState struct {
	connected bool
	err       error
}

func (s staticState) Connected(context.Context) (bool, error) {
	return s.connected, s.err
}

func emptyLocator() Locator {
	return LocatorFunc(func(string) (Capability, bool) { return nil, false })
}

func fixedLocator(c Capability) Locator {
	return LocatorFunc(func(name string) (Capability, bool) {
		if name != DefaultCapability {
			return nil, false
		}
		return c, true
	})
}
