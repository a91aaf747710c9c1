package bridge

import (
	"sync"

	"SPost-Planner/internal/core/network"
)

// subscription is a filtered, scoped view of one bus topic. Close must be
// called exactly once per acquisition; extra calls are no-ops.
type subscription struct {
	C     <-chan Envelope
	once  sync.Once
	done  chan struct{}
	leave func()
}

// listen subscribes to topic and forwards the envelopes keep accepts.
// Frames that do not decode, or that keep rejects, are dropped silently:
// the topic is shared with unrelated senders.
func listen(bus network.PubSub, topic string, keep func(Envelope) bool) (*subscription, error) {
	raw, leave, err := bus.Subscribe(topic)
	if err != nil {
		return nil, err
	}
	out := make(chan Envelope, 1)
	s := &subscription{C: out, done: make(chan struct{}), leave: leave}
	go func() {
		defer close(out)
		for msg := range raw {
			env, err := DecodeEnvelope(msg.Payload)
			if err != nil || !keep(env) {
				continue
			}
			select {
			case out <- env:
			case <-s.done:
				return
			}
		}
	}()
	return s, nil
}

func (s *subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.leave()
	})
}
