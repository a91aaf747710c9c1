package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"SPost-Planner/internal/core/network"
	"go.uber.org/zap"
)

const (
	DefaultProbeTimeout  = 2 * time.Second
	DefaultBurstAttempts = 5
	DefaultBurstDelay    = 50 * time.Millisecond
	DefaultPollInterval  = 100 * time.Millisecond
	DefaultWaitTimeout   = 10 * time.Second
)

type ProberConfig struct {
	Topic         string
	ProbeTimeout  time.Duration
	BurstAttempts int
	BurstDelay    time.Duration
	PollInterval  time.Duration
}

func (c ProberConfig) withDefaults() ProberConfig {
	if c.Topic == "" {
		c.Topic = PageTopic
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.BurstAttempts <= 0 {
		c.BurstAttempts = DefaultBurstAttempts
	}
	if c.BurstDelay <= 0 {
		c.BurstDelay = DefaultBurstDelay
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	return c
}

// Prober answers whether the bridge is usable and waits, bounded, until it is.
type Prober struct {
	bus     network.PubSub
	locator Locator
	cfg     ProberConfig
	newID   func() string
}

func NewProber(bus network.PubSub, locator Locator, cfg ProberConfig) *Prober {
	return &Prober{bus: bus, locator: locator, cfg: cfg.withDefaults(), newID: NewRequestID}
}

// CheckAvailable posts one probe and reports the responder's answer. Any
// failure, including silence, reads as false.
func (p *Prober) CheckAvailable(ctx context.Context) bool {
	probe := Envelope{Type: TypeCheck, RequestID: p.newID(), At: time.Now().UTC()}
	reply, err := exchange(ctx, p.bus, p.cfg.Topic, probe, TypeCheckResult, p.cfg.ProbeTimeout, "availability probe")
	if err != nil {
		Logger().Debug("bridge probe unanswered", zap.String("request_id", probe.RequestID), zap.Error(err))
		return false
	}
	return reply.Available != nil && *reply.Available
}

// WaitForBridge returns the capability registered under name, waiting up to
// timeout for it to be injected. It first polls in a short burst, then races
// the ready broadcast against a slower poll. On every return path the
// subscription, ticker and goroutines it started are gone.
func (p *Prober) WaitForBridge(ctx context.Context, name string, timeout time.Duration) (Capability, error) {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if c, err := p.burst(wctx, name); c != nil || err != nil {
		return c, p.waitError(ctx, err, name, timeout)
	}

	c, err := race(wctx, p.awaitReady(name), p.poll(name))
	if err != nil {
		return nil, p.waitError(ctx, err, name, timeout)
	}
	return c, nil
}

func (p *Prober) burst(ctx context.Context, name string) (Capability, error) {
	timer := time.NewTimer(p.cfg.BurstDelay)
	defer timer.Stop()
	for i := 0; i < p.cfg.BurstAttempts; i++ {
		if c, ok := p.locator.Locate(name); ok {
			return c, nil
		}
		if i == p.cfg.BurstAttempts-1 {
			break
		}
		timer.Reset(p.cfg.BurstDelay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, nil
}

func (p *Prober) awaitReady(name string) source[Capability] {
	return func(ctx context.Context) (Capability, error) {
		// Any ready broadcast is a cue to look again; the locator may resolve
		// name through an alias the broadcast named.
		sub, err := listen(p.bus, p.cfg.Topic, func(env Envelope) bool {
			return env.Type == TypeReady
		})
		if err != nil {
			// The poller still covers this case.
			Logger().Warn("ready subscription failed", zap.Error(err))
			<-ctx.Done()
			return nil, ctx.Err()
		}
		defer sub.Close()

		// The broadcast may have fired between the burst and the subscription.
		if c, ok := p.locator.Locate(name); ok {
			return c, nil
		}
		for {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case _, ok := <-sub.C:
				if !ok {
					<-ctx.Done()
					return nil, ctx.Err()
				}
				if c, ok := p.locator.Locate(name); ok {
					return c, nil
				}
			}
		}
	}
}

func (p *Prober) poll(name string) source[Capability] {
	return func(ctx context.Context) (Capability, error) {
		ticker := time.NewTicker(p.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-ticker.C:
				if c, ok := p.locator.Locate(name); ok {
					return c, nil
				}
			}
		}
	}
}

// waitError keeps caller cancellation distinct from the wait's own deadline.
func (p *Prober) waitError(parent context.Context, err error, name string, timeout time.Duration) error {
	if err == nil {
		return nil
	}
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return timeoutError(fmt.Sprintf("wait for %s", name), timeout)
	}
	return err
}

// exchange publishes out and waits for the envelope of type reply carrying
// the same request id. The listener is in place before out is published.
func exchange(ctx context.Context, bus network.PubSub, topic string, out Envelope, reply string, timeout time.Duration, op string) (Envelope, error) {
	sub, err := listen(bus, topic, func(env Envelope) bool {
		return env.Type == reply && env.RequestID == out.RequestID
	})
	if err != nil {
		return Envelope{}, fmt.Errorf("%s: subscribe: %w", op, err)
	}
	defer sub.Close()

	payload, err := json.Marshal(out)
	if err != nil {
		return Envelope{}, fmt.Errorf("%s: encode: %w", op, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	if err := bus.Publish(topic, payload); err != nil {
		return Envelope{}, fmt.Errorf("%s: publish: %w", op, err)
	}

	select {
	case env, ok := <-sub.C:
		if !ok {
			return Envelope{}, fmt.Errorf("%s: %w", op, ErrBusClosed)
		}
		return env, nil
	case <-timer.C:
		return Envelope{}, timeoutError(op, timeout)
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}
