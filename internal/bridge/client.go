package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"SPost-Planner/internal/core/network"
	"go.uber.org/zap"
)

const DefaultCallTimeout = 30 * time.Second

// ConnectionState is the locally cached view of the account connection,
// consulted when the bridge cannot answer for itself.
type ConnectionState interface {
	Connected(ctx context.Context) (bool, error)
}

type Config struct {
	Capability  string
	CallTimeout time.Duration
	WaitTimeout time.Duration
	Prober      ProberConfig
}

func (c Config) withDefaults() Config {
	if c.Capability == "" {
		c.Capability = DefaultCapability
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = DefaultWaitTimeout
	}
	c.Prober = c.Prober.withDefaults()
	return c
}

// Request describes one REMOTE_API_CALL. Body is JSON-encoded unless it is
// already a json.RawMessage. A zero Timeout uses the client default.
type Request struct {
	Endpoint string
	Method   string
	Body     any
	Token    string
	Headers  map[string]string
	Timeout  time.Duration
}

// Client turns local calls into tagged envelopes on the page bus and resolves
// them from the correlated replies.
type Client struct {
	bus     network.PubSub
	locator Locator
	prober  *Prober
	state   ConnectionState
	cfg     Config
	now     func() time.Time
	newID   func() string
}

func NewClient(bus network.PubSub, locator Locator, state ConnectionState, cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		bus:     bus,
		locator: locator,
		prober:  NewProber(bus, locator, cfg.Prober),
		state:   state,
		cfg:     cfg,
		now:     time.Now,
		newID:   NewRequestID,
	}
}

func (c *Client) Prober() *Prober {
	return c.prober
}

// CheckAvailable is Prober.CheckAvailable.
func (c *Client) CheckAvailable(ctx context.Context) bool {
	return c.prober.CheckAvailable(ctx)
}

// Call posts a REMOTE_API_CALL and waits for the correlated reply. A reply
// carrying an error yields a *RemoteError with that exact message; silence
// yields an error wrapping ErrTimeout.
func (c *Client) Call(ctx context.Context, req Request) (json.RawMessage, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.cfg.CallTimeout
	}
	out := Envelope{
		Type:      TypeCall,
		RequestID: c.newID(),
		Endpoint:  req.Endpoint,
		Method:    req.Method,
		Token:     req.Token,
		Headers:   req.Headers,
		At:        c.now().UTC(),
	}
	if req.Body != nil {
		body, err := encodeBody(req.Body)
		if err != nil {
			return nil, err
		}
		out.Body = body
	}

	op := fmt.Sprintf("%s %s", req.Method, req.Endpoint)
	reply, err := exchange(ctx, c.bus, c.cfg.Prober.Topic, out, TypeCallResult, timeout, op)
	if err != nil {
		Logger().Debug("remote call failed",
			zap.String("request_id", out.RequestID),
			zap.String("endpoint", req.Endpoint),
			zap.Error(err))
		return nil, err
	}
	if reply.Error != nil {
		return nil, &RemoteError{Message: *reply.Error}
	}
	return reply.Response, nil
}

// PublishNow publishes post through the bridge, waiting for it if it is not
// injected yet. Errors from the bridge's own publish come back unchanged.
func (c *Client) PublishNow(ctx context.Context, post Post) (PublishResult, error) {
	capability, err := c.capability(ctx)
	if err != nil {
		return PublishResult{}, err
	}
	return capability.Publish(ctx, post)
}

// SchedulePost validates when before anything touches the bus, normalises
// it to WireTimeLayout and hands the post to the bridge.
func (c *Client) SchedulePost(ctx context.Context, post Post, when any) (ScheduleResult, error) {
	at, err := NormalizeScheduleTime(when, c.now())
	if err != nil {
		return ScheduleResult{}, err
	}
	post.ScheduledAt = at

	capability, err := c.capability(ctx)
	if err != nil {
		return ScheduleResult{}, err
	}
	return capability.Schedule(ctx, post)
}

// FetchData runs the bridge's bulk data fetch.
func (c *Client) FetchData(ctx context.Context) (DataSnapshot, error) {
	capability, err := c.capability(ctx)
	if err != nil {
		return DataSnapshot{}, err
	}
	return capability.GetData(ctx)
}

// IsConnected asks the bridge when it is present and otherwise, or when the
// bridge fails to answer, falls back to the cached connection state.
func (c *Client) IsConnected(ctx context.Context) bool {
	if capability, ok := c.locator.Locate(c.cfg.Capability); ok {
		connected, err := capability.IsConnected(ctx)
		if err == nil {
			return connected
		}
		Logger().Debug("bridge connectivity check failed, using cached state", zap.Error(err))
	}
	if c.state == nil {
		return false
	}
	connected, err := c.state.Connected(ctx)
	if err != nil {
		Logger().Debug("cached connection state unreadable", zap.Error(err))
		return false
	}
	return connected
}

func (c *Client) capability(ctx context.Context) (Capability, error) {
	if capability, ok := c.locator.Locate(c.cfg.Capability); ok {
		return capability, nil
	}
	return c.prober.WaitForBridge(ctx, c.cfg.Capability, c.cfg.WaitTimeout)
}

func encodeBody(body any) (json.RawMessage, error) {
	if raw, ok := body.(json.RawMessage); ok {
		if !json.Valid(raw) {
			return nil, &ValidationError{Field: "body", Reason: "invalid JSON"}
		}
		return raw, nil
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, &ValidationError{Field: "body", Reason: err.Error()}
	}
	return b, nil
}
