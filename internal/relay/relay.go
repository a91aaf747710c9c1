// Package relay is the extension side of the page bus. It answers
// availability probes and executes REMOTE_API_CALL envelopes as HTTP
// requests against the configured API, replying on the same topic.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"SPost-Planner/internal/bridge"
	"SPost-Planner/internal/core/network"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxResponseBytes = 4 << 20

type Config struct {
	Topic   string
	BaseURL string
	// Rate caps outbound requests per second; zero means unlimited.
	Rate       float64
	Burst      int
	HTTPClient *http.Client
	Logger     *zap.Logger
}

type Relay struct {
	bus     network.PubSub
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.Logger

	wg sync.WaitGroup
}

func New(bus network.PubSub, cfg Config) *Relay {
	if cfg.Topic == "" {
		cfg.Topic = bridge.PageTopic
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	log := cfg.Logger
	if log == nil {
		log = bridge.Logger().Named("relay")
	}
	return &Relay{
		bus:     bus,
		cfg:     cfg,
		http:    client,
		limiter: rate.NewLimiter(limit, burst),
		log:     log,
	}
}

// Start subscribes to the page topic and serves it until ctx is done. It
// returns as soon as the subscription is live, so the caller can announce
// the capability right after.
func (r *Relay) Start(ctx context.Context) error {
	ch, cancel, err := r.bus.Subscribe(r.cfg.Topic)
	if err != nil {
		return fmt.Errorf("relay subscribe: %w", err)
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				r.dispatch(ctx, msg.Payload)
			}
		}
	}()
	return nil
}

// Wait blocks until the serve loop and every in-flight call have finished.
func (r *Relay) Wait() {
	r.wg.Wait()
}

func (r *Relay) dispatch(ctx context.Context, payload []byte) {
	env, err := bridge.DecodeEnvelope(payload)
	if err != nil {
		return
	}
	switch env.Type {
	case bridge.TypeCheck:
		r.reply(bridge.CheckResponse(env.RequestID, true))
	case bridge.TypeCall:
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.reply(r.handleCall(ctx, env))
		}()
	}
}

func (r *Relay) reply(env bridge.Envelope) {
	b, err := json.Marshal(env)
	if err != nil {
		r.log.Error("encode reply", zap.String("request_id", env.RequestID), zap.Error(err))
		return
	}
	if err := r.bus.Publish(r.cfg.Topic, b); err != nil {
		r.log.Warn("publish reply", zap.String("request_id", env.RequestID), zap.Error(err))
	}
}

func (r *Relay) handleCall(ctx context.Context, env bridge.Envelope) bridge.Envelope {
	if err := r.limiter.Wait(ctx); err != nil {
		return bridge.CallFailure(env.RequestID, err.Error())
	}
	url, err := r.resolve(env.Endpoint)
	if err != nil {
		return bridge.CallFailure(env.RequestID, err.Error())
	}
	method := strings.ToUpper(env.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(env.Body) > 0 {
		body = bytes.NewReader(env.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return bridge.CallFailure(env.RequestID, err.Error())
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if env.Token != "" {
		req.Header.Set("Authorization", "Bearer "+env.Token)
	}
	for k, v := range env.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := r.http.Do(req)
	if err != nil {
		r.log.Warn("remote call failed", zap.String("endpoint", env.Endpoint), zap.Error(err))
		return bridge.CallFailure(env.RequestID, err.Error())
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return bridge.CallFailure(env.RequestID, fmt.Sprintf("read response: %v", err))
	}
	r.log.Debug("remote call",
		zap.String("request_id", env.RequestID),
		zap.String("method", method),
		zap.String("endpoint", env.Endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	if resp.StatusCode >= http.StatusMultipleChoices {
		return bridge.CallFailure(env.RequestID, fmt.Sprintf("%d: %s", resp.StatusCode, failureMessage(resp.StatusCode, data)))
	}
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0:
		return bridge.CallResponse(env.RequestID, nil)
	case json.Valid(data):
		return bridge.CallResponse(env.RequestID, data)
	default:
		text, _ := json.Marshal(string(data))
		return bridge.CallResponse(env.RequestID, text)
	}
}

// resolve joins endpoint onto the base URL. Absolute URLs are only accepted
// when they already point under the base URL.
func (r *Relay) resolve(endpoint string) (string, error) {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		if r.cfg.BaseURL == "" || !strings.HasPrefix(endpoint, r.cfg.BaseURL+"/") {
			return "", fmt.Errorf("endpoint %q not allowed", endpoint)
		}
		return endpoint, nil
	}
	if r.cfg.BaseURL == "" {
		return "", fmt.Errorf("relay has no base url for endpoint %q", endpoint)
	}
	return r.cfg.BaseURL + "/" + strings.TrimLeft(endpoint, "/"), nil
}

func failureMessage(status int, body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if s, ok := payload.Error.(string); ok && s != "" {
			return s
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return http.StatusText(status)
}
