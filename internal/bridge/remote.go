package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Endpoints the relay exposes for RemoteCapability.
const (
	EndpointPublish    = "/posts/publish"
	EndpointSchedule   = "/posts/schedule"
	EndpointConnection = "/me/connection"
	EndpointData       = "/me/data"
)

// TokenSource supplies the access token attached to remote calls.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// RemoteCapability is a Capability whose operations are REMOTE_API_CALLs on
// the page bus. The relay injects it once it starts answering.
type RemoteCapability struct {
	client *Client
	tokens TokenSource
}

var _ Capability = (*RemoteCapability)(nil)

func NewRemoteCapability(client *Client, tokens TokenSource) *RemoteCapability {
	return &RemoteCapability{client: client, tokens: tokens}
}

func (r *RemoteCapability) Publish(ctx context.Context, post Post) (PublishResult, error) {
	var out PublishResult
	err := r.do(ctx, http.MethodPost, EndpointPublish, post, &out)
	return out, err
}

func (r *RemoteCapability) Schedule(ctx context.Context, post Post) (ScheduleResult, error) {
	var out ScheduleResult
	err := r.do(ctx, http.MethodPost, EndpointSchedule, post, &out)
	return out, err
}

func (r *RemoteCapability) IsConnected(ctx context.Context) (bool, error) {
	var out struct {
		Connected bool `json:"connected"`
	}
	if err := r.do(ctx, http.MethodGet, EndpointConnection, nil, &out); err != nil {
		return false, err
	}
	return out.Connected, nil
}

func (r *RemoteCapability) GetData(ctx context.Context) (DataSnapshot, error) {
	var out DataSnapshot
	err := r.do(ctx, http.MethodGet, EndpointData, nil, &out)
	return out, err
}

func (r *RemoteCapability) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var token string
	if r.tokens != nil {
		t, err := r.tokens.AccessToken(ctx)
		if err != nil {
			return fmt.Errorf("access token: %w", err)
		}
		token = t
	}
	raw, err := r.client.Call(ctx, Request{Endpoint: endpoint, Method: method, Body: body, Token: token})
	if err != nil {
		return err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}
