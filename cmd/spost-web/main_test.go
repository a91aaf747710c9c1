package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"SPost-Planner/internal/posts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCLI(t *testing.T, home string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", home)
	t.Setenv("SPOST_LOG_LEVEL", "error")

	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// fakeLinkedIn is the HTTP API the relay forwards bridge calls to.
func fakeLinkedIn(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/posts/publish", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-good" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"message":"Invalid access token"}`)
			return
		}
		var post struct {
			Content string `json:"content"`
		}
		_ = json.NewDecoder(r.Body).Decode(&post)
		_ = json.NewEncoder(w).Encode(map[string]any{"urn": "urn:li:share:99", "url": "https://www.linkedin.com/feed/update/urn:li:share:99"})
	})
	mux.HandleFunc("/me/connection", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"connected": r.Header.Get("Authorization") == "Bearer tok-good"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	t.Setenv("SPOST_RELAY_BASE_URL", srv.URL)
	return srv
}

func TestVersion(t *testing.T) {
	stdout, _, err := executeCLI(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", stdout)
}

func TestProbeAnswersThroughRelay(t *testing.T) {
	fakeLinkedIn(t)
	stdout, _, err := executeCLI(t, t.TempDir(), "probe", "--wait")
	require.NoError(t, err)
	assert.Contains(t, stdout, "available: true")
	assert.Contains(t, stdout, "bridge: SPost ready")
	assert.Contains(t, stdout, "connected: false")
}

func TestProbeWithoutRelay(t *testing.T) {
	t.Setenv("SPOST_RELAY_ENABLED", "false")
	t.Setenv("SPOST_BRIDGE_PROBE_TIMEOUT", "100ms")
	stdout, _, err := executeCLI(t, t.TempDir(), "probe")
	require.NoError(t, err)
	assert.Contains(t, stdout, "available: false")
	assert.Contains(t, stdout, "connected: false")
}

func TestConnectThenPublish(t *testing.T) {
	fakeLinkedIn(t)
	home := t.TempDir()

	_, _, err := executeCLI(t, home, "connect", "--token", "tok-good", "--member", "urn:li:person:me")
	require.NoError(t, err)

	stdout, _, err := executeCLI(t, home, "probe")
	require.NoError(t, err)
	assert.Contains(t, stdout, "connected: true")

	stdout, _, err = executeCLI(t, home, "publish", "--content", "Hello from the CLI")
	require.NoError(t, err)
	var d posts.Draft
	require.NoError(t, json.Unmarshal([]byte(stdout), &d))
	assert.Equal(t, posts.StatusPublished, d.Status)
	assert.Equal(t, "urn:li:share:99", d.RemoteURN)
	assert.Equal(t, "Hello from the CLI", d.Content)
}

func TestPublishSurfacesRemoteMessage(t *testing.T) {
	fakeLinkedIn(t)
	home := t.TempDir()
	_, _, err := executeCLI(t, home, "connect", "--token", "tok-revoked")
	require.NoError(t, err)

	_, _, err = executeCLI(t, home, "publish", "--content", "Nope")
	require.Error(t, err)
	assert.Equal(t, "remote: 401: Invalid access token", err.Error())
}

func TestScheduleRejectsPastTime(t *testing.T) {
	fakeLinkedIn(t)
	_, _, err := executeCLI(t, t.TempDir(), "schedule", "--content", "Too late", "2001-01-01T00:00:00Z")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be in the future")
}

func TestInvalidConfigurationFails(t *testing.T) {
	t.Setenv("SPOST_BUS_TRANSPORT", "carrier-pigeon")
	_, _, err := executeCLI(t, t.TempDir(), "probe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transport")
}

func TestPublishNeedsTarget(t *testing.T) {
	_, _, err := executeCLI(t, t.TempDir(), "publish")
	require.Error(t, err)
}
