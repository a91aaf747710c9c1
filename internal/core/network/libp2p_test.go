package network

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLibp2pPubSubRelaysBetweenPeers(t *testing.T) {
	if testing.Short() {
		t.Skip("starts two libp2p hosts")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := NewLibp2pPubSub(ctx, PeerOptions{})
	require.NoError(t, err)
	defer a.Close()
	b, err := NewLibp2pPubSub(ctx, PeerOptions{Bootstrap: a.ListenAddrs()})
	require.NoError(t, err)
	defer b.Close()

	require.Contains(t, b.ConnectedPeers(), a.PeerID())

	ch, unsubscribe, err := b.Subscribe("spost.page")
	require.NoError(t, err)
	defer unsubscribe()
	_, unsubscribeA, err := a.Subscribe("spost.page")
	require.NoError(t, err)
	defer unsubscribeA()

	// the mesh forms asynchronously, so keep announcing until b hears a
	deadline := time.After(10 * time.Second)
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case msg := <-ch:
			assert.Equal(t, "spost.page", msg.Topic)
			assert.JSONEq(t, `{"type":"SPOST_READY"}`, string(msg.Payload))
			return
		case <-tick.C:
			require.NoError(t, a.Publish("spost.page", []byte(`{"type":"SPOST_READY"}`)))
		case <-deadline:
			t.Fatal("peer b never received the broadcast")
		}
	}
}

func TestLibp2pPubSubRejectsUseAfterClose(t *testing.T) {
	p, err := NewLibp2pPubSub(context.Background(), PeerOptions{})
	require.NoError(t, err)
	require.NoError(t, p.Close())

	assert.ErrorIs(t, p.Publish("spost.page", []byte("{}")), ErrClosed)
	_, _, err = p.Subscribe("spost.page")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestLibp2pIdentityKeyIsStable(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "keys", "identity.key")

	first, err := NewLibp2pPubSub(context.Background(), PeerOptions{IdentityKeyFile: keyFile})
	require.NoError(t, err)
	id := first.PeerID()
	require.NoError(t, first.Close())

	second, err := NewLibp2pPubSub(context.Background(), PeerOptions{IdentityKeyFile: keyFile})
	require.NoError(t, err)
	defer second.Close()
	assert.Equal(t, id, second.PeerID())
}

func TestParseMultiaddrsRejectsGarbage(t *testing.T) {
	_, err := parseMultiaddrs([]string{"/ip4/127.0.0.1/tcp/0", "not-a-multiaddr"})
	require.Error(t, err)

	addrs, err := parseMultiaddrs([]string{"", "/ip4/127.0.0.1/tcp/4001"})
	require.NoError(t, err)
	assert.Len(t, addrs, 1)
}
