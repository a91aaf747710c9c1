package network

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	mdns "github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"
)

const defaultListenAddr = "/ip4/127.0.0.1/tcp/0"

// PeerOptions configures a gossipsub bus. It lets the planner and the relay
// run in separate processes while still sharing one broadcast topic.
type PeerOptions struct {
	ListenAddrs     []string
	Bootstrap       []string
	Rendezvous      string
	EnableMDNS      bool
	IdentityKeyFile string
	Buffer          int
}

// Libp2pPubSub is a PubSub over libp2p gossipsub.
type Libp2pPubSub struct {
	ctx    context.Context
	cancel context.CancelFunc
	buffer int

	host host.Host
	ps   *pubsub.PubSub

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

func NewLibp2pPubSub(parent context.Context, opts PeerOptions) (*Libp2pPubSub, error) {
	listenAddrs, err := parseMultiaddrs(opts.ListenAddrs)
	if err != nil {
		return nil, err
	}
	if len(listenAddrs) == 0 {
		a, _ := ma.NewMultiaddr(defaultListenAddr)
		listenAddrs = append(listenAddrs, a)
	}

	hostOpts := []libp2p.Option{libp2p.ListenAddrs(listenAddrs...)}
	if opts.IdentityKeyFile != "" {
		key, err := loadOrCreateIdentityKey(opts.IdentityKeyFile)
		if err != nil {
			return nil, fmt.Errorf("load identity key: %w", err)
		}
		hostOpts = append(hostOpts, libp2p.Identity(key))
	}

	h, err := libp2p.New(hostOpts...)
	if err != nil {
		return nil, fmt.Errorf("create host: %w", err)
	}

	ctx, cancel := context.WithCancel(parent)
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		cancel()
		_ = h.Close()
		return nil, fmt.Errorf("create gossipsub: %w", err)
	}

	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 64
	}
	p := &Libp2pPubSub{
		ctx:    ctx,
		cancel: cancel,
		buffer: buffer,
		host:   h,
		ps:     ps,
		topics: make(map[string]*pubsub.Topic),
	}

	if opts.EnableMDNS {
		service := mdns.NewMdnsService(h, opts.Rendezvous, &mdnsNotifee{host: h})
		if err := service.Start(); err != nil {
			Logger().Warn("mdns start failed", zap.Error(err))
		}
	}
	p.connectBootstrap(opts.Bootstrap)

	return p, nil
}

func (p *Libp2pPubSub) Publish(topic string, payload []byte) error {
	if p.ctx.Err() != nil {
		return ErrClosed
	}
	t, err := p.joinTopic(topic)
	if err != nil {
		return err
	}
	return t.Publish(p.ctx, payload)
}

func (p *Libp2pPubSub) Subscribe(topic string) (<-chan Message, func(), error) {
	if p.ctx.Err() != nil {
		return nil, nil, ErrClosed
	}
	t, err := p.joinTopic(topic)
	if err != nil {
		return nil, nil, err
	}
	sub, err := t.Subscribe()
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	out := make(chan Message, p.buffer)
	subCtx, subCancel := context.WithCancel(p.ctx)
	go func() {
		defer close(out)
		for {
			msg, err := sub.Next(subCtx)
			if err != nil {
				return
			}
			select {
			case out <- Message{Topic: topic, Payload: append([]byte(nil), msg.Data...)}:
			default:
				Logger().Debug("drop gossip frame for slow subscriber", zap.String("topic", topic))
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			subCancel()
			sub.Cancel()
		})
	}
	return out, cancel, nil
}

func (p *Libp2pPubSub) Close() error {
	p.cancel()
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, t := range p.topics {
		_ = t.Close()
		delete(p.topics, name)
	}
	return p.host.Close()
}

// PeerID is the local host id.
func (p *Libp2pPubSub) PeerID() string {
	return p.host.ID().String()
}

// ListenAddrs returns dialable addresses including the /p2p/ suffix, suitable
// for another process's bootstrap list.
func (p *Libp2pPubSub) ListenAddrs() []string {
	out := make([]string, 0, len(p.host.Addrs()))
	for _, addr := range p.host.Addrs() {
		out = append(out, fmt.Sprintf("%s/p2p/%s", addr.String(), p.host.ID().String()))
	}
	return out
}

// ConnectedPeers lists the ids of currently connected peers.
func (p *Libp2pPubSub) ConnectedPeers() []string {
	peers := p.host.Network().Peers()
	out := make([]string, 0, len(peers))
	for _, pid := range peers {
		out = append(out, pid.String())
	}
	return out
}

func (p *Libp2pPubSub) connectBootstrap(raw []string) {
	for _, s := range raw {
		if s == "" {
			continue
		}
		addr, err := ma.NewMultiaddr(s)
		if err != nil {
			Logger().Warn("skip bootstrap addr", zap.String("addr", s), zap.Error(err))
			continue
		}
		info, err := peer.AddrInfoFromP2pAddr(addr)
		if err != nil {
			Logger().Warn("skip bootstrap addr", zap.String("addr", s), zap.Error(err))
			continue
		}
		if err := p.host.Connect(p.ctx, *info); err != nil {
			Logger().Warn("bootstrap connect failed", zap.String("peer", info.ID.String()), zap.Error(err))
			continue
		}
		Logger().Info("connected bootstrap peer", zap.String("peer", info.ID.String()))
	}
}

func (p *Libp2pPubSub) joinTopic(name string) (*pubsub.Topic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.topics[name]; ok {
		return t, nil
	}
	t, err := p.ps.Join(name)
	if err != nil {
		return nil, fmt.Errorf("join topic %s: %w", name, err)
	}
	p.topics[name] = t
	return t, nil
}

func parseMultiaddrs(raw []string) ([]ma.Multiaddr, error) {
	out := make([]ma.Multiaddr, 0, len(raw))
	for _, s := range raw {
		if s == "" {
			continue
		}
		a, err := ma.NewMultiaddr(s)
		if err != nil {
			return nil, fmt.Errorf("invalid listen multiaddr %q: %w", s, err)
		}
		out = append(out, a)
	}
	return out, nil
}

type mdnsNotifee struct {
	host host.Host
}

func (n *mdnsNotifee) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == n.host.ID() {
		return
	}
	if err := n.host.Connect(context.Background(), info); err != nil {
		Logger().Debug("mdns connect failed", zap.String("peer", info.ID.String()), zap.Error(err))
	}
}

func loadOrCreateIdentityKey(path string) (crypto.PrivKey, error) {
	if b, err := os.ReadFile(path); err == nil && len(b) > 0 {
		key, err := crypto.UnmarshalPrivateKey(b)
		if err != nil {
			return nil, fmt.Errorf("unmarshal private key: %w", err)
		}
		return key, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("mkdir key dir: %w", err)
	}
	key, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	raw, err := crypto.MarshalPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return nil, fmt.Errorf("write private key: %w", err)
	}
	return key, nil
}
