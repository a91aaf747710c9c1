package main

import (
	"context"
	"fmt"

	"SPost-Planner/internal/bridge"
	"SPost-Planner/internal/config"
	"SPost-Planner/internal/core/network"
	"SPost-Planner/internal/planner"
	"SPost-Planner/internal/posts"
	"SPost-Planner/internal/relay"
	"go.uber.org/zap"
)

type closablePubSub interface {
	network.PubSub
	Close() error
}

// app is one wired process: bus, store, bridge client, optional relay and
// the planner on top.
type app struct {
	cfg      config.Config
	log      *zap.Logger
	bus      closablePubSub
	store    *posts.Store
	registry *bridge.Registry
	client   *bridge.Client
	relay    *relay.Relay
	planner  *planner.Manager
}

func wireApp(ctx context.Context, cfg config.Config, log *zap.Logger) (*app, error) {
	bus, err := newBus(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store, err := posts.NewStore(cfg.Store.Path)
	if err != nil {
		_ = bus.Close()
		return nil, fmt.Errorf("wire post store: %w", err)
	}

	registry := bridge.NewRegistry(bus, cfg.Bus.Topic)
	client := bridge.NewClient(bus, bridge.WithAliases(registry, cfg.Bridge.Aliases...), store, cfg.ClientConfig())
	a := &app{
		cfg:      cfg,
		log:      log,
		bus:      bus,
		store:    store,
		registry: registry,
		client:   client,
		planner:  planner.NewManager(bus, store, client),
	}

	if cfg.Relay.Enabled {
		a.relay = relay.New(bus, relay.Config{
			Topic:   cfg.Bus.Topic,
			BaseURL: cfg.Relay.BaseURL,
			Rate:    cfg.Relay.Rate,
			Burst:   cfg.Relay.Burst,
			Logger:  log.Named("relay"),
		})
		if err := a.relay.Start(ctx); err != nil {
			_ = bus.Close()
			return nil, err
		}
		if err := registry.Inject(cfg.Bridge.Capability, bridge.NewRemoteCapability(client, store)); err != nil {
			_ = bus.Close()
			return nil, err
		}
		return a, nil
	}

	// The relay runs elsewhere on the bus; mirror whatever it announces.
	names := append([]string{cfg.Bridge.Capability}, cfg.Bridge.Aliases...)
	err = registry.Follow(ctx, names, func(string) bridge.Capability {
		return bridge.NewRemoteCapability(client, store)
	})
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	// A relay that announced itself before this process joined still
	// answers availability checks.
	go client.CheckAvailable(ctx)
	return a, nil
}

func newBus(ctx context.Context, cfg config.Config) (closablePubSub, error) {
	if cfg.Bus.Transport != config.TransportLibp2p {
		return network.NewMemoryPubSub(), nil
	}
	bus, err := network.NewLibp2pPubSub(ctx, network.PeerOptions{
		ListenAddrs:     cfg.Libp2p.Listen,
		Bootstrap:       cfg.Libp2p.Bootstrap,
		Rendezvous:      cfg.Libp2p.Rendezvous,
		EnableMDNS:      cfg.Libp2p.MDNS,
		IdentityKeyFile: cfg.Libp2p.IdentityKey,
	})
	if err != nil {
		return nil, fmt.Errorf("start libp2p bus: %w", err)
	}
	return bus, nil
}

// Close releases the bus. The relay stops once its context is done; Close
// waits for it when ctx has already been cancelled.
func (a *app) Close() error {
	if a.relay != nil {
		a.registry.Remove(a.cfg.Bridge.Capability)
	}
	err := a.bus.Close()
	if a.relay != nil {
		a.relay.Wait()
	}
	return err
}
