package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"SPost-Planner/internal/core/network"
	"go.uber.org/zap"
)

// DefaultCapability is the well-known name the extension registers under.
const DefaultCapability = "SPost"

// Media is an attachment referenced by a post.
type Media struct {
	URL   string `json:"url"`
	Type  string `json:"type,omitempty"`
	Title string `json:"title,omitempty"`
}

// Post is the payload handed to the bridge for publishing or scheduling.
type Post struct {
	ID           string  `json:"id,omitempty"`
	Content      string  `json:"content"`
	Visibility   string  `json:"visibility,omitempty"`
	Media        []Media `json:"media,omitempty"`
	ScheduledAt  string  `json:"scheduledAt,omitempty"`
	NotionPageID string  `json:"notionPageId,omitempty"`
}

type PublishResult struct {
	URN         string    `json:"urn"`
	URL         string    `json:"url,omitempty"`
	PublishedAt time.Time `json:"publishedAt,omitzero"`
}

type ScheduleResult struct {
	ID          string `json:"id"`
	ScheduledAt string `json:"scheduledAt"`
	Status      string `json:"status,omitempty"`
}

type Profile struct {
	URN      string `json:"urn"`
	Name     string `json:"name,omitempty"`
	Headline string `json:"headline,omitempty"`
}

// RemotePost is a post as the remote side reports it. PublishedAt is kept
// raw because the remote side mixes absolute and relative forms.
type RemotePost struct {
	URN         string `json:"urn"`
	URL         string `json:"url,omitempty"`
	Content     string `json:"content"`
	PublishedAt string `json:"publishedAt,omitempty"`
	Likes       int    `json:"likes,omitempty"`
	Comments    int    `json:"comments,omitempty"`
	Shares      int    `json:"shares,omitempty"`
	Impressions int    `json:"impressions,omitempty"`
}

// DataSnapshot is the result of a bulk data fetch.
type DataSnapshot struct {
	Profile   Profile      `json:"profile"`
	Posts     []RemotePost `json:"posts"`
	FetchedAt time.Time    `json:"fetchedAt,omitzero"`
}

// Capability is the object the extension injects into the page.
type Capability interface {
	Publish(ctx context.Context, post Post) (PublishResult, error)
	Schedule(ctx context.Context, post Post) (ScheduleResult, error)
	IsConnected(ctx context.Context) (bool, error)
	GetData(ctx context.Context) (DataSnapshot, error)
}

// Locator finds an injected capability by name. A miss is a normal answer,
// not an error. Callers must not hold on to the result beyond one operation.
type Locator interface {
	Locate(name string) (Capability, bool)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(name string) (Capability, bool)

func (f LocatorFunc) Locate(name string) (Capability, bool) {
	return f(name)
}

// WithAliases answers a lookup with the first capability found under the
// requested name or, failing that, under one of the alternative names.
func WithAliases(l Locator, alternatives ...string) Locator {
	if len(alternatives) == 0 {
		return l
	}
	return LocatorFunc(func(name string) (Capability, bool) {
		if c, ok := l.Locate(name); ok {
			return c, true
		}
		for _, alt := range alternatives {
			if alt == name {
				continue
			}
			if c, ok := l.Locate(alt); ok {
				return c, true
			}
		}
		return nil, false
	})
}

// Registry is the process equivalent of the page's global scope: the
// extension injects capabilities into it and they may vanish at any time.
type Registry struct {
	bus   network.PubSub
	topic string

	mu   sync.RWMutex
	caps map[string]Capability
}

var _ Locator = (*Registry)(nil)

func NewRegistry(bus network.PubSub, topic string) *Registry {
	if topic == "" {
		topic = PageTopic
	}
	return &Registry{bus: bus, topic: topic, caps: make(map[string]Capability)}
}

func (r *Registry) Locate(name string) (Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.caps[name]
	return c, ok
}

// Inject registers c under name and then fires the ready broadcast.
func (r *Registry) Inject(name string, c Capability) error {
	r.mu.Lock()
	r.caps[name] = c
	r.mu.Unlock()

	b, err := json.Marshal(ReadyBroadcast(name))
	if err != nil {
		return fmt.Errorf("encode ready broadcast: %w", err)
	}
	if err := r.bus.Publish(r.topic, b); err != nil {
		return fmt.Errorf("publish ready broadcast: %w", err)
	}
	Logger().Debug("capability injected", zap.String("capability", name))
	return nil
}

func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.caps, name)
}

// Follow mirrors capabilities that live in another process on the same bus.
// A ready broadcast naming one of names, or a positive availability reply,
// registers build(name) here unless something already answers to that name.
// Unnamed announcements refer to names[0]. Follow returns once it is
// listening and stops when ctx is done or the bus closes.
func (r *Registry) Follow(ctx context.Context, names []string, build func(name string) Capability) error {
	if len(names) == 0 {
		return fmt.Errorf("follow %s: no capability names", r.topic)
	}
	sub, err := listen(r.bus, r.topic, func(env Envelope) bool {
		switch env.Type {
		case TypeReady:
			return true
		case TypeCheckResult:
			return env.Available != nil && *env.Available
		}
		return false
	})
	if err != nil {
		return fmt.Errorf("follow %s: %w", r.topic, err)
	}

	go func() {
		defer sub.Close()
		for {
			var env Envelope
			select {
			case <-ctx.Done():
				return
			case e, ok := <-sub.C:
				if !ok {
					return
				}
				env = e
			}
			name := env.Capability
			if env.Type == TypeCheckResult || name == "" {
				name = names[0]
			}
			if !slices.Contains(names, name) {
				continue
			}
			if _, ok := r.Locate(name); ok {
				continue
			}
			// Inject echoes a ready broadcast, which the check above absorbs.
			if err := r.Inject(name, build(name)); err != nil {
				Logger().Warn("follow capability failed", zap.String("capability", name), zap.Error(err))
				continue
			}
			Logger().Info("remote capability followed", zap.String("capability", name))
		}
	}()
	return nil
}
