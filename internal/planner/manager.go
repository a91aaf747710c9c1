package planner

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"SPost-Planner/internal/bridge"
	"SPost-Planner/internal/core/network"
	"SPost-Planner/internal/posts"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Topic carries post lifecycle events.
const Topic = "spost.posts"

const (
	EventPostCreated   = "post_created"
	EventPostUpdated   = "post_updated"
	EventPostDeleted   = "post_deleted"
	EventPostPublished = "post_published"
	EventPostScheduled = "post_scheduled"
	EventPostFailed    = "post_failed"
	EventPostsSynced   = "posts_synced"
)

var (
	ErrEmptyContent     = errors.New("post content is empty")
	ErrAlreadyPublished = errors.New("post already published")
	ErrInvalidStatus    = errors.New("invalid post status")
	ErrInFlight         = errors.New("post is being handed to the bridge")
)

// Store persists drafts.
type Store interface {
	Save(ctx context.Context, d posts.Draft) error
	Get(ctx context.Context, id string) (posts.Draft, error)
	List(ctx context.Context) ([]posts.Draft, error)
	Delete(ctx context.Context, id string) error
}

// Bridge is the part of the RPC client the planner drives.
type Bridge interface {
	CheckAvailable(ctx context.Context) bool
	IsConnected(ctx context.Context) bool
	PublishNow(ctx context.Context, post bridge.Post) (bridge.PublishResult, error)
	SchedulePost(ctx context.Context, post bridge.Post, when any) (bridge.ScheduleResult, error)
	FetchData(ctx context.Context) (bridge.DataSnapshot, error)
}

var _ Bridge = (*bridge.Client)(nil)

type Event struct {
	Type string         `json:"type"`
	Post *posts.Draft   `json:"post,omitempty"`
	Meta map[string]any `json:"meta,omitempty"`
	At   time.Time      `json:"at"`
}

// DraftInput is the editable part of a draft.
type DraftInput struct {
	Content      string         `json:"content"`
	Visibility   string         `json:"visibility,omitempty"`
	Media        []bridge.Media `json:"media,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	NotionPageID string         `json:"notion_page_id,omitempty"`
}

type BridgeStatus struct {
	Available bool `json:"available"`
	Connected bool `json:"connected"`
}

type SyncResult struct {
	Imported int       `json:"imported"`
	Updated  int       `json:"updated"`
	Profile  string    `json:"profile,omitempty"`
	At       time.Time `json:"at"`
}

// Manager owns the post lifecycle: drafts are edited locally and handed to
// the bridge for publishing or scheduling. mu guards the store and inFlight
// but is never held across a bridge call.
type Manager struct {
	mu       sync.Mutex
	inFlight map[string]bool
	pubsub   network.PubSub
	store    Store
	bridge   Bridge
	now      func() time.Time
	newID    func() string
}

func NewManager(pubsub network.PubSub, store Store, b Bridge) *Manager {
	return &Manager{
		inFlight: make(map[string]bool),
		pubsub:   pubsub,
		store:    store,
		bridge:   b,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

func (m *Manager) CreateDraft(ctx context.Context, in DraftInput) (posts.Draft, error) {
	in, err := normalizeInput(in)
	if err != nil {
		return posts.Draft{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	d := posts.Draft{
		ID:           m.newID(),
		Content:      in.Content,
		Visibility:   in.Visibility,
		Media:        in.Media,
		Tags:         in.Tags,
		NotionPageID: in.NotionPageID,
		Status:       posts.StatusDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.store.Save(ctx, d); err != nil {
		return posts.Draft{}, err
	}
	m.publishLocked(EventPostCreated, &d, nil)
	return d, nil
}

// UpdateDraft replaces the editable fields. A failed post goes back to draft.
func (m *Manager) UpdateDraft(ctx context.Context, id string, in DraftInput) (posts.Draft, error) {
	in, err := normalizeInput(in)
	if err != nil {
		return posts.Draft{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight[id] {
		return posts.Draft{}, ErrInFlight
	}
	d, err := m.store.Get(ctx, id)
	if err != nil {
		return posts.Draft{}, err
	}
	if d.Status == posts.StatusPublished {
		return posts.Draft{}, ErrAlreadyPublished
	}
	d.Content = in.Content
	d.Visibility = in.Visibility
	d.Media = in.Media
	d.Tags = in.Tags
	d.NotionPageID = in.NotionPageID
	if d.Status == posts.StatusFailed {
		d.Status = posts.StatusDraft
		d.LastError = ""
	}
	d.UpdatedAt = m.now().UTC()
	if err := m.store.Save(ctx, d); err != nil {
		return posts.Draft{}, err
	}
	m.publishLocked(EventPostUpdated, &d, nil)
	return d, nil
}

func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight[id] {
		return ErrInFlight
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.publishLocked(EventPostDeleted, nil, map[string]any{"id": id})
	return nil
}

func (m *Manager) Get(ctx context.Context, id string) (posts.Draft, error) {
	return m.store.Get(ctx, id)
}

func (m *Manager) List(ctx context.Context, q posts.Query) (posts.Page, error) {
	if q.Status != "" && !q.Status.Valid() {
		return posts.Page{}, ErrInvalidStatus
	}
	all, err := m.store.List(ctx)
	if err != nil {
		return posts.Page{}, err
	}
	return posts.Select(all, q), nil
}

// Publish sends the draft through the bridge right away. Remote and timeout
// failures are recorded on the draft and returned unchanged.
func (m *Manager) Publish(ctx context.Context, id string) (posts.Draft, error) {
	d, err := m.claim(ctx, id)
	if err != nil {
		return posts.Draft{}, err
	}
	res, callErr := m.bridge.PublishNow(ctx, d.ToBridge())

	m.mu.Lock()
	defer m.mu.Unlock()
	defer delete(m.inFlight, id)
	// The outcome is recorded even if the caller has gone away.
	sctx := context.WithoutCancel(ctx)
	if d, err = m.store.Get(sctx, id); err != nil {
		return posts.Draft{}, err
	}
	if callErr != nil {
		return m.failLocked(ctx, d, "publish", callErr)
	}

	now := m.now().UTC()
	d.Status = posts.StatusPublished
	d.RemoteURN = res.URN
	d.RemoteURL = res.URL
	d.LastError = ""
	d.PublishedAt = res.PublishedAt.UTC()
	if res.PublishedAt.IsZero() {
		d.PublishedAt = now
		if t, ok := posts.PostedAt(res.URN, "", now); ok {
			d.PublishedAt = t
		}
	}
	d.UpdatedAt = now
	if err := m.store.Save(sctx, d); err != nil {
		return posts.Draft{}, err
	}
	Logger().Info("post published", zap.String("id", d.ID), zap.String("urn", d.RemoteURN))
	m.publishLocked(EventPostPublished, &d, nil)
	return d, nil
}

// Schedule hands the draft to the bridge for publishing at when. Invalid
// times are rejected before the bridge is involved and leave the draft as is.
func (m *Manager) Schedule(ctx context.Context, id string, when any) (posts.Draft, error) {
	d, err := m.claim(ctx, id)
	if err != nil {
		return posts.Draft{}, err
	}
	res, callErr := m.bridge.SchedulePost(ctx, d.ToBridge(), when)

	m.mu.Lock()
	defer m.mu.Unlock()
	defer delete(m.inFlight, id)
	if bridge.KindOf(callErr) == bridge.KindValidation {
		return posts.Draft{}, callErr
	}
	sctx := context.WithoutCancel(ctx)
	if d, err = m.store.Get(sctx, id); err != nil {
		return posts.Draft{}, err
	}
	if callErr != nil {
		return m.failLocked(ctx, d, "schedule", callErr)
	}

	at, perr := bridge.ParseScheduleTime(res.ScheduledAt)
	if perr != nil {
		at, perr = bridge.ParseScheduleTime(when)
	}
	if perr == nil {
		d.ScheduledAt = at.UTC()
	}
	d.Status = posts.StatusScheduled
	d.LastError = ""
	d.UpdatedAt = m.now().UTC()
	if err := m.store.Save(sctx, d); err != nil {
		return posts.Draft{}, err
	}
	Logger().Info("post scheduled", zap.String("id", d.ID), zap.Time("scheduled_at", d.ScheduledAt))
	m.publishLocked(EventPostScheduled, &d, map[string]any{"remote_id": res.ID})
	return d, nil
}

// Sync pulls the remote post list and merges it into the store: known
// posts get fresh metrics, unknown ones are imported as published.
func (m *Manager) Sync(ctx context.Context) (SyncResult, error) {
	snap, err := m.bridge.FetchData(ctx)
	if err != nil {
		return SyncResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	all, err := m.store.List(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	byURN := make(map[string]posts.Draft, len(all))
	for _, d := range all {
		if key := urnKey(d.RemoteURN); key != "" {
			byURN[key] = d
		}
	}

	now := m.now().UTC()
	result := SyncResult{Profile: snap.Profile.URN, At: now}
	for _, rp := range snap.Posts {
		key := urnKey(rp.URN)
		if key == "" {
			key = urnKey(rp.URL)
		}
		if key == "" {
			Logger().Debug("skipping remote post without urn", zap.String("url", rp.URL))
			continue
		}
		metrics := posts.Metrics{Likes: rp.Likes, Comments: rp.Comments, Shares: rp.Shares, Impressions: rp.Impressions}
		d, known := byURN[key]
		if known {
			d.Metrics = metrics
			if rp.URL != "" {
				d.RemoteURL = rp.URL
			}
			d.UpdatedAt = now
			result.Updated++
		} else {
			d = posts.Draft{
				ID:        m.newID(),
				Content:   rp.Content,
				Status:    posts.StatusPublished,
				RemoteURN: key,
				RemoteURL: rp.URL,
				Metrics:   metrics,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if t, ok := posts.PostedAt(key, rp.PublishedAt, now); ok {
				d.PublishedAt = t
			}
			result.Imported++
		}
		if err := m.store.Save(ctx, d); err != nil {
			return SyncResult{}, err
		}
		byURN[key] = d
	}
	m.publishLocked(EventPostsSynced, nil, map[string]any{"imported": result.Imported, "updated": result.Updated})
	return result, nil
}

func (m *Manager) BridgeStatus(ctx context.Context) BridgeStatus {
	return BridgeStatus{
		Available: m.bridge.CheckAvailable(ctx),
		Connected: m.bridge.IsConnected(ctx),
	}
}

func (m *Manager) Subscribe() (<-chan network.Message, func(), error) {
	return m.pubsub.Subscribe(Topic)
}

// claim loads a draft that may go to the bridge and marks it in flight.
// The caller must clear the mark under mu once the bridge call returns.
func (m *Manager) claim(ctx context.Context, id string) (posts.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight[id] {
		return posts.Draft{}, ErrInFlight
	}
	d, err := m.store.Get(ctx, id)
	if err != nil {
		return posts.Draft{}, err
	}
	if d.Status == posts.StatusPublished {
		return posts.Draft{}, ErrAlreadyPublished
	}
	m.inFlight[id] = true
	return d, nil
}

func (m *Manager) failLocked(ctx context.Context, d posts.Draft, op string, cause error) (posts.Draft, error) {
	if errors.Is(cause, context.Canceled) {
		return posts.Draft{}, cause
	}
	problem := bridge.Describe(cause)
	d.Status = posts.StatusFailed
	d.LastError = problem.Message
	d.UpdatedAt = m.now().UTC()
	if err := m.store.Save(context.WithoutCancel(ctx), d); err != nil {
		Logger().Warn("record failed post", zap.String("id", d.ID), zap.Error(err))
	}
	Logger().Warn("post "+op+" failed", zap.String("id", d.ID), zap.String("kind", string(problem.Kind)), zap.Error(cause))
	m.publishLocked(EventPostFailed, &d, map[string]any{"op": op, "kind": string(problem.Kind)})
	return d, cause
}

func (m *Manager) publishLocked(eventType string, d *posts.Draft, meta map[string]any) {
	evt := Event{Type: eventType, Meta: meta, At: m.now().UTC()}
	if d != nil {
		cp := *d
		evt.Post = &cp
	}
	b, _ := json.Marshal(evt)
	if err := m.pubsub.Publish(Topic, b); err != nil {
		Logger().Debug("publish planner event", zap.String("type", eventType), zap.Error(err))
	}
}

func normalizeInput(in DraftInput) (DraftInput, error) {
	in.Content = strings.TrimSpace(in.Content)
	if in.Content == "" {
		return DraftInput{}, ErrEmptyContent
	}
	in.Visibility = strings.ToUpper(strings.TrimSpace(in.Visibility))
	if in.Visibility == "" {
		in.Visibility = "PUBLIC"
	}
	tags := make([]string, 0, len(in.Tags))
	seen := make(map[string]bool, len(in.Tags))
	for _, t := range in.Tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[strings.ToLower(t)] {
			continue
		}
		seen[strings.ToLower(t)] = true
		tags = append(tags, t)
	}
	in.Tags = nil
	if len(tags) > 0 {
		in.Tags = tags
	}
	return in, nil
}

func urnKey(s string) string {
	if s == "" {
		return ""
	}
	u, err := posts.ParseURN(s)
	if err != nil {
		return ""
	}
	return u.String()
}
