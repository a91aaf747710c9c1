package posts

import (
	"errors"
	"math"
	"sort"
	"strings"
	"time"

	"SPost-Planner/internal/bridge"
)

var (
	ErrPostNotFound = errors.New("post not found")
	ErrInvalidURN   = errors.New("invalid linkedin urn")
	ErrNotConnected = errors.New("linkedin account not connected")
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusScheduled, StatusPublished, StatusFailed:
		return true
	}
	return false
}

// Draft is a post as the planner keeps it.
type Draft struct {
	ID           string         `json:"id"`
	Content      string         `json:"content"`
	Visibility   string         `json:"visibility,omitempty"`
	Media        []bridge.Media `json:"media,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	NotionPageID string         `json:"notion_page_id,omitempty"`
	Status       Status         `json:"status"`
	ScheduledAt  time.Time      `json:"scheduled_at,omitzero"`
	PublishedAt  time.Time      `json:"published_at,omitzero"`
	RemoteURN    string         `json:"remote_urn,omitempty"`
	RemoteURL    string         `json:"remote_url,omitempty"`
	LastError    string         `json:"last_error,omitempty"`
	Metrics      Metrics        `json:"metrics,omitzero"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type Metrics struct {
	Likes       int `json:"likes"`
	Comments    int `json:"comments"`
	Shares      int `json:"shares"`
	Impressions int `json:"impressions"`
}

// ToBridge is the payload handed to the extension.
func (d Draft) ToBridge() bridge.Post {
	return bridge.Post{
		ID:           d.ID,
		Content:      d.Content,
		Visibility:   d.Visibility,
		Media:        append([]bridge.Media(nil), d.Media...),
		NotionPageID: d.NotionPageID,
	}
}

// Connection is the cached LinkedIn connection.
type Connection struct {
	MemberURN   string    `json:"member_urn"`
	AccessToken string    `json:"-"`
	ExpiresAt   time.Time `json:"expires_at,omitzero"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

// Live reports whether the connection holds a token valid at now.
func (c Connection) Live(now time.Time) bool {
	if c.AccessToken == "" {
		return false
	}
	return c.ExpiresAt.IsZero() || c.ExpiresAt.After(now)
}

type SortField string

const (
	SortCreated   SortField = "created"
	SortUpdated   SortField = "updated"
	SortScheduled SortField = "scheduled"
	SortPublished SortField = "published"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Query selects, orders and pages drafts. Zero values mean no filter,
// newest created first, first page of DefaultPageSize.
type Query struct {
	Status   Status
	Tag      string
	Text     string
	Sort     SortField
	Asc      bool
	Page     int
	PageSize int
}

type Page struct {
	Items    []Draft `json:"items"`
	Total    int     `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
	Pages    int     `json:"pages"`
}

// Select applies q to drafts. drafts is not modified.
func Select(drafts []Draft, q Query) Page {
	text := strings.ToLower(strings.TrimSpace(q.Text))
	matched := make([]Draft, 0, len(drafts))
	for _, d := range drafts {
		if q.Status != "" && d.Status != q.Status {
			continue
		}
		if q.Tag != "" && !hasTag(d.Tags, q.Tag) {
			continue
		}
		if text != "" && !strings.Contains(strings.ToLower(d.Content), text) {
			continue
		}
		matched = append(matched, d)
	}

	key := sortKey(q.Sort)
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := key(matched[i]), key(matched[j])
		if a.Equal(b) {
			return matched[i].ID < matched[j].ID
		}
		if q.Asc {
			return a.Before(b)
		}
		return a.After(b)
	})

	size := q.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	out := Page{Total: len(matched), Page: page, PageSize: size, Pages: int(math.Ceil(float64(len(matched)) / float64(size)))}
	start := (page - 1) * size
	if start >= len(matched) {
		out.Items = []Draft{}
		return out
	}
	end := min(start+size, len(matched))
	out.Items = matched[start:end]
	return out
}

func sortKey(field SortField) func(Draft) time.Time {
	switch field {
	case SortUpdated:
		return func(d Draft) time.Time { return d.UpdatedAt }
	case SortScheduled:
		return func(d Draft) time.Time { return d.ScheduledAt }
	case SortPublished:
		return func(d Draft) time.Time { return d.PublishedAt }
	default:
		return func(d Draft) time.Time { return d.CreatedAt }
	}
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, want) {
			return true
		}
	}
	return false
}
