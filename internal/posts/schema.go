package posts

import (
	"fmt"
	"time"

	"SPost-Planner/internal/bridge"
)

const currentSchemaVersion = 1

type fileSchema struct {
	Version    int               `toml:"version"`
	Connection *connectionSchema `toml:"connection,omitempty"`
	Posts      []postSchema      `toml:"posts"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported posts schema version %d (current %d)", s.Version, currentSchemaVersion)
	}
	return nil
}

type connectionSchema struct {
	MemberURN   string `toml:"member_urn"`
	AccessToken string `toml:"access_token"`
	ExpiresAt   string `toml:"expires_at,omitempty"`
	UpdatedAt   string `toml:"updated_at,omitempty"`
}

type postSchema struct {
	ID           string        `toml:"id"`
	Content      string        `toml:"content"`
	Visibility   string        `toml:"visibility,omitempty"`
	Status       string        `toml:"status"`
	Tags         []string      `toml:"tags,omitempty"`
	NotionPageID string        `toml:"notion_page_id,omitempty"`
	ScheduledAt  string        `toml:"scheduled_at,omitempty"`
	PublishedAt  string        `toml:"published_at,omitempty"`
	RemoteURN    string        `toml:"remote_urn,omitempty"`
	RemoteURL    string        `toml:"remote_url,omitempty"`
	LastError    string        `toml:"last_error,omitempty"`
	CreatedAt    string        `toml:"created_at"`
	UpdatedAt    string        `toml:"updated_at"`
	Media        []mediaSchema `toml:"media,omitempty"`
	Metrics      metricsSchema `toml:"metrics"`
}

type mediaSchema struct {
	URL   string `toml:"url"`
	Type  string `toml:"type,omitempty"`
	Title string `toml:"title,omitempty"`
}

type metricsSchema struct {
	Likes       int `toml:"likes"`
	Comments    int `toml:"comments"`
	Shares      int `toml:"shares"`
	Impressions int `toml:"impressions"`
}

func toSchema(d Draft) postSchema {
	media := make([]mediaSchema, 0, len(d.Media))
	for _, m := range d.Media {
		media = append(media, mediaSchema{URL: m.URL, Type: m.Type, Title: m.Title})
	}
	return postSchema{
		ID:           d.ID,
		Content:      d.Content,
		Visibility:   d.Visibility,
		Status:       string(d.Status),
		Tags:         d.Tags,
		NotionPageID: d.NotionPageID,
		ScheduledAt:  formatTime(d.ScheduledAt),
		PublishedAt:  formatTime(d.PublishedAt),
		RemoteURN:    d.RemoteURN,
		RemoteURL:    d.RemoteURL,
		LastError:    d.LastError,
		CreatedAt:    formatTime(d.CreatedAt),
		UpdatedAt:    formatTime(d.UpdatedAt),
		Media:        media,
		Metrics: metricsSchema{
			Likes:       d.Metrics.Likes,
			Comments:    d.Metrics.Comments,
			Shares:      d.Metrics.Shares,
			Impressions: d.Metrics.Impressions,
		},
	}
}

func fromSchema(p postSchema) Draft {
	var media []bridge.Media
	for _, m := range p.Media {
		media = append(media, bridge.Media{URL: m.URL, Type: m.Type, Title: m.Title})
	}
	status := Status(p.Status)
	if !status.Valid() {
		status = StatusDraft
	}
	return Draft{
		ID:           p.ID,
		Content:      p.Content,
		Visibility:   p.Visibility,
		Media:        media,
		Tags:         p.Tags,
		NotionPageID: p.NotionPageID,
		Status:       status,
		ScheduledAt:  parseTime(p.ScheduledAt),
		PublishedAt:  parseTime(p.PublishedAt),
		RemoteURN:    p.RemoteURN,
		RemoteURL:    p.RemoteURL,
		LastError:    p.LastError,
		Metrics: Metrics{
			Likes:       p.Metrics.Likes,
			Comments:    p.Metrics.Comments,
			Shares:      p.Metrics.Shares,
			Impressions: p.Metrics.Impressions,
		},
		CreatedAt: parseTime(p.CreatedAt),
		UpdatedAt: parseTime(p.UpdatedAt),
	}
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339Nano)
}
