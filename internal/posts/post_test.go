package posts

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDrafts() []Draft {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return []Draft{
		{ID: "a", Content: "Shipping the Go bridge", Status: StatusDraft, Tags: []string{"go"}, CreatedAt: base},
		{ID: "b", Content: "Notes on LinkedIn reach", Status: StatusPublished, Tags: []string{"Growth"}, CreatedAt: base.Add(time.Hour), PublishedAt: base.Add(2 * time.Hour)},
		{ID: "c", Content: "Weekly recap", Status: StatusScheduled, CreatedAt: base.Add(2 * time.Hour), ScheduledAt: base.Add(48 * time.Hour)},
		{ID: "d", Content: "Another go post", Status: StatusDraft, Tags: []string{"go", "growth"}, CreatedAt: base.Add(2 * time.Hour)},
	}
}

func ids(items []Draft) []string {
	out := make([]string, 0, len(items))
	for _, d := range items {
		out = append(out, d.ID)
	}
	return out
}

func TestSelectDefaultsNewestFirst(t *testing.T) {
	page := Select(sampleDrafts(), Query{})

	assert.Equal(t, []string{"c", "d", "b", "a"}, ids(page.Items))
	assert.Equal(t, 4, page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, DefaultPageSize, page.PageSize)
	assert.Equal(t, 1, page.Pages)
}

func TestSelectFilters(t *testing.T) {
	drafts := sampleDrafts()

	cases := []struct {
		name string
		q    Query
		want []string
	}{
		{"status", Query{Status: StatusDraft, Asc: true}, []string{"a", "d"}},
		{"tag ignores case", Query{Tag: "growth", Asc: true}, []string{"b", "d"}},
		{"text", Query{Text: "  GO ", Asc: true}, []string{"a", "d"}},
		{"combined", Query{Status: StatusDraft, Tag: "growth"}, []string{"d"}},
		{"no match", Query{Text: "nothing like this"}, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page := Select(drafts, tc.q)
			assert.Equal(t, tc.want, ids(page.Items))
			assert.Equal(t, len(tc.want), page.Total)
		})
	}
}

func TestSelectSortsByScheduledAscending(t *testing.T) {
	page := Select(sampleDrafts(), Query{Sort: SortScheduled, Asc: true})
	// zero times sort first, ties broken by id
	assert.Equal(t, []string{"a", "b", "d", "c"}, ids(page.Items))
}

func TestSelectPaginates(t *testing.T) {
	drafts := make([]Draft, 0, 45)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 45 {
		drafts = append(drafts, Draft{ID: fmt.Sprintf("p%02d", i), CreatedAt: base.Add(time.Duration(i) * time.Minute)})
	}

	page := Select(drafts, Query{Asc: true, Page: 3, PageSize: 20})
	require.Len(t, page.Items, 5)
	assert.Equal(t, "p40", page.Items[0].ID)
	assert.Equal(t, 3, page.Pages)

	past := Select(drafts, Query{Page: 9})
	assert.NotNil(t, past.Items)
	assert.Empty(t, past.Items)
	assert.Equal(t, 45, past.Total)

	capped := Select(drafts, Query{PageSize: 1000})
	assert.Equal(t, MaxPageSize, capped.PageSize)
	assert.Len(t, capped.Items, 45)
}

func TestSelectLeavesInputUntouched(t *testing.T) {
	drafts := sampleDrafts()
	_ = Select(drafts, Query{Sort: SortCreated})
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(drafts))
}

func TestConnectionLive(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	assert.False(t, Connection{}.Live(now))
	assert.True(t, Connection{AccessToken: "tok"}.Live(now))
	assert.True(t, Connection{AccessToken: "tok", ExpiresAt: now.Add(time.Minute)}.Live(now))
	assert.False(t, Connection{AccessToken: "tok", ExpiresAt: now}.Live(now))
}
