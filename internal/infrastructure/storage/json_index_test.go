package storage

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChannelManager/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestJSONIndexMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	store := NewJSONIndex(filepath.Join(t.TempDir(), JSONIndexFileName), discardLogger())
	entries, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NotNil(t, entries)
}

func TestJSONIndexAppendAndLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chan", JSONIndexFileName)
	store := NewJSONIndex(path, discardLogger())

	first := domain.IndexEntry{ID: "101", Topic: "Rust 2.0 released", Links: []string{"https://rust-lang.org/a"}, Keywords: []string{"released", "rust"}}
	second := domain.IndexEntry{Topic: "Draft without id"}

	require.NoError(t, store.Append(ctx, first))
	require.NoError(t, store.Append(ctx, second))

	entries, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, first, entries[0])
	assert.Equal(t, domain.IndexEntry{Topic: "Draft without id", Links: []string{}, Keywords: []string{}}, entries[1])

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"version": 1`)
	assert.Contains(t, string(raw), `"msgId": 101`)
}

func TestJSONIndexReadsLegacyFormats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    []domain.IndexEntry
	}{
		{
			name:    "bare list",
			content: `[{"msgId": 5, "topic": "Old post", "links": ["https://a.example"], "keywords": ["post"]}]`,
			want:    []domain.IndexEntry{{ID: "5", Topic: "Old post", Links: []string{"https://a.example"}, Keywords: []string{"post"}}},
		},
		{
			name:    "missing version",
			content: `{"posts": [{"msgId": "abc", "topic": "T"}]}`,
			want:    []domain.IndexEntry{{ID: "abc", Topic: "T", Links: []string{}, Keywords: []string{}}},
		},
		{
			name:    "newer version",
			content: `{"version": 2, "posts": [{"msgId": null, "topic": "T", "extra": true}]}`,
			want:    []domain.IndexEntry{{Topic: "T", Links: []string{}, Keywords: []string{}}},
		},
		{
			name:    "blank file",
			content: "  \n",
			want:    []domain.IndexEntry{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), JSONIndexFileName)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			entries, err := NewJSONIndex(path, discardLogger()).Load(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, entries)
		})
	}
}

func TestJSONIndexCorruptFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), JSONIndexFileName)
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 1, "posts": [`), 0o644))
	store := NewJSONIndex(path, discardLogger())

	_, err := store.Load(ctx)
	require.ErrorIs(t, err, domain.ErrCorrupt)

	err = store.Append(ctx, domain.IndexEntry{Topic: "new"})
	require.ErrorIs(t, err, domain.ErrCorrupt)
	assert.Contains(t, err.Error(), "dedup rebuild")

	raw, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, `{"version": 1, "posts": [`, string(raw), "corrupt file must not be overwritten by append")

	require.NoError(t, store.Replace(ctx, []domain.IndexEntry{{Topic: "rebuilt"}}))
	entries, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "rebuilt", entries[0].Topic)
}

func TestJSONIndexUpgradesLegacyListOnWrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), JSONIndexFileName)
	require.NoError(t, os.WriteFile(path, []byte(`[{"msgId": 1, "topic": "A"}]`), 0o644))
	store := NewJSONIndex(path, discardLogger())

	require.NoError(t, store.Append(ctx, domain.IndexEntry{ID: "2", Topic: "B"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"posts"`)

	entries, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
