package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChannelManager/internal/domain"
)

func newTestWorkspace(t *testing.T, backend string) *Workspace {
	t.Helper()

	ws, err := NewWorkspace(t.TempDir(), backend, discardLogger())
	require.NoError(t, err)
	return ws
}

func TestNewWorkspaceRejectsUnknownBackend(t *testing.T) {
	t.Parallel()

	_, err := NewWorkspace(t.TempDir(), "postgres", discardLogger())
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestWorkspaceCreateAndGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ws := newTestWorkspace(t, BackendJSON)
	created := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

	require.NoError(t, ws.Create(ctx, domain.Channel{Name: "tech-news", Status: domain.ChannelUnbound, CreatedAt: created}))

	raw, err := os.ReadFile(filepath.Join(ws.ChannelDir("tech-news"), ChannelFileName))
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "tech-news", doc["name"])
	assert.Equal(t, "2026-03-01T12:30:00Z", doc["createdAt"])
	assert.Nil(t, doc["channelId"])
	assert.Equal(t, "unbound", doc["status"])

	ch, err := ws.Get(ctx, "tech-news")
	require.NoError(t, err)
	assert.Equal(t, domain.Channel{Name: "tech-news", Status: domain.ChannelUnbound, CreatedAt: created}, ch)
}

func TestWorkspaceCreateExisting(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ws := newTestWorkspace(t, BackendJSON)
	require.NoError(t, ws.Create(ctx, domain.Channel{Name: "tech-news", ChannelID: "-100"}))

	err := ws.Create(ctx, domain.Channel{Name: "tech-news"})
	require.ErrorIs(t, err, domain.ErrAlreadyExists)

	ch, err := ws.Get(ctx, "tech-news")
	require.NoError(t, err)
	assert.Equal(t, "-100", ch.ChannelID)
}

func TestWorkspaceGetErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ws := newTestWorkspace(t, BackendJSON)

	_, err := ws.Get(ctx, "Bad Name")
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = ws.Get(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "tgcm init missing")

	require.NoError(t, os.MkdirAll(ws.ChannelDir("broken"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ws.ChannelDir("broken"), ChannelFileName), []byte("{"), 0o644))
	_, err = ws.Get(ctx, "broken")
	require.ErrorIs(t, err, domain.ErrCorrupt)
}

func TestWorkspaceReadsLegacyMetadata(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ws := newTestWorkspace(t, BackendJSON)

	write := func(name, content string) {
		require.NoError(t, os.MkdirAll(ws.ChannelDir(name), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(ws.ChannelDir(name), ChannelFileName), []byte(content), 0o644))
	}
	write("legacy", `{"name": "legacy", "createdAt": "2025-01-02T03:04:05Z", "channelId": null, "status": "initialized"}`)
	write("numeric", `{"name": "numeric", "createdAt": "2025-01-02T03:04:05Z", "channelId": -1001234567890, "status": "connected"}`)
	write("drifted", `{"name": "drifted", "channelId": "", "status": "connected"}`)

	legacy, err := ws.Get(ctx, "legacy")
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelUnbound, legacy.Status)

	numeric, err := ws.Get(ctx, "numeric")
	require.NoError(t, err)
	assert.Equal(t, "-1001234567890", numeric.ChannelID)
	assert.Equal(t, domain.ChannelConnected, numeric.Status)

	drifted, err := ws.Get(ctx, "drifted")
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelUnbound, drifted.Status)
	assert.True(t, drifted.CreatedAt.IsZero())
}

func TestWorkspaceScanSkipsInvalidDirectories(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ws := newTestWorkspace(t, BackendJSON)

	channels, err := ws.Scan(ctx)
	require.NoError(t, err)
	assert.Empty(t, channels)

	require.NoError(t, ws.Create(ctx, domain.Channel{Name: "beta", ChannelID: "@beta"}))
	require.NoError(t, ws.Create(ctx, domain.Channel{Name: "alpha"}))
	require.NoError(t, os.MkdirAll(ws.ChannelDir("no-meta"), 0o755))
	require.NoError(t, os.MkdirAll(ws.ChannelDir("garbage"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ws.ChannelDir("garbage"), ChannelFileName), []byte("not json"), 0o644))
	require.NoError(t, ws.WriteRegistry(ctx, nil))

	channels, err = ws.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, channels, 2)
	assert.Equal(t, "alpha", channels[0].Name)
	assert.Equal(t, "beta", channels[1].Name)
	assert.Equal(t, domain.ChannelConnected, channels[1].Status)
}

func TestWorkspaceWriteRegistry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ws := newTestWorkspace(t, BackendJSON)

	require.NoError(t, ws.WriteRegistry(ctx, []domain.Channel{
		{Name: "alpha", CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{Name: "beta", ChannelID: "-100"},
	}))

	raw, err := os.ReadFile(ws.RegistryPath())
	require.NoError(t, err)

	var records []map[string]any
	require.NoError(t, json.Unmarshal(raw, &records))
	require.Len(t, records, 2)
	assert.Equal(t, "alpha", records[0]["name"])
	assert.Nil(t, records[0]["channelId"])
	assert.Equal(t, "unbound", records[0]["status"])
	assert.Equal(t, "2026-01-01T00:00:00Z", records[0]["createdAt"])
	assert.Equal(t, "-100", records[1]["channelId"])
	assert.Equal(t, "connected", records[1]["status"])

	require.NoError(t, ws.WriteRegistry(ctx, nil))
	raw, err = os.ReadFile(ws.RegistryPath())
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestWorkspaceQueueFiles(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ws := newTestWorkspace(t, BackendJSON)
	require.NoError(t, ws.Create(ctx, domain.Channel{Name: "alpha"}))

	content, err := ws.ReadQueue(ctx, "alpha")
	require.NoError(t, err)
	assert.Nil(t, content)

	require.NoError(t, ws.WriteQueue(ctx, "alpha", []byte("### 1\n")))
	content, err = ws.ReadQueue(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, "### 1\n", string(content))
}

func TestWorkspaceOpenIndexBackends(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	jsonWS := newTestWorkspace(t, "")
	store, err := jsonWS.OpenIndex(ctx, jsonWS.ChannelDir("alpha"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(jsonWS.ChannelDir("alpha"), JSONIndexFileName), store.Location())
	require.NoError(t, store.Close())

	sqliteWS := newTestWorkspace(t, BackendSQLite)
	store, err = sqliteWS.OpenIndex(ctx, sqliteWS.ChannelDir("alpha"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	assert.Equal(t, filepath.Join(sqliteWS.ChannelDir("alpha"), SQLiteIndexFileName), store.Location())
}

func TestWorkspaceIndexReaderAndDiscard(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	for _, backend := range []string{BackendJSON, BackendSQLite} {
		ws := newTestWorkspace(t, backend)
		dir := ws.ChannelDir("alpha")

		reader, err := ws.OpenIndexReader(ctx, dir)
		require.NoError(t, err, backend)
		entries, err := reader.Load(ctx)
		require.NoError(t, err, backend)
		assert.Empty(t, entries, backend)
		require.NoError(t, reader.Close())
		_, err = os.Stat(dir)
		assert.ErrorIs(t, err, os.ErrNotExist, backend)

		store, err := ws.OpenIndex(ctx, dir)
		require.NoError(t, err, backend)
		require.NoError(t, store.Append(ctx, domain.IndexEntry{ID: "1", Topic: "Kept"}))
		require.NoError(t, store.Close())

		require.NoError(t, ws.DiscardIndex(ctx, dir), backend)
		require.NoError(t, ws.DiscardIndex(ctx, dir), backend)

		reader, err = ws.OpenIndexReader(ctx, dir)
		require.NoError(t, err, backend)
		entries, err = reader.Load(ctx)
		require.NoError(t, err, backend)
		assert.Empty(t, entries, backend)
		require.NoError(t, reader.Close())
	}
}

func TestWorkspaceRemove(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ws := newTestWorkspace(t, "")
	require.NoError(t, ws.Create(ctx, domain.Channel{Name: "alpha", Status: domain.ChannelUnbound}))
	require.NoError(t, ws.WriteQueue(ctx, "alpha", []byte("### 1\n")))

	require.NoError(t, ws.Remove(ctx, "alpha"))
	_, err := os.Stat(ws.ChannelDir("alpha"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	require.NoError(t, ws.Remove(ctx, "alpha"))

	require.ErrorIs(t, ws.Remove(ctx, "../escape"), domain.ErrInvalidInput)
}
