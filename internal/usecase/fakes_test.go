package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ChannelManager/internal/dedup"
	"ChannelManager/internal/domain"
	"ChannelManager/internal/history"
	"ChannelManager/internal/infrastructure/storage"
	"ChannelManager/internal/logging"
)

var testNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

type harness struct {
	ws        *storage.Workspace
	channels  *Channels
	dedup     *Dedup
	queue     *Queue
	publisher *fakePublisher
	inspector *fakeInspector
	sources   *history.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithBackend(t, storage.BackendJSON)
}

func newHarnessWithBackend(t *testing.T, backend string) *harness {
	t.Helper()

	logger := logging.Discard()
	ws, err := storage.NewWorkspace(t.TempDir(), backend, logger)
	require.NoError(t, err)

	h := &harness{
		ws:        ws,
		publisher: &fakePublisher{},
		inspector: &fakeInspector{
			me:     domain.BotIdentity{ID: 42, Username: "poster_bot"},
			chat:   domain.ChatInfo{ID: "-1001", Type: "channel", Title: "Tech", Username: "technews"},
			member: domain.Member{UserID: 42, Status: "administrator", CanPost: true},
		},
		sources: history.NewRegistry(),
	}
	matcher := dedup.NewMatcher(dedup.DefaultConfig())

	h.channels = NewChannels(ChannelsDeps{
		Channels:  ws,
		Queues:    ws,
		Indexes:   ws,
		Inspector: h.inspector,
		Logger:    logger,
		Now:       func() time.Time { return testNow },
	})
	h.dedup = NewDedup(DedupDeps{
		Channels:  ws,
		Indexes:   ws,
		Sources:   h.sources,
		Resolver:  h.inspector,
		Matcher:   matcher,
		Logger:    logger,
		PageLimit: 5,
	})
	h.queue = NewQueue(QueueDeps{
		Channels:  ws,
		Queues:    ws,
		Indexes:   ws,
		Publisher: h.publisher,
		Matcher:   matcher,
		Logger:    logger,
	})
	return h
}

// initChannel creates a channel, optionally bound to id.
func (h *harness) initChannel(t *testing.T, name, id string) {
	t.Helper()
	ctx := context.Background()
	_, err := h.channels.Init(ctx, name)
	require.NoError(t, err)
	if id != "" {
		_, err = h.channels.Bind(ctx, name, id, false)
		require.NoError(t, err)
	}
}

func (h *harness) writeQueue(t *testing.T, channel, content string) {
	t.Helper()
	require.NoError(t, h.ws.WriteQueue(context.Background(), channel, []byte(content)))
}

func (h *harness) readQueue(t *testing.T, channel string) string {
	t.Helper()
	raw, err := h.ws.ReadQueue(context.Background(), channel)
	require.NoError(t, err)
	return string(raw)
}

func (h *harness) index(t *testing.T, channel string) []domain.IndexEntry {
	t.Helper()
	ctx := context.Background()
	store, err := h.ws.OpenIndex(ctx, h.ws.ChannelDir(channel))
	require.NoError(t, err)
	defer store.Close()
	entries, err := store.Load(ctx)
	require.NoError(t, err)
	return entries
}

type fakePublisher struct {
	mu    sync.Mutex
	ids   []domain.MessageID
	err   error
	posts []domain.OutgoingPost
	chats []string
}

func (f *fakePublisher) Publish(_ context.Context, chatID string, post domain.OutgoingPost) ([]domain.MessageID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats = append(f.chats, chatID)
	f.posts = append(f.posts, post)
	return f.ids, f.err
}

type fakeInspector struct {
	me        domain.BotIdentity
	meErr     error
	chat      domain.ChatInfo
	chatErr   error
	member    domain.Member
	memberErr error
	admins    []domain.Member
	count     int
	countErr  error
	resolved  []string
}

func (f *fakeInspector) ResolveChat(_ context.Context, chatID string) (domain.ChatInfo, error) {
	f.resolved = append(f.resolved, chatID)
	return f.chat, f.chatErr
}

func (f *fakeInspector) Identity(context.Context) (domain.BotIdentity, error) {
	return f.me, f.meErr
}

func (f *fakeInspector) Member(context.Context, string, int64) (domain.Member, error) {
	return f.member, f.memberErr
}

func (f *fakeInspector) Admins(context.Context, string) ([]domain.Member, error) {
	return f.admins, nil
}

func (f *fakeInspector) SubscriberCount(context.Context, string) (int, error) {
	return f.count, f.countErr
}

type fakeSource struct {
	name    string
	history domain.History
	err     error
	got     domain.HistoryRequest
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(_ context.Context, req domain.HistoryRequest) (domain.History, error) {
	f.got = req
	return f.history, f.err
}
