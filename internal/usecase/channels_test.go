package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChannelManager/internal/domain"
	"ChannelManager/internal/infrastructure/storage"
	"ChannelManager/internal/logging"
)

func TestChannelsInitCreatesFiles(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	ch, err := h.channels.Init(ctx, "tech-news")
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelUnbound, ch.Status)
	assert.Equal(t, testNow, ch.CreatedAt)

	dir := h.ws.ChannelDir("tech-news")
	raw, err := os.ReadFile(filepath.Join(dir, storage.JSONIndexFileName))
	require.NoError(t, err)
	var index struct {
		Version int               `json:"version"`
		Posts   []json.RawMessage `json:"posts"`
	}
	require.NoError(t, json.Unmarshal(raw, &index))
	assert.Equal(t, domain.IndexVersion, index.Version)
	assert.Empty(t, index.Posts)

	assert.Equal(t, "", h.readQueue(t, "tech-news"))
	_, err = os.Stat(filepath.Join(dir, storage.QueueFileName))
	require.NoError(t, err)

	registry, err := os.ReadFile(h.ws.RegistryPath())
	require.NoError(t, err)
	assert.Contains(t, string(registry), `"tech-news"`)
}

func TestChannelsInitTwiceFails(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.channels.Init(ctx, "tech-news")
	require.NoError(t, err)
	metaPath := filepath.Join(h.ws.ChannelDir("tech-news"), storage.ChannelFileName)
	before, err := os.ReadFile(metaPath)
	require.NoError(t, err)

	_, err = h.channels.Init(ctx, "tech-news")
	require.ErrorIs(t, err, domain.ErrAlreadyExists)
	assert.Contains(t, err.Error(), "already exists")

	after, err := os.ReadFile(metaPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

type failingQueues struct {
	*storage.Workspace
	err error
}

func (f *failingQueues) WriteQueue(ctx context.Context, channel string, content []byte) error {
	if f.err != nil {
		return f.err
	}
	return f.Workspace.WriteQueue(ctx, channel, content)
}

func TestChannelsInitRollsBackOnWriteFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	queues := &failingQueues{Workspace: h.ws, err: errors.New("disk full")}
	channels := NewChannels(ChannelsDeps{
		Channels: h.ws,
		Queues:   queues,
		Indexes:  h.ws,
		Logger:   logging.Discard(),
		Now:      func() time.Time { return testNow },
	})

	_, err := channels.Init(ctx, "tech-news")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Contains(t, err.Error(), "retry `tgcm init tech-news`")

	_, statErr := os.Stat(h.ws.ChannelDir("tech-news"))
	assert.ErrorIs(t, statErr, os.ErrNotExist)
	_, err = h.ws.Get(ctx, "tech-news")
	require.ErrorIs(t, err, domain.ErrNotFound)

	queues.err = nil
	ch, err := channels.Init(ctx, "tech-news")
	require.NoError(t, err)
	assert.Equal(t, "tech-news", ch.Name)
	assert.Equal(t, "", h.readQueue(t, "tech-news"))
}

func TestChannelsInitRejectsBadName(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	for _, name := range []string{"", "Tech", "-news", "has space", "a/b"} {
		_, err := h.channels.Init(context.Background(), name)
		require.ErrorIs(t, err, domain.ErrInvalidInput, "name %q", name)
	}
	channels, err := h.channels.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, channels)
}

func TestChannelsBind(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.initChannel(t, "tech-news", "")

	res, err := h.channels.Bind(ctx, "tech-news", "-1001", false)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, domain.ChannelConnected, res.Channel.Status)

	res, err = h.channels.Bind(ctx, "tech-news", "-1001", false)
	require.NoError(t, err)
	assert.False(t, res.Changed, "same id is a no-op")

	_, err = h.channels.Bind(ctx, "tech-news", "-1002", false)
	require.ErrorIs(t, err, domain.ErrConflict)
	assert.Contains(t, err.Error(), "--force")

	ch, err := h.ws.Get(ctx, "tech-news")
	require.NoError(t, err)
	assert.Equal(t, "-1001", ch.ChannelID, "refused rebind leaves the binding alone")

	res, err = h.channels.Bind(ctx, "tech-news", "-1002", true)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "-1001", res.Previous)

	channels, err := h.channels.List(ctx)
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, "-1002", channels[0].ChannelID)
}

func TestChannelsBindErrors(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.channels.Bind(ctx, "missing", "-1001", false)
	require.ErrorIs(t, err, domain.ErrNotFound)

	h.initChannel(t, "tech-news", "")
	_, err = h.channels.Bind(ctx, "tech-news", "  ", false)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestChannelsSyncRegistryRecomputes(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.initChannel(t, "alpha", "-1001")
	h.initChannel(t, "beta", "")

	require.NoError(t, os.Remove(h.ws.RegistryPath()))
	require.NoError(t, os.Mkdir(filepath.Join(h.ws.Root(), "stray"), 0o755))

	channels, err := h.channels.SyncRegistry(ctx)
	require.NoError(t, err)
	require.Len(t, channels, 2)
	assert.Equal(t, "alpha", channels[0].Name)
	assert.Equal(t, "beta", channels[1].Name)

	raw, err := os.ReadFile(h.ws.RegistryPath())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"-1001"`)
	assert.NotContains(t, string(raw), "stray")
}

func TestChannelsInfo(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.initChannel(t, "tech-news", "-1001")
	h.writeQueue(t, "tech-news", "### 1\n- **Status:** draft\n\n### 2\n- **Status:** pending\n\n### 3\n- **Status:** draft\n")
	_, err := h.dedup.Add(ctx, "tech-news", "10", "Rust release", nil)
	require.NoError(t, err)

	info, err := h.channels.Info(ctx, "tech-news")
	require.NoError(t, err)
	assert.Equal(t, "-1001", info.Channel.ChannelID)
	assert.Equal(t, 1, info.IndexSize)
	assert.Equal(t, 2, info.Drafts)
	assert.Equal(t, 1, info.Pending)
	assert.False(t, info.IndexCorrupt)
}

func TestChannelsRemoteInfo(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.initChannel(t, "unbound", "")
	h.initChannel(t, "tech-news", "-1001")

	_, err := h.channels.RemoteInfo(ctx, "unbound", RemoteOptions{Chat: true})
	require.ErrorIs(t, err, domain.ErrNotBound)

	h.inspector.count = 1250
	h.inspector.admins = []domain.Member{{UserID: 7, Name: "Ann", Status: "creator"}}

	remote, err := h.channels.RemoteInfo(ctx, "tech-news", RemoteOptions{Chat: true, Subscribers: true, Permissions: true, Admins: true})
	require.NoError(t, err)
	require.NotNil(t, remote.Chat)
	assert.Equal(t, "Tech", remote.Chat.Title)
	require.NotNil(t, remote.Subscribers)
	assert.Equal(t, 1250, *remote.Subscribers)
	require.NotNil(t, remote.Bot)
	assert.True(t, remote.Bot.Admin())
	assert.Len(t, remote.Admins, 1)
	assert.Empty(t, remote.Errors)
}

func TestChannelsRemoteInfoKeepsPartialResults(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.initChannel(t, "tech-news", "-1001")
	h.inspector.countErr = errors.New("telegram getChatMemberCount: 403 Forbidden")

	remote, err := h.channels.RemoteInfo(context.Background(), "tech-news", RemoteOptions{Chat: true, Subscribers: true})
	require.NoError(t, err)
	assert.NotNil(t, remote.Chat)
	assert.Nil(t, remote.Subscribers)
	assert.Contains(t, remote.Errors["subscribers"], "403")
}

func TestChannelsConnect(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.initChannel(t, "tech-news", "-1001")

	res, err := h.channels.Connect(ctx, "-1001", "")
	require.NoError(t, err)
	assert.Equal(t, ConnectAlreadyConnected, res.Status)
	assert.Equal(t, "tech-news", res.Channel)

	res, err = h.channels.Connect(ctx, "-1009", "Daily Go")
	require.NoError(t, err)
	assert.Equal(t, ConnectNewChannel, res.Status)
	assert.Empty(t, res.Channel)
	assert.Contains(t, res.Instructions, "-1009 (Daily Go) wants to connect")
	assert.Contains(t, res.Instructions, "tgcm bind <name> --channel-id -1009")

	_, err = h.channels.Connect(ctx, "", "")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestChannelsGetID(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	info, err := h.channels.GetID(ctx, "technews")
	require.NoError(t, err)
	assert.Equal(t, "-1001", info.ID)

	_, err = h.channels.GetID(ctx, "-1001")
	require.NoError(t, err)
	assert.Equal(t, []string{"@technews", "-1001"}, h.inspector.resolved)

	noBot := NewChannels(ChannelsDeps{Channels: h.ws, Queues: h.ws, Indexes: h.ws})
	_, err = noBot.GetID(ctx, "@technews")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tgcm config set bot-token")
}

func TestChannelsPreflight(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.initChannel(t, "alpha", "-1001")
	h.initChannel(t, "beta", "")

	rep, err := h.channels.Preflight(ctx, PreflightInput{TokenSource: ".env", SearchURL: "http://searx.local"})
	require.NoError(t, err)
	assert.False(t, rep.Failed)

	levels := map[string]CheckLevel{}
	for _, item := range rep.Items {
		levels[item.Subject] = item.Level
	}
	assert.Equal(t, CheckOK, levels["Bot token"])
	assert.Equal(t, CheckOK, levels["Bot"])
	assert.Equal(t, CheckOK, levels["SEARXNG_URL"])
	assert.Equal(t, CheckOK, levels[`Channel "alpha"`])
	assert.Equal(t, CheckWarn, levels[`Channel "beta"`])
}

func TestChannelsPreflightFailures(t *testing.T) {
	t.Parallel()

	t.Run("no token", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.initChannel(t, "alpha", "-1001")

		rep, err := h.channels.Preflight(context.Background(), PreflightInput{})
		require.NoError(t, err)
		assert.True(t, rep.Failed)
		assert.Equal(t, CheckFail, rep.Items[0].Level)
		assert.Contains(t, rep.Items[0].Fix, "tgcm config set bot-token")
		assert.Equal(t, CheckWarn, rep.Items[len(rep.Items)-1].Level, "bound channel cannot be verified")
	})

	t.Run("bot not admin", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.initChannel(t, "alpha", "-1001")
		h.inspector.member = domain.Member{Status: "member"}

		rep, err := h.channels.Preflight(context.Background(), PreflightInput{TokenSource: "config file"})
		require.NoError(t, err)
		assert.True(t, rep.Failed)
		last := rep.Items[len(rep.Items)-1]
		assert.Equal(t, CheckFail, last.Level)
		assert.Contains(t, last.Fix, "promote the bot to admin")
	})

	t.Run("group instead of channel", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.initChannel(t, "alpha", "-1001")
		h.inspector.chat.Type = "supergroup"

		rep, err := h.channels.Preflight(context.Background(), PreflightInput{TokenSource: "config file"})
		require.NoError(t, err)
		assert.True(t, rep.Failed)
		assert.Contains(t, rep.Items[len(rep.Items)-1].Detail, "type=supergroup")
	})

	t.Run("no channels", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)

		rep, err := h.channels.Preflight(context.Background(), PreflightInput{TokenSource: "config file", SearchURL: "http://s"})
		require.NoError(t, err)
		assert.False(t, rep.Failed)
		last := rep.Items[len(rep.Items)-1]
		assert.Equal(t, CheckWarn, last.Level)
		assert.Contains(t, last.Fix, "tgcm init")
	})
}
