package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ChannelManager/internal/domain"
	"ChannelManager/internal/ports"
	"ChannelManager/internal/queue"
)

// ChannelsDeps wires the adapters used by channel lifecycle use cases.
type ChannelsDeps struct {
	Channels ports.ChannelRepository
	Queues   ports.QueueRepository
	Indexes  ports.IndexOpener
	// Inspector is optional; remote info and preflight need it.
	Inspector ports.BotInspector
	Logger    *slog.Logger
	Now       func() time.Time
}

// Channels manages local channel workspaces and their registry.
type Channels struct {
	channels  ports.ChannelRepository
	queues    ports.QueueRepository
	indexes   ports.IndexOpener
	inspector ports.BotInspector
	logger    *slog.Logger
	now       func() time.Time
}

// NewChannels constructs the channel use cases.
func NewChannels(deps ChannelsDeps) *Channels {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Channels{
		channels:  deps.Channels,
		queues:    deps.Queues,
		indexes:   deps.Indexes,
		inspector: deps.Inspector,
		logger:    logger.With("component", "channels"),
		now:       now,
	}
}

// Init creates an unbound channel with an empty index and queue, then
// refreshes the registry.
func (c *Channels) Init(ctx context.Context, name string) (domain.Channel, error) {
	if err := domain.ValidateChannelName(name); err != nil {
		return domain.Channel{}, err
	}

	ch := domain.Channel{
		Name:      name,
		Status:    domain.ChannelUnbound,
		CreatedAt: c.now().UTC().Truncate(time.Second),
	}
	if err := c.channels.Create(ctx, ch); err != nil {
		return domain.Channel{}, err
	}

	err := withIndex(ctx, c.indexes, c.channels.ChannelDir(name), func(store ports.IndexStore) error {
		return store.Replace(ctx, nil)
	})
	if err == nil {
		err = c.queues.WriteQueue(ctx, name, []byte{})
	}
	if err != nil {
		return domain.Channel{}, c.undoInit(ctx, name, err)
	}

	c.logger.Info("channel initialized", "channel", name, "dir", c.channels.ChannelDir(name))
	if _, err := c.SyncRegistry(ctx); err != nil {
		return ch, err
	}
	return ch, nil
}

// undoInit removes a half-created channel so init can be retried.
func (c *Channels) undoInit(ctx context.Context, name string, cause error) error {
	dir := c.channels.ChannelDir(name)
	// Cleanup must run even when ctx was cancelled mid-init.
	if err := c.channels.Remove(context.WithoutCancel(ctx), name); err != nil {
		c.logger.Error("channel cleanup failed", "channel", name, "dir", dir, "error", err)
		return fmt.Errorf("init channel %s: %w; remove %s by hand, then retry `tgcm init %s`", name, cause, dir, name)
	}
	c.logger.Warn("channel init rolled back", "channel", name, "error", cause)
	return fmt.Errorf("init channel %s: %w; nothing was kept, retry `tgcm init %s`", name, cause, name)
}

// BindResult reports the outcome of a bind.
type BindResult struct {
	Channel domain.Channel `json:"-"`
	// Previous is the id the channel was bound to before an overwrite.
	Previous string `json:"previous,omitempty"`
	Changed  bool   `json:"changed"`
}

// Bind attaches a remote channel id. Binding to the same id again is a
// no-op; a different id is refused unless force is set.
func (c *Channels) Bind(ctx context.Context, name, channelID string, force bool) (BindResult, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return BindResult{}, fmt.Errorf("bind %s: channel id is empty: %w", name, domain.ErrInvalidInput)
	}

	ch, err := c.channels.Get(ctx, name)
	if err != nil {
		return BindResult{}, err
	}

	switch {
	case ch.ChannelID == channelID:
		if ch.Status != domain.ChannelConnected {
			ch.Status = domain.ChannelConnected
			if err := c.channels.Save(ctx, ch); err != nil {
				return BindResult{}, err
			}
		}
		return BindResult{Channel: ch}, nil
	case ch.Bound() && !force:
		return BindResult{}, fmt.Errorf("channel %s is already bound to %s; pass --force to rebind it to %s: %w",
			name, ch.ChannelID, channelID, domain.ErrConflict)
	}

	res := BindResult{Previous: ch.ChannelID, Changed: true}
	if res.Previous != "" {
		c.logger.Warn("rebinding channel", "channel", name, "from", res.Previous, "to", channelID)
	}

	ch.ChannelID = channelID
	ch.Status = ch.DerivedStatus()
	if err := c.channels.Save(ctx, ch); err != nil {
		return BindResult{}, err
	}
	res.Channel = ch

	c.logger.Info("channel bound", "channel", name, "channelId", channelID)
	if _, err := c.SyncRegistry(ctx); err != nil {
		return res, err
	}
	return res, nil
}

// List returns every channel with valid metadata, sorted by name.
func (c *Channels) List(ctx context.Context) ([]domain.Channel, error) {
	return c.channels.Scan(ctx)
}

// SyncRegistry regenerates the registry file from channel metadata.
func (c *Channels) SyncRegistry(ctx context.Context) ([]domain.Channel, error) {
	channels, err := c.channels.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan channels: %w", err)
	}
	if err := c.channels.WriteRegistry(ctx, channels); err != nil {
		return nil, err
	}
	c.logger.Debug("registry synced", "channels", len(channels))
	return channels, nil
}

// ChannelInfo is the local state of one channel.
type ChannelInfo struct {
	Channel      domain.Channel `json:"-"`
	IndexPath    string         `json:"indexPath"`
	IndexSize    int            `json:"published"`
	IndexCorrupt bool           `json:"indexCorrupt,omitempty"`
	QueuePath    string         `json:"queuePath"`
	Drafts       int            `json:"draft"`
	Pending      int            `json:"pending"`
}

// Info reads the local state of a channel.
func (c *Channels) Info(ctx context.Context, name string) (ChannelInfo, error) {
	ch, err := c.channels.Get(ctx, name)
	if err != nil {
		return ChannelInfo{}, err
	}

	snap, err := readIndex(ctx, c.indexes, c.channels.ChannelDir(name), c.logger)
	if err != nil {
		return ChannelInfo{}, err
	}
	raw, err := c.queues.ReadQueue(ctx, name)
	if err != nil {
		return ChannelInfo{}, err
	}
	counts := queue.Parse(raw).Counts()

	return ChannelInfo{
		Channel:      ch,
		IndexPath:    snap.Location,
		IndexSize:    len(snap.Entries),
		IndexCorrupt: snap.Corrupt,
		QueuePath:    c.queues.QueuePath(name),
		Drafts:       counts[domain.QueueDraft],
		Pending:      counts[domain.QueuePending],
	}, nil
}

// RemoteOptions selects the Bot API lookups done by RemoteInfo.
type RemoteOptions struct {
	Chat        bool
	Subscribers bool
	Permissions bool
	Admins      bool
}

// Any reports whether at least one lookup is requested.
func (o RemoteOptions) Any() bool {
	return o.Chat || o.Subscribers || o.Permissions || o.Admins
}

// RemoteInfo is the Telegram-side view of a bound channel. Failed lookups
// are recorded in Errors so the other sections can still be shown.
type RemoteInfo struct {
	Chat        *domain.ChatInfo  `json:"chat,omitempty"`
	Subscribers *int              `json:"subscribers,omitempty"`
	Bot         *domain.Member    `json:"permissions,omitempty"`
	Admins      []domain.Member   `json:"admins,omitempty"`
	Errors      map[string]string `json:"errors,omitempty"`
}

// RemoteInfo queries the Bot API about a bound channel.
func (c *Channels) RemoteInfo(ctx context.Context, name string, opts RemoteOptions) (RemoteInfo, error) {
	ch, err := c.channels.Get(ctx, name)
	if err != nil {
		return RemoteInfo{}, err
	}
	if !ch.Bound() {
		return RemoteInfo{}, fmt.Errorf("channel %s is not bound; run `tgcm bind %s --channel-id <id>`: %w", name, name, domain.ErrNotBound)
	}
	if c.inspector == nil {
		return RemoteInfo{}, errNoBot
	}

	out := RemoteInfo{}
	fail := func(section string, err error) {
		if out.Errors == nil {
			out.Errors = map[string]string{}
		}
		out.Errors[section] = err.Error()
		c.logger.Warn("telegram lookup failed", "channel", name, "section", section, "error", err)
	}

	if opts.Chat {
		if chat, err := c.inspector.ResolveChat(ctx, ch.ChannelID); err != nil {
			fail("chat", err)
		} else {
			out.Chat = &chat
		}
	}
	if opts.Subscribers {
		if n, err := c.inspector.SubscriberCount(ctx, ch.ChannelID); err != nil {
			fail("subscribers", err)
		} else {
			out.Subscribers = &n
		}
	}
	if opts.Permissions {
		if me, err := c.inspector.Identity(ctx); err != nil {
			fail("permissions", err)
		} else if member, err := c.inspector.Member(ctx, ch.ChannelID, me.ID); err != nil {
			fail("permissions", err)
		} else {
			out.Bot = &member
		}
	}
	if opts.Admins {
		if admins, err := c.inspector.Admins(ctx, ch.ChannelID); err != nil {
			fail("admins", err)
		} else {
			out.Admins = admins
		}
	}
	return out, nil
}

// Connect statuses.
const (
	ConnectAlreadyConnected = "already_connected"
	ConnectNewChannel       = "new_channel"
)

// ConnectResult answers a remote channel asking to be connected.
type ConnectResult struct {
	Status       string `json:"status"`
	Channel      string `json:"channel,omitempty"`
	ChannelID    string `json:"channelId"`
	Instructions string `json:"instructions,omitempty"`
}

// Connect looks for a local channel already bound to channelID and
// otherwise returns the commands that would connect it.
func (c *Channels) Connect(ctx context.Context, channelID, title string) (ConnectResult, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return ConnectResult{}, fmt.Errorf("connect: channel id is empty: %w", domain.ErrInvalidInput)
	}

	channels, err := c.channels.Scan(ctx)
	if err != nil {
		return ConnectResult{}, fmt.Errorf("scan channels: %w", err)
	}
	for _, ch := range channels {
		if ch.ChannelID == channelID {
			return ConnectResult{Status: ConnectAlreadyConnected, Channel: ch.Name, ChannelID: channelID}, nil
		}
	}

	titlePart := ""
	if title = strings.TrimSpace(title); title != "" {
		titlePart = " (" + title + ")"
	}
	return ConnectResult{
		Status:    ConnectNewChannel,
		ChannelID: channelID,
		Instructions: fmt.Sprintf("Channel %s%s wants to connect.\nRun: tgcm init <name> && tgcm bind <name> --channel-id %s",
			channelID, titlePart, channelID),
	}, nil
}

// GetID resolves a @username or numeric id to the chat's metadata.
func (c *Channels) GetID(ctx context.Context, ref string) (domain.ChatInfo, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return domain.ChatInfo{}, fmt.Errorf("get-id: give a @username or a numeric id: %w", domain.ErrInvalidInput)
	}
	if c.inspector == nil {
		return domain.ChatInfo{}, errNoBot
	}
	if !strings.HasPrefix(ref, "@") && !strings.HasPrefix(ref, "-") && !isDigits(ref) {
		ref = "@" + ref
	}
	info, err := c.inspector.ResolveChat(ctx, ref)
	if err != nil {
		return domain.ChatInfo{}, fmt.Errorf("could not resolve %s; check the username or id and the bot token: %w", ref, err)
	}
	return info, nil
}

var errNoBot = errors.New("bot token not found (tried --bot-token, .env, TELEGRAM_BOT_TOKEN, config file); run `tgcm config set bot-token <token>`")

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
