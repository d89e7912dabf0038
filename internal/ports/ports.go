package ports

import (
	"context"

	"ChannelManager/internal/domain"
)

// IndexStore persists the append-only dedup index of one channel.
type IndexStore interface {
	// Load returns all entries. A file that cannot be decoded yields domain.ErrCorrupt.
	Load(ctx context.Context) ([]domain.IndexEntry, error)
	// Append adds entries to the end of the index.
	Append(ctx context.Context, entries ...domain.IndexEntry) error
	// Replace swaps the whole index for entries.
	Replace(ctx context.Context, entries []domain.IndexEntry) error
	// Location names the backing file for messages.
	Location() string
	Close() error
}

// IndexOpener opens the index store kept in a channel directory.
type IndexOpener interface {
	OpenIndex(ctx context.Context, channelDir string) (IndexStore, error)
	// OpenIndexReader opens the index for Load only and never creates it.
	OpenIndexReader(ctx context.Context, channelDir string) (IndexStore, error)
	// DiscardIndex removes an unreadable index so it can be written afresh.
	DiscardIndex(ctx context.Context, channelDir string) error
}

// ChannelRepository reads and writes channel metadata and the derived registry.
type ChannelRepository interface {
	Create(ctx context.Context, ch domain.Channel) error
	Get(ctx context.Context, name string) (domain.Channel, error)
	Save(ctx context.Context, ch domain.Channel) error
	// Scan reads every channel directory, skipping ones without valid metadata.
	Scan(ctx context.Context) ([]domain.Channel, error)
	WriteRegistry(ctx context.Context, channels []domain.Channel) error
	// Remove deletes a channel directory with everything in it.
	Remove(ctx context.Context, name string) error
	ChannelDir(name string) string
}

// QueueRepository loads and stores raw queue files.
type QueueRepository interface {
	// ReadQueue returns the queue content, or nil when the file does not exist.
	ReadQueue(ctx context.Context, channel string) ([]byte, error)
	// WriteQueue replaces the queue file atomically.
	WriteQueue(ctx context.Context, channel string, content []byte) error
	QueuePath(channel string) string
}

// HistorySource fetches a channel's published posts for an index rebuild.
type HistorySource interface {
	Name() string
	Fetch(ctx context.Context, req domain.HistoryRequest) (domain.History, error)
}

// Publisher sends an approved post to the remote channel. Long posts may be
// delivered as several messages; ids are returned in delivery order.
type Publisher interface {
	Publish(ctx context.Context, chatID string, post domain.OutgoingPost) ([]domain.MessageID, error)
}

// ChatResolver looks up public metadata of a remote chat.
type ChatResolver interface {
	ResolveChat(ctx context.Context, chatID string) (domain.ChatInfo, error)
}

// BotInspector exposes the read-only Bot API calls used by preflight checks
// and channel info.
type BotInspector interface {
	ChatResolver
	Identity(ctx context.Context) (domain.BotIdentity, error)
	Member(ctx context.Context, chatID string, userID int64) (domain.Member, error)
	Admins(ctx context.Context, chatID string) ([]domain.Member, error)
	SubscriberCount(ctx context.Context, chatID string) (int, error)
}
