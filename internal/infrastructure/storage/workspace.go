package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ChannelManager/internal/domain"
	"ChannelManager/internal/ports"
	"ChannelManager/pkg/atomicfile"
)

// Workspace layout: <workspace>/tgcm/<channel>/{channel.json, content-index.*, content-queue.md}.
const (
	RootDirName      = "tgcm"
	ChannelFileName  = "channel.json"
	QueueFileName    = "content-queue.md"
	RegistryFileName = "channels.json"

	createdAtLayout = "2006-01-02T15:04:05Z"
)

// Index backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Workspace is the file-backed store for channel metadata, queues and indexes.
type Workspace struct {
	root    string
	backend string
	logger  *slog.Logger
}

var (
	_ ports.ChannelRepository = (*Workspace)(nil)
	_ ports.QueueRepository   = (*Workspace)(nil)
	_ ports.IndexOpener       = (*Workspace)(nil)
)

// NewWorkspace returns a store rooted at <workspace>/tgcm.
func NewWorkspace(workspace, backend string, logger *slog.Logger) (*Workspace, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch backend {
	case "":
		backend = BackendJSON
	case BackendJSON, BackendSQLite:
	default:
		return nil, fmt.Errorf("unknown index backend %q (expected %s or %s): %w",
			backend, BackendJSON, BackendSQLite, domain.ErrInvalidInput)
	}

	abs, err := filepath.Abs(workspace)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace %s: %w", workspace, err)
	}

	return &Workspace{
		root:    filepath.Join(abs, RootDirName),
		backend: backend,
		logger:  logger,
	}, nil
}

// Root returns the tgcm directory.
func (w *Workspace) Root() string {
	return w.root
}

// ChannelDir returns the directory of a channel.
func (w *Workspace) ChannelDir(name string) string {
	return filepath.Join(w.root, name)
}

// RegistryPath returns the derived registry file.
func (w *Workspace) RegistryPath() string {
	return filepath.Join(w.root, RegistryFileName)
}

// QueuePath returns the queue file of a channel.
func (w *Workspace) QueuePath(channel string) string {
	return filepath.Join(w.ChannelDir(channel), QueueFileName)
}

func (w *Workspace) metadataPath(name string) string {
	return filepath.Join(w.ChannelDir(name), ChannelFileName)
}

// Create makes the channel directory and writes its metadata. An existing
// directory yields domain.ErrAlreadyExists and is left untouched.
func (w *Workspace) Create(ctx context.Context, ch domain.Channel) error {
	if err := domain.ValidateChannelName(ch.Name); err != nil {
		return err
	}
	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", w.root, err)
	}

	dir := w.ChannelDir(ch.Name)
	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("channel %q already exists at %s: %w", ch.Name, dir, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("create channel dir %s: %w", dir, err)
	}

	return w.Save(ctx, ch)
}

// Remove deletes a channel directory. A missing directory is not an error.
func (w *Workspace) Remove(ctx context.Context, name string) error {
	if err := domain.ValidateChannelName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.RemoveAll(w.ChannelDir(name)); err != nil {
		return fmt.Errorf("remove channel dir %s: %w", w.ChannelDir(name), err)
	}
	return nil
}

// Get reads a channel's metadata.
func (w *Workspace) Get(ctx context.Context, name string) (domain.Channel, error) {
	if err := domain.ValidateChannelName(name); err != nil {
		return domain.Channel{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Channel{}, err
	}

	path := w.metadataPath(name)
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if _, dirErr := os.Stat(w.ChannelDir(name)); dirErr == nil {
			return domain.Channel{}, fmt.Errorf("channel %q has no %s; recreate it with `tgcm init %s` after moving the directory away: %w",
				name, ChannelFileName, name, domain.ErrNotFound)
		}
		return domain.Channel{}, fmt.Errorf("channel %q not found; create it with `tgcm init %s`: %w", name, name, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Channel{}, fmt.Errorf("read %s: %w", path, err)
	}

	return w.decodeChannel(path, raw)
}

// Save writes a channel's metadata atomically.
func (w *Workspace) Save(ctx context.Context, ch domain.Channel) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encodeJSON(toRecord(ch))
	if err != nil {
		return fmt.Errorf("encode channel %q: %w", ch.Name, err)
	}
	path := w.metadataPath(ch.Name)
	if err := atomicfile.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Scan reads every channel directory in name order. Directories without
// readable metadata are skipped with a warning.
func (w *Workspace) Scan(ctx context.Context) ([]domain.Channel, error) {
	entries, err := os.ReadDir(w.root)
	if errors.Is(err, fs.ErrNotExist) {
		return []domain.Channel{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", w.root, err)
	}

	channels := []domain.Channel{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		path := w.metadataPath(entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			w.logger.Warn("skipping channel directory", "dir", entry.Name(), "error", err)
			continue
		}
		ch, err := w.decodeChannel(path, raw)
		if err != nil {
			w.logger.Warn("skipping channel directory", "dir", entry.Name(), "error", err)
			continue
		}
		if ch.Name != entry.Name() {
			w.logger.Warn("channel name differs from directory", "dir", entry.Name(), "name", ch.Name)
		}
		channels = append(channels, ch)
	}

	return channels, nil
}

// WriteRegistry replaces the derived registry file.
func (w *Workspace) WriteRegistry(ctx context.Context, channels []domain.Channel) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	records := make([]channelRecord, len(channels))
	for i, ch := range channels {
		records[i] = toRecord(ch)
	}
	data, err := encodeJSON(records)
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}

	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", w.root, err)
	}
	if err := atomicfile.WriteFile(w.RegistryPath(), data, 0o644); err != nil {
		return fmt.Errorf("write registry %s: %w", w.RegistryPath(), err)
	}
	return nil
}

// ReadQueue returns the raw queue file, or nil when it does not exist.
func (w *Workspace) ReadQueue(ctx context.Context, channel string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(w.QueuePath(channel))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read queue %s: %w", w.QueuePath(channel), err)
	}
	return raw, nil
}

// WriteQueue replaces the queue file atomically.
func (w *Workspace) WriteQueue(ctx context.Context, channel string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := atomicfile.WriteFile(w.QueuePath(channel), content, 0o644); err != nil {
		return fmt.Errorf("write queue %s: %w", w.QueuePath(channel), err)
	}
	return nil
}

// OpenIndex opens the dedup index of a channel directory with the configured backend.
func (w *Workspace) OpenIndex(ctx context.Context, channelDir string) (ports.IndexStore, error) {
	switch w.backend {
	case BackendSQLite:
		return OpenSQLiteIndex(ctx, filepath.Join(channelDir, SQLiteIndexFileName))
	default:
		return NewJSONIndex(filepath.Join(channelDir, JSONIndexFileName), w.logger.With("component", "index")), nil
	}
}

// OpenIndexReader opens the dedup index of a channel directory for loading
// only. Nothing is created on disk when the index does not exist yet.
func (w *Workspace) OpenIndexReader(_ context.Context, channelDir string) (ports.IndexStore, error) {
	switch w.backend {
	case BackendSQLite:
		return OpenSQLiteIndexReader(filepath.Join(channelDir, SQLiteIndexFileName))
	default:
		return NewJSONIndex(filepath.Join(channelDir, JSONIndexFileName), w.logger.With("component", "index")), nil
	}
}

// DiscardIndex deletes the index files of a channel directory so the next
// OpenIndex starts from an empty index.
func (w *Workspace) DiscardIndex(ctx context.Context, channelDir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var names []string
	switch w.backend {
	case BackendSQLite:
		base := filepath.Join(channelDir, SQLiteIndexFileName)
		names = []string{base, base + "-wal", base + "-shm"}
	default:
		names = []string{filepath.Join(channelDir, JSONIndexFileName)}
	}
	for _, name := range names {
		if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("discard index: %w", err)
		}
	}
	w.logger.Warn("index discarded", "dir", channelDir, "backend", w.backend)
	return nil
}

func (w *Workspace) decodeChannel(path string, raw []byte) (domain.Channel, error) {
	var rec channelRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.Channel{}, fmt.Errorf("decode %s: %v: %w", path, err, domain.ErrCorrupt)
	}
	if rec.Name == "" {
		return domain.Channel{}, fmt.Errorf("decode %s: missing name: %w", path, domain.ErrCorrupt)
	}

	ch := domain.Channel{Name: rec.Name, ChannelID: string(rec.ChannelID)}
	if rec.CreatedAt != "" {
		if ts, err := time.Parse(time.RFC3339, rec.CreatedAt); err == nil {
			ch.CreatedAt = ts.UTC()
		} else {
			w.logger.Warn("unparseable createdAt", "path", path, "value", rec.CreatedAt)
		}
	}

	stored, known := domain.ParseChannelStatus(rec.Status)
	ch.Status = ch.DerivedStatus()
	if !known || stored != ch.Status {
		w.logger.Warn("channel status disagrees with channelId, using derived status",
			"channel", ch.Name, "stored", rec.Status, "derived", ch.Status)
	}

	return ch, nil
}

type channelRecord struct {
	Name      string     `json:"name"`
	CreatedAt string     `json:"createdAt"`
	ChannelID optionalID `json:"channelId"`
	Status    string     `json:"status"`
}

func toRecord(ch domain.Channel) channelRecord {
	rec := channelRecord{
		Name:      ch.Name,
		ChannelID: optionalID(ch.ChannelID),
		Status:    string(ch.DerivedStatus()),
	}
	if !ch.CreatedAt.IsZero() {
		rec.CreatedAt = ch.CreatedAt.UTC().Format(createdAtLayout)
	}
	return rec
}

// optionalID is a remote id written as a string or null. Hand-edited files
// may carry a bare number, which is accepted on read.
type optionalID string

func (v optionalID) MarshalJSON() ([]byte, error) {
	if v == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(v))
}

func (v *optionalID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*v = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = optionalID(strings.TrimSpace(s))
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("channelId: %w", err)
		}
		*v = optionalID(n.String())
	}
	return nil
}

func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
