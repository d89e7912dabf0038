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

	"ChannelManager/internal/domain"
	"ChannelManager/internal/ports"
	"ChannelManager/pkg/atomicfile"
)

// JSONIndexFileName is the dedup index file inside a channel directory.
const JSONIndexFileName = "content-index.json"

// JSONIndex stores the dedup index as a versioned JSON document.
type JSONIndex struct {
	path   string
	logger *slog.Logger
}

var _ ports.IndexStore = (*JSONIndex)(nil)

type indexDocument struct {
	Version int                 `json:"version"`
	Posts   []domain.IndexEntry `json:"posts"`
}

// NewJSONIndex returns a store backed by the file at path.
func NewJSONIndex(path string, logger *slog.Logger) *JSONIndex {
	if logger == nil {
		logger = slog.Default()
	}
	return &JSONIndex{path: path, logger: logger}
}

// Location returns the index file path.
func (s *JSONIndex) Location() string {
	return s.path
}

// Close is a no-op for file-backed indexes.
func (s *JSONIndex) Close() error {
	return nil
}

// Load reads the index. A missing file is an empty index.
func (s *JSONIndex) Load(ctx context.Context) ([]domain.IndexEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []domain.IndexEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read index %s: %w", s.path, err)
	}

	return s.decode(raw)
}

func (s *JSONIndex) decode(raw []byte) ([]domain.IndexEntry, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return []domain.IndexEntry{}, nil
	}

	var entries []domain.IndexEntry
	switch raw[0] {
	case '[':
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("decode index %s: %v: %w", s.path, err, domain.ErrCorrupt)
		}
	case '{':
		var doc indexDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode index %s: %v: %w", s.path, err, domain.ErrCorrupt)
		}
		if doc.Version > domain.IndexVersion {
			s.logger.Warn("index written by a newer version, reading best-effort",
				"path", s.path, "version", doc.Version, "supported", domain.IndexVersion)
		}
		entries = doc.Posts
	default:
		return nil, fmt.Errorf("decode index %s: unexpected content: %w", s.path, domain.ErrCorrupt)
	}

	return normalizeEntries(entries), nil
}

// Append adds entries to the index. It refuses to overwrite a corrupt file.
func (s *JSONIndex) Append(ctx context.Context, entries ...domain.IndexEntry) error {
	current, err := s.Load(ctx)
	if errors.Is(err, domain.ErrCorrupt) {
		return fmt.Errorf("refusing to overwrite %s; fix the file or run `tgcm dedup rebuild`: %w", s.path, err)
	}
	if err != nil {
		return err
	}

	return s.write(append(current, entries...))
}

// Replace overwrites the index with entries.
func (s *JSONIndex) Replace(ctx context.Context, entries []domain.IndexEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.write(normalizeEntries(entries))
}

func (s *JSONIndex) write(entries []domain.IndexEntry) error {
	data, err := encodeJSON(indexDocument{Version: domain.IndexVersion, Posts: normalizeEntries(entries)})
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	if err := atomicfile.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write index %s: %w", s.path, err)
	}
	return nil
}

func normalizeEntries(entries []domain.IndexEntry) []domain.IndexEntry {
	out := make([]domain.IndexEntry, len(entries))
	for i, e := range entries {
		if e.Links == nil {
			e.Links = []string{}
		}
		if e.Keywords == nil {
			e.Keywords = []string{}
		}
		out[i] = e
	}
	return out
}
