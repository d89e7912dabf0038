package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ChannelManager/internal/domain"
	"ChannelManager/internal/ports"
)

// indexSnapshot is the dedup index of one channel as read for a command.
type indexSnapshot struct {
	Entries  []domain.IndexEntry
	Location string
	// Corrupt is set when the stored index could not be decoded and was
	// treated as empty.
	Corrupt bool
}

// readIndex loads a channel's dedup index for read-only use. A corrupt
// index degrades to an empty one with a warning so checks are never blocked.
func readIndex(ctx context.Context, opener ports.IndexOpener, channelDir string, logger *slog.Logger) (indexSnapshot, error) {
	store, err := opener.OpenIndexReader(ctx, channelDir)
	switch {
	case errors.Is(err, domain.ErrCorrupt):
		return corruptSnapshot(channelDir, err, logger), nil
	case err != nil:
		return indexSnapshot{}, fmt.Errorf("open index: %w", err)
	}
	defer store.Close()

	snap := indexSnapshot{Location: store.Location()}
	entries, err := store.Load(ctx)
	switch {
	case errors.Is(err, domain.ErrCorrupt):
		return corruptSnapshot(store.Location(), err, logger), nil
	case err != nil:
		return indexSnapshot{}, fmt.Errorf("load index %s: %w", store.Location(), err)
	}
	snap.Entries = entries
	return snap, nil
}

func corruptSnapshot(location string, err error, logger *slog.Logger) indexSnapshot {
	logger.Warn("dedup index unreadable, treating as empty",
		"path", location, "error", err,
		"fix", "run `tgcm dedup rebuild` to regenerate it")
	return indexSnapshot{Location: location, Corrupt: true}
}

// withIndex opens a channel's index for writing and closes it after fn.
func withIndex(ctx context.Context, opener ports.IndexOpener, channelDir string, fn func(store ports.IndexStore) error) error {
	store, err := opener.OpenIndex(ctx, channelDir)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	if err := fn(store); err != nil {
		store.Close()
		return err
	}
	if err := store.Close(); err != nil {
		return fmt.Errorf("close index %s: %w", store.Location(), err)
	}
	return nil
}
