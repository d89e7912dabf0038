package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"ChannelManager/internal/dedup"
	"ChannelManager/internal/domain"
	"ChannelManager/internal/history"
	"ChannelManager/internal/ports"
)

// rebuildTopicLimit caps the topic derived from a fetched post.
const rebuildTopicLimit = 200

// DedupDeps wires the adapters used by the dedup use cases.
type DedupDeps struct {
	Channels ports.ChannelRepository
	Indexes  ports.IndexOpener
	Sources  *history.Registry
	// Resolver looks up a bound channel's public username for web rebuilds.
	Resolver ports.ChatResolver
	Matcher  *dedup.Matcher
	Logger   *slog.Logger
	// PageLimit caps paginated history fetches.
	PageLimit int
}

// Dedup checks candidates against a channel's index and maintains it.
type Dedup struct {
	channels  ports.ChannelRepository
	indexes   ports.IndexOpener
	sources   *history.Registry
	resolver  ports.ChatResolver
	matcher   *dedup.Matcher
	logger    *slog.Logger
	pageLimit int
}

// NewDedup constructs the dedup use cases.
func NewDedup(deps DedupDeps) *Dedup {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	matcher := deps.Matcher
	if matcher == nil {
		matcher = dedup.NewMatcher(dedup.DefaultConfig())
	}
	return &Dedup{
		channels:  deps.Channels,
		indexes:   deps.Indexes,
		sources:   deps.Sources,
		resolver:  deps.Resolver,
		matcher:   matcher,
		logger:    logger.With("component", "dedup"),
		pageLimit: deps.PageLimit,
	}
}

// CheckResult is a duplicate decision plus the state of the index it used.
type CheckResult struct {
	dedup.Decision
	IndexCorrupt bool `json:"indexCorrupt,omitempty"`
}

// Check reports whether topic/links duplicate anything in the channel index.
// It never writes.
func (d *Dedup) Check(ctx context.Context, channel, topic string, links []string) (CheckResult, error) {
	if strings.TrimSpace(topic) == "" && len(links) == 0 {
		return CheckResult{}, fmt.Errorf("dedup check: give a topic or at least one link: %w", domain.ErrInvalidInput)
	}
	if _, err := d.channels.Get(ctx, channel); err != nil {
		return CheckResult{}, err
	}

	snap, err := readIndex(ctx, d.indexes, d.channels.ChannelDir(channel), d.logger)
	if err != nil {
		return CheckResult{}, err
	}

	decision := d.matcher.Check(snap.Entries, topic, links)
	d.logger.Debug("dedup check",
		"channel", channel, "compared", decision.ComparedCount,
		"duplicate", decision.Duplicate, "matches", len(decision.Matches))
	return CheckResult{Decision: decision, IndexCorrupt: snap.Corrupt}, nil
}

// Add appends an entry to the channel index. It does not check for
// duplicates.
func (d *Dedup) Add(ctx context.Context, channel string, id domain.MessageID, topic string, links []string) (domain.IndexEntry, error) {
	if strings.TrimSpace(topic) == "" {
		return domain.IndexEntry{}, fmt.Errorf("dedup add: topic is empty: %w", domain.ErrInvalidInput)
	}
	if _, err := d.channels.Get(ctx, channel); err != nil {
		return domain.IndexEntry{}, err
	}

	entry := d.matcher.NewEntry(id, topic, links)
	err := withIndex(ctx, d.indexes, d.channels.ChannelDir(channel), func(store ports.IndexStore) error {
		if err := store.Append(ctx, entry); err != nil {
			return fmt.Errorf("channel %s: %w", channel, err)
		}
		return nil
	})
	if err != nil {
		return domain.IndexEntry{}, err
	}

	d.logger.Info("index entry added", "channel", channel, "msgId", string(id), "keywords", len(entry.Keywords))
	return entry, nil
}

// RebuildOptions selects where a rebuild reads history from.
type RebuildOptions struct {
	// Source is a registered history source name, "tme" or "export".
	Source string
	// Username overrides the public username used by the tme source.
	Username string
	// Path is the export file for the export source.
	Path string
	// PageLimit overrides the configured page limit when positive.
	PageLimit int
}

// RebuildResult is a candidate replacement index. It is best-effort: when
// Complete is false the source could not prove it returned every post.
type RebuildResult struct {
	Source   string              `json:"source"`
	Entries  []domain.IndexEntry `json:"posts"`
	Complete bool                `json:"complete"`
	Notes    []string            `json:"notes,omitempty"`
	// Existing is the size of the current index.
	Existing int `json:"existing"`
}

// Rebuild fetches a channel's published history and converts it into index
// entries. It does not write; see Apply.
func (d *Dedup) Rebuild(ctx context.Context, channel string, opts RebuildOptions) (RebuildResult, error) {
	ch, err := d.channels.Get(ctx, channel)
	if err != nil {
		return RebuildResult{}, err
	}
	if d.sources == nil {
		return RebuildResult{}, fmt.Errorf("dedup rebuild: no history sources configured")
	}
	source, err := d.sources.Resolve(opts.Source)
	if err != nil {
		return RebuildResult{}, err
	}

	req := domain.HistoryRequest{
		Channel:   channel,
		Username:  strings.TrimPrefix(strings.TrimSpace(opts.Username), "@"),
		Path:      opts.Path,
		PageLimit: d.pageLimit,
	}
	if opts.PageLimit > 0 {
		req.PageLimit = opts.PageLimit
	}
	if source.Name() == "tme" && req.Username == "" {
		req.Username, err = d.publicUsername(ctx, ch)
		if err != nil {
			return RebuildResult{}, err
		}
	}

	hist, err := source.Fetch(ctx, req)
	if err != nil {
		return RebuildResult{}, fmt.Errorf("fetch %s history for channel %s: %w", source.Name(), channel, err)
	}

	result := RebuildResult{
		Source:   hist.Source,
		Complete: hist.Complete,
		Notes:    hist.Notes,
		Entries:  make([]domain.IndexEntry, 0, len(hist.Posts)),
	}
	skipped := 0
	for _, post := range hist.Posts {
		topic := firstLine(post.Text, rebuildTopicLimit)
		if topic == "" {
			skipped++
			continue
		}
		result.Entries = append(result.Entries, d.matcher.NewEntry(post.ID, topic, post.Links))
	}
	if skipped > 0 {
		result.Notes = append(result.Notes, fmt.Sprintf("%d posts without text were skipped", skipped))
	}

	snap, err := readIndex(ctx, d.indexes, d.channels.ChannelDir(channel), d.logger)
	if err != nil {
		return RebuildResult{}, err
	}
	result.Existing = len(snap.Entries)

	d.logger.Info("history fetched",
		"channel", channel, "source", result.Source, "posts", len(result.Entries),
		"complete", result.Complete, "existing", result.Existing)
	return result, nil
}

func (d *Dedup) publicUsername(ctx context.Context, ch domain.Channel) (string, error) {
	if !ch.Bound() {
		return "", fmt.Errorf("channel %s is not bound; run `tgcm bind %s --channel-id <id>` or pass --username: %w",
			ch.Name, ch.Name, domain.ErrNotBound)
	}
	if d.resolver == nil {
		return "", fmt.Errorf("channel %s: cannot look up the public username without a bot token; pass --username", ch.Name)
	}
	info, err := d.resolver.ResolveChat(ctx, ch.ChannelID)
	if err != nil {
		return "", fmt.Errorf("look up channel %s (%s): %w", ch.Name, ch.ChannelID, err)
	}
	if info.Username == "" {
		return "", fmt.Errorf("channel %s has no public username; its history is only available via --source export: %w",
			ch.Name, domain.ErrInvalidInput)
	}
	return info.Username, nil
}

// ApplyOptions controls how a rebuild result is written.
type ApplyOptions struct {
	// Merge appends only posts whose id is not yet indexed instead of
	// replacing the index.
	Merge bool
	// Force allows a partial result to replace a larger index.
	Force bool
}

// ApplyResult reports what Apply wrote.
type ApplyResult struct {
	Mode    string `json:"mode"`
	Written int    `json:"written"`
	Total   int    `json:"total"`
}

// Apply writes a rebuild result to the channel index.
func (d *Dedup) Apply(ctx context.Context, channel string, result RebuildResult, opts ApplyOptions) (ApplyResult, error) {
	if _, err := d.channels.Get(ctx, channel); err != nil {
		return ApplyResult{}, err
	}

	var out ApplyResult
	dir := d.channels.ChannelDir(channel)
	write := func(store ports.IndexStore) error {
		if opts.Merge {
			existing, err := store.Load(ctx)
			if err != nil {
				return fmt.Errorf("merge into %s: %w; rebuild without --merge to replace it", store.Location(), err)
			}
			fresh := unseen(existing, result.Entries)
			if len(fresh) > 0 {
				if err := store.Append(ctx, fresh...); err != nil {
					return err
				}
			}
			out = ApplyResult{Mode: "merge", Written: len(fresh), Total: len(existing) + len(fresh)}
			return nil
		}

		if !result.Complete && !opts.Force && len(result.Entries) < result.Existing {
			return fmt.Errorf("partial %s history has %d posts but the index of channel %s holds %d; rerun with --merge to add new posts or --force to replace: %w",
				result.Source, len(result.Entries), channel, result.Existing, domain.ErrConflict)
		}
		if err := store.Replace(ctx, result.Entries); err != nil {
			return err
		}
		out = ApplyResult{Mode: "replace", Written: len(result.Entries), Total: len(result.Entries)}
		return nil
	}

	err := withIndex(ctx, d.indexes, dir, write)
	if errors.Is(err, domain.ErrCorrupt) && !opts.Merge {
		d.logger.Warn("replacing unreadable index", "channel", channel, "error", err)
		if err := d.indexes.DiscardIndex(ctx, dir); err != nil {
			return ApplyResult{}, err
		}
		err = withIndex(ctx, d.indexes, dir, write)
	}
	if err != nil {
		return ApplyResult{}, err
	}

	if !result.Complete {
		d.logger.Warn("index written from partial history", "channel", channel, "source", result.Source, "mode", out.Mode)
	}
	d.logger.Info("index rebuilt", "channel", channel, "mode", out.Mode, "written", out.Written, "total", out.Total)
	return out, nil
}

// unseen returns the candidates whose id is not in existing. Candidates
// without an id are never merged since they cannot be told apart.
func unseen(existing, candidates []domain.IndexEntry) []domain.IndexEntry {
	seen := make(map[domain.MessageID]struct{}, len(existing))
	for _, e := range existing {
		if e.ID != "" {
			seen[e.ID] = struct{}{}
		}
	}
	var fresh []domain.IndexEntry
	for _, c := range candidates {
		if c.ID == "" {
			continue
		}
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		fresh = append(fresh, c)
	}
	return fresh
}

// firstLine returns the first non-blank line of text, at most limit runes.
func firstLine(text string, limit int) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) > limit {
			line = string([]rune(line)[:limit])
		}
		return line
	}
	return ""
}
