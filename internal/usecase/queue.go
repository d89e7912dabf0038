package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"ChannelManager/internal/dedup"
	"ChannelManager/internal/domain"
	"ChannelManager/internal/ports"
	"ChannelManager/internal/queue"
)

// QueueDeps wires the adapters used by queue use cases.
type QueueDeps struct {
	Channels ports.ChannelRepository
	Queues   ports.QueueRepository
	Indexes  ports.IndexOpener
	// Publisher is optional; only Publish needs it.
	Publisher ports.Publisher
	Matcher   *dedup.Matcher
	Logger    *slog.Logger
}

// Queue manages the post queue of a channel.
type Queue struct {
	channels  ports.ChannelRepository
	queues    ports.QueueRepository
	indexes   ports.IndexOpener
	publisher ports.Publisher
	matcher   *dedup.Matcher
	logger    *slog.Logger
}

// NewQueue constructs the queue use cases.
func NewQueue(deps QueueDeps) *Queue {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	matcher := deps.Matcher
	if matcher == nil {
		matcher = dedup.NewMatcher(dedup.DefaultConfig())
	}
	return &Queue{
		channels:  deps.Channels,
		queues:    deps.Queues,
		indexes:   deps.Indexes,
		publisher: deps.Publisher,
		matcher:   matcher,
		logger:    logger.With("component", "queue"),
	}
}

// load reads and parses the queue of an existing channel.
func (q *Queue) load(ctx context.Context, channel string) (domain.Channel, *queue.Document, error) {
	ch, err := q.channels.Get(ctx, channel)
	if err != nil {
		return domain.Channel{}, nil, err
	}
	raw, err := q.queues.ReadQueue(ctx, channel)
	if err != nil {
		return domain.Channel{}, nil, err
	}
	return ch, queue.Parse(raw), nil
}

// find returns the position of the single item numbered ordinal.
func (q *Queue) find(channel string, doc *queue.Document, ordinal int) (int, error) {
	positions := doc.Find(ordinal)
	switch len(positions) {
	case 0:
		return 0, fmt.Errorf("post #%d not found in the queue of channel %s (%s): %w",
			ordinal, channel, q.queues.QueuePath(channel), domain.ErrNotFound)
	case 1:
		return positions[0], nil
	default:
		return 0, fmt.Errorf("post #%d appears %d times in the queue of channel %s; renumber the duplicates (see `tgcm queue validate %s`): %w",
			ordinal, len(positions), channel, channel, domain.ErrConflict)
	}
}

// AddOptions controls Add.
type AddOptions struct {
	// Force queues the post even when the dedup check flags it.
	Force bool
}

var newlines = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// AddResult is the queued entry and the dedup decision taken before it.
type AddResult struct {
	Entry    domain.QueueEntry `json:"-"`
	Decision dedup.Decision    `json:"dedup"`
}

// Add appends a draft to the queue after a dedup check. The new ordinal is
// one more than the largest in the queue.
func (q *Queue) Add(ctx context.Context, channel string, entry domain.QueueEntry, opts AddOptions) (AddResult, error) {
	entry.Rubric = strings.TrimSpace(entry.Rubric)
	entry.Topic = strings.TrimSpace(entry.Topic)
	entry.Source = strings.TrimSpace(entry.Source)
	entry.Author = strings.TrimSpace(entry.Author)
	entry.Image = strings.TrimSpace(entry.Image)
	entry.Text = strings.Trim(newlines.Replace(entry.Text), "\n")

	for _, f := range []struct{ name, value string }{
		{"rubric", entry.Rubric},
		{"topic", entry.Topic},
		{"source", entry.Source},
		{"author", entry.Author},
		{"image", entry.Image},
	} {
		if strings.ContainsAny(f.value, "\r\n") {
			return AddResult{}, fmt.Errorf("queue add: %s must be a single line: %w", f.name, domain.ErrInvalidInput)
		}
	}
	if line, ok := queue.HeadingLine(entry.Text); ok {
		return AddResult{}, fmt.Errorf("queue add: line %d of the post text looks like an entry heading (### n): %w", line, domain.ErrInvalidInput)
	}

	switch {
	case entry.Rubric == "":
		return AddResult{}, fmt.Errorf("queue add: rubric is empty: %w", domain.ErrInvalidInput)
	case entry.Topic == "":
		return AddResult{}, fmt.Errorf("queue add: topic is empty: %w", domain.ErrInvalidInput)
	case strings.TrimSpace(entry.Text) == "":
		return AddResult{}, fmt.Errorf("queue add: post text is empty: %w", domain.ErrInvalidInput)
	}

	_, doc, err := q.load(ctx, channel)
	if err != nil {
		return AddResult{}, err
	}

	snap, err := readIndex(ctx, q.indexes, q.channels.ChannelDir(channel), q.logger)
	if err != nil {
		return AddResult{}, err
	}
	decision := q.matcher.Check(snap.Entries, entry.Topic, entry.Links())
	res := AddResult{Decision: decision}
	if decision.Duplicate && !opts.Force {
		top := decision.Matches[0]
		return res, fmt.Errorf("topic duplicates msg %s (%s, score %.2f): %s; pass --force to queue it anyway: %w",
			msgRef(top.ID), top.Reason, top.Score, top.Topic, domain.ErrConflict)
	}

	entry.Ordinal = doc.NextOrdinal()
	entry.Status = domain.QueueDraft
	doc.Append(entry)
	if err := q.queues.WriteQueue(ctx, channel, doc.Bytes()); err != nil {
		return res, err
	}

	res.Entry = entry
	q.logger.Info("draft queued", "channel", channel, "post", entry.Ordinal, "duplicate", decision.Duplicate)
	return res, nil
}

// List returns the queue entries, optionally only those with status.
func (q *Queue) List(ctx context.Context, channel string, status domain.QueueStatus) ([]domain.QueueEntry, error) {
	_, doc, err := q.load(ctx, channel)
	if err != nil {
		return nil, err
	}
	entries := doc.Entries()
	if status == "" {
		return entries, nil
	}
	out := make([]domain.QueueEntry, 0, len(entries))
	for _, e := range entries {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out, nil
}

// Approve moves a draft to pending. It is the only transition that makes a
// post publishable.
func (q *Queue) Approve(ctx context.Context, channel string, ordinal int) (domain.QueueEntry, error) {
	_, doc, err := q.load(ctx, channel)
	if err != nil {
		return domain.QueueEntry{}, err
	}
	pos, err := q.find(channel, doc, ordinal)
	if err != nil {
		return domain.QueueEntry{}, err
	}

	entry := doc.Items[pos].Entry
	switch entry.Status {
	case domain.QueueDraft:
	case domain.QueuePending:
		return entry, fmt.Errorf("post #%d of channel %s is already pending: %w", ordinal, channel, domain.ErrConflict)
	default:
		return entry, fmt.Errorf("post #%d of channel %s has invalid status %q; run `tgcm queue validate %s --fix` first: %w",
			ordinal, channel, entry.Status, channel, domain.ErrInvalidInput)
	}

	doc.SetStatus(pos, domain.QueuePending)
	if err := q.queues.WriteQueue(ctx, channel, doc.Bytes()); err != nil {
		return domain.QueueEntry{}, err
	}
	entry.Status = domain.QueuePending

	q.logger.Info("post approved", "channel", channel, "post", ordinal)
	return entry, nil
}

// Validate checks the queue against its format rules and the dedup index.
// With fix set, invalid or missing statuses become draft and the file is
// rewritten atomically; the report then describes the repaired queue.
func (q *Queue) Validate(ctx context.Context, channel string, fix bool) (queue.Report, error) {
	_, doc, err := q.load(ctx, channel)
	if err != nil {
		return queue.Report{}, err
	}
	snap, err := readIndex(ctx, q.indexes, q.channels.ChannelDir(channel), q.logger)
	if err != nil {
		return queue.Report{}, err
	}
	validator := queue.NewValidator(q.matcher, snap.Entries)

	if !fix {
		return validator.Validate(doc), nil
	}

	fixed := queue.Fix(doc)
	if fixed > 0 {
		if err := q.queues.WriteQueue(ctx, channel, doc.Bytes()); err != nil {
			return queue.Report{}, err
		}
		q.logger.Info("queue repaired", "channel", channel, "fixed", fixed)
	}
	rep := validator.Validate(doc)
	rep.Fixed = fixed
	return rep, nil
}

// PublishOptions controls Publish.
type PublishOptions struct {
	// Markdown converts the post's light markdown to Telegram HTML.
	Markdown bool
}

// PublishResult reports a delivered post.
type PublishResult struct {
	Ordinal    int                `json:"post"`
	MessageIDs []domain.MessageID `json:"messageIds"`
	Source     string             `json:"source,omitempty"`
	// Removed is false when the post was delivered but left in the queue.
	Removed bool `json:"removed"`
}

// Publish sends an approved post, records it in the dedup index and removes
// it from the queue. Only pending posts of bound channels can be published.
func (q *Queue) Publish(ctx context.Context, channel string, ordinal int, opts PublishOptions) (PublishResult, error) {
	ch, doc, err := q.load(ctx, channel)
	if err != nil {
		return PublishResult{}, err
	}
	if !ch.Bound() {
		return PublishResult{}, fmt.Errorf("channel %s is not bound; run `tgcm bind %s --channel-id <id>`: %w", channel, channel, domain.ErrNotBound)
	}
	pos, err := q.find(channel, doc, ordinal)
	if err != nil {
		return PublishResult{}, err
	}
	entry := doc.Items[pos].Entry
	if entry.Status != domain.QueuePending {
		return PublishResult{}, fmt.Errorf("post #%d of channel %s is %q; approve it with `tgcm queue approve %s %d`: %w",
			ordinal, channel, entry.Status, channel, ordinal, domain.ErrNotApproved)
	}
	if q.publisher == nil {
		return PublishResult{}, errNoBot
	}

	ids, sendErr := q.publisher.Publish(ctx, ch.ChannelID, domain.OutgoingPost{
		Text:     entry.Text,
		Source:   entry.Source,
		Image:    entry.Image,
		Markdown: opts.Markdown,
	})
	if len(ids) == 0 {
		if sendErr == nil {
			sendErr = fmt.Errorf("no message id returned")
		}
		return PublishResult{}, fmt.Errorf("publish post #%d to channel %s: %w", ordinal, channel, sendErr)
	}

	res := PublishResult{Ordinal: ordinal, MessageIDs: ids, Source: entry.Source}
	q.logger.Info("post delivered", "channel", channel, "post", ordinal, "msgIds", len(ids))

	indexEntry := q.matcher.NewEntry(ids[0], entry.Topic, entry.Links())
	err = withIndex(ctx, q.indexes, q.channels.ChannelDir(channel), func(store ports.IndexStore) error {
		return store.Append(ctx, indexEntry)
	})
	if err != nil {
		return res, fmt.Errorf("post #%d was published as msg %s but the dedup index was not updated; run `tgcm dedup add %s --id %s --topic ...`: %w",
			ordinal, ids[0], channel, ids[0], err)
	}

	if sendErr != nil {
		return res, fmt.Errorf("post #%d was partly published as msg %s and stays in the queue; finish it by hand: %w",
			ordinal, ids[0], sendErr)
	}

	if err := q.remove(ctx, channel, ordinal); err != nil {
		return res, fmt.Errorf("post #%d was published as msg %s but not removed from the queue: %w", ordinal, ids[0], err)
	}
	res.Removed = true

	q.logger.Info("post published", "channel", channel, "post", ordinal, "msgId", string(ids[0]))
	return res, nil
}

// remove drops a published entry from a fresh read of the queue.
func (q *Queue) remove(ctx context.Context, channel string, ordinal int) error {
	raw, err := q.queues.ReadQueue(ctx, channel)
	if err != nil {
		return err
	}
	doc := queue.Parse(raw)
	pos, err := q.find(channel, doc, ordinal)
	if err != nil {
		return err
	}
	doc.Remove(pos)
	return q.queues.WriteQueue(ctx, channel, doc.Bytes())
}

func msgRef(id domain.MessageID) string {
	if id == "" {
		return "-"
	}
	return string(id)
}
