package mcpserver

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"ChannelManager/internal/dedup"
	"ChannelManager/internal/domain"
	"ChannelManager/internal/queue"
	"ChannelManager/internal/usecase"
)

// ChannelListInput takes no arguments.
type ChannelListInput struct{}

// ChannelOutput is one channel in channel_list.
type ChannelOutput struct {
	Name      string `json:"name"`
	ChannelID string `json:"channel_id,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// ChannelListOutput lists local channels.
type ChannelListOutput struct {
	Channels []ChannelOutput `json:"channels"`
}

// DedupCheckInput is the input schema for dedup_check.
type DedupCheckInput struct {
	Channel string   `json:"channel" jsonschema:"local channel name"`
	Topic   string   `json:"topic,omitempty" jsonschema:"candidate topic text"`
	Links   []string `json:"links,omitempty" jsonschema:"candidate source URLs"`
}

// DedupCheckOutput is the duplicate decision.
type DedupCheckOutput struct {
	Duplicate     bool          `json:"duplicate"`
	Matches       []dedup.Match `json:"matches"`
	Keywords      []string      `json:"keywords"`
	ComparedCount int           `json:"compared_count"`
	IndexCorrupt  bool          `json:"index_corrupt,omitempty"`
}

// QueueListInput is the input schema for queue_list.
type QueueListInput struct {
	Channel string `json:"channel" jsonschema:"local channel name"`
	Status  string `json:"status,omitempty" jsonschema:"only posts with this status: draft or pending"`
}

// PostOutput is one queue entry.
type PostOutput struct {
	Post   int    `json:"post"`
	Status string `json:"status"`
	Rubric string `json:"rubric"`
	Topic  string `json:"topic"`
	Source string `json:"source,omitempty"`
	Author string `json:"author,omitempty"`
	Image  string `json:"image,omitempty"`
	Text   string `json:"text"`
}

// QueueListOutput lists queue entries.
type QueueListOutput struct {
	Posts []PostOutput `json:"posts"`
	Count int          `json:"count"`
}

// QueueAddInput is the input schema for queue_add.
type QueueAddInput struct {
	Channel string `json:"channel" jsonschema:"local channel name"`
	Rubric  string `json:"rubric" jsonschema:"content category, starting with an emoji"`
	Topic   string `json:"topic" jsonschema:"one-line topic used for duplicate detection"`
	Source  string `json:"source,omitempty" jsonschema:"source article URL"`
	Author  string `json:"author,omitempty"`
	Image   string `json:"image,omitempty" jsonschema:"image URL sent as a photo"`
	Text    string `json:"text" jsonschema:"post body"`
	Force   bool   `json:"force,omitempty" jsonschema:"queue even when the topic duplicates the index"`
}

// QueueAddOutput reports the queued draft.
type QueueAddOutput struct {
	Post     int              `json:"post"`
	Status   string           `json:"status"`
	Decision DedupCheckOutput `json:"dedup"`
}

// QueueValidateInput is the input schema for queue_validate.
type QueueValidateInput struct {
	Channel string `json:"channel" jsonschema:"local channel name"`
	Fix     bool   `json:"fix,omitempty" jsonschema:"reset invalid or missing statuses to draft"`
}

// QueueValidateOutput is the validation report.
type QueueValidateOutput struct {
	OK       bool          `json:"ok"`
	Posts    int           `json:"posts"`
	Errors   []queue.Issue `json:"errors"`
	Warnings []queue.Issue `json:"warnings"`
	Fixed    int           `json:"fixed"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "channel_list",
		Description: "List local channels with their binding status",
	}, s.handleChannelList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "dedup_check",
		Description: "Check whether a topic or links duplicate a post already published to the channel. Run before drafting.",
	}, s.handleDedupCheck)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "queue_list",
		Description: "List draft and pending posts in a channel's queue",
	}, s.handleQueueList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "queue_add",
		Description: "Append a draft to a channel's queue after a duplicate check. Drafts need human approval before publishing.",
	}, s.handleQueueAdd)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "queue_validate",
		Description: "Validate a channel's queue file and optionally repair invalid statuses",
	}, s.handleQueueValidate)
}

func (s *Server) handleChannelList(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ ChannelListInput,
) (*mcp.CallToolResult, ChannelListOutput, error) {
	channels, err := s.services.Channels.List(ctx)
	if err != nil {
		return nil, ChannelListOutput{}, err
	}

	out := ChannelListOutput{Channels: make([]ChannelOutput, len(channels))}
	for i, ch := range channels {
		out.Channels[i] = ChannelOutput{
			Name:      ch.Name,
			ChannelID: ch.ChannelID,
			Status:    string(ch.Status),
			CreatedAt: ch.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	return nil, out, nil
}

func (s *Server) handleDedupCheck(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input DedupCheckInput,
) (*mcp.CallToolResult, DedupCheckOutput, error) {
	res, err := s.services.Dedup.Check(ctx, input.Channel, input.Topic, input.Links)
	if err != nil {
		return nil, DedupCheckOutput{}, err
	}
	return nil, toCheckOutput(res.Decision, res.IndexCorrupt), nil
}

func (s *Server) handleQueueList(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input QueueListInput,
) (*mcp.CallToolResult, QueueListOutput, error) {
	entries, err := s.services.Queue.List(ctx, input.Channel, domain.QueueStatus(input.Status))
	if err != nil {
		return nil, QueueListOutput{}, err
	}

	out := QueueListOutput{Posts: make([]PostOutput, len(entries)), Count: len(entries)}
	for i, e := range entries {
		out.Posts[i] = PostOutput{
			Post:   e.Ordinal,
			Status: string(e.Status),
			Rubric: e.Rubric,
			Topic:  e.Topic,
			Source: e.Source,
			Author: e.Author,
			Image:  e.Image,
			Text:   e.Text,
		}
	}
	return nil, out, nil
}

func (s *Server) handleQueueAdd(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input QueueAddInput,
) (*mcp.CallToolResult, QueueAddOutput, error) {
	res, err := s.services.Queue.Add(ctx, input.Channel, domain.QueueEntry{
		Rubric: input.Rubric,
		Topic:  input.Topic,
		Source: input.Source,
		Author: input.Author,
		Image:  input.Image,
		Text:   input.Text,
	}, usecase.AddOptions{Force: input.Force})
	if err != nil {
		return nil, QueueAddOutput{}, err
	}
	return nil, QueueAddOutput{
		Post:     res.Entry.Ordinal,
		Status:   string(res.Entry.Status),
		Decision: toCheckOutput(res.Decision, false),
	}, nil
}

func (s *Server) handleQueueValidate(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input QueueValidateInput,
) (*mcp.CallToolResult, QueueValidateOutput, error) {
	rep, err := s.services.Queue.Validate(ctx, input.Channel, input.Fix)
	if err != nil {
		return nil, QueueValidateOutput{}, err
	}
	return nil, QueueValidateOutput{
		OK:       rep.OK(),
		Posts:    rep.Entries,
		Errors:   rep.Errors,
		Warnings: rep.Warnings,
		Fixed:    rep.Fixed,
	}, nil
}

func toCheckOutput(d dedup.Decision, corrupt bool) DedupCheckOutput {
	return DedupCheckOutput{
		Duplicate:     d.Duplicate,
		Matches:       d.Matches,
		Keywords:      d.Keywords,
		ComparedCount: d.ComparedCount,
		IndexCorrupt:  corrupt,
	}
}
