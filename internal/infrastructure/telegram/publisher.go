package telegram

import (
	"context"
	"fmt"
	"strconv"
	"unicode/utf8"

	"ChannelManager/internal/domain"
	"ChannelManager/internal/ports"
)

// Publisher delivers queue posts through the Bot API.
type Publisher struct {
	bot *Client
}

var _ ports.Publisher = (*Publisher)(nil)

// NewPublisher wraps a Bot API client.
func NewPublisher(bot *Client) *Publisher {
	return &Publisher{bot: bot}
}

// Publish sends a post. A post with an image longer than a caption is sent
// as a photo with the first part followed by a text message with the rest.
func (p *Publisher) Publish(ctx context.Context, chatID string, post domain.OutgoingPost) ([]domain.MessageID, error) {
	parseMode := ""
	render := func(s string) string { return s }
	if post.Markdown {
		parseMode = "HTML"
		render = MarkdownToHTML
	}

	if post.Image == "" {
		text := AppendSource(render(post.Text), post.Source, post.Markdown)
		msg, err := p.bot.SendMessage(ctx, chatID, Truncate(text, MessageLimit), parseMode)
		if err != nil {
			return nil, err
		}
		return []domain.MessageID{messageID(msg)}, nil
	}

	if utf8.RuneCountInString(post.Text) <= CaptionLimit {
		caption := AppendSource(render(post.Text), post.Source, post.Markdown)
		msg, err := p.bot.SendPhoto(ctx, chatID, post.Image, caption, parseMode)
		if err != nil {
			return nil, err
		}
		return []domain.MessageID{messageID(msg)}, nil
	}

	head, tail := SplitText(post.Text, CaptionLimit)
	first, err := p.bot.SendPhoto(ctx, chatID, post.Image, render(head), parseMode)
	if err != nil {
		return nil, err
	}
	ids := []domain.MessageID{messageID(first)}

	rest := AppendSource(render(tail), post.Source, post.Markdown)
	second, err := p.bot.SendMessage(ctx, chatID, Truncate(rest, MessageLimit), parseMode)
	if err != nil {
		return ids, fmt.Errorf("photo delivered as message %s but the text part failed: %w", ids[0], err)
	}
	return append(ids, messageID(second)), nil
}

func messageID(msg Message) domain.MessageID {
	return domain.MessageID(strconv.FormatInt(msg.MessageID, 10))
}
