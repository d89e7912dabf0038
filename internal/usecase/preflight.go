package usecase

import (
	"context"
	"fmt"
)

// CheckLevel grades a preflight item.
type CheckLevel string

const (
	CheckOK   CheckLevel = "ok"
	CheckWarn CheckLevel = "warn"
	CheckFail CheckLevel = "fail"
)

// CheckItem is one line of a preflight report.
type CheckItem struct {
	Level   CheckLevel `json:"level"`
	Subject string     `json:"subject"`
	Detail  string     `json:"detail"`
	Fix     string     `json:"fix,omitempty"`
}

// PreflightReport is the result of Preflight. Failed is set when any item
// failed; warnings do not count.
type PreflightReport struct {
	Items  []CheckItem `json:"checks"`
	Failed bool        `json:"failed"`
}

func (r *PreflightReport) add(level CheckLevel, subject, detail, fix string) {
	r.Items = append(r.Items, CheckItem{Level: level, Subject: subject, Detail: detail, Fix: fix})
	if level == CheckFail {
		r.Failed = true
	}
}

// PreflightInput carries the settings resolved by the caller.
type PreflightInput struct {
	// TokenSource names where the bot token came from; empty when none was found.
	TokenSource string
	SearchURL   string
}

// Preflight verifies the bot token, the search endpoint and every channel
// binding. Each failing item carries the command that fixes it.
func (c *Channels) Preflight(ctx context.Context, in PreflightInput) (PreflightReport, error) {
	var rep PreflightReport

	botReady := false
	var botID int64
	switch {
	case in.TokenSource == "":
		rep.add(CheckFail, "Bot token", "not found (tried --bot-token, .env, TELEGRAM_BOT_TOKEN, config file)",
			"run `tgcm config set bot-token <your-token>`")
	case c.inspector == nil:
		rep.add(CheckFail, "Bot token", "found via "+in.TokenSource+" but no Bot API client is configured", "")
	default:
		rep.add(CheckOK, "Bot token", "found (via "+in.TokenSource+")", "")
		me, err := c.inspector.Identity(ctx)
		if err != nil {
			rep.add(CheckFail, "Bot", "getMe failed, the token may be invalid: "+err.Error(),
				"verify the token value or generate a new one via @BotFather")
		} else {
			rep.add(CheckOK, "Bot", fmt.Sprintf("%s (id: %d)", me.Handle(), me.ID), "")
			botReady, botID = true, me.ID
		}
	}

	if in.SearchURL != "" {
		rep.add(CheckOK, "SEARXNG_URL", in.SearchURL, "")
	} else {
		rep.add(CheckWarn, "SEARXNG_URL", "not set (scout won't work)", "run `tgcm config set searxng-url <url>`")
	}

	channels, err := c.channels.Scan(ctx)
	if err != nil {
		return rep, fmt.Errorf("scan channels: %w", err)
	}
	if len(channels) == 0 {
		rep.add(CheckWarn, "Channels", "no channels found", "run `tgcm init <name>` to create a channel")
		return rep, nil
	}

	for _, ch := range channels {
		subject := fmt.Sprintf("Channel %q", ch.Name)
		if !ch.Bound() {
			rep.add(CheckWarn, subject, "not bound (no channelId)", fmt.Sprintf("run `tgcm bind %s --channel-id <id>`", ch.Name))
			continue
		}
		if !botReady {
			rep.add(CheckWarn, subject, fmt.Sprintf("bound to %s, but cannot verify (no valid bot token)", ch.ChannelID), "")
			continue
		}

		chat, err := c.inspector.ResolveChat(ctx, ch.ChannelID)
		if err != nil {
			rep.add(CheckFail, subject, fmt.Sprintf("bound to %s, but getChat failed: %v", ch.ChannelID, err),
				fmt.Sprintf("verify channel-id %s is correct and the bot has access", ch.ChannelID))
			continue
		}

		member, err := c.inspector.Member(ctx, ch.ChannelID, botID)
		if err != nil {
			rep.add(CheckFail, subject, fmt.Sprintf("bound to %s, getChatMember failed: %v", ch.ChannelID, err),
				fmt.Sprintf("verify the bot has access to channel %s", ch.ChannelID))
			continue
		}

		switch {
		case !member.Admin():
			rep.add(CheckFail, subject, fmt.Sprintf("bound to %s, bot status=%s (not admin)", ch.ChannelID, member.Status),
				fmt.Sprintf("promote the bot to admin in channel %s", ch.ChannelID))
		case !chat.IsChannel():
			rep.add(CheckFail, subject, fmt.Sprintf("bound to %s, type=%s, expected channel", ch.ChannelID, chat.Type),
				fmt.Sprintf("bind %s to a channel, not a %s", ch.Name, chat.Type))
		default:
			rep.add(CheckOK, subject, fmt.Sprintf("bound to %s, type=%s, bot is %s", ch.ChannelID, chat.Type, member.Status), "")
		}
	}
	return rep, nil
}
