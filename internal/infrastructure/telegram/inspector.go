package telegram

import (
	"context"
	"strconv"

	"ChannelManager/internal/domain"
	"ChannelManager/internal/ports"
)

// Inspector answers read-only questions about the bot and its chats.
type Inspector struct {
	bot *Client
}

var _ ports.BotInspector = (*Inspector)(nil)

// NewInspector wraps a Bot API client.
func NewInspector(bot *Client) *Inspector {
	return &Inspector{bot: bot}
}

// ResolveChat returns the public metadata of a chat.
func (i *Inspector) ResolveChat(ctx context.Context, chatID string) (domain.ChatInfo, error) {
	chat, err := i.bot.GetChat(ctx, chatID)
	if err != nil {
		return domain.ChatInfo{}, err
	}
	return domain.ChatInfo{
		ID:          strconv.FormatInt(chat.ID, 10),
		Title:       chat.Title,
		Username:    chat.Username,
		Type:        chat.Type,
		Description: chat.Description,
		InviteLink:  chat.InviteLink,
	}, nil
}

// Identity returns the bot's own account.
func (i *Inspector) Identity(ctx context.Context) (domain.BotIdentity, error) {
	me, err := i.bot.GetMe(ctx)
	if err != nil {
		return domain.BotIdentity{}, err
	}
	return domain.BotIdentity{ID: me.ID, Username: me.Username, Name: me.FirstName}, nil
}

// Member returns userID's role and rights in chatID.
func (i *Inspector) Member(ctx context.Context, chatID string, userID int64) (domain.Member, error) {
	member, err := i.bot.GetChatMember(ctx, chatID, userID)
	if err != nil {
		return domain.Member{}, err
	}
	return toMember(member), nil
}

// Admins lists the chat administrators.
func (i *Inspector) Admins(ctx context.Context, chatID string) ([]domain.Member, error) {
	admins, err := i.bot.GetChatAdministrators(ctx, chatID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Member, 0, len(admins))
	for _, a := range admins {
		out = append(out, toMember(a))
	}
	return out, nil
}

// SubscriberCount returns the number of chat members.
func (i *Inspector) SubscriberCount(ctx context.Context, chatID string) (int, error) {
	return i.bot.GetChatMemberCount(ctx, chatID)
}

func toMember(m ChatMember) domain.Member {
	return domain.Member{
		UserID:    m.User.ID,
		Username:  m.User.Username,
		Name:      m.User.FirstName,
		Status:    m.Status,
		IsBot:     m.User.IsBot,
		Anonymous: m.IsAnonymous,
		CanPost:   m.CanPostMessages,
		CanEdit:   m.CanEditMessages,
		CanDelete: m.CanDeleteMessages,
		CanInvite: m.CanInviteUsers,
	}
}
