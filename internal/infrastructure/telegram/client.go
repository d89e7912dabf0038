package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultAPIURL = "https://api.telegram.org"

// APIError is a Bot API call that returned ok=false or a non-2xx status.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// User is the subset of the Bot API User object the tool reads.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

// Chat is the subset of the Bot API Chat object the tool reads.
type Chat struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Username    string `json:"username"`
	Description string `json:"description"`
	InviteLink  string `json:"invite_link"`
}

// ChatMember is the subset of the Bot API ChatMember object the tool reads.
type ChatMember struct {
	Status            string `json:"status"`
	User              User   `json:"user"`
	IsAnonymous       bool   `json:"is_anonymous"`
	CanPostMessages   bool   `json:"can_post_messages"`
	CanEditMessages   bool   `json:"can_edit_messages"`
	CanDeleteMessages bool   `json:"can_delete_messages"`
	CanInviteUsers    bool   `json:"can_invite_users"`
	CanChangeInfo     bool   `json:"can_change_info"`
}

// Message is the subset of the Bot API Message object the tool reads.
type Message struct {
	MessageID int64 `json:"message_id"`
	Chat      Chat  `json:"chat"`
}

type envelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

// Client calls the Telegram Bot API.
type Client struct {
	botToken string
	apiURL   string
	client   *http.Client
}

// NewClient registers the bot token. An empty apiURL targets api.telegram.org.
func NewClient(botToken, apiURL string, client *http.Client) *Client {
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		botToken: botToken,
		apiURL:   strings.TrimSuffix(apiURL, "/"),
		client:   client,
	}
}

// GetMe returns the bot's own user.
func (c *Client) GetMe(ctx context.Context) (User, error) {
	var me User
	err := c.call(ctx, "getMe", nil, &me)
	return me, err
}

// GetChat looks up a chat by numeric id or @username.
func (c *Client) GetChat(ctx context.Context, chatID string) (Chat, error) {
	var chat Chat
	err := c.call(ctx, "getChat", url.Values{"chat_id": {chatID}}, &chat)
	return chat, err
}

// GetChatMember returns the membership of userID in chatID.
func (c *Client) GetChatMember(ctx context.Context, chatID string, userID int64) (ChatMember, error) {
	var member ChatMember
	err := c.call(ctx, "getChatMember", url.Values{
		"chat_id": {chatID},
		"user_id": {strconv.FormatInt(userID, 10)},
	}, &member)
	return member, err
}

// GetChatAdministrators lists the administrators of a chat.
func (c *Client) GetChatAdministrators(ctx context.Context, chatID string) ([]ChatMember, error) {
	var admins []ChatMember
	err := c.call(ctx, "getChatAdministrators", url.Values{"chat_id": {chatID}}, &admins)
	return admins, err
}

// GetChatMemberCount returns the number of subscribers.
func (c *Client) GetChatMemberCount(ctx context.Context, chatID string) (int, error) {
	var count int
	err := c.call(ctx, "getChatMemberCount", url.Values{"chat_id": {chatID}}, &count)
	return count, err
}

// SendMessage posts text to chatID.
func (c *Client) SendMessage(ctx context.Context, chatID, text, parseMode string) (Message, error) {
	params := url.Values{"chat_id": {chatID}, "text": {text}}
	if parseMode != "" {
		params.Set("parse_mode", parseMode)
	}
	var msg Message
	err := c.call(ctx, "sendMessage", params, &msg)
	return msg, err
}

// SendPhoto posts a photo by URL with an optional caption.
func (c *Client) SendPhoto(ctx context.Context, chatID, photoURL, caption, parseMode string) (Message, error) {
	params := url.Values{"chat_id": {chatID}, "photo": {photoURL}}
	if caption != "" {
		params.Set("caption", caption)
	}
	if parseMode != "" {
		params.Set("parse_mode", parseMode)
	}
	var msg Message
	err := c.call(ctx, "sendPhoto", params, &msg)
	return msg, err
}

func (c *Client) call(ctx context.Context, method string, params url.Values, out any) error {
	if c.botToken == "" {
		return fmt.Errorf("telegram %s: bot token is not configured; run `tgcm config set bot-token <token>`", method)
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.apiURL, c.botToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, redact(err, c.botToken))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &APIError{Method: method, Code: resp.StatusCode, Description: resp.Status}
		}
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if !env.OK {
		code := env.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return &APIError{Method: method, Code: code, Description: env.Description}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// redact keeps the bot token out of transport errors, which embed the URL.
func redact(err error, token string) error {
	msg := err.Error()
	if !strings.Contains(msg, token) {
		return err
	}
	return errors.New(strings.ReplaceAll(msg, token, "<token>"))
}
