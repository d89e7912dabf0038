package domain

import (
	"fmt"
	"regexp"
	"time"
)

// ChannelStatus is the binding state of a local channel workspace.
type ChannelStatus string

const (
	ChannelUnbound   ChannelStatus = "unbound"
	ChannelConnected ChannelStatus = "connected"

	// legacy value written by the first tool generation for unbound channels
	channelInitialized ChannelStatus = "initialized"
)

var channelNameExpr = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

// Channel binds a local directory to a remote channel identity.
type Channel struct {
	Name      string
	ChannelID string
	Status    ChannelStatus
	CreatedAt time.Time
}

// Bound reports whether a remote channel id is present.
func (c Channel) Bound() bool {
	return c.ChannelID != ""
}

// DerivedStatus returns the status implied by ChannelID.
func (c Channel) DerivedStatus() ChannelStatus {
	if c.Bound() {
		return ChannelConnected
	}
	return ChannelUnbound
}

// ParseChannelStatus maps stored status tokens, including the legacy
// "initialized" value, onto ChannelStatus.
func ParseChannelStatus(raw string) (ChannelStatus, bool) {
	switch ChannelStatus(raw) {
	case ChannelUnbound, channelInitialized:
		return ChannelUnbound, true
	case ChannelConnected:
		return ChannelConnected, true
	default:
		return ChannelUnbound, false
	}
}

// ValidateChannelName checks the channel slug.
func ValidateChannelName(name string) error {
	if !channelNameExpr.MatchString(name) {
		return fmt.Errorf("invalid channel name %q: use 1-63 lowercase letters, digits, '_' or '-', starting with a letter or digit: %w",
			name, ErrInvalidInput)
	}
	return nil
}

// ChatInfo is the remote view of a channel.
type ChatInfo struct {
	ID          string `json:"id"`
	Title       string `json:"title,omitempty"`
	Username    string `json:"username,omitempty"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	InviteLink  string `json:"inviteLink,omitempty"`
}

// IsChannel reports whether the chat is a broadcast channel.
func (c ChatInfo) IsChannel() bool {
	return c.Type == "channel"
}

// BotIdentity is the bot account behind the configured token.
type BotIdentity struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
}

// Handle returns @username, falling back to the display name.
func (b BotIdentity) Handle() string {
	if b.Username != "" {
		return "@" + b.Username
	}
	return b.Name
}

// Member is a chat member with the rights the tool reports.
type Member struct {
	UserID    int64  `json:"userId"`
	Username  string `json:"username,omitempty"`
	Name      string `json:"name,omitempty"`
	Status    string `json:"status"`
	IsBot     bool   `json:"isBot,omitempty"`
	Anonymous bool   `json:"anonymous,omitempty"`
	CanPost   bool   `json:"canPost"`
	CanEdit   bool   `json:"canEdit"`
	CanDelete bool   `json:"canDelete"`
	CanInvite bool   `json:"canInvite"`
}

// Admin reports whether the member may manage the chat.
func (m Member) Admin() bool {
	return m.Status == "administrator" || m.Status == "creator"
}
