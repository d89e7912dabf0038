package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ChannelManager/internal/dedup"
	"ChannelManager/internal/domain"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// channelView is the JSON shape of a channel, matching channel.json.
type channelView struct {
	Name      string `json:"name"`
	ChannelID string `json:"channelId,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

func toChannelView(ch domain.Channel) channelView {
	return channelView{
		Name:      ch.Name,
		ChannelID: ch.ChannelID,
		Status:    string(ch.Status),
		CreatedAt: ch.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func statusColor(status domain.ChannelStatus) string {
	if status == domain.ChannelConnected {
		return green(string(status))
	}
	return yellow(string(status))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func printMatches(cmd *cobra.Command, matches []dedup.Match) {
	out := cmd.OutOrStdout()
	for _, m := range matches {
		id := string(m.ID)
		if id == "" {
			id = fmt.Sprintf("#%d", m.Index)
		}
		switch m.Reason {
		case dedup.ReasonLink:
			fmt.Fprintf(out, "  - msg %s [link %s] %q\n", cyan(id), m.Link, m.Topic)
		default:
			fmt.Fprintf(out, "  - msg %s [topic %.2f: %s] %q\n", cyan(id), m.Score, strings.Join(m.Terms, ", "), m.Topic)
		}
	}
}
