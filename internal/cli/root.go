// Package cli is the tgcm command tree.
package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"ChannelManager/internal/app"
)

var (
	flagWorkspace string
	flagBotToken  string
	flagLogLevel  string
	flagJSON      bool
)

// Overridden in tests.
var (
	httpClient *http.Client
	now        = time.Now
)

var rootCmd = &cobra.Command{
	Use:   "tgcm",
	Short: "Telegram channel content manager",
	Long: `tgcm keeps per-channel workspaces for Telegram channels: a dedup index of
published posts, a queue of drafts awaiting approval, and the binding to the
remote channel.

Scout agents check topics with "tgcm dedup check" and stage drafts with
"tgcm queue add". A human approves drafts; "tgcm publish" sends them.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagWorkspace, "workspace", "w", ".", "workspace root holding the tgcm/ directory")
	pf.StringVar(&flagBotToken, "bot-token", "", "Telegram bot token (overrides .env, env and config)")
	pf.StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.BoolVar(&flagJSON, "json", false, "print machine-readable JSON")
}

// Execute runs the command tree.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func newApp(cmd *cobra.Command) (*app.Application, error) {
	return app.New(app.Options{
		Workspace:  flagWorkspace,
		BotToken:   flagBotToken,
		LogLevel:   flagLogLevel,
		LogOutput:  cmd.ErrOrStderr(),
		HTTPClient: httpClient,
		Now:        now,
	})
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
