package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"ChannelManager/internal/usecase"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Preflight the bot token, search endpoint and channel bindings",
	Long: `Verify that the bot token works, SEARXNG_URL is set, and every bound channel
is a channel where the bot is an administrator.

Each problem is printed with the command that fixes it. The exit status is
non-zero when any check fails; warnings do not fail.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

var errChecksFailed = errors.New("preflight failed")

func runCheck(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	rep, err := a.Channels.Preflight(cmd.Context(), usecase.PreflightInput{
		TokenSource: a.TokenSource,
		SearchURL:   a.Config.Search.URL,
	})
	if err != nil {
		return err
	}

	if flagJSON {
		if err := printJSON(cmd, rep); err != nil {
			return err
		}
	} else {
		out := cmd.OutOrStdout()
		for _, item := range rep.Items {
			fmt.Fprintf(out, "%s %s: %s\n", levelMark(item.Level), item.Subject, item.Detail)
			if item.Fix != "" {
				fmt.Fprintf(out, "       Fix: %s\n", item.Fix)
			}
		}
	}

	if rep.Failed {
		return errChecksFailed
	}
	return nil
}

func levelMark(level usecase.CheckLevel) string {
	switch level {
	case usecase.CheckOK:
		return green("[ok]  ")
	case usecase.CheckWarn:
		return yellow("[warn]")
	default:
		return red("[fail]")
	}
}
