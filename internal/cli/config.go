package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ChannelManager/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read and edit the workspace config file",
	Long: `Read and edit tgcm/config.yaml (or $TGCM_CONFIG).

Keys:
  bot-token            Telegram bot token
  searxng-url          SearXNG endpoint used by scouts
  log-level            debug, info, warn or error
  index-backend        json or sqlite
  history-page-limit   pages fetched by "dedup rebuild --source tme"`,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a value",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a stored value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored values; the bot token is masked",
	Args:  cobra.NoArgs,
	RunE:  runConfigList,
}

func init() {
	configCmd.AddCommand(configSetCmd, configGetCmd, configListCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if err := config.Set(flagWorkspace, args[0], args[1]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s saved to %s\n", green("✓"), args[0], cyan(config.Path(flagWorkspace)))
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	v, err := config.Get(flagWorkspace, args[0])
	if err != nil {
		return err
	}
	if v == "" {
		return fmt.Errorf("%s is not set; run `tgcm config set %s <value>`", args[0], args[0])
	}
	fmt.Fprintln(cmd.OutOrStdout(), v)
	return nil
}

func runConfigList(cmd *cobra.Command, _ []string) error {
	settings, err := config.List(flagWorkspace)
	if err != nil {
		return err
	}
	for i := range settings {
		if settings[i].Key == "bot-token" {
			settings[i].Value = config.Mask(settings[i].Value)
		}
	}

	if flagJSON {
		return printJSON(cmd, settings)
	}
	out := cmd.OutOrStdout()
	if len(settings) == 0 {
		fmt.Fprintf(out, "No values set in %s\n", config.Path(flagWorkspace))
		return nil
	}
	for _, s := range settings {
		fmt.Fprintf(out, "%-20s %s\n", s.Key, s.Value)
	}
	return nil
}
