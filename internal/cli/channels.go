package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"ChannelManager/internal/usecase"
)

var (
	channelID string
	bindForce bool

	infoChat        bool
	infoSubscribers bool
	infoPermissions bool
	infoAdmins      bool
	infoAll         bool

	connectTitle string
)

var initCmd = &cobra.Command{
	Use:   "init <name>",
	Short: "Create a channel workspace",
	Long: `Create <workspace>/tgcm/<name>/ with channel.json, an empty dedup index and an
empty queue, then refresh the registry.

The channel starts unbound; attach it to Telegram with "tgcm bind".`,
	Args: cobra.ExactArgs(1),
	RunE: runInit,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List local channels",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var bindCmd = &cobra.Command{
	Use:   "bind <name> --channel-id <id>",
	Short: "Bind a channel to a Telegram channel id",
	Long: `Attach a remote channel id (for example -1001234567890) to a local channel.

Binding to the same id again does nothing. Binding to a different id is
refused unless --force is given.`,
	Example: `  tgcm bind tech-news --channel-id -1001234567890`,
	Args:    cobra.ExactArgs(1),
	RunE: runBind,
}

var infoCmd = &cobra.Command{
	Use:   "info <name>",
	Short: "Show a channel's local state and, optionally, its Telegram state",
	Long: `Show binding, dedup index size and queue counts for a channel.

The remote flags query the Bot API for the bound channel:
  --chat          title, username, type and description
  --subscribers   member count
  --permissions   the bot's rights in the channel
  --admins        channel administrators
  --all           all of the above`,
	Args: cobra.ExactArgs(1),
	RunE: runInfo,
}

var connectCmd = &cobra.Command{
	Use:   "connect --channel-id <id>",
	Short: "Answer a channel asking to be connected",
	Long: `Look up the local channel bound to the channel id. When none exists, print
the commands that create and bind one. Output is always JSON.`,
	Args: cobra.NoArgs,
	RunE: runConnect,
}

var getIDCmd = &cobra.Command{
	Use:   "get-id <@username|id>",
	Short: "Resolve a channel username to its numeric id",
	Long: `Resolve a channel through the Bot API and print its numeric id.

Pass negative ids after "--", e.g. tgcm get-id -- -1001234567890.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runGetID,
}

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Registry maintenance",
}

var registrySyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Rebuild channels.json from the channel directories",
	Args:  cobra.NoArgs,
	RunE:  runRegistrySync,
}

func init() {
	bindCmd.Flags().StringVar(&channelID, "channel-id", "", "Telegram channel id, e.g. -1001234567890")
	bindCmd.Flags().BoolVar(&bindForce, "force", false, "overwrite an existing binding to a different id")
	_ = bindCmd.MarkFlagRequired("channel-id")

	infoCmd.Flags().BoolVar(&infoChat, "chat", false, "query chat metadata")
	infoCmd.Flags().BoolVar(&infoSubscribers, "subscribers", false, "query the subscriber count")
	infoCmd.Flags().BoolVar(&infoPermissions, "permissions", false, "query the bot's rights")
	infoCmd.Flags().BoolVar(&infoAdmins, "admins", false, "list administrators")
	infoCmd.Flags().BoolVar(&infoAll, "all", false, "run every remote query")

	connectCmd.Flags().StringVar(&channelID, "channel-id", "", "Telegram channel id asking to connect")
	connectCmd.Flags().StringVar(&connectTitle, "title", "", "channel title shown in the instructions")
	_ = connectCmd.MarkFlagRequired("channel-id")

	registryCmd.AddCommand(registrySyncCmd)
	rootCmd.AddCommand(initCmd, listCmd, bindCmd, infoCmd, connectCmd, getIDCmd, registryCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	ch, err := a.Channels.Init(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(cmd, toChannelView(ch))
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s Created channel %s\n", green("✓"), bold(ch.Name))
	fmt.Fprintf(out, "  Directory: %s\n", cyan(a.Store.ChannelDir(ch.Name)))
	fmt.Fprintf(out, "  Next: tgcm bind %s --channel-id <id>\n", ch.Name)
	return nil
}

func runList(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	channels, err := a.Channels.List(cmd.Context())
	if err != nil {
		return err
	}

	if flagJSON {
		views := make([]channelView, len(channels))
		for i, ch := range channels {
			views[i] = toChannelView(ch)
		}
		return printJSON(cmd, views)
	}

	out := cmd.OutOrStdout()
	if len(channels) == 0 {
		fmt.Fprintln(out, "No channels found. Create one with: tgcm init <name>")
		return nil
	}
	for _, ch := range channels {
		fmt.Fprintf(out, "%-24s %-10s %s\n", ch.Name, statusColor(ch.Status), gray(orDash(ch.ChannelID)))
	}
	return nil
}

func runBind(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	res, err := a.Channels.Bind(cmd.Context(), args[0], channelID, bindForce)
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(cmd, struct {
			channelView
			usecase.BindResult
		}{toChannelView(res.Channel), res})
	}

	out := cmd.OutOrStdout()
	switch {
	case !res.Changed:
		fmt.Fprintf(out, "%s %s is already bound to %s\n", gray("="), res.Channel.Name, res.Channel.ChannelID)
	case res.Previous != "":
		fmt.Fprintf(out, "%s Rebound %s: %s -> %s\n", yellow("!"), res.Channel.Name, res.Previous, res.Channel.ChannelID)
	default:
		fmt.Fprintf(out, "%s Bound %s to %s\n", green("✓"), res.Channel.Name, res.Channel.ChannelID)
	}
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	info, err := a.Channels.Info(ctx, args[0])
	if err != nil {
		return err
	}

	opts := usecase.RemoteOptions{
		Chat:        infoChat || infoAll,
		Subscribers: infoSubscribers || infoAll,
		Permissions: infoPermissions || infoAll,
		Admins:      infoAdmins || infoAll,
	}
	var remote *usecase.RemoteInfo
	if opts.Any() {
		r, err := a.Channels.RemoteInfo(ctx, args[0], opts)
		if err != nil {
			return err
		}
		remote = &r
	}

	if flagJSON {
		return printJSON(cmd, struct {
			channelView
			usecase.ChannelInfo
			Remote *usecase.RemoteInfo `json:"remote,omitempty"`
		}{toChannelView(info.Channel), info, remote})
	}

	out := cmd.OutOrStdout()
	ch := info.Channel
	fmt.Fprintf(out, "%s\n", bold(ch.Name))
	fmt.Fprintf(out, "  Status:     %s\n", statusColor(ch.Status))
	fmt.Fprintf(out, "  Channel ID: %s\n", orDash(ch.ChannelID))
	fmt.Fprintf(out, "  Created:    %s\n", ch.CreatedAt.UTC().Format("2006-01-02 15:04:05"))
	index := fmt.Sprintf("%d published", info.IndexSize)
	if info.IndexCorrupt {
		index += " " + red("(corrupt; run tgcm dedup rebuild)")
	}
	fmt.Fprintf(out, "  Index:      %s  %s\n", index, gray(info.IndexPath))
	fmt.Fprintf(out, "  Queue:      %d draft, %d pending  %s\n", info.Drafts, info.Pending, gray(info.QueuePath))

	if remote != nil {
		printRemote(cmd, *remote)
	}
	return nil
}

func printRemote(cmd *cobra.Command, r usecase.RemoteInfo) {
	out := cmd.OutOrStdout()
	if r.Chat != nil {
		fmt.Fprintf(out, "  Title:      %s\n", r.Chat.Title)
		if r.Chat.Username != "" {
			fmt.Fprintf(out, "  Username:   @%s\n", r.Chat.Username)
		}
		fmt.Fprintf(out, "  Type:       %s\n", r.Chat.Type)
		if r.Chat.Description != "" {
			fmt.Fprintf(out, "  About:      %s\n", r.Chat.Description)
		}
	}
	if r.Subscribers != nil {
		fmt.Fprintf(out, "  Subscribers: %d\n", *r.Subscribers)
	}
	if r.Bot != nil {
		fmt.Fprintf(out, "  Bot status: %s (post=%s edit=%s delete=%s invite=%s)\n",
			r.Bot.Status, yesNo(r.Bot.CanPost), yesNo(r.Bot.CanEdit), yesNo(r.Bot.CanDelete), yesNo(r.Bot.CanInvite))
	}
	if len(r.Admins) > 0 {
		fmt.Fprintln(out, "  Admins:")
		for _, m := range r.Admins {
			name := m.Name
			if m.Username != "" {
				name = "@" + m.Username
			}
			suffix := ""
			if m.IsBot {
				suffix = " " + gray("bot")
			}
			fmt.Fprintf(out, "    - %s (%s)%s\n", name, m.Status, suffix)
		}
	}

	sections := make([]string, 0, len(r.Errors))
	for section := range r.Errors {
		sections = append(sections, section)
	}
	sort.Strings(sections)
	for _, section := range sections {
		fmt.Fprintf(out, "  %s %s: %s\n", red("✗"), section, r.Errors[section])
	}
}

func yesNo(v bool) string {
	if v {
		return green("yes")
	}
	return red("no")
}

func runConnect(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	res, err := a.Channels.Connect(cmd.Context(), channelID, connectTitle)
	if err != nil {
		return err
	}
	return printJSON(cmd, res)
}

func runGetID(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	chat, err := a.Channels.GetID(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(cmd, chat)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, chat.ID)
	details := []string{chat.Type}
	if chat.Title != "" {
		details = append(details, chat.Title)
	}
	if chat.Username != "" {
		details = append(details, "@"+chat.Username)
	}
	fmt.Fprintln(cmd.ErrOrStderr(), gray(strings.Join(details, " · ")))
	return nil
}

func runRegistrySync(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	channels, err := a.Channels.SyncRegistry(cmd.Context())
	if err != nil {
		return err
	}
	if flagJSON {
		views := make([]channelView, len(channels))
		for i, ch := range channels {
			views[i] = toChannelView(ch)
		}
		return printJSON(cmd, views)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Registry rewritten with %d channel(s): %s\n",
		green("✓"), len(channels), cyan(a.Store.RegistryPath()))
	return nil
}
