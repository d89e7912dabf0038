package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ChannelManager/internal/domain"
	"ChannelManager/internal/usecase"
)

var (
	dedupTopic string
	dedupLinks []string
	dedupID    string

	rebuildSource   string
	rebuildUsername string
	rebuildPath     string
	rebuildLimit    int
	rebuildMerge    bool
	rebuildForce    bool
	rebuildDryRun   bool
)

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Query and maintain a channel's dedup index",
}

var dedupCheckCmd = &cobra.Command{
	Use:   "check <channel>",
	Short: "Check a topic and links against published posts",
	Long: `Compare a candidate topic and its source links with every post in the
channel's dedup index. Nothing is written.

The exit status is zero whether or not duplicates are found; read the
verdict from the output (or "duplicate" with --json).`,
	Example: `  tgcm dedup check tech-news --topic "Zig 0.14 released" --link https://ziglang.org/news/`,
	Args:    cobra.ExactArgs(1),
	RunE:    runDedupCheck,
}

var dedupAddCmd = &cobra.Command{
	Use:   "add <channel>",
	Short: "Record a published post in the dedup index",
	Args:  cobra.ExactArgs(1),
	RunE:  runDedupAdd,
}

var dedupRebuildCmd = &cobra.Command{
	Use:   "rebuild <channel>",
	Short: "Rebuild the dedup index from the channel's history",
	Long: `Rebuild the dedup index from published history.

Sources:
  tme      the public web preview at t.me/s/<username>; best-effort, the
           preview omits some posts and only the newest pages are read
  export   a Telegram Desktop JSON export (result.json); complete

A partial result never silently replaces a larger index: use --merge to add
only posts that are not indexed yet, or --force to replace anyway.`,
	Example: `  tgcm dedup rebuild tech-news --source export --export-path ~/Downloads/ChatExport/result.json
  tgcm dedup rebuild tech-news --source tme --merge`,
	Args: cobra.ExactArgs(1),
	RunE: runDedupRebuild,
}

func init() {
	dedupCheckCmd.Flags().StringVar(&dedupTopic, "topic", "", "candidate topic")
	dedupCheckCmd.Flags().StringArrayVar(&dedupLinks, "link", nil, "candidate source URL (repeatable)")

	dedupAddCmd.Flags().StringVar(&dedupID, "id", "", "Telegram message id of the published post")
	dedupAddCmd.Flags().StringVar(&dedupTopic, "topic", "", "topic of the published post")
	dedupAddCmd.Flags().StringArrayVar(&dedupLinks, "link", nil, "source URL of the published post (repeatable)")

	f := dedupRebuildCmd.Flags()
	f.StringVar(&rebuildSource, "source", "tme", "history source: tme or export")
	f.StringVar(&rebuildUsername, "username", "", "public username for --source tme (default: resolved from the bound channel)")
	f.StringVar(&rebuildPath, "export-path", "", "result.json for --source export")
	f.IntVar(&rebuildLimit, "limit", 0, "maximum preview pages for --source tme (default from config)")
	f.BoolVar(&rebuildMerge, "merge", false, "append posts not yet indexed instead of replacing")
	f.BoolVar(&rebuildForce, "force", false, "replace the index even with a partial result")
	f.BoolVar(&rebuildDryRun, "dry-run", false, "fetch and report without writing")

	dedupCmd.AddCommand(dedupCheckCmd, dedupAddCmd, dedupRebuildCmd)
	rootCmd.AddCommand(dedupCmd)
}

func runDedupCheck(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	res, err := a.Dedup.Check(cmd.Context(), args[0], dedupTopic, dedupLinks)
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(cmd, res)
	}

	out := cmd.OutOrStdout()
	if res.IndexCorrupt {
		fmt.Fprintf(out, "%s index is corrupt and was read as empty; run tgcm dedup rebuild %s\n", red("!"), args[0])
	}
	if !res.Duplicate {
		fmt.Fprintf(out, "%s No duplicates found (%d posts compared)\n", green("✓"), res.ComparedCount)
		if len(res.Matches) > 0 {
			fmt.Fprintf(out, "  %d weak match(es) below threshold:\n", len(res.Matches))
			printMatches(cmd, res.Matches)
		}
		return nil
	}

	fmt.Fprintf(out, "%s Possible duplicates found (%d posts compared):\n", red("✗"), res.ComparedCount)
	printMatches(cmd, res.Matches)
	return nil
}

func runDedupAdd(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	entry, err := a.Dedup.Add(cmd.Context(), args[0], domain.MessageID(dedupID), dedupTopic, dedupLinks)
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(cmd, entry)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Indexed %q (keywords: %s)\n",
		green("✓"), entry.Topic, strings.Join(entry.Keywords, ", "))
	return nil
}

func runDedupRebuild(cmd *cobra.Command, args []string) error {
	if rebuildMerge && rebuildForce {
		return fmt.Errorf("--merge and --force cannot be combined: %w", domain.ErrInvalidInput)
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	res, err := a.Dedup.Rebuild(ctx, args[0], usecase.RebuildOptions{
		Source:    rebuildSource,
		Username:  rebuildUsername,
		Path:      rebuildPath,
		PageLimit: rebuildLimit,
	})
	if err != nil {
		return err
	}

	var applied *usecase.ApplyResult
	if !rebuildDryRun {
		ar, err := a.Dedup.Apply(ctx, args[0], res, usecase.ApplyOptions{Merge: rebuildMerge, Force: rebuildForce})
		if err != nil {
			return err
		}
		applied = &ar
	}

	if flagJSON {
		return printJSON(cmd, struct {
			Source   string               `json:"source"`
			Fetched  int                  `json:"fetched"`
			Complete bool                 `json:"complete"`
			Notes    []string             `json:"notes,omitempty"`
			Existing int                  `json:"existing"`
			Applied  *usecase.ApplyResult `json:"applied,omitempty"`
		}{res.Source, len(res.Entries), res.Complete, res.Notes, res.Existing, applied})
	}

	out := cmd.OutOrStdout()
	completeness := green("complete")
	if !res.Complete {
		completeness = yellow("partial, best-effort")
	}
	fmt.Fprintf(out, "Fetched %d posts from %s (%s); index had %d\n", len(res.Entries), res.Source, completeness, res.Existing)
	for _, note := range res.Notes {
		fmt.Fprintf(out, "  %s %s\n", gray("note:"), note)
	}
	if applied == nil {
		fmt.Fprintf(out, "%s Dry run, index not written\n", gray("→"))
		return nil
	}
	fmt.Fprintf(out, "%s Index %sd: %d written, %d total\n", green("✓"), applied.Mode, applied.Written, applied.Total)
	return nil
}
