package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"ChannelManager/internal/domain"
	"ChannelManager/internal/queue"
	"ChannelManager/internal/usecase"
)

var (
	queueRubric   string
	queueTopic    string
	queueSource   string
	queueAuthor   string
	queueImage    string
	queueText     string
	queueTextFile string
	queueForce    bool

	queueStatus string
	queueFix    bool

	publishMarkdown bool
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Stage, approve and validate queued posts",
}

var queueAddCmd = &cobra.Command{
	Use:   "add <channel>",
	Short: "Append a draft after a duplicate check",
	Long: `Append a draft to content-queue.md. The topic and source are checked against
the dedup index first; a duplicate is refused unless --force is given.

The body comes from --text or from --text-file ("-" reads stdin).`,
	Args: cobra.ExactArgs(1),
	RunE: runQueueAdd,
}

var queueListCmd = &cobra.Command{
	Use:   "list <channel>",
	Short: "List queued posts",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueList,
}

var queueApproveCmd = &cobra.Command{
	Use:   "approve <channel> <post>",
	Short: "Mark a draft as pending so it can be published",
	Args:  cobra.ExactArgs(2),
	RunE:  runQueueApprove,
}

var queueValidateCmd = &cobra.Command{
	Use:   "validate <channel>",
	Short: "Validate the queue file",
	Long: `Check every queued post: status, required fields, duplicate post numbers,
source URLs, and posts already present in the dedup index.

With --fix, invalid or missing statuses are reset to draft. The exit status is
non-zero while errors remain; warnings do not fail.`,
	Args: cobra.ExactArgs(1),
	RunE: runQueueValidate,
}

var publishCmd = &cobra.Command{
	Use:   "publish <channel> <post>",
	Short: "Send an approved post and record it in the dedup index",
	Long: `Send a pending post to the bound channel, add it to the dedup index and
remove it from the queue. Drafts must be approved first with
"tgcm queue approve".`,
	Args: cobra.ExactArgs(2),
	RunE: runPublish,
}

func init() {
	f := queueAddCmd.Flags()
	f.StringVar(&queueRubric, "rubric", "", "content category, starting with an emoji")
	f.StringVar(&queueTopic, "topic", "", "one-line topic used for duplicate detection")
	f.StringVar(&queueSource, "source", "", "source article URL")
	f.StringVar(&queueAuthor, "author", "", "author credit")
	f.StringVar(&queueImage, "image", "", "image URL sent with the post")
	f.StringVar(&queueText, "text", "", "post body")
	f.StringVar(&queueTextFile, "text-file", "", "read the post body from a file (- for stdin)")
	f.BoolVar(&queueForce, "force", false, "queue even when the topic duplicates the index")
	queueAddCmd.MarkFlagsMutuallyExclusive("text", "text-file")

	queueListCmd.Flags().StringVar(&queueStatus, "status", "", "only posts with this status (draft or pending)")
	queueValidateCmd.Flags().BoolVar(&queueFix, "fix", false, "reset invalid or missing statuses to draft")
	publishCmd.Flags().BoolVar(&publishMarkdown, "markdown", false, "convert **bold**, _italic_, `code` and [links](url) to Telegram formatting")

	queueCmd.AddCommand(queueAddCmd, queueListCmd, queueApproveCmd, queueValidateCmd)
	rootCmd.AddCommand(queueCmd, publishCmd)
}

func runQueueAdd(cmd *cobra.Command, args []string) error {
	text, err := postText(cmd)
	if err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	res, err := a.Queue.Add(cmd.Context(), args[0], domain.QueueEntry{
		Rubric: queueRubric,
		Topic:  queueTopic,
		Source: queueSource,
		Author: queueAuthor,
		Image:  queueImage,
		Text:   text,
	}, usecase.AddOptions{Force: queueForce})
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(cmd, struct {
			Post      int    `json:"post"`
			Status    string `json:"status"`
			Duplicate bool   `json:"duplicate"`
		}{res.Entry.Ordinal, string(res.Entry.Status), res.Decision.Duplicate})
	}

	out := cmd.OutOrStdout()
	if res.Decision.Duplicate {
		fmt.Fprintf(out, "%s Queued despite possible duplicates (--force):\n", yellow("!"))
		printMatches(cmd, res.Decision.Matches)
	}
	fmt.Fprintf(out, "%s Queued post #%d as %s\n", green("✓"), res.Entry.Ordinal, res.Entry.Status)
	fmt.Fprintf(out, "  Approve with: tgcm queue approve %s %d\n", args[0], res.Entry.Ordinal)
	return nil
}

func postText(cmd *cobra.Command) (string, error) {
	switch queueTextFile {
	case "":
		return queueText, nil
	case "-":
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read post text from stdin: %w", err)
		}
		return string(raw), nil
	default:
		raw, err := os.ReadFile(queueTextFile)
		if err != nil {
			return "", fmt.Errorf("read post text: %w", err)
		}
		return string(raw), nil
	}
}

func runQueueList(cmd *cobra.Command, args []string) error {
	status := domain.QueueStatus(queueStatus)
	if status != "" && !status.Valid() {
		return fmt.Errorf("unknown status %q (expected %s or %s): %w",
			queueStatus, domain.QueueDraft, domain.QueuePending, domain.ErrInvalidInput)
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	entries, err := a.Queue.List(cmd.Context(), args[0], status)
	if err != nil {
		return err
	}

	if flagJSON {
		type postView struct {
			Post   int    `json:"post"`
			Status string `json:"status"`
			Rubric string `json:"rubric"`
			Topic  string `json:"topic"`
			Source string `json:"source,omitempty"`
			Author string `json:"author,omitempty"`
			Image  string `json:"image,omitempty"`
			Text   string `json:"text"`
		}
		views := make([]postView, len(entries))
		for i, e := range entries {
			views[i] = postView{e.Ordinal, string(e.Status), e.Rubric, e.Topic, e.Source, e.Author, e.Image, e.Text}
		}
		return printJSON(cmd, views)
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "Queue is empty")
		return nil
	}
	for _, e := range entries {
		label := yellow(string(e.Status))
		if e.Status == domain.QueuePending {
			label = green(string(e.Status))
		}
		fmt.Fprintf(out, "#%-4d %-8s %s %s\n", e.Ordinal, label, e.Rubric, bold(e.Topic))
		if e.Source != "" {
			fmt.Fprintf(out, "      %s\n", gray(e.Source))
		}
	}
	return nil
}

func runQueueApprove(cmd *cobra.Command, args []string) error {
	ordinal, err := parseOrdinal(args[1])
	if err != nil {
		return err
	}
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	entry, err := a.Queue.Approve(cmd.Context(), args[0], ordinal)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Post #%d is %s: %s\n", green("✓"), entry.Ordinal, entry.Status, entry.Topic)
	return nil
}

var errQueueInvalid = errors.New("queue has errors")

func runQueueValidate(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	rep, err := a.Queue.Validate(cmd.Context(), args[0], queueFix)
	if err != nil {
		return err
	}

	if flagJSON {
		if err := printJSON(cmd, struct {
			OK bool `json:"ok"`
			queue.Report
		}{rep.OK(), rep}); err != nil {
			return err
		}
	} else {
		printReport(cmd, rep)
	}

	if !rep.OK() {
		return fmt.Errorf("%w: %d error(s) in %s", errQueueInvalid, len(rep.Errors), a.Store.QueuePath(args[0]))
	}
	return nil
}

func printReport(cmd *cobra.Command, rep queue.Report) {
	out := cmd.OutOrStdout()
	if rep.Fixed > 0 {
		fmt.Fprintf(out, "%s Reset %d status(es) to draft\n", yellow("!"), rep.Fixed)
	}
	for _, issue := range rep.Errors {
		fmt.Fprintf(out, "%s %s\n", red("ERROR  "), issue)
	}
	for _, issue := range rep.Warnings {
		fmt.Fprintf(out, "%s %s\n", yellow("WARNING"), issue)
	}
	if rep.OK() {
		fmt.Fprintf(out, "%s %d post(s), %d warning(s)\n", green("✓"), rep.Entries, len(rep.Warnings))
		return
	}
	fmt.Fprintf(out, "%s %d post(s), %d error(s), %d warning(s)\n", red("✗"), rep.Entries, len(rep.Errors), len(rep.Warnings))
}

func runPublish(cmd *cobra.Command, args []string) error {
	ordinal, err := parseOrdinal(args[1])
	if err != nil {
		return err
	}
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	res, err := a.Queue.Publish(cmd.Context(), args[0], ordinal, usecase.PublishOptions{Markdown: publishMarkdown})
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(cmd, res)
	}

	ids := make([]string, len(res.MessageIDs))
	for i, id := range res.MessageIDs {
		ids[i] = string(id)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Published post #%d as msg %s\n", green("✓"), res.Ordinal, strings.Join(ids, ", "))
	return nil
}

func parseOrdinal(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(raw, "#"))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("post number must be a positive integer (got %q): %w", raw, domain.ErrInvalidInput)
	}
	return n, nil
}
