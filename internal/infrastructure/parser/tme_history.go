package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"ChannelManager/internal/domain"
	"ChannelManager/internal/ports"
)

const (
	tmeBaseURL = "https://t.me/s/"

	// DefaultPageLimit caps how many preview pages one rebuild fetches.
	DefaultPageLimit = 20
	// DefaultMinPageSize is the page size below which the preview is assumed
	// to have reached the start of the channel. Full pages hold about 20 posts.
	DefaultMinPageSize = 10
)

const tmeCoverageNote = "the t.me web preview omits some posts (service messages, some media-only posts); treat the rebuilt index as best-effort"

var blankLinesExpr = regexp.MustCompile(`\n{3,}`)

// TMEOptions tunes the t.me preview source.
type TMEOptions struct {
	BaseURL           string
	MinPageSize       int
	RequestsPerSecond float64
}

// TMEHistory reads a public channel's history from the t.me/s/<username> web preview.
type TMEHistory struct {
	client      *http.Client
	baseURL     string
	minPageSize int
	limiter     *rate.Limiter
	logger      *slog.Logger
}

var _ ports.HistorySource = (*TMEHistory)(nil)

// NewTMEHistory wires an HTTP client; zero options fall back to defaults.
func NewTMEHistory(client *http.Client, opts TMEOptions, logger *slog.Logger) *TMEHistory {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = tmeBaseURL
	}
	if opts.MinPageSize <= 0 {
		opts.MinPageSize = DefaultMinPageSize
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &TMEHistory{
		client:      client,
		baseURL:     strings.TrimSuffix(opts.BaseURL, "/") + "/",
		minPageSize: opts.MinPageSize,
		limiter:     rate.NewLimiter(limit, 1),
		logger:      logger,
	}
}

// Name identifies the source inside the registry.
func (t *TMEHistory) Name() string {
	return "tme"
}

// Fetch pages backwards through the preview until the start of the channel
// or the page limit. The result is complete only when the start was reached.
func (t *TMEHistory) Fetch(ctx context.Context, req domain.HistoryRequest) (domain.History, error) {
	username := strings.TrimPrefix(strings.TrimSpace(req.Username), "@")
	if username == "" {
		return domain.History{}, fmt.Errorf("channel %q has no public @username; the t.me preview needs one, use --source export with a desktop export instead: %w",
			req.Channel, domain.ErrInvalidInput)
	}

	pageLimit := req.PageLimit
	if pageLimit <= 0 {
		pageLimit = DefaultPageLimit
	}

	history := domain.History{Source: t.Name(), Notes: []string{tmeCoverageNote}}
	seen := map[domain.MessageID]struct{}{}
	var before int64

	for page := 1; ; page++ {
		if page > pageLimit {
			history.Notes = append(history.Notes, fmt.Sprintf(
				"stopped after %d pages; posts older than message %d were not fetched (raise history.pageLimit)", pageLimit, before))
			break
		}

		if err := t.limiter.Wait(ctx); err != nil {
			return domain.History{}, fmt.Errorf("wait for rate limiter: %w", err)
		}

		doc, err := t.fetchDocument(ctx, t.pageURL(username, before))
		if err != nil {
			if page == 1 {
				return domain.History{}, fmt.Errorf("fetch @%s: %w", username, err)
			}
			t.logger.Warn("page fetch failed, returning partial history", "username", username, "page", page, "error", err)
			history.Notes = append(history.Notes, fmt.Sprintf("page %d failed (%v); posts older than message %d were not fetched", page, err, before))
			break
		}

		posts, blocks, minID := extractPosts(doc)
		t.logger.Debug("fetched preview page", "username", username, "page", page, "blocks", blocks, "posts", len(posts), "min_id", minID)

		for _, post := range posts {
			if _, ok := seen[post.ID]; ok {
				continue
			}
			seen[post.ID] = struct{}{}
			history.Posts = append(history.Posts, post)
		}

		if blocks < t.minPageSize || minID <= 1 || (before != 0 && minID >= before) {
			history.Complete = true
			break
		}
		before = minID
	}

	if len(history.Posts) == 0 {
		history.Notes = append(history.Notes, fmt.Sprintf("no posts found on %s%s", t.baseURL, username))
	}

	sort.SliceStable(history.Posts, func(i, j int) bool {
		return numericID(history.Posts[i].ID) < numericID(history.Posts[j].ID)
	})

	return history, nil
}

func (t *TMEHistory) pageURL(username string, before int64) string {
	u := t.baseURL + url.PathEscape(username)
	if before > 0 {
		u += "?" + url.Values{"before": {strconv.FormatInt(before, 10)}}.Encode()
	}
	return u
}

func (t *TMEHistory) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; tgcm/1.0)")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("t.me returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	return doc, nil
}

// extractPosts returns posts with text, the number of message blocks on the
// page and the smallest message id seen.
func extractPosts(doc *goquery.Document) ([]domain.HistoryPost, int, int64) {
	var (
		posts  []domain.HistoryPost
		blocks int
		minID  int64
	)

	doc.Find("[data-post]").Each(func(_ int, msg *goquery.Selection) {
		ref, _ := msg.Attr("data-post")
		id, err := strconv.ParseInt(ref[strings.LastIndex(ref, "/")+1:], 10, 64)
		if err != nil {
			return
		}
		blocks++
		if minID == 0 || id < minID {
			minID = id
		}

		post, ok := parsePost(msg, id)
		if ok {
			posts = append(posts, post)
		}
	})

	return posts, blocks, minID
}

func parsePost(msg *goquery.Selection, id int64) (domain.HistoryPost, bool) {
	body := msg.Find(".js-message_text").First()
	if body.Length() == 0 {
		body = msg.Find(".tgme_widget_message_text").First()
	}

	body.Find("br").ReplaceWithHtml("\n")
	text := blankLinesExpr.ReplaceAllString(body.Text(), "\n\n")
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.HistoryPost{}, false
	}

	var links []string
	body.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
			links = append(links, href)
		}
	})

	post := domain.HistoryPost{
		ID:    domain.MessageID(strconv.FormatInt(id, 10)),
		Text:  text,
		Links: links,
	}
	if stamp, ok := msg.Find("time[datetime]").First().Attr("datetime"); ok {
		if parsed, err := time.Parse(time.RFC3339, stamp); err == nil {
			post.Date = parsed.UTC()
		}
	}

	return post, true
}

func numericID(id domain.MessageID) int64 {
	n, _ := strconv.ParseInt(string(id), 10, 64)
	return n
}
