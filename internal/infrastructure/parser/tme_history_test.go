package parser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ChannelManager/internal/domain"
)

func previewPage(ids ...int) string {
	var b strings.Builder
	b.WriteString(`<html><body><section class="tgme_channel_history">`)
	for _, id := range ids {
		if id < 0 {
			// media-only post without a text block
			fmt.Fprintf(&b, `<div class="tgme_widget_message" data-post="chan/%d"><div class="tgme_widget_message_photo"></div></div>`, -id)
			continue
		}
		fmt.Fprintf(&b, `<div class="tgme_widget_message" data-post="chan/%d">
  <div class="tgme_widget_message_text js-message_text" dir="auto">Post %d title<br/>second line <a href="https://example.com/%d">link</a> <a href="/chan">@chan</a></div>
  <a class="tgme_widget_message_date"><time datetime="2026-01-02T10:00:00+00:00">10:00</time></a>
</div>`, id, id, id)
	}
	b.WriteString(`</section></body></html>`)
	return b.String()
}

func newPreviewServer(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/s/chan" {
			http.NotFound(w, r)
			return
		}
		page, ok := pages[r.URL.Query().Get("before")]
		if !ok {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(page))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTMEHistoryFetchComplete(t *testing.T) {
	t.Parallel()

	srv := newPreviewServer(t, map[string]string{
		"":  previewPage(7, 8, 9),
		"7": previewPage(4, -5, 6),
		"4": previewPage(2, 3),
	})
	source := NewTMEHistory(srv.Client(), TMEOptions{BaseURL: srv.URL + "/s/", MinPageSize: 3}, nil)

	history, err := source.Fetch(context.Background(), domain.HistoryRequest{Channel: "news", Username: "@chan"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if !history.Complete {
		t.Fatalf("expected complete history, notes: %v", history.Notes)
	}
	if history.Source != "tme" {
		t.Fatalf("unexpected source %q", history.Source)
	}

	var ids []string
	for _, p := range history.Posts {
		ids = append(ids, string(p.ID))
	}
	if got := strings.Join(ids, ","); got != "2,3,4,6,7,8,9" {
		t.Fatalf("unexpected ids %s", got)
	}

	last := history.Posts[len(history.Posts)-1]
	if last.Text != "Post 9 title\nsecond line link @chan" {
		t.Fatalf("unexpected text %q", last.Text)
	}
	if len(last.Links) != 1 || last.Links[0] != "https://example.com/9" {
		t.Fatalf("unexpected links %v", last.Links)
	}
	if last.Date.IsZero() {
		t.Fatalf("expected parsed date")
	}
	if len(history.Notes) == 0 {
		t.Fatalf("expected coverage note")
	}
}

func TestTMEHistoryStopsAtPageLimit(t *testing.T) {
	t.Parallel()

	srv := newPreviewServer(t, map[string]string{
		"":  previewPage(7, 8, 9),
		"7": previewPage(4, 5, 6),
		"4": previewPage(1, 2, 3),
	})
	source := NewTMEHistory(srv.Client(), TMEOptions{BaseURL: srv.URL + "/s", MinPageSize: 3}, nil)

	history, err := source.Fetch(context.Background(), domain.HistoryRequest{Username: "chan", PageLimit: 2})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if history.Complete {
		t.Fatalf("history limited by pages must not be complete")
	}
	if len(history.Posts) != 6 {
		t.Fatalf("expected 6 posts, got %d", len(history.Posts))
	}
	if !strings.Contains(strings.Join(history.Notes, "\n"), "stopped after 2 pages") {
		t.Fatalf("missing page limit note: %v", history.Notes)
	}
}

func TestTMEHistoryPartialOnLaterPageError(t *testing.T) {
	t.Parallel()

	srv := newPreviewServer(t, map[string]string{
		"": previewPage(7, 8, 9),
	})
	source := NewTMEHistory(srv.Client(), TMEOptions{BaseURL: srv.URL + "/s/", MinPageSize: 3}, nil)

	history, err := source.Fetch(context.Background(), domain.HistoryRequest{Username: "chan"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if history.Complete {
		t.Fatalf("history with a failed page must not be complete")
	}
	if len(history.Posts) != 3 {
		t.Fatalf("expected 3 posts, got %d", len(history.Posts))
	}
}

func TestTMEHistoryErrors(t *testing.T) {
	t.Parallel()

	srv := newPreviewServer(t, map[string]string{})
	source := NewTMEHistory(srv.Client(), TMEOptions{BaseURL: srv.URL + "/s/"}, nil)

	if _, err := source.Fetch(context.Background(), domain.HistoryRequest{Channel: "news"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing username, got %v", err)
	}

	if _, err := source.Fetch(context.Background(), domain.HistoryRequest{Username: "chan"}); err == nil {
		t.Fatalf("expected error when the first page fails")
	}
}

func TestTMEHistoryPageURL(t *testing.T) {
	t.Parallel()

	source := NewTMEHistory(nil, TMEOptions{}, nil)
	if got := source.pageURL("chan", 0); got != "https://t.me/s/chan" {
		t.Fatalf("unexpected url %s", got)
	}
	if got := source.pageURL("chan", 120); got != "https://t.me/s/chan?before=120" {
		t.Fatalf("unexpected url %s", got)
	}
}
