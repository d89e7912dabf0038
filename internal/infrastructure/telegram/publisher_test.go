package telegram

import (
	"context"
	"strings"
	"testing"

	"ChannelManager/internal/domain"
)

func TestPublisherTextOnly(t *testing.T) {
	t.Parallel()

	api, client := newFakeAPI(t, map[string]string{
		"sendMessage": `{"ok":true,"result":{"message_id":10}}`,
	})

	ids, err := NewPublisher(client).Publish(context.Background(), "-100", domain.OutgoingPost{
		Text:     "**Hi**",
		Source:   "https://example.com/a",
		Markdown: true,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(ids) != 1 || ids[0] != "10" {
		t.Fatalf("unexpected ids %v", ids)
	}

	params := api.recorded()[0].params
	if params["parse_mode"] != "HTML" || !strings.HasPrefix(params["text"], "<b>Hi</b>\n\n🔗 <a href=") {
		t.Fatalf("unexpected params %v", params)
	}
}

func TestPublisherShortCaption(t *testing.T) {
	t.Parallel()

	api, client := newFakeAPI(t, map[string]string{
		"sendPhoto": `{"ok":true,"result":{"message_id":11}}`,
	})

	ids, err := NewPublisher(client).Publish(context.Background(), "-100", domain.OutgoingPost{
		Text:  "short",
		Image: "https://example.com/i.png",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(ids) != 1 || ids[0] != "11" {
		t.Fatalf("unexpected ids %v", ids)
	}
	if got := api.recorded()[0].params; got["photo"] != "https://example.com/i.png" || got["caption"] != "short" {
		t.Fatalf("unexpected params %v", got)
	}
}

func TestPublisherSplitsLongCaption(t *testing.T) {
	t.Parallel()

	api, client := newFakeAPI(t, map[string]string{
		"sendPhoto":   `{"ok":true,"result":{"message_id":20}}`,
		"sendMessage": `{"ok":true,"result":{"message_id":21}}`,
	})

	text := strings.Repeat("a", 900) + "\n\n" + strings.Repeat("b", 400)
	ids, err := NewPublisher(client).Publish(context.Background(), "-100", domain.OutgoingPost{
		Text:   text,
		Image:  "https://example.com/i.png",
		Source: "https://example.com/src",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(ids) != 2 || ids[0] != "20" || ids[1] != "21" {
		t.Fatalf("unexpected ids %v", ids)
	}
	if len(api.recorded()) != 2 || api.recorded()[0].method != "sendPhoto" || api.recorded()[1].method != "sendMessage" {
		t.Fatalf("unexpected calls %+v", api.recorded())
	}
	if api.recorded()[0].params["caption"] != strings.Repeat("a", 900) {
		t.Fatalf("unexpected caption length %d", len(api.recorded()[0].params["caption"]))
	}
	if !strings.HasSuffix(api.recorded()[1].params["text"], "Source: https://example.com/src") {
		t.Fatalf("source link missing from the tail: %q", api.recorded()[1].params["text"])
	}
}
