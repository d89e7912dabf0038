package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"ChannelManager/internal/domain"
	"ChannelManager/internal/ports"
)

const exportDateLayout = "2006-01-02T15:04:05"

// ExportHistory reads a Telegram Desktop "Export chat history" result.json.
type ExportHistory struct{}

var _ ports.HistorySource = (*ExportHistory)(nil)

// NewExportHistory returns the desktop-export source.
func NewExportHistory() *ExportHistory {
	return &ExportHistory{}
}

// Name identifies the source inside the registry.
func (e *ExportHistory) Name() string {
	return "export"
}

type exportFile struct {
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Messages []exportMessage `json:"messages"`
}

type exportMessage struct {
	ID   int64      `json:"id"`
	Type string     `json:"type"`
	Date string     `json:"date"`
	Text exportText `json:"text"`
}

// exportText is either a plain string or a list of strings and entity objects.
type exportText struct {
	plain string
	links []string
}

type exportEntity struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Href string `json:"href"`
}

func (t *exportText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		return json.Unmarshal(data, &t.plain)
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}

	var b strings.Builder
	for _, part := range parts {
		part = bytes.TrimSpace(part)
		if len(part) > 0 && part[0] == '"' {
			var s string
			if err := json.Unmarshal(part, &s); err != nil {
				return err
			}
			b.WriteString(s)
			continue
		}

		var ent exportEntity
		if err := json.Unmarshal(part, &ent); err != nil {
			return err
		}
		b.WriteString(ent.Text)
		switch ent.Type {
		case "link":
			t.links = append(t.links, ent.Text)
		case "text_link":
			t.links = append(t.links, ent.Href)
		}
	}
	t.plain = b.String()
	return nil
}

// Fetch reads every regular message of the export. Exports hold the full
// history, so the result is complete.
func (e *ExportHistory) Fetch(ctx context.Context, req domain.HistoryRequest) (domain.History, error) {
	if req.Path == "" {
		return domain.History{}, fmt.Errorf("export source needs the path to result.json (--export-path): %w", domain.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return domain.History{}, err
	}

	raw, err := os.ReadFile(req.Path)
	if err != nil {
		return domain.History{}, fmt.Errorf("read export %s: %w", req.Path, err)
	}

	var file exportFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return domain.History{}, fmt.Errorf("decode export %s: %v: %w", req.Path, err, domain.ErrCorrupt)
	}

	history := domain.History{Source: e.Name(), Complete: true}
	if file.Type != "" && !strings.HasSuffix(file.Type, "channel") {
		history.Notes = append(history.Notes, fmt.Sprintf("export %q is a %s, not a channel", file.Name, file.Type))
	}

	for _, msg := range file.Messages {
		if msg.Type != "message" {
			continue
		}
		text := strings.TrimSpace(msg.Text.plain)
		if text == "" {
			continue
		}

		post := domain.HistoryPost{
			ID:    domain.MessageID(strconv.FormatInt(msg.ID, 10)),
			Text:  text,
			Links: msg.Text.links,
		}
		if ts, err := time.Parse(exportDateLayout, msg.Date); err == nil {
			post.Date = ts
		}
		history.Posts = append(history.Posts, post)
	}

	sort.SliceStable(history.Posts, func(i, j int) bool {
		return numericID(history.Posts[i].ID) < numericID(history.Posts[j].ID)
	})

	return history, nil
}
