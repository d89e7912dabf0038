package queue

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"ChannelManager/internal/dedup"
	"ChannelManager/internal/domain"
)

// Level is the severity of a validation issue.
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
)

// Issue is a single problem found in a queue entry.
type Issue struct {
	Ordinal int    `json:"post"`
	Line    int    `json:"line"`
	Level   Level  `json:"level"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("#%d (line %d): %s", i.Ordinal, i.Line, i.Message)
}

// Report collects validation results for one queue file.
type Report struct {
	Entries  int     `json:"posts"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
	Fixed    int     `json:"fixed"`
}

// OK reports whether the queue has no errors. Warnings do not count.
func (r Report) OK() bool {
	return len(r.Errors) == 0
}

// Validator checks queue entries, optionally against the dedup index.
type Validator struct {
	matcher *dedup.Matcher
	index   []domain.IndexEntry
}

// NewValidator returns a validator. With a nil matcher the index
// cross-reference is skipped.
func NewValidator(matcher *dedup.Matcher, index []domain.IndexEntry) *Validator {
	return &Validator{matcher: matcher, index: index}
}

// Validate inspects every entry of doc. It never modifies doc.
func (v *Validator) Validate(doc *Document) Report {
	rep := Report{Entries: len(doc.Items), Errors: []Issue{}, Warnings: []Issue{}}
	seen := map[int]int{}

	for _, it := range doc.Items {
		e := it.Entry
		errorf := func(field, format string, args ...any) {
			rep.Errors = append(rep.Errors, Issue{
				Ordinal: e.Ordinal, Line: it.FieldLine(field), Level: LevelError,
				Field: field, Message: fmt.Sprintf(format, args...),
			})
		}
		warnf := func(field, format string, args ...any) {
			rep.Warnings = append(rep.Warnings, Issue{
				Ordinal: e.Ordinal, Line: it.FieldLine(field), Level: LevelWarning,
				Field: field, Message: fmt.Sprintf(format, args...),
			})
		}

		if first, ok := seen[e.Ordinal]; ok {
			rep.Errors = append(rep.Errors, Issue{
				Ordinal: e.Ordinal, Line: it.Line, Level: LevelError,
				Message: fmt.Sprintf("duplicate post number (first at line %d); renumber this entry", first),
			})
		} else {
			seen[e.Ordinal] = it.Line
		}

		switch {
		case !it.HasField(FieldStatus):
			errorf(FieldStatus, "missing Status; add \"- **Status:** %s\" or run with --fix", domain.QueueDraft)
		case !e.Status.Valid():
			errorf(FieldStatus, "invalid Status %q (expected: %s, %s); run with --fix to reset it to %s",
				string(e.Status), domain.QueueDraft, domain.QueuePending, domain.QueueDraft)
		}

		for _, f := range []struct{ name, value string }{
			{FieldRubric, e.Rubric},
			{FieldTopic, e.Topic},
		} {
			switch {
			case !it.HasField(f.name):
				errorf(f.name, "missing field %s", f.name)
			case f.value == "":
				errorf(f.name, "%s is empty", f.name)
			}
		}
		if strings.TrimSpace(e.Text) == "" {
			errorf(FieldText, "empty post text")
		}

		if e.Source != "" && !isHTTPURL(e.Source) {
			errorf(FieldSource, "invalid Source URL: %s", e.Source)
		}
		if e.Rubric != "" && !startsWithEmoji(e.Rubric) {
			warnf(FieldRubric, "Rubric should start with an emoji")
		}
		if e.Image != "" && !isHTTPURL(e.Image) {
			warnf(FieldImage, "invalid Image URL: %s", e.Image)
		}

		if v.matcher != nil && len(v.index) > 0 {
			d := v.matcher.Check(v.index, e.Topic, e.Links())
			if d.Duplicate {
				m := d.Matches[0]
				warnf(FieldTopic, "already in dedup index as msg %s (%s, score %.2f): %q; drop or rewrite this entry",
					idOrDash(m.ID), m.Reason, m.Score, m.Topic)
			}
		}
	}
	return rep
}

// Fix coerces every missing or unrecognized status to draft and returns the
// number of entries changed. Entries are never removed or promoted.
func Fix(doc *Document) int {
	fixed := 0
	for i := range doc.Items {
		if doc.Items[i].Entry.Status.Valid() {
			continue
		}
		doc.SetStatus(i, domain.QueueDraft)
		fixed++
	}
	return fixed
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func startsWithEmoji(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return false
	}
	if unicode.Is(unicode.So, r) {
		return true
	}
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF,
		r >= 0x2600 && r <= 0x27BF,
		r >= 0xFE00 && r <= 0xFE0F,
		r == 0x200D:
		return true
	}
	return false
}

func idOrDash(id domain.MessageID) string {
	if id == "" {
		return "-"
	}
	return string(id)
}
