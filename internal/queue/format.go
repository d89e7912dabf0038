// Package queue reads and edits the human-readable post queue file.
//
// A queue is a sequence of entries:
//
//	### 3
//	- **Status:** draft
//	- **Rubric:** 🧠 Research
//	- **Topic:** Sparse attention benchmarks
//	- **Source:** https://example.com/paper
//	- **Text:**
//
//	Body text up to the next numeric heading.
//
// Edits patch individual lines so that untouched entries stay byte-identical.
package queue

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"ChannelManager/internal/domain"
)

// Field labels in their fixed file order.
const (
	FieldStatus = "Status"
	FieldRubric = "Rubric"
	FieldTopic  = "Topic"
	FieldSource = "Source"
	FieldAuthor = "Author"
	FieldImage  = "Image"
	FieldText   = "Text"
)

var (
	headerExpr = regexp.MustCompile(`^### (\d+)\s*$`)
	fieldExpr  = regexp.MustCompile(`^- \*\*(\w+):\*\*\s*(.*)$`)
)

// Item is a parsed entry together with its position in the file.
type Item struct {
	Entry domain.QueueEntry
	// Line is the 1-based line of the "### n" heading.
	Line int

	start, end int
	fields     map[string]int
}

// HasField reports whether the field label appeared in the entry.
func (it Item) HasField(name string) bool {
	_, ok := it.fields[name]
	return ok
}

// FieldLine returns the 1-based line of a field, or the heading line when absent.
func (it Item) FieldLine(name string) int {
	if idx, ok := it.fields[name]; ok {
		return idx + 1
	}
	return it.Line
}

// Document is a parsed queue file.
type Document struct {
	lines []string
	Items []Item
}

// Parse reads queue content. It never fails: lines that are not part of an
// entry are kept verbatim and ignored.
func Parse(content []byte) *Document {
	doc := &Document{lines: strings.Split(string(content), "\n")}
	doc.index()
	return doc
}

func (d *Document) index() {
	d.Items = nil
	var (
		cur    *Item
		inText bool
		body   []string
	)

	flush := func(end int) {
		if cur == nil {
			return
		}
		cur.end = end
		cur.Entry.Text = strings.Trim(strings.Join(body, "\n"), "\n")
		d.Items = append(d.Items, *cur)
	}

	for i, raw := range d.lines {
		if m := headerExpr.FindStringSubmatch(raw); m != nil {
			flush(i)
			n, _ := strconv.Atoi(m[1])
			cur = &Item{
				Entry:  domain.QueueEntry{Ordinal: n},
				Line:   i + 1,
				start:  i,
				fields: map[string]int{},
			}
			inText, body = false, nil
			continue
		}
		if cur == nil {
			continue
		}
		if inText {
			body = append(body, raw)
			continue
		}

		m := fieldExpr.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		name, value := m[1], strings.TrimSpace(m[2])
		cur.fields[name] = i
		switch name {
		case FieldStatus:
			cur.Entry.Status = domain.QueueStatus(value)
		case FieldRubric:
			cur.Entry.Rubric = value
		case FieldTopic:
			cur.Entry.Topic = value
		case FieldSource:
			cur.Entry.Source = value
		case FieldAuthor:
			cur.Entry.Author = value
		case FieldImage:
			cur.Entry.Image = value
		case FieldText:
			inText = true
			if value != "" {
				body = append(body, value)
			}
		}
	}
	flush(len(d.lines))
}

// Bytes returns the current file content.
func (d *Document) Bytes() []byte {
	return []byte(strings.Join(d.lines, "\n"))
}

// Entries returns the parsed entries in file order.
func (d *Document) Entries() []domain.QueueEntry {
	out := make([]domain.QueueEntry, len(d.Items))
	for i, it := range d.Items {
		out[i] = it.Entry
	}
	return out
}

// Find returns the positions of items with the given ordinal.
func (d *Document) Find(ordinal int) []int {
	var out []int
	for i, it := range d.Items {
		if it.Entry.Ordinal == ordinal {
			out = append(out, i)
		}
	}
	return out
}

// NextOrdinal returns one more than the largest ordinal in the queue.
func (d *Document) NextOrdinal() int {
	next := 1
	for _, it := range d.Items {
		if it.Entry.Ordinal >= next {
			next = it.Entry.Ordinal + 1
		}
	}
	return next
}

// Counts returns the number of entries per status token.
func (d *Document) Counts() map[domain.QueueStatus]int {
	out := map[domain.QueueStatus]int{}
	for _, it := range d.Items {
		out[it.Entry.Status]++
	}
	return out
}

// SetStatus rewrites the status line of item i, inserting one after the
// heading when the entry has none. Other lines are left untouched.
func (d *Document) SetStatus(i int, status domain.QueueStatus) {
	it := d.Items[i]
	line := fieldLine(FieldStatus, string(status))
	if idx, ok := it.fields[FieldStatus]; ok {
		d.lines[idx] = line
	} else {
		d.lines = insert(d.lines, it.start+1, line)
	}
	d.index()
}

// Remove deletes item i, from its heading up to the next heading.
func (d *Document) Remove(i int) {
	it := d.Items[i]
	lines := append(append([]string{}, d.lines[:it.start]...), d.lines[it.end:]...)
	if n := len(lines); n > 0 && lines[n-1] != "" {
		lines = append(lines, "")
	}
	d.lines = lines
	d.index()
}

// Append adds an entry at the end of the file, separated by a blank line.
func (d *Document) Append(entry domain.QueueEntry) {
	lines := d.lines
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) > 0 {
		lines = append(lines, "")
	}
	d.lines = append(lines, strings.Split(Render(entry), "\n")...)
	d.index()
}

// Render formats a single entry. Optional fields that are empty are omitted.
func Render(e domain.QueueEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### %d\n", e.Ordinal)
	b.WriteString(fieldLine(FieldStatus, string(e.Status)) + "\n")
	b.WriteString(fieldLine(FieldRubric, e.Rubric) + "\n")
	b.WriteString(fieldLine(FieldTopic, e.Topic) + "\n")
	for _, f := range []struct{ name, value string }{
		{FieldSource, e.Source},
		{FieldAuthor, e.Author},
		{FieldImage, e.Image},
	} {
		if f.value != "" {
			b.WriteString(fieldLine(f.name, f.value) + "\n")
		}
	}
	b.WriteString(fieldLine(FieldText, "") + "\n")
	if e.Text != "" {
		b.WriteString("\n" + e.Text + "\n")
	}
	return b.String()
}

// HeadingLine returns the 1-based line of the first line in text that would
// be read back as an entry heading.
func HeadingLine(text string) (int, bool) {
	for i, line := range strings.Split(text, "\n") {
		if headerExpr.MatchString(line) {
			return i + 1, true
		}
	}
	return 0, false
}

func fieldLine(name, value string) string {
	if value == "" {
		return fmt.Sprintf("- **%s:**", name)
	}
	return fmt.Sprintf("- **%s:** %s", name, value)
}

func insert(lines []string, at int, line string) []string {
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:at]...)
	out = append(out, line)
	return append(out, lines[at:]...)
}
