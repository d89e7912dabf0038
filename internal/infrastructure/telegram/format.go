package telegram

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Bot API limits, counted in characters.
const (
	CaptionLimit = 1024
	MessageLimit = 4096
)

var (
	headerExpr = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	boldExpr   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	codeExpr   = regexp.MustCompile("`([^`]+)`")

	htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
)

// MarkdownToHTML converts the markdown subset used in queue posts to
// Telegram HTML: headings and **bold** become <b>, `code` becomes <code>,
// and runs of "> " lines become one <blockquote>.
func MarkdownToHTML(text string) string {
	var (
		out   []string
		quote []string
	)
	flush := func() {
		if len(quote) > 0 {
			out = append(out, "<blockquote>"+strings.Join(quote, "\n")+"</blockquote>")
			quote = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, ">") {
			quote = append(quote, inline(htmlEscaper.Replace(strings.TrimLeft(trimmed[1:], " \t"))))
			continue
		}
		flush()

		if m := headerExpr.FindStringSubmatch(trimmed); m != nil {
			heading := strings.ReplaceAll(m[2], "**", "")
			out = append(out, "<b>"+inline(htmlEscaper.Replace(heading))+"</b>")
			continue
		}
		out = append(out, inline(htmlEscaper.Replace(line)))
	}
	flush()

	return strings.Join(out, "\n")
}

func inline(s string) string {
	s = boldExpr.ReplaceAllString(s, "<b>$1</b>")
	return codeExpr.ReplaceAllString(s, "<code>$1</code>")
}

// AppendSource adds the source link after the post body.
func AppendSource(text, source string, html bool) string {
	if source == "" {
		return text
	}
	if html {
		return text + "\n\n🔗 <a href=\"" + htmlEscaper.Replace(source) + "\">Source</a>"
	}
	return text + "\n\n🔗 Source: " + source
}

// SplitText cuts text at the last paragraph break, line break or space that
// keeps head within limit characters. A heading is never left as the last
// paragraph of head.
func SplitText(text string, limit int) (head, tail string) {
	if utf8.RuneCountInString(text) <= limit {
		return text, ""
	}
	cut := byteOffset(text, limit)
	window := text[:cut]

	if pos := strings.LastIndex(window, "\n\n"); pos > 0 {
		head = text[:pos]
		lastLine := head[strings.LastIndex(head, "\n")+1:]
		if strings.HasPrefix(strings.TrimLeft(lastLine, " \t"), "#") {
			if earlier := strings.LastIndex(text[:pos], "\n\n"); earlier > 0 {
				return text[:earlier], text[earlier+2:]
			}
		}
		return head, text[pos+2:]
	}
	if pos := strings.LastIndex(window, "\n"); pos > 0 {
		return text[:pos], text[pos+1:]
	}
	if pos := strings.LastIndex(window, " "); pos > 0 {
		return text[:pos], text[pos+1:]
	}
	return window, text[cut:]
}

// Truncate shortens text to at most limit characters.
func Truncate(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return text[:byteOffset(text, limit)]
}

// byteOffset returns the byte index just past the first n runes of s.
func byteOffset(s string, n int) int {
	i := 0
	for pos := range s {
		if i == n {
			return pos
		}
		i++
	}
	return len(s)
}
