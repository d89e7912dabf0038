package dedup

import (
	"sort"
	"strings"
	"unicode"
)

// defaultStopwords are function words that carry no topical signal.
// Only words of four or more letters matter; shorter ones never become keywords.
var defaultStopwords = []string{
	// english
	"this", "that", "with", "from", "have", "been", "will", "what", "when",
	"which", "their", "about", "would", "could", "should", "more", "some",
	"into", "than", "other", "these", "those", "just", "also", "only",
	"there", "they", "them", "then", "were", "your", "over", "after",
	"before", "most", "many", "much", "very", "here", "where", "while",
	"does", "being", "each", "such", "both", "like", "between", "through",
	"agent", "agents",
	// russian
	"этот", "этом", "этого", "того", "чтобы", "который", "которые",
	"которая", "также", "более", "можно", "будет", "после", "через",
	"когда", "только", "свой", "своих", "даже", "есть", "если", "теперь",
	"всех", "всего", "очень", "между", "почему",
}

// Extractor derives keyword sets from topic text.
type Extractor struct {
	minLen    int
	stopwords map[string]struct{}
}

// NewExtractor builds an extractor for the given config.
func NewExtractor(cfg Config) *Extractor {
	stop := make(map[string]struct{}, len(defaultStopwords)+len(cfg.ExtraStopwords))
	for _, w := range defaultStopwords {
		stop[w] = struct{}{}
	}
	for _, w := range cfg.ExtraStopwords {
		stop[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	minLen := cfg.MinTokenLength
	if minLen < 1 {
		minLen = DefaultConfig().MinTokenLength
	}
	return &Extractor{minLen: minLen, stopwords: stop}
}

// Keywords returns the sorted keyword set of text: lowercase letter/digit runs
// of at least minLen runes that contain a letter and are not stopwords.
func (e *Extractor) Keywords(text string) []string {
	seen := map[string]struct{}{}
	for _, token := range tokenize(text) {
		if e.keep(token) {
			seen[token] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// Filter lowercases a cached keyword list and re-applies the stopword and
// length rules, so entries written by older tooling compare consistently.
func (e *Extractor) Filter(words []string) []string {
	seen := map[string]struct{}{}
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if e.keep(w) {
			seen[w] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

func (e *Extractor) keep(token string) bool {
	if len([]rune(token)) < e.minLen {
		return false
	}
	if _, stop := e.stopwords[token]; stop {
		return false
	}
	return strings.IndexFunc(token, unicode.IsLetter) >= 0
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NormalizeURL reduces a URL to the form used for exact link matching:
// no scheme, lowercase host without a leading "www.", no trailing slash.
// It is idempotent.
func NormalizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	if i := strings.Index(u, "://"); i > 0 && isScheme(u[:i]) {
		u = u[i+3:]
	}

	host, rest := u, ""
	if i := strings.IndexAny(u, "/?#"); i >= 0 {
		host, rest = u[:i], u[i:]
	}
	host = strings.ToLower(host)
	for strings.HasPrefix(host, "www.") {
		host = host[len("www."):]
	}

	return strings.TrimRight(host+rest, "/")
}

func isScheme(s string) bool {
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}
