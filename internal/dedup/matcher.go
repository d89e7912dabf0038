package dedup

import (
	"sort"
	"strings"

	"ChannelManager/internal/domain"
)

// Reason names the signal that triggered a match.
type Reason string

const (
	ReasonLink  Reason = "link"
	ReasonTopic Reason = "topic"
)

const matchTopicLimit = 100

// Match describes one index entry that the candidate duplicates.
type Match struct {
	Index  int              `json:"index"`
	ID     domain.MessageID `json:"msgId,omitempty"`
	Topic  string           `json:"topic"`
	Reason Reason           `json:"method"`
	Score  float64          `json:"score"`
	// Terms lists matched keywords; stem-only matches carry a trailing "*".
	Terms []string `json:"overlap,omitempty"`
	// Link is the stored link that matched, as written in the index.
	Link string `json:"link,omitempty"`
}

// Decision is the outcome of a duplicate check.
type Decision struct {
	Duplicate     bool     `json:"duplicate"`
	Matches       []Match  `json:"matches"`
	Keywords      []string `json:"keywords"`
	ComparedCount int      `json:"comparedCount"`
}

// Matcher compares candidates against index entries. It holds no index state.
type Matcher struct {
	cfg       Config
	extractor *Extractor
}

// NewMatcher builds a matcher for the given config.
func NewMatcher(cfg Config) *Matcher {
	return &Matcher{cfg: cfg, extractor: NewExtractor(cfg)}
}

// Extractor exposes the keyword extractor used by the matcher.
func (m *Matcher) Extractor() *Extractor {
	return m.extractor
}

// NewEntry builds an index entry with keywords derived from topic.
func (m *Matcher) NewEntry(id domain.MessageID, topic string, links []string) domain.IndexEntry {
	cleaned := make([]string, 0, len(links))
	for _, l := range links {
		if l = strings.TrimSpace(l); l != "" {
			cleaned = append(cleaned, l)
		}
	}
	return domain.IndexEntry{
		ID:       id,
		Topic:    topic,
		Links:    cleaned,
		Keywords: m.extractor.Keywords(topic),
	}
}

// Check reports whether topic/links duplicate any of entries. An exact link
// match short-circuits keyword scoring for that entry.
func (m *Matcher) Check(entries []domain.IndexEntry, topic string, links []string) Decision {
	candidate := m.extractor.Keywords(topic)
	normalized := make(map[string]struct{}, len(links))
	for _, l := range links {
		if n := NormalizeURL(l); n != "" {
			normalized[n] = struct{}{}
		}
	}

	decision := Decision{Keywords: candidate, ComparedCount: len(entries), Matches: []Match{}}
	for i, entry := range entries {
		if stored, ok := matchLink(normalized, entry.Links); ok {
			decision.Matches = append(decision.Matches, Match{
				Index:  i,
				ID:     entry.ID,
				Topic:  truncate(entry.Topic, matchTopicLimit),
				Reason: ReasonLink,
				Score:  1,
				Link:   stored,
			})
			continue
		}

		if len(candidate) == 0 {
			continue
		}
		score, terms := m.Score(candidate, m.entryKeywords(entry))
		if len(terms) < m.cfg.MinMatches || score < m.cfg.Threshold {
			continue
		}
		decision.Matches = append(decision.Matches, Match{
			Index:  i,
			ID:     entry.ID,
			Topic:  truncate(entry.Topic, matchTopicLimit),
			Reason: ReasonTopic,
			Score:  score,
			Terms:  terms,
		})
	}

	sort.SliceStable(decision.Matches, func(i, j int) bool {
		a, b := decision.Matches[i], decision.Matches[j]
		if (a.Reason == ReasonLink) != (b.Reason == ReasonLink) {
			return a.Reason == ReasonLink
		}
		return a.Score > b.Score
	})
	decision.Duplicate = len(decision.Matches) > 0
	return decision
}

// Score compares two keyword sets. Exact matches are counted first; the
// remaining tokens are paired one-to-one by stem, so a token never counts
// twice. The score is matched/max(|a|,|b|).
func (m *Matcher) Score(a, b []string) (float64, []string) {
	if len(a) == 0 || len(b) == 0 {
		return 0, nil
	}

	inB := make(map[string]bool, len(b))
	for _, w := range b {
		inB[w] = true
	}
	used := make(map[string]bool, len(b))

	var terms, rest []string
	for _, w := range a {
		if inB[w] && !used[w] {
			used[w] = true
			terms = append(terms, w)
			continue
		}
		rest = append(rest, w)
	}
	for _, w := range rest {
		ws := m.stem(w)
		for _, other := range b {
			if used[other] || m.stem(other) != ws {
				continue
			}
			used[other] = true
			terms = append(terms, w+"*")
			break
		}
	}

	return float64(len(terms)) / float64(max(len(a), len(b))), terms
}

func (m *Matcher) entryKeywords(entry domain.IndexEntry) []string {
	if len(entry.Keywords) > 0 {
		return m.extractor.Filter(entry.Keywords)
	}
	return m.extractor.Keywords(entry.Topic)
}

func (m *Matcher) stem(w string) string {
	r := []rune(w)
	if len(r) > m.cfg.StemLength {
		r = r[:m.cfg.StemLength]
	}
	return string(r)
}

func matchLink(candidates map[string]struct{}, stored []string) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	for _, l := range stored {
		if _, ok := candidates[NormalizeURL(l)]; ok {
			return l, true
		}
	}
	return "", false
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
