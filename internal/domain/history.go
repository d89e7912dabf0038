package domain

import "time"

// HistoryPost is one message fetched from a channel's published history.
type HistoryPost struct {
	ID    MessageID
	Date  time.Time
	Text  string
	Links []string
}

// HistoryRequest selects the history to fetch for a rebuild.
type HistoryRequest struct {
	// Channel is the local channel name.
	Channel string
	// Username is the public @username without the "@", for web sources.
	Username string
	// Path points to a local export for file-based sources.
	Path string
	// PageLimit caps the number of pages a paginated source may fetch.
	PageLimit int
}

// History is the result of a history fetch. Complete is false whenever the
// source could not prove it returned every post.
type History struct {
	Source   string
	Posts    []HistoryPost
	Complete bool
	Notes    []string
}
