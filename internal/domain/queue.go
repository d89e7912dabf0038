package domain

// QueueStatus is the review state of a queue entry. Published entries leave
// the queue, so there is no stored published state.
type QueueStatus string

const (
	QueueDraft   QueueStatus = "draft"
	QueuePending QueueStatus = "pending"
)

// Valid reports whether the status may appear in a live queue.
func (s QueueStatus) Valid() bool {
	return s == QueueDraft || s == QueuePending
}

// QueueEntry is one draft or approved post awaiting publication.
type QueueEntry struct {
	Ordinal int
	Status  QueueStatus
	Rubric  string
	Topic   string
	Source  string
	Author  string
	Image   string
	Text    string
}

// Links returns the entry's source URL as a link list for dedup checks.
func (e QueueEntry) Links() []string {
	if e.Source == "" {
		return nil
	}
	return []string{e.Source}
}

// OutgoingPost is what the publisher collaborator sends to the channel.
type OutgoingPost struct {
	Text   string
	Source string
	Image  string
	// Markdown converts the light markdown used in the queue to Telegram HTML.
	Markdown bool
}
