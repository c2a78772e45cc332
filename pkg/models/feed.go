package models

import (
	"time"
)

// Note represents one unit of user-authored content resolved from the
// network. Immutable once resolved.
type Note struct {
	ID        string `json:"id"`
	Pubkey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Content   string `json:"content"`
}

// NoteStats holds externally computed engagement counters for one note.
// Stats are produced by the cache service only, never computed locally.
type NoteStats struct {
	EventID    string  `json:"event_id"`
	Likes      int64   `json:"likes"`
	Replies    int64   `json:"replies"`
	Mentions   int64   `json:"mentions"`
	Reposts    int64   `json:"reposts"`
	Zaps       int64   `json:"zaps"`
	SatsZapped int64   `json:"satszapped"`
	Score      float64 `json:"score"`
	Score24h   float64 `json:"score24h"`
}

// ItemState describes how far one feed item has progressed through
// enrichment.
type ItemState string

const (
	// StatePlaceholder means only the identifier is known.
	StatePlaceholder ItemState = "placeholder"
	// StateContentResolved means the note is filled, stats still pending.
	StateContentResolved ItemState = "content_resolved"
	// StateComplete means note and stats are both filled.
	StateComplete ItemState = "complete"
	// StateStatsUnavailable means the note is filled and the stats fetch is
	// over without a match.
	StateStatsUnavailable ItemState = "stats_unavailable"
	// StateContentUnresolved means the note could not be resolved; the
	// identifier stays visible with its pending indicator.
	StateContentUnresolved ItemState = "content_unresolved"
)

// FeedItem is the unit held in the pipeline's published collection. Fields
// fill in as enrichment progresses; an item is never removed once inserted.
type FeedItem struct {
	ID             string     `json:"id"`
	Note           *Note      `json:"note,omitempty"`
	Stats          *NoteStats `json:"stats,omitempty"`
	ContentPending bool       `json:"content_pending"`
	StatsPending   bool       `json:"stats_pending"`
}

// State derives the item's enrichment state from field presence and the
// pending flags.
func (it FeedItem) State() ItemState {
	switch {
	case it.Note == nil && it.ContentPending:
		return StatePlaceholder
	case it.Note == nil:
		return StateContentUnresolved
	case it.Stats != nil:
		return StateComplete
	case it.StatsPending:
		return StateContentResolved
	default:
		return StateStatsUnavailable
	}
}

// TrendingList is the decoded output of one discovery call: note identifiers
// in recommendation rank order plus the event that produced them.
type TrendingList struct {
	EventID   string   `json:"event_id"`
	CreatedAt int64    `json:"created_at"`
	NoteIDs   []string `json:"note_ids"`
}

// Snapshot is one immutable publication of the feed collection. Items is a
// copy; readers may hold a snapshot indefinitely without racing the
// pipeline.
type Snapshot struct {
	Items     []FeedItem `json:"items"`
	Loading   bool       `json:"loading"`
	Timestamp time.Time  `json:"timestamp"`
}
