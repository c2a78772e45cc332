package relay

import (
	"context"
	"time"
)

// Event is one signed unit of content received from the network.
type Event struct {
	ID        string     `json:"id"`
	Pubkey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// Filter scopes a relay query. Zero-valued fields are omitted from the wire
// representation.
type Filter struct {
	IDs     []string `json:"ids,omitempty"`
	Authors []string `json:"authors,omitempty"`
	Kinds   []int    `json:"kinds,omitempty"`
	Refs    []string `json:"#e,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

// Querier is the content-network query capability. Implementations return the
// events matching filter or fail on timeout/transport error; they never
// mutate local state.
type Querier interface {
	Query(ctx context.Context, filter Filter, timeout time.Duration) ([]Event, error)
}
