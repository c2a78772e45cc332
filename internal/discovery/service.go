package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/KashirApp/Kashir-sub002/internal/relay"
	"github.com/KashirApp/Kashir-sub002/pkg/logging"
	"github.com/KashirApp/Kashir-sub002/pkg/models"
)

const (
	// DefaultProviderPubkey is the account the curation service publishes
	// trending lists from.
	DefaultProviderPubkey = "3f770d65d3a764a9c5cb503ae123e62ec7598ad035d836e2a810f3877a745b24"

	// DefaultEventKind is the event kind carrying a trending list payload.
	DefaultEventKind = 30078

	// candidateLimit bounds how many recent provider events are requested.
	candidateLimit = 50

	// candidatesEvaluated bounds how many of those are actually parsed,
	// most recent first.
	candidatesEvaluated = 3

	defaultTimeout = 15 * time.Second
)

// Service discovers the current trending note identifiers from the
// recommendation provider.
type Service struct {
	querier relay.Querier
	logger  logging.Logger
	pubkey  string
	kind    int
	timeout time.Duration
}

// Config represents configuration for the discovery service
type Config struct {
	Querier relay.Querier
	Logger  logging.Logger

	// ProviderPubkey overrides the default provider identity.
	ProviderPubkey string
	// EventKind overrides the default trending list kind.
	EventKind int
	Timeout   time.Duration
}

// NewService creates a new discovery service
func NewService(cfg Config) *Service {
	if cfg.ProviderPubkey == "" {
		cfg.ProviderPubkey = DefaultProviderPubkey
	}
	if cfg.EventKind == 0 {
		cfg.EventKind = DefaultEventKind
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Service{
		querier: cfg.Querier,
		logger:  cfg.Logger,
		pubkey:  cfg.ProviderPubkey,
		kind:    cfg.EventKind,
		timeout: cfg.Timeout,
	}
}

// Discover returns the most recent parseable trending list, or (nil, nil)
// when the provider has no usable data. The nil result is a legitimate
// outcome, distinct from a network failure.
func (s *Service) Discover(ctx context.Context) (*models.TrendingList, error) {
	events, err := s.querier.Query(ctx, relay.Filter{
		Authors: []string{s.pubkey},
		Kinds:   []int{s.kind},
		Limit:   candidateLimit,
	}, s.timeout)
	if err != nil {
		return nil, fmt.Errorf("trending discovery query: %w", err)
	}

	// Most recent first. Creation timestamps are not guaranteed monotonic
	// per author, so sort rather than trust relay order.
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt > events[j].CreatedAt
	})

	limit := candidatesEvaluated
	if len(events) < limit {
		limit = len(events)
	}
	for i := 0; i < limit; i++ {
		evt := events[i]
		ids := parseTrendingTags(evt.Content)
		if len(ids) == 0 {
			s.logger.WithFields(logging.Fields{
				"event_id":  evt.ID,
				"candidate": i,
			}).Debug("Candidate trending event yielded no identifiers")
			continue
		}
		s.logger.WithFields(logging.Fields{
			"event_id": evt.ID,
			"notes":    len(ids),
		}).Info("Trending list discovered")
		return &models.TrendingList{
			EventID:   evt.ID,
			CreatedAt: evt.CreatedAt,
			NoteIDs:   ids,
		}, nil
	}

	s.logger.WithField("candidates", len(events)).Info("No usable trending data")
	return nil, nil
}

// parseTrendingTags extracts note identifiers from a trending list body: a
// JSON array of [name, value] tag pairs where only "e" tags carry note ids.
func parseTrendingTags(content string) []string {
	var tags [][]string
	if err := json.Unmarshal([]byte(content), &tags); err != nil {
		return nil
	}
	var ids []string
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == "e" && tag[1] != "" {
			ids = append(ids, tag[1])
		}
	}
	return ids
}
