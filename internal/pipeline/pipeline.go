package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/KashirApp/Kashir-sub002/internal/metrics"
	"github.com/KashirApp/Kashir-sub002/pkg/clients"
	"github.com/KashirApp/Kashir-sub002/pkg/logging"
	"github.com/KashirApp/Kashir-sub002/pkg/models"
)

// Discoverer produces the trending identifier list. A nil list with nil
// error means no trending data is available.
type Discoverer interface {
	Discover(ctx context.Context) (*models.TrendingList, error)
}

// NoteResolver resolves identifiers one at a time, reporting every outcome
// through the callback.
type NoteResolver interface {
	ResolveEach(ctx context.Context, ids []string, fn func(id string, note *models.Note, err error))
}

// StatsFetcher fetches engagement statistics in one batched call.
type StatsFetcher interface {
	FetchStats(ctx context.Context, ids []string) ([]models.NoteStats, error)
}

// Synthetic item identifiers published when discovery produces nothing.
const (
	InfoItemID  = "trending:unavailable"
	ErrorItemID = "trending:error"
)

// maxFeedItems bounds one run's feed regardless of provider list size.
const maxFeedItems = 50

// snapshotBuffer must hold a full run's publications (loading + placeholders
// + one per resolution + final) so an abandoned consumer never blocks the
// producer.
const snapshotBuffer = maxFeedItems + 8

// Pipeline orchestrates discovery, content resolution and stats enrichment
// into a progressively updated feed. It is the only writer of the feed
// state; consumers observe it exclusively through immutable snapshots.
type Pipeline struct {
	discovery Discoverer
	resolver  NoteResolver
	stats     StatsFetcher
	logger    logging.Logger
	metrics   *metrics.Metrics
}

// Config represents configuration for the enrichment pipeline
type Config struct {
	Discovery Discoverer
	Resolver  NoteResolver
	Stats     StatsFetcher
	Logger    logging.Logger
	Metrics   *metrics.Metrics
}

// New creates a new enrichment pipeline
func New(cfg Config) *Pipeline {
	return &Pipeline{
		discovery: cfg.Discovery,
		resolver:  cfg.Resolver,
		stats:     cfg.Stats,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
}

// Run executes one enrichment pass and returns the snapshot stream. The
// channel is closed when the run converges. Run provides no reentrancy
// guard; serializing runs is the caller's concern.
func (p *Pipeline) Run(ctx context.Context) <-chan models.Snapshot {
	out := make(chan models.Snapshot, snapshotBuffer)
	go p.run(ctx, out)
	return out
}

// feedState is the pipeline-owned working set: a map for O(1) updates by
// identifier plus a separate index list preserving recommendation rank
// order.
type feedState struct {
	order []string
	items map[string]*models.FeedItem
}

func (p *Pipeline) run(ctx context.Context, out chan<- models.Snapshot) {
	defer close(out)
	start := time.Now()

	// Consumers render a spinner until the first real publication.
	p.publish(ctx, out, nil, true, "loading")

	list, err := p.discovery.Discover(ctx)
	if err != nil {
		p.logger.WithError(err).Error("Trending discovery failed")
		p.publishSynthetic(ctx, out, ErrorItemID, "Couldn't load trending notes. Please try again later.")
		p.metrics.RecordPipelineRun("discovery_failed")
		p.metrics.RecordRunDuration("discovery_failed", time.Since(start).Seconds())
		return
	}
	if list == nil {
		p.logger.Info("No trending data available")
		p.publishSynthetic(ctx, out, InfoItemID, "No trending notes right now. Check back later.")
		p.metrics.RecordPipelineRun("no_data")
		p.metrics.RecordRunDuration("no_data", time.Since(start).Seconds())
		return
	}

	state := newFeedState(list.NoteIDs)
	p.logger.WithFields(logging.Fields{
		"source_event": list.EventID,
		"notes":        len(state.order),
	}).Info("Publishing placeholders")

	// Placeholders go out before any resolution so the consumer can stop
	// showing a blocking spinner immediately.
	p.publish(ctx, out, state, false, "placeholders")

	p.resolver.ResolveEach(ctx, state.order, func(id string, note *models.Note, err error) {
		item := state.items[id]
		item.ContentPending = false
		if err != nil {
			if !errors.Is(err, clients.ErrNotFound) {
				p.logger.WithError(err).WithField("note_id", id).Warn("Note resolution failed")
			}
		} else {
			item.Note = note
		}
		p.publish(ctx, out, state, false, "resolution")
	})

	p.mergeStats(ctx, state)
	p.publish(ctx, out, state, false, "final")

	p.metrics.RecordPipelineRun("ok")
	p.metrics.RecordRunDuration("ok", time.Since(start).Seconds())
}

func newFeedState(ids []string) *feedState {
	state := &feedState{items: make(map[string]*models.FeedItem, len(ids))}
	for _, id := range ids {
		if _, dup := state.items[id]; dup {
			continue
		}
		if len(state.order) >= maxFeedItems {
			break
		}
		state.order = append(state.order, id)
		state.items[id] = &models.FeedItem{
			ID:             id,
			ContentPending: true,
			StatsPending:   true,
		}
	}
	return state
}

// mergeStats issues the single batched stats call across all resolved notes
// and folds the results back in. Stats failures degrade to missing stats,
// never to a failed run.
func (p *Pipeline) mergeStats(ctx context.Context, state *feedState) {
	var resolved []string
	for _, id := range state.order {
		if state.items[id].Note != nil {
			resolved = append(resolved, id)
		}
	}
	if len(resolved) == 0 {
		return
	}

	stats, err := p.stats.FetchStats(ctx, resolved)
	if err != nil {
		var pf *clients.PartialFailure
		if errors.As(err, &pf) {
			p.logger.WithFields(logging.Fields{
				"succeeded": pf.Succeeded,
				"failed":    pf.Failed,
			}).Warn("Stats fetch partially failed, merging what arrived")
		} else {
			p.logger.WithError(err).Warn("Stats fetch failed, feed stays without stats")
		}
	}

	byID := make(map[string]models.NoteStats, len(stats))
	for _, s := range stats {
		byID[s.EventID] = s
	}

	for _, id := range resolved {
		item := state.items[id]
		item.StatsPending = false
		if s, ok := byID[id]; ok {
			stat := s
			item.Stats = &stat
		}
	}
}

// publish emits one immutable snapshot of the current state.
func (p *Pipeline) publish(ctx context.Context, out chan<- models.Snapshot, state *feedState, loading bool, phase string) {
	var items []models.FeedItem
	if state != nil {
		items = make([]models.FeedItem, 0, len(state.order))
		for _, id := range state.order {
			items = append(items, *state.items[id])
		}
	}

	snap := models.Snapshot{
		Items:     items,
		Loading:   loading,
		Timestamp: time.Now(),
	}

	select {
	case out <- snap:
		p.metrics.RecordSnapshot(phase)
	case <-ctx.Done():
	}
}

func (p *Pipeline) publishSynthetic(ctx context.Context, out chan<- models.Snapshot, id, message string) {
	state := &feedState{
		order: []string{id},
		items: map[string]*models.FeedItem{
			id: {
				ID: id,
				Note: &models.Note{
					ID:        id,
					CreatedAt: time.Now().Unix(),
					Content:   message,
				},
				ContentPending: false,
				StatsPending:   false,
			},
		},
	}
	p.publish(ctx, out, state, false, "synthetic")
}
