package resolver

import (
	"context"
	"errors"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"golang.org/x/time/rate"

	"github.com/KashirApp/Kashir-sub002/internal/metrics"
	"github.com/KashirApp/Kashir-sub002/internal/relay"
	"github.com/KashirApp/Kashir-sub002/pkg/cache"
	"github.com/KashirApp/Kashir-sub002/pkg/clients"
	"github.com/KashirApp/Kashir-sub002/pkg/logging"
	"github.com/KashirApp/Kashir-sub002/pkg/models"
)

const (
	defaultTimeout     = 5 * time.Second
	defaultPace        = 100 * time.Millisecond
	defaultMaxAttempts = 2
	defaultCacheTTL    = 10 * time.Minute
	defaultCacheSize   = 2048
)

// Resolver turns note identifiers into full notes via the content network.
// Resolution is deliberately serialized with fixed pacing to bound relay
// load; resolved notes are immutable and memoized across runs.
type Resolver struct {
	querier  relay.Querier
	logger   logging.Logger
	metrics  *metrics.Metrics
	notes    *cache.Cache[*models.Note]
	executor failsafe.Executor[*models.Note]
	limiter  *rate.Limiter
	timeout  time.Duration
}

// Config represents configuration for the resolver
type Config struct {
	Querier relay.Querier
	Logger  logging.Logger
	Metrics *metrics.Metrics

	// Timeout bounds one identifier's network query.
	Timeout time.Duration
	// Pace is the fixed delay between consecutive network lookups.
	Pace time.Duration
	// MaxAttempts per identifier including the first try.
	MaxAttempts int
	// CacheTTL is how long resolved notes are reused across runs.
	CacheTTL time.Duration
	// CacheSize bounds the number of memoized notes.
	CacheSize int
}

// NewResolver creates a new content resolver
func NewResolver(cfg Config) *Resolver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Pace <= 0 {
		cfg.Pace = defaultPace
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}

	executor := clients.NewQueryExecutor[*models.Note](clients.QueryExecutorConfig{
		MaxRetries: cfg.MaxAttempts - 1,
		BaseDelay:  250 * time.Millisecond,
		MaxDelay:   2 * time.Second,
		Logger:     cfg.Logger,
	})

	return &Resolver{
		querier:  cfg.Querier,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		notes:    cache.New[*models.Note](cache.Options{TTL: cfg.CacheTTL, MaxEntries: cfg.CacheSize}),
		executor: executor,
		limiter:  rate.NewLimiter(rate.Every(cfg.Pace), 1),
		timeout:  cfg.Timeout,
	}
}

// ResolveOne resolves a single identifier. Returns clients.ErrNotFound when
// the network has no record for it, or returns one whose self-reported
// identifier does not match.
func (r *Resolver) ResolveOne(ctx context.Context, id string) (*models.Note, error) {
	note, ok, err := r.notes.Get(ctx, id, func(ctx context.Context, key string) (*models.Note, bool, error) {
		// Cache hits skip both the pacing delay and the network.
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, false, clients.NewTransportError("pace", err)
		}
		note, err := r.executor.WithContext(ctx).Get(func() (*models.Note, error) {
			return r.fetch(ctx, key)
		})
		if err != nil {
			return nil, false, err
		}
		return note, true, nil
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, clients.ErrNotFound
	}
	return note, nil
}

// ResolveEach resolves ids strictly one at a time, invoking fn after every
// attempt so the caller can publish progress immediately. A failed
// identifier never aborts the rest of the sweep.
func (r *Resolver) ResolveEach(ctx context.Context, ids []string, fn func(id string, note *models.Note, err error)) {
	for _, id := range ids {
		if ctx.Err() != nil {
			fn(id, nil, clients.NewTransportError("resolve", ctx.Err()))
			continue
		}
		note, err := r.ResolveOne(ctx, id)
		switch {
		case err == nil:
			r.metrics.RecordNoteResolution("ok")
		case errors.Is(err, clients.ErrNotFound):
			r.metrics.RecordNoteResolution("not_found")
		default:
			r.metrics.RecordNoteResolution("failed")
		}
		fn(id, note, err)
	}
}

func (r *Resolver) fetch(ctx context.Context, id string) (*models.Note, error) {
	events, err := r.querier.Query(ctx, relay.Filter{IDs: []string{id}, Limit: 1}, r.timeout)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, clients.ErrNotFound
	}

	evt := events[0]
	// Relays can answer a narrow query with the wrong event. A mismatched
	// record must never be surfaced under the requested identifier.
	if evt.ID != id {
		r.logger.WithFields(logging.Fields{
			"requested": id,
			"received":  evt.ID,
		}).Warn("Discarding note with mismatched identifier")
		return nil, clients.ErrNotFound
	}

	return &models.Note{
		ID:        evt.ID,
		Pubkey:    evt.Pubkey,
		CreatedAt: evt.CreatedAt,
		Content:   evt.Content,
	}, nil
}
