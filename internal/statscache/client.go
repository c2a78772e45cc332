package statscache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/KashirApp/Kashir-sub002/internal/metrics"
	"github.com/KashirApp/Kashir-sub002/internal/relay"
	"github.com/KashirApp/Kashir-sub002/pkg/clients"
	"github.com/KashirApp/Kashir-sub002/pkg/logging"
	"github.com/KashirApp/Kashir-sub002/pkg/models"
)

// statsRecordKind tags cache events carrying an engagement statistics
// record in their content.
const statsRecordKind = 10000100

const (
	defaultBatchSize    = 50
	defaultMaxAttempts  = 3
	defaultBaseDelay    = 500 * time.Millisecond
	defaultMaxDelay     = 8 * time.Second
	defaultQueryTimeout = 30 * time.Second
	defaultBatchPause   = 250 * time.Millisecond
)

// Client fetches engagement statistics from the cache service. Each logical
// query opens a fresh connection tagged with a generated subscription token;
// connections are never pooled, so unrelated queries cannot head-of-line
// block each other.
type Client struct {
	url      string
	logger   logging.Logger
	metrics  *metrics.Metrics
	dialer   *websocket.Dialer
	executor failsafe.Executor[[]models.NoteStats]
	limiter  *rate.Limiter

	batchSize    int
	queryTimeout time.Duration
}

// Config represents configuration for the stats cache client
type Config struct {
	URL     string
	Logger  logging.Logger
	Metrics *metrics.Metrics

	// BatchSize bounds identifiers per request message. Default 50.
	BatchSize int
	// MaxAttempts per batch including the first try. Default 3.
	MaxAttempts int
	// BaseDelay seeds the exponential backoff between attempts.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// QueryTimeout is the wall-clock budget for a single attempt.
	QueryTimeout time.Duration
	// BatchPause spaces consecutive batches to stay under rate limits.
	BatchPause time.Duration
}

// NewClient creates a new stats cache client
func NewClient(cfg Config) *Client {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = defaultQueryTimeout
	}
	if cfg.BatchPause <= 0 {
		cfg.BatchPause = defaultBatchPause
	}

	executor := clients.NewQueryExecutor[[]models.NoteStats](clients.QueryExecutorConfig{
		MaxRetries: cfg.MaxAttempts - 1,
		BaseDelay:  cfg.BaseDelay,
		MaxDelay:   cfg.MaxDelay,
		Logger:     cfg.Logger,
	})

	return &Client{
		url:          cfg.URL,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		dialer:       &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		executor:     executor,
		limiter:      rate.NewLimiter(rate.Every(cfg.BatchPause), 1),
		batchSize:    cfg.BatchSize,
		queryTimeout: cfg.QueryTimeout,
	}
}

// FetchStats resolves engagement statistics for ids. Batches that exhaust
// their retries are skipped; the call returns whatever the remaining batches
// produced together with a PartialFailure describing the skips. An empty
// input returns immediately with no network traffic.
func (c *Client) FetchStats(ctx context.Context, ids []string) ([]models.NoteStats, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var collected []models.NoteStats
	var batchErrs []error
	succeeded := 0

	for start := 0; start < len(ids); start += c.batchSize {
		end := start + c.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		if err := c.limiter.Wait(ctx); err != nil {
			batchErrs = append(batchErrs, clients.NewTransportError("pace", err))
			break
		}

		stats, err := c.executor.WithContext(ctx).Get(func() ([]models.NoteStats, error) {
			return c.queryBatch(ctx, batch)
		})
		if err != nil {
			c.logger.WithError(err).WithFields(logging.Fields{
				"cache":      c.url,
				"batch_size": len(batch),
			}).Warn("Stats batch failed after retries, skipping")
			c.metrics.RecordStatsBatch("failed")
			batchErrs = append(batchErrs, err)
			continue
		}

		c.metrics.RecordStatsBatch("ok")
		c.metrics.RecordStatsRecords(len(stats))
		collected = append(collected, stats...)
		succeeded++
	}

	if len(batchErrs) > 0 {
		return collected, &clients.PartialFailure{
			Succeeded: succeeded,
			Failed:    len(batchErrs),
			Errs:      batchErrs,
		}
	}
	return collected, nil
}

// queryBatch performs one attempt: fresh connection, one correlated request,
// collect until the end-of-stream marker for our token.
func (c *Client) queryBatch(ctx context.Context, ids []string) ([]models.NoteStats, error) {
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	conn, resp, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return nil, clients.NewTransportError("dial", err)
	}
	defer conn.Close()

	token := uuid.New().String()

	deadline, _ := ctx.Deadline()
	conn.SetWriteDeadline(deadline)
	req := []interface{}{"REQ", token, cacheEnvelope{
		Cache: []interface{}{"events", eventsParams{
			EventIDs:         ids,
			ExtendedResponse: true,
		}},
	}}
	if err := conn.WriteJSON(req); err != nil {
		return nil, clients.NewTransportError("request", err)
	}

	conn.SetReadDeadline(deadline)

	var stats []models.NoteStats
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return nil, clients.NewTransportError("read", err)
		}

		var frame []json.RawMessage
		if err := json.Unmarshal(payload, &frame); err != nil || len(frame) == 0 {
			c.logger.WithField("cache", c.url).Warn("Skipping malformed cache frame")
			continue
		}
		var label string
		if err := json.Unmarshal(frame[0], &label); err != nil {
			continue
		}

		switch label {
		case "EVENT":
			if len(frame) < 3 || !tokenMatches(frame[1], token) {
				continue
			}
			if record, ok := c.parseStatsEvent(frame[2]); ok {
				stats = append(stats, record)
			}

		case "EOSE":
			if len(frame) < 2 || !tokenMatches(frame[1], token) {
				// Completion of somebody else's query; keep waiting.
				continue
			}
			return stats, nil

		case "NOTICE":
			msg := noticeText(frame)
			if strings.Contains(strings.ToLower(msg), "error") {
				return nil, clients.NewProtocolError("fetch", "cache notice: %s", msg)
			}
			c.logger.WithFields(logging.Fields{
				"cache":  c.url,
				"notice": msg,
			}).Info("Cache notice")

		default:
		}
	}
}

// parseStatsEvent extracts a NoteStats record from an EVENT payload. Events
// of any other kind, and records that fail to parse, are skipped.
func (c *Client) parseStatsEvent(raw json.RawMessage) (models.NoteStats, bool) {
	var evt relay.Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		c.logger.WithError(err).Warn("Skipping unparseable cache event")
		return models.NoteStats{}, false
	}
	if evt.Kind != statsRecordKind {
		return models.NoteStats{}, false
	}
	var record models.NoteStats
	if err := json.Unmarshal([]byte(evt.Content), &record); err != nil {
		c.logger.WithError(err).Warn("Skipping unparseable stats record")
		return models.NoteStats{}, false
	}
	if record.EventID == "" {
		c.logger.Warn("Skipping stats record without event id")
		return models.NoteStats{}, false
	}
	return record, true
}

type cacheEnvelope struct {
	Cache []interface{} `json:"cache"`
}

type eventsParams struct {
	EventIDs         []string `json:"event_ids"`
	ExtendedResponse bool     `json:"extended_response"`
}

func tokenMatches(raw json.RawMessage, token string) bool {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false
	}
	return s == token
}

func noticeText(frame []json.RawMessage) string {
	if len(frame) < 2 {
		return ""
	}
	var msg string
	if err := json.Unmarshal(frame[1], &msg); err != nil {
		return string(frame[1])
	}
	return msg
}
