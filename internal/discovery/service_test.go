package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/KashirApp/Kashir-sub002/internal/relay"
	"github.com/KashirApp/Kashir-sub002/pkg/logging"
)

type fakeQuerier struct {
	events []relay.Event
	err    error
	filter relay.Filter
	calls  int
}

func (f *fakeQuerier) Query(_ context.Context, filter relay.Filter, _ time.Duration) ([]relay.Event, error) {
	f.calls++
	f.filter = filter
	return f.events, f.err
}

func newTestService(q relay.Querier) *Service {
	return NewService(Config{Querier: q, Logger: logging.NewTestLogger()})
}

func TestDiscover_ExtractsIdentifiersInOrder(t *testing.T) {
	q := &fakeQuerier{events: []relay.Event{
		{ID: "list1", CreatedAt: 100, Content: `[["e","n1"],["e","n2"],["p","someone"],["e","n3"]]`},
	}}
	svc := newTestService(q)

	list, err := svc.Discover(context.Background())
	if err != nil {
		t.Fatalf("discover failed: %v", err)
	}
	if list == nil {
		t.Fatal("expected a trending list")
	}
	if list.EventID != "list1" {
		t.Fatalf("expected source event list1, got %s", list.EventID)
	}
	want := []string{"n1", "n2", "n3"}
	if len(list.NoteIDs) != len(want) {
		t.Fatalf("expected %d ids, got %d", len(want), len(list.NoteIDs))
	}
	for i, id := range want {
		if list.NoteIDs[i] != id {
			t.Fatalf("id %d: expected %s, got %s", i, id, list.NoteIDs[i])
		}
	}
}

func TestDiscover_QueriesProviderIdentityAndKind(t *testing.T) {
	q := &fakeQuerier{}
	svc := newTestService(q)
	svc.Discover(context.Background())

	if q.calls != 1 {
		t.Fatalf("expected 1 query, got %d", q.calls)
	}
	if len(q.filter.Authors) != 1 || q.filter.Authors[0] != DefaultProviderPubkey {
		t.Fatalf("expected provider author filter, got %+v", q.filter.Authors)
	}
	if len(q.filter.Kinds) != 1 || q.filter.Kinds[0] != DefaultEventKind {
		t.Fatalf("expected trending kind filter, got %+v", q.filter.Kinds)
	}
	if q.filter.Limit != candidateLimit {
		t.Fatalf("expected limit %d, got %d", candidateLimit, q.filter.Limit)
	}
}

func TestDiscover_MostRecentParseableCandidateWins(t *testing.T) {
	q := &fakeQuerier{events: []relay.Event{
		// Delivered out of order; newest has garbage, second-newest parses.
		{ID: "old", CreatedAt: 10, Content: `[["e","stale"]]`},
		{ID: "newest", CreatedAt: 300, Content: `not json at all`},
		{ID: "second", CreatedAt: 200, Content: `[["e","fresh"]]`},
	}}
	svc := newTestService(q)

	list, err := svc.Discover(context.Background())
	if err != nil {
		t.Fatalf("discover failed: %v", err)
	}
	if list == nil || list.EventID != "second" {
		t.Fatalf("expected candidate 'second' to win, got %+v", list)
	}
}

func TestDiscover_OnlyFirstThreeCandidatesEvaluated(t *testing.T) {
	q := &fakeQuerier{events: []relay.Event{
		{ID: "c1", CreatedAt: 400, Content: `{}`},
		{ID: "c2", CreatedAt: 300, Content: `[]`},
		{ID: "c3", CreatedAt: 200, Content: `[["p","nobody"]]`},
		// Parseable but outside the evaluation window.
		{ID: "c4", CreatedAt: 100, Content: `[["e","hidden"]]`},
	}}
	svc := newTestService(q)

	list, err := svc.Discover(context.Background())
	if err != nil {
		t.Fatalf("discover failed: %v", err)
	}
	if list != nil {
		t.Fatalf("expected no trending data, got %+v", list)
	}
}

func TestDiscover_NoCandidatesMeansNoData(t *testing.T) {
	q := &fakeQuerier{}
	svc := newTestService(q)

	list, err := svc.Discover(context.Background())
	if err != nil {
		t.Fatalf("expected nil error for empty provider, got %v", err)
	}
	if list != nil {
		t.Fatalf("expected nil list, got %+v", list)
	}
}

func TestDiscover_QueryFailurePropagates(t *testing.T) {
	q := &fakeQuerier{err: errors.New("relay gone")}
	svc := newTestService(q)

	_, err := svc.Discover(context.Background())
	if err == nil {
		t.Fatal("expected error from failed query")
	}
}
