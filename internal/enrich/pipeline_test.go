package enrich

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/franz/earshelf/internal/lookup"
	"github.com/franz/earshelf/internal/store"
	"github.com/franz/earshelf/internal/util"
)

// fakeLookup serves canned records and fails on request
type fakeLookup struct {
	records map[string]*lookup.Metadata
	calls   []string
}

func (f *fakeLookup) Fetch(_ context.Context, code string) (*lookup.Metadata, error) {
	f.calls = append(f.calls, code)
	meta, ok := f.records[code]
	if !ok {
		return nil, fmt.Errorf("no record for %s", code)
	}
	return meta, nil
}

func newTestPipeline(t *testing.T, lk Lookup) (*Pipeline, *store.Store) {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "library.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return New(&Config{Store: s, Lookup: lk, Delay: -1}), s
}

func insertCodedWork(t *testing.T, s *store.Store, code string) *store.Work {
	t.Helper()

	w := &store.Work{Code: code, Title: code, DirPath: "/lib/" + code}
	if err := s.InsertWork(w); err != nil {
		t.Fatalf("failed to insert work: %v", err)
	}
	return w
}

func TestEnrichWorkReplacesTaxonomyAndTitle(t *testing.T) {
	lk := &fakeLookup{records: map[string]*lookup.Metadata{
		"RJ100001": {
			Title:       "Deep Sleep Whispers",
			Circle:      "dream works",
			VoiceActors: []string{"A Voice"},
			Tags:        []string{"binaural", "sleep"},
		},
	}}
	p, s := newTestPipeline(t, lk)
	w := insertCodedWork(t, s, "RJ100001")

	// Pre-existing associations must be fully replaced, not merged
	if err := s.ReplaceWorkTaxonomy(w.ID, []string{"stale"}, []string{"old circle"}, nil); err != nil {
		t.Fatalf("failed to seed taxonomy: %v", err)
	}

	if _, err := p.EnrichWork(context.Background(), w.ID); err != nil {
		t.Fatalf("enrich failed: %v", err)
	}

	got, err := s.GetWork(w.ID)
	if err != nil || got == nil {
		t.Fatalf("failed to reload work: %v", err)
	}
	if got.Title != "Deep Sleep Whispers" {
		t.Errorf("expected updated title, got %q", got.Title)
	}

	tags, _ := s.WorkTags(w.ID)
	if len(tags) != 2 || tags[0] != "binaural" || tags[1] != "sleep" {
		t.Errorf("unexpected tags: %v", tags)
	}
	circles, _ := s.WorkCircles(w.ID)
	if len(circles) != 1 || circles[0] != "dream works" {
		t.Errorf("unexpected circles: %v", circles)
	}
	actors, _ := s.WorkVoiceActors(w.ID)
	if len(actors) != 1 || actors[0] != "A Voice" {
		t.Errorf("unexpected voice actors: %v", actors)
	}
}

func TestEnrichWorkWithoutCode(t *testing.T) {
	p, s := newTestPipeline(t, &fakeLookup{})

	w := &store.Work{Title: "no code", DirPath: "/lib/none"}
	if err := s.InsertWork(w); err != nil {
		t.Fatalf("failed to insert work: %v", err)
	}

	if _, err := p.EnrichWork(context.Background(), w.ID); err == nil {
		t.Error("expected error for work without code")
	}
}

func TestEnrichWorkMissing(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeLookup{})

	_, err := p.EnrichWork(context.Background(), 404)
	if !errors.Is(err, util.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEnrichAllCountsAndTicks(t *testing.T) {
	lk := &fakeLookup{records: map[string]*lookup.Metadata{
		"RJ100001": {Title: "One", Tags: []string{"a"}},
		"RJ100003": {Title: "Three", Tags: []string{"b"}},
	}}
	p, s := newTestPipeline(t, lk)

	insertCodedWork(t, s, "RJ100001")
	insertCodedWork(t, s, "RJ100002") // lookup fails for this one
	insertCodedWork(t, s, "RJ100003")

	// Works without a code are not part of the batch
	plain := &store.Work{Title: "plain", DirPath: "/lib/plain"}
	if err := s.InsertWork(plain); err != nil {
		t.Fatalf("failed to insert work: %v", err)
	}

	progress := make(chan Progress, 16)
	updated, err := p.EnrichAll(context.Background(), progress)
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}

	// N works, M failures: success count is N-M
	if updated != 2 {
		t.Errorf("expected 2 works updated, got %d", updated)
	}

	var ticks []Progress
	for tick := range progress {
		ticks = append(ticks, tick)
	}
	if len(ticks) != 3 {
		t.Fatalf("expected 3 progress ticks, got %d", len(ticks))
	}
	for i, tick := range ticks {
		if tick.Current != i+1 || tick.Total != 3 {
			t.Errorf("unexpected tick %d: %+v", i, tick)
		}
	}

	if len(lk.calls) != 3 {
		t.Errorf("expected 3 lookups, got %d", len(lk.calls))
	}
}

func TestEnrichAllRejectsConcurrentRun(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeLookup{})

	p.running.Store(true)
	_, err := p.EnrichAll(context.Background(), nil)
	if !errors.Is(err, util.ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	p.running.Store(false)
}
