package enrich

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/franz/earshelf/internal/lookup"
	"github.com/franz/earshelf/internal/report"
	"github.com/franz/earshelf/internal/store"
	"github.com/franz/earshelf/internal/util"
)

// Lookup is the external catalog collaborator. The production implementation
// is lookup.Client; tests substitute a fake.
type Lookup interface {
	Fetch(ctx context.Context, code string) (*lookup.Metadata, error)
}

// DefaultDelay is the pacing delay between batch lookups
const DefaultDelay = 1 * time.Second

// Pipeline merges external catalog metadata into the store
type Pipeline struct {
	store   *store.Store
	lookup  Lookup
	logger  *report.EventLogger
	delay   time.Duration
	running atomic.Bool
}

// Config holds pipeline configuration
type Config struct {
	Store  *store.Store
	Lookup Lookup
	Logger *report.EventLogger
	Delay  time.Duration // 0 selects DefaultDelay; negative disables pacing
}

// New creates a new enrichment pipeline
func New(cfg *Config) *Pipeline {
	delay := cfg.Delay
	if delay == 0 {
		delay = DefaultDelay
	}
	if delay < 0 {
		delay = 0
	}

	return &Pipeline{
		store:  cfg.Store,
		lookup: cfg.Lookup,
		logger: cfg.Logger,
		delay:  delay,
	}
}

// EnrichWork fetches the catalog record for one work and merges it: the
// title is updated and the work's full taxonomy association set is replaced
// (stale associations are dropped, not kept).
func (p *Pipeline) EnrichWork(ctx context.Context, workID int64) (*lookup.Metadata, error) {
	work, err := p.store.GetWork(workID)
	if err != nil {
		return nil, err
	}
	if work == nil {
		return nil, fmt.Errorf("work %d: %w", workID, util.ErrNotFound)
	}
	if work.Code == "" {
		return nil, fmt.Errorf("work %d has no catalog code", workID)
	}

	meta, err := p.lookup.Fetch(ctx, work.Code)
	if err != nil {
		return nil, fmt.Errorf("lookup failed for %s: %w", work.Code, err)
	}

	var circles []string
	if meta.Circle != "" {
		circles = []string{meta.Circle}
	}

	if err := p.store.ReplaceWorkTaxonomy(workID, meta.Tags, circles, meta.VoiceActors); err != nil {
		return nil, err
	}
	if err := p.store.UpdateWorkTitle(workID, meta.Title); err != nil {
		return nil, err
	}

	util.InfoLog("Enriched %s: %q", work.Code, meta.Title)
	return meta, nil
}

// Progress is one batch progress tick
type Progress struct {
	Current int
	Total   int
}

// EnrichAll runs the pipeline over every work that carries a catalog code.
// Works are processed one at a time with a pacing delay between lookups;
// per-item failures are logged and skipped. A tick is sent after every item
// and the channel is closed when the batch finishes. Returns the number of
// works successfully updated.
//
// Every coded work is reprocessed on every call — intended refresh-all
// behavior, there is no staleness filter. Only one batch may run at a time;
// a second call returns util.ErrBusy.
func (p *Pipeline) EnrichAll(ctx context.Context, progress chan<- Progress) (int, error) {
	if !p.running.CompareAndSwap(false, true) {
		return 0, util.ErrBusy
	}
	defer p.running.Store(false)

	if progress != nil {
		defer close(progress)
	}

	works, err := p.store.ListWorksWithCode()
	if err != nil {
		return 0, err
	}

	total := len(works)
	util.InfoLog("Enriching %d works", total)

	updated := 0
	for i, work := range works {
		select {
		case <-ctx.Done():
			return updated, ctx.Err()
		default:
		}

		if i > 0 && p.delay > 0 {
			select {
			case <-time.After(p.delay):
			case <-ctx.Done():
				return updated, ctx.Err()
			}
		}

		_, err := p.EnrichWork(ctx, work.ID)
		if p.logger != nil {
			p.logger.LogEnrich(work.ID, work.Code, err)
		}
		if err != nil {
			util.WarnLog("Skipping %s: %v", work.Code, err)
		} else {
			updated++
		}

		if progress != nil {
			progress <- Progress{Current: i + 1, Total: total}
		}
	}

	util.SuccessLog("Enrichment complete: %d/%d works updated", updated, total)
	return updated, nil
}
