package evidence

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/causekit/causekit/internal/config"
	"github.com/causekit/causekit/internal/metrics"
	"github.com/causekit/causekit/pkg/contracts"
	"github.com/causekit/causekit/pkg/models"
)

// Collector resolves evidence items through registered sources, at most
// maxConcurrent fetches in flight. Results come back in request order
// regardless of fetch completion order.
type Collector struct {
	sources       map[models.SourceKind]contracts.Source
	maxConcurrent int
	scrub         bool
	metrics       *metrics.Metrics
}

// NewCollector wires the given sources by kind. metrics may be nil.
func NewCollector(cfg *config.Config, m *metrics.Metrics, sources ...contracts.Source) *Collector {
	byKind := make(map[models.SourceKind]contracts.Source, len(sources))
	for _, s := range sources {
		byKind[s.Kind()] = s
	}
	maxConcurrent := cfg.Evidence.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Collector{
		sources:       byKind,
		maxConcurrent: maxConcurrent,
		scrub:         cfg.Evidence.Scrub,
		metrics:       m,
	}
}

// Collect resolves every item and reports what was dropped. It never
// returns an error; an empty Collection with populated Dropped means
// nothing resolved.
func (c *Collector) Collect(ctx context.Context, items []models.EvidenceItem) Collection {
	if len(items) == 0 {
		return Collection{}
	}

	type slot struct {
		item    *models.EvidenceItem
		dropped string
		note    string
	}
	slots := make([]slot, len(items))

	var wg sync.WaitGroup
	sem := make(chan struct{}, c.maxConcurrent)
	for i := range items {
		wg.Add(1)
		go func(i int, req models.EvidenceItem) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			item, err := c.fetchOne(ctx, req)
			if err != nil {
				slots[i] = slot{dropped: fmt.Sprintf("evidence %s dropped: %v", req.Label(), err)}
				return
			}
			s := slot{item: item}
			if c.scrub {
				scrubbed, hits := Scrub(item.Text)
				if len(hits) > 0 {
					item.Text = scrubbed
					s.note = fmt.Sprintf("evidence %s: redacted %s", req.Label(), strings.Join(hits, ", "))
					log.Warn().Str("evidence", req.Label()).Strs("patterns", hits).
						Msg("Redacted credential-looking content")
				}
			}
			slots[i] = s
		}(i, items[i])
	}
	wg.Wait()

	out := Collection{Items: make([]models.EvidenceItem, 0, len(items))}
	for _, s := range slots {
		if s.item != nil {
			out.Items = append(out.Items, *s.item)
		}
		if s.dropped != "" {
			out.Dropped = append(out.Dropped, s.dropped)
		}
		if s.note != "" {
			out.Notes = append(out.Notes, s.note)
		}
	}
	return out
}

func (c *Collector) fetchOne(ctx context.Context, req models.EvidenceItem) (*models.EvidenceItem, error) {
	src, ok := c.sources[req.SourceKind]
	if !ok {
		c.metrics.CountEvidence(string(req.SourceKind), "unsupported")
		return nil, fmt.Errorf("no source for kind %q", req.SourceKind)
	}

	item, err := src.Fetch(ctx, req.Identifier)
	if err != nil {
		log.Warn().Err(err).Str("kind", string(req.SourceKind)).Str("identifier", req.Identifier).
			Msg("Evidence fetch failed")
		c.metrics.CountEvidence(string(req.SourceKind), "error")
		return nil, err
	}

	c.metrics.CountEvidence(string(req.SourceKind), "success")
	return item, nil
}
