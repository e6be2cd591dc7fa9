package archive

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/causekit/causekit/internal/config"
	"github.com/causekit/causekit/internal/store"
)

// DefaultSweepBatch is the max runs moved per sweep.
const DefaultSweepBatch = 500

// SweepStats tracks what happened in a single retention sweep.
type SweepStats struct {
	Scanned     int
	Archived    int
	Purged      int
	ArchivePath string
	Errors      []error
}

// Janitor periodically archives and purges terminal runs older than
// the retention window. A nil archiver means purge without archiving.
type Janitor struct {
	store     store.Store
	archiver  *Archiver
	interval  time.Duration
	retention int
	batch     int
}

// NewJanitor creates a retention janitor sweeping on the configured
// interval.
func NewJanitor(s store.Store, archiver *Archiver, cfg config.ArchiveConfig) *Janitor {
	interval := time.Duration(cfg.SweepIntervalMins) * time.Minute
	if interval < time.Minute {
		interval = time.Hour
	}
	return &Janitor{
		store:     s,
		archiver:  archiver,
		interval:  interval,
		retention: cfg.RetentionDays,
		batch:     DefaultSweepBatch,
	}
}

// Start runs the janitor. It blocks until ctx is canceled.
func (j *Janitor) Start(ctx context.Context) {
	if j.retention <= 0 {
		log.Info().Msg("Retention janitor idle, runs are kept forever")
		return
	}

	log.Info().
		Dur("interval", j.interval).
		Int("retention_days", j.retention).
		Bool("archiving", j.archiver != nil).
		Msg("Retention janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// Run once immediately on startup
	j.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Retention janitor stopped")
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep performs one archive-and-purge pass. Runs are deleted only
// after the archive write succeeded.
func (j *Janitor) Sweep(ctx context.Context) SweepStats {
	start := time.Now()
	var stats SweepStats

	cutoff := time.Now().UTC().AddDate(0, 0, -j.retention)
	runs, err := j.store.ListRunsCompletedBefore(ctx, cutoff, j.batch)
	if err != nil {
		log.Warn().Err(err).Msg("Retention sweep: failed to list expired runs")
		stats.Errors = append(stats.Errors, err)
		return stats
	}
	stats.Scanned = len(runs)
	if len(runs) == 0 {
		return stats
	}

	if j.archiver != nil {
		path, err := j.archiver.ArchiveRuns(ctx, runs)
		if err != nil {
			log.Warn().Err(err).
				Int("count", len(runs)).
				Msg("Archive failed, keeping expired runs in the store")
			stats.Errors = append(stats.Errors, err)
			return stats
		}
		stats.ArchivePath = path
		stats.Archived = len(runs)
	}

	for _, r := range runs {
		if err := j.store.DeleteRun(ctx, r.ID); err != nil {
			log.Warn().Err(err).Str("run_id", r.ID).Msg("Failed to delete expired run")
			stats.Errors = append(stats.Errors, err)
			continue
		}
		stats.Purged++
	}

	log.Info().
		Int("archived", stats.Archived).
		Int("purged", stats.Purged).
		Dur("elapsed", time.Since(start)).
		Msg("Retention sweep complete")

	return stats
}
