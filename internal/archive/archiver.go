// Package archive moves aged-out analysis runs from the hot store to
// local JSONL files. The janitor runs as a background goroutine and
// respects context cancellation for graceful shutdown. Archive
// failures are fail-safe: runs are not deleted when the archive write
// fails.
package archive

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/causekit/causekit/internal/config"
	"github.com/causekit/causekit/pkg/models"
)

// Archiver writes batches of runs as JSONL files to a local directory.
//
// Directory structure:
//
//	{dir}/runs/2026-02-20T15-04-05Z.jsonl[.gz]
type Archiver struct {
	dir      string
	compress bool
}

// NewArchiver creates a file-based archiver rooted at cfg.Dir.
func NewArchiver(cfg config.ArchiveConfig) *Archiver {
	dir := cfg.Dir
	if dir == "" {
		dir = "./reports"
	}
	return &Archiver{dir: dir, compress: cfg.Compress}
}

// ArchiveRuns writes the batch to a timestamped file and returns the
// file's path. One JSON object per line, full run record including the
// outcome.
func (a *Archiver) ArchiveRuns(_ context.Context, runs []models.AnalysisRun) (string, error) {
	dir := filepath.Join(a.dir, "runs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	filename := time.Now().UTC().Format("2006-01-02T15-04-05Z") + ".jsonl"
	if a.compress {
		filename += ".gz"
	}
	fpath := filepath.Join(dir, filename)

	f, err := os.Create(fpath)
	if err != nil {
		return "", fmt.Errorf("create archive file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	if a.compress {
		gw := gzip.NewWriter(f)
		defer gw.Close()
		enc = json.NewEncoder(gw)
	}

	for _, r := range runs {
		if err := enc.Encode(r); err != nil {
			return "", fmt.Errorf("encode run %s: %w", r.ID, err)
		}
	}

	log.Debug().
		Str("path", fpath).
		Int("count", len(runs)).
		Msg("Archived runs to local file")

	return fpath, nil
}

// HealthCheck verifies the archive directory is writable.
func (a *Archiver) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("archive path not writable: %w", err)
	}
	testFile := filepath.Join(a.dir, ".healthcheck")
	if err := os.WriteFile(testFile, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("archive path not writable: %w", err)
	}
	os.Remove(testFile)
	return nil
}
