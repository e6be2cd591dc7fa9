// Package store — in-memory Store implementation.
// The default backend for local runs and tests. Supports file-based
// snapshot persistence so run history survives restarts.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/causekit/causekit/pkg/models"
)

// snapshot is the JSON-serializable shape written to disk.
type snapshot struct {
	Runs map[string]*models.AnalysisRun `json:"runs"`
}

// MemoryStore implements Store with in-memory maps.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*models.AnalysisRun // key: run ID

	snapshotPath string        // empty = no persistence
	saveMu       sync.Mutex    // guards file writes
	saveCh       chan struct{} // debounce channel
	doneCh       chan struct{} // signals the save goroutine to stop
}

// NewMemoryStore creates a new in-memory store. If snapshotPath is
// non-empty, data is persisted to that JSON file and reloaded on the
// next start.
func NewMemoryStore(snapshotPath string) *MemoryStore {
	m := &MemoryStore{
		runs:         make(map[string]*models.AnalysisRun),
		snapshotPath: snapshotPath,
		saveCh:       make(chan struct{}, 1),
		doneCh:       make(chan struct{}),
	}

	if m.snapshotPath != "" {
		if err := os.MkdirAll(filepath.Dir(m.snapshotPath), 0o755); err != nil {
			log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Cannot create data dir, persistence disabled")
			m.snapshotPath = ""
		}
	}

	if m.snapshotPath != "" {
		m.loadSnapshot()
		go m.saveLoop()
	}

	log.Info().Str("snapshot", m.snapshotPath).Msg("Memory store configured")
	return m
}

// requestSave signals the background goroutine to persist data.
// Non-blocking: coalesces multiple rapid writes into one disk flush.
func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
		// Already pending
	}
}

// saveLoop runs in a goroutine, debouncing save requests (max 1 write per 500ms).
func (m *MemoryStore) saveLoop() {
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			time.Sleep(500 * time.Millisecond) // debounce
			m.saveSnapshot()
		}
	}
}

// saveSnapshot persists all data to disk as JSON.
func (m *MemoryStore) saveSnapshot() {
	m.mu.RLock()
	data, err := json.MarshalIndent(snapshot{Runs: m.runs}, "", "  ")
	m.mu.RUnlock()

	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal snapshot")
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	// Write to temp file then rename for atomicity
	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		log.Error().Err(err).Str("path", tmp).Msg("Failed to write snapshot tmp")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to rename snapshot")
		return
	}

	log.Debug().Str("path", m.snapshotPath).Msg("Snapshot saved")
}

// loadSnapshot reads data from disk on startup.
func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", m.snapshotPath).Msg("No snapshot file found, starting fresh")
			return
		}
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Failed to read snapshot")
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to parse snapshot, starting fresh")
		return
	}

	m.mu.Lock()
	if snap.Runs != nil {
		m.runs = snap.Runs
	}
	m.mu.Unlock()

	log.Info().Int("runs", len(snap.Runs)).Str("path", m.snapshotPath).Msg("Snapshot loaded")
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close stops the save goroutine and forces a final snapshot write.
// Safe to call multiple times (second call is a no-op).
func (m *MemoryStore) Close() error {
	select {
	case <-m.doneCh:
		// Already closed
		return nil
	default:
		close(m.doneCh)
	}

	if m.snapshotPath != "" {
		m.saveSnapshot()
	}

	log.Info().Msg("Memory store closed")
	return nil
}

// ── Run Store ───────────────────────────────────────────────

func (m *MemoryStore) CreateRun(_ context.Context, run *models.AnalysisRun) error {
	m.mu.Lock()
	copy := *run
	m.runs[run.ID] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateRun(_ context.Context, run *models.AnalysisRun) error {
	m.mu.Lock()
	if _, ok := m.runs[run.ID]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "run", Key: run.ID}
	}
	copy := *run
	m.runs[run.ID] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) GetRun(_ context.Context, id string) (*models.AnalysisRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "run", Key: id}
	}
	copy := *r
	return &copy, nil
}

func (m *MemoryStore) ListRuns(_ context.Context, filter RunFilter) ([]models.AnalysisRun, error) {
	m.mu.RLock()
	var result []models.AnalysisRun
	for _, r := range m.runs {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.TemplateID != "" && r.TemplateID != filter.TemplateID {
			continue
		}
		result = append(result, *r)
	}
	m.mu.RUnlock()

	// Newest first
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) DeleteRun(_ context.Context, id string) error {
	m.mu.Lock()
	if _, ok := m.runs[id]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "run", Key: id}
	}
	delete(m.runs, id)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) ListRunsCompletedBefore(_ context.Context, cutoff time.Time, limit int) ([]models.AnalysisRun, error) {
	m.mu.RLock()
	var result []models.AnalysisRun
	for _, r := range m.runs {
		if r.CompletedAt == nil || !r.CompletedAt.Before(cutoff) {
			continue
		}
		result = append(result, *r)
	}
	m.mu.RUnlock()

	// Oldest first, so the janitor evicts in age order
	sort.Slice(result, func(i, j int) bool {
		return result[i].CompletedAt.Before(*result[j].CompletedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
