// Package snapshot periodically archives the full world state to gzipped JSON
// files on disk, giving operators a cold-start recovery artifact and a poor
// man's time series of the simulation.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzip"

	"factionsim/internal/model"
)

// Source provides the state to archive.
type Source interface {
	Snapshot() model.WorldSnapshot
}

// Config holds archiver tuning.
type Config struct {
	Interval time.Duration
	Dir      string
	Keep     int // archives retained; older ones are pruned
}

// DefaultConfig returns sensible defaults; Dir must be set.
func DefaultConfig() Config {
	return Config{
		Interval: time.Minute,
		Keep:     24,
	}
}

// Stats exposes archiver counters for health checks.
type Stats struct {
	Running  bool  `json:"running"`
	Archives int64 `json:"archives"`
	Failures int64 `json:"failures"`
}

// Archiver writes one snapshot-<tick>.json.gz file per interval.
type Archiver struct {
	cfg    Config
	source Source
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	running  atomic.Bool
	archives atomic.Int64
	failures atomic.Int64
}

// New creates an archiver over the given source.
func New(cfg Config, source Source, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		cfg:    cfg,
		source: source,
		logger: logger,
	}
}

// Start arms the periodic timer.
func (a *Archiver) Start(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return fmt.Errorf("snapshot archiver already running")
	}
	if err := os.MkdirAll(a.cfg.Dir, 0o755); err != nil {
		a.running.Store(false)
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	a.ctx, a.cancel = context.WithCancel(ctx)

	a.wg.Add(1)
	go a.run()

	a.logger.Info("snapshot archiver started", "dir", a.cfg.Dir, "interval", a.cfg.Interval)
	return nil
}

// Stop cancels the timer and waits for an in-flight archive to finish.
func (a *Archiver) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.running.Store(false)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current counters.
func (a *Archiver) Stats() Stats {
	return Stats{
		Running:  a.running.Load(),
		Archives: a.archives.Load(),
		Failures: a.failures.Load(),
	}
}

func (a *Archiver) run() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			if err := a.archiveOnce(); err != nil {
				// Archival is best effort; the live state is unaffected.
				a.failures.Add(1)
				a.logger.Error("snapshot archive failed", "error", err)
			}
		}
	}
}

// archiveOnce writes one archive and prunes old ones.
func (a *Archiver) archiveOnce() error {
	snap := a.source.Snapshot()
	path := filepath.Join(a.cfg.Dir, fmt.Sprintf("snapshot-%012d.json.gz", snap.Tick))

	if err := writeArchive(path, snap); err != nil {
		return err
	}
	a.archives.Add(1)
	a.logger.Debug("snapshot archived", "path", path, "tick", snap.Tick)

	return a.prune()
}

// writeArchive writes to a temp file and renames, so readers never see a
// half-written archive.
func writeArchive(path string, snap model.WorldSnapshot) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create temp archive: %w", err)
	}
	defer os.Remove(tmp.Name())

	zw := gzip.NewWriter(tmp)
	if err := json.NewEncoder(zw).Encode(snap); err != nil {
		tmp.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("finish gzip stream: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp archive: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publish archive: %w", err)
	}
	return nil
}

// prune removes the oldest archives beyond the retention count.
func (a *Archiver) prune() error {
	if a.cfg.Keep <= 0 {
		return nil
	}
	names, err := listArchives(a.cfg.Dir)
	if err != nil {
		return err
	}
	for len(names) > a.cfg.Keep {
		victim := names[0]
		names = names[1:]
		if err := os.Remove(filepath.Join(a.cfg.Dir, victim)); err != nil {
			return fmt.Errorf("prune archive %s: %w", victim, err)
		}
	}
	return nil
}

// listArchives returns archive filenames sorted oldest first. Tick numbers
// are zero-padded so lexical order is tick order.
func listArchives(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "snapshot-") && strings.HasSuffix(name, ".json.gz") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Load reads one archive back, for recovery tooling.
func Load(path string) (model.WorldSnapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.WorldSnapshot{}, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return model.WorldSnapshot{}, fmt.Errorf("open gzip stream: %w", err)
	}
	defer zr.Close()

	var snap model.WorldSnapshot
	if err := json.NewDecoder(zr).Decode(&snap); err != nil {
		return model.WorldSnapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}
