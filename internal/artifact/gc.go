package artifact

import (
	"context"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
)

// GCConfig mirrors the teacher's dream-worker Config shape: an interval
// plus a grace window, rather than a single magic constant.
type GCConfig struct {
	Interval   time.Duration
	GracePeriod time.Duration // how long a soft-deleted file survives before unlink
}

func DefaultGCConfig() GCConfig {
	return GCConfig{Interval: 30 * time.Minute, GracePeriod: 24 * time.Hour}
}

// GCReport accumulates counts across one sweep, mirroring
// pkg/dream/worker.go's Report accumulation pattern.
type GCReport struct {
	Scanned int
	Unlinked int
	Skipped int // still referenced by a live message
	Errors  int
}

// GCWorker periodically unlinks soft-deleted, unreferenced files from disk
// once their grace period has elapsed. Grounded on pkg/dream/worker.go's
// ticker-driven Run/Once/Report shape, generalized from memory decay to
// artifact collection.
type GCWorker struct {
	store  *Store
	cfg    GCConfig
	log    *slog.Logger
}

func NewGCWorker(store *Store, cfg GCConfig, log *slog.Logger) *GCWorker {
	if log == nil {
		log = slog.Default()
	}
	return &GCWorker{store: store, cfg: cfg, log: log}
}

// Run blocks, sweeping every cfg.Interval until ctx is cancelled. The first
// sweep is delayed by a third of the interval so a freshly started server
// doesn't immediately compete with startup traffic for disk I/O.
func (w *GCWorker) Run(ctx context.Context) {
	initialDelay := w.cfg.Interval / 3
	if initialDelay <= 0 {
		initialDelay = time.Minute
	}
	timer := time.NewTimer(initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			report := w.SweepOnce(ctx)
			w.logReport(report)
			timer.Reset(w.cfg.Interval)
		}
	}
}

// SweepOnce runs a single collection pass and returns its report, exported
// separately from Run so tests and an admin endpoint can trigger it
// on demand. The IsReferenced lookups are the dominant per-candidate cost
// (one query each against the message_attachments join), so they run
// through a bounded errgroup rather than sequentially; the unlink itself
// stays single-threaded since it mutates the shared report counters and
// competes for the same disk.
func (w *GCWorker) SweepOnce(ctx context.Context) GCReport {
	var report GCReport

	cutoff := time.Now().Add(-w.cfg.GracePeriod)
	candidates, err := w.store.db.DeletedAttachmentsOlderThan(ctx, cutoff)
	if err != nil {
		w.log.Error("artifact gc: list candidates", "error", err)
		report.Errors++
		return report
	}
	report.Scanned = len(candidates)

	type verdict struct {
		fileID, path string
		referenced   bool
		checkErr     error
	}
	verdicts := make([]verdict, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, a := range candidates {
		i, a := i, a
		g.Go(func() error {
			referenced, err := w.store.db.IsReferenced(gctx, a.FileID)
			verdicts[i] = verdict{fileID: a.FileID, path: a.SourcePath, referenced: referenced, checkErr: err}
			return nil
		})
	}
	_ = g.Wait() // per-candidate errors are carried in verdicts, not aborted on

	for _, v := range verdicts {
		switch {
		case v.checkErr != nil:
			report.Errors++
		case v.referenced:
			report.Skipped++
		default:
			if err := os.Remove(v.path); err != nil && !os.IsNotExist(err) {
				w.log.Warn("artifact gc: unlink failed", "file_id", v.fileID, "error", err)
				report.Errors++
			} else if err := w.store.db.PurgeAttachmentRow(ctx, v.fileID); err != nil {
				report.Errors++
			} else {
				report.Unlinked++
			}
		}
	}
	return report
}

func (w *GCWorker) logReport(r GCReport) {
	w.log.Info("artifact gc sweep",
		"scanned", r.Scanned, "unlinked", r.Unlinked, "skipped", r.Skipped, "errors", r.Errors)
}
