package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Worker keeps the configured expiring prefixes provisioned. Reconcile
// applies them once; Run re-applies them on an interval so rules removed
// out of band come back.
type Worker struct {
	mgr      *Manager
	prefixes map[string]int
	interval time.Duration
}

// NewWorker creates a worker for prefixes (container name to retention
// days). intervalSecs <= 0 disables periodic reconcile.
func NewWorker(mgr *Manager, prefixes map[string]int, intervalSecs int) *Worker {
	return &Worker{
		mgr:      mgr,
		prefixes: prefixes,
		interval: time.Duration(intervalSecs) * time.Second,
	}
}

// Reconcile submits a rule for every configured prefix. It keeps going after
// a failure and returns all failures joined.
func (w *Worker) Reconcile(ctx context.Context) error {
	names := make([]string, 0, len(w.prefixes))
	for name := range w.prefixes {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		days := w.prefixes[name]
		if err := w.mgr.SetExpiration(ctx, name, days); err != nil {
			errs = append(errs, fmt.Errorf("expire %q after %d days: %w", name, days, err))
			continue
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if len(names) > 0 {
		slog.Info("lifecycle rules reconciled", "prefixes", len(names))
	}
	return nil
}

// Run reconciles on every tick until ctx is done. The first reconcile is
// left to the caller so startup failures can stop the process.
func (w *Worker) Run(ctx context.Context) {
	if w.interval <= 0 || len(w.prefixes) == 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Reconcile(ctx); err != nil && ctx.Err() == nil {
				slog.Error("lifecycle reconcile error", "error", err)
			}
		}
	}
}
