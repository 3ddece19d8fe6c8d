// Package inventory writes CSV listings of container contents back into the store.
package inventory

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/eniz1806/VaultOSS/internal/storage"
)

// ReportPrefix is where reports are written inside the destination container.
const ReportPrefix = "inventory/"

// Store is the subset of storage.Store a reporter needs.
type Store interface {
	List(ctx context.Context, container, prefix string) ([]storage.ObjectInfo, error)
	Put(ctx context.Context, container, key string, body io.Reader, opts ...storage.PutOption) (storage.ObjectInfo, error)
}

// Reporter generates periodic inventory CSV reports of container contents.
type Reporter struct {
	store      Store
	containers []string
	dest       string
	interval   time.Duration
	now        func() time.Time
}

// NewReporter reports on containers every intervalSecs. An empty dest
// writes each report into the container it describes.
func NewReporter(store Store, containers []string, dest string, intervalSecs int) *Reporter {
	return &Reporter{
		store:      store,
		containers: containers,
		dest:       dest,
		interval:   time.Duration(intervalSecs) * time.Second,
		now:        time.Now,
	}
}

// Run reports on every configured container each interval until ctx is done.
func (r *Reporter) Run(ctx context.Context) {
	if r.interval <= 0 || len(r.containers) == 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.ReportAll(ctx); err != nil {
				slog.Error("inventory reports failed", "error", err)
			}
		}
	}
}

// ReportAll writes one report per configured container.
func (r *Reporter) ReportAll(ctx context.Context) error {
	var errs []error
	for _, c := range r.containers {
		if _, err := r.Report(ctx, c); err != nil {
			errs = append(errs, fmt.Errorf("container %s: %w", c, err))
		}
	}
	return errors.Join(errs...)
}

// Report writes a CSV listing of container and returns the report key.
// Earlier reports stored in the same container are not listed.
func (r *Reporter) Report(ctx context.Context, container string) (string, error) {
	objects, err := r.store.List(ctx, container, "")
	if err != nil {
		return "", err
	}

	dest := r.dest
	if dest == "" {
		dest = container
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write([]string{"Container", "Key", "Size", "ETag", "LastModified", "Expires"})

	listed := 0
	for _, obj := range objects {
		if dest == container && strings.HasPrefix(obj.Key, ReportPrefix) {
			continue
		}
		expires := ""
		if !obj.Expires.IsZero() {
			expires = obj.Expires.UTC().Format(time.RFC3339)
		}
		w.Write([]string{
			container,
			obj.Key,
			strconv.FormatInt(obj.Size, 10),
			obj.ETag,
			obj.LastModified.UTC().Format(time.RFC3339),
			expires,
		})
		listed++
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("encode inventory: %w", err)
	}

	key := fmt.Sprintf("%s%s/%s.csv", ReportPrefix, container, r.now().UTC().Format("2006-01-02T15-04-05"))
	if _, err := r.store.Put(ctx, dest, key, bytes.NewReader(buf.Bytes()),
		storage.WithContentType("text/csv"),
		storage.WithSize(int64(buf.Len())),
	); err != nil {
		return "", fmt.Errorf("write inventory report: %w", err)
	}

	slog.Info("inventory report generated", "container", container, "dest", dest, "report", key, "objects", listed)
	return key, nil
}
