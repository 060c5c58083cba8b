package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/microarb/internal/domain"
)

// AuditPruner is the optional deletion half of the archive flow. The
// Postgres audit store satisfies it; deletion only happens after the
// upload succeeded.
type AuditPruner interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Archiver drains old audit rows into object storage: rows older than the
// retention window are serialized to JSONL, uploaded, and then pruned from
// the primary store.
type Archiver struct {
	writer    domain.BlobWriter
	audit     domain.AuditStore
	pruner    AuditPruner // nil keeps archived rows in the primary store
	retention time.Duration
	logger    *slog.Logger
}

// NewArchiver creates an Archiver with the given retention window.
func NewArchiver(writer domain.BlobWriter, audit domain.AuditStore, pruner AuditPruner, retention time.Duration, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:    writer,
		audit:     audit,
		pruner:    pruner,
		retention: retention,
		logger:    logger.With(slog.String("component", "audit_archiver")),
	}
}

// ArchiveOnce archives everything older than the retention cutoff. A run
// with nothing to archive is a no-op. Returns the number of archived rows.
func (a *Archiver) ArchiveOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-a.retention)

	recs, err := a.audit.ListBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit: %w", err)
	}
	if len(recs) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range recs {
		if err := enc.Encode(rec); err != nil {
			return 0, fmt.Errorf("s3blob: encode audit record %d: %w", rec.ID, err)
		}
	}

	key := fmt.Sprintf("audit/%s/audit-%s.jsonl",
		cutoff.Format("2006/01/02"), time.Now().UTC().Format("20060102T150405Z"))
	if err := a.writer.Put(ctx, key, &buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: upload audit archive: %w", err)
	}

	if a.pruner != nil {
		deleted, err := a.pruner.DeleteBefore(ctx, cutoff)
		if err != nil {
			// The upload stands; the rows will be retried (and re-uploaded)
			// on the next run.
			return len(recs), fmt.Errorf("s3blob: prune archived audit rows: %w", err)
		}
		a.logger.Info("audit rows archived",
			slog.Int("uploaded", len(recs)),
			slog.Int64("pruned", deleted),
			slog.String("key", key),
		)
		return len(recs), nil
	}

	a.logger.Info("audit rows archived", slog.Int("uploaded", len(recs)), slog.String("key", key))
	return len(recs), nil
}

// Run archives on the given interval until ctx ends.
func (a *Archiver) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := a.ArchiveOnce(ctx); err != nil {
				a.logger.Warn("audit archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
