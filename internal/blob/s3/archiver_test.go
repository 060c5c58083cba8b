package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/microarb/internal/domain"
)

type memWriter struct {
	key  string
	body []byte
	ct   string
	puts int
}

func (w *memWriter) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	w.key, w.body, w.ct = key, data, contentType
	w.puts++
	return nil
}

type stubAudit struct {
	old []domain.AuditRecord
}

func (s stubAudit) Record(ctx context.Context, rec domain.AuditRecord) error { return nil }

func (s stubAudit) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditRecord, error) {
	return nil, nil
}

func (s stubAudit) ListBefore(ctx context.Context, before time.Time) ([]domain.AuditRecord, error) {
	return s.old, nil
}

type countingPruner struct {
	deleted int64
	calls   int
}

func (p *countingPruner) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	p.calls++
	return p.deleted, nil
}

func TestArchiveOnceUploadsJSONLAndPrunes(t *testing.T) {
	recs := []domain.AuditRecord{
		{ID: 1, Timestamp: time.Now().UTC().Add(-48 * time.Hour), Symbol: "BTCUSDT",
			Direction: domain.SignalBuy, Outcome: "filled", Attempts: 1},
		{ID: 2, Timestamp: time.Now().UTC().Add(-47 * time.Hour), Symbol: "ETHUSDT",
			Direction: domain.SignalSell, Outcome: "risk_rejected",
			RejectionReason: domain.RejectDailyLossLimit},
	}
	writer := &memWriter{}
	pruner := &countingPruner{deleted: 2}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := NewArchiver(writer, stubAudit{old: recs}, pruner, 24*time.Hour, logger)

	n, err := a.ArchiveOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, pruner.calls)
	assert.Equal(t, "application/x-ndjson", writer.ct)
	assert.Contains(t, writer.key, "audit/")

	// One JSON object per line, decodable back into records.
	scanner := bufio.NewScanner(bytes.NewReader(writer.body))
	var lines int
	for scanner.Scan() {
		var rec domain.AuditRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		lines++
	}
	assert.Equal(t, 2, lines)
}

func TestArchiveOnceNothingToDo(t *testing.T) {
	writer := &memWriter{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := NewArchiver(writer, stubAudit{}, &countingPruner{}, 24*time.Hour, logger)

	n, err := a.ArchiveOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, writer.puts, "no upload without rows")
}
