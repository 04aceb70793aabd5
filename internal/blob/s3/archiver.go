package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

const (
	archiveBatch    = 1000
	jsonlType       = "application/x-ndjson"
	maxPathAttempts = 100
)

// Forgetter drops archived records from an in-memory store.
type Forgetter interface {
	Forget(ids []uint64) int
}

// Archiver implements domain.Archiver. Each batch is uploaded as JSON lines,
// then deleted from the journal, then dropped from memory. A failed upload
// leaves everything in place for the next run.
type Archiver struct {
	writer  domain.BlobWriter
	reader  domain.BlobReader
	orders  domain.OrderStore
	tickets domain.TicketStore
	audit   domain.AuditStore

	forgetOrders  Forgetter
	forgetTickets Forgetter
	logger        *slog.Logger
}

var _ domain.Archiver = (*Archiver)(nil)

// NewArchiver creates an Archiver. reader and audit may be nil.
func NewArchiver(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	orders domain.OrderStore,
	tickets domain.TicketStore,
	audit domain.AuditStore,
	forgetOrders, forgetTickets Forgetter,
	logger *slog.Logger,
) *Archiver {
	return &Archiver{
		writer:        writer,
		reader:        reader,
		orders:        orders,
		tickets:       tickets,
		audit:         audit,
		forgetOrders:  forgetOrders,
		forgetTickets: forgetTickets,
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveOrders moves terminal orders last updated before before to
// archive/orders/. HALTED orders stay in the database.
func (a *Archiver) ArchiveOrders(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for {
		batch, err := a.orders.ListTerminalBefore(ctx, before, archiveBatch)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive orders: %w", err)
		}
		if len(batch) == 0 {
			return total, nil
		}
		ids := make([]uint64, len(batch))
		for i, o := range batch {
			ids[i] = o.ID
		}
		buf, err := marshalJSONL(batch)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive orders: %w", err)
		}
		if err := a.upload(ctx, "orders", before, buf, len(batch)); err != nil {
			return total, err
		}
		if err := a.orders.DeleteOrders(ctx, ids); err != nil {
			return total, fmt.Errorf("s3blob: archive orders: delete: %w", err)
		}
		if a.forgetOrders != nil {
			a.forgetOrders.Forget(ids)
		}
		total += int64(len(batch))
		if len(batch) < archiveBatch {
			return total, nil
		}
	}
}

// ArchiveTickets moves ACKED and FAILED tickets resolved before before to
// archive/tickets/.
func (a *Archiver) ArchiveTickets(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for {
		batch, err := a.tickets.ListResolvedBefore(ctx, before, archiveBatch)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive tickets: %w", err)
		}
		if len(batch) == 0 {
			return total, nil
		}
		ids := make([]uint64, len(batch))
		for i, t := range batch {
			ids[i] = t.OrderID
		}
		buf, err := marshalJSONL(batch)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive tickets: %w", err)
		}
		if err := a.upload(ctx, "tickets", before, buf, len(batch)); err != nil {
			return total, err
		}
		if err := a.tickets.DeleteTickets(ctx, ids); err != nil {
			return total, fmt.Errorf("s3blob: archive tickets: delete: %w", err)
		}
		if a.forgetTickets != nil {
			a.forgetTickets.Forget(ids)
		}
		total += int64(len(batch))
		if len(batch) < archiveBatch {
			return total, nil
		}
	}
}

func (a *Archiver) upload(ctx context.Context, kind string, before time.Time, buf []byte, count int) error {
	path, err := a.freePath(ctx, kind, before)
	if err != nil {
		return err
	}
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlType); err != nil {
		return fmt.Errorf("s3blob: archive %s: %w", kind, err)
	}

	a.logger.Info("archived", slog.String("path", path), slog.Int("count", count))
	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive."+kind, 0, map[string]any{
			"path":   path,
			"count":  count,
			"before": before.Format(time.RFC3339),
		}); err != nil {
			a.logger.Warn("audit log failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// freePath returns archive/<kind>/<date>.jsonl, or the first free
// archive/<kind>/<date>-<n>.jsonl when earlier runs used it.
func (a *Archiver) freePath(ctx context.Context, kind string, before time.Time) (string, error) {
	base := fmt.Sprintf("archive/%s/%s", kind, before.UTC().Format("2006-01-02"))
	if a.reader == nil {
		return fmt.Sprintf("%s-%d.jsonl", base, time.Now().UnixNano()), nil
	}
	for n := 0; n < maxPathAttempts; n++ {
		path := base + ".jsonl"
		if n > 0 {
			path = fmt.Sprintf("%s-%d.jsonl", base, n)
		}
		exists, err := a.reader.Exists(ctx, path)
		if err != nil {
			return "", fmt.Errorf("s3blob: archive %s: %w", kind, err)
		}
		if !exists {
			return path, nil
		}
	}
	return "", fmt.Errorf("s3blob: archive %s: no free path under %s", kind, base)
}

func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Runner archives on a fixed interval.
type Runner struct {
	archiver *Archiver
	after    time.Duration
	interval time.Duration
	logger   *slog.Logger
}

// NewRunner archives records older than after every interval.
func NewRunner(a *Archiver, after, interval time.Duration, logger *slog.Logger) *Runner {
	return &Runner{archiver: a, after: after, interval: interval, logger: logger.With(slog.String("component", "archive_runner"))}
}

// Run blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			before := time.Now().UTC().Add(-r.after)
			if _, err := r.archiver.ArchiveOrders(ctx, before); err != nil {
				r.logger.Error("archive orders failed", slog.String("error", err.Error()))
			}
			if _, err := r.archiver.ArchiveTickets(ctx, before); err != nil {
				r.logger.Error("archive tickets failed", slog.String("error", err.Error()))
			}
		}
	}
}
