package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads archive batches to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader checks object storage before a path is claimed, so a rerun of
// the same archive window never overwrites an earlier batch.
type BlobReader interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver moves settled orders and resolved tickets out of the journal.
type Archiver interface {
	ArchiveOrders(ctx context.Context, before time.Time) (int64, error)
	ArchiveTickets(ctx context.Context, before time.Time) (int64, error)
}
