package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/tradecost/internal/domain"
)

// DefaultArchiveBatch is the number of rows per uploaded chunk.
const DefaultArchiveBatch = 5000

// ArchivePrefix is the key prefix under which chunks are written.
const ArchivePrefix = "archive/slippage_log/"

const ndjson = "application/x-ndjson"

// SlippageArchiver implements domain.Archiver. Rows older than the cutoff
// are read oldest first, written as one JSONL object per chunk, and deleted
// from the store only after the chunk upload succeeds. Chunks of at least
// MinPartSize bytes go through a multipart upload.
type SlippageArchiver struct {
	writer      domain.BlobWriter
	logs        domain.SlippageLogStore
	batch       int
	multipartAt int64
	logger      *slog.Logger
	newID       func() string
}

// NewSlippageArchiver creates an archiver. batch <= 0 uses DefaultArchiveBatch.
func NewSlippageArchiver(writer domain.BlobWriter, logs domain.SlippageLogStore, batch int, logger *slog.Logger) *SlippageArchiver {
	if batch <= 0 {
		batch = DefaultArchiveBatch
	}
	return &SlippageArchiver{
		writer:      writer,
		logs:        logs,
		batch:       batch,
		multipartAt: MinPartSize,
		logger:      logger.With(slog.String("component", "s3_archiver")),
		newID:       uuid.NewString,
	}
}

// ArchiveSlippageLog moves every row logged before the cutoff into object
// storage and returns the number of rows deleted from the store. On error
// the count covers the chunks already committed.
func (a *SlippageArchiver) ArchiveSlippageLog(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		rows, err := a.logs.ListBefore(ctx, before, a.batch)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive query: %w", err)
		}
		if len(rows) == 0 {
			return total, nil
		}

		buf, err := marshalJSONL(rows)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive marshal: %w", err)
		}
		path := archivePath(before, a.newID())
		if err := a.upload(ctx, path, buf); err != nil {
			return total, fmt.Errorf("s3blob: archive upload: %w", err)
		}

		ids := make([]string, len(rows))
		for i, r := range rows {
			ids[i] = r.ID
		}
		n, err := a.logs.DeleteByID(ctx, ids)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive delete after %s: %w", path, err)
		}
		total += n
		if n == 0 {
			return total, fmt.Errorf("s3blob: archive delete after %s removed no rows", path)
		}
		a.logger.InfoContext(ctx, "archived slippage log chunk",
			slog.String("path", path),
			slog.Int("rows", len(rows)),
			slog.Int64("deleted", n),
		)

		if len(rows) < a.batch {
			return total, nil
		}
	}
}

func (a *SlippageArchiver) upload(ctx context.Context, path string, buf []byte) error {
	if int64(len(buf)) >= a.multipartAt {
		return a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), ndjson, MinPartSize)
	}
	return a.writer.Put(ctx, path, bytes.NewReader(buf), ndjson)
}

// archivePath partitions chunks by the cutoff date:
//
//	archive/slippage_log/2025-05-04/<uuid>.jsonl
func archivePath(before time.Time, id string) string {
	return fmt.Sprintf("%s%s/%s.jsonl", ArchivePrefix, before.UTC().Format("2006-01-02"), id)
}

func marshalJSONL[T any](items []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range items {
		if err := enc.Encode(items[i]); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
