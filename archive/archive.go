// Package archive uploads CSV snapshots of a sink to object storage before
// a run deletes or replaces rows.
package archive

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/ideamans/go-sheetsync"
	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// Archiver implements sheetsync.Snapshotter on a bucket
type Archiver struct {
	client Client
	bucket string
	prefix string
	tab    string
	logger *zap.Logger
	now    func() time.Time

	bucketReady bool
}

// Option customizes an Archiver
type Option func(*Archiver)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(a *Archiver) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an Archiver for the given sink tab
func New(client Client, cfg Config, tab string, opts ...Option) (*Archiver, error) {
	if client == nil {
		return nil, errors.New("archive client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: archive bucket", sheetsync.ErrMissingConfig)
	}
	a := &Archiver{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		tab:    tab,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// ObjectName returns the key a snapshot of runID is stored under
func (a *Archiver) ObjectName(runID string, at time.Time) string {
	name := at.UTC().Format("20060102T150405Z") + "-" + runID + ".csv"
	return path.Join(a.prefix, a.tab, name)
}

// Snapshot writes header and rows as CSV and uploads it
func (a *Archiver) Snapshot(ctx context.Context, runID string, header []string, rows []sheetsync.SinkRow) error {
	if err := a.ensureBucket(ctx); err != nil {
		return err
	}

	data, err := encodeCSV(header, rows)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	object := a.ObjectName(runID, a.now())
	info, err := a.client.PutObject(ctx, a.bucket, object, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "text/csv",
		UserMetadata: map[string]string{
			"run-id": runID,
			"tab":    a.tab,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload snapshot %s: %w", object, err)
	}

	a.logger.Info("sink snapshot stored",
		zap.String("bucket", a.bucket),
		zap.String("object", object),
		zap.Int("rows", len(rows)),
		zap.Int64("size", info.Size),
	)
	return nil
}

func (a *Archiver) ensureBucket(ctx context.Context) error {
	if a.bucketReady {
		return nil
	}
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", a.bucket, err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", a.bucket, err)
		}
		a.logger.Info("archive bucket created", zap.String("bucket", a.bucket))
	}
	a.bucketReady = true
	return nil
}

// encodeCSV lays rows out in header order
func encodeCSV(header []string, rows []sheetsync.SinkRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if len(header) > 0 {
		if err := w.Write(header); err != nil {
			return nil, err
		}
	}
	record := make([]string, len(header))
	for _, row := range rows {
		for i, col := range header {
			record[i] = row.Values[col]
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
