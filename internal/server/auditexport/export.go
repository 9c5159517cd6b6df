// Package auditexport copies audit events out of the database into
// S3-compatible object storage as JSON Lines, one object per run.
package auditexport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/abhidhakal/cipher-drop/internal/logging"
	"github.com/abhidhakal/cipher-drop/internal/server/config"
	"github.com/abhidhakal/cipher-drop/internal/server/models"
	"github.com/abhidhakal/cipher-drop/internal/server/repositories/auditevents"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const (
	DefaultPageSize = 1000
	contentType     = "application/x-ndjson"
)

// Uploader is the subset of *s3.Client the exporter needs.
type Uploader interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

// NewS3Client builds a path-style client for the configured endpoint with
// static credentials.
func NewS3Client(ctx context.Context, c *config.Config) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(c.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.S3AccessKey,
			c.S3SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(c.S3BaseEndpoint)
		o.UsePathStyle = true
	}), nil
}

// line is the exported shape of one event.
type line struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	ActorID   *string        `json:"actor_id"`
	IP        string         `json:"ip"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Result describes one uploaded object.
type Result struct {
	Key   string
	Count int
}

type Exporter struct {
	events   auditevents.Repository
	uploader Uploader
	bucket   string
	pageSize int
	logger   logging.Logger
	newID    func() string
}

func NewExporter(events auditevents.Repository, uploader Uploader, bucket string, logger logging.Logger) *Exporter {
	return &Exporter{
		events:   events,
		uploader: uploader,
		bucket:   bucket,
		pageSize: DefaultPageSize,
		logger:   logger,
		newID:    uuid.NewString,
	}
}

// Key names the object for a window starting at from.
func (e *Exporter) Key(from time.Time) string {
	return fmt.Sprintf("audit/%s/%s.jsonl", from.UTC().Format("2006/01/02"), e.newID())
}

// Export uploads every event with from <= created_at < to. An empty window
// uploads nothing and returns a zero Result.
func (e *Exporter) Export(ctx context.Context, from, to time.Time) (*Result, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("empty export window: %s >= %s", from, to)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	count := 0

	cursor := from
	seen := map[string]bool{}
	for {
		page, err := e.events.ListBetween(ctx, cursor, to, e.pageSize)
		if err != nil {
			return nil, err
		}

		for _, ev := range page {
			if seen[ev.ID] {
				continue
			}
			if err := enc.Encode(toLine(ev)); err != nil {
				return nil, err
			}
			count++
		}

		if len(page) < e.pageSize {
			break
		}

		// next page restarts at the last timestamp; ids already written there are skipped
		last := page[len(page)-1].CreatedAt
		if last.Equal(cursor) && allSeen(page, seen) {
			return nil, fmt.Errorf("more than %d events share timestamp %s", e.pageSize, last)
		}
		if !last.Equal(cursor) {
			seen = map[string]bool{}
		}
		for _, ev := range page {
			if ev.CreatedAt.Equal(last) {
				seen[ev.ID] = true
			}
		}
		cursor = last
	}

	if count == 0 {
		e.logger.Info(ctx, "no audit events to export", "from", from, "to", to)
		return &Result{}, nil
	}

	key := e.Key(from)
	_, err := e.uploader.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", key, err)
	}

	e.logger.Info(ctx, "audit events exported", "bucket", e.bucket, "key", key, "count", count)
	return &Result{Key: key, Count: count}, nil
}

func allSeen(page []*models.AuditEvent, seen map[string]bool) bool {
	for _, ev := range page {
		if !seen[ev.ID] {
			return false
		}
	}
	return true
}

func toLine(ev *models.AuditEvent) line {
	return line{
		ID:        ev.ID,
		Action:    string(ev.Action),
		ActorID:   ev.ActorID,
		IP:        ev.IP,
		Metadata:  ev.Metadata,
		CreatedAt: ev.CreatedAt,
	}
}
