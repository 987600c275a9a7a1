package reportstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/stockpanel/sentinel/internal/domain"
)

// ArchiveConfig configures periodic offload of persisted reports to an
// S3-compatible object store, adapted from the teacher's cloud backup
// service to archive individual reports rather than whole database
// snapshots.
type ArchiveConfig struct {
	Bucket          string
	Prefix          string // key prefix, e.g. "reports/"
	Endpoint        string // non-empty for S3-compatible providers (R2, MinIO); empty for AWS S3
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Interval        time.Duration
	RetentionDays   int // carried from configuration; the Archiver does not read it and deletes no local reports
}

// DefaultArchiveInterval matches the teacher's hourly cloud-backup
// cadence.
const DefaultArchiveInterval = time.Hour

// Archiver uploads reports to an S3-compatible bucket on a schedule.
type Archiver struct {
	store  *Store
	client *s3.Client
	bucket string
	prefix string
	log    zerolog.Logger
}

// NewArchiver builds an Archiver from cfg. Returns (nil, nil) when
// cfg.Bucket is empty — archival is an optional feature, not a hard
// dependency of the report store.
func NewArchiver(ctx context.Context, store *Store, cfg ArchiveConfig, log zerolog.Logger) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, nil
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Archiver{
		store:  store,
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		log:    log.With().Str("component", "report_archiver").Logger(),
	}, nil
}

// archivedReport is the on-disk JSON shape uploaded per report; blobs
// stay msgpack-encoded inside it rather than being re-encoded.
type archivedReport struct {
	QueryID         string    `json:"query_id"`
	StockCode       string    `json:"stock_code"`
	ReportType      string    `json:"report_type"`
	CreatedAt       time.Time `json:"created_at"`
	AnalysisSummary string    `json:"analysis_summary"`
	OperationAdvice string    `json:"operation_advice"`
	SentimentScore  *float64  `json:"sentiment_score"`
	RawResult       []byte    `json:"raw_result"`
	ContextSnapshot []byte    `json:"context_snapshot"`
}

// ArchiveOne uploads a single report's JSON-wrapped snapshot to the
// bucket, keyed by date and query id.
func (a *Archiver) ArchiveOne(ctx context.Context, r *domain.AnalysisReport) error {
	body, err := json.Marshal(archivedReport{
		QueryID:         r.QueryID,
		StockCode:       r.StockCode,
		ReportType:      string(r.ReportType),
		CreatedAt:       r.CreatedAt,
		AnalysisSummary: r.AnalysisSummary,
		OperationAdvice: r.OperationAdvice,
		SentimentScore:  r.SentimentScore,
		RawResult:       r.RawResult,
		ContextSnapshot: r.ContextSnapshot,
	})
	if err != nil {
		return fmt.Errorf("marshal archived report: %w", err)
	}

	key := fmt.Sprintf("%s%s/%s.json", a.prefix, r.CreatedAt.Format("2006-01-02"), r.QueryID)
	uploader := manager.NewUploader(a.client)
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("upload report %s: %w", r.QueryID, err)
	}

	a.log.Debug().Str("query_id", r.QueryID).Str("key", key).Msg("archived report to object storage")
	return nil
}

// RunPeriodic archives every report created since the last run, on a
// fixed interval, until ctx is cancelled. Intended to be launched as a
// goroutine from cmd/server.
func (a *Archiver) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultArchiveInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.archiveSince(ctx, last)
			last = now
		}
	}
}

func (a *Archiver) archiveSince(ctx context.Context, since time.Time) {
	reports, err := a.store.ListCreatedSince(ctx, since)
	if err != nil {
		a.log.Error().Err(err).Msg("failed to list reports for archival")
		return
	}
	for _, r := range reports {
		if err := a.ArchiveOne(ctx, r); err != nil {
			a.log.Error().Err(err).Str("query_id", r.QueryID).Msg("failed to archive report")
		}
	}
	if len(reports) > 0 {
		a.log.Info().Int("count", len(reports)).Msg("archived reports to object storage")
	}
}
