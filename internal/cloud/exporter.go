// Package cloud uploads saved configuration snapshots to an S3-compatible
// bucket (AWS S3 or MinIO).
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	_const "swgconf/internal/const"
	"swgconf/internal/logger"
	"swgconf/model"
)

// Config holds the bucket settings. Credentials fall back to the default
// AWS chain when AccessKeyID is empty.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional, e.g. a MinIO URL
	Prefix          string
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string

	// MaxAttempts caps SDK retries per request, 0 keeps the SDK default.
	MaxAttempts int
	// HTTPClient overrides the SDK transport (tests).
	HTTPClient *http.Client
}

// ExportResult lists uploaded object keys and the files that failed.
type ExportResult struct {
	Bucket   string              `json:"bucket"`
	Uploaded []string            `json:"uploaded"`
	Failures []model.CopyFailure `json:"failures,omitempty"`
}

// Exporter uploads snapshot directories under <prefix>/<id>/.
type Exporter struct {
	client *s3.Client
	bucket string
	prefix string
	logger *logger.Logger
}

func New(ctx context.Context, cfg Config, logger *logger.Logger) (*Exporter, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.MaxAttempts > 0 {
			o.RetryMaxAttempts = cfg.MaxAttempts
		}
		if cfg.HTTPClient != nil {
			o.HTTPClient = cfg.HTTPClient
		}
	})

	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = _const.DefaultExportPrefix
	}
	return &Exporter{client: client, bucket: cfg.Bucket, prefix: prefix, logger: logger}, nil
}

// Key returns the object key of a snapshot file.
func (e *Exporter) Key(id, file string) string {
	return path.Join(e.prefix, id, file)
}

// Export uploads every file listed in meta from snapshotDir, then the
// record itself as metadata.json. A failed file does not stop the rest.
func (e *Exporter) Export(ctx context.Context, meta *model.SnapshotMetadata, snapshotDir string) (*ExportResult, error) {
	result := &ExportResult{Bucket: e.bucket, Uploaded: []string{}}

	for _, file := range meta.Files {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		key := e.Key(meta.ID, file)
		data, err := os.ReadFile(filepath.Join(snapshotDir, filepath.FromSlash(file)))
		if err == nil {
			err = e.put(ctx, key, data, "text/plain")
		}
		if err != nil {
			e.logger.Warn("Failed to export %s: %v", file, err)
			result.Failures = append(result.Failures, model.CopyFailure{Path: file, Error: err.Error()})
			continue
		}
		result.Uploaded = append(result.Uploaded, key)
	}

	record, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return result, fmt.Errorf("failed to marshal snapshot record: %w", err)
	}
	key := e.Key(meta.ID, _const.LedgerFileName)
	if err := e.put(ctx, key, record, "application/json"); err != nil {
		return result, fmt.Errorf("failed to upload snapshot record: %w", err)
	}
	result.Uploaded = append(result.Uploaded, key)

	e.logger.Info("Exported snapshot %s to s3://%s/%s (%d uploaded, %d failed)",
		meta.ID, e.bucket, e.Key(meta.ID, ""), len(result.Uploaded), len(result.Failures))
	return result, nil
}

func (e *Exporter) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &e.bucket,
		Key:           &key,
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	return err
}
