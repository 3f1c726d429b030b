package ci

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/parallaxworks/parallax/pkg/compression"
	"github.com/parallaxworks/parallax/pkg/errors"
	jsonpool "github.com/parallaxworks/parallax/pkg/json"
	"github.com/parallaxworks/parallax/pkg/logger"
)

// ConnectorResult is the outcome of one connector within a run.
type ConnectorResult struct {
	TechnicalName   string  `json:"technical_name"`
	Version         string  `json:"version,omitempty"`
	Success         bool    `json:"success"`
	Message         string  `json:"message,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// Report captures the outcome of one CI run for the report bucket.
type Report struct {
	Pipeline    string            `json:"pipeline"`
	GitBranch   string            `json:"git_branch"`
	GitRevision string            `json:"git_revision"`
	StartedAt   time.Time         `json:"started_at"`
	EndedAt     time.Time         `json:"ended_at"`
	Success     bool              `json:"success"`
	Connectors  []ConnectorResult `json:"connectors,omitempty"`
}

// ObjectKey is the bucket key for this run's report:
// <prefix>/<branch>/<revision>.json.gz.
func (r *Report) ObjectKey(prefix string) string {
	return path.Join(prefix, r.GitBranch, r.GitRevision) + ".json.gz"
}

// LatestKey is the bucket key of the branch's most recent report.
func (r *Report) LatestKey(prefix string) string {
	return path.Join(prefix, r.GitBranch, "latest.json.gz")
}

// Bytes serializes the report as gzip-compressed JSON, the format the
// report bucket holds.
func (r *Report) Bytes() ([]byte, error) {
	comp, err := compression.NewCompressor(&compression.Config{
		Algorithm: compression.Gzip,
		Level:     compression.Default,
	})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writer, err := comp.NewStreamWriter(&buf)
	if err != nil {
		return nil, err
	}
	if err := jsonpool.MarshalToWriter(writer, r); err != nil {
		writer.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to encode run report")
	}
	if err := writer.Close(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to compress run report")
	}

	return buf.Bytes(), nil
}

// Uploader writes run reports to the CI report bucket.
type Uploader struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
}

// NewUploader connects to the report bucket. Credentials come from
// GCP_GSM_CREDENTIALS when set, otherwise application default
// credentials apply.
func NewUploader(ctx context.Context, bucketName, prefix string) (*Uploader, error) {
	if bucketName == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "report bucket name is required")
	}

	var opts []option.ClientOption
	if credentials := os.Getenv(EnvGSMCredentials); credentials != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentials)))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create storage client")
	}

	return &Uploader{
		client: client,
		bucket: client.Bucket(bucketName),
		prefix: prefix,
	}, nil
}

// Upload writes the report under its revision key and refreshes the
// branch's latest copy.
func (u *Uploader) Upload(ctx context.Context, report *Report) error {
	payload, err := report.Bytes()
	if err != nil {
		return err
	}

	for _, key := range []string{report.ObjectKey(u.prefix), report.LatestKey(u.prefix)} {
		if err := u.writeObject(ctx, key, payload); err != nil {
			return err
		}
	}

	logger.Info("run report uploaded",
		zap.String("object", report.ObjectKey(u.prefix)),
		zap.Bool("success", report.Success))

	return nil
}

func (u *Uploader) writeObject(ctx context.Context, key string, payload []byte) error {
	writer := u.bucket.Object(key).NewWriter(ctx)
	writer.ContentType = "application/json"
	writer.ContentEncoding = "gzip"

	if _, err := writer.Write(payload); err != nil {
		_ = writer.Close()
		return errors.Wrap(err, errors.ErrorTypeConnection,
			fmt.Sprintf("failed to write report object %s", key))
	}
	if err := writer.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection,
			fmt.Sprintf("failed to finalize report object %s", key))
	}

	return nil
}

// Close releases the storage client.
func (u *Uploader) Close() error {
	return u.client.Close()
}
