package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awsCreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/lychee-technology/formflow"
	"go.uber.org/zap"
)

const keyTimestampLayout = "20060102T150405Z"

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type bucketHeader interface {
	HeadBucket(ctx context.Context, input *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Exporter is the part of formflow.FormStore the archiver reads from.
type Exporter interface {
	ExportFormData(ctx context.Context, formID string) (*formflow.ExportBundle, error)
	ExportCSV(ctx context.Context, formID string, w io.Writer) error
}

// Result lists the objects written for one archive run.
type Result struct {
	Bucket           string   `json:"bucket"`
	Keys             []string `json:"keys"`
	TotalSubmissions int      `json:"totalSubmissions"`
}

// Archiver copies form exports to an S3 bucket.
type Archiver struct {
	uploader uploader
	head     bucketHeader
	bucket   string
	prefix   string
	nowFunc  func() time.Time
}

// New builds an archiver from the default AWS configuration chain. Static
// credentials and a custom endpoint are applied when configured.
func New(ctx context.Context, cfg formflow.ArchiveConfig) (*Archiver, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if cfg.Region != "" {
		awsCfg.Region = cfg.Region
	}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = awsCreds.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	a := newArchiver(manager.NewUploader(client), cfg.Bucket, cfg.Prefix)
	a.head = client
	return a, nil
}

func newArchiver(u uploader, bucket, prefix string) *Archiver {
	return &Archiver{uploader: u, bucket: bucket, prefix: prefix, nowFunc: time.Now}
}

// ArchiveForm uploads the JSON export bundle of a form and, when it has
// submissions, the CSV export next to it.
func (a *Archiver) ArchiveForm(ctx context.Context, store Exporter, formID string) (*Result, error) {
	bundle, err := store.ExportFormData(ctx, formID)
	if err != nil {
		return nil, err
	}

	dir := path.Join(a.prefix, formID, a.nowFunc().UTC().Format(keyTimestampLayout))
	result := &Result{Bucket: a.bucket, Keys: []string{}, TotalSubmissions: bundle.TotalSubmissions}

	body, err := json.Marshal(bundle)
	if err != nil {
		return nil, formflow.NewInternalError("failed to marshal export bundle", err)
	}
	key := path.Join(dir, "export.json")
	if err := a.put(ctx, key, "application/json", body); err != nil {
		return nil, err
	}
	result.Keys = append(result.Keys, key)

	if bundle.TotalSubmissions > 0 {
		var buf bytes.Buffer
		if err := store.ExportCSV(ctx, formID, &buf); err != nil {
			return nil, err
		}
		key := path.Join(dir, "submissions.csv")
		if err := a.put(ctx, key, "text/csv", buf.Bytes()); err != nil {
			return nil, err
		}
		result.Keys = append(result.Keys, key)
	}

	zap.S().Infow("form archived", "formId", formID, "bucket", a.bucket, "keys", result.Keys)
	return result, nil
}

func (a *Archiver) put(ctx context.Context, key, contentType string, body []byte) error {
	_, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return uploadError(a.bucket, key, err)
	}
	return nil
}

// Ping checks that the archive bucket exists and is reachable with the
// configured credentials.
func (a *Archiver) Ping(ctx context.Context) error {
	if a.head == nil {
		return nil
	}
	if _, err := a.head.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)}); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("head bucket %s: %s", a.bucket, apiErr.ErrorCode())
		}
		return fmt.Errorf("head bucket %s: %w", a.bucket, err)
	}
	return nil
}

func uploadError(bucket, key string, err error) *formflow.FormflowError {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchBucket" {
		return formflow.NewFormflowError(formflow.ErrorTypeNotFound, formflow.ErrCodeArchiveBucketMissing,
			fmt.Sprintf("archive bucket %s does not exist", bucket)).WithCause(err)
	}
	return formflow.NewFormflowError(formflow.ErrorTypeExport, formflow.ErrCodeArchiveFailed,
		"failed to upload archive object").
		WithDetail("bucket", bucket).
		WithDetail("key", key).
		WithCause(err)
}
