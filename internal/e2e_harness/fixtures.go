package e2e_harness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/lychee-technology/formflow"
	"github.com/lychee-technology/formflow/internal"
)

// ApplySchema creates the form tables.
func ApplySchema(ctx context.Context, db *sql.DB, tables formflow.TableNames) error {
	for _, stmt := range internal.FormTablesDDL(tables) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply ddl: %w", err)
		}
	}
	return nil
}

// CountRows returns the number of rows in table. table must be trusted.
func CountRows(ctx context.Context, db *sql.DB, table string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, "SELECT count(*) FROM "+table).Scan(&n)
	return n, err
}

// RegistrationForm is the form used across the end-to-end tests.
func RegistrationForm() *formflow.FormSchema {
	return &formflow.FormSchema{
		Title: "Registration",
		Fields: []formflow.FieldDefinition{
			{Name: "intro", Type: formflow.FieldTypeParagraph, Label: "Welcome"},
			{Name: "name", Type: formflow.FieldTypeText, Label: "Name",
				Validation: []formflow.ValidationRule{{Type: formflow.RuleRequired}}},
			{Name: "tags", Type: formflow.FieldTypeCheckbox, Label: "Tags",
				Options: []formflow.FieldOption{{Label: "A", Value: "a"}, {Label: "B", Value: "b"}}},
		},
		Settings: formflow.FormSettings{AllowMultipleSubmissions: true},
	}
}

func newS3Client(ctx context.Context, endpoint string) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(s3AccessKey, s3SecretKey, "")),
		config.WithBaseEndpoint(endpoint),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	}), nil
}

// EnsureBucket creates bucket unless it already exists.
func EnsureBucket(ctx context.Context, endpoint, bucket string) error {
	client, err := newS3Client(ctx, endpoint)
	if err != nil {
		return err
	}
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err == nil {
		return nil
	}
	if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			code := apiErr.ErrorCode()
			if code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
				return nil
			}
		}
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

// ObjectExists reports whether key is present in bucket.
func ObjectExists(ctx context.Context, endpoint, bucket, key string) (bool, error) {
	client, err := newS3Client(ctx, endpoint)
	if err != nil {
		return false, err
	}
	_, err = client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err == nil {
		return true, nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey") {
		return false, nil
	}
	return false, err
}
