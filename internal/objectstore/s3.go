package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/persistorai/auditseal/internal/models"
	"github.com/persistorai/auditseal/internal/retention"
)

// maxArchiveBytes bounds archive downloads during verification.
const maxArchiveBytes = 2 << 30

// S3API is the subset of *s3.Client the store uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	PutObjectRetention(ctx context.Context, in *s3.PutObjectRetentionInput, optFns ...func(*s3.Options)) (*s3.PutObjectRetentionOutput, error)
	GetObjectRetention(ctx context.Context, in *s3.GetObjectRetentionInput, optFns ...func(*s3.Options)) (*s3.GetObjectRetentionOutput, error)
	GetObjectLockConfiguration(ctx context.Context, in *s3.GetObjectLockConfigurationInput, optFns ...func(*s3.Options)) (*s3.GetObjectLockConfigurationOutput, error)
}

// S3Options configures an S3Store.
type S3Options struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Store stores archives in an S3 bucket with Object Lock.
type S3Store struct {
	api    S3API
	bucket string
	now    func() time.Time
}

var _ Store = (*S3Store)(nil)

// NewS3Store builds a client from the default AWS credential chain, or from
// static credentials when both are given. A custom endpoint switches to
// path-style addressing for S3-compatible providers.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}

	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("objectstore/s3: load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3StoreWithClient(client, opts.Bucket), nil
}

// NewS3StoreWithClient wraps an existing client.
func NewS3StoreWithClient(api S3API, bucket string) *S3Store {
	return &S3Store{api: api, bucket: bucket, now: time.Now}
}

// Put uploads data with a SHA-256 checksum, which Object Lock buckets require.
func (s *S3Store) Put(ctx context.Context, key string, data []byte) (*PutResult, error) {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:            aws.String(s.bucket),
		Key:               aws.String(key),
		Body:              bytes.NewReader(data),
		ContentLength:     aws.Int64(int64(len(data))),
		ContentType:       aws.String("application/zip"),
		ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore/s3: put %s: %w", key, err)
	}

	return &PutResult{Size: int64(len(data))}, nil
}

// Get downloads the object at key.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore/s3: get %s: %w", key, mapNotFound(err))
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxArchiveBytes))
	if err != nil {
		return nil, fmt.Errorf("objectstore/s3: read %s: %w", key, err)
	}

	return data, nil
}

// Delete removes key after checking its retention. The bucket enforces the
// same rule server side; the local check gives a typed error.
func (s *S3Store) Delete(ctx context.Context, key string, opts DeleteOptions) error {
	state, err := s.GetRetentionState(ctx, key)
	if err != nil {
		return err
	}

	if err := retention.CheckDelete(state, s.now(), opts.BypassGovernance); err != nil {
		return err
	}

	_, err = s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket:                    aws.String(s.bucket),
		Key:                       aws.String(key),
		BypassGovernanceRetention: aws.Bool(opts.BypassGovernance),
	})
	if err != nil {
		return fmt.Errorf("objectstore/s3: delete %s: %w", key, mapNotFound(err))
	}

	return nil
}

// ApplyRetention sets or extends the object's retention.
func (s *S3Store) ApplyRetention(ctx context.Context, key string, state models.RetentionState) error {
	current, err := s.GetRetentionState(ctx, key)
	if err != nil {
		return err
	}

	if err := retention.CheckReplace(current, state, s.now(), false); err != nil {
		return err
	}

	_, err = s.api.PutObjectRetention(ctx, &s3.PutObjectRetentionInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Retention: &types.ObjectLockRetention{
			Mode:            toS3Mode(state.Mode),
			RetainUntilDate: aws.Time(state.Until.UTC()),
		},
	})
	if err != nil {
		return fmt.Errorf("objectstore/s3: put retention %s: %w", key, err)
	}

	return nil
}

// GetRetentionState reads the object's retention. Objects without a
// retention configuration yield nil.
func (s *S3Store) GetRetentionState(ctx context.Context, key string) (*models.RetentionState, error) {
	out, err := s.api.GetObjectRetention(ctx, &s3.GetObjectRetentionInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if apiErrorCode(err) == "NoSuchObjectLockConfiguration" {
			return nil, nil
		}

		return nil, fmt.Errorf("objectstore/s3: get retention %s: %w", key, mapNotFound(err))
	}

	if out.Retention == nil || out.Retention.RetainUntilDate == nil {
		return nil, nil
	}

	return &models.RetentionState{
		Mode:  fromS3Mode(out.Retention.Mode),
		Until: out.Retention.RetainUntilDate.UTC(),
	}, nil
}

// SupportsObjectLock reports whether the bucket has Object Lock enabled.
func (s *S3Store) SupportsObjectLock(ctx context.Context) (bool, error) {
	out, err := s.api.GetObjectLockConfiguration(ctx, &s3.GetObjectLockConfigurationInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		if apiErrorCode(err) == "ObjectLockConfigurationNotFoundError" {
			return false, nil
		}

		return false, fmt.Errorf("objectstore/s3: get object lock configuration: %w", err)
	}

	return out.ObjectLockConfiguration != nil &&
		out.ObjectLockConfiguration.ObjectLockEnabled == types.ObjectLockEnabledEnabled, nil
}

func toS3Mode(m models.RetentionMode) types.ObjectLockRetentionMode {
	if m == models.RetentionGovernance {
		return types.ObjectLockRetentionModeGovernance
	}

	return types.ObjectLockRetentionModeCompliance
}

func fromS3Mode(m types.ObjectLockRetentionMode) models.RetentionMode {
	if m == types.ObjectLockRetentionModeGovernance {
		return models.RetentionGovernance
	}

	return models.RetentionCompliance
}

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}

	return ""
}

func mapNotFound(err error) error {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) || apiErrorCode(err) == "NoSuchKey" || apiErrorCode(err) == "NotFound" {
		return fmt.Errorf("%w: %w", models.ErrObjectNotFound, err)
	}

	return err
}
