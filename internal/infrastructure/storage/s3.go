package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/multierr"

	"github.com/bravo68web/tableidentity/internal/domain/service"
)

const snapshotContentType = "application/x-ndjson"

// S3Config holds configuration for S3 storage
type S3Config struct {
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	// Endpoint points at an S3-compatible service such as MinIO and
	// switches to path-style addressing.
	Endpoint string
	// Prefix is prepended to every snapshot name
	Prefix string
}

// S3Storage keeps snapshots as objects below a prefix of one bucket
type S3Storage struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Storage connects to the bucket and verifies it is reachable
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("bucket %s is not reachable: %w", cfg.Bucket, err)
	}

	prefix := cfg.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Storage{client: client, bucket: cfg.Bucket, prefix: prefix}, nil
}

func (s *S3Storage) Location() string {
	return "s3://" + s.bucket + "/" + s.prefix
}

func (s *S3Storage) key(name string) (*string, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	return aws.String(s.prefix + name), nil
}

// s3Upload spools a snapshot to a temporary file and uploads it on Close.
// The file gives PutObject a seekable body of known length.
type s3Upload struct {
	*os.File
	ctx    context.Context
	client *s3.Client
	input  s3.PutObjectInput
}

func (u *s3Upload) Close() (err error) {
	defer func() {
		err = multierr.Combine(err, u.File.Close(), os.Remove(u.Name()))
	}()
	if _, err := u.Seek(0, io.SeekStart); err != nil {
		return err
	}
	u.input.Body = u.File
	if _, err := u.client.PutObject(u.ctx, &u.input); err != nil {
		return fmt.Errorf("upload %s: %w", aws.ToString(u.input.Key), err)
	}
	return nil
}

// Create opens name for writing; the object appears once Close uploads it
func (s *S3Storage) Create(ctx context.Context, name string) (io.WriteCloser, error) {
	key, err := s.key(name)
	if err != nil {
		return nil, err
	}
	spool, err := os.CreateTemp("", "snapshot-upload-*")
	if err != nil {
		return nil, err
	}
	return &s3Upload{
		File:   spool,
		ctx:    context.WithoutCancel(ctx),
		client: s.client,
		input: s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         key,
			ContentType: aws.String(snapshotContentType),
		},
	}, nil
}

func (s *S3Storage) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	key, err := s.key(name)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: key})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("get %s: %w", *key, err)
	}
	return out.Body, nil
}

func (s *S3Storage) Exists(ctx context.Context, name string) (bool, error) {
	key, err := s.key(name)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: key})
	if err == nil {
		return true, nil
	}
	var missing *types.NotFound
	if errors.As(err, &missing) {
		return false, nil
	}
	return false, fmt.Errorf("head %s: %w", *key, err)
}

func (s *S3Storage) Delete(ctx context.Context, name string) error {
	key, err := s.key(name)
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: key}); err != nil {
		return fmt.Errorf("delete %s: %w", *key, err)
	}
	return nil
}

// List returns every object below the prefix, sorted by name
func (s *S3Storage) List(ctx context.Context) ([]service.SnapshotInfo, error) {
	var out []service.SnapshotInfo
	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", s.Location(), err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			if name == "" || strings.HasSuffix(name, "/") {
				continue
			}
			out = append(out, service.SnapshotInfo{
				Name:    name,
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
			})
		}
	}
	slices.SortFunc(out, func(a, b service.SnapshotInfo) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}
