package s3

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/doccontrol/pkg/storage"
)

// objectAPI is the subset of the S3 client the adapter uses.
type objectAPI interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Adapter is a storage.FileStorage backed by an S3 bucket.
type Adapter struct {
	client objectAPI
	cfg    *Config
	logger hclog.Logger
}

// NewAdapter creates a new S3 storage adapter.
func NewAdapter(cfg *Config, logger hclog.Logger) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid S3 configuration: %w", err)
	}
	cfg.SetDefaults()

	awsCfg, err := createAWSConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// Force path-style addressing for MinIO
			o.UsePathStyle = true
		}
	})

	a := newAdapter(client, cfg, logger)
	if cfg.VerifyBucket {
		if err := a.Healthy(context.Background()); err != nil {
			return nil, err
		}
	}

	a.logger.Info("S3 storage initialized", "bucket", cfg.Bucket, "prefix", cfg.Prefix)
	return a, nil
}

func newAdapter(client objectAPI, cfg *Config, logger hclog.Logger) *Adapter {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	cfg.SetDefaults()
	return &Adapter{
		client: client,
		cfg:    cfg,
		logger: logger.Named("s3-storage"),
	}
}

// createAWSConfig creates AWS SDK configuration from S3 config.
func createAWSConfig(cfg *Config) (aws.Config, error) {
	httpClient := &http.Client{
		Timeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.InsecureSkipVerify,
			},
		},
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithHTTPClient(httpClient),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	return config.LoadDefaultConfig(context.Background(), opts...)
}

// Name implements storage.FileStorage.
func (a *Adapter) Name() string {
	return "s3"
}

// Healthy verifies that the bucket exists and is accessible.
func (a *Adapter) Healthy(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(a.cfg.Bucket),
	})
	if err != nil {
		return fmt.Errorf("bucket %s is not accessible: %w", a.cfg.Bucket, err)
	}
	return nil
}

// objectKey maps a file reference to an object key. References may carry
// an "s3://bucket/" or "s3:bucket/" prefix.
func (a *Adapter) objectKey(ref string) (string, error) {
	ref = strings.TrimPrefix(ref, "s3://")
	ref = strings.TrimPrefix(ref, "s3:")
	ref = strings.TrimPrefix(ref, a.cfg.Bucket+"/")

	key, err := storage.CleanRef(ref)
	if err != nil {
		return "", err
	}
	if a.cfg.Prefix != "" {
		key = path.Join(a.cfg.Prefix, key)
	}
	return key, nil
}

// Open implements storage.FileStorage.
func (a *Adapter) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	key, err := a.objectKey(ref)
	if err != nil {
		return nil, err
	}
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapErr(ref, "get", err)
	}
	return out.Body, nil
}

// Put implements storage.FileStorage.
func (a *Adapter) Put(ctx context.Context, ref string, r io.Reader, contentType string) error {
	key, err := a.objectKey(ref)
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = a.cfg.DefaultContentType
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to put object to S3: %w", err)
	}
	a.logger.Debug("stored object", "key", key)
	return nil
}

// Stat implements storage.FileStorage.
func (a *Adapter) Stat(ctx context.Context, ref string) (*storage.FileInfo, error) {
	key, err := a.objectKey(ref)
	if err != nil {
		return nil, err
	}
	out, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapErr(ref, "head", err)
	}
	return &storage.FileInfo{
		Ref:         key,
		Size:        aws.ToInt64(out.ContentLength),
		ModTime:     aws.ToTime(out.LastModified),
		ContentType: aws.ToString(out.ContentType),
	}, nil
}

// Delete implements storage.FileStorage.
func (a *Adapter) Delete(ctx context.Context, ref string) error {
	key, err := a.objectKey(ref)
	if err != nil {
		return err
	}
	_, err = a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object from S3: %w", err)
	}
	return nil
}

func mapErr(ref, op string, err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%s: %w", ref, storage.ErrNotFound)
	}
	return fmt.Errorf("failed to %s object from S3: %w", op, err)
}
