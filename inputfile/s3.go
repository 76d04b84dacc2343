package inputfile

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/appwrite/sdk-for-go/upload"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-utils/v2/log"
)

// ErrObjectNotFound is returned when the S3 object does not exist.
var ErrObjectNotFound = errors.New("s3 object not found")

// S3API is the part of the S3 client used to read objects.
type S3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config ...
type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint is set for S3 compatible services like MinIO.
	Endpoint string
}

// NewS3Client creates an S3 client. Without static credentials the default AWS credential chain is used.
func NewS3Client(ctx context.Context, cfg S3Config, logger log.Logger) (*s3.Client, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("region must not be empty")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		logger.Debugf("aws credentials provided, using them...")
		opts = append(opts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// FromS3 describes an S3 object. Every chunk is fetched with its own ranged GetObject,
// nothing is downloaded up front.
func FromS3(ctx context.Context, api S3API, bucket, key string) (*InputFile, error) {
	head, err := api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s3Error(bucket, key, err)
	}

	size := aws.ToInt64(head.ContentLength)
	mimeType := aws.ToString(head.ContentType)
	if mimeType == "" || mimeType == defaultMimeType {
		mimeType = withExtensionFallback(defaultMimeType, key)
	}

	return &InputFile{
		Name:     baseName(key),
		MimeType: mimeType,
		size:     size,
		source:   &s3Source{ctx: ctx, api: api, bucket: bucket, key: key},
	}, nil
}

type s3Source struct {
	// upload.Source has no context parameter; requests use the one FromS3 was called with.
	ctx    context.Context
	api    S3API
	bucket string
	key    string
}

func (s *s3Source) ReadChunk(r upload.ChunkRange) ([]byte, error) {
	if r.Len() == 0 {
		return []byte{}, nil
	}

	out, err := s.api.GetObject(s.ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", r.Start, r.End)),
	})
	if err != nil {
		return nil, s3Error(s.bucket, s.key, err)
	}
	defer out.Body.Close() //nolint:errcheck

	chunk := make([]byte, r.Len())
	if _, err := io.ReadFull(out.Body, chunk); err != nil {
		return nil, fmt.Errorf("read s3://%s/%s bytes %d-%d: %w", s.bucket, s.key, r.Start, r.End, err)
	}
	return chunk, nil
}

func s3Error(bucket, key string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return fmt.Errorf("%w: s3://%s/%s", ErrObjectNotFound, bucket, key)
		}
	}
	return fmt.Errorf("s3://%s/%s: %w", bucket, key, err)
}

func baseName(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '/' {
			return key[i+1:]
		}
	}
	return key
}
