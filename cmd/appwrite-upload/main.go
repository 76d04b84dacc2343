// appwrite-upload uploads local files, or an S3 object, into a storage bucket.
//
// Credentials are read from the APPWRITE_* environment variables.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/appwrite/sdk-for-go/batch"
	"github.com/appwrite/sdk-for-go/client"
	"github.com/appwrite/sdk-for-go/id"
	"github.com/appwrite/sdk-for-go/inputfile"
	"github.com/appwrite/sdk-for-go/storage"
	"github.com/appwrite/sdk-for-go/upload"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
)

type options struct {
	BucketID    string
	Patterns    []string
	Permissions []string
	Concurrency int
	ChunkSize   int64
	Retries     uint
	RetryWait   time.Duration
	Verbose     bool

	S3Object   string
	S3Region   string
	S3Endpoint string
}

type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ",")
}

func (l *stringList) Set(s string) error {
	*l = append(*l, s)
	return nil
}

func parseArgs(args []string, envRepo env.Repository, output io.Writer) (options, error) {
	fs := flag.NewFlagSet("appwrite-upload", flag.ContinueOnError)
	fs.SetOutput(output)

	var opts options
	var permissions stringList
	var chunkSize string
	fs.StringVar(&opts.BucketID, "bucket", "", "Bucket to upload into (required)")
	fs.IntVar(&opts.Concurrency, "concurrency", batch.DefaultConcurrency, "Number of files uploaded at the same time")
	fs.StringVar(&chunkSize, "chunk-size", units.BytesSize(float64(upload.DefaultChunkSize)), "Size of the upload chunks, like 5MiB")
	fs.UintVar(&opts.Retries, "retries", upload.DefaultRetryPolicy().Retries, "Number of retries of a failed upload")
	fs.DurationVar(&opts.RetryWait, "retry-wait", upload.DefaultRetryPolicy().Wait, "Wait between retries")
	fs.Var(&permissions, "permission", `Permission of the uploaded files, like 'read("any")'. Can be repeated`)
	fs.BoolVar(&opts.Verbose, "verbose", false, "Enable debug logs")
	fs.StringVar(&opts.S3Object, "s3-object", "", "Upload the S3 object <bucket>/<key> instead of local files")
	fs.StringVar(&opts.S3Region, "s3-region", envRepo.Get("AWS_REGION"), "Region of the S3 bucket")
	fs.StringVar(&opts.S3Endpoint, "s3-endpoint", "", "Endpoint of an S3 compatible service")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if len(fs.Args()) > 0 {
		opts.Patterns = fs.Args()
	}
	opts.Permissions = permissions

	if opts.BucketID == "" {
		return options{}, errors.New("-bucket is required")
	}
	if len(opts.Patterns) == 0 && opts.S3Object == "" {
		return options{}, errors.New("no files to upload, pass paths or -s3-object")
	}

	size, err := upload.ParseChunkSize(chunkSize)
	if err != nil {
		return options{}, err
	}
	opts.ChunkSize = size

	return opts, nil
}

func main() {
	logger := log.NewLogger()
	envRepo := env.NewRepository()

	opts, err := parseArgs(os.Args[1:], envRepo, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		logger.Errorf("%s", err)
		os.Exit(2)
	}
	logger.EnableDebugLog(opts.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, envRepo, logger); err != nil {
		logger.Errorf("%s", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, envRepo env.Repository, logger log.Logger) error {
	cfg, err := client.ConfigFromEnv(envRepo)
	if err != nil {
		return err
	}
	logger.Debugf("Endpoint: %s, project: %s, key: %s", cfg.Endpoint, cfg.Project, cfg.Key)

	c, err := client.New(cfg, logger)
	if err != nil {
		return err
	}
	files := storage.New(c, upload.Config{ChunkSize: opts.ChunkSize, Logger: logger})
	retry := upload.RetryPolicy{Retries: opts.Retries, Wait: opts.RetryWait}

	if opts.S3Object != "" {
		return uploadS3Object(ctx, files, opts, retry, envRepo, logger)
	}

	_, err = batch.New(files, logger).Upload(ctx, batch.Input{
		BucketID:    opts.BucketID,
		Patterns:    opts.Patterns,
		Permissions: opts.Permissions,
		Concurrency: opts.Concurrency,
		Retry:       &retry,
	})
	return err
}

func uploadS3Object(ctx context.Context, files *storage.Storage, opts options, retry upload.RetryPolicy, envRepo env.Repository, logger log.Logger) error {
	bucket, key, ok := strings.Cut(opts.S3Object, "/")
	if !ok || bucket == "" || key == "" {
		return fmt.Errorf("invalid -s3-object %q, expected <bucket>/<key>", opts.S3Object)
	}

	s3Client, err := inputfile.NewS3Client(ctx, inputfile.S3Config{
		Region:          opts.S3Region,
		AccessKeyID:     envRepo.Get("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: envRepo.Get("AWS_SECRET_ACCESS_KEY"),
		Endpoint:        opts.S3Endpoint,
	}, logger)
	if err != nil {
		return err
	}

	input, err := inputfile.FromS3(ctx, s3Client, bucket, key)
	if err != nil {
		return err
	}
	logger.Printf("Uploading s3://%s/%s (%s, %s)", bucket, key, units.HumanSize(float64(input.Size())), input.MimeType)

	file, err := files.CreateFile(ctx, opts.BucketID, id.Unique(), input, opts.Permissions,
		storage.WithRetry(retry),
		storage.WithProgress(func(p upload.Progress) {
			logger.Printf("%.1f%% (%s)", p.Percent, units.HumanSize(float64(p.SizeUploaded)))
		}))
	if err != nil {
		return err
	}

	logger.Donef("Uploaded s3://%s/%s as %s", bucket, key, file.ID)
	return nil
}
