// Package storage manages files in storage buckets.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/appwrite/sdk-for-go/client"
	"github.com/appwrite/sdk-for-go/id"
	"github.com/appwrite/sdk-for-go/inputfile"
	"github.com/appwrite/sdk-for-go/models"
	"github.com/appwrite/sdk-for-go/upload"
	"github.com/bitrise-io/go-utils/v2/log"
)

// ErrFileNotFound is returned when the bucket has no file with the given id.
var ErrFileNotFound = errors.New("file not found")

// API is the part of client.Client the storage service needs.
type API interface {
	upload.Transport
	Call(ctx context.Context, method, path string, headers map[string]string, params map[string]interface{}) (map[string]interface{}, error)
}

// Storage ...
type Storage struct {
	api      API
	uploader *upload.Uploader
	logger   log.Logger
}

// New creates a storage service sending requests through api, usually a *client.Client.
func New(api API, cfg upload.Config) *Storage {
	if cfg.Logger == nil {
		cfg.Logger = log.NewLogger()
	}
	return &Storage{
		api:      api,
		uploader: upload.New(cfg, api),
		logger:   cfg.Logger,
	}
}

// CreateFileOption customizes CreateFile.
type CreateFileOption func(*createFileOptions)

type createFileOptions struct {
	progress     upload.ProgressFunc
	resume       *upload.ResumePoint
	serverResume bool
	retry        *upload.RetryPolicy
}

// WithProgress registers fn to receive a snapshot after every uploaded chunk.
func WithProgress(fn upload.ProgressFunc) CreateFileOption {
	return func(o *createFileOptions) {
		o.progress = fn
	}
}

// WithResume continues an earlier upload, typically the ResumePoint of an *upload.UploadError.
func WithResume(p upload.ResumePoint) CreateFileOption {
	return func(o *createFileOptions) {
		o.resume = &p
	}
}

// WithServerResume asks the server how many chunks of the file it already has and
// continues from there. It needs a caller chosen file id.
func WithServerResume() CreateFileOption {
	return func(o *createFileOptions) {
		o.serverResume = true
	}
}

// WithRetry retries failed uploads, resuming at the failed chunk.
func WithRetry(policy upload.RetryPolicy) CreateFileOption {
	return func(o *createFileOptions) {
		o.retry = &policy
	}
}

// CreateFile uploads file into the bucket. An empty fileID lets the server assign one.
func (s *Storage) CreateFile(ctx context.Context, bucketID, fileID string, file *inputfile.InputFile, permissions []string, opts ...CreateFileOption) (*models.File, error) {
	if bucketID == "" {
		return nil, fmt.Errorf("%w: bucket id must not be empty", upload.ErrInvalidInput)
	}
	if file == nil {
		return nil, fmt.Errorf("%w: file must not be nil", upload.ErrInvalidInput)
	}
	if fileID == "" {
		fileID = id.Unique()
	}

	var o createFileOptions
	for _, opt := range opts {
		opt(&o)
	}

	params := map[string]interface{}{
		"fileId": fileID,
	}
	if permissions != nil {
		params["permissions"] = permissions
	}

	req := upload.Request{
		Method:    http.MethodPost,
		Path:      filesPath(bucketID),
		Headers:   map[string]string{"content-type": "multipart/form-data"},
		Params:    params,
		FileParam: upload.DefaultFileParam,
		IDParam:   "fileId",
		FileName:  file.Name,
		MimeType:  file.MimeType,
		Size:      file.Size(),
	}

	resume := o.resume
	if o.serverResume && resume == nil {
		existing, point, err := s.serverResumePoint(ctx, bucketID, fileID, file.Size())
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
		resume = point
	}

	attempt := func(resume *upload.ResumePoint) (upload.Result, error) {
		uploadOpts := []upload.Option{upload.WithProgress(o.progress)}
		if resume != nil {
			uploadOpts = append(uploadOpts, upload.WithResume(*resume))
		}
		return s.uploader.Upload(ctx, req, file.Source(), uploadOpts...)
	}

	var result upload.Result
	var err error
	if o.retry != nil {
		result, err = upload.Retry(ctx, *o.retry, s.logger, func(p *upload.ResumePoint) (upload.Result, error) {
			if p == nil {
				p = resume
			}
			return attempt(p)
		})
	} else {
		result, err = attempt(resume)
	}
	if err != nil {
		return nil, err
	}

	return models.FileFromMap(result)
}

// serverResumePoint returns the file itself when the server already has all of it,
// or where to continue when it has part of it. Both are nil for a new file.
func (s *Storage) serverResumePoint(ctx context.Context, bucketID, fileID string, size int64) (*models.File, *upload.ResumePoint, error) {
	if id.IsUnique(fileID) {
		return nil, nil, fmt.Errorf("%w: server resume needs a file id", upload.ErrInvalidInput)
	}

	existing, err := s.GetFile(ctx, bucketID, fileID)
	if errors.Is(err, ErrFileNotFound) {
		s.logger.Debugf("File %s does not exist yet, uploading from the start", fileID)
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	if existing.Complete() {
		s.logger.Infof("File %s is already uploaded", fileID)
		return existing, nil, nil
	}

	plan, err := upload.Plan(size, s.uploader.ChunkSize())
	if err != nil {
		return nil, nil, err
	}
	if existing.ChunksTotal != len(plan.Ranges) {
		return nil, nil, fmt.Errorf("%w: file %s has %d chunks on the server, expected %d",
			upload.ErrInvalidInput, fileID, existing.ChunksTotal, len(plan.Ranges))
	}

	s.logger.Infof("Resuming file %s after %d/%d chunks", fileID, existing.ChunksUploaded, existing.ChunksTotal)
	return nil, &upload.ResumePoint{ResourceID: fileID, ChunkIndex: existing.ChunksUploaded}, nil
}

// GetFile returns the metadata of a file.
func (s *Storage) GetFile(ctx context.Context, bucketID, fileID string) (*models.File, error) {
	res, err := s.api.Call(ctx, http.MethodGet, filePath(bucketID, fileID), nil, nil)
	if err != nil {
		return nil, notFound(err)
	}
	return models.FileFromMap(res)
}

// DeleteFile removes a file from the bucket.
func (s *Storage) DeleteFile(ctx context.Context, bucketID, fileID string) error {
	if _, err := s.api.Call(ctx, http.MethodDelete, filePath(bucketID, fileID), nil, nil); err != nil {
		return notFound(err)
	}
	return nil
}

func notFound(err error) error {
	var serverErr *client.ServerError
	if errors.As(err, &serverErr) && serverErr.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %w", ErrFileNotFound, err)
	}
	return err
}

func filesPath(bucketID string) string {
	return "/storage/buckets/" + url.PathEscape(bucketID) + "/files"
}

func filePath(bucketID, fileID string) string {
	return filesPath(bucketID) + "/" + url.PathEscape(fileID)
}
