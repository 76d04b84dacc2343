// Package batch uploads every file matching a set of path patterns into one bucket.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/appwrite/sdk-for-go/id"
	"github.com/appwrite/sdk-for-go/inputfile"
	"github.com/appwrite/sdk-for-go/models"
	"github.com/appwrite/sdk-for-go/storage"
	"github.com/appwrite/sdk-for-go/upload"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/docker/go-units"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of files uploaded at the same time.
const DefaultConcurrency = 4

// FileCreator is implemented by *storage.Storage.
type FileCreator interface {
	CreateFile(ctx context.Context, bucketID, fileID string, file *inputfile.InputFile, permissions []string, opts ...storage.CreateFileOption) (*models.File, error)
}

// Input ...
type Input struct {
	BucketID string
	// Patterns are file paths, with optional * and ** wildcards.
	Patterns    []string
	Permissions []string
	// Concurrency limits the uploads in flight. Default: DefaultConcurrency
	Concurrency int
	// Retry is applied to every file. Nil disables retries.
	Retry *upload.RetryPolicy
}

// Result is the outcome of one file.
type Result struct {
	Path string
	File *models.File
	Err  error
}

// Uploader ...
type Uploader struct {
	files        FileCreator
	logger       log.Logger
	pathModifier pathutil.PathModifier
	pathChecker  pathutil.PathChecker
}

// New creates a batch uploader creating files through files.
func New(files FileCreator, logger log.Logger) *Uploader {
	return &Uploader{
		files:        files,
		logger:       logger,
		pathModifier: pathutil.NewPathModifier(),
		pathChecker:  pathutil.NewPathChecker(),
	}
}

// Upload uploads every file matched by input.Patterns. It returns one Result per file,
// in path order, and an error if any of them failed.
func (u *Uploader) Upload(ctx context.Context, input Input) ([]Result, error) {
	if input.BucketID == "" {
		return nil, fmt.Errorf("%w: bucket id must not be empty", upload.ErrInvalidInput)
	}
	if len(input.Patterns) == 0 {
		return nil, fmt.Errorf("%w: no paths to upload", upload.ErrInvalidInput)
	}

	paths, err := u.evaluatePaths(input.Patterns)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		u.logger.Warnf("No files matched the given paths")
		return nil, nil
	}

	concurrency := input.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	u.logger.Infof("Uploading %d files to bucket %s", len(paths), input.BucketID)
	startTime := time.Now()

	results := make([]Result, len(paths))
	var mu sync.Mutex
	var totalSize int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			file, size, err := u.uploadFile(ctx, input, path)
			results[i] = Result{Path: path, File: file, Err: err}
			if err == nil {
				mu.Lock()
				totalSize += size
				mu.Unlock()
			}
			// Errors are collected per file, the other uploads go on.
			return nil
		})
	}
	_ = g.Wait()

	var failed []string
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r.Path)
		}
	}

	u.logger.Println()
	u.logger.Donef("Uploaded %d/%d files (%s) in %s",
		len(paths)-len(failed), len(paths), units.HumanSize(float64(totalSize)), time.Since(startTime).Round(time.Millisecond))

	if len(failed) > 0 {
		errs := make([]error, 0, len(failed))
		for _, r := range results {
			if r.Err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", r.Path, r.Err))
			}
		}
		return results, fmt.Errorf("%d of %d uploads failed: %w", len(failed), len(paths), errors.Join(errs...))
	}

	return results, nil
}

func (u *Uploader) uploadFile(ctx context.Context, input Input, path string) (*models.File, int64, error) {
	file, err := inputfile.FromPath(path)
	if err != nil {
		u.logger.Errorf("Failed to open %s: %s", path, err)
		return nil, 0, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			u.logger.Warnf("Failed to close %s: %s", path, err)
		}
	}()

	u.logger.Printf("Uploading %s (%s, %s)", path, units.HumanSize(float64(file.Size())), file.MimeType)

	var opts []storage.CreateFileOption
	if input.Retry != nil {
		opts = append(opts, storage.WithRetry(*input.Retry))
	}
	opts = append(opts, storage.WithProgress(func(p upload.Progress) {
		if p.ChunksTotal > 1 {
			u.logger.Debugf("%s: %.1f%% (%d/%d chunks)", path, p.Percent, p.ChunksUploaded, p.ChunksTotal)
		}
	}))

	created, err := u.files.CreateFile(ctx, input.BucketID, id.Unique(), file, input.Permissions, opts...)
	if err != nil {
		u.logger.Errorf("Failed to upload %s: %s", path, err)
		return nil, 0, err
	}

	u.logger.Donef("Uploaded %s as %s", path, created.ID)
	return created, file.Size(), nil
}

// evaluatePaths expands the wildcard patterns and returns the absolute paths of the matched files.
func (u *Uploader) evaluatePaths(patterns []string) ([]string, error) {
	var expandedPaths []string
	for _, path := range patterns {
		if !strings.Contains(path, "*") {
			expandedPaths = append(expandedPaths, path)
			continue
		}

		base, pattern := doublestar.SplitPattern(path)
		absBase, err := u.pathModifier.AbsPath(base) // resolves ~/ and expands any envs
		if err != nil {
			return nil, err
		}
		matches, err := doublestar.Glob(os.DirFS(absBase), pattern, doublestar.WithNoFollow())
		if err != nil {
			u.logger.Warnf("Error in path pattern '%s': %s", path, err)
			continue
		}
		if len(matches) == 0 {
			u.logger.Warnf("No match for path pattern: %s", path)
			continue
		}

		for _, match := range matches {
			expandedPaths = append(expandedPaths, filepath.Join(absBase, match))
		}
	}

	seen := map[string]bool{}
	var finalPaths []string
	for _, path := range expandedPaths {
		absPath, err := u.pathModifier.AbsPath(path)
		if err != nil {
			u.logger.Warnf("Failed to parse path %s, error: %s", path, err)
			continue
		}

		exists, err := u.pathChecker.IsPathExists(absPath)
		if err != nil {
			u.logger.Warnf("Failed to check path %s, error: %s", absPath, err)
		}
		if !exists {
			u.logger.Warnf("Path doesn't exist: %s", path)
			continue
		}

		isDir, err := u.pathChecker.IsDirExists(absPath)
		if err != nil {
			u.logger.Warnf("Failed to check path %s, error: %s", absPath, err)
		}
		if isDir {
			u.logger.Debugf("Skipping directory: %s", absPath)
			continue
		}

		if seen[absPath] {
			continue
		}
		seen[absPath] = true
		finalPaths = append(finalPaths, absPath)
	}

	sort.Strings(finalPaths)
	return finalPaths, nil
}
