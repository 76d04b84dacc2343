package upload

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is returned for requests that can never succeed, like a non-positive chunk size.
var ErrInvalidInput = errors.New("invalid upload input")

// ErrCancelled is returned when the context is done at a chunk boundary.
var ErrCancelled = errors.New("upload cancelled")

// UploadError reports the chunk an upload stopped at. Chunks before ChunkIndex were
// accepted by the server and are kept there.
type UploadError struct {
	ChunkIndex  int
	ChunksTotal int
	// ResourceID is the last known id, id.Unique() if the server has not assigned one yet.
	ResourceID string
	Range      ChunkRange
	Err        error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload chunk %d/%d (bytes %d-%d) of %s: %s",
		e.ChunkIndex+1, e.ChunksTotal, e.Range.Start, e.Range.End, e.ResourceID, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// ResumePoint returns where a retry should continue.
func (e *UploadError) ResumePoint() ResumePoint {
	return ResumePoint{ResourceID: e.ResourceID, ChunkIndex: e.ChunkIndex}
}

// AsUploadError unwraps err to an *UploadError.
func AsUploadError(err error) (*UploadError, bool) {
	var uploadErr *UploadError
	if errors.As(err, &uploadErr) {
		return uploadErr, true
	}
	return nil, false
}
