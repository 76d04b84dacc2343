// Package upload implements the chunked, resumable file upload protocol of the storage service.
// A file is split into fixed-size byte ranges which are sent one by one, in order, each as its
// own request carrying a Content-Range header. The resource id assigned by the server on the
// first chunk is echoed on every following chunk.
package upload

import (
	"context"
	"fmt"

	"github.com/appwrite/sdk-for-go/id"
)

const (
	// DefaultFileParam is the request parameter that carries the chunk payload.
	DefaultFileParam = "file"
	// IDHeader carries the resource id on every chunk after the first one.
	IDHeader = "x-appwrite-id"
	// ContentRangeHeader describes the byte range of a chunk request.
	ContentRangeHeader = "Content-Range"
	// IDField is the field of a response object holding the resource id.
	IDField = "$id"
)

// Result is a decoded JSON object returned by the server.
type Result map[string]interface{}

// ID returns the resource id of the result, or an empty string.
func (r Result) ID() string {
	v, ok := r[IDField]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Payload is the binary part of a request, sent under Request.FileParam.
type Payload struct {
	FileName string
	MimeType string
	Data     []byte
}

// Call is a single request handed to the Transport.
type Call struct {
	Method    string
	Path      string
	Headers   map[string]string
	Params    map[string]interface{}
	FileParam string
	Payload   Payload
}

// Transport performs one request and returns the decoded response object.
// Non-success responses and network failures are returned as errors.
type Transport interface {
	Do(ctx context.Context, call Call) (Result, error)
}

// Request describes a file upload.
type Request struct {
	Method  string
	Path    string
	Headers map[string]string
	// Params are sent with every chunk. They must not contain FileParam.
	Params map[string]interface{}
	// FileParam defaults to DefaultFileParam.
	FileParam string
	// IDParam names the parameter carrying the resource id. Optional.
	IDParam  string
	FileName string
	MimeType string
	Size     int64
}

func (r Request) fileParam() string {
	if r.FileParam == "" {
		return DefaultFileParam
	}
	return r.FileParam
}

// presetID returns the id chosen by the caller, if any.
func (r Request) presetID() (string, bool) {
	if r.IDParam == "" {
		return "", false
	}
	s, ok := r.Params[r.IDParam].(string)
	if !ok || s == "" || s == id.Unique() {
		return "", false
	}
	return s, true
}

// ChunkRange is one contiguous byte range of a file. End is inclusive.
type ChunkRange struct {
	Index int
	Start int64
	End   int64
	Final bool
}

// Len returns the number of bytes in the range.
func (r ChunkRange) Len() int64 {
	return r.End - r.Start + 1
}

// ContentRange formats the range as a Content-Range header value.
func (r ChunkRange) ContentRange(total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, total)
}

// UploadPlan is the ordered list of ranges covering a file.
type UploadPlan struct {
	TotalSize int64
	ChunkSize int64
	Ranges    []ChunkRange
}

// Progress is a snapshot reported after every transmitted chunk.
type Progress struct {
	ResourceID     string
	Percent        float64
	SizeUploaded   int64
	ChunksTotal    int
	ChunksUploaded int
}

// ProgressFunc receives progress snapshots on the uploading goroutine.
type ProgressFunc func(Progress)

// ProgressChannel adapts ch to a ProgressFunc that never blocks the upload.
// A snapshot is dropped when ch is full, so a consumer that needs every snapshot
// should use BlockingProgressChannel or give ch a buffer of Progress.ChunksTotal.
func ProgressChannel(ch chan<- Progress) ProgressFunc {
	return func(p Progress) {
		select {
		case ch <- p:
		default:
		}
	}
}

// BlockingProgressChannel adapts ch to a ProgressFunc that delivers every snapshot.
// The upload waits for the consumer while ch is full. A buffer of Progress.ChunksTotal
// snapshots is enough to never wait.
func BlockingProgressChannel(ch chan<- Progress) ProgressFunc {
	return func(p Progress) {
		ch <- p
	}
}

// ResumePoint identifies where an interrupted upload can continue.
type ResumePoint struct {
	ResourceID string
	ChunkIndex int
}
