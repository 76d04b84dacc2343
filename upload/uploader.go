package upload

import (
	"context"
	"fmt"
	"time"

	"github.com/appwrite/sdk-for-go/id"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
)

// Uploader sends files through a Transport, one chunk request at a time.
// It keeps no per-upload state, so one Uploader can serve concurrent uploads.
type Uploader struct {
	config    Config
	transport Transport
	logger    log.Logger
	stats     *Stats
}

// New creates a new Uploader with the given configuration.
func New(config Config, transport Transport) *Uploader {
	logger := config.Logger
	if logger == nil {
		logger = log.NewLogger()
	}
	if config.ChunkSize == 0 {
		config.ChunkSize = DefaultChunkSize
	}

	return &Uploader{
		config:    config,
		transport: transport,
		logger:    logger,
		stats:     NewStats(),
	}
}

// Option customizes a single Upload call.
type Option func(*options)

type options struct {
	progress ProgressFunc
	resume   *ResumePoint
}

// WithProgress registers fn to receive a snapshot after every transmitted chunk.
func WithProgress(fn ProgressFunc) Option {
	return func(o *options) {
		o.progress = fn
	}
}

// WithResume continues an upload at the given chunk, reusing its resource id.
func WithResume(p ResumePoint) Option {
	return func(o *options) {
		o.resume = &p
	}
}

// Stats returns the chunk statistics of the uploader.
func (u *Uploader) Stats() *Stats {
	return u.stats
}

// ChunkSize returns the configured chunk size.
func (u *Uploader) ChunkSize() int64 {
	return u.config.ChunkSize
}

// Upload sends req.Size bytes from src and returns the response of the last request.
// Files up to one chunk are sent in a single request. Larger files are sent chunk by chunk;
// on failure the returned *UploadError tells which chunk to resume from.
func (u *Uploader) Upload(ctx context.Context, req Request, src Source, opts ...Option) (Result, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if err := validate(req, src); err != nil {
		return nil, err
	}

	plan, err := Plan(req.Size, u.config.ChunkSize)
	if err != nil {
		return nil, err
	}

	if o.resume != nil && (o.resume.ChunkIndex < 0 || o.resume.ChunkIndex >= len(plan.Ranges)) {
		return nil, fmt.Errorf("%w: resume chunk %d outside of plan with %d chunks", ErrInvalidInput, o.resume.ChunkIndex, len(plan.Ranges))
	}

	// A single chunk has nothing to resume from.
	if len(plan.Ranges) == 1 {
		return u.uploadSingle(ctx, req, src, plan.Ranges[0], o.progress)
	}

	return u.uploadChunks(ctx, req, src, plan, o)
}

func validate(req Request, src Source) error {
	if src == nil {
		return fmt.Errorf("%w: source is nil", ErrInvalidInput)
	}
	if req.Size < 0 {
		return fmt.Errorf("%w: file size must not be negative, got %d", ErrInvalidInput, req.Size)
	}
	if _, ok := req.Params[req.fileParam()]; ok {
		return fmt.Errorf("%w: params must not define the reserved %q parameter", ErrInvalidInput, req.fileParam())
	}
	return nil
}

func (u *Uploader) uploadSingle(ctx context.Context, req Request, src Source, rng ChunkRange, progress ProgressFunc) (Result, error) {
	state := newState(req, 1)

	if err := ctx.Err(); err != nil {
		return nil, state.fail(rng, fmt.Errorf("%w: %w", ErrCancelled, err))
	}

	data, err := src.ReadChunk(rng)
	if err != nil {
		return nil, state.fail(rng, err)
	}

	u.logger.Debugf("Uploading %s in a single request to %s", units.HumanSize(float64(req.Size)), req.Path)

	result, err := u.send(ctx, req, copyParams(req.Params), copyHeaders(req.Headers), data)
	if err != nil {
		return nil, state.fail(rng, err)
	}

	state = state.advance(rng, result)
	emit(progress, state.progress(req.Size))

	return result, nil
}

func (u *Uploader) uploadChunks(ctx context.Context, req Request, src Source, plan UploadPlan, o options) (Result, error) {
	state := newState(req, len(plan.Ranges))

	first := 0
	if o.resume != nil {
		first = o.resume.ChunkIndex
		state = state.resumeAt(*o.resume, plan.Ranges[first])
		u.logger.Debugf("Resuming upload of %s at chunk %d/%d", state.ResourceID, first+1, len(plan.Ranges))
	}

	u.logger.Debugf("Uploading %d chunks, %s each", len(plan.Ranges), units.HumanSize(float64(plan.ChunkSize)))

	for _, rng := range plan.Ranges[first:] {
		if err := ctx.Err(); err != nil {
			return nil, state.fail(rng, fmt.Errorf("%w: %w", ErrCancelled, err))
		}

		data, err := src.ReadChunk(rng)
		if err != nil {
			return nil, state.fail(rng, err)
		}

		headers := copyHeaders(req.Headers)
		headers[ContentRangeHeader] = rng.ContentRange(plan.TotalSize)
		params := copyParams(req.Params)
		if state.hasID() {
			headers[IDHeader] = state.ResourceID
			if req.IDParam != "" {
				params[req.IDParam] = state.ResourceID
			}
		}

		u.logger.Debugf("Uploading chunk %d/%d (%s) [finished=%d] [avg=%v]",
			rng.Index+1, len(plan.Ranges), headers[ContentRangeHeader],
			u.stats.FinishedCount(), u.stats.Average().Round(time.Millisecond))

		start := time.Now()
		result, err := u.send(ctx, req, params, headers, data)
		if err != nil {
			u.logger.Warnf("Chunk %d/%d failed: %s", rng.Index+1, len(plan.Ranges), err)
			return nil, state.fail(rng, err)
		}
		u.stats.Update(time.Since(start), rng.Len())

		state = state.advance(rng, result)
		u.logger.Debugf("Chunk %d/%d uploaded, id: %s", rng.Index+1, len(plan.Ranges), state.ResourceID)
		emit(o.progress, state.progress(plan.TotalSize))
	}

	u.logger.Debugf("Uploaded %s of %s [throughput=%s/s]", units.HumanSize(float64(plan.TotalSize)), state.ResourceID,
		units.HumanSize(u.stats.Throughput()))

	return state.LastResponse, nil
}

func (u *Uploader) send(ctx context.Context, req Request, params map[string]interface{}, headers map[string]string, data []byte) (Result, error) {
	return u.transport.Do(ctx, Call{
		Method:    req.Method,
		Path:      req.Path,
		Headers:   headers,
		Params:    params,
		FileParam: req.fileParam(),
		Payload: Payload{
			FileName: req.FileName,
			MimeType: req.MimeType,
			Data:     data,
		},
	})
}

func emit(fn ProgressFunc, p Progress) {
	if fn != nil {
		fn(p)
	}
}

func copyHeaders(in map[string]string) map[string]string {
	out := make(map[string]string, len(in)+2)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyParams(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// State is owned by a single Upload call.
type State struct {
	// ResourceID is id.Unique() until the server assigns an id.
	ResourceID   string
	Preset       bool
	BytesSent    int64
	ChunksTotal  int
	ChunksSent   int
	LastResponse Result
}

func newState(req Request, chunksTotal int) State {
	s := State{ResourceID: id.Unique(), ChunksTotal: chunksTotal}
	if preset, ok := req.presetID(); ok {
		s.ResourceID = preset
		s.Preset = true
	}
	return s
}

func (s State) hasID() bool {
	return !id.IsUnique(s.ResourceID)
}

// resumeAt treats every chunk before rng as sent.
func (s State) resumeAt(p ResumePoint, rng ChunkRange) State {
	if !s.Preset && p.ResourceID != "" {
		s.ResourceID = p.ResourceID
	}
	s.ChunksSent = p.ChunkIndex
	s.BytesSent = rng.Start
	return s
}

// advance returns the state after rng was accepted with result.
func (s State) advance(rng ChunkRange, result Result) State {
	if !s.hasID() {
		if serverID := result.ID(); serverID != "" {
			s.ResourceID = serverID
		}
	}
	s.ChunksSent++
	s.BytesSent += rng.Len()
	s.LastResponse = result
	return s
}

func (s State) progress(total int64) Progress {
	percent := 100.0
	if total > 0 {
		percent = float64(s.BytesSent) / float64(total) * 100
	}
	return Progress{
		ResourceID:     s.ResourceID,
		Percent:        percent,
		SizeUploaded:   s.BytesSent,
		ChunksTotal:    s.ChunksTotal,
		ChunksUploaded: s.ChunksSent,
	}
}

func (s State) fail(rng ChunkRange, err error) *UploadError {
	return &UploadError{
		ChunkIndex:  rng.Index,
		ChunksTotal: s.ChunksTotal,
		ResourceID:  s.ResourceID,
		Range:       rng,
		Err:         err,
	}
}
