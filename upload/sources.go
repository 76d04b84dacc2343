package upload

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Source provides the bytes of a file range by range.
// Implementations can read from files, memory buffers, or streams.
type Source interface {
	// ReadChunk returns exactly r.Len() bytes starting at r.Start.
	ReadChunk(r ChunkRange) ([]byte, error)
}

func readAt(r io.ReaderAt, rng ChunkRange) ([]byte, error) {
	chunk := make([]byte, rng.Len())
	if len(chunk) == 0 {
		return chunk, nil
	}

	n, err := r.ReadAt(chunk, rng.Start)
	if n == len(chunk) {
		return chunk, nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return nil, fmt.Errorf("read chunk %d at offset %d: %w", rng.Index+1, rng.Start, err)
}

// ReaderAtSource reads chunks from an io.ReaderAt.
// Safe for concurrent use if the underlying reader is.
type ReaderAtSource struct {
	r io.ReaderAt
}

// NewReaderAtSource creates a Source reading from r.
func NewReaderAtSource(r io.ReaderAt) *ReaderAtSource {
	return &ReaderAtSource{r: r}
}

// ReadChunk returns the bytes of the given range.
func (s *ReaderAtSource) ReadChunk(r ChunkRange) ([]byte, error) {
	return readAt(s.r, r)
}

// FileSource reads chunks from a file on disk.
type FileSource struct {
	file *os.File
	size int64
}

// OpenFileSource opens the file at path.
func OpenFileSource(path string) (*FileSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, fmt.Errorf("%w: %s is a directory", ErrInvalidInput, path)
	}

	return &FileSource{file: file, size: info.Size()}, nil
}

// Size returns the size of the file when it was opened.
func (s *FileSource) Size() int64 {
	return s.size
}

// ReadChunk returns the bytes of the given range.
func (s *FileSource) ReadChunk(r ChunkRange) ([]byte, error) {
	return readAt(s.file, r)
}

// Close closes the underlying file.
func (s *FileSource) Close() error {
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// ByteSliceSource provides chunks from a byte slice already in memory.
type ByteSliceSource struct {
	data []byte
}

// NewByteSliceSource creates a Source from data.
func NewByteSliceSource(data []byte) *ByteSliceSource {
	return &ByteSliceSource{data: data}
}

// ReadChunk returns the bytes of the given range.
func (s *ByteSliceSource) ReadChunk(r ChunkRange) ([]byte, error) {
	if r.Len() == 0 {
		return []byte{}, nil
	}
	if r.Start < 0 || r.End >= int64(len(s.data)) {
		return nil, fmt.Errorf("chunk %d range %d-%d out of bounds [0, %d)", r.Index+1, r.Start, r.End, len(s.data))
	}
	return s.data[r.Start : r.End+1], nil
}

// SequentialSource reads chunks from a stream that can only move forward.
// Ranges must be requested in increasing order. The most recent range is kept in
// memory so a failed chunk can be sent again; anything before it is gone.
type SequentialSource struct {
	r      io.Reader
	offset int64
	last   *ChunkRange
	buf    []byte
	mu     sync.Mutex
}

// NewSequentialSource creates a Source reading from r.
func NewSequentialSource(r io.Reader) *SequentialSource {
	return &SequentialSource{r: r}
}

// ReadChunk returns the bytes of the given range.
func (s *SequentialSource) ReadChunk(r ChunkRange) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.last != nil && s.last.Start == r.Start && s.last.End == r.End {
		return s.buf, nil
	}
	if r.Start < s.offset {
		return nil, fmt.Errorf("chunk %d starts at offset %d but the stream is already at %d", r.Index+1, r.Start, s.offset)
	}

	if skip := r.Start - s.offset; skip > 0 {
		n, err := io.CopyN(io.Discard, s.r, skip)
		s.offset += n
		if err != nil {
			return nil, fmt.Errorf("skip to offset %d for chunk %d: %w", r.Start, r.Index+1, err)
		}
	}

	chunk := make([]byte, r.Len())
	n, err := io.ReadFull(s.r, chunk)
	s.offset += int64(n)
	if err != nil {
		return nil, fmt.Errorf("read chunk %d: %w", r.Index+1, err)
	}

	rng := r
	s.last = &rng
	s.buf = chunk

	return chunk, nil
}
