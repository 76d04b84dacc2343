// Package inputfile describes a file to upload: its name, size, MIME type and where its bytes come from.
package inputfile

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"

	"github.com/appwrite/sdk-for-go/upload"
)

// InputFile ...
type InputFile struct {
	Name     string
	MimeType string
	size     int64
	source   upload.Source
	closer   io.Closer
}

// FromPath opens the file at path. The MIME type is detected from its content.
// The caller must Close the returned file.
func FromPath(path string) (*InputFile, error) {
	src, err := upload.OpenFileSource(path)
	if err != nil {
		return nil, err
	}

	return &InputFile{
		Name:     filepath.Base(path),
		MimeType: detectFile(path),
		size:     src.Size(),
		source:   src,
		closer:   src,
	}, nil
}

// FromBytes wraps data already in memory. An empty mimeType is detected from data.
func FromBytes(data []byte, name, mimeType string) *InputFile {
	if mimeType == "" {
		mimeType = detect(data, name)
	}
	return &InputFile{
		Name:     name,
		MimeType: mimeType,
		size:     int64(len(data)),
		source:   upload.NewByteSliceSource(data),
	}
}

// FromReader wraps a stream of size bytes. The stream is read once, front to back.
// An empty mimeType is detected from the first bytes of the stream.
func FromReader(r io.Reader, size int64, name, mimeType string) (*InputFile, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: size must not be negative", upload.ErrInvalidInput)
	}

	var closer io.Closer
	if c, ok := r.(io.Closer); ok {
		closer = c
	}

	if mimeType == "" {
		head := make([]byte, sniffLen)
		n, err := io.ReadFull(r, head)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("read file header: %w", err)
		}
		head = head[:n]
		mimeType = detect(head, name)
		r = io.MultiReader(bytes.NewReader(head), r)
	}

	return &InputFile{
		Name:     name,
		MimeType: mimeType,
		size:     size,
		source:   upload.NewSequentialSource(r),
		closer:   closer,
	}, nil
}

// Size returns the size of the file in bytes.
func (f *InputFile) Size() int64 {
	return f.size
}

// Source returns the bytes of the file.
func (f *InputFile) Source() upload.Source {
	return f.source
}

// Close releases the underlying file, if any.
func (f *InputFile) Close() error {
	if f.closer != nil {
		return f.closer.Close()
	}
	return nil
}
