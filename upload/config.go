package upload

import (
	"fmt"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
)

// DefaultChunkSize is the largest chunk the storage service accepts.
const DefaultChunkSize = 5 * units.MiB

// Config holds configuration for the uploader.
type Config struct {
	// ChunkSize is the size of every chunk except the last one.
	// Files not larger than ChunkSize are sent in a single request.
	// Default: 5 MiB
	ChunkSize int64

	// Logger receives debug output about chunk requests.
	// If nil, a default logger will be created.
	Logger log.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize: DefaultChunkSize,
		Logger:    nil, // Will be created by Uploader
	}
}

// ParseChunkSize parses a human readable size like "5MiB" or "8mb".
func ParseChunkSize(s string) (int64, error) {
	size, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("%w: chunk size %q: %s", ErrInvalidInput, s, err)
	}
	if size <= 0 {
		return 0, fmt.Errorf("%w: chunk size must be positive, got %q", ErrInvalidInput, s)
	}
	return size, nil
}
