package upload

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, src Source, plan UploadPlan) []byte {
	t.Helper()

	var out []byte
	for _, r := range plan.Ranges {
		chunk, err := src.ReadChunk(r)
		require.NoError(t, err, "chunk %d", r.Index)
		require.Equal(t, r.Len(), int64(len(chunk)), "chunk %d", r.Index)
		out = append(out, chunk...)
	}
	return out
}

func TestByteSliceSource(t *testing.T) {
	data := []byte("first chunk, second chunk with more data, third")
	plan, err := Plan(int64(len(data)), 11)
	require.NoError(t, err)

	src := NewByteSliceSource(data)
	assert.Equal(t, data, readAll(t, src, plan))

	_, err = src.ReadChunk(ChunkRange{Index: 9, Start: 40, End: 60})
	assert.Error(t, err, "range past the end of the data")
}

func TestFileSource(t *testing.T) {
	// Create a temp file with 100 bytes: 30+30+30+10
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "test.bin")
	data := testData(100)
	require.NoError(t, os.WriteFile(testFile, data, 0644))

	src, err := OpenFileSource(testFile)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, int64(100), src.Size())

	plan, err := Plan(src.Size(), 30)
	require.NoError(t, err)
	require.Len(t, plan.Ranges, 4)
	assert.Equal(t, data, readAll(t, src, plan))

	// Random access is allowed.
	chunk, err := src.ReadChunk(plan.Ranges[1])
	require.NoError(t, err)
	assert.Equal(t, data[30:60], chunk)

	_, err = src.ReadChunk(ChunkRange{Index: 4, Start: 90, End: 119})
	assert.Error(t, err, "short read must fail")
}

func TestOpenFileSource_Errors(t *testing.T) {
	_, err := OpenFileSource(filepath.Join(t.TempDir(), "missing.bin"))
	assert.Error(t, err)

	_, err = OpenFileSource(t.TempDir())
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestReaderAtSource(t *testing.T) {
	data := testData(55)
	plan, err := Plan(55, 20)
	require.NoError(t, err)

	src := NewReaderAtSource(bytes.NewReader(data))
	assert.Equal(t, data, readAll(t, src, plan))
}

func TestSequentialSource(t *testing.T) {
	data := testData(50)
	plan, err := Plan(50, 10)
	require.NoError(t, err)

	src := NewSequentialSource(bytes.NewReader(data))

	first, err := src.ReadChunk(plan.Ranges[0])
	require.NoError(t, err)
	assert.Equal(t, data[0:10], first)

	second, err := src.ReadChunk(plan.Ranges[1])
	require.NoError(t, err)
	assert.Equal(t, data[10:20], second)

	// The latest range can be read again for a retry.
	again, err := src.ReadChunk(plan.Ranges[1])
	require.NoError(t, err)
	assert.Equal(t, second, again)

	// Earlier ranges are gone.
	_, err = src.ReadChunk(plan.Ranges[0])
	assert.Error(t, err)

	// Skipping forward discards the bytes in between.
	fourth, err := src.ReadChunk(plan.Ranges[3])
	require.NoError(t, err)
	assert.Equal(t, data[30:40], fourth)
}

func TestSequentialSource_ZeroLength(t *testing.T) {
	plan, err := Plan(0, 10)
	require.NoError(t, err)

	chunk, err := NewSequentialSource(bytes.NewReader(nil)).ReadChunk(plan.Ranges[0])
	require.NoError(t, err)
	assert.Empty(t, chunk)
}
