package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/appwrite/sdk-for-go/client"
	"github.com/appwrite/sdk-for-go/inputfile"
	"github.com/appwrite/sdk-for-go/upload"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bucketPath = "/v1/storage/buckets/photos/files"

type storedFile struct {
	id             string
	name           string
	mimeType       string
	permissions    []string
	data           []byte
	size           int64
	chunksTotal    int
	chunksUploaded int
}

func (f *storedFile) json() map[string]interface{} {
	return map[string]interface{}{
		"$id":            f.id,
		"bucketId":       "photos",
		"$permissions":   f.permissions,
		"name":           f.name,
		"mimeType":       f.mimeType,
		"sizeOriginal":   f.size,
		"chunksTotal":    f.chunksTotal,
		"chunksUploaded": f.chunksUploaded,
	}
}

// fakeBucket keeps chunked uploads in memory the way the storage service does.
type fakeBucket struct {
	t *testing.T

	mu      sync.Mutex
	files   map[string]*storedFile
	posts   int
	failAt  int
	nextID  int
	methods []string
	ranges  []string
}

func newFakeBucket(t *testing.T) *fakeBucket {
	return &fakeBucket{t: t, files: map[string]*storedFile{}}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.methods = append(b.methods, r.Method)

	switch {
	case r.Method == http.MethodPost && r.URL.Path == bucketPath:
		b.create(w, r)
	case strings.HasPrefix(r.URL.Path, bucketPath+"/"):
		fileID := strings.TrimPrefix(r.URL.Path, bucketPath+"/")
		file, ok := b.files[fileID]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{
				"message": "The requested file could not be found.", "code": 404, "type": "storage_file_not_found",
			})
			return
		}
		if r.Method == http.MethodDelete {
			delete(b.files, fileID)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, file.json())
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (b *fakeBucket) create(w http.ResponseWriter, r *http.Request) {
	b.posts++
	if b.posts == b.failAt {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"message": "try again", "code": 503})
		return
	}

	if !assert.NoError(b.t, r.ParseMultipartForm(32<<20)) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	part, header, err := r.FormFile("file")
	if !assert.NoError(b.t, err) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	data, err := io.ReadAll(part)
	if !assert.NoError(b.t, err) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	b.ranges = append(b.ranges, r.Header.Get("Content-Range"))
	start, total := int64(0), int64(len(data))
	if cr := r.Header.Get("Content-Range"); cr != "" {
		var end int64
		if _, err := fmt.Sscanf(cr, "bytes %d-%d/%d", &start, &end, &total); !assert.NoError(b.t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	}

	fileID := r.Header.Get("x-appwrite-id")
	if fileID == "" {
		fileID = r.FormValue("fileId")
	}
	if fileID == "unique()" {
		b.nextID++
		fileID = fmt.Sprintf("gen-%d", b.nextID)
	}

	file, ok := b.files[fileID]
	if !ok {
		file = &storedFile{
			id:          fileID,
			name:        header.Filename,
			mimeType:    header.Header.Get("Content-Type"),
			permissions: r.Form["permissions[]"],
			size:        total,
			chunksTotal: int((total + int64(len(data)) - 1) / int64(len(data))),
		}
		b.files[fileID] = file
	}

	if !assert.Equal(b.t, int64(len(file.data)), start, "chunks arrive in order without gaps") {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"message": "unexpected range", "code": 400})
		return
	}
	file.data = append(file.data, data...)
	file.chunksUploaded++

	writeJSON(w, http.StatusCreated, file.json())
}

func newTestStorage(t *testing.T, url string, chunkSize int64) *Storage {
	t.Helper()

	c, err := client.New(client.Config{Endpoint: url + "/v1", Project: "project-1", RetryMax: -1}, log.NewLogger())
	require.NoError(t, err)
	return New(c, upload.Config{ChunkSize: chunkSize, Logger: log.NewLogger()})
}

var alphabet = []byte("0123456789abcdefghijklmnopqrstuvwxyz")

func TestCreateFile_SingleRequest(t *testing.T) {
	// Given
	bucket := newFakeBucket(t)
	server := httptest.NewServer(bucket)
	defer server.Close()
	s := newTestStorage(t, server.URL, upload.DefaultChunkSize)

	// When
	file, err := s.CreateFile(context.Background(), "photos", "", inputfile.FromBytes([]byte("hello"), "hello.txt", "text/plain"), []string{`read("any")`})

	// Then
	require.NoError(t, err)
	assert.Equal(t, "gen-1", file.ID)
	assert.Equal(t, "hello.txt", file.Name)
	assert.Equal(t, "text/plain", file.MimeType)
	assert.Equal(t, []string{`read("any")`}, file.Permissions)
	assert.Equal(t, int64(5), file.SizeOriginal)
	assert.True(t, file.Complete())
	assert.Equal(t, 1, bucket.posts)
}

func TestCreateFile_Chunked(t *testing.T) {
	// Given
	bucket := newFakeBucket(t)
	server := httptest.NewServer(bucket)
	defer server.Close()
	s := newTestStorage(t, server.URL, 10)

	var snapshots []upload.Progress
	progress := func(p upload.Progress) { snapshots = append(snapshots, p) }

	// When
	file, err := s.CreateFile(context.Background(), "photos", "", inputfile.FromBytes(alphabet, "alphabet.txt", ""), nil, WithProgress(progress))

	// Then
	require.NoError(t, err)
	assert.Equal(t, "gen-1", file.ID)
	assert.Equal(t, 4, file.ChunksTotal)
	assert.Equal(t, 4, file.ChunksUploaded)
	assert.Equal(t, alphabet, bucket.files["gen-1"].data)
	assert.Len(t, bucket.files, 1)

	require.Len(t, snapshots, 4)
	assert.Equal(t, "gen-1", snapshots[3].ResourceID)
	assert.Equal(t, float64(100), snapshots[3].Percent)
	assert.Equal(t, int64(len(alphabet)), snapshots[3].SizeUploaded)
}

func TestCreateFile_Resume(t *testing.T) {
	// Given
	bucket := newFakeBucket(t)
	bucket.failAt = 3
	server := httptest.NewServer(bucket)
	defer server.Close()
	s := newTestStorage(t, server.URL, 10)
	input := inputfile.FromBytes(alphabet, "alphabet.txt", "")

	_, err := s.CreateFile(context.Background(), "photos", "", input, nil)
	uploadErr, ok := upload.AsUploadError(err)
	require.True(t, ok)
	assert.Equal(t, 2, uploadErr.ChunkIndex)

	// When
	file, err := s.CreateFile(context.Background(), "photos", "", input, nil, WithResume(uploadErr.ResumePoint()))

	// Then
	require.NoError(t, err)
	assert.Equal(t, "gen-1", file.ID)
	assert.Equal(t, alphabet, bucket.files["gen-1"].data)
	assert.Equal(t, 5, bucket.posts)
}

func TestCreateFile_ResumeSingleChunk(t *testing.T) {
	// Given
	bucket := newFakeBucket(t)
	server := httptest.NewServer(bucket)
	defer server.Close()
	s := newTestStorage(t, server.URL, 10)

	// When
	file, err := s.CreateFile(context.Background(), "photos", "small", inputfile.FromBytes([]byte("hello"), "hello.txt", "text/plain"), nil,
		WithResume(upload.ResumePoint{ResourceID: "small", ChunkIndex: 0}))

	// Then
	require.NoError(t, err)
	assert.Equal(t, "small", file.ID)
	assert.Equal(t, []byte("hello"), bucket.files["small"].data)
	assert.Equal(t, []string{""}, bucket.ranges)
}

func TestCreateFile_WithRetry(t *testing.T) {
	// Given
	bucket := newFakeBucket(t)
	bucket.failAt = 3
	server := httptest.NewServer(bucket)
	defer server.Close()
	s := newTestStorage(t, server.URL, 10)

	// When
	file, err := s.CreateFile(context.Background(), "photos", "", inputfile.FromBytes(alphabet, "alphabet.txt", ""), nil,
		WithRetry(upload.RetryPolicy{Retries: 2, Wait: time.Millisecond}))

	// Then
	require.NoError(t, err)
	assert.True(t, file.Complete())
	assert.Equal(t, alphabet, bucket.files["gen-1"].data)
	assert.Equal(t, 5, bucket.posts, "only the failed chunk is sent again")
}

func TestCreateFile_ServerResume(t *testing.T) {
	// Given
	bucket := newFakeBucket(t)
	bucket.files["report"] = &storedFile{
		id: "report", name: "alphabet.txt", data: append([]byte{}, alphabet[:20]...),
		size: int64(len(alphabet)), chunksTotal: 4, chunksUploaded: 2,
	}
	server := httptest.NewServer(bucket)
	defer server.Close()
	s := newTestStorage(t, server.URL, 10)

	// When
	file, err := s.CreateFile(context.Background(), "photos", "report", inputfile.FromBytes(alphabet, "alphabet.txt", ""), nil, WithServerResume())

	// Then
	require.NoError(t, err)
	assert.True(t, file.Complete())
	assert.Equal(t, alphabet, bucket.files["report"].data)
	assert.Equal(t, []string{http.MethodGet, http.MethodPost, http.MethodPost}, bucket.methods)
}

func TestCreateFile_ServerResume_AlreadyComplete(t *testing.T) {
	bucket := newFakeBucket(t)
	bucket.files["report"] = &storedFile{id: "report", data: alphabet, size: int64(len(alphabet)), chunksTotal: 4, chunksUploaded: 4}
	server := httptest.NewServer(bucket)
	defer server.Close()
	s := newTestStorage(t, server.URL, 10)

	file, err := s.CreateFile(context.Background(), "photos", "report", inputfile.FromBytes(alphabet, "alphabet.txt", ""), nil, WithServerResume())

	require.NoError(t, err)
	assert.Equal(t, "report", file.ID)
	assert.Equal(t, 0, bucket.posts)
}

func TestCreateFile_ServerResume_NewFile(t *testing.T) {
	bucket := newFakeBucket(t)
	server := httptest.NewServer(bucket)
	defer server.Close()
	s := newTestStorage(t, server.URL, 10)

	file, err := s.CreateFile(context.Background(), "photos", "report", inputfile.FromBytes(alphabet, "alphabet.txt", ""), nil, WithServerResume())

	require.NoError(t, err)
	assert.Equal(t, "report", file.ID)
	assert.Equal(t, alphabet, bucket.files["report"].data)
	assert.Equal(t, 4, bucket.posts)
}

func TestCreateFile_ServerResume_ChunkCountMismatch(t *testing.T) {
	bucket := newFakeBucket(t)
	bucket.files["report"] = &storedFile{id: "report", data: alphabet[:5], size: int64(len(alphabet)), chunksTotal: 8, chunksUploaded: 1}
	server := httptest.NewServer(bucket)
	defer server.Close()
	s := newTestStorage(t, server.URL, 10)

	_, err := s.CreateFile(context.Background(), "photos", "report", inputfile.FromBytes(alphabet, "alphabet.txt", ""), nil, WithServerResume())

	assert.ErrorIs(t, err, upload.ErrInvalidInput)
	assert.Equal(t, 0, bucket.posts)
}

func TestCreateFile_InvalidInput(t *testing.T) {
	s := New(nil, upload.Config{ChunkSize: 10, Logger: log.NewLogger()})
	input := inputfile.FromBytes(alphabet, "alphabet.txt", "")

	tests := []struct {
		name     string
		bucketID string
		fileID   string
		file     *inputfile.InputFile
		opts     []CreateFileOption
	}{
		{name: "missing bucket", fileID: "a", file: input},
		{name: "missing file", bucketID: "photos", fileID: "a"},
		{name: "server resume without file id", bucketID: "photos", file: input, opts: []CreateFileOption{WithServerResume()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateFile(context.Background(), tt.bucketID, tt.fileID, tt.file, nil, tt.opts...)
			assert.ErrorIs(t, err, upload.ErrInvalidInput)
		})
	}
}

func TestGetFile_DeleteFile(t *testing.T) {
	// Given
	bucket := newFakeBucket(t)
	bucket.files["report"] = &storedFile{id: "report", name: "report.pdf", size: 3, chunksTotal: 1, chunksUploaded: 1}
	server := httptest.NewServer(bucket)
	defer server.Close()
	s := newTestStorage(t, server.URL, 10)

	// When
	file, err := s.GetFile(context.Background(), "photos", "report")

	// Then
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", file.Name)

	// When
	require.NoError(t, s.DeleteFile(context.Background(), "photos", "report"))

	// Then
	_, err = s.GetFile(context.Background(), "photos", "report")
	assert.ErrorIs(t, err, ErrFileNotFound)
	assert.ErrorIs(t, s.DeleteFile(context.Background(), "photos", "report"), ErrFileNotFound)
}
