//go:build integration
// +build integration

package integration

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/appwrite/sdk-for-go/client"
	"github.com/appwrite/sdk-for-go/storage"
	"github.com/appwrite/sdk-for-go/upload"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/stretchr/testify/require"
)

const bucketEnvKey = "APPWRITE_TEST_BUCKET_ID"

var logger = log.NewLogger()

func newStorage(t *testing.T, chunkSize int64) (*storage.Storage, string) {
	t.Helper()

	envRepo := env.NewRepository()
	bucketID := envRepo.Get(bucketEnvKey)
	if bucketID == "" {
		t.Skipf("%s is not set", bucketEnvKey)
	}

	cfg, err := client.ConfigFromEnv(envRepo)
	require.NoError(t, err)
	c, err := client.New(cfg, logger)
	require.NoError(t, err)

	return storage.New(c, upload.Config{ChunkSize: chunkSize, Logger: logger}), bucketID
}

func randomFile(t *testing.T, size int64) string {
	t.Helper()

	data := make([]byte, size)
	_, err := rand.Read(data)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), units.HumanSize(float64(size))+".bin")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}
