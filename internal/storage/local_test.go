package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestProvider(t *testing.T) (*LocalProvider, string) {
	t.Helper()
	dir := t.TempDir()
	return NewLocalProvider(dir), dir
}

func TestLocalProvider_PutObject(t *testing.T) {
	provider, baseDir := setupTestProvider(t)

	bucket := "test-bucket"
	key := "nested/test-file.txt"
	content := []byte("Test content")

	err := provider.PutObject(context.Background(), bucket, key, bytes.NewReader(content))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(baseDir, bucket, "nested", "test-file.txt"))
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestLocalProvider_ListObjects(t *testing.T) {
	provider, _ := setupTestProvider(t)
	ctx := context.Background()

	keys := []string{"Inputs/b.jpg", "Inputs/a.png", "Inputs/sub/c.jpeg", "Inputs2/d.png", "Outputs/e.mp4"}
	for _, key := range keys {
		require.NoError(t, provider.PutObject(ctx, "bucket", key, bytes.NewReader([]byte(key))))
	}

	objs, err := provider.ListObjects(ctx, "bucket", "Inputs/")
	require.NoError(t, err)

	var names []string
	for _, obj := range objs {
		names = append(names, obj.Name)
	}
	assert.Equal(t, []string{"Inputs/a.png", "Inputs/b.jpg", "Inputs/sub/c.jpeg"}, names)
	assert.Equal(t, int64(len("Inputs/a.png")), objs[0].Size)
}

func TestLocalProvider_IterObjectsStopsEarly(t *testing.T) {
	provider, _ := setupTestProvider(t)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, provider.PutObject(ctx, "bucket", key, bytes.NewReader(nil)))
	}

	count := 0
	for _, err := range provider.IterObjects(ctx, "bucket", "") {
		require.NoError(t, err)
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestLocalProvider_ListMissingBucket(t *testing.T) {
	provider, _ := setupTestProvider(t)

	_, err := provider.ListObjects(context.Background(), "missing", "")
	assert.Error(t, err)
}

func TestLocalProvider_DownloadUpload(t *testing.T) {
	provider, baseDir := setupTestProvider(t)
	ctx := context.Background()

	require.NoError(t, provider.PutObject(ctx, "bucket", "Inputs/photo.png", bytes.NewReader([]byte("pixels"))))

	workDir := t.TempDir()
	local := filepath.Join(workDir, "input.png")
	require.NoError(t, provider.DownloadObject(ctx, "bucket", "Inputs/photo.png", local))

	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(data))

	require.NoError(t, provider.UploadObject(ctx, local, "out-bucket", "Outputs/photo.mp4"))
	data, err = os.ReadFile(filepath.Join(baseDir, "out-bucket", "Outputs", "photo.mp4"))
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(data))
}

func TestLocalProvider_DownloadMissingObject(t *testing.T) {
	provider, _ := setupTestProvider(t)

	err := provider.DownloadObject(context.Background(), "bucket", "nope.png", filepath.Join(t.TempDir(), "x"))
	require.Error(t, err)

	var storageErr *StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, OpDownload, storageErr.Op)
	assert.Equal(t, "nope.png", storageErr.Key)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLocalProvider_UploadMissingFile(t *testing.T) {
	provider, _ := setupTestProvider(t)

	err := provider.UploadObject(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"), "bucket", "out.mp4")

	var storageErr *StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, OpUpload, storageErr.Op)
}
