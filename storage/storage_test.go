package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskPut(t *testing.T) {
	dir := t.TempDir()
	disk := NewDisk(dir, "http://localhost:8080/")

	url, err := disk.Put(context.Background(), "c1", ".png", strings.NewReader("fake image bytes"))
	require.NoError(t, err)

	prefix := "http://localhost:8080/uploads/c1/"
	require.True(t, strings.HasPrefix(url, prefix), url)
	assert.True(t, strings.HasSuffix(url, ".png"), url)

	name := strings.TrimPrefix(url, prefix)
	data, err := os.ReadFile(filepath.Join(dir, "c1", name))
	require.NoError(t, err)
	assert.Equal(t, "fake image bytes", string(data))
}

func TestDiskPutDistinctNames(t *testing.T) {
	disk := NewDisk(t.TempDir(), "http://x")

	a, err := disk.Put(context.Background(), "c1", "png", strings.NewReader("a"))
	require.NoError(t, err)
	b, err := disk.Put(context.Background(), "c1", "png", strings.NewReader("b"))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestDiskPutCancelledContext(t *testing.T) {
	dir := t.TempDir()
	disk := NewDisk(dir, "http://x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := disk.Put(ctx, "c1", "png", strings.NewReader("a"))
	require.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing is written for a dead request")
}
