// Package storage stores chat attachments and hands back public URLs.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Blobs is the "store blob, return public URL" seam the chat upload route
// calls. A failed Put must leave the pending question untouched.
type Blobs interface {
	Put(ctx context.Context, conversationID, ext string, r io.Reader) (url string, err error)
}

// Disk writes attachments under dir, one subdirectory per conversation,
// and builds URLs below baseURL's /uploads mount.
type Disk struct {
	dir     string
	baseURL string
}

func NewDisk(dir, baseURL string) *Disk {
	return &Disk{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}
}

func (d *Disk) Put(ctx context.Context, conversationID, ext string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := uuid.NewString()
	if ext != "" {
		name += "." + strings.TrimPrefix(ext, ".")
	}

	subdir := filepath.Join(d.dir, conversationID)
	if err := os.MkdirAll(subdir, 0o755); err != nil {
		return "", err
	}

	f, err := os.Create(filepath.Join(subdir, name))
	if err != nil {
		return "", err
	}

	_, err = io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(f.Name())
		return "", err
	}

	return fmt.Sprintf("%s/uploads/%s/%s", d.baseURL, conversationID, name), nil
}
