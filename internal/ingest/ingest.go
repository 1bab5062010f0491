// Package ingest hands uploaded documents to the external ingestion worker:
// files are spooled to disk and a job describing each is queued.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrTooLarge is returned by Spool.Save when the upload exceeds its limit.
var ErrTooLarge = errors.New("upload exceeds size limit")

// Job tells the ingestion worker where an upload is and which vector
// collection its chunks belong in.
type Job struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Path           string    `json:"path"`
	MIMEType       string    `json:"mimeType"`
	SizeBytes      int64     `json:"sizeBytes"`
	CollectionName string    `json:"collectionName"`
	UserID         string    `json:"userId"`
	EnqueuedAt     time.Time `json:"enqueuedAt"`
}

// Queue accepts ingestion jobs.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
}

// Spool stores uploads under a directory.
type Spool struct {
	dir string
}

// NewSpool creates the spool directory if needed.
func NewSpool(dir string) (*Spool, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	return &Spool{dir: dir}, nil
}

// Save copies at most maxBytes from r into a new file named after a random
// ID and the original extension. It returns the path and the bytes written.
// The partial file is removed on failure.
func (s *Spool) Save(name string, r io.Reader, maxBytes int64) (string, int64, error) {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	path := filepath.Join(s.dir, uuid.NewString()+ext)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", 0, fmt.Errorf("create spool file: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(r, maxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, err
	}
	return path, n, nil
}

// Remove deletes a spooled file, for when queueing fails after Save.
func (s *Spool) Remove(path string) error {
	if filepath.Dir(path) != filepath.Clean(s.dir) {
		return fmt.Errorf("path %s is outside the spool", path)
	}
	return os.Remove(path)
}

var collectionUnsafe = regexp.MustCompile(`[^a-zA-Z0-9]`)

// CollectionName derives the vector collection for an upload from its file
// name: the extension is dropped and anything outside [a-zA-Z0-9] becomes
// an underscore.
func CollectionName(fileName string) string {
	base := filepath.Base(fileName)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "upload_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return collectionUnsafe.ReplaceAllString(base, "_")
}
