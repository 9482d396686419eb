// Package modelstore fetches model artifacts from wherever they are published.
package modelstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cyclopcam/logs"
)

var ErrNotFound = errors.New("Model artifact not found")

// Store is a read-only blob store of model files
type Store interface {
	// When finished, you must close File.Reader
	Open(ctx context.Context, name string) (*File, error)

	// Human readable location, for logs
	String() string
}

// File is an element in a Store
type File struct {
	Reader     io.ReadCloser
	ModifiedAt time.Time
	Size       int64 // -1 if unknown
}

// Open a store from a location string.
// Supported forms are a local directory, "http://..." or "https://...", and "gs://bucket/prefix".
func Open(log logs.Log, location string) (Store, error) {
	switch {
	case location == "":
		return nil, errors.New("Model store location is empty")
	case strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://"):
		return NewStoreHTTP(log, location), nil
	case strings.HasPrefix(location, "gs://"):
		bucket, prefix, _ := strings.Cut(strings.TrimPrefix(location, "gs://"), "/")
		if bucket == "" {
			return nil, fmt.Errorf("Invalid GCS location '%v'", location)
		}
		return NewStoreGCS(log, bucket, prefix)
	}
	return NewStoreFS(log, location)
}

func validName(name string) error {
	if name == "" || strings.Contains(name, "..") || strings.HasPrefix(name, "/") {
		return fmt.Errorf("Invalid file name '%v'", name)
	}
	return nil
}
