package modelstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cyclopcam/logs"
)

// StoreFS reads model files from a local directory
type StoreFS struct {
	Root string
	log  logs.Log
}

func NewStoreFS(log logs.Log, root string) (*StoreFS, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("Model directory %v (relative path %v): %w", absRoot, root, err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("Model store %v is not a directory", absRoot)
	}
	return &StoreFS{
		Root: absRoot,
		log:  log,
	}, nil
}

func (s *StoreFS) Open(ctx context.Context, name string) (*File, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	file, err := os.Open(filepath.Join(s.Root, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, name)
	} else if err != nil {
		return nil, err
	}
	st, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	return &File{
		Reader:     file,
		ModifiedAt: st.ModTime(),
		Size:       st.Size(),
	}, nil
}

func (s *StoreFS) String() string {
	return s.Root
}
