package monitor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
)

// FrameSource produces camera frames
type FrameSource interface {
	// Next returns the next frame. It may block until a frame is available.
	Next(ctx context.Context) (image.Image, error)
	Close()
	String() string
}

// DirSource cycles endlessly through the images in a directory, in name order.
// This is mostly useful for demos and testing without a camera.
type DirSource struct {
	dir   string
	lock  sync.Mutex
	files []string
	next  int
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".gif":  true,
}

func NewDirSource(dir string) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := []string{}
	for _, e := range entries {
		if !e.IsDir() && imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("No images found in %v", dir)
	}
	sort.Strings(files)
	return &DirSource{
		dir:   dir,
		files: files,
	}, nil
}

func (s *DirSource) Next(ctx context.Context) (image.Image, error) {
	s.lock.Lock()
	fn := s.files[s.next]
	s.next = (s.next + 1) % len(s.files)
	s.lock.Unlock()
	return imaging.Open(fn, imaging.AutoOrientation(true))
}

func (s *DirSource) Close() {}

func (s *DirSource) String() string {
	return s.dir
}

// SnapshotSource polls a camera's JPEG snapshot URL
type SnapshotSource struct {
	URL    string
	Client *http.Client
}

func NewSnapshotSource(url string) *SnapshotSource {
	return &SnapshotSource{
		URL:    url,
		Client: http.DefaultClient,
	}
}

func (s *SnapshotSource) Next(ctx context.Context) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", s.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error %v", resp.Status)
	}
	return imaging.Decode(resp.Body)
}

func (s *SnapshotSource) Close() {
	s.Client.CloseIdleConnections()
}

func (s *SnapshotSource) String() string {
	return s.URL
}

// NewSource creates a frame source from its config type
func NewSource(sourceType, path, url string) (FrameSource, error) {
	switch sourceType {
	case "dir":
		return NewDirSource(path)
	case "snapshot":
		return NewSnapshotSource(url), nil
	case "":
		return nil, errors.New("No frame source configured")
	}
	return nil, fmt.Errorf("Unknown frame source type '%v'", sourceType)
}
