package nnload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/pulseapp/companion/pkg/kibi"
	"github.com/pulseapp/companion/pkg/modelstore"
	"github.com/pulseapp/companion/pkg/nn"
	"github.com/pulseapp/companion/pkg/onnx"
)

// Loader creates an inference session for a model.
// Load must honor ctx, because a superseded load is cancelled.
type Loader interface {
	Load(ctx context.Context, cfg nn.ModelConfig) (nn.Session, error)
}

// ArtifactLoader fetches a model file from a store, writes it into a local directory
// (onnxruntime loads models by path), and creates an onnxruntime session from it.
// The file is fetched again on every load, so a republished model is always picked up.
type ArtifactLoader struct {
	Log      logs.Log
	Store    modelstore.Store
	CacheDir string

	// If nil, onnx.NewSession is used
	NewSession func(modelPath string) (nn.Session, error)
}

func (l *ArtifactLoader) Load(ctx context.Context, cfg nn.ModelConfig) (nn.Session, error) {
	diskPath := filepath.Join(l.CacheDir, cfg.FileName)
	if err := l.fetch(ctx, cfg.FileName, diskPath); err != nil {
		return nil, fmt.Errorf("Fetch failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	newSession := l.NewSession
	if newSession == nil {
		newSession = func(modelPath string) (nn.Session, error) {
			return onnx.NewSession(modelPath)
		}
	}
	session, err := newSession(diskPath)
	if err != nil {
		return nil, fmt.Errorf("Failed to create session from %v: %w", diskPath, err)
	}
	return session, nil
}

// Copy the file from the store to diskPath, via a temp file, so that a partial download
// never masquerades as a complete model. Every fetch has its own temp file, because a
// superseded load of the same model may still be running.
func (l *ArtifactLoader) fetch(ctx context.Context, name, diskPath string) error {
	if err := os.MkdirAll(filepath.Dir(diskPath), 0755); err != nil {
		return err
	}
	src, err := l.Store.Open(ctx, name)
	if err != nil {
		return err
	}
	defer src.Reader.Close()

	file, err := os.CreateTemp(filepath.Dir(diskPath), filepath.Base(diskPath)+".*.tmp")
	if err != nil {
		return err
	}
	tempFile := file.Name()
	renamed := false
	defer func() {
		file.Close()
		if !renamed {
			os.Remove(tempFile)
		}
	}()

	n, err := io.Copy(file, src.Reader)
	if err != nil {
		return err
	}
	if src.Size >= 0 && n != src.Size {
		return fmt.Errorf("Truncated download of %v: got %v of %v bytes", name, n, src.Size)
	}
	if err := file.Close(); err != nil {
		return err
	}
	if err := os.Rename(tempFile, diskPath); err != nil {
		return err
	}
	renamed = true
	l.Log.Infof("Fetched %v (%v, modified %v) from %v", name, kibi.Bytes(n), src.ModifiedAt.Format(time.RFC3339), l.Store)
	return nil
}

// NewArtifactLoader initializes onnxruntime, and opens the model store at storeLocation
// (see modelstore.Open for the accepted forms).
func NewArtifactLoader(log logs.Log, storeLocation, cacheDir, onnxLibrary string) (*ArtifactLoader, error) {
	if err := onnx.Initialize(onnxLibrary); err != nil {
		return nil, err
	}
	store, err := modelstore.Open(log, storeLocation)
	if err != nil {
		return nil, err
	}
	log.Infof("Models will be loaded from %v", store)
	return &ArtifactLoader{
		Log:      log,
		Store:    store,
		CacheDir: cacheDir,
	}, nil
}
