package modelstore

import (
	"context"
	"errors"
	"fmt"
	"path"

	gcs "cloud.google.com/go/storage"
	"github.com/cyclopcam/logs"
)

// StoreGCS reads model files from a Google Cloud Storage bucket
type StoreGCS struct {
	bucketName string
	prefix     string
	bucket     *gcs.BucketHandle
	log        logs.Log
}

func NewStoreGCS(log logs.Log, bucketName, prefix string) (*StoreGCS, error) {
	ctx := context.Background()
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &StoreGCS{
		bucketName: bucketName,
		prefix:     prefix,
		bucket:     client.Bucket(bucketName),
		log:        log,
	}, nil
}

func (s *StoreGCS) objectName(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

func (s *StoreGCS) Open(ctx context.Context, name string) (*File, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	obj := s.objectName(name)
	s.log.Infof("Downloading gs://%v/%v", s.bucketName, obj)
	r, err := s.bucket.Object(obj).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: gs://%v/%v", ErrNotFound, s.bucketName, obj)
	} else if err != nil {
		return nil, err
	}
	return &File{
		Reader:     r,
		ModifiedAt: r.Attrs.LastModified,
		Size:       r.Attrs.Size,
	}, nil
}

func (s *StoreGCS) String() string {
	return "gs://" + s.bucketName + "/" + s.prefix
}
