package modelstore

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cyclopcam/logs"
)

// StoreHTTP fetches model files from a static HTTP server
type StoreHTTP struct {
	BaseURL string
	Client  *http.Client
	log     logs.Log
}

func NewStoreHTTP(log logs.Log, baseURL string) *StoreHTTP {
	return &StoreHTTP{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Client:  http.DefaultClient,
		log:     log,
	}
}

func (s *StoreHTTP) Open(ctx context.Context, name string) (*File, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	url := s.BaseURL + "/" + name
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	s.log.Infof("Downloading %v", url)
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %v", ErrNotFound, url)
	} else if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP error %v", resp.Status)
	}
	modifiedAt, _ := http.ParseTime(resp.Header.Get("Last-Modified"))
	if modifiedAt.IsZero() {
		modifiedAt = time.Now()
	}
	return &File{
		Reader:     resp.Body,
		ModifiedAt: modifiedAt,
		Size:       resp.ContentLength,
	}, nil
}

func (s *StoreHTTP) String() string {
	return s.BaseURL
}
