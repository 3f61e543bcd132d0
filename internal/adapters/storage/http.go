package storage

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jobrunner/flightcache/internal/domain"
	"github.com/jobrunner/flightcache/internal/ports/output"
)

// HTTPStorage implements ObjectStorage for a plain HTTP(S) origin that
// publishes an index file.
type HTTPStorage struct {
	client    *http.Client
	baseURL   string
	indexFile string
	username  string
	password  string
	filter    output.ExtensionFilter
}

// HTTPConfig holds HTTP storage configuration.
type HTTPConfig struct {
	BaseURL   string
	IndexFile string // default: index.txt
	Timeout   time.Duration
	Username  string
	Password  string
	Filter    output.ExtensionFilter
}

// NewHTTPStorage creates a new HTTP storage adapter.
func NewHTTPStorage(cfg HTTPConfig) *HTTPStorage {
	if cfg.IndexFile == "" {
		cfg.IndexFile = "index.txt"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Minute
	}

	return &HTTPStorage{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		indexFile: cfg.IndexFile,
		username:  cfg.Username,
		password:  cfg.Password,
		filter:    cfg.Filter,
	}
}

// List returns all cacheable files listed in the index file.
//
// Each index line holds a key, optionally followed by the size in bytes and
// a version label: "germany/airspace.geojson 123456 2024.03". A line
// without a size leaves the size unknown; "-" skips the size but keeps a
// version: "germany/airspace.geojson - 2024.03".
func (s *HTTPStorage) List(ctx context.Context) ([]output.StorageObject, error) {
	req, err := s.newRequest(ctx, http.MethodGet, s.indexFile)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &domain.StorageError{Operation: "list", Err: fmt.Errorf("fetching index file: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.StorageError{
			Operation: "list",
			Err:       fmt.Errorf("index file returned status %d", resp.StatusCode),
		}
	}

	objects, err := parseIndex(resp.Body, s.filter)
	if err != nil {
		return nil, &domain.StorageError{Operation: "list", Err: err}
	}
	return objects, nil
}

// Stat returns the metadata of a file using a HEAD request.
func (s *HTTPStorage) Stat(ctx context.Context, key string) (output.StorageObject, error) {
	req, err := s.newRequest(ctx, http.MethodHead, key)
	if err != nil {
		return output.StorageObject{}, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return output.StorageObject{}, &domain.StorageError{Operation: "stat", Key: key, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if err := statusError(resp.StatusCode); err != nil {
		return output.StorageObject{}, &domain.StorageError{Operation: "stat", Key: key, Err: err}
	}

	// ContentLength is -1 when the origin omits it.
	obj := output.StorageObject{
		Key:       key,
		Size:      max(resp.ContentLength, 0),
		SizeKnown: resp.ContentLength >= 0,
		ETag:      strings.Trim(resp.Header.Get("ETag"), `"`),
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			obj.LastModified = t.Unix()
		}
	}
	return obj, nil
}

// GetReader returns a reader for the given file.
func (s *HTTPStorage) GetReader(ctx context.Context, key string) (io.ReadCloser, error) {
	req, err := s.newRequest(ctx, http.MethodGet, key)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &domain.StorageError{Operation: "read", Key: key, Err: err}
	}

	if err := statusError(resp.StatusCode); err != nil {
		_ = resp.Body.Close()
		return nil, &domain.StorageError{Operation: "read", Key: key, Err: err}
	}

	return resp.Body, nil
}

func (s *HTTPStorage) newRequest(ctx context.Context, method, key string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+"/"+strings.TrimPrefix(key, "/"), nil)
	if err != nil {
		return nil, err
	}
	if s.username != "" && s.password != "" {
		req.SetBasicAuth(s.username, s.password)
	}
	return req, nil
}

func statusError(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return domain.ErrObjectNotFound
	case code >= 500:
		return fmt.Errorf("%w: HTTP %d", domain.ErrStorageUnavailable, code)
	default:
		return fmt.Errorf("HTTP %d", code)
	}
}

// parseIndex reads an index file. Empty lines and lines starting with '#'
// are skipped.
func parseIndex(r io.Reader, filter output.ExtensionFilter) ([]output.StorageObject, error) {
	var objects []output.StorageObject

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if !filter.Match(fields[0]) {
			continue
		}

		obj := output.StorageObject{Key: fields[0]}
		if len(fields) > 1 && fields[1] != "-" {
			size, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil || size < 0 {
				return nil, fmt.Errorf("index line %d: invalid size %q", lineNo, fields[1])
			}
			obj.Size = size
			obj.SizeKnown = true
		}
		if len(fields) > 2 {
			obj.Version = fields[2]
		}
		objects = append(objects, obj)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading index file: %w", err)
	}
	return objects, nil
}
