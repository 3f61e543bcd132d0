// Package storage provides object storage adapters.
package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/jobrunner/flightcache/internal/domain"
	"github.com/jobrunner/flightcache/internal/ports/output"
)

// LocalStorage implements ObjectStorage for a local or mounted directory.
type LocalStorage struct {
	basePath string
	filter   output.ExtensionFilter
}

// NewLocalStorage creates a new local storage adapter.
func NewLocalStorage(basePath string, filter output.ExtensionFilter) *LocalStorage {
	return &LocalStorage{basePath: basePath, filter: filter}
}

// List returns all cacheable files below the base directory.
func (s *LocalStorage) List(ctx context.Context) ([]output.StorageObject, error) {
	var objects []output.StorageObject

	err := filepath.WalkDir(s.basePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !s.filter.Match(d.Name()) {
			return nil
		}

		relPath, err := filepath.Rel(s.basePath, p)
		if err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, objectFromInfo(filepath.ToSlash(relPath), info))
		return nil
	})
	if err != nil {
		return nil, &domain.StorageError{Operation: "list", Err: err}
	}

	return objects, nil
}

// Stat returns the metadata of a file.
func (s *LocalStorage) Stat(_ context.Context, key string) (output.StorageObject, error) {
	info, err := os.Stat(s.FullPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = domain.ErrObjectNotFound
		}
		return output.StorageObject{}, &domain.StorageError{Operation: "stat", Key: key, Err: err}
	}
	if info.IsDir() {
		return output.StorageObject{}, &domain.StorageError{Operation: "stat", Key: key, Err: domain.ErrObjectNotFound}
	}
	return objectFromInfo(key, info), nil
}

// GetReader returns a reader for the given object.
func (s *LocalStorage) GetReader(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.FullPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = domain.ErrObjectNotFound
		}
		return nil, &domain.StorageError{Operation: "read", Key: key, Err: err}
	}
	return f, nil
}

// FullPath returns the full path for a key. Keys cannot leave the base
// directory.
func (s *LocalStorage) FullPath(key string) string {
	clean := strings.TrimPrefix(path.Clean("/"+key), "/")
	return filepath.Join(s.basePath, filepath.FromSlash(clean))
}

func objectFromInfo(key string, info fs.FileInfo) output.StorageObject {
	return output.StorageObject{
		Key:          key,
		Size:         info.Size(),
		SizeKnown:    true,
		LastModified: info.ModTime().Unix(),
	}
}
