package extraction

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage keeps uploaded bill images next to their history records
type Storage interface {
	// Save stores an uploaded bill image and returns the name recorded on its Record
	Save(filename string, data []byte) (string, error)

	// Get returns the image recorded under name
	Get(name string) ([]byte, error)

	// Delete removes the image of a deleted record
	Delete(name string) error
}

// LocalStorage keeps bill images as flat files in one directory
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates the image directory if needed
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating image directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
	}, nil
}

// path resolves a record file name inside basePath. Directory parts are dropped so
// a name taken from a record can never leave the image directory.
func (l *LocalStorage) path(name string) (string, error) {
	base := filepath.Base(name)
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return "", fmt.Errorf("invalid file name: %q", name)
	}
	return filepath.Join(l.basePath, base), nil
}

// Save writes the image under the base of filename
func (l *LocalStorage) Save(filename string, data []byte) (string, error) {
	path, err := l.path(filename)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing bill image: %w", err)
	}
	return filepath.Base(path), nil
}

func (l *LocalStorage) Get(name string) ([]byte, error) {
	path, err := l.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bill image: %w", err)
	}
	return data, nil
}

func (l *LocalStorage) Delete(name string) error {
	path, err := l.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("deleting bill image: %w", err)
	}
	return nil
}
