package kvstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/muurk/wifiportal/internal/logging"
)

const fileVersion = 1

// document is the on-disk layout of a File store.
type document struct {
	Version int               `yaml:"version"`
	Values  map[string]string `yaml:"values,omitempty"`
}

// File is a Store backed by a YAML file. Every mutation rewrites the whole
// file through a temporary file and a rename so a crash never leaves a
// truncated document behind.
type File struct {
	path string

	mu     sync.RWMutex
	values map[string]string
}

// OpenFile loads the store at path, creating an empty one if the file does
// not exist yet. The parent directory is created on first write.
func OpenFile(path string) (*File, error) {
	f := &File{path: path, values: make(map[string]string)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse store file: %w", err)
	}
	if doc.Version != 0 && doc.Version != fileVersion {
		return nil, fmt.Errorf("unsupported store version: %d (expected %d)", doc.Version, fileVersion)
	}
	if doc.Values != nil {
		f.values = doc.Values
	}
	return f, nil
}

// Path returns the backing file path.
func (f *File) Path() string { return f.path }

func (f *File) GetInt(key string) int {
	return atoi(f.GetString(key))
}

func (f *File) SetInt(key string, v int) error {
	return f.SetString(key, strconv.Itoa(v))
}

func (f *File) GetString(key string) string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.values[key]
}

func (f *File) SetString(key, v string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.values[key]; ok && cur == v {
		return nil
	}
	f.values[key] = v
	return f.flushLocked()
}

func (f *File) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; !ok {
		return nil
	}
	delete(f.values, key)
	return f.flushLocked()
}

func (f *File) Keys() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	keys := make([]string, 0, len(f.values))
	for k := range f.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (f *File) Close() error { return nil }

func (f *File) flushLocked() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	data, err := yaml.Marshal(document{Version: fileVersion, Values: f.values})
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}
	header := []byte("# wifiportal persistent values\n# Managed by the daemon; edits are overwritten.\n\n")
	data = append(header, data...)

	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary store file: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save store file: %w", err)
	}

	logging.Debug("Store flushed", zap.String("path", f.path), zap.Int("keys", len(f.values)))
	return nil
}
