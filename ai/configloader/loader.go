package configloader

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Loader is a configuration loader for YAML files such as prompt
// templates. Files are looked up under baseDir, then next to the
// executable, then in the optional embedded fallback.
type Loader struct {
	baseDir  string
	fallback fs.FS
	cache    sync.Map
}

// Option configures a Loader.
type Option func(*Loader)

// WithFallbackFS sets the file system consulted when a file is found
// neither under baseDir nor next to the executable.
func WithFallbackFS(fsys fs.FS) Option {
	return func(l *Loader) {
		l.fallback = fsys
	}
}

// NewLoader creates a new configuration loader.
func NewLoader(baseDir string, opts ...Option) *Loader {
	l := &Loader{
		baseDir: baseDir,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load loads a single YAML file and unmarshals it into target.
func (l *Loader) Load(subPath string, target any) error {
	data, err := l.ReadFileWithFallback(subPath)
	if err != nil {
		return fmt.Errorf("read file %s: %w", subPath, err)
	}

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("unmarshal YAML %s: %w", subPath, err)
	}

	return nil
}

// LoadCached loads a configuration with caching.
// If the file is already cached, returns the cached value.
// Otherwise, calls factory to create the target and caches it.
func (l *Loader) LoadCached(subPath string, factory func() any) (any, error) {
	if cached, ok := l.cache.Load(subPath); ok {
		return cached, nil
	}

	target := factory()
	if err := l.Load(subPath, target); err != nil {
		return nil, err
	}

	actual, _ := l.cache.LoadOrStore(subPath, target)
	return actual, nil
}

// ReadFileWithFallback tries to read file from path relative to baseDir,
// then relative to the executable directory, then from the fallback FS.
func (l *Loader) ReadFileWithFallback(path string) ([]byte, error) {
	if l.baseDir != "" {
		data, err := os.ReadFile(filepath.Join(l.baseDir, path))
		if err == nil {
			return data, nil
		}

		if execPath, execErr := os.Executable(); execErr == nil {
			execAbsPath := filepath.Join(filepath.Dir(execPath), l.baseDir, path)
			if data, err := os.ReadFile(execAbsPath); err == nil {
				return data, nil
			}
		}

		if l.fallback == nil {
			return nil, err
		}
	}

	if l.fallback == nil {
		return nil, fmt.Errorf("no base directory or fallback configured for %s", path)
	}
	return fs.ReadFile(l.fallback, filepath.ToSlash(path))
}
