// Package filestore persists storage slots as JSON files in a directory and can watch
// them for modifications made by other processes.
package filestore

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/contribcast/backend/internal/contributions"
)

const fileExtension = ".json"

var (
	// Ensure Storage implements the port.
	_ contributions.Storage = (*Storage)(nil)

	// ErrInvalidKey indicates a slot key that cannot be used as a file name.
	ErrInvalidKey = errors.New("filestore: invalid key")
)

// Storage maps each slot key to <dir>/<key>.json.
type Storage struct {
	dir    string
	logger *zap.Logger

	mu      sync.Mutex
	written map[string][sha256.Size]byte
}

// New creates the directory if needed and returns a file-backed storage.
func New(dir string, logger *zap.Logger) (*Storage, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("filestore: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: create dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Storage{
		dir:     dir,
		logger:  logger,
		written: make(map[string][sha256.Size]byte),
	}, nil
}

// Path returns the file backing key.
func (s *Storage) Path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.dir, key+fileExtension), nil
}

// Read returns the file contents; a missing file is reported as not found.
func (s *Storage) Read(_ context.Context, key string) ([]byte, bool, error) {
	path, err := s.Path(key)
	if err != nil {
		return nil, false, err
	}
	payload, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

// Write replaces the file atomically through a temp file and rename.
func (s *Storage) Write(_ context.Context, key string, payload []byte) error {
	path, err := s.Path(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, "."+key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("filestore: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("filestore: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("filestore: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("filestore: rename: %w", err)
	}
	s.written[key] = sha256.Sum256(payload)
	return nil
}

// Watch calls onChange whenever the file for key is modified by something other than this
// Storage. It returns once the watcher is running; watching stops when ctx is done.
func (s *Storage) Watch(ctx context.Context, key string, onChange func()) error {
	path, err := s.Path(key)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("filestore: new watcher: %w", err)
	}
	// Watch the directory: atomic renames replace the inode, which drops file-level watches.
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("filestore: watch dir: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
					continue
				}
				if s.isOwnWrite(key, path) {
					continue
				}
				s.logger.Info("storage slot changed externally",
					zap.String("key", key),
					zap.String("op", event.Op.String()))
				onChange()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("storage slot watcher error", zap.String("key", key), zap.Error(err))
			}
		}
	}()
	return nil
}

func (s *Storage) isOwnWrite(key, path string) bool {
	payload, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.written[key]
	return ok && last == sha256.Sum256(payload)
}
