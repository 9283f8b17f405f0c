package playlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/koios/eplayer/pkg/models"
	"go.uber.org/zap"
)

const (
	playlistExt = ".json"
	taskExt     = ".task"
)

var (
	ErrInvalidDevice = errors.New("invalid device id")
	ErrNotFound      = errors.New("no playlist stored for device")
)

// Store persists playlists as <device>.json (the media items) and
// <device>.task (the task id) inside a single directory.
type Store struct {
	dir    string
	logger *zap.Logger

	mu       sync.Mutex
	watching bool
	// renames performed by Save that the watcher has not seen yet
	ownWrites map[string]int
}

// NewStore creates the directory if needed
func NewStore(dir string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create playlist directory: %w", err)
	}
	return &Store{
		dir:       dir,
		logger:    logger,
		ownWrites: make(map[string]int),
	}, nil
}

// Dir returns the directory the store writes into
func (s *Store) Dir() string {
	return s.dir
}

// Save decodes a playlist-update body and persists it. It returns the
// device the playlist belongs to.
func (s *Store) Save(raw []byte) (string, error) {
	var pl models.Playlist
	if err := json.Unmarshal(raw, &pl); err != nil {
		return "", fmt.Errorf("failed to decode playlist: %w", err)
	}
	if err := validateDevice(pl.Device); err != nil {
		return "", err
	}
	if pl.Items == nil {
		pl.Items = []models.MediaDescriptor{}
	}

	items, err := json.Marshal(pl.Items)
	if err != nil {
		return "", fmt.Errorf("failed to encode playlist items: %w", err)
	}

	if err := s.writeFile(pl.Device+playlistExt, items); err != nil {
		return "", err
	}
	if err := s.writeFile(pl.Device+taskExt, []byte(pl.TaskID)); err != nil {
		return "", err
	}

	s.logger.Info("Playlist saved",
		zap.String("device", pl.Device),
		zap.String("task_id", pl.TaskID),
		zap.Int("items", len(pl.Items)))

	return pl.Device, nil
}

// Load returns the stored media items of device, each tagged with the device id
func (s *Store) Load(device string) ([]models.MediaDescriptor, error) {
	if err := validateDevice(device); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.dir, device+playlistExt))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, device)
		}
		return nil, fmt.Errorf("failed to read playlist for %s: %w", device, err)
	}

	var items []models.MediaDescriptor
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse playlist for %s: %w", device, err)
	}
	for i := range items {
		items[i].DeviceID = device
	}
	return items, nil
}

// TaskID returns the last task id saved for device, or "" when there is none
func (s *Store) TaskID(device string) (string, error) {
	if err := validateDevice(device); err != nil {
		return "", err
	}

	data, err := os.ReadFile(filepath.Join(s.dir, device+taskExt))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read task id for %s: %w", device, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Watch calls fn with the device id whenever a playlist file is created or
// rewritten by something other than this store. It blocks until ctx is done.
func (s *Store) Watch(ctx context.Context, fn func(device string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create playlist watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}

	s.mu.Lock()
	s.watching = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.watching = false
		clear(s.ownWrites)
		s.mu.Unlock()
	}()

	s.logger.Info("Watching playlist directory", zap.String("dir", s.dir))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			name := filepath.Base(event.Name)
			if filepath.Ext(name) != playlistExt || strings.HasPrefix(name, ".") {
				continue
			}
			if s.consumeOwnWrite(name) {
				continue
			}

			device := strings.TrimSuffix(name, playlistExt)
			s.logger.Info("Playlist changed on disk", zap.String("device", device))
			fn(device)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("Playlist watcher error", zap.Error(err))
		}
	}
}

// writeFile replaces name atomically through a temporary file in the same directory
func (s *Store) writeFile(name string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file for %s: %w", name, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", name, err)
	}

	s.mu.Lock()
	if s.watching && filepath.Ext(name) == playlistExt {
		s.ownWrites[name]++
	}
	s.mu.Unlock()

	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		s.consumeOwnWrite(name)
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}

func (s *Store) consumeOwnWrite(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ownWrites[name] == 0 {
		return false
	}
	s.ownWrites[name]--
	return true
}

func validateDevice(device string) error {
	if device == "" || device == "." || device == ".." ||
		strings.ContainsAny(device, `/\`) || strings.HasPrefix(device, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidDevice, device)
	}
	return nil
}
