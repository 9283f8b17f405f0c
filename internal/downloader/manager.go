package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/koios/eplayer/internal/config"
	"github.com/koios/eplayer/pkg/models"
	"go.uber.org/zap"
)

var (
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrSizeUnknown      = errors.New("remote size unknown")
	ErrNoChecksum       = errors.New("descriptor has no checksum")
	ErrStopped          = errors.New("download manager stopped")
)

// Result is delivered once for every enqueued descriptor
type Result struct {
	Media     models.MediaDescriptor
	LocalPath string
	Attempts  int
	CacheHit  bool
	Err       error
}

// Success reports whether the file at LocalPath is complete and verified
func (r Result) Success() bool {
	return r.Err == nil
}

// Manager downloads and verifies media files on a single worker goroutine
type Manager struct {
	dir          string
	urlRoot      string
	maxRetries   int
	rangeWorkers int
	fetcher      Fetcher
	logger       *zap.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []models.MediaDescriptor
	started  bool
	stopping bool

	results chan Result
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a download manager writing into cfg.Dir
func New(cfg config.DownloadConfig, urlRoot string, fetcher Fetcher, logger *zap.Logger) (*Manager, error) {
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	rangeWorkers := cfg.RangeWorkers
	if rangeWorkers <= 0 {
		rangeWorkers = 4
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		dir:          cfg.Dir,
		urlRoot:      urlRoot,
		maxRetries:   maxRetries,
		rangeWorkers: rangeWorkers,
		fetcher:      fetcher,
		logger:       logger,
		results:      make(chan Result, 64),
		ctx:          ctx,
		cancel:       cancel,
	}
	m.cond = sync.NewCond(&m.mu)

	return m, nil
}

// Start launches the worker goroutine
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return
	}
	m.started = true

	m.logger.Info("Starting download worker",
		zap.String("dir", m.dir),
		zap.Int("max_retries", m.maxRetries),
		zap.Int("range_workers", m.rangeWorkers))

	m.wg.Add(1)
	go m.worker()
}

// Stop finishes every queued task, stops the worker and closes Results
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return
	}
	m.stopping = true
	started := m.started
	m.cond.Broadcast()
	m.mu.Unlock()

	m.logger.Info("Stopping download worker")

	if !started {
		m.mu.Lock()
		m.started = true
		m.mu.Unlock()
		m.wg.Add(1)
		go m.worker()
	}

	m.wg.Wait()
	m.cancel()
	close(m.results)
	m.logger.Info("Download worker stopped")
}

// Results delivers one Result per enqueued descriptor, in completion order
func (m *Manager) Results() <-chan Result {
	return m.results
}

// Enqueue adds a descriptor to the queue. It never blocks on the network.
func (m *Manager) Enqueue(media models.MediaDescriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopping {
		return ErrStopped
	}

	m.queue = append(m.queue, media)
	m.cond.Signal()
	return nil
}

// Pending returns the number of queued tasks not yet picked up
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// LocalPath returns the cache path for a descriptor
func (m *Manager) LocalPath(media models.MediaDescriptor) string {
	return filepath.Join(m.dir, media.CacheName())
}

func (m *Manager) worker() {
	defer m.wg.Done()

	for {
		m.mu.Lock()
		for len(m.queue) == 0 && !m.stopping {
			m.cond.Wait()
		}
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return
		}
		media := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		m.results <- m.process(media)
	}
}

func (m *Manager) resolveURL(u string) string {
	if strings.HasPrefix(u, "http") {
		return u
	}
	return strings.TrimSuffix(m.urlRoot, "/") + "/" + strings.TrimPrefix(u, "/")
}

// process runs one task to completion
func (m *Manager) process(media models.MediaDescriptor) Result {
	result := Result{Media: media}

	if media.Checksum == "" {
		result.Err = ErrNoChecksum
		return result
	}

	localPath := m.LocalPath(media)
	result.LocalPath = localPath
	url := m.resolveURL(media.DownloadURL)

	log := m.logger.With(
		zap.String("media_id", media.ID),
		zap.String("file", media.FileName),
		zap.String("path", localPath))

	if _, err := os.Stat(localPath); err == nil {
		if ok, _ := verifyChecksum(localPath, media.Checksum); ok {
			log.Debug("Cache hit")
			result.CacheHit = true
			return result
		}
		log.Info("Removing stale cached file")
		os.Remove(localPath)
	}

	var size int64
	if media.Kind == models.MediaVideo {
		var err error
		size, err = m.fetcher.Size(m.ctx, url)
		if err != nil {
			result.Err = fmt.Errorf("%w: %v", ErrSizeUnknown, err)
			return result
		}
	}

	var lastErr error
	for result.Attempts < m.maxRetries {
		result.Attempts++
		started := time.Now()

		var err error
		if media.Kind == models.MediaVideo {
			err = m.fetchRanged(m.ctx, url, localPath, size)
		} else {
			err = m.fetchSingle(m.ctx, url, localPath)
		}
		if err != nil {
			lastErr = err
			log.Warn("Download attempt failed",
				zap.Int("attempt", result.Attempts),
				zap.Error(err))
			continue
		}

		ok, err := verifyChecksum(localPath, media.Checksum)
		if err != nil {
			lastErr = err
			os.Remove(localPath)
			continue
		}
		if !ok {
			lastErr = ErrChecksumMismatch
			os.Remove(localPath)
			log.Warn("Checksum mismatch", zap.Int("attempt", result.Attempts))
			continue
		}

		log.Info("Download completed",
			zap.Int("attempt", result.Attempts),
			zap.Duration("elapsed", time.Since(started)))
		return result
	}

	os.Remove(localPath)
	result.Err = fmt.Errorf("download of %s failed after %d attempts: %w", media.FileName, result.Attempts, lastErr)
	return result
}
