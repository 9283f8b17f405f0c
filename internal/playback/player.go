package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/koios/eplayer/pkg/models"
	"go.uber.org/zap"
)

// Runner executes one pipeline to completion or until ctx is cancelled
type Runner func(ctx context.Context, bin string, args []string) error

// ExecRunner runs the pipeline as a child process
func ExecRunner(ctx context.Context, bin string, args []string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", bin, err, msg)
		}
		return fmt.Errorf("%s: %w", bin, err)
	}
	return nil
}

// Player plays a looping list of videos one after another
type Player struct {
	bin    string
	sink   string
	run    Runner
	logger *zap.Logger

	// errorDelay throttles restarts after a failed pipeline
	errorDelay time.Duration

	mu      sync.Mutex
	items   []Pipeline
	index   int
	current context.CancelFunc
	started bool
	changed chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPlayer creates a stopped player. A nil runner uses ExecRunner.
func NewPlayer(bin, sink string, run Runner, logger *zap.Logger) *Player {
	if run == nil {
		run = ExecRunner
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Player{
		bin:        bin,
		sink:       sink,
		run:        run,
		logger:     logger,
		errorDelay: 2 * time.Second,
		changed:    make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the playback loop
func (p *Player) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}
	p.started = true

	p.logger.Info("Starting video player", zap.String("bin", p.bin), zap.String("sink", p.sink))

	p.wg.Add(1)
	go p.loop()
}

// Stop interrupts the current video and waits for the loop to exit
func (p *Player) Stop() {
	p.cancel()
	p.wg.Wait()
	p.logger.Info("Video player stopped")
}

// Enqueue appends a video to the playlist. A path already queued is ignored.
func (p *Player) Enqueue(path string, rect models.Rect) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, it := range p.items {
		if it.Path == path {
			return
		}
	}
	p.items = append(p.items, Pipeline{Path: path, Sink: p.sink, Rect: rect})

	p.logger.Info("Video queued", zap.String("path", path), zap.Int("queued", len(p.items)))
	p.notify()
}

// Clear empties the playlist and interrupts the current video
func (p *Player) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.items = nil
	p.index = 0
	if p.current != nil {
		p.current()
	}
	p.notify()
}

// Queued returns the paths in play order
func (p *Player) Queued() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	paths := make([]string, len(p.items))
	for i, it := range p.items {
		paths[i] = it.Path
	}
	return paths
}

// notify must be called with mu held
func (p *Player) notify() {
	select {
	case p.changed <- struct{}{}:
	default:
	}
}

// next returns the pipeline to play and a context cancelled by Clear
func (p *Player) next() (Pipeline, context.Context, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.items) == 0 {
		return Pipeline{}, nil, false
	}
	if p.index >= len(p.items) {
		p.index = 0
	}
	pl := p.items[p.index]
	p.index++

	ctx, cancel := context.WithCancel(p.ctx)
	p.current = cancel
	return pl, ctx, true
}

func (p *Player) loop() {
	defer p.wg.Done()

	for {
		pl, ctx, ok := p.next()
		if !ok {
			select {
			case <-p.ctx.Done():
				return
			case <-p.changed:
				continue
			}
		}

		p.logger.Debug("Playing video", zap.String("pipeline", pl.String()))
		err := p.run(ctx, p.bin, pl.Args())
		interrupted := ctx.Err() != nil

		p.mu.Lock()
		if p.current != nil {
			p.current()
			p.current = nil
		}
		p.mu.Unlock()

		if p.ctx.Err() != nil {
			return
		}
		if err != nil && !interrupted && !errors.Is(err, context.Canceled) {
			p.logger.Error("Video pipeline failed", zap.String("path", pl.Path), zap.Error(err))
			select {
			case <-p.ctx.Done():
				return
			case <-time.After(p.errorDelay):
			}
		}
	}
}
