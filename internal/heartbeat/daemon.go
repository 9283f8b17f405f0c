package heartbeat

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// MinInterval is the shortest period between two heartbeats
const MinInterval = 60 * time.Second

// Topic is the command the heartbeat is published under
const Topic = "heartbeat"

// Publisher is the part of the command transport the daemon needs
type Publisher interface {
	IsConnected() bool
	Publish(command string, payload string) error
}

// State is shared between the controller (writer) and the daemon (reader)
type State struct {
	mu       sync.RWMutex
	taskID   string
	interval time.Duration
}

// NewState creates a state with the minimum interval
func NewState() *State {
	return &State{interval: MinInterval}
}

// SetTaskID records the task id acknowledged by the server
func (s *State) SetTaskID(id string) {
	s.mu.Lock()
	s.taskID = id
	s.mu.Unlock()
}

// TaskID returns the current task id
func (s *State) TaskID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.taskID
}

// SetInterval stores the requested interval, raised to MinInterval if shorter
func (s *State) SetInterval(d time.Duration) {
	if d < MinInterval {
		d = MinInterval
	}
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
}

// Interval returns the effective interval
func (s *State) Interval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.interval < MinInterval {
		return MinInterval
	}
	return s.interval
}

// Daemon publishes "<kind>;<task id>" on a fixed period from a single goroutine
type Daemon struct {
	state     *State
	publisher Publisher
	kind      string
	logger    *zap.Logger

	// after is swapped in tests to observe and shorten the sleeps
	after func(time.Duration) <-chan time.Time

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewDaemon creates a stopped daemon
func NewDaemon(state *State, publisher Publisher, kind string, logger *zap.Logger) *Daemon {
	return &Daemon{
		state:     state,
		publisher: publisher,
		kind:      kind,
		logger:    logger,
		after:     time.After,
	}
}

// Start launches the heartbeat goroutine. It is a no-op when already running.
func (d *Daemon) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return
	}
	d.running = true
	d.stop = make(chan struct{})
	d.done = make(chan struct{})

	d.logger.Info("Starting heartbeat", zap.Duration("interval", d.state.Interval()))
	go d.run(d.stop, d.done)
}

// Stop signals the goroutine and waits for it to exit. No heartbeat is
// published after Stop returns.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return
	}
	close(d.stop)
	<-d.done
	d.running = false

	d.logger.Info("Heartbeat stopped")
}

// Running reports whether the heartbeat goroutine is active
func (d *Daemon) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Payload returns the message published on every beat
func (d *Daemon) Payload() string {
	return d.kind + ";" + d.state.TaskID()
}

func (d *Daemon) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		default:
		}

		d.beat()

		select {
		case <-stop:
			return
		case <-d.after(d.state.Interval()):
		}
	}
}

func (d *Daemon) beat() {
	if d.publisher == nil || !d.publisher.IsConnected() {
		d.logger.Warn("Transport not connected, heartbeat skipped",
			zap.String("task_id", d.state.TaskID()))
		return
	}

	payload := d.Payload()
	if err := d.publisher.Publish(Topic, payload); err != nil {
		d.logger.Error("Failed to publish heartbeat", zap.Error(err))
		return
	}
	d.logger.Debug("Heartbeat published", zap.String("payload", payload))
}
