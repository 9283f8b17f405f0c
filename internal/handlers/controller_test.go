package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/koios/eplayer/internal/downloader"
	"github.com/koios/eplayer/internal/heartbeat"
	"github.com/koios/eplayer/internal/playlist"
	"github.com/koios/eplayer/pkg/models"
)

type fakeDownloads struct {
	mu       sync.Mutex
	enqueued []models.MediaDescriptor
	results  chan downloader.Result
}

func newFakeDownloads() *fakeDownloads {
	return &fakeDownloads{results: make(chan downloader.Result, 16)}
}

func (f *fakeDownloads) Enqueue(media models.MediaDescriptor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, media)
	return nil
}

func (f *fakeDownloads) Results() <-chan downloader.Result {
	return f.results
}

// Pending counts everything enqueued; the fake never downloads
func (f *fakeDownloads) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.enqueued)
}

func (f *fakeDownloads) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, len(f.enqueued))
	for i, m := range f.enqueued {
		ids[i] = m.ID
	}
	return ids
}

type publishedMessage struct {
	command string
	message string
}

type fakePublisher struct {
	mu        sync.Mutex
	connected bool
	messages  []publishedMessage
}

func (p *fakePublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *fakePublisher) Publish(command, message string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, publishedMessage{command: command, message: message})
	return nil
}

func (p *fakePublisher) sent() []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedMessage(nil), p.messages...)
}

type testController struct {
	*Controller
	canvas    *fakeCanvas
	video     *fakeVideo
	downloads *fakeDownloads
	store     *playlist.Store
	state     *heartbeat.State
	publisher *fakePublisher
}

func newTestController(t *testing.T) *testController {
	t.Helper()

	display, canvas, _, video := newTestDisplay()
	store, err := playlist.NewStore(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	downloads := newFakeDownloads()
	state := heartbeat.NewState()
	publisher := &fakePublisher{connected: true}

	c := NewController(display, downloads, store, state, zap.NewNop())
	c.SetPublisher(publisher, "wifibssid")
	t.Cleanup(c.Stop)

	return &testController{
		Controller: c,
		canvas:     canvas,
		video:      video,
		downloads:  downloads,
		store:      store,
		state:      state,
		publisher:  publisher,
	}
}

func playlistFrame(t *testing.T, device, taskID string, items ...models.MediaDescriptor) models.Frame {
	t.Helper()

	body, err := json.Marshal(models.Playlist{Device: device, TaskID: taskID, Items: items})
	if err != nil {
		t.Fatalf("marshal playlist: %v", err)
	}
	frame, ok := models.ParseFrame(append([]byte("0002"), body...))
	if !ok {
		t.Fatal("ParseFrame rejected playlist frame")
	}
	return frame
}

func frame(t *testing.T, raw string) models.Frame {
	t.Helper()
	f, ok := models.ParseFrame([]byte(raw))
	if !ok {
		t.Fatalf("ParseFrame(%q) rejected", raw)
	}
	return f
}

func TestHeartbeatAck(t *testing.T) {
	tc := newTestController(t)

	tc.HandleFrame(frame(t, "0001T-42"))
	if got := tc.state.TaskID(); got != "T-42" {
		t.Fatalf("task id = %q, want T-42", got)
	}

	tc.HandleFrame(frame(t, "0001"))
	if got := tc.state.TaskID(); got != "T-42" {
		t.Errorf("empty ack changed task id to %q", got)
	}
}

func TestUnknownCommandIgnored(t *testing.T) {
	tc := newTestController(t)
	tc.state.SetTaskID("T-1")

	tc.HandleFrame(frame(t, "0042whatever"))

	if tc.state.TaskID() != "T-1" || len(tc.downloads.ids()) != 0 || tc.canvas.drawCount() != 0 {
		t.Error("unknown command changed state")
	}
	if len(tc.publisher.sent()) != 0 {
		t.Error("unknown command published a message")
	}
}

func TestConfigFrame(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantRunning  bool
		wantInterval time.Duration
	}{
		{"valid", "0008" + "80&1700000000&120", true, 120 * time.Second},
		{"short interval clamped", "0008" + "80&1700000000&5", true, heartbeat.MinInterval},
		{"with opening hours", "0008" + "80&1700000000&90&1700003600&1700040000", true, 90 * time.Second},
		{"two fields", "0008" + "80&1700000000", false, heartbeat.MinInterval},
		{"not a number", "0008" + "80&1700000000&soon", false, heartbeat.MinInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := newTestController(t)

			tc.HandleFrame(frame(t, tt.body))

			st := tc.Status()
			if st.HeartbeatRunning != tt.wantRunning {
				t.Errorf("heartbeat running = %v, want %v", st.HeartbeatRunning, tt.wantRunning)
			}
			if got := tc.state.Interval(); got != tt.wantInterval {
				t.Errorf("interval = %v, want %v", got, tt.wantInterval)
			}
			if !tt.wantRunning && st.LastConfig != nil {
				t.Errorf("invalid config was recorded: %+v", st.LastConfig)
			}
		})
	}
}

func TestInvalidConfigKeepsRunningHeartbeat(t *testing.T) {
	tc := newTestController(t)

	tc.HandleFrame(frame(t, "000880&1700000000&120"))
	waitForBeats(t, tc.publisher, 1)

	tc.HandleFrame(frame(t, "000880&1700000000"))
	tc.HandleFrame(frame(t, "000880&1700000000&soon"))

	// a restart would beat again immediately
	time.Sleep(100 * time.Millisecond)

	if got := len(heartbeats(tc.publisher)); got != 1 {
		t.Errorf("heartbeats = %d, want 1 (daemon restarted)", got)
	}
	if got := tc.state.Interval(); got != 120*time.Second {
		t.Errorf("interval = %v, want 2m0s", got)
	}
	st := tc.Status()
	if !st.HeartbeatRunning {
		t.Error("heartbeat stopped by an invalid config frame")
	}
	if st.LastConfig == nil || st.LastConfig.HeartbeatSeconds != 120 {
		t.Errorf("last config = %+v", st.LastConfig)
	}
}

func TestConfigRestartsHeartbeat(t *testing.T) {
	tc := newTestController(t)
	tc.state.SetTaskID("T-9")

	// each daemon beats once immediately and then sleeps for at least a minute
	tc.HandleFrame(frame(t, "000880&1700000000&60"))
	waitForBeats(t, tc.publisher, 1)
	tc.HandleFrame(frame(t, "000880&1700000000&90"))
	waitForBeats(t, tc.publisher, 2)
	tc.Stop()

	beats := heartbeats(tc.publisher)
	if len(beats) != 2 {
		t.Fatalf("heartbeats = %d, want 2", len(beats))
	}
	for _, b := range beats {
		if b.message != "wifibssid;T-9" {
			t.Errorf("heartbeat payload = %q", b.message)
		}
	}
	if tc.Status().HeartbeatRunning {
		t.Error("heartbeat still running after Stop")
	}
}

func heartbeats(p *fakePublisher) []publishedMessage {
	var beats []publishedMessage
	for _, m := range p.sent() {
		if m.command == heartbeat.Topic {
			beats = append(beats, m)
		}
	}
	return beats
}

func waitForBeats(t *testing.T, p *fakePublisher, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(heartbeats(p)) < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d heartbeats", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPlaylistUpdateEnqueuesItems(t *testing.T) {
	tc := newTestController(t)

	items := []models.MediaDescriptor{
		{ID: "a", FileName: "a.png", Checksum: "0cc175b9c0f1b6a831c399e269772661"},
		{ID: "b", FileName: "b.png", Checksum: "92eb5ffee6ae2fec3ad71c777531578f"},
	}
	tc.HandleFrame(playlistFrame(t, "6A10000000FF", "T-2", items...))

	ids := tc.downloads.ids()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("enqueued = %v", ids)
	}
	for _, m := range tc.downloads.enqueued {
		if m.DeviceID != "6A10000000FF" {
			t.Errorf("item %s tagged with device %q", m.ID, m.DeviceID)
		}
	}
	if tc.video.cleared != 1 {
		t.Errorf("local display cleared %d times, want 1", tc.video.cleared)
	}
	if got := tc.Status().Pending; got != 2 {
		t.Errorf("pending = %d, want 2", got)
	}
}

func TestPlaylistUpdateOtherDevice(t *testing.T) {
	tc := newTestController(t)

	tc.HandleFrame(playlistFrame(t, "6A10000000AA", "T-3", models.MediaDescriptor{ID: "x"}))

	if got := tc.downloads.ids(); len(got) != 1 {
		t.Fatalf("enqueued = %v", got)
	}
	if tc.video.cleared != 0 {
		t.Error("playlist for another device cleared the local display")
	}
}

func TestPlaylistUpdateInvalidJSON(t *testing.T) {
	tc := newTestController(t)

	tc.HandleFrame(frame(t, "0002{not json"))

	if got := tc.downloads.ids(); len(got) != 0 {
		t.Errorf("enqueued = %v", got)
	}
}

func TestRefreshMissingPlaylist(t *testing.T) {
	tc := newTestController(t)

	err := tc.Refresh("6A10000000FF")
	if !errors.Is(err, playlist.ErrNotFound) {
		t.Errorf("Refresh err = %v, want ErrNotFound", err)
	}
}

func TestRunHandlesResults(t *testing.T) {
	tc := newTestController(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tc.Run(ctx)
		close(done)
	}()

	local := background("b1")
	local.DeviceID = "6A10000000FF"
	remote := background("r1")
	remote.DeviceID = "6A10000000AA"

	tc.downloads.results <- downloader.Result{Media: local, LocalPath: "/cache/b1.png", Attempts: 1}
	tc.downloads.results <- downloader.Result{Media: remote, LocalPath: "/cache/r1.png", Attempts: 1}
	tc.downloads.results <- downloader.Result{Media: local, LocalPath: "/cache/b1.png", Attempts: 5, Err: errors.New("checksum mismatch")}
	close(tc.downloads.results)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("Run did not return after results closed")
	}
	cancel()

	st := tc.Status()
	if st.Completed != 2 || st.Failed != 1 {
		t.Errorf("completed/failed = %d/%d, want 2/1", st.Completed, st.Failed)
	}
	if tc.canvas.drawCount() != 1 {
		t.Errorf("draws = %d, want 1 (remote device must not be drawn)", tc.canvas.drawCount())
	}
}

func TestGreet(t *testing.T) {
	tc := newTestController(t)
	tc.SetRegistration(models.Registration{MAC: "6A10000000FF", ClientType: models.ClientType, Width: 1920, Height: 1080})

	tc.Greet()

	sent := tc.publisher.sent()
	if len(sent) != 2 {
		t.Fatalf("published %d messages, want 2", len(sent))
	}
	if sent[0].command != models.OutboundRegister || sent[1].command != models.OutboundGetConfig {
		t.Errorf("commands = %s, %s", sent[0].command, sent[1].command)
	}

	var reg map[string]interface{}
	if err := json.Unmarshal([]byte(sent[0].message), &reg); err != nil {
		t.Fatalf("registration is not JSON: %v", err)
	}
	if reg["MAC"] != "6A10000000FF" {
		t.Errorf("MAC = %v", reg["MAC"])
	}
}

func TestBrightnessAndScreenOff(t *testing.T) {
	tc := newTestController(t)

	tc.HandleFrame(frame(t, "000555"))
	tc.HandleFrame(frame(t, "0006"))

	st := tc.Status()
	if st.Brightness == nil || *st.Brightness != 55 {
		t.Errorf("brightness = %v", st.Brightness)
	}
	if !st.ScreenOff {
		t.Error("screen off not recorded")
	}
}
