package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/koios/eplayer/internal/config"
	"github.com/koios/eplayer/pkg/models"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type frameRecorder struct {
	mu     sync.Mutex
	frames []models.Frame
}

func (r *frameRecorder) handle(f models.Frame) {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
}

func (r *frameRecorder) all() []models.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Frame(nil), r.frames...)
}

func testConfig(broker string) config.MQTTConfig {
	return config.MQTTConfig{Broker: broker, Username: "LCD", QoS: 1}
}

func TestBrokerURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10.0.0.5:1883", "tcp://10.0.0.5:1883"},
		{"tcp://broker:1883", "tcp://broker:1883"},
		{"ssl://broker:8883", "ssl://broker:8883"},
	}
	for _, tt := range tests {
		if got := BrokerURL(tt.in); got != tt.want {
			t.Errorf("BrokerURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHandleMessageFraming(t *testing.T) {
	rec := &frameRecorder{}
	c := NewClient(testConfig("127.0.0.1:1"), "6A10000000FF", rec.handle, zap.NewNop())

	c.handleMessage(nil, &fakeMessage{topic: "6A10000000FF", payload: []byte("0001T-9")})
	c.handleMessage(nil, &fakeMessage{topic: "6A10000000FF", payload: []byte("000")})
	c.handleMessage(nil, &fakeMessage{topic: "6A10000000FF", payload: []byte("0008200&1748419573519&60&&")})
	c.handleMessage(nil, &fakeMessage{topic: "6A10000000FF", payload: []byte("9999")})

	// Close drains the dispatch queue
	c.Close()

	frames := rec.all()
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3 (short message dropped)", len(frames))
	}

	want := []struct {
		command models.Command
		body    string
	}{
		{models.CommandHeartbeatAck, "T-9"},
		{models.CommandConfig, "200&1748419573519&60&&"},
		{models.CommandUnknown, ""},
	}
	for i, w := range want {
		if frames[i].Command != w.command || frames[i].Body != w.body {
			t.Errorf("frame %d = %+v, want %v %q", i, frames[i], w.command, w.body)
		}
	}

	// messages after Close are ignored rather than panicking
	c.handleMessage(nil, &fakeMessage{payload: []byte("0001x")})
}

func TestPublishWhenDisconnected(t *testing.T) {
	c := NewClient(testConfig("127.0.0.1:1"), "6A10000000FF", func(models.Frame) {}, zap.NewNop())
	defer c.Close()

	if err := c.Publish("heartbeat", "wifibssid;"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish = %v, want ErrNotConnected", err)
	}
}

func TestCloseStopsConnectRetry(t *testing.T) {
	c := NewClient(testConfig("127.0.0.1:1"), "6A10000000FF", func(models.Frame) {}, zap.NewNop())

	if err := c.Connect(context.Background(), 100*time.Millisecond); err != nil {
		t.Fatalf("Connect = %v, want nil while retrying", err)
	}
	c.Close()

	// paho reports a pending connect retry as connected
	deadline := time.Now().Add(5 * time.Second)
	for c.client.IsConnected() {
		if time.Now().After(deadline) {
			t.Fatal("client still retrying after Close")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestBrokerRoundTrip(t *testing.T) {
	// This test requires a running MQTT broker on localhost:1883
	rec := &frameRecorder{}
	c := NewClient(testConfig("localhost:1883"), "eplayer-test-device", rec.handle, zap.NewNop())
	defer c.Close()

	connected := make(chan struct{}, 1)
	c.OnConnect(func() { connected <- struct{}{} })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Connect(ctx, 2*time.Second); err != nil || !c.IsConnected() {
		t.Skipf("MQTT broker not available: %v", err)
	}

	select {
	case <-connected:
	case <-time.After(3 * time.Second):
		t.Fatal("OnConnect not called after subscription")
	}

	// publish a raw frame straight to the device topic
	token := c.client.Publish("eplayer-test-device", 1, false, []byte("0002{}"))
	token.Wait()
	if err := token.Error(); err != nil {
		t.Fatalf("raw publish: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if frames := rec.all(); len(frames) > 0 {
			if frames[0].Command != models.CommandPlaylistUpdate || frames[0].Body != "{}" {
				t.Errorf("frame = %+v", frames[0])
			}
			if err := c.Publish("get_config", ""); err != nil {
				t.Errorf("Publish: %v", err)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("frame not delivered")
}
