package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/dgnsrekt/bilivoice/internal/gradio"
	"github.com/dgnsrekt/bilivoice/internal/metrics"
	"github.com/dgnsrekt/bilivoice/internal/tts"
)

type enqueued struct {
	text     string
	priority tts.Priority
	key      string
	room     int64
}

type fakePipeline struct {
	mu     sync.Mutex
	accept bool
	calls  []enqueued
	health gradio.Health
	probed string
}

func (f *fakePipeline) Enqueue(text string, priority tts.Priority, key string, room int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, enqueued{text, priority, key, room})
	return f.accept
}

func (f *fakePipeline) Health(context.Context) gradio.Health { return f.health }

func (f *fakePipeline) ProbeURL(ctx context.Context, url string) gradio.Health {
	f.mu.Lock()
	f.probed = url
	f.mu.Unlock()
	return gradio.Probe(ctx, url, time.Second, true)
}

func (f *fakePipeline) QueueLengths() (int, int) { return 2, 1 }

func (f *fakePipeline) last() enqueued {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func quietLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

func newTestServer(t *testing.T, p Pipeline) (*httptest.Server, *Hub) {
	t.Helper()
	hub := NewHub(quietLogger())
	srv := New(p, hub, WithLogger(quietLogger()), WithMetrics(metrics.New()))
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})
	return ts, hub
}

func postJSON(t *testing.T, url string, body string) (int, Response) {
	t.Helper()
	res, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer res.Body.Close()
	var out Response
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return res.StatusCode, out
}

func TestEnqueue(t *testing.T) {
	p := &fakePipeline{accept: true}
	ts, _ := newTestServer(t, p)

	status, res := postJSON(t, ts.URL+"/api/tts/enqueue", `{"text":"  感谢老板的火箭  ","priority":"high","room_id":42}`)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if !res.OK {
		t.Fatalf("Expected ok response, got %+v", res)
	}
	key, _ := res.Data["key"].(string)
	if len(key) != 32 || strings.Contains(key, "-") {
		t.Errorf("Expected a 32 character hex key, got %q", key)
	}

	got := p.last()
	if got.text != "感谢老板的火箭" {
		t.Errorf("Expected trimmed text, got %q", got.text)
	}
	if got.priority != tts.PriorityHigh {
		t.Errorf("Expected high priority, got %v", got.priority)
	}
	if got.room != 42 || got.key != key {
		t.Errorf("Expected room 42 and key %q, got %d and %q", key, got.room, got.key)
	}
}

func TestEnqueueDefaultsToNormal(t *testing.T) {
	p := &fakePipeline{accept: true}
	ts, _ := newTestServer(t, p)

	postJSON(t, ts.URL+"/api/tts/enqueue", `{"text":"hello","room_id":-5}`)
	got := p.last()
	if got.priority != tts.PriorityNormal {
		t.Errorf("Expected normal priority, got %v", got.priority)
	}
	if got.room != 0 {
		t.Errorf("Expected negative room to be dropped, got %d", got.room)
	}
}

func TestEnqueueRejected(t *testing.T) {
	ts, _ := newTestServer(t, &fakePipeline{accept: false})

	status, res := postJSON(t, ts.URL+"/api/tts/enqueue", `{"text":"hello"}`)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if res.OK || res.Message == "" {
		t.Errorf("Expected a failure with message, got %+v", res)
	}
}

func TestEnqueueBadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty text", `{"text":""}`},
		{"blank text", `{"text":"   "}`},
		{"malformed", `{"text":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePipeline{accept: true}
			ts, _ := newTestServer(t, p)
			status, res := postJSON(t, ts.URL+"/api/tts/enqueue", tt.body)
			if status != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", status)
			}
			if res.OK {
				t.Error("Expected ok to be false")
			}
			if len(p.calls) != 0 {
				t.Errorf("Expected nothing enqueued, got %d calls", len(p.calls))
			}
		})
	}
}

func TestTTSHealth(t *testing.T) {
	p := &fakePipeline{health: gradio.Health{OK: true, Ready: true, URL: "http://configured/"}}
	ts, _ := newTestServer(t, p)

	res, err := http.Get(ts.URL + "/api/tts/health")
	if err != nil {
		t.Fatal(err)
	}
	var h gradio.Health
	_ = json.NewDecoder(res.Body).Decode(&h)
	res.Body.Close()
	if !h.OK || h.URL != "http://configured/" {
		t.Errorf("Expected configured health, got %+v", h)
	}

	webui := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer webui.Close()

	res, err = http.Get(ts.URL + "/api/tts/health?url=" + webui.URL)
	if err != nil {
		t.Fatal(err)
	}
	h = gradio.Health{}
	_ = json.NewDecoder(res.Body).Decode(&h)
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", res.StatusCode)
	}
	if h.OK {
		t.Errorf("Expected override url to be probed and fail, got %+v", h)
	}
	p.mu.Lock()
	probed := p.probed
	p.mu.Unlock()
	if probed != webui.URL {
		t.Errorf("Expected override url %s to reach the pipeline, got %q", webui.URL, probed)
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	ts, _ := newTestServer(t, &fakePipeline{})

	res, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]any
	_ = json.NewDecoder(res.Body).Decode(&body)
	res.Body.Close()
	if body["status"] != "ok" || body["predict"] != float64(2) || body["playback"] != float64(1) {
		t.Errorf("Unexpected healthz body: %v", body)
	}

	res, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if !strings.Contains(string(b), "go_goroutines") {
		t.Error("Expected metrics output to include runtime collectors")
	}
}

func dialRoom(t *testing.T, ts *httptest.Server, room string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?room=" + room
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", u, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitSubscribers(t *testing.T, hub *Hub, room int64, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers(room) != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d subscribers in room %d, got %d", n, room, hub.Subscribers(room))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStatusBroadcast(t *testing.T) {
	ts, hub := newTestServer(t, &fakePipeline{})

	a := dialRoom(t, ts, "7")
	other := dialRoom(t, ts, "8")
	waitSubscribers(t, hub, 7, 1)
	waitSubscribers(t, hub, 8, 1)

	hub.Publish(7, "", tts.StatusPending)
	hub.Publish(0, "k0", tts.StatusPending)
	hub.Publish(7, "k1", tts.StatusPlaying)

	_ = a.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg StatusMessage
	if err := a.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "TTS_STATUS" || msg.Key != "k1" || msg.Status != tts.StatusPlaying {
		t.Errorf("Unexpected message: %+v", msg)
	}

	_ = other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if err := other.ReadJSON(&msg); err == nil {
		t.Errorf("Expected no message for another room, got %+v", msg)
	}
}

func TestSubscriberLeaves(t *testing.T) {
	ts, hub := newTestServer(t, &fakePipeline{})

	conn := dialRoom(t, ts, "9")
	waitSubscribers(t, hub, 9, 1)
	conn.Close()
	waitSubscribers(t, hub, 9, 0)
}

func TestWSRequiresRoom(t *testing.T) {
	ts, _ := newTestServer(t, &fakePipeline{})

	for _, q := range []string{"", "?room=abc", "?room=0"} {
		res, err := http.Get(ts.URL + "/ws" + q)
		if err != nil {
			t.Fatal(err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusBadRequest {
			t.Errorf("GET /ws%s: expected 400, got %d", q, res.StatusCode)
		}
	}
}

func TestHubDropsWhenSlow(t *testing.T) {
	hub := NewHub(quietLogger())
	s := &subscriber{send: make(chan []byte, 1)}
	hub.add(3, s)

	if n := hub.Broadcast(3, StatusMessage{Key: "a"}); n != 1 {
		t.Errorf("Expected first broadcast delivered, got %d", n)
	}
	if n := hub.Broadcast(3, StatusMessage{Key: "b"}); n != 0 {
		t.Errorf("Expected second broadcast dropped, got %d", n)
	}

	hub.Close()
	if _, ok := <-s.send; !ok {
		t.Fatal("Expected buffered message before close")
	}
	if _, ok := <-s.send; ok {
		t.Error("Expected send channel closed")
	}
}
