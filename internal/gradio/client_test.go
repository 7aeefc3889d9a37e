package gradio

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

const testConfig = `{
	"dependencies": [
		{"id": 3, "api_name": "change_sovits_weights"},
		{"id": 4, "api_name": "/change_gpt_weights"},
		{"api_name": null},
		{"id": 9, "api_name": " /inference "}
	]
}`

// fakeServer records predict requests and answers with a fixed data list.
type fakeServer struct {
	mu       sync.Mutex
	requests []predictRequest
	uploads  []string
	configs  int

	predictStatus int
	predictBody   string
}

func (f *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/config", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.configs++
		f.mu.Unlock()
		w.Write([]byte(testConfig))
	})
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("files")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		f.mu.Lock()
		f.uploads = append(f.uploads, header.Filename+":"+string(data))
		f.mu.Unlock()
		w.Write([]byte(`["/tmp/gradio/abc/` + header.Filename + `"]`))
	})
	mux.HandleFunc("/api/predict/", func(w http.ResponseWriter, r *http.Request) {
		var req predictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.requests = append(f.requests, req)
		status, body := f.predictStatus, f.predictBody
		f.mu.Unlock()
		if status == 0 {
			status = http.StatusOK
		}
		if body == "" {
			body = `{"data": ["ok"]}`
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	})
	mux.HandleFunc("/file=/tmp/out.wav", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("RIFFDATA"))
	})
	return mux
}

func (f *fakeServer) snapshot() (reqs []predictRequest, uploads []string, configs int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]predictRequest(nil), f.requests...), append([]string(nil), f.uploads...), f.configs
}

func (f *fakeServer) respond(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.predictStatus, f.predictBody = status, body
}

func newTestClient(t *testing.T) (*Client, *fakeServer) {
	t.Helper()
	fs := &fakeServer{}
	srv := httptest.NewServer(fs.handler())
	t.Cleanup(srv.Close)
	c := New(srv.URL)
	t.Cleanup(c.Close)
	return c, fs
}

func TestParseConfig(t *testing.T) {
	fm, err := ParseConfig([]byte(testConfig))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}

	tests := []struct {
		name   string
		lookup string
		want   int
		found  bool
	}{
		{"plain name", "change_sovits_weights", 3, true},
		{"leading slash in config", "change_gpt_weights", 4, true},
		{"leading slash in lookup", "/change_sovits_weights", 3, true},
		{"spaces in config", "inference", 9, true},
		{"missing", "nope", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := fm.Lookup(tt.lookup)
			if ok != tt.found || got != tt.want {
				t.Errorf("Lookup(%q) = %d, %v; want %d, %v", tt.lookup, got, ok, tt.want, tt.found)
			}
		})
	}

	if len(fm.Names()) != 3 {
		t.Errorf("Expected 3 names, got %v", fm.Names())
	}
}

func TestParseConfig_IDFallsBackToPosition(t *testing.T) {
	fm, err := ParseConfig([]byte(`{"dependencies":[{"api_name":"a"},{"api_name":"b"}]}`))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	if idx, _ := fm.Lookup("b"); idx != 1 {
		t.Errorf("Expected positional index 1, got %d", idx)
	}
}

func TestClient_CallResolvesFunctionIndex(t *testing.T) {
	c, fs := newTestClient(t)

	data, err := c.Call(context.Background(), "/change_gpt_weights", "gpt.ckpt")
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if len(data) != 1 || string(data[0]) != `"ok"` {
		t.Errorf("Unexpected data: %s", data)
	}

	reqs, _, _ := fs.snapshot()
	if len(reqs) != 1 {
		t.Fatalf("Expected 1 predict request, got %d", len(reqs))
	}
	req := reqs[0]
	if req.FnIndex != 4 {
		t.Errorf("Expected fn_index 4, got %d", req.FnIndex)
	}
	if req.SessionHash == "" {
		t.Error("Expected a session hash")
	}
	if len(req.Data) != 1 || req.Data[0] != "gpt.ckpt" {
		t.Errorf("Unexpected data sent: %v", req.Data)
	}
}

func TestClient_EnsureIsIdempotent(t *testing.T) {
	c, fs := newTestClient(t)
	ctx := context.Background()

	for range 3 {
		if _, err := c.Call(ctx, "inference"); err != nil {
			t.Fatalf("Call failed: %v", err)
		}
	}
	if _, _, configs := fs.snapshot(); configs != 1 {
		t.Errorf("Expected config to be fetched once, got %d", configs)
	}

	c.Close()
	if c.Functions() != nil {
		t.Error("Expected Close to drop the function map")
	}
	if _, err := c.Call(ctx, "inference"); err != nil {
		t.Fatalf("Call after Close failed: %v", err)
	}
	if _, _, configs := fs.snapshot(); configs != 2 {
		t.Errorf("Expected config to be refetched after Close, got %d", configs)
	}
}

func TestClient_UnknownFunction(t *testing.T) {
	c, fs := newTestClient(t)

	_, err := c.Call(context.Background(), "/does_not_exist")
	if !errors.Is(err, ErrUnknownFunction) {
		t.Errorf("Expected ErrUnknownFunction, got %v", err)
	}
	if reqs, _, _ := fs.snapshot(); len(reqs) != 0 {
		t.Errorf("Expected no predict request, got %d", len(reqs))
	}
}

func TestClient_RemoteErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantMsg    string
	}{
		{"non-200", http.StatusInternalServerError, "boom", 500, "boom"},
		{"error field", http.StatusOK, `{"data": null, "error": "CUDA out of memory"}`, 0, "CUDA out of memory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fs := newTestClient(t)
			fs.respond(tt.status, tt.body)

			_, err := c.Call(context.Background(), "inference")
			var re *RemoteError
			if !errors.As(err, &re) {
				t.Fatalf("Expected RemoteError, got %v", err)
			}
			if re.StatusCode != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, re.StatusCode)
			}
			if !strings.Contains(re.Message, tt.wantMsg) {
				t.Errorf("Expected message containing %q, got %q", tt.wantMsg, re.Message)
			}
		})
	}
}

func TestClient_NullErrorFieldIsSuccess(t *testing.T) {
	c, fs := newTestClient(t)
	fs.respond(0, `{"data": [1], "error": null}`)

	if _, err := c.Call(context.Background(), "inference"); err != nil {
		t.Errorf("Expected success, got %v", err)
	}
}

func TestClient_UploadsLocalFiles(t *testing.T) {
	c, fs := newTestClient(t)

	path := filepath.Join(t.TempDir(), "ref.wav")
	if err := os.WriteFile(path, []byte("voice"), 0o644); err != nil {
		t.Fatal(err)
	}

	remote := FileData{Path: "https://example.com/x.wav", Meta: FileMeta{Type: fileDataType}}
	_, err := c.Call(context.Background(), "inference", "text", LocalFile(path), remote, nil)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	reqs, uploads, _ := fs.snapshot()
	if len(uploads) != 1 || uploads[0] != "ref.wav:voice" {
		t.Fatalf("Expected one upload of ref.wav, got %v", uploads)
	}

	sent := reqs[0].Data
	if len(sent) != 4 {
		t.Fatalf("Expected 4 args, got %d", len(sent))
	}
	local, ok := sent[1].(map[string]any)
	if !ok {
		t.Fatalf("Expected object for file arg, got %T", sent[1])
	}
	if local["path"] != "/tmp/gradio/abc/ref.wav" {
		t.Errorf("Expected uploaded path, got %v", local["path"])
	}
	if local["orig_name"] != "ref.wav" {
		t.Errorf("Expected orig_name ref.wav, got %v", local["orig_name"])
	}
	if meta, _ := local["meta"].(map[string]any); meta["_type"] != "gradio.FileData" {
		t.Errorf("Expected FileData meta, got %v", local["meta"])
	}
	if r, _ := sent[2].(map[string]any); r["path"] != remote.Path {
		t.Errorf("Expected remote path untouched, got %v", sent[2])
	}
	if sent[3] != nil {
		t.Errorf("Expected nil arg to pass through, got %v", sent[3])
	}
}

func TestClient_ConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url)
	err := c.Ensure(context.Background())
	if !errors.Is(err, ErrConnection) {
		t.Errorf("Expected ErrConnection, got %v", err)
	}
}

func TestClient_NotConfigured(t *testing.T) {
	c := New("  ")
	if err := c.Ensure(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}
}

func TestClient_DownloadResolvesRelativeURL(t *testing.T) {
	c, _ := newTestClient(t)

	for _, u := range []string{"/file=/tmp/out.wav", c.BaseURL() + "file=/tmp/out.wav"} {
		data, err := c.Download(context.Background(), u)
		if err != nil {
			t.Fatalf("Download(%q) failed: %v", u, err)
		}
		if string(data) != "RIFFDATA" {
			t.Errorf("Unexpected body %q", data)
		}
	}
}
