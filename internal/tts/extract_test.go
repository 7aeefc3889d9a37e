package tts

import (
	"encoding/json"
	"errors"
	"testing"
)

func rawList(t *testing.T, s string) []json.RawMessage {
	t.Helper()
	var out []json.RawMessage
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		t.Fatalf("bad fixture %s: %v", s, err)
	}
	return out
}

func TestExtractAudioURL(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    string
		wantErr bool
	}{
		{
			name: "file object",
			data: `[{"path": "/tmp/a.wav", "url": "http://h/file=/tmp/a.wav"}, 7]`,
			want: "http://h/file=/tmp/a.wav",
		},
		{
			name: "nested list",
			data: `[[["skip", ["path"], "x"], ["audio", ["url", "extra"], "/file=b.wav"]]]`,
			want: "/file=b.wav",
		},
		{
			name: "nested list with short entries",
			data: `[[["a"], "b", ["c", ["url"], "/file=c.wav"]]]`,
			want: "/file=c.wav",
		},
		{name: "object without url", data: `[{"path": "/tmp/a.wav"}]`, wantErr: true},
		{name: "null first", data: `[null]`, wantErr: true},
		{name: "string first", data: `["/tmp/a.wav"]`, wantErr: true},
		{name: "no url tag", data: `[[["a", ["path"], "/x"]]]`, wantErr: true},
		{name: "empty", data: `[]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractAudioURL(rawList(t, tt.data))
			if tt.wantErr {
				if !errors.Is(err, ErrDecode) {
					t.Errorf("Expected ErrDecode, got %v (url %q)", err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("extractAudioURL failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}
