package tts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgnsrekt/bilivoice/internal/gradio"
)

func TestModelSelector_RebuildsClientOnTransportChange(t *testing.T) {
	ui := newFakeWebUI(t)

	var built []Settings
	sel := &modelSelector{
		logger: quietLogger(),
		newClient: func(s *Settings) *gradio.Client {
			built = append(built, *s)
			return gradio.New(s.ServerURL,
				gradio.WithTimeout(s.RequestTimeout),
				gradio.WithInsecureSkipVerify(!s.SSLVerify),
				gradio.WithLogger(quietLogger()))
		},
	}
	defer sel.reset()

	s := testSettings(ui.srv.URL)
	s.RequestTimeout = 5 * time.Second
	s.SSLVerify = true

	slower := s
	slower.RequestTimeout = 30 * time.Second

	unverified := slower
	unverified.SSLVerify = false

	tests := []struct {
		name     string
		settings Settings
		builds   int
		gptCalls int
	}{
		{"first use", s, 1, 1},
		{"same settings", s, 1, 1},
		{"request timeout changed", slower, 2, 2},
		{"ssl verify disabled", unverified, 3, 3},
		{"unchanged again", unverified, 3, 3},
	}

	for _, tc := range tests {
		c, err := sel.ensure(context.Background(), &tc.settings)
		if err != nil {
			t.Fatalf("%s: Expected no error, got %v", tc.name, err)
		}
		if c == nil {
			t.Fatalf("%s: Expected a client", tc.name)
		}
		if len(built) != tc.builds {
			t.Errorf("%s: Expected %d client builds, got %d", tc.name, tc.builds, len(built))
		}
		if got := ui.callCount(idGPT); got != tc.gptCalls {
			t.Errorf("%s: Expected %d gpt weight selections, got %d", tc.name, tc.gptCalls, got)
		}
	}

	last := built[len(built)-1]
	if last.RequestTimeout != 30*time.Second || last.SSLVerify {
		t.Errorf("Expected last client built with 30s timeout and no verification, got %v / %v",
			last.RequestTimeout, last.SSLVerify)
	}
}

func TestModelSelector_NotConfigured(t *testing.T) {
	sel := &modelSelector{logger: quietLogger()}
	s := testSettings("  ")
	if _, err := sel.ensure(context.Background(), &s); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}
}
