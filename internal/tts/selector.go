package tts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/bilivoice/internal/gradio"
)

const (
	fnChangeSovits = "/change_sovits_weights"
	fnChangeGPT    = "/change_gpt_weights"
	fnInference    = "/inference"
)

// Signature is the model selection last applied on the inference server.
type Signature struct {
	BaseURL     string
	SovitsModel string
	GPTModel    string
	TextLang    string
}

// modelSelector owns the gradio client and the applied signature. It is only
// used from the predict goroutine.
type modelSelector struct {
	client   *gradio.Client
	selected *Signature
	switches int

	// transport settings the current client was built with
	timeout  time.Duration
	insecure bool

	newClient func(s *Settings) *gradio.Client
	logger    *log.Logger
	onSwitch  func()
}

// ensure returns a client whose server has s's models loaded, switching
// models only when the signature differs from the last successful selection.
// The client is rebuilt when the server URL, request timeout or TLS
// verification setting changes. On failure the client is dropped so the next
// task reconnects.
func (m *modelSelector) ensure(ctx context.Context, s *Settings) (*gradio.Client, error) {
	if strings.TrimSpace(s.ServerURL) == "" {
		return nil, ErrNotConfigured
	}

	sig := s.signature()
	if m.client == nil || strings.TrimRight(m.client.BaseURL(), "/") != sig.BaseURL ||
		m.timeout != s.RequestTimeout || m.insecure != !s.SSLVerify {
		m.reset()
		m.client = m.newClient(s)
		m.timeout, m.insecure = s.RequestTimeout, !s.SSLVerify
	}
	if m.selected != nil && *m.selected == sig {
		return m.client, nil
	}

	if _, err := m.client.Call(ctx, fnChangeSovits, s.SovitsModel, s.TextLang, s.TextLang); err != nil {
		m.reset()
		return nil, fmt.Errorf("select sovits weights: %w", err)
	}
	if _, err := m.client.Call(ctx, fnChangeGPT, s.GPTModel); err != nil {
		m.reset()
		return nil, fmt.Errorf("select gpt weights: %w", err)
	}

	m.selected = &sig
	m.switches++
	if m.onSwitch != nil {
		m.onSwitch()
	}
	m.logger.Info("Selected models", "url", sig.BaseURL, "sovits", sig.SovitsModel, "gpt", sig.GPTModel, "lang", sig.TextLang)
	return m.client, nil
}

// reset closes the client and forgets the applied signature.
func (m *modelSelector) reset() {
	if m.client != nil {
		m.client.Close()
	}
	m.client = nil
	m.selected = nil
}
