package gradio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultProbeTimeout bounds a health probe.
const DefaultProbeTimeout = 5 * time.Second

// Health is the outcome of a probe.
type Health struct {
	OK      bool   `json:"ok"`
	Ready   bool   `json:"ready"`
	URL     string `json:"url"`
	Message string `json:"message,omitempty"`
}

// Probe checks whether a Gradio server answers GET /config. It uses its own
// HTTP client and never touches pipeline state. insecure skips TLS
// certificate verification like WithInsecureSkipVerify. Failures are reported
// in the returned Health, never as an error.
func Probe(ctx context.Context, baseURL string, timeout time.Duration, insecure bool) Health {
	base := normalizeBase(baseURL)
	if base == "" {
		return Health{URL: baseURL, Message: "gradio server url not configured"}
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+configEndpoint, nil)
	if err != nil {
		return Health{URL: base, Message: err.Error()}
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	hc := newHTTPClient(timeout, insecure)
	defer hc.CloseIdleConnections()
	resp, err := hc.Do(req)
	if err != nil {
		return Health{URL: base, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 120))
		return Health{URL: base, Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, body)}
	}
	return Health{OK: true, Ready: true, URL: base}
}
