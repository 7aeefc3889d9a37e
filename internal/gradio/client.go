package gradio

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"
)

const (
	defaultTimeout   = 300 * time.Second
	defaultUserAgent = "bilivoice/gradio"

	configEndpoint  = "config"
	uploadEndpoint  = "upload"
	predictEndpoint = "api/predict/"

	// errorBodyLimit bounds how much of a failed response body is kept.
	errorBodyLimit = 200
)

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the total per-request timeout. Defaults to 300s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client. The timeout option is
// ignored when this is used.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithUserAgent sets the User-Agent header sent on every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithInsecureSkipVerify disables TLS certificate verification. Local WebUI
// deployments commonly use self-signed certificates.
func WithInsecureSkipVerify(skip bool) Option {
	return func(c *Client) {
		c.insecure = skip
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// Client talks to one Gradio server. It is safe for concurrent use, although
// the pipeline only drives it from a single goroutine.
type Client struct {
	baseURL   string // always ends in "/"
	timeout   time.Duration
	userAgent string
	insecure  bool
	logger    *log.Logger

	httpClient *http.Client

	mu      sync.Mutex
	fns     FunctionMap
	session string
}

// New creates a client for the server at baseURL. The connection is
// established lazily by Ensure.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   normalizeBase(baseURL),
		timeout:   defaultTimeout,
		userAgent: defaultUserAgent,
		logger:    log.Default().WithPrefix("gradio"),
	}
	for _, o := range opts {
		o(c)
	}
	if c.httpClient == nil {
		c.httpClient = newHTTPClient(c.timeout, c.insecure)
	}
	return c
}

func newHTTPClient(timeout time.Duration, insecure bool) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if insecure {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: gzhttp.Transport(tr),
	}
}

func normalizeBase(u string) string {
	u = strings.TrimSpace(u)
	if u == "" {
		return ""
	}
	if !strings.HasSuffix(u, "/") {
		u += "/"
	}
	return u
}

// BaseURL returns the normalized server URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Functions returns the current function map, or nil before Ensure.
func (c *Client) Functions() FunctionMap {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fns
}

// Ensure loads the server descriptor once per connection. It is a no-op when
// the function map is already present.
func (c *Client) Ensure(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fns != nil {
		return nil
	}
	if c.baseURL == "" {
		return ErrNotConfigured
	}

	body, err := c.get(ctx, c.baseURL+configEndpoint)
	if err != nil {
		return err
	}
	fns, err := ParseConfig(body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}

	c.fns = fns
	c.session = strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	c.logger.Debug("Loaded gradio config", "url", c.baseURL, "functions", len(fns))
	return nil
}

// Close drops the function map and idle connections. The next call
// reconnects.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fns = nil
	c.session = ""
	c.httpClient.CloseIdleConnections()
}

type predictRequest struct {
	Data        []any  `json:"data"`
	FnIndex     int    `json:"fn_index"`
	SessionHash string `json:"session_hash"`
}

type predictResponse struct {
	Data  []json.RawMessage `json:"data"`
	Error json.RawMessage   `json:"error"`
}

// Call invokes the named function with args and returns the response data
// list. FileData arguments with local paths are uploaded first.
func (c *Client) Call(ctx context.Context, name string, args ...any) ([]json.RawMessage, error) {
	if err := c.Ensure(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	idx, ok := c.fns.Lookup(name)
	session := c.session
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, name)
	}

	data, err := c.processInputs(ctx, args)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(predictRequest{Data: data, FnIndex: idx, SessionHash: session})
	if err != nil {
		return nil, fmt.Errorf("gradio: encode %s request: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+predictEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("gradio: build %s request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s response: %w", ErrConnection, name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &RemoteError{Function: name, StatusCode: resp.StatusCode, Message: truncate(string(body), errorBodyLimit)}
	}

	var pr predictResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return nil, &RemoteError{Function: name, Message: "malformed response: " + err.Error()}
	}
	if msg := errorMessage(pr.Error); msg != "" {
		return nil, &RemoteError{Function: name, Message: msg}
	}

	c.logger.Debug("Gradio call complete", "fn", name, "fn_index", idx, "outputs", len(pr.Data))
	return pr.Data, nil
}

// errorMessage renders the error field, treating null, false and "" as no
// error.
func errorMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	switch e := v.(type) {
	case nil:
		return ""
	case bool:
		if !e {
			return ""
		}
	case string:
		return e
	}
	return string(raw)
}

func (c *Client) processInputs(ctx context.Context, args []any) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		var fd FileData
		switch v := a.(type) {
		case FileData:
			fd = v
		case *FileData:
			if v == nil {
				out[i] = nil
				continue
			}
			fd = *v
		default:
			out[i] = a
			continue
		}

		if fd.Path == "" || fd.IsRemote() {
			out[i] = fd
			continue
		}

		remote, err := c.upload(ctx, fd.Path)
		if err != nil {
			return nil, err
		}
		orig := fd.OrigName
		if orig == "" {
			orig = filepath.Base(fd.Path)
		}
		out[i] = FileData{Path: remote, OrigName: orig, Meta: FileMeta{Type: fileDataType}}
	}
	return out, nil
}

// upload posts a local file as multipart field "files" and returns the first
// server-side path of the response list.
func (c *Client) upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("gradio: open upload %s: %w", path, err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("gradio: create form file: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return "", fmt.Errorf("gradio: write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("gradio: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadEndpoint, &body)
	if err != nil {
		return "", fmt.Errorf("gradio: build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return "", &RemoteError{Function: uploadEndpoint, StatusCode: resp.StatusCode, Message: string(msg)}
	}

	var paths []string
	if err := json.NewDecoder(resp.Body).Decode(&paths); err != nil {
		return "", &RemoteError{Function: uploadEndpoint, Message: "malformed response: " + err.Error()}
	}
	if len(paths) == 0 {
		return "", &RemoteError{Function: uploadEndpoint, Message: "empty response"}
	}

	c.logger.Debug("Uploaded file", "local", path, "remote", paths[0])
	return paths[0], nil
}

// Download fetches an artifact produced by a previous call. Relative URLs are
// resolved against the base URL.
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, error) {
	target, err := c.resolve(rawURL)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, target)
}

func (c *Client) resolve(rawURL string) (string, error) {
	ref, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("gradio: parse url %q: %w", rawURL, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("gradio: parse base url: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrConnection, err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrConnection, target, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: GET %s returned status %d: %s", ErrConnection, target, resp.StatusCode, truncate(string(body), errorBodyLimit))
	}
	return body, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrConnection, req.Method, req.URL.Path, err)
	}
	return resp, nil
}
