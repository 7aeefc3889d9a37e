package tts

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-runewidth"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/bilivoice/internal/audio"
	"github.com/dgnsrekt/bilivoice/internal/gradio"
	"github.com/dgnsrekt/bilivoice/internal/metrics"
	"github.com/dgnsrekt/bilivoice/internal/queue"
)

const (
	defaultSelectBackoff = 2 * time.Second
	defaultErrorBackoff  = time.Second

	// logTextWidth bounds announcement text in log lines, in terminal cells.
	logTextWidth = 48
)

// snapshot is an immutable view of the settings together with the text
// transform compiled from them.
type snapshot struct {
	Settings
	transform textTransform
}

// Option configures a Service.
type Option func(*Service)

// WithRenderer replaces the default device-then-ffplay renderer chain.
func WithRenderer(r audio.Renderer) Option {
	return func(s *Service) {
		s.renderer = r
	}
}

// WithMetrics sets the instruments the service reports to.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger sets the service logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithBackoff sets the pause after a failed model selection and after any
// other failed task.
func WithBackoff(selection, failure time.Duration) Option {
	return func(s *Service) {
		s.selectBackoff = selection
		s.errorBackoff = failure
	}
}

// WithHTTPClient makes every gradio client use hc.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Service) {
		s.httpClient = hc
	}
}

// Service wires the predict and playback stages together.
type Service struct {
	snap atomic.Pointer[snapshot]

	predictQ *queue.Queue[Task]
	playQ    *queue.Queue[Clip]

	renderer   audio.Renderer
	metrics    *metrics.Metrics
	logger     *log.Logger
	httpClient *http.Client

	selectBackoff time.Duration
	errorBackoff  time.Duration

	// outage throttles repeated connection warnings while the server is down.
	outage rate.Sometimes

	listenerMu sync.RWMutex
	listener   StatusListener

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a service with the given settings. Workers are not running
// until Start is called.
func New(settings Settings, opts ...Option) (*Service, error) {
	s := &Service{
		logger:        log.Default().WithPrefix("tts"),
		selectBackoff: defaultSelectBackoff,
		errorBackoff:  defaultErrorBackoff,
		outage:        rate.Sometimes{First: 1, Interval: time.Minute},
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}

	snap, err := s.compile(settings)
	if err != nil {
		return nil, err
	}
	s.snap.Store(snap)

	if s.renderer == nil {
		s.renderer = audio.NewFallback(s.logger.WithPrefix("playback"),
			audio.NewDeviceRenderer(snap.OutputSampleRate),
			audio.NewCommandRenderer(snap.FallbackPlayer),
		)
	}

	s.predictQ = queue.New[Task](snap.MaxQueueSize)
	s.playQ = queue.New[Clip](snap.MaxQueueSize)

	s.predictQ.SetAdmitHandler(func(t Task, p queue.Priority) {
		s.metrics.Enqueued.WithLabelValues(p.String()).Inc()
		s.emit(t, StatusPending)
	})
	s.predictQ.SetEvictHandler(func(t Task, _ queue.Priority) {
		s.metrics.Evicted.WithLabelValues("predict").Inc()
		s.logger.Info("Evicted pending text", "text", shorten(t.Text), "key", t.Key)
		s.emit(t, StatusCancelled)
	})
	s.playQ.SetEvictHandler(func(c Clip, _ queue.Priority) {
		s.metrics.Evicted.WithLabelValues("playback").Inc()
		s.logger.Info("Evicted pending clip", "text", shorten(c.Task.Text), "key", c.Task.Key)
		s.emit(c.Task, StatusCancelled)
	})

	return s, nil
}

func (s *Service) compile(settings Settings) (*snapshot, error) {
	settings.Normalize()
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	rules := append([]ReplacementRule(nil), settings.ReplacementRules...)
	settings.ReplacementRules = rules
	return &snapshot{
		Settings: settings,
		transform: textTransform{
			normalizeWidth: settings.NormalizeWidth,
			rules:          compileRules(rules, s.logger),
		},
	}, nil
}

// Start launches the predict and playback workers. They run until ctx is
// done or Close is called. Calling Start more than once has no effect.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServiceClosed
	}
	if s.started {
		return nil
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(2)
	go s.predictLoop(ctx)
	go s.playbackLoop(ctx)

	s.logger.Info("TTS service started", "url", s.Settings().ServerURL, "max_queue", s.Settings().MaxQueueSize)
	return nil
}

// Close stops both workers and waits for them. An in-flight inference is
// abandoned; an in-flight render is interrupted.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.predictQ.Close()
	s.playQ.Close()
	s.wg.Wait()

	s.logger.Info("TTS service stopped")
	return nil
}

// Enqueue submits text for synthesis and reports whether it was admitted.
// It returns false when TTS is disabled, when the text is blank after the
// replacement rules, or when a normal-priority text meets a full queue.
func (s *Service) Enqueue(text string, priority Priority, key string, room int64) bool {
	snap := s.snap.Load()
	if !snap.Enabled {
		return false
	}

	text = snap.transform.apply(text)
	if strings.TrimSpace(text) == "" {
		return false
	}

	s.predictQ.SetCapacity(snap.MaxQueueSize)
	s.playQ.SetCapacity(snap.MaxQueueSize)

	task := Task{Text: text, Priority: priority, Key: key, Room: room}
	if !s.predictQ.Push(task, priority) {
		s.metrics.Rejected.WithLabelValues("predict").Inc()
		s.logger.Debug("Predict queue full, rejected text", "text", shorten(text), "priority", priority)
		return false
	}
	s.updateDepth()
	return true
}

// UpdateSettings validates settings and swaps them in atomically. Workers pick
// up the new snapshot at the start of their next task. On error the current
// settings stay in effect.
func (s *Service) UpdateSettings(settings Settings) error {
	snap, err := s.compile(settings)
	if err != nil {
		return err
	}
	s.snap.Store(snap)
	s.logger.Debug("Settings updated", "url", snap.ServerURL, "enabled", snap.Enabled, "rules", len(snap.transform.rules))
	return nil
}

// Settings returns a copy of the current settings.
func (s *Service) Settings() Settings {
	settings := s.snap.Load().Settings
	settings.ReplacementRules = append([]ReplacementRule(nil), settings.ReplacementRules...)
	return settings
}

// SetStatusListener registers fn for status events, replacing any previous
// listener. A nil fn unregisters. See StatusListener for the calls fn must
// not make.
func (s *Service) SetStatusListener(fn StatusListener) {
	s.listenerMu.Lock()
	s.listener = fn
	s.listenerMu.Unlock()
}

// Health probes the configured inference server.
func (s *Service) Health(ctx context.Context) gradio.Health {
	return s.ProbeURL(ctx, s.snap.Load().ServerURL)
}

// ProbeURL probes the inference server at url with the current TLS settings.
// It is used to test a URL before it is saved.
func (s *Service) ProbeURL(ctx context.Context, url string) gradio.Health {
	return gradio.Probe(ctx, url, gradio.DefaultProbeTimeout, !s.snap.Load().SSLVerify)
}

// QueueLengths reports the occupancy of the predict and playback queues.
func (s *Service) QueueLengths() (predict, playback int) {
	return s.predictQ.Len(), s.playQ.Len()
}

// Metrics returns the instruments the service reports to.
func (s *Service) Metrics() *metrics.Metrics {
	return s.metrics
}

// emit delivers a status event to the listener for every task, keyed or not.
// Consumers that need a key or room filter for themselves. Listener panics
// are logged and swallowed.
func (s *Service) emit(t Task, status Status) {
	s.metrics.Statuses.WithLabelValues(string(status)).Inc()
	s.logger.Debug("TTS status", "room", t.Room, "key", t.Key, "status", status)

	s.listenerMu.RLock()
	fn := s.listener
	s.listenerMu.RUnlock()
	if fn == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Status listener panicked", "key", t.Key, "status", status, "panic", r)
		}
	}()
	fn(t.Room, t.Key, status)
}

func (s *Service) updateDepth() {
	s.metrics.QueueDepth.WithLabelValues("predict").Set(float64(s.predictQ.Len()))
	s.metrics.QueueDepth.WithLabelValues("playback").Set(float64(s.playQ.Len()))
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// shorten truncates text to a fixed display width for log lines.
func shorten(text string) string {
	return runewidth.Truncate(text, logTextWidth, "…")
}
