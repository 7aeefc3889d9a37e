package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dgnsrekt/bilivoice/internal/gradio"
	"github.com/dgnsrekt/bilivoice/internal/metrics"
	"github.com/dgnsrekt/bilivoice/internal/tts"
)

// Pipeline is the part of the TTS service the HTTP surface drives.
type Pipeline interface {
	Enqueue(text string, priority tts.Priority, key string, room int64) bool
	Health(ctx context.Context) gradio.Health
	ProbeURL(ctx context.Context, url string) gradio.Health
	QueueLengths() (predict, playback int)
}

// Server serves the HTTP API.
type Server struct {
	pipeline Pipeline
	hub      *Hub
	metrics  *metrics.Metrics
	logger   *log.Logger
	upgrader websocket.Upgrader
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithMetrics exposes m on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// New creates a server for pipeline that broadcasts through hub.
func New(pipeline Pipeline, hub *Hub, opts ...Option) *Server {
	s := &Server{
		pipeline: pipeline,
		hub:      hub,
		logger:   log.Default().WithPrefix("http"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Overlay pages are served from other origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	r.Get("/ws", s.handleWS)

	r.Route("/api/tts", func(r chi.Router) {
		r.Post("/enqueue", s.handleEnqueue)
		r.Get("/health", s.handleTTSHealth)
	})
	return r
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("Listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// Response is the envelope of API replies.
type Response struct {
	OK      bool           `json:"ok"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// EnqueueRequest is the body of POST /api/tts/enqueue.
type EnqueueRequest struct {
	Text     string `json:"text"`
	Priority string `json:"priority"`
	RoomID   int64  `json:"room_id"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, Response{Message: "invalid request body"})
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		respondJSON(w, http.StatusBadRequest, Response{Message: "text is empty"})
		return
	}

	room := req.RoomID
	if room < 0 {
		room = 0
	}
	key := strings.ReplaceAll(uuid.NewString(), "-", "")

	if !s.pipeline.Enqueue(text, tts.ParsePriority(req.Priority), key, room) {
		respondJSON(w, http.StatusOK, Response{Message: "tts disabled or queue full"})
		return
	}
	respondJSON(w, http.StatusOK, Response{OK: true, Data: map[string]any{"key": key}})
}

func (s *Server) handleTTSHealth(w http.ResponseWriter, r *http.Request) {
	var h gradio.Health
	if u := strings.TrimSpace(r.URL.Query().Get("url")); u != "" {
		h = s.pipeline.ProbeURL(r.Context(), u)
	} else {
		h = s.pipeline.Health(r.Context())
	}
	respondJSON(w, http.StatusOK, h)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	predict, playback := s.pipeline.QueueLengths()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"predict":  predict,
		"playback": playback,
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	room, err := strconv.ParseInt(r.URL.Query().Get("room"), 10, 64)
	if err != nil || room <= 0 {
		respondJSON(w, http.StatusBadRequest, Response{Message: "query parameter room must be a positive integer"})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("Websocket upgrade failed", "err", err)
		return
	}
	s.hub.serve(room, conn)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
