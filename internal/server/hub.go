package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/dgnsrekt/bilivoice/internal/tts"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 25 * time.Second
)

// StatusMessage is the payload pushed to room subscribers.
type StatusMessage struct {
	Type   string     `json:"type"`
	Key    string     `json:"tts_key"`
	Status tts.Status `json:"status"`
}

const typeTTSStatus = "TTS_STATUS"

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.send) })
}

// Hub fans messages out to the websocket subscribers of each room. Sends never
// block: a subscriber whose buffer is full misses the message.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[int64]map[*subscriber]struct{}
	logger *log.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		rooms:  make(map[int64]map[*subscriber]struct{}),
		logger: logger,
	}
}

func (h *Hub) add(room int64, s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.rooms[room]
	if !ok {
		subs = make(map[*subscriber]struct{})
		h.rooms[room] = subs
	}
	subs[s] = struct{}{}
}

func (h *Hub) remove(room int64, s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.rooms[room]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.rooms, room)
		}
	}
	s.close()
}

// Subscribers returns the number of connections listening to room.
func (h *Hub) Subscribers(room int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Broadcast sends v as JSON to every subscriber of room and returns how many
// accepted it.
func (h *Hub) Broadcast(room int64, v any) int {
	b, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("Could not encode broadcast", "room", room, "err", err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for s := range h.rooms[room] {
		select {
		case s.send <- b:
			sent++
		default:
			h.logger.Warn("Subscriber too slow, dropping message", "room", room)
		}
	}
	return sent
}

// Publish forwards a pipeline status event to the room. Events without a room
// or key are ignored. It has the shape of a tts.StatusListener.
func (h *Hub) Publish(room int64, key string, status tts.Status) {
	if room <= 0 || key == "" {
		return
	}
	h.Broadcast(room, StatusMessage{Type: typeTTSStatus, Key: key, Status: status})
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room, subs := range h.rooms {
		for s := range subs {
			s.close()
		}
		delete(h.rooms, room)
	}
}

// serve pumps messages to conn until the peer goes away or the hub drops the
// subscriber.
func (h *Hub) serve(room int64, conn *websocket.Conn) {
	s := &subscriber{conn: conn, send: make(chan []byte, sendBuffer)}
	h.add(room, s)
	h.logger.Debug("Subscriber joined", "room", room, "remote", conn.RemoteAddr())

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		conn.SetReadLimit(4 << 10)
		_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		h.remove(room, s)
		_ = conn.Close()
		<-readDone
		h.logger.Debug("Subscriber left", "room", room, "remote", conn.RemoteAddr())
	}()

	for {
		select {
		case <-readDone:
			return
		case msg, ok := <-s.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
