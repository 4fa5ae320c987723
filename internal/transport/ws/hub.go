// Package ws pushes entity store changes to local websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/heartmarshall/notetaken-sync/internal/service/notes"
)

const (
	// clientBuffer is the number of messages queued per client before new
	// ones are dropped for it.
	clientBuffer = 16
	writeTimeout = 5 * time.Second
)

// MessageType names a hub message.
type MessageType string

const (
	MessageState MessageType = "state"
)

// Message is one frame sent to clients.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data,omitempty"`
}

// StateSummary is the state pushed on every store change. Clients fetch the
// notes themselves.
type StateSummary struct {
	Seq           uint64     `json:"seq"`
	UserID        *uuid.UUID `json:"user_id"`
	Notes         int        `json:"notes"`
	Folders       int        `json:"folders"`
	Tags          int        `json:"tags"`
	ActiveNoteID  *uuid.UUID `json:"active_note_id"`
	SelectedTagID *uuid.UUID `json:"selected_tag_id"`
	Search        string     `json:"search"`
	Loading       bool       `json:"loading"`
	HasMore       bool       `json:"has_more"`
}

// Summarize reduces a store state to a StateSummary.
func Summarize(st notes.State) StateSummary {
	s := StateSummary{
		Seq:           st.Seq,
		Notes:         len(st.Notes),
		Folders:       len(st.Folders),
		Tags:          len(st.Tags),
		ActiveNoteID:  st.ActiveNoteID,
		SelectedTagID: st.SelectedTagID,
		Search:        st.Search,
		Loading:       st.Loading,
		HasMore:       st.HasMore,
	}
	if st.Owner != uuid.Nil {
		owner := st.Owner
		s.UserID = &owner
	}
	return s
}

type client struct {
	send chan []byte
}

// Hub fans messages out to connected clients. A slow client loses messages
// instead of slowing the others down.
type Hub struct {
	log *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	lastSeq uint64
	closed  bool
	done    chan struct{}
}

// NewHub creates an empty Hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:     log.With("component", "ws_hub"),
		clients: make(map[*client]struct{}),
		done:    make(chan struct{}),
	}
}

// PublishState broadcasts a summary of st. A state older than one already
// broadcast is dropped, so clients never see the store go backwards.
func (h *Hub) PublishState(st notes.State) {
	data, ok := h.encode(Message{Type: MessageState, Data: Summarize(st)})
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if st.Seq != 0 {
		if st.Seq <= h.lastSeq {
			return
		}
		h.lastSeq = st.Seq
	}
	h.broadcastLocked(data)
}

// Publish broadcasts msg to every client without blocking.
func (h *Hub) Publish(msg Message) {
	data, ok := h.encode(msg)
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastLocked(data)
}

func (h *Hub) encode(msg Message) ([]byte, bool) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("marshal message", slog.String("error", err.Error()))
		return nil, false
	}
	return data, true
}

func (h *Hub) broadcastLocked(data []byte) {
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Warn("client buffer full, dropping message")
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client. Later connections are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.done)
}

// ServeHTTP upgrades the request and streams messages until the client
// goes away or the hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		h.log.WarnContext(r.Context(), "websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow() //nolint:errcheck

	c := &client{send: make(chan []byte, clientBuffer)}
	if !h.add(c) {
		conn.Close(websocket.StatusGoingAway, "server shutting down") //nolint:errcheck
		return
	}
	defer h.remove(c)

	// Clients only listen; CloseRead handles control frames and cancels ctx
	// when the peer closes.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			conn.Close(websocket.StatusGoingAway, "server shutting down") //nolint:errcheck
			return
		case data := <-c.send:
			if err := write(ctx, conn, data); err != nil {
				if !errors.Is(err, context.Canceled) {
					h.log.Debug("websocket write failed", slog.String("error", err.Error()))
				}
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.log.Debug("client connected", slog.Int("clients", len(h.clients)))
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	h.log.Debug("client disconnected", slog.Int("clients", len(h.clients)))
}
