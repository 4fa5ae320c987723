package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/notetaken-sync/internal/domain"
	"github.com/heartmarshall/notetaken-sync/internal/service/notes"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() }) //nolint:errcheck
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Clients() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	active := uuid.New()
	st := notes.State{
		Owner:        owner,
		Notes:        []domain.Note{{ID: active}, {ID: uuid.New()}},
		Tags:         []domain.Tag{{ID: uuid.New()}},
		ActiveNoteID: &active,
		Search:       "plan",
		HasMore:      true,
		Seq:          7,
	}

	s := Summarize(st)

	require.NotNil(t, s.UserID)
	assert.Equal(t, owner, *s.UserID)
	assert.Equal(t, 2, s.Notes)
	assert.Equal(t, 0, s.Folders)
	assert.Equal(t, 1, s.Tags)
	assert.Equal(t, &active, s.ActiveNoteID)
	assert.Equal(t, "plan", s.Search)
	assert.True(t, s.HasMore)
	assert.Equal(t, uint64(7), s.Seq)
}

func TestSummarize_SignedOut(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Summarize(notes.State{}).UserID)
}

func TestHub_PublishReachesClients(t *testing.T) {
	t.Parallel()

	h := NewHub(testLogger())
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer h.Close()

	a := dial(t, srv)
	b := dial(t, srv)
	waitClients(t, h, 2)

	owner := uuid.New()
	h.PublishState(notes.State{Owner: owner, Notes: []domain.Note{{ID: uuid.New()}}})

	for _, conn := range []*websocket.Conn{a, b} {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		typ, data, err := conn.Read(ctx)
		cancel()
		require.NoError(t, err)
		assert.Equal(t, websocket.MessageText, typ)

		var msg struct {
			Type      MessageType  `json:"type"`
			Timestamp time.Time    `json:"timestamp"`
			Data      StateSummary `json:"data"`
		}
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, MessageState, msg.Type)
		assert.False(t, msg.Timestamp.IsZero())
		require.NotNil(t, msg.Data.UserID)
		assert.Equal(t, owner, *msg.Data.UserID)
		assert.Equal(t, 1, msg.Data.Notes)
	}
}

func TestHub_PublishStateDropsOlderStates(t *testing.T) {
	t.Parallel()

	h := NewHub(testLogger())
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer h.Close()

	conn := dial(t, srv)
	waitClients(t, h, 1)

	h.PublishState(notes.State{Seq: 2, Search: "second"})
	h.PublishState(notes.State{Seq: 1, Search: "first"})
	h.PublishState(notes.State{Seq: 3, Search: "third"})

	var got []string
	for range 2 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, data, err := conn.Read(ctx)
		cancel()
		require.NoError(t, err)

		var msg struct {
			Data StateSummary `json:"data"`
		}
		require.NoError(t, json.Unmarshal(data, &msg))
		got = append(got, msg.Data.Search)
	}
	assert.Equal(t, []string{"second", "third"}, got)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, _, err := conn.Read(ctx)
	assert.Error(t, err, "no further message expected")
}

func TestHub_ClientDisconnect(t *testing.T) {
	t.Parallel()

	h := NewHub(testLogger())
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer h.Close()

	conn := dial(t, srv)
	waitClients(t, h, 1)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
	waitClients(t, h, 0)
}

func TestHub_PublishWithoutClients(t *testing.T) {
	t.Parallel()

	h := NewHub(testLogger())
	defer h.Close()

	assert.NotPanics(t, func() { h.Publish(Message{Type: MessageState}) })
}

func TestHub_SlowClientDoesNotBlock(t *testing.T) {
	t.Parallel()

	h := NewHub(testLogger())
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer h.Close()

	_ = dial(t, srv) // never reads
	waitClients(t, h, 1)

	done := make(chan struct{})
	go func() {
		for range clientBuffer * 4 {
			h.Publish(Message{Type: MessageState, Data: strings.Repeat("x", 64<<10)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Publish blocked on a slow client")
	}
}

func TestHub_Close(t *testing.T) {
	t.Parallel()

	h := NewHub(testLogger())
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv)
	waitClients(t, h, 1)

	h.Close()
	h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
	waitClients(t, h, 0)
}

func TestHub_RefusesAfterClose(t *testing.T) {
	t.Parallel()

	h := NewHub(testLogger())
	srv := httptest.NewServer(h)
	defer srv.Close()
	h.Close()

	conn := dial(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
	assert.Equal(t, 0, h.Clients())
}
