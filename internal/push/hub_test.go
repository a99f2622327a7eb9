package push

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bobbyrathoree/macscope/internal/domain"
	"github.com/bobbyrathoree/macscope/internal/store"
)

// wireFrame mirrors what a real client sees: {type, data}, with data left
// raw until the caller knows which shape to expect from type.
type wireFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func TestHubSendsInitialSnapshotThenDelta(t *testing.T) {
	st := store.New()
	st.Commit([]domain.Process{{PID: 1, Name: "launchd"}})

	hub := NewHub(st, zap.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var f wireFrame
	require.NoError(t, json.Unmarshal(msg, &f))
	assert.Equal(t, "initial", f.Type)

	var procs []map[string]any
	require.NoError(t, json.Unmarshal(f.Data, &procs))
	require.Len(t, procs, 1)
	assert.Equal(t, float64(1), procs[0]["pid"])
	assert.Equal(t, "launchd", procs[0]["name"])
	assert.Equal(t, "LOW", procs[0]["level"])

	st.Commit([]domain.Process{{PID: 1, Name: "launchd"}, {PID: 2, Name: "Finder"}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg2, err := conn.ReadMessage()
	require.NoError(t, err)

	var f2 wireFrame
	require.NoError(t, json.Unmarshal(msg2, &f2))
	assert.Equal(t, "delta", f2.Type)

	var delta struct {
		Added   []map[string]any `json:"added"`
		Updated []map[string]any `json:"updated"`
		Removed []int            `json:"removed"`
	}
	require.NoError(t, json.Unmarshal(f2.Data, &delta))
	require.Len(t, delta.Added, 1)
	assert.Equal(t, float64(2), delta.Added[0]["pid"])
}

func TestHubRejectsOverCapacity(t *testing.T) {
	hub := NewHub(store.New(), zap.NewNop())
	for i := 0; i < MaxConnections; i++ {
		hub.conns[string(rune(i))] = nil
	}

	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)

	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok)
	assert.Equal(t, closeTooManyConnections, closeErr.Code)
}

func TestHubShutdownClosesLiveConnections(t *testing.T) {
	hub := NewHub(store.New(), zap.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage() // drain the initial frame
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	hub.Shutdown(ctx)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok)
	assert.Equal(t, websocket.CloseGoingAway, closeErr.Code)
}
