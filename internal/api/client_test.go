package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serverClient "github.com/bz888/gab/internal/api/server/client"
	"github.com/bz888/gab/internal/api/server/push"
	"github.com/bz888/gab/internal/coordinator"
)

// fakeGateway mimics the local gateway: a /chat route that answers with a
// task handle and a short token stream, a /cancel route, and a websocket
// /events route fed from the pushed channel.
type fakeGateway struct {
	srv    *httptest.Server
	pushed chan push.Event
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()
	gw := &fakeGateway{pushed: make(chan push.Event, 16)}

	mux := http.NewServeMux()
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		var req serverClient.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req.RequestID)

		w.Header().Set("X-Task-ID", "t1")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()

		encoder := json.NewEncoder(w)
		for _, token := range []string{"Hel", "lo"} {
			require.NoError(t, encoder.Encode(serverClient.ChatResponse{ProcessedText: token}))
			w.(http.Flusher).Flush()
		}
	})
	mux.HandleFunc("/cancel/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/cancel/t1" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		http.Error(w, "Task not found", http.StatusNotFound)
	})
	mux.HandleFunc("/models", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]string{"llama3:latest"})
	})

	upgrader := websocket.Upgrader{}
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		for event := range gw.pushed {
			data, _ := json.Marshal(event)
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	})

	gw.srv = httptest.NewServer(mux)
	t.Cleanup(func() {
		close(gw.pushed)
		gw.srv.Close()
	})
	return gw
}

func TestChatHandshakeArrivesBeforeTokens(t *testing.T) {
	Init()
	gw := newFakeGateway(t)
	c := NewClient(gw.srv.URL)

	var order []string
	err := c.Chat(context.Background(), "m1", "llama3:latest", "hi",
		func(taskHandle string) {
			assert.Equal(t, "t1", taskHandle)
			order = append(order, "handshake")
		},
		func(token string) {
			order = append(order, "token:"+token)
		})

	require.NoError(t, err)
	assert.Equal(t, []string{"handshake", "token:Hel", "token:lo"}, order)
}

func TestCancelTaskTreatsUnknownAsStale(t *testing.T) {
	Init()
	gw := newFakeGateway(t)
	c := NewClient(gw.srv.URL)

	assert.NoError(t, c.CancelTask("t1"))
	assert.NoError(t, c.CancelTask("already-gone"), "stale cancels are not failures")
}

func TestCancelTaskReportsGatewayErrors(t *testing.T) {
	Init()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL)
	assert.Error(t, c.CancelTask("t1"))
}

func TestListModels(t *testing.T) {
	Init()
	gw := newFakeGateway(t)
	c := NewClient(gw.srv.URL)

	models, err := c.ListModels()
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3:latest"}, models)
}

func TestListenEventsReleasesWatcherOnDisconnect(t *testing.T) {
	Init()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL)
	coord := coordinator.New(c, nil)

	// The outer redial loop runs with a background context; a gateway drop
	// must not strand the per-connection context watcher.
	before := runtime.NumGoroutine()
	for i := 0; i < 20; i++ {
		c.ListenEvents(context.Background(), coord)
	}

	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestListenEventsDispatchesToCoordinator(t *testing.T) {
	Init()
	gw := newFakeGateway(t)
	c := NewClient(gw.srv.URL)

	coord := coordinator.New(c, nil)
	require.NoError(t, coord.Start("m1"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := c.ListenEvents(ctx, coord); err != nil {
			fmt.Println("event listener stopped:", err)
		}
	}()

	// An unknown frame is skipped, a completion clears the active slot.
	gw.pushed <- push.Event{Event: "heartbeat", RequestID: "m1"}
	gw.pushed <- push.Event{Event: push.EventCompleted, RequestID: "m1"}

	require.Eventually(t, func() bool {
		_, ok := coord.Active()
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}
