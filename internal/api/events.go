package api

import (
	"context"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/bz888/gab/internal/api/server/push"
	"github.com/bz888/gab/internal/coordinator"
)

// ListenEvents connects to the gateway's push channel and feeds every frame
// into the coordinator until ctx is canceled or the connection drops. Frames
// with an unknown event name are logged and skipped.
func (c *Client) ListenEvents(ctx context.Context, coord *coordinator.Coordinator) error {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/events"

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Redial loops call this with a long-lived context, so the watcher must
	// not outlive the connection it guards.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var event push.Event
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		dispatch(coord, event)
	}
}

func dispatch(coord *coordinator.Coordinator, event push.Event) {
	id := coordinator.RequestID(event.RequestID)
	switch event.Event {
	case push.EventCanceled:
		coord.OnPushCanceled(id)
	case push.EventStreamError:
		coord.OnPushStreamError(id)
	case push.EventCompleted:
		coord.OnCompletionFinished(id)
	case push.EventCompletionError:
		coord.OnCompletionFailed(id)
	default:
		localLogger.Warn("Unknown push event: ", event.Event)
	}
}
