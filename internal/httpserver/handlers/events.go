package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrSnakeDoc/hometab/internal/events"
	"github.com/MrSnakeDoc/hometab/internal/httpserver/deps"
	"github.com/MrSnakeDoc/hometab/internal/logger"
)

const (
	eventBuffer       = 64
	eventWriteTimeout = 5 * time.Second
)

// Events streams bus events to a browser over a WebSocket. A client that
// falls behind by more than eventBuffer events is disconnected.
func Events(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: d.AllowedHosts,
		})
		if err != nil {
			d.Logger.Warn("websocket accept failed",
				logger.String("remote_ip", r.RemoteAddr),
				logger.Error(err))
			return
		}
		defer func() { _ = conn.CloseNow() }()

		queue := make(chan events.Event, eventBuffer)
		overflow := make(chan struct{})
		var dropOnce sync.Once
		unsubscribe := d.Bus.Subscribe(func(ev events.Event) {
			select {
			case queue <- ev:
			default:
				dropOnce.Do(func() { close(overflow) })
			}
		})
		defer unsubscribe()

		// Only control frames are expected from the browser.
		ctx := conn.CloseRead(r.Context())

		hello := events.Event{
			Type:    events.SyncStatusChanged,
			UserID:  userIDOf(d),
			At:      time.Now(),
			Payload: d.Session.Status(),
		}
		if err := writeEvent(ctx, conn, hello); err != nil {
			return
		}

		d.Logger.Debug("event stream opened", logger.String("remote_ip", r.RemoteAddr))
		for {
			select {
			case <-ctx.Done():
				d.Logger.Debug("event stream closed", logger.String("remote_ip", r.RemoteAddr))
				return
			case <-overflow:
				d.Logger.Warn("event stream too slow, dropping client", logger.String("remote_ip", r.RemoteAddr))
				_ = conn.Close(websocket.StatusPolicyViolation, "client too slow")
				return
			case ev := <-queue:
				if err := writeEvent(ctx, conn, ev); err != nil {
					return
				}
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev events.Event) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}

func userIDOf(d deps.Deps) string {
	if u := d.Session.User(); u != nil {
		return u.ID
	}
	return ""
}
