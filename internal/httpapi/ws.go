package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin policy is delegated to the CORS configuration; local GUI
	// clients connect from app origins the daemon cannot enumerate.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// eventsHandler upgrades to WebSocket and streams watchdog events as JSON
// until the client disconnects or the daemon shuts down.
func eventsHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the error response.
			return
		}
		events, unsubscribe := svc.Subscribe()
		wsSubscribers.Inc()
		lvl := requestLogLevel(r)
		if lvl >= LevelDebug && zlog != nil {
			zlog.Debug().Str("remote", r.RemoteAddr).Msg("event subscriber connected")
		}

		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer func() {
			cancel()
			unsubscribe()
			wsSubscribers.Dec()
			_ = conn.Close()
		}()

		// Reader goroutine: surface client close, drop everything else.
		clientGone := make(chan struct{})
		go func() {
			defer close(clientGone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(wsPingPeriod)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(wsWriteWait))
				return
			case <-clientGone:
				return
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			case ev, ok := <-events:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(ev); err != nil {
					if lvl >= LevelDebug && zlog != nil {
						zlog.Debug().Err(err).Msg("event subscriber write failed")
					}
					return
				}
			}
		}
	}
}
