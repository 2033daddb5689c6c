package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"autocare/internal/events"
	"autocare/internal/models"
)

const (
	eventsWriteWait  = 10 * time.Second
	eventsPongWait   = 60 * time.Second
	eventsPingPeriod = eventsPongWait * 9 / 10
)

// Events streams session-change events for the caller's session over a
// websocket. The stream ends after this session is signed out.
func (h HandlerSet) Events(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	sessionID := principal.Claims.SessionID
	log := h.log.With().Str("user_id", principal.User.ID).Str("session_id", sessionID).Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := h.events.Subscribe(ctx, principal.User.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer stream.Close()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	log.Debug().Msg("event stream opened")

	go readUntilClosed(conn, cancel)

	ping := time.NewTicker(eventsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("event stream closed by client")
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventsWriteWait)); err != nil {
				return
			}
		case msg, ok := <-stream.Messages():
			if !ok {
				return
			}
			if !events.Relevant(msg, sessionID) {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Msg("event write failed")
				return
			}
			if msg.Event == models.EventSignedOut {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "signed out"),
					time.Now().Add(eventsWriteWait))
				return
			}
		}
	}
}

// readUntilClosed drains client frames so pongs and close frames are seen,
// and cancels once the connection goes away.
func readUntilClosed(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(eventsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(eventsPongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}
