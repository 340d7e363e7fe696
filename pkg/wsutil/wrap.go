// Package wsutil adapts a gorilla websocket to the io.Writer the pubsub
// subscribers expect, with ping/pong keepalive.
package wsutil

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait   = 40 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 5 * time.Second
)

type WsWrap struct {
	*websocket.Conn
}

// Write sends b as one text message. WriteControl in Ping may run
// concurrently; gorilla permits that.
func (ws WsWrap) Write(b []byte) (int, error) {
	if err := ws.Conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Ping keeps the connection alive until done closes or a ping cannot be
// written. A peer that stops answering trips the read deadline and the
// reader loop tears the connection down.
func (ws WsWrap) Ping(done <-chan struct{}) {
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error { return ws.SetReadDeadline(time.Now().Add(pongWait)) })
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if ws.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)) != nil {
				return
			}
		case <-done:
			return
		}
	}
}
