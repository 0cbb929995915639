package realtime

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// subscribers authenticate with a token, not by origin
	CheckOrigin: func(*http.Request) bool { return true },
}

// ServeWS upgrades the request and streams channel until the client goes
// away. It blocks for the lifetime of the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, channel string, log *slog.Logger) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := h.Subscribe(channel)
	defer sub.Close()

	log = log.With("channel", channel)
	log.Debug("ws subscribed")

	go readPump(conn, sub)
	writePump(conn, sub, log)

	log.Debug("ws closed")
	return nil
}

// readPump discards client frames and keeps the read deadline fresh. Any read
// error ends the subscription.
func readPump(conn *websocket.Conn, sub *Subscription) {
	defer sub.Close()
	conn.SetReadLimit(maxInboundSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(conn *websocket.Conn, sub *Subscription, log *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-sub.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "subscription closed"))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg.Payload); err != nil {
				log.Debug("ws write failed", "err", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
