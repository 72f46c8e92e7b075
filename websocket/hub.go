package websocket

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"wingo/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// clients are browsers on other origins; auth happens upstream
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Snapshot supplies the state a new client sees before live events.
type Snapshot func(ctx context.Context) ([]models.Round, error)

// ServeWs upgrades the request, registers the client on the hub and queues the
// current round snapshot as its first message.
func ServeWs(h *models.Hub, snapshot Snapshot, log *zap.SugaredLogger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Infow("websocket upgrade failed", "err", err)
		return
	}

	client := &models.Client{Conn: conn, Send: make(chan models.WSMessage, 256)}

	// queued before registration so it is the first frame the client gets
	if rounds, err := snapshot(r.Context()); err != nil {
		log.Warnw("websocket snapshot failed", "err", err)
		client.Send <- models.WSMessage{Event: "error", Data: "Failed to fetch current rounds"}
	} else {
		client.Send <- models.WSMessage{Event: models.EventCurrentRound, Data: rounds}
	}

	if !h.Join(client) {
		conn.Close()
		return
	}
	go client.WritePump(h)
	go client.ReadPump(h)
}
