package models

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Round events pushed to websocket clients.
const (
	EventRoundOpened  = "round_opened"
	EventRoundLocked  = "round_locked"
	EventRoundSettled = "round_settled"
	EventCurrentRound = "current_rounds"
)

type WSMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type Client struct {
	Conn *websocket.Conn
	Send chan WSMessage
}

type Hub struct {
	Clients    map[*Client]bool
	Broadcast  chan WSMessage
	Register   chan *Client
	Unregister chan *Client
	Mutex      sync.Mutex
	log        *zap.SugaredLogger

	// stopped is closed when Run returns.
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewHub initializes and returns a new Hub
func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		Clients:    make(map[*Client]bool),
		Broadcast:  make(chan WSMessage, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		log:        log,
		stopped:    make(chan struct{}),
	}
}

// Join registers c. It reports false once the hub has stopped.
func (h *Hub) Join(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.stopped:
		return false
	}
}

// Leave unregisters c. It returns immediately once the hub has stopped.
func (h *Hub) Leave(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.stopped:
	}
}

// Stopped is closed when Run has returned.
func (h *Hub) Stopped() <-chan struct{} { return h.stopped }

// shutdown closes every client's Send channel so its WritePump exits and
// closes the connection.
func (h *Hub) shutdown() {
	h.stopOnce.Do(func() {
		h.Mutex.Lock()
		for client := range h.Clients {
			close(client.Send)
			delete(h.Clients, client)
		}
		h.Mutex.Unlock()
		close(h.stopped)
		h.log.Debugw("hub stopped")
	})
}

// Publish queues a message for every client. It never blocks: when the
// broadcast buffer is full the message is dropped.
func (h *Hub) Publish(event string, data interface{}) {
	if h == nil {
		return
	}
	select {
	case h.Broadcast <- WSMessage{Event: event, Data: data}:
	default:
		h.log.Warnw("hub buffer full, dropping event", "event", event)
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.Mutex.Lock()
	defer h.Mutex.Unlock()
	return len(h.Clients)
}

// Run starts the hub's main loop
func (h *Hub) Run(done <-chan struct{}) {
	defer h.shutdown()
	for {
		select {
		case <-done:
			return
		case client := <-h.Register:
			h.Mutex.Lock()
			h.Clients[client] = true
			h.Mutex.Unlock()
			h.log.Debugw("client registered")
		case client := <-h.Unregister:
			h.Mutex.Lock()
			if _, ok := h.Clients[client]; ok {
				delete(h.Clients, client)
				close(client.Send)
				h.log.Debugw("client unregistered")
			}
			h.Mutex.Unlock()
		case message := <-h.Broadcast:
			h.Mutex.Lock()
			for client := range h.Clients {
				select {
				case client.Send <- message:
				default:
					close(client.Send)
					delete(h.Clients, client)
				}
			}
			h.Mutex.Unlock()
		}
	}
}

// ReadPump drains client frames until the connection closes; clients only listen.
func (c *Client) ReadPump(h *Hub) {
	defer func() {
		h.Leave(c)
		c.Conn.Close()
	}()
	for {
		_, _, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Infow("websocket read error", "err", err)
			}
			break
		}
	}
}

// WritePump sends messages from the Send channel to the WebSocket connection
func (c *Client) WritePump(h *Hub) {
	defer func() {
		c.Conn.Close()
	}()
	for message := range c.Send {
		if err := c.Conn.WriteJSON(message); err != nil {
			h.log.Infow("websocket write error", "err", err)
			break
		}
	}
}
