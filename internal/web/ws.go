package web

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cjeanneret/MountGo/internal/debug"
	"github.com/cjeanneret/MountGo/internal/protocol"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsReadLimit  = 65536
)

// wsClient is one websocket connection. Inbound messages go through the
// dispatcher; broadcaster events are forwarded as "event" messages.
type wsClient struct {
	conn       *websocket.Conn
	dispatcher *Dispatcher
	send       chan []byte
	events     <-chan string
	unsub      func()
	done       chan struct{}
	mu         sync.Mutex
	closed     bool
}

// HandleWebSocket handles GET /ws.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		debug.Info("WebSocket upgrade error: %v", err)
		return
	}

	events, unsub := h.Broadcaster.Subscribe()
	c := &wsClient{
		conn:       conn,
		dispatcher: h.Dispatcher,
		send:       make(chan []byte, 256),
		events:     events,
		unsub:      unsub,
		done:       make(chan struct{}),
	}
	debug.Live("WebSocket client %s connected", caller(r))

	go c.writePump()
	go c.readPump()

	// Send initial state
	st := h.Runner.Status()
	c.sendMessage(protocol.TypeEvent, StatusEvent{
		Time:  time.Now().Format(time.RFC3339),
		Level: LevelState,
		State: &st,
	})
}

func (c *wsClient) sendMessage(msgType string, payload any) {
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		debug.Error(err)
		return
	}
	c.sendRaw(msg)
}

func (c *wsClient) sendRaw(msg *protocol.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		debug.Error(err)
		return
	}

	select {
	case c.send <- data:
	case <-c.done:
	default:
		debug.Live("WebSocket send buffer full, dropping message")
	}
}

func (c *wsClient) readPump() {
	defer c.Close()

	c.conn.SetReadLimit(wsReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				debug.Info("WebSocket error: %v", err)
			}
			return
		}
		c.handleMessage(data)
	}
}

func (c *wsClient) handleMessage(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendRaw(protocol.NewError(protocol.ErrInvalidMessage, "Failed to parse message"))
		return
	}

	reply, err := c.dispatcher.Dispatch(&msg)
	if err != nil {
		c.sendRaw(ErrorReply(err))
		return
	}
	if reply != nil {
		c.sendRaw(reply)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case evt, ok := <-c.events:
			if !ok {
				return
			}
			data, err := json.Marshal(protocol.Message{Type: protocol.TypeEvent, Payload: json.RawMessage(evt)})
			if err != nil {
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Close stops the client and releases its broadcaster subscription.
func (c *wsClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	c.unsub()
	debug.Live("WebSocket client disconnected")
}
