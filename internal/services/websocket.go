package services

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/chachabrian/quickmatch-backend/internal/events"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// InboundHandler answers a frame received from a connected party. A nil reply
// sends nothing back.
type InboundHandler interface {
	HandleInbound(ctx context.Context, userID uint, userType string, raw []byte) events.Outbound
}

// Client represents a WebSocket client
type Client struct {
	ID       uint
	UserType string
	Conn     *websocket.Conn
	Send     chan []byte
	Hub      *Hub

	handler InboundHandler
}

// Hub tracks live connections per user and pushes events to them. It is the
// in-process Notification Gateway sink.
type Hub struct {
	clients    map[uint]map[*Client]struct{}
	unregister chan *Client
	done       chan struct{}
	mutex      sync.RWMutex
	log        *logrus.Entry
}

// NewHub creates a new WebSocket hub
func NewHub(log *logrus.Entry) *Hub {
	return &Hub{
		clients:    make(map[uint]map[*Client]struct{}),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run services disconnects until ctx is cancelled, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mutex.Lock()
			for _, set := range h.clients {
				for client := range set {
					close(client.Send)
				}
			}
			h.clients = make(map[uint]map[*Client]struct{})
			h.mutex.Unlock()
			return

		case client := <-h.unregister:
			h.mutex.Lock()
			h.removeLocked(client)
			h.mutex.Unlock()
			h.log.WithFields(logrus.Fields{"userId": client.ID, "userType": client.UserType}).Info("Client disconnected")
		}
	}
}

// add makes client live before any of its frames are read, so replies to the
// first frame are never dropped. It fails once Run has stopped.
func (h *Hub) add(client *Client) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	select {
	case <-h.done:
		return false
	default:
	}
	set, ok := h.clients[client.ID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[client.ID] = set
	}
	set[client] = struct{}{}
	return true
}

func (h *Hub) removeLocked(client *Client) {
	set, ok := h.clients[client.ID]
	if !ok {
		return
	}
	if _, ok := set[client]; !ok {
		return
	}
	delete(set, client)
	close(client.Send)
	if len(set) == 0 {
		delete(h.clients, client.ID)
	}
}

func (h *Hub) Name() string { return "websocket" }

// Publish encodes ev and pushes it to every connection of the channel's party.
func (h *Hub) Publish(_ context.Context, ch events.Channel, ev events.Outbound) error {
	payload, err := events.Encode(ev)
	if err != nil {
		return err
	}
	return h.Deliver(ch, payload)
}

// Deliver pushes an already encoded frame. A party with no live connection is not
// an error; it is expected to poll.
func (h *Hub) Deliver(ch events.Channel, payload []byte) error {
	kind, userID, err := ch.Party()
	if err != nil {
		return err
	}
	h.BroadcastToUser(userID, kind, payload)
	return nil
}

// BroadcastToUser sends a message to every connection of a user. Connections whose
// buffer is full are dropped.
func (h *Hub) BroadcastToUser(userID uint, userType string, message []byte) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	sent := 0
	for client := range h.clients[userID] {
		if userType != "" && client.UserType != userType {
			continue
		}
		select {
		case client.Send <- message:
			sent++
		default:
			h.log.WithField("userId", userID).Warn("Dropping slow websocket client")
			h.removeLocked(client)
		}
	}
	return sent
}

// GetConnectedClients returns the number of connected clients
func (h *Hub) GetConnectedClients() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// HandleWebSocket upgrades the request and serves the connection until it closes.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request, userID uint, userType string, handler InboundHandler) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return errors.Wrap(err, "websocket upgrade")
	}

	client := &Client{
		ID:       userID,
		UserType: userType,
		Conn:     conn,
		Send:     make(chan []byte, sendBuffer),
		Hub:      h,
		handler:  handler,
	}

	if !h.add(client) {
		conn.Close()
		return errors.New("websocket hub stopped")
	}
	h.log.WithFields(logrus.Fields{"userId": userID, "userType": userType}).Info("Client connected")

	go client.writePump()
	go client.readPump()
	return nil
}

// readPump pumps messages from the websocket connection to the handler
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.WithError(err).WithField("userId", c.ID).Warn("WebSocket read error")
			}
			break
		}
		if c.handler == nil {
			continue
		}

		reply := c.handler.HandleInbound(context.Background(), c.ID, c.UserType, message)
		if reply == nil {
			continue
		}
		payload, err := events.Encode(reply)
		if err != nil {
			c.Hub.log.WithError(err).Error("Failed to encode websocket reply")
			continue
		}
		c.reply(payload)
	}
}

func (c *Client) reply(payload []byte) {
	c.Hub.mutex.RLock()
	defer c.Hub.mutex.RUnlock()
	if _, live := c.Hub.clients[c.ID][c]; !live {
		return
	}
	select {
	case c.Send <- payload:
	default:
		c.Hub.log.WithField("userId", c.ID).Warn("Reply dropped, send buffer full")
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Hub.log.WithError(err).WithField("userId", c.ID).Debug("WebSocket write error")
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
