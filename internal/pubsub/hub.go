package pubsub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/convenehq/convene/internal/logger"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed
	maxMessageSize = 4096
)

// Hub maintains the set of active clients and routes envelopes to the
// clients subscribed to each topic.
type Hub struct {
	// Registered clients.
	Clients map[*Client]bool

	// Register requests from the clients.
	Register chan *Client

	// Unregister requests from clients.
	Unregister chan *Client

	// Topic-keyed routing: topic key -> subscribed clients.
	subscribers map[string]map[*Client]bool

	log *logger.Logger
	mu  sync.RWMutex
}

// Client is one websocket connection. SocketID doubles as the mutator id
// for actions the client originates.
type Client struct {
	Hub *Hub

	// The websocket connection.
	Conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan []byte

	SocketID string
	UserID   string

	topics map[string]bool
}

// clientCommand is the inbound control message a client sends to manage
// its subscriptions.
type clientCommand struct {
	Type   string   `json:"type"` // "subscribe" or "unsubscribe"
	Topics []string `json:"topics"`
}

// NewHub creates a hub; callers must start Run in a goroutine.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		Register:    make(chan *Client),
		Unregister:  make(chan *Client),
		Clients:     make(map[*Client]bool),
		subscribers: make(map[string]map[*Client]bool),
		log:         log,
	}
}

// NewClient wraps a websocket connection for registration with the hub.
func NewClient(h *Hub, conn *websocket.Conn, socketID, userID string) *Client {
	return &Client{
		Hub:      h,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		SocketID: socketID,
		UserID:   userID,
		topics:   make(map[string]bool),
	}
}

// Run starts the hub's registration handling.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			h.Clients[client] = true
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			if _, ok := h.Clients[client]; ok {
				delete(h.Clients, client)
				for key := range client.topics {
					h.dropSubscriberLocked(key, client)
				}
				close(client.Send)
			}
			h.mu.Unlock()
		}
	}
}

// Subscribe adds the client to a topic's routing table.
func (h *Hub) Subscribe(client *Client, topic Topic) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := topic.Key()
	if h.subscribers[key] == nil {
		h.subscribers[key] = make(map[*Client]bool)
	}
	h.subscribers[key][client] = true
	client.topics[key] = true
}

// Unsubscribe removes the client from a topic's routing table.
func (h *Hub) Unsubscribe(client *Client, topic Topic) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := topic.Key()
	h.dropSubscriberLocked(key, client)
	delete(client.topics, key)
}

func (h *Hub) dropSubscriberLocked(key string, client *Client) {
	if subs, ok := h.subscribers[key]; ok {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.subscribers, key)
		}
	}
}

// Publish fans an envelope out to every client subscribed to the topic.
// The envelope goes to the originating client too; echo suppression is the
// receiver's job.
func (h *Hub) Publish(_ context.Context, topic Topic, payload Payload, opts SubOptions) {
	env, err := newEnvelope(topic, payload, opts)
	if err != nil {
		h.log.Error("failed to encode envelope", "topic", topic.Key(), "error", err)
		return
	}
	raw, err := json.Marshal(env)
	if err != nil {
		h.log.Error("failed to encode envelope", "topic", topic.Key(), "error", err)
		return
	}

	// Full lock: the slow-consumer path mutates the routing tables.
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.subscribers[topic.Key()] {
		select {
		case client.Send <- raw:
		default:
			// Slow consumer; drop the connection rather than block the
			// fan-out.
			close(client.Send)
			delete(h.Clients, client)
			for key := range client.topics {
				delete(h.subscribers[key], client)
			}
		}
	}
}

// SubscriberCount returns how many clients are subscribed to a topic.
func (h *Hub) SubscriberCount(topic Topic) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[topic.Key()])
}

// ReadPump pumps control messages from the websocket connection to the hub.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.Debug("websocket closed unexpectedly", "socket_id", c.SocketID, "error", err)
			}
			break
		}

		var cmd clientCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			continue
		}
		for _, key := range cmd.Topics {
			topic, ok := parseTopicKey(key)
			if !ok {
				continue
			}
			switch cmd.Type {
			case "subscribe":
				if !c.canSubscribe(topic) {
					c.Hub.log.Warn("subscription rejected", "socket_id", c.SocketID, "topic", key)
					continue
				}
				c.Hub.Subscribe(c, topic)
			case "unsubscribe":
				c.Hub.Unsubscribe(c, topic)
			}
		}
	}
}

// WritePump pumps envelopes from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// canSubscribe gates client-requested subscriptions. User-scoped streams
// belong to their user alone; team and organization topic membership is
// vouched for by the token the auth middleware already verified.
func (c *Client) canSubscribe(topic Topic) bool {
	switch topic.Kind {
	case TopicNotification, TopicTask:
		return topic.ID == c.UserID
	default:
		return true
	}
}

func parseTopicKey(key string) (Topic, bool) {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			if i == 0 || i == len(key)-1 {
				return Topic{}, false
			}
			return Topic{Kind: TopicKind(key[:i]), ID: key[i+1:]}, true
		}
	}
	return Topic{}, false
}
