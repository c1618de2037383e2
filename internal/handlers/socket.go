package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/convenehq/convene/internal/logger"
	"github.com/convenehq/convene/internal/middleware"
	"github.com/convenehq/convene/internal/pubsub"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // In production, replace with proper origin checking
	},
}

// SocketHandler upgrades subscribers onto the notification hub.
type SocketHandler struct {
	Hub *pubsub.Hub
	Log *logger.Logger
}

// HandleSocket upgrades the connection and subscribes the client to its
// own user-scoped topics. Team and meeting topics are subscribed on demand
// via subscribe messages from the client.
func (h *SocketHandler) HandleSocket(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Error("failed to upgrade connection", "error", err)
		return
	}

	client := pubsub.NewClient(h.Hub, conn, uuid.NewString(), identity.UserID)
	h.Hub.Register <- client

	// Every user always listens on their own streams.
	h.Hub.Subscribe(client, pubsub.Topic{Kind: pubsub.TopicNotification, ID: identity.UserID})
	h.Hub.Subscribe(client, pubsub.Topic{Kind: pubsub.TopicTask, ID: identity.UserID})

	go client.WritePump()
	go client.ReadPump()
}
