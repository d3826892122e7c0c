package realtime

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/usta-app/usta-server/internal/auth"
	"github.com/usta-app/usta-server/internal/data"
)

// Gateway upgrades authenticated HTTP requests to websocket connections
// and owns the connection lifecycle: presence, room membership and the
// ephemeral relays (typing, read receipts, live location).
type Gateway struct {
	hub      *Hub
	jwt      *auth.JWTManager
	users    *data.UsersStore
	convs    *data.ConversationsStore
	upgrader websocket.Upgrader
}

// NewGateway wires a gateway over the given hub and stores.
func NewGateway(hub *Hub, jwtMgr *auth.JWTManager, users *data.UsersStore, convs *data.ConversationsStore) *Gateway {
	return &Gateway{
		hub:   hub,
		jwt:   jwtMgr,
		users: users,
		convs: convs,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin enforcement belongs to the fronting proxy; the
			// token check below is the actual gate.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handle is the websocket endpoint. The token is taken from the query
// string (browser websocket clients cannot set headers) or from a
// standard Authorization header. Unauthenticated connections are
// rejected before the upgrade.
func (g *Gateway) Handle(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer"))
	}
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := g.jwt.VerifyToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	userID, err := claims.SubjectID()
	if err != nil {
		http.Error(w, "invalid token subject", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		log.Printf("realtime: upgrade failed for user %s: %v", userID.Hex(), err)
		return
	}

	c := &client{
		gw:     g,
		conn:   conn,
		id:     uuid.NewString(),
		userID: userID,
		role:   data.Role(claims.Role),
		send:   make(chan Event, sendQueueSize),
		done:   make(chan struct{}),
		joined: make(map[string]bool),
		shares: make(map[string]bool),
	}

	g.connect(c)
	go c.writePump()
	c.readPump()
}

// connect registers the connection and moves the user online. The
// presence write and broadcast are secondary effects: failures are
// logged, never fatal to the connection.
func (g *Gateway) connect(c *client) {
	userRoom := UserChannel(c.userID.Hex())
	first := g.hub.RoomSize(userRoom) == 0
	g.hub.Register(userRoom, c.id, c)

	if !first {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := g.users.SetPresence(ctx, c.userID, true); err != nil {
		log.Printf("realtime: presence online write failed for %s: %v", c.userID.Hex(), err)
	}
	g.hub.Broadcast(Event{Name: EventPresenceUpdate, Payload: PresencePayload{
		UserID:   c.userID.Hex(),
		IsOnline: true,
	}})
}

// disconnect tears down room membership, stops any live location shares
// the connection had open and, when this was the user's last connection,
// moves the user offline.
func (g *Gateway) disconnect(c *client) {
	for convID := range c.shares {
		g.hub.Publish(ConversationChannel(convID), Event{
			Name:    EventLocationStopped,
			Payload: LocationStopPayload{ConversationID: convID, UserID: c.userID.Hex()},
		})
	}
	for convID := range c.joined {
		g.hub.Unregister(ConversationChannel(convID), c.id)
	}

	userRoom := UserChannel(c.userID.Hex())
	g.hub.Unregister(userRoom, c.id)
	if g.hub.RoomSize(userRoom) > 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	presence, err := g.users.SetPresence(ctx, c.userID, false)
	if err != nil {
		log.Printf("realtime: presence offline write failed for %s: %v", c.userID.Hex(), err)
		return
	}
	g.hub.Broadcast(Event{Name: EventPresenceUpdate, Payload: PresencePayload{
		UserID:   c.userID.Hex(),
		IsOnline: false,
		LastSeen: presence.LastSeen,
	}})
}

// canJoin checks conversation membership before admitting a connection
// to a conversation room.
func (g *Gateway) canJoin(ctx context.Context, userID bson.ObjectID, convID string) bool {
	id, err := bson.ObjectIDFromHex(convID)
	if err != nil {
		return false
	}
	conv, err := g.convs.Get(ctx, id)
	if err != nil {
		return false
	}
	return conv.Participant(userID) != nil
}

// displayName resolves the user's name for location relays. Falls back
// to the id when the read fails; the relay still goes out.
func (g *Gateway) displayName(ctx context.Context, userID bson.ObjectID) string {
	user, err := g.users.GetUserByID(ctx, userID)
	if err != nil {
		return userID.Hex()
	}
	return user.Name
}

// PresencePayload is the body of presence:update events.
type PresencePayload struct {
	UserID   string     `json:"userId"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// TypingPayload is the body of typing relays.
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

// ReadReceiptPayload is the body of message_read relays.
type ReadReceiptPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	MessageID      string `json:"messageId,omitempty"`
}

// LocationPayload is the body of locationShared / locationUpdated relays.
type LocationPayload struct {
	ConversationID string  `json:"conversationId"`
	UserID         string  `json:"userId"`
	Name           string  `json:"name"`
	Lat            float64 `json:"lat"`
	Lng            float64 `json:"lng"`
	Accuracy       float64 `json:"accuracy,omitempty"`
}

// LocationStopPayload is the body of locationStopped relays.
type LocationStopPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}
