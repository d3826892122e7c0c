package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/usta-app/usta-server/internal/data"
)

const (
	// sendQueueSize bounds the per-connection outbound buffer. A client
	// that falls this far behind is dropped rather than blocking the hub.
	sendQueueSize = 64

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxCommandSize = 4096
)

// errSendQueueFull signals a saturated outbound buffer; the hub treats
// it like a dead connection.
var errSendQueueFull = errors.New("send queue full")

// client is one websocket connection. Each connection runs exactly two
// goroutines: readPump (commands in) and writePump (events out).
type client struct {
	gw     *Gateway
	conn   *websocket.Conn
	id     string
	userID bson.ObjectID
	role   data.Role

	send chan Event
	done chan struct{}

	// joined and shares are touched only by readPump and the gateway's
	// disconnect, which runs after readPump returns.
	joined map[string]bool // conversation rooms this connection is in
	shares map[string]bool // conversations with an open live-location share
}

// Send queues an event for delivery. Non-blocking: when the client's
// buffer is full or the connection is closing, the event is dropped and
// the hub evicts the connection.
func (c *client) Send(ev Event) error {
	select {
	case <-c.done:
		return errSendQueueFull
	case c.send <- ev:
		return nil
	default:
		return errSendQueueFull
	}
}

// command is the client→server frame shape.
type command struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type commandData struct {
	ConversationID string  `json:"conversationId"`
	MessageID      string  `json:"messageId"`
	IsTyping       bool    `json:"isTyping"`
	Lat            float64 `json:"lat"`
	Lng            float64 `json:"lng"`
	Accuracy       float64 `json:"accuracy"`
}

func (c *client) readPump() {
	defer func() {
		c.gw.disconnect(c)
		close(c.done)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxCommandSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var cmd command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("realtime: connection %s read error: %v", c.id, err)
			}
			return
		}

		var d commandData
		if len(cmd.Data) > 0 {
			if err := json.Unmarshal(cmd.Data, &d); err != nil {
				continue
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		c.handleCommand(ctx, cmd.Event, d)
		cancel()
	}
}

// handleCommand dispatches one client command. Unknown commands are
// ignored; every relay is ephemeral (never persisted, never replayed).
func (c *client) handleCommand(ctx context.Context, event string, d commandData) {
	switch event {
	case "join":
		if d.ConversationID == "" || c.joined[d.ConversationID] {
			return
		}
		if !c.gw.canJoin(ctx, c.userID, d.ConversationID) {
			return
		}
		c.gw.hub.Register(ConversationChannel(d.ConversationID), c.id, c)
		c.joined[d.ConversationID] = true

	case "leave":
		if !c.joined[d.ConversationID] {
			return
		}
		c.gw.hub.Unregister(ConversationChannel(d.ConversationID), c.id)
		delete(c.joined, d.ConversationID)

	case "typing":
		if !c.joined[d.ConversationID] {
			return
		}
		c.gw.hub.Publish(ConversationChannel(d.ConversationID), Event{
			Name: EventTyping,
			Payload: TypingPayload{
				ConversationID: d.ConversationID,
				UserID:         c.userID.Hex(),
				IsTyping:       d.IsTyping,
			},
		})

	case "message_read":
		if !c.joined[d.ConversationID] {
			return
		}
		c.gw.hub.Publish(ConversationChannel(d.ConversationID), Event{
			Name: EventMessageRead,
			Payload: ReadReceiptPayload{
				ConversationID: d.ConversationID,
				UserID:         c.userID.Hex(),
				MessageID:      d.MessageID,
			},
		})

	case "shareLocation", "updateLocation":
		if !c.joined[d.ConversationID] {
			return
		}
		// Resolving the display name is an awaited store read; other
		// connections keep running while this one waits.
		name := c.gw.displayName(ctx, c.userID)
		evName := EventLocationUpdated
		if event == "shareLocation" || !c.shares[d.ConversationID] {
			evName = EventLocationShared
		}
		c.shares[d.ConversationID] = true
		c.gw.hub.Publish(ConversationChannel(d.ConversationID), Event{
			Name: evName,
			Payload: LocationPayload{
				ConversationID: d.ConversationID,
				UserID:         c.userID.Hex(),
				Name:           name,
				Lat:            d.Lat,
				Lng:            d.Lng,
				Accuracy:       d.Accuracy,
			},
		})

	case "stopLocationShare":
		if !c.shares[d.ConversationID] {
			return
		}
		delete(c.shares, d.ConversationID)
		c.gw.hub.Publish(ConversationChannel(d.ConversationID), Event{
			Name: EventLocationStopped,
			Payload: LocationStopPayload{
				ConversationID: d.ConversationID,
				UserID:         c.userID.Hex(),
			},
		})
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
