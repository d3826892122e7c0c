// Package realtime is the pub/sub layer between the stores and connected
// clients: one room per user, one per conversation. Durable events are
// always derived from a prior store write; the push channel is never the
// system of record.
package realtime

// Event names pushed to clients.
const (
	EventJobUpdate       = "job:update"
	EventNotificationNew = "notification:new"
	EventNewConversation = "new_conversation"
	EventNewMessage      = "new_message"
	EventMessageRead     = "message_read"
	EventPresenceUpdate  = "presence:update"
	EventTyping          = "typing"
	EventLocationShared  = "locationShared"
	EventLocationUpdated = "locationUpdated"
	EventLocationStopped = "locationStopped"
)

type channelKind int

const (
	userChannel channelKind = iota
	conversationChannel
)

// Channel identifies a room. The two kinds keep user and conversation
// rooms in separate namespaces even when ids collide.
type Channel struct {
	kind channelKind
	id   string
}

// UserChannel is the private room every user owns.
func UserChannel(id string) Channel {
	return Channel{kind: userChannel, id: id}
}

// ConversationChannel is the room both participants of a conversation join.
func ConversationChannel(id string) Channel {
	return Channel{kind: conversationChannel, id: id}
}

// Event is the unit of delivery on the realtime channel.
type Event struct {
	Name    string `json:"event"`
	Payload any    `json:"data,omitempty"`
}

// Publisher is what the engines publish against. Delivery is best-effort
// with no error surface: an empty room or a dead connection is not the
// publishing operation's problem.
type Publisher interface {
	// Publish delivers the event to every connection in the room.
	Publish(ch Channel, ev Event)
	// Broadcast delivers the event to every connected client.
	Broadcast(ev Event)
}

// NopPublisher discards all events. Used where a realtime layer is not
// wired, e.g. store-level tests.
type NopPublisher struct{}

func (NopPublisher) Publish(Channel, Event) {}
func (NopPublisher) Broadcast(Event)        {}
