// Package chat owns conversations and their message logs: membership,
// the message content union, per-viewer visibility and read-marking.
package chat

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/usta-app/usta-server/internal/apperr"
	"github.com/usta-app/usta-server/internal/data"
	"github.com/usta-app/usta-server/internal/notification"
	"github.com/usta-app/usta-server/internal/realtime"
)

// messageEditWindow is how long a sender may edit their own message.
const messageEditWindow = 2 * time.Minute

// ConversationStore is the conversation persistence the service needs.
type ConversationStore interface {
	Insert(ctx context.Context, conv *data.Conversation) error
	Get(ctx context.Context, id bson.ObjectID) (*data.Conversation, error)
	FindByPair(ctx context.Context, userA, userB bson.ObjectID) (*data.Conversation, error)
	ListForUser(ctx context.Context, userID bson.ObjectID, page, perPage int64) ([]*data.Conversation, error)
	RecordMessage(ctx context.Context, convID bson.ObjectID, msg *data.Message, preview string, recipientRole data.Role) error
	ResetUnread(ctx context.Context, convID bson.ObjectID, role data.Role) error
	HideFor(ctx context.Context, convID, userID bson.ObjectID) error
	Unhide(ctx context.Context, convID bson.ObjectID) error
}

// MessageStore is the message persistence the service needs.
type MessageStore interface {
	Insert(ctx context.Context, msg *data.Message) error
	Get(ctx context.Context, id bson.ObjectID) (*data.Message, error)
	ListPage(ctx context.Context, convID, viewerID bson.ObjectID, page, perPage int64) ([]*data.Message, error)
	SetText(ctx context.Context, id bson.ObjectID, body string) error
	SoftDelete(ctx context.Context, id bson.ObjectID) error
	SoftDeleteBySender(ctx context.Context, convID, senderID bson.ObjectID) (int64, error)
	HideAllFor(ctx context.Context, convID, viewerID bson.ObjectID) (int64, error)
	MarkReadFromSender(ctx context.Context, convID, senderID bson.ObjectID) (int64, error)
}

// Notifier records a notification for a user, best-effort.
type Notifier interface {
	Notify(ctx context.Context, p notification.CreateParams)
}

// Service implements the conversation and message operations.
type Service struct {
	convs ConversationStore
	msgs  MessageStore
	notif Notifier
	pub   realtime.Publisher
}

// NewService wires the service. A nil publisher disables pushes.
func NewService(convs ConversationStore, msgs MessageStore, notif Notifier, pub realtime.Publisher) *Service {
	if pub == nil {
		pub = realtime.NopPublisher{}
	}
	return &Service{convs: convs, msgs: msgs, notif: notif, pub: pub}
}

// FindOrCreate returns the conversation between the two users, creating
// it when none exists. Idempotent for the unordered pair: repeated calls
// return the same conversation. The second return reports creation.
func (s *Service) FindOrCreate(ctx context.Context, userA bson.ObjectID, roleA data.Role, userB bson.ObjectID, roleB data.Role, jobID *bson.ObjectID) (*data.Conversation, bool, error) {
	if userA == userB {
		return nil, false, apperr.Validation("a conversation needs two distinct users")
	}
	if roleA != data.RoleClient && roleA != data.RoleProfessional {
		return nil, false, apperr.Validation("invalid participant role %q", roleA)
	}
	if roleB != roleA.Counterpart() {
		return nil, false, apperr.Validation("participants must have complementary roles, got %q and %q", roleA, roleB)
	}

	existing, err := s.convs.FindByPair(ctx, userA, userB)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		// Re-opening a conversation the actor had hidden brings it back
		// for everyone; new intent outweighs the old hide.
		if len(existing.HiddenFor) > 0 {
			if err := s.convs.Unhide(ctx, existing.ID); err != nil {
				return nil, false, err
			}
			existing.HiddenFor = nil
		}
		return existing, false, nil
	}

	now := time.Now()
	conv := &data.Conversation{
		Participants: []data.Participant{
			{UserID: userA, Role: roleA},
			{UserID: userB, Role: roleB},
		},
		JobID:     jobID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.convs.Insert(ctx, conv); err != nil {
		return nil, false, err
	}

	s.notif.Notify(ctx, notification.CreateParams{
		Recipient: userB,
		Type:      data.NotifNewConversation,
		Title:     "New conversation",
		Message:   "You have a new conversation",
		Data:      data.NotificationData{ConversationID: &conv.ID, JobID: jobID},
	})
	for _, p := range conv.Participants {
		s.pub.Publish(realtime.UserChannel(p.UserID.Hex()), realtime.Event{
			Name:    realtime.EventNewConversation,
			Payload: conv,
		})
	}

	return conv, true, nil
}

// ListConversations returns the actor's visible conversations, newest
// activity first.
func (s *Service) ListConversations(ctx context.Context, actor bson.ObjectID, page, perPage int64) ([]*data.Conversation, error) {
	return s.convs.ListForUser(ctx, actor, page, perPage)
}

// GetConversation returns a conversation the actor participates in.
func (s *Service) GetConversation(ctx context.Context, convID, actor bson.ObjectID) (*data.Conversation, error) {
	conv, err := s.convs.Get(ctx, convID)
	if err != nil {
		return nil, err
	}
	if conv.Participant(actor) == nil {
		return nil, apperr.Authorization("user %s is not a participant of conversation %s", actor.Hex(), convID.Hex())
	}
	return conv, nil
}

// SendParams describes one outbound message.
type SendParams struct {
	ConversationID bson.ObjectID
	Sender         bson.ObjectID
	Type           data.MessageType
	Content        ContentInput
	ReplyTo        *bson.ObjectID
}

// SendMessage validates, persists and fans out one message. The message
// insert plus the conversation counter update are the primary writes;
// notification and push are best-effort.
func (s *Service) SendMessage(ctx context.Context, p SendParams) (*data.Message, error) {
	conv, err := s.convs.Get(ctx, p.ConversationID)
	if err != nil {
		return nil, err
	}
	sender := conv.Participant(p.Sender)
	if sender == nil {
		return nil, apperr.Authorization("user %s is not a participant of conversation %s", p.Sender.Hex(), p.ConversationID.Hex())
	}

	content, err := buildContent(p.Type, p.Content)
	if err != nil {
		return nil, err
	}

	msg := &data.Message{
		ConversationID: p.ConversationID,
		SenderID:       p.Sender,
		SenderRole:     sender.Role,
		Type:           p.Type,
		Content:        content,
		ReplyToID:      p.ReplyTo,
		CreatedAt:      time.Now(),
	}
	if err := s.msgs.Insert(ctx, msg); err != nil {
		return nil, err
	}

	recipient := conv.Other(p.Sender)
	if err := s.convs.RecordMessage(ctx, conv.ID, msg, preview(msg), recipient.Role); err != nil {
		return nil, err
	}

	s.notif.Notify(ctx, notification.CreateParams{
		Recipient: recipient.UserID,
		Type:      data.NotifNewMessage,
		Title:     "New message",
		Message:   preview(msg),
		Data:      data.NotificationData{ConversationID: &conv.ID},
	})
	s.pub.Publish(realtime.ConversationChannel(conv.ID.Hex()), realtime.Event{
		Name:    realtime.EventNewMessage,
		Payload: msg,
	})

	return msg, nil
}

// GetMessages returns one page of the conversation for the actor,
// oldest to newest. As a side effect of listing, all of the
// counterparty's unread messages become read and the actor's unread
// counter drops to zero.
func (s *Service) GetMessages(ctx context.Context, convID, actor bson.ObjectID, page, perPage int64) ([]*data.Message, error) {
	conv, err := s.convs.Get(ctx, convID)
	if err != nil {
		return nil, err
	}
	viewer := conv.Participant(actor)
	if viewer == nil {
		return nil, apperr.Authorization("user %s is not a participant of conversation %s", actor.Hex(), convID.Hex())
	}

	msgs, err := s.msgs.ListPage(ctx, convID, actor, page, perPage)
	if err != nil {
		return nil, err
	}

	s.markRead(ctx, conv, viewer)
	return msgs, nil
}

// MarkConversationRead applies the read-marking side effect without
// listing (the explicit read endpoint).
func (s *Service) MarkConversationRead(ctx context.Context, convID, actor bson.ObjectID) error {
	conv, err := s.convs.Get(ctx, convID)
	if err != nil {
		return err
	}
	viewer := conv.Participant(actor)
	if viewer == nil {
		return apperr.Authorization("user %s is not a participant of conversation %s", actor.Hex(), convID.Hex())
	}
	s.markRead(ctx, conv, viewer)
	return nil
}

// markRead flips the counterparty's messages to read and zeroes the
// viewer's counter. Both are secondary to whatever triggered them.
func (s *Service) markRead(ctx context.Context, conv *data.Conversation, viewer *data.Participant) {
	other := conv.Other(viewer.UserID)
	flipped, err := s.msgs.MarkReadFromSender(ctx, conv.ID, other.UserID)
	if err != nil {
		logSecondary("mark messages read", conv.ID, err)
		return
	}
	if err := s.convs.ResetUnread(ctx, conv.ID, viewer.Role); err != nil {
		logSecondary("reset unread counter", conv.ID, err)
	}
	if flipped > 0 {
		s.pub.Publish(realtime.ConversationChannel(conv.ID.Hex()), realtime.Event{
			Name: realtime.EventMessageRead,
			Payload: realtime.ReadReceiptPayload{
				ConversationID: conv.ID.Hex(),
				UserID:         viewer.UserID.Hex(),
			},
		})
	}
}

// EditMessage rewrites a text message's body. Only the sender may edit,
// and only within the edit window.
func (s *Service) EditMessage(ctx context.Context, msgID, actor bson.ObjectID, newText string) (*data.Message, error) {
	msg, err := s.msgs.Get(ctx, msgID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != actor {
		return nil, apperr.Authorization("only the sender can edit a message")
	}
	if msg.IsDeleted {
		return nil, apperr.NotFound("message %s not found", msgID.Hex())
	}
	if msg.Type != data.MessageText {
		return nil, apperr.Validation("only text messages can be edited")
	}
	if newText == "" {
		return nil, apperr.Validation("message text must not be empty")
	}
	if time.Since(msg.CreatedAt) > messageEditWindow {
		return nil, apperr.Validation("messages can only be edited within %s of sending", messageEditWindow)
	}

	if err := s.msgs.SetText(ctx, msgID, newText); err != nil {
		return nil, err
	}
	return s.msgs.Get(ctx, msgID)
}

// DeleteMessage soft-deletes one message for everyone; sender only.
func (s *Service) DeleteMessage(ctx context.Context, msgID, actor bson.ObjectID) error {
	msg, err := s.msgs.Get(ctx, msgID)
	if err != nil {
		return err
	}
	if msg.SenderID != actor {
		return apperr.Authorization("only the sender can delete a message")
	}
	if msg.IsDeleted {
		return nil
	}
	return s.msgs.SoftDelete(ctx, msgID)
}

// DeleteMyMessages soft-deletes every message the actor sent in the
// conversation, for everyone.
func (s *Service) DeleteMyMessages(ctx context.Context, convID, actor bson.ObjectID) (int64, error) {
	if _, err := s.GetConversation(ctx, convID, actor); err != nil {
		return 0, err
	}
	return s.msgs.SoftDeleteBySender(ctx, convID, actor)
}

// DeleteAllMessagesForMe hides every message in the conversation from
// the actor only; the other participant's view is unchanged.
func (s *Service) DeleteAllMessagesForMe(ctx context.Context, convID, actor bson.ObjectID) (int64, error) {
	if _, err := s.GetConversation(ctx, convID, actor); err != nil {
		return 0, err
	}
	return s.msgs.HideAllFor(ctx, convID, actor)
}

// DeleteConversationForMe hides the conversation from the actor.
// Idempotent: repeated calls leave a single hidden_for entry.
func (s *Service) DeleteConversationForMe(ctx context.Context, convID, actor bson.ObjectID) error {
	if _, err := s.GetConversation(ctx, convID, actor); err != nil {
		return err
	}
	return s.convs.HideFor(ctx, convID, actor)
}

// preview renders the denormalized last-message line shown in
// conversation lists and notification bodies.
func preview(msg *data.Message) string {
	switch msg.Type {
	case data.MessageText:
		// Truncate on rune boundaries so multi-byte characters are
		// never split mid-sequence.
		body := []rune(msg.Content.Text.Body)
		if len(body) > 80 {
			return string(body[:77]) + "..."
		}
		return string(body)
	case data.MessageLocation:
		return "Shared a location"
	case data.MessageContact:
		return "Shared a contact"
	default:
		return ""
	}
}

// logSecondary records a failed secondary effect; it never reaches the
// caller.
func logSecondary(op string, convID bson.ObjectID, err error) {
	log.Printf("chat: %s for conversation %s failed: %v", op, convID.Hex(), err)
}
