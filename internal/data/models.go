package data

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Role distinguishes the two sides of every conversation and job. Admin
// exists only for back-office reads; no workflow operation is performed
// as admin.
type Role string

const (
	RoleClient       Role = "client"
	RoleProfessional Role = "professional"
	RoleAdmin        Role = "admin"
)

// Valid reports whether r is one of the closed set.
func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleProfessional, RoleAdmin:
		return true
	}
	return false
}

// Counterpart returns the complementary workflow role.
func (r Role) Counterpart() Role {
	if r == RoleClient {
		return RoleProfessional
	}
	return RoleClient
}

// JobStatus is the coarse job state exposed to listings.
type JobStatus string

const (
	JobPending    JobStatus = "Pending"
	JobInProgress JobStatus = "InProgress"
	JobCompleted  JobStatus = "Completed"
	JobCancelled  JobStatus = "Cancelled"
)

// LifecycleState is the fine-grained chat-workflow stage of a job.
type LifecycleState string

const (
	StatePosted         LifecycleState = "posted"
	StateOfferPending   LifecycleState = "offer_pending"
	StateChatOpen       LifecycleState = "chat_open"
	StateJobRequested   LifecycleState = "job_requested"
	StateInProgress     LifecycleState = "in_progress"
	StateCompletedByPro LifecycleState = "completed_by_pro"
	StateClosed         LifecycleState = "closed"
	StateCancelled      LifecycleState = "cancelled"
)

// Terminal reports whether no further transition may leave s.
func (s LifecycleState) Terminal() bool {
	return s == StateClosed || s == StateCancelled
}

// ApplicationStatus tracks a professional's bid on a job.
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "Pending"
	ApplicationAccepted ApplicationStatus = "Accepted"
	ApplicationRejected ApplicationStatus = "Rejected"
)

// MessageType selects which branch of the message content union is set.
type MessageType string

const (
	MessageText     MessageType = "text"
	MessageLocation MessageType = "location"
	MessageContact  MessageType = "contact"
)

// NotificationType is the closed set of user-facing event categories.
type NotificationType string

const (
	NotifJobApplication      NotificationType = "job_application"
	NotifApplicationAccepted NotificationType = "application_accepted"
	NotifJobRequest          NotificationType = "job_request"
	NotifJobAccepted         NotificationType = "job_accepted"
	NotifJobCompletedByPro   NotificationType = "job_completed_by_pro"
	NotifJobCompleted        NotificationType = "job_completed"
	NotifJobCancelled        NotificationType = "job_cancelled"
	NotifNewMessage          NotificationType = "new_message"
	NotifNewConversation     NotificationType = "new_conversation"
	NotifSystem              NotificationType = "system"
)

// NotificationPriority orders notification display on clients.
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityMedium NotificationPriority = "medium"
	PriorityHigh   NotificationPriority = "high"
)

// Presence is embedded on User and maintained by the realtime gateway.
type Presence struct {
	IsOnline bool       `bson:"is_online" json:"isOnline"`
	LastSeen *time.Time `bson:"last_seen,omitempty" json:"lastSeen,omitempty"`
}

// User maps to the users collection. Account credentials live in the
// external auth service; the core only needs identity, role and presence.
type User struct {
	ID        bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string        `bson:"name" json:"name"`
	Role      Role          `bson:"role" json:"role"`
	Presence  Presence      `bson:"presence" json:"presence"`
	CreatedAt time.Time     `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time     `bson:"updated_at" json:"updatedAt"`
}

// Professional maps to the professionals collection: the service profile
// owned by a user with RoleProfessional.
type Professional struct {
	ID            bson.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID        bson.ObjectID `bson:"user_id" json:"userId"`
	Category      string        `bson:"category" json:"category"`
	Location      string        `bson:"location,omitempty" json:"location,omitempty"`
	CompletedJobs int           `bson:"completed_jobs" json:"completedJobs"`
	CreatedAt     time.Time     `bson:"created_at" json:"createdAt"`
}

// Budget is the client's price range for a job.
type Budget struct {
	Min int64 `bson:"min" json:"min"`
	Max int64 `bson:"max" json:"max"`
}

// Application is a professional's bid, embedded in the job document and
// replaced wholesale with the rest of the job on every transition.
type Application struct {
	ID             bson.ObjectID     `bson:"id" json:"id"`
	ProfessionalID bson.ObjectID     `bson:"professional_id" json:"professionalId"`
	Proposal       string            `bson:"proposal" json:"proposal"`
	Price          int64             `bson:"price" json:"price"`
	Duration       string            `bson:"duration" json:"duration"`
	Status         ApplicationStatus `bson:"status" json:"status"`
	CreatedAt      time.Time         `bson:"created_at" json:"createdAt"`
}

// Job maps to the jobs collection.
type Job struct {
	ID                 bson.ObjectID  `bson:"_id,omitempty" json:"id"`
	ClientID           bson.ObjectID  `bson:"client_id" json:"clientId"`
	ProfessionalID     *bson.ObjectID `bson:"professional_id,omitempty" json:"professionalId,omitempty"`
	ConversationID     *bson.ObjectID `bson:"conversation_id,omitempty" json:"conversationId,omitempty"`
	Title              string         `bson:"title" json:"title"`
	Description        string         `bson:"description,omitempty" json:"description,omitempty"`
	Category           string         `bson:"category,omitempty" json:"category,omitempty"`
	Budget             Budget         `bson:"budget" json:"budget"`
	Status             JobStatus      `bson:"status" json:"status"`
	LifecycleState     LifecycleState `bson:"lifecycle_state" json:"lifecycleState"`
	Applications       []Application  `bson:"applications" json:"applications"`
	CompletedAt        *time.Time     `bson:"completed_at,omitempty" json:"completedAt,omitempty"`
	CancelledAt        *time.Time     `bson:"cancelled_at,omitempty" json:"cancelledAt,omitempty"`
	CancellationReason string         `bson:"cancellation_reason,omitempty" json:"cancellationReason,omitempty"`
	CreatedAt          time.Time      `bson:"created_at" json:"createdAt"`
	UpdatedAt          time.Time      `bson:"updated_at" json:"updatedAt"`
}

// AcceptedApplication returns the accepted bid, if any.
func (j *Job) AcceptedApplication() *Application {
	for i := range j.Applications {
		if j.Applications[i].Status == ApplicationAccepted {
			return &j.Applications[i]
		}
	}
	return nil
}

// Participant binds a user to a conversation with a fixed role.
type Participant struct {
	UserID bson.ObjectID `bson:"user_id" json:"userId"`
	Role   Role          `bson:"role" json:"role"`
}

// UnreadCounts keeps one counter per conversation role.
type UnreadCounts struct {
	Client       int `bson:"client" json:"client"`
	Professional int `bson:"professional" json:"professional"`
}

// For returns the counter belonging to the given role.
func (u UnreadCounts) For(role Role) int {
	if role == RoleClient {
		return u.Client
	}
	return u.Professional
}

// Conversation maps to the conversations collection. Participants is
// always exactly two entries with complementary roles.
type Conversation struct {
	ID                 bson.ObjectID   `bson:"_id,omitempty" json:"id"`
	Participants       []Participant   `bson:"participants" json:"participants"`
	JobID              *bson.ObjectID  `bson:"job_id,omitempty" json:"jobId,omitempty"`
	LastMessageID      *bson.ObjectID  `bson:"last_message_id,omitempty" json:"lastMessageId,omitempty"`
	LastMessagePreview string          `bson:"last_message_preview,omitempty" json:"lastMessagePreview,omitempty"`
	LastMessageAt      *time.Time      `bson:"last_message_at,omitempty" json:"lastMessageAt,omitempty"`
	Unread             UnreadCounts    `bson:"unread" json:"unread"`
	HiddenFor          []bson.ObjectID `bson:"hidden_for,omitempty" json:"-"`
	CreatedAt          time.Time       `bson:"created_at" json:"createdAt"`
	UpdatedAt          time.Time       `bson:"updated_at" json:"updatedAt"`
}

// Participant returns the entry for the given user, or nil when the user
// is not part of the conversation.
func (c *Conversation) Participant(userID bson.ObjectID) *Participant {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return &c.Participants[i]
		}
	}
	return nil
}

// Other returns the counterparty of the given user. The two-participant
// invariant makes this well defined.
func (c *Conversation) Other(userID bson.ObjectID) *Participant {
	for i := range c.Participants {
		if c.Participants[i].UserID != userID {
			return &c.Participants[i]
		}
	}
	return nil
}

// HiddenForUser reports whether the conversation is hidden for a viewer.
func (c *Conversation) HiddenForUser(userID bson.ObjectID) bool {
	for _, id := range c.HiddenFor {
		if id == userID {
			return true
		}
	}
	return false
}

// TextContent is the text branch of the message content union.
type TextContent struct {
	Body string `bson:"body" json:"body"`
}

// LocationContent is the location branch of the message content union.
type LocationContent struct {
	Lat       float64    `bson:"lat" json:"lat"`
	Lng       float64    `bson:"lng" json:"lng"`
	Accuracy  float64    `bson:"accuracy,omitempty" json:"accuracy,omitempty"`
	Timestamp *time.Time `bson:"ts,omitempty" json:"ts,omitempty"`
}

// ContactContent is the contact branch of the message content union.
type ContactContent struct {
	Name  string `bson:"name" json:"name"`
	Phone string `bson:"phone,omitempty" json:"phone,omitempty"`
	Email string `bson:"email,omitempty" json:"email,omitempty"`
}

// MessageContent is a tagged union: exactly one branch is populated and
// it must match the message's Type field.
type MessageContent struct {
	Text     *TextContent     `bson:"text,omitempty" json:"text,omitempty"`
	Location *LocationContent `bson:"location,omitempty" json:"location,omitempty"`
	Contact  *ContactContent  `bson:"contact,omitempty" json:"contact,omitempty"`
}

// Message maps to the messages collection.
type Message struct {
	ID             bson.ObjectID   `bson:"_id,omitempty" json:"id"`
	ConversationID bson.ObjectID   `bson:"conversation_id" json:"conversationId"`
	SenderID       bson.ObjectID   `bson:"sender_id" json:"senderId"`
	SenderRole     Role            `bson:"sender_role" json:"senderRole"`
	Type           MessageType     `bson:"message_type" json:"messageType"`
	Content        MessageContent  `bson:"content" json:"content"`
	ReplyToID      *bson.ObjectID  `bson:"reply_to_id,omitempty" json:"replyToId,omitempty"`
	IsRead         bool            `bson:"is_read" json:"isRead"`
	ReadAt         *time.Time      `bson:"read_at,omitempty" json:"readAt,omitempty"`
	IsEdited       bool            `bson:"is_edited" json:"isEdited"`
	EditedAt       *time.Time      `bson:"edited_at,omitempty" json:"editedAt,omitempty"`
	IsDeleted      bool            `bson:"is_deleted" json:"isDeleted"`
	DeletedAt      *time.Time      `bson:"deleted_at,omitempty" json:"deletedAt,omitempty"`
	HiddenFor      []bson.ObjectID `bson:"hidden_for,omitempty" json:"-"`
	CreatedAt      time.Time       `bson:"created_at" json:"createdAt"`
}

// NotificationData carries the references a client needs to deep-link
// from a notification.
type NotificationData struct {
	JobID          *bson.ObjectID `bson:"job_id,omitempty" json:"jobId,omitempty"`
	ConversationID *bson.ObjectID `bson:"conversation_id,omitempty" json:"conversationId,omitempty"`
	ProfessionalID *bson.ObjectID `bson:"professional_id,omitempty" json:"professionalId,omitempty"`
}

// Notification maps to the notifications collection. ExpiresAt, when
// set, is honored by a TTL index so stale entries purge themselves.
type Notification struct {
	ID          bson.ObjectID        `bson:"_id,omitempty" json:"id"`
	RecipientID bson.ObjectID        `bson:"recipient_id" json:"recipientId"`
	Type        NotificationType     `bson:"type" json:"type"`
	Title       string               `bson:"title" json:"title"`
	Message     string               `bson:"message" json:"message"`
	Data        NotificationData     `bson:"data" json:"data"`
	Priority    NotificationPriority `bson:"priority" json:"priority"`
	IsRead      bool                 `bson:"is_read" json:"isRead"`
	ReadAt      *time.Time           `bson:"read_at,omitempty" json:"readAt,omitempty"`
	IsActive    bool                 `bson:"is_active" json:"isActive"`
	ExpiresAt   *time.Time           `bson:"expires_at,omitempty" json:"expiresAt,omitempty"`
	CreatedAt   time.Time            `bson:"created_at" json:"createdAt"`
}
