package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the account role of a user.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleGuest Role = "guest"
	RoleHost  Role = "host"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleGuest, RoleHost:
		return true
	default:
		return false
	}
}

// User is an account that can send messages and take part in conversations.
type User struct {
	ID          uuid.UUID `json:"id"                    gorm:"primaryKey;type:uuid"`
	Email       string    `json:"email"                 gorm:"not null;uniqueIndex"`
	FirstName   string    `json:"firstName"             gorm:"not null"`
	LastName    string    `json:"lastName"              gorm:"not null"`
	Role        Role      `json:"role"                  gorm:"not null"`
	PhoneNumber *string   `json:"phoneNumber,omitempty"`
	CreatedAt   time.Time `json:"createdAt"             gorm:"not null"`
}

func (User) TableName() string { return "users" }

// DisplayName is the name shown to other users, falling back to the email.
func (u User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

// Conversation groups participants sharing one message stream.
type Conversation struct {
	ID           uuid.UUID `json:"id"           gorm:"primaryKey;type:uuid"`
	CreatedAt    time.Time `json:"createdAt"    gorm:"not null"`
	Participants []User    `json:"participants" gorm:"many2many:conversation_participants;joinForeignKey:ConversationID;joinReferences:UserID"`
}

func (Conversation) TableName() string { return "conversations" }

// ConversationParticipant is a row of the conversation/user join table.
type ConversationParticipant struct {
	ConversationID uuid.UUID `gorm:"primaryKey;type:uuid"`
	UserID         uuid.UUID `gorm:"primaryKey;type:uuid"`
	JoinedAt       time.Time `gorm:"not null"`
}

func (ConversationParticipant) TableName() string { return "conversation_participants" }

// Message is a single post within a conversation. Messages with a parent
// form reply trees; the parent always belongs to the same conversation.
type Message struct {
	ID              uuid.UUID  `json:"id"                        gorm:"primaryKey;type:uuid"`
	Seq             int64      `json:"-"                         gorm:"->"` // assigned by the database on insert
	ConversationID  uuid.UUID  `json:"conversationId"            gorm:"not null;type:uuid"`
	SenderID        uuid.UUID  `json:"senderId"                  gorm:"not null;type:uuid"`
	Sender          *User      `json:"sender,omitempty"          gorm:"foreignKey:SenderID"`
	ReceiverID      *uuid.UUID `json:"receiverId,omitempty"      gorm:"type:uuid"`
	ParentMessageID *uuid.UUID `json:"parentMessageId,omitempty" gorm:"type:uuid"`
	Replies         []Message  `json:"-"                         gorm:"foreignKey:ParentMessageID"`
	Body            string     `json:"body"                      gorm:"not null"`
	SentAt          time.Time  `json:"sentAt"                    gorm:"not null"`
	Edited          bool       `json:"edited"                    gorm:"not null"`
	IsRead          bool       `json:"isRead"                    gorm:"not null"`
}

func (Message) TableName() string { return "messages" }

// IsRoot reports whether the message starts a thread.
func (m Message) IsRoot() bool { return m.ParentMessageID == nil }

// MessageHistory is a snapshot of a message body taken before an edit.
type MessageHistory struct {
	ID         uuid.UUID  `json:"id"                   gorm:"primaryKey;type:uuid"`
	MessageID  uuid.UUID  `json:"messageId"            gorm:"not null;type:uuid"`
	OldContent string     `json:"oldContent"           gorm:"not null"`
	EditedByID *uuid.UUID `json:"editedBy,omitempty"   gorm:"column:edited_by;type:uuid"`
	EditedAt   time.Time  `json:"editedAt"             gorm:"not null"`
}

func (MessageHistory) TableName() string { return "message_histories" }

// Notification tells a recipient about a new message.
type Notification struct {
	ID          uuid.UUID  `json:"id"                gorm:"primaryKey;type:uuid"`
	RecipientID uuid.UUID  `json:"recipientId"       gorm:"not null;type:uuid"`
	ActorID     *uuid.UUID `json:"actorId,omitempty" gorm:"type:uuid"`
	MessageID   uuid.UUID  `json:"messageId"         gorm:"not null;type:uuid"`
	Content     string     `json:"content"           gorm:"not null"`
	IsRead      bool       `json:"isRead"            gorm:"not null"`
	CreatedAt   time.Time  `json:"createdAt"         gorm:"not null"`
	UpdatedAt   time.Time  `json:"updatedAt"         gorm:"not null"`
}

func (Notification) TableName() string { return "notifications" }

// Now returns the current time in the resolution both supported databases store.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
