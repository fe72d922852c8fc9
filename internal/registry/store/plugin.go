package store

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/messaging-service/internal/model"
	"github.com/chirino/messaging-service/internal/thread"
	"github.com/google/uuid"
)

// CreateUserRequest is the input for registering a user.
type CreateUserRequest struct {
	Email       string     `json:"email"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	Role        model.Role `json:"role"`
	PhoneNumber *string    `json:"phoneNumber,omitempty"`
}

// CreateMessageRequest is the input for posting a message.
type CreateMessageRequest struct {
	ConversationID  uuid.UUID
	SenderID        uuid.UUID
	Body            string
	ParentMessageID *uuid.UUID
	ReceiverID      *uuid.UUID
}

// Strategies used to load a message subtree.
const (
	ThreadStrategyRecursive = "recursive"
	ThreadStrategyPrefetch  = "prefetch"
)

// PrefetchDepth is the number of reply levels loaded by the prefetch strategy.
const PrefetchDepth = 3

// MessageSubtree is a message with its descendants.
type MessageSubtree struct {
	Root     *thread.Node `json:"root"`
	Strategy string       `json:"strategy"`
	// Truncated is set when the prefetch strategy stopped at PrefetchDepth
	// while deeper replies exist.
	Truncated bool `json:"truncated"`
}

// UnreadMessage is the projection returned for unread listings.
type UnreadMessage struct {
	ID              uuid.UUID `json:"id"`
	ConversationID  uuid.UUID `json:"conversationId"`
	Body            string    `json:"body"`
	SentAt          time.Time `json:"sentAt"`
	SenderID        uuid.UUID `json:"senderId"`
	SenderEmail     string    `json:"senderEmail"`
	SenderFirstName string    `json:"senderFirstName"`
	SenderLastName  string    `json:"senderLastName"`
}

// MessagingStore defines the primary data access interface for the messaging service.
type MessagingStore interface {
	// Users
	CreateUser(ctx context.Context, req CreateUserRequest) (*model.User, error)
	GetUser(ctx context.Context, userID uuid.UUID) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// DeleteUser removes the user and everything that depends on it in one transaction.
	DeleteUser(ctx context.Context, userID uuid.UUID) error

	// Conversations
	CreateConversation(ctx context.Context, creatorID uuid.UUID, participantIDs []uuid.UUID) (*model.Conversation, error)
	GetConversation(ctx context.Context, userID uuid.UUID, conversationID uuid.UUID) (*model.Conversation, error)
	ListConversations(ctx context.Context, userID uuid.UUID) ([]model.Conversation, error)
	AddParticipant(ctx context.Context, actorID uuid.UUID, conversationID uuid.UUID, userID uuid.UUID) error
	RemoveParticipant(ctx context.Context, actorID uuid.UUID, conversationID uuid.UUID, userID uuid.UUID) error

	// Messages
	CreateMessage(ctx context.Context, req CreateMessageRequest) (*model.Message, error)
	UpdateMessage(ctx context.Context, editorID uuid.UUID, messageID uuid.UUID, body string) (*model.Message, error)
	GetMessage(ctx context.Context, userID uuid.UUID, messageID uuid.UUID) (*model.Message, error)
	DeleteMessage(ctx context.Context, userID uuid.UUID, messageID uuid.UUID) error
	ListMessages(ctx context.Context, userID uuid.UUID, conversationID uuid.UUID) ([]model.Message, error)
	ListUserMessages(ctx context.Context, userID uuid.UUID, conversationID uuid.UUID) ([]model.Message, error)
	GetMessageHistory(ctx context.Context, userID uuid.UUID, messageID uuid.UUID) ([]model.MessageHistory, error)

	// Threads
	GetRootMessages(ctx context.Context, conversationID uuid.UUID) ([]model.Message, error)
	GetThreadTree(ctx context.Context, conversationID uuid.UUID) ([]*thread.Node, error)
	GetMessageWithReplies(ctx context.Context, messageID uuid.UUID) (*MessageSubtree, error)
	GetThreadDepth(ctx context.Context, messageID uuid.UUID) (int, error)

	// Unread
	UnreadForUser(ctx context.Context, userID uuid.UUID, conversationID *uuid.UUID) ([]UnreadMessage, error)
	UnreadCountForUser(ctx context.Context, userID uuid.UUID, conversationID *uuid.UUID) (int64, error)
	MarkAsRead(ctx context.Context, userID uuid.UUID, messageIDs []uuid.UUID) (int64, error)

	// Notifications
	ListNotifications(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]model.Notification, error)
	MarkNotificationsRead(ctx context.Context, userID uuid.UUID, notificationIDs []uuid.UUID) (int64, error)

	// Eviction
	PurgeReadNotifications(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteEmptyConversations(ctx context.Context) (int64, error)
}

// Loader creates a MessagingStore from config.
type Loader func(ctx context.Context) (MessagingStore, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}
