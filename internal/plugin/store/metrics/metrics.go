package metrics

import (
	"context"
	"time"

	"github.com/chirino/messaging-service/internal/model"
	"github.com/chirino/messaging-service/internal/registry/store"
	"github.com/chirino/messaging-service/internal/security"
	"github.com/chirino/messaging-service/internal/thread"
	"github.com/google/uuid"
)

// Wrap returns a MessagingStore that records StoreLatency for every operation.
func Wrap(inner store.MessagingStore) store.MessagingStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.MessagingStore
}

func observe(op string, start time.Time) {
	if security.StoreLatency == nil {
		return
	}
	security.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *metricsStore) CreateUser(ctx context.Context, req store.CreateUserRequest) (*model.User, error) {
	defer observe("create_user", time.Now())
	return m.inner.CreateUser(ctx, req)
}

func (m *metricsStore) GetUser(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	defer observe("get_user", time.Now())
	return m.inner.GetUser(ctx, userID)
}

func (m *metricsStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	defer observe("get_user_by_email", time.Now())
	return m.inner.GetUserByEmail(ctx, email)
}

func (m *metricsStore) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	defer observe("delete_user", time.Now())
	return m.inner.DeleteUser(ctx, userID)
}

func (m *metricsStore) CreateConversation(ctx context.Context, creatorID uuid.UUID, participantIDs []uuid.UUID) (*model.Conversation, error) {
	defer observe("create_conversation", time.Now())
	return m.inner.CreateConversation(ctx, creatorID, participantIDs)
}

func (m *metricsStore) GetConversation(ctx context.Context, userID uuid.UUID, conversationID uuid.UUID) (*model.Conversation, error) {
	defer observe("get_conversation", time.Now())
	return m.inner.GetConversation(ctx, userID, conversationID)
}

func (m *metricsStore) ListConversations(ctx context.Context, userID uuid.UUID) ([]model.Conversation, error) {
	defer observe("list_conversations", time.Now())
	return m.inner.ListConversations(ctx, userID)
}

func (m *metricsStore) AddParticipant(ctx context.Context, actorID uuid.UUID, conversationID uuid.UUID, userID uuid.UUID) error {
	defer observe("add_participant", time.Now())
	return m.inner.AddParticipant(ctx, actorID, conversationID, userID)
}

func (m *metricsStore) RemoveParticipant(ctx context.Context, actorID uuid.UUID, conversationID uuid.UUID, userID uuid.UUID) error {
	defer observe("remove_participant", time.Now())
	return m.inner.RemoveParticipant(ctx, actorID, conversationID, userID)
}

func (m *metricsStore) CreateMessage(ctx context.Context, req store.CreateMessageRequest) (*model.Message, error) {
	defer observe("create_message", time.Now())
	return m.inner.CreateMessage(ctx, req)
}

func (m *metricsStore) UpdateMessage(ctx context.Context, editorID uuid.UUID, messageID uuid.UUID, body string) (*model.Message, error) {
	defer observe("update_message", time.Now())
	return m.inner.UpdateMessage(ctx, editorID, messageID, body)
}

func (m *metricsStore) GetMessage(ctx context.Context, userID uuid.UUID, messageID uuid.UUID) (*model.Message, error) {
	defer observe("get_message", time.Now())
	return m.inner.GetMessage(ctx, userID, messageID)
}

func (m *metricsStore) DeleteMessage(ctx context.Context, userID uuid.UUID, messageID uuid.UUID) error {
	defer observe("delete_message", time.Now())
	return m.inner.DeleteMessage(ctx, userID, messageID)
}

func (m *metricsStore) ListMessages(ctx context.Context, userID uuid.UUID, conversationID uuid.UUID) ([]model.Message, error) {
	defer observe("list_messages", time.Now())
	return m.inner.ListMessages(ctx, userID, conversationID)
}

func (m *metricsStore) ListUserMessages(ctx context.Context, userID uuid.UUID, conversationID uuid.UUID) ([]model.Message, error) {
	defer observe("list_user_messages", time.Now())
	return m.inner.ListUserMessages(ctx, userID, conversationID)
}

func (m *metricsStore) GetMessageHistory(ctx context.Context, userID uuid.UUID, messageID uuid.UUID) ([]model.MessageHistory, error) {
	defer observe("get_message_history", time.Now())
	return m.inner.GetMessageHistory(ctx, userID, messageID)
}

func (m *metricsStore) GetRootMessages(ctx context.Context, conversationID uuid.UUID) ([]model.Message, error) {
	defer observe("get_root_messages", time.Now())
	return m.inner.GetRootMessages(ctx, conversationID)
}

func (m *metricsStore) GetThreadTree(ctx context.Context, conversationID uuid.UUID) ([]*thread.Node, error) {
	defer observe("get_thread_tree", time.Now())
	return m.inner.GetThreadTree(ctx, conversationID)
}

func (m *metricsStore) GetMessageWithReplies(ctx context.Context, messageID uuid.UUID) (*store.MessageSubtree, error) {
	defer observe("get_message_with_replies", time.Now())
	return m.inner.GetMessageWithReplies(ctx, messageID)
}

func (m *metricsStore) GetThreadDepth(ctx context.Context, messageID uuid.UUID) (int, error) {
	defer observe("get_thread_depth", time.Now())
	return m.inner.GetThreadDepth(ctx, messageID)
}

func (m *metricsStore) UnreadForUser(ctx context.Context, userID uuid.UUID, conversationID *uuid.UUID) ([]store.UnreadMessage, error) {
	defer observe("unread_for_user", time.Now())
	return m.inner.UnreadForUser(ctx, userID, conversationID)
}

func (m *metricsStore) UnreadCountForUser(ctx context.Context, userID uuid.UUID, conversationID *uuid.UUID) (int64, error) {
	defer observe("unread_count_for_user", time.Now())
	return m.inner.UnreadCountForUser(ctx, userID, conversationID)
}

func (m *metricsStore) MarkAsRead(ctx context.Context, userID uuid.UUID, messageIDs []uuid.UUID) (int64, error) {
	defer observe("mark_as_read", time.Now())
	return m.inner.MarkAsRead(ctx, userID, messageIDs)
}

func (m *metricsStore) ListNotifications(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]model.Notification, error) {
	defer observe("list_notifications", time.Now())
	return m.inner.ListNotifications(ctx, userID, unreadOnly)
}

func (m *metricsStore) MarkNotificationsRead(ctx context.Context, userID uuid.UUID, notificationIDs []uuid.UUID) (int64, error) {
	defer observe("mark_notifications_read", time.Now())
	return m.inner.MarkNotificationsRead(ctx, userID, notificationIDs)
}

func (m *metricsStore) PurgeReadNotifications(ctx context.Context, cutoff time.Time) (int64, error) {
	defer observe("purge_read_notifications", time.Now())
	return m.inner.PurgeReadNotifications(ctx, cutoff)
}

func (m *metricsStore) DeleteEmptyConversations(ctx context.Context) (int64, error) {
	defer observe("delete_empty_conversations", time.Now())
	return m.inner.DeleteEmptyConversations(ctx)
}
