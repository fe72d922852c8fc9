package gormstore

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/messaging-service/internal/config"
	"github.com/chirino/messaging-service/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// notificationPreviewRunes is how much of the body a notification quotes.
const notificationPreviewRunes = 100

// fanOut writes the notifications for a freshly inserted message. Under the
// broadcast policy every participant except the sender is notified; under the
// direct policy only the designated receiver is.
func (s *Store) fanOut(tx *gorm.DB, msg *model.Message, sender *model.User) ([]model.Notification, error) {
	var recipients []uuid.UUID
	switch s.cfg.NotificationPolicy {
	case config.NotificationPolicyDirect:
		if msg.ReceiverID != nil {
			recipients = []uuid.UUID{*msg.ReceiverID}
		}
	default:
		err := tx.Model(&model.ConversationParticipant{}).
			Where("conversation_id = ? AND user_id <> ?", msg.ConversationID, msg.SenderID).
			Order("joined_at").
			Order("user_id").
			Pluck("user_id", &recipients).Error
		if err != nil {
			return nil, fmt.Errorf("failed to load recipients: %w", err)
		}
	}
	if len(recipients) == 0 {
		return nil, nil
	}

	content := notificationContent(sender, msg.Body)
	actorID := msg.SenderID
	rows := make([]model.Notification, len(recipients))
	for i, recipient := range recipients {
		rows[i] = model.Notification{
			ID:          uuid.New(),
			RecipientID: recipient,
			ActorID:     &actorID,
			MessageID:   msg.ID,
			Content:     content,
			CreatedAt:   msg.SentAt,
			UpdatedAt:   msg.SentAt,
		}
	}
	if err := tx.Create(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to insert notifications: %w", err)
	}
	return rows, nil
}

func notificationContent(sender *model.User, body string) string {
	preview := body
	if runes := []rune(body); len(runes) > notificationPreviewRunes {
		preview = string(runes[:notificationPreviewRunes]) + "..."
	}
	return fmt.Sprintf("New message from %s: %s", sender.DisplayName(), preview)
}

func (s *Store) ListNotifications(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]model.Notification, error) {
	q := s.db.WithContext(ctx).Where("recipient_id = ?", userID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	var notifications []model.Notification
	if err := q.Order("created_at DESC").Order("id").Find(&notifications).Error; err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}

// MarkNotificationsRead marks the given notifications of userID as read, or
// all of them when notificationIDs is empty. It returns the number of rows
// that changed.
func (s *Store) MarkNotificationsRead(ctx context.Context, userID uuid.UUID, notificationIDs []uuid.UUID) (int64, error) {
	q := s.db.WithContext(ctx).Model(&model.Notification{}).
		Where("recipient_id = ? AND is_read = ?", userID, false)
	if len(notificationIDs) > 0 {
		q = q.Where("id IN ?", notificationIDs)
	}
	res := q.Updates(map[string]any{"is_read": true, "updated_at": model.Now()})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// PurgeReadNotifications deletes read notifications last touched before cutoff.
func (s *Store) PurgeReadNotifications(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("is_read = ? AND updated_at < ?", true, cutoff.UTC()).
		Delete(&model.Notification{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge notifications: %w", res.Error)
	}
	return res.RowsAffected, nil
}
