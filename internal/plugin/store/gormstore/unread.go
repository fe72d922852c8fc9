package gormstore

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/messaging-service/internal/model"
	registrystore "github.com/chirino/messaging-service/internal/registry/store"
	"github.com/chirino/messaging-service/internal/security"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// unreadQuery selects unread messages addressed to userID, optionally limited
// to one conversation. Messages without a receiver are never unread for anyone.
func (s *Store) unreadQuery(ctx context.Context, userID uuid.UUID, conversationID *uuid.UUID) *gorm.DB {
	q := s.db.WithContext(ctx).
		Table("messages m").
		Where("m.receiver_id = ? AND m.is_read = ?", userID, false)
	if conversationID != nil {
		q = q.Where("m.conversation_id = ?", *conversationID)
	}
	return q
}

func (s *Store) UnreadForUser(ctx context.Context, userID uuid.UUID, conversationID *uuid.UUID) ([]registrystore.UnreadMessage, error) {
	var rows []registrystore.UnreadMessage
	err := s.unreadQuery(ctx, userID, conversationID).
		Select("m.id, m.conversation_id, m.body, m.sent_at, m.sender_id, " +
			"u.email AS sender_email, u.first_name AS sender_first_name, u.last_name AS sender_last_name").
		Joins("JOIN users u ON u.id = m.sender_id").
		Order("m.sent_at").
		Order("m.seq").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unread messages: %w", err)
	}
	return rows, nil
}

// UnreadCountForUser counts unread messages addressed to userID. The count
// across all conversations is served from the unread cache when available.
func (s *Store) UnreadCountForUser(ctx context.Context, userID uuid.UUID, conversationID *uuid.UUID) (int64, error) {
	cacheable := conversationID == nil && s.unreadCache != nil && s.unreadCache.Available()
	if cacheable {
		count, ok, err := s.unreadCache.Get(ctx, userID)
		if err != nil {
			log.Warn("Unread count cache lookup failed", "user", userID, "err", err)
		} else {
			security.RecordCacheLookup(ok)
			if ok {
				return count, nil
			}
		}
	}

	var count int64
	if err := s.unreadQuery(ctx, userID, conversationID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	if cacheable {
		if err := s.unreadCache.Set(ctx, userID, count, s.cfg.UnreadCountTTL); err != nil {
			log.Warn("Failed to cache unread count", "user", userID, "err", err)
		}
	}
	return count, nil
}

// MarkAsRead marks messages addressed to userID as read. With no ids every
// unread message of the user is marked. Messages addressed to someone else
// are left untouched. It returns the number of messages that changed.
func (s *Store) MarkAsRead(ctx context.Context, userID uuid.UUID, messageIDs []uuid.UUID) (int64, error) {
	q := s.db.WithContext(ctx).Model(&model.Message{}).
		Where("receiver_id = ? AND is_read = ?", userID, false)
	if len(messageIDs) > 0 {
		q = q.Where("id IN ?", messageIDs)
	}
	res := q.Update("is_read", true)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.invalidateUnread(ctx, userID)
	}
	return res.RowsAffected, nil
}
