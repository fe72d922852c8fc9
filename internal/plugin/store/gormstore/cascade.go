package gormstore

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/messaging-service/internal/model"
	"github.com/chirino/messaging-service/internal/security"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// messageRow is a message collected for deletion.
type messageRow struct {
	ID         uuid.UUID
	ReceiverID *uuid.UUID
}

// collectSubtrees returns the messages matching anchor together with all of
// their replies, at any depth. anchor is a fixed WHERE fragment over the
// messages table.
func collectSubtrees(tx *gorm.DB, anchor string, args ...any) ([]messageRow, error) {
	sql := `
WITH RECURSIVE message_tree(id) AS (
    SELECT id FROM messages WHERE ` + anchor + `
    UNION
    SELECT m.id FROM messages m JOIN message_tree t ON m.parent_message_id = t.id
)
SELECT m.id, m.receiver_id FROM messages m JOIN message_tree t ON t.id = m.id`
	var rows []messageRow
	if err := tx.Raw(sql, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to collect messages: %w", err)
	}
	return rows, nil
}

func idsOf(rows []messageRow) []uuid.UUID {
	ids := make([]uuid.UUID, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids
}

func receiversOf(rows []messageRow) []uuid.UUID {
	var ids []uuid.UUID
	for _, r := range rows {
		if r.ReceiverID != nil {
			ids = append(ids, *r.ReceiverID)
		}
	}
	return uniqueIDs(ids)
}

// deleteMessageRows removes messages along with the notifications and history
// that reference them.
func deleteMessageRows(tx *gorm.DB, ids []uuid.UUID) error {
	for _, chunk := range chunkIDs(ids, deleteChunkSize) {
		if err := tx.Where("message_id IN ?", chunk).Delete(&model.Notification{}).Error; err != nil {
			return fmt.Errorf("failed to delete notifications: %w", err)
		}
		if err := tx.Where("message_id IN ?", chunk).Delete(&model.MessageHistory{}).Error; err != nil {
			return fmt.Errorf("failed to delete message history: %w", err)
		}
		if err := tx.Where("id IN ?", chunk).Delete(&model.Message{}).Error; err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
	}
	return nil
}

// DeleteUser removes a user and everything that depends on it in a single
// transaction:
//
//  1. history rows the user authored
//  2. messages the user sent or received, with every reply below them
//  3. notifications addressed to or caused by the user
//  4. the user's memberships, and conversations left without participants
//  5. the user row itself
//
// If any step fails nothing is removed.
func (s *Store) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	db := s.db.WithContext(ctx)
	if _, err := s.loadUser(db, userID); err != nil {
		return err
	}

	var (
		receivers []uuid.UUID
		removed   int
	)
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("edited_by = ?", userID).Delete(&model.MessageHistory{}).Error; err != nil {
			return fmt.Errorf("failed to delete authored history: %w", err)
		}

		rows, err := collectSubtrees(tx, "sender_id = ? OR receiver_id = ?", userID, userID)
		if err != nil {
			return err
		}
		if err := deleteMessageRows(tx, idsOf(rows)); err != nil {
			return err
		}
		removed = len(rows)
		receivers = receiversOf(rows)

		if err := tx.Where("recipient_id = ? OR actor_id = ?", userID, userID).Delete(&model.Notification{}).Error; err != nil {
			return fmt.Errorf("failed to delete notifications: %w", err)
		}

		var conversationIDs []uuid.UUID
		if err := tx.Model(&model.ConversationParticipant{}).Where("user_id = ?", userID).Pluck("conversation_id", &conversationIDs).Error; err != nil {
			return fmt.Errorf("failed to list memberships: %w", err)
		}
		if err := tx.Where("user_id = ?", userID).Delete(&model.ConversationParticipant{}).Error; err != nil {
			return fmt.Errorf("failed to delete memberships: %w", err)
		}
		if len(conversationIDs) > 0 {
			_, orphaned, err := deleteEmptyConversations(tx, conversationIDs)
			if err != nil {
				return fmt.Errorf("failed to delete empty conversations: %w", err)
			}
			receivers = append(receivers, orphaned...)
		}

		res := tx.Where("id = ?", userID).Delete(&model.User{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete user: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return &NotFoundError{Resource: "user", ID: userID.String()}
		}
		return nil
	})
	if err != nil {
		return integrityError("delete user", err)
	}

	s.invalidateUnread(ctx, append(receivers, userID)...)
	security.RecordUserDeleted()
	log.Info("User deleted", "user", userID, "messages", removed)
	return nil
}
