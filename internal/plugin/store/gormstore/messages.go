package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/chirino/messaging-service/internal/model"
	registrystore "github.com/chirino/messaging-service/internal/registry/store"
	"github.com/chirino/messaging-service/internal/security"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func byPostingOrder(db *gorm.DB) *gorm.DB {
	return db.Order("sent_at").Order("seq")
}

// CreateMessage validates membership and threading rules, then inserts the
// message and its notifications in one transaction.
func (s *Store) CreateMessage(ctx context.Context, req registrystore.CreateMessageRequest) (*model.Message, error) {
	if strings.TrimSpace(req.Body) == "" {
		return nil, &ValidationError{Field: "body", Message: "must not be empty"}
	}

	db := s.db.WithContext(ctx)
	if err := requireConversation(db, req.ConversationID); err != nil {
		return nil, err
	}
	sender, err := s.loadUser(db, req.SenderID)
	if err != nil {
		return nil, err
	}
	ok, err := isParticipant(db, req.ConversationID, req.SenderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &ForbiddenError{Reason: "sender is not a participant of the conversation"}
	}
	if req.ReceiverID != nil {
		if *req.ReceiverID == req.SenderID {
			return nil, &ValidationError{Field: "receiverId", Message: "must differ from the sender"}
		}
		ok, err := isParticipant(db, req.ConversationID, *req.ReceiverID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &ForbiddenError{Reason: "receiver is not a participant of the conversation"}
		}
	}
	if req.ParentMessageID != nil {
		var parent model.Message
		err := db.Select("id", "conversation_id").Where("id = ?", *req.ParentMessageID).Take(&parent).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to look up parent message: %w", err)
		}
		// A parent from another conversation is reported the same way as a
		// missing one.
		if err != nil || parent.ConversationID != req.ConversationID {
			return nil, &NotFoundError{Resource: "parent message", ID: req.ParentMessageID.String()}
		}
	}

	msg := model.Message{
		ID:              uuid.New(),
		ConversationID:  req.ConversationID,
		SenderID:        req.SenderID,
		ReceiverID:      req.ReceiverID,
		ParentMessageID: req.ParentMessageID,
		Body:            req.Body,
		SentAt:          model.Now(),
	}
	var notified []model.Notification
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&msg).Error; err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		n, err := s.fanOut(tx, &msg, sender)
		if err != nil {
			return &IntegrityError{Op: "notification fan-out", Err: err}
		}
		notified = n
		return nil
	})
	if err != nil {
		return nil, err
	}

	if msg.ReceiverID != nil {
		s.invalidateUnread(ctx, *msg.ReceiverID)
	}
	security.RecordNotifications(string(s.cfg.NotificationPolicy), len(notified))
	log.Debug("Message created", "message", msg.ID, "conversation", msg.ConversationID, "notified", len(notified))

	msg.Sender = sender
	return &msg, nil
}

func (s *Store) GetMessage(ctx context.Context, userID uuid.UUID, messageID uuid.UUID) (*model.Message, error) {
	db := s.db.WithContext(ctx)
	msg, err := loadMessage(db, messageID)
	if err != nil {
		return nil, err
	}
	ok, err := isParticipant(db, msg.ConversationID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &NotFoundError{Resource: "message", ID: messageID.String()}
	}
	return msg, nil
}

// DeleteMessage removes a message and every reply below it. Only the sender
// may delete.
func (s *Store) DeleteMessage(ctx context.Context, userID uuid.UUID, messageID uuid.UUID) error {
	db := s.db.WithContext(ctx)
	msg, err := loadMessage(db, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID {
		return &ForbiddenError{Reason: "only the sender can delete a message"}
	}

	var receivers []uuid.UUID
	err = db.Transaction(func(tx *gorm.DB) error {
		rows, err := collectSubtrees(tx, "id = ?", messageID)
		if err != nil {
			return err
		}
		receivers = receiversOf(rows)
		return deleteMessageRows(tx, idsOf(rows))
	})
	if err != nil {
		return integrityError("delete message", err)
	}
	s.invalidateUnread(ctx, receivers...)
	return nil
}

func (s *Store) ListMessages(ctx context.Context, userID uuid.UUID, conversationID uuid.UUID) ([]model.Message, error) {
	db := s.db.WithContext(ctx)
	if err := requireVisible(db, conversationID, userID); err != nil {
		return nil, err
	}
	var msgs []model.Message
	err := byPostingOrder(db.Preload("Sender").Where("conversation_id = ?", conversationID)).Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return msgs, nil
}

// ListUserMessages returns the messages in a conversation that the user sent
// or received.
func (s *Store) ListUserMessages(ctx context.Context, userID uuid.UUID, conversationID uuid.UUID) ([]model.Message, error) {
	db := s.db.WithContext(ctx)
	if err := requireVisible(db, conversationID, userID); err != nil {
		return nil, err
	}
	var msgs []model.Message
	q := db.Preload("Sender").
		Where("conversation_id = ?", conversationID).
		Where("(sender_id = ? OR receiver_id = ?)", userID, userID)
	if err := byPostingOrder(q).Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to list user messages: %w", err)
	}
	return msgs, nil
}

func (s *Store) GetMessageHistory(ctx context.Context, userID uuid.UUID, messageID uuid.UUID) ([]model.MessageHistory, error) {
	if _, err := s.GetMessage(ctx, userID, messageID); err != nil {
		return nil, err
	}
	var history []model.MessageHistory
	err := s.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("edited_at DESC").
		Order("id").
		Find(&history).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get message history: %w", err)
	}
	return history, nil
}

func loadMessage(db *gorm.DB, messageID uuid.UUID) (*model.Message, error) {
	var msg model.Message
	if err := db.Preload("Sender").Where("id = ?", messageID).Take(&msg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "message", ID: messageID.String()}
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &msg, nil
}
