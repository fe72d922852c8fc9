package gormstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/chirino/messaging-service/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// deleteChunkSize bounds the number of ids bound into a single IN clause.
const deleteChunkSize = 500

func participantsByEmail(db *gorm.DB) *gorm.DB {
	return db.Order("email")
}

func (s *Store) CreateConversation(ctx context.Context, creatorID uuid.UUID, participantIDs []uuid.UUID) (*model.Conversation, error) {
	if creatorID == uuid.Nil {
		return nil, &ValidationError{Field: "creatorId", Message: "is required"}
	}
	ids := uniqueIDs(append([]uuid.UUID{creatorID}, participantIDs...))

	db := s.db.WithContext(ctx)
	var found []uuid.UUID
	if err := db.Model(&model.User{}).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return nil, fmt.Errorf("failed to look up participants: %w", err)
	}
	if len(found) != len(ids) {
		known := make(map[uuid.UUID]bool, len(found))
		for _, id := range found {
			known[id] = true
		}
		for _, id := range ids {
			if !known[id] {
				return nil, &NotFoundError{Resource: "user", ID: id.String()}
			}
		}
	}

	now := model.Now()
	conv := model.Conversation{ID: uuid.New(), CreatedAt: now}
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&conv).Error; err != nil {
			return fmt.Errorf("failed to create conversation: %w", err)
		}
		rows := make([]model.ConversationParticipant, len(ids))
		for i, id := range ids {
			rows[i] = model.ConversationParticipant{ConversationID: conv.ID, UserID: id, JoinedAt: now}
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to add participants: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetConversation(ctx, creatorID, conv.ID)
}

func (s *Store) GetConversation(ctx context.Context, userID uuid.UUID, conversationID uuid.UUID) (*model.Conversation, error) {
	db := s.db.WithContext(ctx)
	if err := requireVisible(db, conversationID, userID); err != nil {
		return nil, err
	}
	var conv model.Conversation
	err := db.Preload("Participants", participantsByEmail).Where("id = ?", conversationID).Take(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "conversation", ID: conversationID.String()}
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

func (s *Store) ListConversations(ctx context.Context, userID uuid.UUID) ([]model.Conversation, error) {
	var convs []model.Conversation
	err := s.db.WithContext(ctx).
		Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id AND cp.user_id = ?", userID).
		Preload("Participants", participantsByEmail).
		Order("conversations.created_at DESC").
		Order("conversations.id").
		Find(&convs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return convs, nil
}

func (s *Store) AddParticipant(ctx context.Context, actorID uuid.UUID, conversationID uuid.UUID, userID uuid.UUID) error {
	db := s.db.WithContext(ctx)
	if err := requireMember(db, conversationID, actorID); err != nil {
		return err
	}
	if _, err := s.loadUser(db, userID); err != nil {
		return err
	}
	row := model.ConversationParticipant{ConversationID: conversationID, UserID: userID, JoinedAt: model.Now()}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to add participant: %w", err)
	}
	return nil
}

// RemoveParticipant removes userID from the conversation. Participants may
// always leave; removing someone else requires the host or admin role. The
// conversation is deleted together with its last participant.
func (s *Store) RemoveParticipant(ctx context.Context, actorID uuid.UUID, conversationID uuid.UUID, userID uuid.UUID) error {
	db := s.db.WithContext(ctx)
	if err := requireMember(db, conversationID, actorID); err != nil {
		return err
	}
	if actorID != userID {
		actor, err := s.loadUser(db, actorID)
		if err != nil {
			return err
		}
		if actor.Role == model.RoleGuest {
			return &ForbiddenError{Reason: "guests can only remove themselves from a conversation"}
		}
	}

	var receivers []uuid.UUID
	err := db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("conversation_id = ? AND user_id = ?", conversationID, userID).Delete(&model.ConversationParticipant{})
		if res.Error != nil {
			return fmt.Errorf("failed to remove participant: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return &NotFoundError{Resource: "participant", ID: userID.String()}
		}
		var err error
		_, receivers, err = deleteEmptyConversations(tx, []uuid.UUID{conversationID})
		return err
	})
	if err != nil {
		return integrityError("remove participant", err)
	}
	s.invalidateUnread(ctx, receivers...)
	return nil
}

func (s *Store) DeleteEmptyConversations(ctx context.Context) (int64, error) {
	var (
		deleted   int64
		receivers []uuid.UUID
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		deleted, receivers, err = deleteEmptyConversations(tx, nil)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete empty conversations: %w", err)
	}
	s.invalidateUnread(ctx, receivers...)
	return deleted, nil
}

// deleteEmptyConversations removes conversations without participants, limited
// to candidates when it is non-nil. It returns the receivers of unread
// messages that went away with them.
func deleteEmptyConversations(tx *gorm.DB, candidates []uuid.UUID) (int64, []uuid.UUID, error) {
	if candidates != nil && len(candidates) == 0 {
		return 0, nil, nil
	}
	q := tx.Model(&model.Conversation{}).
		Where("NOT EXISTS (SELECT 1 FROM conversation_participants cp WHERE cp.conversation_id = conversations.id)")
	if candidates != nil {
		q = q.Where("id IN ?", candidates)
	}
	var empty []uuid.UUID
	if err := q.Pluck("id", &empty).Error; err != nil {
		return 0, nil, err
	}

	var (
		deleted   int64
		receivers []uuid.UUID
	)
	for _, chunk := range chunkIDs(empty, deleteChunkSize) {
		var unread []uuid.UUID
		err := tx.Model(&model.Message{}).
			Where("conversation_id IN ? AND receiver_id IS NOT NULL AND is_read = ?", chunk, false).
			Distinct("receiver_id").
			Pluck("receiver_id", &unread).Error
		if err != nil {
			return 0, nil, err
		}
		receivers = append(receivers, unread...)

		res := tx.Where("id IN ?", chunk).Delete(&model.Conversation{})
		if res.Error != nil {
			return 0, nil, res.Error
		}
		deleted += res.RowsAffected
	}
	return deleted, receivers, nil
}

func requireConversation(db *gorm.DB, conversationID uuid.UUID) error {
	var count int64
	if err := db.Model(&model.Conversation{}).Where("id = ?", conversationID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to look up conversation: %w", err)
	}
	if count == 0 {
		return &NotFoundError{Resource: "conversation", ID: conversationID.String()}
	}
	return nil
}

func isParticipant(db *gorm.DB, conversationID, userID uuid.UUID) (bool, error) {
	var count int64
	err := db.Model(&model.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check participant: %w", err)
	}
	return count > 0, nil
}

// requireVisible reports a conversation the user does not take part in as not
// found, so reads do not reveal which conversations exist.
func requireVisible(db *gorm.DB, conversationID, userID uuid.UUID) error {
	ok, err := isParticipant(db, conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return &NotFoundError{Resource: "conversation", ID: conversationID.String()}
	}
	return nil
}

// requireMember is the write-side check: a missing conversation is not found,
// an existing one the user is not part of is forbidden.
func requireMember(db *gorm.DB, conversationID, userID uuid.UUID) error {
	if err := requireConversation(db, conversationID); err != nil {
		return err
	}
	ok, err := isParticipant(db, conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return &ForbiddenError{Reason: "not a participant of the conversation"}
	}
	return nil
}

func chunkIDs(ids []uuid.UUID, size int) [][]uuid.UUID {
	var chunks [][]uuid.UUID
	for len(ids) > 0 {
		n := min(size, len(ids))
		chunks = append(chunks, ids[:n])
		ids = ids[n:]
	}
	return chunks
}
