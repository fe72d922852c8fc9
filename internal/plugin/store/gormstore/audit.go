package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chirino/messaging-service/internal/model"
	"github.com/chirino/messaging-service/internal/security"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpdateMessage replaces the body of a message. The previous body is kept as
// a MessageHistory row written in the same transaction as the update, so an
// edit either leaves both or neither.
func (s *Store) UpdateMessage(ctx context.Context, editorID uuid.UUID, messageID uuid.UUID, body string) (*model.Message, error) {
	db := s.db.WithContext(ctx)
	msg, err := loadMessage(db, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != editorID {
		return nil, &ForbiddenError{Reason: "only the sender can edit a message"}
	}
	if strings.TrimSpace(body) == "" {
		return nil, &ValidationError{Field: "body", Message: "must not be empty"}
	}
	if body == msg.Body {
		return msg, nil
	}

	captured := false
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		captured, err = captureEdit(tx, messageID, editorID, body)
		if err != nil {
			return &IntegrityError{Op: "edit audit", Err: err}
		}
		res := tx.Model(&model.Message{}).
			Where("id = ?", messageID).
			Updates(map[string]any{"body": body, "edited": true})
		if res.Error != nil {
			return fmt.Errorf("failed to update message: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return &NotFoundError{Resource: "message", ID: messageID.String()}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if captured {
		security.RecordMessageEdit()
	}
	return loadMessage(db, messageID)
}

// captureEdit snapshots the stored body before it is replaced by newBody. The
// row is locked for the rest of the transaction where the database supports
// it. A row that no longer exists or whose body is unchanged records nothing.
func captureEdit(tx *gorm.DB, messageID, editorID uuid.UUID, newBody string) (bool, error) {
	var current model.Message
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "body").
		Where("id = ?", messageID).
		Take(&current).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if current.Body == newBody {
		return false, nil
	}
	history := model.MessageHistory{
		ID:         uuid.New(),
		MessageID:  messageID,
		OldContent: current.Body,
		EditedByID: &editorID,
		EditedAt:   model.Now(),
	}
	if err := tx.Create(&history).Error; err != nil {
		return false, err
	}
	return true, nil
}
