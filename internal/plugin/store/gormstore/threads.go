package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chirino/messaging-service/internal/model"
	registrystore "github.com/chirino/messaging-service/internal/registry/store"
	"github.com/chirino/messaging-service/internal/thread"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// subtreeIDsSQL lists a message and all of its descendants.
const subtreeIDsSQL = `
WITH RECURSIVE message_tree(id, depth) AS (
    SELECT id, 0 FROM messages WHERE id = ?
    UNION ALL
    SELECT m.id, mt.depth + 1
    FROM messages m
    JOIN message_tree mt ON m.parent_message_id = mt.id
)
SELECT id FROM message_tree`

type idRow struct {
	ID uuid.UUID
}

// GetRootMessages returns the messages of a conversation that start a thread.
func (s *Store) GetRootMessages(ctx context.Context, conversationID uuid.UUID) ([]model.Message, error) {
	db := s.db.WithContext(ctx)
	if err := requireConversation(db, conversationID); err != nil {
		return nil, err
	}
	var msgs []model.Message
	q := db.Preload("Sender").Where("conversation_id = ? AND parent_message_id IS NULL", conversationID)
	if err := byPostingOrder(q).Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to get root messages: %w", err)
	}
	return msgs, nil
}

// GetThreadTree loads every message of the conversation in one query and
// links them into a forest in memory.
func (s *Store) GetThreadTree(ctx context.Context, conversationID uuid.UUID) ([]*thread.Node, error) {
	db := s.db.WithContext(ctx)
	if err := requireConversation(db, conversationID); err != nil {
		return nil, err
	}
	var msgs []model.Message
	if err := db.Preload("Sender").Where("conversation_id = ?", conversationID).Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to load thread: %w", err)
	}
	return thread.Build(msgs), nil
}

func (s *Store) GetMessageWithReplies(ctx context.Context, messageID uuid.UUID) (*registrystore.MessageSubtree, error) {
	db := s.db.WithContext(ctx)
	if s.threadStrategy() == registrystore.ThreadStrategyPrefetch {
		return prefetchSubtree(db, messageID)
	}
	return recursiveSubtree(db, messageID)
}

func recursiveSubtree(db *gorm.DB, messageID uuid.UUID) (*registrystore.MessageSubtree, error) {
	var rows []idRow
	if err := db.Raw(subtreeIDsSQL, messageID).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to collect replies: %w", err)
	}
	if len(rows) == 0 {
		return nil, &NotFoundError{Resource: "message", ID: messageID.String()}
	}
	ids := make([]uuid.UUID, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}

	var msgs []model.Message
	for _, chunk := range chunkIDs(ids, deleteChunkSize) {
		var part []model.Message
		if err := db.Preload("Sender").Where("id IN ?", chunk).Find(&part).Error; err != nil {
			return nil, fmt.Errorf("failed to load replies: %w", err)
		}
		msgs = append(msgs, part...)
	}
	root := thread.Subtree(messageID, msgs)
	if root == nil {
		return nil, &NotFoundError{Resource: "message", ID: messageID.String()}
	}
	return &registrystore.MessageSubtree{Root: root, Strategy: registrystore.ThreadStrategyRecursive}, nil
}

// prefetchSubtree eagerly loads PrefetchDepth levels of replies. Deeper
// replies are not returned; Truncated tells the caller they exist.
func prefetchSubtree(db *gorm.DB, messageID uuid.UUID) (*registrystore.MessageSubtree, error) {
	q := db.Preload("Sender")
	path := ""
	for level := 0; level < registrystore.PrefetchDepth; level++ {
		path = strings.TrimPrefix(path+".Replies", ".")
		q = q.Preload(path, byPostingOrder).Preload(path + ".Sender")
	}

	var root model.Message
	if err := q.Where("id = ?", messageID).Take(&root).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "message", ID: messageID.String()}
		}
		return nil, fmt.Errorf("failed to load replies: %w", err)
	}

	frontier := []model.Message{root}
	for level := 0; level < registrystore.PrefetchDepth; level++ {
		var next []model.Message
		for _, m := range frontier {
			next = append(next, m.Replies...)
		}
		frontier = next
	}
	truncated := false
	if len(frontier) > 0 {
		ids := make([]uuid.UUID, len(frontier))
		for i, m := range frontier {
			ids[i] = m.ID
		}
		var deeper int64
		if err := db.Model(&model.Message{}).Where("parent_message_id IN ?", ids).Count(&deeper).Error; err != nil {
			return nil, fmt.Errorf("failed to check reply depth: %w", err)
		}
		truncated = deeper > 0
	}

	return &registrystore.MessageSubtree{
		Root:      thread.FromPreloaded(root),
		Strategy:  registrystore.ThreadStrategyPrefetch,
		Truncated: truncated,
	}, nil
}

// GetThreadDepth returns how many replies separate a message from its thread
// root. Roots have depth zero.
func (s *Store) GetThreadDepth(ctx context.Context, messageID uuid.UUID) (int, error) {
	db := s.db.WithContext(ctx)
	var msg model.Message
	if err := db.Select("id", "conversation_id").Where("id = ?", messageID).Take(&msg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, &NotFoundError{Resource: "message", ID: messageID.String()}
		}
		return 0, fmt.Errorf("failed to get message: %w", err)
	}

	var links []struct {
		ID              uuid.UUID
		ParentMessageID *uuid.UUID
	}
	err := db.Model(&model.Message{}).
		Select("id", "parent_message_id").
		Where("conversation_id = ?", msg.ConversationID).
		Scan(&links).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load reply chain: %w", err)
	}
	parents := make(map[uuid.UUID]*uuid.UUID, len(links))
	for _, l := range links {
		parents[l.ID] = l.ParentMessageID
	}
	depth, err := thread.Depth(parents, messageID)
	if err != nil {
		return 0, &IntegrityError{Op: "thread depth", Err: err}
	}
	return depth, nil
}
