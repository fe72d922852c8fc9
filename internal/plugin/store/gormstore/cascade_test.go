package gormstore

import (
	"context"
	"errors"
	"testing"

	"github.com/chirino/messaging-service/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func countRows(t *testing.T, db *gorm.DB, m any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	q := db.Model(m)
	if where != "" {
		q = q.Where(where, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func TestDeleteUserSoleParticipant(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice", "Anders", model.RoleGuest)
	conv := createConversation(t, s, alice)
	first := post(t, s, conv, alice, "note to self")
	post(t, s, conv, alice, "and another", replyTo(first))
	_, err := s.UpdateMessage(ctx, alice.ID, first.ID, "edited note")
	require.NoError(t, err)

	require.NoError(t, s.DeleteUser(ctx, alice.ID))

	var notFound *NotFoundError
	_, err = s.GetUser(ctx, alice.ID)
	require.ErrorAs(t, err, &notFound)
	assert.Zero(t, countRows(t, s.db, &model.Conversation{}, ""))
	assert.Zero(t, countRows(t, s.db, &model.Message{}, ""))
	assert.Zero(t, countRows(t, s.db, &model.MessageHistory{}, ""))
	assert.Zero(t, countRows(t, s.db, &model.ConversationParticipant{}, ""))

	require.ErrorAs(t, s.DeleteUser(ctx, alice.ID), &notFound)
}

func TestDeleteUserSharedConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice", "Anders", model.RoleGuest)
	bob := createUser(t, s, "bob", "Brown", model.RoleGuest)
	carol := createUser(t, s, "carol", "Clark", model.RoleGuest)
	conv := createConversation(t, s, alice, bob, carol)

	fromAlice := post(t, s, conv, alice, "from alice", to(bob))
	post(t, s, conv, bob, "reply under alice", replyTo(fromAlice))
	post(t, s, conv, bob, "to alice", to(alice))
	keep := post(t, s, conv, bob, "to carol", to(carol))
	keptReply := post(t, s, conv, carol, "carol replies", replyTo(keep))
	_, err := s.UpdateMessage(ctx, alice.ID, fromAlice.ID, "from alice, edited")
	require.NoError(t, err)

	require.NoError(t, s.DeleteUser(ctx, alice.ID))

	msgs, err := s.ListMessages(ctx, bob.ID, conv.ID)
	require.NoError(t, err)
	var ids []uuid.UUID
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{keep.ID, keptReply.ID}, ids)

	conversation, err := s.GetConversation(ctx, bob.ID, conv.ID)
	require.NoError(t, err)
	require.Len(t, conversation.Participants, 2)

	assert.Zero(t, countRows(t, s.db, &model.Notification{}, "recipient_id = ? OR actor_id = ?", alice.ID, alice.ID))
	assert.Zero(t, countRows(t, s.db, &model.MessageHistory{}, ""))
	assert.Zero(t, countRows(t, s.db, &model.Notification{}, "message_id = ?", fromAlice.ID))

	count, err := s.UnreadCountForUser(ctx, bob.ID, nil)
	require.NoError(t, err)
	assert.Zero(t, count, "bob's unread message from alice went away with her")
}

func TestDeleteUserRollsBackOnFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice", "Anders", model.RoleGuest)
	bob := createUser(t, s, "bob", "Brown", model.RoleGuest)
	conv := createConversation(t, s, alice, bob)
	post(t, s, conv, alice, "Hello", to(bob))
	post(t, s, conv, bob, "Hi", to(alice))

	require.NoError(t, s.db.Callback().Delete().Before("gorm:delete").Register("test:fail_memberships", func(tx *gorm.DB) {
		if tx.Statement.Table == "conversation_participants" {
			_ = tx.AddError(errors.New("membership delete failed"))
		}
	}))

	err := s.DeleteUser(ctx, alice.ID)
	var integrity *IntegrityError
	require.ErrorAs(t, err, &integrity)

	_, err = s.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, countRows(t, s.db, &model.Message{}, ""))
	assert.EqualValues(t, 2, countRows(t, s.db, &model.Notification{}, ""))
	assert.EqualValues(t, 2, countRows(t, s.db, &model.ConversationParticipant{}, ""))
}
