package conversations

import (
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	registryroute "github.com/chirino/messaging-service/internal/registry/route"
	registrystore "github.com/chirino/messaging-service/internal/registry/store"
	"github.com/chirino/messaging-service/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Name:   "conversations",
		Order:  110,
		Loader: MountRoutes,
	})
}

// MountRoutes mounts conversation, participant and per-conversation message routes.
func MountRoutes(r *gin.Engine, deps registryroute.Deps) error {
	store := deps.Store
	g := r.Group("/v1", deps.Auth...)

	g.GET("/conversations", func(c *gin.Context) {
		listConversations(c, store)
	})
	g.POST("/conversations", func(c *gin.Context) {
		createConversation(c, store)
	})
	g.GET("/conversations/:conversationId", func(c *gin.Context) {
		getConversation(c, store)
	})
	g.POST("/conversations/:conversationId/participants", func(c *gin.Context) {
		addParticipant(c, store)
	})
	g.DELETE("/conversations/:conversationId/participants/:userId", func(c *gin.Context) {
		removeParticipant(c, store)
	})
	g.GET("/conversations/:conversationId/messages", func(c *gin.Context) {
		listMessages(c, store)
	})
	g.POST("/conversations/:conversationId/messages", func(c *gin.Context) {
		createMessage(c, store)
	})
	g.GET("/conversations/:conversationId/roots", func(c *gin.Context) {
		listRoots(c, store)
	})
	g.GET("/conversations/:conversationId/threads", func(c *gin.Context) {
		getThreads(c, store)
	})
	g.GET("/conversations/:conversationId/unread", func(c *gin.Context) {
		listUnread(c, store)
	})
	g.GET("/conversations/:conversationId/unread/count", func(c *gin.Context) {
		countUnread(c, store)
	})
	return nil
}

func listConversations(c *gin.Context, store registrystore.MessagingStore) {
	user := security.CurrentUser(c)
	convs, err := store.ListConversations(c.Request.Context(), user.ID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": convs})
}

func createConversation(c *gin.Context, store registrystore.MessagingStore) {
	user := security.CurrentUser(c)
	var req struct {
		ParticipantIDs    []string `json:"participantIds"`
		ParticipantEmails []string `json:"participantEmails"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ids := make([]uuid.UUID, 0, len(req.ParticipantIDs)+len(req.ParticipantEmails))
	for _, raw := range req.ParticipantIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "invalid participant id: " + raw, "field": "participantIds"})
			return
		}
		ids = append(ids, id)
	}
	var unknown []string
	for _, email := range req.ParticipantEmails {
		u, err := store.GetUserByEmail(c.Request.Context(), email)
		if err != nil {
			var notFound *registrystore.NotFoundError
			if errors.As(err, &notFound) {
				unknown = append(unknown, email)
				continue
			}
			handleError(c, err)
			return
		}
		ids = append(ids, u.ID)
	}
	if len(unknown) > 0 {
		c.JSON(http.StatusNotFound, gin.H{
			"code":          "not_found",
			"error":         "unknown participant emails: " + strings.Join(unknown, ", "),
			"unknownEmails": unknown,
		})
		return
	}

	conv, err := store.CreateConversation(c.Request.Context(), user.ID, ids)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func getConversation(c *gin.Context, store registrystore.MessagingStore) {
	convID, ok := pathID(c, "conversationId")
	if !ok {
		return
	}
	conv, err := store.GetConversation(c.Request.Context(), security.CurrentUser(c).ID, convID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func addParticipant(c *gin.Context, store registrystore.MessagingStore) {
	convID, ok := pathID(c, "conversationId")
	if !ok {
		return
	}
	var req struct {
		UserID string `json:"userId"`
		Email  string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var userID uuid.UUID
	switch {
	case req.UserID != "":
		id, err := uuid.Parse(req.UserID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "invalid userId", "field": "userId"})
			return
		}
		userID = id
	case req.Email != "":
		u, err := store.GetUserByEmail(c.Request.Context(), req.Email)
		if err != nil {
			handleError(c, err)
			return
		}
		userID = u.ID
	default:
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "userId or email is required", "field": "userId"})
		return
	}

	actor := security.CurrentUser(c)
	if err := store.AddParticipant(c.Request.Context(), actor.ID, convID, userID); err != nil {
		handleError(c, err)
		return
	}
	conv, err := store.GetConversation(c.Request.Context(), actor.ID, convID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func removeParticipant(c *gin.Context, store registrystore.MessagingStore) {
	convID, ok := pathID(c, "conversationId")
	if !ok {
		return
	}
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	if err := store.RemoveParticipant(c.Request.Context(), security.CurrentUser(c).ID, convID, userID); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func listMessages(c *gin.Context, store registrystore.MessagingStore) {
	convID, ok := pathID(c, "conversationId")
	if !ok {
		return
	}
	user := security.CurrentUser(c)
	var err error
	var data any
	if c.Query("mine") == "true" {
		data, err = store.ListUserMessages(c.Request.Context(), user.ID, convID)
	} else {
		data, err = store.ListMessages(c.Request.Context(), user.ID, convID)
	}
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

func createMessage(c *gin.Context, store registrystore.MessagingStore) {
	convID, ok := pathID(c, "conversationId")
	if !ok {
		return
	}
	var req struct {
		Body            string     `json:"body"`
		ParentMessageID *uuid.UUID `json:"parentMessageId"`
		ReceiverID      *uuid.UUID `json:"receiverId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg, err := store.CreateMessage(c.Request.Context(), registrystore.CreateMessageRequest{
		ConversationID:  convID,
		SenderID:        security.CurrentUser(c).ID,
		Body:            req.Body,
		ParentMessageID: req.ParentMessageID,
		ReceiverID:      req.ReceiverID,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// visibleConversation resolves the path conversation and checks that the
// caller takes part in it.
func visibleConversation(c *gin.Context, store registrystore.MessagingStore) (uuid.UUID, bool) {
	convID, ok := pathID(c, "conversationId")
	if !ok {
		return uuid.Nil, false
	}
	if _, err := store.GetConversation(c.Request.Context(), security.CurrentUser(c).ID, convID); err != nil {
		handleError(c, err)
		return uuid.Nil, false
	}
	return convID, true
}

func listRoots(c *gin.Context, store registrystore.MessagingStore) {
	convID, ok := visibleConversation(c, store)
	if !ok {
		return
	}
	roots, err := store.GetRootMessages(c.Request.Context(), convID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": roots})
}

func getThreads(c *gin.Context, store registrystore.MessagingStore) {
	convID, ok := visibleConversation(c, store)
	if !ok {
		return
	}
	tree, err := store.GetThreadTree(c.Request.Context(), convID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tree})
}

func listUnread(c *gin.Context, store registrystore.MessagingStore) {
	convID, ok := visibleConversation(c, store)
	if !ok {
		return
	}
	rows, err := store.UnreadForUser(c.Request.Context(), security.CurrentUser(c).ID, &convID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows})
}

func countUnread(c *gin.Context, store registrystore.MessagingStore) {
	convID, ok := visibleConversation(c, store)
	if !ok {
		return
	}
	n, err := store.UnreadCountForUser(c.Request.Context(), security.CurrentUser(c).ID, &convID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var conflict *registrystore.ConflictError
	var forbidden *registrystore.ForbiddenError
	var integrity *registrystore.IntegrityError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": validation.Field})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": err.Error()})
	case errors.As(err, &integrity):
		log.Error("Conversation operation rolled back", "op", integrity.Op, "err", integrity.Err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": "integrity_error", "error": "operation failed and was rolled back"})
	default:
		log.Error("Conversation API error", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
