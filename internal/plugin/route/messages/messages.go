package messages

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	registryroute "github.com/chirino/messaging-service/internal/registry/route"
	registrystore "github.com/chirino/messaging-service/internal/registry/store"
	"github.com/chirino/messaging-service/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Name:   "messages",
		Order:  120,
		Loader: MountRoutes,
	})
}

// MountRoutes mounts single-message routes: edits, deletes, history and
// reply subtrees.
func MountRoutes(r *gin.Engine, deps registryroute.Deps) error {
	store := deps.Store
	g := r.Group("/v1/messages/:messageId", deps.Auth...)

	g.GET("", func(c *gin.Context) {
		getMessage(c, store)
	})
	g.PATCH("", func(c *gin.Context) {
		updateMessage(c, store)
	})
	g.DELETE("", func(c *gin.Context) {
		deleteMessage(c, store)
	})
	g.GET("/replies", func(c *gin.Context) {
		getReplies(c, store)
	})
	g.GET("/history", func(c *gin.Context) {
		getHistory(c, store)
	})
	g.GET("/depth", func(c *gin.Context) {
		getDepth(c, store)
	})
	return nil
}

func messageID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "invalid messageId"})
		return uuid.Nil, false
	}
	return id, true
}

// visibleMessage loads the path message when the caller can see it.
func visibleMessage(c *gin.Context, store registrystore.MessagingStore) (uuid.UUID, bool) {
	id, ok := messageID(c)
	if !ok {
		return uuid.Nil, false
	}
	if _, err := store.GetMessage(c.Request.Context(), security.CurrentUser(c).ID, id); err != nil {
		handleError(c, err)
		return uuid.Nil, false
	}
	return id, true
}

func getMessage(c *gin.Context, store registrystore.MessagingStore) {
	id, ok := messageID(c)
	if !ok {
		return
	}
	msg, err := store.GetMessage(c.Request.Context(), security.CurrentUser(c).ID, id)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func updateMessage(c *gin.Context, store registrystore.MessagingStore) {
	id, ok := messageID(c)
	if !ok {
		return
	}
	var req struct {
		Body string `json:"body"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg, err := store.UpdateMessage(c.Request.Context(), security.CurrentUser(c).ID, id, req.Body)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func deleteMessage(c *gin.Context, store registrystore.MessagingStore) {
	id, ok := messageID(c)
	if !ok {
		return
	}
	if err := store.DeleteMessage(c.Request.Context(), security.CurrentUser(c).ID, id); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func getReplies(c *gin.Context, store registrystore.MessagingStore) {
	id, ok := visibleMessage(c, store)
	if !ok {
		return
	}
	subtree, err := store.GetMessageWithReplies(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, subtree)
}

func getHistory(c *gin.Context, store registrystore.MessagingStore) {
	id, ok := messageID(c)
	if !ok {
		return
	}
	history, err := store.GetMessageHistory(c.Request.Context(), security.CurrentUser(c).ID, id)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": history})
}

func getDepth(c *gin.Context, store registrystore.MessagingStore) {
	id, ok := visibleMessage(c, store)
	if !ok {
		return
	}
	depth, err := store.GetThreadDepth(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messageId": id, "depth": depth})
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var forbidden *registrystore.ForbiddenError
	var integrity *registrystore.IntegrityError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": validation.Field})
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": err.Error()})
	case errors.As(err, &integrity):
		log.Error("Message operation rolled back", "op", integrity.Op, "err", integrity.Err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": "integrity_error", "error": "operation failed and was rolled back"})
	default:
		log.Error("Message API error", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
