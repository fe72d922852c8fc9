package unread

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	registryroute "github.com/chirino/messaging-service/internal/registry/route"
	registrystore "github.com/chirino/messaging-service/internal/registry/store"
	"github.com/chirino/messaging-service/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Name:   "unread",
		Order:  130,
		Loader: MountRoutes,
	})
}

// MountRoutes mounts the caller's unread message and notification routes.
func MountRoutes(r *gin.Engine, deps registryroute.Deps) error {
	store := deps.Store
	g := r.Group("/v1", deps.Auth...)

	g.GET("/unread", func(c *gin.Context) {
		rows, err := store.UnreadForUser(c.Request.Context(), security.CurrentUser(c).ID, nil)
		if err != nil {
			handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": rows})
	})
	g.GET("/unread/count", func(c *gin.Context) {
		n, err := store.UnreadCountForUser(c.Request.Context(), security.CurrentUser(c).ID, nil)
		if err != nil {
			handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": n})
	})
	g.POST("/unread/mark-read", func(c *gin.Context) {
		markRead(c, store)
	})
	g.GET("/notifications", func(c *gin.Context) {
		listNotifications(c, store)
	})
	g.POST("/notifications/mark-read", func(c *gin.Context) {
		markNotificationsRead(c, store)
	})
	return nil
}

type idsRequest struct {
	IDs []uuid.UUID `json:"ids"`
}

func markRead(c *gin.Context, store registrystore.MessagingStore) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.IDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "ids is required", "field": "ids"})
		return
	}
	n, err := store.MarkAsRead(c.Request.Context(), security.CurrentUser(c).ID, req.IDs)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func listNotifications(c *gin.Context, store registrystore.MessagingStore) {
	unreadOnly := false
	if v := c.Query("unreadOnly"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "invalid unreadOnly", "field": "unreadOnly"})
			return
		}
		unreadOnly = b
	}
	rows, err := store.ListNotifications(c.Request.Context(), security.CurrentUser(c).ID, unreadOnly)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows})
}

// markNotificationsRead marks the listed notifications read, or all of the
// caller's notifications when no ids are sent.
func markNotificationsRead(c *gin.Context, store registrystore.MessagingStore) {
	var req idsRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	n, err := store.MarkNotificationsRead(c.Request.Context(), security.CurrentUser(c).ID, req.IDs)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var forbidden *registrystore.ForbiddenError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": validation.Field})
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": err.Error()})
	default:
		log.Error("Unread API error", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
