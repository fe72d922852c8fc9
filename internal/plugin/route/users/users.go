package users

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/chirino/messaging-service/internal/model"
	registryroute "github.com/chirino/messaging-service/internal/registry/route"
	registrystore "github.com/chirino/messaging-service/internal/registry/store"
	"github.com/chirino/messaging-service/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Name:   "users",
		Order:  100,
		Loader: MountRoutes,
	})
}

// MountRoutes mounts user account routes. Registration is open; everything
// else requires an authenticated caller with an account.
func MountRoutes(r *gin.Engine, deps registryroute.Deps) error {
	store := deps.Store

	r.POST("/v1/users", func(c *gin.Context) {
		createUser(c, store)
	})

	g := r.Group("/v1", deps.Auth...)
	g.GET("/users/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, security.CurrentUser(c))
	})
	g.DELETE("/users/me", func(c *gin.Context) {
		deleteSelf(c, store)
	})
	g.GET("/users/:userId", func(c *gin.Context) {
		getUser(c, store)
	})
	return nil
}

func createUser(c *gin.Context, store registrystore.MessagingStore) {
	var req registrystore.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Role == model.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": "admin accounts cannot be self-registered"})
		return
	}
	user, err := store.CreateUser(c.Request.Context(), req)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func getUser(c *gin.Context, store registrystore.MessagingStore) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "invalid userId"})
		return
	}
	user, err := store.GetUser(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func deleteSelf(c *gin.Context, store registrystore.MessagingStore) {
	var req struct {
		ConfirmDeletion bool `json:"confirmDeletion"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || !req.ConfirmDeletion {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "confirmDeletion must be true", "field": "confirmDeletion"})
		return
	}
	user := security.CurrentUser(c)
	if err := store.DeleteUser(c.Request.Context(), user.ID); err != nil {
		handleError(c, err)
		return
	}
	log.Info("User deleted own account", "user", user.ID)
	c.Status(http.StatusNoContent)
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
		c.JSON(http.StatusConflict, gin.H{"code": conflict.Code, "error": err.Error()})
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": err.Error()})
	case errors.As(err, &integrity):
		log.Error("User operation rolled back", "op", integrity.Op, "err", integrity.Err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": "integrity_error", "error": "operation failed and was rolled back"})
	default:
		log.Error("User API error", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
