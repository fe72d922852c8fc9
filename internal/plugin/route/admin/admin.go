package admin

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	registryroute "github.com/chirino/messaging-service/internal/registry/route"
	registrystore "github.com/chirino/messaging-service/internal/registry/store"
	"github.com/chirino/messaging-service/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Name:   "admin",
		Order:  200,
		Loader: MountRoutes,
	})
}

// MountRoutes mounts admin API routes.
func MountRoutes(r *gin.Engine, deps registryroute.Deps) error {
	store := deps.Store
	handlers := append(append([]gin.HandlerFunc{}, deps.Auth...), security.RequireAdminRole())
	g := r.Group("/v1/admin", handlers...)

	g.GET("/users/:userId", func(c *gin.Context) {
		adminGetUser(c, store)
	})
	g.DELETE("/users/:userId", func(c *gin.Context) {
		adminDeleteUser(c, store)
	})
	g.POST("/evict", func(c *gin.Context) {
		adminEvict(c, store)
	})
	return nil
}

func adminGetUser(c *gin.Context, store registrystore.MessagingStore) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	user, err := store.GetUser(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func adminDeleteUser(c *gin.Context, store registrystore.MessagingStore) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	if err := store.DeleteUser(c.Request.Context(), userID); err != nil {
		handleError(c, err)
		return
	}
	log.Info("Admin deleted user", "user", userID, "caller", security.GetEmail(c))
	c.Status(http.StatusNoContent)
}

// adminEvict removes read notifications older than the retention period and
// conversations that no longer have participants.
func adminEvict(c *gin.Context, store registrystore.MessagingStore) {
	var req struct {
		RetentionPeriod string   `json:"retentionPeriod" binding:"required"`
		ResourceTypes   []string `json:"resourceTypes"   binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.ResourceTypes) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "resourceTypes is required"})
		return
	}
	kinds := map[string]bool{}
	for _, resourceType := range req.ResourceTypes {
		kind := strings.TrimSpace(strings.ToLower(resourceType))
		if kind != "notifications" && kind != "conversations" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported resource type: " + resourceType})
			return
		}
		kinds[kind] = true
	}

	duration, err := parseDuration(req.RetentionPeriod)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid retention period: %v", err)})
		return
	}
	cutoff := time.Now().Add(-duration)

	result := gin.H{}
	if kinds["notifications"] {
		n, err := store.PurgeReadNotifications(c.Request.Context(), cutoff)
		if err != nil {
			handleError(c, err)
			return
		}
		security.RecordEvicted("notifications", n)
		result["notifications"] = n
	}
	if kinds["conversations"] {
		n, err := store.DeleteEmptyConversations(c.Request.Context())
		if err != nil {
			handleError(c, err)
			return
		}
		security.RecordEvicted("conversations", n)
		result["conversations"] = n
	}
	c.JSON(http.StatusOK, result)
}

func parseDuration(iso string) (time.Duration, error) {
	// Simple ISO 8601 duration parser for common formats
	// P30D = 30 days, PT1H = 1 hour, PT30M = 30 minutes
	if len(iso) < 2 || iso[0] != 'P' {
		return 0, fmt.Errorf("not an ISO 8601 duration: %s", iso)
	}
	s := iso[1:]
	inTime := false
	var d time.Duration
	numBuf := ""
	for _, ch := range s {
		switch {
		case ch == 'T':
			inTime = true
		case ch >= '0' && ch <= '9':
			numBuf += string(ch)
		default:
			n, err := strconv.Atoi(numBuf)
			if err != nil {
				return 0, fmt.Errorf("invalid number in duration: %s", numBuf)
			}
			numBuf = ""
			switch {
			case ch == 'D' && !inTime:
				d += time.Duration(n) * 24 * time.Hour
			case ch == 'W' && !inTime:
				d += time.Duration(n) * 7 * 24 * time.Hour
			case ch == 'H' && inTime:
				d += time.Duration(n) * time.Hour
			case ch == 'M' && inTime:
				d += time.Duration(n) * time.Minute
			case ch == 'S' && inTime:
				d += time.Duration(n) * time.Second
			default:
				return 0, fmt.Errorf("unsupported duration unit: %c", ch)
			}
		}
	}
	if numBuf != "" {
		return 0, fmt.Errorf("missing unit after %s", numBuf)
	}
	return d, nil
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
	var forbidden *registrystore.ForbiddenError
	var conflict *registrystore.ConflictError
	var validation *registrystore.ValidationError
	var integrity *registrystore.IntegrityError
	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": err.Error()})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"code": "conflict", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": validation.Field})
	case errors.As(err, &integrity):
		log.Error("Admin API integrity failure", "op", integrity.Op, "err", integrity.Err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": "integrity_error", "error": "operation failed and was rolled back"})
	default:
		log.Error("Admin API error", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
