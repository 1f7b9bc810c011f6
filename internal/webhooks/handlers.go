package webhooks

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/paydesk/ipintel/internal/auth"
	"github.com/paydesk/ipintel/internal/security"
)

// Handler provides HTTP endpoints for webhook management
type Handler struct {
	store Store

	// urlValidator rejects unsafe endpoints at subscription time.
	// Overridable in tests that register loopback servers.
	urlValidator func(string) error
}

// NewHandler creates a new webhook handler
func NewHandler(store Store) *Handler {
	return &Handler{
		store:        store,
		urlValidator: security.ValidateEndpointURL,
	}
}

// RegisterRoutes sets up webhook routes. Callers manage only their
// own subscriptions, scoped by the authenticated key's owner.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/webhooks/events", h.ListEventTypes)
	r.POST("/webhooks", auth.RequireAuth(), h.CreateWebhook)
	r.GET("/webhooks", auth.RequireAuth(), h.ListWebhooks)
	r.DELETE("/webhooks/:webhookId", auth.RequireAuth(), h.DeleteWebhook)
}

// ListEventTypes handles GET /webhooks/events
func (h *Handler) ListEventTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"events": []gin.H{
			{"type": EventScreeningCompleted, "description": "Every finished screening"},
			{"type": EventScreeningFlagged, "description": "Screenings with a high or critical verdict"},
			{"type": EventScreeningBlocked, "description": "Screenings recommending a block"},
		},
	})
}

// CreateWebhookRequest for creating a webhook subscription
type CreateWebhookRequest struct {
	URL    string   `json:"url" binding:"required"`
	Events []string `json:"events" binding:"required"`
}

// CreateWebhook handles POST /webhooks
func (h *Handler) CreateWebhook(c *gin.Context) {
	owner := auth.GetOwner(c)

	var req CreateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "url and events are required",
		})
		return
	}

	if err := h.urlValidator(req.URL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_url",
			"message": err.Error(),
		})
		return
	}

	events := make([]EventType, len(req.Events))
	for i, e := range req.Events {
		et := EventType(e)
		if !IsKnownEventType(et) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "unknown_event",
				"message": "Unknown event type: " + e,
			})
			return
		}
		events[i] = et
	}

	id := generateID("wh_")
	secret := generateSecret()

	sub := &Subscription{
		ID:        id,
		Owner:     owner,
		URL:       req.URL,
		Secret:    secret,
		Events:    events,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.store.Create(c.Request.Context(), sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "create_failed",
			"message": "Failed to create webhook",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"webhook": gin.H{
			"id":         sub.ID,
			"url":        sub.URL,
			"events":     sub.Events,
			"active":     sub.Active,
			"created_at": sub.CreatedAt,
		},
		"secret": secret, // Only shown once!
		"usage": gin.H{
			"signature": "Verify with HMAC-SHA256(payload, secret)",
			"header":    "X-Ipintel-Signature",
		},
	})
}

// ListWebhooks handles GET /webhooks
func (h *Handler) ListWebhooks(c *gin.Context) {
	owner := auth.GetOwner(c)

	subs, err := h.store.GetByOwner(c.Request.Context(), owner)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "list_failed",
			"message": "Failed to list webhooks",
		})
		return
	}

	// Don't expose secrets
	webhooks := make([]gin.H, len(subs))
	for i, sub := range subs {
		webhooks[i] = gin.H{
			"id":                   sub.ID,
			"url":                  sub.URL,
			"events":               sub.Events,
			"active":               sub.Active,
			"created_at":           sub.CreatedAt,
			"last_success":         sub.LastSuccess,
			"last_error":           sub.LastError,
			"consecutive_failures": sub.ConsecutiveFailures,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"webhooks": webhooks,
	})
}

// DeleteWebhook handles DELETE /webhooks/:webhookId
func (h *Handler) DeleteWebhook(c *gin.Context) {
	owner := auth.GetOwner(c)
	webhookID := c.Param("webhookId")

	sub, err := h.store.Get(c.Request.Context(), webhookID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Webhook not found",
		})
		return
	}
	if sub.Owner != owner {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "Webhook belongs to another owner",
		})
		return
	}

	if err := h.store.Delete(c.Request.Context(), webhookID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "delete_failed",
			"message": "Failed to delete webhook",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "deleted",
		"message": "Webhook deleted",
	})
}

func generateID(prefix string) string {
	b := make([]byte, 12)
	rand.Read(b)
	return prefix + hex.EncodeToString(b)
}

func generateSecret() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}
