package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for auth management
type Handler struct {
	manager *Manager
}

// NewHandler creates a new auth handler
func NewHandler(m *Manager) *Handler {
	return &Handler{manager: m}
}

// RegisterRoutes mounts the caller-facing auth endpoints.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/auth/info", h.Info)
	r.GET("/auth/whoami", RequireAuth(), h.WhoAmI)
}

// RegisterAdminRoutes mounts key management under the admin group.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/keys", h.CreateKey)
	r.GET("/keys", h.ListKeys)
	r.DELETE("/keys/:keyId", h.RevokeKey)
}

// Info returns auth configuration info
func (h *Handler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"type":       "api_key",
		"header":     "Authorization: Bearer sk_...",
		"alt_header": "X-API-Key: sk_...",
		"note":       "Keys are issued through the admin API. Store them securely.",
		"public_endpoints": []string{
			"GET /health",
			"GET /v1/auth/info",
			"GET /v1/countries/:code",
		},
		"protected_endpoints": []string{
			"POST /v1/screenings",
			"GET /v1/reputation/:ip",
			"POST /v1/webhooks",
			"GET /v1/ws",
		},
	})
}

// WhoAmI returns info about the authenticated caller
func (h *Handler) WhoAmI(c *gin.Context) {
	key, ok := GetAPIKey(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"owner":      key.Owner,
		"key_id":     key.ID,
		"key_name":   key.Name,
		"created_at": key.CreatedAt,
		"last_used":  key.LastUsed,
	})
}

// CreateKeyRequest is the request body for creating a key
type CreateKeyRequest struct {
	Owner         string `json:"owner" binding:"required"`
	Name          string `json:"name"`
	ExpiresInDays int    `json:"expires_in_days"`
}

// CreateKey issues a new API key
func (h *Handler) CreateKey(c *gin.Context) {
	var req CreateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "owner is required",
		})
		return
	}
	if req.Name == "" {
		req.Name = "Default key"
	}

	var expiresAt *time.Time
	if req.ExpiresInDays > 0 {
		t := time.Now().UTC().AddDate(0, 0, req.ExpiresInDays)
		expiresAt = &t
	}

	rawKey, newKey, err := h.manager.GenerateKey(c.Request.Context(), req.Owner, req.Name, expiresAt)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed_to_create_key",
			"message": "Failed to create API key",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"api_key":    rawKey,
		"key_id":     newKey.ID,
		"owner":      newKey.Owner,
		"name":       newKey.Name,
		"expires_at": newKey.ExpiresAt,
		"warning":    "Store this key securely. It will not be shown again.",
	})
}

// ListKeys returns API keys for an owner
func (h *Handler) ListKeys(c *gin.Context) {
	owner := c.Query("owner")
	if owner == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_owner",
			"message": "owner query parameter is required",
		})
		return
	}

	keys, err := h.manager.ListKeys(c.Request.Context(), owner)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed_to_list_keys",
		})
		return
	}

	// Don't expose hashes
	safeKeys := make([]gin.H, len(keys))
	for i, k := range keys {
		safeKeys[i] = gin.H{
			"id":         k.ID,
			"name":       k.Name,
			"owner":      k.Owner,
			"created_at": k.CreatedAt,
			"last_used":  k.LastUsed,
			"expires_at": k.ExpiresAt,
			"revoked":    k.Revoked,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"keys":  safeKeys,
		"count": len(safeKeys),
	})
}

// RevokeKey revokes an API key
func (h *Handler) RevokeKey(c *gin.Context) {
	keyID := c.Param("keyId")

	if err := h.manager.RevokeKey(c.Request.Context(), keyID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "key_not_found",
			"message": "Key not found or already revoked",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Key revoked",
		"key_id":  keyID,
	})
}
