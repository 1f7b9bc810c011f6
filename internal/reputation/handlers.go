package reputation

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/paydesk/ipintel/internal/validation"
)

// EventEmitter receives admin cache updates for real-time streaming.
type EventEmitter interface {
	EmitReputationUpdate(data map[string]interface{})
}

// Handler provides HTTP endpoints for the reputation cache.
type Handler struct {
	store  Store
	events EventEmitter
}

// NewHandler creates a reputation handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// WithEvents adds a real-time event emitter for admin updates.
func (h *Handler) WithEvents(e EventEmitter) *Handler {
	h.events = e
	return h
}

// RegisterRoutes sets up the public reputation endpoints.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/reputation/:ip", validation.IPParamMiddleware(), h.GetReputation)
}

// RegisterAdminRoutes sets up the admin seed/override endpoint.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.PUT("/reputation/:ip", validation.IPParamMiddleware(), h.PutReputation)
}

// GetReputation returns the cached classification for an IP.
// GET /v1/reputation/:ip
func (h *Handler) GetReputation(c *gin.Context) {
	ip := c.Param("ip")

	rec, tier, err := h.store.Lookup(c.Request.Context(), ip)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "ip_not_found",
				"message": "IP is not present in any reputation tier",
			})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "store_unavailable",
			"message": "Reputation store is temporarily unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"record": rec,
		"tier":   tier,
	})
}

// upsertRequest is the body for seeding or overriding a cached record.
type upsertRequest struct {
	Country    string  `json:"country"`
	IsVPN      bool    `json:"is_vpn"`
	IsProxy    bool    `json:"is_proxy"`
	IsTor      bool    `json:"is_tor"`
	IsRelay    bool    `json:"is_relay"`
	Confidence float64 `json:"confidence"`
}

// PutReputation seeds or overrides the cached record for an IP. The target
// tier is derived from the flags in the body.
// PUT /v1/admin/reputation/:ip
func (h *Handler) PutReputation(c *gin.Context) {
	ip := c.Param("ip")

	var req upsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must be a valid classification",
		})
		return
	}

	if verrs := validation.Validate(
		validation.ValidCountryCode("country", req.Country),
	); len(verrs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": verrs.Error(),
		})
		return
	}
	if req.Confidence < 0 || req.Confidence > 1 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "confidence must be between 0 and 1",
		})
		return
	}

	rec := &Record{
		IP:         ip,
		Country:    validation.SanitizeCountryCode(req.Country),
		IsVPN:      req.IsVPN,
		IsProxy:    req.IsProxy,
		IsTor:      req.IsTor,
		IsRelay:    req.IsRelay,
		Confidence: req.Confidence,
		LastSeen:   time.Now().UTC(),
	}

	if err := h.store.Upsert(c.Request.Context(), rec); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "store_unavailable",
			"message": "Reputation store is temporarily unavailable",
		})
		return
	}

	if h.events != nil {
		h.events.EmitReputationUpdate(map[string]interface{}{
			"ip":         rec.IP,
			"tier":       string(rec.StorageTier()),
			"country":    rec.Country,
			"confidence": rec.Confidence,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"record": rec,
		"tier":   rec.StorageTier(),
	})
}
