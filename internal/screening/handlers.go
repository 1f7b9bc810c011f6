package screening

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/paydesk/ipintel/internal/validation"
)

// Handler provides the screening HTTP endpoint.
type Handler struct {
	svc *Service
}

// NewHandler creates a screening handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes sets up the screening endpoint.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/screenings", h.CreateScreening)
}

// CreateScreening screens a transaction's originating IP.
// POST /v1/screenings
func (h *Handler) CreateScreening(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "transaction_id, user_id, user_country, and ip_address are required",
		})
		return
	}

	if verrs := validation.Validate(
		validation.ValidIP("ip_address", req.IPAddress),
		validation.ValidCountryCode("user_country", req.UserCountry),
		validation.MaxLength("transaction_id", req.TransactionID, 128),
		validation.MaxLength("user_id", req.UserID, 128),
	); len(verrs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": verrs.Error(),
			"details": verrs,
		})
		return
	}

	res := h.svc.Screen(c.Request.Context(), &req)
	c.JSON(http.StatusOK, res)
}
