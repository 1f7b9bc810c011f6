package geodata

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/paydesk/ipintel/internal/validation"
)

// Handler provides country reference endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a geodata handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes sets up the country lookup endpoint.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/countries/:code", h.GetCountry)
}

// GetCountry returns reference metadata for a country code. The sanctioned
// flag is answered even when the dataset itself has no entry for the code.
// GET /v1/countries/:code
func (h *Handler) GetCountry(c *gin.Context) {
	code := c.Param("code")
	if !validation.IsValidCountryCode(code) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_country_code",
			"message": "code must be a two-letter ISO 3166-1 country code",
		})
		return
	}
	code = validation.SanitizeCountryCode(code)

	resp := gin.H{
		"code":       code,
		"sanctioned": IsSanctioned(code),
	}

	if country, ok := h.svc.Country(code); ok {
		resp["name"] = country.Name
		resp["region"] = country.Region
		resp["borders"] = country.Borders
	}

	c.JSON(http.StatusOK, resp)
}
