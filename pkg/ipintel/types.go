// Package ipintel provides a Go client for the ipintel screening API.
// This is the foundation for external integrations and the example agent.
package ipintel

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ScreeningRequest describes one transaction to screen.
type ScreeningRequest struct {
	TransactionID string `json:"transaction_id"`
	UserID        string `json:"user_id"`
	UserCountry   string `json:"user_country"`
	IPAddress     string `json:"ip_address"`
}

// SecurityFlags carries the anonymization flags detected for an IP.
type SecurityFlags struct {
	IsVPN   bool `json:"is_vpn"`
	IsProxy bool `json:"is_proxy"`
	IsTor   bool `json:"is_tor"`
	IsRelay bool `json:"is_relay"`
}

// TriggeredRule is one matched rule in a screening verdict.
type TriggeredRule struct {
	RuleName          string `json:"rule_name"`
	Severity          string `json:"severity"`
	Description       string `json:"description"`
	ScoreContribution int    `json:"score_contribution"`
}

// ScreeningResult is the verdict returned for a screened transaction.
type ScreeningResult struct {
	ScreeningID     string          `json:"screening_id"`
	RiskScore       int             `json:"risk_score"`
	RiskLevel       string          `json:"risk_level"`
	ShouldBlock     bool            `json:"should_block"`
	Confidence      float64         `json:"confidence"`
	UserCountry     string          `json:"user_country"`
	DetectedCountry string          `json:"detected_country"`
	CountriesMatch  bool            `json:"countries_match"`
	Security        SecurityFlags   `json:"security"`
	TriggeredRules  []TriggeredRule `json:"triggered_rules"`
	Recommendation  string          `json:"recommendation"`
	Timestamp       time.Time       `json:"timestamp"`
}

// ReputationRecord is a cached IP classification.
type ReputationRecord struct {
	IP         string    `json:"ip"`
	Country    string    `json:"country"`
	IsVPN      bool      `json:"is_vpn"`
	IsProxy    bool      `json:"is_proxy"`
	IsTor      bool      `json:"is_tor"`
	IsRelay    bool      `json:"is_relay"`
	Confidence float64   `json:"confidence"`
	LastSeen   time.Time `json:"last_seen"`
}

// ReputationResult is a cached record plus the tier it was found in.
type ReputationResult struct {
	Record ReputationRecord `json:"record"`
	Tier   string           `json:"tier"`
}

// ReputationSeed is the body for seeding or overriding a cached record.
// The server derives the target tier from the flags.
type ReputationSeed struct {
	Country    string  `json:"country"`
	IsVPN      bool    `json:"is_vpn"`
	IsProxy    bool    `json:"is_proxy"`
	IsTor      bool    `json:"is_tor"`
	IsRelay    bool    `json:"is_relay"`
	Confidence float64 `json:"confidence"`
}

// Country is reference metadata for a country code. Name, Region, and
// Borders are empty when the server's geodata set has no entry for the
// code; Sanctioned is always answered.
type Country struct {
	Code       string   `json:"code"`
	Sanctioned bool     `json:"sanctioned"`
	Name       string   `json:"name"`
	Region     string   `json:"region"`
	Borders    []string `json:"borders"`
}

// Error represents an API error response.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is an API error with status 404, such
// as a reputation lookup for an IP absent from every tier.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// parseError extracts an API error from a non-2xx response.
func parseError(resp *http.Response) *Error {
	apiErr := &Error{Status: resp.StatusCode}

	body, err := io.ReadAll(resp.Body)
	if err != nil || len(body) == 0 {
		apiErr.Code = "http_error"
		apiErr.Message = resp.Status
		return apiErr
	}

	if json.Unmarshal(body, apiErr) != nil || apiErr.Code == "" {
		apiErr.Code = "http_error"
		apiErr.Message = string(body)
	}
	return apiErr
}
