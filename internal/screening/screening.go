// Package screening implements the IP risk classification and scoring pipeline.
//
// A screening resolves the originating IP to a classification (tiered cache
// waterfall, external provider fallback with learn-cache, degraded stand-in
// when the provider is down) and evaluates it against a fixed
// priority-ordered rule table together with the user's declared country.
// The result is a deterministic score, level, audit trail, and
// recommendation. A well-formed request always gets a verdict; provider or
// store failures degrade confidence, they never abort the screening.
package screening

import (
	"time"

	"github.com/paydesk/ipintel/internal/reputation"
)

// CountryUnknown is the detected-country value when no origin could be
// established. Never equal to a declared country, never sanctioned.
const CountryUnknown = "unknown"

// RiskLevel buckets a score. Also used as rule severity.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// LevelForScore maps a final score into its risk level bucket.
func LevelForScore(score int) RiskLevel {
	switch {
	case score >= 90:
		return RiskCritical
	case score >= 60:
		return RiskHigh
	case score >= 1:
		return RiskMedium
	default:
		return RiskLow
	}
}

// recommendations is the fixed action per risk level.
var recommendations = map[RiskLevel]string{
	RiskLow:      "Approve",
	RiskMedium:   "Monitor",
	RiskHigh:     "Flag for Manual Review",
	RiskCritical: "Block",
}

// RecommendationFor returns the fixed action string for a level.
func RecommendationFor(level RiskLevel) string {
	return recommendations[level]
}

// Request is one screening call from the routing layer. Immutable input.
type Request struct {
	TransactionID string `json:"transaction_id" binding:"required"`
	UserID        string `json:"user_id" binding:"required"`
	UserCountry   string `json:"user_country" binding:"required"`
	IPAddress     string `json:"ip_address" binding:"required"`
}

// Classification is the resolved verdict for an IP: security flags, origin
// country, confidence, and which tier answered.
type Classification struct {
	IP         string          `json:"ip"`
	IsTor      bool            `json:"is_tor"`
	IsVPN      bool            `json:"is_vpn"`
	IsProxy    bool            `json:"is_proxy"`
	IsRelay    bool            `json:"is_relay"`
	Country    string          `json:"country"`
	Confidence float64         `json:"confidence"`
	SourceTier reputation.Tier `json:"source_tier"`
}

// Anonymized reports whether the IP hides its origin without being Tor.
func (c *Classification) Anonymized() bool {
	return c.IsVPN || c.IsProxy || c.IsRelay
}

// Flagged reports whether any security flag is set.
func (c *Classification) Flagged() bool {
	return c.IsTor || c.Anonymized()
}

// SecurityFlags is the flags block of a screening result.
type SecurityFlags struct {
	IsVPN   bool `json:"is_vpn"`
	IsProxy bool `json:"is_proxy"`
	IsTor   bool `json:"is_tor"`
	IsRelay bool `json:"is_relay"`
}

// TriggeredRule is one audit-trail entry. Every rule whose predicate held
// is recorded; only the first (highest-priority) one sets the final score.
type TriggeredRule struct {
	RuleName          string    `json:"rule_name"`
	Severity          RiskLevel `json:"severity"`
	Description       string    `json:"description"`
	ScoreContribution int       `json:"score_contribution"`
}

// Result is the verdict for one screening call. Assembled once, never
// persisted by the pipeline itself.
type Result struct {
	ScreeningID     string          `json:"screening_id"`
	RiskScore       int             `json:"risk_score"`
	RiskLevel       RiskLevel       `json:"risk_level"`
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

// countriesEqual is plain code equality with unknown counting as
// non-matching.
func countriesEqual(detected, declared string) bool {
	if detected == "" || detected == CountryUnknown || declared == "" {
		return false
	}
	return detected == declared
}
