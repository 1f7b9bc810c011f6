package screening

// Geo answers sanctioned-jurisdiction membership for rule predicates.
type Geo interface {
	IsSanctioned(code string) bool
}

// Rule is one entry in the ordered risk table. Position encodes priority:
// the first rule whose predicate holds sets the final score, later matches
// only join the audit trail.
type Rule struct {
	Name        string
	Severity    RiskLevel
	Score       int
	Description string
	Matches     func(c *Classification, userCountry string, geo Geo) bool
}

// defaultRules is the fixed screening rule table. Reordering or editing
// entries changes scoring behavior; no code change is needed to do so.
func defaultRules() []Rule {
	return []Rule{
		{
			Name:        "Tor Exit Node",
			Severity:    RiskCritical,
			Score:       100,
			Description: "IP is a known Tor exit node",
			Matches: func(c *Classification, _ string, _ Geo) bool {
				return c.IsTor
			},
		},
		{
			Name:        "Sanctioned Jurisdiction",
			Severity:    RiskCritical,
			Score:       95,
			Description: "Declared or detected country is a sanctioned jurisdiction",
			Matches: func(c *Classification, userCountry string, geo Geo) bool {
				return geo.IsSanctioned(userCountry) || geo.IsSanctioned(c.Country)
			},
		},
		{
			Name:        "Geo-Masking VPN",
			Severity:    RiskHigh,
			Score:       85,
			Description: "VPN, proxy, or relay exiting inside the declared country",
			Matches: func(c *Classification, userCountry string, _ Geo) bool {
				return c.Anonymized() && countriesEqual(c.Country, userCountry)
			},
		},
		{
			Name:        "Commercial VPN",
			Severity:    RiskHigh,
			Score:       75,
			Description: "VPN, proxy, or relay exiting outside the declared country",
			Matches: func(c *Classification, userCountry string, _ Geo) bool {
				return c.Anonymized() && !countriesEqual(c.Country, userCountry)
			},
		},
		{
			Name:        "Country Mismatch",
			Severity:    RiskHigh,
			Score:       60,
			Description: "No anonymization, but detected country differs from declared",
			Matches: func(c *Classification, userCountry string, _ Geo) bool {
				return !c.Flagged() && !countriesEqual(c.Country, userCountry)
			},
		},
		{
			Name:        "Clean",
			Severity:    RiskLow,
			Score:       0,
			Description: "No security flags, detected country matches declared",
			Matches: func(c *Classification, userCountry string, _ Geo) bool {
				return !c.Flagged() && countriesEqual(c.Country, userCountry)
			},
		},
	}
}
