package screening

import (
	"github.com/paydesk/ipintel/internal/metrics"
)

// Engine evaluates classifications against the ordered rule table.
// Stateless; safe for concurrent use.
type Engine struct {
	rules []Rule
	geo   Geo
}

// NewEngine creates a rule engine over the default rule table.
func NewEngine(geo Geo) *Engine {
	return &Engine{rules: defaultRules(), geo: geo}
}

// Assessment is the engine's verdict before orchestration metadata.
type Assessment struct {
	Score          int
	Level          RiskLevel
	TriggeredRules []TriggeredRule
	Recommendation string
}

// Evaluate runs first-match-wins over the rule table. Every rule is
// checked so the audit trail is complete, but only the highest-priority
// match sets the score. Matching no rule scores zero.
func (e *Engine) Evaluate(c *Classification, userCountry string) *Assessment {
	score := 0
	matched := false
	trail := []TriggeredRule{}

	for _, rule := range e.rules {
		if !rule.Matches(c, userCountry, e.geo) {
			continue
		}
		if !matched {
			score = rule.Score
			matched = true
		}
		trail = append(trail, TriggeredRule{
			RuleName:          rule.Name,
			Severity:          rule.Severity,
			Description:       rule.Description,
			ScoreContribution: rule.Score,
		})
		metrics.RuleHitsTotal.WithLabelValues(rule.Name).Inc()
	}

	level := LevelForScore(score)
	return &Assessment{
		Score:          score,
		Level:          level,
		TriggeredRules: trail,
		Recommendation: RecommendationFor(level),
	}
}
