package screening

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/paydesk/ipintel/internal/logging"
	"github.com/paydesk/ipintel/internal/metrics"
	"github.com/paydesk/ipintel/internal/traces"
)

// EventEmitter receives every completed screening for fan-out to webhooks
// and the realtime feed. Implementations must not block.
type EventEmitter interface {
	ScreeningCompleted(req *Request, res *Result)
}

// Service composes the resolver and rule engine into the single screening
// entry point. Stateless between calls; a well-formed request always gets
// a result.
type Service struct {
	resolver *Resolver
	engine   *Engine
	emitter  EventEmitter
}

// NewService creates the screening service.
func NewService(resolver *Resolver, engine *Engine) *Service {
	return &Service{resolver: resolver, engine: engine}
}

// WithEmitter attaches an event emitter for completed screenings.
func (s *Service) WithEmitter(e EventEmitter) *Service {
	s.emitter = e
	return s
}

// Screen resolves the request's IP, evaluates the rule table, and
// assembles the verdict. No failure path: resolution degrades internally
// rather than erroring.
func (s *Service) Screen(ctx context.Context, req *Request) *Result {
	start := time.Now()

	id := uuid.NewString()
	ctx = logging.WithScreeningID(ctx, id)
	ctx, span := traces.StartSpan(ctx, "screening.screen",
		traces.ScreeningID(id), traces.IPAddress(req.IPAddress))
	defer span.End()

	userCountry := strings.ToUpper(strings.TrimSpace(req.UserCountry))

	c := s.resolver.Resolve(ctx, req.IPAddress)
	a := s.engine.Evaluate(c, userCountry)

	res := &Result{
		ScreeningID:     id,
		RiskScore:       a.Score,
		RiskLevel:       a.Level,
		ShouldBlock:     a.Level == RiskCritical,
		Confidence:      c.Confidence,
		UserCountry:     userCountry,
		DetectedCountry: c.Country,
		CountriesMatch:  countriesEqual(c.Country, userCountry),
		Security: SecurityFlags{
			IsVPN:   c.IsVPN,
			IsProxy: c.IsProxy,
			IsTor:   c.IsTor,
			IsRelay: c.IsRelay,
		},
		TriggeredRules: a.TriggeredRules,
		Recommendation: a.Recommendation,
		Timestamp:      time.Now().UTC(),
	}

	span.SetAttributes(traces.RiskScore(res.RiskScore), traces.RiskLevel(string(res.RiskLevel)),
		traces.SourceTier(string(c.SourceTier)))

	metrics.ScreeningsTotal.WithLabelValues(string(a.Level)).Inc()
	metrics.ScreeningDuration.Observe(time.Since(start).Seconds())

	logging.L(ctx).Info("screening completed",
		"transaction_id", req.TransactionID,
		"ip", req.IPAddress,
		"risk_score", res.RiskScore,
		"risk_level", res.RiskLevel,
		"should_block", res.ShouldBlock,
		"source_tier", c.SourceTier,
	)

	if s.emitter != nil {
		s.emitter.ScreeningCompleted(req, res)
	}

	return res
}
