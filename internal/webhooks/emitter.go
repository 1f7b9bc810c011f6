package webhooks

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/paydesk/ipintel/internal/idgen"
	"github.com/paydesk/ipintel/internal/screening"
)

var (
	webhookEmitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ipintel",
		Subsystem: "webhook",
		Name:      "emit_total",
		Help:      "Total webhook emit attempts by event type.",
	}, []string{"event_type"})

	webhookEmitErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ipintel",
		Subsystem: "webhook",
		Name:      "emit_errors_total",
		Help:      "Total webhook emit failures by event type.",
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(webhookEmitTotal, webhookEmitErrors)
}

// Emitter turns screening outcomes into webhook events.
// All methods are fire-and-forget: errors are logged but never returned,
// so a slow or failing subscriber cannot delay a screening response.
type Emitter struct {
	d      *Dispatcher
	logger *slog.Logger
}

// NewEmitter creates a new webhook emitter.
func NewEmitter(d *Dispatcher, logger *slog.Logger) *Emitter {
	return &Emitter{d: d, logger: logger}
}

// ScreeningCompleted fans a finished screening out to subscribers.
// Every screening emits screening.completed; high and critical verdicts
// additionally emit screening.flagged, and blocking verdicts
// screening.blocked.
func (e *Emitter) ScreeningCompleted(req *screening.Request, res *screening.Result) {
	if e == nil || e.d == nil {
		return
	}
	go e.fanOut(req, res)
}

func (e *Emitter) fanOut(req *screening.Request, res *screening.Result) {
	data := map[string]interface{}{
		"screening_id":     res.ScreeningID,
		"transaction_id":   req.TransactionID,
		"user_id":          req.UserID,
		"ip_address":       req.IPAddress,
		"user_country":     res.UserCountry,
		"detected_country": res.DetectedCountry,
		"countries_match":  res.CountriesMatch,
		"risk_score":       res.RiskScore,
		"risk_level":       string(res.RiskLevel),
		"should_block":     res.ShouldBlock,
		"recommendation":   res.Recommendation,
	}

	e.emit(EventScreeningCompleted, data)

	if res.RiskLevel == screening.RiskHigh || res.RiskLevel == screening.RiskCritical {
		e.emit(EventScreeningFlagged, data)
	}
	if res.ShouldBlock {
		e.emit(EventScreeningBlocked, data)
	}
}

func (e *Emitter) emit(eventType EventType, data map[string]interface{}) {
	webhookEmitTotal.WithLabelValues(string(eventType)).Inc()
	event := &Event{
		ID:        idgen.WithPrefix("evt_"),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	// Deliveries outlive the screening request, so they run against a
	// background context. The HTTP client timeout and the retry attempt
	// cap bound each delivery.
	if err := e.d.Dispatch(context.Background(), event); err != nil {
		webhookEmitErrors.WithLabelValues(string(eventType)).Inc()
		e.logger.Warn("webhook emit failed", "event", eventType, "error", err)
	}
}
