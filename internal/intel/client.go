// Package intel calls the external IP intelligence provider.
//
// Each unknown IP costs a single GET with a bounded timeout. There are no
// retries: the reputation cache is the resilience mechanism for repeat
// lookups. Calls are guarded by a circuit breaker so a dead provider
// degrades screenings immediately instead of stalling every cache miss
// on a timeout.
package intel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/paydesk/ipintel/internal/circuitbreaker"
	"github.com/paydesk/ipintel/internal/metrics"
	"github.com/paydesk/ipintel/internal/reputation"
)

// ErrUnavailable means the provider timed out, answered with a non-200
// status, or returned a malformed body. Callers degrade rather than fail.
var ErrUnavailable = errors.New("intelligence provider unavailable")

const (
	// DefaultTimeout bounds the provider call.
	DefaultTimeout = 5 * time.Second

	// DefaultConfidence is assumed when the provider omits a confidence.
	DefaultConfidence = 0.75

	breakerKey = "intel"
)

// Config holds provider connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client queries the external provider and normalizes its responses.
type Client struct {
	cfg        Config
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
	log        *slog.Logger
}

// NewClient creates a provider client. The breaker is optional.
func NewClient(cfg Config, breaker *circuitbreaker.Breaker, log *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    breaker,
		log:        log,
	}
}

// providerResponse is the provider's wire shape. Security and location are
// pointers so a missing object is distinguishable from all-false flags.
type providerResponse struct {
	Security *struct {
		VPN   bool `json:"vpn"`
		Proxy bool `json:"proxy"`
		Tor   bool `json:"tor"`
		Relay bool `json:"relay"`
	} `json:"security"`
	Location *struct {
		CountryCode string `json:"country_code"`
	} `json:"location"`
	Confidence *float64 `json:"confidence"`
}

// Classify fetches the provider's verdict for an IP and normalizes it into
// a reputation record. One attempt only; any failure is ErrUnavailable.
func (c *Client) Classify(ctx context.Context, ip string) (*reputation.Record, error) {
	if c.breaker != nil && !c.breaker.Allow(breakerKey) {
		metrics.IntelRequestsTotal.WithLabelValues("circuit_open").Inc()
		return nil, fmt.Errorf("%w: circuit open", ErrUnavailable)
	}

	start := time.Now()
	rec, err := c.fetch(ctx, ip)
	metrics.IntelRequestDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if c.breaker != nil {
			c.breaker.RecordFailure(breakerKey)
		}
		metrics.IntelRequestsTotal.WithLabelValues("error").Inc()
		c.log.Warn("intel provider request failed", "ip", ip, "error", err)
		return nil, err
	}

	if c.breaker != nil {
		c.breaker.RecordSuccess(breakerKey)
	}
	metrics.IntelRequestsTotal.WithLabelValues("success").Inc()
	return rec, nil
}

func (c *Client) fetch(ctx context.Context, ip string) (*reputation.Record, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base url: %v", ErrUnavailable, err)
	}
	q := u.Query()
	q.Set("ip", ip)
	q.Set("key", c.cfg.APIKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: provider returned status %d", ErrUnavailable, resp.StatusCode)
	}

	var payload providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if payload.Security == nil || payload.Location == nil {
		return nil, fmt.Errorf("%w: partial response", ErrUnavailable)
	}

	confidence := DefaultConfidence
	if payload.Confidence != nil {
		confidence = *payload.Confidence
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}
	}

	return &reputation.Record{
		IP:         ip,
		Country:    strings.ToUpper(strings.TrimSpace(payload.Location.CountryCode)),
		IsVPN:      payload.Security.VPN,
		IsProxy:    payload.Security.Proxy,
		IsTor:      payload.Security.Tor,
		IsRelay:    payload.Security.Relay,
		Confidence: confidence,
		LastSeen:   time.Now().UTC(),
	}, nil
}
