package omeda

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/evvec/ps-tracker/internal/platform/cache"
	"github.com/evvec/ps-tracker/internal/platform/logging"
	"github.com/evvec/ps-tracker/internal/platform/resilience"
	"github.com/evvec/ps-tracker/internal/usecase"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Typed failures. Callers decide whether to retry, zero-fill, or report;
// the client itself never substitutes a fallback score. The network-level
// failures wrap usecase.ErrDependencyUnavailable, keeping it on the
// Unwrap chain, so upper layers can tell "service down" apart from
// "bad id" with plain errors.Is and without importing this package's
// sentinels.
var (
	ErrNotFound    = crerr.New("omeda: player not found")
	ErrUnreachable = crerr.Wrap(usecase.ErrDependencyUnavailable, "omeda: service unreachable")
	ErrTimeout     = crerr.Wrap(usecase.ErrDependencyUnavailable, "omeda: request timed out")
	ErrMalformed   = crerr.New("omeda: malformed response")
)

const (
	defaultBaseURL = "https://omeda.city/players"
	defaultTimeout = 10 * time.Second

	maxResponseBytes = 1 << 20
)

type ClientConfig struct {
	BaseURL        string
	Timeout        time.Duration
	MaxRetries     int
	CircuitBreaker resilience.CircuitBreakerConfig
	CacheEnabled   bool
	CacheTTL       time.Duration
}

// Client fetches per-player statistics from the Omeda City API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	maxRetries     int
	logger         *logging.Logger
	breaker        *resilience.CircuitBreaker
	circuitEnabled bool
	flight         resilience.SingleFlight
	statsCache     *cache.Store
	backoff        func(attempt int) time.Duration
}

func NewClient(cfg ClientConfig, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	var statsCache *cache.Store
	if cfg.CacheEnabled && cfg.CacheTTL > 0 {
		statsCache = cache.NewStore(cfg.CacheTTL)
	}

	breakerCfg := resilience.NormalizeCircuitBreakerConfig(cfg.CircuitBreaker)

	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL:        baseURL,
		maxRetries:     maxRetries,
		logger:         logger,
		breaker:        resilience.NewCircuitBreaker(breakerCfg),
		circuitEnabled: breakerCfg.Enabled,
		statsCache:     statsCache,
		backoff:        defaultBackoff,
	}
}

type statisticsResponse struct {
	AvgPerformanceScore *float64 `json:"avg_performance_score"`
}

type matchesResponse struct {
	Matches []struct {
		Players []struct {
			ID               string   `json:"id"`
			PerformanceScore *float64 `json:"performance_score"`
		} `json:"players"`
	} `json:"matches"`
}

// AverageScore fetches the rolling average performance score for a player.
func (c *Client) AverageScore(ctx context.Context, externalID string) (float64, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return 0, crerr.Wrap(ErrNotFound, "external id is empty")
	}

	body, err := c.getStatistics(ctx, externalID)
	if err != nil {
		return 0, err
	}

	var decoded statisticsResponse
	if err := sonic.Unmarshal(body, &decoded); err != nil {
		return 0, crerr.Wrapf(ErrMalformed, "decode statistics for %s: %v", externalID, err)
	}
	if decoded.AvgPerformanceScore == nil {
		return 0, crerr.Wrapf(ErrMalformed, "statistics for %s missing avg_performance_score", externalID)
	}

	return *decoded.AvgPerformanceScore, nil
}

// LastMatchScore fetches the player's score from their most recent match.
// A match payload without an entry for the player is a not-found failure,
// never a zero.
func (c *Client) LastMatchScore(ctx context.Context, externalID string) (float64, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return 0, crerr.Wrap(ErrNotFound, "external id is empty")
	}

	path := fmt.Sprintf("%s/%s/matches.json?per_page=1", c.baseURL, externalID)
	body, err := c.doJSON(ctx, path)
	if err != nil {
		return 0, err
	}

	var decoded matchesResponse
	if err := sonic.Unmarshal(body, &decoded); err != nil {
		return 0, crerr.Wrapf(ErrMalformed, "decode matches for %s: %v", externalID, err)
	}
	if len(decoded.Matches) == 0 {
		return 0, crerr.Wrapf(ErrNotFound, "no matches recorded for %s", externalID)
	}

	for _, entry := range decoded.Matches[0].Players {
		if entry.ID != externalID {
			continue
		}
		if entry.PerformanceScore == nil {
			return 0, crerr.Wrapf(ErrMalformed, "match entry for %s missing performance_score", externalID)
		}
		return *entry.PerformanceScore, nil
	}

	return 0, crerr.Wrapf(ErrNotFound, "player %s absent from last match", externalID)
}

// ValidateID reports whether the external id resolves to a real player.
// Used as the existence check before registry admission.
func (c *Client) ValidateID(ctx context.Context, externalID string) error {
	_, err := c.AverageScore(ctx, externalID)
	return err
}

func (c *Client) getStatistics(ctx context.Context, externalID string) ([]byte, error) {
	path := fmt.Sprintf("%s/%s/statistics.json", c.baseURL, externalID)
	if c.statsCache == nil {
		return c.doJSON(ctx, path)
	}

	value, err := c.statsCache.GetOrLoad(ctx, path, func(ctx context.Context) (any, error) {
		return c.doJSON(ctx, path)
	})
	if err != nil {
		return nil, err
	}
	body, ok := value.([]byte)
	if !ok {
		return nil, crerr.Wrap(ErrMalformed, "unexpected cache payload type")
	}
	return body, nil
}

// doJSON performs a GET with circuit breaking and in-flight deduplication.
// Identical concurrent URLs share one round trip.
func (c *Client) doJSON(ctx context.Context, url string) ([]byte, error) {
	if c.circuitEnabled {
		if err := c.breaker.Allow(); err != nil {
			c.logger.WarnContext(ctx, "omeda circuit breaker rejected request",
				"state", c.breaker.State(),
			)
			return nil, crerr.Wrap(ErrUnreachable, "circuit breaker open")
		}
	}

	value, err, shared := c.flight.Do(url, func() (any, error) {
		return c.executeRequest(ctx, url)
	})
	if !shared {
		c.recordCircuitResult(err)
	}
	if err != nil {
		return nil, err
	}

	body, ok := value.([]byte)
	if !ok {
		return nil, crerr.Wrap(ErrMalformed, "unexpected singleflight payload type")
	}
	return body, nil
}

func (c *Client) executeRequest(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	attempts := c.maxRetries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt)
			c.logger.DebugContext(ctx, "omeda retrying request",
				"url", url,
				"attempt", attempt,
				"delay", delay,
			)
			select {
			case <-ctx.Done():
				return nil, classifyTransportError(ctx.Err())
			case <-time.After(delay):
			}
		}

		body, err := c.roundTrip(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}

	return nil, lastErr
}

func (c *Client) roundTrip(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, crerr.Wrapf(ErrUnreachable, "create request: %v", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyTransportError(err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, crerr.Wrapf(ErrNotFound, "status 404 for %s", url)
	case isRetryableStatus(resp.StatusCode):
		return nil, crerr.Wrapf(ErrUnreachable, "status %d for %s", resp.StatusCode, url)
	default:
		return nil, crerr.Wrapf(ErrMalformed, "unexpected status %d for %s", resp.StatusCode, url)
	}
}

func (c *Client) recordCircuitResult(err error) {
	if !c.circuitEnabled || c.breaker == nil {
		return
	}
	if stderrors.Is(err, ErrUnreachable) || stderrors.Is(err, ErrTimeout) {
		c.breaker.RecordFailure()
		return
	}
	c.breaker.RecordSuccess()
}

func classifyTransportError(err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return crerr.Wrapf(ErrTimeout, "%v", err)
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return crerr.Wrapf(ErrTimeout, "%v", err)
	}
	return crerr.Wrapf(ErrUnreachable, "%v", err)
}

func isRetryable(err error) bool {
	return stderrors.Is(err, ErrUnreachable)
}

func isRetryableStatus(statusCode int) bool {
	return statusCode == http.StatusRequestTimeout ||
		statusCode == http.StatusTooManyRequests ||
		statusCode >= http.StatusInternalServerError
}

func defaultBackoff(attempt int) time.Duration {
	delay := time.Duration(attempt) * 500 * time.Millisecond
	if delay > 5*time.Second {
		delay = 5 * time.Second
	}
	return delay
}
