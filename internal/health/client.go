// Package health checks whether the AIde server is reachable over HTTP.
package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Ashwinachu030493/AIde/internal/metrics"
	"github.com/Ashwinachu030493/AIde/internal/notify"
)

// ErrServerUnavailable is returned when the server does not answer or
// answers with a non-2xx status.
var ErrServerUnavailable = errors.New("aide server unavailable")

// Notification text shown when the startup check fails.
const (
	UnavailableMessage = "AIde server not detected. Is it running?"
	ActionTryAgain     = "Try Again"
)

const (
	pathHealth   = "/health"
	pathDetailed = "/health/detailed"
)

// Config holds health client settings.
type Config struct {
	// BaseURL is the HTTP base of the server, e.g. http://localhost:8000.
	BaseURL string
	// Timeout bounds a whole check including retries.
	Timeout time.Duration
	// Retries is the number of extra attempts on connection errors and 5xx.
	Retries int
	// RetryWait is the minimum wait between retries.
	RetryWait time.Duration
	// Interval is the minimum time between checks.
	Interval time.Duration
}

// DefaultConfig returns defaults for a local server.
func DefaultConfig() Config {
	return Config{
		BaseURL:   "http://localhost:8000",
		Timeout:   5 * time.Second,
		Retries:   2,
		RetryWait: 200 * time.Millisecond,
		Interval:  5 * time.Second,
	}
}

// Status is the result of a basic health check.
type Status struct {
	OK         bool          `json:"ok"`
	StatusCode int           `json:"status_code,omitempty"`
	State      string        `json:"status,omitempty"`
	Service    string        `json:"service,omitempty"`
	Version    string        `json:"version,omitempty"`
	Latency    time.Duration `json:"latency"`
}

// Detailed is the server's detailed health report.
type Detailed struct {
	API                    string `json:"api"`
	Database               string `json:"database"`
	HasUserSettings        bool   `json:"has_user_settings"`
	LLMProvidersConfigured int    `json:"llm_providers_configured"`
}

type healthBody struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithNotifier sets where failed startup checks are reported.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Client) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithMetrics records check results.
func WithMetrics(mc *metrics.Connection) Option {
	return func(c *Client) { c.metrics = mc }
}

// Client checks server health.
type Client struct {
	cfg      Config
	http     *resty.Client
	limiter  *rate.Limiter
	log      *zap.Logger
	notifier notify.Notifier
	metrics  *metrics.Connection
}

// NewClient creates a health client. Requests go through a retrying
// transport and are rate limited to one per Interval.
func NewClient(cfg Config, opts ...Option) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = def.RetryWait
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}

	c := &Client{
		cfg:      cfg,
		log:      zap.NewNop(),
		notifier: notify.Discard,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named("health")

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.Retries
	retryClient.RetryWaitMin = cfg.RetryWait
	retryClient.RetryWaitMax = 8 * cfg.RetryWait
	retryClient.Logger = leveledLogger{c.log.Sugar()}
	// Hand the last response to resty instead of a "giving up" error.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c.http = resty.NewWithClient(retryClient.StandardClient()).
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "aide-cli")

	c.limiter = rate.NewLimiter(rate.Every(cfg.Interval), 1)
	return c
}

// BaseURL returns the server base URL.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

// Check calls GET /health. A transport failure or a non-2xx response
// returns an error wrapping ErrServerUnavailable along with what is known.
func (c *Client) Check(ctx context.Context) (Status, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Status{}, err
	}

	var body healthBody
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&body).
		Get(pathHealth)
	st := Status{Latency: time.Since(start)}

	if err != nil {
		c.record(false)
		c.log.Debug("health check failed", zap.String("url", c.cfg.BaseURL), zap.Error(err))
		return st, fmt.Errorf("%w: %v", ErrServerUnavailable, err)
	}

	st.StatusCode = resp.StatusCode()
	if !resp.IsSuccess() {
		c.record(false)
		c.log.Debug("health check failed", zap.String("url", c.cfg.BaseURL), zap.Int("code", st.StatusCode))
		return st, fmt.Errorf("%w: server returned %d", ErrServerUnavailable, st.StatusCode)
	}

	st.OK = true
	st.State = body.Status
	st.Service = body.Service
	st.Version = body.Version
	c.record(true)
	return st, nil
}

// Detailed calls GET /health/detailed.
func (c *Client) Detailed(ctx context.Context) (Detailed, error) {
	var d Detailed
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&d).
		Get(pathDetailed)
	if err != nil {
		return Detailed{}, fmt.Errorf("%w: %v", ErrServerUnavailable, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return Detailed{}, fmt.Errorf("detailed health not supported by server")
	}
	if !resp.IsSuccess() {
		return Detailed{}, fmt.Errorf("%w: server returned %d", ErrServerUnavailable, resp.StatusCode())
	}
	return d, nil
}

// CheckAndNotify runs Check and, on failure, raises a notification whose
// "Try Again" action runs the check again.
func (c *Client) CheckAndNotify(ctx context.Context) error {
	_, err := c.Check(ctx)
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}

	c.log.Warn("server not reachable", zap.String("url", c.cfg.BaseURL), zap.Error(err))
	c.notifier.Notify(notify.Notification{
		Level:   notify.LevelWarning,
		Message: UnavailableMessage,
		Action:  ActionTryAgain,
		OnAction: func() {
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout+c.cfg.Interval)
			defer cancel()
			_ = c.CheckAndNotify(ctx)
		},
	})
	return err
}

// Watch runs Check repeatedly, at most once per Interval, and passes each
// result to fn until ctx is done.
func (c *Client) Watch(ctx context.Context, fn func(Status, error)) error {
	for {
		st, err := c.Check(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fn(st, err)
	}
}

func (c *Client) record(ok bool) {
	c.metrics.HealthCheck(ok)
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
