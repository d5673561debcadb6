package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

var (
	// ErrCircuitOpen is returned without contacting the provider while its
	// breaker is open or the half-open probe quota is used up.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrMaxRetriesExceeded is returned when a failed request cannot be retried.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

const (
	defaultTimeout         = 10 * time.Second
	defaultMaxRetries      = 3
	defaultInitialInterval = 100 * time.Millisecond
	defaultMaxInterval     = 5 * time.Second
)

// ClientConfig configures a resilient provider client. Zero durations and
// retry counts take the defaults.
type ClientConfig struct {
	// Name labels the breaker, log lines and registry entry.
	Name string

	// Timeout bounds each attempt, not the whole call.
	Timeout time.Duration

	// MaxRetries counts attempts after the first.
	MaxRetries uint64

	InitialInterval time.Duration
	MaxInterval     time.Duration

	// CircuitBreaker defaults to DefaultCircuitBreakerConfig(Name).
	CircuitBreaker *CircuitBreakerConfig

	// Registry, when set, tracks the client's health.
	Registry *Registry

	Logger zerolog.Logger
}

// DefaultClientConfig returns the settings used for provider clients.
func DefaultClientConfig(name string) ClientConfig {
	cb := DefaultCircuitBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         defaultTimeout,
		MaxRetries:      defaultMaxRetries,
		InitialInterval: defaultInitialInterval,
		MaxInterval:     defaultMaxInterval,
		CircuitBreaker:  &cb,
		Logger:          zerolog.Nop(),
	}
}

func (cfg ClientConfig) withDefaults() ClientConfig {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = defaultInitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = defaultMaxInterval
	}
	return cfg
}

// Client sends requests through a circuit breaker and retries transient
// failures (transport errors and 5xx) with exponential backoff. 4xx answers
// are returned as they are.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	logger  zerolog.Logger
}

// NewClient builds a client and registers it with cfg.Registry.
func NewClient(cfg ClientConfig) *Client {
	cfg = cfg.withDefaults()
	logger := cfg.Logger.With().Str("provider", cfg.Name).Logger()

	cb := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.CircuitBreaker != nil {
		cb = *cfg.CircuitBreaker
	}
	if cb.OnStateChange == nil {
		cb.OnStateChange = func(name string, from, to gobreaker.State) {
			event := logger.Warn()
			if to == gobreaker.StateClosed {
				event = logger.Info()
			}
			event.Str("circuit", name).Stringer("from", from).Stringer("to", to).
				Msg("circuit breaker state changed")
		}
	}

	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: NewCircuitBreaker[*http.Response](cb), //nolint:bodyclose // type parameter
		logger:  logger,
	}
	if cfg.Registry != nil {
		cfg.Registry.Register(c)
	}
	return c
}

func (c *Client) Name() string { return c.cfg.Name }

func (c *Client) CircuitBreakerState() gobreaker.State { return c.breaker.State() }

func (c *Client) CircuitBreakerCounts() gobreaker.Counts { return c.breaker.Counts() }

// Do sends req under the request's own context. A request with a body is
// retried only when the body can be replayed through GetBody.
//
// When retries run out on 5xx answers the last response is returned with a
// nil error so the caller can read the provider's problem body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.DoWithContext(req.Context(), req)
}

// DoWithContext is Do under ctx.
func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	var (
		last     *http.Response
		attempts int
	)
	keep := func(resp *http.Response) {
		if last != nil {
			discard(last)
		}
		last = resp
	}

	op := func() error {
		attempts++
		resp, err := c.attempt(ctx, req, attempts)
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return backoff.Permanent(ErrCircuitOpen)
		case err != nil:
			if resp != nil {
				keep(resp)
			}
			return err
		}
		keep(resp)
		return nil
	}

	err := backoff.RetryNotify(op, c.policy(ctx), func(err error, wait time.Duration) {
		c.logger.Debug().Err(err).
			Int("attempt", attempts).
			Dur("backoff", wait).
			Str("url", req.URL.Redacted()).
			Msg("retrying provider request")
	})

	c.observe(err)
	if err != nil && last == nil {
		return nil, err
	}
	return last, nil
}

func (c *Client) policy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.cfg.InitialInterval
	exp.MaxInterval = c.cfg.MaxInterval
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, c.cfg.MaxRetries), ctx)
}

// attempt sends one try through the breaker. A 5xx answer comes back with
// both the response and a *ServerError.
func (c *Client) attempt(ctx context.Context, req *http.Request, n int) (*http.Response, error) {
	try := req.Clone(ctx)
	if n > 1 && req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, backoff.Permanent(fmt.Errorf("%w: request body cannot be replayed", ErrMaxRetriesExceeded))
		}
		body, err := req.GetBody()
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("replaying request body: %w", err))
		}
		try.Body = body
	}

	//nolint:bodyclose // returned to the caller
	return c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.http.Do(try)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, &ServerError{StatusCode: resp.StatusCode}
		}
		return resp, nil
	})
}

// observe records the call's outcome. A 4xx answer counts as success since
// the provider was reachable.
func (c *Client) observe(err error) {
	if err != nil {
		c.logger.Error().Err(err).Msg("provider request failed")
	}
	if c.cfg.Registry != nil {
		c.cfg.Registry.Observe(c.cfg.Name, err)
	}
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // connection reuse only
	resp.Body.Close()
}

// ServerError is a 5xx answer from the provider.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "server error: " + http.StatusText(e.StatusCode)
}
