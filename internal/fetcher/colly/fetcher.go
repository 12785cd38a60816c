// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/tululu-archiver/internal/crawler"
	"github.com/JakeFAU/tululu-archiver/internal/progress"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxBodyBytes = 64 << 20
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	// MaxBodyBytes caps the response body; larger bodies are truncated.
	MaxBodyBytes int
}

// Fetcher implements crawler.Fetcher using the Colly collector. Redirects are
// never followed and transport failures are retried according to the policy.
type Fetcher struct {
	cfg           Config
	policy        crawler.RetryPolicy
	pauser        crawler.Pauser
	emitter       progress.Emitter
	logger        *zap.Logger
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// attempt holds what the callbacks of one visit observed.
type attempt struct {
	result crawler.FetchResult
	err    error
}

// New builds a Fetcher. pauser, emitter and logger may be nil.
func New(
	cfg Config,
	policy crawler.RetryPolicy,
	pauser crawler.Pauser,
	emitter progress.Emitter,
	logger *zap.Logger,
) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if policy == nil {
		policy = crawler.NewCooldownRetryPolicy(crawler.DefaultCooldown, 0)
	}
	if pauser == nil {
		pauser = crawler.TimerPauser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.MaxBodySize(cfg.MaxBodyBytes),
	)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	c.WithTransport(rawBodyTransport{next: newHTTPTransport()})
	c.SetRequestTimeout(cfg.Timeout)
	c.SetRedirectHandler(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	})

	return &Fetcher{
		cfg:           cfg,
		policy:        policy,
		pauser:        pauser,
		emitter:       progress.OrNop(emitter),
		logger:        logger,
		baseCollector: c,
	}
}

// Fetch retrieves rawURL. A 3xx yields *crawler.RedirectError, any other
// non-2xx yields *crawler.HTTPError. Timeouts are retried immediately and
// connection failures after the policy's cool-down; when the policy gives up
// the error wraps crawler.ErrRetriesExhausted.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (crawler.FetchResult, error) {
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return crawler.FetchResult{URL: rawURL}, fmt.Errorf("fetch %s: %w", rawURL, err)
		}
		result, err := f.visit(ctx, rawURL)
		if err == nil {
			return result, classifyStatus(result)
		}
		if ctx.Err() != nil {
			return crawler.FetchResult{URL: rawURL}, err
		}

		decision := f.policy.Decide(err, n)
		if !decision.Retry {
			if decision.Reason != "" {
				return crawler.FetchResult{URL: rawURL},
					fmt.Errorf("%w: %s after %d attempts: %w", crawler.ErrRetriesExhausted, rawURL, n, err)
			}
			return crawler.FetchResult{URL: rawURL}, err
		}

		f.logger.Warn("fetch failed, retrying",
			zap.String("url", rawURL),
			zap.Int("attempt", n),
			zap.String("reason", decision.Reason),
			zap.Duration("delay", decision.Delay),
			zap.Error(err),
		)
		f.emitter.Emit(progress.Event{Stage: progress.StageFetchRetry, URL: rawURL, Note: decision.Reason})
		f.pauser.Pause(ctx, decision.Delay)
	}
}

func classifyStatus(result crawler.FetchResult) error {
	switch {
	case result.IsSuccess():
		return nil
	case result.IsRedirect():
		return &crawler.RedirectError{URL: result.URL, StatusCode: result.StatusCode, Location: result.Location}
	default:
		return &crawler.HTTPError{URL: result.URL, StatusCode: result.StatusCode}
	}
}

// visit performs a single GET on a fresh clone of the base collector.
func (f *Fetcher) visit(ctx context.Context, rawURL string) (crawler.FetchResult, error) {
	collector := f.baseCollector.Clone()
	state := &attempt{}
	configureCollectorHooks(collector, state)
	return runCollector(ctx, collector, rawURL, state)
}

func configureCollectorHooks(hooks collectorHooks, state *attempt) {
	hooks.OnResponse(func(r *colly.Response) {
		result := crawler.FetchResult{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
		if r.Headers != nil {
			result.ContentType = responseContentType(*r.Headers)
			result.Location = r.Headers.Get("Location")
		}
		result.Redirected = result.IsRedirect()
		state.result = result
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		state.err = err
	})
}

func runCollector(ctx context.Context, collector *colly.Collector, rawURL string, state *attempt) (crawler.FetchResult, error) {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return crawler.FetchResult{URL: rawURL}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return crawler.FetchResult{URL: rawURL}, fmt.Errorf("colly visit %s: %w", rawURL, err)
		}
		if state.err != nil {
			return crawler.FetchResult{URL: rawURL}, fmt.Errorf("colly response %s: %w", rawURL, state.err)
		}
		return state.result, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
