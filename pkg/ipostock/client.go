// Package ipostock crawls the 38.co.kr demand-forecast pages for data the
// regulatory API does not carry: institutional competition ratios, lockup
// commitment ratios and confirmed offering prices.
package ipostock

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
	"golang.org/x/time/rate"

	"github.com/sells-group/ipo-research-cli/internal/resilience"
)

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Client crawls the demand-forecast listings and detail pages.
type Client interface {
	// DemandForecastList scrapes the demand-forecast result listing across
	// the given number of pages.
	DemandForecastList(ctx context.Context, pages int) ([]Listing, error)

	// Detail fetches the key-value fields of one listing's detail page.
	Detail(ctx context.Context, no string) (*Detail, error)

	// SearchByName locates a company on the listing pages and merges its
	// detail page. Returns resilience.ErrNotFound when no row matches.
	SearchByName(ctx context.Context, name string) (*Result, error)
}

// Options configures the crawler.
type Options struct {
	BaseURL    string
	UserAgent  string
	Timeout    time.Duration
	RatePerSec float64
	Pages      int
	Policy     resilience.Policy
}

type crawler struct {
	opts    Options
	client  *http.Client
	limiter *rate.Limiter
}

// NewClient creates a crawler. The site runs a legacy TLS stack with an
// invalid certificate chain, so verification is disabled for this host only.
func NewClient(opts Options) Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://www.38.co.kr"
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.RatePerSec == 0 {
		opts.RatePerSec = 2
	}
	if opts.Pages == 0 {
		opts.Pages = 3
	}
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = resilience.PolicyWithAttempts(2)
	}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec
			MinVersion:         tls.VersionTLS10,
		},
	}
	return &crawler{
		opts:    opts,
		client:  &http.Client{Timeout: opts.Timeout, Transport: transport},
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), 1),
	}
}

// fetch retrieves one page, decodes it from EUC-KR and parses it. Network
// failures and transient statuses go through the retry policy.
func (c *crawler) fetch(ctx context.Context, path string) (*goquery.Document, error) {
	return resilience.DoVal(ctx, c.withRetryLog(path), func(ctx context.Context) (*goquery.Document, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "ipostock: rate limiter wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+path, nil)
		if err != nil {
			return nil, eris.Wrap(err, "ipostock: create request")
		}
		req.Header.Set("User-Agent", c.opts.UserAgent)

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, resilience.NewTransientError(err, 0)
		}
		defer resp.Body.Close() //nolint:errcheck

		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(
				eris.Errorf("ipostock: http %d from %s", resp.StatusCode, path), resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, eris.Errorf("ipostock: http %d from %s", resp.StatusCode, path)
		}

		decoded := transform.NewReader(resp.Body, korean.EUCKR.NewDecoder())
		doc, err := goquery.NewDocumentFromReader(decoded)
		if err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("ipostock: parse %s", path))
		}
		return doc, nil
	})
}

func (c *crawler) withRetryLog(operation string) resilience.Policy {
	p := c.opts.Policy
	p.OnRetry = resilience.RetryLogger("ipostock", operation)
	return p
}
