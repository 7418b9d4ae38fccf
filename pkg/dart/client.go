// Package dart wraps the DART OpenAPI: corp-code master, filing search,
// company profile, equity registration, financial statements and raw filing
// document download.
package dart

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/ipo-research-cli/internal/resilience"
)

// DART API status codes. Everything except statusOK and statusNoData is an
// error; only statusRateLimited is worth retrying.
const (
	statusOK          = "000"
	statusNoData      = "013"
	statusRateLimited = "020"
	statusBadKey      = "010"
	statusExpiredKey  = "011"
)

// ErrNoData marks a DART call that succeeded but returned no rows. Callers
// treat it as a field-level gap, not a failure.
var ErrNoData = eris.New("dart: no data for request")

// Client defines the DART operations used by the pipeline.
type Client interface {
	// DownloadCorpCodes fetches the full corp-code master (zip-wrapped XML).
	DownloadCorpCodes(ctx context.Context) ([]CorpEntry, error)

	// SearchFilings lists equity registration filings for a company.
	SearchFilings(ctx context.Context, corpCode string) ([]Filing, error)

	// Company fetches the company profile.
	Company(ctx context.Context, corpCode string) (*CompanyProfile, error)

	// EquityRegistration fetches the offering terms of the equity
	// registration statement.
	EquityRegistration(ctx context.Context, corpCode string) (*EquityRegistration, error)

	// Financials fetches key accounts for one fiscal year and report code.
	Financials(ctx context.Context, corpCode, year, reportCode string) ([]FinancialAccount, error)

	// Document downloads the raw filing archive for a receipt number.
	Document(ctx context.Context, receiptNo string) ([]byte, error)
}

// Options configures the HTTP client.
type Options struct {
	Key        string
	BaseURL    string
	Timeout    time.Duration
	RatePerSec int
	Policy     resilience.Policy
}

type httpClient struct {
	opts    Options
	client  *http.Client
	limiter *rate.Limiter
}

// NewClient creates a DART client with per-host rate limiting and retry.
func NewClient(opts Options) Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://opendart.fss.or.kr/api"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RatePerSec == 0 {
		opts.RatePerSec = 5
	}
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = resilience.DefaultPolicy()
	}
	return &httpClient{
		opts:    opts,
		client:  &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.RatePerSec),
	}
}

// get performs one rate-limited GET and returns the raw body. Transient HTTP
// statuses are wrapped so the retry policy can classify them.
func (c *httpClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "dart: rate limiter wait")
	}

	u := c.opts.BaseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "dart: create request")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(err, 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(err, resp.StatusCode)
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(
			eris.Errorf("dart: http %d from %s", resp.StatusCode, path), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("dart: http %d from %s", resp.StatusCode, path)
	}

	return body, nil
}

// getJSON performs a retried GET and decodes the DART JSON envelope into out.
// The envelope's status field is checked before decoding rows.
func (c *httpClient) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("crtfc_key", c.opts.Key)

	body, err := resilience.DoVal(ctx, c.withRetryLog(path), func(ctx context.Context) ([]byte, error) {
		b, getErr := c.get(ctx, path, params)
		if getErr != nil {
			return nil, getErr
		}
		if stErr := checkStatus(b, path); stErr != nil {
			return nil, stErr
		}
		return b, nil
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, fmt.Sprintf("dart: decode %s", path))
	}
	return nil
}

func (c *httpClient) withRetryLog(operation string) resilience.Policy {
	p := c.opts.Policy
	p.OnRetry = resilience.RetryLogger("dart", operation)
	return p
}

type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// checkStatus inspects the DART status envelope. Rate-limit responses come
// back as HTTP 200 with status "020", so they are re-classified as transient
// here.
func checkStatus(body []byte, path string) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return eris.Wrap(err, fmt.Sprintf("dart: decode status %s", path))
	}
	switch env.Status {
	case statusOK:
		return nil
	case statusNoData:
		return ErrNoData
	case statusRateLimited:
		return resilience.NewTransientError(
			eris.Errorf("dart: rate limited on %s: %s", path, env.Message), http.StatusTooManyRequests)
	case statusBadKey, statusExpiredKey:
		return eris.Errorf("dart: unauthorized on %s: %s", path, env.Message)
	default:
		return eris.Errorf("dart: status %s on %s: %s", env.Status, path, env.Message)
	}
}

// Document downloads the raw filing archive. The document endpoint returns
// binary (zip) content on success and an XML error envelope on failure, so
// no JSON status check applies.
func (c *httpClient) Document(ctx context.Context, receiptNo string) ([]byte, error) {
	params := url.Values{}
	params.Set("crtfc_key", c.opts.Key)
	params.Set("rcept_no", receiptNo)

	body, err := resilience.DoVal(ctx, c.withRetryLog("document"), func(ctx context.Context) ([]byte, error) {
		return c.get(ctx, "/document.xml", params)
	})
	if err != nil {
		return nil, eris.Wrap(err, "dart: download document")
	}

	zap.L().Debug("dart: document downloaded",
		zap.String("receipt_no", receiptNo),
		zap.Int("bytes", len(body)),
	)
	return body, nil
}
