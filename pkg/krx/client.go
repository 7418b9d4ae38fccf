// Package krx wraps the KRX open data API for an auxiliary revenue
// cross-check against the regulatory filings. Optional; without a key the
// source reports unavailable.
package krx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ipo-research-cli/internal/resilience"
)

// Financial is the cross-check subset for one listed company.
type Financial struct {
	StockCode string
	Name      string
	Revenue   int64
	NetIncome int64
}

// Client fetches listed-company financial summaries.
type Client interface {
	// Available reports whether an API key is configured.
	Available() bool

	// LatestFinancial returns the most recent financial summary for a
	// stock code, or resilience.ErrNotFound when the code is not covered.
	LatestFinancial(ctx context.Context, stockCode string) (*Financial, error)
}

// Options configures the client.
type Options struct {
	Key     string
	BaseURL string
	Timeout time.Duration
	Policy  resilience.Policy
}

type httpClient struct {
	opts   Options
	client *http.Client
}

// NewClient creates a KRX client.
func NewClient(opts Options) Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://data-dbg.krx.co.kr/svc/apis"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = resilience.PolicyWithAttempts(2)
	}
	return &httpClient{opts: opts, client: &http.Client{Timeout: opts.Timeout}}
}

func (c *httpClient) Available() bool {
	return c.opts.Key != ""
}

type finResponse struct {
	Rows []struct {
		StockCode string `json:"ISU_SRT_CD"`
		Name      string `json:"ISU_ABBRV"`
		Revenue   string `json:"SALES"`
		NetIncome string `json:"NET_INCM"`
	} `json:"OutBlock_1"`
}

func (c *httpClient) LatestFinancial(ctx context.Context, stockCode string) (*Financial, error) {
	if !c.Available() {
		return nil, eris.New("krx: key not configured")
	}

	params := url.Values{}
	params.Set("basDd", time.Now().Format("20060102"))
	params.Set("isuCd", stockCode)

	p := c.opts.Policy
	p.OnRetry = resilience.RetryLogger("krx", "latest_financial")

	body, err := resilience.DoVal(ctx, p, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.opts.BaseURL+"/sto/fin_stk_info?"+params.Encode(), nil)
		if err != nil {
			return nil, eris.Wrap(err, "krx: create request")
		}
		req.Header.Set("AUTH_KEY", c.opts.Key)

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, resilience.NewTransientError(err, 0)
		}
		defer resp.Body.Close() //nolint:errcheck

		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(
				eris.Errorf("krx: http %d", resp.StatusCode), resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, eris.Errorf("krx: http %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		return nil, err
	}

	var out finResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "krx: decode response")
	}

	for _, row := range out.Rows {
		if row.StockCode != stockCode {
			continue
		}
		return &Financial{
			StockCode: row.StockCode,
			Name:      row.Name,
			Revenue:   parseAmount(row.Revenue),
			NetIncome: parseAmount(row.NetIncome),
		}, nil
	}
	return nil, resilience.ErrNotFound
}

func parseAmount(s string) int64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" || s == "-" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
