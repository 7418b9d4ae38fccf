// Package naver wraps the Naver Open API news search used to attach recent
// headlines to a run report. The source is optional; without credentials it
// reports unavailable and the pipeline moves on.
package naver

import (
	"context"
	"encoding/json"
	"html"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ipo-research-cli/internal/resilience"
)

// Headline is one news search hit, tags stripped.
type Headline struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
	PublishedAt string `json:"pubDate"`
}

// Client searches news headlines.
type Client interface {
	// Available reports whether credentials are configured.
	Available() bool

	// SearchNews returns up to limit recent headlines for the query.
	SearchNews(ctx context.Context, query string, limit int) ([]Headline, error)
}

// Options configures the client. Empty credentials make it unavailable.
type Options struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	Timeout      time.Duration
	Policy       resilience.Policy
}

type httpClient struct {
	opts   Options
	client *http.Client
}

// NewClient creates a news search client.
func NewClient(opts Options) Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://openapi.naver.com"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = resilience.PolicyWithAttempts(2)
	}
	return &httpClient{opts: opts, client: &http.Client{Timeout: opts.Timeout}}
}

func (c *httpClient) Available() bool {
	return c.opts.ClientID != "" && c.opts.ClientSecret != ""
}

type newsResponse struct {
	Items []Headline `json:"items"`
}

func (c *httpClient) SearchNews(ctx context.Context, query string, limit int) ([]Headline, error) {
	if !c.Available() {
		return nil, eris.New("naver: credentials not configured")
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("display", strconv.Itoa(limit))
	params.Set("sort", "date")

	p := c.opts.Policy
	p.OnRetry = resilience.RetryLogger("naver", "search_news")

	body, err := resilience.DoVal(ctx, p, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.opts.BaseURL+"/v1/search/news.json?"+params.Encode(), nil)
		if err != nil {
			return nil, eris.Wrap(err, "naver: create request")
		}
		req.Header.Set("X-Naver-Client-Id", c.opts.ClientID)
		req.Header.Set("X-Naver-Client-Secret", c.opts.ClientSecret)

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, resilience.NewTransientError(err, 0)
		}
		defer resp.Body.Close() //nolint:errcheck

		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(
				eris.Errorf("naver: http %d", resp.StatusCode), resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, eris.Errorf("naver: http %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		return nil, err
	}

	var out newsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "naver: decode news response")
	}

	for i := range out.Items {
		out.Items[i].Title = stripTags(out.Items[i].Title)
		out.Items[i].Description = stripTags(out.Items[i].Description)
	}
	return out.Items, nil
}

// stripTags removes the <b> highlight markup and entities the API embeds in
// titles.
func stripTags(s string) string {
	s = strings.ReplaceAll(s, "<b>", "")
	s = strings.ReplaceAll(s, "</b>", "")
	return html.UnescapeString(s)
}
