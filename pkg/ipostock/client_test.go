package ipostock

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"

	"github.com/sells-group/ipo-research-cli/internal/resilience"
)

const listPage = `<html><body><table>
<tr><td><a href="/html/fund/?o=v&no=2101">리브스메드</a></td><td>2024.11.13~14</td><td>9,500~11,500</td><td>11,500</td><td>14,100</td><td>985.12:1</td><td>23.45</td><td>한국투자증권</td></tr>
<tr><td><a href="/html/fund/?o=v&no=2102">산일전기</a></td><td>2024.07.15~16</td><td>24,000~30,000</td><td>35,000</td><td>54,300</td><td>1,204.33:1</td><td>38.10</td><td>미래에셋증권</td></tr>
<tr><td>헤더행</td></tr>
</table></body></html>`

const detailPage = `<html><body>
<table><tr><td>확정공모가</td><td>11,500원</td><td>기관경쟁률</td><td>985.12:1</td></tr>
<tr><td>의무보유확약</td><td>23.45%</td><td>청약일</td><td>2024.11.18~19</td></tr>
<tr><td>상장예정일</td><td>2024.11.29</td><td>대표주관사</td><td>한국투자증권</td></tr></table>
<table><tr><td>기관배정</td><td>75.0%</td><td>일반배정</td><td>25.0%</td></tr></table>
</body></html>`

func eucKR(t *testing.T, s string) []byte {
	t.Helper()
	out, _, err := transform.Bytes(korean.EUCKR.NewEncoder(), []byte(s))
	require.NoError(t, err)
	return out
}

func testCrawler(t *testing.T, handler http.Handler) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Options{
		BaseURL:    srv.URL,
		Timeout:    5 * time.Second,
		RatePerSec: 100,
		Pages:      1,
		Policy: resilience.Policy{
			MaxAttempts:    2,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
			Multiplier:     2,
		},
	})
}

func fixtureHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.RawQuery, "o=r1"):
			w.Write(eucKR(t, listPage))
		case strings.Contains(r.URL.RawQuery, "o=v"):
			w.Write(eucKR(t, detailPage))
		default:
			http.NotFound(w, r)
		}
	})
}

func TestDemandForecastList(t *testing.T) {
	c := testCrawler(t, fixtureHandler(t))

	rows, err := c.DemandForecastList(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "리브스메드", rows[0].Name)
	assert.Equal(t, "2101", rows[0].No)
	assert.Equal(t, "9,500~11,500", rows[0].PriceBand)
	assert.Equal(t, "985.12:1", rows[0].CompetitionRate)
	assert.Equal(t, "23.45", rows[0].CommitmentRate)
	assert.Equal(t, "미래에셋증권", rows[1].Underwriter)
}

func TestDetail(t *testing.T) {
	c := testCrawler(t, fixtureHandler(t))

	d, err := c.Detail(context.Background(), "2101")
	require.NoError(t, err)

	assert.Equal(t, "11,500원", d.ConfirmedPrice)
	assert.Equal(t, "985.12:1", d.InstitutionalRate)
	assert.Equal(t, "23.45%", d.LockupCommitment)
	assert.Equal(t, "2024.11.18~19", d.SubscriptionDate)
	assert.Equal(t, "2024.11.29", d.ListingDate)
	assert.Equal(t, "한국투자증권", d.LeadUnderwriter)
	assert.Equal(t, "75.0%", d.InstitutionalAllocation)
	assert.Equal(t, "25.0%", d.RetailAllocation)
}

func TestSearchByName(t *testing.T) {
	c := testCrawler(t, fixtureHandler(t))

	res, err := c.SearchByName(context.Background(), "리브스메드")
	require.NoError(t, err)
	assert.Equal(t, "2101", res.Listing.No)
	require.NotNil(t, res.Detail)
	assert.Equal(t, "11,500원", res.Detail.ConfirmedPrice)
}

func TestSearchByNamePartialMatch(t *testing.T) {
	c := testCrawler(t, fixtureHandler(t))

	// 회사 정식 명칭이 목록상 표기를 포함하는 경우
	res, err := c.SearchByName(context.Background(), "주식회사 산일전기")
	require.NoError(t, err)
	assert.Equal(t, "2102", res.Listing.No)
}

func TestSearchByNameNotFound(t *testing.T) {
	c := testCrawler(t, fixtureHandler(t))

	_, err := c.SearchByName(context.Background(), "없는회사")
	require.Error(t, err)
	assert.True(t, eris.Is(err, resilience.ErrNotFound))
}

func TestSearchByNameDetailFailureDegrades(t *testing.T) {
	c := testCrawler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.RawQuery, "o=r1") {
			w.Write(eucKR(t, listPage))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))

	res, err := c.SearchByName(context.Background(), "리브스메드")
	require.NoError(t, err)
	assert.Nil(t, res.Detail)
	assert.Equal(t, "985.12:1", res.Listing.CompetitionRate)
}

func TestConfiguredUserAgentSent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
		w.Write(eucKR(t, listPage))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(Options{
		BaseURL:    srv.URL,
		UserAgent:  "ipo-research-cli/1.0",
		Timeout:    5 * time.Second,
		RatePerSec: 100,
		Pages:      1,
	})
	_, err := c.DemandForecastList(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "ipo-research-cli/1.0", got)
}

func TestTransientListRetry(t *testing.T) {
	var calls int
	c := testCrawler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write(eucKR(t, listPage))
	}))

	rows, err := c.DemandForecastList(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, 2, calls)
}
