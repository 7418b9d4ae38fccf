package dart

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// EquityRegistration is the grouped payload of the equity registration
// statement (estkRs): offering overview, security terms, underwriters,
// fund usage and selling shareholders.
type EquityRegistration struct {
	General      []GeneralTerm `json:"general"`
	Securities   []Security    `json:"securities"`
	Underwriters []Syndicate   `json:"underwriters"`
	FundUsage    []FundUse     `json:"fund_usage"`
	Sellers      []Seller      `json:"sellers"`
}

// GeneralTerm carries the offering schedule from the registration overview.
type GeneralTerm struct {
	SubscriptionDate string `json:"sbd"`
	PaymentDate      string `json:"pymd"`
	Announcement     string `json:"sband"`
	ListingDate      string `json:"stkdpd"`
}

// Security is one offered security class with its price terms.
type Security struct {
	Kind        string `json:"stksen"`
	Count       string `json:"stkcnt"`
	FaceValue   string `json:"fv"`
	Price       string `json:"slprc"`
	TotalAmount string `json:"slta"`
	Method      string `json:"slmthn"`
}

// Syndicate is one underwriter row.
type Syndicate struct {
	Kind     string `json:"actsen"`
	Name     string `json:"actnmn"`
	Quantity string `json:"udtcnt"`
	Amount   string `json:"udtamt"`
	Method   string `json:"udtmth"`
}

// FundUse is one planned use of the offering proceeds.
type FundUse struct {
	Category string `json:"se"`
	Amount   string `json:"amt"`
}

// Seller is one selling shareholder (secondary shares).
type Seller struct {
	Holder       string `json:"hdr"`
	Relationship string `json:"rl_cmp"`
	BeforeSale   string `json:"bfsl_hdstk"`
	Sold         string `json:"slstk"`
	AfterSale    string `json:"atsl_hdstk"`
}

type equityResponse struct {
	envelope
	Groups []equityGroup `json:"group"`
}

type equityGroup struct {
	Title string            `json:"title"`
	List  []json.RawMessage `json:"list"`
}

// EquityRegistration fetches and regroups the estkRs payload. DART returns
// titled groups whose titles vary slightly between filings, so membership is
// decided by substring.
func (c *httpClient) EquityRegistration(ctx context.Context, corpCode string) (*EquityRegistration, error) {
	params := url.Values{}
	params.Set("corp_code", corpCode)
	params.Set("bgn_de", "20150101")
	params.Set("end_de", "20261231")

	var out equityResponse
	if err := c.getJSON(ctx, "/estkRs.json", params, &out); err != nil {
		return nil, err
	}

	reg := &EquityRegistration{}
	for _, g := range out.Groups {
		switch {
		case strings.Contains(g.Title, "일반사항"):
			decodeRows(g.List, &reg.General)
		case strings.Contains(g.Title, "증권의종류"):
			decodeRows(g.List, &reg.Securities)
		case strings.Contains(g.Title, "인수인"):
			decodeRows(g.List, &reg.Underwriters)
		case strings.Contains(g.Title, "자금"):
			decodeRows(g.List, &reg.FundUsage)
		case strings.Contains(g.Title, "매출인"):
			decodeRows(g.List, &reg.Sellers)
		}
	}
	return reg, nil
}

// decodeRows unmarshals group rows into the typed slice. Rows that do not
// decode are dropped rather than failing the whole group.
func decodeRows[T any](rows []json.RawMessage, dst *[]T) {
	for _, row := range rows {
		var item T
		if err := json.Unmarshal(row, &item); err == nil {
			*dst = append(*dst, item)
		}
	}
}

var numberCleaner = regexp.MustCompile(`[,\s원주배%]`)

// ParseAmount converts a formatted amount string ("2,470,000주") to an
// integer, returning false for empty or dash placeholders.
func ParseAmount(s string) (int64, bool) {
	cleaned := numberCleaner.ReplaceAllString(strings.TrimSpace(s), "")
	if cleaned == "" || cleaned == "-" {
		return 0, false
	}
	if n, err := strconv.ParseInt(cleaned, 10, 64); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return int64(f), true
	}
	return 0, false
}

// ParseRatio converts "38.12%" or "0.3812" to a fraction in [0,1].
func ParseRatio(s string) (float64, bool) {
	cleaned := strings.TrimSpace(s)
	percent := strings.Contains(cleaned, "%")
	cleaned = numberCleaner.ReplaceAllString(cleaned, "")
	if cleaned == "" || cleaned == "-" {
		return 0, false
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	if percent || f > 1 {
		f /= 100
	}
	if f < 0 || f > 1 {
		return 0, false
	}
	return f, true
}
