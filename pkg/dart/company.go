package dart

import (
	"context"
	"net/url"
)

// CompanyProfile is the DART company overview.
type CompanyProfile struct {
	CorpName     string `json:"corp_name"`
	CorpNameEng  string `json:"corp_name_eng"`
	StockCode    string `json:"stock_code"`
	CEOName      string `json:"ceo_nm"`
	CorpClass    string `json:"corp_cls"`
	Established  string `json:"est_dt"`
	IndustryCode string `json:"induty_code"`
	Address      string `json:"adres"`
	HomepageURL  string `json:"hm_url"`
}

type companyResponse struct {
	envelope
	CompanyProfile
}

// Company fetches the company profile for a corp code.
func (c *httpClient) Company(ctx context.Context, corpCode string) (*CompanyProfile, error) {
	params := url.Values{}
	params.Set("corp_code", corpCode)

	var out companyResponse
	if err := c.getJSON(ctx, "/company.json", params, &out); err != nil {
		return nil, err
	}
	return &out.CompanyProfile, nil
}

// MarketSegment maps the DART corp-class code to a market segment label.
func (p *CompanyProfile) MarketSegment() string {
	switch p.CorpClass {
	case "Y":
		return "KOSPI"
	case "K":
		return "KOSDAQ"
	case "N":
		return "KONEX"
	default:
		return "UNLISTED"
	}
}
