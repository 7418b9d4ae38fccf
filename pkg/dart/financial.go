package dart

import (
	"context"
	"net/url"
)

// Report codes for the single-company financial statement endpoint,
// in fallback order: annual, half-year, Q3, Q1.
const (
	ReportAnnual = "11011"
	ReportHalf   = "11012"
	ReportQ3     = "11014"
	ReportQ1     = "11013"
)

// ReportFallback is the order in which report codes are tried for a year.
var ReportFallback = []string{ReportAnnual, ReportHalf, ReportQ3, ReportQ1}

// FinancialAccount is one account line from fnlttSinglAcnt.
type FinancialAccount struct {
	ReceiptNo     string `json:"rcept_no"`
	FSDiv         string `json:"fs_div"`
	FSName        string `json:"fs_nm"`
	AccountName   string `json:"account_nm"`
	ThisTermName  string `json:"thstrm_nm"`
	ThisTermValue string `json:"thstrm_amount"`
	PriorValue    string `json:"frmtrm_amount"`
	Currency      string `json:"currency"`
}

type financialList struct {
	envelope
	List []FinancialAccount `json:"list"`
}

// Financials fetches the key-account statement for one business year and
// report code. Returns ErrNoData when DART has no statement for the period.
func (c *httpClient) Financials(ctx context.Context, corpCode, year, reportCode string) ([]FinancialAccount, error) {
	params := url.Values{}
	params.Set("corp_code", corpCode)
	params.Set("bsns_year", year)
	params.Set("reprt_code", reportCode)

	var out financialList
	if err := c.getJSON(ctx, "/fnlttSinglAcnt.json", params, &out); err != nil {
		return nil, err
	}
	return out.List, nil
}

// keyAccounts maps DART account labels to canonical metric names.
var keyAccounts = map[string]string{
	"자산총계":  "total_assets",
	"부채총계":  "total_liabilities",
	"자본총계":  "total_equity",
	"매출액":   "revenue",
	"영업이익":  "operating_income",
	"당기순이익": "net_income",
}

// KeyMetrics reduces account rows to the canonical metric set, preferring
// consolidated (CFS) rows over separate (OFS) ones when both are present.
func KeyMetrics(accounts []FinancialAccount) map[string]int64 {
	metrics := make(map[string]int64)
	from := make(map[string]string)
	for _, a := range accounts {
		name, ok := keyAccounts[a.AccountName]
		if !ok {
			continue
		}
		if prev, seen := from[name]; seen && prev == "CFS" && a.FSDiv != "CFS" {
			continue
		}
		v, ok := ParseAmount(a.ThisTermValue)
		if !ok {
			continue
		}
		metrics[name] = v
		from[name] = a.FSDiv
	}
	return metrics
}
