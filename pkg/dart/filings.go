package dart

import (
	"context"
	"net/url"
	"strings"
)

// Filing is one row of the filing search result.
type Filing struct {
	ReceiptNo  string `json:"rcept_no"`
	ReportName string `json:"report_nm"`
	ReceiptDt  string `json:"rcept_dt"`
	CorpCode   string `json:"corp_code"`
	CorpName   string `json:"corp_name"`
}

type filingList struct {
	envelope
	List []Filing `json:"list"`
}

// SearchFilings lists equity registration statements (detail type C001) for
// the company, corrected versions included.
func (c *httpClient) SearchFilings(ctx context.Context, corpCode string) ([]Filing, error) {
	params := url.Values{}
	params.Set("corp_code", corpCode)
	params.Set("pblntf_ty", "C")
	params.Set("pblntf_detail_ty", "C001")
	params.Set("bgn_de", "20150101")
	params.Set("end_de", "20261231")
	params.Set("last_reprt_at", "N")
	params.Set("page_count", "100")

	var out filingList
	if err := c.getJSON(ctx, "/list.json", params, &out); err != nil {
		return nil, err
	}
	return out.List, nil
}

// SelectRegistration picks the registration statement to parse: a corrected
// statement beats the original, issuance-result and final-terms notices are
// skipped. Returns empty when no registration statement exists.
func SelectRegistration(filings []Filing) (Filing, bool) {
	var best Filing
	bestPriority := -1
	for _, f := range filings {
		name := f.ReportName
		if !strings.Contains(name, "증권신고서") {
			continue
		}
		if strings.Contains(name, "발행실적") || strings.Contains(name, "발행조건확정") {
			continue
		}
		priority := 1
		if strings.Contains(name, "기재정정") {
			priority = 2
		}
		if priority > bestPriority {
			best = f
			bestPriority = priority
		}
	}
	return best, bestPriority >= 0
}

// SelectProspectus returns the standalone investment prospectus, whose
// business section is often richer than the registration statement's.
func SelectProspectus(filings []Filing) (Filing, bool) {
	for _, f := range filings {
		if strings.Contains(f.ReportName, "투자설명서") && !strings.Contains(f.ReportName, "첨부") {
			return f, true
		}
	}
	return Filing{}, false
}
