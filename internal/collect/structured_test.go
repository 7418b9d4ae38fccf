package collect

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ipo-research-cli/internal/model"
	"github.com/sells-group/ipo-research-cli/pkg/dart"
)

type fakeDART struct {
	dart.Client

	filings    []dart.Filing
	filingsErr error

	profile    *dart.CompanyProfile
	profileErr error

	registration *dart.EquityRegistration
	registerErr  error

	// financials keyed by "year/reportCode"
	financials map[string][]dart.FinancialAccount
	finCalls   []string
}

func (f *fakeDART) SearchFilings(_ context.Context, _ string) ([]dart.Filing, error) {
	return f.filings, f.filingsErr
}

func (f *fakeDART) Company(_ context.Context, _ string) (*dart.CompanyProfile, error) {
	return f.profile, f.profileErr
}

func (f *fakeDART) EquityRegistration(_ context.Context, _ string) (*dart.EquityRegistration, error) {
	return f.registration, f.registerErr
}

func (f *fakeDART) Financials(_ context.Context, _, year, code string) ([]dart.FinancialAccount, error) {
	key := year + "/" + code
	f.finCalls = append(f.finCalls, key)
	accounts, ok := f.financials[key]
	if !ok {
		return nil, dart.ErrNoData
	}
	return accounts, nil
}

func revenueRow(amount string) []dart.FinancialAccount {
	return []dart.FinancialAccount{
		{FSDiv: "CFS", AccountName: "매출액", ThisTermValue: amount},
	}
}

func newCollector(f *fakeDART) *StructuredCollector {
	return NewStructuredCollector(f, []string{"2023", "2024"})
}

var testIdentity = &model.Identity{Name: "리브스메드", CorpCode: "01234567", StockCode: "174900"}

func TestCollectAllCallsSucceed(t *testing.T) {
	f := &fakeDART{
		filings: []dart.Filing{
			{ReceiptNo: "1", ReportName: "증권신고서(지분증권)"},
			{ReceiptNo: "2", ReportName: "[기재정정]증권신고서(지분증권)"},
			{ReceiptNo: "3", ReportName: "투자설명서"},
		},
		profile:      &dart.CompanyProfile{CorpName: "리브스메드", CorpClass: "K"},
		registration: &dart.EquityRegistration{},
		financials: map[string][]dart.FinancialAccount{
			"2023/11011": revenueRow("8,000"),
			"2024/11011": revenueRow("10,000"),
		},
	}

	res, err := newCollector(f).Collect(context.Background(), testIdentity)
	require.NoError(t, err)

	assert.Equal(t, "2", res.RegistrationFiling.ReceiptNo)
	assert.Equal(t, "3", res.ProspectusFiling.ReceiptNo)
	assert.NotNil(t, res.Profile)
	assert.NotNil(t, res.Registration)
	assert.Empty(t, res.Gaps)

	require.Len(t, res.Financials, 2)
	assert.Equal(t, "2023", res.Financials[0].Year)
	require.NotNil(t, res.Financials[1].RevenueYoY)
	assert.InDelta(t, 0.25, *res.Financials[1].RevenueYoY, 1e-9)
}

func TestCollectReportCodeFallback(t *testing.T) {
	f := &fakeDART{
		profile:      &dart.CompanyProfile{},
		registration: &dart.EquityRegistration{},
		filings:      []dart.Filing{{ReceiptNo: "1", ReportName: "증권신고서(지분증권)"}},
		financials: map[string][]dart.FinancialAccount{
			"2023/11011": revenueRow("8,000"),
			"2024/11012": revenueRow("5,000"), // annual not filed yet, half-year is
		},
	}

	res, err := newCollector(f).Collect(context.Background(), testIdentity)
	require.NoError(t, err)
	require.Len(t, res.Financials, 2)
	assert.Contains(t, f.finCalls, "2024/11011")
	assert.Contains(t, f.finCalls, "2024/11012")
}

func TestCollectSingleFailureBecomesGap(t *testing.T) {
	f := &fakeDART{
		filingsErr:   eris.New("dart: http 500 from /list.json"),
		profile:      &dart.CompanyProfile{},
		registration: &dart.EquityRegistration{},
		financials: map[string][]dart.FinancialAccount{
			"2024/11011": revenueRow("10,000"),
		},
	}

	res, err := newCollector(f).Collect(context.Background(), testIdentity)
	require.NoError(t, err)
	assert.Empty(t, res.RegistrationFiling.ReceiptNo)

	require.NotEmpty(t, res.Gaps)
	assert.Equal(t, "structured.filings", res.Gaps[0].FieldPath)
	assert.Equal(t, model.DiagGap, res.Gaps[0].Kind)
}

func TestCollectAllFailuresAbort(t *testing.T) {
	boom := eris.New("dart: unauthorized")
	f := &fakeDART{
		filingsErr:  boom,
		profileErr:  boom,
		registerErr: boom,
		financials:  map[string][]dart.FinancialAccount{},
	}

	_, err := newCollector(f).Collect(context.Background(), testIdentity)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all structured calls failed")
}

func TestCollectHonorsConfiguredYears(t *testing.T) {
	f := &fakeDART{
		filings:      []dart.Filing{{ReceiptNo: "1", ReportName: "증권신고서(지분증권)"}},
		profile:      &dart.CompanyProfile{},
		registration: &dart.EquityRegistration{},
		financials: map[string][]dart.FinancialAccount{
			"2021/11011": revenueRow("3,000"),
		},
	}

	c := NewStructuredCollector(f, []string{"2021"})
	res, err := c.Collect(context.Background(), testIdentity)
	require.NoError(t, err)

	require.Len(t, res.Financials, 1)
	assert.Equal(t, "2021", res.Financials[0].Year)
	for _, call := range f.finCalls {
		assert.True(t, strings.HasPrefix(call, "2021/"), call)
	}
}

func TestCollectDefaultTrailingYears(t *testing.T) {
	f := &fakeDART{
		filings:      []dart.Filing{{ReceiptNo: "1", ReportName: "증권신고서(지분증권)"}},
		profile:      &dart.CompanyProfile{},
		registration: &dart.EquityRegistration{},
		financials: map[string][]dart.FinancialAccount{
			"2024/11011": revenueRow("10,000"),
		},
	}

	c := NewStructuredCollector(f, nil)
	c.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	res, err := c.Collect(context.Background(), testIdentity)
	require.NoError(t, err)

	require.Len(t, res.Financials, 1)
	assert.Equal(t, "2024", res.Financials[0].Year)
	assert.Contains(t, f.finCalls, "2022/11011")
	assert.Contains(t, f.finCalls, "2023/11011")
}

func TestCollectNoRegistrationAmongFilings(t *testing.T) {
	f := &fakeDART{
		filings:      []dart.Filing{{ReceiptNo: "9", ReportName: "사업보고서"}},
		profile:      &dart.CompanyProfile{},
		registration: &dart.EquityRegistration{},
		financials: map[string][]dart.FinancialAccount{
			"2024/11011": revenueRow("10,000"),
		},
	}

	res, err := newCollector(f).Collect(context.Background(), testIdentity)
	require.NoError(t, err)
	assert.Empty(t, res.RegistrationFiling.ReceiptNo)

	found := false
	for _, g := range res.Gaps {
		if g.FieldPath == "filings.registration" {
			found = true
		}
	}
	assert.True(t, found)
}
