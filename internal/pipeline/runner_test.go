package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ipo-research-cli/internal/analysis"
	"github.com/sells-group/ipo-research-cli/internal/collect"
	"github.com/sells-group/ipo-research-cli/internal/extract"
	"github.com/sells-group/ipo-research-cli/internal/filing"
	"github.com/sells-group/ipo-research-cli/internal/identity"
	"github.com/sells-group/ipo-research-cli/internal/model"
	"github.com/sells-group/ipo-research-cli/internal/resilience"
	"github.com/sells-group/ipo-research-cli/internal/store"
	"github.com/sells-group/ipo-research-cli/pkg/anthropic"
	"github.com/sells-group/ipo-research-cli/pkg/dart"
	"github.com/sells-group/ipo-research-cli/pkg/ipostock"
	"github.com/sells-group/ipo-research-cli/pkg/krx"
	"github.com/sells-group/ipo-research-cli/pkg/naver"
)

// --- fakes ------------------------------------------------------------

type fakeDart struct {
	entries      []dart.CorpEntry
	entriesErr   error
	filings      []dart.Filing
	filingsErr   error
	profile      *dart.CompanyProfile
	registration *dart.EquityRegistration
	financials   map[string][]dart.FinancialAccount
	document     []byte
}

func (f *fakeDart) DownloadCorpCodes(context.Context) ([]dart.CorpEntry, error) {
	return f.entries, f.entriesErr
}

func (f *fakeDart) SearchFilings(context.Context, string) ([]dart.Filing, error) {
	return f.filings, f.filingsErr
}

func (f *fakeDart) Company(context.Context, string) (*dart.CompanyProfile, error) {
	if f.profile == nil {
		return nil, dart.ErrNoData
	}
	return f.profile, nil
}

func (f *fakeDart) EquityRegistration(context.Context, string) (*dart.EquityRegistration, error) {
	if f.registration == nil {
		return nil, dart.ErrNoData
	}
	return f.registration, nil
}

func (f *fakeDart) Financials(_ context.Context, _ string, year, reportCode string) ([]dart.FinancialAccount, error) {
	accounts, ok := f.financials[year+"/"+reportCode]
	if !ok {
		return nil, dart.ErrNoData
	}
	return accounts, nil
}

func (f *fakeDart) Document(context.Context, string) ([]byte, error) {
	if f.document == nil {
		return nil, resilience.ErrNotFound
	}
	return f.document, nil
}

type fakeStore struct {
	mu          sync.Mutex
	entries     []dart.CorpEntry
	refreshedAt time.Time
	runs        []store.RunRecord
}

func (s *fakeStore) ReplaceCorpCodes(_ context.Context, entries []dart.CorpEntry) error {
	s.entries = entries
	s.refreshedAt = time.Now()
	return nil
}

func (s *fakeStore) FindCorpExact(_ context.Context, name string) (*dart.CorpEntry, error) {
	for _, e := range s.entries {
		if e.CorpName == name {
			return &e, nil
		}
	}
	return nil, resilience.ErrNotFound
}

func (s *fakeStore) FindCorpPartial(context.Context, string) ([]dart.CorpEntry, error) {
	return nil, nil
}

func (s *fakeStore) CorpCodesRefreshedAt(context.Context) (time.Time, error) {
	return s.refreshedAt, nil
}

func (s *fakeStore) SaveRun(_ context.Context, run store.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

func (s *fakeStore) ListRuns(context.Context, int) ([]store.RunRecord, error) {
	return s.runs, nil
}

func (s *fakeStore) Migrate(context.Context) error { return nil }
func (s *fakeStore) Close() error                  { return nil }

type fakeIPO struct {
	result *ipostock.Result
	err    error
}

func (f *fakeIPO) DemandForecastList(context.Context, int) ([]ipostock.Listing, error) {
	return nil, nil
}

func (f *fakeIPO) Detail(context.Context, string) (*ipostock.Detail, error) {
	return nil, nil
}

func (f *fakeIPO) SearchByName(context.Context, string) (*ipostock.Result, error) {
	return f.result, f.err
}

type route struct {
	marker string
	reply  string
}

// routedOracle answers by the first route whose marker appears in the
// request. Routes are ordered because prompts can embed each other's terms.
type routedOracle struct {
	mu     sync.Mutex
	routes []route
	calls  []string
}

func (o *routedOracle) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	probe := req.Messages[0].Content
	if len(req.System) > 0 {
		probe = req.System[0].Text + "\n" + probe
	}
	for _, r := range o.routes {
		if strings.Contains(probe, r.marker) {
			o.calls = append(o.calls, r.marker)
			return &anthropic.MessageResponse{
				Content: []anthropic.ContentBlock{{Type: "text", Text: r.reply}},
			}, nil
		}
	}
	return nil, eris.New("no route for request")
}

type fakeKRX struct {
	fin *krx.Financial
}

func (f *fakeKRX) Available() bool { return f.fin != nil }

func (f *fakeKRX) LatestFinancial(context.Context, string) (*krx.Financial, error) {
	if f.fin == nil {
		return nil, resilience.ErrNotFound
	}
	return f.fin, nil
}

type fakeNews struct {
	headlines []naver.Headline
}

func (f *fakeNews) Available() bool { return f.headlines != nil }

func (f *fakeNews) SearchNews(context.Context, string, int) ([]naver.Headline, error) {
	return f.headlines, nil
}

type fakeWriter struct {
	written []string
	jsonRec *model.CanonicalRecord
	mdText  string
}

func (w *fakeWriter) WriteJSON(rec *model.CanonicalRecord) (string, error) {
	w.jsonRec = rec
	w.written = append(w.written, "data.json")
	return "data.json", nil
}

func (w *fakeWriter) WriteMarkdown(_ *model.CanonicalRecord, report string) (string, error) {
	w.mdText = report
	w.written = append(w.written, "research.md")
	return "research.md", nil
}

func (w *fakeWriter) WriteExcel(*model.CanonicalRecord) (string, error) {
	w.written = append(w.written, "research.xlsx")
	return "research.xlsx", nil
}

// --- fixtures ---------------------------------------------------------

func filingArchive(t *testing.T) []byte {
	t.Helper()
	var html strings.Builder
	html.WriteString("<TITLE>상장 후 유통가능 및 매각제한</TITLE><table>")
	for i := 0; i < 30; i++ {
		html.WriteString("<tr><td>상장일 유통가능</td><td>617,500</td><td>25.00%</td></tr>")
	}
	html.WriteString("</table>")
	html.WriteString("<TITLE>사업의 내용</TITLE><p>의료기기 제조</p>")
	html.WriteString("<TITLE>인수인의 의견</TITLE><p>PER 비교</p>")
	html.WriteString("<TITLE>비교기업 선정</TITLE><table><tr><td>루닛</td></tr></table>")

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	// Stored uncompressed so the archive clears the minimum-size check.
	f, err := zw.CreateHeader(&zip.FileHeader{Name: "20260310000123.html", Method: zip.Store})
	require.NoError(t, err)
	_, err = f.Write([]byte(html.String()))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newTestPipeline(t *testing.T, d *fakeDart, ipo *fakeIPO, oracle anthropic.Client, st *fakeStore, w *fakeWriter) *Pipeline {
	t.Helper()
	return &Pipeline{
		Resolver: identity.NewResolver(identity.Options{
			Store:       st,
			DART:        d,
			SkipProfile: true,
		}),
		Structured: collect.NewStructuredCollector(d, []string{"2024"}),
		Crawler:    collect.NewDemandCrawler(ipo),
		Filings:    filing.NewFetcher(d, t.TempDir()),
		Extractor: extract.NewExtractor(extract.Options{
			Oracle:            oracle,
			RequestsPerMinute: 100000,
		}),
		Analyst: analysis.NewAnalyst(oracle, analysis.Options{}),
		News:    &fakeNews{},
		KRX:     &fakeKRX{},
		Writer:  w,
		Store:   st,
	}
}

func warmStore() *fakeStore {
	return &fakeStore{
		entries: []dart.CorpEntry{
			{CorpCode: "00123456", CorpName: "에이펙스", StockCode: "123456"},
		},
		refreshedAt: time.Now(),
	}
}

func baseDart() *fakeDart {
	return &fakeDart{
		filings: []dart.Filing{
			{ReceiptNo: "20260310000123", ReportName: "증권신고서(지분증권)", ReceiptDt: "20260310"},
		},
		registration: &dart.EquityRegistration{
			Securities: []dart.Security{{Kind: "보통주", Count: "2,470,000", Price: "21,000"}},
		},
		financials: map[string][]dart.FinancialAccount{},
	}
}

// --- tests ------------------------------------------------------------

func TestRunSkipFlagsProduceDegradedRecord(t *testing.T) {
	st := warmStore()
	w := &fakeWriter{}
	p := newTestPipeline(t, baseDart(), &fakeIPO{err: resilience.ErrNotFound}, &routedOracle{}, st, w)

	res, err := p.Run(context.Background(), "에이펙스", RunOptions{SkipFiling: true, SkipAnalysis: true})
	require.NoError(t, err)

	assert.Equal(t, RunDegraded, res.Report.Status)
	require.NotNil(t, res.Record)
	assert.Equal(t, "00123456", res.Record.Identity.CorpCode)
	assert.Equal(t, int64(21000), res.Record.Offering.ConfirmedPrice.Or(0))
	assert.Equal(t, []string{"data.json", "research.md", "research.xlsx"}, w.written)

	byName := stagesByName(res.Report.Stages)
	assert.Equal(t, StageSkipped, byName["extract"].Status)
	assert.Equal(t, StageSkipped, byName["analysis"].Status)
	assert.Equal(t, StageDegraded, byName["collect.crawler"].Status)

	require.Len(t, st.runs, 1)
	assert.Equal(t, string(RunDegraded), st.runs[0].Status)
	var saved RunReport
	require.NoError(t, json.Unmarshal(st.runs[0].Report, &saved))
	assert.Equal(t, res.Report.RunID, saved.RunID)
}

func TestRunAbortsWhenIdentityUnresolvable(t *testing.T) {
	d := baseDart()
	d.entriesErr = eris.New("dart: master download failed")
	st := &fakeStore{}
	p := newTestPipeline(t, d, &fakeIPO{err: resilience.ErrNotFound}, &routedOracle{}, st, &fakeWriter{})

	res, err := p.Run(context.Background(), "없는회사", RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aborted at stage identity")
	assert.Equal(t, RunAborted, res.Report.Status)
	assert.Nil(t, res.Record)

	// Aborted runs still land in run history.
	require.Len(t, st.runs, 1)
	assert.Equal(t, string(RunAborted), st.runs[0].Status)
}

func TestRunAbortsWhenAllStructuredCallsFail(t *testing.T) {
	d := &fakeDart{
		filingsErr: eris.New("dart: unauthorized"),
		financials: map[string][]dart.FinancialAccount{},
	}
	st := warmStore()
	p := newTestPipeline(t, d, &fakeIPO{err: resilience.ErrNotFound}, &routedOracle{}, st, &fakeWriter{})

	res, err := p.Run(context.Background(), "에이펙스", RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aborted at stage collect.structured")
	assert.Equal(t, RunAborted, res.Report.Status)
	assert.Nil(t, res.Record)

	byName := stagesByName(res.Report.Stages)
	assert.Equal(t, StageFailed, byName["collect.structured"].Status)

	require.Len(t, st.runs, 1)
	assert.Equal(t, string(RunAborted), st.runs[0].Status)
}

func TestRunCorruptArchiveDegradesExtractionOnly(t *testing.T) {
	d := baseDart()
	d.document = []byte("PK\x03\x04 잘린 파일")
	d.financials = map[string][]dart.FinancialAccount{
		"2024/11011": {{FSDiv: "CFS", AccountName: "매출액", ThisTermValue: "10,000"}},
	}
	st := warmStore()
	w := &fakeWriter{}
	p := newTestPipeline(t, d, &fakeIPO{err: resilience.ErrNotFound}, &routedOracle{}, st, w)

	res, err := p.Run(context.Background(), "에이펙스", RunOptions{SkipAnalysis: true})
	require.NoError(t, err)
	assert.Equal(t, RunDegraded, res.Report.Status)

	byName := stagesByName(res.Report.Stages)
	assert.Equal(t, StageDegraded, byName["extract"].Status)

	rec := res.Record
	require.NotNil(t, rec)
	// The extraction branch is gone, the statement data is untouched.
	assert.Empty(t, rec.Lockup)
	assert.Nil(t, rec.Business)
	assert.Nil(t, rec.Valuation)
	require.Len(t, rec.Financials, 1)
	assert.Equal(t, int64(10000), *rec.Financials[0].Revenue)

	var archiveGap bool
	for _, diag := range rec.Diagnostics {
		if diag.FieldPath == "filing.archive" && diag.Kind == model.DiagGap {
			archiveGap = true
		}
	}
	assert.True(t, archiveGap)
}

func TestRunFullPathWithExtractionAndAnalysis(t *testing.T) {
	d := baseDart()
	d.document = filingArchive(t)
	oracle := &routedOracle{routes: []route{
		{"애널리스트", "# 에이펙스 IPO 리서치 리포트\n\n종합 의견 본문"},
		{"보호예수", `[{"period":"상장일 유통가능","shares":617500,"ratio":0.25,"cumulative_ratio":0.25}]`},
		{"사업 내용을 분석", `{"company_overview":"2015년 설립 의료기기 기업","main_business":"수술 로봇 제조 판매"}`},
		{"공모가 산출", `{"method":"PER 비교","base_metric":"2027년 추정 당기순이익","projected_earnings":12000000000,"discount_rate":0.3,"applied_per":25.5,"per_share_value":28000}`},
		{"비교회사(Peer)", `[{"name":"루닛","market":"KOSDAQ","per":30.1,"revenue":50000000000,"net_income":5000000000}]`},
	}}
	st := warmStore()
	w := &fakeWriter{}
	ipo := &fakeIPO{result: &ipostock.Result{
		Listing: ipostock.Listing{
			Name:            "에이펙스",
			No:              "2301",
			DemandDate:      "2026.03.04~03.05",
			PriceBand:       "19,000~21,000",
			ConfirmedPrice:  "23,000",
			CompetitionRate: "1,120.5:1",
			CommitmentRate:  "38.12%",
			Underwriter:     "미래에셋증권",
		},
	}}

	p := newTestPipeline(t, d, ipo, oracle, st, w)
	res, err := p.Run(context.Background(), "에이펙스", RunOptions{})
	require.NoError(t, err)

	rec := res.Record
	require.NotNil(t, rec)
	// Crawler-confirmed price wins over the registration estimate.
	assert.Equal(t, int64(23000), rec.Offering.ConfirmedPrice.Or(0))
	assert.Equal(t, model.SourceCrawler, rec.Offering.ConfirmedPrice.Source)
	require.Len(t, rec.Lockup, 1)
	assert.Equal(t, "상장일 유통가능", rec.Lockup[0].Horizon)
	require.NotNil(t, rec.Business)
	assert.Contains(t, rec.Business.MainBusiness, "수술 로봇")
	require.NotNil(t, rec.Valuation)
	require.Len(t, rec.Valuation.Peers, 1)
	assert.Equal(t, "루닛", rec.Valuation.Peers[0].Name)

	assert.Contains(t, w.mdText, "리서치 리포트")

	byName := stagesByName(res.Report.Stages)
	assert.Equal(t, StageSucceeded, byName["extract"].Status)
	assert.Equal(t, StageSucceeded, byName["analysis"].Status)
}

func TestRunNoRegistrationFilingSkipsExtraction(t *testing.T) {
	d := baseDart()
	d.filings = nil
	st := warmStore()
	p := newTestPipeline(t, d, &fakeIPO{err: resilience.ErrNotFound}, &routedOracle{}, st, &fakeWriter{})

	res, err := p.Run(context.Background(), "에이펙스", RunOptions{SkipAnalysis: true})
	require.NoError(t, err)

	byName := stagesByName(res.Report.Stages)
	assert.Equal(t, StageSkipped, byName["extract"].Status)

	var archiveGap bool
	for _, diag := range res.Record.Diagnostics {
		if diag.FieldPath == "filing.archive" {
			archiveGap = true
		}
	}
	assert.True(t, archiveGap)
}

func TestRunKRXCrossCheckAppendsDivergence(t *testing.T) {
	d := baseDart()
	d.financials = map[string][]dart.FinancialAccount{}
	st := warmStore()
	w := &fakeWriter{}
	p := newTestPipeline(t, d, &fakeIPO{err: resilience.ErrNotFound}, &routedOracle{}, st, w)
	p.KRX = &fakeKRX{fin: &krx.Financial{StockCode: "123456", Revenue: 999}}

	res, err := p.Run(context.Background(), "에이펙스", RunOptions{SkipFiling: true, SkipAnalysis: true})
	require.NoError(t, err)

	// No financial years collected, so the cross-check has nothing to flag
	// but the stage still ran.
	byName := stagesByName(res.Report.Stages)
	assert.Equal(t, StageSucceeded, byName["crosscheck"].Status)
}

func stagesByName(stages []StageReport) map[string]StageReport {
	out := make(map[string]StageReport, len(stages))
	for _, s := range stages {
		out[s.Name] = s
	}
	return out
}
