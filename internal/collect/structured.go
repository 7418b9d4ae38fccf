// Package collect gathers raw offering data: the structured regulatory API
// on one side, the demand-forecast crawler on the other.
package collect

import (
	"context"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/ipo-research-cli/internal/model"
	"github.com/sells-group/ipo-research-cli/pkg/dart"
)

// StructuredResult is what the regulatory API yielded for one company. Any
// member may be absent; Gaps records which calls came back empty or failed.
type StructuredResult struct {
	Profile      *dart.CompanyProfile
	Registration *dart.EquityRegistration

	// RegistrationFiling and ProspectusFiling identify the archives the
	// unstructured branch should fetch. Empty receipt means none found.
	RegistrationFiling dart.Filing
	ProspectusFiling   dart.Filing

	Financials []model.FinancialYear
	Gaps       []model.Diagnostic
}

// StructuredCollector runs the four regulatory calls concurrently.
type StructuredCollector struct {
	dart  dart.Client
	years []string
	now   func() time.Time
}

// NewStructuredCollector creates a collector fetching financials for the
// given fiscal years. An empty list means the three years preceding now.
func NewStructuredCollector(client dart.Client, years []string) *StructuredCollector {
	return &StructuredCollector{dart: client, years: years, now: time.Now}
}

// Collect runs filing search, company profile, equity registration and
// multi-year financials in parallel. A single failed call becomes a gap; the
// collector errors only when every call failed, since a record with no
// structured data at all is not worth reconciling.
func (c *StructuredCollector) Collect(ctx context.Context, identity *model.Identity) (*StructuredResult, error) {
	res := &StructuredResult{}

	var (
		filings     []dart.Filing
		filingsErr  error
		profileErr  error
		registerErr error
		finErr      error
	)

	// Optional-call failures must not cancel siblings, so errors are held
	// per call instead of being returned through the group.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	g.Go(func() error {
		filings, filingsErr = c.dart.SearchFilings(gctx, identity.CorpCode)
		return nil
	})
	g.Go(func() error {
		res.Profile, profileErr = c.dart.Company(gctx, identity.CorpCode)
		return nil
	})
	g.Go(func() error {
		res.Registration, registerErr = c.dart.EquityRegistration(gctx, identity.CorpCode)
		return nil
	})
	g.Go(func() error {
		res.Financials, finErr = c.collectFinancials(gctx, identity.CorpCode)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if filingsErr == nil {
		if reg, ok := dart.SelectRegistration(filings); ok {
			res.RegistrationFiling = reg
		} else {
			res.Gaps = append(res.Gaps, gap("filings.registration", "no registration statement among filings"))
		}
		if pros, ok := dart.SelectProspectus(filings); ok {
			res.ProspectusFiling = pros
		}
	}

	failures := 0
	for _, call := range []struct {
		name string
		err  error
	}{
		{"filings", filingsErr},
		{"profile", profileErr},
		{"registration", registerErr},
		{"financials", finErr},
	} {
		if call.err == nil {
			continue
		}
		failures++
		res.Gaps = append(res.Gaps, gap("structured."+call.name, eris.ToString(call.err, false)))
		zap.L().Warn("collect: structured call failed",
			zap.String("call", call.name),
			zap.String("corp_code", identity.CorpCode),
			zap.Error(call.err),
		)
	}

	if failures == 4 {
		return nil, eris.New("collect: all structured calls failed, nothing to reconcile")
	}
	return res, nil
}

// collectFinancials fetches the configured fiscal years, falling back through
// half-year and quarterly report codes when the annual statement is not filed
// yet. A year with no statement at all is simply skipped.
func (c *StructuredCollector) collectFinancials(ctx context.Context, corpCode string) ([]model.FinancialYear, error) {
	var years []model.FinancialYear
	for _, y := range c.fiscalYears() {
		metrics, err := c.financialsForYear(ctx, corpCode, y)
		if err != nil {
			if eris.Is(err, dart.ErrNoData) {
				continue
			}
			return nil, err
		}
		years = append(years, yearFromMetrics(y, metrics))
	}

	if len(years) == 0 {
		return nil, dart.ErrNoData
	}
	return model.DeriveGrowth(model.SortFinancials(years)), nil
}

func (c *StructuredCollector) fiscalYears() []string {
	if len(c.years) > 0 {
		return c.years
	}
	current := c.now().Year()
	trailing := make([]string, 0, 3)
	for y := current - 3; y < current; y++ {
		trailing = append(trailing, strconv.Itoa(y))
	}
	return trailing
}

func (c *StructuredCollector) financialsForYear(ctx context.Context, corpCode, year string) (map[string]int64, error) {
	var lastErr error
	for _, code := range dart.ReportFallback {
		accounts, err := c.dart.Financials(ctx, corpCode, year, code)
		if err != nil {
			if eris.Is(err, dart.ErrNoData) {
				lastErr = err
				continue
			}
			return nil, err
		}
		if metrics := dart.KeyMetrics(accounts); len(metrics) > 0 {
			return metrics, nil
		}
		lastErr = dart.ErrNoData
	}
	return nil, lastErr
}

func yearFromMetrics(year string, m map[string]int64) model.FinancialYear {
	fy := model.FinancialYear{Year: year}
	if v, ok := m["total_assets"]; ok {
		fy.Assets = &v
	}
	if v, ok := m["total_liabilities"]; ok {
		fy.Liabilities = &v
	}
	if v, ok := m["total_equity"]; ok {
		fy.Equity = &v
	}
	if v, ok := m["revenue"]; ok {
		fy.Revenue = &v
	}
	if v, ok := m["operating_income"]; ok {
		fy.OperatingIncome = &v
	}
	if v, ok := m["net_income"]; ok {
		fy.NetIncome = &v
	}
	return fy
}

func gap(path, detail string) model.Diagnostic {
	return model.Diagnostic{FieldPath: path, Kind: model.DiagGap, Detail: detail}
}
