package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sells-group/ipo-research-cli/internal/model"
	"github.com/sells-group/ipo-research-cli/internal/resilience"
)

// Raw response shapes. Numeric fields decode as any because models answer
// with bare numbers, quoted numbers and comma-formatted strings in equal
// measure; coercion and range checks happen in the validators.

type lockupRaw struct {
	Period          string `json:"period"`
	Shares          any    `json:"shares"`
	Ratio           any    `json:"ratio"`
	CumulativeRatio any    `json:"cumulative_ratio"`
}

type businessRaw struct {
	Overview       string `json:"company_overview"`
	MainBusiness   string `json:"main_business"`
	Products       []struct {
		Name         string `json:"name"`
		Description  string `json:"description"`
		RevenueShare any    `json:"revenue_share"`
	} `json:"products"`
	KeyTechnology  string   `json:"key_technology"`
	Competitors    []string `json:"competitors"`
	GrowthStrategy string   `json:"growth_strategy"`
}

type valuationRaw struct {
	Method            string `json:"method"`
	BaseMetric        string `json:"base_metric"`
	ProjectedEarnings any    `json:"projected_earnings"`
	DiscountRate      any    `json:"discount_rate"`
	AppliedPER        any    `json:"applied_per"`
	PerShareValue     any    `json:"per_share_value"`
}

type peerRaw struct {
	Name      string `json:"name"`
	Market    string `json:"market"`
	PER       any    `json:"per"`
	Revenue   any    `json:"revenue"`
	NetIncome any    `json:"net_income"`
}

type financialRaw struct {
	Year            any `json:"year"`
	Assets          any `json:"assets"`
	Liabilities     any `json:"liabilities"`
	Equity          any `json:"equity"`
	Revenue         any `json:"revenue"`
	OperatingIncome any `json:"operating_income"`
	NetIncome       any `json:"net_income"`
}

func schemaErr(section, format string, args ...any) error {
	return &resilience.SchemaValidationError{
		Section: section,
		Detail:  fmt.Sprintf(format, args...),
	}
}

// validateLockup converts raw rows, computing missing cumulative ratios, and
// checks the schedule invariants.
func validateLockup(rows []lockupRaw) ([]model.LockupEntry, error) {
	if len(rows) == 0 {
		return nil, schemaErr("lockup", "empty schedule")
	}

	entries := make([]model.LockupEntry, 0, len(rows))
	cumulative := 0.0
	for i, row := range rows {
		if strings.TrimSpace(row.Period) == "" {
			return nil, schemaErr("lockup", "row %d: period missing", i)
		}
		shares, ok := asInt(row.Shares)
		if !ok || shares < 0 {
			return nil, schemaErr("lockup", "row %d (%s): shares not a non-negative integer", i, row.Period)
		}
		ratio, ok := asRatio(row.Ratio)
		if !ok {
			return nil, schemaErr("lockup", "row %d (%s): ratio not in [0,1]", i, row.Period)
		}

		cum, ok := asRatio(row.CumulativeRatio)
		if !ok {
			cumulative += ratio
			cum = cumulative
		} else {
			cumulative = cum
		}
		entries = append(entries, model.LockupEntry{
			Horizon:         strings.TrimSpace(row.Period),
			Shares:          shares,
			Ratio:           ratio,
			CumulativeRatio: cum,
		})
	}

	if err := model.ValidateLockup(entries); err != nil {
		return nil, schemaErr("lockup", "%s", err.Error())
	}
	return entries, nil
}

func validateBusiness(raw businessRaw) (*model.BusinessSummary, error) {
	if strings.TrimSpace(raw.Overview) == "" && strings.TrimSpace(raw.MainBusiness) == "" {
		return nil, schemaErr("business", "both company_overview and main_business missing")
	}

	out := &model.BusinessSummary{
		Overview:       strings.TrimSpace(raw.Overview),
		MainBusiness:   strings.TrimSpace(raw.MainBusiness),
		KeyTechnology:  strings.TrimSpace(raw.KeyTechnology),
		Competitors:    raw.Competitors,
		GrowthStrategy: strings.TrimSpace(raw.GrowthStrategy),
	}
	for _, p := range raw.Products {
		if strings.TrimSpace(p.Name) == "" {
			continue
		}
		share, ok := asRatio(p.RevenueShare)
		if !ok {
			return nil, schemaErr("business", "product %q: revenue_share not in [0,1]", p.Name)
		}
		out.Products = append(out.Products, model.ProductRevenue{
			Name:         strings.TrimSpace(p.Name),
			Description:  strings.TrimSpace(p.Description),
			RevenueShare: share,
		})
	}
	return out, nil
}

func validateValuation(raw valuationRaw) (*model.ValuationDetail, error) {
	if strings.TrimSpace(raw.Method) == "" {
		return nil, schemaErr("valuation", "method missing")
	}
	out := &model.ValuationDetail{
		Method:     strings.TrimSpace(raw.Method),
		BaseMetric: strings.TrimSpace(raw.BaseMetric),
	}
	if v, ok := asInt(raw.ProjectedEarnings); ok {
		out.ProjectedEarnings = v
	}
	if v, ok := asRatio(raw.DiscountRate); ok {
		out.DiscountRate = v
	}
	if v, ok := asFloat(raw.AppliedPER); ok {
		if v <= 0 {
			return nil, schemaErr("valuation", "applied_per must be positive, got %v", raw.AppliedPER)
		}
		out.AppliedPER = v
	}
	if v, ok := asInt(raw.PerShareValue); ok {
		if v <= 0 {
			return nil, schemaErr("valuation", "per_share_value must be positive, got %v", raw.PerShareValue)
		}
		out.PerShareValue = v
	}
	return out, nil
}

func validatePeers(rows []peerRaw) ([]model.PeerCompany, error) {
	peers := make([]model.PeerCompany, 0, len(rows))
	for i, row := range rows {
		if strings.TrimSpace(row.Name) == "" {
			return nil, schemaErr("peers", "row %d: name missing", i)
		}
		p := model.PeerCompany{
			Name:   strings.TrimSpace(row.Name),
			Market: strings.TrimSpace(row.Market),
		}
		if v, ok := asFloat(row.PER); ok {
			if v <= 0 {
				return nil, schemaErr("peers", "row %q: per must be positive", row.Name)
			}
			p.PER = v
		}
		if v, ok := asInt(row.Revenue); ok {
			p.Revenue = v
		}
		if v, ok := asInt(row.NetIncome); ok {
			p.NetIncome = v
		}
		peers = append(peers, p)
	}
	return peers, nil
}

func validateFinancials(rows []financialRaw) ([]model.FinancialYear, error) {
	if len(rows) == 0 {
		return nil, schemaErr("financials", "no fiscal years")
	}
	years := make([]model.FinancialYear, 0, len(rows))
	for i, row := range rows {
		y, ok := asInt(row.Year)
		if !ok || y < 1990 || y > 2100 {
			return nil, schemaErr("financials", "row %d: year %v out of range", i, row.Year)
		}
		fy := model.FinancialYear{Year: strconv.FormatInt(y, 10)}
		fy.Assets = intPtr(row.Assets)
		fy.Liabilities = intPtr(row.Liabilities)
		fy.Equity = intPtr(row.Equity)
		fy.Revenue = intPtr(row.Revenue)
		fy.OperatingIncome = intPtr(row.OperatingIncome)
		fy.NetIncome = intPtr(row.NetIncome)
		years = append(years, fy)
	}
	return years, nil
}

func intPtr(v any) *int64 {
	if n, ok := asInt(v); ok {
		return &n
	}
	return nil
}

// asFloat coerces model output into a float: JSON numbers directly, strings
// after stripping commas, currency and unit suffixes.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		s := strings.TrimSpace(n)
		s = strings.TrimSuffix(s, "%")
		s = strings.NewReplacer(",", "", "원", "", "주", "", "배", "", " ", "").Replace(s)
		if s == "" || s == "-" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func asInt(v any) (int64, bool) {
	f, ok := asFloat(v)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// asRatio coerces into a fraction in [0,1]. Percentage-form values (either a
// string with % or a number in (1,100]) are divided by 100.
func asRatio(v any) (float64, bool) {
	percent := false
	if s, ok := v.(string); ok && strings.Contains(s, "%") {
		percent = true
	}
	f, ok := asFloat(v)
	if !ok {
		return 0, false
	}
	if percent || (f > 1 && f <= 100) {
		f /= 100
	}
	if f < 0 || f > 1 {
		return 0, false
	}
	return f, true
}
