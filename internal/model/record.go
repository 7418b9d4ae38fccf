package model

import (
	"fmt"
	"sort"
	"time"
)

// Identity maps a company display name to its stable regulatory identifiers.
// Immutable once resolved within a run.
type Identity struct {
	Name          string `json:"name"`
	CorpCode      string `json:"corp_code"`
	StockCode     string `json:"stock_code,omitempty"`
	MarketSegment string `json:"market_segment,omitempty"`
	ListingType   string `json:"listing_type,omitempty"`
}

// Schedule holds dated offering milestones. Every date is optional until a
// source confirms it; confirmed dates overwrite earlier estimates.
type Schedule struct {
	DemandForecastDate Field[string] `json:"demand_forecast_date"`
	SubscriptionDate   Field[string] `json:"subscription_date"`
	PaymentDate        Field[string] `json:"payment_date"`
	RefundDate         Field[string] `json:"refund_date"`
	ListingDate        Field[string] `json:"listing_date"`
}

// OfferingDetail describes the share offering. ConfirmedPrice, once set, is
// never overwritten by an estimate.
type OfferingDetail struct {
	SharesOffered     Field[int64]   `json:"shares_offered"`
	SharesOutstanding Field[int64]   `json:"shares_outstanding"`
	PriceLow          Field[int64]   `json:"price_low"`
	PriceHigh         Field[int64]   `json:"price_high"`
	ConfirmedPrice    Field[int64]   `json:"confirmed_price"`
	NewShares         Field[int64]   `json:"new_shares"`
	ExistingShares    Field[int64]   `json:"existing_shares"`
	InstitutionalPct  Field[float64] `json:"institutional_allocation"`
	RetailPct         Field[float64] `json:"retail_allocation"`
	EmployeePct       Field[float64] `json:"employee_allocation"`
}

// Underwriter is one syndicate member with its underwritten share of the deal.
type Underwriter struct {
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
	Amount   int64  `json:"amount"`
}

// LockupEntry is one step of the post-listing unlock schedule, ordered by
// horizon. Ratios are fractions, not percentages.
type LockupEntry struct {
	Horizon         string  `json:"horizon"`
	Shares          int64   `json:"shares"`
	Ratio           float64 `json:"ratio"`
	CumulativeRatio float64 `json:"cumulative_ratio"`
}

// DemandResult carries what the crawler located on the demand-forecast pages.
// Absence of a field means the marker was not found, never a guess.
type DemandResult struct {
	InstitutionalCompetition Field[float64] `json:"institutional_competition_ratio"`
	LockupCommitment         Field[float64] `json:"lockup_commitment_ratio"`
	ConfirmedPrice           Field[int64]   `json:"confirmed_price"`
}

// ProductRevenue is one product line with its share of total revenue.
type ProductRevenue struct {
	Name         string  `json:"name"`
	Description  string  `json:"description,omitempty"`
	RevenueShare float64 `json:"revenue_share"`
}

// BusinessSummary is the extracted business narrative plus the revenue split.
type BusinessSummary struct {
	Overview       string           `json:"company_overview,omitempty"`
	MainBusiness   string           `json:"main_business,omitempty"`
	Products       []ProductRevenue `json:"products,omitempty"`
	KeyTechnology  string           `json:"key_technology,omitempty"`
	Competitors    []string         `json:"competitors,omitempty"`
	GrowthStrategy string           `json:"growth_strategy,omitempty"`
}

// FinancialYear is one fiscal year of key accounts, amounts in KRW.
type FinancialYear struct {
	Year            string   `json:"year"`
	Assets          *int64   `json:"total_assets,omitempty"`
	Liabilities     *int64   `json:"total_liabilities,omitempty"`
	Equity          *int64   `json:"total_equity,omitempty"`
	Revenue         *int64   `json:"revenue,omitempty"`
	OperatingIncome *int64   `json:"operating_income,omitempty"`
	NetIncome       *int64   `json:"net_income,omitempty"`
	RevenueYoY      *float64 `json:"revenue_yoy,omitempty"`
}

// PeerCompany is one comparable company from the valuation basis.
type PeerCompany struct {
	Name      string  `json:"name"`
	Market    string  `json:"market,omitempty"`
	PER       float64 `json:"per"`
	Revenue   int64   `json:"revenue,omitempty"`
	NetIncome int64   `json:"net_income,omitempty"`
}

// ValuationDetail summarizes how the offering price was justified. A
// valuation without peers is flagged partial by IsComplete.
type ValuationDetail struct {
	Method            string        `json:"method,omitempty"`
	BaseMetric        string        `json:"base_metric,omitempty"`
	ProjectedEarnings int64         `json:"projected_earnings,omitempty"`
	DiscountRate      float64       `json:"discount_rate,omitempty"`
	AppliedPER        float64       `json:"applied_per,omitempty"`
	PerShareValue     int64         `json:"per_share_value,omitempty"`
	Peers             []PeerCompany `json:"peer_group"`
}

// IsComplete reports whether the valuation has a non-empty peer group.
func (v *ValuationDetail) IsComplete() bool {
	return v != nil && len(v.Peers) > 0
}

// DiagnosticKind classifies a diagnostics entry.
type DiagnosticKind string

const (
	DiagConflict DiagnosticKind = "conflict"
	DiagGap      DiagnosticKind = "gap"
)

// Diagnostic records one conflict or gap detected during reconciliation,
// with the resolution that was applied.
type Diagnostic struct {
	FieldPath  string         `json:"field_path"`
	Kind       DiagnosticKind `json:"kind"`
	Detail     string         `json:"detail"`
	Resolution string         `json:"resolution,omitempty"`
}

// CanonicalRecord is the single reconciled research record for one company.
// It is owned by the reconciliation engine until emitted and treated as
// immutable afterwards; renderers receive it read-only.
type CanonicalRecord struct {
	Identity     Identity         `json:"identity"`
	Schedule     Schedule         `json:"schedule"`
	Offering     OfferingDetail   `json:"offering"`
	Underwriters []Underwriter    `json:"underwriters,omitempty"`
	Lockup       []LockupEntry    `json:"lockup_schedule,omitempty"`
	Demand       DemandResult     `json:"demand_result"`
	Business     *BusinessSummary `json:"business,omitempty"`
	Financials   []FinancialYear  `json:"financials,omitempty"`
	Valuation    *ValuationDetail `json:"valuation,omitempty"`
	GeneratedAt  time.Time        `json:"generated_at"`
	Diagnostics  []Diagnostic     `json:"diagnostics"`
}

const ratioTolerance = 0.01

// ValidateLockup checks the unlock schedule invariants: per-entry ratios in
// [0,1], cumulative ratio non-decreasing, and final cumulative ≤ 1 (within a
// small tolerance for rounded source tables).
func ValidateLockup(entries []LockupEntry) error {
	prev := 0.0
	for i, e := range entries {
		if e.Ratio < 0 || e.Ratio > 1+ratioTolerance {
			return fmt.Errorf("lockup[%d] %q: ratio %.4f out of range", i, e.Horizon, e.Ratio)
		}
		if e.CumulativeRatio+ratioTolerance < prev {
			return fmt.Errorf("lockup[%d] %q: cumulative %.4f decreases from %.4f", i, e.Horizon, e.CumulativeRatio, prev)
		}
		prev = e.CumulativeRatio
	}
	if prev > 1+ratioTolerance {
		return fmt.Errorf("lockup: final cumulative %.4f exceeds 1.0", prev)
	}
	return nil
}

// ValidateUnderwriters checks quantities are non-negative and, when the
// offered share count is known, that their sum does not exceed it.
func ValidateUnderwriters(uws []Underwriter, sharesOffered Field[int64]) error {
	var sum int64
	for i, u := range uws {
		if u.Quantity < 0 {
			return fmt.Errorf("underwriter[%d] %q: negative quantity %d", i, u.Name, u.Quantity)
		}
		sum += u.Quantity
	}
	if total, ok := sharesOffered.Get(); ok && sum > total {
		return fmt.Errorf("underwriters: quantities sum %d exceeds offered shares %d", sum, total)
	}
	return nil
}

// SortFinancials orders fiscal years ascending and drops duplicate years,
// keeping the first occurrence.
func SortFinancials(years []FinancialYear) []FinancialYear {
	sort.SliceStable(years, func(i, j int) bool { return years[i].Year < years[j].Year })
	seen := make(map[string]bool, len(years))
	out := years[:0]
	for _, y := range years {
		if seen[y.Year] {
			continue
		}
		seen[y.Year] = true
		out = append(out, y)
	}
	return out
}

// DeriveGrowth fills RevenueYoY from consecutive years. Years must already be
// sorted ascending.
func DeriveGrowth(years []FinancialYear) []FinancialYear {
	for i := 1; i < len(years); i++ {
		prev, curr := years[i-1].Revenue, years[i].Revenue
		if prev == nil || curr == nil || *prev == 0 {
			continue
		}
		yoy := float64(*curr-*prev) / absFloat(float64(*prev))
		years[i].RevenueYoY = &yoy
	}
	return years
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
