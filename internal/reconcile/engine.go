// Package reconcile folds the collected sources into one canonical record
// under a fixed priority order, recording every disagreement it resolves.
package reconcile

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/ipo-research-cli/internal/collect"
	"github.com/sells-group/ipo-research-cli/internal/model"
	"github.com/sells-group/ipo-research-cli/pkg/dart"
)

// Inputs carries everything the collectors and the extractor produced. Any
// member may be nil or empty; reconciliation fills what it can and records a
// gap for the rest.
type Inputs struct {
	Identity   *model.Identity
	Structured *collect.StructuredResult
	Demand     *collect.DemandData

	Lockup    []model.LockupEntry
	LockupErr error

	Business         *model.BusinessSummary
	Valuation        *model.ValuationDetail
	FilingFinancials []model.FinancialYear

	// Extra carries diagnostics raised outside the collectors, like a
	// skipped stage or a failed extraction phase.
	Extra []model.Diagnostic
}

// Build reconciles the inputs into the canonical record. Deterministic: the
// same inputs yield the same record regardless of how the collectors were
// scheduled.
func Build(in Inputs) *model.CanonicalRecord {
	rec := &model.CanonicalRecord{
		GeneratedAt: time.Now().UTC(),
		Diagnostics: []model.Diagnostic{},
	}
	if in.Identity != nil {
		rec.Identity = *in.Identity
	}
	rec.Diagnostics = append(rec.Diagnostics, in.Extra...)

	if in.Structured != nil {
		rec.Diagnostics = append(rec.Diagnostics, in.Structured.Gaps...)
		applyRegistration(rec, in.Structured.Registration)
		rec.Financials = in.Structured.Financials
	}
	if in.Demand != nil {
		rec.Diagnostics = append(rec.Diagnostics, in.Demand.Diagnostics...)
		applyDemand(rec, in.Demand)
	}

	applyLockup(rec, in.Lockup, in.LockupErr)
	applyFinancialFallback(rec, in.FilingFinancials)
	rec.Business = in.Business
	rec.Valuation = in.Valuation
	if in.Valuation != nil && !in.Valuation.IsComplete() {
		gap(rec, "valuation.peer_group", "no comparable companies extracted", "valuation kept partial")
	}

	if err := model.ValidateUnderwriters(rec.Underwriters, rec.Offering.SharesOffered); err != nil {
		conflict(rec, "underwriters", err.Error(), "syndicate detail dropped")
		rec.Underwriters = nil
	}

	sortDiagnostics(rec.Diagnostics)
	return rec
}

// applyRegistration fills offering terms and schedule from the registration
// statement. Registration values enter as estimates except the share counts,
// which the statement states authoritatively.
func applyRegistration(rec *model.CanonicalRecord, reg *dart.EquityRegistration) {
	if reg == nil {
		return
	}

	var offered int64
	for _, sec := range reg.Securities {
		if n, ok := dart.ParseAmount(sec.Count); ok {
			offered += n
		}
	}
	if offered > 0 {
		rec.Offering.SharesOffered = model.Confirmed(offered, model.SourceDART)
	}
	for _, sec := range reg.Securities {
		if n, ok := dart.ParseAmount(sec.Price); ok && n > 0 {
			rec.Offering.ConfirmedPrice = model.Estimated(n, model.SourceDART)
			break
		}
	}

	var sold int64
	for _, seller := range reg.Sellers {
		if n, ok := dart.ParseAmount(seller.Sold); ok {
			sold += n
		}
	}
	if sold > 0 {
		rec.Offering.ExistingShares = model.Confirmed(sold, model.SourceDART)
		if offered >= sold {
			rec.Offering.NewShares = model.Confirmed(offered-sold, model.SourceDART)
		}
	} else if offered > 0 {
		rec.Offering.NewShares = model.Confirmed(offered, model.SourceDART)
	}

	for _, g := range reg.General {
		if g.SubscriptionDate != "" && !rec.Schedule.SubscriptionDate.Present() {
			rec.Schedule.SubscriptionDate = model.Estimated(g.SubscriptionDate, model.SourceDART)
		}
		if g.PaymentDate != "" && !rec.Schedule.PaymentDate.Present() {
			rec.Schedule.PaymentDate = model.Estimated(g.PaymentDate, model.SourceDART)
		}
		if g.ListingDate != "" && !rec.Schedule.ListingDate.Present() {
			rec.Schedule.ListingDate = model.Estimated(g.ListingDate, model.SourceDART)
		}
	}

	for _, uw := range reg.Underwriters {
		qty, _ := dart.ParseAmount(uw.Quantity)
		amt, _ := dart.ParseAmount(uw.Amount)
		rec.Underwriters = append(rec.Underwriters, model.Underwriter{
			Name:     uw.Name,
			Quantity: qty,
			Amount:   amt,
		})
	}
}

// applyDemand lays the crawler's data over the registration baseline.
// Crawler-confirmed values outrank registration estimates; each overwrite of
// a disagreeing value leaves a conflict diagnostic.
func applyDemand(rec *model.CanonicalRecord, d *collect.DemandData) {
	rec.Demand = d.Demand

	overlayInt64(rec, "offering.confirmed_price", &rec.Offering.ConfirmedPrice, d.Offering.ConfirmedPrice)
	overlayInt64(rec, "offering.shares_offered", &rec.Offering.SharesOffered, d.Offering.SharesOffered)
	overlayInt64(rec, "offering.shares_outstanding", &rec.Offering.SharesOutstanding, d.Offering.SharesOutstanding)
	overlayInt64(rec, "offering.price_low", &rec.Offering.PriceLow, d.Offering.PriceLow)
	overlayInt64(rec, "offering.price_high", &rec.Offering.PriceHigh, d.Offering.PriceHigh)

	if d.Offering.InstitutionalPct.Present() {
		rec.Offering.InstitutionalPct = d.Offering.InstitutionalPct
	}
	if d.Offering.RetailPct.Present() {
		rec.Offering.RetailPct = d.Offering.RetailPct
	}
	if d.Offering.EmployeePct.Present() {
		rec.Offering.EmployeePct = d.Offering.EmployeePct
	}

	overlayString(rec, "schedule.demand_forecast_date", &rec.Schedule.DemandForecastDate, d.Schedule.DemandForecastDate)
	overlayString(rec, "schedule.subscription_date", &rec.Schedule.SubscriptionDate, d.Schedule.SubscriptionDate)
	overlayString(rec, "schedule.refund_date", &rec.Schedule.RefundDate, d.Schedule.RefundDate)
	overlayString(rec, "schedule.listing_date", &rec.Schedule.ListingDate, d.Schedule.ListingDate)

	// The registration statement is the only source with per-member quantities;
	// the crawler contributes a name-only lead when the statement had none.
	if len(rec.Underwriters) == 0 && d.Underwriter != "" {
		rec.Underwriters = append(rec.Underwriters, model.Underwriter{Name: d.Underwriter})
	}
}

// applyLockup keeps the extractor as the sole lockup source. A failed
// extraction leaves the schedule wholly absent rather than partially filled.
func applyLockup(rec *model.CanonicalRecord, entries []model.LockupEntry, err error) {
	if err != nil {
		gap(rec, "lockup_schedule", err.Error(), "schedule omitted")
		return
	}
	rec.Lockup = entries
}

// applyFinancialFallback uses filing-extracted financials only for years the
// structured statements did not cover. A disagreeing overlap is a conflict
// resolved toward the structured source.
func applyFinancialFallback(rec *model.CanonicalRecord, filing []model.FinancialYear) {
	if len(filing) == 0 {
		return
	}
	if len(rec.Financials) == 0 {
		rec.Financials = filing
		return
	}

	have := make(map[string]model.FinancialYear, len(rec.Financials))
	for _, fy := range rec.Financials {
		have[fy.Year] = fy
	}
	for _, fy := range filing {
		existing, ok := have[fy.Year]
		if !ok {
			rec.Financials = append(rec.Financials, fy)
			continue
		}
		if existing.Revenue != nil && fy.Revenue != nil && *existing.Revenue != *fy.Revenue {
			conflict(rec, "financials."+fy.Year+".revenue",
				fmt.Sprintf("statement %d vs filing %d", *existing.Revenue, *fy.Revenue),
				"statement value retained")
		}
	}
	rec.Financials = model.DeriveGrowth(model.SortFinancials(rec.Financials))
}

func overlayInt64(rec *model.CanonicalRecord, path string, dst *model.Field[int64], src model.Field[int64]) {
	newVal, ok := src.Get()
	if !ok {
		return
	}
	if old, had := dst.Get(); had && old != newVal {
		conflict(rec, path,
			fmt.Sprintf("%s %d vs %s %d", dst.Source, old, src.Source, newVal),
			fmt.Sprintf("%s value retained", src.Source))
	}
	*dst = src
}

func overlayString(rec *model.CanonicalRecord, path string, dst *model.Field[string], src model.Field[string]) {
	newVal, ok := src.Get()
	if !ok {
		return
	}
	if old, had := dst.Get(); had && old != newVal {
		conflict(rec, path,
			fmt.Sprintf("%s %q vs %s %q", dst.Source, old, src.Source, newVal),
			fmt.Sprintf("%s value retained", src.Source))
	}
	*dst = src
}

func conflict(rec *model.CanonicalRecord, path, detail, resolution string) {
	rec.Diagnostics = append(rec.Diagnostics, model.Diagnostic{
		FieldPath:  path,
		Kind:       model.DiagConflict,
		Detail:     detail,
		Resolution: resolution,
	})
	zap.L().Debug("reconcile: conflict",
		zap.String("field", path),
		zap.String("detail", detail),
	)
}

func gap(rec *model.CanonicalRecord, path, detail, resolution string) {
	rec.Diagnostics = append(rec.Diagnostics, model.Diagnostic{
		FieldPath:  path,
		Kind:       model.DiagGap,
		Detail:     detail,
		Resolution: resolution,
	})
}

// sortDiagnostics orders entries by field path then detail so record output
// is stable across runs.
func sortDiagnostics(diags []model.Diagnostic) {
	sort.SliceStable(diags, func(i, j int) bool {
		if diags[i].FieldPath != diags[j].FieldPath {
			return diags[i].FieldPath < diags[j].FieldPath
		}
		return diags[i].Detail < diags[j].Detail
	})
}
