package collect

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ipo-research-cli/internal/model"
	"github.com/sells-group/ipo-research-cli/internal/resilience"
	"github.com/sells-group/ipo-research-cli/pkg/ipostock"
)

// DemandData is the crawler's contribution to the record: demand-forecast
// outcome plus whatever schedule and allocation fields the pages carried.
type DemandData struct {
	Demand      model.DemandResult
	Schedule    model.Schedule
	Offering    model.OfferingDetail
	Underwriter string
	Diagnostics []model.Diagnostic
}

// DemandCrawler wraps the listing crawler. Each field degrades on its own:
// a drifted cell yields a gap diagnostic, never a failed stage.
type DemandCrawler struct {
	client ipostock.Client
}

// NewDemandCrawler creates the crawler stage.
func NewDemandCrawler(client ipostock.Client) *DemandCrawler {
	return &DemandCrawler{client: client}
}

// Collect locates the company on the demand-forecast pages and converts the
// raw cells. resilience.ErrNotFound passes through untouched so the caller
// can tell "company not listed there" from a crawl failure.
func (c *DemandCrawler) Collect(ctx context.Context, companyName string) (*DemandData, error) {
	res, err := c.client.SearchByName(ctx, companyName)
	if err != nil {
		return nil, err
	}

	d := &DemandData{}
	listing := res.Listing

	d.parseCompetition(listing.CompetitionRate)
	d.parseCommitment(listing.CommitmentRate)
	d.parseConfirmedPrice(listing.ConfirmedPrice)
	d.parseBand(listing.PriceBand)
	if listing.DemandDate != "" {
		d.Schedule.DemandForecastDate = model.Confirmed(listing.DemandDate, model.SourceCrawler)
	}
	d.Underwriter = listing.Underwriter

	if res.Detail != nil {
		d.mergeDetail(res.Detail)
	}

	zap.L().Info("collect: demand forecast data gathered",
		zap.String("company", companyName),
		zap.Int("gaps", len(d.Diagnostics)),
	)
	return d, nil
}

// mergeDetail fills fields the listing row does not carry. Listing values
// win on overlap since the list table is the better-maintained surface.
func (d *DemandData) mergeDetail(detail *ipostock.Detail) {
	if !d.Demand.ConfirmedPrice.Present() && detail.ConfirmedPrice != "" {
		d.parseConfirmedPrice(detail.ConfirmedPrice)
	}
	if !d.Demand.LockupCommitment.Present() && detail.LockupCommitment != "" {
		d.parseCommitment(detail.LockupCommitment)
	}
	if detail.SubscriptionDate != "" {
		d.Schedule.SubscriptionDate = model.Confirmed(detail.SubscriptionDate, model.SourceCrawler)
	}
	if detail.RefundDate != "" {
		d.Schedule.RefundDate = model.Confirmed(detail.RefundDate, model.SourceCrawler)
	}
	if detail.ListingDate != "" {
		d.Schedule.ListingDate = model.Confirmed(detail.ListingDate, model.SourceCrawler)
	}
	if d.Underwriter == "" {
		d.Underwriter = detail.LeadUnderwriter
	}

	d.parseAllocation(&d.Offering.InstitutionalPct, "offering.institutional_allocation", detail.InstitutionalAllocation)
	d.parseAllocation(&d.Offering.RetailPct, "offering.retail_allocation", detail.RetailAllocation)
	d.parseAllocation(&d.Offering.EmployeePct, "offering.employee_allocation", detail.EmployeeAllocation)

	if n, err := ipostock.ParsePrice("detail", "offering_shares", detail.OfferingShares); err == nil {
		d.Offering.SharesOffered = model.Confirmed(n, model.SourceCrawler)
	}
	if n, err := ipostock.ParsePrice("detail", "total_shares", detail.TotalShares); err == nil {
		d.Offering.SharesOutstanding = model.Confirmed(n, model.SourceCrawler)
	}
}

func (d *DemandData) parseCompetition(raw string) {
	f, err := ipostock.ParseCompetition("list", raw)
	if err != nil {
		d.drift("demand.institutional_competition", err)
		return
	}
	d.Demand.InstitutionalCompetition = model.Confirmed(f, model.SourceCrawler)
}

func (d *DemandData) parseCommitment(raw string) {
	f, err := ipostock.ParsePercent("list", "lockup_commitment", raw)
	if err != nil {
		d.drift("demand.lockup_commitment", err)
		return
	}
	d.Demand.LockupCommitment = model.Confirmed(f, model.SourceCrawler)
}

// parseConfirmedPrice treats a cell as confirmed only when it holds a single
// finalized number. A band in the confirmed column means pricing is still
// open, which is a gap, not a value.
func (d *DemandData) parseConfirmedPrice(raw string) {
	if strings.ContainsAny(raw, "~∼") {
		d.drift("demand.confirmed_price", &resilience.ParseDriftError{Page: "list", Field: "confirmed_price"})
		return
	}
	n, err := ipostock.ParsePrice("list", "confirmed_price", raw)
	if err != nil {
		d.drift("demand.confirmed_price", err)
		return
	}
	d.Demand.ConfirmedPrice = model.Confirmed(n, model.SourceCrawler)
	d.Offering.ConfirmedPrice = model.Confirmed(n, model.SourceCrawler)
}

func (d *DemandData) parseBand(raw string) {
	low, high, err := ipostock.ParseBand("list", raw)
	if err != nil {
		d.drift("offering.price_band", err)
		return
	}
	d.Offering.PriceLow = model.Estimated(low, model.SourceCrawler)
	d.Offering.PriceHigh = model.Estimated(high, model.SourceCrawler)
}

func (d *DemandData) parseAllocation(dst *model.Field[float64], path, raw string) {
	if raw == "" {
		return
	}
	f, err := ipostock.ParsePercent("detail", path, raw)
	if err != nil {
		d.drift(path, err)
		return
	}
	*dst = model.Confirmed(f, model.SourceCrawler)
}

func (d *DemandData) drift(path string, err error) {
	var pd *resilience.ParseDriftError
	detail := "value not located"
	if eris.As(err, &pd) {
		detail = pd.Error()
	}
	d.Diagnostics = append(d.Diagnostics, model.Diagnostic{
		FieldPath: path,
		Kind:      model.DiagGap,
		Detail:    detail,
	})
}
