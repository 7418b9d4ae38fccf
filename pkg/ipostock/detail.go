package ipostock

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// Detail holds the fields located on a listing's detail page. Raw page text,
// empty when the marker label was not found.
type Detail struct {
	ConfirmedPrice          string
	PriceBand               string
	OfferingShares          string
	TotalShares             string
	InstitutionalRate       string
	LockupCommitment        string
	DemandForecastDate      string
	SubscriptionDate        string
	RefundDate              string
	ListingDate             string
	LeadUnderwriter         string
	InstitutionalAllocation string
	RetailAllocation        string
	EmployeeAllocation      string
}

// labelFields maps page labels to Detail field setters, most specific label
// first. Labels match by substring because the site pads and reorders them
// between listings.
var labelFields = []struct {
	label string
	set   func(*Detail, string)
}{
	{"의무보유확약비율", func(d *Detail, v string) { d.LockupCommitment = v }},
	{"의무보유확약", func(d *Detail, v string) { d.LockupCommitment = v }},
	{"확정공모가", func(d *Detail, v string) { d.ConfirmedPrice = v }},
	{"공모주식수", func(d *Detail, v string) { d.OfferingShares = v }},
	{"상장예정주식수", func(d *Detail, v string) { d.TotalShares = v }},
	{"기관경쟁률", func(d *Detail, v string) { d.InstitutionalRate = v }},
	{"수요예측일", func(d *Detail, v string) { d.DemandForecastDate = v }},
	{"청약일", func(d *Detail, v string) { d.SubscriptionDate = v }},
	{"환불일", func(d *Detail, v string) { d.RefundDate = v }},
	{"상장예정일", func(d *Detail, v string) { d.ListingDate = v }},
	{"상장일", func(d *Detail, v string) { d.ListingDate = v }},
	{"대표주관", func(d *Detail, v string) { d.LeadUnderwriter = v }},
	{"주간사", func(d *Detail, v string) { d.LeadUnderwriter = v }},
	{"주관사", func(d *Detail, v string) { d.LeadUnderwriter = v }},
	{"공모가", func(d *Detail, v string) { d.PriceBand = v }},
}

// Detail parses a detail page. Every table on the page is walked as
// alternating label/value cells.
func (c *crawler) Detail(ctx context.Context, no string) (*Detail, error) {
	doc, err := c.fetch(ctx, fmt.Sprintf("/html/fund/?o=v&no=%s", no))
	if err != nil {
		return nil, err
	}

	d := &Detail{}
	found := 0
	walkPairs(doc, func(key, val string) {
		if val == "" {
			return
		}
		for _, lf := range labelFields {
			if strings.Contains(key, lf.label) {
				lf.set(d, val)
				found++
				return
			}
		}
		switch {
		case strings.Contains(key, "우리사주") && strings.Contains(val, "%"):
			d.EmployeeAllocation = val
			found++
		case strings.Contains(key, "기관") && strings.Contains(val, "%"):
			d.InstitutionalAllocation = val
			found++
		case strings.Contains(key, "일반") && strings.Contains(val, "%"):
			d.RetailAllocation = val
			found++
		}
	})

	zap.L().Debug("ipostock: detail parsed", zap.String("no", no), zap.Int("fields", found))
	return d, nil
}

// walkPairs visits every table row as alternating label/value cell pairs.
func walkPairs(doc *goquery.Document, fn func(key, val string)) {
	doc.Find("table tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td, th")
		texts := make([]string, 0, cells.Length())
		cells.Each(func(_ int, c *goquery.Selection) {
			texts = append(texts, strings.TrimSpace(c.Text()))
		})
		for i := 0; i+1 < len(texts); i += 2 {
			if texts[i] != "" {
				fn(texts[i], texts[i+1])
			}
		}
	})
}
