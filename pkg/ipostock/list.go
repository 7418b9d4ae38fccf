package ipostock

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// Listing is one row of the demand-forecast result table. Values are raw
// page text; conversion happens at the collection layer where drift can be
// degraded per field.
type Listing struct {
	Name            string
	No              string
	DemandDate      string
	PriceBand       string
	ConfirmedPrice  string
	FirstPrice      string
	CompetitionRate string
	CommitmentRate  string
	Underwriter     string
}

var detailLinkRe = regexp.MustCompile(`\?o=v&no=(\d+)`)

// DemandForecastList scrapes the listing pages. The table carries no header
// ids, so fields are read by fixed column position; rows with too few cells
// are skipped.
func (c *crawler) DemandForecastList(ctx context.Context, pages int) ([]Listing, error) {
	if pages <= 0 {
		pages = c.opts.Pages
	}

	var results []Listing
	seen := make(map[string]bool)

	for page := 1; page <= pages; page++ {
		doc, err := c.fetch(ctx, fmt.Sprintf("/html/fund/index.htm?o=r1&page=%d", page))
		if err != nil {
			return nil, err
		}

		doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			m := detailLinkRe.FindStringSubmatch(href)
			if m == nil {
				return
			}
			name := strings.TrimSpace(a.Text())
			if name == "" || seen[m[1]] {
				return
			}

			cols := a.Closest("tr").Find("td")
			if cols.Length() < 6 {
				return
			}
			cell := func(i int) string {
				return strings.TrimSpace(cols.Eq(i).Text())
			}

			seen[m[1]] = true
			results = append(results, Listing{
				Name:            name,
				No:              m[1],
				DemandDate:      cell(1),
				PriceBand:       cell(2),
				ConfirmedPrice:  cell(3),
				FirstPrice:      cell(4),
				CompetitionRate: cell(5),
				CommitmentRate:  cell(6),
				Underwriter:     cell(7),
			})
		})
	}

	zap.L().Info("ipostock: demand forecast listing collected",
		zap.Int("pages", pages),
		zap.Int("rows", len(results)),
	)
	return results, nil
}
