package ipostock

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/ipo-research-cli/internal/resilience"
)

// Result merges a listing row with its detail page for one company.
type Result struct {
	Listing Listing
	Detail  *Detail
}

// SearchByName locates a company on the demand-forecast listing by substring
// match in both directions, then enriches from the detail page. A detail
// fetch failure is logged and ignored since the listing already carries the
// core fields.
func (c *crawler) SearchByName(ctx context.Context, name string) (*Result, error) {
	listings, err := c.DemandForecastList(ctx, c.opts.Pages)
	if err != nil {
		return nil, err
	}

	for _, item := range listings {
		if !strings.Contains(item.Name, name) && !strings.Contains(name, item.Name) {
			continue
		}
		zap.L().Info("ipostock: company located",
			zap.String("name", name),
			zap.String("matched", item.Name),
			zap.String("no", item.No),
		)

		res := &Result{Listing: item}
		if item.No != "" {
			detail, derr := c.Detail(ctx, item.No)
			if derr != nil {
				zap.L().Warn("ipostock: detail page failed, listing data only",
					zap.String("no", item.No), zap.Error(derr))
			} else {
				res.Detail = detail
			}
		}
		return res, nil
	}

	return nil, resilience.ErrNotFound
}

var (
	numberRe = regexp.MustCompile(`-?[\d,]+(?:\.\d+)?`)
	bandRe   = regexp.MustCompile(`([\d,]+)\s*[~∼-]\s*([\d,]+)`)
)

// ParsePrice reads the first integer out of a price cell ("11,500원").
// Placeholder cells ("-", "미정") report drift so callers degrade the field.
func ParsePrice(page, field, s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" || strings.Contains(s, "미정") {
		return 0, &resilience.ParseDriftError{Page: page, Field: field}
	}
	m := numberRe.FindString(s)
	if m == "" {
		return 0, &resilience.ParseDriftError{Page: page, Field: field}
	}
	n, err := strconv.ParseInt(strings.ReplaceAll(m, ",", ""), 10, 64)
	if err != nil {
		return 0, &resilience.ParseDriftError{Page: page, Field: field}
	}
	return n, nil
}

// ParseBand splits a price band cell ("9,500~11,500") into low and high.
func ParseBand(page, s string) (low, high int64, err error) {
	m := bandRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, &resilience.ParseDriftError{Page: page, Field: "price_band"}
	}
	low, _ = strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64)
	high, _ = strconv.ParseInt(strings.ReplaceAll(m[2], ",", ""), 10, 64)
	if low <= 0 || high < low {
		return 0, 0, &resilience.ParseDriftError{Page: page, Field: "price_band"}
	}
	return low, high, nil
}

// ParseCompetition reads an institutional competition ratio ("1,234.56:1").
func ParseCompetition(page, s string) (float64, error) {
	m := numberRe.FindString(s)
	if m == "" {
		return 0, &resilience.ParseDriftError{Page: page, Field: "institutional_competition"}
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil || f < 0 {
		return 0, &resilience.ParseDriftError{Page: page, Field: "institutional_competition"}
	}
	return f, nil
}

// ParsePercent reads a percentage cell ("23.45%") as a fraction in [0,1].
func ParsePercent(page, field, s string) (float64, error) {
	m := numberRe.FindString(s)
	if m == "" {
		return 0, &resilience.ParseDriftError{Page: page, Field: field}
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return 0, &resilience.ParseDriftError{Page: page, Field: field}
	}
	f /= 100
	if f < 0 || f > 1 {
		return 0, &resilience.ParseDriftError{Page: page, Field: field}
	}
	return f, nil
}
