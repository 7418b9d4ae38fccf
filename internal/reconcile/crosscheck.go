package reconcile

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/ipo-research-cli/internal/model"
	"github.com/sells-group/ipo-research-cli/pkg/krx"
)

// DefaultTolerance is the relative divergence above which a KRX figure is
// flagged against the reconciled one.
const DefaultTolerance = 0.05

// CrossCheck compares the latest reconciled fiscal year against KRX exchange
// data and appends divergence diagnostics. The reconciled values are never
// altered; KRX is a verification surface, not a source.
func CrossCheck(rec *model.CanonicalRecord, fin *krx.Financial, tolerance float64) {
	if rec == nil || fin == nil || len(rec.Financials) == 0 {
		return
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	latest := rec.Financials[len(rec.Financials)-1]

	checkDivergence(rec, "financials."+latest.Year+".revenue", latest.Revenue, fin.Revenue, tolerance)
	checkDivergence(rec, "financials."+latest.Year+".net_income", latest.NetIncome, fin.NetIncome, tolerance)

	sortDiagnostics(rec.Diagnostics)
	zap.L().Debug("reconcile: exchange cross-check done",
		zap.String("stock_code", fin.StockCode),
		zap.String("year", latest.Year),
	)
}

func checkDivergence(rec *model.CanonicalRecord, path string, ours *int64, theirs int64, tolerance float64) {
	if ours == nil || theirs == 0 {
		return
	}
	diff := relativeDiff(*ours, theirs)
	if diff <= tolerance {
		return
	}
	conflict(rec, path,
		fmt.Sprintf("reconciled %d diverges from exchange %d by %.1f%%", *ours, theirs, diff*100),
		"reconciled value retained")
}

func relativeDiff(a, b int64) float64 {
	diff := float64(a - b)
	if diff < 0 {
		diff = -diff
	}
	base := float64(b)
	if base < 0 {
		base = -base
	}
	return diff / base
}
