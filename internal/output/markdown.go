package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/ipo-research-cli/internal/model"
)

// renderMarkdown appends the data appendix to the analyst report. The
// appendix repeats the tables an analyst checks first so the file stands on
// its own when the narrative was skipped.
func renderMarkdown(rec *model.CanonicalRecord, report string, now time.Time) string {
	var b strings.Builder

	if report != "" {
		b.WriteString(report)
		b.WriteString("\n")
	} else {
		fmt.Fprintf(&b, "# %s IPO 리서치\n\n(AI 분석 생략됨)\n", rec.Identity.Name)
	}

	b.WriteString("\n---\n\n## 부록: 수집 데이터 요약\n\n")

	if len(rec.Financials) > 0 {
		b.WriteString("### 재무제표\n\n")
		b.WriteString("| 연도 | 매출액 | 영업이익 | 당기순이익 | 자산총계 | 부채총계 |\n")
		b.WriteString("|------|--------|----------|-----------|---------|---------|\n")
		for _, fy := range rec.Financials {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
				fy.Year,
				fmtAmount(fy.Revenue),
				fmtAmount(fy.OperatingIncome),
				fmtAmount(fy.NetIncome),
				fmtAmount(fy.Assets),
				fmtAmount(fy.Liabilities),
			)
		}
		b.WriteString("\n")
	}

	if len(rec.Lockup) > 0 {
		b.WriteString("### 유통가능주식수\n\n")
		b.WriteString("| 기간 | 주식수 | 비율 | 누적비율 |\n")
		b.WriteString("|------|--------|------|---------|\n")
		for _, e := range rec.Lockup {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
				e.Horizon, groupDigits(e.Shares), fmtPct(e.Ratio), fmtPct(e.CumulativeRatio))
		}
		b.WriteString("\n")
	}

	if len(rec.Diagnostics) > 0 {
		b.WriteString("### 수집 진단\n\n")
		b.WriteString("| 항목 | 구분 | 내용 |\n")
		b.WriteString("|------|------|------|\n")
		for _, d := range rec.Diagnostics {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", d.FieldPath, d.Kind, d.Detail)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\n---\n*생성일: %s*\n", now.Format("2006-01-02 15:04"))
	return b.String()
}

func fmtAmount(v *int64) string {
	if v == nil {
		return "-"
	}
	return groupDigits(*v)
}

func fmtPct(f float64) string {
	return fmt.Sprintf("%.2f%%", f*100)
}

// groupDigits formats an integer with thousands separators.
func groupDigits(n int64) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	out := strings.Join(parts, ",")
	if neg {
		return "-" + out
	}
	return out
}
