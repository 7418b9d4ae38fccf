package output

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/ipo-research-cli/internal/model"
)

const (
	sectionFillColor = "FF4472C4"
	pctFormat        = "0.00%"
	krwFormat        = "#,##0"
)

func sectionStyle() *xlsx.Style {
	st := xlsx.NewStyle()
	st.Font.Bold = true
	st.Font.Color = "FFFFFFFF"
	st.ApplyFont = true
	st.Fill = *xlsx.NewFill("solid", sectionFillColor, sectionFillColor)
	st.ApplyFill = true
	return st
}

func labelStyle() *xlsx.Style {
	st := xlsx.NewStyle()
	st.Font.Bold = true
	st.ApplyFont = true
	return st
}

// buildWorkbook lays the record out as one sheet per company, section
// headers in a filled band the way the research team formats sheets by hand.
func buildWorkbook(rec *model.CanonicalRecord) (*xlsx.File, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName(rec.Identity.Name))
	if err != nil {
		return nil, eris.Wrap(err, "output: add sheet")
	}

	title := sheet.AddRow().AddCell()
	title.Value = rec.Identity.Name
	title.SetStyle(labelStyle())
	sheet.AddRow()

	addSection(sheet, "일정")
	addLabelField(sheet, "수요예측일", rec.Schedule.DemandForecastDate)
	addLabelField(sheet, "청약일", rec.Schedule.SubscriptionDate)
	addLabelField(sheet, "납입일", rec.Schedule.PaymentDate)
	addLabelField(sheet, "환불일", rec.Schedule.RefundDate)
	addLabelField(sheet, "상장예정일", rec.Schedule.ListingDate)
	sheet.AddRow()

	addSection(sheet, "공모사항")
	addLabelInt(sheet, "공모주식수", rec.Offering.SharesOffered)
	addLabelInt(sheet, "신주", rec.Offering.NewShares)
	addLabelInt(sheet, "구주매출", rec.Offering.ExistingShares)
	addLabelInt(sheet, "공모가 밴드(하단)", rec.Offering.PriceLow)
	addLabelInt(sheet, "공모가 밴드(상단)", rec.Offering.PriceHigh)
	addLabelInt(sheet, "공모가(확정)", rec.Offering.ConfirmedPrice)
	addLabelPct(sheet, "기관 배정", rec.Offering.InstitutionalPct)
	addLabelPct(sheet, "일반 배정", rec.Offering.RetailPct)
	addLabelPct(sheet, "우리사주 배정", rec.Offering.EmployeePct)
	sheet.AddRow()

	if len(rec.Underwriters) > 0 {
		addSection(sheet, "주관사")
		header := sheet.AddRow()
		for _, h := range []string{"주관사", "인수수량", "인수금액"} {
			c := header.AddCell()
			c.Value = h
			c.SetStyle(labelStyle())
		}
		for _, uw := range rec.Underwriters {
			row := sheet.AddRow()
			row.AddCell().Value = uw.Name
			setKRW(row.AddCell(), uw.Quantity)
			setKRW(row.AddCell(), uw.Amount)
		}
		sheet.AddRow()
	}

	addSection(sheet, "수요예측")
	addLabelFloat(sheet, "기관 경쟁률", rec.Demand.InstitutionalCompetition)
	addLabelPct(sheet, "의무보유 확약비율", rec.Demand.LockupCommitment)
	sheet.AddRow()

	if len(rec.Lockup) > 0 {
		addSection(sheet, "유통가능주식수")
		header := sheet.AddRow()
		for _, h := range []string{"기간", "주식수", "비율", "누적비율"} {
			c := header.AddCell()
			c.Value = h
			c.SetStyle(labelStyle())
		}
		for _, e := range rec.Lockup {
			row := sheet.AddRow()
			row.AddCell().Value = e.Horizon
			setKRW(row.AddCell(), e.Shares)
			row.AddCell().SetFloatWithFormat(e.Ratio, pctFormat)
			row.AddCell().SetFloatWithFormat(e.CumulativeRatio, pctFormat)
		}
		sheet.AddRow()
	}

	if len(rec.Financials) > 0 {
		addSection(sheet, "재무제표")
		header := sheet.AddRow()
		for _, h := range []string{"연도", "매출액", "영업이익", "당기순이익", "자산총계", "부채총계", "자본총계", "매출 YoY"} {
			c := header.AddCell()
			c.Value = h
			c.SetStyle(labelStyle())
		}
		for _, fy := range rec.Financials {
			row := sheet.AddRow()
			row.AddCell().Value = fy.Year
			setOptKRW(row.AddCell(), fy.Revenue)
			setOptKRW(row.AddCell(), fy.OperatingIncome)
			setOptKRW(row.AddCell(), fy.NetIncome)
			setOptKRW(row.AddCell(), fy.Assets)
			setOptKRW(row.AddCell(), fy.Liabilities)
			setOptKRW(row.AddCell(), fy.Equity)
			if fy.RevenueYoY != nil {
				row.AddCell().SetFloatWithFormat(*fy.RevenueYoY, pctFormat)
			} else {
				row.AddCell().Value = "-"
			}
		}
		sheet.AddRow()
	}

	if rec.Valuation != nil {
		addSection(sheet, "밸류에이션")
		addLabelString(sheet, "평가방법", rec.Valuation.Method)
		addLabelString(sheet, "기준지표", rec.Valuation.BaseMetric)
		if rec.Valuation.AppliedPER > 0 {
			row := addLabel(sheet, "적용 PER")
			row.AddCell().SetFloat(rec.Valuation.AppliedPER)
		}
		if rec.Valuation.DiscountRate > 0 {
			row := addLabel(sheet, "할인율")
			row.AddCell().SetFloatWithFormat(rec.Valuation.DiscountRate, pctFormat)
		}
		if rec.Valuation.PerShareValue > 0 {
			row := addLabel(sheet, "주당 평가액")
			setKRW(row.AddCell(), rec.Valuation.PerShareValue)
		}
		if len(rec.Valuation.Peers) > 0 {
			header := sheet.AddRow()
			for _, h := range []string{"비교회사", "시장", "PER", "매출액", "당기순이익"} {
				c := header.AddCell()
				c.Value = h
				c.SetStyle(labelStyle())
			}
			for _, p := range rec.Valuation.Peers {
				row := sheet.AddRow()
				row.AddCell().Value = p.Name
				row.AddCell().Value = p.Market
				row.AddCell().SetFloat(p.PER)
				setKRW(row.AddCell(), p.Revenue)
				setKRW(row.AddCell(), p.NetIncome)
			}
		}
	}

	return f, nil
}

// sheetName truncates to the 31-char sheet name limit.
func sheetName(name string) string {
	runes := []rune(name)
	if len(runes) > 31 {
		runes = runes[:31]
	}
	return string(runes)
}

func addSection(sheet *xlsx.Sheet, title string) {
	row := sheet.AddRow()
	cell := row.AddCell()
	cell.Value = title
	cell.SetStyle(sectionStyle())
}

func addLabel(sheet *xlsx.Sheet, label string) *xlsx.Row {
	row := sheet.AddRow()
	cell := row.AddCell()
	cell.Value = label
	cell.SetStyle(labelStyle())
	return row
}

func addLabelString(sheet *xlsx.Sheet, label, value string) {
	if value == "" {
		return
	}
	addLabel(sheet, label).AddCell().Value = value
}

func addLabelField(sheet *xlsx.Sheet, label string, f model.Field[string]) {
	v, ok := f.Get()
	if !ok {
		return
	}
	addLabelString(sheet, label, v)
}

func addLabelInt(sheet *xlsx.Sheet, label string, f model.Field[int64]) {
	v, ok := f.Get()
	if !ok {
		return
	}
	setKRW(addLabel(sheet, label).AddCell(), v)
}

func addLabelPct(sheet *xlsx.Sheet, label string, f model.Field[float64]) {
	v, ok := f.Get()
	if !ok {
		return
	}
	addLabel(sheet, label).AddCell().SetFloatWithFormat(v, pctFormat)
}

func addLabelFloat(sheet *xlsx.Sheet, label string, f model.Field[float64]) {
	v, ok := f.Get()
	if !ok {
		return
	}
	addLabel(sheet, label).AddCell().SetFloat(v)
}

func setKRW(cell *xlsx.Cell, v int64) {
	cell.SetInt64(v)
	cell.NumFmt = krwFormat
}

func setOptKRW(cell *xlsx.Cell, v *int64) {
	if v == nil {
		cell.Value = "-"
		return
	}
	setKRW(cell, *v)
}
