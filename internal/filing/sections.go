package filing

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Section names a logical part of the registration statement.
type Section string

const (
	SectionLockup     Section = "lockup"
	SectionBusiness   Section = "business"
	SectionValuation  Section = "valuation"
	SectionPeers      Section = "peers"
	SectionFinancials Section = "financials"
)

// sectionKeywords lists heading markers per section in priority order. The
// statements vary wording between issuers, so several variants per section.
var sectionKeywords = map[Section][]string{
	SectionLockup: {
		"상장 후 유통가능 및 매각제한",
		"유통가능주식인",
		"매각제한 물량",
		"보호예수",
		"유통제한",
	},
	SectionBusiness: {
		"사업의 내용",
		"주요 제품",
		"회사의 개요",
	},
	SectionValuation: {
		"인수인의 의견",
		"공모가격 산정",
		"평가방법",
		"기업가치 평가",
	},
	SectionPeers: {
		"비교기업 선정",
		"유사회사",
		"비교회사",
		"PER 산출",
		"주당 평가가액",
	},
	SectionFinancials: {
		"요약재무정보",
		"재무에 관한 사항",
		"재무제표",
	},
}

// sectionChars is the default window extracted around a matched heading.
const sectionChars = 15000

// Sections locates every known section in the combined document. maxChars
// bounds each extracted window, zero meaning the default. A section whose
// headings never match is simply absent from the map.
func Sections(html string, maxChars int) map[Section]string {
	out := make(map[Section]string, len(sectionKeywords))
	for section, keywords := range sectionKeywords {
		text := ExtractSection(html, keywords, maxChars)
		if text == "" {
			zap.L().Debug("filing: section not located", zap.String("section", string(section)))
			continue
		}
		out[section] = text
	}
	return out
}

var digitsRe = regexp.MustCompile(`\d{3,}`)

// ExtractSection finds the document region for a heading keyword list. Two
// passes: a match inside a TITLE tag wins outright; otherwise every plain
// occurrence is scored by table and number density and the densest window
// above a floor is returned. The score floor rejects matches that are table
// of contents entries only.
func ExtractSection(html string, keywords []string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = sectionChars
	}

	for _, kw := range keywords {
		re := regexp.MustCompile(`(?i)<TITLE[^>]*>[^<]*` + regexp.QuoteMeta(kw) + `[^<]*</TITLE>`)
		if loc := re.FindStringIndex(html); loc != nil {
			return html[loc[0]:min(len(html), loc[0]+maxChars)]
		}
	}

	lower := strings.ToLower(html)
	for _, kw := range keywords {
		kwLower := strings.ToLower(kw)
		best := ""
		bestScore := 0

		pos := 0
		for {
			idx := strings.Index(lower[pos:], kwLower)
			if idx < 0 {
				break
			}
			idx += pos

			start := max(0, idx-200)
			end := min(len(html), idx+maxChars)
			window := html[start:end]

			score := strings.Count(strings.ToLower(window), "<table")*5 +
				len(digitsRe.FindAllString(window, -1))
			if score > bestScore {
				bestScore = score
				best = window
			}
			pos = idx + len(kwLower)
		}

		if best != "" && bestScore > 10 {
			return best
		}
	}
	return ""
}
