// Package analysis turns the reconciled record into an analyst narrative.
// The record is handed to the model as opaque structured data; this stage
// never edits the record itself.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ipo-research-cli/internal/model"
	"github.com/sells-group/ipo-research-cli/pkg/anthropic"
	"github.com/sells-group/ipo-research-cli/pkg/naver"
)

const analystSystem = `너는 기관투자자의 IPO 리서치 애널리스트다.
증권신고서와 수집된 데이터를 바탕으로 공모주 투자 판단에 필요한 분석을 수행한다.

분석 원칙:
1. 회사가 제시한 스토리를 그대로 받아들이지 않고, 비판적으로 검증한다
2. 비교회사(Peer) 선정의 적정성을 반드시 따진다 (매출 규모, 성장 단계 비교)
3. 미래 실적 추정의 공격성을 과거 실적 추세와 비교한다
4. 유통물량과 기존 투자자 구성으로 수급 리스크를 판단한다
5. 기술특례/이익미실현 상장의 경우 추가 리스크를 명시한다
6. 최종적으로 "참여 여부와 참여 수준"에 대한 구체적 의견을 제시한다

출력 형식: 마크다운
언어: 한국어`

const defaultModel = "claude-sonnet-4-5-20250929"

// Analyst generates the narrative report.
type Analyst struct {
	oracle    anthropic.Client
	model     string
	maxTokens int64
}

// Options configures the analyst.
type Options struct {
	Model     string
	MaxTokens int64
}

// NewAnalyst creates the analysis stage.
func NewAnalyst(oracle anthropic.Client, opts Options) *Analyst {
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 8192
	}
	return &Analyst{oracle: oracle, model: opts.Model, maxTokens: opts.MaxTokens}
}

// Generate writes the markdown research report for the record. Headlines are
// optional context and may be nil.
func (a *Analyst) Generate(ctx context.Context, rec *model.CanonicalRecord, headlines []naver.Headline) (string, error) {
	prompt, err := buildPrompt(rec, headlines)
	if err != nil {
		return "", err
	}

	resp, err := a.oracle.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    []anthropic.SystemBlock{{Text: analystSystem}},
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", eris.Wrap(err, "analysis: generate report")
	}
	resp.Usage.LogCost(a.model, "analysis.report")

	report := strings.TrimSpace(resp.Text())
	if report == "" {
		return "", eris.New("analysis: model returned an empty report")
	}
	zap.L().Info("analysis: report generated",
		zap.String("company", rec.Identity.Name),
		zap.Int("chars", len(report)),
	)
	return report, nil
}

// buildPrompt serializes the record section by section so the model sees the
// same groups an analyst would, with the diagnostics spelled out last.
func buildPrompt(rec *model.CanonicalRecord, headlines []naver.Headline) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "아래는 '%s'의 IPO 관련 수집 데이터입니다.\n", rec.Identity.Name)
	b.WriteString("이 데이터를 바탕으로 종합 분석 리포트를 작성해주세요.\n\n")

	sections := []struct {
		title string
		value any
		skip  bool
	}{
		{"기업 개황", rec.Identity, false},
		{"공모사항", rec.Offering, false},
		{"주요 일정", rec.Schedule, false},
		{"주관사", rec.Underwriters, len(rec.Underwriters) == 0},
		{"수요예측 결과", rec.Demand, false},
		{"유통가능주식수 (보호예수)", rec.Lockup, len(rec.Lockup) == 0},
		{"사업내용", rec.Business, rec.Business == nil},
		{"재무제표", rec.Financials, len(rec.Financials) == 0},
		{"밸류에이션 (Peer 비교)", rec.Valuation, rec.Valuation == nil},
		{"수집 진단 (결측/충돌)", rec.Diagnostics, len(rec.Diagnostics) == 0},
	}
	for _, s := range sections {
		if s.skip {
			continue
		}
		blob, err := json.MarshalIndent(s.value, "", "  ")
		if err != nil {
			return "", eris.Wrapf(err, "analysis: marshal section %s", s.title)
		}
		fmt.Fprintf(&b, "## %s\n```json\n%s\n```\n\n", s.title, blob)
	}

	if len(headlines) > 0 {
		b.WriteString("## 최근 뉴스 헤드라인\n")
		for _, h := range headlines {
			fmt.Fprintf(&b, "- %s (%s)\n", h.Title, h.PublishedAt)
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n\n다음 구조로 작성해주세요:\n\n")
	fmt.Fprintf(&b, "# %s IPO 리서치 리포트\n\n", rec.Identity.Name)
	b.WriteString(`## 1. 공모 개요
- 공모사항 요약 (공모가, 시가총액, 공모비율, 주관사 등)
- 주요 일정

## 2. 사업 분석
- 핵심 사업 내용과 시장 내 위치
- 제품/서비스의 경쟁력과 차별화 요소
- 시장 규모와 성장성
- 경쟁 현황과 진입 장벽

## 3. 재무 분석
- 매출 성장 추세 (YoY)
- 수익성 (영업이익률, 순이익률)
- 재무 건전성 (부채비율 등)

## 4. 밸류에이션 검토
- 회사가 선정한 비교회사(Peer)의 적정성 평가
- 적용 PER/배수의 합리성
- 공모가 할인율 평가
- 상장 후 적정 시가총액 추정

## 5. 수급 분석
- 상장일 유통가능물량 비율 평가
- 기간별 락업 해제 스케줄과 오버행 리스크
- 기관 수요예측 결과 해석 (경쟁률, 확약비율)

## 6. 리스크 요인
- 특례상장 관련 리스크
- 사업/시장 고유 리스크
- 실적 추정의 공격성
- 데이터 결측·충돌 항목이 판단에 주는 한계

## 7. 종합 의견
- 투자 판단 요약 (긍정/부정 요소 정리)
- 참여 전략 제안 (참여 여부, 공모가 대비 적정가, 규모)

## 핵심 체크포인트
- 반드시 추가로 확인해야 할 사항 3~5개 (구체적으로)
`)
	return b.String(), nil
}
