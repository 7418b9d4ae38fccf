package analysis

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ipo-research-cli/internal/model"
	"github.com/sells-group/ipo-research-cli/pkg/anthropic"
	"github.com/sells-group/ipo-research-cli/pkg/naver"
)

type stubOracle struct {
	lastReq anthropic.MessageRequest
	text    string
	err     error
}

func (s *stubOracle) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: s.text}},
	}, nil
}

func sampleRecord() *model.CanonicalRecord {
	return &model.CanonicalRecord{
		Identity: model.Identity{Name: "에이펙스", CorpCode: "00123456"},
		Lockup: []model.LockupEntry{
			{Horizon: "상장일", Shares: 500000, Ratio: 0.25, CumulativeRatio: 0.25},
		},
		Diagnostics: []model.Diagnostic{
			{FieldPath: "demand.confirmed_price", Kind: model.DiagGap, Detail: "value not located"},
		},
	}
}

func TestGenerateBuildsSectionedPrompt(t *testing.T) {
	oracle := &stubOracle{text: "# 에이펙스 IPO 리서치 리포트\n내용"}
	a := NewAnalyst(oracle, Options{})

	report, err := a.Generate(context.Background(), sampleRecord(), []naver.Headline{
		{Title: "에이펙스 수요예측 흥행", PublishedAt: "Fri, 28 Aug 2026 09:00:00 +0900"},
	})
	require.NoError(t, err)
	assert.Contains(t, report, "리서치 리포트")

	prompt := oracle.lastReq.Messages[0].Content
	assert.Contains(t, prompt, "## 기업 개황")
	assert.Contains(t, prompt, "## 유통가능주식수 (보호예수)")
	assert.Contains(t, prompt, "## 수집 진단 (결측/충돌)")
	assert.Contains(t, prompt, "수요예측 흥행")
	// Absent sections stay out of the prompt entirely.
	assert.NotContains(t, prompt, "## 사업내용")
	assert.NotContains(t, prompt, "## 밸류에이션")
}

func TestGenerateEmptyReportIsError(t *testing.T) {
	a := NewAnalyst(&stubOracle{text: "   "}, Options{})

	_, err := a.Generate(context.Background(), sampleRecord(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty report")
}

func TestGenerateOracleFailure(t *testing.T) {
	a := NewAnalyst(&stubOracle{err: eris.New("overloaded")}, Options{})

	_, err := a.Generate(context.Background(), sampleRecord(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generate report")
}
