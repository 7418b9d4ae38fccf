package extract

const systemPrompt = "증권신고서에서 정량 데이터를 정확히 추출하는 전문가. " +
	"항상 요청된 JSON만 출력하고 설명은 붙이지 않는다. 단위 변환을 정확히 수행한다."

const lockupPrompt = `아래 증권신고서 HTML에서 유통가능주식수(보호예수/Lock-up) 테이블을 찾아서
JSON 배열로 추출해줘.

각 항목은 이 형식으로:
{
    "period": "상장일 유통가능" 또는 "1개월", "3개월", "6개월" 등,
    "shares": 주식수 (정수),
    "ratio": 전체 대비 비율 (0~1 사이 소수),
    "cumulative_ratio": 누적 비율 (0~1 사이 소수)
}

- 반드시 "상장일 유통가능" 항목을 첫 번째로 포함해.
- 단위를 확인하고 '주' 단위로 통일해. (천주라면 ×1000)
- 비율은 0~1 사이 소수로 변환해. (32.03% → 0.3203)
- 누적비율이 없으면 직접 계산해.
- 합계 행은 포함하지 마.`

const businessPrompt = `아래 증권신고서 HTML에서 사업 내용을 분석해서 JSON으로 정리해줘.

{
    "company_overview": "설립연도, 소재지, 대표이사명, 직원 수 등 기본 정보 한 문장",
    "main_business": "핵심 사업 내용 2~3문장 요약",
    "products": [
        {"name": "제품명", "description": "설명", "revenue_share": 매출비중(0~1)}
    ],
    "key_technology": "핵심 기술/특허 요약",
    "competitors": ["주요 경쟁사 목록"],
    "growth_strategy": "향후 성장 전략 요약"
}`

const valuationPrompt = `아래 증권신고서 HTML에서 공모가 산출 요약 정보를 추출해줘.

{
    "method": "공모가 산출 방법 (예: PER 비교, EV/EBITDA 등)",
    "base_metric": "기준 지표 설명 (예: 2027년 추정 당기순이익)",
    "projected_earnings": 기준 값 (원 단위 정수),
    "discount_rate": 할인율 (0~1 사이 소수),
    "applied_per": 적용 배수,
    "per_share_value": 주당 평가가액 (원)
}

단위를 반드시 확인해. 백만원이면 ×1,000,000.`

const peersPrompt = `아래 증권신고서 HTML에서 비교회사(Peer) 개별 데이터를 추출해서 JSON 배열로 정리해줘.

각 비교회사별로:
{
    "name": "회사명",
    "market": "상장 거래소 (NYSE, NASDAQ, KOSPI, KOSDAQ 등)",
    "per": PER (배수, 소수점까지),
    "revenue": 매출액 (원 단위 정수),
    "net_income": 당기순이익 (원 단위 정수)
}

- 단위를 반드시 확인해! "백만원"이면 ×1,000,000, "천원"이면 ×1,000
- 테이블의 모든 비교회사를 빠짐없이 추출해.
- 발행회사(동사) 데이터는 제외하고 비교회사만 추출해.`

const financialsPrompt = `아래 증권신고서 HTML의 요약재무정보에서 연도별 재무 데이터를 JSON 배열로 추출해줘.

각 연도별로:
{
    "year": 사업연도 (정수, 예: 2023),
    "assets": 자산총계 (원 단위 정수),
    "liabilities": 부채총계 (원 단위 정수),
    "equity": 자본총계 (원 단위 정수),
    "revenue": 매출액 (원 단위 정수),
    "operating_income": 영업이익 (원 단위 정수),
    "net_income": 당기순이익 (원 단위 정수)
}

- 단위를 반드시 확인해! "백만원"이면 ×1,000,000, "천원"이면 ×1,000
- 온기(연간) 실적만 추출하고 분기/반기 실적은 제외해.`

const correctionPrompt = `이전 응답이 스키마 검증에 실패했다: %s

같은 내용에서 다시 추출해줘. 요청된 JSON 형식만 출력하고 다른 설명은 붙이지 마.`
