package llm

import "strings"

// ImageAnalysisPrompt asks the vision model to describe the shape of a product design.
const ImageAnalysisPrompt = `당신은 디자인 특허 심사관입니다. 주어진 제품 이미지의 형상을 분석하세요.

다음 항목을 순서대로 서술하세요.
1. 물품 종류: 어떤 제품으로 보이는지
2. 전체 형상: 윤곽, 비율, 대칭성
3. 세부 특징: 모서리 처리, 돌출부, 홈, 손잡이, 개구부 등
4. 표면 및 모양: 패턴, 질감, 장식 요소
5. 디자인 핵심 요부: 보는 사람의 주의를 가장 끄는 부분

색상보다 형상과 모양에 집중하고, 근거 없이 추측하지 마세요.`

// ImageComparisonPrompt asks the vision model to compare the input design
// (first image) with a registered design (second image).
const ImageComparisonPrompt = `당신은 디자인 특허 침해 분석 전문가입니다.
첫 번째 이미지는 사용자가 입력한 디자인, 두 번째 이미지는 등록된 선행 디자인입니다.

두 디자인을 비교하여 다음을 작성하세요.
1. 공통점: 전체 형상, 요부, 세부 특징 중 유사한 부분
2. 차이점: 보는 사람이 구별할 수 있는 형상 차이
3. 요부 비교: 디자인의 핵심 요부가 동일하거나 유사한지
4. 전체적 심미감: 두 디자인이 일반 수요자에게 주는 인상이 유사한지
5. 유사도 판단: 높음 / 중간 / 낮음 중 하나와 그 근거`

// reportTemplate is filled by ReportPrompt.
const reportTemplate = `당신은 디자인 FTO(Freedom to Operate) 분석 보고서를 작성하는 변리사입니다.
아래 자료를 바탕으로 사용자 요청에 맞는 보고서를 작성하세요.

[사용자 요청]
{user_query}

[입력 디자인 분석]
{input_analysis}

[비교 대상 선행 디자인 정보]
{selected_design_info}

[상세 비교 결과]
{detailed_comparison}

보고서 형식:
1. 요약: 결론을 2~3문장으로
2. 비교 대상 디자인 개요
3. 유사점과 차이점
4. 침해 위험도: 높음 / 중간 / 낮음과 근거
5. 권고 사항: 설계 변경 방향 등 실무적인 제안

비교 결과가 없거나 비교 대상 이미지를 찾지 못한 경우 그 사실을 밝히고 가능한 범위에서만 판단하세요.`

// TextSystemPrompt instructs the assistant on the text path.
const TextSystemPrompt = "당신은 디자인 특허 전문 어시스턴트입니다.\n" +
	"- 디자인 검색이 필요하면 search_design_db 도구를 사용하세요.\n" +
	"- 최신 정보, 웹 검색이 필요하면 web_search 도구를 사용하세요.\n" +
	"- 이전 대화 내용을 참고하여 일관성 있게 답변하세요.\n" +
	"- 답변은 친절하고 정확하게."

// translationTemplate turns Korean search text into short English keywords.
const translationTemplate = "다음 한글을 간단명료한 영어로 번역하세요. \n" +
	"디자인/제품 검색용이므로 핵심 키워드만 간단히.\n\n" +
	"한글: {text}\n" +
	"영어:"

// ReportInput holds the values substituted into the report prompt.
type ReportInput struct {
	InputAnalysis      string
	DetailedComparison string
	SelectedDesignInfo string
	UserQuery          string
}

// ReportPrompt renders the report prompt for in.
func ReportPrompt(in ReportInput) string {
	return strings.NewReplacer(
		"{user_query}", in.UserQuery,
		"{input_analysis}", in.InputAnalysis,
		"{selected_design_info}", in.SelectedDesignInfo,
		"{detailed_comparison}", in.DetailedComparison,
	).Replace(reportTemplate)
}

// TranslationPrompt renders the translation prompt for text.
func TranslationPrompt(text string) string {
	return strings.Replace(translationTemplate, "{text}", text, 1)
}
