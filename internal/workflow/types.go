package workflow

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/designd/internal/llm"
	"github.com/fyrsmithlabs/designd/internal/session"
	"github.com/fyrsmithlabs/designd/internal/vectorstore"
)

var (
	// ErrInvalidInput is returned for missing or malformed arguments.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidStage is returned when a session cannot accept the operation.
	ErrInvalidStage = errors.New("invalid session stage")
)

// User-facing strings.
const (
	SelectionMessage     = "상세 비교할 디자인 번호를 선택하세요! VLM이 선택한 디자인과 입력 디자인을 비교 분석해, 자세한 유사점/차이점을 알려드립니다."
	ComparisonNotFound   = "비교 대상 이미지를 찾을 수 없습니다."
	NoDesignInfo         = "정보 없음"
	DefaultReportQuery   = "FTO 리포트를 작성해줘"
	MissingMetadataValue = "N/A"
)

// Model is the language model used by both branches.
type Model interface {
	DescribeImage(ctx context.Context, dataURL string) (string, error)
	CompareImages(ctx context.Context, inputURL, comparisonURL string) (string, error)
	WriteReport(ctx context.Context, in llm.ReportInput) (string, error)
	Chat(ctx context.Context, messages []llm.Message, tools []llm.ToolSpec) (*llm.Reply, error)
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

// ImageEmbedder embeds an uploaded image.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, image []byte) ([]float32, error)
}

// Searcher runs similarity search with application-number dedup.
type Searcher interface {
	SearchAndFilter(ctx context.Context, vector []float32, n int) (*vectorstore.QueryResult, error)
}

// Resolver maps a design id to a local image path.
type Resolver interface {
	Resolve(designID string) (string, bool)
}

// Toolbox offers tools to the model and runs the calls it makes.
type Toolbox interface {
	Definitions() []llm.ToolSpec
	Call(ctx context.Context, call llm.ToolCall) string
}

// Request is the routing entry point. A non-empty ImagePath naming a regular
// file that can be opened selects the image branch; otherwise TextQuery is
// answered.
type Request struct {
	SessionID string
	ImagePath string
	TextQuery string
	UserQuery string
}

// Outcome holds the result of whichever branch Start ran.
type Outcome struct {
	InputType session.InputType
	Image     *ImageResult
	Text      *TextResult
}

// ImageResult is returned when an image session suspends for selection.
type ImageResult struct {
	SessionID     string                 `json:"session_id"`
	InputAnalysis string                 `json:"input_analysis"`
	Results       []session.RankedResult `json:"results"`
	Message       string                 `json:"message"`
	Options       []int                  `json:"options"`
}

// SelectionResult is returned when an image session completes.
type SelectionResult struct {
	SessionID          string                `json:"session_id"`
	DetailedComparison string                `json:"detailed_comparison"`
	FinalReport        string                `json:"final_report"`
	SelectedDesign     *session.RankedResult `json:"selected_design,omitempty"`
}

// TextResult is one answered text turn.
type TextResult struct {
	SessionID string `json:"session_id"`
	Turn      int    `json:"turn"`
	Answer    string `json:"answer"`
}
