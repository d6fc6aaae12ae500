package http

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// SimilarDesign is one ranked design in an image response.
type SimilarDesign struct {
	Index             int     `json:"index"`
	DesignID          string  `json:"design_id"`
	ApplicationNumber string  `json:"application_number"`
	ArticleName       string  `json:"article_name"`
	AdmstStat         string  `json:"admst_stat"`
	Distance          float64 `json:"distance"`
	ImageBase64       *string `json:"image_base64"`
}

// ImageResponse is the response body for POST /chat/image.
type ImageResponse struct {
	Success        bool            `json:"success"`
	ThreadID       string          `json:"thread_id"`
	InputAnalysis  string          `json:"input_analysis"`
	SimilarDesigns []SimilarDesign `json:"similar_designs"`
	Message        string          `json:"message"`
	Options        []int           `json:"options"`
}

// SelectRequest is the form or JSON body of POST /chat/select.
type SelectRequest struct {
	ThreadID      string `json:"thread_id" validate:"required"`
	SelectedIndex *int   `json:"selected_index" validate:"required"`
}

// SelectResponse is the response body for POST /chat/select.
type SelectResponse struct {
	Success            bool   `json:"success"`
	ThreadID           string `json:"thread_id"`
	DetailedComparison string `json:"detailed_comparison"`
	FinalReport        string `json:"final_report"`
}

// TextRequest is the form or JSON body of POST /chat/text.
type TextRequest struct {
	TextQuery string `json:"text_query" form:"text_query" validate:"required"`
	ThreadID  string `json:"thread_id" form:"thread_id"`
}

// TextResponse is the response body for POST /chat/text.
type TextResponse struct {
	Success  bool   `json:"success"`
	ThreadID string `json:"thread_id"`
	Answer   string `json:"answer"`
	Turn     int    `json:"turn"`
}
