// Package session defines the conversation state threaded through the
// workflow and the checkpoint stores that hold it between requests.
package session

import (
	"time"
)

// Stage is the position of a session in the workflow.
type Stage string

// Image path: Routing, ImageAnalyzing, ImageSearching, AwaitingSelection,
// Comparing, Reporting, Done. Text path: Routing, TextAnswering, Done.
const (
	StageRouting           Stage = "ROUTING"
	StageImageAnalyzing    Stage = "IMAGE_ANALYZING"
	StageImageSearching    Stage = "IMAGE_SEARCHING"
	StageAwaitingSelection Stage = "AWAITING_SELECTION"
	StageComparing         Stage = "COMPARING"
	StageReporting         Stage = "REPORTING"
	StageTextAnswering     Stage = "TEXT_ANSWERING"
	StageDone              Stage = "DONE"
	StageFailed            Stage = "FAILED"
)

// Terminal reports whether no further transition is possible from s.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// InputType is the branch chosen at routing.
type InputType string

const (
	InputImage InputType = "image"
	InputText  InputType = "text"
)

// Message is one turn of text-path history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RankedResult is one similar design shown to the user.
type RankedResult struct {
	Index             int     `json:"index"`
	DesignID          string  `json:"design_id"`
	Distance          float64 `json:"distance"`
	ApplicationNumber string  `json:"application_number"`
	ArticleName       string  `json:"article_name"`
	AdmstStat         string  `json:"admst_stat"`
	ImagePath         string  `json:"image_path,omitempty"`
}

// SearchResults is the filtered index response, kept as parallel slices.
type SearchResults struct {
	IDs       []string            `json:"ids"`
	Distances []float64           `json:"distances"`
	Metadatas []map[string]string `json:"metadatas"`
}

// State is the full record of one conversation.
type State struct {
	ID        string    `json:"id"`
	Stage     Stage     `json:"stage"`
	InputType InputType `json:"input_type"`

	ImagePath   string `json:"image_path,omitempty"`
	Base64Image string `json:"base64_image,omitempty"`
	TextQuery   string `json:"text_query,omitempty"`
	UserQuery   string `json:"user_query,omitempty"`

	InputAnalysis      string         `json:"input_analysis,omitempty"`
	SearchResults      SearchResults  `json:"search_results"`
	ComparisonResults  []RankedResult `json:"comparison_results,omitempty"`
	SelectedIndex      int            `json:"selected_index,omitempty"`
	DetailedComparison string         `json:"detailed_comparison,omitempty"`
	FinalReport        string         `json:"final_report,omitempty"`

	GeneralAnswer string    `json:"general_answer,omitempty"`
	Messages      []Message `json:"messages,omitempty"`

	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a state in StageRouting.
func New(id string, now time.Time) *State {
	return &State{
		ID:        id,
		Stage:     StageRouting,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Turn returns the number of the next text exchange.
func (s *State) Turn() int {
	return len(s.Messages)/2 + 1
}

// Selected returns the ranked result with the selected index.
func (s *State) Selected() (RankedResult, bool) {
	for _, r := range s.ComparisonResults {
		if r.Index == s.SelectedIndex {
			return r, true
		}
	}
	return RankedResult{}, false
}

// Options returns the selectable indices.
func (s *State) Options() []int {
	out := make([]int, len(s.ComparisonResults))
	for i, r := range s.ComparisonResults {
		out[i] = r.Index
	}
	return out
}

// Clone returns a deep copy so stores never share memory with callers.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	c.SearchResults = SearchResults{
		IDs:       append([]string(nil), s.SearchResults.IDs...),
		Distances: append([]float64(nil), s.SearchResults.Distances...),
	}
	if s.SearchResults.Metadatas != nil {
		c.SearchResults.Metadatas = make([]map[string]string, len(s.SearchResults.Metadatas))
		for i, md := range s.SearchResults.Metadatas {
			if md == nil {
				continue
			}
			cp := make(map[string]string, len(md))
			for k, v := range md {
				cp[k] = v
			}
			c.SearchResults.Metadatas[i] = cp
		}
	}
	c.ComparisonResults = append([]RankedResult(nil), s.ComparisonResults...)
	c.Messages = append([]Message(nil), s.Messages...)
	return &c
}
