// Package tools implements the two capabilities the text assistant may
// call: web search and design-database search.
package tools

import "errors"

// ErrSearchFailed indicates a tool could not reach its backend.
var ErrSearchFailed = errors.New("search failed")

// Kind identifies a tool. The set is closed.
type Kind int

const (
	KindWebSearch Kind = iota + 1
	KindDesignSearch
)

// Tool names as exposed to the model.
const (
	NameWebSearch    = "web_search"
	NameDesignSearch = "search_design_db"
)

// String returns the tool name.
func (k Kind) String() string {
	switch k {
	case KindWebSearch:
		return NameWebSearch
	case KindDesignSearch:
		return NameDesignSearch
	default:
		return "unknown"
	}
}

// ParseKind maps a tool name to its Kind.
func ParseKind(name string) (Kind, bool) {
	switch name {
	case NameWebSearch:
		return KindWebSearch, true
	case NameDesignSearch:
		return KindDesignSearch, true
	default:
		return 0, false
	}
}
