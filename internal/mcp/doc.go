// Package mcp serves the design search tools and the text assistant to MCP
// clients over stdio.
//
// Tools:
//   - search_design_db: text-to-image search of the registered design index
//   - web_search: Tavily web search
//   - ask: one turn of the text assistant, optionally continuing a thread
package mcp
