package planner

import (
	"fmt"
	"strings"
)

// formatResults renders raw query-result rows for the LLM, grounded on
// original_source/mcp_server/handlers/agentic.py's format_results_for_llm:
// one line per row, top 5, shaped by the action that produced them.
func formatResults(results []map[string]any, action Action) string {
	if len(results) == 0 {
		return "No results"
	}

	rows := results
	if len(rows) > 5 {
		rows = rows[:5]
	}

	var lines []string
	for i, r := range rows {
		switch action {
		case ActionSearchSemantic:
			lines = append(lines, fmt.Sprintf("%d. %s: %s", i+1, str(r, "page_title"), str(r, "resume")))
		case ActionSearchGraph:
			lines = append(lines, fmt.Sprintf("%d. %s %s %s (source: %s)", i+1,
				str(r, "subject"), str(r, "predicate"), str(r, "object"), str(r, "source_page_url")))
		case ActionSearchFullText:
			lines = append(lines, fmt.Sprintf("%d. %s: %s", i+1, str(r, "title"), str(r, "chunk_text")))
		default:
			lines = append(lines, fmt.Sprintf("%d. %v", i+1, r))
		}
	}
	return strings.Join(lines, "\n")
}

func str(row map[string]any, key string) string {
	if v, ok := row[key]; ok && v != nil {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

// dedupeByURL collapses rows sharing the same "url" column, keeping the
// first (highest-ranked, since rows arrive rank-ordered) occurrence: one
// chunk per page, the highest-ranked one.
func dedupeByURL(results []map[string]any) []map[string]any {
	seen := make(map[string]bool)
	var out []map[string]any
	for _, r := range results {
		url := str(r, "url")
		if url != "" && seen[url] {
			continue
		}
		if url != "" {
			seen[url] = true
		}
		out = append(out, r)
	}
	return out
}

func topN(results []map[string]any, n int) []map[string]any {
	if len(results) <= n {
		return results
	}
	return results[:n]
}

// extractSources picks up to 3 citations from the last search in history
// that produced results. Graph-mode results are suppressed unless
// graphCitationsEnabled is set, leaving that suppression configurable
// rather than hard-coded.
func extractSources(history []searchAttempt, graphCitationsEnabled bool) []Source {
	for i := len(history) - 1; i >= 0; i-- {
		attempt := history[i]
		if attempt.ResultCount == 0 {
			continue
		}
		if attempt.Action == ActionSearchGraph && !graphCitationsEnabled {
			return nil
		}

		var sources []Source
		seen := make(map[string]bool)
		for _, r := range attempt.Results {
			var title, url string
			switch {
			case r["source_page_url"] != nil:
				url = str(r, "source_page_url")
				title = str(r, "source_page_title")
			case r["wiki_url"] != nil:
				url = str(r, "wiki_url")
				title = str(r, "page_title")
			case r["url"] != nil:
				url = str(r, "url")
				title = str(r, "title")
			}
			if url == "" || title == "" || seen[url] {
				continue
			}
			seen[url] = true
			sources = append(sources, Source{Title: title, URL: url})
			if len(sources) == 3 {
				break
			}
		}
		return sources
	}
	return nil
}
