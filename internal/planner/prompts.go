package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/osgeo/wikiqa/internal/llmclient"
)

type decision struct {
	Action    Action `json:"action"`
	Reasoning string `json:"reasoning"`
}

var decisionKnownKeys = []string{"action", "reasoning"}

// decide runs the per-iteration "choose a strategy" call, grounded on
// original_source/mcp_server/handlers/agentic.py's decision_prompt.
func (p *Planner) decide(ctx context.Context, userQuery, currentDate string, blocked, available []Action, resultsText string, iteration int) (decision, bool) {
	blockedText := "None"
	if len(blocked) > 0 {
		var lines []string
		for _, b := range blocked {
			lines = append(lines, fmt.Sprintf("- %s (already tried)", b))
		}
		blockedText = strings.Join(lines, "\n")
	}
	var availLines []string
	for _, a := range available {
		availLines = append(availLines, fmt.Sprintf("- %s", a))
	}

	prompt := fmt.Sprintf(`TODAY'S DATE: %s

Query: %s

QUERY ANALYSIS:
- If query asks about relationships, connections, or "how X relates to Y" -> prefer search_graph
- If query asks "what is" or definitions -> prefer search_semantic or search_fulltext
- If previous search gave partial results -> try different method

ALREADY TRIED:
%s

RESULTS SO FAR:
%s

CHOOSE FROM:
%s

Return JSON: {"action": "...", "reasoning": "one sentence, max 20 words"}`,
		currentDate, userQuery, blockedText, resultsText, strings.Join(availLines, "\n"))

	res, err := p.llm.Complete(ctx, prompt, 250)
	if err != nil {
		return decision{}, false
	}

	var d decision
	if _, err := llmclient.RepairedJSON(res.Text, &d, decisionKnownKeys); err != nil {
		return decision{}, false
	}
	if d.Action == "" {
		return decision{}, false
	}
	return d, true
}

// generateSQL asks the LLM for a single SELECT, grounded on
// original_source/mcp_server/handlers/agentic.py's _create_sql_prompt
// (the function agentic_search actually calls per action), generalized to
// one template per action. Each guidance block spells out the exact column
// aliases the result set must carry, since formatResults/extractSources key
// their lookups by those literal names and Postgres would otherwise hand
// back ambiguous or bare column names from the joins involved (two "id"
// columns from pages/page_chunks, two entity_name columns from the
// subject/object entities join).
func (p *Planner) generateSQL(ctx context.Context, action Action, userQuery string) (string, error) {
	var guidance string
	switch action {
	case ActionSearchFullText:
		guidance = fmt.Sprintf(`Generate a single PostgreSQL SELECT over page_chunks joined to pages.
Use websearch_to_tsquery('english', ...) against pc.tsv for the search terms, translated to English regardless
of the query's language. Rank with ts_rank. Add a title-match boost: +10.0 if pages.title exactly matches a
likely subject of the query, +2.5 for a partial ILIKE match. Order by the boosted rank descending. LIMIT 5.
Alias columns exactly as shown so the result set has unambiguous names:
SELECT p.id AS page_id, p.url AS url, p.title AS title, pc.chunk_text AS chunk_text, <rank expression> AS rank
FROM page_chunks pc
JOIN pages p ON p.id = pc.page_id
WHERE pc.tsv @@ websearch_to_tsquery('english', '<terms>')
ORDER BY rank DESC
LIMIT 5`)
	case ActionSearchSemantic:
		guidance = fmt.Sprintf(`Generate a single PostgreSQL SELECT over page_extensions joined to pages on url.
Use websearch_to_tsquery('english', ...) against resume_tsv and keywords_tsv, translated to English regardless
of the query's language, combined as 0.6*resume_rank + 0.4*keywords_rank. Add the same title-match boost as
fulltext search. Order by the combined rank descending. LIMIT 5.
Alias columns exactly as shown so the result set has unambiguous names:
SELECT p.id AS page_id, p.url AS wiki_url, pe.page_title AS page_title, pe.resume AS resume, pe.keywords AS keywords,
       <rank expression> AS rank
FROM page_extensions pe
JOIN pages p ON p.url = pe.url
WHERE pe.resume_tsv @@ websearch_to_tsquery('english', '<terms>')
   OR pe.keywords_tsv @@ websearch_to_tsquery('english', '<terms>')
ORDER BY rank DESC
LIMIT 5`)
	case ActionSearchGraph:
		guidance = fmt.Sprintf(`Generate a single PostgreSQL SELECT over entity_relationships joined to entities twice
(subject and object) and to pages for source attribution. Use ILIKE '%%term%%' on entity_name for the search
terms derived from the query, translated to English regardless of the query's language. Order by confidence
descending. LIMIT 10.
Alias columns exactly as shown so the result set has unambiguous names:
SELECT e1.entity_name AS subject, r.predicate AS predicate, e2.entity_name AS object,
       p.id AS source_page_id, p.title AS source_page_title, p.url AS source_page_url
FROM entity_relationships r
JOIN entities e1 ON e1.id = r.subject_id
JOIN entities e2 ON e2.id = r.object_id
JOIN pages p ON p.id = r.source_page_id
WHERE e1.entity_name ILIKE '%%term%%' OR e2.entity_name ILIKE '%%term%%'
ORDER BY r.confidence DESC
LIMIT 10`)
	default:
		return "", fmt.Errorf("planner: unknown action %q", action)
	}

	prompt := fmt.Sprintf(`You are a PostgreSQL search expert for an OSGeo wiki Q&A service.

DATABASE SCHEMA:
%s

USER QUERY: %s

%s

Return ONLY the SQL statement, no explanation. A single SELECT statement, no trailing semicolon required.

SQL:`, p.schema, userQuery, guidance)

	res, err := p.llm.Complete(ctx, prompt, 300)
	if err != nil {
		return "", err
	}
	return stripSQLFences(res.Text), nil
}

func stripSQLFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```sql")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

type evaluation struct {
	CanAnswer bool   `json:"can_answer"`
	Reasoning string `json:"reasoning"`
}

var evaluationKnownKeys = []string{"can_answer", "reasoning"}

// evaluate runs the per-iteration sufficiency check: can the query be
// answered fully from the results gathered so far.
func (p *Planner) evaluate(ctx context.Context, userQuery, currentDate, formattedResults string) (sufficient bool, ok bool) {
	prompt := fmt.Sprintf(`TODAY'S DATE: %s

Query: %s

FOUND:
%s

Can you FULLY and DIRECTLY answer the query with ONLY this information?

Return EXACTLY ONE JSON object:
{"can_answer": true or false, "reasoning": "one sentence"}`, currentDate, userQuery, formattedResults)

	res, err := p.llm.Complete(ctx, prompt, 150)
	if err != nil {
		return false, false
	}

	var e evaluation
	if _, err := llmclient.RepairedJSON(res.Text, &e, evaluationKnownKeys); err != nil {
		return false, false
	}
	return e.CanAnswer, true
}

// synthesize writes the final answer: only in responseLanguage, facts only
// from results, graph triples converted to sentences, citing the most
// relevant URL.
func (p *Planner) synthesize(ctx context.Context, userQuery, currentDate, responseLanguage, formattedResults string) string {
	prompt := fmt.Sprintf(`Answer this question in %s language.

TODAY'S DATE: %s

Query: %s

Search Results:
%s

CRITICAL INSTRUCTIONS:
1. Write your entire answer in %s language (not English, unless %s is 'English')
2. Answer ONLY using the search results above - do not use any other knowledge
3. If results are graph relationships (like "X is_project_of Y"), convert to natural language sentences and
   state each unique relationship once only
4. Keep the answer concise: 2-4 sentences
5. Include the most relevant source URL at the end, taken only from the search results above - never invent a URL

Answer in %s:`, responseLanguage, currentDate, userQuery, formattedResults, responseLanguage, responseLanguage, responseLanguage)

	res, err := p.llm.Complete(ctx, prompt, 512)
	if err != nil {
		return rephraseMessage(responseLanguage)
	}
	return strings.TrimSpace(res.Text)
}

// synthesizePartial produces the hedged answer used when the loop exhausts
// its iteration budget but the last attempt had results.
func (p *Planner) synthesizePartial(ctx context.Context, userQuery, currentDate, responseLanguage, formattedResults string) string {
	prompt := fmt.Sprintf(`Answer this question in %s language, but acknowledge the answer may be incomplete.

TODAY'S DATE: %s

Query: %s

Partial Search Results:
%s

INSTRUCTIONS:
1. Write your entire answer in %s language
2. Use ONLY the information in the results above
3. Explicitly acknowledge the answer is incomplete or uncertain
4. Include the most relevant source URL at the end if one is present in the results

Answer in %s:`, responseLanguage, currentDate, userQuery, formattedResults, responseLanguage, responseLanguage)

	res, err := p.llm.Complete(ctx, prompt, 512)
	if err != nil {
		return rephraseMessage(responseLanguage)
	}
	return strings.TrimSpace(res.Text)
}
