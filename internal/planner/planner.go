// Package planner implements the agentic planner: an iterative LLM-driven
// loop that chooses a search strategy, generates SQL against the retrieval
// schema, evaluates sufficiency, and synthesizes a final answer. Grounded on
// original_source/mcp_server/handlers/agentic.py's agentic_search, adapted
// from a single asyncio coroutine to an explicit per-iteration Go loop.
package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/osgeo/wikiqa/internal/llmclient"
	"github.com/osgeo/wikiqa/internal/retrieval"
	"github.com/osgeo/wikiqa/internal/sqlguard"
)

// Action is one of the four choices the decision step may return.
type Action string

const (
	ActionSearchSemantic Action = "search_semantic"
	ActionSearchGraph    Action = "search_graph"
	ActionSearchFullText Action = "search_fulltext"
	ActionDone           Action = "done"
)

var allActions = []Action{ActionSearchSemantic, ActionSearchGraph, ActionSearchFullText, ActionDone}

// DefaultSchema is the read surface description fed into the SQL
// generation prompt, naming exactly the tables and columns the generated
// SELECT is permitted to target.
const DefaultSchema = `
pages(id, title, url, last_crawled)
page_chunks(id, page_id, chunk_index, chunk_text, tsv)
page_extensions(id, url, page_title, resume, keywords, content_hash, model_used, resume_tsv, keywords_tsv, page_title_tsv, last_updated)
entities(id, entity_type, entity_name)
entity_relationships(id, subject_id, predicate, object_id, source_page_id, confidence)
`

// Config bounds the planner's behavior. GraphCitationsEnabled is left
// configurable rather than hard-coded: whether graph-mode answers should
// cite page URLs.
type Config struct {
	MaxIterations         int
	GraphCitationsEnabled bool
}

func DefaultConfig() Config {
	return Config{MaxIterations: 3, GraphCitationsEnabled: false}
}

// Source is one citation surfaced alongside the final answer.
type Source struct {
	Title string
	URL   string
}

// searchAttempt records one completed iteration's action and formatted
// results, the state the decision/evaluation prompts are built from on the
// next pass.
type searchAttempt struct {
	Action           Action
	Reasoning        string
	ResultCount      int
	Results          []map[string]any
	FormattedResults string
}

// Result is the planner's terminal output.
type Result struct {
	Answer     string
	Iterations int
	Sources    []Source
}

// Planner orchestrates the Retrieval Engine through an iterative LLM loop.
type Planner struct {
	llm       *llmclient.Client
	retrieval *retrieval.Engine
	schema    string
	cfg       Config
}

func New(llm *llmclient.Client, eng *retrieval.Engine, schemaDescription string, cfg Config) *Planner {
	return &Planner{llm: llm, retrieval: eng, schema: schemaDescription, cfg: cfg}
}

// Ask runs the full agentic loop for a user query, returning an answer in
// responseLanguage plus up to 3 source citations. The planner never raises:
// every failure mode (JSON parse failure, LLM exhaustion, empty database)
// resolves to a natural-language message instead of an error.
func (p *Planner) Ask(ctx context.Context, userQuery, currentDate, responseLanguage string) Result {
	var history []searchAttempt

	for iteration := 1; iteration <= p.cfg.MaxIterations; iteration++ {
		blocked := blockedActions(history)
		available := availableActions(blocked)

		decision, ok := p.decide(ctx, userQuery, currentDate, blocked, available, lastFormatted(history), iteration)
		if !ok {
			break
		}

		if decision.Action == ActionDone {
			if len(history) == 0 {
				break
			}
			answer := p.synthesize(ctx, userQuery, currentDate, responseLanguage, history[len(history)-1].FormattedResults)
			return Result{Answer: answer, Iterations: iteration, Sources: extractSources(history, p.cfg.GraphCitationsEnabled)}
		}

		sql, err := p.generateSQL(ctx, decision.Action, userQuery)
		if err != nil {
			break
		}
		if err := sqlguard.Validate(sql); err != nil {
			// Invalid SQL aborts this iteration and forbids the action for
			// the remainder of the request.
			history = append(history, searchAttempt{Action: decision.Action, Reasoning: decision.Reasoning})
			continue
		}

		results, err := p.retrieval.ExecuteGenerated(ctx, sql)
		if err != nil {
			history = append(history, searchAttempt{Action: decision.Action, Reasoning: decision.Reasoning})
			continue
		}

		if decision.Action == ActionSearchFullText {
			results = dedupeByURL(results)
		}

		formatted := formatResults(results, decision.Action)
		attempt := searchAttempt{
			Action:           decision.Action,
			Reasoning:        decision.Reasoning,
			ResultCount:      len(results),
			Results:          topN(results, 5),
			FormattedResults: formatted,
		}
		history = append(history, attempt)

		if len(results) == 0 {
			continue
		}

		sufficient, ok := p.evaluate(ctx, userQuery, currentDate, formatted)
		if ok && sufficient {
			answer := p.synthesize(ctx, userQuery, currentDate, responseLanguage, formatted)
			return Result{Answer: answer, Iterations: iteration, Sources: extractSources(history, p.cfg.GraphCitationsEnabled)}
		}
	}

	return p.terminate(ctx, userQuery, currentDate, responseLanguage, history)
}

// terminate handles loop exhaustion: a hedged answer if the last iteration
// had results, otherwise a "please rephrase" message.
func (p *Planner) terminate(ctx context.Context, userQuery, currentDate, responseLanguage string, history []searchAttempt) Result {
	if len(history) > 0 && history[len(history)-1].ResultCount > 0 {
		last := history[len(history)-1]
		answer := p.synthesizePartial(ctx, userQuery, currentDate, responseLanguage, last.FormattedResults)
		return Result{Answer: answer, Iterations: len(history), Sources: extractSources(history, p.cfg.GraphCitationsEnabled)}
	}
	return Result{Answer: rephraseMessage(responseLanguage), Iterations: len(history)}
}

func blockedActions(history []searchAttempt) []Action {
	var blocked []Action
	for _, h := range history {
		if h.Action != ActionDone {
			blocked = append(blocked, h.Action)
		}
	}
	return blocked
}

func availableActions(blocked []Action) []Action {
	blockedSet := make(map[Action]bool, len(blocked))
	for _, b := range blocked {
		blockedSet[b] = true
	}
	var available []Action
	for _, a := range allActions {
		if !blockedSet[a] {
			available = append(available, a)
		}
	}
	return available
}

func lastFormatted(history []searchAttempt) string {
	if len(history) == 0 {
		return "None yet"
	}
	last := history[len(history)-1]
	if last.FormattedResults == "" {
		return "None yet"
	}
	return fmt.Sprintf("%s:\n%s", strings.TrimPrefix(string(last.Action), "search_"), last.FormattedResults)
}

func rephraseMessage(language string) string {
	if strings.EqualFold(language, "spanish") || strings.EqualFold(language, "español") {
		return "No encontré información suficiente para responder. ¿Podrías reformular tu pregunta?"
	}
	return "I couldn't find enough information to answer that. Could you rephrase your question?"
}
