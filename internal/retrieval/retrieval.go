// Package retrieval implements the three read-only search modes: full-text
// over chunks, semantic over résumés/keywords, and graph over
// entities/relationships. Grounded on
// original_source/mcp_server/db/queries.py's hand-written SQL per mode,
// adapted to pgx and the tagged-variant SearchResult from internal/types.
package retrieval

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/osgeo/wikiqa/internal/apperr"
	"github.com/osgeo/wikiqa/internal/types"
)

// Engine is the Retrieval Engine: a thin read-only wrapper over the pool.
type Engine struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Engine {
	return &Engine{pool: pool}
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return apperr.New(apperr.KindTransient, op, err)
}

// titleBoostExpr adds the title-match rank boosts: exact title match +10.0,
// partial (ILIKE) title match +2.5.
const titleBoostExpr = `
	CASE
		WHEN lower(p.title) = lower($1) THEN 10.0
		WHEN p.title ILIKE '%' || $1 || '%' THEN 2.5
		ELSE 0.0
	END`

// FullText runs a websearch_to_tsquery search over page_chunks.tsv, rank
// boosted by title match, limited to 5 rows and deduped to the
// highest-ranked chunk per page.
func (e *Engine) FullText(ctx context.Context, queryText string, limit int) ([]types.FullTextHit, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := e.pool.Query(ctx, `
		SELECT id, url, title, chunk_text, rank FROM (
			SELECT DISTINCT ON (p.id)
				p.id, p.url, p.title, pc.chunk_text,
				ts_rank(pc.tsv, websearch_to_tsquery('english', $1)) + `+titleBoostExpr+` AS rank
			FROM page_chunks pc
			JOIN pages p ON p.id = pc.page_id
			WHERE pc.tsv @@ websearch_to_tsquery('english', $1)
			ORDER BY p.id, rank DESC
		) best
		ORDER BY rank DESC
		LIMIT $2`,
		queryText, limit,
	)
	if err != nil {
		return nil, wrapErr("retrieval.FullText", err)
	}
	defer rows.Close()

	var hits []types.FullTextHit
	for rows.Next() {
		var h types.FullTextHit
		if err := rows.Scan(&h.PageID, &h.URL, &h.Title, &h.ChunkText, &h.Rank); err != nil {
			return nil, wrapErr("retrieval.FullText scan", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("retrieval.FullText iterate", err)
	}
	return hits, nil
}

// Semantic searches page_extensions' résumé and keyword vectors with a
// weighted combination (0.6 résumé + 0.4 keywords), plus the same title
// boosts, limited to 5 rows by default.
func (e *Engine) Semantic(ctx context.Context, queryText string, limit int) ([]types.SemanticHit, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := e.pool.Query(ctx, `
		SELECT p.id, p.url, pe.page_title, pe.resume, pe.keywords,
			(0.6 * ts_rank(pe.resume_tsv, websearch_to_tsquery('english', $1))
			 + 0.4 * ts_rank(pe.keywords_tsv, websearch_to_tsquery('english', $1))) + `+titleBoostExpr+` AS rank
		FROM page_extensions pe
		JOIN pages p ON p.url = pe.url
		WHERE pe.resume_tsv @@ websearch_to_tsquery('english', $1)
		   OR pe.keywords_tsv @@ websearch_to_tsquery('english', $1)
		ORDER BY rank DESC
		LIMIT $2`,
		queryText, limit,
	)
	if err != nil {
		return nil, wrapErr("retrieval.Semantic", err)
	}
	defer rows.Close()

	var hits []types.SemanticHit
	for rows.Next() {
		var h types.SemanticHit
		if err := rows.Scan(&h.PageID, &h.URL, &h.Title, &h.Resume, &h.Keywords, &h.Rank); err != nil {
			return nil, wrapErr("retrieval.Semantic scan", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("retrieval.Semantic iterate", err)
	}
	return hits, nil
}

// Graph searches entity_relationships joined to entity twice and to pages
// for source attribution, matching searchTerm against either entity's name
// via ILIKE, limited to 10 rows by default.
func (e *Engine) Graph(ctx context.Context, searchTerm string, limit int) ([]types.GraphHit, error) {
	if limit <= 0 {
		limit = 10
	}
	pattern := "%" + searchTerm + "%"
	rows, err := e.pool.Query(ctx, `
		SELECT subj.entity_name, r.predicate, obj.entity_name,
			p.id, p.title, p.url
		FROM entity_relationships r
		JOIN entities subj ON subj.id = r.subject_id
		JOIN entities obj ON obj.id = r.object_id
		JOIN pages p ON p.id = r.source_page_id
		WHERE subj.entity_name ILIKE $1 OR obj.entity_name ILIKE $1
		ORDER BY r.confidence DESC
		LIMIT $2`,
		pattern, limit,
	)
	if err != nil {
		return nil, wrapErr("retrieval.Graph", err)
	}
	defer rows.Close()

	var hits []types.GraphHit
	for rows.Next() {
		var h types.GraphHit
		if err := rows.Scan(&h.Subject, &h.Predicate, &h.Object, &h.SourcePageID, &h.SourcePageTitle, &h.SourcePageURL); err != nil {
			return nil, wrapErr("retrieval.Graph scan", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("retrieval.Graph iterate", err)
	}
	return hits, nil
}

// ExecuteGenerated runs an LLM-generated SQL statement as a parameterless
// query inside a read-only transaction and returns each row as a
// column-name-to-value map. The
// caller (the agentic planner) is responsible for validating sql with
// sqlguard.Validate before calling this; ExecuteGenerated does not
// re-validate, keeping the single-SELECT policy decision in one place.
func (e *Engine) ExecuteGenerated(ctx context.Context, sql string) ([]map[string]any, error) {
	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, wrapErr("retrieval.ExecuteGenerated begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, sql)
	if err != nil {
		return nil, wrapErr("retrieval.ExecuteGenerated", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []map[string]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, wrapErr("retrieval.ExecuteGenerated scan", err)
		}
		row := make(map[string]any, len(vals))
		for i, v := range vals {
			row[string(fields[i].Name)] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("retrieval.ExecuteGenerated iterate", err)
	}
	return out, nil
}
