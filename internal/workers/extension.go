package workers

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/osgeo/wikiqa/internal/apperr"
	"github.com/osgeo/wikiqa/internal/llmclient"
	"github.com/osgeo/wikiqa/internal/store"
)

// maxExtensionContentLength mirrors
// original_source/db/process_extensions.py's MAX_CONTENT_LENGTH.
const maxExtensionContentLength = 20000

const truncationMarker = "\n\n[Content truncated]"

// ExtensionWorker drains "extensions" tasks: it generates a bulleted résumé
// and a keyword list per page via an LLM fallback chain, grounded on
// original_source/db/process_extensions.py's generate_resume/
// generate_keywords prompts.
type ExtensionWorker struct {
	pool  *pgxpool.Pool
	store *store.Store
	llm   *llmclient.Client
}

func NewExtensionWorker(pool *pgxpool.Pool, st *store.Store, llm *llmclient.Client) *ExtensionWorker {
	return &ExtensionWorker{pool: pool, store: st, llm: llm}
}

// Process runs a single "extensions" task for the given page. Returns true
// if work was performed, false if the existing extension was already
// current for this content_hash (idempotent skip).
func (w *ExtensionWorker) Process(ctx context.Context, pageID int64) (bool, error) {
	in, err := w.store.GetForDerivationByPageID(ctx, pageID)
	if err != nil {
		return false, err
	}

	var existingHash string
	err = w.pool.QueryRow(ctx, `SELECT content_hash FROM page_extensions WHERE url = $1`, in.URL).Scan(&existingHash)
	if err == nil && existingHash == in.ContentHash {
		return false, nil
	}

	content := in.ContentText
	if len(content) > maxExtensionContentLength {
		content = content[:maxExtensionContentLength] + truncationMarker
	}

	if strings.TrimSpace(content) == "" {
		return true, w.save(ctx, in.URL, in.Title, "placeholder", "placeholder", in.ContentHash, "none")
	}

	resume, resumeModel, err := w.generateResume(ctx, content)
	if err != nil {
		return false, apperr.New(apperr.KindTransient, "extensionworker.generateResume", err)
	}

	keywords, _, err := w.generateKeywords(ctx, content)
	if err != nil {
		return false, apperr.New(apperr.KindTransient, "extensionworker.generateKeywords", err)
	}
	if len(strings.TrimSpace(keywords)) < 5 {
		keywords = "placeholder"
	}

	return true, w.save(ctx, in.URL, in.Title, resume, keywords, in.ContentHash, resumeModel)
}

func (w *ExtensionWorker) generateResume(ctx context.Context, content string) (string, string, error) {
	prompt := fmt.Sprintf(`Extract ONLY the facts that appear in this text. Do not explain or expand.

Rules:
- Start each line with "* "
- Copy names, dates, URLs exactly
- If text is 1-2 sentences, just repeat it with "* " prefix
- Never explain what terms mean
- Maximum 15 bullet points

Text:
%s

BULLET POINTS:`, content)

	res, err := w.llm.Complete(ctx, prompt, 1024)
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(res.Text), res.Model, nil
}

func (w *ExtensionWorker) generateKeywords(ctx context.Context, content string) (string, string, error) {
	prompt := fmt.Sprintf(`Extract keywords that appear in this text. Do not add related terms.

Include: names, organizations, projects, technical terms, dates.
Maximum 30 keywords, comma-separated.
If minimal content, write: placeholder

Text:
%s

KEYWORDS:`, content)

	res, err := w.llm.Complete(ctx, prompt, 256)
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(res.Text), res.Model, nil
}

func (w *ExtensionWorker) save(ctx context.Context, url, title, resume, keywords, contentHash, model string) error {
	_, err := w.pool.Exec(ctx, `
		INSERT INTO page_extensions (url, page_title, resume, keywords, content_hash, model_used, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (url) DO UPDATE SET
			page_title = excluded.page_title,
			resume = excluded.resume,
			keywords = excluded.keywords,
			content_hash = excluded.content_hash,
			model_used = excluded.model_used,
			last_updated = now()`,
		url, title, resume, keywords, contentHash, model,
	)
	if err != nil {
		return apperr.New(apperr.KindTransient, "extensionworker.save", err)
	}
	return nil
}
