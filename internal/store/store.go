// Package store is the content store: the exclusive owner of source_page,
// and the writer of the lightweight page FK-target row. Every mutation runs
// inside a single transaction, wrapping driver errors through one helper
// rather than letting raw driver errors leak across the package boundary.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/osgeo/wikiqa/internal/apperr"
	"github.com/osgeo/wikiqa/internal/types"
)

// Store is the Content Store.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an already-connected pool. Callers are responsible for running
// Migrate before first use.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return apperr.New(apperr.KindTransient, op, err)
}

// ContentHash computes the SHA-256 hash of text in hex.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// UpsertInput bundles the fields accepted by Upsert.
type UpsertInput struct {
	SourceType  types.SourceType
	SourceID    string
	Title       string
	URL         string
	Text        string
	HTML        string
	LastRevID   *int64
	Categories  []string
}

// Upsert computes the content hash over in.Text, compares it against any
// stored source_page for (SourceType, SourceID), and writes the row,
// creating the companion page row on first sight of a URL. Changed reports
// true iff the row was newly created or its hash differs from what was
// stored — syncers use this to decide whether to enqueue derivation tasks.
func (s *Store) Upsert(ctx context.Context, in UpsertInput) (sourcePageID, pageID int64, changed bool, err error) {
	hash := ContentHash(in.Text)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, 0, false, wrapErr("store.Upsert begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var existingHash string
	var existingSourceID int64
	scanErr := tx.QueryRow(ctx, `
		SELECT id, content_hash FROM source_pages
		WHERE source_type = $1 AND source_id = $2`,
		in.SourceType, in.SourceID,
	).Scan(&existingSourceID, &existingHash)

	isNew := errors.Is(scanErr, pgx.ErrNoRows)
	if scanErr != nil && !isNew {
		return 0, 0, false, wrapErr("store.Upsert lookup", scanErr)
	}

	changed = isNew || existingHash != hash

	if isNew {
		if err := tx.QueryRow(ctx, `
			INSERT INTO source_pages
				(source_type, source_id, title, url, content_text, content_html,
				 content_hash, last_revid, categories, last_synced, status)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, now(), 'active')
			RETURNING id`,
			in.SourceType, in.SourceID, in.Title, in.URL, in.Text, in.HTML,
			hash, in.LastRevID, in.Categories,
		).Scan(&sourcePageID); err != nil {
			return 0, 0, false, wrapErr("store.Upsert insert source_page", err)
		}
	} else {
		sourcePageID = existingSourceID
		if _, err := tx.Exec(ctx, `
			UPDATE source_pages
			SET title = $1, url = $2, content_text = $3, content_html = $4,
			    content_hash = $5, last_revid = $6, categories = $7,
			    last_synced = now(), status = 'active'
			WHERE id = $8`,
			in.Title, in.URL, in.Text, in.HTML, hash, in.LastRevID, in.Categories, sourcePageID,
		); err != nil {
			return 0, 0, false, wrapErr("store.Upsert update source_page", err)
		}
	}

	if err := tx.QueryRow(ctx, `
		INSERT INTO pages (title, url, last_crawled)
		VALUES ($1, $2, now())
		ON CONFLICT (url) DO UPDATE SET title = excluded.title, last_crawled = now()
		RETURNING id`,
		in.Title, in.URL,
	).Scan(&pageID); err != nil {
		return 0, 0, false, wrapErr("store.Upsert upsert page", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, false, wrapErr("store.Upsert commit", err)
	}
	return sourcePageID, pageID, changed, nil
}

// PruneOld deletes source_page rows of sourceType not synced within the
// last olderThanDays. Deletion cascades to page_chunks, page_extensions are
// keyed by URL (not FK-cascaded) and are cleaned up separately here:
// derived tables are invalidated by hash comparison, but a pruned source has
// no hash to compare against any more, so its extension row would otherwise
// be orphaned forever.
func (s *Store) PruneOld(ctx context.Context, sourceType types.SourceType, olderThanDays int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, wrapErr("store.PruneOld begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT url FROM source_pages WHERE source_type = $1 AND last_synced < $2`,
		sourceType, cutoff)
	if err != nil {
		return 0, wrapErr("store.PruneOld select urls", err)
	}
	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			rows.Close()
			return 0, wrapErr("store.PruneOld scan url", err)
		}
		urls = append(urls, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, wrapErr("store.PruneOld iterate urls", err)
	}

	if len(urls) > 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM page_extensions WHERE url = ANY($1)`, urls); err != nil {
			return 0, wrapErr("store.PruneOld delete extensions", err)
		}
	}

	tag, err := tx.Exec(ctx, `
		DELETE FROM source_pages WHERE source_type = $1 AND last_synced < $2`,
		sourceType, cutoff)
	if err != nil {
		return 0, wrapErr("store.PruneOld delete source_pages", err)
	}

	if len(urls) > 0 {
		if _, err := tx.Exec(ctx, `
			DELETE FROM pages p WHERE p.url = ANY($1)
			  AND NOT EXISTS (SELECT 1 FROM source_pages sp WHERE sp.url = p.url)`,
			urls,
		); err != nil {
			return 0, wrapErr("store.PruneOld delete orphan pages", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, wrapErr("store.PruneOld commit", err)
	}
	return int(tag.RowsAffected()), nil
}

// GetSourceRevID looks up the last_revid stored for (sourceType, sourceID),
// used by the wiki syncer to decide whether a recentchanges entry is already
// current. found is false when no source_page row exists yet for this key.
func (s *Store) GetSourceRevID(ctx context.Context, sourceType types.SourceType, sourceID string) (revID int64, found bool, err error) {
	var nullable *int64
	scanErr := s.pool.QueryRow(ctx, `
		SELECT last_revid FROM source_pages WHERE source_type = $1 AND source_id = $2`,
		sourceType, sourceID,
	).Scan(&nullable)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if scanErr != nil {
		return 0, false, wrapErr("store.GetSourceRevID", scanErr)
	}
	if nullable == nil {
		return 0, true, nil
	}
	return *nullable, true, nil
}

// DerivationInput is the minimal content a worker needs: title, url, text
// and the hash it was computed from.
type DerivationInput struct {
	PageID      int64
	Title       string
	URL         string
	ContentText string
	ContentHash string
}

// GetForDerivationByPageID loads the current canonical content for pageID,
// joining through url since page_chunks/page_extensions key off page/url
// rather than source_page directly.
func (s *Store) GetForDerivationByPageID(ctx context.Context, pageID int64) (DerivationInput, error) {
	var in DerivationInput
	in.PageID = pageID
	err := s.pool.QueryRow(ctx, `
		SELECT p.url, sp.title, sp.content_text, sp.content_hash
		FROM pages p
		JOIN source_pages sp ON sp.url = p.url
		WHERE p.id = $1`, pageID,
	).Scan(&in.URL, &in.Title, &in.ContentText, &in.ContentHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return in, apperr.New(apperr.KindContent, "store.GetForDerivationByPageID", fmt.Errorf("no source content for page %d", pageID))
	}
	if err != nil {
		return in, wrapErr("store.GetForDerivationByPageID", err)
	}
	return in, nil
}

// GetForDerivationBySourcePageID is the source_page_id-keyed counterpart,
// used by workers whose queue row carries source_page_id directly.
func (s *Store) GetForDerivationBySourcePageID(ctx context.Context, sourcePageID int64) (DerivationInput, error) {
	var in DerivationInput
	err := s.pool.QueryRow(ctx, `
		SELECT p.id, sp.title, sp.url, sp.content_text, sp.content_hash
		FROM source_pages sp
		JOIN pages p ON p.url = sp.url
		WHERE sp.id = $1`, sourcePageID,
	).Scan(&in.PageID, &in.Title, &in.URL, &in.ContentText, &in.ContentHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return in, apperr.New(apperr.KindContent, "store.GetForDerivationBySourcePageID", fmt.Errorf("no source content for source_page %d", sourcePageID))
	}
	if err != nil {
		return in, wrapErr("store.GetForDerivationBySourcePageID", err)
	}
	return in, nil
}
