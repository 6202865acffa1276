// Package workers implements the three derivation workers that drain the
// task queue: chunking, LLM-backed extension summaries, and
// entity/relationship extraction.
package workers

import (
	"context"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/osgeo/wikiqa/internal/apperr"
	"github.com/osgeo/wikiqa/internal/queue"
	"github.com/osgeo/wikiqa/internal/store"
)

// ChunkWorker drains "chunks" tasks, grounded on
// original_source/db/process_chunks.py's chunk_content: greedily pack
// paragraphs into chunks of at most chunkSize characters, falling back to
// sentence then whitespace splitting for any paragraph too long to fit on
// its own.
type ChunkWorker struct {
	pool      *pgxpool.Pool
	store     *store.Store
	queue     *queue.Queue
	chunkSize int
}

func NewChunkWorker(pool *pgxpool.Pool, st *store.Store, q *queue.Queue, chunkSize int) *ChunkWorker {
	return &ChunkWorker{pool: pool, store: st, queue: q, chunkSize: chunkSize}
}

var paragraphSplitRE = regexp.MustCompile(`\n{2,}`)

// SplitChunks packs content into chunks of at most chunkSize characters:
//  1. split on paragraph boundaries (>=2 consecutive newlines);
//  2. greedily pack paragraphs into a chunk until it would overflow;
//  3. a paragraph longer than chunkSize is split by sentence boundary;
//  4. a sentence still longer than chunkSize is split by whitespace.
//
// No chunk exceeds chunkSize except a single whitespace-free token longer
// than chunkSize, which is emitted as its own chunk verbatim.
func SplitChunks(content string, chunkSize int) []string {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	appendPiece := func(piece string) {
		if current.Len()+1+len(piece) > chunkSize && current.Len() > 0 {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(piece)
	}

	for _, para := range splitOnBlankLines(content) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if len(para) <= chunkSize {
			if current.Len()+2+len(para) > chunkSize && current.Len() > 0 {
				flush()
			}
			if current.Len() > 0 {
				current.WriteString("\n\n")
			}
			current.WriteString(para)
			continue
		}

		// Paragraph alone exceeds chunkSize: flush whatever's pending, then
		// pack sentence-by-sentence, falling back to whitespace splitting
		// for any oversized sentence.
		flush()
		for _, sentence := range splitSentences(para) {
			sentence = strings.TrimSpace(sentence)
			if sentence == "" {
				continue
			}
			if len(sentence) <= chunkSize {
				appendPiece(sentence)
				continue
			}
			flush()
			for _, word := range strings.Fields(sentence) {
				appendPiece(word)
			}
			flush()
		}
	}
	flush()

	return chunks
}

func splitOnBlankLines(s string) []string {
	return paragraphSplitRE.Split(s, -1)
}

// splitSentences implements the same lookbehind-on-terminator split as the
// original's `re.split(r"(?<=[.!?])\s+", para)`; Go's regexp package lacks
// lookbehind, so this walks the string directly.
func splitSentences(s string) []string {
	var out []string
	start := 0
	for i, r := range s {
		if r == '.' || r == '!' || r == '?' {
			// Consume any run of whitespace immediately following the
			// terminator as the split point.
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n') {
				j++
			}
			if j > i+1 {
				out = append(out, s[start:i+1])
				start = j
			}
		}
	}
	out = append(out, s[start:])
	return out
}

// Process claims and runs a single "chunks" task. Returns the number of
// chunks written, or an error classified for the caller to feed into
// queue.Complete.
func (w *ChunkWorker) Process(ctx context.Context, pageID, sourcePageID int64) (int, error) {
	in, err := w.store.GetForDerivationByPageID(ctx, pageID)
	if err != nil {
		return 0, err
	}

	chunks := SplitChunks(in.ContentText, w.chunkSize)

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return 0, apperr.New(apperr.KindTransient, "chunkworker.Process begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM page_chunks WHERE page_id = $1`, pageID); err != nil {
		return 0, apperr.New(apperr.KindTransient, "chunkworker.Process delete", err)
	}

	for i, text := range chunks {
		if _, err := tx.Exec(ctx, `
			INSERT INTO page_chunks (page_id, chunk_index, chunk_text)
			VALUES ($1, $2, $3)`,
			pageID, i, text,
		); err != nil {
			return 0, apperr.New(apperr.KindTransient, "chunkworker.Process insert", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, apperr.New(apperr.KindTransient, "chunkworker.Process commit", err)
	}
	return len(chunks), nil
}
