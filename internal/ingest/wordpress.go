package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/osgeo/wikiqa/internal/queue"
	"github.com/osgeo/wikiqa/internal/store"
	"github.com/osgeo/wikiqa/internal/types"
)

// WordPressSyncer pulls published pages from the WordPress REST API,
// grounded on original_source/crawler/wordpress_sync.py's WordPressSyncClient:
// list pages by modified_after, fetch each page's rendered HTML, extract the
// <main> region, upsert, enqueue {chunks, extensions}.
type WordPressSyncer struct {
	apiBaseURL string
	http       *httpClient
	store      *store.Store
	queue      *queue.Queue
}

func NewWordPressSyncer(apiBaseURL string, st *store.Store, q *queue.Queue) *WordPressSyncer {
	return &WordPressSyncer{
		apiBaseURL: strings.TrimSuffix(apiBaseURL, "/"),
		http:       newHTTPClient(60 * time.Second),
		store:      st,
		queue:      q,
	}
}

type wpPage struct {
	ID       int64  `json:"id"`
	Link     string `json:"link"`
	Modified string `json:"modified"`
	Title    struct {
		Rendered string `json:"rendered"`
	} `json:"title"`
}

// fetchPages walks the paginated /wp-json/wp/v2/pages listing. When full is
// true, modifiedAfter is ignored: full-sync mode ignores the date filter
// entirely.
func (w *WordPressSyncer) fetchPages(ctx context.Context, modifiedAfter time.Time, full bool) ([]wpPage, error) {
	var all []wpPage
	const perPage = 100

	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("per_page", strconv.Itoa(perPage))
		params.Set("page", strconv.Itoa(page))
		params.Set("_fields", "id,title,link,modified")
		params.Set("status", "publish")
		if !full {
			params.Set("modified_after", modifiedAfter.UTC().Format("2006-01-02T15:04:05"))
		}

		body, err := w.http.get(ctx, w.apiBaseURL+"/pages?"+params.Encode())
		if err != nil {
			return nil, err
		}

		var batch []wpPage
		if err := json.Unmarshal(body, &batch); err != nil {
			return nil, fmt.Errorf("ingest: decode wordpress pages: %w", err)
		}
		all = append(all, batch...)

		if len(batch) < perPage {
			break
		}
	}
	return all, nil
}

// extractMain fetches url and returns the inner HTML of its <main> element,
// using goquery for DOM-aware extraction rather than a regex.
func (w *WordPressSyncer) extractMain(ctx context.Context, pageURL string) (string, string, error) {
	body, err := w.http.get(ctx, pageURL)
	if err != nil {
		return "", "", err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return "", "", fmt.Errorf("ingest: parse wordpress html: %w", err)
	}

	main := doc.Find("main").First()
	if main.Length() == 0 {
		return "", "", fmt.Errorf("ingest: no <main> tag found in %s", pageURL)
	}

	html, err := main.Html()
	if err != nil {
		return "", "", fmt.Errorf("ingest: render main html: %w", err)
	}
	text := strings.Join(strings.Fields(main.Text()), " ")
	return html, text, nil
}

// Sync lists pages modified since the cutoff (or every published page when
// full is true), extracts their <main> content, and upserts/enqueues. max
// caps the number of pages examined (0 = no cap).
func (w *WordPressSyncer) Sync(ctx context.Context, modifiedAfter time.Time, full bool, max int, dryRun bool) (Result, error) {
	var res Result

	pages, err := w.fetchPages(ctx, modifiedAfter, full)
	if err != nil {
		return res, err
	}
	res.Fetched = len(pages)
	if max > 0 && len(pages) > max {
		pages = pages[:max]
	}

	for _, p := range pages {
		if dryRun {
			res.Updated++
			continue
		}

		html, text, err := w.extractMain(ctx, p.Link)
		if err != nil {
			res.addError("fetch %s: %v", p.Link, err)
			continue
		}

		sourceID := strconv.FormatInt(p.ID, 10)
		_, wasTracked, lookupErr := w.store.GetSourceRevID(ctx, types.SourceWordPress, sourceID)
		if lookupErr != nil {
			res.addError("lookup %s: %v", p.Link, lookupErr)
			continue
		}

		sourcePageID, pageID, changed, err := w.store.Upsert(ctx, store.UpsertInput{
			SourceType: types.SourceWordPress,
			SourceID:   sourceID,
			Title:      p.Title.Rendered,
			URL:        p.Link,
			Text:       text,
			HTML:       html,
		})
		if err != nil {
			res.addError("upsert %s: %v", p.Link, err)
			continue
		}

		if wasTracked {
			res.Updated++
		} else {
			res.Created++
		}

		if changed {
			queued := 0
			for _, t := range []types.TaskType{types.TaskChunks, types.TaskExtensions} {
				_, created, err := w.queue.Enqueue(ctx, pageID, sourcePageID, t, 0, 5)
				if err != nil {
					res.addError("enqueue %s: %v", p.Link, err)
					continue
				}
				if created {
					queued++
				}
			}
			res.TasksQueued += queued
		} else {
			res.Skipped++
		}
	}

	return res, nil
}
