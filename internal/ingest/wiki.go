package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/osgeo/wikiqa/internal/queue"
	"github.com/osgeo/wikiqa/internal/store"
	"github.com/osgeo/wikiqa/internal/types"
)

// WikiSyncer pulls changed pages from the MediaWiki recentchanges API and
// upserts them into the Content Store, grounded on
// original_source/crawler/wiki_sync.py's WikiSync class: fetch recentchanges
// since a cutoff, dedupe to the latest revision per pageid, skip pages whose
// stored revid is already current, then fetch parsed content for survivors.
type WikiSyncer struct {
	apiBaseURL string
	wikiBase   string
	http       *httpClient
	store      *store.Store
	queue      *queue.Queue
}

// NewWikiSyncer constructs a WikiSyncer. apiBaseURL is the MediaWiki
// api.php endpoint (e.g. https://wiki.osgeo.org/w/api.php).
func NewWikiSyncer(apiBaseURL string, st *store.Store, q *queue.Queue) *WikiSyncer {
	return &WikiSyncer{
		apiBaseURL: apiBaseURL,
		http:       newHTTPClient(30 * time.Second),
		store:      st,
		queue:      q,
	}
}

type recentChangesResponse struct {
	Query struct {
		RecentChanges []struct {
			PageID    int64  `json:"pageid"`
			Title     string `json:"title"`
			RevID     int64  `json:"revid"`
			Timestamp string `json:"timestamp"`
		} `json:"recentchanges"`
	} `json:"query"`
	Continue struct {
		RCContinue string `json:"rccontinue"`
	} `json:"continue"`
}

type pageChange struct {
	PageID int64
	Title  string
	RevID  int64
}

// fetchRecentChanges walks the paginated recentchanges feed since the given
// cutoff, namespace 0 only, edits and new pages only.
func (w *WikiSyncer) fetchRecentChanges(ctx context.Context, since time.Time) ([]pageChange, error) {
	var all []pageChange
	continueToken := ""

	for {
		params := url.Values{}
		params.Set("action", "query")
		params.Set("list", "recentchanges")
		params.Set("rcprop", "title|timestamp|ids")
		params.Set("rclimit", "50")
		params.Set("rctype", "edit|new")
		params.Set("rcnamespace", "0")
		params.Set("format", "json")
		params.Set("rcend", since.UTC().Format("2006-01-02T15:04:05Z"))
		if continueToken != "" {
			params.Set("rccontinue", continueToken)
		}

		body, err := w.http.get(ctx, w.apiBaseURL+"?"+params.Encode())
		if err != nil {
			return nil, err
		}

		var resp recentChangesResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("ingest: decode recentchanges: %w", err)
		}

		for _, rc := range resp.Query.RecentChanges {
			all = append(all, pageChange{PageID: rc.PageID, Title: rc.Title, RevID: rc.RevID})
		}

		if resp.Continue.RCContinue == "" {
			break
		}
		continueToken = resp.Continue.RCContinue
	}
	return all, nil
}

// dedupeLatest keeps only the highest revid per pageid.
func dedupeLatest(changes []pageChange) map[int64]pageChange {
	latest := make(map[int64]pageChange)
	for _, c := range changes {
		if existing, ok := latest[c.PageID]; !ok || c.RevID > existing.RevID {
			latest[c.PageID] = c
		}
	}
	return latest
}

// sortedChanges gives dedupeLatest's map a deterministic order so --max
// truncation is reproducible across runs.
func sortedChanges(latest map[int64]pageChange) []pageChange {
	out := make([]pageChange, 0, len(latest))
	for _, c := range latest {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageID < out[j].PageID })
	return out
}

type parseResponse struct {
	Parse struct {
		Title string `json:"title"`
		RevID int64  `json:"revid"`
		Text  struct {
			Star string `json:"*"`
		} `json:"text"`
		Categories []struct {
			Star string `json:"*"`
		} `json:"categories"`
	} `json:"parse"`
}

func (w *WikiSyncer) fetchPageContent(ctx context.Context, title string) (html string, categories []string, revID int64, err error) {
	params := url.Values{}
	params.Set("action", "parse")
	params.Set("page", title)
	params.Set("prop", "text|categories|revid")
	params.Set("format", "json")

	body, err := w.http.get(ctx, w.apiBaseURL+"?"+params.Encode())
	if err != nil {
		return "", nil, 0, err
	}

	var resp parseResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", nil, 0, fmt.Errorf("ingest: decode parse: %w", err)
	}
	for _, c := range resp.Parse.Categories {
		categories = append(categories, c.Star)
	}
	return resp.Parse.Text.Star, categories, resp.Parse.RevID, nil
}

var tagRE = regexp.MustCompile(`(?s)<[^>]+>`)

// htmlToText is a minimal tag stripper; full HTML-to-text parsing is
// intentionally out of scope here. This is only enough to produce
// searchable plain text for chunking.
func htmlToText(html string) string {
	text := tagRE.ReplaceAllString(html, " ")
	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, "&amp;", "&")
	fields := strings.Fields(text)
	return strings.Join(fields, " ")
}

// Sync runs an incremental sync for changes since the given cutoff. Each
// survivor is fetched, upserted and, if changed, has {chunks, extensions}
// tasks enqueued. Errors on individual pages are accumulated rather than
// aborting the run. max caps the number of changed pages examined (0 = no
// cap).
func (w *WikiSyncer) Sync(ctx context.Context, since time.Time, max int, dryRun bool) (Result, error) {
	var res Result

	changes, err := w.fetchRecentChanges(ctx, since)
	if err != nil {
		return res, err
	}
	res.Fetched = len(changes)
	if len(changes) == 0 {
		return res, nil
	}

	ordered := sortedChanges(dedupeLatest(changes))
	if max > 0 && len(ordered) > max {
		ordered = ordered[:max]
	}

	for _, change := range ordered {
		sourceID := strconv.FormatInt(change.PageID, 10)
		storedRevID, isTracked, err := w.store.GetSourceRevID(ctx, types.SourceWiki, sourceID)
		if err != nil {
			res.addError("lookup %s: %v", change.Title, err)
			continue
		}
		if isTracked && storedRevID >= change.RevID {
			res.Skipped++
			continue
		}

		if dryRun {
			res.Updated++
			continue
		}

		html, categories, revID, err := w.fetchPageContent(ctx, change.Title)
		if err != nil {
			res.addError("fetch %s: %v", change.Title, err)
			continue
		}

		text := htmlToText(html)
		wikiURL := w.wikiPageURL(change.Title)

		sourcePageID, pageID, changed, err := w.store.Upsert(ctx, store.UpsertInput{
			SourceType: types.SourceWiki,
			SourceID:   sourceID,
			Title:      change.Title,
			URL:        wikiURL,
			Text:       text,
			HTML:       html,
			LastRevID:  &revID,
			Categories: categories,
		})
		if err != nil {
			res.addError("upsert %s: %v", change.Title, err)
			continue
		}

		if isTracked {
			res.Updated++
		} else {
			res.Created++
		}

		if changed {
			queued, err := w.enqueueDerivations(ctx, pageID, sourcePageID)
			if err != nil {
				res.addError("enqueue %s: %v", change.Title, err)
				continue
			}
			res.TasksQueued += queued
		}
	}

	return res, nil
}

func (w *WikiSyncer) enqueueDerivations(ctx context.Context, pageID, sourcePageID int64) (int, error) {
	queued := 0
	for _, t := range []types.TaskType{types.TaskChunks, types.TaskExtensions} {
		_, created, err := w.queue.Enqueue(ctx, pageID, sourcePageID, t, 0, 5)
		if err != nil {
			return queued, err
		}
		if created {
			queued++
		}
	}
	return queued, nil
}

func (w *WikiSyncer) wikiPageURL(title string) string {
	return w.wikiBaseURL() + url.PathEscape(strings.ReplaceAll(title, " ", "_"))
}

func (w *WikiSyncer) wikiBaseURL() string {
	if w.wikiBase != "" {
		return w.wikiBase
	}
	return strings.TrimSuffix(w.apiBaseURL, "api.php") + "/"
}
