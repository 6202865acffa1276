package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/osgeo/wikiqa/internal/queue"
	"github.com/osgeo/wikiqa/internal/store"
	"github.com/osgeo/wikiqa/internal/types"
)

// PlanetSyncer ingests a Planet-style RSS aggregator feed, grounded on
// original_source/crawler/planet_sync.py's PlanetSyncClient: fetch the feed,
// parse each <item>, filter by an age window and a minimum content length,
// upsert, enqueue {chunks, extensions}, and optionally prune stale entries.
type PlanetSyncer struct {
	feedURL string
	http    *httpClient
	store   *store.Store
	queue   *queue.Queue
}

func NewPlanetSyncer(feedURL string, st *store.Store, q *queue.Queue) *PlanetSyncer {
	return &PlanetSyncer{
		feedURL: feedURL,
		http:    newHTTPClient(30 * time.Second),
		store:   st,
		queue:   q,
	}
}

// minContentLength mirrors the original syncer's "skip if no content or
// len(content.strip()) < 50" filter.
const minContentLength = 50

// Sync fetches the feed and upserts every entry whose published date falls
// within maxAge of now and whose description is non-trivial. max caps the
// number of surviving entries processed (0 = no cap).
func (p *PlanetSyncer) Sync(ctx context.Context, maxAge time.Duration, max int, dryRun bool) (Result, error) {
	var res Result

	body, err := p.http.get(ctx, p.feedURL)
	if err != nil {
		return res, err
	}

	fp := gofeed.NewParser()
	feed, err := fp.Parse(strings.NewReader(string(body)))
	if err != nil {
		return res, err
	}

	res.Fetched = len(feed.Items)
	cutoff := time.Now().Add(-maxAge)
	processed := 0

	for _, item := range feed.Items {
		content := strings.TrimSpace(item.Description)
		if len(content) < minContentLength {
			res.Skipped++
			continue
		}
		if item.PublishedParsed != nil && item.PublishedParsed.Before(cutoff) {
			res.Skipped++
			continue
		}
		if max > 0 && processed >= max {
			break
		}
		processed++

		guid := item.GUID
		if guid == "" {
			guid = item.Link
		}

		if dryRun {
			res.Updated++
			continue
		}

		_, wasTracked, lookupErr := p.store.GetSourceRevID(ctx, types.SourcePlanetPost, guid)
		if lookupErr != nil {
			res.addError("lookup %s: %v", item.Title, lookupErr)
			continue
		}

		sourcePageID, pageID, changed, err := p.store.Upsert(ctx, store.UpsertInput{
			SourceType: types.SourcePlanetPost,
			SourceID:   guid,
			Title:      item.Title,
			URL:        item.Link,
			Text:       content,
			HTML:       item.Description,
		})
		if err != nil {
			res.addError("upsert %s: %v", item.Title, err)
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
				_, created, err := p.queue.Enqueue(ctx, pageID, sourcePageID, t, 0, 5)
				if err != nil {
					res.addError("enqueue %s: %v", item.Title, err)
					continue
				}
				if created {
					queued++
				}
			}
			res.TasksQueued += queued
		}
	}

	return res, nil
}

// Prune deletes planet_post source_pages not synced within retentionDays,
// exposed so the planet CLI entry point can run it after a sync pass.
func (p *PlanetSyncer) Prune(ctx context.Context, retentionDays int) (int, error) {
	return p.store.PruneOld(ctx, types.SourcePlanetPost, retentionDays)
}
