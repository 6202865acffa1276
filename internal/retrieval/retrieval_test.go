package retrieval_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osgeo/wikiqa/internal/retrieval"
	"github.com/osgeo/wikiqa/internal/store/storetest"
)

func TestFullText_RanksExactTitleMatchAbove(t *testing.T) {
	ctx := context.Background()
	pool := storetest.NewPool(t)

	_, err := pool.Exec(ctx, `INSERT INTO pages (title, url) VALUES ('QGIS', 'https://wiki.osgeo.org/wiki/QGIS'), ('GRASS GIS', 'https://wiki.osgeo.org/wiki/GRASS')`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
		INSERT INTO page_chunks (page_id, chunk_index, chunk_text)
		SELECT id, 0, 'QGIS is a free and open source geographic information system.' FROM pages WHERE title = 'QGIS'`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
		INSERT INTO page_chunks (page_id, chunk_index, chunk_text)
		SELECT id, 0, 'GRASS GIS is also a geographic information system, often compared to QGIS.' FROM pages WHERE title = 'GRASS GIS'`)
	require.NoError(t, err)

	eng := retrieval.New(pool)
	hits, err := eng.FullText(ctx, "QGIS", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "QGIS", hits[0].Title, "the exact title match should outrank the incidental mention")
}

func TestFullText_NoMatchReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	pool := storetest.NewPool(t)
	eng := retrieval.New(pool)

	hits, err := eng.FullText(ctx, "nonexistent term entirely", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSemantic_MatchesResumeOrKeywords(t *testing.T) {
	ctx := context.Background()
	pool := storetest.NewPool(t)

	_, err := pool.Exec(ctx, `INSERT INTO pages (title, url) VALUES ('PostGIS', 'https://wiki.osgeo.org/wiki/PostGIS')`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
		INSERT INTO page_extensions (url, page_title, resume, keywords, content_hash, model_used)
		VALUES ('https://wiki.osgeo.org/wiki/PostGIS', 'PostGIS', '* adds spatial types to Postgres', 'spatial, postgres, extension', 'hash1', 'test-model')`)
	require.NoError(t, err)

	eng := retrieval.New(pool)
	hits, err := eng.Semantic(ctx, "spatial postgres", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "PostGIS", hits[0].Title)
}

func TestGraph_MatchesEitherEntityNameCaseInsensitively(t *testing.T) {
	ctx := context.Background()
	pool := storetest.NewPool(t)

	_, err := pool.Exec(ctx, `INSERT INTO pages (title, url) VALUES ('QGIS', 'https://wiki.osgeo.org/wiki/QGIS')`)
	require.NoError(t, err)
	var subjID, objID, pageID int64
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO entities (entity_type, entity_name) VALUES ('project', 'QGIS') RETURNING id`).Scan(&subjID))
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO entities (entity_type, entity_name) VALUES ('organization', 'OSGeo') RETURNING id`).Scan(&objID))
	require.NoError(t, pool.QueryRow(ctx, `SELECT id FROM pages WHERE title = 'QGIS'`).Scan(&pageID))
	_, err = pool.Exec(ctx, `
		INSERT INTO entity_relationships (subject_id, predicate, object_id, source_page_id, confidence)
		VALUES ($1, 'is_project_of', $2, $3, 0.9)`, subjID, objID, pageID)
	require.NoError(t, err)

	eng := retrieval.New(pool)
	hits, err := eng.Graph(ctx, "qgis", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "QGIS", hits[0].Subject)
	assert.Equal(t, "OSGeo", hits[0].Object)
}

func TestExecuteGenerated_ReturnsColumnNameToValueMaps(t *testing.T) {
	ctx := context.Background()
	pool := storetest.NewPool(t)

	_, err := pool.Exec(ctx, `INSERT INTO pages (title, url) VALUES ('QGIS', 'https://wiki.osgeo.org/wiki/QGIS')`)
	require.NoError(t, err)

	eng := retrieval.New(pool)
	rows, err := eng.ExecuteGenerated(ctx, `SELECT title, url FROM pages WHERE title = 'QGIS'`)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "QGIS", rows[0]["title"])
	assert.Equal(t, "https://wiki.osgeo.org/wiki/QGIS", rows[0]["url"])
}
