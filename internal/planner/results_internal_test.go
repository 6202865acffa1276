package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatResults_NoResults(t *testing.T) {
	assert.Equal(t, "No results", formatResults(nil, ActionSearchFullText))
}

func TestFormatResults_FullText(t *testing.T) {
	rows := []map[string]any{
		{"title": "QGIS", "chunk_text": "QGIS is a GIS."},
	}
	out := formatResults(rows, ActionSearchFullText)
	assert.Equal(t, "1. QGIS: QGIS is a GIS.", out)
}

func TestFormatResults_Semantic(t *testing.T) {
	rows := []map[string]any{
		{"page_title": "QGIS", "resume": "* free and open source GIS"},
	}
	out := formatResults(rows, ActionSearchSemantic)
	assert.Equal(t, "1. QGIS: * free and open source GIS", out)
}

func TestFormatResults_Graph(t *testing.T) {
	rows := []map[string]any{
		{"subject": "QGIS", "predicate": "is_project_of", "object": "OSGeo", "source_page_url": "https://wiki.osgeo.org/wiki/QGIS"},
	}
	out := formatResults(rows, ActionSearchGraph)
	assert.Equal(t, "1. QGIS is_project_of OSGeo (source: https://wiki.osgeo.org/wiki/QGIS)", out)
}

func TestFormatResults_CapsAtFive(t *testing.T) {
	var rows []map[string]any
	for i := 0; i < 8; i++ {
		rows = append(rows, map[string]any{"title": "p", "chunk_text": "c"})
	}
	out := formatResults(rows, ActionSearchFullText)
	assert.Equal(t, 5, countLines(out))
}

func countLines(s string) int {
	n := 1
	for _, r := range s {
		if r == '\n' {
			n++
		}
	}
	return n
}

func TestDedupeByURL(t *testing.T) {
	rows := []map[string]any{
		{"url": "https://a", "title": "A1"},
		{"url": "https://a", "title": "A2"},
		{"url": "https://b", "title": "B"},
	}
	out := dedupeByURL(rows)
	assert.Len(t, out, 2)
	assert.Equal(t, "A1", out[0]["title"])
	assert.Equal(t, "B", out[1]["title"])
}

func TestTopN(t *testing.T) {
	rows := []map[string]any{{"a": 1}, {"a": 2}, {"a": 3}}
	assert.Len(t, topN(rows, 2), 2)
	assert.Len(t, topN(rows, 10), 3)
}

func TestExtractSources_PrefersMostRecentSuccessfulAttempt(t *testing.T) {
	history := []searchAttempt{
		{Action: ActionSearchFullText, ResultCount: 0},
		{
			Action:      ActionSearchSemantic,
			ResultCount: 1,
			Results: []map[string]any{
				{"url": "https://wiki.osgeo.org/wiki/QGIS", "title": "QGIS"},
			},
		},
	}
	sources := extractSources(history, false)
	assert.Len(t, sources, 1)
	assert.Equal(t, "QGIS", sources[0].Title)
	assert.Equal(t, "https://wiki.osgeo.org/wiki/QGIS", sources[0].URL)
}

func TestExtractSources_SuppressesGraphByDefault(t *testing.T) {
	history := []searchAttempt{
		{
			Action:      ActionSearchGraph,
			ResultCount: 1,
			Results: []map[string]any{
				{"source_page_url": "https://wiki.osgeo.org/wiki/QGIS", "source_page_title": "QGIS"},
			},
		},
	}
	assert.Nil(t, extractSources(history, false))
	sources := extractSources(history, true)
	assert.Len(t, sources, 1)
}

func TestExtractSources_DedupesAndCapsAtThree(t *testing.T) {
	var results []map[string]any
	for i := 0; i < 5; i++ {
		results = append(results, map[string]any{"url": "https://a", "title": "dup"})
	}
	results = append(results, map[string]any{"url": "https://b", "title": "B"}, map[string]any{"url": "https://c", "title": "C"})
	history := []searchAttempt{{Action: ActionSearchFullText, ResultCount: len(results), Results: results}}
	sources := extractSources(history, false)
	assert.Len(t, sources, 3)
}
