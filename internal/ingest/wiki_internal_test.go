package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeLatest_KeepsHighestRevID(t *testing.T) {
	changes := []pageChange{
		{PageID: 1, Title: "QGIS", RevID: 10},
		{PageID: 1, Title: "QGIS", RevID: 12},
		{PageID: 2, Title: "GRASS", RevID: 5},
		{PageID: 1, Title: "QGIS", RevID: 11},
	}

	latest := dedupeLatest(changes)

	assert.Len(t, latest, 2)
	assert.Equal(t, int64(12), latest[1].RevID)
	assert.Equal(t, int64(5), latest[2].RevID)
}

func TestSortedChanges_OrdersByPageID(t *testing.T) {
	latest := map[int64]pageChange{
		30: {PageID: 30, Title: "c"},
		10: {PageID: 10, Title: "a"},
		20: {PageID: 20, Title: "b"},
	}

	ordered := sortedChanges(latest)

	assert.Equal(t, []int64{10, 20, 30}, []int64{ordered[0].PageID, ordered[1].PageID, ordered[2].PageID})
}

func TestHtmlToText_StripsTagsAndCollapsesWhitespace(t *testing.T) {
	html := "<p>QGIS  is a\n<b>GIS</b>.</p>\n<div>Free &amp; open.</div>"

	text := htmlToText(html)

	assert.Equal(t, "QGIS is a GIS . Free & open.", text)
}

func TestHtmlToText_DecodesNbsp(t *testing.T) {
	html := "OSGeo&nbsp;Foundation"

	assert.Equal(t, "OSGeo Foundation", htmlToText(html))
}

func TestHtmlToText_EmptyAfterStripping(t *testing.T) {
	assert.Equal(t, "", htmlToText("<div></div>"))
}
