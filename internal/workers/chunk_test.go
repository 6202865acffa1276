package workers_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/osgeo/wikiqa/internal/workers"
)

func TestSplitChunks_EmptyContent(t *testing.T) {
	assert.Nil(t, workers.SplitChunks("", 500))
	assert.Nil(t, workers.SplitChunks("   \n\n  ", 500))
}

func TestSplitChunks_SingleParagraphExactlyChunkSize(t *testing.T) {
	content := strings.Repeat("a", 500)
	chunks := workers.SplitChunks(content, 500)
	assert.Equal(t, []string{content}, chunks)
}

func TestSplitChunks_GreedilyPacksShortParagraphs(t *testing.T) {
	content := "QGIS is a GIS.\n\nIt is free software."
	chunks := workers.SplitChunks(content, 500)
	assert.Equal(t, []string{"QGIS is a GIS.\n\nIt is free software."}, chunks)
}

func TestSplitChunks_SplitsOnParagraphOverflow(t *testing.T) {
	a := strings.Repeat("a", 40)
	b := strings.Repeat("b", 40)
	chunks := workers.SplitChunks(a+"\n\n"+b, 50)
	assert.Equal(t, []string{a, b}, chunks)
}

func TestSplitChunks_OversizedParagraphSplitsOnSentences(t *testing.T) {
	sentence := strings.Repeat("x", 30) + "."
	content := sentence + " " + sentence + " " + sentence
	chunks := workers.SplitChunks(content, 40)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 40)
	}
	// No content is lost across the rejoin.
	joined := strings.Join(chunks, " ")
	assert.Equal(t, 3, strings.Count(joined, "."))
}

func TestSplitChunks_OversizedSentenceSplitsOnWhitespace(t *testing.T) {
	content := "word " + strings.Repeat("w", 100) + " word two three four five"
	chunks := workers.SplitChunks(content, 20)
	for _, c := range chunks {
		// Every chunk is within budget except a single whitespace-free token
		// longer than chunkSize.
		if strings.ContainsAny(c, " \t\n") {
			assert.LessOrEqual(t, len(c), 20)
		}
	}
}

func TestSplitChunks_NoSentenceTerminatorsFallsBackToWhitespace(t *testing.T) {
	words := make([]string, 10)
	for i := range words {
		words[i] = strings.Repeat("w", 8)
	}
	content := strings.Join(words, " ")
	chunks := workers.SplitChunks(content, 20)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 20)
	}
	assert.Equal(t, strings.Join(words, " "), strings.Join(chunks, " "))
}
