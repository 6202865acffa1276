package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlockedActions_ExcludesDoneAndKeepsOrder(t *testing.T) {
	history := []searchAttempt{
		{Action: ActionSearchFullText},
		{Action: ActionSearchSemantic},
		{Action: ActionDone},
	}
	assert.Equal(t, []Action{ActionSearchFullText, ActionSearchSemantic}, blockedActions(history))
}

func TestBlockedActions_EmptyHistory(t *testing.T) {
	assert.Nil(t, blockedActions(nil))
}

func TestAvailableActions_RemovesBlocked(t *testing.T) {
	available := availableActions([]Action{ActionSearchFullText})
	assert.Equal(t, []Action{ActionSearchSemantic, ActionSearchGraph, ActionDone}, available)
}

func TestAvailableActions_AllBlockedLeavesNone(t *testing.T) {
	available := availableActions([]Action{ActionSearchSemantic, ActionSearchGraph, ActionSearchFullText, ActionDone})
	assert.Nil(t, available)
}

func TestLastFormatted_NoHistory(t *testing.T) {
	assert.Equal(t, "None yet", lastFormatted(nil))
}

func TestLastFormatted_EmptyResultsOnLastAttempt(t *testing.T) {
	history := []searchAttempt{{Action: ActionSearchFullText, FormattedResults: ""}}
	assert.Equal(t, "None yet", lastFormatted(history))
}

func TestLastFormatted_StripsActionPrefix(t *testing.T) {
	history := []searchAttempt{{Action: ActionSearchSemantic, FormattedResults: "1. QGIS: a GIS"}}
	assert.Equal(t, "semantic:\n1. QGIS: a GIS", lastFormatted(history))
}

func TestRephraseMessage_SpanishVariants(t *testing.T) {
	assert.Contains(t, rephraseMessage("Spanish"), "reformular")
	assert.Contains(t, rephraseMessage("español"), "reformular")
}

func TestRephraseMessage_DefaultsToEnglish(t *testing.T) {
	assert.Contains(t, rephraseMessage("English"), "rephrase")
	assert.Contains(t, rephraseMessage(""), "rephrase")
}
