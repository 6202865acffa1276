package llmclient_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osgeo/wikiqa/internal/llmclient"
)

func TestRepairedJSON_StrictParse(t *testing.T) {
	var v struct {
		Action string `json:"action"`
	}
	repaired, err := llmclient.RepairedJSON(`{"action": "done"}`, &v, nil)
	require.NoError(t, err)
	assert.False(t, repaired)
	assert.Equal(t, "done", v.Action)
}

func TestRepairedJSON_StripsCodeFences(t *testing.T) {
	var v struct {
		Action string `json:"action"`
	}
	raw := "```json\n{\"action\": \"search_semantic\"}\n```"
	repaired, err := llmclient.RepairedJSON(raw, &v, nil)
	require.NoError(t, err)
	assert.True(t, repaired)
	assert.Equal(t, "search_semantic", v.Action)
}

func TestRepairedJSON_ClosesTrailingString(t *testing.T) {
	var v struct {
		Reasoning string `json:"reasoning"`
	}
	raw := `{"reasoning": "the query mentions QGIS and we haven't tried semantic yet`
	repaired, err := llmclient.RepairedJSON(raw, &v, nil)
	require.NoError(t, err)
	assert.True(t, repaired)
	assert.Contains(t, v.Reasoning, "QGIS")
}

func TestRepairedJSON_RecoversKnownArrayKeys(t *testing.T) {
	var v struct {
		People   []string `json:"people"`
		Projects []string `json:"projects"`
	}
	raw := `Sure, here you go: {"people": ["Alice", "Bob"], "projects": ["QGIS"]} -- hope that helps!`
	repaired, err := llmclient.RepairedJSON(raw, &v, []string{"people", "projects"})
	require.NoError(t, err)
	assert.True(t, repaired)
	assert.Equal(t, []string{"Alice", "Bob"}, v.People)
	assert.Equal(t, []string{"QGIS"}, v.Projects)
}

func TestRepairedJSON_RecoversKnownScalarKeys(t *testing.T) {
	var v struct {
		CanAnswer bool   `json:"can_answer"`
		Reasoning string `json:"reasoning"`
	}
	raw := `well I think {"can_answer": true, "reasoning": "enough detail was found"} is right`
	repaired, err := llmclient.RepairedJSON(raw, &v, []string{"can_answer", "reasoning"})
	require.NoError(t, err)
	assert.True(t, repaired)
	assert.True(t, v.CanAnswer)
	assert.Equal(t, "enough detail was found", v.Reasoning)
}

func TestRepairedJSON_GivesUp(t *testing.T) {
	var v struct {
		Action string `json:"action"`
	}
	_, err := llmclient.RepairedJSON("not json at all and no recoverable keys", &v, []string{"action"})
	assert.Error(t, err)
}
