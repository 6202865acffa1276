package workers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/osgeo/wikiqa/internal/types"
)

func TestEntityTypeMap_CanonicalizesPluralLabels(t *testing.T) {
	assert.Equal(t, types.EntityPerson, entityTypeMap["people"])
	assert.Equal(t, types.EntityProject, entityTypeMap["projects"])
	assert.Equal(t, types.EntityOrganization, entityTypeMap["organizations"])
	assert.Equal(t, types.EntityLocation, entityTypeMap["locations"])
}

func TestEntityTypeMap_EventSynonymsAllCanonicalizeToEvent(t *testing.T) {
	for _, label := range []string{"conferences", "meetings", "sprints"} {
		assert.Equal(t, types.EntityEvent, entityTypeMap[label], "label %q should canonicalize to event", label)
	}
}

func TestExtractedEntities_ByKey(t *testing.T) {
	e := extractedEntities{
		People:   []string{"Jane Doe"},
		Projects: []string{"QGIS"},
		Sprints:  []string{"Code Sprint 2023"},
	}
	byKey := e.byKey()

	assert.Equal(t, []string{"Jane Doe"}, byKey["people"])
	assert.Equal(t, []string{"QGIS"}, byKey["projects"])
	assert.Equal(t, []string{"Code Sprint 2023"}, byKey["sprints"])
	assert.Empty(t, byKey["locations"])
}

func TestYearRE_MatchesFourDigitYearsInCommonRange(t *testing.T) {
	assert.Equal(t, "2023", yearRE.FindString("Code Sprint 2023"))
	assert.Equal(t, "1999", yearRE.FindString("FOSS4G 1999 retrospective"))
	assert.Equal(t, "", yearRE.FindString("Board Meeting"))
	assert.Equal(t, "", yearRE.FindString("room 2150"))
}
