package workers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPlaceholderValue(t *testing.T) {
	assert.True(t, isPlaceholderValue(""))
	assert.True(t, isPlaceholderValue("Loading map..."))
	assert.True(t, isPlaceholderValue("OSGeo Member"))
	assert.True(t, isPlaceholderValue("[[Category:Members]]"))
	assert.True(t, isPlaceholderValue("{{{city}}}"))
	assert.False(t, isPlaceholderValue("Buenos Aires"))
}

func TestParseUserPageFields(t *testing.T) {
	chunk := "Name:\nJane Doe\n\nCity:\nBuenos Aires\n\nCountry:\nLoading map...\n\nCompany:\nGeoCorp"

	fields := parseUserPageFields(chunk)

	assert.Equal(t, "Jane Doe", fields["name"])
	assert.Equal(t, "Buenos Aires", fields["city"])
	assert.Equal(t, "GeoCorp", fields["company"])
	_, hasCountry := fields["country"]
	assert.False(t, hasCountry, "a placeholder value should not populate the field")
}

func TestParseUserPageFields_IgnoresConsecutiveLabels(t *testing.T) {
	chunk := "Name:\nCity:\nBuenos Aires"

	fields := parseUserPageFields(chunk)

	_, hasName := fields["name"]
	assert.False(t, hasName, "a label immediately followed by another label has no value")
	assert.Equal(t, "Buenos Aires", fields["city"])
}
