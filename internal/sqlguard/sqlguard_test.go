package sqlguard_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/osgeo/wikiqa/internal/sqlguard"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		wantErr bool
	}{
		{"simple select", "SELECT id, title FROM pages LIMIT 5", false},
		{"select with trailing semicolon", "SELECT id FROM pages;", false},
		{"case insensitive select", "select id from pages", false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"line comment", "SELECT id FROM pages -- drop everything", true},
		{"block comment", "SELECT id FROM pages /* sneaky */", true},
		{"multiple statements", "SELECT id FROM pages; DROP TABLE pages", true},
		{"not a select", "UPDATE pages SET title = 'x'", true},
		{"identifier merely prefixed with a keyword is not rejected", "SELECT insert_count FROM pages", false},
		{"forbidden keyword as a standalone token", "SELECT id FROM pages WHERE id IN (SELECT id FROM drop)", true},
		{"column merely containing keyword substring", "SELECT created_at FROM pages", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sqlguard.Validate(tt.sql)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
