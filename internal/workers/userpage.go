package workers

import (
	"context"
	"strings"

	"github.com/osgeo/wikiqa/internal/types"
)

// userPageFieldMap is the whitelist of template field names mapped to
// (entity_type, predicate) pairs, grounded on
// original_source/db/populate_user_entities.py's ENTITY_FIELDS.
var userPageFieldMap = map[string]struct {
	entityType types.EntityType
	predicate  string
}{
	"name":          {types.EntityPerson, "is_alias_of"},
	"city":          {types.EntityLocation, "lives_in_city"},
	"state":         {types.EntityLocation, "lives_in_state"},
	"country":       {types.EntityLocation, "lives_in_country"},
	"company":       {types.EntityOrganization, "works_for"},
	"local_chapter": {types.EntityOrganization, "member_of"},
}

// placeholderSentinels are known template values that indicate the field
// was never filled in, per original_source's is_placeholder.
var placeholderSentinels = map[string]bool{
	"Loading map...": true,
	"OSGeo Member":   true,
}

func isPlaceholderValue(value string) bool {
	if value == "" {
		return true
	}
	if strings.HasPrefix(value, "[[") || strings.HasPrefix(value, "{{{") {
		return true
	}
	return placeholderSentinels[value]
}

// parseUserPageFields extracts "Field:\nvalue" pairs from a User: page's
// first chunk, the way original_source/db/populate_user_entities.py's
// parse_user_page does: a line ending in ':' names a field, and the next
// non-placeholder, non-label line (if any) is its value.
func parseUserPageFields(chunkText string) map[string]string {
	fields := make(map[string]string)
	lines := strings.Split(chunkText, "\n")

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if !strings.HasSuffix(line, ":") {
			continue
		}
		fieldName := strings.ToLower(strings.TrimSuffix(line, ":"))
		fieldName = strings.NewReplacer(" ", "_", "(", "", ")", "").Replace(fieldName)

		if i+1 >= len(lines) {
			continue
		}
		next := strings.TrimSpace(lines[i+1])
		if next == "" || strings.HasSuffix(next, ":") || isPlaceholderValue(next) {
			continue
		}
		fields[fieldName] = next
	}
	return fields
}

// processUserPage parses the first chunk of a User: page and upserts the
// username entity plus any whitelisted field entities and relationships,
// without any LLM call.
func (w *EntityWorker) processUserPage(ctx context.Context, pageID int64, title, contentText string) error {
	username := strings.TrimPrefix(title, "User:")
	if username == "" {
		return nil
	}

	// 500 is the chunk worker's default chunk size.
	firstChunk := contentText
	if chunks := SplitChunks(contentText, 500); len(chunks) > 0 {
		firstChunk = chunks[0]
	}
	fields := parseUserPageFields(firstChunk)

	usernameID, err := w.upsertEntity(ctx, types.EntityPerson, username)
	if err != nil {
		return err
	}

	for fieldName, value := range fields {
		mapping, ok := userPageFieldMap[fieldName]
		if !ok {
			continue
		}
		entityID, err := w.upsertEntity(ctx, mapping.entityType, value)
		if err != nil {
			return err
		}
		if err := w.upsertRelationship(ctx, usernameID, mapping.predicate, entityID, pageID, 1.0); err != nil {
			return err
		}
	}

	return nil
}
