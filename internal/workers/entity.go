package workers

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/osgeo/wikiqa/internal/apperr"
	"github.com/osgeo/wikiqa/internal/llmclient"
	"github.com/osgeo/wikiqa/internal/store"
	"github.com/osgeo/wikiqa/internal/types"
)

// maxEntityContentLength bounds the content sent to the relationship prompt,
// mirroring original_source/db/process_entities.py's MAX_CONTENT_LENGTH use
// in extract_relationships.
const maxEntityContentLength = 20000

// maxRelationshipsPerPage caps relationship extraction per page.
const maxRelationshipsPerPage = 50

// entityTypeMap canonicalizes the LLM's plural category labels to the
// closed entity_type set, per original_source/db/process_entities.py's
// ENTITY_TYPE_MAP; conferences/meetings/sprints all canonicalize to event.
var entityTypeMap = map[string]types.EntityType{
	"people":        types.EntityPerson,
	"projects":      types.EntityProject,
	"organizations": types.EntityOrganization,
	"conferences":   types.EntityEvent,
	"meetings":      types.EntityEvent,
	"sprints":       types.EntityEvent,
	"locations":     types.EntityLocation,
}

var entityExtractKeys = []string{"people", "projects", "organizations", "conferences", "meetings", "sprints", "locations"}

type extractedEntities struct {
	People        []string `json:"people"`
	Projects      []string `json:"projects"`
	Organizations []string `json:"organizations"`
	Conferences   []string `json:"conferences"`
	Meetings      []string `json:"meetings"`
	Sprints       []string `json:"sprints"`
	Locations     []string `json:"locations"`
}

func (e extractedEntities) byKey() map[string][]string {
	return map[string][]string{
		"people":        e.People,
		"projects":      e.Projects,
		"organizations": e.Organizations,
		"conferences":   e.Conferences,
		"meetings":      e.Meetings,
		"sprints":       e.Sprints,
		"locations":     e.Locations,
	}
}

var yearRE = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// EntityWorker drains "entities" tasks via the unstructured LLM path and
// additionally runs the structured User: page template extraction, both
// writing into the shared entities/entity_relationships tables.
type EntityWorker struct {
	pool  *pgxpool.Pool
	store *store.Store
	llm   *llmclient.Client
}

func NewEntityWorker(pool *pgxpool.Pool, st *store.Store, llm *llmclient.Client) *EntityWorker {
	return &EntityWorker{pool: pool, store: st, llm: llm}
}

// Process runs a single "entities" task for pageID/sourcePageID. Every page
// goes through the LLM unstructured path; pages titled "User:..." additionally
// get the structured template-field extraction layered on top, the same
// additive relationship between the queue-driven extractor and the
// standalone user-page populator that original_source/db/process_entities.py
// and original_source/db/populate_user_entities.py have to each other.
func (w *EntityWorker) Process(ctx context.Context, pageID, sourcePageID int64) error {
	in, err := w.store.GetForDerivationByPageID(ctx, pageID)
	if err != nil {
		return err
	}

	if err := w.processUnstructured(ctx, pageID, in.Title, in.ContentText); err != nil {
		return err
	}

	if strings.HasPrefix(in.Title, "User:") {
		return w.processUserPage(ctx, pageID, in.Title, in.ContentText)
	}
	return nil
}

func (w *EntityWorker) processUnstructured(ctx context.Context, pageID int64, title, content string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	entities, err := w.extractEntities(ctx, title, content)
	if err != nil {
		return apperr.New(apperr.KindTransient, "entityworker.extractEntities", err)
	}

	idByName := make(map[string]int64)
	var allNames []string

	for label, names := range entities.byKey() {
		canonical := entityTypeMap[label]
		for _, name := range names {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			id, err := w.upsertEntity(ctx, canonical, name)
			if err != nil {
				return err
			}
			idByName[name] = id
			allNames = append(allNames, name)

			if canonical == types.EntityEvent {
				if year := yearRE.FindString(name); year != "" {
					yearID, err := w.upsertEntity(ctx, types.EntityYear, year)
					if err != nil {
						return err
					}
					if err := w.upsertRelationship(ctx, id, "happened_in", yearID, pageID, 0.8); err != nil {
						return err
					}
				}
			}
		}
	}

	if len(allNames) < 2 {
		return nil
	}

	relationships, err := w.extractRelationships(ctx, title, content, allNames)
	if err != nil {
		return apperr.New(apperr.KindTransient, "entityworker.extractRelationships", err)
	}

	count := 0
	for _, rel := range relationships {
		if count >= maxRelationshipsPerPage {
			break
		}
		subjID, subjOK := idByName[rel.Subject]
		objID, objOK := idByName[rel.Object]
		if !subjOK || !objOK {
			continue
		}
		if err := w.upsertRelationship(ctx, subjID, rel.Predicate, objID, pageID, 0.8); err != nil {
			return err
		}
		count++
	}

	return nil
}

func (w *EntityWorker) extractEntities(ctx context.Context, title, content string) (extractedEntities, error) {
	truncated := content
	if len(truncated) > maxEntityContentLength {
		truncated = truncated[:maxEntityContentLength] + truncationMarker
	}

	prompt := fmt.Sprintf(`From the wiki page "%s", extract named entities mentioned in the text below.

Return ONLY a JSON object with these keys (each an array of strings, empty if none found):
{
  "people": ["First Last"],
  "projects": ["ProjectName"],
  "organizations": ["Org Name"],
  "conferences": ["FOSS4G 2022"],
  "meetings": ["Board Meeting March 2023"],
  "sprints": ["Code Sprint 2023"],
  "locations": ["City, Country"]
}

Text:
%s

JSON:`, title, truncated)

	res, err := w.llm.Complete(ctx, prompt, 1024)
	if err != nil {
		return extractedEntities{}, err
	}

	var parsed extractedEntities
	if _, err := llmclient.RepairedJSON(res.Text, &parsed, entityExtractKeys); err != nil {
		// Malformed JSON logs a warning and yields no entities; this is not
		// a worker failure.
		slog.Warn("entity extraction returned unparseable JSON", "title", title, "error", err)
		return extractedEntities{}, nil
	}
	return parsed, nil
}

type rawRelationship struct {
	Subject   string
	Predicate string
	Object    string
}

func (w *EntityWorker) extractRelationships(ctx context.Context, title, content string, entityNames []string) ([]rawRelationship, error) {
	capped := entityNames
	if len(capped) > 30 {
		capped = capped[:30]
	}
	truncated := content
	if len(truncated) > maxEntityContentLength {
		truncated = truncated[:maxEntityContentLength]
	}

	prompt := fmt.Sprintf(`From "%s", extract relationships between these entities:

Entities: %s

Format each relationship as:
Subject | predicate | Object

Common predicates:
- is_member_of, works_for
- is_project_of, founded_by
- located_in, happened_in
- contributed_to, created
- organized_by, hosted_by

Return ONLY relationships found in text. One per line.
If none found, return: NONE

Text:
%s

RELATIONSHIPS:`, title, strings.Join(capped, ", "), truncated)

	res, err := w.llm.Complete(ctx, prompt, 1024)
	if err != nil {
		return nil, err
	}

	if strings.Contains(strings.ToUpper(res.Text), "NONE") {
		return nil, nil
	}

	var rels []rawRelationship
	for _, line := range strings.Split(strings.TrimSpace(res.Text), "\n") {
		line = strings.TrimSpace(line)
		if !strings.Contains(line, "|") {
			continue
		}
		parts := strings.Split(line, "|")
		if len(parts) < 3 {
			continue
		}
		rels = append(rels, rawRelationship{
			Subject:   strings.TrimSpace(parts[0]),
			Predicate: strings.ToLower(strings.ReplaceAll(strings.TrimSpace(parts[1]), " ", "_")),
			Object:    strings.TrimSpace(parts[2]),
		})
	}
	return rels, nil
}

func (w *EntityWorker) upsertEntity(ctx context.Context, entityType types.EntityType, name string) (int64, error) {
	var id int64
	err := w.pool.QueryRow(ctx, `
		INSERT INTO entities (entity_type, entity_name)
		VALUES ($1, $2)
		ON CONFLICT (entity_type, entity_name) DO UPDATE SET entity_name = excluded.entity_name
		RETURNING id`,
		entityType, name,
	).Scan(&id)
	if err != nil {
		return 0, apperr.New(apperr.KindTransient, "entityworker.upsertEntity", err)
	}
	return id, nil
}

func (w *EntityWorker) upsertRelationship(ctx context.Context, subjectID int64, predicate string, objectID, pageID int64, confidence float64) error {
	_, err := w.pool.Exec(ctx, `
		INSERT INTO entity_relationships (subject_id, predicate, object_id, source_page_id, confidence)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING`,
		subjectID, predicate, objectID, pageID, confidence,
	)
	if err != nil {
		return apperr.New(apperr.KindTransient, "entityworker.upsertRelationship", err)
	}
	return nil
}
