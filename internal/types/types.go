// Package types holds the domain records shared across the content store,
// task queue, workers, retrieval engine and agentic planner.
package types

import "time"

// SourceType identifies which external collaborator produced a source_page.
type SourceType string

const (
	SourceWiki       SourceType = "wiki"
	SourceWordPress  SourceType = "wordpress_page"
	SourcePlanetPost SourceType = "planet_post"
)

// SourceStatus is the lifecycle state of a source_page row.
type SourceStatus string

const (
	SourceStatusActive  SourceStatus = "active"
	SourceStatusDeleted SourceStatus = "deleted"
)

// SourcePage is the canonical record of one external page.
type SourcePage struct {
	ID          int64
	SourceType  SourceType
	SourceID    string
	Title       string
	URL         string
	ContentText string
	ContentHTML string
	ContentHash string
	LastRevID   *int64
	Categories  []string
	LastSynced  time.Time
	Status      SourceStatus
}

// Page is the lightweight FK-stable reference row keyed by URL.
type Page struct {
	ID          int64
	Title       string
	URL         string
	LastCrawled time.Time
}

// Chunk is a paragraph-aligned slice of a page's text.
type Chunk struct {
	ID         int64
	PageID     int64
	ChunkIndex int
	ChunkText  string
}

// Extension is the per-page LLM-derived résumé/keywords summary.
type Extension struct {
	ID          int64
	URL         string
	PageTitle   string
	Resume      string
	Keywords    string
	ContentHash string
	ModelUsed   string
	LastUpdated time.Time
}

// EntityType is the closed set of entity kinds written by the entity worker.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityProject      EntityType = "project"
	EntityOrganization EntityType = "organization"
	EntityLocation     EntityType = "location"
	EntityEvent        EntityType = "event"
	EntityYear         EntityType = "year"
)

// Entity is a named thing mentioned in the wiki.
type Entity struct {
	ID         int64
	EntityType EntityType
	EntityName string
}

// Relationship is a directed triple sourced from a specific page.
type Relationship struct {
	ID           int64
	SubjectID    int64
	Predicate    string
	ObjectID     int64
	SourcePageID int64
	Confidence   float64
}

// TaskType is the kind of derivation work a queue row represents.
type TaskType string

const (
	TaskChunks     TaskType = "chunks"
	TaskExtensions TaskType = "extensions"
	TaskEntities   TaskType = "entities"
)

// TaskStatus is the lifecycle state of a task_queue_row.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskClaimed   TaskStatus = "claimed"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
	TaskDead      TaskStatus = "dead"
)

// Task is one pending or in-flight derivation task.
type Task struct {
	ID              int64
	PageID          int64
	SourcePageID    int64
	TaskType        TaskType
	Priority        int
	Attempts        int
	MaxAttempts     int
	Status          TaskStatus
	ClaimedAt       *time.Time
	ClaimExpiresAt  *time.Time
	EnqueuedAt      time.Time
	NextEligibleAt  time.Time
	LastError       string
}

// SearchMode identifies one of the Retrieval Engine's three read operations.
type SearchMode string

const (
	SearchFullText SearchMode = "fulltext"
	SearchSemantic SearchMode = "semantic"
	SearchGraph    SearchMode = "graph"
)

// SearchResult is a tagged variant: exactly one of the typed payloads below
// is populated, selected by Mode, so a consumer can switch on the tag
// instead of asserting types at runtime. The planner does not use it: its
// extractSources works on the column-name maps that
// retrieval.ExecuteGenerated returns and picks citation fields by key.
type SearchResult struct {
	Mode      SearchMode
	FullText  *FullTextHit
	Semantic  *SemanticHit
	Graph     *GraphHit
}

// FullTextHit is one row from the full-text search mode.
type FullTextHit struct {
	PageID    int64
	URL       string
	Title     string
	ChunkText string
	Rank      float64
}

// SemanticHit is one row from the semantic (résumé/keywords) search mode.
type SemanticHit struct {
	PageID   int64
	URL      string
	Title    string
	Resume   string
	Keywords string
	Rank     float64
}

// GraphHit is one row from the graph (entity/relationship) search mode.
type GraphHit struct {
	Subject          string
	Predicate        string
	Object           string
	SourcePageID     int64
	SourcePageTitle  string
	SourcePageURL    string
}
