// Package model holds the persisted record types. Every type implements
// StoredObject directly on its plain fields; the id/created_at/updated_at
// triple is spelled out per record rather than stamped from a shared base.
package model

import (
	"time"

	"noema/internal/ragservice"
)

// StoredObject is implemented by every persisted record type so
// internal/store can operate on them generically.
type StoredObject interface {
	TableName() string
	GetID() string
}

// EntityType enumerates the KnowledgeEntity.entity_type domain.
type EntityType string

const (
	EntityIdea        EntityType = "Idea"
	EntityProject     EntityType = "Project"
	EntityDocument    EntityType = "Document"
	EntityPage        EntityType = "Page"
	EntityTextSnippet EntityType = "TextSnippet"
)

// RelationshipType enumerates the common KnowledgeRelationship.relationship_type
// values. The field is a free string in storage; these are the ones the
// ingestion prompt is instructed to prefer.
const (
	RelRelatedTo  = "RelatedTo"
	RelRelevantTo = "RelevantTo"
	RelSimilarTo  = "SimilarTo"
)

// TaskStatusKind discriminates the IngestionTask.status sum type.
type TaskStatusKind string

const (
	TaskCreated    TaskStatusKind = "Created"
	TaskInProgress TaskStatusKind = "InProgress"
	TaskCompleted  TaskStatusKind = "Completed"
	TaskError      TaskStatusKind = "Error"
	TaskCancelled  TaskStatusKind = "Cancelled"
)

// TaskStatus is IngestionTask's status field. Only the fields relevant to
// Kind are meaningful; the rest are zero.
type TaskStatus struct {
	Kind        TaskStatusKind
	Attempts    int
	LastAttempt time.Time
	Message     string // Error(message)
}

// MessageRole enumerates Message.role.
type MessageRole string

const (
	RoleUser   MessageRole = "User"
	RoleAI     MessageRole = "AI"
	RoleSystem MessageRole = "System"
)

// User owns all user-scoped records.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Timezone     string
	APIKey       string
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (User) TableName() string { return "users" }
func (u User) GetID() string   { return u.ID }

// URLInfo is Content's optional URL provenance.
type URLInfo struct {
	URL     string
	Title   string
	ImageID string // FileInfo.id of a cached hero image, if any
}

// Content is the canonical extracted plaintext plus provenance, one per
// submission.
type Content struct {
	ID        string
	Text      string
	FileID    string // FileInfo.id, empty if not file-backed
	URL       *URLInfo
	Context   string
	Category  string
	UserID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Content) TableName() string { return "content" }
func (c Content) GetID() string   { return c.ID }

// FileInfo describes an uploaded binary, deduplicated per (user, sha256).
type FileInfo struct {
	ID        string
	SHA256    string
	Path      string // relative on-disk path, or object-store key
	MimeType  string
	UserID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (FileInfo) TableName() string { return "files" }
func (f FileInfo) GetID() string   { return f.ID }

// TextChunk is a contiguous text window used as a vector retrieval unit.
// Never mutated after creation.
type TextChunk struct {
	ID        string
	SourceID  string // Content.id
	Chunk     string
	Embedding []float32
	UserID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (TextChunk) TableName() string { return "chunks" }
func (c TextChunk) GetID() string   { return c.ID }

// KnowledgeEntity is a semantic node extracted from content.
type KnowledgeEntity struct {
	ID          string
	SourceID    string
	Name        string
	Description string
	EntityType  EntityType
	Metadata    map[string]string
	Embedding   []float32
	UserID      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (KnowledgeEntity) TableName() string { return "entities" }
func (e KnowledgeEntity) GetID() string   { return e.ID }

// KnowledgeRelationship is a directed typed edge between two entities.
type KnowledgeRelationship struct {
	ID               string
	InID             string // target entity id (direction: Out -> In)
	OutID            string // source entity id
	RelationshipType string
	UserID           string
	SourceID         string // Content.id that produced the edge
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (KnowledgeRelationship) TableName() string { return "relationships" }
func (r KnowledgeRelationship) GetID() string   { return r.ID }

// IngestionPayload is the input IngestionTask carries: URL, Text and FileIDs.
// The multipart ingress handler can populate more than one of them; the
// pipeline then uses FileIDs if any, else URL, else Text.
type IngestionPayload struct {
	URL      string
	Text     string
	FileIDs  []string
	Context  string
	Category string
}

// IngestionTask is a persistent queue record driving the ingestion worker.
type IngestionTask struct {
	ID        string
	Payload   IngestionPayload
	Status    TaskStatus
	UserID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (IngestionTask) TableName() string { return "ingestion_tasks" }
func (t IngestionTask) GetID() string   { return t.ID }

// Conversation owns an ordered sequence of Messages.
type Conversation struct {
	ID        string
	UserID    string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Conversation) TableName() string { return "conversations" }
func (c Conversation) GetID() string   { return c.ID }

// Message is one turn in a Conversation.
type Message struct {
	ID             string
	ConversationID string
	Role           MessageRole
	Content        string
	ReferenceIDs   []string
	UserID         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (Message) TableName() string { return "messages" }
func (m Message) GetID() string   { return m.ID }

// SystemSettings is the single-row global configuration record.
type SystemSettings struct {
	ID                       string
	EmbeddingDimensions      int
	QueryModel               string
	ProcessingModel          string
	QuerySystemPrompt        string
	IngestionSystemPrompt    string
	RegistrationsEnabled     bool
	RequireEmailVerification bool
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

func (SystemSettings) TableName() string { return "system_settings" }
func (s SystemSettings) GetID() string   { return s.ID }

// SettingsID is the single row id SystemSettings lives at.
const SettingsID = "current"

// DefaultSystemSettings is used to lazily initialize the settings row on
// first read.
func DefaultSystemSettings() SystemSettings {
	now := time.Time{}
	return SystemSettings{
		ID:                    SettingsID,
		EmbeddingDimensions:   1536,
		QueryModel:            "gpt-4o-mini",
		ProcessingModel:       "gpt-4o-mini",
		QuerySystemPrompt:     ragservice.DefaultQuerySystemPrompt(),
		IngestionSystemPrompt: ragservice.DefaultIngestionSystemPrompt(),
		RegistrationsEnabled:  true,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}
