package model

import (
	"time"

	"github.com/google/uuid"
)

// Metadata keys written on every chunk
const (
	MetaType     = "type"
	MetaName     = "name"
	MetaTitle    = "title"
	MetaCategory = "category"
	MetaAddedAt  = "added_at"
)

// Document is an unstructured text submitted for ingestion
type Document struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// DocumentChunk is one embedded slice of a document. ID is the storage order.
type DocumentChunk struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	DocumentID uuid.UUID `gorm:"type:uuid;index" json:"document_id"`
	Position   int       `json:"position"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	Metadata   Metadata  `json:"metadata"`
	Embedding  Embedding `gorm:"not null" json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// ScoredChunk is a search hit
type ScoredChunk struct {
	Chunk DocumentChunk `json:"chunk"`
	Score float64       `json:"score"`
}

// QueryResult is the outcome of a retrieval-augmented query
type QueryResult struct {
	Query     string        `json:"query"`
	Answer    string        `json:"answer"`
	Sources   []ScoredChunk `json:"source_chunks"`
	Fallback  bool          `json:"fallback"`
	Timestamp time.Time     `json:"timestamp"`
}
