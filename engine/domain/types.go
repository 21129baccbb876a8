// Package domain defines the core types shared by the answering pipeline:
// entity keys and records, retrieval evidence, classified intent, and the
// answer envelope returned to callers.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// EntityType names a kind of record owned by the congress data store.
type EntityType string

const (
	EntityBill   EntityType = "bill"
	EntityMember EntityType = "member"
	EntityAction EntityType = "action"
	EntityOrder  EntityType = "order"
)

// EntityTypes lists every entity type in display order.
var EntityTypes = []EntityType{EntityBill, EntityMember, EntityAction, EntityOrder}

// ParseEntityType returns the entity type for s (case-insensitive).
func ParseEntityType(s string) (EntityType, bool) {
	t := EntityType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case EntityBill, EntityMember, EntityAction, EntityOrder:
		return t, true
	}
	return "", false
}

// Key identifies a record in the external data store. Embeddings and
// fingerprints hold soft references through it.
type Key struct {
	Type EntityType `json:"entity_type"`
	ID   int64      `json:"entity_id"`
}

func (k Key) String() string { return fmt.Sprintf("%s:%d", k.Type, k.ID) }

// EmbeddingRecord is one stored vector per entity.
type EmbeddingRecord struct {
	Key
	Vector     []float32      `json:"vector"`
	SourceText string         `json:"source_text"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// MatchType records which retrieval strategy produced a piece of evidence.
type MatchType string

const (
	MatchVector     MatchType = "vector"
	MatchKeyword    MatchType = "keyword"
	MatchStructured MatchType = "structured"
)

// Evidence is a single retrieved candidate plus its relevance score.
type Evidence struct {
	Key
	Similarity float64        `json:"similarity"`
	Identifier string         `json:"identifier,omitempty"`
	Title      string         `json:"title,omitempty"`
	Content    string         `json:"content"`
	Date       time.Time      `json:"date,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	MatchType  MatchType      `json:"match_type"`
}

// Label returns the citation label, e.g. "HR 1234: Healthcare Access Act".
func (e Evidence) Label() string {
	switch {
	case e.Identifier != "" && e.Title != "":
		return e.Identifier + ": " + e.Title
	case e.Identifier != "":
		return e.Identifier
	case e.Title != "":
		return e.Title
	default:
		return e.Key.String()
	}
}

// Turn is one prior exchange in a conversation.
type Turn struct {
	Question string `json:"question"`
	Response string `json:"response"`
}

// AnswerEnvelope is the uniform result returned by the answering service.
type AnswerEnvelope struct {
	Success    bool     `json:"success"`
	Text       string   `json:"text"`
	HTML       string   `json:"html"`
	Method     string   `json:"method"`
	Sources    []string `json:"sources"`
	Confidence float64  `json:"confidence"`
	Errors     []string `json:"errors,omitempty"`
}
