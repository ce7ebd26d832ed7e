// Package oracle defines the shared domain model for the knowledge memory
// layer: documents, projects, and the error kinds visible at the API boundary.
package oracle

import "time"

// DocType classifies an indexed document.
type DocType string

const (
	DocTypePrinciple DocType = "principle"
	DocTypeLearning  DocType = "learning"
	DocTypePattern   DocType = "pattern"
	DocTypeRetro     DocType = "retro"
)

// ValidDocType reports whether t is one of the four document types.
func ValidDocType(t DocType) bool {
	switch t {
	case DocTypePrinciple, DocTypeLearning, DocTypePattern, DocTypeRetro:
		return true
	}
	return false
}

// Origin identifies where a learned pattern came from.
type Origin string

const (
	OriginMother Origin = "mother"
	OriginArthur Origin = "arthur"
	OriginVolt   Origin = "volt"
	OriginHuman  Origin = "human"
)

// ValidOrigin reports whether o is a known origin.
func ValidOrigin(o Origin) bool {
	switch o {
	case OriginMother, OriginArthur, OriginVolt, OriginHuman:
		return true
	}
	return false
}

// Provenance records who created a document and under which project.
type Provenance struct {
	Origin    Origin `json:"origin,omitempty"`
	Project   string `json:"project,omitempty"`
	CreatedBy string `json:"created_by,omitempty"`
}

// Document is the smallest addressable unit of indexed text.
//
// The metadata row (this struct minus Content) lives in oracle_documents;
// Content is stored in the FTS index and, as embedding input, in the vector
// backend. Rows are never deleted outside a full re-index.
type Document struct {
	ID         string    `json:"id"`
	Type       DocType   `json:"type"`
	SourceFile string    `json:"source_file"`
	Concepts   []string  `json:"concepts"`
	Content    string    `json:"content,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	IndexedAt  time.Time `json:"indexed_at"`

	SupersededBy     string     `json:"superseded_by,omitempty"`
	SupersededAt     *time.Time `json:"superseded_at,omitempty"`
	SupersededReason string     `json:"superseded_reason,omitempty"`

	Provenance
}

// Project partitions documents and telemetry. Documents without a project
// are universal and visible under every project filter.
type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description,omitempty"`
	Path        string `json:"path,omitempty"`
}
