package domain

import (
	"fmt"
	"maps"
	"strings"
)

// Document is a unit of retrieved context.
// It is produced only by a Retriever and treated as immutable afterwards.
type Document struct {
	Content  string            `json:"content" yaml:"content"`
	Source   string            `json:"source" yaml:"source"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Clone returns a copy with its own metadata map.
func (d Document) Clone() Document {
	d.Metadata = maps.Clone(d.Metadata)
	return d
}

// FormatDocuments renders documents as a single context block for prompts.
func FormatDocuments(docs []Document) string {
	var sb strings.Builder
	for i, d := range docs {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "Document %d (source: %s):\n%s", i+1, d.Source, d.Content)
	}
	return sb.String()
}
