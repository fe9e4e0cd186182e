package memory

import (
	"fmt"
	"os"

	"github.com/aretw0/ragloop/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Corpus is the on-disk representation of an already chunked document set.
//
//	documents:
//	  - content: "The X200 lamp draws 12 W."
//	    source: x200-datasheet.pdf
//	    metadata: {page: "1"}
type Corpus struct {
	Documents []domain.Document `yaml:"documents"`
}

// LoadCorpus reads a YAML corpus file.
func LoadCorpus(path string) ([]domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus: %w", err)
	}
	return ParseCorpus(data)
}

// ParseCorpus decodes a YAML corpus. Documents without content are rejected.
func ParseCorpus(data []byte) ([]domain.Document, error) {
	var c Corpus
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse corpus: %w", err)
	}
	for i, d := range c.Documents {
		if d.Content == "" {
			return nil, fmt.Errorf("document %d has no content", i+1)
		}
		if d.Source == "" {
			c.Documents[i].Source = fmt.Sprintf("document-%d", i+1)
		}
	}
	return c.Documents, nil
}

// NewFromFile builds a retriever over the corpus stored at path.
func NewFromFile(path string, opts ...Option) (*Retriever, error) {
	docs, err := LoadCorpus(path)
	if err != nil {
		return nil, err
	}
	return New(docs, opts...), nil
}
