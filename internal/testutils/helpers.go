package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/ragloop/pkg/domain"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// SetupCorpusFile writes documents as a YAML corpus into a temporary directory.
// It returns the absolute path to the file and fails the test immediately on error.
func SetupCorpusFile(t *testing.T, docs ...domain.Document) string {
	t.Helper()

	absDir, err := filepath.Abs(t.TempDir())
	require.NoError(t, err, "Failed to get absolute path for temp dir")

	data, err := yaml.Marshal(map[string]any{"documents": docs})
	require.NoError(t, err, "Failed to marshal corpus")

	path := filepath.Join(absDir, "corpus.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600), "Failed to write corpus")
	return path
}

// Lamp documents used by retrieval scenarios.
var (
	DocX200Spec = domain.Document{
		Content:  "The X200 lamp draws 12 W and emits 1100 lumens at 2700 K.",
		Source:   "x200-datasheet.pdf",
		Metadata: map[string]string{"page": "1"},
	}
	DocX200Warranty = domain.Document{
		Content:  "The X200 lamp carries a five year warranty against defects.",
		Source:   "x200-warranty.pdf",
		Metadata: map[string]string{"page": "3"},
	}
	DocUnrelated = domain.Document{
		Content: "Office opening hours are 9 to 5 on weekdays.",
		Source:  "facilities.pdf",
	}
)
