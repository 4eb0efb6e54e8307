package imports

import (
	"fmt"
	"path"
	"strings"

	"github.com/src-d/enry/v2"
	"github.com/src-d/imports"
	_ "github.com/src-d/imports/languages/all" // register the supported languages

	"github.com/tickfold/tickfold/internal/analyze"
)

// Extractor extracts import statements from source files. The fact category
// is the lowercased language name and the fact key is the import path.
type Extractor struct{}

// NewExtractor creates an import statement extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Supported reports whether the file's extension maps to a recognized
// language. Files that don't are soft-skipped by the extractor pool.
func (x *Extractor) Supported(name string) bool {
	return enry.GetLanguage(path.Base(name), nil) != enry.OtherLanguage
}

// Extract parses the file content and returns one fact per import.
func (x *Extractor) Extract(name string, data []byte) ([]analyze.Fact, error) {
	file, err := imports.Extract(name, data)
	if err != nil {
		return nil, fmt.Errorf("extract imports from %s: %w", name, err)
	}

	lang := strings.ToLower(file.Lang)

	facts := make([]analyze.Fact, 0, len(file.Imports))
	for _, imp := range file.Imports {
		facts = append(facts, analyze.Fact{Category: lang, Key: imp})
	}

	return facts, nil
}
