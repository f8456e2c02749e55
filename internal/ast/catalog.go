package ast

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CatalogEntry is one AST's static declarative metadata, as authored in
// configs/asts.yaml. It mirrors, but does not replace, the behavior-bearing
// AST implementation: the YAML documents what an AST expects at login and
// whether it supports parallel runs, while PrepareItems/ProcessSingleItem
// etc. remain Go code. This is the same split the teacher uses for
// `internal/skills`' declarative skill definitions.
type CatalogEntry struct {
	Name                 string   `yaml:"name"`
	Description          string   `yaml:"description"`
	SupportsParallel     bool     `yaml:"supportsParallel"`
	AuthExpectedKeywords []string `yaml:"authExpectedKeywords"`
	AuthApplication      string   `yaml:"authApplication"`
	AuthGroup            string   `yaml:"authGroup"`
}

// LoadCatalogFile reads a configs/asts.yaml-shaped file.
func LoadCatalogFile(path string) ([]CatalogEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ast catalog %s: %w", path, err)
	}

	var entries []CatalogEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal ast catalog: %w", err)
	}
	return entries, nil
}

// ValidateCatalog cross-checks the declarative catalog against the ASTs
// actually registered in r, returning one error per name that appears in
// one but not the other. Call at startup so a drift between configs/
// asts.yaml and the compiled-in AST set is surfaced immediately rather
// than silently producing an incomplete /api/asts listing.
func ValidateCatalog(r *Registry, entries []CatalogEntry) []error {
	registered := make(map[string]bool)
	for _, d := range r.Catalog() {
		registered[d.Name] = true
	}

	declared := make(map[string]bool, len(entries))
	var errs []error
	for _, e := range entries {
		declared[e.Name] = true
		if !registered[e.Name] {
			errs = append(errs, fmt.Errorf("ast catalog declares %q but no factory is registered", e.Name))
		}
	}
	for name := range registered {
		if !declared[name] {
			errs = append(errs, fmt.Errorf("ast %q is registered but missing from the catalog file", name))
		}
	}
	return errs
}
