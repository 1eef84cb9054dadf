// Package ragservice bundles the default system prompts a fresh
// SystemSettings row is seeded with. They live in an embedded YAML asset
// rather than inline Go string constants so an operator can edit the
// shipped defaults without a recompile; runtime config stays on env vars.
package ragservice

import (
	_ "embed"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var promptsYAML []byte

type promptSet struct {
	Query     string `yaml:"query_system_prompt"`
	Ingestion string `yaml:"ingestion_system_prompt"`
}

var (
	once   sync.Once
	loaded promptSet
)

func load() promptSet {
	once.Do(func() {
		// Malformed embedded YAML would be a build-time bug, not a runtime
		// condition to recover from; loaded stays zero-valued and callers
		// get empty-string prompts rather than a panic.
		_ = yaml.Unmarshal(promptsYAML, &loaded)
	})
	return loaded
}

// DefaultQuerySystemPrompt returns the bundled default query system prompt.
func DefaultQuerySystemPrompt() string { return load().Query }

// DefaultIngestionSystemPrompt returns the bundled default ingestion system prompt.
func DefaultIngestionSystemPrompt() string { return load().Ingestion }
