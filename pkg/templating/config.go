package templating

import "github.com/CTAG07/markus/pkg/markus"

// TagConfig holds all configuration options for declarative tags.
type TagConfig struct {
	// TagDir is the directory scanned for *.tag.yaml files.
	TagDir string `json:"tag_dir"`

	// DefaultContext is the context used for tags whose file does not name one.
	DefaultContext string `json:"default_context"`

	// MaxScriptSteps caps the Starlark execution steps of a single script
	// call, including loading the script. Zero means no limit.
	MaxScriptSteps uint64 `json:"max_script_steps"`

	// StrictFiles rejects tag files with unknown fields.
	StrictFiles bool `json:"strict_files"`
}

// DefaultConfig returns a TagConfig with safe default values.
func DefaultConfig() TagConfig {
	return TagConfig{
		TagDir:         "tags",
		DefaultContext: markus.DefaultContext,
		MaxScriptSteps: 100_000,
		StrictFiles:    false,
	}
}
