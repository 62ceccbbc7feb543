// Package prompts holds the structural templates for semantic analysis.
// Rule content is never part of a template; it is rendered in by the caller.
package prompts

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed templates/*.md
var templateFS embed.FS

// Available prompt templates
const (
	System = "system"
	User   = "user"
)

// OverrideEnv names a directory whose <name>.md files replace the embedded
// templates.
const OverrideEnv = "SKILLVET_PROMPTS_DIR"

// GetPrompt loads a template and injects variables. Placeholders have the
// form {name}; substitution is a single pass, so values containing
// placeholder text are left untouched.
func GetPrompt(name string, vars map[string]string) (string, error) {
	var content []byte

	if overrideDir := os.Getenv(OverrideEnv); overrideDir != "" {
		if c, err := os.ReadFile(filepath.Join(overrideDir, name+".md")); err == nil {
			content = c
		}
	}

	if len(content) == 0 {
		var err error
		content, err = templateFS.ReadFile("templates/" + name + ".md")
		if err != nil {
			return "", fmt.Errorf("failed to read prompt template %s: %w", name, err)
		}
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", vars[k])
	}
	return strings.NewReplacer(pairs...).Replace(string(content)), nil
}
