package semantic

import (
	"fmt"
	"strings"

	"skillvet/internal/model"
	"skillvet/internal/rules"
	"skillvet/internal/semantic/prompts"
)

// Prompt is the rendered request for one analysis.
type Prompt struct {
	System string
	User   string
}

// BuildPrompt renders the system and user prompts. Identical inputs always
// produce identical prompts. Manifest rules are included when manifest-like
// files are present, script rules when scripts are, and coordination rules
// only when both are.
func BuildPrompt(manifestFiles, scriptFiles []model.ExtractedFile, catalog *rules.Catalog) (Prompt, error) {
	system, err := prompts.GetPrompt(prompts.System, nil)
	if err != nil {
		return Prompt{}, err
	}

	var files strings.Builder
	for _, f := range manifestFiles {
		writeFile(&files, f)
	}
	for _, f := range scriptFiles {
		writeFile(&files, f)
	}

	var sections strings.Builder
	hasManifest, hasScripts := len(manifestFiles) > 0, len(scriptFiles) > 0
	if hasManifest {
		writeRules(&sections, "Manifest rules",
			"Apply to SKILL.md and other manifest-like documents.", catalog.For(rules.Manifest))
	}
	if hasScripts {
		writeRules(&sections, "Script rules",
			"Apply to executable scripts.", catalog.For(rules.Scripts))
	}
	if hasManifest && hasScripts {
		writeRules(&sections, "Coordination rules",
			"Attacks split across the manifest and the scripts. Read them together: neither file may look dangerous alone.",
			catalog.For(rules.Both))
	}

	user, err := prompts.GetPrompt(prompts.User, map[string]string{
		"files": strings.TrimRight(files.String(), "\n"),
		"rules": strings.TrimRight(sections.String(), "\n"),
	})
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{System: system, User: user}, nil
}

func writeFile(sb *strings.Builder, f model.ExtractedFile) {
	fmt.Fprintf(sb, "--- FILE: %s ---\n", f.Path)
	sb.WriteString(f.Content)
	if !strings.HasSuffix(f.Content, "\n") {
		sb.WriteByte('\n')
	}
	sb.WriteString("--- END FILE ---\n\n")
}

func writeRules(sb *strings.Builder, heading, intro string, rs []rules.Rule) {
	if len(rs) == 0 {
		return
	}
	fmt.Fprintf(sb, "### %s\n%s\n\n", heading, intro)
	for _, r := range rs {
		fmt.Fprintf(sb, "- [%s] %s (%s, %s)\n  Check: %s\n", r.ID, r.Name, r.Category, r.Severity, r.Check)
		if r.Harm != "" {
			fmt.Fprintf(sb, "  Harm: %s\n", r.Harm)
		}
	}
	sb.WriteByte('\n')
}
