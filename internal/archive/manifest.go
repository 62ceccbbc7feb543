package archive

import (
	"bytes"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest holds the frontmatter fields of a SKILL.md file.
type Manifest struct {
	Name         string         `yaml:"name,omitempty" json:"name,omitempty"`
	Description  string         `yaml:"description,omitempty" json:"description,omitempty"`
	AllowedTools []string       `yaml:"allowed-tools,omitempty" json:"allowedTools,omitempty"`
	Metadata     map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// ParseManifest reads YAML frontmatter between --- delimiters. It returns
// nil when there is no frontmatter or it is not valid YAML; a malformed
// manifest is still analyzed as text.
func ParseManifest(content string) *Manifest {
	fm, ok := extractFrontmatter([]byte(content))
	if !ok {
		return nil
	}
	var m Manifest
	if err := yaml.Unmarshal(fm, &m); err != nil {
		return nil
	}
	return &m
}

func extractFrontmatter(content []byte) ([]byte, bool) {
	trimmed := bytes.TrimLeft(content, " \t\r\n")
	if !bytes.HasPrefix(trimmed, []byte("---")) {
		return nil, false
	}
	nl := bytes.IndexByte(trimmed, '\n')
	if nl < 0 {
		return nil, false
	}
	rest := trimmed[nl+1:]

	pos := 0
	for _, line := range bytes.SplitAfter(rest, []byte("\n")) {
		if strings.TrimSpace(string(line)) == "---" {
			return rest[:pos], true
		}
		pos += len(line)
	}
	return nil, false
}
