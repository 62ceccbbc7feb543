// Package rules defines the catalog of semantic-analysis rules rendered into
// the model prompt. A catalog is immutable once built.
package rules

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"skillvet/internal/model"

	"gopkg.in/yaml.v3"
)

// AppliesTo tags which files a rule targets.
type AppliesTo int

const (
	// Manifest rules target SKILL.md and other manifest-like documents.
	Manifest AppliesTo = iota + 1
	// Scripts rules target executable code.
	Scripts
	// Both marks coordination rules: attacks split across manifest and scripts.
	Both
)

func (a AppliesTo) String() string {
	switch a {
	case Manifest:
		return "manifest"
	case Scripts:
		return "scripts"
	case Both:
		return "both"
	default:
		return "unknown"
	}
}

// ParseAppliesTo accepts the spellings seen in operator catalogs.
func ParseAppliesTo(s string) (AppliesTo, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "manifest", "manifest-like", "skill_md", "skill.md", "markdown", "instructions":
		return Manifest, nil
	case "scripts", "script", "code":
		return Scripts, nil
	case "both", "coordination", "cross-file", "all":
		return Both, nil
	}
	return 0, fmt.Errorf("unknown appliesTo %q", s)
}

// MarshalYAML writes the canonical spelling.
func (a AppliesTo) MarshalYAML() (any, error) {
	return a.String(), nil
}

// UnmarshalYAML parses any accepted spelling.
func (a *AppliesTo) UnmarshalYAML(node *yaml.Node) error {
	v, err := ParseAppliesTo(node.Value)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func (a AppliesTo) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *AppliesTo) UnmarshalText(b []byte) error {
	v, err := ParseAppliesTo(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Rule is one check the model is asked to perform.
type Rule struct {
	ID        string         `yaml:"id" json:"id"`
	Category  string         `yaml:"category" json:"category"`
	Name      string         `yaml:"name" json:"name"`
	Severity  model.Severity `yaml:"severity" json:"severity"`
	AppliesTo AppliesTo      `yaml:"appliesTo" json:"appliesTo"`
	Check     string         `yaml:"check" json:"check"`
	Harm      string         `yaml:"harm" json:"harm"`
}

// Catalog is an immutable, validated rule set.
type Catalog struct {
	rules  []Rule
	source string
}

// NewCatalog validates rules and builds a catalog.
func NewCatalog(rules []Rule, source string) (*Catalog, error) {
	if len(rules) == 0 {
		return nil, errors.New("rule catalog is empty")
	}
	seen := make(map[string]bool, len(rules))
	var problems []string
	for i, r := range rules {
		switch {
		case r.ID == "":
			problems = append(problems, fmt.Sprintf("rule %d: missing id", i))
		case seen[r.ID]:
			problems = append(problems, fmt.Sprintf("rule %s: duplicate id", r.ID))
		}
		seen[r.ID] = true
		if sev, ok := model.ParseSeverity(string(r.Severity)); !ok || sev == model.SeverityInfo {
			problems = append(problems, fmt.Sprintf("rule %s: severity must be one of critical, high, medium, low", r.ID))
		} else {
			rules[i].Severity = sev
		}
		if r.AppliesTo < Manifest || r.AppliesTo > Both {
			problems = append(problems, fmt.Sprintf("rule %s: missing appliesTo", r.ID))
		}
		if strings.TrimSpace(r.Check) == "" {
			problems = append(problems, fmt.Sprintf("rule %s: missing check", r.ID))
		}
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid rule catalog:\n  %s", strings.Join(problems, "\n  "))
	}

	cp := make([]Rule, len(rules))
	copy(cp, rules)
	return &Catalog{rules: cp, source: source}, nil
}

// Rules returns a copy of every rule.
func (c *Catalog) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Source names where the catalog came from.
func (c *Catalog) Source() string {
	return c.source
}

// Len is the number of rules.
func (c *Catalog) Len() int {
	return len(c.rules)
}

// For returns the rules tagged with a.
func (c *Catalog) For(a AppliesTo) []Rule {
	var out []Rule
	for _, r := range c.rules {
		if r.AppliesTo == a {
			out = append(out, r)
		}
	}
	return out
}

type catalogFile struct {
	Rules []Rule `yaml:"rules"`
}

// Parse reads a catalog document. Both YAML and JSON are accepted, either as
// a bare list or as an object with a "rules" key.
func Parse(data []byte, source string) (*Catalog, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse rule catalog %s: %w", source, err)
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("rule catalog %s is empty", source)
	}

	var list []Rule
	node := root.Content[0]
	switch node.Kind {
	case yaml.SequenceNode:
		if err := node.Decode(&list); err != nil {
			return nil, fmt.Errorf("failed to parse rule catalog %s: %w", source, err)
		}
	case yaml.MappingNode:
		var doc catalogFile
		if err := node.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to parse rule catalog %s: %w", source, err)
		}
		list = doc.Rules
	default:
		return nil, fmt.Errorf("rule catalog %s must be a list or a mapping with a rules key", source)
	}
	return NewCatalog(list, source)
}

// LoadFile reads a catalog from disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule catalog: %w", err)
	}
	return Parse(data, path)
}

// Marshal renders a catalog as YAML.
func Marshal(c *Catalog) ([]byte, error) {
	return yaml.Marshal(catalogFile{Rules: c.rules})
}
