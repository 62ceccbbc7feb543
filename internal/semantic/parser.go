package semantic

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"skillvet/internal/model"

	"github.com/xeipuuv/gojsonschema"
)

// Parse stages reported in ParseError.
const (
	StageExtract = "extract"
	StageDecode  = "decode"
	StageSchema  = "schema"
)

// ParseError reports why a model response could not be turned into a verdict.
type ParseError struct {
	Stage string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Stage, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// DefaultConfidence is used when the model omits confidence.
const DefaultConfidence = 50

// Verdict is the JSON object the model is asked to return.
type Verdict struct {
	RiskLevel       string           `json:"riskLevel"`
	Findings        []VerdictFinding `json:"findings"`
	Summary         string           `json:"summary"`
	Recommendations []string         `json:"recommendations"`
	Confidence      *flexInt         `json:"confidence"`
	BlockExecution  bool             `json:"blockExecution"`
}

// VerdictFinding is one finding as the model reports it.
type VerdictFinding struct {
	RuleID         string  `json:"ruleId"`
	Severity       string  `json:"severity"`
	Category       string  `json:"category"`
	Title          string  `json:"title"`
	File           string  `json:"file"`
	Line           flexInt `json:"line"`
	Description    string  `json:"description"`
	Harm           string  `json:"harm"`
	Recommendation string  `json:"recommendation"`
	BlockExecution bool    `json:"blockExecution"`
}

// flexInt accepts numbers, numeric strings and null.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(strings.TrimSpace(s))
		if len(b) == 0 {
			*f = 0
			return nil
		}
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		// A non-numeric line such as "12-14" is treated as absent.
		*f = 0
		return nil
	}
	*f = flexInt(math.Round(v))
	return nil
}

const verdictSchema = `{
  "type": "object",
  "required": ["findings"],
  "properties": {
    "riskLevel": {"type": ["string", "null"]},
    "summary": {"type": ["string", "null"]},
    "confidence": {"type": ["number", "string", "null"]},
    "blockExecution": {"type": ["boolean", "null"]},
    "recommendations": {"type": ["array", "null"], "items": {"type": "string"}},
    "findings": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "properties": {
          "severity": {"type": ["string", "null"]},
          "file": {"type": ["string", "null"]},
          "line": {"type": ["integer", "number", "string", "null"]},
          "blockExecution": {"type": ["boolean", "null"]}
        }
      }
    }
  }
}`

var verdictSchemaLoader = gojsonschema.NewStringLoader(verdictSchema)

// ExtractJSON returns the JSON text inside raw. A fenced block wins;
// otherwise the span from the first '{' to the last '}' is used.
func ExtractJSON(raw string) (string, error) {
	candidates, err := jsonCandidates(raw)
	if err != nil {
		return "", err
	}
	return candidates[0], nil
}

// jsonCandidates lists the texts that may hold the verdict, most specific
// first: the fenced block, the brace span, then the whole response.
func jsonCandidates(raw string) ([]string, error) {
	content := strings.TrimSpace(raw)
	if content == "" {
		return nil, errors.New("empty response")
	}

	var out []string
	add := func(s string) {
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}

	if start := strings.Index(content, "```"); start != -1 {
		body := content[start+3:]
		// Skip an info string such as "json"
		if nl := strings.IndexByte(body, '\n'); nl != -1 && !strings.ContainsAny(body[:nl], "{[") {
			body = body[nl+1:]
		}
		if end := strings.Index(body, "```"); end != -1 {
			add(strings.TrimSpace(body[:end]))
		}
	}

	first := strings.Index(content, "{")
	last := strings.LastIndex(content, "}")
	if first != -1 && last > first {
		add(content[first : last+1])
	}
	add(content)
	return out, nil
}

// ParseVerdict runs the two parse steps: locate the JSON text, then decode
// and check it against the verdict schema. A fence quoted inside a JSON
// string does not hide the object around it.
func ParseVerdict(raw string) (*Verdict, error) {
	candidates, err := jsonCandidates(raw)
	if err != nil {
		return nil, &ParseError{Stage: StageExtract, Err: err}
	}

	text := ""
	for _, c := range candidates {
		if json.Valid([]byte(c)) {
			text = c
			break
		}
	}
	if text == "" {
		var v any
		err := json.Unmarshal([]byte(candidates[0]), &v)
		return nil, &ParseError{Stage: StageDecode, Err: err}
	}

	result, err := gojsonschema.Validate(verdictSchemaLoader, gojsonschema.NewStringLoader(text))
	if err != nil {
		return nil, &ParseError{Stage: StageSchema, Err: err}
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, &ParseError{Stage: StageSchema, Err: errors.New(strings.Join(msgs, "; "))}
	}

	var v Verdict
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, &ParseError{Stage: StageDecode, Err: err}
	}
	return &v, nil
}

// ToReport maps a verdict onto a SemanticReport. Block execution is decided
// later, after validation, from the surviving findings.
func (v *Verdict) ToReport() model.SemanticReport {
	findings := make([]model.Finding, 0, len(v.Findings))
	highest := model.SeverityInfo
	for _, vf := range v.Findings {
		sev, ok := model.ParseSeverity(vf.Severity)
		if !ok {
			sev = model.SeverityMedium
		}
		if sev.Rank() > highest.Rank() {
			highest = sev
		}
		title := strings.TrimSpace(vf.Title)
		if title == "" {
			title = strings.TrimSpace(vf.Category)
		}
		f := model.Finding{
			Severity:       sev,
			Category:       strings.TrimSpace(vf.Category),
			Title:          title,
			Description:    strings.TrimSpace(vf.Description),
			File:           strings.TrimSpace(vf.File),
			Recommendation: strings.TrimSpace(vf.Recommendation),
			Source:         model.SourceSemantic,
			RuleID:         strings.TrimSpace(vf.RuleID),
			Harm:           strings.TrimSpace(vf.Harm),
			Block:          vf.BlockExecution,
		}
		if vf.Line > 0 {
			f.Line = int(vf.Line)
		}
		findings = append(findings, f)
	}

	risk, ok := model.ParseRiskLevel(v.RiskLevel)
	if !ok {
		risk = model.RiskForSeverity(highest)
	}

	confidence := DefaultConfidence
	if v.Confidence != nil {
		confidence = clampConfidence(int(*v.Confidence))
	}

	recs := make([]string, 0, len(v.Recommendations))
	for _, r := range v.Recommendations {
		if r = strings.TrimSpace(r); r != "" {
			recs = append(recs, r)
		}
	}

	return model.SemanticReport{
		RiskLevel:       risk,
		Findings:        findings,
		Recommendations: recs,
		Confidence:      confidence,
		Summary:         strings.TrimSpace(v.Summary),
	}
}

// ShouldBlock reports whether any finding is critical or explicitly flagged.
func ShouldBlock(findings []model.Finding) bool {
	for _, f := range findings {
		if f.Severity == model.SeverityCritical || f.Block {
			return true
		}
	}
	return false
}

func clampConfidence(c int) int {
	switch {
	case c < 0:
		return 0
	case c > 100:
		return 100
	default:
		return c
	}
}
