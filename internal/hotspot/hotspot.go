// Package hotspot finds security-relevant lines in package files and builds
// bounded excerpts of oversized files that keep those lines.
package hotspot

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"skillvet/internal/model"
)

const (
	// HeadLines and TailLines are always kept when a file is truncated.
	HeadLines = 30
	TailLines = 15
	// ContextLines are kept on each side of a sensitive line.
	ContextLines = 3
	// DefaultLimit caps the number of hotspots Detect reports.
	DefaultLimit = 20

	Marker = "... [truncated for analysis] ..."

	maxContextLen = 200
)

// Pattern is a named sensitive-line matcher.
type Pattern struct {
	Name string
	Re   *regexp.Regexp
}

// SensitivePatterns is shared by the truncator and the detector so both
// agree on what counts as relevant.
var SensitivePatterns = []Pattern{
	{"credential assignment", regexp.MustCompile(`(?i)\b(?:password|passwd|pwd|secret|api[_-]?key|auth[_-]?token|access[_-]?token|token|private[_-]?key|access[_-]?key|client[_-]?secret)\s*[:=]`)},
	{"dynamic evaluation", regexp.MustCompile(`\b(?:eval|exec)\s*\(|\bnew\s+Function\s*\(|__import__\s*\(|\bcompile\s*\(`)},
	{"process execution", regexp.MustCompile(`\b(?:subprocess|os\.system|os\.popen|child_process|execSync|spawnSync|Runtime\.getRuntime|popen)\b`)},
	{"destructive shell", regexp.MustCompile(`\brm\s+-[a-zA-Z]*[rf]|\bmkfs\b|\bdd\s+if=|\bshred\b|>\s*/dev/sd[a-z]|:\(\)\s*\{\s*:\|:&\s*\};:`)},
	{"privileged path", regexp.MustCompile(`/etc/(?:passwd|shadow|sudoers)|~/\.ssh|\.ssh/id_|\.aws/credentials|\.kube/config|/root/|\.gnupg`)},
	{"environment file", regexp.MustCompile(`(?:^|[\s'"/])\.env\b|\bos\.environ\b|\bprocess\.env\b|\bgetenv\s*\(|\bprintenv\b`)},
	{"network transfer", regexp.MustCompile(`\b(?:curl|wget|nc|ncat)\s|\brequests\.(?:post|put|get)\s*\(|\bfetch\s*\(|\burllib\.request\b|\baxios\.`)},
	{"encoded payload", regexp.MustCompile(`\batob\s*\(|\bb64decode\s*\(|\bbase64\s+(?:-d|--decode)\b|Buffer\.from\([^)]*['"]base64['"]`)},
	{"privilege escalation", regexp.MustCompile(`\bsudo\s|\bchmod\s+(?:-R\s+)?(?:777|[ugoa]*\+s)\b|\bsetuid\b`)},
}

// Sensitive reports the name of the first pattern matching line.
func Sensitive(line string) (string, bool) {
	for _, p := range SensitivePatterns {
		if p.Re.MatchString(line) {
			return p.Name, true
		}
	}
	return "", false
}

// Result is the outcome of Truncate.
type Result struct {
	Content      string
	WasTruncated bool
}

// Truncate returns content unchanged when it fits in maxBytes. Otherwise it
// keeps the head and tail of the file plus every sensitive line with its
// surrounding context, in original order, and replaces each gap with a
// single Marker line.
func Truncate(content string, maxBytes int) Result {
	if len(content) <= maxBytes {
		return Result{Content: content}
	}

	// a final newline terminates the last line rather than starting another
	body, hadNewline := strings.CutSuffix(content, "\n")
	lines := strings.Split(body, "\n")
	n := len(lines)
	keep := make([]bool, n)

	for i := 0; i < HeadLines && i < n; i++ {
		keep[i] = true
	}
	for i := max(n-TailLines, 0); i < n; i++ {
		keep[i] = true
	}
	for i, line := range lines {
		if _, ok := Sensitive(line); !ok {
			continue
		}
		for j := max(i-ContextLines, 0); j <= min(i+ContextLines, n-1); j++ {
			keep[j] = true
		}
	}

	var out []string
	prev := -1
	for i, k := range keep {
		if !k {
			continue
		}
		if prev >= 0 && i != prev+1 {
			out = append(out, Marker)
		}
		out = append(out, lines[i])
		prev = i
	}

	excerpt := strings.Join(out, "\n")
	if hadNewline {
		excerpt += "\n"
	}
	return Result{Content: excerpt, WasTruncated: true}
}

// Hotspot is one sensitive line found in a file.
type Hotspot struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Pattern string `json:"pattern"`
	Context string `json:"context"`
}

// Detect lists up to limit sensitive lines across files, in file order.
// It does not change what is sent for analysis.
func Detect(files []model.ExtractedFile, limit int) []Hotspot {
	if limit <= 0 {
		limit = DefaultLimit
	}
	var spots []Hotspot
	for _, f := range files {
		for i, line := range strings.Split(f.Content, "\n") {
			name, ok := Sensitive(line)
			if !ok {
				continue
			}
			spots = append(spots, Hotspot{
				File:    f.Path,
				Line:    i + 1,
				Pattern: name,
				Context: clip(strings.TrimSpace(line), maxContextLen),
			})
			if len(spots) >= limit {
				return spots
			}
		}
	}
	return spots
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
