package security

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"skillvet/internal/archive"
	"skillvet/internal/model"
)

// Scanner defines the interface for deterministic security scanning
type Scanner interface {
	Scan(files []model.ExtractedFile) model.ScanReport
}

// Rule is one entry of the pattern table.
type Rule struct {
	Pattern        *regexp.Regexp
	Severity       model.Severity
	Category       string
	Title          string
	Description    string
	Recommendation string
}

// RegexScanner implements Scanner using an ordered rule table. The order is
// fixed so that identical input always yields identical findings.
type RegexScanner struct {
	rules []Rule
}

// Severity weights subtracted from a perfect score of 100.
const (
	weightCritical = 25
	weightHigh     = 15
	weightMedium   = 8
	weightLow      = 3

	maxMatchLen = 120
)

var (
	reHardcodedPassword = regexp.MustCompile(`(?i)\bpass(?:word|wd)?\s*[:=]\s*["'][^"'\n]+["']`)
	reHardcodedAPIKey   = regexp.MustCompile(`(?i)\b(?:api[_-]?key|secret[_-]?key|client[_-]?secret|access[_-]?token|auth[_-]?token)\s*[:=]\s*["'][A-Za-z0-9_\-\.]{16,}["']`)
	reAWSAccessKey      = regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)
	rePrivateKey        = regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`)
	reGitHubToken       = regexp.MustCompile(`\bgh[pousr]_[a-zA-Z0-9]{36,255}\b`)
	reSlackToken        = regexp.MustCompile(`\bxox[baprs]-[0-9a-zA-Z\-]{10,48}\b`)
	reObfuscatedExec    = regexp.MustCompile(`(?i)\b(?:eval|exec)\s*\(\s*(?:atob|base64\.b64decode|b64decode|Buffer\.from|decodeURIComponent|unescape|codecs\.decode|zlib\.decompress)\s*\(`)
	reInputExec         = regexp.MustCompile(`\b(?:eval|exec)\s*\(\s*(?:input\s*\(|request\.|req\.(?:body|query|params)|sys\.argv|process\.argv|params\b)`)
	rePipeToShell       = regexp.MustCompile(`(?i)\b(?:curl|wget)\b[^;\n&]*\|\s*(?:sudo\s+)?\b(?:bash|sh|zsh|python3?|perl|ruby|php|node)\b`)
	reRootDeletion      = regexp.MustCompile(`(?im)\brm\s+-[a-z]*[rf][a-z]*\s+(?:--no-preserve-root\s+)?(?:/|~/?|\*|\$HOME/?)(?:\s|;|$)`)
	reSensitiveFile     = regexp.MustCompile(`(?i)\b(?:cat|cp|mv|scp|tar|zip|open|read_text|readFileSync)\b[^\n]*(?:\.ssh/|\.aws/credentials|\.kube/config|/etc/passwd|/etc/shadow|\.gnupg|\.netrc)`)
	reShellExec         = regexp.MustCompile(`\b(?:subprocess\.(?:run|call|Popen|check_output|check_call)|os\.system|os\.popen|child_process|execSync|spawnSync|Runtime\.getRuntime\(\)\.exec)\b`)
	reEnvHarvest        = regexp.MustCompile(`\bprintenv\b|\bos\.environ\.(?:items|copy)\s*\(\s*\)|\bdict\s*\(\s*os\.environ\s*\)|JSON\.stringify\s*\(\s*process\.env\s*\)`)
	rePromptInjection   = regexp.MustCompile(`(?i)\b(?:ignore|disregard|forget)\s+(?:all\s+)?(?:of\s+)?(?:the\s+|your\s+)?(?:previous|prior|above|earlier|system)\s+(?:instructions|prompts?|rules)`)
	rePrivilegeEsc      = regexp.MustCompile(`\bsudo\s+\S|\bchmod\s+(?:-R\s+)?(?:777|[ugoa]*\+s)\b`)
	reInsecureTLS       = regexp.MustCompile(`(?i)\bverify\s*=\s*False\b|rejectUnauthorized\s*:\s*false|InsecureSkipVerify\s*:\s*true|NODE_TLS_REJECT_UNAUTHORIZED\s*=\s*['"]?0|\bcurl\b[^\n]*\s(?:-k|--insecure)\b`)
	rePersistence       = regexp.MustCompile(`\bcrontab\s+-|/etc/cron\.|\.bashrc|\.zshrc|\.bash_profile|/etc/rc\.local|systemctl\s+enable|LaunchAgents`)
	reReverseShell      = regexp.MustCompile(`/dev/tcp/|\bnc\s+(?:-[a-z]*e|[^\n]*\s-e)\s|\bsocat\b[^\n]*exec:|\bbash\s+-i\s+>&`)
	reOutboundRequest   = regexp.MustCompile(`\brequests\.(?:post|put)\s*\(|\baxios\.(?:post|put)\s*\(|\burllib\.request\.urlopen\s*\(|\bcurl\b[^\n]*\s(?:-d|--data(?:-binary)?|-F|--upload-file)\s`)
)

// DefaultRules returns the built-in pattern table in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{reHardcodedPassword, model.SeverityCritical, "Credential Exposure", "Hardcoded Password",
			"A password literal is embedded in the package.",
			"Remove the password and read it from a secret store or environment variable at runtime."},
		{reHardcodedAPIKey, model.SeverityCritical, "Credential Exposure", "Hardcoded API Key",
			"An API key or token literal is embedded in the package.",
			"Revoke the key and load credentials from the environment instead of source files."},
		{reAWSAccessKey, model.SeverityCritical, "Credential Exposure", "AWS Access Key",
			"An AWS access key ID is present in the package.",
			"Revoke the key in IAM and never ship cloud credentials inside a skill."},
		{rePrivateKey, model.SeverityCritical, "Credential Exposure", "Private Key",
			"A PEM private key block is embedded in the package.",
			"Remove the key material and rotate the key pair."},
		{reGitHubToken, model.SeverityCritical, "Credential Exposure", "GitHub Token",
			"A GitHub personal or app token is present in the package.",
			"Revoke the token on GitHub and use a scoped token supplied at runtime."},
		{reSlackToken, model.SeverityHigh, "Credential Exposure", "Slack Token",
			"A Slack API token is present in the package.",
			"Revoke the token and supply it through configuration."},
		{reObfuscatedExec, model.SeverityCritical, "Code Execution", "Obfuscated Code Execution",
			"Decoded or obfuscated data is passed straight into a dynamic evaluation call.",
			"Remove dynamic evaluation of encoded payloads; ship readable code only."},
		{reInputExec, model.SeverityHigh, "Code Execution", "Dynamic Code Execution",
			"Externally controlled input is evaluated as code.",
			"Parse input as data; never pass it to eval or exec."},
		{rePipeToShell, model.SeverityCritical, "Remote Code Execution", "Pipe to Shell",
			"Remote content is downloaded and piped directly into an interpreter.",
			"Download to a file, verify a checksum or signature, then execute explicitly."},
		{reRootDeletion, model.SeverityCritical, "Destructive Operation", "Recursive Root Deletion",
			"A recursive delete targets the filesystem root or home directory.",
			"Restrict deletions to explicit paths inside the skill's working directory."},
		{reSensitiveFile, model.SeverityHigh, "Sensitive File Access", "Sensitive File Access",
			"The package reads or copies credential files or system account databases.",
			"Remove access to credential stores; request only the data the skill needs."},
		{reReverseShell, model.SeverityCritical, "Remote Code Execution", "Reverse Shell",
			"A construct commonly used to open a reverse shell was found.",
			"Remove the network shell construct."},
		{rePromptInjection, model.SeverityHigh, "Prompt Injection", "Instruction Override",
			"Text tries to make the agent ignore its existing instructions.",
			"Remove instructions that override the host agent's system prompt or rules."},
		{reEnvHarvest, model.SeverityMedium, "Data Exfiltration", "Environment Variable Harvesting",
			"The full process environment is read or dumped.",
			"Read only the specific variables the skill declares."},
		{reShellExec, model.SeverityMedium, "Code Execution", "Shell Command Execution",
			"The package spawns shell commands or subprocesses.",
			"Use fixed argument lists, avoid shell=True, and declare required binaries."},
		{rePrivilegeEsc, model.SeverityMedium, "Privilege Escalation", "Privilege Escalation",
			"The package requests elevated privileges or sets broad permissions.",
			"Run without sudo and keep file permissions minimal."},
		{rePersistence, model.SeverityMedium, "Persistence", "Persistence Mechanism",
			"The package modifies startup files or schedules recurring jobs.",
			"Skills must not install themselves into shell profiles, cron, or service managers."},
		{reInsecureTLS, model.SeverityMedium, "Network Security", "TLS Verification Disabled",
			"Certificate verification is turned off for outbound connections.",
			"Keep TLS verification enabled."},
		{reOutboundRequest, model.SeverityLow, "Network Access", "Outbound Data Upload",
			"The package sends data to a remote endpoint.",
			"Declare egress domains and confirm no user data leaves without consent."},
	}
}

// NewRegexScanner creates a new scanner with default patterns
func NewRegexScanner() *RegexScanner {
	return &RegexScanner{rules: DefaultRules()}
}

// NewRegexScannerWithRules creates a scanner over a custom table.
func NewRegexScannerWithRules(rules []Rule) *RegexScanner {
	return &RegexScanner{rules: rules}
}

// Scan applies every rule to every file and reports each match.
func (s *RegexScanner) Scan(files []model.ExtractedFile) model.ScanReport {
	findings := []model.Finding{}
	for _, f := range files {
		findings = append(findings, s.ScanContent(f.Path, f.Source())...)
	}
	return NewReport(findings)
}

// ScanContent checks one file's text against the rule table.
func (s *RegexScanner) ScanContent(path, content string) []model.Finding {
	var findings []model.Finding
	for _, rule := range s.rules {
		for _, match := range rule.Pattern.FindAllStringIndex(content, -1) {
			findings = append(findings, model.Finding{
				Severity:       rule.Severity,
				Category:       rule.Category,
				Title:          rule.Title,
				Description:    rule.Description,
				File:           path,
				Line:           LineAt(content, match[0]),
				Recommendation: rule.Recommendation,
				Source:         model.SourcePattern,
				Match:          clipMatch(content[match[0]:match[1]]),
			})
		}
	}
	return findings
}

// ScanArchive extracts data and scans it. An archive that cannot be opened
// yields a single critical "Scan Error" finding and a score of 0.
func (s *RegexScanner) ScanArchive(data []byte, opts archive.Options) model.ScanReport {
	res, err := archive.Extract(data, opts)
	if err != nil {
		return ErrorReport(err)
	}
	return s.Scan(res.Files())
}

// ErrorReport is the report for an archive that could not be opened.
func ErrorReport(err error) model.ScanReport {
	findings := []model.Finding{{
		Severity:       model.SeverityCritical,
		Category:       "Scan Error",
		Title:          "Scan Error",
		Description:    fmt.Sprintf("Package could not be scanned: %v", err),
		Recommendation: "Upload a valid zip or tar.gz archive containing a SKILL.md manifest.",
		Source:         model.SourcePattern,
	}}
	return model.ScanReport{
		Score:    0,
		Findings: findings,
		Summary:  model.CountSeverities(findings),
	}
}

// NewReport summarizes findings and computes the score.
func NewReport(findings []model.Finding) model.ScanReport {
	summary := model.CountSeverities(findings)
	return model.ScanReport{
		Score:    Score(summary),
		Findings: findings,
		Summary:  summary,
	}
}

// Score is 100 minus severity-weighted finding counts, clamped to [0, 100].
func Score(c model.SeverityCounts) int {
	score := 100 - weightCritical*c.Critical - weightHigh*c.High - weightMedium*c.Medium - weightLow*c.Low
	return min(max(score, 0), 100)
}

// LineAt returns the 1-based line of byte offset in content.
func LineAt(content string, offset int) int {
	return strings.Count(content[:offset], "\n") + 1
}

func clipMatch(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxMatchLen {
		return s
	}
	n := maxMatchLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
