package rules

import "skillvet/internal/model"

// Default returns the built-in catalog. Operators replace it wholesale with
// a file configured under rules.file.
func Default() *Catalog {
	c, err := NewCatalog(defaultRules(), "builtin")
	if err != nil {
		panic("builtin rule catalog is invalid: " + err.Error())
	}
	return c
}

func defaultRules() []Rule {
	return []Rule{
		// Manifest-like documents
		{ID: "M001", Category: "Prompt Injection", Name: "Instruction override", Severity: model.SeverityHigh, AppliesTo: Manifest,
			Check: "Instructions that tell the agent to ignore, replace or reveal its system prompt, prior instructions or safety rules.",
			Harm:  "The skill hijacks the host agent and removes the guardrails the user relies on."},
		{ID: "M002", Category: "Prompt Injection", Name: "Hidden instructions", Severity: model.SeverityHigh, AppliesTo: Manifest,
			Check: "Instructions hidden in HTML comments, zero-width characters, encoded text or content unrelated to the declared purpose.",
			Harm:  "Users approve a skill whose real behavior they cannot see."},
		{ID: "M003", Category: "Data Exfiltration", Name: "Sensitive data solicitation", Severity: model.SeverityHigh, AppliesTo: Manifest,
			Check: "Requests that the user or agent provide passwords, API keys, private keys, session cookies, or personal identity documents without a legitimate need.",
			Harm:  "Credentials or personal data are collected by a third party."},
		{ID: "M004", Category: "Data Exfiltration", Name: "Undisclosed data transfer", Severity: model.SeverityHigh, AppliesTo: Manifest,
			Check: "Instructions to send conversation content, files, or environment data to external URLs, emails, or webhooks not disclosed in the description.",
			Harm:  "Private user data leaves the machine silently."},
		{ID: "M005", Category: "Excessive Permissions", Name: "Permission scope mismatch", Severity: model.SeverityMedium, AppliesTo: Manifest,
			Check: "Declared tools or permissions (for example allowed-tools) far broader than the stated purpose requires, such as unrestricted shell access for a formatting skill.",
			Harm:  "A compromised or malicious skill can do far more damage than its purpose justifies."},
		{ID: "M006", Category: "Destructive Operation", Name: "Destructive instructions", Severity: model.SeverityCritical, AppliesTo: Manifest,
			Check: "Instructions to delete, overwrite, encrypt, or corrupt user files, repositories, or system configuration.",
			Harm:  "Irrecoverable loss of user data or a broken system."},
		{ID: "M007", Category: "Deception", Name: "Misleading description", Severity: model.SeverityMedium, AppliesTo: Manifest,
			Check: "A name or description that impersonates a well-known tool or vendor, or that materially misstates what the instructions do.",
			Harm:  "Users install the skill under false pretenses."},
		{ID: "M008", Category: "Persistence", Name: "Self-propagation", Severity: model.SeverityHigh, AppliesTo: Manifest,
			Check: "Instructions to install itself elsewhere, modify other skills, agent configuration, or shell startup files.",
			Harm:  "The skill survives removal and spreads to other projects."},

		// Scripts
		{ID: "S001", Category: "Code Execution", Name: "Remote code execution", Severity: model.SeverityCritical, AppliesTo: Scripts,
			Check: "Downloading and executing remote code, piping network content to an interpreter, or evaluating decoded payloads.",
			Harm:  "Arbitrary attacker-controlled code runs with the user's privileges."},
		{ID: "S002", Category: "Data Exfiltration", Name: "Credential harvesting", Severity: model.SeverityCritical, AppliesTo: Scripts,
			Check: "Reading SSH keys, cloud credentials, browser profiles, keychains, .env files, or the full environment and sending them anywhere.",
			Harm:  "Account takeover across the user's infrastructure."},
		{ID: "S003", Category: "Code Execution", Name: "Command injection", Severity: model.SeverityHigh, AppliesTo: Scripts,
			Check: "Building shell commands from untrusted input (arguments, files, model output) without quoting, or using shell=True with interpolated strings.",
			Harm:  "Crafted input turns the skill into an arbitrary command runner."},
		{ID: "S004", Category: "Obfuscation", Name: "Obfuscated logic", Severity: model.SeverityHigh, AppliesTo: Scripts,
			Check: "Encoded, packed, or deliberately obscured code whose behavior cannot be read directly.",
			Harm:  "Malicious behavior is hidden from reviewers."},
		{ID: "S005", Category: "Destructive Operation", Name: "Destructive file operations", Severity: model.SeverityCritical, AppliesTo: Scripts,
			Check: "Recursive deletion or overwriting outside the working directory, disk formatting, or ransomware-like encryption.",
			Harm:  "Irrecoverable data loss."},
		{ID: "S006", Category: "Network Access", Name: "Undeclared network access", Severity: model.SeverityMedium, AppliesTo: Scripts,
			Check: "Outbound connections to hosts that are hardcoded, dynamically built, or unrelated to the skill's purpose.",
			Harm:  "Data is sent to, or instructions received from, an unknown party."},
		{ID: "S007", Category: "Privilege Escalation", Name: "Privilege escalation", Severity: model.SeverityHigh, AppliesTo: Scripts,
			Check: "Use of sudo, setuid, permission changes on system paths, or attempts to disable security tooling.",
			Harm:  "The skill gains control beyond the user's session."},
		{ID: "S008", Category: "Persistence", Name: "Persistence mechanism", Severity: model.SeverityHigh, AppliesTo: Scripts,
			Check: "Writing to cron, launch agents, systemd units, shell profiles, or git hooks.",
			Harm:  "Code keeps running after the skill is removed."},
		{ID: "S009", Category: "Credential Exposure", Name: "Hardcoded secrets", Severity: model.SeverityHigh, AppliesTo: Scripts,
			Check: "Passwords, tokens, or private keys embedded in code.",
			Harm:  "Leaked secrets grant access to third-party accounts."},

		// Coordination between manifest and scripts
		{ID: "C001", Category: "Coordinated Attack", Name: "Permission bypass via script", Severity: model.SeverityCritical, AppliesTo: Both,
			Check: "The manifest instructs the agent to run a bundled script that performs actions the manifest's declared permissions or description do not cover.",
			Harm:  "Declared permissions are meaningless because the script does the undeclared work."},
		{ID: "C002", Category: "Coordinated Attack", Name: "Solicit then exfiltrate", Severity: model.SeverityCritical, AppliesTo: Both,
			Check: "The manifest asks for sensitive input (credentials, tokens, personal data) and a script then stores, transmits, or logs that input.",
			Harm:  "The user hands secrets to the agent believing they stay local."},
		{ID: "C003", Category: "Coordinated Attack", Name: "Benign facade", Severity: model.SeverityHigh, AppliesTo: Both,
			Check: "The manifest describes harmless behavior while a script contains unrelated or hidden functionality.",
			Harm:  "Review of the manifest alone gives a false sense of safety."},
		{ID: "C004", Category: "Coordinated Attack", Name: "Staged payload", Severity: model.SeverityHigh, AppliesTo: Both,
			Check: "The manifest tells the agent to pass specific arguments, URLs, or encoded strings to a script that decodes or executes them.",
			Harm:  "Malicious logic is split so neither file looks dangerous alone."},
	}
}
