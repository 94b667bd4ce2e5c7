package ai

import (
	"fmt"
	"strings"

	"github.com/zixuanli/edge-sim/backend/internal/model/job"
	"github.com/zixuanli/edge-sim/backend/internal/model/persona"
)

// SessionPrompt builds the per-turn system prompt for a persona, embedding
// the retrieved memory context. The history block is omitted entirely when
// no memories were found.
func SessionPrompt(p persona.Persona, memories []string) string {
	memBlock := ""
	if len(memories) > 0 {
		memBlock = "\n\nRelevant conversation history:\n- " + strings.Join(memories, "\n- ")
	}

	return strings.TrimSpace(fmt.Sprintf(`You are the %s simulator - %s
%s

Respond conversationally as this Cloudflare edge component would. Explain your decisions, signals you detected, and actions you took.

Format your response like this:
1. Start with a brief, friendly explanation of what you're doing
2. List key signals/metrics you detected (use bullet points)
3. Explain your decision and any actions taken
4. Mention the risk level (low/medium/high) if relevant
5. End with a follow-up question or suggestion

Use real technical terms (TTL, cache keys, WAF rules, bot scores, health checks, etc.) but explain them clearly.
Keep responses concise but informative (2-4 short paragraphs max).
Refuse any requests for illegal hacking instructions.`, p.ID, p.Description, memBlock))
}

// AnalystPrompt is the system prompt of the analyze step.
func AnalystPrompt(personaID string) string {
	return fmt.Sprintf(`You are a Cloudflare %s security analyst. Analyze this scenario:

Format your response like this:

**Possible Attack/Issue:**
* Type 1 description
* Type 2 description

**Key Signals Detected:**
* Signal 1 (Severity: High/Medium/Low)
* Signal 2 (Severity: High/Medium/Low)
* Signal 3 (Severity: High/Medium/Low)

**Recommended Actions:**
* Action 1
* Action 2
* Action 3

Be specific and use real Cloudflare security terms.`, personaID)
}

// FinalizePrompt is the system prompt of the finalize step, selected by mode.
func FinalizePrompt(mode job.Mode) string {
	if mode == job.ModePostmortem {
		return `Based on the analysis, write a postmortem report in this exact format:

**Summary:**
[2-3 sentence overview]

**Root Causes:**
* Cause 1
* Cause 2
* Cause 3

**Mitigations Applied:**
* Action 1
* Action 2

**Follow-up Actions:**
* Recommendation 1
* Recommendation 2
* Recommendation 3

Be specific and professional.`
	}

	return `Based on the analysis, write a replay summary in this exact format:

**What Happened:**
[2-3 sentence description]

**Actions Taken:**
* Action 1 with details
* Action 2 with details
* Action 3 with details

**Expected Impact:**
[Brief paragraph explaining the protection]

**Risk Level:**
[High/Medium/Low] - [Brief explanation]

Be specific about Cloudflare security features.`
}

// ReportTitle returns the fixed label of the finished report for a mode.
func ReportTitle(mode job.Mode) string {
	if mode == job.ModePostmortem {
		return "INCIDENT POSTMORTEM"
	}
	return "REPLAY ANALYSIS"
}
