package ai

import (
	"strings"
	"testing"

	"github.com/zixuanli/edge-sim/backend/internal/model/job"
	"github.com/zixuanli/edge-sim/backend/internal/model/persona"
)

func wafPersona(t *testing.T) persona.Persona {
	t.Helper()
	store := persona.NewMemoryStore(persona.Seed())
	p, ok := store.FindByID(persona.WAF)
	if !ok {
		t.Fatal("WAF persona missing from seed")
	}
	return p
}

func TestSessionPromptWithMemories(t *testing.T) {
	prompt := SessionPrompt(wafPersona(t), []string{"[USER] first message", "[ASSISTANT] first reply"})

	if !strings.Contains(prompt, "Relevant conversation history:") {
		t.Fatal("expected memory header in prompt")
	}
	if !strings.Contains(prompt, "- [USER] first message") {
		t.Fatal("expected memory line in prompt")
	}
	if !strings.Contains(prompt, "WAF simulator") {
		t.Fatal("expected persona identity in prompt")
	}
}

func TestSessionPromptWithoutMemories(t *testing.T) {
	prompt := SessionPrompt(wafPersona(t), nil)

	if strings.Contains(prompt, "Relevant conversation history:") {
		t.Fatal("memory header must be omitted when there are no memories")
	}
}

func TestFinalizePromptByMode(t *testing.T) {
	if !strings.Contains(FinalizePrompt(job.ModePostmortem), "postmortem report") {
		t.Fatal("expected postmortem template")
	}
	if !strings.Contains(FinalizePrompt(job.ModeReplay), "replay summary") {
		t.Fatal("expected replay template")
	}
}

func TestReportTitle(t *testing.T) {
	if got := ReportTitle(job.ModePostmortem); got != "INCIDENT POSTMORTEM" {
		t.Fatalf("unexpected postmortem title: %q", got)
	}
	if got := ReportTitle(job.ModeReplay); got != "REPLAY ANALYSIS" {
		t.Fatalf("unexpected replay title: %q", got)
	}
}
