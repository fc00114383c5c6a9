package articles

import (
	"context"
	"errors"
	"testing"

	"millwork/internal/config"
)

func configWithPersona(id, agent, prompt string) config.Articles {
	return config.Articles{
		Personas: map[string]config.Persona{
			id: {Agent: agent, SystemPrompt: prompt},
		},
	}
}

type fakeAgent struct{ stage string }

func (a *fakeAgent) Type() string { return a.stage }

func (a *fakeAgent) Run(context.Context, Persona, StageInput) (StageOutput, error) {
	return StageOutput{}, nil
}

func TestAgentRegistryOrderAndSkip(t *testing.T) {
	registry := NewAgentRegistry()
	// Register out of order; pipeline order must still hold.
	for _, stage := range []string{AgentQA, AgentResearch, AgentSEO, AgentWriter} {
		if err := registry.Register(&fakeAgent{stage: stage}); err != nil {
			t.Fatalf("Register %s: %v", stage, err)
		}
	}

	agents := registry.PipelineAgents(nil)
	if len(agents) != 4 {
		t.Fatalf("expected 4 agents, got %d", len(agents))
	}
	want := []string{AgentResearch, AgentWriter, AgentSEO, AgentQA}
	for i, agent := range agents {
		if agent.Type() != want[i] {
			t.Fatalf("position %d: got %s, want %s", i, agent.Type(), want[i])
		}
	}

	skipped := registry.PipelineAgents(map[string]bool{AgentSEO: true})
	if len(skipped) != 3 {
		t.Fatalf("expected seo skipped, got %d agents", len(skipped))
	}
	for _, agent := range skipped {
		if agent.Type() == AgentSEO {
			t.Fatal("seo agent not skipped")
		}
	}
}

func TestAgentRegistryDuplicateAndMissing(t *testing.T) {
	registry := NewAgentRegistry()
	if err := registry.Register(&fakeAgent{stage: AgentResearch}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := registry.Register(&fakeAgent{stage: AgentResearch}); !errors.Is(err, ErrDuplicateAgent) {
		t.Fatalf("expected ErrDuplicateAgent, got %v", err)
	}
	if err := registry.Register(&fakeAgent{stage: "publisher"}); err == nil {
		t.Fatal("expected rejection of unknown stage")
	}

	missing := registry.MissingStages()
	want := []string{AgentWriter, AgentSEO, AgentQA}
	if len(missing) != len(want) {
		t.Fatalf("expected %v missing, got %v", want, missing)
	}
	for i := range want {
		if missing[i] != want[i] {
			t.Fatalf("expected %v missing, got %v", want, missing)
		}
	}
}

func TestPersonaSetResolution(t *testing.T) {
	personas, err := NewPersonaSet(configWithPersona("writer-casual", AgentWriter, "Write casually."))
	if err != nil {
		t.Fatalf("NewPersonaSet: %v", err)
	}

	// Default resolution.
	persona, err := personas.Resolve(AgentQA, "")
	if err != nil {
		t.Fatalf("Resolve default: %v", err)
	}
	if persona.ID != "qa-default" {
		t.Fatalf("expected qa-default, got %s", persona.ID)
	}

	// Override resolution.
	persona, err = personas.Resolve(AgentWriter, "writer-casual")
	if err != nil {
		t.Fatalf("Resolve override: %v", err)
	}
	if persona.SystemPrompt != "Write casually." {
		t.Fatalf("unexpected prompt: %q", persona.SystemPrompt)
	}

	// Unknown override falls back to the default.
	persona, err = personas.Resolve(AgentWriter, "ghost")
	if err != nil {
		t.Fatalf("Resolve unknown override: %v", err)
	}
	if persona.ID != "writer-default" {
		t.Fatalf("expected fallback to writer-default, got %s", persona.ID)
	}
	// Override bound to another agent falls back too.
	persona, err = personas.Resolve(AgentQA, "writer-casual")
	if err != nil {
		t.Fatalf("Resolve mismatched override: %v", err)
	}
	if persona.ID != "qa-default" {
		t.Fatalf("expected fallback to qa-default, got %s", persona.ID)
	}
}

func TestPersonaSetRejectsUnknownAgent(t *testing.T) {
	if _, err := NewPersonaSet(configWithPersona("bad", "publisher", "x")); err == nil {
		t.Fatal("expected rejection of persona with unknown agent")
	}
}
