package articles

import (
	"fmt"
	"strings"

	"millwork/internal/config"
	"millwork/internal/services"
)

// Persona binds a system prompt and model parameters to an agent invocation.
type Persona struct {
	ID           string
	Agent        string
	SystemPrompt string
	Model        string
	Temperature  *float64
	MaxTokens    int
}

// PersonaSet resolves persona ids to personas. Built-in defaults exist for
// every agent type; configuration entries add override personas or replace a
// default outright by reusing its id.
type PersonaSet struct {
	personas map[string]Persona
	defaults map[string]string
}

func defaultPersonas() []Persona {
	return []Persona{
		{
			ID:    "research-default",
			Agent: AgentResearch,
			SystemPrompt: "You are a content research specialist for a local contractor directory. " +
				"Given a target keyword, produce a research brief as JSON with fields: " +
				`"summary", "audience", "outline" (array of section headings), ` +
				`"key_points" (array). Ground the brief in the search data provided. ` +
				"Respond with JSON only.",
		},
		{
			ID:    "writer-default",
			Agent: AgentWriter,
			SystemPrompt: "You are a professional content writer for a local contractor directory. " +
				"Write an informative, plainspoken article from the research brief. " +
				`Respond with JSON only: {"title", "markdown", "word_count"}. ` +
				"When revision feedback is provided, revise the previous draft rather than starting over.",
		},
		{
			ID:    "seo-default",
			Agent: AgentSEO,
			SystemPrompt: "You are an SEO editor. Given an article and its research brief, produce " +
				`JSON only: {"meta_title", "meta_description", "slug", "keywords" (array), ` +
				`"recommendations" (array)}. Keep the meta title under 60 characters.`,
		},
		{
			ID:    "qa-default",
			Agent: AgentQA,
			SystemPrompt: "You are a strict quality reviewer for contractor directory articles. " +
				"Evaluate accuracy, completeness against the outline, and length. " +
				`Respond with JSON only: {"passed" (bool), "score" (0-100), "feedback"}. ` +
				"Fail any article substantially short of the target word count.",
		},
	}
}

// NewPersonaSet merges the built-in defaults with configured personas.
// A configured persona must name a known agent type.
func NewPersonaSet(cfg config.Articles) (*PersonaSet, error) {
	set := &PersonaSet{
		personas: make(map[string]Persona),
		defaults: make(map[string]string),
	}
	for _, persona := range defaultPersonas() {
		set.personas[persona.ID] = persona
		set.defaults[persona.Agent] = persona.ID
	}

	for id, entry := range cfg.Personas {
		agent := strings.TrimSpace(entry.Agent)
		if _, known := set.defaults[agent]; !known {
			return nil, services.Wrap(services.ErrConfiguration, "articles", "personas",
				fmt.Sprintf("persona %q names unknown agent %q", id, entry.Agent), nil)
		}
		persona := Persona{
			ID:           id,
			Agent:        agent,
			SystemPrompt: strings.TrimSpace(entry.SystemPrompt),
			Model:        strings.TrimSpace(entry.Model),
			MaxTokens:    entry.MaxTokens,
		}
		if persona.SystemPrompt == "" {
			persona.SystemPrompt = set.personas[set.defaults[agent]].SystemPrompt
		}
		if entry.Temperature != 0 {
			temp := entry.Temperature
			persona.Temperature = &temp
		}
		set.personas[id] = persona
	}
	return set, nil
}

// Resolve returns the persona for an agent type. A job-level override id is
// used when it names a persona bound to this agent; an override that does not
// resolve falls back to the agent's default persona. Only a missing default
// is an error, which the orchestrator turns into a stage failure.
func (s *PersonaSet) Resolve(agentType, overrideID string) (Persona, error) {
	if overrideID != "" {
		if persona, ok := s.personas[overrideID]; ok && persona.Agent == agentType {
			return persona, nil
		}
	}
	defaultID, ok := s.defaults[agentType]
	if !ok {
		return Persona{}, services.Wrap(services.ErrConfiguration, "articles", "personas",
			fmt.Sprintf("no persona resolves for agent %q", agentType), nil)
	}
	return s.personas[defaultID], nil
}
