package articles

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// pipelineOrder is the fixed stage order for the article pipeline.
var pipelineOrder = []string{AgentResearch, AgentWriter, AgentSEO, AgentQA}

// PipelineOrder returns the declared stage order.
func PipelineOrder() []string {
	cp := make([]string, len(pipelineOrder))
	copy(cp, pipelineOrder)
	return cp
}

// Agent implements one pipeline stage.
type Agent interface {
	Type() string
	Run(ctx context.Context, persona Persona, input StageInput) (StageOutput, error)
}

// ErrDuplicateAgent indicates two agents were registered for the same stage.
var ErrDuplicateAgent = errors.New("agent already registered for stage")

// AgentRegistry maps stage names to agent implementations. Built once at
// process start; tests construct fresh instances.
type AgentRegistry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewAgentRegistry returns an empty registry.
func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{agents: make(map[string]Agent)}
}

// Register binds an agent to its stage.
func (r *AgentRegistry) Register(agent Agent) error {
	if agent == nil {
		return errors.New("nil agent")
	}
	stage := agent.Type()
	if !knownStage(stage) {
		return fmt.Errorf("unknown pipeline stage %q", stage)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[stage]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAgent, stage)
	}
	r.agents[stage] = agent
	return nil
}

// Get looks up the agent for a stage.
func (r *AgentRegistry) Get(stage string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[stage]
	return agent, ok
}

// PipelineAgents returns registered agents in pipeline order, skipping the
// named stages.
func (r *AgentRegistry) PipelineAgents(skip map[string]bool) []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agents := make([]Agent, 0, len(pipelineOrder))
	for _, stage := range pipelineOrder {
		if skip[stage] {
			continue
		}
		if agent, ok := r.agents[stage]; ok {
			agents = append(agents, agent)
		}
	}
	return agents
}

// MissingStages reports pipeline stages with no registered agent. Used as a
// startup check before the daemon accepts article jobs.
func (r *AgentRegistry) MissingStages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var missing []string
	for _, stage := range pipelineOrder {
		if _, ok := r.agents[stage]; !ok {
			missing = append(missing, stage)
		}
	}
	return missing
}

func knownStage(stage string) bool {
	for _, known := range pipelineOrder {
		if known == stage {
			return true
		}
	}
	return false
}
