package articles

import (
	"millwork/internal/services/llm"
	"millwork/internal/services/serp"
)

// JobType is the queue job type handled by the article pipeline.
const JobType = "write_article"

// Agent type names, in pipeline order.
const (
	AgentResearch = "research"
	AgentWriter   = "writer"
	AgentSEO      = "seo"
	AgentQA       = "qa"
)

// Settings tune one article job. Zero values fall back to configuration.
type Settings struct {
	TargetWordCount int `json:"target_word_count,omitempty"`
	MaxIterations   int `json:"max_iterations,omitempty"`
	// Personas maps agent type to a persona id overriding the default.
	Personas map[string]string `json:"personas,omitempty"`
}

// Payload is the job payload for a write_article job.
type Payload struct {
	Keyword  string   `json:"keyword"`
	Settings Settings `json:"settings,omitempty"`
}

// ResearchBrief is the research agent's output: the raw material every later
// stage builds on.
type ResearchBrief struct {
	Summary        string        `json:"summary"`
	Audience       string        `json:"audience"`
	Outline        []string      `json:"outline"`
	KeyPoints      []string      `json:"key_points"`
	RelatedQueries []string      `json:"related_queries,omitempty"`
	Serp           *serp.Results `json:"serp,omitempty"`
}

// Draft is the writer agent's output.
type Draft struct {
	Title     string `json:"title"`
	Markdown  string `json:"markdown"`
	WordCount int    `json:"word_count"`
}

// SEOReport is the seo agent's output.
type SEOReport struct {
	MetaTitle       string   `json:"meta_title"`
	MetaDescription string   `json:"meta_description"`
	Slug            string   `json:"slug"`
	Keywords        []string `json:"keywords"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// QAReport is the qa agent's verdict on one iteration.
type QAReport struct {
	Passed   bool   `json:"passed"`
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

// FinalOutput aggregates the pipeline result stored on the completed job.
// Passed false means QA never signed off within the iteration budget; the job
// still completes with this best-effort output.
type FinalOutput struct {
	Keyword    string         `json:"keyword"`
	Research   *ResearchBrief `json:"research"`
	Article    *Draft         `json:"article"`
	SEO        *SEOReport     `json:"seo"`
	QA         *QAReport      `json:"qa"`
	Iterations int            `json:"iterations"`
	Passed     bool           `json:"passed"`
	PageID     string         `json:"page_id,omitempty"`
}

// StageInput carries everything an agent may need for one invocation. Agents
// read only the fields relevant to their stage.
type StageInput struct {
	Keyword         string
	TargetWordCount int
	Iteration       int
	MaxIterations   int
	Research        *ResearchBrief
	Draft           *Draft
	SEO             *SEOReport
	QAFeedback      string
}

// StageOutput is one agent invocation's result. Usage is populated even when
// the invocation errored, so the orchestrator can account for tokens burned by
// failed calls.
type StageOutput struct {
	Output any
	Usage  llm.Usage
	Logs   []string
}
