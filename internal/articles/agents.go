package articles

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"millwork/internal/services"
	"millwork/internal/services/llm"
	"millwork/internal/services/serp"
	"millwork/internal/textutil"
)

// ChatClient is the slice of the LLM client the agents need.
type ChatClient interface {
	CompleteJSON(ctx context.Context, req llm.Request, target any) (llm.Usage, error)
}

// KeywordSearcher is the slice of the SERP client the research agent needs.
type KeywordSearcher interface {
	Configured() bool
	Search(ctx context.Context, keyword string) (*serp.Results, error)
}

// ResearchAgent produces the research brief, enriched with SERP data when a
// provider is configured.
type ResearchAgent struct {
	llm  ChatClient
	serp KeywordSearcher
}

// NewResearchAgent constructs the research stage. searcher may be nil.
func NewResearchAgent(chat ChatClient, searcher KeywordSearcher) *ResearchAgent {
	return &ResearchAgent{llm: chat, serp: searcher}
}

// Type implements Agent.
func (a *ResearchAgent) Type() string { return AgentResearch }

// Run implements Agent.
func (a *ResearchAgent) Run(ctx context.Context, persona Persona, input StageInput) (StageOutput, error) {
	var out StageOutput

	var serpResults *serp.Results
	if a.serp != nil && a.serp.Configured() {
		results, err := a.serp.Search(ctx, input.Keyword)
		if err != nil {
			// SERP enrichment is optional; the brief is written without it.
			out.Logs = append(out.Logs, "serp lookup failed: "+err.Error())
		} else {
			serpResults = results
			out.Logs = append(out.Logs, fmt.Sprintf("serp: volume=%d, %d top results",
				results.SearchVolume, len(results.TopResults)))
		}
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Target keyword: %s\n", input.Keyword)
	if serpResults != nil {
		fmt.Fprintf(&prompt, "Monthly search volume: %d\nCompetition: %.2f\n",
			serpResults.SearchVolume, serpResults.Competition)
		if len(serpResults.RelatedQueries) > 0 {
			fmt.Fprintf(&prompt, "Related queries: %s\n", strings.Join(serpResults.RelatedQueries, "; "))
		}
		for _, result := range serpResults.TopResults {
			fmt.Fprintf(&prompt, "Competitor: %s: %s\n", result.Title, result.Snippet)
		}
	} else {
		prompt.WriteString("No search data available; rely on general knowledge of the topic.\n")
	}

	var brief ResearchBrief
	usage, err := a.llm.CompleteJSON(ctx, requestFor(persona, prompt.String()), &brief)
	out.Usage = usage
	if err != nil {
		return out, err
	}
	brief.Serp = serpResults
	if serpResults != nil {
		brief.RelatedQueries = serpResults.RelatedQueries
	}
	out.Output = &brief
	return out, nil
}

// WriterAgent drafts or revises the article.
type WriterAgent struct {
	llm ChatClient
}

// NewWriterAgent constructs the writer stage.
func NewWriterAgent(chat ChatClient) *WriterAgent {
	return &WriterAgent{llm: chat}
}

// Type implements Agent.
func (a *WriterAgent) Type() string { return AgentWriter }

// Run implements Agent.
func (a *WriterAgent) Run(ctx context.Context, persona Persona, input StageInput) (StageOutput, error) {
	var out StageOutput
	if input.Research == nil {
		return out, services.Wrap(services.ErrValidation, "articles", "writer", "research brief required", nil)
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Target keyword: %s\nTarget word count: %d\nIteration: %d of %d\n\n",
		input.Keyword, input.TargetWordCount, input.Iteration, input.MaxIterations)
	writeJSONSection(&prompt, "Research brief", input.Research)
	if input.QAFeedback != "" && input.Draft != nil {
		writeJSONSection(&prompt, "Previous draft", input.Draft)
		fmt.Fprintf(&prompt, "Reviewer feedback to address:\n%s\n", input.QAFeedback)
	}

	var draft Draft
	usage, err := a.llm.CompleteJSON(ctx, requestFor(persona, prompt.String()), &draft)
	out.Usage = usage
	if err != nil {
		return out, err
	}
	if strings.TrimSpace(draft.Markdown) == "" {
		return out, services.Wrap(services.ErrExternalService, "articles", "writer", "model returned empty draft", nil)
	}
	if draft.Title == "" {
		draft.Title = textutil.Headline(input.Keyword)
	}
	if draft.WordCount == 0 {
		draft.WordCount = textutil.WordCount(draft.Markdown)
	}
	out.Output = &draft
	out.Logs = append(out.Logs, fmt.Sprintf("draft %q, %d words", draft.Title, draft.WordCount))
	return out, nil
}

// SEOAgent produces metadata and optimization recommendations for a draft.
type SEOAgent struct {
	llm ChatClient
}

// NewSEOAgent constructs the seo stage.
func NewSEOAgent(chat ChatClient) *SEOAgent {
	return &SEOAgent{llm: chat}
}

// Type implements Agent.
func (a *SEOAgent) Type() string { return AgentSEO }

// Run implements Agent.
func (a *SEOAgent) Run(ctx context.Context, persona Persona, input StageInput) (StageOutput, error) {
	var out StageOutput
	if input.Draft == nil {
		return out, services.Wrap(services.ErrValidation, "articles", "seo", "draft required", nil)
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Target keyword: %s\n\n", input.Keyword)
	writeJSONSection(&prompt, "Article", input.Draft)
	writeJSONSection(&prompt, "Research brief", input.Research)

	var report SEOReport
	usage, err := a.llm.CompleteJSON(ctx, requestFor(persona, prompt.String()), &report)
	out.Usage = usage
	if err != nil {
		return out, err
	}
	if report.Slug == "" {
		report.Slug = textutil.Slugify(input.Draft.Title)
	}
	out.Output = &report
	return out, nil
}

// QAAgent reviews an iteration and decides whether the loop stops.
type QAAgent struct {
	llm ChatClient
}

// NewQAAgent constructs the qa stage.
func NewQAAgent(chat ChatClient) *QAAgent {
	return &QAAgent{llm: chat}
}

// Type implements Agent.
func (a *QAAgent) Type() string { return AgentQA }

// Run implements Agent.
func (a *QAAgent) Run(ctx context.Context, persona Persona, input StageInput) (StageOutput, error) {
	var out StageOutput
	if input.Draft == nil {
		return out, services.Wrap(services.ErrValidation, "articles", "qa", "draft required", nil)
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Target keyword: %s\nTarget word count: %d\nIteration: %d of %d\n\n",
		input.Keyword, input.TargetWordCount, input.Iteration, input.MaxIterations)
	writeJSONSection(&prompt, "Article", input.Draft)
	writeJSONSection(&prompt, "SEO report", input.SEO)

	var report QAReport
	usage, err := a.llm.CompleteJSON(ctx, requestFor(persona, prompt.String()), &report)
	out.Usage = usage
	if err != nil {
		return out, err
	}
	out.Output = &report
	out.Logs = append(out.Logs, fmt.Sprintf("qa verdict: passed=%t score=%d", report.Passed, report.Score))
	return out, nil
}

func requestFor(persona Persona, userPrompt string) llm.Request {
	return llm.Request{
		SystemPrompt: persona.SystemPrompt,
		UserPrompt:   userPrompt,
		Model:        persona.Model,
		Temperature:  persona.Temperature,
		MaxTokens:    persona.MaxTokens,
	}
}

func writeJSONSection(prompt *strings.Builder, label string, value any) {
	if value == nil {
		return
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return
	}
	fmt.Fprintf(prompt, "%s:\n%s\n\n", label, encoded)
}
