package articles

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"millwork/internal/config"
	"millwork/internal/dispatch"
	"millwork/internal/jobs"
	"millwork/internal/logging"
	"millwork/internal/services"
	"millwork/internal/services/blobstore"
	"millwork/internal/textutil"
)

// Uploader is the slice of the blobstore client auto-publish needs.
type Uploader interface {
	Configured() bool
	Upload(ctx context.Context, key, contentType string, data []byte) (*blobstore.Object, error)
}

// Orchestrator drives the article pipeline for one write_article job:
// research once, then writer/seo/qa loops until QA passes or iterations run
// out. It implements dispatch.Executor.
type Orchestrator struct {
	store    *jobs.Store
	registry *AgentRegistry
	personas *PersonaSet
	cfg      config.Articles
	uploader Uploader
	logger   *slog.Logger
}

// NewOrchestrator constructs the pipeline executor. uploader may be nil when
// auto-publish is disabled.
func NewOrchestrator(store *jobs.Store, registry *AgentRegistry, personas *PersonaSet, cfg config.Articles, uploader Uploader, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		store:    store,
		registry: registry,
		personas: personas,
		cfg:      cfg,
		uploader: uploader,
		logger:   logging.WithComponent(logger, "articles"),
	}
}

// Execute implements dispatch.Executor. A retried attempt re-runs the whole
// pipeline from research at iteration 1; the per-article telemetry row is
// reset when the attempt starts. Token usage accumulated before a stage
// failure stays recorded on the article.
func (o *Orchestrator) Execute(ctx context.Context, job *jobs.Job, report dispatch.ProgressFunc) (dispatch.Outcome, error) {
	var payload Payload
	if len(job.Payload) == 0 {
		return dispatch.Outcome{}, services.Wrap(services.ErrValidation, "articles", "execute", "payload required", nil)
	}
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return dispatch.Outcome{}, services.Wrap(services.ErrValidation, "articles", "execute", "decode payload", err)
	}
	payload.Keyword = strings.TrimSpace(payload.Keyword)
	if payload.Keyword == "" {
		return dispatch.Outcome{}, services.Wrap(services.ErrValidation, "articles", "execute", "keyword required", nil)
	}

	maxIterations := payload.Settings.MaxIterations
	if maxIterations <= 0 {
		maxIterations = o.cfg.MaxIterations
	}
	if maxIterations <= 0 {
		maxIterations = 3
	}
	targetWords := payload.Settings.TargetWordCount
	if targetWords <= 0 {
		targetWords = o.cfg.TargetWordCount
	}

	log := o.logger.With(
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String("keyword", payload.Keyword),
	)

	settingsJSON, _ := json.Marshal(payload.Settings)
	if err := o.store.InitArticleState(ctx, job.ID, payload.Keyword, settingsJSON, maxIterations); err != nil {
		return dispatch.Outcome{}, fmt.Errorf("init article state: %w", err)
	}

	totalStages := 1 + 3*maxIterations
	completedStages := 0
	report(jobs.ProgressUpdate{TotalItems: &totalStages, ProcessedItems: &completedStages})
	advance := func() {
		completedStages++
		report(jobs.ProgressUpdate{ProcessedItems: &completedStages})
	}

	input := StageInput{
		Keyword:         payload.Keyword,
		TargetWordCount: targetWords,
		MaxIterations:   maxIterations,
		Iteration:       1,
	}

	// Research runs exactly once; any failure aborts the attempt.
	researchOut, err := o.runStage(ctx, job.ID, AgentResearch, payload.Settings.Personas, input)
	if err != nil {
		return dispatch.Outcome{}, err
	}
	input.Research = researchOut.(*ResearchBrief)
	advance()

	final := FinalOutput{
		Keyword:  payload.Keyword,
		Research: input.Research,
	}

	for iteration := 1; iteration <= maxIterations; iteration++ {
		input.Iteration = iteration

		draftOut, err := o.runStage(ctx, job.ID, AgentWriter, payload.Settings.Personas, input)
		if err != nil {
			return dispatch.Outcome{}, err
		}
		input.Draft = draftOut.(*Draft)
		advance()

		seoOut, err := o.runStage(ctx, job.ID, AgentSEO, payload.Settings.Personas, input)
		if err != nil {
			return dispatch.Outcome{}, err
		}
		input.SEO = seoOut.(*SEOReport)
		advance()

		qaOut, err := o.runStage(ctx, job.ID, AgentQA, payload.Settings.Personas, input)
		if err != nil {
			return dispatch.Outcome{}, err
		}
		verdict := qaOut.(*QAReport)
		advance()

		final.Article = input.Draft
		final.SEO = input.SEO
		final.QA = verdict
		final.Iterations = iteration

		if verdict.Passed {
			final.Passed = true
			break
		}
		if iteration < maxIterations {
			// Carry the reviewer's feedback and current draft into the next
			// writer call.
			input.QAFeedback = verdict.Feedback
			log.Info("qa rejected draft, revising",
				logging.Int(logging.FieldIteration, iteration),
				logging.Int("score", verdict.Score))
			continue
		}
		// Iterations exhausted with QA still failing: the job completes with
		// the best-effort output, not a failure.
		log.Warn("qa never passed, completing with best-effort output",
			logging.Int("score", verdict.Score))
	}

	// QA can pass before the iteration budget is spent; close the progress
	// bar at the number of stages actually run.
	if completedStages < totalStages {
		report(jobs.ProgressUpdate{TotalItems: &completedStages, ProcessedItems: &completedStages})
	}

	if final.Passed {
		final.PageID = o.publish(ctx, job.ID, &final, log)
	}

	finalJSON, err := json.Marshal(&final)
	if err != nil {
		return dispatch.Outcome{}, fmt.Errorf("encode final output: %w", err)
	}
	if err := o.store.FinishArticle(ctx, job.ID, finalJSON, final.PageID); err != nil {
		return dispatch.Outcome{}, fmt.Errorf("finish article: %w", err)
	}
	log.Info("article pipeline finished",
		logging.Int("iterations", final.Iterations),
		logging.Bool("passed", final.Passed))
	return dispatch.Outcome{Result: &final}, nil
}

type stageInputRecord struct {
	Keyword         string `json:"keyword"`
	Iteration       int    `json:"iteration"`
	TargetWordCount int    `json:"target_word_count,omitempty"`
	QAFeedback      string `json:"qa_feedback,omitempty"`
}

// runStage wraps one agent invocation in a job step: create pending, start,
// invoke, finish terminal. Tokens from failed calls still accumulate on the
// article.
func (o *Orchestrator) runStage(ctx context.Context, jobID int64, stage string, overrides map[string]string, input StageInput) (any, error) {
	persona, personaErr := o.personas.Resolve(stage, overrides[stage])

	inputJSON, _ := json.Marshal(stageInputRecord{
		Keyword:         input.Keyword,
		Iteration:       input.Iteration,
		TargetWordCount: input.TargetWordCount,
		QAFeedback:      input.QAFeedback,
	})
	step, err := o.store.CreateStep(ctx, jobID, stage, persona.ID, input.Iteration, inputJSON)
	if err != nil {
		return nil, fmt.Errorf("create step: %w", err)
	}
	if err := o.store.StartStep(ctx, step.ID); err != nil {
		return nil, fmt.Errorf("start step: %w", err)
	}
	if err := o.store.SetArticleProgress(ctx, jobID, stage, input.Iteration); err != nil {
		o.logger.Warn("article progress update dropped", logging.Error(err))
	}
	o.logger.Debug("stage started",
		logging.Int64(logging.FieldJobID, jobID),
		logging.String(logging.FieldAgent, stage),
		logging.Int(logging.FieldIteration, input.Iteration))

	if personaErr != nil {
		o.finishFailed(ctx, step.ID, personaErr)
		return nil, personaErr
	}
	agent, ok := o.registry.Get(stage)
	if !ok {
		err := services.Wrap(services.ErrConfiguration, "articles", stage, "no agent registered", nil)
		o.finishFailed(ctx, step.ID, err)
		return nil, err
	}

	out, runErr := agent.Run(ctx, persona, input)
	for _, line := range out.Logs {
		if err := o.store.AppendStepLog(ctx, step.ID, line); err != nil {
			o.logger.Warn("step log dropped", logging.Error(err))
		}
	}
	if out.Usage.TotalTokens > 0 {
		if err := o.store.AddArticleTokens(ctx, jobID, out.Usage.TotalTokens); err != nil {
			o.logger.Warn("token accounting dropped", logging.Error(err))
		}
	}

	if runErr != nil {
		o.finishStep(ctx, step.ID, jobs.StepResult{
			Status:       jobs.StepFailed,
			InputTokens:  out.Usage.InputTokens,
			OutputTokens: out.Usage.OutputTokens,
			ErrorMessage: runErr.Error(),
		})
		return nil, fmt.Errorf("%s stage: %w", stage, runErr)
	}

	outputJSON, err := json.Marshal(out.Output)
	if err != nil {
		err = fmt.Errorf("encode %s output: %w", stage, err)
		o.finishFailed(ctx, step.ID, err)
		return nil, err
	}
	o.finishStep(ctx, step.ID, jobs.StepResult{
		Status:       jobs.StepCompleted,
		Output:       outputJSON,
		InputTokens:  out.Usage.InputTokens,
		OutputTokens: out.Usage.OutputTokens,
	})
	return out.Output, nil
}

func (o *Orchestrator) finishFailed(ctx context.Context, stepID int64, cause error) {
	o.finishStep(ctx, stepID, jobs.StepResult{
		Status:       jobs.StepFailed,
		ErrorMessage: cause.Error(),
	})
}

func (o *Orchestrator) finishStep(ctx context.Context, stepID int64, result jobs.StepResult) {
	if err := o.store.FinishStep(ctx, stepID, result); err != nil {
		o.logger.Warn("step finish dropped",
			logging.Int64("step_id", stepID),
			logging.Error(err))
	}
}

// publish uploads the approved article to blob storage and returns the page
// id. Publish failures never fail the job; they are downgraded to a system-log
// warning.
func (o *Orchestrator) publish(ctx context.Context, jobID int64, final *FinalOutput, log *slog.Logger) string {
	if !o.cfg.AutoPublish || o.uploader == nil || !o.uploader.Configured() {
		return ""
	}
	slug := ""
	if final.SEO != nil {
		slug = final.SEO.Slug
	}
	if slug == "" {
		slug = textutil.Slugify(final.Article.Title)
	}
	key := "articles/" + slug + ".md"
	body := fmt.Sprintf("# %s\n\n%s\n", final.Article.Title, final.Article.Markdown)

	object, err := o.uploader.Upload(ctx, key, "text/markdown", []byte(body))
	if err != nil {
		log.Warn("auto-publish failed", logging.Error(err))
		if logErr := o.store.AppendLog(ctx, "articles", "warning", "auto-publish failed: "+err.Error(), nil, &jobID); logErr != nil {
			o.logger.Warn("system log write dropped", logging.Error(logErr))
		}
		return ""
	}
	pageID := object.ID
	if pageID == "" {
		pageID = object.Key
	}
	log.Info("article published", logging.String("page_id", pageID))
	return pageID
}
