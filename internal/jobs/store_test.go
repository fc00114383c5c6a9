package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"millwork/internal/jobs"
	"millwork/internal/testsupport"
)

func TestCreateRejectsSecondActiveJobOfSameType(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	first, err := store.Create(ctx, jobs.NewJob{JobType: "write_article"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if first.Status != jobs.StatusPending {
		t.Fatalf("expected pending status, got %s", first.Status)
	}

	if _, err := store.Create(ctx, jobs.NewJob{JobType: "write_article"}); !errors.Is(err, jobs.ErrDuplicateActive) {
		t.Fatalf("expected ErrDuplicateActive, got %v", err)
	}

	// A different type is unaffected.
	if _, err := store.Create(ctx, jobs.NewJob{JobType: "photo_sync"}); err != nil {
		t.Fatalf("Create photo_sync: %v", err)
	}

	// Once the first job is terminal, the type frees up.
	if _, err := store.ClaimByID(ctx, first.ID); err != nil {
		t.Fatalf("ClaimByID: %v", err)
	}
	if err := store.Complete(ctx, first.ID, nil); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, err := store.Create(ctx, jobs.NewJob{JobType: "write_article"}); err != nil {
		t.Fatalf("Create after completion: %v", err)
	}
}

func TestClaimNextHonorsScheduleAndOrder(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	future := time.Now().Add(time.Hour)
	if _, err := store.Create(ctx, jobs.NewJob{JobType: "photo_sync", ScheduledFor: &future}); err != nil {
		t.Fatalf("Create scheduled: %v", err)
	}
	ready, err := store.Create(ctx, jobs.NewJob{JobType: "write_article"})
	if err != nil {
		t.Fatalf("Create ready: %v", err)
	}

	claimed, err := store.ClaimNext(ctx, "")
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if claimed == nil || claimed.ID != ready.ID {
		t.Fatalf("expected job %d, got %+v", ready.ID, claimed)
	}
	if claimed.Status != jobs.StatusProcessing {
		t.Fatalf("expected processing, got %s", claimed.Status)
	}
	if claimed.Attempts != 1 {
		t.Fatalf("expected attempts=1, got %d", claimed.Attempts)
	}
	if claimed.StartedAt == nil {
		t.Fatal("expected started_at to be set")
	}

	// The future-scheduled job stays put.
	next, err := store.ClaimNext(ctx, "")
	if err != nil {
		t.Fatalf("ClaimNext second: %v", err)
	}
	if next != nil {
		t.Fatalf("expected no claimable job, got %d", next.ID)
	}
}

func TestClaimNextSkipsTypeAlreadyProcessing(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	busy, err := store.Create(ctx, jobs.NewJob{JobType: "photo_sync"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.ClaimByID(ctx, busy.ID); err != nil {
		t.Fatalf("ClaimByID: %v", err)
	}

	// With photo_sync busy, a type-filtered claim finds nothing even though a
	// pending row could be inserted once the first goes terminal.
	claimed, err := store.ClaimNext(ctx, "photo_sync")
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if claimed != nil {
		t.Fatalf("expected nothing claimable for busy type, got %d", claimed.ID)
	}
}

func TestConcurrentClaimsTakeEachJobOnce(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	job, err := store.Create(ctx, jobs.NewJob{JobType: "write_article"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	claims := make(chan int64, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := store.ClaimNext(ctx, "")
			if err != nil {
				t.Errorf("ClaimNext: %v", err)
				return
			}
			if claimed != nil {
				claims <- claimed.ID
			}
		}()
	}
	wg.Wait()
	close(claims)

	var winners []int64
	for id := range claims {
		winners = append(winners, id)
	}
	if len(winners) != 1 || winners[0] != job.ID {
		t.Fatalf("expected exactly one claim of job %d, got %v", job.ID, winners)
	}

	refreshed, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if refreshed.Attempts != 1 {
		t.Fatalf("expected attempts=1 after concurrent claims, got %d", refreshed.Attempts)
	}
}

func TestFailSchedulesRetryThenFailsPermanently(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	backoff := jobs.NewBackoff([]int{1, 5})

	job, err := store.Create(ctx, jobs.NewJob{JobType: "write_article", MaxAttempts: 2})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Attempt 1 fails: back to pending with a retry delay.
	if _, err := store.ClaimByID(ctx, job.ID); err != nil {
		t.Fatalf("ClaimByID: %v", err)
	}
	before := time.Now()
	failed, err := store.Fail(ctx, job.ID, "llm unavailable", false, backoff)
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if failed.Status != jobs.StatusPending {
		t.Fatalf("expected pending after first failure, got %s", failed.Status)
	}
	if failed.LastError != "llm unavailable" {
		t.Fatalf("expected last error recorded, got %q", failed.LastError)
	}
	if failed.NextRetryAt == nil {
		t.Fatal("expected next_retry_at to be set")
	}
	gap := failed.NextRetryAt.Sub(before)
	if gap < 50*time.Second || gap > 70*time.Second {
		t.Fatalf("expected ~1m retry delay, got %s", gap)
	}

	// Not claimable before the retry time.
	claimed, err := store.ClaimNext(ctx, "")
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if claimed != nil {
		t.Fatalf("expected no claim before retry time, got %d", claimed.ID)
	}

	// Attempt 2 fails: attempts exhausted, permanent failure.
	forceRetryEligible(t, store, job.ID)
	if _, err := store.ClaimByID(ctx, job.ID); err != nil {
		t.Fatalf("ClaimByID second attempt: %v", err)
	}
	failed, err = store.Fail(ctx, job.ID, "llm unavailable again", false, backoff)
	if err != nil {
		t.Fatalf("Fail second: %v", err)
	}
	if failed.Status != jobs.StatusFailed {
		t.Fatalf("expected failed after exhausting attempts, got %s", failed.Status)
	}
	if failed.NextRetryAt != nil {
		t.Fatal("expected next_retry_at cleared on permanent failure")
	}
	if failed.CompletedAt == nil {
		t.Fatal("expected completed_at set on permanent failure")
	}
}

func TestFailPermanentSkipsRemainingAttempts(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	job, err := store.Create(ctx, jobs.NewJob{JobType: "write_article", MaxAttempts: 3})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.ClaimByID(ctx, job.ID); err != nil {
		t.Fatalf("ClaimByID: %v", err)
	}

	failed, err := store.Fail(ctx, job.ID, "payload missing keyword", true, jobs.NewBackoff(nil))
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if failed.Status != jobs.StatusFailed {
		t.Fatalf("expected permanent failure on first attempt, got %s", failed.Status)
	}
}

func TestCompleteDropsLateResultAfterCancel(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	job, err := store.Create(ctx, jobs.NewJob{JobType: "write_article"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.ClaimByID(ctx, job.ID); err != nil {
		t.Fatalf("ClaimByID: %v", err)
	}
	if err := store.Cancel(ctx, job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	err = store.Complete(ctx, job.ID, json.RawMessage(`{"done":true}`))
	if !errors.Is(err, jobs.ErrNotProcessing) {
		t.Fatalf("expected ErrNotProcessing for late completion, got %v", err)
	}

	refreshed, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if refreshed.Status != jobs.StatusCancelled {
		t.Fatalf("expected cancelled to stick, got %s", refreshed.Status)
	}
	if len(refreshed.Result) != 0 {
		t.Fatalf("expected late result dropped, got %s", refreshed.Result)
	}
}

func TestCancelRejectsTerminalJob(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	job, err := store.Create(ctx, jobs.NewJob{JobType: "write_article"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.ClaimByID(ctx, job.ID); err != nil {
		t.Fatalf("ClaimByID: %v", err)
	}
	if err := store.Complete(ctx, job.ID, nil); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := store.Cancel(ctx, job.ID); !errors.Is(err, jobs.ErrNotCancellable) {
		t.Fatalf("expected ErrNotCancellable, got %v", err)
	}
}

func TestClaimByIDRejectsNonPendingJob(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	job, err := store.Create(ctx, jobs.NewJob{JobType: "write_article"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.ClaimByID(ctx, job.ID); err != nil {
		t.Fatalf("first ClaimByID: %v", err)
	}
	if _, err := store.ClaimByID(ctx, job.ID); !errors.Is(err, jobs.ErrNotClaimable) {
		t.Fatalf("expected ErrNotClaimable on double claim, got %v", err)
	}
	if _, err := store.ClaimByID(ctx, job.ID+100); !errors.Is(err, jobs.ErrNotClaimable) {
		t.Fatalf("expected ErrNotClaimable for missing job, got %v", err)
	}
}

func TestReapStaleAppliesRetryDecision(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	backoff := jobs.NewBackoff([]int{1})

	retryable, err := store.Create(ctx, jobs.NewJob{JobType: "write_article", MaxAttempts: 3})
	if err != nil {
		t.Fatalf("Create retryable: %v", err)
	}
	exhausted, err := store.Create(ctx, jobs.NewJob{JobType: "photo_sync", MaxAttempts: 1})
	if err != nil {
		t.Fatalf("Create exhausted: %v", err)
	}
	for _, id := range []int64{retryable.ID, exhausted.ID} {
		if _, err := store.ClaimByID(ctx, id); err != nil {
			t.Fatalf("ClaimByID %d: %v", id, err)
		}
	}

	// Zero timeout makes every processing job stale immediately.
	result, err := store.ReapStale(ctx, 0, backoff)
	if err != nil {
		t.Fatalf("ReapStale: %v", err)
	}
	if result.Retried != 1 || result.Failed != 1 {
		t.Fatalf("expected 1 retried and 1 failed, got %+v", result)
	}

	first, err := store.GetByID(ctx, retryable.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if first.Status != jobs.StatusPending || first.NextRetryAt == nil {
		t.Fatalf("expected retryable job rescheduled, got status=%s", first.Status)
	}
	second, err := store.GetByID(ctx, exhausted.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if second.Status != jobs.StatusFailed {
		t.Fatalf("expected exhausted job failed, got %s", second.Status)
	}
	if second.LastError == "" {
		t.Fatal("expected timeout recorded in last_error")
	}
}

func TestListFilterAndStats(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	article, err := store.Create(ctx, jobs.NewJob{JobType: "write_article"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Create(ctx, jobs.NewJob{JobType: "photo_sync"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.ClaimByID(ctx, article.ID); err != nil {
		t.Fatalf("ClaimByID: %v", err)
	}
	if err := store.Complete(ctx, article.ID, nil); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	pending, err := store.List(ctx, jobs.Filter{Statuses: []jobs.Status{jobs.StatusPending}})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(pending) != 1 || pending[0].JobType != "photo_sync" {
		t.Fatalf("expected one pending photo_sync job, got %+v", pending)
	}

	byType, err := store.List(ctx, jobs.Filter{JobType: "write_article"})
	if err != nil {
		t.Fatalf("List by type: %v", err)
	}
	if len(byType) != 1 || byType[0].Status != jobs.StatusCompleted {
		t.Fatalf("expected one completed write_article job, got %+v", byType)
	}

	stats, err := store.Stats(ctx, "")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 2 || stats.Pending != 1 || stats.Completed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestReportProgressUpdatesCounters(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "photo_sync", nil)
	total, processed := 40, 10
	if err := store.ReportProgress(ctx, job.ID, jobs.ProgressUpdate{TotalItems: &total, ProcessedItems: &processed}); err != nil {
		t.Fatalf("ReportProgress: %v", err)
	}

	refreshed, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if refreshed.TotalItems != 40 || refreshed.ProcessedItems != 10 {
		t.Fatalf("unexpected counters: %+v", refreshed)
	}
	if got := refreshed.PercentComplete(); got != 25 {
		t.Fatalf("expected 25%% complete, got %d", got)
	}

	// Nil fields leave stored values untouched.
	failedItems := 3
	if err := store.ReportProgress(ctx, job.ID, jobs.ProgressUpdate{FailedItems: &failedItems}); err != nil {
		t.Fatalf("ReportProgress partial: %v", err)
	}
	refreshed, err = store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if refreshed.TotalItems != 40 || refreshed.ProcessedItems != 10 || refreshed.FailedItems != 3 {
		t.Fatalf("unexpected counters after partial update: %+v", refreshed)
	}
}

func TestStepLifecycle(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "write_article", json.RawMessage(`{"keyword":"roof repair"}`))
	step, err := store.CreateStep(ctx, job.ID, "research", "research-default", 1, json.RawMessage(`{"keyword":"roof repair"}`))
	if err != nil {
		t.Fatalf("CreateStep: %v", err)
	}
	if step.Status != jobs.StepPending {
		t.Fatalf("expected pending step, got %s", step.Status)
	}

	if err := store.StartStep(ctx, step.ID); err != nil {
		t.Fatalf("StartStep: %v", err)
	}
	if err := store.AppendStepLog(ctx, step.ID, "fetched 12 sources"); err != nil {
		t.Fatalf("AppendStepLog: %v", err)
	}
	if err := store.AppendStepLog(ctx, step.ID, "outline drafted"); err != nil {
		t.Fatalf("AppendStepLog: %v", err)
	}

	if err := store.FinishStep(ctx, step.ID, jobs.StepResult{
		Status:       jobs.StepCompleted,
		Output:       json.RawMessage(`{"outline":["intro"]}`),
		InputTokens:  120,
		OutputTokens: 340,
	}); err != nil {
		t.Fatalf("FinishStep: %v", err)
	}

	// Terminal steps refuse further writes.
	if err := store.StartStep(ctx, step.ID); !errors.Is(err, jobs.ErrStepTerminal) {
		t.Fatalf("expected ErrStepTerminal on restart, got %v", err)
	}
	if err := store.FinishStep(ctx, step.ID, jobs.StepResult{Status: jobs.StepFailed}); !errors.Is(err, jobs.ErrStepTerminal) {
		t.Fatalf("expected ErrStepTerminal on refinish, got %v", err)
	}
	if err := store.AppendStepLog(ctx, step.ID, "late line"); !errors.Is(err, jobs.ErrStepTerminal) {
		t.Fatalf("expected ErrStepTerminal on late log, got %v", err)
	}

	steps, err := store.StepsForJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("StepsForJob: %v", err)
	}
	if len(steps) != 1 {
		t.Fatalf("expected one step, got %d", len(steps))
	}
	got := steps[0]
	if got.Status != jobs.StepCompleted || got.TotalTokens != 460 {
		t.Fatalf("unexpected step state: %+v", got)
	}
	if len(got.Logs) != 2 || got.Logs[0] != "fetched 12 sources" {
		t.Fatalf("unexpected step logs: %v", got.Logs)
	}
	if got.CompletedAt == nil {
		t.Fatal("expected completed_at set")
	}
}

func TestArticleStateRerunResetsProgressButKeepsTokens(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "write_article", nil)
	if err := store.InitArticleState(ctx, job.ID, "roof repair", json.RawMessage(`{"tone":"expert"}`), 3); err != nil {
		t.Fatalf("InitArticleState: %v", err)
	}
	if err := store.SetArticleProgress(ctx, job.ID, "writer", 2); err != nil {
		t.Fatalf("SetArticleProgress: %v", err)
	}
	if err := store.AddArticleTokens(ctx, job.ID, 500); err != nil {
		t.Fatalf("AddArticleTokens: %v", err)
	}
	if err := store.AddArticleTokens(ctx, job.ID, 250); err != nil {
		t.Fatalf("AddArticleTokens: %v", err)
	}
	if err := store.FinishArticle(ctx, job.ID, json.RawMessage(`{"title":"Roof Repair"}`), "page-42"); err != nil {
		t.Fatalf("FinishArticle: %v", err)
	}

	state, err := store.ArticleStateForJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("ArticleStateForJob: %v", err)
	}
	if state.TotalTokens != 750 || state.PageID != "page-42" {
		t.Fatalf("unexpected state: %+v", state)
	}
	if state.CurrentAgent != "" {
		t.Fatalf("expected current agent cleared on finish, got %q", state.CurrentAgent)
	}

	// A retried attempt restarts from scratch: init wipes progress and output
	// but the token count keeps accumulating across attempts.
	if err := store.InitArticleState(ctx, job.ID, "roof repair", nil, 3); err != nil {
		t.Fatalf("InitArticleState rerun: %v", err)
	}
	state, err = store.ArticleStateForJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("ArticleStateForJob: %v", err)
	}
	if state.PageID != "" || state.CurrentIteration != 0 || state.CurrentAgent != "" {
		t.Fatalf("expected reset progress on rerun, got %+v", state)
	}
	if state.TotalTokens != 750 {
		t.Fatalf("expected token count retained across attempts, got %d", state.TotalTokens)
	}
	if len(state.FinalOutput) != 0 {
		t.Fatalf("expected final output cleared, got %s", state.FinalOutput)
	}
}

func TestSystemLogAppendAndFilter(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "write_article", nil)
	if err := store.AppendLog(ctx, "jobs", "info", "job created", nil, &job.ID); err != nil {
		t.Fatalf("AppendLog: %v", err)
	}
	if err := store.AppendLog(ctx, "dispatch", "error", "executor panicked", json.RawMessage(`{"attempt":1}`), &job.ID); err != nil {
		t.Fatalf("AppendLog: %v", err)
	}
	if err := store.AppendLog(ctx, "daemon", "", "trigger tick", nil, nil); err != nil {
		t.Fatalf("AppendLog without job: %v", err)
	}

	all, err := store.RecentLog(ctx, "", 10)
	if err != nil {
		t.Fatalf("RecentLog: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	// Newest first.
	if all[0].Category != "daemon" || all[0].Level != "info" {
		t.Fatalf("unexpected newest entry: %+v", all[0])
	}
	if all[0].JobID != nil {
		t.Fatal("expected nil job reference on daemon entry")
	}

	dispatchOnly, err := store.RecentLog(ctx, "dispatch", 10)
	if err != nil {
		t.Fatalf("RecentLog filtered: %v", err)
	}
	if len(dispatchOnly) != 1 || dispatchOnly[0].Level != "error" {
		t.Fatalf("unexpected filtered entries: %+v", dispatchOnly)
	}
	if dispatchOnly[0].JobID == nil || *dispatchOnly[0].JobID != job.ID {
		t.Fatal("expected job reference preserved")
	}
}

func TestClearCompletedRemovesOldTerminalJobs(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "write_article", nil)
	if _, err := store.ClaimByID(ctx, job.ID); err != nil {
		t.Fatalf("ClaimByID: %v", err)
	}
	if err := store.Complete(ctx, job.ID, nil); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	// A one-hour cutoff keeps the just-completed job.
	removed, err := store.ClearCompleted(ctx, time.Hour)
	if err != nil {
		t.Fatalf("ClearCompleted: %v", err)
	}
	if removed != 0 {
		t.Fatalf("expected nothing removed, got %d", removed)
	}

	// A negative cutoff places the threshold in the future and sweeps it.
	removed, err = store.ClearCompleted(ctx, -time.Minute)
	if err != nil {
		t.Fatalf("ClearCompleted sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one job removed, got %d", removed)
	}
}

// forceRetryEligible rewinds a pending job's retry time so tests can claim it
// without waiting out the backoff.
func forceRetryEligible(t *testing.T, store *jobs.Store, id int64) {
	t.Helper()
	if err := store.ForceRetryNow(context.Background(), id); err != nil {
		t.Fatalf("ForceRetryNow: %v", err)
	}
}
