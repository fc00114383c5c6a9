// Package dispatch connects the job store to executors. A registry maps job
// types to executor implementations; the dispatcher claims eligible jobs,
// runs them with panic containment and best-effort progress reporting, and
// applies the retry-or-fail decision on errors. Executors never retry whole
// jobs themselves.
package dispatch
