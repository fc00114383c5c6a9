// Package llm provides the chat completion client used by the article agents.
// Requests carry per-call model and sampling overrides so personas can diverge
// from the configured default. Transient provider failures are retried with
// exponential backoff, honoring Retry-After on throttled responses, and token
// usage is reported for every attempt that reached the provider.
package llm
