// Package articles implements the multi-agent article writing pipeline:
// research once, then writer/seo/qa iterations until QA approves or the
// iteration budget runs out. Each agent invocation is recorded as a job step
// with its token usage; personas bind prompts and model parameters to agents
// and can be overridden per job.
package articles
