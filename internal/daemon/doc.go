// Package daemon runs the millwork background service: a single-instance
// lock, a cron trigger that dispatches queued jobs, and the HTTP API the CMS
// and CLI talk to.
package daemon
