// Command millwork is the operator CLI for the millwork job system: queueing
// jobs, inspecting pipelines, tailing the system log, and running the daemon
// in the foreground.
package main
