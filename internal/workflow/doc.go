// Package workflow turns a generation request into a saved video file.
//
// The Orchestrator resolves presets into concrete parameters, validates them
// before any network traffic, compiles the workflow graph, submits it, and
// follows the server's event stream until the job finishes. Every transition
// is persisted to the history store so an interrupted run leaves an accurate
// record behind.
//
// Failures are classified before anything is retried. Environment faults
// force a server restart and replay the same parameters; out-of-memory
// failures downgrade a copy of the parameters to the low-memory tier and
// restart the server with the configured low-memory flag; connection-level
// faults earn one delayed retry. Each recovery path runs at most once per
// generation, so a repeated fault surfaces as the final error.
//
// The orchestrator runs one generation at a time; concurrent calls are
// rejected rather than queued.
package workflow
