// Package services defines shared utilities consumed by the generation
// pipeline and the inference-server integration.
//
// Key responsibilities:
//   - Context helpers that stamp generation IDs and server job IDs for
//     logging and tracing.
//   - Structured error markers plus the Wrap helper that tag failures for
//     later classification (fatal parameter error, transient fault, resource
//     exhaustion, environment defect) without string inspection at the
//     decision point.
//   - The Classify mapping the orchestrator uses to pick a recovery path and
//     the FailureStatus mapping the history store persists.
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// (error handling, observability, retries) stays uniform across the system.
package services
