// Package comfyui mediates access to the ComfyUI inference server.
//
// The Supervisor owns the server process lifecycle: installation checks,
// launch with interpreter discovery, health probing, graceful stop with a
// forced process-tree kill fallback, and restarts with a resource release
// delay. It only ever kills processes it launched itself; servers that were
// already listening are reported as unmanaged.
//
// The Client speaks the server's job protocol: graph submission and history
// polling over HTTP with connection-level retry, plus a websocket event
// stream that demultiplexes progress, preview, and execution frames to
// registered handlers.
//
// Prefer these types over ad-hoc HTTP calls so retry behavior, client
// identity, and process ownership rules stay consistent.
package comfyui
