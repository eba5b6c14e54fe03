package comfyui

import (
	"encoding/json"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/mohammednabarawy/video-gen/internal/logging"
)

// JobRecord is the execution record the server keeps per submitted job.
type JobRecord struct {
	Outputs map[string]NodeOutput `json:"outputs"`
	Status  JobStatus             `json:"status"`
}

// JobStatus summarizes the server's view of a job's terminal state.
type JobStatus struct {
	StatusStr string `json:"status_str"`
	Completed bool   `json:"completed"`
}

// NodeOutput maps a node's output shape keys to their raw payloads. Node
// ecosystems disagree on the shape, so decoding is deferred until the key is
// recognized.
type NodeOutput map[string]json.RawMessage

// Done reports whether the record shows a finished job: either outputs have
// landed or the server marked it completed.
func (r *JobRecord) Done() bool {
	if r == nil {
		return false
	}
	return len(r.Outputs) > 0 || r.Status.Completed
}

// OutputRef identifies one artifact produced by a completed job.
type OutputRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Kind      string `json:"kind"`
}

type fileRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// normalizeOutputs flattens per-node payloads into OutputRefs. Recognized
// keys, checked in order per node, are images, gifs, videos, and
// VHS_FILENAMES. Nodes with unrecognized shapes are logged and skipped so
// one odd node cannot sink the whole listing.
func normalizeOutputs(logger *slog.Logger, outputs map[string]NodeOutput) []OutputRef {
	nodeIDs := make([]string, 0, len(outputs))
	for nodeID := range outputs {
		nodeIDs = append(nodeIDs, nodeID)
	}
	sort.Strings(nodeIDs)

	var refs []OutputRef
	for _, nodeID := range nodeIDs {
		node := outputs[nodeID]
		switch {
		case node["images"] != nil:
			refs = append(refs, decodeFileRefs(logger, nodeID, node["images"], "")...)
		case node["gifs"] != nil:
			refs = append(refs, decodeFileRefs(logger, nodeID, node["gifs"], "output")...)
		case node["videos"] != nil:
			refs = append(refs, decodeFileRefs(logger, nodeID, node["videos"], "")...)
		case node["VHS_FILENAMES"] != nil:
			refs = append(refs, decodeVHSFilenames(node["VHS_FILENAMES"])...)
		default:
			logger.Warn("unrecognized output shape, skipping node",
				logging.String("node", nodeID),
				logging.Any("keys", shapeKeys(node)))
		}
	}
	return refs
}

func decodeFileRefs(logger *slog.Logger, nodeID string, raw json.RawMessage, forceKind string) []OutputRef {
	var files []fileRef
	if err := json.Unmarshal(raw, &files); err != nil {
		logger.Warn("undecodable output entry, skipping node",
			logging.String("node", nodeID),
			logging.Error(err))
		return nil
	}
	refs := make([]OutputRef, 0, len(files))
	for _, file := range files {
		if file.Filename == "" {
			continue
		}
		kind := file.Type
		if forceKind != "" {
			kind = forceKind
		}
		if kind == "" {
			kind = "output"
		}
		refs = append(refs, OutputRef{Filename: file.Filename, Subfolder: file.Subfolder, Kind: kind})
	}
	return refs
}

// decodeVHSFilenames handles the video-helper node's bare filename list.
// Entries arrive as absolute server-side paths, so only the base name
// survives.
func decodeVHSFilenames(raw json.RawMessage) []OutputRef {
	var files []string
	if err := json.Unmarshal(raw, &files); err != nil {
		return nil
	}
	refs := make([]OutputRef, 0, len(files))
	for _, file := range files {
		if file == "" {
			continue
		}
		refs = append(refs, OutputRef{Filename: filepath.Base(file), Kind: "output"})
	}
	return refs
}

func shapeKeys(node NodeOutput) []string {
	keys := make([]string, 0, len(node))
	for key := range node {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
