package models

import (
	"fmt"
	"os"
	"path/filepath"
)

// Status reports one manifest entry's state on disk.
type Status struct {
	File
	Path      string
	Present   bool
	SizeBytes int64
	Detail    string
}

// Check stats every manifest entry under the given models root. Present
// files far below their expected size get a detail note so truncated
// downloads show up in status output.
func Check(modelsDir string) []Status {
	results := make([]Status, 0, len(manifest))
	for _, file := range manifest {
		status := Status{
			File: file,
			Path: filepath.Join(modelsDir, file.Category, file.Name),
		}
		info, err := os.Stat(status.Path)
		switch {
		case err == nil && info.Mode().IsRegular():
			status.Present = true
			status.SizeBytes = info.Size()
			if suspiciouslySmall(info.Size(), file.SizeGB) {
				status.Detail = fmt.Sprintf("%.2f GB on disk, expected about %.1f GB", gb(info.Size()), file.SizeGB)
			}
		case err == nil:
			status.Detail = "not a regular file"
		case os.IsNotExist(err):
			status.Detail = "not found"
		default:
			status.Detail = err.Error()
		}
		results = append(results, status)
	}
	return results
}

// Ready reports whether every required model file is present.
func Ready(modelsDir string) bool {
	return len(MissingRequired(modelsDir)) == 0
}

// MissingRequired lists the required manifest entries absent from the
// models root, as category-relative paths.
func MissingRequired(modelsDir string) []string {
	var missing []string
	for _, status := range Check(modelsDir) {
		if status.Required && !status.Present {
			missing = append(missing, filepath.Join(status.Category, status.Name))
		}
	}
	return missing
}

func suspiciouslySmall(sizeBytes int64, expectedGB float64) bool {
	if expectedGB <= 0 {
		return false
	}
	return gb(sizeBytes) < expectedGB/2
}

func gb(size int64) float64 {
	return float64(size) / (1 << 30)
}
