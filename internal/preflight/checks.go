package preflight

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/mohammednabarawy/video-gen/internal/config"
	"github.com/mohammednabarawy/video-gen/internal/models"
	"github.com/mohammednabarawy/video-gen/internal/services/comfyui"
)

const serverProbeTimeout = 2 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckInstallation verifies that the configured installation directory
// holds a runnable server.
func CheckInstallation(cfg *config.Config) Result {
	const name = "Server installation"

	if err := comfyui.ValidateInstallation(cfg.Server.InstallDir, cfg.Server.EntryPoint); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: cfg.Server.InstallDir}
}

// CheckModels verifies that every required model file is on disk.
func CheckModels(cfg *config.Config) Result {
	const name = "Model files"

	root := cfg.ModelsRoot()
	if root == "" {
		return Result{Name: name, Detail: "models directory not configured"}
	}
	missing := models.MissingRequired(root)
	if len(missing) > 0 {
		return Result{Name: name, Detail: fmt.Sprintf("missing %d required: %s", len(missing), strings.Join(missing, ", "))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("all required present under %s", root)}
}

// CheckServer probes the server's stats endpoint. A managed server that is
// not running still passes, since generate starts it on demand; an external
// server that does not answer is a failure because nothing here can start
// it.
func CheckServer(ctx context.Context, cfg *config.Config) Result {
	const name = "Server"

	base := cfg.ServerBaseURL()
	switch {
	case probeServer(ctx, base):
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("reachable at %s", base)}
	case cfg.ManagedServer():
		return Result{Name: name, Passed: true, Detail: "not running (started on demand)"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("external server unreachable at %s", base)}
	}
}

func probeServer(ctx context.Context, baseURL string) bool {
	reqCtx, cancel := context.WithTimeout(ctx, serverProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, baseURL+"/system_stats", nil)
	if err != nil {
		return false
	}
	client := &http.Client{Timeout: serverProbeTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}
