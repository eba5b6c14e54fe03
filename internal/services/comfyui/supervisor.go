package comfyui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/mohammednabarawy/video-gen/internal/config"
	"github.com/mohammednabarawy/video-gen/internal/logging"
	"github.com/mohammednabarawy/video-gen/internal/services"
)

const (
	probeTimeout         = 2 * time.Second
	healthProbeTimeout   = time.Second
	startPollInterval    = 500 * time.Millisecond
	gracefulStopTimeout  = 10 * time.Second
	killConfirmTimeout   = 3 * time.Second
	restartReleaseDelay  = 3 * time.Second
	forcedReleaseDelay   = 10 * time.Second
	restartRetryDelay    = 2 * time.Second
	restartStartAttempts = 2
)

// Supervisor owns at most one launched server process. Servers that were
// already running when Start probed them are reported but never owned, so
// Stop cannot kill a process someone else started.
type Supervisor struct {
	cfg      *config.Config
	logger   *slog.Logger
	launcher Launcher
	probe    *http.Client
	lock     *flock.Flock

	mu   sync.Mutex
	proc Process
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithLauncher injects a custom process launcher (primarily for tests).
func WithLauncher(launcher Launcher) SupervisorOption {
	return func(s *Supervisor) {
		if launcher != nil {
			s.launcher = launcher
		}
	}
}

// WithProbeClient injects the HTTP client used for reachability probes.
func WithProbeClient(httpClient *http.Client) SupervisorOption {
	return func(s *Supervisor) {
		if httpClient != nil {
			s.probe = httpClient
		}
	}
}

// NewSupervisor constructs a supervisor for the configured server.
func NewSupervisor(cfg *config.Config, logger *slog.Logger, opts ...SupervisorOption) (*Supervisor, error) {
	if cfg == nil {
		return nil, errors.New("supervisor requires configuration")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Supervisor{
		cfg:      cfg,
		logger:   logger,
		launcher: execLauncher{},
		probe:    &http.Client{},
	}
	if cfg.ManagedServer() && strings.TrimSpace(cfg.Server.InstallDir) != "" {
		s.lock = flock.New(filepath.Join(cfg.Server.InstallDir, ".videogen.lock"))
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ValidateInstallation checks that dir holds a runnable server install: the
// entry point script and a models directory must both exist. It touches
// only the filesystem.
func ValidateInstallation(dir, entryPoint string) error {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return errors.New("installation path not configured")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("path does not exist: %s", dir)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", dir)
	}
	if entryPoint == "" {
		entryPoint = "main.py"
	}
	if _, err := os.Stat(filepath.Join(dir, entryPoint)); err != nil {
		return fmt.Errorf("%s not found in %s", entryPoint, dir)
	}
	if _, err := os.Stat(filepath.Join(dir, "models")); err != nil {
		return fmt.Errorf("models directory not found in %s", dir)
	}
	return nil
}

// Validate checks the configured installation without side effects.
func (s *Supervisor) Validate() error {
	return ValidateInstallation(s.cfg.Server.InstallDir, s.cfg.Server.EntryPoint)
}

// IsRunning probes the server's stats endpoint with a short timeout. Any
// network failure reads as "not running", never as an error.
func (s *Supervisor) IsRunning(ctx context.Context) bool {
	return s.probeOK(ctx, probeTimeout)
}

// CheckHealth is the cheap periodic liveness check: the owned process must
// still be alive and a one-second probe must succeed. Without an owned
// process it reports false regardless of what is listening on the port.
func (s *Supervisor) CheckHealth(ctx context.Context) bool {
	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()
	if proc == nil || !proc.Running() {
		return false
	}
	return s.probeOK(ctx, healthProbeTimeout)
}

// StartOptions adjust one Start call.
type StartOptions struct {
	// Timeout bounds the wait for the server to report healthy. Zero uses
	// the configured startup timeout.
	Timeout time.Duration
	// ExtraArgs are appended after the configured launch arguments.
	ExtraArgs []string
	// OnLogLine receives each merged output line from a reader goroutine.
	OnLogLine func(string)
}

// Start launches the configured server and waits until it answers health
// probes. A server that is already reachable, whoever started it, is a
// no-op success.
func (s *Supervisor) Start(ctx context.Context, opts StartOptions) error {
	if s.IsRunning(ctx) {
		s.logger.Info("server already running", logging.String("url", s.cfg.ServerBaseURL()))
		return nil
	}
	if !s.cfg.ManagedServer() {
		return services.Wrap(services.ErrSupervision, component, "start", "server mode is external and no server is reachable", nil)
	}
	if err := s.Validate(); err != nil {
		return services.Wrap(services.ErrConfiguration, component, "start", "invalid installation", err)
	}

	s.mu.Lock()
	if s.proc != nil && s.proc.Running() {
		pid := s.proc.PID()
		s.mu.Unlock()
		s.logger.Info("server process already launched", logging.Int("pid", pid))
		return nil
	}
	s.mu.Unlock()

	if s.lock != nil {
		locked, err := s.lock.TryLock()
		if err != nil {
			return services.Wrap(services.ErrSupervision, component, "start", "acquire installation lock", err)
		}
		if !locked {
			return services.Wrap(services.ErrSupervision, component, "start", "another supervisor is managing this installation", nil)
		}
	}

	runtime := s.resolveRuntime()
	args := []string{s.entryPoint(), "--port", strconv.Itoa(s.cfg.Server.Port)}
	args = append(args, s.cfg.Server.ExtraArgs...)
	args = append(args, opts.ExtraArgs...)

	s.logger.Info("starting server",
		logging.String("runtime", runtime),
		logging.String("install_dir", s.cfg.Server.InstallDir),
		logging.Int("port", s.cfg.Server.Port))

	proc, err := s.launcher.Launch(LaunchSpec{
		Runtime: runtime,
		Args:    args,
		Dir:     s.cfg.Server.InstallDir,
		LogPath: s.cfg.ServerLogPath(),
		OnLine:  opts.OnLogLine,
	})
	if err != nil {
		s.releaseLock()
		return services.Wrap(services.ErrSupervision, component, "start", "launch process", err)
	}
	s.mu.Lock()
	s.proc = proc
	s.mu.Unlock()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Duration(s.cfg.Server.StartupTimeout) * time.Second
	}
	deadline := time.Now().Add(timeout)
	for {
		if s.probeOK(ctx, probeTimeout) {
			s.logger.Info("server healthy",
				logging.Int("pid", proc.PID()),
				logging.String("url", s.cfg.ServerBaseURL()))
			return nil
		}
		if !proc.Running() {
			reason := excerpt(proc.Output(), 500)
			s.discardProcess()
			return services.Wrap(services.ErrSupervision, component, "start", "server process died during startup: "+reason, nil)
		}
		if !time.Now().Before(deadline) {
			return services.Wrap(services.ErrSupervision, component, "start",
				fmt.Sprintf("server not healthy after %s", timeout), nil)
		}
		if err := sleepContext(ctx, startPollInterval); err != nil {
			if killErr := proc.KillTree(killConfirmTimeout); killErr != nil {
				s.logger.Warn("cleanup after canceled start", logging.Error(killErr))
			}
			s.discardProcess()
			return services.Wrap(services.ErrSupervision, component, "start", "canceled while waiting for health", err)
		}
	}
}

// Stop shuts the owned server down, gracefully unless force is set. With no
// owned process, a reachable server is reported as unmanaged and a quiet
// port is already-stopped success.
func (s *Supervisor) Stop(ctx context.Context, force bool) error {
	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()

	if proc == nil {
		if s.IsRunning(ctx) {
			return services.Wrap(services.ErrSupervision, component, "stop", "server is running but was not started by this supervisor", nil)
		}
		s.logger.Info("no owned server to stop")
		return nil
	}

	if !proc.Running() {
		s.logger.Info("server already exited")
		s.discardProcess()
		return nil
	}

	if !force {
		if err := proc.Terminate(); err != nil {
			s.logger.Warn("graceful terminate failed", logging.Int("pid", proc.PID()), logging.Error(err))
		} else if proc.WaitExit(gracefulStopTimeout) {
			s.logger.Info("server stopped gracefully", logging.Int("pid", proc.PID()))
			s.discardProcess()
			return nil
		} else {
			s.logger.Warn("graceful stop timed out, killing process tree", logging.Int("pid", proc.PID()))
		}
	}

	if err := proc.KillTree(killConfirmTimeout); err != nil {
		s.logger.Warn("processes not confirmed dead", logging.Error(err))
	}
	s.logger.Info("server force-stopped", logging.Int("pid", proc.PID()))
	s.discardProcess()
	return nil
}

// RestartOptions adjust one Restart call.
type RestartOptions struct {
	Start StartOptions
	// Force skips the graceful stop phase and doubles down on the release
	// delay so the OS can reclaim GPU memory and the port.
	Force bool
}

// Restart stops the owned server, waits for the OS to release its
// resources, and starts it again. Stop failures are logged, not fatal; the
// start side gets a second attempt before the restart is declared failed.
func (s *Supervisor) Restart(ctx context.Context, opts RestartOptions) error {
	if err := s.Stop(ctx, opts.Force); err != nil {
		s.logger.Warn("stop before restart failed", logging.Error(err))
	}

	delay := restartReleaseDelay
	if opts.Force {
		delay = forcedReleaseDelay
	}
	if err := sleepContext(ctx, delay); err != nil {
		return services.Wrap(services.ErrSupervision, component, "restart", "canceled during release delay", err)
	}

	var lastErr error
	for attempt := 1; attempt <= restartStartAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepContext(ctx, restartRetryDelay); err != nil {
				return services.Wrap(services.ErrSupervision, component, "restart", "canceled between start attempts", err)
			}
		}
		if lastErr = s.Start(ctx, opts.Start); lastErr == nil {
			return nil
		}
		s.logger.Warn("start attempt failed",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", restartStartAttempts),
			logging.Error(lastErr))
	}
	return lastErr
}

// ServerStatus is a point-in-time snapshot for status reporting.
type ServerStatus struct {
	Running    bool            `json:"running"`
	Owned      bool            `json:"owned"`
	PID        int             `json:"pid,omitempty"`
	URL        string          `json:"url"`
	InstallDir string          `json:"install_dir,omitempty"`
	Stats      json.RawMessage `json:"stats,omitempty"`
}

// Status reports reachability and, when the server answers, its stats
// payload verbatim.
func (s *Supervisor) Status(ctx context.Context) ServerStatus {
	status := ServerStatus{
		URL:        s.cfg.ServerBaseURL(),
		InstallDir: s.cfg.Server.InstallDir,
	}
	s.mu.Lock()
	if s.proc != nil && s.proc.Running() {
		status.Owned = true
		status.PID = s.proc.PID()
	}
	s.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, status.URL+"/system_stats", nil)
	if err != nil {
		return status
	}
	resp, err := s.probe.Do(req)
	if err != nil {
		return status
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		status.Running = true
		if data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024)); err == nil && json.Valid(data) {
			status.Stats = data
		}
	}
	return status
}

func (s *Supervisor) probeOK(ctx context.Context, timeout time.Duration) bool {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, s.cfg.ServerBaseURL()+"/system_stats", nil)
	if err != nil {
		return false
	}
	resp, err := s.probe.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// resolveRuntime picks the interpreter for the installation: an explicit
// configured path, then a portable sibling runtime, then an
// installation-local venv, then whatever python is on PATH.
func (s *Supervisor) resolveRuntime() string {
	if p := strings.TrimSpace(s.cfg.Server.PythonPath); p != "" {
		return p
	}
	install := s.cfg.Server.InstallDir
	portable := filepath.Join(filepath.Dir(install), "python_embeded", "python.exe")
	if fileExists(portable) {
		return portable
	}
	for _, candidate := range []string{
		filepath.Join(install, "venv", "bin", "python"),
		filepath.Join(install, "venv", "Scripts", "python.exe"),
	} {
		if fileExists(candidate) {
			return candidate
		}
	}
	for _, name := range []string{"python3", "python"} {
		if found, err := exec.LookPath(name); err == nil {
			return found
		}
	}
	return "python"
}

func (s *Supervisor) entryPoint() string {
	if entry := strings.TrimSpace(s.cfg.Server.EntryPoint); entry != "" {
		return entry
	}
	return "main.py"
}

func (s *Supervisor) discardProcess() {
	s.mu.Lock()
	s.proc = nil
	s.mu.Unlock()
	s.releaseLock()
}

func (s *Supervisor) releaseLock() {
	if s.lock == nil {
		return
	}
	if err := s.lock.Unlock(); err != nil {
		s.logger.Warn("release installation lock", logging.Error(err))
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
