package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	LogDir    string `toml:"log_dir"`
	OutputDir string `toml:"output_dir"`
}

// Server contains configuration for the managed inference server.
type Server struct {
	Mode           string   `toml:"mode"`
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	InstallDir     string   `toml:"install_dir"`
	EntryPoint     string   `toml:"entry_point"`
	PythonPath     string   `toml:"python_path"`
	ModelsDir      string   `toml:"models_dir"`
	ExtraArgs      []string `toml:"extra_args"`
	StartupTimeout int      `toml:"startup_timeout"`
	LowMemoryArg   string   `toml:"low_memory_arg"`
}

// Generation contains default generation parameters applied when the caller
// leaves a field unset.
type Generation struct {
	Resolution     string  `toml:"resolution"`
	AspectRatio    string  `toml:"aspect_ratio"`
	Frames         int     `toml:"frames"`
	FPS            int     `toml:"fps"`
	Steps          int     `toml:"steps"`
	CFG            float64 `toml:"cfg"`
	Style          string  `toml:"style"`
	Tier           string  `toml:"tier"`
	TimeoutSeconds int     `toml:"timeout"`
}

// Recovery contains the failure-classification trigger signatures. The
// inference server reports failures as free text, so classification is
// substring matching against these lists; they are configuration because the
// exact wording is tied to a specific server build and may change.
type Recovery struct {
	OOMTriggers         []string `toml:"oom_triggers"`
	EnvironmentTriggers []string `toml:"environment_triggers"`
	TransientRetryDelay int      `toml:"transient_retry_delay"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the application.
//
// Configuration sections by subsystem:
//   - Paths: data, log, and video output directories
//   - Server: inference server location, launch, and supervision settings
//   - Generation: default generation parameters
//   - Recovery: failure trigger signatures and retry pacing
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Server        Server        `toml:"server"`
	Generation    Generation    `toml:"generation"`
	Recovery      Recovery      `toml:"recovery"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// Server modes. Managed servers are launched and supervised by this process;
// external servers are probed but never started or stopped.
const (
	ServerModeManaged  = "managed"
	ServerModeExternal = "external"
)

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/videogen/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("videogen.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the pipeline writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ServerBaseURL returns the HTTP base URL of the inference server.
func (c *Config) ServerBaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.Server.Host, c.Server.Port)
}

// ServerWebsocketURL returns the event-stream URL for the given client identifier.
func (c *Config) ServerWebsocketURL(clientID string) string {
	return fmt.Sprintf("ws://%s:%d/ws?clientId=%s", c.Server.Host, c.Server.Port, url.QueryEscape(clientID))
}

// ManagedServer reports whether this process owns the server lifecycle.
func (c *Config) ManagedServer() bool {
	return c.Server.Mode == ServerModeManaged
}

// ModelsRoot returns the directory holding model files, defaulting to the
// server installation's models directory.
func (c *Config) ModelsRoot() string {
	if strings.TrimSpace(c.Server.ModelsDir) != "" {
		return c.Server.ModelsDir
	}
	if strings.TrimSpace(c.Server.InstallDir) == "" {
		return ""
	}
	return filepath.Join(c.Server.InstallDir, "models")
}

// ServerLogPath returns the file the supervisor appends server output to.
func (c *Config) ServerLogPath() string {
	if c.Paths.LogDir == "" {
		return ""
	}
	return filepath.Join(c.Paths.LogDir, "server.log")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
