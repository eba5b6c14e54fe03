package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeServer(); err != nil {
		return err
	}
	c.normalizeGeneration()
	c.normalizeRecovery()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeServer() error {
	var err error
	c.Server.Mode = strings.ToLower(strings.TrimSpace(c.Server.Mode))
	if c.Server.Mode == "" {
		c.Server.Mode = defaultServerMode
	}
	c.Server.Host = strings.TrimSpace(c.Server.Host)
	if c.Server.Host == "" {
		c.Server.Host = defaultServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultServerPort
	}
	c.Server.InstallDir = strings.TrimSpace(c.Server.InstallDir)
	if c.Server.InstallDir == "" {
		if value, ok := os.LookupEnv("VIDEOGEN_COMFYUI_DIR"); ok {
			c.Server.InstallDir = strings.TrimSpace(value)
		}
	}
	if c.Server.InstallDir != "" {
		if c.Server.InstallDir, err = expandPath(c.Server.InstallDir); err != nil {
			return fmt.Errorf("server.install_dir: %w", err)
		}
	}
	c.Server.EntryPoint = strings.TrimSpace(c.Server.EntryPoint)
	if c.Server.EntryPoint == "" {
		c.Server.EntryPoint = defaultEntryPoint
	}
	c.Server.PythonPath = strings.TrimSpace(c.Server.PythonPath)
	if c.Server.PythonPath != "" {
		if c.Server.PythonPath, err = expandPath(c.Server.PythonPath); err != nil {
			return fmt.Errorf("server.python_path: %w", err)
		}
	}
	c.Server.ModelsDir = strings.TrimSpace(c.Server.ModelsDir)
	if c.Server.ModelsDir != "" {
		if c.Server.ModelsDir, err = expandPath(c.Server.ModelsDir); err != nil {
			return fmt.Errorf("server.models_dir: %w", err)
		}
	}
	if c.Server.StartupTimeout <= 0 {
		c.Server.StartupTimeout = defaultStartupTimeout
	}
	c.Server.LowMemoryArg = strings.TrimSpace(c.Server.LowMemoryArg)
	if c.Server.LowMemoryArg == "" {
		c.Server.LowMemoryArg = defaultLowMemoryArg
	}
	args := make([]string, 0, len(c.Server.ExtraArgs))
	for _, arg := range c.Server.ExtraArgs {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			args = append(args, trimmed)
		}
	}
	c.Server.ExtraArgs = args
	return nil
}

func (c *Config) normalizeGeneration() {
	c.Generation.Resolution = strings.ToLower(strings.TrimSpace(c.Generation.Resolution))
	if c.Generation.Resolution == "" {
		c.Generation.Resolution = defaultResolution
	}
	c.Generation.AspectRatio = strings.TrimSpace(c.Generation.AspectRatio)
	if c.Generation.AspectRatio == "" {
		c.Generation.AspectRatio = defaultAspectRatio
	}
	if c.Generation.Frames <= 0 {
		c.Generation.Frames = defaultFrames
	}
	if c.Generation.FPS <= 0 {
		c.Generation.FPS = defaultFPS
	}
	if c.Generation.Steps <= 0 {
		c.Generation.Steps = defaultSteps
	}
	if c.Generation.CFG <= 0 {
		c.Generation.CFG = defaultCFG
	}
	c.Generation.Style = strings.ToLower(strings.TrimSpace(c.Generation.Style))
	c.Generation.Tier = strings.ToLower(strings.TrimSpace(c.Generation.Tier))
	if c.Generation.Tier == "" {
		c.Generation.Tier = defaultTier
	}
	if c.Generation.TimeoutSeconds <= 0 {
		c.Generation.TimeoutSeconds = defaultGenerationTimeout
	}
}

func (c *Config) normalizeRecovery() {
	c.Recovery.OOMTriggers = normalizeTriggers(c.Recovery.OOMTriggers, defaultOOMTriggers())
	c.Recovery.EnvironmentTriggers = normalizeTriggers(c.Recovery.EnvironmentTriggers, defaultEnvironmentTriggers())
	if c.Recovery.TransientRetryDelay <= 0 {
		c.Recovery.TransientRetryDelay = defaultTransientRetryDelay
	}
}

func normalizeTriggers(values, fallback []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		normalized := strings.ToLower(strings.TrimSpace(value))
		if normalized == "" {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
