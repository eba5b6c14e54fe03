package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mohammednabarawy/video-gen/internal/presets"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateGeneration(); err != nil {
		return err
	}
	if err := c.validateRecovery(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateServer() error {
	switch c.Server.Mode {
	case ServerModeManaged, ServerModeExternal:
	default:
		return fmt.Errorf("server.mode must be %q or %q", ServerModeManaged, ServerModeExternal)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	if c.Server.Mode == ServerModeManaged && c.Server.InstallDir == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/videogen/config.toml"
		}
		return fmt.Errorf("server.install_dir is required when server.mode is %q. Set VIDEOGEN_COMFYUI_DIR env var or edit %s (create with 'videogen config init')", ServerModeManaged, defaultPath)
	}
	return nil
}

func (c *Config) validateGeneration() error {
	if _, ok := presets.ResolutionByName(c.Generation.Resolution); !ok {
		return fmt.Errorf("generation.resolution must be one of %s", strings.Join(presets.ResolutionNames(), ", "))
	}
	if _, ok := presets.AspectRatioByName(c.Generation.AspectRatio); !ok {
		return fmt.Errorf("generation.aspect_ratio must be one of %s", strings.Join(presets.AspectRatioNames(), ", "))
	}
	if _, ok := presets.StyleByName(c.Generation.Style); !ok {
		return fmt.Errorf("generation.style must be one of %s (or none)", strings.Join(presets.StyleNames(), ", "))
	}
	if _, ok := presets.TierByName(c.Generation.Tier); !ok {
		return fmt.Errorf("generation.tier must be one of %s", strings.Join(presets.TierNames(), ", "))
	}
	if c.Generation.Steps < 1 || c.Generation.Steps > 200 {
		return errors.New("generation.steps must be between 1 and 200")
	}
	return nil
}

func (c *Config) validateRecovery() error {
	if len(c.Recovery.OOMTriggers) == 0 {
		return errors.New("recovery.oom_triggers must include at least one signature")
	}
	if len(c.Recovery.EnvironmentTriggers) == 0 {
		return errors.New("recovery.environment_triggers must include at least one signature")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}
