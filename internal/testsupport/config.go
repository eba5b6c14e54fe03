package testsupport

import (
	"path/filepath"
	"testing"

	"github.com/mohammednabarawy/video-gen/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults to an external server so tests never launch anything; opt in
// to a managed installation explicitly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Server.Mode = config.ServerModeExternal

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithInstallDir switches the config to managed mode rooted at the given
// installation directory.
func WithInstallDir(path string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.Mode = config.ServerModeManaged
		b.cfg.Server.InstallDir = path
	}
}

// WithServerAddress points the config at an already-running server.
func WithServerAddress(host string, port int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.Host = host
		b.cfg.Server.Port = port
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
