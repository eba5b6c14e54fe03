package config

const (
	defaultDataDir   = "~/.local/share/videogen"
	defaultLogDir    = "~/.local/share/videogen/logs"
	defaultOutputDir = "~/Videos/videogen"

	defaultServerMode     = ServerModeManaged
	defaultServerHost     = "127.0.0.1"
	defaultServerPort     = 8188
	defaultEntryPoint     = "main.py"
	defaultStartupTimeout = 120
	defaultLowMemoryArg   = "--lowvram"

	defaultResolution        = "720p"
	defaultAspectRatio       = "16:9"
	defaultFrames            = 73
	defaultFPS               = 25
	defaultSteps             = 20
	defaultCFG               = 7.0
	defaultStyle             = "cinematic"
	defaultTier              = "medium"
	defaultGenerationTimeout = 600

	defaultTransientRetryDelay = 5

	defaultNotifyRequestTimeout = 10

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default OOM signatures cover the torch allocator wording across CUDA and
// the generic device-allocation failure text.
func defaultOOMTriggers() []string {
	return []string{
		"outofmemoryerror",
		"out of memory",
		"allocation on device",
	}
}

// Default environment signatures cover the embedded-interpreter logging
// defect where the server's stdout handle goes bad mid-run.
func defaultEnvironmentTriggers() []string {
	return []string{
		"errno 22",
		"invalid argument",
		"winerror 6",
		"handle is invalid",
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			LogDir:    defaultLogDir,
			OutputDir: defaultOutputDir,
		},
		Server: Server{
			Mode:           defaultServerMode,
			Host:           defaultServerHost,
			Port:           defaultServerPort,
			EntryPoint:     defaultEntryPoint,
			StartupTimeout: defaultStartupTimeout,
			LowMemoryArg:   defaultLowMemoryArg,
		},
		Generation: Generation{
			Resolution:     defaultResolution,
			AspectRatio:    defaultAspectRatio,
			Frames:         defaultFrames,
			FPS:            defaultFPS,
			Steps:          defaultSteps,
			CFG:            defaultCFG,
			Style:          defaultStyle,
			Tier:           defaultTier,
			TimeoutSeconds: defaultGenerationTimeout,
		},
		Recovery: Recovery{
			OOMTriggers:         defaultOOMTriggers(),
			EnvironmentTriggers: defaultEnvironmentTriggers(),
			TransientRetryDelay: defaultTransientRetryDelay,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
