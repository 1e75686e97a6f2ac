package config

const (
	defaultOutputDir                = "/data/local/traces"
	defaultPerfettoBinary           = "perfetto"
	defaultSessionTag               = "traceur"
	defaultStartupTimeoutSeconds    = 10
	defaultStopTimeoutSeconds       = 30
	defaultListTimeoutSeconds       = 10
	defaultBufferSizeKB             = 16384
	defaultLongTraceSizeMB          = 10240
	defaultLongTraceDurationMinutes = 30
	defaultRetentionMinKeepCount    = 3
	defaultRetentionMinKeepAgeDays  = 28
	defaultLogFormat                = "text"
	defaultLogLevel                 = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
		},
		Perfetto: Perfetto{
			Binary:                defaultPerfettoBinary,
			SessionTag:            defaultSessionTag,
			StartupTimeoutSeconds: defaultStartupTimeoutSeconds,
			StopTimeoutSeconds:    defaultStopTimeoutSeconds,
			ListTimeoutSeconds:    defaultListTimeoutSeconds,
		},
		Recording: Recording{
			DefaultBufferSizeKB:             defaultBufferSizeKB,
			DefaultLongTraceSizeMB:          defaultLongTraceSizeMB,
			DefaultLongTraceDurationMinutes: defaultLongTraceDurationMinutes,
			AttachToBugreport:               true,
		},
		Retention: Retention{
			MinKeepCount:   defaultRetentionMinKeepCount,
			MinKeepAgeDays: defaultRetentionMinKeepAgeDays,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
