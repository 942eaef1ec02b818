package config

const (
	defaultBoxURL                 = "http://127.0.0.1:5000"
	defaultPollIntervalSeconds    = 2
	defaultPollTimeoutSeconds     = 2
	defaultLabelsTimeoutSeconds   = 5
	defaultRegisterTimeoutSeconds = 120
	defaultReconnectDelaySeconds  = 5
	defaultStreamIdleSeconds      = 15
	defaultMaxFrameBufferMiB      = 8

	defaultPresenceCooldownSeconds = 10
	defaultSweepIntervalSeconds    = 1

	defaultUnknownCooldownSeconds = 20
	defaultAlertWindowSeconds     = 180
	defaultAlertThreshold         = 3

	defaultEventMemoryLimit  = 100
	defaultEventPersistLimit = 20

	defaultLabelTTLSeconds = 300

	defaultStorageType = "sqlite"
	defaultDataDir     = "~/.local/share/homecam"
	defaultDBFile      = "homecam.db"

	defaultAPIBind = "127.0.0.1:8080"

	defaultNtfyRequestTimeout = 10
	defaultNotifyQueueSize    = 32

	defaultLogFormat = "auto"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Box: Box{
			URL:                    defaultBoxURL,
			PollIntervalSeconds:    defaultPollIntervalSeconds,
			PollTimeoutSeconds:     defaultPollTimeoutSeconds,
			LabelsTimeoutSeconds:   defaultLabelsTimeoutSeconds,
			RegisterTimeoutSeconds: defaultRegisterTimeoutSeconds,
			ReconnectDelaySeconds:  defaultReconnectDelaySeconds,
			StreamIdleSeconds:      defaultStreamIdleSeconds,
			MaxFrameBufferMiB:      defaultMaxFrameBufferMiB,
		},
		Presence: Presence{
			CooldownSeconds:      defaultPresenceCooldownSeconds,
			SweepIntervalSeconds: defaultSweepIntervalSeconds,
		},
		Alerts: Alerts{
			UnknownCooldownSeconds: defaultUnknownCooldownSeconds,
			WindowSeconds:          defaultAlertWindowSeconds,
			Threshold:              defaultAlertThreshold,
		},
		Events: Events{
			MemoryLimit:  defaultEventMemoryLimit,
			PersistLimit: defaultEventPersistLimit,
		},
		Roster: Roster{
			LabelTTLSeconds: defaultLabelTTLSeconds,
		},
		Storage: Storage{
			Type:    defaultStorageType,
			DataDir: defaultDataDir,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
			QueueSize:      defaultNotifyQueueSize,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
