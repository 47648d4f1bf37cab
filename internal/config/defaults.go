package config

// DefaultServer is the origin of a spreads server running on this machine.
const DefaultServer = "http://127.0.0.1:5000"

// DefaultSimulatorAddr is where `spreadsctl simulate` listens by default.
const DefaultSimulatorAddr = "127.0.0.1:5000"

const (
	DefaultRequestTimeoutMs = 10000
	DefaultErrorBannerMs    = 5000
	DefaultInfoBannerMs     = 3000
	DefaultCaptureDelayMs   = 400
	DefaultStageDelayMs     = 300

	DefaultCommandsPerSecond = 10
)
