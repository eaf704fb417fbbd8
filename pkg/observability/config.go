package observability

import "log/slog"

// AppMode distinguishes which surface a process is running as, recorded on
// every log line and as an "app.mode" resource attribute on emitted spans.
type AppMode string

const (
	// ModeCLI is a one-shot command invocation (analyse, build, install, ...).
	ModeCLI AppMode = "cli"
	// ModeServe is a long-running process, e.g. a cache or execution service.
	ModeServe AppMode = "serve"
)

// defaultShutdownTimeoutSec bounds how long Shutdown waits for pending spans
// and metrics to flush before giving up.
const defaultShutdownTimeoutSec = 5

// Config selects the tracing, metrics, and logging behavior Init builds.
// The zero value is not directly usable; start from DefaultConfig.
type Config struct {
	// ServiceName/ServiceVersion/Environment populate the OTel resource.
	ServiceName    string
	ServiceVersion string
	Environment    string

	// Mode is recorded as the "app.mode" resource attribute.
	Mode AppMode

	// OTLPEndpoint is the OTLP/gRPC collector address. Empty selects no-op
	// tracer/meter providers with zero export overhead.
	OTLPEndpoint string
	OTLPInsecure bool
	OTLPHeaders  map[string]string

	// SampleRatio is the trace sampling ratio used when no OTEL_TRACES_SAMPLER
	// environment variable is set and DebugTrace is false. Zero selects
	// always-on parent-based sampling.
	SampleRatio float64

	// DebugTrace forces always-on sampling and logs spans rejected by the
	// attribute filter.
	DebugTrace bool

	// LogLevel and LogJSON select the slog handler's verbosity and encoding.
	LogLevel slog.Level
	LogJSON  bool

	// ShutdownTimeoutSec bounds Providers.Shutdown.
	ShutdownTimeoutSec int
}

// DefaultConfig returns the configuration a bare CLI invocation runs with:
// no OTLP export, info-level text logging to stderr.
func DefaultConfig() Config {
	return Config{
		ServiceName:        "justbuild",
		Mode:               ModeCLI,
		LogLevel:           slog.LevelInfo,
		ShutdownTimeoutSec: defaultShutdownTimeoutSec,
	}
}
