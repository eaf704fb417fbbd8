// Package cliconfig loads the ambient settings cmd/justbuild's commands run
// with (job count, cache layout, logging) from environment variables under
// the JUSTBUILD_ prefix, mirroring pkg/config's viper/env-prefix convention
// (there CODEFANG_, here JUSTBUILD_) without pulling in that package's
// server/cache/analysis schema, which describes a different process
// entirely.
package cliconfig

import (
	"strings"

	"github.com/spf13/viper"
)

const (
	defaultJobs           = 4
	defaultNumGenerations = 2
	defaultLogLevel       = "info"
	defaultLogFormat      = "text"
)

// Settings are the environment-overridable defaults a cobra command falls
// back to when its own flag is left unset.
type Settings struct {
	Jobs           int
	CacheDir       string
	NumGenerations int
	LogLevel       string
	LogFormat      string
	OTLPEndpoint   string
}

// Load reads JUSTBUILD_* environment variables over built-in defaults.
func Load() Settings {
	v := viper.New()

	v.SetDefault("jobs", defaultJobs)
	v.SetDefault("cache_dir", "")
	v.SetDefault("num_generations", defaultNumGenerations)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("log_format", defaultLogFormat)
	v.SetDefault("otlp_endpoint", "")

	v.SetEnvPrefix("JUSTBUILD")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return Settings{
		Jobs:           v.GetInt("jobs"),
		CacheDir:       v.GetString("cache_dir"),
		NumGenerations: v.GetInt("num_generations"),
		LogLevel:       v.GetString("log_level"),
		LogFormat:      v.GetString("log_format"),
		OTLPEndpoint:   v.GetString("otlp_endpoint"),
	}
}
