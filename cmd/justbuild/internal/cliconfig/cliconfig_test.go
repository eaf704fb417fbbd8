package cliconfig_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/codefang/cmd/justbuild/internal/cliconfig"
)

func TestLoadAppliesDefaultsWithNoEnv(t *testing.T) {
	s := cliconfig.Load()

	assert.Equal(t, 4, s.Jobs)
	assert.Equal(t, 2, s.NumGenerations)
	assert.Equal(t, "info", s.LogLevel)
	assert.Equal(t, "text", s.LogFormat)
	assert.Empty(t, s.OTLPEndpoint)
}

func TestLoadReadsJustbuildPrefixedEnv(t *testing.T) {
	t.Setenv("JUSTBUILD_JOBS", "9")
	t.Setenv("JUSTBUILD_LOG_LEVEL", "debug")

	s := cliconfig.Load()

	assert.Equal(t, 9, s.Jobs)
	assert.Equal(t, "debug", s.LogLevel)
}
