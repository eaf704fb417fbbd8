package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Sumatoshi-tech/codefang/pkg/expr"
	"github.com/Sumatoshi-tech/codefang/pkg/targetfile"
)

// UsageError marks a cobra RunE failure that should exit 2 rather than 1:
// malformed flags/arguments rather than a build-time failure.
type UsageError struct {
	err error
}

func (e *UsageError) Error() string { return e.err.Error() }
func (e *UsageError) Unwrap() error { return e.err }

// NewUsageError wraps err as a UsageError.
func NewUsageError(format string, args ...any) error {
	return &UsageError{err: fmt.Errorf(format, args...)}
}

// ExitCode maps err to the process exit code cmd/justbuild reports: 0 for
// nil, 2 for a UsageError, 1 for anything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var usageErr *UsageError
	if errors.As(err, &usageErr) {
		return 2
	}

	return 1
}

// ParseTargetArg parses a single positional target-expression argument: a
// bare "module#name" reference, or a JSON list of such references for
// multi-target invocations.
func ParseTargetArg(raw string) ([]expr.Name, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, NewUsageError("target expression must not be empty")
	}

	if strings.HasPrefix(trimmed, "[") {
		var refs []string
		if err := json.Unmarshal([]byte(trimmed), &refs); err != nil {
			return nil, NewUsageError("malformed JSON target list %q: %v", raw, err)
		}

		if len(refs) == 0 {
			return nil, NewUsageError("JSON target list must not be empty")
		}

		names := make([]expr.Name, 0, len(refs))

		for _, r := range refs {
			n, err := targetfile.ParseName(r)
			if err != nil {
				return nil, NewUsageError("%v", err)
			}

			names = append(names, n)
		}

		return names, nil
	}

	n, err := targetfile.ParseName(trimmed)
	if err != nil {
		return nil, NewUsageError("%v", err)
	}

	return []expr.Name{n}, nil
}
