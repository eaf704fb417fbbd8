package commands

import (
	"errors"

	"github.com/spf13/cobra"
)

// errRemoteExecutionNotImplemented is returned verbatim by "execute"; remote
// execution is a named external collaborator this binary does not implement.
var errRemoteExecutionNotImplemented = errors.New("not implemented: remote execution is a named external collaborator")

// NewExecuteCommand builds the "execute" subcommand stub: dispatching an
// action to a remote execution service is out of scope for this binary.
func NewExecuteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Dispatch an action to a remote execution service (not implemented)",
		RunE: func(_ *cobra.Command, _ []string) error {
			return errRemoteExecutionNotImplemented
		},
	}

	return cmd
}
