package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command for the rewind client.
// It registers the session command group.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "rewind",
		Short: "Rewind client commands",
	}
	root.AddCommand(NewSessionCommand(baseURL))
	return root
}
