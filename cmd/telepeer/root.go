package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	peer := newPeerCmd()

	root := &cobra.Command{
		Use:   "telepeer",
		Short: "telepeer - telemetry request/ack exchange demo",
		Long: `telepeer binds a responder and a requester in one process and runs a
number of four-step exchanges of a telemetry record between them, using the
selected codec and transport. radio and dish publish and receive the same
record over a group bus.`,
		SilenceUsage: true,
		// bare `telepeer` behaves like `telepeer peer`
		Args: cobra.NoArgs,
		RunE: peer.RunE,
	}
	root.Flags().AddFlagSet(peer.Flags())

	root.AddCommand(peer, newRadioCmd(), newDishCmd())
	return root
}
