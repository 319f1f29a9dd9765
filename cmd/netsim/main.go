// netsim is the control CLI for a running netsimd. It locates the
// daemon through the discovery file and drives the HTTP surface.
package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/lcalzada-xor/netsim/internal/telemetry"
)

func main() {
	root := &cobra.Command{
		Use:     "netsim",
		Short:   "Control a running wireless network simulator",
		Version: telemetry.Version,
	}
	root.PersistentFlags().String("scene-dir", "", "Scene directory holding the discovery file")

	root.AddCommand(
		newVersionCmd(),
		newDevicesCmd(),
		newMoveCmd(),
		newRadioCmd(),
		newCaptureCmd(),
		newResetCmd(),
	)

	if err := root.Execute(); err != nil {
		log.SetFlags(0)
		log.Println(err)
		os.Exit(1)
	}
}
