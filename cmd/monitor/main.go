// Command monitor is macscope's entrypoint: `monitor serve` runs the full
// scan loop and HTTP/websocket API, `monitor scan-once` runs a single pass
// and prints the result, `monitor hash-secret` prepares an admin secret for
// configuration.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "monitor",
		Short:         "macscope host security monitor",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newScanOnceCmd())
	root.AddCommand(newHashSecretCmd())

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
