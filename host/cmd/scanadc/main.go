// scanadc talks to a board running the background ADC scanner: it stages a
// channel table, starts scanning and reads the averaged results back.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"scanadc/protocol"
)

var rootCmd = &cobra.Command{
	Use:   "scanadc",
	Short: "scanadc controls the background ADC scanner on a connected board",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	Version: protocol.Version,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("device", "d", "", "serial device of the board")
	pf.IntP("baud", "b", 0, "baud rate (ignored for USB CDC)")
	pf.Duration("timeout", 0, "serial read timeout")
	pf.StringP("config-file", "c", "", "JSON config file")
	pf.BoolP("verbose", "v", false, "report link details on stderr")
	pf.Bool("simulate", false, "run against an in-process simulated board")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func logErr(cmd *cobra.Command, err error) {
	fmt.Fprintf(os.Stderr, "scanadc %s: %s\n", cmd.Name(), err)
}
