// Command peerbookctl drives a peer address book from a scripted event
// replay for local experimentation and incident drills. It has no network
// I/O of its own — the book's real collaborator is a connection manager,
// which this tool stands in for by replaying a JSON event script.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var scriptPath string

var rootCmd = &cobra.Command{
	Use:   "peerbookctl",
	Short: "Inspect and drive a peer address book from a scripted event replay",
}

func main() {
	rootCmd.PersistentFlags().StringVar(&scriptPath, "script", "", "path to a JSON event replay script (empty starts from an empty book)")
	rootCmd.AddCommand(queryCmd, statsCmd, banCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
