package main

import (
	"fmt"
	"time"

	"github.com/latticenet/peerbook/pkg/peeraddress"
	"github.com/spf13/cobra"
)

var banDuration time.Duration

var banCmd = &cobra.Command{
	Use:   "ban <identity-key-hex>",
	Short: "Replay the script, then ban an address by identity key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		book, err := newBookFromScript(scriptPath)
		if err != nil {
			return err
		}
		key, err := parseKey(args[0])
		if err != nil {
			return err
		}
		book.Ban(peeraddress.PeerAddress{Key: key}, banDuration.Milliseconds())
		fmt.Printf("banned %s for %s\n", args[0], banDuration)
		return nil
	},
}

func init() {
	banCmd.Flags().DurationVar(&banDuration, "duration", 10*time.Minute, "ban duration (0 uses the book's default)")
}
