package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print store size and connecting count after replaying the script",
	RunE: func(cmd *cobra.Command, args []string) error {
		book, err := newBookFromScript(scriptPath)
		if err != nil {
			return err
		}
		fmt.Printf("size=%d connecting=%d\n", book.Size(), book.ConnectingCount())
		return nil
	},
}
