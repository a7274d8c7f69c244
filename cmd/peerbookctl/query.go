package main

import (
	"encoding/hex"
	"fmt"

	"github.com/latticenet/peerbook/internal/addrbook"
	"github.com/spf13/cobra"
)

var (
	queryMaxAddresses int
	queryProtocols    []string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "List the addresses currently eligible for dialing/gossip",
	RunE: func(cmd *cobra.Command, args []string) error {
		book, err := newBookFromScript(scriptPath)
		if err != nil {
			return err
		}
		mask := protocolMaskFromFlags(queryProtocols)
		addrs := book.Query(mask, 0, queryMaxAddresses)
		for _, a := range addrs {
			fmt.Printf("%s  %-5s  %s  services=%d\n", hex.EncodeToString(a.Key[:]), a.Protocol, a.NetAddress, a.Services)
		}
		fmt.Printf("%d address(es)\n", len(addrs))
		return nil
	},
}

func init() {
	queryCmd.Flags().IntVar(&queryMaxAddresses, "max", addrbook.DefaultMaxAddresses, "maximum addresses to return")
	queryCmd.Flags().StringSliceVar(&queryProtocols, "protocol", []string{"ws", "rtc", "dumb"}, "protocols to include")
}

func protocolMaskFromFlags(protocols []string) addrbook.ProtocolMask {
	var mask addrbook.ProtocolMask
	for _, p := range protocols {
		switch p {
		case "ws":
			mask |= addrbook.ProtocolMaskWS
		case "rtc":
			mask |= addrbook.ProtocolMaskRTC
		case "dumb":
			mask |= addrbook.ProtocolMaskDumb
		}
	}
	return mask
}
