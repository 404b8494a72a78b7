package main

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/duskbridge/strata/pkg/client"
)

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Fetch a single key's value from a running Query server",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

var prefixCmd = &cobra.Command{
	Use:   "prefix <prefix>",
	Short: "Stream every key/value pair under a prefix",
	Args:  cobra.ExactArgs(1),
	RunE:  runPrefix,
}

var watchCmd = &cobra.Command{
	Use:   "watch <key-regex>",
	Short: "Stream post-commit updates matching a key regex",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	for _, c := range []*cobra.Command{getCmd, prefixCmd, watchCmd} {
		c.Flags().String("addr", "localhost:8081", "Query server address")
	}
	getCmd.Flags().Bool("proof", false, "Include a two-level Merkle proof in the response")
	getCmd.Flags().String("chain-id", "", "Chain ID to route the lookup through")
	prefixCmd.Flags().String("chain-id", "", "Chain ID to route the scan through")
	watchCmd.Flags().String("nv-key-regex", "", "Regex over non-verifiable keys to also match")
}

func runGet(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	withProof, _ := cmd.Flags().GetBool("proof")
	chainID, _ := cmd.Flags().GetString("chain-id")

	c, err := client.New(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	resp, err := c.KeyValue(context.Background(), chainID, args[0], withProof)
	if err != nil {
		return err
	}
	if !resp.Found {
		fmt.Println("(not found)")
		return nil
	}
	fmt.Printf("%s\n", resp.Value)
	if withProof {
		fmt.Printf("outer proof present: %v\n", resp.Outer != nil)
		fmt.Printf("inner proof present: %v\n", resp.Inner != nil)
	}
	return nil
}

func runPrefix(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	chainID, _ := cmd.Flags().GetString("chain-id")

	c, err := client.New(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	entries, err := c.PrefixValue(context.Background(), chainID, args[0])
	if err != nil {
		return err
	}
	for e := range entries {
		fmt.Printf("%s\t%s\n", e.Key, e.Value)
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	nvKeyRegex, _ := cmd.Flags().GetString("nv-key-regex")

	c, err := client.New(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	entries, err := c.Watch(context.Background(), args[0], nvKeyRegex)
	if err != nil {
		return err
	}
	for e := range entries {
		key := e.Key
		if key == "" && len(e.NvKey) > 0 {
			key = hex.EncodeToString(e.NvKey)
		}
		if e.Deleted {
			fmt.Printf("v%d DELETE %s\n", e.Version, key)
		} else {
			fmt.Printf("v%d PUT %s = %s\n", e.Version, key, e.Value)
		}
	}
	return nil
}
