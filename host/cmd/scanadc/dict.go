package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"scanadc/host/scanlink"
)

func init() {
	rootCmd.AddCommand(dictCmd)
}

var dictCmd = &cobra.Command{
	Use:   "dict",
	Short: "Print the firmware dictionary",
	Long:  `Download the message dictionary from the board and print its messages, constants and inputs.`,
	Args:  cobra.NoArgs,
	RunE:  printDict,
}

func printDict(cmd *cobra.Command, args []string) error {
	sess, err := openSession(context.Background(), cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	out := cmd.OutOrStdout()
	d := sess.dict
	fmt.Fprintf(out, "version: %s\nbuild:   %s\n", d.Version, d.BuildVersions)
	fmt.Fprintln(out, "constants:")
	for _, k := range sortedKeys(d.Config) {
		fmt.Fprintf(out, "  %-24s %s\n", k, d.Config[k])
	}
	printMessages(cmd, "commands:", d.Commands)
	printMessages(cmd, "responses:", d.Responses)
	if inputs := d.Enumerations[scanlink.InputEnumeration]; len(inputs) > 0 {
		fmt.Fprintln(out, "inputs:")
		for _, name := range sortedKeys(inputs) {
			fmt.Fprintf(out, "  %-8s %d\n", name, inputs[name])
		}
	}
	return nil
}

func printMessages(cmd *cobra.Command, title string, m map[string]int) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, title)
	keys := sortedKeys(m)
	sort.Slice(keys, func(i, j int) bool { return m[keys[i]] < m[keys[j]] })
	for _, k := range keys {
		fmt.Fprintf(out, "  %3d %s\n", m[k], k)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
