package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"scanadc/core"
	"scanadc/host/scanlink"
)

func init() {
	monCmd.Flags().StringP("channels", "C", "", "channels to scan, as input[:averaging_log2],...")
	monCmd.Flags().IntP("num-reports", "n", 0, "exit after n reports")
	monCmd.Flags().BoolVarP(&monOpts.Quiet, "quiet", "q", false, "don't display reports, only the summary")
	rootCmd.AddCommand(monCmd)
}

var (
	monCmd = &cobra.Command{
		Use:   "monitor",
		Short: "Stream scan results",
		Long:  `Start a scan and print every report the board streams until interrupted.`,
		Args:  cobra.NoArgs,
		RunE:  monitor,
	}
	monOpts = struct {
		Quiet bool
	}{}
)

func monitor(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	sess, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	table, err := sess.startScan(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.link.Stop(ctx); err != nil {
			logErr(cmd, err)
		}
	}()
	if err := sess.link.EnableReports(ctx, true); err != nil {
		return err
	}
	count := monWait(cmd, sess, table)
	fmt.Fprintf(cmd.OutOrStdout(), "%d reports, %d dropped\n", count, sess.link.Dropped())
	return nil
}

func monWait(cmd *cobra.Command, sess *session, table []core.ChannelConfig) int {
	sigdone := make(chan os.Signal, 1)
	signal.Notify(sigdone, os.Interrupt)
	defer signal.Stop(sigdone)

	out := cmd.OutOrStdout()
	limit := sess.settings.Count
	count := 0
	for {
		select {
		case r := <-sess.link.Reports():
			count++
			if !monOpts.Quiet {
				fmt.Fprintf(out, "%s seq:%3d %s\n", r.Received.Format(time.RFC3339Nano), r.Seq, formatSamples(sess.dict, table, r))
			}
			if limit > 0 && count >= limit {
				return count
			}
		case <-sigdone:
			return count
		}
	}
}

func formatSamples(dict *scanlink.Dictionary, table []core.ChannelConfig, r scanlink.Report) string {
	s := ""
	for i, v := range r.Samples {
		if i > 0 {
			s += " "
		}
		if i < len(table) {
			s += dict.InputName(uint8(table[i].Selector)) + "="
		}
		s += fmt.Sprint(v)
	}
	return s
}
