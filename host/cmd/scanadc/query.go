package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"scanadc/core"
	"scanadc/host/scanlink"
)

func init() {
	queryCmd.Flags().StringP("channels", "C", "", "channels to scan, as input[:averaging_log2],...")
	queryCmd.Flags().BoolVarP(&queryOpts.Keep, "keep", "k", false, "leave the scan running on exit")
	queryCmd.Flags().DurationVarP(&queryOpts.Wait, "wait", "w", 2*time.Second, "how long to wait for the first complete scan")
	rootCmd.AddCommand(queryCmd)
}

var (
	queryCmd = &cobra.Command{
		Use:   "query",
		Short: "Scan a set of channels once and print the results",
		Long:  `Start a scan of the given channels, wait for it to complete once and print the averaged value of each channel.`,
		Args:  cobra.NoArgs,
		RunE:  query,
	}
	queryOpts = struct {
		Keep bool
		Wait time.Duration
	}{}
)

func query(cmd *cobra.Command, args []string) error {
	sess, err := openSession(context.Background(), cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	table, err := sess.startScan(context.Background())
	if err != nil {
		return err
	}
	if !queryOpts.Keep {
		defer func() {
			if err := sess.link.Stop(context.Background()); err != nil {
				logErr(cmd, err)
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryOpts.Wait)
	defer cancel()
	report, err := firstScan(ctx, sess.link)
	if err != nil {
		return err
	}
	printReport(cmd.OutOrStdout(), sess.dict, table, report)
	return nil
}

// startScan stages and starts the configured channel table.
func (sess *session) startScan(ctx context.Context) ([]core.ChannelConfig, error) {
	specs, err := parseChannels(sess.settings.Channels)
	if err != nil {
		return nil, err
	}
	table, err := channelTable(sess.dict, specs)
	if err != nil {
		return nil, err
	}
	if err := sess.link.Start(ctx, table); err != nil {
		return nil, err
	}
	sess.verbosef("scanning %d channels, %d conversions per scan", len(table), core.ScanPeriod(table))
	return table, nil
}

// firstScan polls until the last channel has published at least once.
// Start resets the sequence counters, so a zero sequence means no scan has
// completed yet.
func firstScan(ctx context.Context, link *scanlink.Link) (scanlink.Report, error) {
	for {
		report, err := link.Query(ctx)
		if err != nil {
			return report, err
		}
		if report.Seq != 0 {
			return report, nil
		}
		select {
		case <-ctx.Done():
			return report, errors.Wrap(ctx.Err(), "waiting for first scan")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func printReport(w io.Writer, dict *scanlink.Dictionary, table []core.ChannelConfig, r scanlink.Report) {
	for i, v := range r.Samples {
		name := fmt.Sprint(i)
		if i < len(table) {
			name = dict.InputName(uint8(table[i].Selector))
		}
		fmt.Fprintf(w, "%-8s %5d\n", name, v)
	}
}
