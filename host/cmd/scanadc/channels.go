package main

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"scanadc/core"
	"scanadc/host/scanlink"
)

// channelSpec is one "input[:averaging_log2]" entry of --channels.
type channelSpec struct {
	Input     string
	Averaging core.AveragingLog2
}

// parseChannels splits a comma separated channel list, e.g. "A0:3,A8".
// Averaging defaults to 0, a single conversion per result.
func parseChannels(arg string) ([]channelSpec, error) {
	var specs []channelSpec
	for _, field := range strings.Split(arg, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		spec := channelSpec{Input: field}
		if i := strings.IndexByte(field, ':'); i >= 0 {
			spec.Input = field[:i]
			n, err := strconv.ParseUint(field[i+1:], 10, 8)
			if err != nil {
				return nil, errors.Errorf("can't parse averaging in '%s'", field)
			}
			if n > core.MaxAveragingLog2 {
				return nil, errors.Errorf("averaging %d in '%s' exceeds %d", n, field, core.MaxAveragingLog2)
			}
			spec.Averaging = core.AveragingLog2(n)
		}
		if spec.Input == "" {
			return nil, errors.Errorf("missing input in '%s'", field)
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil, core.ErrNoChannels
	}
	return specs, nil
}

// channelTable resolves input names against the firmware dictionary.
func channelTable(dict *scanlink.Dictionary, specs []channelSpec) ([]core.ChannelConfig, error) {
	table := make([]core.ChannelConfig, len(specs))
	for i, spec := range specs {
		sel, err := dict.Selector(spec.Input)
		if err != nil {
			return nil, err
		}
		table[i] = core.ChannelConfig{Selector: core.Selector(sel), Averaging: spec.Averaging}
	}
	return table, nil
}
