package core

import "errors"

var (
	ErrNoChannels     = errors.New("scan: channel table is empty")
	ErrAveragingRange = errors.New("scan: averaging_log2 out of range (0-15)")
	ErrChannelRange   = errors.New("scan: channel index out of range")
	ErrNotRunning     = errors.New("scan: no active session")
)

// MaxAveragingLog2 is the deepest averaging window, 2^15 conversions.
const MaxAveragingLog2 = 15

// Selector identifies the physical input the converter reads. The value is
// passed to the ScanDriver untouched, including any extended mux bit.
type Selector uint8

// AveragingLog2 is the log2 of the number of raw conversions combined into
// one published sample.
type AveragingLog2 uint8

// Valid reports whether n is within 0..MaxAveragingLog2.
func (n AveragingLog2) Valid() bool {
	return n <= MaxAveragingLog2
}

// Count returns the averaging depth 2^n.
func (n AveragingLog2) Count() uint32 {
	return 1 << n
}

// ChannelConfig describes one entry of the scan table.
type ChannelConfig struct {
	Selector  Selector
	Averaging AveragingLog2
}

// validateTable checks a table before a session is armed.
func validateTable(table []ChannelConfig) error {
	if len(table) == 0 {
		return ErrNoChannels
	}
	for i := range table {
		if !table[i].Averaging.Valid() {
			return ErrAveragingRange
		}
	}
	return nil
}

// ScanPeriod returns the number of conversion events one full scan of table
// takes. Each channel spends one event selecting its input, one discarding the
// settle conversion and 2^n accumulating.
func ScanPeriod(table []ChannelConfig) uint64 {
	var events uint64
	for _, c := range table {
		events += 2 + uint64(c.Averaging.Count())
	}
	return events
}
