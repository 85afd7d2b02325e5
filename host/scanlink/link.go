// Package scanlink is the host client for the scanning firmware: it
// downloads the dictionary, configures and starts scans, polls them and
// collects streamed reports.
package scanlink

import (
	"context"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"scanadc/core"
	"scanadc/host/serial"
	"scanadc/protocol"
)

// Bootstrap ids, fixed before the dictionary is known.
const (
	identifyResponseID = 0
	identifyID         = 1
)

// IdentifyChunk is the dictionary chunk size requested per identify.
const IdentifyChunk = 40

var (
	ErrNoDictionary = errors.New("dictionary not loaded, call Identify")
	ErrNoResponse   = errors.New("firmware acknowledged without responding")
)

// Report is one scan_state: the latest value of every channel.
type Report struct {
	// Seq is the sequence counter of the last channel at the time of the
	// report. It advances once per completed scan.
	Seq      uint8
	Samples  []core.ADCValue
	Received time.Time
}

// ScanError is a scan_error returned by the firmware.
type ScanError struct {
	Code uint8
}

func (e *ScanError) Error() string {
	switch e.Code {
	case core.ScanErrStagedMissing:
		return "scan: channel not configured before start_scan"
	default:
		if cause := e.Unwrap(); cause != nil {
			return cause.Error()
		}
		return "scan: error code " + strconv.Itoa(int(e.Code))
	}
}

// Unwrap maps the code back to the firmware's error value.
func (e *ScanError) Unwrap() error {
	switch e.Code {
	case core.ScanErrNoChannels:
		return core.ErrNoChannels
	case core.ScanErrAveraging:
		return core.ErrAveragingRange
	case core.ScanErrChannelRange:
		return core.ErrChannelRange
	case core.ScanErrNotRunning:
		return core.ErrNotRunning
	}
	return nil
}

// Link is a connection to one scanning firmware.
type Link struct {
	transport *protocol.HostTransport

	cmdMu sync.Mutex // one command and its responses at a time

	mu           sync.Mutex
	dict         *Dictionary
	scanStateID  int
	scanErrorID  int
	lastState    *Report
	lastError    *ScanError
	lastIdentify []byte
	lastOffset   uint32
	streaming    bool

	reports chan Report
	dropped uint64
}

// Open connects to the firmware on a serial port.
func Open(cfg *serial.Config) (*Link, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	return New(port), nil
}

// New runs a Link over an already open port. The Link owns the port.
func New(port io.ReadWriteCloser) *Link {
	l := &Link{
		transport:   protocol.NewHostTransport(port),
		scanStateID: -1,
		scanErrorID: -1,
		reports:     make(chan Report, 64),
	}
	l.transport.SetResponseHandler(l.handleResponse)
	return l
}

// Close closes the connection.
func (l *Link) Close() error {
	return l.transport.Close()
}

// Dictionary returns the dictionary loaded by Identify, or nil.
func (l *Link) Dictionary() *Dictionary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dict
}

// Reports delivers every scan_state received while reports are enabled.
// When the reader falls behind the oldest reports are dropped.
func (l *Link) Reports() <-chan Report {
	return l.reports
}

// Dropped returns the number of reports discarded because Reports was full.
func (l *Link) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Identify downloads and parses the firmware dictionary.
func (l *Link) Identify(ctx context.Context) (*Dictionary, error) {
	var raw []byte
	for {
		offset := uint32(len(raw))
		err := l.command(ctx, identifyID, func(output protocol.OutputBuffer) {
			protocol.EncodeVLQUint(output, offset)
			protocol.EncodeVLQUint(output, IdentifyChunk)
		})
		if err != nil {
			return nil, errors.Wrapf(err, "identify at %d", offset)
		}

		l.mu.Lock()
		chunk, chunkOffset := l.lastIdentify, l.lastOffset
		l.mu.Unlock()
		if chunk == nil {
			return nil, errors.Wrapf(ErrNoResponse, "identify at %d", offset)
		}
		if chunkOffset != offset {
			return nil, errors.Errorf("identify: asked for offset %d, got %d", offset, chunkOffset)
		}
		raw = append(raw, chunk...)
		if len(chunk) < IdentifyChunk {
			break
		}
	}

	dict, err := ParseDictionary(raw)
	if err != nil {
		return nil, err
	}
	stateID, err := dict.ResponseID("scan_state")
	if err != nil {
		return nil, err
	}
	errID, err := dict.ResponseID("scan_error")
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.dict = dict
	l.scanStateID = int(stateID)
	l.scanErrorID = int(errID)
	l.mu.Unlock()
	return dict, nil
}

// Configure stages table on the firmware. It takes effect with Start.
func (l *Link) Configure(ctx context.Context, table []core.ChannelConfig) error {
	for i, ch := range table {
		index, sel, log2 := uint32(i), uint32(ch.Selector), uint32(ch.Averaging)
		err := l.named(ctx, "config_scan_channel", func(output protocol.OutputBuffer) {
			protocol.EncodeVLQUint(output, index)
			protocol.EncodeVLQUint(output, sel)
			protocol.EncodeVLQUint(output, log2)
		})
		if err != nil {
			return errors.Wrapf(err, "channel %d", i)
		}
	}
	return nil
}

// Start stages table and starts scanning it.
func (l *Link) Start(ctx context.Context, table []core.ChannelConfig) error {
	if len(table) == 0 {
		return core.ErrNoChannels
	}
	if err := l.Configure(ctx, table); err != nil {
		return err
	}
	count := uint32(len(table))
	return l.named(ctx, "start_scan", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, count)
	})
}

// Stop stops scanning. Streaming stops with it.
func (l *Link) Stop(ctx context.Context) error {
	if err := l.named(ctx, "stop_scan", nil); err != nil {
		return err
	}
	l.mu.Lock()
	l.streaming = false
	l.mu.Unlock()
	return nil
}

// Query returns the latest value of every channel.
func (l *Link) Query(ctx context.Context) (Report, error) {
	if err := l.named(ctx, "query_scan", nil); err != nil {
		return Report{}, err
	}
	l.mu.Lock()
	state := l.lastState
	l.mu.Unlock()
	if state == nil {
		return Report{}, errors.Wrap(ErrNoResponse, "query_scan")
	}
	return *state, nil
}

// EnableReports turns streamed scan_state reports on or off.
func (l *Link) EnableReports(ctx context.Context, on bool) error {
	var enable uint32
	if on {
		enable = 1
	}
	err := l.named(ctx, "set_scan_report", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, enable)
	})
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.streaming = on
	l.mu.Unlock()
	return nil
}

// named sends a command looked up in the dictionary.
func (l *Link) named(ctx context.Context, name string, args func(output protocol.OutputBuffer)) error {
	dict := l.Dictionary()
	if dict == nil {
		return ErrNoDictionary
	}
	id, err := dict.CommandID(name)
	if err != nil {
		return err
	}
	return errors.Wrap(l.command(ctx, id, args), name)
}

// command sends one command and waits for its ACK. Responses the firmware
// sends while handling it arrive before the ACK and are captured for the
// caller; a scan_error among them becomes the returned error.
func (l *Link) command(ctx context.Context, id uint16, args func(output protocol.OutputBuffer)) error {
	l.cmdMu.Lock()
	defer l.cmdMu.Unlock()

	l.mu.Lock()
	l.lastState = nil
	l.lastError = nil
	l.lastIdentify = nil
	l.mu.Unlock()

	if err := l.transport.SendCommand(ctx, id, args); err != nil {
		return err
	}

	l.mu.Lock()
	scanErr := l.lastError
	l.mu.Unlock()
	if scanErr != nil {
		return scanErr
	}
	return nil
}

// handleResponse runs on the transport's reader goroutine.
func (l *Link) handleResponse(cmdID uint16, data *[]byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch int(cmdID) {
	case identifyResponseID:
		offset, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return
		}
		chunk, err := protocol.DecodeVLQBytes(data)
		if err != nil {
			return
		}
		l.lastOffset = offset
		l.lastIdentify = append([]byte{}, chunk...)

	case l.scanStateID:
		seq, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return
		}
		raw, err := protocol.DecodeVLQBytes(data)
		if err != nil {
			return
		}
		report := Report{Seq: uint8(seq), Samples: core.DecodeSamples(raw), Received: time.Now()}
		l.lastState = &report
		if l.streaming {
			l.deliver(report)
		}

	case l.scanErrorID:
		code, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return
		}
		l.lastError = &ScanError{Code: uint8(code)}
	}
}

// deliver queues a report, dropping the oldest when full. Caller holds mu.
func (l *Link) deliver(r Report) {
	select {
	case l.reports <- r:
		return
	default:
	}
	select {
	case <-l.reports:
		l.dropped++
	default:
	}
	select {
	case l.reports <- r:
	default:
		l.dropped++
	}
}
