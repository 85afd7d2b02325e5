// Scan commands
// Exposes the Scanner over the message protocol: the host stages a channel
// table, starts and stops scanning, and either polls or streams scan_state.
package core

import "scanadc/protocol"

// MaxStagedChannels bounds the table a host can stage; a full scan_state for
// this many channels fits in one frame.
const MaxStagedChannels = 16

// scan_error codes
const (
	ScanErrNoChannels    = 1
	ScanErrAveraging     = 2
	ScanErrChannelRange  = 3
	ScanErrNotRunning    = 4
	ScanErrStagedMissing = 5
)

// ScanService binds a Scanner to a command registry.
type ScanService struct {
	reg     *CommandRegistry
	scanner *Scanner

	staged      [MaxStagedChannels]ChannelConfig
	stagedValid [MaxStagedChannels]bool

	streaming bool

	// Written by the scan callback in event context; read by ScanReportTask
	// inside a suppression window.
	report         [MaxStagedChannels]ADCValue
	reportCount    uint8
	reportSeq      uint8
	reportPending  bool
	reportsDropped uint32
}

// NewScanService returns a service for s; call Register to expose it.
func NewScanService(reg *CommandRegistry, s *Scanner) *ScanService {
	return &ScanService{reg: reg, scanner: s}
}

var scanService *ScanService

// InitScanCommands registers the bootstrap and scan commands on the global
// dictionary against the installed Scanner.
func InitScanCommands() *ScanService {
	InitCoreCommands(globalDictionary)
	scanService = NewScanService(globalRegistry, MustScanner())
	scanService.Register()
	RegisterConstant("SCAN_MAX_CHANNELS", MaxStagedChannels)
	RegisterConstant("SCAN_MAX_AVERAGING_LOG2", MaxAveragingLog2)
	return scanService
}

// ScanReportTask sends a pending streamed report. Call it from the main loop.
func ScanReportTask() {
	if scanService != nil {
		scanService.ReportTask()
	}
}

// Register adds the scan messages to the registry.
func (svc *ScanService) Register() {
	svc.reg.Register("config_scan_channel", "index=%c selector=%c averaging_log2=%c", svc.handleConfigChannel)
	svc.reg.Register("start_scan", "count=%c", svc.handleStart)
	svc.reg.Register("stop_scan", "", svc.handleStop)
	svc.reg.Register("query_scan", "", svc.handleQuery)
	svc.reg.Register("set_scan_report", "enable=%c", svc.handleSetReport)

	// Response messages (MCU → Host)
	svc.reg.Register("scan_state", "seq=%c samples=%*s", nil)
	svc.reg.Register("scan_error", "code=%c", nil)
}

func (svc *ScanService) handleConfigChannel(data *[]byte) error {
	index, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	selector, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	log2, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	if index >= MaxStagedChannels {
		svc.sendError(ScanErrChannelRange)
		return nil
	}
	if log2 > MaxAveragingLog2 {
		svc.sendError(ScanErrAveraging)
		return nil
	}
	svc.staged[index] = ChannelConfig{Selector: Selector(selector), Averaging: AveragingLog2(log2)}
	svc.stagedValid[index] = true
	return nil
}

func (svc *ScanService) handleStart(data *[]byte) error {
	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if count == 0 {
		svc.sendError(ScanErrNoChannels)
		return nil
	}
	if count > MaxStagedChannels {
		svc.sendError(ScanErrChannelRange)
		return nil
	}
	for i := uint32(0); i < count; i++ {
		if !svc.stagedValid[i] {
			svc.sendError(ScanErrStagedMissing)
			return nil
		}
	}

	// A report left over from the previous session describes the old table.
	svc.scanner.Stop()
	svc.reportPending = false
	svc.reportCount = 0

	svc.scanner.SetScanCallback(svc.onScan)
	if err := svc.scanner.Start(svc.staged[:count]); err != nil {
		svc.sendError(scanErrorCode(err))
	}
	return nil
}

func (svc *ScanService) handleStop(_ *[]byte) error {
	svc.scanner.Stop()
	svc.clearReport()
	return nil
}

func (svc *ScanService) handleQuery(_ *[]byte) error {
	var samples [MaxStagedChannels]ADCValue
	n, err := svc.scanner.Samples(samples[:])
	if err != nil {
		svc.sendError(scanErrorCode(err))
		return nil
	}
	seq, _ := svc.scanner.Sequence(n - 1)
	svc.sendState(seq, samples[:n])
	return nil
}

func (svc *ScanService) handleSetReport(data *[]byte) error {
	enable, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	state := svc.scanner.driver.SuppressEvents()
	svc.streaming = enable != 0
	svc.reportPending = false
	svc.scanner.driver.RestoreEvents(state)
	return nil
}

// onScan runs in event context at the end of every scan.
func (svc *ScanService) onScan(samples []ADCValue) {
	if !svc.streaming {
		return
	}
	if svc.reportPending {
		svc.reportsDropped++
	}
	n := copy(svc.report[:], samples)
	svc.reportCount = uint8(n)
	seq, _ := svc.scanner.Sequence(n - 1)
	svc.reportSeq = seq
	svc.reportPending = true
}

// ReportTask sends the pending streamed report, if any, from task context.
func (svc *ScanService) ReportTask() {
	if !svc.scanner.Running() {
		return
	}
	var samples [MaxStagedChannels]ADCValue

	state := svc.scanner.driver.SuppressEvents()
	if !svc.reportPending {
		svc.scanner.driver.RestoreEvents(state)
		return
	}
	n := copy(samples[:], svc.report[:svc.reportCount])
	seq := svc.reportSeq
	svc.reportPending = false
	svc.scanner.driver.RestoreEvents(state)

	svc.sendState(seq, samples[:n])
}

// Reset stops scanning and forgets the staged table, as after power-on.
func (svc *ScanService) Reset() {
	svc.scanner.Stop()
	svc.clearReport()
	svc.stagedValid = [MaxStagedChannels]bool{}
}

// ReportsDropped returns how many streamed reports were replaced before the
// task could send them.
func (svc *ScanService) ReportsDropped() uint32 {
	state := svc.scanner.driver.SuppressEvents()
	n := svc.reportsDropped
	svc.scanner.driver.RestoreEvents(state)
	return n
}

func (svc *ScanService) clearReport() {
	svc.streaming = false
	svc.reportPending = false
	svc.reportCount = 0
}

func (svc *ScanService) sendState(seq uint8, samples []ADCValue) {
	svc.reg.SendResponse("scan_state", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(seq))
		protocol.EncodeVLQBytes(output, EncodeSamples(samples))
	})
}

func (svc *ScanService) sendError(code uint8) {
	svc.reg.SendResponse("scan_error", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(code))
	})
}

func scanErrorCode(err error) uint8 {
	switch err {
	case ErrNoChannels:
		return ScanErrNoChannels
	case ErrAveragingRange:
		return ScanErrAveraging
	case ErrChannelRange:
		return ScanErrChannelRange
	default:
		return ScanErrNotRunning
	}
}

// EncodeSamples packs samples as little-endian uint16 for scan_state.
func EncodeSamples(samples []ADCValue) []byte {
	out := make([]byte, 2*len(samples))
	for i, v := range samples {
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	return out
}

// DecodeSamples is the inverse of EncodeSamples; a trailing odd byte is ignored.
func DecodeSamples(data []byte) []ADCValue {
	out := make([]ADCValue, len(data)/2)
	for i := range out {
		out[i] = ADCValue(data[2*i]) | ADCValue(data[2*i+1])<<8
	}
	return out
}
