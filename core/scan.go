// Background ADC scanning
// Measures a fixed table of analog inputs round-robin from the converter's
// conversion-complete event, averaging each channel, and publishes the latest
// value per channel to task context without locks.
package core

// ChannelCallback is called from event context each time a channel publishes
// a sample. It must be short and must not call back into the Scanner's
// blocking operations.
type ChannelCallback func(channel int, sample ADCValue)

// ScanCallback is called from event context after the last channel of a scan
// publishes. samples holds the current value of every channel and is only
// valid for the duration of the call.
type ScanCallback func(samples []ADCValue)

// Scanner sequences one converter over a channel table.
type Scanner struct {
	driver ScanDriver

	// Session storage, replaced only while the driver is disarmed.
	running bool
	config  []ChannelConfig
	slots   []publishedSample
	samples []ADCValue // event-context copy handed to the scan callback

	// Callbacks, replaced only inside a suppression window.
	channelCB ChannelCallback
	scanCB    ScanCallback

	// State machine, owned by event context while armed.
	phase   scanPhase
	chanIdx int
	acc     uint32
	count   uint32
	target  uint32

	trace ScanTrace
}

// NewScanner returns an idle Scanner for d.
func NewScanner(d ScanDriver) *Scanner {
	return &Scanner{driver: d}
}

// Start begins scanning table, replacing any active session. The table is
// copied; the caller may reuse its slice as soon as Start returns.
func (s *Scanner) Start(table []ChannelConfig) error {
	if err := validateTable(table); err != nil {
		return err
	}
	s.Stop()

	n := len(table)
	s.config = make([]ChannelConfig, n)
	copy(s.config, table)
	s.slots = make([]publishedSample, n)
	s.samples = make([]ADCValue, n)

	s.phase = phaseSelect
	s.chanIdx = 0
	s.acc = 0
	s.count = 0
	s.target = 0
	s.running = true

	s.trace.Record(EvtScanStart, 0, uint32(n), 0)
	DebugPrintln("[SCAN] start channels=" + itoa(n) + " events/scan=" + utoa(uint32(ScanPeriod(s.config))))

	s.driver.Arm(s.config[0].Selector, conversionHandler{s})
	return nil
}

// Stop disables the completion event and the converter and releases the
// session storage. Safe to call when nothing is running.
func (s *Scanner) Stop() {
	s.driver.Disarm()
	if !s.running {
		return
	}
	s.running = false
	s.config = nil
	s.slots = nil
	s.samples = nil
	s.trace.Record(EvtScanStop, 0, 0, 0)
	DebugPrintln("[SCAN] stop")
}

// Running reports whether a session is active.
func (s *Scanner) Running() bool {
	return s.running
}

// ChannelCount returns the size of the active table, 0 when idle.
func (s *Scanner) ChannelCount() int {
	return len(s.config)
}

// Config returns a copy of the active table.
func (s *Scanner) Config() []ChannelConfig {
	out := make([]ChannelConfig, len(s.config))
	copy(out, s.config)
	return out
}

// SetChannelCallback installs cb, or removes the channel callback when cb is
// nil. Safe while scanning.
func (s *Scanner) SetChannelCallback(cb ChannelCallback) {
	state := s.driver.SuppressEvents()
	s.channelCB = cb
	s.trace.Record(EvtCallbackAttach, 0, boolToU32(cb != nil), 0)
	s.driver.RestoreEvents(state)
}

// SetScanCallback installs cb, or removes the scan callback when cb is nil.
// Safe while scanning.
func (s *Scanner) SetScanCallback(cb ScanCallback) {
	state := s.driver.SuppressEvents()
	s.scanCB = cb
	s.trace.Record(EvtCallbackAttach, 1, boolToU32(cb != nil), 0)
	s.driver.RestoreEvents(state)
}

// Trace returns the scan event ring. Dump it only after Stop.
func (s *Scanner) Trace() *ScanTrace {
	return &s.trace
}

func boolToU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
