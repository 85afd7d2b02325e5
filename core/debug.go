package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// TraceEvent is one fixed-size record in a ScanTrace.
type TraceEvent struct {
	EventType uint8  // Event type code
	Channel   uint8  // Channel index (or callback class for EvtCallbackAttach)
	Seq       uint32 // Running event number
	Value1    uint32 // Context-dependent value
	Value2    uint32 // Context-dependent value
}

// Event type codes
const (
	EvtScanStart      = 1 // Start armed the converter; v1 = channel count
	EvtScanStop       = 2 // Stop released the session
	EvtChannelDone    = 3 // Channel published; v1 = sample, v2 = sequence
	EvtScanDone       = 4 // Scan wrapped; v1 = channel count, v2 = last sequence
	EvtCallbackAttach = 5 // Callback replaced; v1 = 1 installed, 0 removed
)

const (
	TraceRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active
	debugEnabled bool = false
)

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, USB, etc.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// DebugPrintln writes a debug message using the platform-specific writer.
// Task context only.
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// ScanTrace is a ring of the most recent scan events. Recording never
// allocates or blocks, so it is usable from event context.
type ScanTrace struct {
	ring     [TraceRingSize]TraceEvent
	head     uint8
	next     uint32
	disabled bool
}

// SetEnabled turns recording on or off. Recording is on by default.
func (t *ScanTrace) SetEnabled(enabled bool) {
	t.disabled = !enabled
}

// Record appends an event, overwriting the oldest.
func (t *ScanTrace) Record(eventType, channel uint8, value1, value2 uint32) {
	if t.disabled {
		return
	}
	idx := t.head
	t.next++
	t.ring[idx] = TraceEvent{
		EventType: eventType,
		Channel:   channel,
		Seq:       t.next,
		Value1:    value1,
		Value2:    value2,
	}
	t.head = (idx + 1) % TraceRingSize
}

// Events returns the recorded events, oldest first.
func (t *ScanTrace) Events() []TraceEvent {
	out := make([]TraceEvent, 0, TraceRingSize)
	for i := uint8(0); i < TraceRingSize; i++ {
		evt := t.ring[(t.head+i)%TraceRingSize]
		if evt.EventType == 0 {
			continue // Empty slot
		}
		out = append(out, evt)
	}
	return out
}

// Clear empties the ring.
func (t *ScanTrace) Clear() {
	for i := range t.ring {
		t.ring[i] = TraceEvent{}
	}
	t.head = 0
	t.next = 0
}

// DumpScanTrace writes the trace through the debug writer regardless of
// SetDebugEnabled. Call it after Stop.
func DumpScanTrace(t *ScanTrace) {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[TRACE] === Scan Trace Dump ===")
	for _, evt := range t.Events() {
		var name string
		switch evt.EventType {
		case EvtScanStart:
			name = "SCAN_START"
		case EvtScanStop:
			name = "SCAN_STOP"
		case EvtChannelDone:
			name = "CHAN_DONE"
		case EvtScanDone:
			name = "SCAN_DONE"
		case EvtCallbackAttach:
			name = "CB_ATTACH"
		default:
			name = "UNKNOWN"
		}

		debugPrintln("[TRACE] #" + utoa(evt.Seq) + " " + name +
			" ch=" + itoa(int(evt.Channel)) +
			" v1=" + utoa(evt.Value1) +
			" v2=" + utoa(evt.Value2))
	}
	debugPrintln("[TRACE] === End Dump ===")
}
