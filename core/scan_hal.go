package core

// ADCValue is a raw or averaged converter reading at native width
// (10 bits on AVR, 12 bits on RP2040) stored in 16 bits.
type ADCValue uint16

// EventState is the saved enable state of the conversion-complete event
// source, returned by SuppressEvents and handed back to RestoreEvents.
type EventState uint32

// ConversionHandler is the privileged entry point into the scan state
// machine. The Scanner gives one to the driver in Arm; the driver calls
// ConversionComplete from its interrupt (event) context once per finished
// conversion, after the result is readable through Result.
type ConversionHandler interface {
	ConversionComplete()
}

// ScanDriver is the converter hardware the Scanner sequences.
type ScanDriver interface {
	// Arm programs the sample clock, selects first, enables auto-triggered
	// conversions and the completion event, and issues the first conversion.
	Arm(first Selector, h ConversionHandler)

	// Disarm disables the completion event and the converter. When it returns
	// no further ConversionComplete calls are in flight.
	Disarm()

	// Select routes the given input to the converter. The conversion already
	// running when Select is called still samples the previous input.
	// Called from event context only.
	Select(sel Selector)

	// Result returns the most recent conversion. Called from event context only.
	Result() ADCValue

	// SuppressEvents masks the completion event and returns the prior state.
	SuppressEvents() EventState

	// RestoreEvents puts the completion event back to a saved state, which
	// may be disabled.
	RestoreEvents(state EventState)
}

// Global singleton used by the command layer and firmware main loops.
var scanner *Scanner

// InitScanner installs the process-wide Scanner driving d, stopping any
// previously installed one.
func InitScanner(d ScanDriver) *Scanner {
	if scanner != nil {
		scanner.Stop()
	}
	scanner = NewScanner(d)
	return scanner
}

// MustScanner returns the installed Scanner or panics if missing.
func MustScanner() *Scanner {
	if scanner == nil {
		panic("scan driver not configured")
	}
	return scanner
}
