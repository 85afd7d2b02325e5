package core

// scanPhase is the state of the conversion state machine.
type scanPhase uint8

const (
	phaseSelect     scanPhase = iota // route the current channel's input
	phaseSettle                      // drop the conversion taken across the switch
	phaseAccumulate                  // sum conversions until the window is full
)

// conversionHandler is the handle passed to ScanDriver.Arm. It is the only
// path into the state machine.
type conversionHandler struct {
	s *Scanner
}

func (h conversionHandler) ConversionComplete() {
	h.s.conversionComplete()
}

// conversionComplete advances the state machine by one conversion. Runs in
// event context: O(1), no allocation, no blocking.
func (s *Scanner) conversionComplete() {
	switch s.phase {
	case phaseSelect:
		cfg := &s.config[s.chanIdx]
		s.driver.Select(cfg.Selector)
		s.acc = 0
		s.count = 0
		s.target = cfg.Averaging.Count()
		s.phase = phaseSettle

	case phaseSettle:
		// The conversion that just finished started before Select took
		// effect, so it belongs to the previous input.
		s.phase = phaseAccumulate

	case phaseAccumulate:
		s.acc += uint32(s.driver.Result())
		s.count++
		if s.count < s.target {
			return
		}
		s.finishChannel()
		s.phase = phaseSelect
	}
}

// finishChannel averages the accumulator, publishes it and moves to the next
// channel, wrapping at the end of the table.
func (s *Scanner) finishChannel() {
	i := s.chanIdx
	n := s.config[i].Averaging

	v := s.acc
	if n != 0 {
		// round to nearest
		v = (v + s.target>>1) >> n
	}
	sample := ADCValue(v)

	seq := s.slots[i].publish(sample)
	s.samples[i] = sample
	s.trace.Record(EvtChannelDone, uint8(i), v, uint32(seq))

	if cb := s.channelCB; cb != nil {
		cb(i, sample)
	}

	s.chanIdx++
	if s.chanIdx == len(s.config) {
		s.chanIdx = 0
		s.trace.Record(EvtScanDone, 0, uint32(len(s.config)), uint32(seq))
		if cb := s.scanCB; cb != nil {
			cb(s.samples)
		}
	}
}
