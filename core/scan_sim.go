package core

import (
	"sync"
	"time"
)

// SimDriver is a ScanDriver with no hardware behind it, used for host tests
// and the simulate command. It models a free-running converter: each
// conversion samples the input that was selected when it started, and the
// next conversion starts as soon as one finishes, so a Select shows up in the
// result one event later.
//
// With Period zero conversions only happen when Convert is called. With a
// positive Period a goroutine converts on a ticker while armed.
type SimDriver struct {
	// Source produces the signal on an input. Nil reads as 0.
	Source func(sel Selector) ADCValue
	// Period between conversions in free-running mode.
	Period time.Duration

	mu       sync.Mutex // held while the handler runs; guards the fields below
	armed    bool
	enabled  bool     // completion event enabled
	pending  bool     // a conversion finished while the event was masked
	selected Selector // mux setting
	inFlight Selector // input of the conversion in progress
	latched  ADCValue
	handler  ConversionHandler

	conversions uint64
	delivered   uint64

	stop chan struct{}
	done chan struct{}
}

// NewSimDriver returns a manual-mode SimDriver reading source.
func NewSimDriver(source func(sel Selector) ADCValue) *SimDriver {
	return &SimDriver{Source: source}
}

func (d *SimDriver) Arm(first Selector, h ConversionHandler) {
	d.mu.Lock()
	d.armed = true
	d.enabled = true
	d.pending = false
	d.selected = first
	d.inFlight = first
	d.handler = h
	d.mu.Unlock()

	if d.Period > 0 {
		d.stop = make(chan struct{})
		d.done = make(chan struct{})
		go d.run(d.stop, d.done)
	}
}

func (d *SimDriver) Disarm() {
	d.mu.Lock()
	d.armed = false
	d.enabled = false
	d.pending = false
	d.handler = nil
	stop, done := d.stop, d.done
	d.stop, d.done = nil, nil
	d.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

func (d *SimDriver) Select(sel Selector) {
	d.selected = sel
}

func (d *SimDriver) Result() ADCValue {
	return d.latched
}

func (d *SimDriver) SuppressEvents() EventState {
	d.mu.Lock()
	prev := d.enabled
	d.enabled = false
	d.mu.Unlock()
	return EventState(boolToU32(prev))
}

// RestoreEvents re-enables the event source as saved. A completion that
// arrived while masked is delivered now, from the caller's context, the way
// the interrupt fires as soon as the hardware mask is lifted.
func (d *SimDriver) RestoreEvents(state EventState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = state != 0 && d.armed
	if d.enabled && d.pending {
		d.pending = false
		d.delivered++
		d.handler.ConversionComplete()
	}
}

// Convert finishes one conversion and delivers the completion event if it is
// enabled. Completions while the source is masked coalesce into one pending
// event that RestoreEvents delivers; later masked conversions overwrite the
// latched result as on real hardware. Returns whether the handler ran.
func (d *SimDriver) Convert() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.armed {
		return false
	}
	var v ADCValue
	if d.Source != nil {
		v = d.Source(d.inFlight)
	}
	d.latched = v
	d.inFlight = d.selected
	d.conversions++

	if !d.enabled {
		d.pending = true
		return false
	}
	d.pending = false
	d.delivered++
	d.handler.ConversionComplete()
	return true
}

// ConvertN calls Convert n times and returns how many events were delivered.
func (d *SimDriver) ConvertN(n int) int {
	delivered := 0
	for i := 0; i < n; i++ {
		if d.Convert() {
			delivered++
		}
	}
	return delivered
}

// Stats returns the number of conversions performed and events delivered.
func (d *SimDriver) Stats() (conversions, delivered uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conversions, d.delivered
}

// Armed reports whether the converter is running.
func (d *SimDriver) Armed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed
}

func (d *SimDriver) run(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(d.Period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.Convert()
		}
	}
}
