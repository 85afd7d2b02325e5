//go:build rp2040 || rp2350

package main

import (
	"device/rp"
	"machine"
	"runtime/interrupt"

	"scanadc/core"
)

// ADC clock is 48MHz; a conversion takes 96 cycles.
const (
	adcClockHz       = 48000000
	adcCyclesPerConv = 96
	tempSensorInput  = 4
)

// RPScanDriver implements core.ScanDriver on the RP2040 ADC. Conversions
// free-run (CS.START_MANY) paced by DIV, and a FIFO threshold of one raises
// ADC_IRQ_FIFO as the completion event.
type RPScanDriver struct {
	// SampleRate is the conversion rate in Hz.
	SampleRate uint32

	handler core.ConversionHandler
	latched core.ADCValue
	irq     interrupt.Interrupt
}

// rpScan is the driver the interrupt handler dispatches to.
var rpScan *RPScanDriver

// NewRPScanDriver returns the ADC driver and installs its interrupt.
func NewRPScanDriver(sampleRate uint32) *RPScanDriver {
	d := &RPScanDriver{SampleRate: sampleRate}
	rpScan = d
	d.irq = interrupt.New(rp.IRQ_ADC_IRQ_FIFO, handleADCFifo)
	d.irq.SetPriority(0x40)
	return d
}

func handleADCFifo(interrupt.Interrupt) {
	d := rpScan
	// Drain to the newest result; older entries were overwritten while
	// events were suppressed.
	for rp.ADC.FCS.Get()&rp.ADC_FCS_LEVEL_Msk != 0 {
		d.latched = core.ADCValue(rp.ADC.FIFO.Get() & rp.ADC_FIFO_VAL_Msk)
	}
	rp.ADC.FCS.SetBits(rp.ADC_FCS_OVER | rp.ADC_FCS_UNDER)
	if d.handler != nil {
		d.handler.ConversionComplete()
	}
}

// divider returns the DIV.INT value for SampleRate.
func (d *RPScanDriver) divider() uint32 {
	rate := d.SampleRate
	if rate == 0 || rate > adcClockHz/adcCyclesPerConv {
		return 0
	}
	return adcClockHz/rate - 1
}

func (d *RPScanDriver) Arm(first core.Selector, h core.ConversionHandler) {
	machine.InitADC()
	for _, pin := range []machine.Pin{machine.ADC0, machine.ADC1, machine.ADC2, machine.ADC3} {
		adc := machine.ADC{Pin: pin}
		adc.Configure(machine.ADCConfig{})
	}

	d.handler = h
	rp.ADC.CS.ClearBits(rp.ADC_CS_START_MANY | rp.ADC_CS_RROBIN_Msk)
	rp.ADC.CS.SetBits(rp.ADC_CS_TS_EN)
	rp.ADC.DIV.Set(d.divider() << rp.ADC_DIV_INT_Pos)
	rp.ADC.FCS.Set(rp.ADC_FCS_EN | 1<<rp.ADC_FCS_THRESH_Pos)
	for rp.ADC.FCS.Get()&rp.ADC_FCS_LEVEL_Msk != 0 {
		rp.ADC.FIFO.Get()
	}
	d.Select(first)

	rp.ADC.INTE.Set(rp.ADC_INTE_FIFO)
	d.irq.Enable()
	rp.ADC.CS.SetBits(rp.ADC_CS_START_MANY)
}

func (d *RPScanDriver) Disarm() {
	rp.ADC.INTE.Set(0)
	rp.ADC.CS.ClearBits(rp.ADC_CS_START_MANY)
	for !rp.ADC.CS.HasBits(rp.ADC_CS_READY) {
	}
	rp.ADC.FCS.Set(0)
	rp.ADC.CS.ClearBits(rp.ADC_CS_TS_EN)
	d.handler = nil
}

func (d *RPScanDriver) Select(sel core.Selector) {
	rp.ADC.CS.ReplaceBits(uint32(sel)<<rp.ADC_CS_AINSEL_Pos, rp.ADC_CS_AINSEL_Msk, 0)
}

func (d *RPScanDriver) Result() core.ADCValue {
	return d.latched
}

func (d *RPScanDriver) SuppressEvents() core.EventState {
	prev := rp.ADC.INTE.Get()
	rp.ADC.INTE.Set(0)
	return core.EventState(prev)
}

func (d *RPScanDriver) RestoreEvents(state core.EventState) {
	rp.ADC.INTE.Set(uint32(state))
}
