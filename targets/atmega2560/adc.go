//go:build avr && atmega2560

package main

import (
	"device/avr"
	"runtime/interrupt"

	"scanadc/core"
)

// AVRScanDriver implements core.ScanDriver on the ATmega2560 ADC in free
// running mode. Every finished conversion raises ADC_vect.
type AVRScanDriver struct {
	handler core.ConversionHandler
	irq     interrupt.Interrupt
}

var avrScan *AVRScanDriver

// NewAVRScanDriver returns the ADC driver and installs its interrupt.
func NewAVRScanDriver() *AVRScanDriver {
	d := &AVRScanDriver{}
	avrScan = d
	d.irq = interrupt.New(avr.IRQ_ADC, handleADC)
	return d
}

func handleADC(interrupt.Interrupt) {
	if h := avrScan.handler; h != nil {
		h.ConversionComplete()
	}
}

func (d *AVRScanDriver) Arm(first core.Selector, h core.ConversionHandler) {
	d.handler = h

	avr.ADCSRB.Set(0) // free running trigger source
	// AVCC reference, right adjusted result
	avr.ADMUX.Set(avr.ADMUX_REFS0)
	d.Select(first)

	// 16MHz / 16 = 1MHz ADC clock, 13 cycles per conversion
	avr.ADCSRA.Set(avr.ADCSRA_ADPS2 | avr.ADCSRA_ADEN | avr.ADCSRA_ADATE | avr.ADCSRA_ADIE)
	d.irq.Enable()
	avr.ADCSRA.SetBits(avr.ADCSRA_ADSC)
}

func (d *AVRScanDriver) Disarm() {
	avr.ADCSRA.Set(0)
	d.handler = nil
}

// Select sets the six mux bits: the low five live in ADMUX, the sixth is
// ADCSRB.MUX5.
func (d *AVRScanDriver) Select(sel core.Selector) {
	if sel&0x20 != 0 {
		avr.ADCSRB.SetBits(avr.ADCSRB_MUX5)
	} else {
		avr.ADCSRB.ClearBits(avr.ADCSRB_MUX5)
	}
	avr.ADMUX.Set(avr.ADMUX.Get()&0xE0 | uint8(sel)&0x1F)
}

// Result reads ADCL before ADCH; reading ADCL locks the pair.
func (d *AVRScanDriver) Result() core.ADCValue {
	low := avr.ADCL.Get()
	high := avr.ADCH.Get()
	return core.ADCValue(high)<<8 | core.ADCValue(low)
}

// ADIF is cleared by writing a one, so every read-modify-write of ADCSRA
// writes it back as zero to keep a pending event pending.

func (d *AVRScanDriver) SuppressEvents() core.EventState {
	prev := avr.ADCSRA.Get()
	avr.ADCSRA.Set(prev &^ (avr.ADCSRA_ADIE | avr.ADCSRA_ADIF))
	return core.EventState(prev & avr.ADCSRA_ADIE)
}

func (d *AVRScanDriver) RestoreEvents(state core.EventState) {
	v := avr.ADCSRA.Get() &^ (avr.ADCSRA_ADIE | avr.ADCSRA_ADIF)
	avr.ADCSRA.Set(v | uint8(state))
}
