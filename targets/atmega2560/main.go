//go:build avr && atmega2560

// Joystick reader: scans the four axes of two analog sticks on A0-A3,
// averaging 256 conversions per axis, and prints each completed scan over
// the USB serial bridge.
package main

import (
	"machine"

	"scanadc/core"
)

var axes = []core.ChannelConfig{
	{Selector: 0, Averaging: 8}, // left X
	{Selector: 1, Averaging: 8}, // left Y
	{Selector: 2, Averaging: 8}, // right X
	{Selector: 3, Averaging: 8}, // right Y
}

func main() {
	machine.Serial.Configure(machine.UARTConfig{BaudRate: 115200})
	core.SetDebugWriter(func(s string) {
		machine.Serial.Write([]byte(s))
		machine.Serial.Write([]byte("\r\n"))
	})
	core.SetDebugEnabled(true)

	s := core.InitScanner(NewAVRScanDriver())
	if err := s.Start(axes); err != nil {
		core.DebugPrintln("scan: " + err.Error())
		return
	}

	var samples [4]core.ADCValue
	var line []byte
	for {
		s.WaitScan()
		n, _ := s.Samples(samples[:])

		line = line[:0]
		for i := 0; i < n; i++ {
			if i > 0 {
				line = append(line, ' ')
			}
			line = appendUint(line, uint32(samples[i]))
		}
		line = append(line, '\r', '\n')
		machine.Serial.Write(line)
	}
}

func appendUint(b []byte, v uint32) []byte {
	var buf [10]byte
	pos := len(buf)
	for {
		pos--
		buf[pos] = byte('0' + v%10)
		v /= 10
		if v == 0 {
			break
		}
	}
	return append(b, buf[pos:]...)
}
