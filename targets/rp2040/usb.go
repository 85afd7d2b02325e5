//go:build rp2040 || rp2350

package main

import (
	"machine"
)

// InitUSB configures machine.Serial, which is USB CDC-ACM on this board.
func InitUSB() error {
	return machine.Serial.Configure(machine.UARTConfig{})
}

// usbReadInto copies whatever the CDC endpoint has buffered into buf.
func usbReadInto(buf []byte) int {
	n := 0
	for n < len(buf) && machine.Serial.Buffered() > 0 {
		b, err := machine.Serial.ReadByte()
		if err != nil {
			break
		}
		buf[n] = b
		n++
	}
	return n
}

// usbWrite writes data, returning how much the endpoint accepted.
func usbWrite(data []byte) (int, error) {
	return machine.Serial.Write(data)
}
