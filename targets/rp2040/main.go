//go:build rp2040 || rp2350

package main

import (
	"machine"
	"time"

	"scanadc/core"
	"scanadc/protocol"
)

// Conversion rate of the free-running ADC.
const sampleRate = 100000

var (
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	transport    *protocol.Transport
	scanService  *core.ScanService

	// Main loop panics recovered so far
	msgerrors uint32

	usbWasDisconnected       bool
	consecutiveWriteFailures uint32
)

func main() {
	// Clear any watchdog left running across a reset
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	if err := InitUSB(); err != nil {
		return
	}
	InitDebugUART()
	InitClock()

	core.InitScanner(NewRPScanDriver(sampleRate))
	scanService = core.InitScanCommands()
	core.RegisterConstant("ADC_MAX", uint32(4095))
	core.RegisterConstant("ADC_SAMPLE_RATE", uint32(sampleRate))
	registerScanInputs()

	// After all commands and constants are registered
	core.GetGlobalDictionary().BuildDictionary()

	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()

	transport = protocol.NewTransport(outputBuffer, core.DispatchCommand)
	transport.SetResetCallback(func() {
		inputBuffer.Reset()
		scanService.Reset()
	})
	// ACKs must leave before the next command is read
	transport.SetFlushCallback(writeUSB)
	core.SetGlobalSender(transport)

	var rx [64]byte
	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					core.DebugPrintln("main loop recovered, errors=" + itoa(int(msgerrors)))
					inputBuffer.Reset()
					outputBuffer.Reset()
				}
			}()

			room := inputBuffer.Free()
			if room > len(rx) {
				room = len(rx)
			}
			if n := usbReadInto(rx[:room]); n > 0 {
				if usbWasDisconnected {
					// Fresh connection: forget the old session
					usbWasDisconnected = false
					inputBuffer.Reset()
					outputBuffer.Reset()
					transport.Reset()
					consecutiveWriteFailures = 0
				}
				inputBuffer.Write(rx[:n])
			}

			if inputBuffer.Available() > 0 {
				data := inputBuffer.Data()
				in := protocol.NewSliceInputBuffer(data)
				transport.Receive(in)
				inputBuffer.Pop(len(data) - in.Available())
			}

			core.ScanReportTask()
			writeUSB()
		}()

		// Yield to other goroutines
		time.Sleep(10 * time.Microsecond)
	}
}

// registerScanInputs names the converter inputs for the host.
func registerScanInputs() {
	names := make([]string, tempSensorInput+1)
	for i := 0; i < tempSensorInput; i++ {
		names[i] = "ADC" + itoa(i)
	}
	names[tempSensorInput] = "ADC_TEMPERATURE"
	core.RegisterEnumeration("scan_input", names)
}

func itoa(i int) string {
	var buf [10]byte
	pos := len(buf)
	for {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
		if i == 0 {
			return string(buf[pos:])
		}
	}
}

// writeUSB sends everything queued in the output buffer. Repeated failures
// mark the host as gone and discard the stale output.
func writeUSB() {
	result := outputBuffer.Result()
	written := 0
	for written < len(result) {
		n, err := usbWrite(result[written:])
		if err != nil || n == 0 {
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				usbWasDisconnected = true
				consecutiveWriteFailures = 0
				outputBuffer.Reset()
				inputBuffer.Reset()
			}
			return
		}
		written += n
	}
	consecutiveWriteFailures = 0
	outputBuffer.Reset()
}
