//go:build rp2040 || rp2350

package main

import (
	"scanadc/core"
)

// InitClock registers the timebase constants. The RP2040 timer counts
// microseconds.
func InitClock() {
	core.RegisterConstant("MCU", "rp2040")
	core.RegisterConstant("CLOCK_FREQ", uint32(1000000))
}
