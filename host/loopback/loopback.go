// Package loopback runs the scanning firmware in process on a simulated
// converter and exposes its serial side as a serial.Port, so the host
// client can be exercised without hardware.
package loopback

import (
	"math"
	"net"
	"sync"
	"time"

	"scanadc/core"
	"scanadc/protocol"
)

// Config describes the simulated board.
type Config struct {
	// Inputs names the converter inputs; the index is the selector.
	Inputs []string
	// Source produces the signal on each input. Nil uses Waveform.
	Source func(sel core.Selector) core.ADCValue
	// ConversionPeriod between simulated conversions. Zero leaves the
	// converter in manual mode, driven through Driver().Convert.
	ConversionPeriod time.Duration
	// ReportPeriod is how often the main loop services streamed reports.
	ReportPeriod time.Duration
	// ADCMax is the converter full scale.
	ADCMax core.ADCValue
}

// DefaultConfig is a four input 12-bit converter.
func DefaultConfig() Config {
	return Config{
		Inputs:           []string{"ADC0", "ADC1", "ADC2", "ADC3"},
		ConversionPeriod: 50 * time.Microsecond,
		ReportPeriod:     time.Millisecond,
		ADCMax:           4095,
	}
}

// Waveform returns a source where input n carries a slow sine at n+1 times
// the base frequency, offset to mid-scale.
func Waveform(max core.ADCValue, start time.Time) func(core.Selector) core.ADCValue {
	return func(sel core.Selector) core.ADCValue {
		t := time.Since(start).Seconds()
		v := 0.5 + 0.45*math.Sin(2*math.Pi*float64(sel+1)*0.5*t)
		return core.ADCValue(v * float64(max))
	}
}

// Device is a simulated board. The host end is a serial.Port.
type Device struct {
	host net.Conn
	mcu  net.Conn

	driver    *core.SimDriver
	scanner   *core.Scanner
	service   *core.ScanService
	dict      *core.Dictionary
	transport *protocol.Transport
	out       *protocol.ScratchOutput

	reportPeriod time.Duration
	rx           chan []byte
	stop         chan struct{}
	wg           sync.WaitGroup
	closeOnce    sync.Once
}

// New builds and starts a simulated board.
func New(cfg Config) *Device {
	if cfg.ADCMax == 0 {
		cfg.ADCMax = 4095
	}
	if cfg.ReportPeriod <= 0 {
		cfg.ReportPeriod = time.Millisecond
	}
	source := cfg.Source
	if source == nil {
		source = Waveform(cfg.ADCMax, time.Now())
	}

	d := &Device{
		out:          protocol.NewScratchOutput(),
		reportPeriod: cfg.ReportPeriod,
		rx:           make(chan []byte, 4),
		stop:         make(chan struct{}),
	}
	d.host, d.mcu = net.Pipe()

	d.driver = core.NewSimDriver(source)
	d.driver.Period = cfg.ConversionPeriod
	d.scanner = core.NewScanner(d.driver)

	reg := core.NewCommandRegistry()
	d.dict = core.NewDictionary(reg)
	core.InitCoreCommands(d.dict)
	d.service = core.NewScanService(reg, d.scanner)
	d.service.Register()
	d.dict.AddConstant("MCU", "loopback")
	d.dict.AddConstant("ADC_MAX", uint32(cfg.ADCMax))
	d.dict.AddConstant("SCAN_MAX_CHANNELS", core.MaxStagedChannels)
	d.dict.AddConstant("SCAN_MAX_AVERAGING_LOG2", core.MaxAveragingLog2)
	if len(cfg.Inputs) > 0 {
		d.dict.AddEnumeration("scan_input", cfg.Inputs)
	}
	d.dict.BuildDictionary()

	d.transport = protocol.NewTransport(d.out, func(cmdID uint16, data *[]byte) error {
		return reg.Dispatch(cmdID, data)
	})
	d.transport.SetResetCallback(d.service.Reset)
	reg.SetSender(d.transport)

	d.wg.Add(2)
	go d.readLoop()
	go d.mainLoop()
	return d
}

// Read, Write and Close make the host end usable as a serial.Port.
func (d *Device) Read(b []byte) (int, error)  { return d.host.Read(b) }
func (d *Device) Write(b []byte) (int, error) { return d.host.Write(b) }

// Flush has nothing to discard; reads are unbuffered.
func (d *Device) Flush() error { return nil }

// Close stops the board and closes both ends.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		close(d.stop)
		d.host.Close()
		d.mcu.Close()
		d.wg.Wait()
		d.scanner.Stop()
	})
	return nil
}

// Driver exposes the simulated converter, for manual stepping.
func (d *Device) Driver() *core.SimDriver { return d.driver }

// Scanner exposes the firmware's scanner.
func (d *Device) Scanner() *core.Scanner { return d.scanner }

// Dictionary exposes the firmware's message dictionary.
func (d *Device) Dictionary() *core.Dictionary { return d.dict }

// Service exposes the firmware's scan command service.
func (d *Device) Service() *core.ScanService { return d.service }

func (d *Device) readLoop() {
	defer d.wg.Done()
	buf := make([]byte, 256)
	for {
		n, err := d.mcu.Read(buf)
		if err != nil {
			return
		}
		data := append([]byte(nil), buf[:n]...)
		select {
		case d.rx <- data:
		case <-d.stop:
			return
		}
	}
}

// mainLoop is the firmware's task context: it parses host frames and sends
// pending reports, one at a time like the target main loops.
func (d *Device) mainLoop() {
	defer d.wg.Done()
	ticker := time.NewTicker(d.reportPeriod)
	defer ticker.Stop()

	var pending []byte
	for {
		select {
		case <-d.stop:
			return
		case data := <-d.rx:
			pending = append(pending, data...)
			in := protocol.NewSliceInputBuffer(pending)
			d.transport.Receive(in)
			pending = append(pending[:0], in.Data()...)
		case <-ticker.C:
			d.service.ReportTask()
		}
		if !d.flush() {
			return
		}
	}
}

func (d *Device) flush() bool {
	if d.out.CurPosition() == 0 {
		return true
	}
	_, err := d.mcu.Write(d.out.Result())
	d.out.Reset()
	return err == nil
}
