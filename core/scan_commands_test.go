package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scanadc/protocol"
)

type scanFixture struct {
	t       *testing.T
	reg     *CommandRegistry
	sender  *recordingSender
	driver  *SimDriver
	scanner *Scanner
	svc     *ScanService
}

func newScanFixture(t *testing.T, source func(Selector) ADCValue) *scanFixture {
	reg := NewCommandRegistry()
	InitCoreCommands(NewDictionary(reg))
	sender := &recordingSender{}
	reg.SetSender(sender)

	d := NewSimDriver(source)
	s := NewScanner(d)
	svc := NewScanService(reg, s)
	svc.Register()

	return &scanFixture{t: t, reg: reg, sender: sender, driver: d, scanner: s, svc: svc}
}

func (f *scanFixture) id(name string) uint16 {
	cmd, ok := f.reg.GetCommandByName(name)
	require.True(f.t, ok, name)
	return cmd.ID
}

func (f *scanFixture) dispatch(name string, args ...uint32) {
	require.NoError(f.t, f.reg.Dispatch(f.id(name), encodeArgs(args...)))
}

// state decodes the single scan_state response that must have been sent.
func (f *scanFixture) state() (uint8, []ADCValue) {
	sent := f.sender.take()
	require.Len(f.t, sent, 1)
	require.Equal(f.t, f.id("scan_state"), sent[0].id)

	payload := sent[0].payload
	seq, err := protocol.DecodeVLQUint(&payload)
	require.NoError(f.t, err)
	raw, err := protocol.DecodeVLQBytes(&payload)
	require.NoError(f.t, err)
	return uint8(seq), DecodeSamples(raw)
}

func (f *scanFixture) scanError() uint32 {
	sent := f.sender.take()
	require.Len(f.t, sent, 1)
	require.Equal(f.t, f.id("scan_error"), sent[0].id)
	payload := sent[0].payload
	code, err := protocol.DecodeVLQUint(&payload)
	require.NoError(f.t, err)
	return code
}

func TestScanCommandIDs(t *testing.T) {
	f := newScanFixture(t, nil)
	assert.Equal(t, uint16(0), f.id("identify_response"))
	assert.Equal(t, uint16(1), f.id("identify"))

	commands, responses := f.reg.GetCommandsAndResponses()
	assert.Contains(t, commands, "config_scan_channel index=%c selector=%c averaging_log2=%c")
	assert.Contains(t, commands, "start_scan count=%c")
	assert.Contains(t, responses, "scan_state seq=%c samples=%*s")
	assert.Contains(t, responses, "scan_error code=%c")
}

func TestScanCommandsQuery(t *testing.T) {
	f := newScanFixture(t, constSource(map[Selector]ADCValue{4: 512, 6: 1000}))

	f.dispatch("config_scan_channel", 0, 4, 1)
	f.dispatch("config_scan_channel", 1, 6, 0)
	f.dispatch("start_scan", 2)
	assert.Empty(t, f.sender.take())
	require.True(t, f.scanner.Running())
	assert.Equal(t, []ChannelConfig{{Selector: 4, Averaging: 1}, {Selector: 6}}, f.scanner.Config())

	f.driver.ConvertN(2 * int(ScanPeriod(f.scanner.Config())))
	f.dispatch("query_scan")
	seq, samples := f.state()
	assert.Equal(t, uint8(2), seq)
	assert.Equal(t, []ADCValue{512, 1000}, samples)

	f.dispatch("stop_scan")
	assert.False(t, f.scanner.Running())
	f.dispatch("query_scan")
	assert.Equal(t, uint32(ScanErrNotRunning), f.scanError())
}

func TestScanCommandsErrors(t *testing.T) {
	f := newScanFixture(t, nil)

	f.dispatch("config_scan_channel", MaxStagedChannels, 0, 0)
	assert.Equal(t, uint32(ScanErrChannelRange), f.scanError())

	f.dispatch("config_scan_channel", 0, 0, 16)
	assert.Equal(t, uint32(ScanErrAveraging), f.scanError())

	f.dispatch("start_scan", 0)
	assert.Equal(t, uint32(ScanErrNoChannels), f.scanError())

	f.dispatch("start_scan", MaxStagedChannels+1)
	assert.Equal(t, uint32(ScanErrChannelRange), f.scanError())

	f.dispatch("config_scan_channel", 0, 0, 0)
	f.dispatch("start_scan", 2)
	assert.Equal(t, uint32(ScanErrStagedMissing), f.scanError())
	assert.False(t, f.scanner.Running())

	// truncated arguments are a protocol error, not a scan_error
	assert.Error(t, f.reg.Dispatch(f.id("config_scan_channel"), encodeArgs(0, 1)))
	assert.Empty(t, f.sender.take())
}

func TestScanCommandsStreaming(t *testing.T) {
	f := newScanFixture(t, constSource(map[Selector]ADCValue{1: 11, 2: 22}))

	f.dispatch("config_scan_channel", 0, 1, 0)
	f.dispatch("config_scan_channel", 1, 2, 0)
	f.dispatch("start_scan", 2)
	period := int(ScanPeriod(f.scanner.Config()))

	// not streaming yet
	f.driver.ConvertN(period)
	f.svc.ReportTask()
	assert.Empty(t, f.sender.take())

	f.dispatch("set_scan_report", 1)
	f.driver.ConvertN(period)
	f.svc.ReportTask()
	seq, samples := f.state()
	assert.Equal(t, uint8(2), seq)
	assert.Equal(t, []ADCValue{11, 22}, samples)

	// nothing new, nothing sent
	f.svc.ReportTask()
	assert.Empty(t, f.sender.take())

	// two scans between task runs: the older report is replaced
	f.driver.ConvertN(2 * period)
	f.svc.ReportTask()
	seq, _ = f.state()
	assert.Equal(t, uint8(4), seq)
	assert.Equal(t, uint32(1), f.svc.ReportsDropped())

	f.dispatch("set_scan_report", 0)
	f.driver.ConvertN(period)
	f.svc.ReportTask()
	assert.Empty(t, f.sender.take())
}

func TestScanCommandsStopClearsReport(t *testing.T) {
	f := newScanFixture(t, constSource(nil))

	f.dispatch("config_scan_channel", 0, 0, 0)
	f.dispatch("start_scan", 1)
	f.dispatch("set_scan_report", 1)
	f.driver.ConvertN(eventsFor(0))
	f.dispatch("stop_scan")

	f.svc.ReportTask()
	assert.Empty(t, f.sender.take())

	// a restart keeps the staged table but not streaming
	f.dispatch("start_scan", 1)
	f.driver.ConvertN(eventsFor(0))
	f.svc.ReportTask()
	assert.Empty(t, f.sender.take())
}

func TestScanCommandsRestartDropsStaleReport(t *testing.T) {
	f := newScanFixture(t, constSource(map[Selector]ADCValue{0: 11, 1: 22, 2: 33}))

	f.dispatch("config_scan_channel", 0, 0, 0)
	f.dispatch("config_scan_channel", 1, 1, 0)
	f.dispatch("config_scan_channel", 2, 2, 0)
	f.dispatch("start_scan", 3)
	f.dispatch("set_scan_report", 1)
	f.driver.ConvertN(int(ScanPeriod(f.scanner.Config())))

	// restart on a shorter table before the report task ran
	f.dispatch("start_scan", 2)
	f.svc.ReportTask()
	assert.Empty(t, f.sender.take())

	// streaming survives the restart and reports the new table
	f.driver.ConvertN(int(ScanPeriod(f.scanner.Config())))
	f.svc.ReportTask()
	seq, samples := f.state()
	assert.Equal(t, uint8(1), seq)
	assert.Equal(t, []ADCValue{11, 22}, samples)
}

func TestInitScanCommands(t *testing.T) {
	prevReg, prevDict, prevScanner, prevSvc := globalRegistry, globalDictionary, scanner, scanService
	defer func() {
		globalRegistry, globalDictionary, scanner, scanService = prevReg, prevDict, prevScanner, prevSvc
	}()
	globalRegistry = NewCommandRegistry()
	globalDictionary = NewDictionary(globalRegistry)

	d := NewSimDriver(constSource(map[Selector]ADCValue{3: 99}))
	InitScanner(d)
	svc := InitScanCommands()
	sender := &recordingSender{}
	SetGlobalSender(sender)

	cmd, ok := GetGlobalRegistry().GetCommandByName("config_scan_channel")
	require.True(t, ok)
	require.NoError(t, DispatchCommand(cmd.ID, encodeArgs(0, 3, 0)))
	cmd, _ = GetGlobalRegistry().GetCommandByName("start_scan")
	require.NoError(t, DispatchCommand(cmd.ID, encodeArgs(1)))
	cmd, _ = GetGlobalRegistry().GetCommandByName("set_scan_report")
	require.NoError(t, DispatchCommand(cmd.ID, encodeArgs(1)))

	d.ConvertN(eventsFor(0))
	ScanReportTask()

	sent := sender.take()
	require.Len(t, sent, 1)
	payload := sent[0].payload
	_, _ = protocol.DecodeVLQUint(&payload)
	raw, err := protocol.DecodeVLQBytes(&payload)
	require.NoError(t, err)
	assert.Equal(t, []ADCValue{99}, DecodeSamples(raw))
	assert.Equal(t, uint32(0), svc.ReportsDropped())

	assert.Contains(t, string(GetGlobalDictionary().JSON()), `"SCAN_MAX_CHANNELS":"16"`)
	MustScanner().Stop()
}

func TestSampleEncoding(t *testing.T) {
	samples := []ADCValue{0, 1, 0x3FF, 0xFFF, 0xFFFF}
	raw := EncodeSamples(samples)
	assert.Equal(t, []byte{0, 0, 1, 0, 0xFF, 0x03, 0xFF, 0x0F, 0xFF, 0xFF}, raw)
	assert.Equal(t, samples, DecodeSamples(raw))
	assert.Equal(t, []ADCValue{1}, DecodeSamples([]byte{1, 0, 7}))
}

func TestScanServiceReset(t *testing.T) {
	f := newScanFixture(t, constSource(nil))
	f.dispatch("config_scan_channel", 0, 0, 0)
	f.dispatch("start_scan", 1)
	f.svc.Reset()
	assert.False(t, f.scanner.Running())

	f.dispatch("start_scan", 1)
	assert.Equal(t, uint32(ScanErrStagedMissing), f.scanError())
}
