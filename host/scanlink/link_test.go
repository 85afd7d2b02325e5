package scanlink

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scanadc/core"
	"scanadc/host/loopback"
	"scanadc/protocol"
)

func newTestLink(t *testing.T, period time.Duration, source func(core.Selector) core.ADCValue) (*Link, *loopback.Device) {
	t.Helper()
	cfg := loopback.DefaultConfig()
	cfg.ConversionPeriod = period
	cfg.Source = source
	dev := loopback.New(cfg)
	l := New(dev)
	t.Cleanup(func() {
		l.Close()
		dev.Close()
	})
	return l, dev
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func levels(values map[core.Selector]core.ADCValue) func(core.Selector) core.ADCValue {
	return func(sel core.Selector) core.ADCValue { return values[sel] }
}

func TestIdentify(t *testing.T) {
	l, _ := newTestLink(t, 0, nil)
	ctx := testContext(t)

	dict, err := l.Identify(ctx)
	require.NoError(t, err)
	assert.Same(t, dict, l.Dictionary())
	assert.Equal(t, protocol.Version, dict.Version)
	assert.Equal(t, "loopback", dict.Config["MCU"])

	max, err := dict.ConstantUint("SCAN_MAX_CHANNELS")
	require.NoError(t, err)
	assert.Equal(t, uint32(core.MaxStagedChannels), max)

	id, err := dict.CommandID("identify")
	require.NoError(t, err)
	assert.Equal(t, uint16(1), id)

	sel, err := dict.Selector("adc2")
	require.NoError(t, err)
	assert.Equal(t, uint8(2), sel)
	assert.Equal(t, "ADC3", dict.InputName(3))
}

func TestCommandsNeedDictionary(t *testing.T) {
	l, _ := newTestLink(t, 0, nil)
	err := l.Start(testContext(t), []core.ChannelConfig{{Selector: 0}})
	assert.Equal(t, ErrNoDictionary, errors.Cause(err))
}

func TestStartQueryStop(t *testing.T) {
	l, dev := newTestLink(t, 0, levels(map[core.Selector]core.ADCValue{0: 100, 2: 2000}))
	ctx := testContext(t)
	_, err := l.Identify(ctx)
	require.NoError(t, err)

	table := []core.ChannelConfig{{Selector: 2, Averaging: 2}, {Selector: 0, Averaging: 0}}
	require.NoError(t, l.Start(ctx, table))

	dev.Driver().ConvertN(3 * int(core.ScanPeriod(table)))

	report, err := l.Query(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint8(3), report.Seq)
	assert.Equal(t, []core.ADCValue{2000, 100}, report.Samples)

	require.NoError(t, l.Stop(ctx))
	_, err = l.Query(ctx)
	assert.True(t, errors.Is(err, core.ErrNotRunning), "got %v", err)
}

func TestScanErrors(t *testing.T) {
	l, _ := newTestLink(t, 0, nil)
	ctx := testContext(t)
	_, err := l.Identify(ctx)
	require.NoError(t, err)

	err = l.Start(ctx, []core.ChannelConfig{{Selector: 0, Averaging: 16}})
	var scanErr *ScanError
	require.True(t, errors.As(err, &scanErr), "got %v", err)
	assert.Equal(t, uint8(core.ScanErrAveraging), scanErr.Code)
	assert.True(t, errors.Is(err, core.ErrAveragingRange))

	assert.Equal(t, core.ErrNoChannels, l.Start(ctx, nil))

	too := make([]core.ChannelConfig, core.MaxStagedChannels+1)
	err = l.Start(ctx, too)
	assert.True(t, errors.Is(err, core.ErrChannelRange), "got %v", err)
}

func TestStreamedReports(t *testing.T) {
	l, _ := newTestLink(t, 20*time.Microsecond, levels(map[core.Selector]core.ADCValue{1: 42}))
	ctx := testContext(t)
	_, err := l.Identify(ctx)
	require.NoError(t, err)

	require.NoError(t, l.Start(ctx, []core.ChannelConfig{{Selector: 1, Averaging: 1}}))
	require.NoError(t, l.EnableReports(ctx, true))

	var last *Report
	for i := 0; i < 3; i++ {
		select {
		case r := <-l.Reports():
			assert.Equal(t, []core.ADCValue{42}, r.Samples)
			if last != nil {
				assert.NotEqual(t, last.Seq, r.Seq)
			}
			last = &r
		case <-ctx.Done():
			t.Fatal("no report")
		}
	}

	require.NoError(t, l.EnableReports(ctx, false))
	require.NoError(t, l.Stop(ctx))
}

func TestScanErrorText(t *testing.T) {
	assert.Equal(t, core.ErrNotRunning.Error(), (&ScanError{Code: core.ScanErrNotRunning}).Error())
	assert.Contains(t, (&ScanError{Code: core.ScanErrStagedMissing}).Error(), "not configured")
	assert.Equal(t, "scan: error code 42", (&ScanError{Code: 42}).Error())
}
