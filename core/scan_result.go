package core

import (
	"context"
	"runtime"
	"sync/atomic"
)

// publishedSample couples a channel's latest averaged value with its 8-bit
// sequence number. The state machine is the only writer.
//
// Ordering: publish stores the value before it stores the incremented
// sequence. A reader that loads the sequence and sees it change is therefore
// guaranteed to load a value at least as new as that sequence.
type publishedSample struct {
	value atomic.Uint32
	seq   atomic.Uint32
}

func (p *publishedSample) publish(v ADCValue) uint8 {
	p.value.Store(uint32(v))
	seq := uint8(p.seq.Load()) + 1
	p.seq.Store(uint32(seq))
	return seq
}

func (p *publishedSample) sequence() uint8 {
	return uint8(p.seq.Load())
}

func (p *publishedSample) sample() ADCValue {
	return ADCValue(p.value.Load())
}

// slot returns channel i's published sample.
func (s *Scanner) slot(i int) (*publishedSample, error) {
	if !s.running {
		return nil, ErrNotRunning
	}
	if i < 0 || i >= len(s.slots) {
		return nil, ErrChannelRange
	}
	return &s.slots[i], nil
}

// Sequence returns channel i's sequence number. It starts at 0 when a
// session starts and increments, wrapping at 256, each time the channel
// publishes a sample. Always safe to call; the event source is not touched.
func (s *Scanner) Sequence(i int) (uint8, error) {
	p, err := s.slot(i)
	if err != nil {
		return 0, err
	}
	return p.sequence(), nil
}

// Sample returns the last value published for channel i. The completion
// event is masked for the duration of the load and then restored to
// whatever state it was in.
//
// There is one slot per channel. After WaitScan returns, channel 0 is
// overwritten once the next scan has averaged it, roughly
// (2 + 2^averaging) conversion periods later; callers that need a coherent
// scan should read it within that window or use Samples.
func (s *Scanner) Sample(i int) (ADCValue, error) {
	p, err := s.slot(i)
	if err != nil {
		return 0, err
	}
	state := s.driver.SuppressEvents()
	v := p.sample()
	s.driver.RestoreEvents(state)
	return v, nil
}

// Samples copies the latest value of every channel into dst under a single
// suppression window and returns the number copied.
func (s *Scanner) Samples(dst []ADCValue) (int, error) {
	if !s.running {
		return 0, ErrNotRunning
	}
	state := s.driver.SuppressEvents()
	n := 0
	for ; n < len(dst) && n < len(s.slots); n++ {
		dst[n] = s.slots[n].sample()
	}
	s.driver.RestoreEvents(state)
	return n, nil
}

// WaitChannel busy-waits until channel i publishes a new sample, that is
// until its sequence number differs from the one seen on entry. The event
// source keeps running during the wait; without it this never returns.
//
// To see every sample of a channel the call must already be waiting when
// the channel finishes averaging.
func (s *Scanner) WaitChannel(i int) error {
	p, err := s.slot(i)
	if err != nil {
		return err
	}
	last := p.sequence()
	for last == p.sequence() {
		runtime.Gosched()
	}
	return nil
}

// WaitScan waits for the last configured channel, which completes a scan.
func (s *Scanner) WaitScan() error {
	if len(s.slots) == 0 {
		return nil
	}
	return s.WaitChannel(len(s.slots) - 1)
}

// WaitChannelContext is WaitChannel bounded by ctx.
func (s *Scanner) WaitChannelContext(ctx context.Context, i int) error {
	p, err := s.slot(i)
	if err != nil {
		return err
	}
	last := p.sequence()
	for last == p.sequence() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		runtime.Gosched()
	}
	return nil
}

// WaitScanContext is WaitScan bounded by ctx.
func (s *Scanner) WaitScanContext(ctx context.Context) error {
	if len(s.slots) == 0 {
		return nil
	}
	return s.WaitChannelContext(ctx, len(s.slots)-1)
}
