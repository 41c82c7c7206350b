package linalg

import (
	"errors"

	"github.com/born-ml/gpulinalg/internal/accel"
)

// staging owns the device buffers and completion events of one operation
// call. Every object it hands out is released by release, which the caller
// defers at call entry.
type staging struct {
	ctx   accel.Context
	queue accel.Queue
	stats *statsRecorder

	buffers []accel.Buffer
	events  []accel.Event
}

func newStaging(ctx accel.Context, q accel.Queue, stats *statsRecorder) *staging {
	return &staging{ctx: ctx, queue: q, stats: stats}
}

// alloc creates a zero-filled device region of n floats.
func (s *staging) alloc(n int, flags accel.MemFlags) (accel.Buffer, error) {
	buf, err := s.ctx.CreateBuffer(flags, n*accel.SizeofFloat)
	if err != nil {
		return nil, err
	}
	s.buffers = append(s.buffers, buf)
	//nolint:gosec // G115: buffer sizes are positive
	s.stats.bufferAllocated(uint64(buf.Size()))
	return buf, nil
}

// upload allocates a region of n floats and schedules a non-blocking copy
// of host into it. Only min(len(host), n) floats are copied; the rest of
// the region stays zero, so host is never grown to the padded size.
func (s *staging) upload(host []float32, n int, flags accel.MemFlags) (accel.Buffer, accel.Event, error) {
	buf, err := s.alloc(n, flags)
	if err != nil {
		return nil, nil, err
	}
	ev, err := s.queue.EnqueueWrite(buf, false, 0, host[:min(len(host), n)], nil)
	if err != nil {
		return nil, nil, err
	}
	s.track(ev)
	return buf, ev, nil
}

// download copies len(host) floats from buf after every event in wait
// completes, and returns once the copy is done.
func (s *staging) download(buf accel.Buffer, host []float32, wait ...accel.Event) error {
	ev, err := s.queue.EnqueueRead(buf, true, 0, host, wait)
	if err != nil {
		return err
	}
	s.track(ev)
	return nil
}

func (s *staging) track(ev accel.Event) {
	s.events = append(s.events, ev)
	s.stats.eventCreated()
}

// release frees every event and buffer of the call. It waits for pending
// commands first so no region is freed while the device still uses it.
func (s *staging) release() error {
	var errs []error
	for _, ev := range s.events {
		// Failures were already reported by the waiter.
		_ = ev.Wait()
		errs = append(errs, ev.Release())
		s.stats.eventReleased()
	}
	s.events = nil
	for _, buf := range s.buffers {
		size := buf.Size()
		errs = append(errs, buf.Release())
		//nolint:gosec // G115: buffer sizes are positive
		s.stats.bufferReleased(uint64(size))
	}
	s.buffers = nil
	return errors.Join(errs...)
}

// awaitAll blocks until every event completes.
func awaitAll(events ...accel.Event) error {
	return accel.WaitForEvents(events...)
}
