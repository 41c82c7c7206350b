package host

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/born-ml/gpulinalg/internal/accel"
)

// command is one unit of work on the in-order queue.
type command struct {
	wait []accel.Event
	run  func() error
	ev   *event
}

// queue executes commands one at a time on a dedicated goroutine, so
// commands complete in the order they were enqueued.
type queue struct {
	ctx       *hostContext
	profiling bool

	mu       sync.Mutex
	cmds     chan command
	released bool
	done     chan struct{}
}

func newQueue(c *hostContext, props accel.QueueProperties) *queue {
	q := &queue{
		ctx:       c,
		profiling: props&accel.QueueProfilingEnable != 0,
		cmds:      make(chan command, 64),
		done:      make(chan struct{}),
	}
	go q.loop()
	return q
}

func (q *queue) loop() {
	defer close(q.done)
	for cmd := range q.cmds {
		q.execute(cmd)
	}
}

func (q *queue) execute(cmd command) {
	ev := cmd.ev
	ev.stamp(func(p *accel.Profile) { p.Submit = time.Now() })

	for _, w := range cmd.wait {
		if err := w.Wait(); err != nil {
			ev.finish(accel.Errorf("WaitList", accel.ExecStatusError, "dependency failed: %w", err))
			return
		}
	}

	ev.setStatus(accel.CommandRunning)
	ev.stamp(func(p *accel.Profile) { p.Start = time.Now() })
	err := cmd.run()
	ev.stamp(func(p *accel.Profile) { p.End = time.Now() })
	ev.finish(err)
}

// submit places run on the queue behind wait and returns its event.
func (q *queue) submit(op string, wait []accel.Event, run func() error) (*event, error) {
	for _, w := range wait {
		if w == nil {
			return nil, accel.Errorf(op, accel.InvalidEventWaitList, "nil event in wait list")
		}
	}
	if err := q.ctx.dev.cfg.fault(op); err != nil {
		return nil, err
	}

	ev := newEvent(q.profiling)
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.released {
		return nil, accel.Fail(op, accel.InvalidCommandQueue)
	}
	q.cmds <- command{wait: wait, run: run, ev: ev}
	return ev, nil
}

func (q *queue) EnqueueWrite(buf accel.Buffer, blocking bool, offset int, src []float32, wait []accel.Event) (accel.Event, error) {
	const op = "EnqueueWriteBuffer"
	hb, err := asBuffer(op, buf)
	if err != nil {
		return nil, err
	}
	start, err := span(op, hb, offset, len(src))
	if err != nil {
		return nil, err
	}
	ev, err := q.submit(op, wait, func() error {
		copy(hb.data[start:start+len(src)], src)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blockIf(blocking, ev)
}

func (q *queue) EnqueueRead(buf accel.Buffer, blocking bool, offset int, dst []float32, wait []accel.Event) (accel.Event, error) {
	const op = "EnqueueReadBuffer"
	hb, err := asBuffer(op, buf)
	if err != nil {
		return nil, err
	}
	start, err := span(op, hb, offset, len(dst))
	if err != nil {
		return nil, err
	}
	ev, err := q.submit(op, wait, func() error {
		copy(dst, hb.data[start:start+len(dst)])
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blockIf(blocking, ev)
}

func (q *queue) EnqueueNDRange(k accel.Kernel, global, local accel.Range, wait []accel.Event) (accel.Event, error) {
	const op = "EnqueueNDRangeKernel"
	hk, ok := k.(*kernel)
	if !ok || hk == nil || hk.Released() {
		return nil, accel.Errorf(op, accel.InvalidKernel, "kernel %T is not a live host kernel", k)
	}
	if err := accel.ValidateLaunch(global, local, q.ctx.dev.info); err != nil {
		return nil, err
	}
	l, err := hk.launch(q.ctx.dev.info)
	if err != nil {
		return nil, err
	}
	l.global = global
	l.local = local
	cfg := q.ctx.dev.cfg.Parallel
	return q.submit(op, wait, func() error {
		return l.run(cfg)
	})
}

func (q *queue) Finish() error {
	ev, err := q.submit("Finish", nil, func() error { return nil })
	if err != nil {
		return err
	}
	defer ev.Release()
	return ev.Wait()
}

func (q *queue) Release() error {
	q.mu.Lock()
	if q.released {
		q.mu.Unlock()
		return accel.Fail("ReleaseCommandQueue", accel.InvalidCommandQueue)
	}
	q.released = true
	close(q.cmds)
	q.mu.Unlock()

	<-q.done
	return nil
}

// span converts a byte offset and element count into a float index range
// inside hb.
func span(op string, hb *buffer, offset, n int) (int, error) {
	if offset < 0 || offset%accel.SizeofFloat != 0 {
		return 0, accel.Errorf(op, accel.InvalidValue, "offset %d is not a non-negative multiple of %d", offset, accel.SizeofFloat)
	}
	start := offset / accel.SizeofFloat
	if start+n > len(hb.data) {
		return 0, accel.Errorf(op, accel.InvalidValue, "%d floats at offset %d overrun a %d byte buffer", n, offset, hb.Size())
	}
	return start, nil
}

func blockIf(blocking bool, ev *event) (accel.Event, error) {
	if !blocking {
		return ev, nil
	}
	if err := ev.Wait(); err != nil {
		ev.Release()
		return nil, err
	}
	return ev, nil
}

type event struct {
	done      chan struct{}
	status    atomic.Int32
	err       error
	profiling bool
	released  atomic.Bool

	mu      sync.Mutex
	profile accel.Profile
}

func newEvent(profiling bool) *event {
	ev := &event{done: make(chan struct{}), profiling: profiling}
	ev.status.Store(int32(accel.CommandQueued))
	ev.profile.Queued = time.Now()
	return ev
}

func (e *event) stamp(f func(p *accel.Profile)) {
	e.mu.Lock()
	f(&e.profile)
	e.mu.Unlock()
}

func (e *event) setStatus(s accel.CommandStatus) {
	e.status.Store(int32(s))
}

func (e *event) finish(err error) {
	e.err = err
	if err != nil {
		e.setStatus(accel.CommandFailed)
	} else {
		e.setStatus(accel.CommandComplete)
	}
	close(e.done)
}

func (e *event) Wait() error {
	<-e.done
	return e.err
}

func (e *event) Status() accel.CommandStatus {
	return accel.CommandStatus(e.status.Load())
}

func (e *event) Profile() (accel.Profile, error) {
	if !e.profiling || e.Status() != accel.CommandComplete {
		return accel.Profile{}, accel.Fail("GetEventProfilingInfo", accel.ProfilingInfoNotAvailable)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.profile, nil
}

func (e *event) Release() error {
	if !e.released.CompareAndSwap(false, true) {
		return accel.Fail("ReleaseEvent", accel.InvalidEvent)
	}
	return nil
}
