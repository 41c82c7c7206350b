package linalg

import (
	"bytes"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/gpulinalg/internal/accel"
	"github.com/born-ml/gpulinalg/internal/accel/host"
	"github.com/born-ml/gpulinalg/internal/kernels"
)

func newContext(t *testing.T, cfg Config) *Context {
	t.Helper()
	c, err := Initialize(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		if !c.closed {
			assert.NoError(t, c.Teardown())
		}
	})
	return c
}

// ramp returns n deterministic, non-trivial values.
func ramp(n int, scale float32) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = scale * float32(i%17-8) / 4
	}
	return s
}

func assertNoLeaks(t *testing.T, c *Context) {
	t.Helper()
	st := c.Stats()
	assert.Zero(t, st.ActiveBuffers, "live buffers")
	assert.Zero(t, st.ActiveEvents, "live events")
	assert.Zero(t, st.TotalAllocatedBytes, "live bytes")
}

func TestAddSubtractRoundTrip(t *testing.T) {
	c := newContext(t, DefaultConfig())
	shapes := [][2]int{{1, 5}, {7, 1}, {1, 1}, {3, 4}, {33, 2}, {40, 70}, {1, 300}}
	for _, sh := range shapes {
		rows, cols := sh[0], sh[1]
		n := rows * cols
		s1, s2 := ramp(n, 1), ramp(n, -3)

		var sum, back []float32
		require.NoError(t, c.Add(s1, s2, &sum, rows, cols))
		require.NoError(t, c.Subtract(sum, s2, &back, rows, cols))

		require.Len(t, sum, n)
		require.Len(t, back, n)
		assert.Len(t, s1, n, "inputs keep their length")
		assert.InDeltaSlice(t, s1, back, 1e-5, "%dx%d", rows, cols)
	}
	assertNoLeaks(t, c)
}

func TestElementwiseOps(t *testing.T) {
	c := newContext(t, DefaultConfig())
	const rows, cols = 5, 9
	s1 := ramp(rows*cols, 2)
	s2 := CreateFilledShape(rows*cols, 0.5)

	tests := []struct {
		name string
		run  func(a, b []float32, out *[]float32, r, c int) error
		want func(a, b float32) float32
	}{
		{"add", c.Add, func(a, b float32) float32 { return a + b }},
		{"subtract", c.Subtract, func(a, b float32) float32 { return a - b }},
		{"multiply", c.Multiply, func(a, b float32) float32 { return a * b }},
		{"divide", c.Divide, func(a, b float32) float32 { return a / b }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out []float32
			require.NoError(t, tt.run(s1, s2, &out, rows, cols))
			require.Len(t, out, rows*cols)
			for i := range out {
				assert.InDelta(t, tt.want(s1[i], s2[i]), out[i], 1e-6, "element %d", i)
			}
		})
	}
}

func TestElementwiseResizesOutput(t *testing.T) {
	c := newContext(t, DefaultConfig())
	s1, s2 := ramp(6, 1), ramp(6, 1)

	long := make([]float32, 1000)
	require.NoError(t, c.Add(s1, s2, &long, 2, 3))
	assert.Len(t, long, 6)

	short := []float32{42}
	require.NoError(t, c.Multiply(s1, s2, &short, 2, 3))
	assert.Len(t, short, 6)
	assert.InDelta(t, s1[5]*s2[5], short[5], 1e-6)

	// Longer inputs are read only up to rows*cols.
	var out []float32
	require.NoError(t, c.Add(ramp(50, 1), ramp(50, 1), &out, 1, 4))
	assert.Len(t, out, 4)
}

func TestElementwiseEmptyShape(t *testing.T) {
	c := newContext(t, DefaultConfig())
	out := []float32{1, 2}
	require.NoError(t, c.Add(nil, nil, &out, 0, 5))
	assert.Empty(t, out)
	assert.Zero(t, c.Stats().Kernels[kernels.Add].Launches)
}

func TestDivideByZero(t *testing.T) {
	c := newContext(t, DefaultConfig())
	var out []float32
	require.NoError(t, c.Divide([]float32{1}, []float32{0}, &out, 1, 1))
	require.Len(t, out, 1)
	assert.True(t, math.IsInf(float64(out[0]), 1))

	require.NoError(t, c.Divide([]float32{0, -1}, []float32{0, 0}, &out, 1, 2))
	assert.True(t, math.IsNaN(float64(out[0])))
	assert.True(t, math.IsInf(float64(out[1]), -1))
}

func TestDotProduct(t *testing.T) {
	c := newContext(t, DefaultConfig())
	a := []float32{1, 2, 3, 4, 5, 6}
	b := []float32{1, 0, 0, 1, 1, 1}
	out := make([]float32, 4)
	require.NoError(t, c.DotProduct(a, b, out, 2, 3, 2))
	assert.Equal(t, []float32{4, 5, 10, 11}, out)
	assertNoLeaks(t, c)
}

func TestDotProductMatchesHost(t *testing.T) {
	c := newContext(t, DefaultConfig())
	const rows, inner, cols2 = 5, 17, 9
	a, b := ramp(rows*inner, 1), ramp(inner*cols2, 0.5)

	got := make([]float32, rows*cols2)
	want := make([]float32, rows*cols2)
	require.NoError(t, c.DotProduct(a, b, got, rows, inner, cols2))
	hostDot(a, b, want, rows, inner, cols2)
	assert.InDeltaSlice(t, want, got, 1e-4)
}

func TestMatrixVectorProduct(t *testing.T) {
	c := newContext(t, DefaultConfig())
	out := make([]float32, 2)
	require.NoError(t, c.MatrixVectorProduct([]float32{1, 2, 3, 4}, []float32{10, 20}, out, 2, 2))
	assert.Equal(t, []float32{30, 140}, out)

	const rows, cols = 6, 33
	m, v := ramp(rows*cols, 1), ramp(rows, 2)
	got, want := make([]float32, rows), make([]float32, rows)
	require.NoError(t, c.MatrixVectorProduct(m, v, got, rows, cols))
	hostMatVec(m, v, want, rows, cols)
	assert.InDeltaSlice(t, want, got, 1e-4)
	assertNoLeaks(t, c)
}

func TestCreateFilledShape(t *testing.T) {
	s := CreateFilledShape(5, 2.5)
	assert.Equal(t, []float32{2.5, 2.5, 2.5, 2.5, 2.5}, s)
	assert.NotNil(t, CreateFilledShape(0, 1))
	assert.Empty(t, CreateFilledShape(0, 1))
	assert.Empty(t, CreateFilledShape(-3, 1))
}

func TestValidation(t *testing.T) {
	c := newContext(t, DefaultConfig())
	var out []float32

	assert.ErrorIs(t, c.Add([]float32{1}, []float32{1, 2}, &out, 1, 2), ErrShortBuffer)
	assert.ErrorIs(t, c.Add([]float32{1}, []float32{1}, nil, 1, 1), ErrShortBuffer)
	assert.ErrorIs(t, c.Add(nil, nil, &out, -1, 2), ErrInvalidDims)
	assert.ErrorIs(t, c.DotProduct(ramp(4, 1), ramp(4, 1), make([]float32, 3), 2, 2, 2), ErrShortBuffer)
	assert.ErrorIs(t, c.DotProduct(nil, nil, nil, 0, 2, 2), ErrInvalidDims)
	assert.ErrorIs(t, c.MatrixVectorProduct(ramp(4, 1), ramp(1, 1), make([]float32, 2), 2, 2), ErrShortBuffer)
	assert.ErrorIs(t, c.MatrixVectorProduct(nil, nil, nil, 2, 0), ErrInvalidDims)

	// The host device allows 1024 lanes per work-group.
	wide := 2000
	err := c.DotProduct(ramp(wide, 1), ramp(wide, 1), make([]float32, 1), 1, wide, 1)
	assert.ErrorIs(t, err, ErrExceedsDeviceLimit)
	assertNoLeaks(t, c)
}

func TestLifecycle(t *testing.T) {
	var zero Context
	var out []float32
	assert.ErrorIs(t, zero.Add(nil, nil, &out, 1, 1), ErrNotInitialized)
	assert.ErrorIs(t, zero.Teardown(), ErrNotInitialized)

	c, err := Initialize(DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, accel.DeviceTypeAccelerator, c.Device().Type)
	require.NoError(t, c.Teardown())

	assert.ErrorIs(t, c.Add([]float32{1}, []float32{1}, &out, 1, 1), ErrClosed)
	assert.ErrorIs(t, c.DotProduct([]float32{1}, []float32{1}, []float32{0}, 1, 1, 1), ErrClosed)
	assert.ErrorIs(t, c.Teardown(), ErrClosed)
}

func TestInitializeFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DeviceType = accel.DeviceTypeCPU
	_, err := Initialize(cfg)
	require.Error(t, err)
	assert.Equal(t, accel.DeviceNotFound, StatusOf(err))

	cfg = DefaultConfig()
	cfg.Driver = "missing"
	_, err = Initialize(cfg)
	assert.Equal(t, accel.InvalidPlatform, StatusOf(err))

	hc := host.DefaultConfig()
	hc.FaultHook = func(op string) error {
		if op == "BuildProgram" {
			return accel.Fail(op, accel.BuildProgramFailure)
		}
		return nil
	}
	cfg = DefaultConfig()
	cfg.Backend = host.New(hc)
	_, err = Initialize(cfg)
	assert.Equal(t, accel.BuildProgramFailure, StatusOf(err))
}

func TestCallStateOrder(t *testing.T) {
	c := newContext(t, DefaultConfig())
	out := make([]float32, 1)
	require.NoError(t, c.MatrixVectorProduct([]float32{1, 1}, []float32{2}, out, 1, 2))
	assert.Equal(t, []callState{
		stateInputsUploading, stateInputsReady, stateKernelRunning, stateOutputReady, stateReleased,
	}, c.lastTrace)

	cl := &call{}
	assert.Panics(t, func() { cl.advance(stateKernelRunning) })
	cl.advance(stateInputsUploading)
	cl.release()
	assert.Equal(t, stateReleased, cl.state)
	assert.Equal(t, "INPUTS_READY", stateInputsReady.String())
}

// faultyContext fails every kernel launch while fail is set.
func faultyContext(t *testing.T, fallback bool) (*Context, *atomic.Bool) {
	t.Helper()
	fail := &atomic.Bool{}
	hc := host.DefaultConfig()
	hc.FaultHook = func(op string) error {
		if op == "EnqueueNDRangeKernel" && fail.Load() {
			return accel.Fail(op, accel.OutOfResources)
		}
		return nil
	}
	cfg := DefaultConfig()
	cfg.Backend = host.New(hc)
	cfg.HostFallback = fallback
	return newContext(t, cfg), fail
}

func TestAcceleratorFailure(t *testing.T) {
	c, fail := faultyContext(t, false)
	fail.Store(true)

	var out []float32
	err := c.Add([]float32{1, 2}, []float32{3, 4}, &out, 1, 2)
	require.Error(t, err)
	assert.Equal(t, accel.OutOfResources, StatusOf(err))
	var af *AcceleratorFailure
	require.ErrorAs(t, err, &af)
	assert.Equal(t, "EnqueueNDRangeKernel", af.Op)
	assert.Nil(t, out, "output untouched on failure")
	assertNoLeaks(t, c)

	fail.Store(false)
	require.NoError(t, c.Add([]float32{1, 2}, []float32{3, 4}, &out, 1, 2))
	assert.Equal(t, []float32{4, 6}, out)
}

func TestHostFallback(t *testing.T) {
	c, fail := faultyContext(t, true)
	fail.Store(true)

	var sum []float32
	require.NoError(t, c.Subtract([]float32{5, 7}, []float32{1, 2}, &sum, 2, 1))
	assert.Equal(t, []float32{4, 5}, sum)

	dot := make([]float32, 4)
	require.NoError(t, c.DotProduct([]float32{1, 2, 3, 4, 5, 6}, []float32{1, 0, 0, 1, 1, 1}, dot, 2, 3, 2))
	assert.Equal(t, []float32{4, 5, 10, 11}, dot)

	mv := make([]float32, 2)
	require.NoError(t, c.MatrixVectorProduct([]float32{1, 2, 3, 4}, []float32{10, 20}, mv, 2, 2))
	assert.Equal(t, []float32{30, 140}, mv)

	assert.Equal(t, int64(3), c.Stats().Fallbacks)
	assertNoLeaks(t, c)
}

func TestSequentialCallsAreIndependent(t *testing.T) {
	run := func(c *Context, first bool) ([]float32, []float32) {
		var x, y []float32
		opX := func() { require.NoError(t, c.Multiply(ramp(40, 1), ramp(40, 2), &x, 4, 10)) }
		opY := func() { require.NoError(t, c.Subtract(ramp(9, 3), ramp(9, 1), &y, 9, 1)) }
		if first {
			opX()
			opY()
		} else {
			opY()
			opX()
		}
		return x, y
	}
	c := newContext(t, DefaultConfig())
	x1, y1 := run(c, true)
	x2, y2 := run(c, false)
	assert.Equal(t, x1, x2)
	assert.Equal(t, y1, y2)
	assertNoLeaks(t, c)
}

func TestConcurrentCallers(t *testing.T) {
	c := newContext(t, DefaultConfig())
	var wg sync.WaitGroup
	errs := make([]error, 8)
	outs := make([][]float32, 8)
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := CreateFilledShape(64, float32(g))
			errs[g] = c.Add(s, s, &outs[g], 8, 8)
		}()
	}
	wg.Wait()
	for g := range 8 {
		require.NoError(t, errs[g])
		assert.Equal(t, CreateFilledShape(64, float32(2*g)), outs[g])
	}
	assert.Equal(t, int64(8), c.Stats().Kernels[kernels.Add].Launches)
}

func TestStats(t *testing.T) {
	c := newContext(t, DefaultConfig())
	var out []float32
	require.NoError(t, c.Add(ramp(10, 1), ramp(10, 1), &out, 1, 10))
	require.NoError(t, c.Add(ramp(10, 1), ramp(10, 1), &out, 1, 10))

	st := c.Stats()
	assert.Equal(t, int64(2), st.Kernels[kernels.Add].Launches)
	// Three 32-float regions per call.
	assert.Equal(t, uint64(3*32*accel.SizeofFloat), st.PeakMemoryBytes)
	assertNoLeaks(t, c)
}

func TestWorkersAndLogging(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Workers = 1
	cfg.Logger = zerolog.New(&buf).Level(zerolog.DebugLevel)
	c := newContext(t, cfg)

	var out []float32
	require.NoError(t, c.Add([]float32{1}, []float32{2}, &out, 1, 1))
	assert.Equal(t, []float32{3}, out)
	assert.Contains(t, buf.String(), "accelerator selected")
	assert.Contains(t, buf.String(), `"kernel":"elementwiseAdd"`)
}

func TestDevices(t *testing.T) {
	infos, err := Devices(host.DriverName)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, host.PlatformName, infos[0].Platform)
	assert.Positive(t, infos[0].MaxWorkGroupSize)

	_, err = Devices("missing")
	assert.Equal(t, accel.InvalidPlatform, StatusOf(err))
}

func TestAbortOnFailure(t *testing.T) {
	var code int
	var diag bytes.Buffer
	exit, stderr = func(c int) { code = c }, &diag
	t.Cleanup(func() { exit, stderr = os.Exit, os.Stderr })

	c, fail := faultyContext(t, false)
	c.cfg.AbortOnFailure = true
	fail.Store(true)

	var out []float32
	require.Error(t, c.Add([]float32{1}, []float32{2}, &out, 1, 1))
	assert.Equal(t, 1, code)
	assert.Contains(t, diag.String(), "add: accelerator failure, status -5")

	var logged bytes.Buffer
	c.log = zerolog.New(&logged)
	code = 0
	diag.Reset()
	require.Error(t, c.Multiply([]float32{1}, []float32{2}, &out, 1, 1))
	assert.Equal(t, 1, code)
	assert.Empty(t, diag.String())
	assert.Contains(t, logged.String(), `"level":"fatal"`)
	assert.Contains(t, logged.String(), `"status":-5`)
}
