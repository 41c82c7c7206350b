package accel

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceTypeMatches(t *testing.T) {
	tests := []struct {
		have, want DeviceType
		ok         bool
	}{
		{DeviceTypeGPU, DeviceTypeAccelerator, true},
		{DeviceTypeAccelerator, DeviceTypeAccelerator, true},
		{DeviceTypeCPU, DeviceTypeAccelerator, false},
		{DeviceTypeCPU, DeviceTypeAll, true},
		{DeviceTypeGPU, DeviceTypeDefault, true},
		{DeviceTypeAccelerator, DeviceTypeGPU, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.have, tt.want), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.have.Matches(tt.want))
		})
	}
}

func TestMemFlagsAccess(t *testing.T) {
	assert.True(t, MemReadOnly.Readable())
	assert.False(t, MemReadOnly.Writable())
	assert.False(t, MemWriteOnly.Readable())
	assert.True(t, MemWriteOnly.Writable())
	rw := MemReadWrite | MemAllocHostPtr
	assert.True(t, rw.Readable())
	assert.True(t, rw.Writable())
}

func TestRange(t *testing.T) {
	r := R3(4, 6, 8)
	assert.Equal(t, 3, r.Dims())
	assert.Equal(t, 192, r.Size())
	assert.Equal(t, [3]int{4, 2, 8}, r.Groups(R3(1, 3, 1)))
	assert.Equal(t, "(4, 6, 8)", r.String())

	v := R1(64)
	assert.Equal(t, 1, v.At(2))
	assert.Equal(t, [3]int{2, 1, 1}, v.Groups(R1(32)))
	assert.Equal(t, 0, Range{}.Size())
}

func TestValidateLaunch(t *testing.T) {
	info := DeviceInfo{MaxWorkGroupSize: 256, MaxWorkItemSizes: [3]int{256, 256, 64}}

	require.NoError(t, ValidateLaunch(R1(1024), R1(32), info))
	require.NoError(t, ValidateLaunch(R3(2, 3, 2), R3(1, 3, 1), info))
	require.NoError(t, ValidateLaunch(R2(5, 256), R2(1, 256), info))

	tests := []struct {
		name          string
		global, local Range
		status        Status
	}{
		{"no dims", Range{}, Range{}, InvalidWorkDimension},
		{"item size", R3(1, 1, 128), R3(1, 1, 128), InvalidWorkItemSize},
		{"group size", R2(16, 32), R2(16, 32), InvalidWorkGroupSize},
		{"indivisible", R1(33), R1(32), InvalidWorkGroupSize},
		{"zero local", R1(32), R1(0), InvalidWorkGroupSize},
		{"negative global", R1(-1), R1(1), InvalidGlobalWorkSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLaunch(tt.global, tt.local, info)
			require.Error(t, err)
			assert.Equal(t, tt.status, StatusOf(err))
		})
	}
}

func TestErrorStatus(t *testing.T) {
	cause := errors.New("driver lost")
	err := fmt.Errorf("linalg: add: %w", &Error{Op: "EnqueueWriteBuffer", Status: OutOfResources, Err: cause})

	assert.Equal(t, OutOfResources, StatusOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "OUT_OF_RESOURCES (-5)")
	assert.Equal(t, Success, StatusOf(nil))
	assert.Equal(t, InvalidOperation, StatusOf(cause))
	assert.Equal(t, "STATUS(-999)", Status(-999).String())
	assert.Equal(t, "accel: Finish: INVALID_COMMAND_QUEUE (-36)", Fail("Finish", InvalidCommandQueue).Error())
}

type fakeEvent struct {
	err      error
	waited   bool
	released bool
}

func (e *fakeEvent) Wait() error {
	e.waited = true
	return e.err
}

func (e *fakeEvent) Release() error {
	e.released = true
	return nil
}

func (e *fakeEvent) Status() CommandStatus     { return CommandComplete }
func (e *fakeEvent) Profile() (Profile, error) { return Profile{}, nil }

func TestWaitForEvents(t *testing.T) {
	a, b := &fakeEvent{}, &fakeEvent{err: Fail("EnqueueNDRangeKernel", OutOfResources)}
	err := WaitForEvents(a, b)
	assert.True(t, a.waited)
	assert.True(t, b.waited)
	assert.Equal(t, OutOfResources, StatusOf(err))

	assert.NoError(t, WaitForEvents(a))
	assert.Equal(t, InvalidValue, StatusOf(WaitForEvents()))
	assert.Equal(t, InvalidEvent, StatusOf(WaitForEvents(nil)))

	require.NoError(t, ReleaseAll[Event](a, nil, b))
	assert.True(t, a.released)
	assert.True(t, b.released)
}

func TestRegistry(t *testing.T) {
	_, err := Lookup("nonexistent")
	assert.Equal(t, InvalidPlatform, StatusOf(err))

	Register("fake", fakeDriver{})
	defer Register("fake", nil)
	d, err := Lookup("fake")
	require.NoError(t, err)
	assert.Equal(t, "fake", d.Name())

	_, _, err = SelectDevice(d, DeviceTypeGPU)
	assert.Equal(t, InvalidPlatform, StatusOf(err))
}

type fakeDriver struct{}

func (fakeDriver) Name() string                   { return "fake" }
func (fakeDriver) Platforms() ([]Platform, error) { return nil, nil }
