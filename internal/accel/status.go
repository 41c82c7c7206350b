package accel

import (
	"errors"
	"fmt"
)

// Status is a driver status code. Zero is success; failures are negative.
type Status int32

// Status codes reported by drivers.
const (
	Success                    Status = 0
	DeviceNotFound             Status = -1
	DeviceNotAvailable         Status = -2
	MemObjectAllocationFailure Status = -4
	OutOfResources             Status = -5
	ProfilingInfoNotAvailable  Status = -7
	BuildProgramFailure        Status = -11
	ExecStatusError            Status = -14
	InvalidValue               Status = -30
	InvalidDeviceType          Status = -31
	InvalidPlatform            Status = -32
	InvalidDevice              Status = -33
	InvalidContext             Status = -34
	InvalidCommandQueue        Status = -36
	InvalidMemObject           Status = -38
	InvalidProgramExecutable   Status = -45
	InvalidKernelName          Status = -46
	InvalidKernel              Status = -48
	InvalidArgIndex            Status = -49
	InvalidArgValue            Status = -50
	InvalidArgSize             Status = -51
	InvalidKernelArgs          Status = -52
	InvalidWorkDimension       Status = -53
	InvalidWorkGroupSize       Status = -54
	InvalidWorkItemSize        Status = -55
	InvalidEventWaitList       Status = -57
	InvalidEvent               Status = -58
	InvalidOperation           Status = -59
	InvalidBufferSize          Status = -61
	InvalidGlobalWorkSize      Status = -63
)

var statusNames = map[Status]string{
	Success:                    "SUCCESS",
	DeviceNotFound:             "DEVICE_NOT_FOUND",
	DeviceNotAvailable:         "DEVICE_NOT_AVAILABLE",
	MemObjectAllocationFailure: "MEM_OBJECT_ALLOCATION_FAILURE",
	OutOfResources:             "OUT_OF_RESOURCES",
	ProfilingInfoNotAvailable:  "PROFILING_INFO_NOT_AVAILABLE",
	BuildProgramFailure:        "BUILD_PROGRAM_FAILURE",
	ExecStatusError:            "EXEC_STATUS_ERROR_FOR_EVENTS_IN_WAIT_LIST",
	InvalidValue:               "INVALID_VALUE",
	InvalidDeviceType:          "INVALID_DEVICE_TYPE",
	InvalidPlatform:            "INVALID_PLATFORM",
	InvalidDevice:              "INVALID_DEVICE",
	InvalidContext:             "INVALID_CONTEXT",
	InvalidCommandQueue:        "INVALID_COMMAND_QUEUE",
	InvalidMemObject:           "INVALID_MEM_OBJECT",
	InvalidProgramExecutable:   "INVALID_PROGRAM_EXECUTABLE",
	InvalidKernelName:          "INVALID_KERNEL_NAME",
	InvalidKernel:              "INVALID_KERNEL",
	InvalidArgIndex:            "INVALID_ARG_INDEX",
	InvalidArgValue:            "INVALID_ARG_VALUE",
	InvalidArgSize:             "INVALID_ARG_SIZE",
	InvalidKernelArgs:          "INVALID_KERNEL_ARGS",
	InvalidWorkDimension:       "INVALID_WORK_DIMENSION",
	InvalidWorkGroupSize:       "INVALID_WORK_GROUP_SIZE",
	InvalidWorkItemSize:        "INVALID_WORK_ITEM_SIZE",
	InvalidEventWaitList:       "INVALID_EVENT_WAIT_LIST",
	InvalidEvent:               "INVALID_EVENT",
	InvalidOperation:           "INVALID_OPERATION",
	InvalidBufferSize:          "INVALID_BUFFER_SIZE",
	InvalidGlobalWorkSize:      "INVALID_GLOBAL_WORK_SIZE",
}

// String returns the symbolic name of the status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATUS(%d)", int32(s))
}

// Error is a failed driver call. It carries the status code so callers can
// decide whether to retry, fall back to the host, or give up.
type Error struct {
	Op     string // Driver call that failed (e.g. "CreateBuffer")
	Status Status
	Err    error // Optional underlying cause
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("accel: %s: %s (%d): %v", e.Op, e.Status, int32(e.Status), e.Err)
	}
	return fmt.Sprintf("accel: %s: %s (%d)", e.Op, e.Status, int32(e.Status))
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds an *Error with a formatted cause.
func Errorf(op string, status Status, format string, args ...any) *Error {
	return &Error{Op: op, Status: status, Err: fmt.Errorf(format, args...)}
}

// Fail builds an *Error without a cause.
func Fail(op string, status Status) *Error {
	return &Error{Op: op, Status: status}
}

// StatusOf extracts the driver status from err. It returns Success for nil
// and InvalidOperation for errors that did not come from a driver.
func StatusOf(err error) Status {
	if err == nil {
		return Success
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Status
	}
	return InvalidOperation
}
