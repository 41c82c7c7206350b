package linalg

import (
	"errors"

	"github.com/born-ml/gpulinalg/internal/accel"
)

var (
	// ErrNotInitialized is returned by operations on a zero Context.
	ErrNotInitialized = errors.New("context not initialized")
	// ErrClosed is returned by operations after Teardown.
	ErrClosed = errors.New("context closed")
	// ErrShortBuffer means an operand holds fewer elements than its shape.
	ErrShortBuffer = errors.New("buffer shorter than shape")
	// ErrInvalidDims means an extent is negative, or zero for a reduction.
	ErrInvalidDims = errors.New("invalid dimensions")
	// ErrExceedsDeviceLimit means a launch would exceed a device limit.
	ErrExceedsDeviceLimit = errors.New("shape exceeds device limit")
)

// AcceleratorFailure is a failed driver call and its status code.
type AcceleratorFailure = accel.Error

// StatusOf returns the accelerator status code carried by err.
func StatusOf(err error) accel.Status {
	return accel.StatusOf(err)
}
