package accel

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/born-ml/gpulinalg/internal/kernels"
)

// DeviceBuffer is a driver's own buffer type as seen by argument binding.
// Released must be safe on a nil receiver.
type DeviceBuffer interface {
	Buffer
	Released() bool
}

// BindEntryPoints parses source and matches each entry point against the
// parameter kinds the driver implements for it. Every decision is written
// to log; impl names the driver side in log lines.
func BindEntryPoints(source, options string, impls map[string][]kernels.ParamKind, impl string, log *strings.Builder) (map[string]kernels.Signature, error) {
	const op = "BuildProgram"
	if options != "" {
		fmt.Fprintf(log, "options: %s\n", options)
	}
	sigs, err := kernels.Parse(source)
	if err != nil {
		fmt.Fprintf(log, "error: %v\n", err)
		return nil, Errorf(op, BuildProgramFailure, "%v", err)
	}

	built := make(map[string]kernels.Signature, len(sigs))
	failed := false
	for _, sig := range sigs {
		params, ok := impls[sig.Name]
		switch {
		case !ok:
			fmt.Fprintf(log, "error: %s: no %s\n", sig.Name, impl)
			failed = true
		case !slices.Equal(sig.Kinds(), params):
			fmt.Fprintf(log, "error: %s: parameters %v, %s takes %v\n", sig.Name, sig.Kinds(), impl, params)
			failed = true
		default:
			fmt.Fprintf(log, "kernel %s: %d parameters\n", sig.Name, len(sig.Params))
			built[sig.Name] = sig
		}
	}
	if failed {
		return nil, Errorf(op, BuildProgramFailure, "see build log:\n%s", log.String())
	}
	return built, nil
}

// Arg is one bound kernel argument.
type Arg[B DeviceBuffer] struct {
	Set    bool
	Buf    B
	Local  int // scratch bytes
	Scalar uint32
}

// ArgSet holds the arguments of one kernel and checks each against the
// address space its parameter declares. It implements every Kernel method.
type ArgSet[B DeviceBuffer] struct {
	sig      kernels.Signature
	released atomic.Bool

	mu   sync.Mutex
	args []Arg[B]
}

// NewArgSet returns an empty argument set for sig.
func NewArgSet[B DeviceBuffer](sig kernels.Signature) *ArgSet[B] {
	return &ArgSet[B]{sig: sig, args: make([]Arg[B], len(sig.Params))}
}

func (s *ArgSet[B]) Name() string                 { return s.sig.Name }
func (s *ArgSet[B]) NumArgs() int                 { return len(s.sig.Params) }
func (s *ArgSet[B]) Signature() kernels.Signature { return s.sig }

// SetArg binds value to parameter index.
func (s *ArgSet[B]) SetArg(index int, value any) error {
	const op = "SetKernelArg"
	if s.released.Load() {
		return Fail(op, InvalidKernel)
	}
	if index < 0 || index >= len(s.sig.Params) {
		return Errorf(op, InvalidArgIndex, "%s takes %d arguments, got index %d", s.sig.Name, len(s.sig.Params), index)
	}
	param := s.sig.Params[index]

	arg := Arg[B]{Set: true}
	switch param.Kind {
	case kernels.ParamGlobal:
		if _, ok := value.(Buffer); !ok {
			return Errorf(op, InvalidArgValue, "%s(%s) wants a buffer, got %T", s.sig.Name, param.Name, value)
		}
		b, ok := value.(B)
		if !ok {
			return Errorf(op, InvalidMemObject, "%s(%s): buffer %T belongs to another driver", s.sig.Name, param.Name, value)
		}
		if b.Released() {
			return Errorf(op, InvalidMemObject, "%s(%s): buffer was released", s.sig.Name, param.Name)
		}
		if !param.Const && !b.Flags().Writable() {
			return Errorf(op, InvalidArgValue, "%s(%s) writes a read-only buffer", s.sig.Name, param.Name)
		}
		if param.Const && !b.Flags().Readable() {
			return Errorf(op, InvalidArgValue, "%s(%s) reads a write-only buffer", s.sig.Name, param.Name)
		}
		arg.Buf = b
	case kernels.ParamLocal:
		size, ok := value.(LocalMem)
		if !ok {
			return Errorf(op, InvalidArgValue, "%s(%s) wants local memory, got %T", s.sig.Name, param.Name, value)
		}
		if size <= 0 || size%SizeofFloat != 0 {
			return Errorf(op, InvalidArgSize, "%s(%s) local size %d", s.sig.Name, param.Name, size)
		}
		arg.Local = int(size)
	case kernels.ParamScalar:
		v, ok := value.(uint32)
		if !ok {
			return Errorf(op, InvalidArgSize, "%s(%s) wants uint32, got %T", s.sig.Name, param.Name, value)
		}
		arg.Scalar = v
	}

	s.mu.Lock()
	s.args[index] = arg
	s.mu.Unlock()
	return nil
}

// Snapshot captures the bound arguments at enqueue time, so rebinding
// afterwards does not affect the pending launch. It fails when an argument
// is unset or released, or when the local scratch exceeds the device.
func (s *ArgSet[B]) Snapshot(info DeviceInfo) ([]Arg[B], error) {
	const op = "EnqueueNDRangeKernel"
	s.mu.Lock()
	args := slices.Clone(s.args)
	s.mu.Unlock()

	var localBytes uint64
	for i, a := range args {
		if !a.Set {
			return nil, Errorf(op, InvalidKernelArgs, "%s argument %d (%s) is not set", s.sig.Name, i, s.sig.Params[i].Name)
		}
		if s.sig.Params[i].Kind == kernels.ParamGlobal && a.Buf.Released() {
			return nil, Errorf(op, InvalidMemObject, "%s argument %d was released", s.sig.Name, i)
		}
		//nolint:gosec // G115: local sizes are validated positive
		localBytes += uint64(a.Local)
	}
	if localBytes > info.LocalMemSize {
		return nil, Errorf(op, OutOfResources, "%s binds %d local bytes, device has %d", s.sig.Name, localBytes, info.LocalMemSize)
	}
	return args, nil
}

// Released reports whether Release was called.
func (s *ArgSet[B]) Released() bool { return s.released.Load() }

func (s *ArgSet[B]) Release() error {
	if !s.released.CompareAndSwap(false, true) {
		return Fail("ReleaseKernel", InvalidKernel)
	}
	return nil
}
