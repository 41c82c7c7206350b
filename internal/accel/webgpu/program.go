//go:build windows

package webgpu

import (
	"strings"
	"sync"

	"github.com/born-ml/gpulinalg/internal/accel"
	"github.com/born-ml/gpulinalg/internal/kernels"
)

// program binds each entry point declared in the source to its WGSL shader.
// Shaders are compiled per work-group size at launch time.
type program struct {
	ctx    *gpuContext
	source string

	mu       sync.Mutex
	built    map[string]kernels.Signature
	log      strings.Builder
	released bool
}

func (p *program) Build(options string) error {
	if err := p.ctx.check("BuildProgram"); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.log.Reset()
	built, err := accel.BindEntryPoints(p.source, options, shaderParams, "WGSL shader", &p.log)
	if err != nil {
		return err
	}
	p.built = built
	return nil
}

func (p *program) BuildLog() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.log.String()
}

func (p *program) CreateKernel(name string) (accel.Kernel, error) {
	const op = "CreateKernel"
	if err := p.ctx.check(op); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released || p.built == nil {
		return nil, accel.Errorf(op, accel.InvalidProgramExecutable, "program is not built")
	}
	sig, ok := p.built[name]
	if !ok {
		return nil, accel.Errorf(op, accel.InvalidKernelName, "no entry point %q", name)
	}
	return &kernel{ArgSet: accel.NewArgSet[*buffer](sig), shader: shaders[name]}, nil
}

func (p *program) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return accel.Fail("ReleaseProgram", accel.InvalidProgramExecutable)
	}
	p.released = true
	return nil
}

type kernel struct {
	*accel.ArgSet[*buffer]
	shader shader
}

// binding is a kernel launch resolved to WGSL resources.
type binding struct {
	buffers []*buffer
	params  []uint32
	scratch int
}

// resolve captures the bound arguments at enqueue time and splits them
// into storage bindings, uniform params and workgroup scratch.
func (k *kernel) resolve(info accel.DeviceInfo) (binding, error) {
	var b binding
	args, err := k.Snapshot(info)
	if err != nil {
		return b, err
	}
	for i, a := range args {
		switch k.Signature().Params[i].Kind {
		case kernels.ParamGlobal:
			b.buffers = append(b.buffers, a.Buf)
		case kernels.ParamLocal:
			b.scratch += a.Local / accel.SizeofFloat
		case kernels.ParamScalar:
			b.params = append(b.params, a.Scalar)
		}
	}
	return b, nil
}
