package host

import (
	"strings"
	"sync"

	"github.com/born-ml/gpulinalg/internal/accel"
	"github.com/born-ml/gpulinalg/internal/kernels"
)

// program binds each entry point declared in the source to the host
// implementation of the same name.
type program struct {
	ctx    *hostContext
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
	built, err := accel.BindEntryPoints(p.source, options, builtinParams, "host implementation", &p.log)
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
	if p.released {
		return nil, accel.Errorf(op, accel.InvalidProgramExecutable, "program was released")
	}
	if p.built == nil {
		return nil, accel.Errorf(op, accel.InvalidProgramExecutable, "program is not built")
	}
	sig, ok := p.built[name]
	if !ok {
		return nil, accel.Errorf(op, accel.InvalidKernelName, "no entry point %q", name)
	}
	return &kernel{ArgSet: accel.NewArgSet[*buffer](sig), impl: builtins[name]}, nil
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
	impl builtin
}

func (k *kernel) launch(info accel.DeviceInfo) (*launch, error) {
	args, err := k.Snapshot(info)
	if err != nil {
		return nil, err
	}
	return &launch{name: k.Name(), impl: k.impl, args: args}, nil
}
