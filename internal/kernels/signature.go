package kernels

import (
	"fmt"
	"regexp"
	"strings"
)

// ParamKind classifies a kernel parameter by address space.
type ParamKind int

const (
	// ParamGlobal is a pointer into device global memory (a buffer).
	ParamGlobal ParamKind = iota
	// ParamLocal is a per-work-group scratch pointer sized at bind time.
	ParamLocal
	// ParamScalar is a by-value unsigned integer.
	ParamScalar
)

// String returns the address space name.
func (k ParamKind) String() string {
	switch k {
	case ParamGlobal:
		return "global"
	case ParamLocal:
		return "local"
	case ParamScalar:
		return "scalar"
	default:
		return "unknown"
	}
}

// Param is one declared kernel parameter.
type Param struct {
	Name  string
	Kind  ParamKind
	Const bool // read-only global pointer
}

// Signature is the declared parameter list of one entry point.
type Signature struct {
	Name   string
	Params []Param
}

// Kinds returns the parameter kinds in declaration order.
func (s Signature) Kinds() []ParamKind {
	kinds := make([]ParamKind, len(s.Params))
	for i, p := range s.Params {
		kinds[i] = p.Kind
	}
	return kinds
}

var kernelDecl = regexp.MustCompile(`__kernel\s+void\s+([A-Za-z_]\w*)\s*\(([^)]*)\)`)

// Parse extracts the entry point signatures declared in source, in order.
func Parse(source string) ([]Signature, error) {
	matches := kernelDecl.FindAllStringSubmatch(source, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("kernels: no __kernel entry points in source")
	}
	sigs := make([]Signature, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		name := m[1]
		if seen[name] {
			return nil, fmt.Errorf("kernels: duplicate entry point %q", name)
		}
		seen[name] = true

		params, err := parseParams(m[2])
		if err != nil {
			return nil, fmt.Errorf("kernels: %s: %w", name, err)
		}
		sigs = append(sigs, Signature{Name: name, Params: params})
	}
	return sigs, nil
}

func parseParams(list string) ([]Param, error) {
	fields := strings.Split(list, ",")
	params := make([]Param, 0, len(fields))
	for _, f := range fields {
		decl := strings.Join(strings.Fields(f), " ")
		if decl == "" {
			return nil, fmt.Errorf("empty parameter")
		}
		words := strings.FieldsFunc(decl, func(r rune) bool { return r == ' ' || r == '*' })
		p := Param{Name: words[len(words)-1]}
		switch {
		case strings.Contains(decl, "__local"):
			p.Kind = ParamLocal
		case strings.Contains(decl, "__global"):
			p.Kind = ParamGlobal
			p.Const = strings.Contains(decl, "const")
		case strings.Contains(decl, "*"):
			return nil, fmt.Errorf("pointer parameter %q has no address space", p.Name)
		default:
			p.Kind = ParamScalar
		}
		params = append(params, p)
	}
	return params, nil
}

// Signatures returns the parsed signatures of Source keyed by entry point.
func Signatures() map[string]Signature {
	sigs, err := Parse(Source)
	if err != nil {
		panic("kernels: built-in source does not parse: " + err.Error())
	}
	out := make(map[string]Signature, len(sigs))
	for _, s := range sigs {
		out[s.Name] = s
	}
	return out
}
