//go:build windows

package webgpu

import (
	"fmt"
	"strings"

	"github.com/born-ml/gpulinalg/internal/accel"
	"github.com/born-ml/gpulinalg/internal/kernels"
)

// shader is the WGSL rendition of one kernel entry point. Storage buffers
// take bindings 0..n-1 in parameter order and the scalar parameters are
// packed, in order, into a uniform Params block at binding n.
type shader struct {
	params []kernels.ParamKind
	code   string
}

// render specialises the shader for a work-group size and a scratch array
// of scratch floats.
func (s shader) render(local accel.Range, scratch int) string {
	return strings.NewReplacer(
		"{{WX}}", fmt.Sprint(local.At(0)),
		"{{WY}}", fmt.Sprint(local.At(1)),
		"{{WZ}}", fmt.Sprint(local.At(2)),
		"{{SCRATCH}}", fmt.Sprint(max(scratch, 1)),
	).Replace(s.code)
}

var shaders = map[string]shader{
	kernels.Add:                 elementwiseShader("+"),
	kernels.Subtract:            elementwiseShader("-"),
	kernels.Multiply:            elementwiseShader("*"),
	kernels.Divide:              elementwiseShader("/"),
	kernels.DotProduct:          {params: dotParams, code: dotShader},
	kernels.MatrixVectorProduct: {params: matVecParams, code: matVecShader},
}

// shaderParams maps each entry point to the parameter kinds its shader binds.
var shaderParams = func() map[string][]kernels.ParamKind {
	m := make(map[string][]kernels.ParamKind, len(shaders))
	for name, sh := range shaders {
		m[name] = sh.params
	}
	return m
}()

var (
	binaryParams = []kernels.ParamKind{
		kernels.ParamGlobal, kernels.ParamGlobal, kernels.ParamGlobal, kernels.ParamScalar,
	}
	dotParams = []kernels.ParamKind{
		kernels.ParamGlobal, kernels.ParamGlobal, kernels.ParamGlobal, kernels.ParamLocal,
		kernels.ParamScalar, kernels.ParamScalar, kernels.ParamScalar,
	}
	matVecParams = []kernels.ParamKind{
		kernels.ParamGlobal, kernels.ParamGlobal, kernels.ParamGlobal, kernels.ParamLocal,
		kernels.ParamScalar, kernels.ParamScalar,
	}
)

// elementwiseShader computes result = a op b over the first count elements.
func elementwiseShader(op string) shader {
	return shader{params: binaryParams, code: strings.ReplaceAll(`
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

struct Params {
    count: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size({{WX}}, {{WY}}, {{WZ}})
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx < params.count) {
        result[idx] = a[idx] {{OP}} b[idx];
    }
}
`, "{{OP}}", op)}
}

// dotShader: one work-group per output element. Lane k of the group
// multiplies a[row][k] by b[k][col]; lane 0 sums the partial products.
const dotShader = `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

struct Params {
    rows: u32,
    inner: u32,
    cols: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

var<workgroup> scratch: array<f32, {{SCRATCH}}>;

@compute @workgroup_size({{WX}}, {{WY}}, {{WZ}})
fn main(@builtin(global_invocation_id) global_id: vec3<u32>,
        @builtin(local_invocation_id) local_id: vec3<u32>) {
    let row = global_id.x;
    let k = local_id.y;
    let col = global_id.z;
    let active = row < params.rows && k < params.inner && col < params.cols;

    if (active) {
        scratch[k] = a[row * params.inner + k] * b[k * params.cols + col];
    }
    workgroupBarrier();

    if (active && k == 0u) {
        var sum: f32 = 0.0;
        for (var j: u32 = 0u; j < params.inner; j = j + 1u) {
            sum = sum + scratch[j];
        }
        result[row * params.cols + col] = sum;
    }
}
`

// matVecShader: one work-group per row. Every column of the row is scaled
// by b[row] and lane 0 sums the row.
const matVecShader = `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

struct Params {
    rows: u32,
    cols: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

var<workgroup> scratch: array<f32, {{SCRATCH}}>;

@compute @workgroup_size({{WX}}, {{WY}}, {{WZ}})
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let row = global_id.x;
    let col = global_id.y;
    let active = row < params.rows && col < params.cols;

    if (active) {
        scratch[col] = a[row * params.cols + col] * b[row];
    }
    workgroupBarrier();

    if (active && col == 0u) {
        var sum: f32 = 0.0;
        for (var j: u32 = 0u; j < params.cols; j = j + 1u) {
            sum = sum + scratch[j];
        }
        result[row] = sum;
    }
}
`
