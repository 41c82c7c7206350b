package host

import "github.com/born-ml/gpulinalg/internal/kernels"

// builtin is the host implementation of one device entry point: the
// parameter kinds it expects and its body split at barriers.
type builtin struct {
	params []kernels.ParamKind
	phases []phase
}

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

var builtins = map[string]builtin{
	kernels.Add:                 elementwise(func(a, b float32) float32 { return a + b }),
	kernels.Subtract:            elementwise(func(a, b float32) float32 { return a - b }),
	kernels.Multiply:            elementwise(func(a, b float32) float32 { return a * b }),
	kernels.Divide:              elementwise(func(a, b float32) float32 { return a / b }),
	kernels.DotProduct:          {params: dotParams, phases: []phase{dotPartial, dotSum}},
	kernels.MatrixVectorProduct: {params: matVecParams, phases: []phase{matVecPartial, matVecSum}},
}

// builtinParams maps each entry point to the parameter kinds it takes.
var builtinParams = func() map[string][]kernels.ParamKind {
	m := make(map[string][]kernels.ParamKind, len(builtins))
	for name, b := range builtins {
		m[name] = b.params
	}
	return m
}()

// elementwise args: input1, input2, output, count.
func elementwise(op func(a, b float32) float32) builtin {
	return builtin{
		params: binaryParams,
		phases: []phase{func(it *workItem, l *lanes) {
			i := it.global[0]
			if i < l.u32(3) {
				l.buf(2)[i] = op(l.buf(0)[i], l.buf(1)[i])
			}
		}},
	}
}

// Dot product args: input1, input2, output, localScratch, rowCount,
// innerDim, colCount2. One work-group per output element (row, col).

func dotIndex(it *workItem, l *lanes) (row, k, col int, ok bool) {
	row, k, col = it.global[0], it.local[1], it.global[2]
	ok = row < l.u32(4) && k < l.u32(5) && col < l.u32(6)
	return row, k, col, ok
}

func dotPartial(it *workItem, l *lanes) {
	row, k, col, ok := dotIndex(it, l)
	if !ok {
		return
	}
	inner, c2 := l.u32(5), l.u32(6)
	l.local(3)[k] = l.buf(0)[row*inner+k] * l.buf(1)[k*c2+col]
}

func dotSum(it *workItem, l *lanes) {
	row, k, col, ok := dotIndex(it, l)
	if !ok || k != 0 {
		return
	}
	var sum float32
	for _, v := range l.local(3)[:l.u32(5)] {
		sum += v
	}
	l.buf(2)[row*l.u32(6)+col] = sum
}

// Matrix-vector args: matrix, vector, output, localScratch, rowCount,
// colCount. One work-group per row; every column is scaled by vector[row].

func matVecPartial(it *workItem, l *lanes) {
	row, col := it.global[0], it.global[1]
	if row >= l.u32(4) || col >= l.u32(5) {
		return
	}
	l.local(3)[col] = l.buf(0)[row*l.u32(5)+col] * l.buf(1)[row]
}

func matVecSum(it *workItem, l *lanes) {
	row, col := it.global[0], it.global[1]
	if row >= l.u32(4) || col != 0 {
		return
	}
	var sum float32
	for _, v := range l.local(3)[:l.u32(5)] {
		sum += v
	}
	l.buf(2)[row] = sum
}
