package linalg

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/gpulinalg/internal/kernels"
)

// Host implementations of the kernel set, used when HostFallback recovers
// from an accelerator failure. Results are computed into fresh storage and
// copied out, so outputs may alias inputs.

func vec32(x []float32) blas32.Vector {
	return blas32.Vector{N: len(x), Data: x, Inc: 1}
}

func hostElementwise(kernel string, a, b, out []float32) {
	res := make([]float32, len(a))
	switch kernel {
	case kernels.Add, kernels.Subtract:
		alpha := float32(1)
		if kernel == kernels.Subtract {
			alpha = -1
		}
		copy(res, a)
		blas32.Axpy(alpha, vec32(b), vec32(res))
	case kernels.Multiply:
		for i := range res {
			res[i] = a[i] * b[i]
		}
	case kernels.Divide:
		for i := range res {
			res[i] = a[i] / b[i]
		}
	}
	copy(out, res)
}

func hostDot(a, b, out []float32, rows, inner, cols2 int) {
	res := blas32.General{Rows: rows, Cols: cols2, Stride: cols2, Data: make([]float32, rows*cols2)}
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
		blas32.General{Rows: rows, Cols: inner, Stride: inner, Data: a[:rows*inner]},
		blas32.General{Rows: inner, Cols: cols2, Stride: cols2, Data: b[:inner*cols2]},
		0, res)
	copy(out, res.Data)
}

// hostMatVec sums each row with a product against a ones vector, then
// scales the sum by the vector element of that row.
func hostMatVec(m, v, out []float32, rows, cols int) {
	sums := make([]float32, rows)
	blas32.Gemv(blas.NoTrans, 1,
		blas32.General{Rows: rows, Cols: cols, Stride: cols, Data: m[:rows*cols]},
		vec32(CreateFilledShape(cols, 1)), 0, vec32(sums))
	for i, s := range sums {
		out[i] = s * v[i]
	}
}
