package linalg

import (
	"errors"
	"fmt"
	"math"

	"github.com/born-ml/gpulinalg/internal/accel"
	"github.com/born-ml/gpulinalg/internal/kernels"
)

// Add computes s3[i] = s1[i] + s2[i] over rows*cols elements. s3 is resized
// to exactly rows*cols elements; its prior length does not matter.
func (c *Context) Add(s1, s2 []float32, s3 *[]float32, rows, cols int) error {
	return c.elementwise("add", kernels.Add, s1, s2, s3, rows, cols)
}

// Subtract computes s3[i] = s1[i] - s2[i] over rows*cols elements.
func (c *Context) Subtract(s1, s2 []float32, s3 *[]float32, rows, cols int) error {
	return c.elementwise("subtract", kernels.Subtract, s1, s2, s3, rows, cols)
}

// Multiply computes the elementwise product s3[i] = s1[i] * s2[i].
func (c *Context) Multiply(s1, s2 []float32, s3 *[]float32, rows, cols int) error {
	return c.elementwise("multiply", kernels.Multiply, s1, s2, s3, rows, cols)
}

// Divide computes s3[i] = s1[i] / s2[i]. Division by zero yields an IEEE-754
// infinity or NaN, not an error.
func (c *Context) Divide(s1, s2 []float32, s3 *[]float32, rows, cols int) error {
	return c.elementwise("divide", kernels.Divide, s1, s2, s3, rows, cols)
}

func (c *Context) elementwise(op, kernel string, s1, s2 []float32, s3 *[]float32, rows, cols int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(); err != nil {
		return opError(op, err)
	}
	if rows < 0 || cols < 0 {
		return opError(op, fmt.Errorf("%w: %dx%d", ErrInvalidDims, rows, cols))
	}
	if s3 == nil {
		return opError(op, fmt.Errorf("%w: nil output", ErrShortBuffer))
	}
	n := rows * cols
	if n == 0 {
		*s3 = (*s3)[:0]
		return nil
	}
	if err := checkLen("s1", s1, n); err != nil {
		return opError(op, err)
	}
	if err := checkLen("s2", s2, n); err != nil {
		return opError(op, err)
	}
	g := elementwiseGeometry(rows, cols, c.cfg.LocalSize)
	if uint64(g.elems) > math.MaxUint32 {
		return opError(op, fmt.Errorf("%w: %d elements", ErrExceedsDeviceLimit, n))
	}

	out := *s3
	if cap(out) < n {
		out = make([]float32, n)
	}
	out = out[:n]
	err := c.dispatch(plan{
		kernel:  kernel,
		inputs:  []input{{s1, g.elems}, {s2, g.elems}},
		outLen:  g.elems,
		result:  out,
		scalars: []uint32{uint32(n)}, //nolint:gosec // G115: bounded above
		geom:    g,
	})
	if err != nil {
		err = c.failed(op, err, func() { hostElementwise(kernel, s1[:n], s2[:n], out) })
		if err != nil {
			return err
		}
	}
	*s3 = out
	return nil
}

// DotProduct computes the matrix product of the rows x inner matrix s1 and
// the inner x cols2 matrix s2 into s3, which must hold rows*cols2 elements.
// inner is the work-group width and may not exceed the device limits.
func (c *Context) DotProduct(s1, s2, s3 []float32, rows, inner, cols2 int) error {
	const op = "dot product"
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(); err != nil {
		return opError(op, err)
	}
	if rows <= 0 || inner <= 0 || cols2 <= 0 {
		return opError(op, fmt.Errorf("%w: %dx%d by %dx%d", ErrInvalidDims, rows, inner, inner, cols2))
	}
	if err := errors.Join(
		checkLen("s1", s1, rows*inner),
		checkLen("s2", s2, inner*cols2),
		checkLen("s3", s3, rows*cols2),
	); err != nil {
		return opError(op, err)
	}
	if err := c.checkDims(inner, rows, inner, cols2); err != nil {
		return opError(op, err)
	}

	err := c.dispatch(plan{
		kernel:  kernels.DotProduct,
		inputs:  []input{{s1, rows * inner}, {s2, inner * cols2}},
		outLen:  rows * cols2,
		result:  s3[:rows*cols2],
		scratch: inner,
		//nolint:gosec // G115: bounded by checkDims
		scalars: []uint32{uint32(rows), uint32(inner), uint32(cols2)},
		geom:    dotGeometry(rows, inner, cols2),
	})
	if err != nil {
		return c.failed(op, err, func() { hostDot(s1, s2, s3, rows, inner, cols2) })
	}
	return nil
}

// MatrixVectorProduct computes result[row] = vector[row] * sum(matrix[row, :])
// for a rows x cols matrix. Each row is scaled by the vector element of the
// same row. result must hold rows elements.
func (c *Context) MatrixVectorProduct(matrix, vector, result []float32, rows, cols int) error {
	const op = "matrix-vector product"
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(); err != nil {
		return opError(op, err)
	}
	if rows <= 0 || cols <= 0 {
		return opError(op, fmt.Errorf("%w: %dx%d", ErrInvalidDims, rows, cols))
	}
	if err := errors.Join(
		checkLen("matrix", matrix, rows*cols),
		checkLen("vector", vector, rows),
		checkLen("result", result, rows),
	); err != nil {
		return opError(op, err)
	}
	if err := c.checkDims(cols, rows, cols); err != nil {
		return opError(op, err)
	}

	err := c.dispatch(plan{
		kernel:  kernels.MatrixVectorProduct,
		inputs:  []input{{matrix, rows * cols}, {vector, rows}},
		outLen:  rows,
		result:  result[:rows],
		scratch: cols,
		//nolint:gosec // G115: bounded by checkDims
		scalars: []uint32{uint32(rows), uint32(cols)},
		geom:    matVecGeometry(rows, cols),
	})
	if err != nil {
		return c.failed(op, err, func() { hostMatVec(matrix, vector, result, rows, cols) })
	}
	return nil
}

// CreateFilledShape returns n elements set to fill. It does not touch the
// device; n <= 0 yields an empty shape.
func CreateFilledShape(n int, fill float32) []float32 {
	s := make([]float32, max(n, 0))
	for i := range s {
		s[i] = fill
	}
	return s
}

// checkDims checks a reduction of the given width and that every extent
// fits the 32-bit kernel arguments.
func (c *Context) checkDims(width int, extents ...int) error {
	for _, e := range extents {
		if uint64(e) > math.MaxUint32 {
			return fmt.Errorf("%w: extent %d", ErrExceedsDeviceLimit, e)
		}
	}
	return checkReduction(c.info, width)
}

// failed handles an accelerator failure of op. With HostFallback the
// operation is recomputed by host and the failure is logged as a warning;
// otherwise the abort policy applies and the failure is returned.
func (c *Context) failed(op string, err error, host func()) error {
	var ae *accel.Error
	if !errors.As(err, &ae) {
		return opError(op, err)
	}
	if c.cfg.HostFallback {
		c.log.Warn().Err(err).Str("op", op).Msg("accelerator failed, computing on host")
		host()
		c.stats.fallback()
		return nil
	}
	c.abort(op, err)
	return opError(op, err)
}

func checkLen(name string, s []float32, n int) error {
	if len(s) < n {
		return fmt.Errorf("%w: %s has %d elements, shape needs %d", ErrShortBuffer, name, len(s), n)
	}
	return nil
}

func opError(op string, err error) error {
	return fmt.Errorf("linalg: %s: %w", op, err)
}
