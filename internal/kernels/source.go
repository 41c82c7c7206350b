// Package kernels holds the fixed device program run by the linear algebra
// engine and the parameter signatures of its entry points.
package kernels

// Entry point names exported by Source.
const (
	Add                 = "elementwiseAdd"
	Subtract            = "elementwiseSubtract"
	Multiply            = "elementwiseMultiply"
	Divide              = "elementwiseDivide"
	DotProduct          = "matrixDotProduct"
	MatrixVectorProduct = "matrixVectorProduct"
)

// Names lists every entry point in build order.
var Names = []string{Add, Subtract, Multiply, Divide, DotProduct, MatrixVectorProduct}

// Elementwise lists the four entry points sharing the binary-op signature.
var Elementwise = []string{Add, Subtract, Multiply, Divide}

// Source is the device program. Elementwise kernels guard on the element
// count so padded lanes do nothing. The two reductions compute one output
// element per work-group: every local lane stores a partial product into
// scratch, and after the barrier lane 0 sums the scratch serially.
const Source = `
__kernel void elementwiseAdd(__global const float *input1,
                             __global const float *input2,
                             __global float *output,
                             const unsigned int count)
{
    const unsigned int i = get_global_id(0);
    if (i < count) {
        output[i] = input1[i] + input2[i];
    }
}

__kernel void elementwiseSubtract(__global const float *input1,
                                  __global const float *input2,
                                  __global float *output,
                                  const unsigned int count)
{
    const unsigned int i = get_global_id(0);
    if (i < count) {
        output[i] = input1[i] - input2[i];
    }
}

__kernel void elementwiseMultiply(__global const float *input1,
                                  __global const float *input2,
                                  __global float *output,
                                  const unsigned int count)
{
    const unsigned int i = get_global_id(0);
    if (i < count) {
        output[i] = input1[i] * input2[i];
    }
}

__kernel void elementwiseDivide(__global const float *input1,
                                __global const float *input2,
                                __global float *output,
                                const unsigned int count)
{
    const unsigned int i = get_global_id(0);
    if (i < count) {
        output[i] = input1[i] / input2[i];
    }
}

__kernel void matrixDotProduct(__global const float *input1,
                               __global const float *input2,
                               __global float *output,
                               __local float *localScratch,
                               const unsigned int rowCount,
                               const unsigned int innerDim,
                               const unsigned int colCount2)
{
    const unsigned int row = get_global_id(0);
    const unsigned int k = get_local_id(1);
    const unsigned int col = get_global_id(2);
    if (row < rowCount && k < innerDim && col < colCount2) {
        localScratch[k] = input1[row * innerDim + k] * input2[k * colCount2 + col];
        barrier(CLK_LOCAL_MEM_FENCE);
        if (k == 0) {
            float sum = 0.0f;
            for (unsigned int i = 0; i < innerDim; i++) {
                sum += localScratch[i];
            }
            output[row * colCount2 + col] = sum;
        }
    }
}

__kernel void matrixVectorProduct(__global const float *matrix,
                                  __global const float *vector,
                                  __global float *output,
                                  __local float *localScratch,
                                  const unsigned int rowCount,
                                  const unsigned int colCount)
{
    const unsigned int row = get_global_id(0);
    const unsigned int col = get_global_id(1);
    if (row < rowCount && col < colCount) {
        localScratch[col] = matrix[row * colCount + col] * vector[row];
        barrier(CLK_LOCAL_MEM_FENCE);
        if (col == 0) {
            float sum = 0.0f;
            for (unsigned int i = 0; i < colCount; i++) {
                sum += localScratch[i];
            }
            output[row] = sum;
        }
    }
}
`
