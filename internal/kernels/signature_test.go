package kernels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceExportsEveryEntryPoint(t *testing.T) {
	sigs, err := Parse(Source)
	require.NoError(t, err)

	names := make([]string, len(sigs))
	for i, s := range sigs {
		names[i] = s.Name
	}
	assert.Equal(t, Names, names)
}

func TestElementwiseSignatures(t *testing.T) {
	sigs := Signatures()
	for _, name := range Elementwise {
		t.Run(name, func(t *testing.T) {
			sig, ok := sigs[name]
			require.True(t, ok)
			assert.Equal(t, []ParamKind{ParamGlobal, ParamGlobal, ParamGlobal, ParamScalar}, sig.Kinds())
			assert.True(t, sig.Params[0].Const)
			assert.True(t, sig.Params[1].Const)
			assert.False(t, sig.Params[2].Const)
			assert.Equal(t, "count", sig.Params[3].Name)
		})
	}
}

func TestReductionSignatures(t *testing.T) {
	sigs := Signatures()

	dot := sigs[DotProduct]
	assert.Equal(t, []ParamKind{
		ParamGlobal, ParamGlobal, ParamGlobal, ParamLocal,
		ParamScalar, ParamScalar, ParamScalar,
	}, dot.Kinds())
	assert.Equal(t, "localScratch", dot.Params[3].Name)
	assert.Equal(t, "colCount2", dot.Params[6].Name)

	mv := sigs[MatrixVectorProduct]
	assert.Equal(t, []ParamKind{
		ParamGlobal, ParamGlobal, ParamGlobal, ParamLocal,
		ParamScalar, ParamScalar,
	}, mv.Kinds())
	assert.Equal(t, "matrix", mv.Params[0].Name)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"no kernels", "void helper(int x) {}"},
		{"duplicate", "__kernel void k(const unsigned int n) {}\n__kernel void k(const unsigned int n) {}"},
		{"bare pointer", "__kernel void k(float *x) {}"},
		{"empty param", "__kernel void k(const unsigned int n, ) {}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.source)
			assert.Error(t, err)
		})
	}
}
