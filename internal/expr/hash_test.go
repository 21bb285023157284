package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tably/tably/internal/shape"
)

func TestHashIsStructuralNotReferential(t *testing.T) {
	a := MustTableSymbol("accounts", "{name: string, amount: int}")
	b := MustTableSymbol("accounts", "{name: string, amount: int}")

	require.NotSame(t, a, b)
	assert.Equal(t, Hash(a), Hash(b), "independently built equal leaves are the same data source")
	assert.True(t, Equal(a, b))
	assert.Len(t, Hash(a), 64, "SHA-256 hex is 64 characters")
}

func TestHashDistinguishesParameters(t *testing.T) {
	acc := MustTableSymbol("accounts", "{name: string, amount: int}")
	amount := MustField(acc, "amount")

	v0, err := Var(amount, false)
	require.NoError(t, err)
	v1, err := Var(amount, true)
	require.NoError(t, err)
	assert.NotEqual(t, Hash(v0), Hash(v1), "unbiased flag must distinguish reductions")

	s1, err := NewSort(acc, true, "amount")
	require.NoError(t, err)
	s2, err := NewSort(acc, false, "amount")
	require.NoError(t, err)
	assert.NotEqual(t, Hash(s1), Hash(s2), "ascending flag must distinguish sorts")

	other := MustTableSymbol("accounts", "{name: string, amount: float}")
	assert.NotEqual(t, Hash(acc), Hash(other), "declared shape must distinguish symbols")
}

func TestHashDistinguishesLiteralTypes(t *testing.T) {
	one := MustLiteral(int64(1))
	onef := MustLiteral(1.0)
	ones := MustLiteral("1")

	assert.NotEqual(t, Hash(one), Hash(onef))
	assert.NotEqual(t, Hash(one), Hash(ones))
	assert.NotEqual(t, Hash(onef), Hash(ones))
}

func TestHashDeterministicAcrossEquivalentConstruction(t *testing.T) {
	build := func() Expr {
		acc := MustTableSymbol("accounts", "{name: string, amount: int}")
		pred, err := NewBroadcast(OpLt, MustField(acc, "amount"), MustLiteral(int64(0)))
		require.NoError(t, err)
		sel, err := NewSelection(acc, pred)
		require.NoError(t, err)
		proj, err := NewProjection(sel, "name")
		require.NoError(t, err)
		return proj
	}
	assert.Equal(t, Hash(build()), Hash(build()))
}

func TestMapIdentityIsItsTag(t *testing.T) {
	acc := MustTableSymbol("accounts", "{amount: int}")
	amount := MustField(acc, "amount")

	inc := func(args ...any) any { return args[0].(int64) + 1 }
	dec := func(args ...any) any { return args[0].(int64) - 1 }

	m1, err := NewMap(amount, inc, shape.Int, "shift")
	require.NoError(t, err)
	m2, err := NewMap(amount, dec, shape.Int, "shift")
	require.NoError(t, err)
	m3, err := NewMap(amount, inc, shape.Int, "inc")
	require.NoError(t, err)

	// The function value is opaque: identity is the declared tag.
	assert.Equal(t, Hash(m1), Hash(m2))
	assert.NotEqual(t, Hash(m1), Hash(m3))
}
