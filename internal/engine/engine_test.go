package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tably/tably/internal/expr"
	"github.com/tably/tably/internal/shape"
)

func TestClassHierarchy(t *testing.T) {
	assert.Equal(t, ClassNumber, ClassOf(int64(1)))
	assert.Equal(t, ClassNumber, ClassOf(1.5))
	assert.Equal(t, ClassBool, ClassOf(true))
	assert.Equal(t, ClassString, ClassOf("x"))
	assert.Equal(t, ClassTable, ClassOf(NewTable()))
	assert.Equal(t, ClassStream, ClassOf(StreamOf()))
	assert.Equal(t, ClassScalar, ClassOf(nil))

	assert.True(t, ClassSeq.Matches(ClassTable))
	assert.True(t, ClassSeq.Matches(ClassStream))
	assert.True(t, ClassAny.Matches(ClassNumber))
	assert.True(t, ClassScalar.Matches(ClassBool))
	assert.False(t, ClassSeq.Matches(ClassNumber))
	assert.False(t, ClassTable.Matches(ClassStream))
}

func noopHandler(ev *Eval, e expr.Expr, args []any) (any, error) {
	return nil, nil
}

func TestRegisterRejectsEqualOverlappingPatterns(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(expr.KindHead, Fixed(ClassSeq), noopHandler))

	err := r.Register(expr.KindHead, Fixed(ClassSeq), noopHandler)
	require.Error(t, err)
	assert.True(t, IsAmbiguousDispatchError(err))
}

func TestRegisterAllowsDisjointAndRefiningPatterns(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(expr.KindHead, Fixed(ClassTable), noopHandler))
	require.NoError(t, r.Register(expr.KindHead, Fixed(ClassStream), noopHandler))
	// More specific than both, so resolvable without a tie.
	require.NoError(t, r.Register(expr.KindHead, Fixed(ClassSeq), noopHandler))
	// A scalar pattern is disjoint from the sequence ones.
	require.NoError(t, r.Register(expr.KindHead, Fixed(ClassNumber), noopHandler))
}

func TestRegisterRejectsVariadicTie(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(expr.KindUnion, Variadic(ClassSeq), noopHandler))

	err := r.Register(expr.KindUnion, Fixed(ClassSeq, ClassSeq), noopHandler)
	require.Error(t, err)
	assert.True(t, IsAmbiguousDispatchError(err))
}

func TestResolvePrefersMostSpecific(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(expr.KindHead, Fixed(ClassSeq),
		func(ev *Eval, e expr.Expr, args []any) (any, error) { return "seq", nil }))
	require.NoError(t, r.Register(expr.KindHead, Fixed(ClassTable),
		func(ev *Eval, e expr.Expr, args []any) (any, error) { return "table", nil }))

	h, err := r.resolve(expr.KindHead, []Class{ClassTable})
	require.NoError(t, err)
	v, _ := h(nil, nil, nil)
	assert.Equal(t, "table", v)

	h, err = r.resolve(expr.KindHead, []Class{ClassStream})
	require.NoError(t, err)
	v, _ = h(nil, nil, nil)
	assert.Equal(t, "seq", v)
}

func TestResolveReportsDispatchError(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(expr.KindHead, Fixed(ClassSeq), noopHandler))

	_, err := r.resolve(expr.KindHead, []Class{ClassNumber})
	require.Error(t, err)
	assert.True(t, IsDispatchError(err))
	assert.Contains(t, err.Error(), "head")
	assert.Contains(t, err.Error(), "number")
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	r := NewRegistry()
	// Minimal handlers for plumbing tests; real backends live elsewhere.
	r.MustRegister(expr.KindHead, Fixed(ClassTable),
		func(ev *Eval, e expr.Expr, args []any) (any, error) {
			n := int(e.(*expr.Head).N)
			rows := args[0].(*Table).Rows
			if n > len(rows) {
				n = len(rows)
			}
			return NewTable(rows[:n]...), nil
		})
	r.MustRegister(expr.KindUnion, Variadic(ClassSeq),
		func(ev *Eval, e expr.Expr, args []any) (any, error) {
			var out []any
			for _, a := range args {
				rows, err := Rows(a.(Dataset))
				if err != nil {
					return nil, err
				}
				out = append(out, rows...)
			}
			return NewTable(out...), nil
		})
	return New(r)
}

func TestComputeBindsAndEvaluates(t *testing.T) {
	g := testEngine(t)
	acc := expr.MustTableSymbol("accounts", "{name: string, amount: int}")
	head, err := expr.NewHead(acc, 1)
	require.NoError(t, err)

	data := NewTable([]any{"Alice", int64(100)}, []any{"Bob", int64(200)})
	v, err := g.ComputeOne(head, data)
	require.NoError(t, err)
	assert.Equal(t, NewTable([]any{"Alice", int64(100)}), v)
}

func TestComputeRequiresAllLeavesBound(t *testing.T) {
	g := testEngine(t)
	a := expr.MustTableSymbol("a", "{x: int}")
	b := expr.MustTableSymbol("b", "{x: int}")
	u, err := expr.NewUnion(a, b)
	require.NoError(t, err)

	_, err = g.Compute(u, map[expr.Expr]any{a: NewTable()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b")
}

func TestComputeChecksBoundRowWidth(t *testing.T) {
	g := testEngine(t)
	acc := expr.MustTableSymbol("accounts", "{name: string, amount: int}")
	head, err := expr.NewHead(acc, 1)
	require.NoError(t, err)

	_, err = g.ComputeOne(head, NewTable([]any{"Alice"}))
	require.Error(t, err)
}

func TestComputeChecksBoundValueKinds(t *testing.T) {
	g := testEngine(t)
	acc := expr.MustTableSymbol("accounts", "{name: string, amount: int}")
	head, err := expr.NewHead(acc, 1)
	require.NoError(t, err)

	_, err = g.ComputeOne(head, NewTable([]any{"Alice", "lots"}))
	require.Error(t, err)
	assert.True(t, shape.IsShapeError(err))
	assert.Contains(t, err.Error(), "amount")

	// nil inhabits Option fields only.
	opt := expr.MustTableSymbol("balances", "{name: string, amount: ?int}")
	head, err = expr.NewHead(opt, 1)
	require.NoError(t, err)
	_, err = g.ComputeOne(head, NewTable([]any{"Alice", nil}))
	require.NoError(t, err)
}

func TestBoundSubexpressionCoversItsLeaves(t *testing.T) {
	g := testEngine(t)
	acc := expr.MustTableSymbol("accounts", "{x: int}")
	head, err := expr.NewHead(acc, 1)
	require.NoError(t, err)

	// Binding a derived expression stands in for its symbol leaf.
	v, err := g.Compute(head, map[expr.Expr]any{head: NewTable([]any{int64(7)})})
	require.NoError(t, err)
	assert.Equal(t, NewTable([]any{int64(7)}), v)
}

func TestSharedStreamIsDuplicatedNotReused(t *testing.T) {
	g := testEngine(t)
	acc := expr.MustTableSymbol("accounts", "{x: int}")
	// The same leaf appears twice; a single-pass binding must still
	// feed both references completely.
	u, err := expr.NewUnion(acc, acc)
	require.NoError(t, err)

	data := StreamOf([]any{int64(1)}, []any{int64(2)})
	v, err := g.ComputeOne(u, data)
	require.NoError(t, err)
	assert.Equal(t, NewTable(
		[]any{int64(1)}, []any{int64(2)},
		[]any{int64(1)}, []any{int64(2)},
	), v)
}

func TestComputedResultsAreSharedThroughScope(t *testing.T) {
	calls := 0
	r := NewRegistry()
	r.MustRegister(expr.KindHead, Fixed(ClassTable),
		func(ev *Eval, e expr.Expr, args []any) (any, error) {
			calls++
			return args[0], nil
		})
	r.MustRegister(expr.KindUnion, Variadic(ClassTable),
		func(ev *Eval, e expr.Expr, args []any) (any, error) {
			var out []any
			for _, a := range args {
				out = append(out, a.(*Table).Rows...)
			}
			return NewTable(out...), nil
		})
	g := New(r)

	acc := expr.MustTableSymbol("accounts", "{x: int}")
	h, err := expr.NewHead(acc, 10)
	require.NoError(t, err)
	u, err := expr.NewUnion(h, h)
	require.NoError(t, err)

	_, err = g.ComputeOne(u, NewTable([]any{int64(1)}))
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "structurally shared subexpression computes once")
}
