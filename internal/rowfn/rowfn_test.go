package rowfn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tably/tably/internal/expr"
	"github.com/tably/tably/internal/shape"
)

func accounts(t *testing.T) *expr.Symbol {
	t.Helper()
	return expr.MustTableSymbol("accounts", "{name: string, amount: int}")
}

func TestFuseFieldThenMap(t *testing.T) {
	acc := accounts(t)
	amount := expr.MustField(acc, "amount")
	inc, err := expr.NewMap(amount, func(args ...any) any {
		return args[0].(int64) + 1
	}, shape.Int, "inc")
	require.NoError(t, err)

	f, err := Fuse(inc, acc)
	require.NoError(t, err)

	got, err := f([]any{"Alice", int64(100)})
	require.NoError(t, err)
	assert.Equal(t, int64(101), got)
}

func TestFuseIdentity(t *testing.T) {
	acc := accounts(t)
	f, err := Fuse(acc, acc)
	require.NoError(t, err)

	row := []any{"Alice", int64(100)}
	got, err := f(row)
	require.NoError(t, err)
	assert.Equal(t, row, got)
}

func TestProjectionReordersColumns(t *testing.T) {
	acc := accounts(t)
	proj, err := expr.NewProjection(acc, "amount", "name")
	require.NoError(t, err)

	f, err := Local(proj)
	require.NoError(t, err)
	got, err := f([]any{"Alice", int64(100)})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(100), "Alice"}, got)
}

func TestBroadcastPredicate(t *testing.T) {
	acc := accounts(t)
	amount := expr.MustField(acc, "amount")
	doubled, err := expr.NewBroadcast(expr.OpMul, amount, expr.MustLiteral(int64(2)))
	require.NoError(t, err)
	pred, err := expr.NewBroadcast(expr.OpLt, doubled, expr.MustLiteral(int64(100)))
	require.NoError(t, err)

	f, err := Fuse(pred, acc)
	require.NoError(t, err)

	got, err := f([]any{"Alice", int64(40)})
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = f([]any{"Bob", int64(60)})
	require.NoError(t, err)
	assert.Equal(t, false, got)
}

func TestMergeSplicesBranchesFlat(t *testing.T) {
	acc := accounts(t)
	name := expr.MustField(acc, "name")
	doubled, err := expr.NewBroadcast(expr.OpMul, expr.MustField(acc, "amount"), expr.MustLiteral(int64(2)))
	require.NoError(t, err)
	labeled, err := expr.NewLabel(doubled, "doubled")
	require.NoError(t, err)
	proj, err := expr.NewProjection(acc, "amount", "name")
	require.NoError(t, err)
	relabeled, err := expr.NewRelabel(proj, map[string]string{"name": "who", "amount": "much"})
	require.NoError(t, err)

	m, err := expr.NewMerge(name, labeled, relabeled)
	require.NoError(t, err)

	f, err := Local(m)
	require.NoError(t, err)
	got, err := f([]any{"Alice", int64(100)})
	require.NoError(t, err)
	assert.Equal(t, []any{"Alice", int64(200), int64(100), "Alice"}, got)
}

func TestFuseRejectsNonElemwiseChain(t *testing.T) {
	acc := accounts(t)
	other := expr.MustTableSymbol("other", "{x: int}")
	_, err := Fuse(expr.MustField(acc, "amount"), other)
	require.Error(t, err)
}

func TestDateTimeAttrs(t *testing.T) {
	events := expr.MustTableSymbol("events", "{when: datetime}")
	when := expr.MustField(events, "when")
	ts := time.Date(2012, time.April, 5, 1, 2, 3, 450_000_000, time.UTC)

	cases := []struct {
		attr expr.Attr
		want any
	}{
		{expr.AttrYear, int64(2012)},
		{expr.AttrMonth, int64(4)},
		{expr.AttrDay, int64(5)},
		{expr.AttrHour, int64(1)},
		{expr.AttrMinute, int64(2)},
		{expr.AttrSecond, int64(3)},
		{expr.AttrMillisecond, int64(450)},
		{expr.AttrDate, time.Date(2012, time.April, 5, 0, 0, 0, 0, time.UTC)},
		{expr.AttrTime, time.Date(1, time.January, 1, 1, 2, 3, 450_000_000, time.UTC)},
	}
	for _, tc := range cases {
		node, err := expr.NewDateTimeAttr(when, tc.attr)
		require.NoError(t, err)
		f, err := Fuse(node, events)
		require.NoError(t, err)
		got, err := f([]any{ts})
		require.NoError(t, err, string(tc.attr))
		assert.Equal(t, tc.want, got, string(tc.attr))
	}
}

func TestApplyOpArithmetic(t *testing.T) {
	got, err := ApplyOp(expr.OpAdd, int64(2), int64(3))
	require.NoError(t, err)
	assert.Equal(t, int64(5), got)

	got, err = ApplyOp(expr.OpAdd, int64(2), 0.5)
	require.NoError(t, err)
	assert.Equal(t, 2.5, got)

	// Division always produces a float, even on exact integer input.
	got, err = ApplyOp(expr.OpDiv, int64(6), int64(3))
	require.NoError(t, err)
	assert.Equal(t, 2.0, got)

	got, err = ApplyOp(expr.OpPow, int64(2), int64(10))
	require.NoError(t, err)
	assert.Equal(t, 1024.0, got)

	_, err = ApplyOp(expr.OpDiv, int64(1), int64(0))
	require.Error(t, err)
}

func TestApplyOpFlooredDivision(t *testing.T) {
	got, err := ApplyOp(expr.OpFloorDiv, int64(-7), int64(2))
	require.NoError(t, err)
	assert.Equal(t, int64(-4), got)

	got, err = ApplyOp(expr.OpMod, int64(-7), int64(2))
	require.NoError(t, err)
	assert.Equal(t, int64(1), got, "remainder takes the divisor's sign")

	got, err = ApplyOp(expr.OpMod, int64(7), int64(-2))
	require.NoError(t, err)
	assert.Equal(t, int64(-1), got)
}

func TestApplyOpComparisons(t *testing.T) {
	got, err := ApplyOp(expr.OpLt, int64(1), 1.5)
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = ApplyOp(expr.OpEq, "a", "a")
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = ApplyOp(expr.OpEq, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = ApplyOp(expr.OpNe, nil, int64(1))
	require.NoError(t, err)
	assert.Equal(t, true, got)

	_, err = ApplyOp(expr.OpLt, nil, int64(1))
	require.Error(t, err, "nil is not ordered")

	_, err = ApplyOp(expr.OpLt, "a", int64(1))
	require.Error(t, err)
}

func TestApplyOpLogicalAndNeg(t *testing.T) {
	got, err := ApplyOp(expr.OpAnd, true, false)
	require.NoError(t, err)
	assert.Equal(t, false, got)

	got, err = ApplyOp(expr.OpNot, false)
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = ApplyOp(expr.OpNeg, int64(3))
	require.NoError(t, err)
	assert.Equal(t, int64(-3), got)

	_, err = ApplyOp(expr.OpAnd, true, int64(1))
	require.Error(t, err)
}

func TestCompareOrdersMixedNumbers(t *testing.T) {
	c, err := Compare(int64(2), 2.0)
	require.NoError(t, err)
	assert.Zero(t, c)

	c, err = Compare(false, true)
	require.NoError(t, err)
	assert.Equal(t, -1, c)

	c, err = Compare(time.Unix(10, 0), time.Unix(5, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, c)
}
