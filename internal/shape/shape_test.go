package shape

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecordRejectsDuplicateNames(t *testing.T) {
	_, err := NewRecord(
		Field{Name: "name", Type: String},
		Field{Name: "name", Type: Int},
	)
	require.Error(t, err)

	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, ErrCodeFieldCollision, se.Code)
}

func TestRecordOrderIsSignificant(t *testing.T) {
	a := MustRecord(Field{Name: "x", Type: Int}, Field{Name: "y", Type: Int})
	b := MustRecord(Field{Name: "y", Type: Int}, Field{Name: "x", Type: Int})

	assert.False(t, Equal(a, b), "field order must distinguish records")
	assert.Equal(t, []string{"x", "y"}, a.Names())
	assert.Equal(t, 1, a.Index("y"))
	assert.Equal(t, -1, a.Index("z"))
}

func TestEqual(t *testing.T) {
	rec := MustRecord(Field{Name: "name", Type: String}, Field{Name: "amount", Type: Int})

	assert.True(t, Equal(Table(rec), Table(rec)))
	assert.True(t, Equal(Option{Elem: Int}, Option{Elem: Int}))
	assert.False(t, Equal(Option{Elem: Int}, Int))
	assert.False(t, Equal(Table(rec), Collection{Dim: FixedDim(5), Elem: rec}))
}

func TestOptionalIsIdempotent(t *testing.T) {
	once := Optional(Int)
	twice := Optional(once)
	assert.True(t, Equal(once, twice))
	assert.True(t, Equal(Int, Unwrap(once)))
}

func TestCompatibleIgnoresOption(t *testing.T) {
	assert.True(t, Compatible(Int, Option{Elem: Int}))
	assert.False(t, Compatible(Int, String))
}

func TestNDim(t *testing.T) {
	rec := MustRecord(Field{Name: "x", Type: Int})
	assert.Equal(t, 0, NDim(Int))
	assert.Equal(t, 1, NDim(Table(rec)))
	assert.Equal(t, 2, NDim(Collection{Dim: VarDim, Elem: Table(rec)}))
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsNumeric(Int))
	assert.True(t, IsNumeric(Option{Elem: Float}))
	assert.True(t, IsNumeric(MustRecord(Field{Name: "amount", Type: Int})))
	assert.False(t, IsNumeric(String))

	assert.True(t, IsBoolean(Bool))
	assert.False(t, IsBoolean(Int))

	assert.True(t, IsUnit(Option{Elem: String}))
	assert.False(t, IsUnit(MustRecord(Field{Name: "x", Type: Int})))
}

func TestString(t *testing.T) {
	rec := MustRecord(Field{Name: "name", Type: String}, Field{Name: "amount", Type: Option{Elem: Int}})
	assert.Equal(t, "{name: string, amount: ?int}", rec.String())
	assert.Equal(t, "var * {name: string, amount: ?int}", Table(rec).String())
	assert.Equal(t, "5 * int", Collection{Dim: FixedDim(5), Elem: Int}.String())
}
