package shape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecord(t *testing.T) {
	rec, err := ParseRecord("{name: string, amount: int, active: bool}")
	require.NoError(t, err)

	want := MustRecord(
		Field{Name: "name", Type: String},
		Field{Name: "amount", Type: Int},
		Field{Name: "active", Type: Bool},
	)
	assert.True(t, Equal(want, rec))
}

func TestParseRecordOptionFields(t *testing.T) {
	rec, err := ParseRecord("{balance: ?int, when: datetime}")
	require.NoError(t, err)

	typ, ok := rec.TypeOf("balance")
	require.True(t, ok)
	assert.True(t, Equal(Option{Elem: Int}, typ))
}

func TestParseRecordErrors(t *testing.T) {
	cases := map[string]string{
		"missing braces":  "name: string",
		"empty":           "{}",
		"no separator":    "{name string}",
		"unknown type":    "{name: text}",
		"duplicate field": "{a: int, a: int}",
		"empty name":      "{: int}",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRecord(src)
			assert.Error(t, err)
			assert.True(t, IsShapeError(err))
		})
	}
}

func TestParse(t *testing.T) {
	s, err := Parse("var * {name: string}")
	require.NoError(t, err)
	assert.Equal(t, "var * {name: string}", s.String())

	s, err = Parse("5 * {name: string}")
	require.NoError(t, err)
	assert.Equal(t, "5 * {name: string}", s.String())

	// Bare record is shorthand for a variable-length table.
	s, err = Parse("{name: string}")
	require.NoError(t, err)
	assert.Equal(t, "var * {name: string}", s.String())

	s, err = Parse("?int")
	require.NoError(t, err)
	assert.True(t, Equal(Option{Elem: Int}, s))

	_, err = Parse("-1 * int")
	assert.Error(t, err)
}
