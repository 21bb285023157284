package shape

import (
	"strconv"
	"strings"
)

// ParseRecord parses a record literal like
//
//	{name: string, amount: int}
//
// Field types are scalar names, optionally prefixed with '?' for Option:
//
//	{name: string, balance: ?int}
//
// The grammar is deliberately tiny; nested records and collections are
// constructed programmatically, not parsed.
func ParseRecord(src string) (Record, error) {
	s := strings.TrimSpace(src)
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return Record{}, Errorf(ErrCodeInvalidShape, "record literal must be enclosed in braces: %q", src)
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return Record{}, Errorf(ErrCodeInvalidShape, "record literal has no fields: %q", src)
	}

	var fields []Field
	for _, part := range strings.Split(body, ",") {
		name, typ, ok := strings.Cut(part, ":")
		if !ok {
			return Record{}, Errorf(ErrCodeInvalidShape, "field %q missing ':' separator", strings.TrimSpace(part))
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return Record{}, Errorf(ErrCodeInvalidShape, "empty field name in %q", src)
		}
		ft, err := parseFieldType(strings.TrimSpace(typ))
		if err != nil {
			return Record{}, err
		}
		fields = append(fields, Field{Name: name, Type: ft})
	}
	return NewRecord(fields...)
}

// MustParseRecord is like ParseRecord but panics on error.
// Use only in tests or when the literal is known to be valid.
func MustParseRecord(src string) Record {
	r, err := ParseRecord(src)
	if err != nil {
		panic(err)
	}
	return r
}

// Parse parses a full shape literal: a record literal, optionally
// prefixed by a dimension:
//
//	var * {name: string, amount: int}
//	5 * {name: string}
//	{name: string}            (shorthand for var * {...})
//
// Bare scalars parse as unit shapes: "int", "?string".
func Parse(src string) (Shape, error) {
	s := strings.TrimSpace(src)
	if dim, rest, ok := strings.Cut(s, "*"); ok {
		d, err := parseDim(strings.TrimSpace(dim))
		if err != nil {
			return nil, err
		}
		elem, err := parseElem(strings.TrimSpace(rest))
		if err != nil {
			return nil, err
		}
		return Collection{Dim: d, Elem: elem}, nil
	}
	if strings.HasPrefix(s, "{") {
		rec, err := ParseRecord(s)
		if err != nil {
			return nil, err
		}
		return Table(rec), nil
	}
	return parseFieldType(s)
}

// parseElem parses the element of a dimensioned shape, without the
// bare-record table shorthand Parse applies at top level.
func parseElem(s string) (Shape, error) {
	if strings.Contains(s, "*") {
		return Parse(s)
	}
	if strings.HasPrefix(s, "{") {
		return ParseRecord(s)
	}
	return parseFieldType(s)
}

func parseDim(s string) (Dim, error) {
	if s == "var" {
		return VarDim, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return Dim{}, Errorf(ErrCodeInvalidShape, "invalid dimension %q", s)
	}
	return FixedDim(n), nil
}

func parseFieldType(s string) (Shape, error) {
	if strings.HasPrefix(s, "?") {
		elem, err := parseFieldType(s[1:])
		if err != nil {
			return nil, err
		}
		return Option{Elem: elem}, nil
	}
	switch s {
	case String.Name, Int.Name, Float.Name, Bool.Name, DateTime.Name:
		return Scalar{Name: s}, nil
	}
	return nil, Errorf(ErrCodeInvalidShape, "unknown type %q", s)
}
