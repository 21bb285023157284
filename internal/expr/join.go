package expr

import (
	"fmt"
	"strings"

	"github.com/tably/tably/internal/shape"
)

// Join is a relational join of two tables on key columns.
//
// Output schema: shared/key columns once, then the left side's non-key
// columns, then the right side's non-key columns. Non-key columns from
// the outer side of a left/right/outer join are wrapped in Option.
type Join struct {
	Lhs     Expr
	Rhs     Expr
	OnLeft  []string
	OnRight []string
	How     JoinKind

	schema shape.Shape
}

func (*Join) exprNode() {}

func (j *Join) Kind() Kind         { return KindJoin }
func (j *Join) Shape() shape.Shape { return j.schema }
func (j *Join) Children() []Expr   { return []Expr{j.Lhs, j.Rhs} }

func (j *Join) String() string {
	return fmt.Sprintf("join(%s, %s, on_left=[%s], on_right=[%s], how=%s)",
		j.Lhs, j.Rhs, strings.Join(j.OnLeft, ", "), strings.Join(j.OnRight, ", "), j.How)
}

// NewJoin joins lhs and rhs on the given key columns. With no keys, the
// shared column names are used, in left-schema order. Key column types
// must be mutually compatible; an unknown how is a construction error.
func NewJoin(lhs, rhs Expr, onLeft, onRight []string, how JoinKind) (*Join, error) {
	switch how {
	case JoinInner, JoinLeft, JoinRight, JoinOuter:
	case "":
		how = JoinInner
	default:
		return nil, Errorf(ErrCodeUnknownJoinKind,
			"how must be one of inner, left, right, outer; got %q", how)
	}

	lrec, ok := recordOf(lhs)
	if !ok {
		return nil, shape.Errorf(shape.ErrCodeInvalidShape, "join lhs %s is not a table of records", lhs)
	}
	rrec, ok := recordOf(rhs)
	if !ok {
		return nil, shape.Errorf(shape.ErrCodeInvalidShape, "join rhs %s is not a table of records", rhs)
	}

	if len(onLeft) == 0 && len(onRight) == 0 {
		onLeft = sharedColumns(lrec, rrec)
		if len(onLeft) == 0 {
			return nil, Errorf(ErrCodeInvalidArgument, "no shared columns to join %s and %s on", lhs, rhs)
		}
	}
	if len(onRight) == 0 {
		onRight = onLeft
	}
	if len(onLeft) != len(onRight) {
		return nil, Errorf(ErrCodeInvalidArgument,
			"join key count mismatch: %d left vs %d right", len(onLeft), len(onRight))
	}

	keyFields := make([]shape.Field, len(onLeft))
	for i := range onLeft {
		lt, ok := lrec.TypeOf(onLeft[i])
		if !ok {
			return nil, shape.Errorf(shape.ErrCodeUnknownField, "%s has no field %q", lhs, onLeft[i])
		}
		rt, ok := rrec.TypeOf(onRight[i])
		if !ok {
			return nil, shape.Errorf(shape.ErrCodeUnknownField, "%s has no field %q", rhs, onRight[i])
		}
		if !shape.Compatible(lt, rt) {
			return nil, shape.Errorf(shape.ErrCodeIncompatibleKeys,
				"join key %q (%s) is incompatible with %q (%s)", onLeft[i], lt, onRight[i], rt)
		}
		keyFields[i] = shape.Field{Name: onLeft[i], Type: lt}
	}

	leftRest := nonKeyFields(lrec, onLeft)
	rightRest := nonKeyFields(rrec, onRight)
	if how == JoinRight || how == JoinOuter {
		leftRest = optionalize(leftRest)
	}
	if how == JoinLeft || how == JoinOuter {
		rightRest = optionalize(rightRest)
	}

	fields := append(append(keyFields, leftRest...), rightRest...)
	rec, err := shape.NewRecord(fields...)
	if err != nil {
		return nil, err
	}
	return &Join{Lhs: lhs, Rhs: rhs, OnLeft: onLeft, OnRight: onRight, How: how,
		schema: shape.Table(rec)}, nil
}

// sharedColumns returns the column names present in both records, in
// left-schema order.
func sharedColumns(l, r shape.Record) []string {
	var shared []string
	for _, f := range l.Fields {
		if r.Index(f.Name) >= 0 {
			shared = append(shared, f.Name)
		}
	}
	return shared
}

func nonKeyFields(rec shape.Record, keys []string) []shape.Field {
	keySet := make(map[string]bool, len(keys))
	for _, k := range keys {
		keySet[k] = true
	}
	var rest []shape.Field
	for _, f := range rec.Fields {
		if !keySet[f.Name] {
			rest = append(rest, f)
		}
	}
	return rest
}

func optionalize(fields []shape.Field) []shape.Field {
	out := make([]shape.Field, len(fields))
	for i, f := range fields {
		out[i] = shape.Field{Name: f.Name, Type: shape.Optional(f.Type)}
	}
	return out
}
