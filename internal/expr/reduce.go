package expr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tably/tably/internal/shape"
)

// Reduction aggregates a one-dimensional collection to a scalar.
type Reduction struct {
	Op    ReduceOp
	Child Expr

	// Unbiased selects divisor n-1 instead of n for var and std.
	Unbiased bool

	schema shape.Shape
}

func (*Reduction) exprNode() {}

func (r *Reduction) Kind() Kind         { return KindReduction }
func (r *Reduction) Shape() shape.Shape { return r.schema }
func (r *Reduction) Children() []Expr   { return []Expr{r.Child} }

func (r *Reduction) String() string {
	if r.Op == ReduceVar || r.Op == ReduceStd {
		return fmt.Sprintf("%s(%s, unbiased=%t)", r.Op, r.Child, r.Unbiased)
	}
	return fmt.Sprintf("%s(%s)", r.Op, r.Child)
}

// NewReduction aggregates child with the given op. The child must be a
// one-dimensional collection; reductions over other dimensionalities
// are unsupported and fail fast rather than produce wrong results.
func NewReduction(op ReduceOp, child Expr, unbiased bool) (*Reduction, error) {
	if shape.NDim(child.Shape()) != 1 {
		return nil, shape.Errorf(shape.ErrCodeNotOneDimensional,
			"%s reduction requires a one-dimensional child, got %s", op, child.Shape())
	}
	row, _ := rowOf(child)
	elem := shape.Unwrap(unitType(row))

	var out shape.Shape
	switch op {
	case ReduceSum, ReduceMin, ReduceMax:
		if !shape.IsNumeric(row) {
			return nil, shape.Errorf(shape.ErrCodeInvalidShape, "%s requires a numeric column, got %s", op, row)
		}
		out = elem
	case ReduceMean, ReduceVar, ReduceStd:
		if !shape.IsNumeric(row) {
			return nil, shape.Errorf(shape.ErrCodeInvalidShape, "%s requires a numeric column, got %s", op, row)
		}
		out = shape.Float
	case ReduceAny, ReduceAll:
		if !shape.IsBoolean(row) {
			return nil, shape.Errorf(shape.ErrCodeInvalidShape, "%s requires a boolean column, got %s", op, row)
		}
		out = shape.Bool
	case ReduceCount, ReduceNUnique:
		out = shape.Int
	default:
		return nil, Errorf(ErrCodeInvalidArgument, "unknown reduction %q", op)
	}
	if unbiased && op != ReduceVar && op != ReduceStd {
		return nil, Errorf(ErrCodeInvalidArgument, "unbiased applies only to var and std")
	}
	return &Reduction{Op: op, Child: child, Unbiased: unbiased, schema: out}, nil
}

// Convenience constructors mirroring the combinator surface.

func Sum(child Expr) (*Reduction, error)   { return NewReduction(ReduceSum, child, false) }
func Min(child Expr) (*Reduction, error)   { return NewReduction(ReduceMin, child, false) }
func Max(child Expr) (*Reduction, error)   { return NewReduction(ReduceMax, child, false) }
func Mean(child Expr) (*Reduction, error)  { return NewReduction(ReduceMean, child, false) }
func Count(child Expr) (*Reduction, error) { return NewReduction(ReduceCount, child, false) }
func Any(child Expr) (*Reduction, error)   { return NewReduction(ReduceAny, child, false) }
func All(child Expr) (*Reduction, error)   { return NewReduction(ReduceAll, child, false) }

func NUnique(child Expr) (*Reduction, error) { return NewReduction(ReduceNUnique, child, false) }

func Var(child Expr, unbiased bool) (*Reduction, error) {
	return NewReduction(ReduceVar, child, unbiased)
}

func Std(child Expr, unbiased bool) (*Reduction, error) {
	return NewReduction(ReduceStd, child, unbiased)
}

// SummaryField is one named reduction of a Summary.
type SummaryField struct {
	Name  string
	Value *Reduction
}

// Summary is a named collection of reductions sharing one common child,
// evaluated together. Its shape is a record of the reductions' scalar
// results.
type Summary struct {
	Child  Expr // common ancestor of the reductions
	Fields []SummaryField

	schema shape.Shape
}

func (*Summary) exprNode() {}

func (s *Summary) Kind() Kind         { return KindSummary }
func (s *Summary) Shape() shape.Shape { return s.schema }
func (s *Summary) Children() []Expr   { return []Expr{s.Child} }

func (s *Summary) String() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = fmt.Sprintf("%s=%s", f.Name, f.Value)
	}
	return fmt.Sprintf("summary(%s)", strings.Join(parts, ", "))
}

// NewSummary evaluates the named reductions together. Fields are stored
// sorted by name so equal sets hash equally; all reductions must share
// one common subexpression, which becomes the node's data input.
func NewSummary(fields ...SummaryField) (*Summary, error) {
	if len(fields) == 0 {
		return nil, Errorf(ErrCodeInvalidArgument, "summary requires at least one reduction")
	}
	sorted := make([]SummaryField, len(fields))
	copy(sorted, fields)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	values := make([]Expr, len(sorted))
	outFields := make([]shape.Field, len(sorted))
	seen := make(map[string]bool, len(sorted))
	for i, f := range sorted {
		if f.Name == "" {
			return nil, Errorf(ErrCodeInvalidArgument, "summary field has empty name")
		}
		if f.Value == nil {
			return nil, Errorf(ErrCodeInvalidArgument, "summary field %q has nil reduction", f.Name)
		}
		if seen[f.Name] {
			return nil, Errorf(ErrCodeDuplicateColumns, "repeated summary field %q", f.Name)
		}
		seen[f.Name] = true
		values[i] = f.Value.Child
		outFields[i] = shape.Field{Name: f.Name, Type: f.Value.Shape()}
	}
	common, err := CommonSubexpression(values...)
	if err != nil {
		return nil, err
	}
	for i, f := range sorted {
		if !ElemwiseReachable(values[i], common) {
			return nil, Errorf(ErrCodeNotElemwise,
				"summary field %q is not element-wise over %s", f.Name, common)
		}
	}
	rec, err := shape.NewRecord(outFields...)
	if err != nil {
		return nil, err
	}
	return &Summary{Child: common, Fields: sorted, schema: rec}, nil
}

// By is the split-apply-combine operator: group the common child by the
// grouper's row value, evaluate the apply reduction(s) per group.
type By struct {
	Grouper Expr
	Apply   Expr // *Reduction or *Summary
	Child   Expr // common ancestor of grouper and apply

	schema shape.Shape
}

func (*By) exprNode() {}

func (b *By) Kind() Kind         { return KindBy }
func (b *By) Shape() shape.Shape { return b.schema }
func (b *By) Children() []Expr   { return []Expr{b.Child} }
func (b *By) String() string     { return fmt.Sprintf("by(%s, %s)", b.Grouper, b.Apply) }

// NewBy groups by grouper and aggregates with apply, which must be a
// Reduction or Summary rooted in the same common ancestor. The result
// schema is the grouper's name/type pairs followed by the apply's.
func NewBy(grouper, apply Expr) (*By, error) {
	var applyChild Expr
	switch a := apply.(type) {
	case *Reduction:
		applyChild = a.Child
	case *Summary:
		applyChild = a.Child
	default:
		return nil, Errorf(ErrCodeInvalidArgument, "by apply must be a reduction or summary, got %s", apply)
	}

	common, err := CommonSubexpression(grouper, applyChild)
	if err != nil {
		return nil, err
	}
	if !ElemwiseReachable(grouper, common) {
		return nil, Errorf(ErrCodeNotElemwise, "grouper %s is not element-wise over %s", grouper, common)
	}
	if !ElemwiseReachable(applyChild, common) {
		return nil, Errorf(ErrCodeNotElemwise, "apply %s is not element-wise over %s", apply, common)
	}

	groupFields, err := namesAndTypes(grouper)
	if err != nil {
		return nil, err
	}
	applyFields, err := namesAndTypes(apply)
	if err != nil {
		return nil, err
	}

	fields := append(append([]shape.Field{}, groupFields...), applyFields...)
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if seen[f.Name] {
			return nil, Errorf(ErrCodeDuplicateColumns, "repeated column %q in by", f.Name)
		}
		seen[f.Name] = true
	}
	rec, err := shape.NewRecord(fields...)
	if err != nil {
		return nil, err
	}
	return &By{Grouper: grouper, Apply: apply, Child: common, schema: shape.Table(rec)}, nil
}
