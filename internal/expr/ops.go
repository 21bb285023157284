package expr

import "github.com/tably/tably/internal/shape"

// Op is a scalar operator applied element-wise by a Broadcast node.
type Op string

const (
	OpAdd      Op = "add"
	OpSub      Op = "sub"
	OpMul      Op = "mul"
	OpDiv      Op = "div"
	OpFloorDiv Op = "floordiv"
	OpMod      Op = "mod"
	OpPow      Op = "pow"
	OpEq       Op = "eq"
	OpNe       Op = "ne"
	OpLt       Op = "lt"
	OpLe       Op = "le"
	OpGt       Op = "gt"
	OpGe       Op = "ge"
	OpAnd      Op = "and"
	OpOr       Op = "or"
	OpNot      Op = "not"
	OpNeg      Op = "neg"
)

// Arity returns the operand count the operator requires.
func (op Op) Arity() int {
	switch op {
	case OpNot, OpNeg:
		return 1
	default:
		return 2
	}
}

// IsComparison reports whether the operator yields bool from two
// compatible operands.
func (op Op) IsComparison() bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}

// IsLogical reports whether the operator consumes and yields bool.
func (op Op) IsLogical() bool {
	switch op {
	case OpAnd, OpOr, OpNot:
		return true
	}
	return false
}

// IsArithmetic reports whether the operator consumes and yields numbers.
func (op Op) IsArithmetic() bool {
	switch op {
	case OpAdd, OpSub, OpMul, OpDiv, OpFloorDiv, OpMod, OpPow, OpNeg:
		return true
	}
	return false
}

func (op Op) symbol() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpFloorDiv:
		return "//"
	case OpMod:
		return "%"
	case OpPow:
		return "**"
	case OpEq:
		return "=="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpAnd:
		return "&&"
	case OpOr:
		return "||"
	case OpNot:
		return "!"
	case OpNeg:
		return "-"
	}
	return string(op)
}

// ParseOp maps an operator spelling ("<", "add", "==") to an Op.
func ParseOp(s string) (Op, bool) {
	switch s {
	case "add", "+":
		return OpAdd, true
	case "sub", "-":
		return OpSub, true
	case "mul", "*":
		return OpMul, true
	case "div", "/":
		return OpDiv, true
	case "floordiv", "//":
		return OpFloorDiv, true
	case "mod", "%":
		return OpMod, true
	case "pow", "**":
		return OpPow, true
	case "eq", "==":
		return OpEq, true
	case "ne", "!=":
		return OpNe, true
	case "lt", "<":
		return OpLt, true
	case "le", "<=":
		return OpLe, true
	case "gt", ">":
		return OpGt, true
	case "ge", ">=":
		return OpGe, true
	case "and", "&&":
		return OpAnd, true
	case "or", "||":
		return OpOr, true
	case "not", "!":
		return OpNot, true
	case "neg":
		return OpNeg, true
	}
	return "", false
}

// ReduceOp identifies a built-in reduction.
type ReduceOp string

const (
	ReduceSum     ReduceOp = "sum"
	ReduceMin     ReduceOp = "min"
	ReduceMax     ReduceOp = "max"
	ReduceMean    ReduceOp = "mean"
	ReduceVar     ReduceOp = "var"
	ReduceStd     ReduceOp = "std"
	ReduceCount   ReduceOp = "count"
	ReduceNUnique ReduceOp = "nunique"
	ReduceAny     ReduceOp = "any"
	ReduceAll     ReduceOp = "all"
)

// HasCombiner reports whether the reduction admits an associative,
// commutative combiner, enabling single-pass grouped folds. mean, var,
// std, and nunique do not: they need either a different accumulator
// shape or full materialization per group.
func (op ReduceOp) HasCombiner() bool {
	switch op {
	case ReduceSum, ReduceMin, ReduceMax, ReduceCount, ReduceAny, ReduceAll:
		return true
	}
	return false
}

// JoinKind selects the relational join semantics.
type JoinKind string

const (
	JoinInner JoinKind = "inner"
	JoinLeft  JoinKind = "left"
	JoinRight JoinKind = "right"
	JoinOuter JoinKind = "outer"
)

// Attr names a datetime component extracted by a DateTimeAttr node.
type Attr string

const (
	AttrYear        Attr = "year"
	AttrMonth       Attr = "month"
	AttrDay         Attr = "day"
	AttrHour        Attr = "hour"
	AttrMinute      Attr = "minute"
	AttrSecond      Attr = "second"
	AttrMillisecond Attr = "millisecond"
	AttrDate        Attr = "date"
	AttrTime        Attr = "time"
)

// resultType returns the scalar shape the attribute extracts.
func (a Attr) resultType() shape.Shape {
	switch a {
	case AttrDate, AttrTime:
		return shape.DateTime
	default:
		return shape.Int
	}
}

func validAttr(a Attr) bool {
	switch a {
	case AttrYear, AttrMonth, AttrDay, AttrHour, AttrMinute, AttrSecond,
		AttrMillisecond, AttrDate, AttrTime:
		return true
	}
	return false
}
