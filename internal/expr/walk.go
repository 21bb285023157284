package expr

// Expression-tree utilities. Expressions form a DAG rather than a strict
// tree: leaves are shared, and Merge/Union/Join nodes have multiple
// children. Traversal and common-subexpression discovery therefore work
// on structural identity (see Hash), not pointer identity.

// operands returns every structural sub-expression of e, including the
// ones the engine never computes directly (a Selection's predicate, a
// By's grouper and apply, Merge branches, Broadcast operands, sort key
// expressions).
func operands(e Expr) []Expr {
	switch n := e.(type) {
	case *Symbol, *Literal:
		return nil
	case *Broadcast:
		return n.Operands
	case *Merge:
		return n.Parts
	case *Selection:
		return []Expr{n.Child, n.Predicate}
	case *By:
		return []Expr{n.Grouper, n.Apply}
	case *Summary:
		out := make([]Expr, len(n.Fields))
		for i, f := range n.Fields {
			out[i] = f.Value
		}
		return out
	case *Sort:
		if n.KeyExpr != nil {
			return []Expr{n.Child, n.KeyExpr}
		}
		return []Expr{n.Child}
	default:
		return e.Children()
	}
}

// Subterms yields e and every structural sub-expression beneath it,
// pre-order, deduplicated by structural identity.
func Subterms(e Expr) []Expr {
	var out []Expr
	seen := make(map[string]bool)
	var walk func(Expr)
	walk = func(x Expr) {
		h := Hash(x)
		if seen[h] {
			return
		}
		seen[h] = true
		out = append(out, x)
		for _, sub := range operands(x) {
			walk(sub)
		}
	}
	walk(e)
	return out
}

// Leaves returns the distinct Symbol leaves of e, in first-visit order.
func Leaves(e Expr) []*Symbol {
	var out []*Symbol
	seen := make(map[string]bool)
	for _, sub := range Subterms(e) {
		if sym, ok := sub.(*Symbol); ok {
			h := Hash(sym)
			if !seen[h] {
				seen[h] = true
				out = append(out, sym)
			}
		}
	}
	return out
}

// FreeLeaves returns the Symbol leaves of e that are not covered by a
// bound subexpression: traversal stops wherever bound reports true, so
// a leaf beneath a bound ancestor needs no binding of its own. Grouped
// fallback evaluation binds group rows to a derived child expression
// and relies on this.
func FreeLeaves(e Expr, bound func(Expr) bool) []*Symbol {
	var out []*Symbol
	seen := make(map[string]bool)
	var walk func(Expr)
	walk = func(x Expr) {
		h := Hash(x)
		if seen[h] {
			return
		}
		seen[h] = true
		if bound(x) {
			return
		}
		if sym, ok := x.(*Symbol); ok {
			out = append(out, sym)
			return
		}
		for _, sub := range operands(x) {
			walk(sub)
		}
	}
	walk(e)
	return out
}

// Equal reports structural equality: node kind, parameters, and
// children all match. Two independently built but equal leaves are
// treated as the same data source.
func Equal(a, b Expr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return Hash(a) == Hash(b)
}

// CommonSubexpression finds the largest expression that is a subterm of
// every input: the nearest shared ancestor reachable from all of them.
// Combinators like merge and by use it to validate that their inputs
// are actually co-indexed. An empty search is a construction error.
func CommonSubexpression(exprs ...Expr) (Expr, error) {
	if len(exprs) == 0 {
		return nil, Errorf(ErrCodeNoCommonSubexpression, "no expressions given")
	}

	common := make(map[string]Expr)
	for _, sub := range Subterms(exprs[0]) {
		common[Hash(sub)] = sub
	}
	for _, e := range exprs[1:] {
		next := make(map[string]Expr)
		for _, sub := range Subterms(e) {
			h := Hash(sub)
			if _, ok := common[h]; ok {
				next[h] = sub
			}
		}
		common = next
	}
	if len(common) == 0 {
		return nil, Errorf(ErrCodeNoCommonSubexpression,
			"no common subexpression found; expressions do not share a data source")
	}

	// Pick the largest shared subterm; hash breaks ties deterministically.
	var best Expr
	bestSize, bestHash := -1, ""
	for h, sub := range common {
		size := len(Subterms(sub))
		if size > bestSize || (size == bestSize && h < bestHash) {
			best, bestSize, bestHash = sub, size, h
		}
	}
	return best, nil
}

// ElemwiseReachable reports whether e is reachable from ancestor using
// element-wise steps only, which guarantees equal row count and order.
func ElemwiseReachable(e, ancestor Expr) bool {
	if Equal(e, ancestor) {
		return true
	}
	if !IsElemwiseKind(e.Kind()) {
		return false
	}
	switch n := e.(type) {
	case *Symbol:
		return false // distinct leaf
	case *Literal:
		return true // constants broadcast over any ancestor
	case *Broadcast:
		for _, o := range n.Operands {
			if !ElemwiseReachable(o, ancestor) {
				return false
			}
		}
		return true
	case *Merge:
		for _, p := range n.Parts {
			if !ElemwiseReachable(p, ancestor) {
				return false
			}
		}
		return true
	default:
		child := childOf(e)
		return child != nil && ElemwiseReachable(child, ancestor)
	}
}

// Path returns the chain of nodes from e down to target following
// single-child links, inclusive of both ends. Returns false when target
// is not on e's unary spine.
func Path(e, target Expr) ([]Expr, bool) {
	var chain []Expr
	cur := e
	for {
		chain = append(chain, cur)
		if Equal(cur, target) {
			return chain, true
		}
		next := childOf(cur)
		if next == nil {
			return nil, false
		}
		cur = next
	}
}
