package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tably/tably/internal/expr"
	"github.com/tably/tably/internal/shape"
)

// Engine evaluates expressions against a handler registry.
type Engine struct {
	registry *Registry
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger routes evaluation debug lines to the given logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine over a populated registry.
func New(r *Registry, opts ...Option) *Engine {
	e := &Engine{registry: r, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Eval is one evaluation in progress: the scope of computed results
// plus identity for logging. Handlers receive it to compute nested
// expressions within the same scope.
type Eval struct {
	// ID correlates log lines and errors of one Compute call.
	ID string

	engine *Engine
	logger *slog.Logger

	// scope holds computed values keyed by structural hash. Bindings
	// pre-seed it; shared subexpressions are computed once.
	scope map[string]any

	// refs counts how often each subexpression is referenced in the
	// evaluated tree. A stream result referenced more than once is
	// split with Tee instead of handed out twice; a single-reference
	// stream passes through untouched and stays lazy.
	refs map[string]int
}

// Compute evaluates e with concrete data bound to its free leaves.
//
// Bindings map expressions to runtime values; Symbol keys are checked
// against their declared shape where the data permits. A non-Symbol
// key pre-seeds the scope for that subexpression and stands in for the
// leaves beneath it, which grouped fallback evaluation relies on.
func (g *Engine) Compute(e expr.Expr, bindings map[expr.Expr]any) (any, error) {
	ev := &Eval{
		ID:     uuid.NewString(),
		engine: g,
		scope:  make(map[string]any, len(bindings)),
		refs:   make(map[string]int),
	}
	ev.logger = g.logger.With("eval", ev.ID)
	countRefs(e, ev.refs)

	for k, v := range bindings {
		if sym, ok := k.(*expr.Symbol); ok {
			if err := checkBinding(sym, v); err != nil {
				return nil, err
			}
		}
		ev.scope[expr.Hash(k)] = v
	}
	// A leaf under a bound ancestor needs no binding of its own.
	free := expr.FreeLeaves(e, func(x expr.Expr) bool {
		_, ok := ev.scope[expr.Hash(x)]
		return ok
	})
	if len(free) > 0 {
		return nil, fmt.Errorf("engine: no data bound for symbol %s (eval=%s)", free[0].Name, ev.ID)
	}

	ev.logger.Debug("evaluation started", "expr", e.String())
	v, err := ev.Compute(e)
	if err != nil {
		ev.logger.Debug("evaluation failed", "error", err)
		return nil, err
	}
	ev.logger.Debug("evaluation finished")
	return v, nil
}

// ComputeOne evaluates an expression with exactly one free leaf bound
// to data.
func (g *Engine) ComputeOne(e expr.Expr, data any) (any, error) {
	leaves := expr.Leaves(e)
	if len(leaves) != 1 {
		return nil, fmt.Errorf("engine: expression has %d free symbols, exactly one required", len(leaves))
	}
	return g.Compute(e, map[expr.Expr]any{leaves[0]: data})
}

// Compute evaluates a node within this evaluation's scope, post-order.
func (ev *Eval) Compute(e expr.Expr) (any, error) {
	if lit, ok := e.(*expr.Literal); ok {
		return lit.Value, nil
	}
	h := expr.Hash(e)
	if v, ok := ev.scope[h]; ok {
		return ev.share(h, v), nil
	}

	kids := e.Children()
	args := make([]any, len(kids))
	classes := make([]Class, len(kids))
	for i, c := range kids {
		v, err := ev.Compute(c)
		if err != nil {
			return nil, err
		}
		args[i] = v
		classes[i] = ClassOf(v)
	}

	handler, err := ev.engine.registry.resolve(e.Kind(), classes)
	if err != nil {
		if de, ok := err.(*DispatchError); ok {
			de.EvalID = ev.ID
		}
		return nil, err
	}

	ev.logger.Debug("dispatch", "kind", string(e.Kind()), "classes", classStrings(classes))
	v, err := handler(ev, e, args)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", e.Kind(), err)
	}

	if s, ok := v.(*Stream); ok {
		if ev.refs[h] > 1 {
			return ev.share(h, s), nil
		}
		// Single consumer: stay lazy, nothing retained.
		return s, nil
	}
	ev.scope[h] = v
	return v, nil
}

// share hands out one use of a scoped value. Streams with further
// pending references are split: one Tee branch replaces the scope
// entry, the other is returned. The final reference gets the remaining
// branch directly so no buffering outlives the evaluation.
func (ev *Eval) share(h string, v any) any {
	s, ok := v.(*Stream)
	if !ok {
		return v
	}
	if ev.refs[h] <= 1 {
		return s
	}
	ev.refs[h]--
	keep, give := s.Tee()
	ev.scope[h] = keep
	return give
}

// Bind seeds the scope with a computed value for a subexpression.
func (ev *Eval) Bind(e expr.Expr, v any) {
	ev.scope[expr.Hash(e)] = v
}

// Engine returns the owning engine, for handlers that need a fresh
// evaluation (grouped fallback computes each group independently).
func (ev *Eval) Engine() *Engine { return ev.engine }

// Logger returns this evaluation's logger.
func (ev *Eval) Logger() *slog.Logger { return ev.logger }

// countRefs tallies structural references per subexpression. Descent
// stops at the second sighting: a shared node's children are computed
// only once regardless of how many parents share it.
func countRefs(e expr.Expr, refs map[string]int) {
	h := expr.Hash(e)
	refs[h]++
	if refs[h] > 1 {
		return
	}
	for _, c := range e.Children() {
		countRefs(c, refs)
	}
}

// checkBinding validates bound data against a symbol's declared shape
// as far as the data allows: materialized tables must have rows of the
// declared width and value kinds matching the declared scalar types.
// Streams are checked lazily by consumption.
func checkBinding(sym *expr.Symbol, v any) error {
	t, ok := v.(*Table)
	if !ok {
		return nil
	}
	row, ok := shape.RowOf(sym.Typ)
	if !ok {
		return nil
	}
	rec, ok := shape.Unwrap(row).(shape.Record)
	if !ok {
		for i, r := range t.Rows {
			if !bindable(r, row) {
				return shape.Errorf(shape.ErrCodeInvalidShape,
					"symbol %s: element %d is %T, want %s", sym.Name, i, r, row)
			}
		}
		return nil
	}
	for i, r := range t.Rows {
		vals, ok := r.([]any)
		if !ok {
			return shape.Errorf(shape.ErrCodeInvalidShape,
				"symbol %s: row %d is %T, want a record row", sym.Name, i, r)
		}
		if len(vals) != len(rec.Fields) {
			return shape.Errorf(shape.ErrCodeInvalidShape,
				"symbol %s: row %d has %d values, schema %s has %d fields",
				sym.Name, i, len(vals), rec, len(rec.Fields))
		}
		for j, f := range rec.Fields {
			if !bindable(vals[j], f.Type) {
				return shape.Errorf(shape.ErrCodeInvalidShape,
					"symbol %s: row %d field %q is %T, want %s", sym.Name, i, f.Name, vals[j], f.Type)
			}
		}
	}
	return nil
}

// bindable reports whether a concrete value can inhabit the declared
// field shape. nil inhabits Option fields only; nested records and
// collections are not inspected further.
func bindable(v any, typ shape.Shape) bool {
	if v == nil {
		_, opt := typ.(shape.Option)
		return opt
	}
	switch shape.Unwrap(typ) {
	case shape.String:
		_, ok := v.(string)
		return ok
	case shape.Int:
		switch v.(type) {
		case int, int64:
			return true
		}
		return false
	case shape.Float:
		_, ok := v.(float64)
		return ok
	case shape.Bool:
		_, ok := v.(bool)
		return ok
	case shape.DateTime:
		_, ok := v.(time.Time)
		return ok
	}
	return true
}

func classStrings(classes []Class) []string {
	out := make([]string, len(classes))
	for i, c := range classes {
		out[i] = string(c)
	}
	return out
}
