package engine

import (
	"fmt"
	"strings"

	"github.com/tably/tably/internal/expr"
)

// Pattern describes the runtime classes a handler accepts for a node's
// computed inputs. A fixed pattern matches exactly its arity; a
// variadic pattern matches any arity of one class, which Union-style
// nodes need.
type Pattern struct {
	Classes  []Class
	Variadic bool
}

// Fixed builds a positional pattern.
func Fixed(classes ...Class) Pattern {
	return Pattern{Classes: classes}
}

// Variadic builds a pattern matching one or more inputs of one class.
func Variadic(class Class) Pattern {
	return Pattern{Classes: []Class{class}, Variadic: true}
}

func (p Pattern) String() string {
	parts := make([]string, len(p.Classes))
	for i, c := range p.Classes {
		parts[i] = string(c)
	}
	s := "(" + strings.Join(parts, ", ")
	if p.Variadic {
		s += "..."
	}
	return s + ")"
}

// classAt returns the pattern class governing position i.
func (p Pattern) classAt(i int) Class {
	if p.Variadic {
		return p.Classes[0]
	}
	return p.Classes[i]
}

func (p Pattern) matches(got []Class) bool {
	if p.Variadic {
		if len(got) == 0 {
			return false
		}
	} else if len(got) != len(p.Classes) {
		return false
	}
	for i, g := range got {
		if !p.classAt(i).Matches(g) {
			return false
		}
	}
	return true
}

// score sums per-position specificity against an argument list. Used
// only after matches succeeds.
func (p Pattern) score(arity int) int {
	total := 0
	for i := 0; i < arity; i++ {
		total += p.classAt(i).Specificity()
	}
	return total
}

// ties reports whether the two patterns could both match some argument
// list with equal specificity: every position overlaps and the
// per-position specificities sum equal for that arity.
func (p Pattern) ties(q Pattern) bool {
	arity := len(p.Classes)
	switch {
	case p.Variadic && q.Variadic:
		arity = 1
	case p.Variadic:
		arity = len(q.Classes)
	case q.Variadic:
		arity = len(p.Classes)
	default:
		if len(p.Classes) != len(q.Classes) {
			return false
		}
	}
	if arity == 0 {
		return true
	}
	for i := 0; i < arity; i++ {
		if !overlaps(p.classAt(i), q.classAt(i)) {
			return false
		}
	}
	return p.score(arity) == q.score(arity)
}

// Handler evaluates one node given its already-computed inputs. args
// parallels the node's Children().
type Handler func(ev *Eval, e expr.Expr, args []any) (any, error)

type registration struct {
	pattern Pattern
	handler Handler
}

// Registry maps (node kind, class pattern) to handlers.
type Registry struct {
	handlers map[expr.Kind][]registration
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[expr.Kind][]registration)}
}

// Register installs a handler. Registering a pattern that ties an
// existing registration for the same kind is an
// AmbiguousDispatchError; nothing is installed in that case.
func (r *Registry) Register(kind expr.Kind, p Pattern, h Handler) error {
	if h == nil {
		return fmt.Errorf("engine: nil handler for %s", kind)
	}
	if len(p.Classes) == 0 {
		return fmt.Errorf("engine: empty pattern for %s", kind)
	}
	for _, existing := range r.handlers[kind] {
		if existing.pattern.ties(p) {
			return &AmbiguousDispatchError{Kind: kind, Existing: existing.pattern, Proposed: p}
		}
	}
	r.handlers[kind] = append(r.handlers[kind], registration{pattern: p, handler: h})
	return nil
}

// MustRegister is like Register but panics on error. Backend init
// functions use it; their patterns are static.
func (r *Registry) MustRegister(kind expr.Kind, p Pattern, h Handler) {
	if err := r.Register(kind, p, h); err != nil {
		panic(err)
	}
}

// resolve picks the most specific matching handler for the observed
// classes. No match is a DispatchError. An exact tie cannot survive
// Register, so a tie here indicates registry corruption and still
// fails rather than picking arbitrarily.
func (r *Registry) resolve(kind expr.Kind, got []Class) (Handler, error) {
	var (
		best      Handler
		bestScore = -1
		tied      bool
		bestPat   Pattern
	)
	for _, reg := range r.handlers[kind] {
		if !reg.pattern.matches(got) {
			continue
		}
		score := reg.pattern.score(len(got))
		switch {
		case score > bestScore:
			best, bestScore, bestPat, tied = reg.handler, score, reg.pattern, false
		case score == bestScore:
			tied = true
		}
	}
	if best == nil {
		return nil, &DispatchError{Kind: kind, Classes: got}
	}
	if tied {
		return nil, &AmbiguousDispatchError{Kind: kind, Existing: bestPat, Proposed: bestPat}
	}
	return best, nil
}
