package stream

import (
	"github.com/tably/tably/internal/engine"
	"github.com/tably/tably/internal/expr"
)

// Register installs the sequence handlers into a registry.
func Register(r *engine.Registry) error {
	elemwise := []expr.Kind{
		expr.KindProjection, expr.KindField, expr.KindBroadcast,
		expr.KindMap, expr.KindLabel, expr.KindReLabel,
		expr.KindDateTime, expr.KindMerge,
	}
	for _, kind := range elemwise {
		if err := r.Register(kind, engine.Fixed(engine.ClassSeq), elemwiseHandler); err != nil {
			return err
		}
	}
	// Broadcast over already-computed scalars evaluates once.
	if err := r.Register(expr.KindBroadcast, engine.Variadic(engine.ClassScalar), scalarBroadcastHandler); err != nil {
		return err
	}

	fixed := map[expr.Kind]engine.Handler{
		expr.KindSelection: selectionHandler,
		expr.KindReduction: reductionHandler,
		expr.KindSummary:   summaryHandler,
		expr.KindBy:        byHandler,
		expr.KindDistinct:  distinctHandler,
		expr.KindSort:      sortHandler,
		expr.KindHead:      headHandler,
		expr.KindLike:      likeHandler,
		expr.KindSlice:     sliceHandler,
		expr.KindApply:     applyHandler,
	}
	for kind, h := range fixed {
		if err := r.Register(kind, engine.Fixed(engine.ClassSeq), h); err != nil {
			return err
		}
	}

	if err := r.Register(expr.KindUnion, engine.Variadic(engine.ClassSeq), unionHandler); err != nil {
		return err
	}
	if err := r.Register(expr.KindJoin, engine.Fixed(engine.ClassSeq, engine.ClassSeq), joinHandler); err != nil {
		return err
	}
	return nil
}

// NewEngine builds an engine with only this backend registered.
func NewEngine(opts ...engine.Option) *engine.Engine {
	r := engine.NewRegistry()
	if err := Register(r); err != nil {
		// Registration uses static patterns; failure is a programming
		// error, not an input condition.
		panic(err)
	}
	return engine.New(r, opts...)
}
