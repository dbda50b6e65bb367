// Package linker implements the fixed link step between code generation
// and container encoding (spec.md §4.2): verifying an executable module
// has a runnable entry point, and (optionally, not by default — see
// SPEC_FULL.md §E.5) running an eager method-resolution hook, which is
// currently a no-op: selectors are always resolved by the VM's call-time
// dispatch.
package linker

import (
	"github.com/pkg/errors"

	"github.com/arxlang/arx/internal/arxerr"
	"github.com/arxlang/arx/internal/arxlog"
	"github.com/arxlang/arx/internal/codegen"
)

// Linked is the linker's output: a codegen.Module annotated with the
// resolved entry point, ready for container encoding.
type Linked struct {
	*codegen.Module
	EntryPoint int64 // CODE offset of App.Main; 0 for a library module
}

// Linker runs the link step. It holds no state across calls; one instance
// can link any number of modules.
type Linker struct {
	log *arxlog.Logger

	// eagerResolve turns on the link-time resolution hook
	// (resolveMethodOffsets), which leaves instructions unchanged. Off by
	// default: spec.md §4.2 permits either strategy and calls the
	// conservative (call-time, name-based) one the reference behavior
	// (SPEC_FULL.md §E.5).
	eagerResolve bool
}

// Option configures a Linker.
type Option func(*Linker)

// WithEagerResolve turns on the link-time method-resolution hook (a no-op;
// see resolveMethodOffsets).
func WithEagerResolve(on bool) Option {
	return func(l *Linker) { l.eagerResolve = on }
}

// New builds a Linker.
func New(log *arxlog.Logger, opts ...Option) *Linker {
	if log == nil {
		log = arxlog.Nop()
	}
	l := &Linker{log: log}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Link verifies entry-point presence for executable modules and (if
// enabled) performs eager method resolution. It is idempotent: calling it
// twice on the same codegen.Module yields the same Linked result, since it
// only reads Module.Classes to find the entry point and never mutates
// instruction operands unless eagerResolve is on, in which case the
// resolution itself is idempotent (same selector always resolves to the
// same offset).
func (l *Linker) Link(mod *codegen.Module) (*Linked, error) {
	if mod == nil {
		return nil, arxerr.New(arxerr.KindLinkError, "nil module")
	}

	out := &Linked{Module: mod}

	if !mod.Executable {
		l.log.Debugf("link: %s is a library module, no entry point required", mod.Name)
		return out, nil
	}

	main := findMain(mod.Classes)
	if main == nil {
		return nil, arxerr.Newf(arxerr.KindLinkError,
			"module %s is marked executable but has no App.Main", mod.Name)
	}
	out.EntryPoint = main.Offset
	l.log.Debugf("link: %s entry point at offset %d", mod.Name, out.EntryPoint)

	if l.eagerResolve {
		if err := l.resolveMethodOffsets(out); err != nil {
			return nil, errors.Wrap(err, "eager method resolution")
		}
	}

	return out, nil
}

func findMain(classes []codegen.ClassManifest) *codegen.MethodManifest {
	for _, cls := range classes {
		if cls.Name != "App" {
			continue
		}
		for i := range cls.Methods {
			if cls.Methods[i].Name == "Main" {
				return &cls.Methods[i]
			}
		}
	}
	return nil
}

// resolveMethodOffsets is the eager-resolution hook spec.md §4.2 describes
// as an available-but-non-default strategy: a future instruction-rewrite
// pass could replace each OBJ_CALL_METHOD's selector operand with a
// resolved (class_id, offset) pair here. Left as a documented no-op
// because nothing in this codebase emits eager-resolvable call sites yet
// (codegen always emits name-based dispatch, SPEC_FULL.md §E.5) — enabling
// WithEagerResolve today is a safe no-op, not a behavior change.
func (l *Linker) resolveMethodOffsets(_ *Linked) error {
	return nil
}
