package vm

import "github.com/arxlang/arx/internal/arxerr"

// Sentinel faults for the VM's own fixed failure modes (spec.md §7's VM
// fault taxonomy). Call sites needing a fault-specific message use
// arxerr.Newf(arxerr.Kind..., ...) directly instead; these cover the ones
// raised from more than one place.
var (
	ErrStackOverflow      = arxerr.New(arxerr.KindStackOverflow, "data stack overflow")
	ErrStackUnderflow     = arxerr.New(arxerr.KindStackUnderflow, "data stack underflow")
	ErrMemoryAccess       = arxerr.New(arxerr.KindMemoryAccess, "memory access out of bounds")
	ErrInvalidInstruction = arxerr.New(arxerr.KindInvalidInstruction, "invalid instruction")
	ErrCallStackOverflow  = arxerr.New(arxerr.KindCallStackOverflow, "call stack overflow")
	ErrCallStackUnderflow = arxerr.New(arxerr.KindCallStackUnderflow, "call stack underflow")
	ErrStringTableFull    = arxerr.New(arxerr.KindStringTableFull, "string table full")
	ErrInvalidAddress     = arxerr.New(arxerr.KindInvalidAddress, "invalid address")
	ErrDivisionByZero     = arxerr.New(arxerr.KindDivisionByZero, "division by zero")
)
