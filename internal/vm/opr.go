package vm

import (
	"github.com/arxlang/arx/internal/arxerr"
	"github.com/arxlang/arx/internal/instr"
)

// opr dispatches every OPR sub-opcode except OBJ_CALL_METHOD and RET,
// which manage pc themselves and are special-cased in step() (spec.md
// §4.4: the automatic pc+1 after OPR doesn't apply to either of those).
// Arithmetic, comparison, logical, and shift sub-opcodes are handled
// inline here; I/O, string, and object sub-opcodes are each one named
// primitive in primitives.go.
func (v *VM) opr(sub instr.Sub) error {
	switch sub {
	case instr.ADD, instr.SUB, instr.MUL, instr.DIV, instr.POW, instr.MOD:
		return v.arith(sub)
	case instr.NEG:
		a, err := v.pop()
		if err != nil {
			return err
		}
		return v.push(-a)

	case instr.EQ, instr.NEQ, instr.LESS, instr.LEQ, instr.GREATER, instr.GEQ:
		return v.compare(sub)

	case instr.AND, instr.OR:
		b, err := v.pop()
		if err != nil {
			return err
		}
		a, err := v.pop()
		if err != nil {
			return err
		}
		var result int64
		if sub == instr.AND {
			if a != 0 && b != 0 {
				result = 1
			}
		} else if a != 0 || b != 0 {
			result = 1
		}
		return v.push(result)
	case instr.NOT:
		a, err := v.pop()
		if err != nil {
			return err
		}
		if a == 0 {
			return v.push(1)
		}
		return v.push(0)
	case instr.ODD:
		a, err := v.pop()
		if err != nil {
			return err
		}
		if a%2 != 0 {
			return v.push(1)
		}
		return v.push(0)

	case instr.SHL, instr.SHR:
		b, err := v.pop()
		if err != nil {
			return err
		}
		a, err := v.pop()
		if err != nil {
			return err
		}
		if sub == instr.SHL {
			return v.push(a << uint(b))
		}
		return v.push(a >> uint(b))

	case instr.OUTSTRING:
		return v.primOutString()
	case instr.OUTINT:
		return v.primOutInt()
	case instr.OUTCHAR:
		return v.primOutChar()
	case instr.OUT:
		return v.primOut()
	case instr.ININT:
		return v.primInInt()
	case instr.INCHAR:
		return v.primInChar()

	case instr.STR_CONCAT:
		return v.primStrConcat()
	case instr.STR_LEN:
		return v.primStrLen()
	case instr.STR_EQ:
		return v.primStrEq()
	case instr.STR_CMP:
		return v.primStrCmp()
	case instr.INT_TO_STR:
		return v.primIntToStr()
	case instr.STR_TO_INT:
		return v.primStrToInt()

	case instr.OBJ_NEW:
		return v.primObjNew()
	case instr.OBJ_GET_FIELD:
		return v.primObjGetField()
	case instr.OBJ_SET_FIELD:
		return v.primObjSetField()
	case instr.OBJ_SELF:
		return v.primObjSelf()

	default:
		return arxerr.Newf(arxerr.KindInvalidInstruction, "unhandled OPR sub-opcode %s", sub)
	}
}

func (v *VM) arith(sub instr.Sub) error {
	b, err := v.pop()
	if err != nil {
		return err
	}
	a, err := v.pop()
	if err != nil {
		return err
	}
	switch sub {
	case instr.ADD:
		return v.push(a + b)
	case instr.SUB:
		return v.push(a - b)
	case instr.MUL:
		return v.push(a * b)
	case instr.DIV:
		if b == 0 {
			return ErrDivisionByZero
		}
		return v.push(a / b)
	case instr.MOD:
		if b == 0 {
			return ErrDivisionByZero
		}
		return v.push(a % b)
	case instr.POW:
		result := int64(1)
		for i := int64(0); i < b; i++ {
			result *= a
		}
		return v.push(result)
	}
	return arxerr.Newf(arxerr.KindInvalidInstruction, "unreachable arith sub-opcode %s", sub)
}

func (v *VM) compare(sub instr.Sub) error {
	b, err := v.pop()
	if err != nil {
		return err
	}
	a, err := v.pop()
	if err != nil {
		return err
	}
	var result bool
	switch sub {
	case instr.EQ:
		result = a == b
	case instr.NEQ:
		result = a != b
	case instr.LESS:
		result = a < b
	case instr.LEQ:
		result = a <= b
	case instr.GREATER:
		result = a > b
	case instr.GEQ:
		result = a >= b
	}
	if result {
		return v.push(1)
	}
	return v.push(0)
}
