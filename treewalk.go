package falsevm

import "context"

// frame is a saved (lambda index, instruction cursor) pair, restored
// after a nested lambda invocation completes (spec.md §4.3, §9
// "Recursion").
type frame struct {
	fn     int
	cursor int
}

func (vm *VM) runTree(ctx context.Context) error {
	if len(vm.table) == 0 {
		return nil
	}
	vm.evalTree(ctx, vm.table.Main())
	return nil
}

// evalTree runs lambda fn from cursor 0 to its end, dispatching each
// token in turn. Invoking another lambda (LambdaExecute/If/While) saves
// the current (fn, cursor) in a local frame, recurses via evalTree, and
// relies on evalTree's own locals to resume where it left off -- the Go
// call stack plays the role of the explicit frame stack described in
// spec.md §9.
func (vm *VM) evalTree(ctx context.Context, fn int) {
	body := vm.fetchLambda(fn)
	for cursor := 0; cursor < len(body); cursor++ {
		if err := ctx.Err(); err != nil {
			vm.halt(err)
		}
		vm.stepTree(ctx, body[cursor])
	}
}

func (vm *VM) fetchLambda(i int) []Token {
	if i < 0 || i >= len(vm.table) {
		vm.halt(InvalidLambdaError{Index: i})
	}
	return vm.table[i]
}

func (vm *VM) stepTree(ctx context.Context, tok Token) {
	if vm.logfn != nil {
		vm.logf(">", "%v s:%v", tok, vm.stack)
	}

	switch tok.Kind {
	case KindNumber:
		vm.push(elemNumber(tok.Num))

	case KindDup:
		top := vm.pop("dup")
		vm.push(top)
		vm.push(top)
	case KindDrop:
		vm.pop("drop")
	case KindSwap:
		a := vm.pop("swap")
		b := vm.pop("swap")
		vm.push(a)
		vm.push(b)
	case KindRot:
		a := vm.pop("rot")
		b := vm.pop("rot")
		c := vm.pop("rot")
		vm.push(b)
		vm.push(a)
		vm.push(c)
	case KindPick:
		n := vm.popNumber("pick")
		k := len(vm.stack) - 1 - int(n)
		if k < 0 || k >= len(vm.stack) {
			vm.halt(PickRangeError{N: n, Height: len(vm.stack)})
		}
		vm.push(vm.stack[k])

	case KindPlus:
		a, b := vm.popNumber("+"), vm.popNumber("+")
		vm.push(elemNumber(b + a))
	case KindMinus:
		a, b := vm.popNumber("-"), vm.popNumber("-")
		vm.push(elemNumber(b - a))
	case KindMul:
		a, b := vm.popNumber("*"), vm.popNumber("*")
		vm.push(elemNumber(b * a))
	case KindDiv:
		a, b := vm.popNumber("/"), vm.popNumber("/")
		if a == 0 {
			vm.halt(DivideByZeroError{})
		}
		vm.push(elemNumber(b / a))
	case KindNegate:
		a := vm.popNumber("_")
		vm.push(elemNumber(-a))
	case KindBitAnd:
		a, b := vm.popNumber("&"), vm.popNumber("&")
		vm.push(elemNumber(a & b))
	case KindBitOr:
		a, b := vm.popNumber("|"), vm.popNumber("|")
		vm.push(elemNumber(a | b))
	case KindBitNot:
		a := vm.popNumber("~")
		vm.push(elemNumber(^a))

	case KindGreaterThan:
		a, b := vm.popNumber(">"), vm.popNumber(">")
		vm.push(elemNumber(truth(b > a)))
	case KindEqual:
		a, b := vm.popNumber("="), vm.popNumber("=")
		vm.push(elemNumber(truth(a == b)))
	case KindLessThan:
		a, b := vm.popNumber("<"), vm.popNumber("<")
		vm.push(elemNumber(truth(b < a)))

	case KindLambdaPointer:
		vm.push(elemLambda(int(tok.Num)))
	case KindLambdaExecute:
		i := vm.popLambda("!")
		vm.evalTree(ctx, i)
	case KindLambdaIf:
		i := vm.popLambda("?")
		cond := vm.popNumber("?")
		if cond != 0 {
			vm.evalTree(ctx, i)
		}
	case KindLambdaWhile:
		body := vm.popLambda("#")
		cond := vm.popLambda("#")
		for {
			vm.evalTree(ctx, cond)
			v := vm.popNumber("#")
			if v == 0 {
				break
			}
			vm.evalTree(ctx, body)
		}

	case KindVariable:
		vm.push(elemVariable(tok.Ch))
	case KindVarWrite:
		c := vm.popVariable(":")
		val := vm.pop(":")
		vm.vars[c-'a'] = val
		vm.set[c-'a'] = true
	case KindVarRead:
		c := vm.popVariable(";")
		if !vm.set[c-'a'] {
			vm.halt(UnsetVariableError{Var: c})
		}
		vm.push(vm.vars[c-'a'])

	case KindReadChar:
		vm.push(elemNumber(vm.readChar()))
	case KindWriteChar:
		n := vm.popNumber(",")
		vm.writeByte(byte(n))
	case KindPrintString:
		vm.writeString(tok.Str)
	case KindWriteInt:
		n := vm.popNumber(".")
		vm.writeInt(n)
	case KindFlushIO:
		vm.flush()

	default:
		vm.halt(InvalidOpcodeError{Code: int32(tok.Kind)})
	}
}
