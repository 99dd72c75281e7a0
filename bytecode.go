package falsevm

import (
	"context"

	"github.com/falselang/falsevm/internal/mem"
)

// opcode identifies one bytecode instruction. The set below covers every
// operation the tree-walking engine implements (stepTree's switch) plus
// the handful of primitives the flat instruction stream needs that the
// source FALSE opcode table has no direct equivalent for: jump and
// jumpIfZero give it an explicit backward branch (the tree-walking
// engine just uses a Go for-loop), and the three whilePush/whilePick/
// whileDrop primitives give LambdaWhile's inlined loop somewhere to
// stash cond's and body's addresses other than the data stack itself
// (see compileWhile).
type opcode int32

const (
	opNoop opcode = iota
	opPush        // arg: value
	opDup
	opDrop
	opSwap
	opRot
	opPick
	opPlus
	opMinus
	opMul
	opDiv
	opNegate
	opBitAnd
	opBitOr
	opBitNot
	opGt
	opEq
	opLt
	opVarRead
	opVarWrite
	opReadChar
	opWriteChar
	opWriteInt
	opWriteString // arg: length, followed by that many char cells
	opFlushIO
	opCall        // pop addr; push return cursor on call stack; jump addr
	opCallIf      // pop addr, pop cond; if cond != 0, as opCall
	opReturn      // pop call stack; jump to popped address
	opJump        // pop addr; jump addr, no call-stack involvement
	opJumpIfZero  // pop addr, pop cond; if cond == 0, jump addr
	opWhilePush   // pop data stack top; push onto the while-scratch stack
	opWhilePick   // arg: depth; push a copy of while-scratch[depth] onto the data stack
	opWhileDrop   // discard the top of the while-scratch stack
	opHalt
)

const (
	varRegionSize   = 26
	callStackSize   = 4096
	callStackStart  = varRegionSize
	whileStackSize  = 4096
	whileStackStart = callStackStart + callStackSize
	firstInstrAddr  = whileStackStart + whileStackSize
	defaultMemSize  = 1 << 16
)

// bytecodeState is the flat-memory machine the bytecode engine compiles
// a LambdaTable down to: cells [0,26) are the variable store, cells
// [callStackStart,callStackStart+callStackSize) are the call-return
// stack, cells [whileStackStart,whileStackStart+whileStackSize) are the
// while-scratch stack (see compileWhile), cells [firstInstrAddr, instr)
// are instructions, and the data stack occupies the cells above instr,
// growing down from memSize (the mirror image
// of the instruction area growing up from firstInstrAddr, as described
// for FALSE's own single flat address space).
type bytecodeState struct {
	mem     mem.Ints
	memSize int

	fnAddr []int // lambda table index -> compiled entry address
	instr  int   // next free instruction cell, during compilation

	entry   int
	cursor  int
	sp      int // data stack pointer; next push goes at sp-1
	callSP  int // call stack pointer; next call push goes at callSP
	whileSP int // while-scratch stack pointer; next push goes at whileSP
}

func (vm *VM) runBytecode(ctx context.Context) error {
	bc, err := vm.compileBytecode()
	if err != nil {
		return err
	}
	vm.bc = bc
	bc.cursor = bc.entry
	bc.sp = bc.memSize
	bc.callSP = callStackStart
	bc.whileSP = whileStackStart

	for {
		if err := ctx.Err(); err != nil {
			vm.halt(err)
		}
		if done := vm.stepBytecode(); done {
			return nil
		}
	}
}

func (vm *VM) compileBytecode() (*bytecodeState, error) {
	memSize := defaultMemSize
	if vm.memLimit != 0 {
		memSize = int(vm.memLimit)
	}
	bc := &bytecodeState{memSize: memSize}
	bc.mem.PageSize = mem.DefaultIntsPageSize
	bc.mem.Limit = uint(memSize)
	bc.fnAddr = make([]int, len(vm.table))
	bc.instr = firstInstrAddr

	for i, body := range vm.table {
		bc.fnAddr[i] = bc.instr
		vm.compileLambda(bc, i, body)
		if i == vm.table.Main() {
			bc.emit(opHalt)
		} else {
			bc.emit(opReturn)
		}
	}
	bc.entry = bc.fnAddr[vm.table.Main()]
	return bc, nil
}

func (bc *bytecodeState) emit(op opcode) int {
	addr := bc.instr
	bc.haltless(bc.mem.Stor(uint(bc.instr), int(op)))
	bc.instr++
	return addr
}

func (bc *bytecodeState) emitArg(v int) {
	bc.haltless(bc.mem.Stor(uint(bc.instr), v))
	bc.instr++
}

// haltless exists only so compile-time Stor errors (a program whose
// compiled size exceeds the configured memory limit) surface through
// the same panic/halt machinery as a runtime MemoryBoundsError; it is
// never called with a non-mem.LimitError.
func (bc *bytecodeState) haltless(err error) {
	if err != nil {
		panic(haltError{err})
	}
}

func (vm *VM) compileLambda(bc *bytecodeState, idx int, body []Token) {
	for i := 0; i < len(body); i++ {
		tok := body[i]
		switch tok.Kind {
		case KindNumber:
			bc.emit(opPush)
			bc.emitArg(int(tok.Num))
		case KindDup:
			bc.emit(opDup)
		case KindDrop:
			bc.emit(opDrop)
		case KindSwap:
			bc.emit(opSwap)
		case KindRot:
			bc.emit(opRot)
		case KindPick:
			bc.emit(opPick)
		case KindPlus:
			bc.emit(opPlus)
		case KindMinus:
			bc.emit(opMinus)
		case KindMul:
			bc.emit(opMul)
		case KindDiv:
			bc.emit(opDiv)
		case KindNegate:
			bc.emit(opNegate)
		case KindBitAnd:
			bc.emit(opBitAnd)
		case KindBitOr:
			bc.emit(opBitOr)
		case KindBitNot:
			bc.emit(opBitNot)
		case KindGreaterThan:
			bc.emit(opGt)
		case KindEqual:
			bc.emit(opEq)
		case KindLessThan:
			bc.emit(opLt)

		case KindLambdaPointer:
			bc.emit(opPush)
			bc.emitArg(bc.fnAddr[int(tok.Num)])
		case KindLambdaExecute:
			bc.emit(opCall)
		case KindLambdaIf:
			bc.emit(opCallIf)
		case KindLambdaWhile:
			bc.compileWhile()

		case KindVariable:
			bc.emit(opPush)
			bc.emitArg(int(tok.Ch - 'a'))
		case KindVarWrite:
			bc.emit(opVarWrite)
		case KindVarRead:
			bc.emit(opVarRead)

		case KindReadChar:
			bc.emit(opReadChar)
		case KindWriteChar:
			bc.emit(opWriteChar)
		case KindWriteInt:
			bc.emit(opWriteInt)
		case KindFlushIO:
			bc.emit(opFlushIO)
		case KindPrintString:
			bc.emit(opWriteString)
			bc.emitArg(len(tok.Str))
			for i := 0; i < len(tok.Str); i++ {
				bc.emitArg(int(tok.Str[i]))
			}

		default:
			vm.halt(InvalidOpcodeError{Code: int32(tok.Kind)})
		}
	}
}

// compileWhile inlines the loop at `#`, matching the tree-walking
// engine's own LambdaWhile contract (treewalk.go): body is popped off
// the data stack first, then cond, and neither is looked at again
// except through those two popped values. Popping them into the
// while-scratch stack (rather than leaving them resident on the data
// stack and Pick-ing copies, which the Pick formula in stepBytecode's
// opPick case addresses relative to the CURRENT stack top) is what
// keeps cond's and body's own compiled code seeing the real program
// state on top of the data stack -- exactly what they would see as the
// top of stack if the tree-walking engine had just popped them and
// handed control to evalTree(cond)/evalTree(body).
//
//	          whilePush                 -- stash body (was top)
//	          whilePush                 -- stash cond (was next; now on top of scratch)
//	loop:     whilePick 0               -- copy cond onto the data stack
//	          call                      -- run cond, leaves a Number on top
//	          push <exit>; jumpIfZero   -- stop looping if it was false
//	          whilePick 1               -- copy body onto the data stack
//	          call                      -- run body
//	          push <loop>; jump
//	exit:     whileDrop; whileDrop      -- discard the stashed cond, body
func (bc *bytecodeState) compileWhile() {
	bc.emit(opWhilePush)
	bc.emit(opWhilePush)

	loop := bc.instr
	bc.emit(opWhilePick)
	bc.emitArg(0)
	bc.emit(opCall)

	bc.emit(opPush)
	exitArgAddr := bc.instr
	bc.emitArg(0) // patched below
	bc.emit(opJumpIfZero)

	bc.emit(opWhilePick)
	bc.emitArg(1)
	bc.emit(opCall)

	bc.emit(opPush)
	bc.emitArg(loop)
	bc.emit(opJump)

	exit := bc.instr
	bc.emit(opWhileDrop)
	bc.emit(opWhileDrop)

	bc.haltless(bc.mem.Stor(uint(exitArgAddr), exit))
}

// stepBytecode executes one instruction and reports whether Halt was
// reached.
func (vm *VM) stepBytecode() bool {
	bc := vm.bc
	op := opcode(vm.bcLoad(bc.cursor))
	bc.cursor++

	if vm.logfn != nil {
		vm.logf("=", "pc:%d op:%d sp:%d", bc.cursor-1, op, bc.sp)
	}

	switch op {
	case opNoop:
	case opPush:
		v := vm.bcLoad(bc.cursor)
		bc.cursor++
		vm.bcPush(v)
	case opDup:
		v := vm.bcPop("dup")
		vm.bcPush(v)
		vm.bcPush(v)
	case opDrop:
		vm.bcPop("drop")
	case opSwap:
		a := vm.bcPop("swap")
		b := vm.bcPop("swap")
		vm.bcPush(a)
		vm.bcPush(b)
	case opRot:
		a := vm.bcPop("rot")
		b := vm.bcPop("rot")
		c := vm.bcPop("rot")
		vm.bcPush(b)
		vm.bcPush(a)
		vm.bcPush(c)
	case opPick:
		n := vm.bcPop("pick")
		addr := bc.sp + n
		if n < 0 || addr >= bc.memSize {
			vm.halt(PickRangeError{N: int64(n), Height: bc.memSize - bc.sp})
		}
		vm.bcPush(vm.bcLoad(addr))

	case opPlus:
		a, b := vm.bcPop("+"), vm.bcPop("+")
		vm.bcPush(b + a)
	case opMinus:
		a, b := vm.bcPop("-"), vm.bcPop("-")
		vm.bcPush(b - a)
	case opMul:
		a, b := vm.bcPop("*"), vm.bcPop("*")
		vm.bcPush(b * a)
	case opDiv:
		a, b := vm.bcPop("/"), vm.bcPop("/")
		if a == 0 {
			vm.halt(DivideByZeroError{})
		}
		vm.bcPush(b / a)
	case opNegate:
		vm.bcPush(-vm.bcPop("_"))
	case opBitAnd:
		a, b := vm.bcPop("&"), vm.bcPop("&")
		vm.bcPush(a & b)
	case opBitOr:
		a, b := vm.bcPop("|"), vm.bcPop("|")
		vm.bcPush(a | b)
	case opBitNot:
		vm.bcPush(^vm.bcPop("~"))
	case opGt:
		a, b := vm.bcPop(">"), vm.bcPop(">")
		vm.bcPush(int(truth(b > a)))
	case opEq:
		a, b := vm.bcPop("="), vm.bcPop("=")
		vm.bcPush(int(truth(a == b)))
	case opLt:
		a, b := vm.bcPop("<"), vm.bcPop("<")
		vm.bcPush(int(truth(b < a)))

	case opVarWrite:
		addr := vm.bcPop(":")
		val := vm.bcPop(":")
		if addr < 0 || addr >= varRegionSize {
			vm.halt(MemoryBoundsError{Addr: addr, Size: bc.memSize})
		}
		vm.bcStor(addr, val)
	case opVarRead:
		addr := vm.bcPop(";")
		if addr < 0 || addr >= varRegionSize {
			vm.halt(MemoryBoundsError{Addr: addr, Size: bc.memSize})
		}
		vm.bcPush(vm.bcLoad(addr))

	case opReadChar:
		vm.bcPush(int(vm.readChar()))
	case opWriteChar:
		vm.writeByte(byte(vm.bcPop(",")))
	case opWriteInt:
		vm.writeInt(int64(vm.bcPop(".")))
	case opFlushIO:
		vm.flush()
	case opWriteString:
		n := vm.bcLoad(bc.cursor)
		bc.cursor++
		buf := make([]byte, n)
		for i := 0; i < n; i++ {
			buf[i] = byte(vm.bcLoad(bc.cursor))
			bc.cursor++
		}
		vm.writeString(string(buf))

	case opCall:
		addr := vm.bcPop("!")
		vm.bcCallStackPush(bc.cursor)
		bc.cursor = addr
	case opCallIf:
		addr := vm.bcPop("?")
		cond := vm.bcPop("?")
		if cond != 0 {
			vm.bcCallStackPush(bc.cursor)
			bc.cursor = addr
		}
	case opReturn:
		bc.cursor = vm.bcCallStackPop()
	case opJump:
		bc.cursor = vm.bcPop("#")
	case opJumpIfZero:
		addr := vm.bcPop("#")
		cond := vm.bcPop("#")
		if cond == 0 {
			bc.cursor = addr
		}
	case opWhilePush:
		vm.bcWhilePush(vm.bcPop("#"))
	case opWhilePick:
		depth := vm.bcLoad(bc.cursor)
		bc.cursor++
		vm.bcPush(vm.bcWhilePick(depth))
	case opWhileDrop:
		vm.bcWhileDrop()
	case opHalt:
		return true

	default:
		vm.halt(InvalidOpcodeError{Code: int32(op)})
	}
	return false
}

func (vm *VM) bcLoad(addr int) int {
	v, err := vm.bc.mem.Load(uint(addr))
	vm.haltif(err)
	return v
}

func (vm *VM) bcStor(addr, v int) {
	vm.haltif(vm.bc.mem.Stor(uint(addr), v))
}

func (vm *VM) bcPush(v int) {
	bc := vm.bc
	if bc.sp-1 <= bc.instr {
		vm.halt(MemoryBoundsError{Addr: bc.sp - 1, Size: bc.memSize})
	}
	bc.sp--
	vm.bcStor(bc.sp, v)
}

func (vm *VM) bcPop(op string) int {
	bc := vm.bc
	if bc.sp >= bc.memSize {
		vm.halt(StackUnderflowError{Op: op, Have: 0, Need: 1})
	}
	v := vm.bcLoad(bc.sp)
	bc.sp++
	return v
}

func (vm *VM) bcCallStackPush(returnAddr int) {
	bc := vm.bc
	if bc.callSP >= whileStackStart {
		vm.halt(MemoryBoundsError{Addr: bc.callSP, Size: bc.memSize})
	}
	vm.bcStor(bc.callSP, returnAddr)
	bc.callSP++
}

func (vm *VM) bcCallStackPop() int {
	bc := vm.bc
	if bc.callSP <= callStackStart {
		vm.halt(StackUnderflowError{Op: "return", Have: 0, Need: 1})
	}
	bc.callSP--
	return vm.bcLoad(bc.callSP)
}

// bcWhilePush, bcWhilePick, and bcWhileDrop back compileWhile's inlined
// loop: cond's and body's addresses are stashed here, off the data
// stack, for the duration of the loop, so their own compiled code sees
// the real data stack beneath them rather than a leftover copy of the
// other's address (spec.md §4.3's LambdaWhile pops both off the data
// stack entirely before ever invoking either).
func (vm *VM) bcWhilePush(v int) {
	bc := vm.bc
	if bc.whileSP >= firstInstrAddr {
		vm.halt(MemoryBoundsError{Addr: bc.whileSP, Size: bc.memSize})
	}
	vm.bcStor(bc.whileSP, v)
	bc.whileSP++
}

func (vm *VM) bcWhilePick(depth int) int {
	bc := vm.bc
	addr := bc.whileSP - 1 - depth
	if addr < whileStackStart || addr >= bc.whileSP {
		vm.halt(MemoryBoundsError{Addr: addr, Size: bc.memSize})
	}
	return vm.bcLoad(addr)
}

func (vm *VM) bcWhileDrop() {
	bc := vm.bc
	if bc.whileSP <= whileStackStart {
		vm.halt(StackUnderflowError{Op: "#", Have: 0, Need: 1})
	}
	bc.whileSP--
}
