package falsevm

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/falselang/falsevm/internal/flushio"
	"github.com/falselang/falsevm/internal/panicerr"
)

// ElemKind identifies the variant of a StackElement.
type ElemKind int

// The data-stack element kinds (spec.md §3).
const (
	ElemNumber ElemKind = iota
	ElemLambda
	ElemVariable
)

// StackElement is a value on the data stack: a Number, a Lambda
// (referring into a LambdaTable), or a Variable (a transient addressing
// operand for VarWrite/VarRead).
type StackElement struct {
	Kind ElemKind
	Num  int64
	Ch   byte
}

func elemNumber(n int64) StackElement  { return StackElement{Kind: ElemNumber, Num: n} }
func elemLambda(i int) StackElement    { return StackElement{Kind: ElemLambda, Num: int64(i)} }
func elemVariable(c byte) StackElement { return StackElement{Kind: ElemVariable, Ch: c} }

func (e StackElement) String() string {
	switch e.Kind {
	case ElemNumber:
		return fmt.Sprintf("%d", e.Num)
	case ElemLambda:
		return fmt.Sprintf("lambda(%d)", e.Num)
	case ElemVariable:
		return fmt.Sprintf("var(%c)", e.Ch)
	default:
		return "invalid"
	}
}

// Engine selects which evaluator VM.Run drives.
type Engine int

// The two evaluators spec.md §4 describes.
const (
	// EngineTree walks the lambda table directly.
	EngineTree Engine = iota
	// EngineBytecode compiles the lambda table to a flat instruction
	// memory first.
	EngineBytecode
)

func (e Engine) String() string {
	switch e {
	case EngineTree:
		return "tree"
	case EngineBytecode:
		return "bytecode"
	default:
		return fmt.Sprintf("Engine(%d)", int(e))
	}
}

// VM holds all state shared by both evaluators: the data stack, the
// 26-slot variable store, the parsed lambda table, and the I/O plumbing
// (logging. flushed output, queued input). Bytecode-only state lives in
// bytecodeState, populated lazily on first bytecode run.
type VM struct {
	logging

	engine Engine

	table LambdaTable
	stack []StackElement
	vars  [26]StackElement
	set   [26]bool

	in      io.Reader
	inBuf   *bufio.Reader
	out     flushio.WriteFlusher
	closers []io.Closer

	memLimit uint
	bc       *bytecodeState
}

// New builds a VM configured by opts. The program itself is supplied to
// Run, not to New, so that one VM configuration (I/O, logging, engine
// choice) can be reused across multiple Run calls.
func New(opts ...VMOption) *VM {
	var vm VM
	defaultOptions.apply(&vm)
	VMOptions(opts...).apply(&vm)
	return &vm
}

// Close releases any resources registered by WithInput/WithOutput (for
// io.Closer-implementing streams).
func (vm *VM) Close() (err error) {
	for i := len(vm.closers) - 1; i >= 0; i-- {
		if cerr := vm.closers[i].Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Run compiles src and executes it to completion with the configured
// engine, reading from and writing to the configured streams. It
// returns nil when the program completed normally; a failure wrapping
// io.EOF also counts as normal completion and is reported as nil.
func (vm *VM) Run(ctx context.Context, src string) error {
	err := panicerr.Recover("VM", func() error {
		return vm.run(ctx, src)
	})
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	var he haltError
	if errors.As(err, &he) {
		err = he.error
	}
	return err
}

func (vm *VM) run(ctx context.Context, src string) error {
	table, err := Parse(src)
	if err != nil {
		return err
	}
	vm.table = table
	vm.stack = vm.stack[:0]
	vm.vars = [26]StackElement{}
	vm.set = [26]bool{}

	switch vm.engine {
	case EngineBytecode:
		return vm.runBytecode(ctx)
	default:
		return vm.runTree(ctx)
	}
}

func (vm *VM) halt(err error) {
	if vm.out != nil {
		if ferr := vm.out.Flush(); err == nil {
			err = ferr
		}
	}
	vm.logf("#", "halt: %v", err)
	panic(haltError{err})
}

func (vm *VM) haltif(err error) {
	if err != nil {
		vm.halt(err)
	}
}

// push appends a value to the data stack.
func (vm *VM) push(e StackElement) { vm.stack = append(vm.stack, e) }

// pop removes and returns the top of the data stack, halting on
// underflow.
func (vm *VM) pop(op string) StackElement {
	i := len(vm.stack) - 1
	if i < 0 {
		vm.halt(StackUnderflowError{Op: op, Have: 0, Need: 1})
	}
	e := vm.stack[i]
	vm.stack = vm.stack[:i]
	return e
}

// popNumber pops the top of stack, halting if it is not a Number.
func (vm *VM) popNumber(op string) int64 {
	e := vm.pop(op)
	if e.Kind != ElemNumber {
		vm.halt(TypeError{Op: op, Expected: "number", Got: e})
	}
	return e.Num
}

// popLambda pops the top of stack, halting if it is not a Lambda.
func (vm *VM) popLambda(op string) int {
	e := vm.pop(op)
	if e.Kind != ElemLambda {
		vm.halt(TypeError{Op: op, Expected: "lambda", Got: e})
	}
	return int(e.Num)
}

// popVariable pops the top of stack, halting if it is not a Variable.
func (vm *VM) popVariable(op string) byte {
	e := vm.pop(op)
	if e.Kind != ElemVariable {
		vm.halt(TypeError{Op: op, Expected: "variable", Got: e})
	}
	return e.Ch
}

func truth(b bool) int64 {
	if b {
		return -1
	}
	return 0
}

// logging is a no-op unless logfn is set, with a left-padded mark
// column so trace output lines up.
type logging struct {
	logfn     func(mess string, args ...interface{})
	markWidth int
}

func (l *logging) logf(mark, mess string, args ...interface{}) {
	if l.logfn == nil {
		return
	}
	if n := l.markWidth - len(mark); n > 0 {
		mark = mark + repeat(" ", n)
	} else if n < 0 {
		l.markWidth = len(mark)
	}
	if len(args) > 0 {
		mess = fmt.Sprintf(mess, args...)
	}
	l.logfn("%s %s", mark, mess)
}

func repeat(s string, n int) string {
	out := make([]byte, 0, n*len(s))
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}

// readChar reads one byte from the configured input stream, pushing -1
// on EOF per spec.md §4.3's ReadChar contract.
func (vm *VM) readChar() int64 {
	if vm.inBuf == nil {
		if vm.in == nil {
			return -1
		}
		vm.inBuf = bufio.NewReader(vm.in)
	}
	b, err := vm.inBuf.ReadByte()
	if err != nil {
		return -1
	}
	return int64(b)
}

func (vm *VM) writeByte(b byte) {
	_, err := vm.out.Write([]byte{b})
	vm.haltif(err)
}

func (vm *VM) writeString(s string) {
	_, err := vm.out.Write([]byte(s))
	vm.haltif(err)
}

func (vm *VM) writeInt(n int64) {
	vm.writeString(fmt.Sprintf("%d", n))
}

func (vm *VM) flush() {
	vm.haltif(vm.out.Flush())
}
