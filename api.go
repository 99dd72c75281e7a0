package falsevm

import (
	"bytes"
	"io"
	"io/ioutil"

	"github.com/falselang/falsevm/internal/flushio"
)

// VMOption configures a VM: a private apply method, a flattening
// VMOptions constructor, and a zero-value noption{} for the empty case.
type VMOption interface{ apply(vm *VM) }

var defaultOptions = VMOptions(
	withInput(bytes.NewReader(nil)),
	withOutput(ioutil.Discard),
)

// VMOptions flattens any number of options (including other VMOptions
// results) into a single applyable value.
func VMOptions(opts ...VMOption) VMOption {
	var res options
	for _, opt := range opts {
		switch impl := opt.(type) {
		case nil, noption:
		case options:
			res = append(res, impl...)
		default:
			res = append(res, opt)
		}
	}
	switch len(res) {
	case 0:
		return noption{}
	case 1:
		return res[0]
	default:
		return res
	}
}

type noption struct{}

func (noption) apply(*VM) {}

type options []VMOption

func (opts options) apply(vm *VM) {
	for _, opt := range opts {
		if opt != nil {
			opt.apply(vm)
		}
	}
}

// WithInput sets the stream ReadChar consumes from.
func WithInput(r io.Reader) VMOption { return withInput(r) }

// WithOutput sets the stream WriteChar/WriteInt/PrintString/FlushIO
// write to.
func WithOutput(w io.Writer) VMOption { return withOutput(w) }

// WithTee additionally mirrors output to w, alongside whatever
// WithOutput already configured.
func WithTee(w io.Writer) VMOption { return withTee(w) }

// WithLogf enables trace logging through the given printf-style
// function; each VM step (tree or bytecode) is logged through it when
// set.
func WithLogf(logfn func(mess string, args ...interface{})) VMOption { return withLogfn(logfn) }

// WithMemLimit bounds the bytecode engine's flat memory, in cells. Zero
// (the default) selects a memory of 65536 cells; it has no effect on the
// tree-walking engine, which has no fixed memory.
func WithMemLimit(limit uint) VMOption { return withMemLimit(limit) }

// WithEngine selects which evaluator Run drives. The default is
// EngineTree.
func WithEngine(e Engine) VMOption { return engineOption(e) }

type withLogfn func(mess string, args ...interface{})

func (f withLogfn) apply(vm *VM) { vm.logfn = f }

type inputOption struct{ io.Reader }
type outputOption struct{ io.Writer }
type teeOption struct{ io.Writer }
type memLimitOption uint
type engineOption Engine

func withInput(r io.Reader) inputOption      { return inputOption{r} }
func withOutput(w io.Writer) outputOption    { return outputOption{w} }
func withTee(w io.Writer) teeOption          { return teeOption{w} }
func withMemLimit(limit uint) memLimitOption { return memLimitOption(limit) }

func (i inputOption) apply(vm *VM) {
	vm.in = i.Reader
	vm.inBuf = nil
}

func (o outputOption) apply(vm *VM) {
	if vm.out != nil {
		vm.out.Flush()
	}
	vm.out = flushio.NewWriteFlusher(o.Writer)
	if cl, ok := o.Writer.(io.Closer); ok {
		vm.closers = append(vm.closers, cl)
	}
}

func (o teeOption) apply(vm *VM) {
	vm.out = flushio.WriteFlushers(vm.out, flushio.NewWriteFlusher(o.Writer))
	if cl, ok := o.Writer.(io.Closer); ok {
		vm.closers = append(vm.closers, cl)
	}
}

func (lim memLimitOption) apply(vm *VM) { vm.memLimit = uint(lim) }

func (e engineOption) apply(vm *VM) { vm.engine = Engine(e) }
