package falsevm

import (
	"fmt"
	"io"
	"strconv"
)

// vmDumper prints a snapshot of VM state, as labeled "#"-prefixed
// sections, covering whichever engine last ran.
type vmDumper struct {
	vm  *VM
	out io.Writer
}

// Dump writes a human-readable snapshot of vm's current state to w: the
// data stack and variable store for either engine, plus (EngineBytecode
// only) the five flat-memory regions.
func (vm *VM) Dump(w io.Writer) {
	d := vmDumper{vm: vm, out: w}
	d.dump()
}

func (d vmDumper) dump() {
	fmt.Fprintf(d.out, "# VM Dump (engine: %v)\n", d.vm.engine)
	d.dumpVars()
	d.dumpStack()
	if d.vm.engine == EngineBytecode && d.vm.bc != nil {
		d.dumpBytecodeMem()
	}
}

func (d vmDumper) dumpVars() {
	fmt.Fprintf(d.out, "  vars:")
	any := false
	for i, set := range d.vm.set {
		if set {
			fmt.Fprintf(d.out, " %c=%v", 'a'+i, d.vm.vars[i])
			any = true
		}
	}
	if bc := d.vm.bc; d.vm.engine == EngineBytecode && bc != nil {
		// the bytecode store has no set bits; unwritten cells read as 0
		for i := 0; i < varRegionSize; i++ {
			if v, err := bc.mem.Load(uint(i)); err == nil && v != 0 {
				fmt.Fprintf(d.out, " %c=%v", 'a'+i, v)
				any = true
			}
		}
	}
	if !any {
		fmt.Fprintf(d.out, " (none set)")
	}
	fmt.Fprintln(d.out)
}

func (d vmDumper) dumpStack() {
	switch d.vm.engine {
	case EngineBytecode:
		bc := d.vm.bc
		if bc == nil {
			fmt.Fprintf(d.out, "  stack: []\n")
			return
		}
		fmt.Fprintf(d.out, "  stack:")
		for addr := bc.sp; addr < bc.memSize; addr++ {
			v, err := bc.mem.Load(uint(addr))
			if err != nil {
				break
			}
			fmt.Fprintf(d.out, " %d", v)
		}
		fmt.Fprintln(d.out)
	default:
		fmt.Fprintf(d.out, "  stack: %v\n", d.vm.stack)
	}
}

func (d vmDumper) dumpBytecodeMem() {
	bc := d.vm.bc
	addrWidth := len(strconv.Itoa(bc.memSize)) + 1

	fmt.Fprintf(d.out, "  # Variables @0\n")
	fmt.Fprintf(d.out, "  # Call Stack @%v (sp=%v)\n", callStackStart, bc.callSP)
	fmt.Fprintf(d.out, "  # While-Scratch Stack @%v (sp=%v)\n", whileStackStart, bc.whileSP)
	fmt.Fprintf(d.out, "  # Instructions @%v (end=%v)\n", firstInstrAddr, bc.instr)
	fmt.Fprintf(d.out, "  # Data Stack @%v..%v (sp=%v)\n", bc.instr, bc.memSize, bc.sp)

	for addr := callStackStart; addr < bc.callSP; addr++ {
		v, err := bc.mem.Load(uint(addr))
		if err != nil {
			break
		}
		fmt.Fprintf(d.out, "  @% *v %v call_%v\n", addrWidth, addr, v, addr-callStackStart)
	}
	for addr := whileStackStart; addr < bc.whileSP; addr++ {
		v, err := bc.mem.Load(uint(addr))
		if err != nil {
			break
		}
		fmt.Fprintf(d.out, "  @% *v %v while_%v\n", addrWidth, addr, v, addr-whileStackStart)
	}
}
