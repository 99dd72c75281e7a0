// Command falsevm runs a FALSE program, read from a file argument or
// from stdin, against either evaluator the falsevm package provides.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/falselang/falsevm"
	"github.com/falselang/falsevm/internal/logio"
)

func main() {
	var (
		memLimit uint
		timeout  time.Duration
		trace    bool
		dump     bool
		engine   string
		compare  bool
	)
	flag.UintVar(&memLimit, "mem-limit", 0, "bound the bytecode engine's flat memory, in cells (0 = default of 65536)")
	flag.DurationVar(&timeout, "timeout", 0, "specify a time limit")
	flag.BoolVar(&trace, "trace", false, "enable trace logging of every step")
	flag.BoolVar(&dump, "dump", false, "print a state dump after execution")
	flag.StringVar(&engine, "engine", "tree", `evaluator to run: "tree" or "bytecode"`)
	flag.BoolVar(&compare, "compare", false, "run both engines and report whether their output matches, ignoring -engine")
	flag.Parse()

	log := logio.Logger{}
	log.SetOutput(os.Stderr)
	defer os.Exit(log.ExitCode())

	src, err := readProgram(flag.Args())
	if err != nil {
		log.Errorf("%v", err)
		return
	}

	ctx := context.Background()
	if timeout != 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if compare {
		input, rerr := io.ReadAll(os.Stdin)
		if rerr != nil {
			log.Errorf("reading stdin: %v", rerr)
			return
		}
		treeOut, bcOut, cerr := falsevm.CompareEngines(ctx, src, input)
		os.Stdout.Write(treeOut)
		if cerr != nil {
			log.Errorf("%v", cerr)
			return
		}
		if !bytes.Equal(treeOut, bcOut) {
			log.Errorf("engines disagree: tree=%q bytecode=%q", treeOut, bcOut)
		}
		return
	}

	eng, err := parseEngine(engine)
	if err != nil {
		log.Errorf("%v", err)
		return
	}

	opts := []falsevm.VMOption{
		falsevm.WithMemLimit(memLimit),
		falsevm.WithEngine(eng),
		falsevm.WithInput(os.Stdin),
		falsevm.WithOutput(os.Stdout),
	}
	if trace {
		opts = append(opts, falsevm.WithLogf(log.Leveledf("TRACE")))
	}
	vm := falsevm.New(opts...)
	defer vm.Close()

	if dump {
		lw := &logio.Writer{Logf: log.Leveledf("DUMP")}
		defer lw.Close()
		defer vm.Dump(lw)
	}

	log.ErrorIf(vm.Run(ctx, src))
}

// readProgram loads program source from the file named by args[0], or
// from stdin until EOF if no file argument was given (spec.md §6's
// entry-point convention).
func readProgram(args []string) (string, error) {
	if len(args) == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	b, err := os.ReadFile(args[0])
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func parseEngine(name string) (falsevm.Engine, error) {
	switch name {
	case "tree", "":
		return falsevm.EngineTree, nil
	case "bytecode":
		return falsevm.EngineBytecode, nil
	default:
		return 0, fmt.Errorf("unknown -engine %q", name)
	}
}
