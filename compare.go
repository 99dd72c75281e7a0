package falsevm

import (
	"bytes"
	"context"

	"golang.org/x/sync/errgroup"
)

// CompareEngines runs program on both evaluators concurrently, feeding
// each the same input, and returns what each wrote. It is the
// executable form of the claim that the tree-walking and bytecode
// engines share the same observable semantics: callers diff treeOutput
// against bytecodeOutput themselves. err is non-nil only when an engine
// fails; differing outputs alone do not produce an error.
//
// Each engine gets its own VM. opts are applied to both VMs alike,
// before the engine, input and output that CompareEngines sets itself.
func CompareEngines(ctx context.Context, program string, input []byte, opts ...VMOption) (treeOutput, bytecodeOutput []byte, err error) {
	var treeBuf, bcBuf bytes.Buffer

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vm := New(VMOptions(opts...), WithEngine(EngineTree), WithInput(bytes.NewReader(input)), WithOutput(&treeBuf))
		return vm.Run(ctx, program)
	})
	g.Go(func() error {
		vm := New(VMOptions(opts...), WithEngine(EngineBytecode), WithInput(bytes.NewReader(input)), WithOutput(&bcBuf))
		return vm.Run(ctx, program)
	})

	if err := g.Wait(); err != nil {
		return treeBuf.Bytes(), bcBuf.Bytes(), err
	}
	return treeBuf.Bytes(), bcBuf.Bytes(), nil
}
