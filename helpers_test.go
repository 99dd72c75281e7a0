package falsevm

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// programTest is a small fluent builder: build up a program + input +
// expectations, then run once against both engines so every scenario is
// exercised by each evaluator without writing it out twice.
type programTest struct {
	name    string
	program string
	input   string
	wantOut string
	wantErr error
	opts    []VMOption
	skipEng map[Engine]bool
}

func falseTest(name, program string) programTest {
	return programTest{name: name, program: program}
}

func (pt programTest) withInput(s string) programTest {
	pt.input = s
	return pt
}

func (pt programTest) expectOutput(s string) programTest {
	pt.wantOut = s
	return pt
}

func (pt programTest) expectError(err error) programTest {
	pt.wantErr = err
	return pt
}

func (pt programTest) withOptions(opts ...VMOption) programTest {
	pt.opts = append(pt.opts, opts...)
	return pt
}

// treeOnly restricts the scenario to the tree-walking engine, for
// programs that exercise a relaxation the bytecode engine makes (see
// the uninitialized-variable note in DESIGN.md).
func (pt programTest) treeOnly() programTest {
	if pt.skipEng == nil {
		pt.skipEng = map[Engine]bool{}
	}
	pt.skipEng[EngineBytecode] = true
	return pt
}

func (pt programTest) run(t *testing.T) {
	for _, eng := range []Engine{EngineTree, EngineBytecode} {
		eng := eng
		if pt.skipEng[eng] {
			continue
		}
		t.Run(eng.String(), func(t *testing.T) {
			var out strings.Builder
			opts := append([]VMOption{
				WithEngine(eng),
				WithInput(strings.NewReader(pt.input)),
				WithOutput(&out),
			}, pt.opts...)
			vm := New(opts...)
			defer vm.Close()

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			err := vm.Run(ctx, pt.program)
			if pt.wantErr != nil {
				require.Error(t, err)
				assert.Equal(t, pt.wantErr, err, "expected error")
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, pt.wantOut, out.String())
		})
	}
}

type programTests []programTest

func (pts programTests) run(t *testing.T) {
	for _, pt := range pts {
		t.Run(pt.name, pt.run)
	}
}
