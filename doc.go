/*
Package falsevm implements an interpreter for FALSE, a stack-oriented
esoteric language built around a single data stack, 26 named variables,
and nestable code blocks called lambdas.

A program source is first tokenized (see Token, Tokenizer), then parsed
into a LambdaTable (see Parser) that extracts every nested [...] block
into its own addressable entry, and finally run to completion by one of
two evaluators:

  - the tree-walking VM, which walks the lambda table directly; and
  - the bytecode VM, which compiles the lambda table into a flat array
    of integer cells and runs a small fetch-decode-execute loop over it.

Both evaluators are reached through the same VM type: New builds one,
configured with VMOption values, and VM.Run drives it to completion
against a pair of byte streams.

This package has no knowledge of process entry points, argument
parsing, or file loading; see cmd/falsevm for that.
*/
package falsevm
