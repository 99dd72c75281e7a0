package falsevm

import "fmt"

// LambdaTable is the parser's output: an ordered list of lambda bodies.
// Entry i is a flat token sequence in which every nested [...] block has
// been replaced by a single LambdaPointer token carrying the index of
// the nested body, also in this table. The last entry is the top-level
// program (the "main" lambda). Lambdas are immutable and live for the
// duration of the program (spec.md §3, §9 "Lambda identity and
// ownership").
type LambdaTable [][]Token

// Main returns the index of the top-level lambda, always the highest
// index in the table.
func (lt LambdaTable) Main() int { return len(lt) - 1 }

// ParseError is a fatal structural failure: unbalanced lambda
// delimiters.
type ParseError struct {
	Pos     Pos
	Message string
}

func (e ParseError) Error() string { return fmt.Sprintf("%v: %s", e.Pos, e.Message) }

// Parser consumes a Tokenizer's output and builds a LambdaTable,
// eliminating LambdaStart/LambdaEnd tokens by extracting every [...]
// block into its own table entry (spec.md §4.2).
type Parser struct {
	tok   *Tokenizer
	table LambdaTable
}

// NewParser returns a Parser reading from tok.
func NewParser(tok *Tokenizer) *Parser {
	return &Parser{tok: tok}
}

// Parse tokenizes and parses the whole program, returning the resulting
// LambdaTable. The main lambda is always table.Main().
func Parse(src string) (LambdaTable, error) {
	p := NewParser(NewTokenizer(src))
	if err := p.parseAll(); err != nil {
		return nil, err
	}
	return p.table, nil
}

func (p *Parser) parseAll() error {
	body, err := p.readBody(true)
	if err != nil {
		return err
	}
	p.table = append(p.table, body)
	return nil
}

// readBody pulls tokens until a matching LambdaEnd (top == false) or
// end of stream (top == true), recursing into readBody for every
// nested LambdaStart it meets. Child lambdas are appended to the table
// before the body that references them returns, so every LambdaPointer
// in entry j satisfies i < j (spec.md §4.2's ordering guarantee).
func (p *Parser) readBody(top bool) ([]Token, error) {
	var body []Token
	for {
		start := p.tok.position()
		tok, ok, err := p.tok.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			if !top {
				return nil, ParseError{start, "unexpected end of input inside lambda"}
			}
			return body, nil
		}

		switch tok.Kind {
		case KindLambdaStart:
			child, err := p.readBody(false)
			if err != nil {
				return nil, err
			}
			idx := len(p.table)
			p.table = append(p.table, child)
			body = append(body, tokLambdaPtr(idx))
		case KindLambdaEnd:
			if top {
				return nil, ParseError{start, "unmatched ]"}
			}
			return body, nil
		default:
			body = append(body, tok)
		}
	}
}
