package falsevm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lex(t *testing.T, src string) []Token {
	t.Helper()
	tok := NewTokenizer(src)
	var toks []Token
	for {
		tk, ok, err := tok.Next()
		require.NoError(t, err)
		if !ok {
			return toks
		}
		toks = append(toks, tk)
	}
}

func TestTokenizer(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want []Token
	}{
		{"empty", "", nil},
		{"number", "123", []Token{tokNumber(123)}},
		{"char literal", "'a", []Token{tokNumber(int64('a'))}},
		{"variable", "x", []Token{tokVariable('x')}},
		{"arithmetic", "1 2+", []Token{tokNumber(1), tokNumber(2), tokSimple(KindPlus)}},
		{"string", `"hi"`, []Token{tokPrint("hi")}},
		{"comment skipped", "1{ this is a comment }2", []Token{tokNumber(1), tokNumber(2)}},
		{"whitespace insensitive", "  1\t\n2  ", []Token{tokNumber(1), tokNumber(2)}},
		{"pick ascii alias", "1P", []Token{tokNumber(1), tokSimple(KindPick)}},
		{"flushio ascii alias", "B", []Token{tokSimple(KindFlushIO)}},
		{"lambda delimiters", "[1]", []Token{tokSimple(KindLambdaStart), tokNumber(1), tokSimple(KindLambdaEnd)}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, lex(t, c.src))
		})
	}
}

func TestTokenizerErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{"unterminated string", `"abc`},
		{"unterminated comment", `{ abc`},
		{"unterminated char", `'`},
		{"unknown character", "\x01"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tok := NewTokenizer(c.src)
			var err error
			for err == nil {
				var ok bool
				_, ok, err = tok.Next()
				if !ok && err == nil {
					break
				}
			}
			assert.Error(t, err)
		})
	}
}

// TestTokenRoundTrip checks that spelling a token back out with
// Token.String reproduces syntax the tokenizer accepts as the same
// token again (spec.md §8 property 1), for every token that has a
// stable single spelling.
func TestTokenRoundTrip(t *testing.T) {
	toks := lex(t, `1 2+-*/_&|~><=$%\@ 'a x:; ^,.  "hi"`)
	for _, tk := range toks {
		if tk.Kind == KindVariable {
			continue // letters double as their own spelling, nothing to round-trip
		}
		s := tk.String()
		assert.NotEmpty(t, s)
		assert.Equal(t, []Token{tk}, lex(t, s), "round trip of %q", s)
	}
}
