package idl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func lexAll(t *testing.T, src string) []Token {
	t.Helper()
	l := newLexer("test.desc", src)
	var toks []Token
	for {
		tok, err := l.next()
		require.NoError(t, err)
		toks = append(toks, tok)
		if tok.Kind == TokenEOF {
			return toks
		}
	}
}

func TestLexIdentifiersAndPunct(t *testing.T) {
	toks := lexAll(t, "structure Foo { }")
	require.Equal(t, TokenIdent, toks[0].Kind)
	require.Equal(t, "structure", toks[0].Text)
	require.Equal(t, TokenIdent, toks[1].Kind)
	require.Equal(t, "Foo", toks[1].Text)
	require.Equal(t, TokenPunct, toks[2].Kind)
	require.Equal(t, "{", toks[2].Text)
	require.Equal(t, TokenPunct, toks[3].Kind)
	require.Equal(t, "}", toks[3].Text)
	require.Equal(t, TokenEOF, toks[4].Kind)
}

func TestLexCommentsAndWhitespaceSkipped(t *testing.T) {
	toks := lexAll(t, "# a comment\n  foo # trailing\n")
	require.Equal(t, TokenIdent, toks[0].Kind)
	require.Equal(t, "foo", toks[0].Text)
	require.Equal(t, TokenEOF, toks[1].Kind)
}

func TestLexNumbers(t *testing.T) {
	toks := lexAll(t, "1 -2 +3 1.5 -1.5e3 2E-2")
	require.Equal(t, TokenNumber, toks[0].Kind)
	require.Equal(t, float64(1), toks[0].Number)
	require.Equal(t, float64(-2), toks[1].Number)
	require.Equal(t, float64(3), toks[2].Number)
	require.Equal(t, float64(1.5), toks[3].Number)
	require.Equal(t, float64(-1500), toks[4].Number)
	require.Equal(t, float64(0.02), toks[5].Number)
}

func TestLexDigitLeadingIdentifier(t *testing.T) {
	toks := lexAll(t, "3d")
	require.Equal(t, TokenIdent, toks[0].Kind)
	require.Equal(t, "3d", toks[0].Text)
}

func TestLexMalformedExponent(t *testing.T) {
	l := newLexer("test.desc", "1e")
	_, err := l.next()
	require.Error(t, err)
	require.Contains(t, err.Error(), "malformed exponent")
}

func TestLexStringEscapes(t *testing.T) {
	toks := lexAll(t, `"a\nb\tc\\d\"e"`)
	require.Equal(t, TokenString, toks[0].Kind)
	require.Equal(t, "a\nb\tc\\d\"e", toks[0].Text)
}

func TestLexStringUnknownEscapePassesThrough(t *testing.T) {
	toks := lexAll(t, `"\q"`)
	require.Equal(t, "q", toks[0].Text)
}

func TestLexStringUnterminatedAtEOF(t *testing.T) {
	l := newLexer("test.desc", `"abc`)
	_, err := l.next()
	require.Error(t, err)
	require.Contains(t, err.Error(), "unterminated string literal")
}

func TestLexStringUnterminatedAtNewline(t *testing.T) {
	l := newLexer("test.desc", "\"abc\ndef\"")
	_, err := l.next()
	require.Error(t, err)
	require.Contains(t, err.Error(), "unterminated string literal")
}

func TestLexArrayLengthRejectsSign(t *testing.T) {
	l := newLexer("test.desc", "-1]")
	_, _, err := l.lexArrayLength()
	require.Error(t, err)
}

func TestLexArrayLengthAcceptsDigits(t *testing.T) {
	l := newLexer("test.desc", "42]")
	n, _, err := l.lexArrayLength()
	require.NoError(t, err)
	require.Equal(t, 42, n)
}

func TestLexUnexpectedCharacter(t *testing.T) {
	l := newLexer("test.desc", "@")
	_, err := l.next()
	require.Error(t, err)
	var de *DescriptionError
	require.ErrorAs(t, err, &de)
	require.Equal(t, 1, de.Line)
	require.Equal(t, 1, de.Col)
}
