package idl

import "strings"

// Parser is a recursive-descent parser for the description grammar of
// §4.6, producing an immutable AST with a source span on every node.
type Parser struct {
	lex  *lexer
	file string
	cur  Token
}

// Parse parses one description-language source file. file is used only
// for error messages.
func Parse(file, src string) (*Description, error) {
	p := &Parser{lex: newLexer(file, src), file: file}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p.parseDescription()
}

func (p *Parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

func (p *Parser) errHere(format string, args ...any) error {
	return newError(p.file, p.cur.Span, format, args...)
}

func (p *Parser) expectPunct(s string) (Span, error) {
	if p.cur.Kind != TokenPunct || p.cur.Text != s {
		return Span{}, p.errHere("expected %q, got %q", s, p.cur.Text)
	}
	span := p.cur.Span
	return span, p.advance()
}

func (p *Parser) atPunct(s string) bool {
	return p.cur.Kind == TokenPunct && p.cur.Text == s
}

func (p *Parser) expectIdent() (Token, error) {
	if p.cur.Kind != TokenIdent {
		return Token{}, p.errHere("expected identifier, got %q", p.cur.Text)
	}
	tok := p.cur
	return tok, p.advance()
}

func (p *Parser) isIdent(name string) bool {
	return p.cur.Kind == TokenIdent && p.cur.Text == name
}

func (p *Parser) parseDescription() (*Description, error) {
	d := &Description{}

	if p.isIdent("namespace") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		name, err := p.parseDottedName()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct(";"); err != nil {
			return nil, err
		}
		d.Namespace = name
	}

	for p.cur.Kind != TokenEOF {
		decl, err := p.parseDecl()
		if err != nil {
			return nil, err
		}
		d.Decls = append(d.Decls, decl)
	}

	return d, nil
}

func (p *Parser) parseDottedName() (string, error) {
	var sb strings.Builder
	tok, err := p.expectIdent()
	if err != nil {
		return "", err
	}
	sb.WriteString(tok.Text)
	for p.atPunct(".") {
		if err := p.advance(); err != nil {
			return "", err
		}
		tok, err := p.expectIdent()
		if err != nil {
			return "", err
		}
		sb.WriteByte('.')
		sb.WriteString(tok.Text)
	}
	return sb.String(), nil
}

func (p *Parser) parseDecl() (Decl, error) {
	if p.cur.Kind != TokenIdent {
		return Decl{}, p.errHere("expected declaration, got %q", p.cur.Text)
	}

	switch p.cur.Text {
	case "enumerate":
		e, err := p.parseEnumerate()
		return Decl{Enumerate: e}, err
	case "include":
		inc, err := p.parseInclude()
		return Decl{Include: inc}, err
	case "import":
		imp, err := p.parseImport()
		return Decl{Import: imp}, err
	case "external":
		ext, err := p.parseExternal()
		return Decl{External: ext}, err
	case "structure":
		s, err := p.parseStructure()
		return Decl{Structure: s}, err
	case "message":
		m, err := p.parseMessage()
		return Decl{Message: m}, err
	default:
		return Decl{}, p.errHere("unknown declaration %q", p.cur.Text)
	}
}

func (p *Parser) parseEnumerate() (*Enumerate, error) {
	span := p.cur.Span
	if err := p.advance(); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectPunct("{"); err != nil {
		return nil, err
	}

	e := &Enumerate{Name: name.Text, Span: span}
	if !p.atPunct("}") {
		for {
			member, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			e.Members = append(e.Members, member.Text)
			if p.atPunct(",") {
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
	}
	if _, err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	return e, nil
}

func (p *Parser) parseInclude() (*Include, error) {
	span := p.cur.Span
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.cur.Kind != TokenString {
		return nil, p.errHere("expected string literal after include")
	}
	path := p.cur.Text
	if err := p.advance(); err != nil {
		return nil, err
	}

	inc := &Include{Path: path, Span: span}
	if p.atPunct("(") {
		props, err := p.parseProperties()
		if err != nil {
			return nil, err
		}
		inc.Properties = props
	}
	if _, err := p.expectPunct(";"); err != nil {
		return nil, err
	}
	return inc, nil
}

func (p *Parser) parseImport() (*Import, error) {
	span := p.cur.Span
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.cur.Kind != TokenString {
		return nil, p.errHere("expected string literal after import")
	}
	path := p.cur.Text
	if err := p.advance(); err != nil {
		return nil, err
	}
	if _, err := p.expectPunct(";"); err != nil {
		return nil, err
	}
	return &Import{Path: path, Span: span}, nil
}

func (p *Parser) parseExternal() (*External, error) {
	span := p.cur.Span
	if err := p.advance(); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectPunct("("); err != nil {
		return nil, err
	}

	ext := &External{Name: name.Text, Span: span}
	for p.isIdent("language") {
		lang, err := p.parseLanguageBinding()
		if err != nil {
			return nil, err
		}
		ext.Languages = append(ext.Languages, lang)
	}

	if _, err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	if _, err := p.expectPunct(";"); err != nil {
		return nil, err
	}
	return ext, nil
}

func (p *Parser) parseLanguageBinding() (LanguageBinding, error) {
	span := p.cur.Span
	if err := p.advance(); err != nil {
		return LanguageBinding{}, err
	}
	langName, err := p.expectIdent()
	if err != nil {
		return LanguageBinding{}, err
	}
	if p.cur.Kind != TokenString {
		return LanguageBinding{}, p.errHere("expected string literal after language name")
	}
	lb := LanguageBinding{Language: langName.Text, Source: p.cur.Text, Span: span}
	if err := p.advance(); err != nil {
		return LanguageBinding{}, err
	}

	if p.isIdent("from") {
		if err := p.advance(); err != nil {
			return LanguageBinding{}, err
		}
		for p.cur.Kind == TokenString {
			lb.From = append(lb.From, p.cur.Text)
			if err := p.advance(); err != nil {
				return LanguageBinding{}, err
			}
		}
	}

	if p.isIdent("default") {
		if err := p.advance(); err != nil {
			return LanguageBinding{}, err
		}
		if p.cur.Kind != TokenString {
			return LanguageBinding{}, p.errHere("expected string literal after default")
		}
		lb.Default = p.cur.Text
		if err := p.advance(); err != nil {
			return LanguageBinding{}, err
		}
	}

	if p.isIdent("read") {
		if err := p.advance(); err != nil {
			return LanguageBinding{}, err
		}
		if p.cur.Kind != TokenString {
			return LanguageBinding{}, p.errHere("expected string literal after read")
		}
		lb.Reader = p.cur.Text
		if err := p.advance(); err != nil {
			return LanguageBinding{}, err
		}
		if !p.isIdent("write") {
			return LanguageBinding{}, p.errHere("expected write clause after read")
		}
		if err := p.advance(); err != nil {
			return LanguageBinding{}, err
		}
		if p.cur.Kind != TokenString {
			return LanguageBinding{}, p.errHere("expected string literal after write")
		}
		lb.Writer = p.cur.Text
		if err := p.advance(); err != nil {
			return LanguageBinding{}, err
		}
	}

	if _, err := p.expectPunct(";"); err != nil {
		return LanguageBinding{}, err
	}
	return lb, nil
}

func (p *Parser) parseStructure() (*Structure, error) {
	span := p.cur.Span
	if err := p.advance(); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	fields, err := p.parseFieldList()
	if err != nil {
		return nil, err
	}
	return &Structure{Name: name.Text, Fields: fields, Span: span}, nil
}

func (p *Parser) parseMessage() (*Message, error) {
	span := p.cur.Span
	if err := p.advance(); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	fields, err := p.parseFieldList()
	if err != nil {
		return nil, err
	}
	return &Message{Name: name.Text, Fields: fields, Span: span}, nil
}

func (p *Parser) parseFieldList() ([]Field, error) {
	if _, err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	var fields []Field
	for !p.atPunct("}") {
		field, err := p.parseField()
		if err != nil {
			return nil, err
		}
		fields = append(fields, field)
	}
	if _, err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	return fields, nil
}

func (p *Parser) parseField() (Field, error) {
	typeTok, err := p.expectIdent()
	if err != nil {
		return Field{}, err
	}
	f := Field{Type: typeTok.Text, Span: typeTok.Span}

	if p.atPunct("[") {
		arr, err := p.parseArraySpec()
		if err != nil {
			return Field{}, err
		}
		f.Array = arr
	}

	nameTok, err := p.expectIdent()
	if err != nil {
		return Field{}, err
	}
	f.Name = nameTok.Text

	if p.atPunct("(") {
		props, err := p.parseProperties()
		if err != nil {
			return Field{}, err
		}
		f.Properties = props
	}

	if p.atPunct("=") {
		if err := p.advance(); err != nil {
			return Field{}, err
		}
		v, err := p.parseValue()
		if err != nil {
			return Field{}, err
		}
		f.Default = &v
	}

	if _, err := p.expectPunct(";"); err != nil {
		return Field{}, err
	}
	return f, nil
}

// parseArraySpec parses the "[" number? "]" production. It bypasses the
// normal one-token-lookahead advance() for the interior of the brackets:
// the general tokenizer would lex a leading digit run with next(), which
// permits a sign, before lexArrayLength ever saw it. Instead it drives
// the lexer directly so lexArrayLength's stricter, sign-less grammar
// (§9 divergence) actually applies.
func (p *Parser) parseArraySpec() (*ArraySpec, error) {
	if !p.atPunct("[") {
		return nil, p.errHere("expected '['")
	}
	span := p.cur.Span
	l := p.lex

	arr := &ArraySpec{Span: span}
	l.skipSpaceAndComments()
	if l.peek() != ']' {
		n, lenSpan, err := l.lexArrayLength()
		if err != nil {
			return nil, err
		}
		arr.FixedLen = &n
		arr.Span = lenSpan
	}

	l.skipSpaceAndComments()
	if l.peek() != ']' {
		return nil, newError(l.file, l.span(), "expected ']'")
	}
	l.advance()

	if err := p.advance(); err != nil {
		return nil, err
	}
	return arr, nil
}

func (p *Parser) parseValue() (Value, error) {
	switch {
	case p.cur.Kind == TokenNumber:
		v := Value{Kind: ValueNumber, Number: p.cur.Number}
		return v, p.advance()
	case p.cur.Kind == TokenString:
		v := Value{Kind: ValueString, String: p.cur.Text}
		return v, p.advance()
	case p.isIdent("true"):
		return Value{Kind: ValueBool, Bool: true}, p.advance()
	case p.isIdent("false"):
		return Value{Kind: ValueBool, Bool: false}, p.advance()
	default:
		return Value{}, p.errHere("expected a number, string, or boolean literal, got %q", p.cur.Text)
	}
}

// parseProperties parses "(" (kw (":" kw)* | value (":" value)* (":"
// kw)*)? ")" (§4.6). Once a keyword argument (ident "=" value) is seen,
// every remaining item must also be a keyword argument; a positional
// value following a keyword is a DescriptionError (§9 resolved
// ambiguity: "no positional after keyword" is enforced strictly).
func (p *Parser) parseProperties() (*Properties, error) {
	span := p.cur.Span
	if _, err := p.expectPunct("("); err != nil {
		return nil, err
	}

	props := &Properties{Span: span}
	if p.atPunct(")") {
		return props, p.advance()
	}

	seenKeyword := false
	for {
		if p.cur.Kind == TokenIdent && p.isKeywordAhead() {
			kw, err := p.parseKeywordArg()
			if err != nil {
				return nil, err
			}
			seenKeyword = true
			props.Keywords = append(props.Keywords, kw)
		} else {
			if seenKeyword {
				return nil, p.errHere("positional value may not follow a keyword argument")
			}
			v, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			props.Positional = append(props.Positional, v)
		}

		if p.atPunct(":") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}

	if _, err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return props, nil
}

// isKeywordAhead reports whether the parser is positioned at an
// `ident "=" ...` keyword argument without consuming input. It requires
// one token of lookahead past the identifier; since the lexer is
// stateless over the source string, we lex a throwaway copy positioned
// at the current token's offset to peek the following token.
func (p *Parser) isKeywordAhead() bool {
	if p.cur.Kind != TokenIdent {
		return false
	}
	probe := &lexer{file: p.lex.file, src: p.lex.src, pos: p.lex.pos, line: p.lex.line, col: p.lex.col}
	tok, err := probe.next()
	if err != nil {
		return false
	}
	return tok.Kind == TokenPunct && tok.Text == "="
}

func (p *Parser) parseKeywordArg() (KeywordArg, error) {
	nameTok, err := p.expectIdent()
	if err != nil {
		return KeywordArg{}, err
	}
	if _, err := p.expectPunct("="); err != nil {
		return KeywordArg{}, err
	}
	v, err := p.parseValue()
	if err != nil {
		return KeywordArg{}, err
	}
	return KeywordArg{Name: nameTok.Text, Value: v, Span: nameTok.Span}, nil
}
