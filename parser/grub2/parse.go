package grub2

import (
	"fmt"
	"strings"
)

// stmt is one parsed statement of the grub scripting subset (spec §4.H).
type stmt struct {
	kind string // "assign", "cmd", "if", "for", "while", "func"

	name string   // assign/for variable name, cmd/func name
	raw  string   // assign: unexpanded value
	args []string // cmd: unexpanded argument words

	cond      []string // if/while: unexpanded condition words
	forList   []string // for: unexpanded list words
	block     []stmt   // then-branch / loop body / func body / cmd's trailing { } block
	elseBlock []stmt    // if: else branch
}

// token kinds from the lexer.
const (
	tWord = iota
	tSemi
	tNewline
	tLBrace
	tRBrace
)

type token struct {
	kind int
	text string
}

// lex splits data into words (quote-aware: single/double/backtick, with
// backslash escapes inside double quotes and none inside single quotes)
// plus ';', newline, '{', '}' punctuation and '#'-to-end-of-line
// comments.
func lex(data string) []token {
	var toks []token
	r := []rune(data)
	n := len(r)
	i := 0
	for i < n {
		c := r[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '\n' || c == '\r':
			toks = append(toks, token{tNewline, "\n"})
			i++
		case c == '#':
			for i < n && r[i] != '\n' {
				i++
			}
		case c == ';':
			toks = append(toks, token{tSemi, ";"})
			i++
		case c == '{':
			toks = append(toks, token{tLBrace, "{"})
			i++
		case c == '}':
			toks = append(toks, token{tRBrace, "}"})
			i++
		default:
			start := i
			var b strings.Builder
			for i < n {
				ch := r[i]
				if ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' ||
					ch == ';' || ch == '{' || ch == '}' || ch == '#' {
					break
				}
				switch ch {
				case '\'':
					i++
					for i < n && r[i] != '\'' {
						b.WriteRune(r[i])
						i++
					}
					i++
				case '"':
					i++
					for i < n && r[i] != '"' {
						if r[i] == '\\' && i+1 < n {
							i++
						}
						b.WriteRune(r[i])
						i++
					}
					i++
				case '`':
					i++
					for i < n && r[i] != '`' {
						i++
					}
					i++ // discard backtick command-substitution contents
				default:
					b.WriteRune(ch)
					i++
				}
			}
			if i == start {
				// safety net against a stray punctuation rune falling
				// through the switch above (shouldn't happen).
				i++
				continue
			}
			toks = append(toks, token{tWord, b.String()})
		}
	}
	return toks
}

type tparser struct {
	toks []token
	pos  int
}

func parseScript(data string) ([]stmt, error) {
	tp := &tparser{toks: lex(data)}
	stmts, err := tp.parseStatements(nil)
	return stmts, err
}

func (tp *tparser) peek() *token {
	if tp.pos >= len(tp.toks) {
		return nil
	}
	return &tp.toks[tp.pos]
}

func (tp *tparser) skipSeparators() {
	for {
		t := tp.peek()
		if t != nil && (t.kind == tSemi || t.kind == tNewline) {
			tp.pos++
			continue
		}
		break
	}
}

// atKeyword returns whichever of names the next unconsumed word token
// equals, or "" if it matches none of them.
func (tp *tparser) atKeyword(names ...string) string {
	t := tp.peek()
	if t == nil || t.kind != tWord {
		return ""
	}
	for _, n := range names {
		if t.text == n {
			return n
		}
	}
	return ""
}

// parseStatements parses statements until a terminator keyword (one of
// terminators) is seen at top level, or EOF.
func (tp *tparser) parseStatements(terminators []string) ([]stmt, error) {
	var out []stmt
	for {
		tp.skipSeparators()
		if tp.peek() == nil {
			return out, nil
		}
		if kw := tp.atKeyword(terminators...); kw != "" {
			return out, nil
		}
		st, err := tp.parseStatement()
		if err != nil {
			return out, err
		}
		out = append(out, st)
	}
}

func (tp *tparser) collectWords(stopAt ...string) []string {
	var words []string
	for {
		t := tp.peek()
		if t == nil || t.kind != tWord {
			return words
		}
		for _, s := range stopAt {
			if t.text == s {
				return words
			}
		}
		words = append(words, t.text)
		tp.pos++
	}
}

func (tp *tparser) parseStatement() (stmt, error) {
	t := tp.peek()
	if t == nil {
		return stmt{}, fmt.Errorf("unexpected EOF")
	}

	switch {
	case tp.atKeyword("if") != "":
		return tp.parseIf()
	case tp.atKeyword("for") != "":
		return tp.parseFor()
	case tp.atKeyword("while") != "":
		return tp.parseWhile()
	case tp.atKeyword("function") != "":
		return tp.parseFunc()
	}

	words := tp.collectWords()
	if len(words) == 0 {
		tp.pos++ // skip a stray brace/punct defensively
		return stmt{kind: "cmd"}, nil
	}

	first := words[0]
	if name, val, ok := strings.Cut(first, "="); ok && len(words) == 1 && isIdent(name) {
		return stmt{kind: "assign", name: name, raw: val}, nil
	}

	st := stmt{kind: "cmd", name: first, args: words[1:]}
	if b := tp.peek(); b != nil && b.kind == tLBrace {
		tp.pos++
		block, err := tp.parseBraceBlock()
		if err != nil {
			return stmt{}, err
		}
		st.block = block
	}
	return st, nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			continue
		}
		if i > 0 && r >= '0' && r <= '9' {
			continue
		}
		return false
	}
	return true
}

func (tp *tparser) parseBraceBlock() ([]stmt, error) {
	var out []stmt
	for {
		tp.skipSeparators()
		t := tp.peek()
		if t == nil {
			return out, fmt.Errorf("unterminated block")
		}
		if t.kind == tRBrace {
			tp.pos++
			return out, nil
		}
		st, err := tp.parseStatement()
		if err != nil {
			return out, err
		}
		out = append(out, st)
	}
}

// parseIf: if COND; then BODY [else BODY] fi
func (tp *tparser) parseIf() (stmt, error) {
	tp.pos++ // "if"
	cond := tp.collectWords("then")
	tp.skipSeparators()
	if tp.atKeyword("then") == "" {
		return stmt{}, fmt.Errorf("expected 'then'")
	}
	tp.pos++
	thenBlock, err := tp.parseStatements([]string{"else", "elif", "fi"})
	if err != nil {
		return stmt{}, err
	}
	var elseBlock []stmt
	if tp.atKeyword("elif") != "" {
		elifStmt, err := tp.parseIf()
		if err != nil {
			return stmt{}, err
		}
		elseBlock = []stmt{elifStmt}
		return stmt{kind: "if", cond: cond, block: thenBlock, elseBlock: elseBlock}, nil
	}
	if tp.atKeyword("else") != "" {
		tp.pos++
		elseBlock, err = tp.parseStatements([]string{"fi"})
		if err != nil {
			return stmt{}, err
		}
	}
	tp.skipSeparators()
	if tp.atKeyword("fi") == "" {
		return stmt{}, fmt.Errorf("expected 'fi'")
	}
	tp.pos++
	return stmt{kind: "if", cond: cond, block: thenBlock, elseBlock: elseBlock}, nil
}

// parseFor: for VAR in LIST...; do BODY done
func (tp *tparser) parseFor() (stmt, error) {
	tp.pos++ // "for"
	varName := ""
	if t := tp.peek(); t != nil && t.kind == tWord {
		varName = t.text
		tp.pos++
	}
	if tp.atKeyword("in") != "" {
		tp.pos++
	}
	list := tp.collectWords("do")
	tp.skipSeparators()
	if tp.atKeyword("do") != "" {
		tp.pos++
	}
	body, err := tp.parseStatements([]string{"done"})
	if err != nil {
		return stmt{}, err
	}
	tp.skipSeparators()
	if tp.atKeyword("done") == "" {
		return stmt{}, fmt.Errorf("expected 'done'")
	}
	tp.pos++
	return stmt{kind: "for", name: varName, forList: list, block: body}, nil
}

// parseWhile: while COND; do BODY done
func (tp *tparser) parseWhile() (stmt, error) {
	tp.pos++ // "while"
	cond := tp.collectWords("do")
	tp.skipSeparators()
	if tp.atKeyword("do") != "" {
		tp.pos++
	}
	body, err := tp.parseStatements([]string{"done"})
	if err != nil {
		return stmt{}, err
	}
	tp.skipSeparators()
	if tp.atKeyword("done") == "" {
		return stmt{}, fmt.Errorf("expected 'done'")
	}
	tp.pos++
	return stmt{kind: "while", cond: cond, block: body}, nil
}

// parseFunc: function NAME { BODY }
func (tp *tparser) parseFunc() (stmt, error) {
	tp.pos++ // "function"
	name := ""
	if t := tp.peek(); t != nil && t.kind == tWord {
		name = t.text
		tp.pos++
	}
	tp.skipSeparators()
	if t := tp.peek(); t != nil && t.kind == tLBrace {
		tp.pos++
		body, err := tp.parseBraceBlock()
		if err != nil {
			return stmt{}, err
		}
		return stmt{kind: "func", name: name, block: body}, nil
	}
	return stmt{kind: "func", name: name}, nil
}
