package expr

import (
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokRef
	tokIdent
	tokLParen
	tokRParen
	tokComma
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokGT
	tokGE
	tokLT
	tokLE
	tokEQ
	tokNE
	tokAnd
	tokOr
)

type token struct {
	kind tokenKind
	pos  int // 1-based offset in the source
	text string

	num float64 // tokNumber
	tag RefTag  // tokRef
	id  string  // tokRef
}

// lex tokenizes the whole input up front. The input is short (one formula),
// so a token slice is simpler than a streaming lexer.
func lex(src string) ([]token, *ParseError) {
	var toks []token
	i := 0
	n := len(src)

	for i < n {
		c := src[i]
		pos := i + 1

		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c >= '0' && c <= '9':
			j := i
			for j < n && src[j] >= '0' && src[j] <= '9' {
				j++
			}
			if j < n && src[j] == '.' {
				j++
				if j >= n || src[j] < '0' || src[j] > '9' {
					return nil, errAt(j+1, "expected digits after decimal point")
				}
				for j < n && src[j] >= '0' && src[j] <= '9' {
					j++
				}
			}
			text := src[i:j]
			num, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, errAt(pos, "invalid number %q", text)
			}
			toks = append(toks, token{kind: tokNumber, pos: pos, text: text, num: num})
			i = j

		case c == '$':
			tok, next, perr := lexRef(src, i)
			if perr != nil {
				return nil, perr
			}
			toks = append(toks, tok)
			i = next

		case isIdentStart(c):
			j := i
			for j < n && isIdentPart(src[j]) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, pos: pos, text: src[i:j]})
			i = j

		case c == '(':
			toks = append(toks, token{kind: tokLParen, pos: pos, text: "("})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, pos: pos, text: ")"})
			i++
		case c == ',':
			toks = append(toks, token{kind: tokComma, pos: pos, text: ","})
			i++
		case c == '+':
			toks = append(toks, token{kind: tokPlus, pos: pos, text: "+"})
			i++
		case c == '-':
			toks = append(toks, token{kind: tokMinus, pos: pos, text: "-"})
			i++
		case c == '*':
			toks = append(toks, token{kind: tokStar, pos: pos, text: "*"})
			i++
		case c == '/':
			toks = append(toks, token{kind: tokSlash, pos: pos, text: "/"})
			i++

		case c == '>':
			if i+1 < n && src[i+1] == '=' {
				toks = append(toks, token{kind: tokGE, pos: pos, text: ">="})
				i += 2
			} else {
				toks = append(toks, token{kind: tokGT, pos: pos, text: ">"})
				i++
			}
		case c == '<':
			if i+1 < n && src[i+1] == '=' {
				toks = append(toks, token{kind: tokLE, pos: pos, text: "<="})
				i += 2
			} else {
				toks = append(toks, token{kind: tokLT, pos: pos, text: "<"})
				i++
			}
		case c == '=':
			if i+1 < n && src[i+1] == '=' {
				toks = append(toks, token{kind: tokEQ, pos: pos, text: "=="})
				i += 2
			} else {
				return nil, errAt(pos, "expected '==', got '='")
			}
		case c == '!':
			if i+1 < n && src[i+1] == '=' {
				toks = append(toks, token{kind: tokNE, pos: pos, text: "!="})
				i += 2
			} else {
				return nil, errAt(pos, "expected '!=', got '!'")
			}
		case c == '&':
			if i+1 < n && src[i+1] == '&' {
				toks = append(toks, token{kind: tokAnd, pos: pos, text: "&&"})
				i += 2
			} else {
				return nil, errAt(pos, "expected '&&', got '&'")
			}
		case c == '|':
			if i+1 < n && src[i+1] == '|' {
				toks = append(toks, token{kind: tokOr, pos: pos, text: "||"})
				i += 2
			} else {
				return nil, errAt(pos, "expected '||', got '|'")
			}

		default:
			return nil, errAt(pos, "unexpected character %q", string(c))
		}
	}

	toks = append(toks, token{kind: tokEOF, pos: n + 1, text: ""})
	return toks, nil
}

// lexRef scans ${webhook:ID} or ${monitor:ID} starting at src[i] == '$'.
func lexRef(src string, i int) (token, int, *ParseError) {
	pos := i + 1
	rest := src[i:]

	if !strings.HasPrefix(rest, "${") {
		return token{}, 0, errAt(pos, "expected '${' to open a reference")
	}

	end := strings.IndexByte(rest, '}')
	if end < 0 {
		return token{}, 0, errAt(pos, "unterminated reference, missing '}'")
	}

	body := rest[2:end] // webhook:ID or monitor:ID
	colon := strings.IndexByte(body, ':')
	if colon < 0 {
		return token{}, 0, errAt(pos, "reference must be ${webhook:ID} or ${monitor:ID}")
	}

	tag := RefTag(body[:colon])
	id := body[colon+1:]
	if tag != RefWebhook && tag != RefMonitor {
		return token{}, 0, errAt(pos, "unknown reference tag %q", string(tag))
	}
	if id == "" {
		return token{}, 0, errAt(pos, "reference has empty ID")
	}
	for k := 0; k < len(id); k++ {
		if !isIdentPart(id[k]) && id[k] != '.' {
			return token{}, 0, errAt(pos, "invalid character %q in reference ID", string(id[k]))
		}
	}

	tok := token{kind: tokRef, pos: pos, text: rest[:end+1], tag: tag, id: id}
	return tok, i + end + 1, nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9') || c == '-'
}
