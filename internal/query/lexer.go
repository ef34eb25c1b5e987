package query

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokQuotedIdent
	tokString
	tokNumber
	tokPlaceholder
	tokOperator
	tokCast
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) is(kind tokenKind, text string) bool {
	return t.kind == kind && strings.EqualFold(t.text, text)
}

const operatorChars = "+-*/<>=~!@#%^&|`?:$\\"

// lex splits src into tokens. It never fails: unterminated strings and
// comments run to the end of input and unexpected characters become single
// character operator tokens, which the schema check then rejects.
// Comments are dropped.
func lex(src string) []token {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f':
			i++

		case strings.HasPrefix(src[i:], "--"):
			end := strings.IndexByte(src[i:], '\n')
			if end < 0 {
				i = len(src)
			} else {
				i += end + 1
			}

		case strings.HasPrefix(src[i:], "/*"):
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				i = len(src)
			} else {
				i += 2 + end + 2
			}

		case c == '\'':
			end := scanQuoted(src, i, '\'')
			toks = append(toks, token{kind: tokString, text: src[i:end], pos: i})
			i = end

		case c == '"':
			end := scanQuoted(src, i, '"')
			inner := strings.TrimPrefix(src[i:end], `"`)
			inner = strings.TrimSuffix(inner, `"`)
			inner = strings.ReplaceAll(inner, `""`, `"`)
			toks = append(toks, token{kind: tokQuotedIdent, text: inner, pos: i})
			i = end

		case c == '$' && i+1 < len(src) && isDigit(src[i+1]):
			j := i + 1
			for j < len(src) && isDigit(src[j]) {
				j++
			}
			toks = append(toks, token{kind: tokPlaceholder, text: src[i+1 : j], pos: i})
			i = j

		case isDigit(c) || (c == '.' && i+1 < len(src) && isDigit(src[i+1])):
			j := scanNumber(src, i)
			toks = append(toks, token{kind: tokNumber, text: src[i:j], pos: i})
			i = j

		case c == ':' && i+1 < len(src) && src[i+1] == ':':
			toks = append(toks, token{kind: tokCast, text: "::", pos: i})
			i += 2

		case strings.IndexByte("(),.[];", c) >= 0:
			toks = append(toks, token{kind: tokPunct, text: string(c), pos: i})
			i++

		case strings.IndexByte(operatorChars, c) >= 0:
			j := i
			for j < len(src) && strings.IndexByte(operatorChars, src[j]) >= 0 {
				if j > i && (strings.HasPrefix(src[j:], "--") || strings.HasPrefix(src[j:], "/*")) {
					break
				}
				if src[j] == ':' && j+1 < len(src) && src[j+1] == ':' {
					break
				}
				if src[j] == '$' && j+1 < len(src) && isDigit(src[j+1]) {
					break
				}
				j++
			}
			toks = append(toks, token{kind: tokOperator, text: src[i:j], pos: i})
			i = j

		default:
			r, size := utf8.DecodeRuneInString(src[i:])
			if r == '_' || unicode.IsLetter(r) {
				j := i + size
				for j < len(src) {
					r, size = utf8.DecodeRuneInString(src[j:])
					if r != '_' && r != '$' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
						break
					}
					j += size
				}
				toks = append(toks, token{kind: tokIdent, text: src[i:j], pos: i})
				i = j
				continue
			}
			toks = append(toks, token{kind: tokOperator, text: src[i : i+size], pos: i})
			i += size
		}
	}
	return toks
}

// scanQuoted returns the index just past the closing quote starting at
// src[start], treating a doubled quote as an escape.
func scanQuoted(src string, start int, quote byte) int {
	j := start + 1
	for j < len(src) {
		if src[j] == quote {
			if j+1 < len(src) && src[j+1] == quote {
				j += 2
				continue
			}
			return j + 1
		}
		j++
	}
	return len(src)
}

func scanNumber(src string, start int) int {
	j := start
	for j < len(src) && isDigit(src[j]) {
		j++
	}
	if j < len(src) && src[j] == '.' {
		j++
		for j < len(src) && isDigit(src[j]) {
			j++
		}
	}
	if j < len(src) && (src[j] == 'e' || src[j] == 'E') {
		k := j + 1
		if k < len(src) && (src[k] == '+' || src[k] == '-') {
			k++
		}
		if k < len(src) && isDigit(src[k]) {
			j = k
			for j < len(src) && isDigit(src[j]) {
				j++
			}
		}
	}
	return j
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
