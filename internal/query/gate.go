package query

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/seanankenbruck/viewpoint-search/internal/schema"
)

// forbiddenKeywords are matched against the raw text, comments and string
// literals included.
var forbiddenKeywords = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|truncate|grant|revoke|execute|exec|create|copy|merge|call|vacuum|into)\b`)

// sqlKeywords are identifiers that never name a table, column or function.
var sqlKeywords = map[string]struct{}{
	"select": {}, "from": {}, "where": {}, "and": {}, "or": {}, "not": {},
	"in": {}, "is": {}, "null": {}, "true": {}, "false": {}, "as": {},
	"on": {}, "join": {}, "inner": {}, "left": {}, "right": {}, "full": {},
	"outer": {}, "cross": {}, "natural": {}, "using": {}, "group": {}, "by": {},
	"order": {}, "asc": {}, "desc": {}, "nulls": {}, "first": {}, "last": {},
	"limit": {}, "offset": {}, "having": {}, "distinct": {}, "case": {},
	"when": {}, "then": {}, "else": {}, "end": {}, "like": {}, "ilike": {},
	"similar": {}, "escape": {}, "between": {}, "exists": {}, "any": {},
	"all": {}, "some": {}, "union": {}, "intersect": {}, "except": {},
	"array": {}, "fetch": {}, "next": {}, "rows": {}, "row": {}, "only": {},
	"lateral": {},
}

// sortClauseEnds close an ORDER BY or GROUP BY clause at its own depth.
var sortClauseEnds = map[string]struct{}{
	"limit": {}, "offset": {}, "having": {}, "fetch": {}, "union": {},
	"intersect": {}, "except": {}, "where": {}, "from": {}, "select": {},
	"order": {},
}

// Gate is the safety gate for candidate queries. It is pure and total:
// every input yields a ValidationResult and nothing is executed.
type Gate struct {
	schema *schema.Descriptor
}

// NewGate creates a Gate backed by the allow-list in desc.
func NewGate(desc *schema.Descriptor) *Gate {
	return &Gate{schema: desc}
}

// Schema returns the descriptor the gate validates against.
func (g *Gate) Schema() *schema.Descriptor {
	return g.schema
}

// Validate applies the rules in order and stops at the first failure:
//
//  1. exactly one statement, so no ';' anywhere
//  2. a read query: no forbidden keyword anywhere and SELECT first
//  3. placeholders are exactly $1..$n for n parameters
//  4. every referenced table, column, function, cast type and operator is allowed
//
// The ValidatedQuery is non-nil only when the result is accepted.
func (g *Gate) Validate(q CandidateQuery) (*ValidatedQuery, ValidationResult) {
	result := g.check(q)
	if !result.Accepted {
		return nil, result
	}
	return &ValidatedQuery{text: q.text, params: copyParams(q.params)}, result
}

// Check is Validate without the ValidatedQuery.
func (g *Gate) Check(q CandidateQuery) ValidationResult {
	return g.check(q)
}

func (g *Gate) check(q CandidateQuery) ValidationResult {
	text := q.text

	if strings.TrimSpace(text) == "" {
		return rejected(ReasonMultiStatement, "query text is empty")
	}
	if idx := strings.IndexByte(text, ';'); idx >= 0 {
		return rejected(ReasonMultiStatement, "statement separator at offset %d", idx)
	}

	if kw := forbiddenKeywords.FindString(text); kw != "" {
		return rejected(ReasonForbiddenKeyword, "forbidden keyword %q", strings.ToUpper(kw))
	}

	toks := lex(text)
	if len(toks) == 0 || !toks[0].is(tokIdent, "select") {
		return rejected(ReasonForbiddenKeyword, "query must start with SELECT")
	}

	if res := checkPlaceholders(toks, len(q.params)); !res.Accepted {
		return res
	}

	return g.checkSchemaRefs(toks)
}

func checkPlaceholders(toks []token, paramCount int) ValidationResult {
	seen := make(map[int]struct{})
	for _, t := range toks {
		if t.kind != tokPlaceholder {
			continue
		}
		n, err := strconv.Atoi(t.text)
		if err != nil || n < 1 || n > paramCount {
			return rejected(ReasonParamMismatch, "placeholder $%s has no matching parameter (%d supplied)", t.text, paramCount)
		}
		seen[n] = struct{}{}
	}
	if len(seen) != paramCount {
		return rejected(ReasonParamMismatch, "%d distinct placeholders for %d parameters", len(seen), paramCount)
	}
	return accepted()
}

// relation is what a table name or alias resolves to. Derived relations are
// parenthesised subqueries whose columns are not known statically.
type relation struct {
	table   string
	derived bool
}

type scope struct {
	relations     map[string]relation
	tables        []string
	outputAliases map[string]struct{}
	consumed      map[int]struct{}
}

func (g *Gate) checkSchemaRefs(toks []token) ValidationResult {
	sc, res := g.collectRelations(toks)
	if !res.Accepted {
		return res
	}

	// Output aliases are only visible to the ORDER BY or GROUP BY clause
	// they appear in. sortDepth is that clause's paren depth, or -1.
	depth, sortDepth := 0, -1

	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if _, done := sc.consumed[i]; done {
			continue
		}

		switch {
		case t.is(tokPunct, "("):
			depth++
		case t.is(tokPunct, ")"):
			depth--
			if depth < sortDepth {
				sortDepth = -1
			}
		case t.is(tokIdent, "by") && i > 0 && (toks[i-1].is(tokIdent, "order") || toks[i-1].is(tokIdent, "group")):
			sortDepth = depth
		case t.kind == tokIdent && depth == sortDepth:
			if _, ends := sortClauseEnds[strings.ToLower(t.text)]; ends {
				sortDepth = -1
			}
		}

		switch t.kind {
		case tokOperator:
			if !g.schema.HasOperator(t.text) {
				return rejected(ReasonUnknownSchemaRef, "operator %q is not allowed", t.text)
			}

		case tokCast:
			if i+1 >= len(toks) || (toks[i+1].kind != tokIdent && toks[i+1].kind != tokQuotedIdent) {
				return rejected(ReasonUnknownSchemaRef, "cast without a type name")
			}
			if !g.schema.HasType(toks[i+1].text) {
				return rejected(ReasonUnknownSchemaRef, "cast type %q is not allowed", toks[i+1].text)
			}
			i++

		case tokIdent, tokQuotedIdent:
			name := t.text
			lower := strings.ToLower(name)
			if t.kind == tokIdent {
				if _, kw := sqlKeywords[lower]; kw {
					continue
				}
			}

			if i+1 < len(toks) && toks[i+1].is(tokPunct, "(") {
				if !g.schema.HasFunction(name) {
					return rejected(ReasonUnknownSchemaRef, "function %q is not allowed", name)
				}
				continue
			}

			if i+1 < len(toks) && toks[i+1].is(tokPunct, ".") {
				rel, ok := sc.relations[lower]
				if !ok {
					return rejected(ReasonUnknownSchemaRef, "unknown table or alias %q", name)
				}
				if i+2 >= len(toks) {
					return rejected(ReasonUnknownSchemaRef, "dangling qualifier %q", name)
				}
				col := toks[i+2]
				switch {
				case col.kind == tokOperator && col.text == "*":
				case col.kind == tokIdent || col.kind == tokQuotedIdent:
					if !g.columnVisible(rel, col.text, sc) {
						return rejected(ReasonUnknownSchemaRef, "unknown column %q on %q", col.text, name)
					}
				default:
					return rejected(ReasonUnknownSchemaRef, "unexpected token %q after %q", col.text, name)
				}
				i += 2
				continue
			}

			// Output aliases resolve only in ORDER BY or GROUP BY. Table aliases
			// resolve only through a qualifier, handled above.
			if _, ok := sc.outputAliases[lower]; ok && depth == sortDepth {
				continue
			}
			if !g.bareColumnVisible(name, sc) {
				return rejected(ReasonUnknownSchemaRef, "unknown column %q", name)
			}
		}
	}

	return accepted()
}

// collectRelations finds every FROM and JOIN target, records aliases and
// select-list output names, and rejects tables outside the allow-list.
func (g *Gate) collectRelations(toks []token) (*scope, ValidationResult) {
	sc := &scope{
		relations:     make(map[string]relation),
		outputAliases: make(map[string]struct{}),
		consumed:      make(map[int]struct{}),
	}

	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.kind != tokIdent {
			continue
		}
		switch strings.ToLower(t.text) {
		case "from", "join":
			listAllowed := strings.EqualFold(t.text, "from")
			j := i + 1
			for {
				next, res := g.collectTableRef(toks, j, sc)
				if !res.Accepted {
					return nil, res
				}
				if listAllowed && next < len(toks) && toks[next].is(tokPunct, ",") {
					j = next + 1
					continue
				}
				break
			}

		case "as":
			if _, done := sc.consumed[i]; done {
				continue
			}
			if i+1 < len(toks) && (toks[i+1].kind == tokIdent || toks[i+1].kind == tokQuotedIdent) {
				sc.outputAliases[strings.ToLower(toks[i+1].text)] = struct{}{}
				sc.consumed[i+1] = struct{}{}
			}
		}
	}

	return sc, accepted()
}

// collectTableRef parses one table reference starting at toks[j] and returns
// the index of the first token after it.
func (g *Gate) collectTableRef(toks []token, j int, sc *scope) (int, ValidationResult) {
	if j >= len(toks) {
		return j, rejected(ReasonUnknownSchemaRef, "missing table after FROM or JOIN")
	}

	var rel relation
	switch {
	case toks[j].is(tokPunct, "("):
		j = matchingParen(toks, j)
		rel = relation{derived: true}

	case toks[j].kind == tokIdent || toks[j].kind == tokQuotedIdent:
		if toks[j].kind == tokIdent {
			if _, kw := sqlKeywords[strings.ToLower(toks[j].text)]; kw {
				return j, rejected(ReasonUnknownSchemaRef, "unsupported table expression %q", toks[j].text)
			}
		}
		name := toks[j].text
		if j+1 < len(toks) && toks[j+1].is(tokPunct, ".") {
			qualified := name
			if j+2 < len(toks) {
				qualified += "." + toks[j+2].text
			}
			return j, rejected(ReasonUnknownSchemaRef, "unknown table %q", qualified)
		}
		if j+1 < len(toks) && toks[j+1].is(tokPunct, "(") {
			return j, rejected(ReasonUnknownSchemaRef, "table function %q is not allowed", name)
		}
		if !g.schema.HasTable(name) {
			return j, rejected(ReasonUnknownSchemaRef, "unknown table %q", name)
		}
		lower := strings.ToLower(name)
		rel = relation{table: lower}
		sc.tables = append(sc.tables, lower)
		sc.relations[lower] = rel
		sc.consumed[j] = struct{}{}
		j++

	default:
		return j, rejected(ReasonUnknownSchemaRef, "unsupported table expression %q", toks[j].text)
	}

	if j < len(toks) && toks[j].is(tokIdent, "as") {
		sc.consumed[j] = struct{}{}
		j++
	}
	if j < len(toks) && (toks[j].kind == tokQuotedIdent || toks[j].kind == tokIdent) {
		_, kw := sqlKeywords[strings.ToLower(toks[j].text)]
		if toks[j].kind == tokQuotedIdent || !kw {
			sc.relations[strings.ToLower(toks[j].text)] = rel
			sc.consumed[j] = struct{}{}
			j++
		}
	}
	return j, accepted()
}

func (g *Gate) columnVisible(rel relation, column string, sc *scope) bool {
	if rel.derived {
		if _, ok := sc.outputAliases[strings.ToLower(column)]; ok {
			return true
		}
		return g.schema.HasAnyColumn(column)
	}
	return g.schema.HasColumn(rel.table, column)
}

func (g *Gate) bareColumnVisible(column string, sc *scope) bool {
	for _, table := range sc.tables {
		if g.schema.HasColumn(table, column) {
			return true
		}
	}
	for _, rel := range sc.relations {
		if rel.derived && g.schema.HasAnyColumn(column) {
			return true
		}
	}
	return false
}

// matchingParen returns the index just past the parenthesis that closes the
// one at toks[open].
func matchingParen(toks []token, open int) int {
	depth := 0
	for k := open; k < len(toks); k++ {
		if toks[k].kind != tokPunct {
			continue
		}
		switch toks[k].text {
		case "(":
			depth++
		case ")":
			depth--
			if depth == 0 {
				return k + 1
			}
		}
	}
	return len(toks)
}
