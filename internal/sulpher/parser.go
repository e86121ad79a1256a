package sulpher

import (
	"strconv"
	"strings"

	"rserv/internal/apperr"
)

// Parser builds a Query AST from a token stream.
type Parser struct {
	tokens []Token
	pos    int
}

// Parse lexes and parses a Sulpher query string in one call.
func Parse(input string) (*Query, error) {
	tokens, err := NewLexer(input).Tokenize()
	if err != nil {
		return nil, err
	}
	p := &Parser{tokens: tokens}
	return p.parseQuery()
}

func (p *Parser) cur() Token  { return p.tokens[p.pos] }
func (p *Parser) advance() Token {
	t := p.tokens[p.pos]
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) isKeyword(kw string) bool {
	t := p.cur()
	return t.Type == TokenKeyword && t.Text == kw
}

func (p *Parser) expect(tt TokenType, desc string) (Token, error) {
	if p.cur().Type != tt {
		return Token{}, p.errf(desc)
	}
	return p.advance(), nil
}

func (p *Parser) expectKeyword(kw string) error {
	if !p.isKeyword(kw) {
		return p.errf(kw)
	}
	p.advance()
	return nil
}

func (p *Parser) errf(expected string) error {
	t := p.cur()
	return apperr.New(apperr.KindQuerySyntax, "expected %s but found %q", expected, t.Text).WithToken(t.Text, t.Pos)
}

func (p *Parser) parseQuery() (*Query, error) {
	q := &Query{Algo: "BFS"}

	if p.isKeyword("BFS") || p.isKeyword("DFS") {
		q.Algo = p.advance().Text
	}

	for p.isKeyword("MATCH") {
		clause, err := p.parseMatchClause()
		if err != nil {
			return nil, err
		}
		q.Clauses = append(q.Clauses, clause)
	}
	if len(q.Clauses) == 0 {
		return nil, p.errf("MATCH")
	}

	if p.isKeyword("WITH") {
		p.advance()
		proj, err := p.parseProjection()
		if err != nil {
			return nil, err
		}
		q.With = &proj
	}

	if err := p.expectKeyword("RETURN"); err != nil {
		return nil, err
	}
	ret, err := p.parseProjection()
	if err != nil {
		return nil, err
	}
	q.Return = ret

	if p.isKeyword("ORDER") {
		p.advance()
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			term, err := p.parseOrderTerm()
			if err != nil {
				return nil, err
			}
			q.OrderBy = append(q.OrderBy, term)
			if p.cur().Type == TokenComma {
				p.advance()
				continue
			}
			break
		}
	}

	if p.isKeyword("LIMIT") {
		p.advance()
		tok, err := p.expect(TokenNumber, "a limit integer")
		if err != nil {
			return nil, err
		}
		n, _ := strconv.Atoi(tok.Text)
		q.Limit = &n
	}

	if p.cur().Type != TokenEOF {
		return nil, p.errf("end of query")
	}
	return q, nil
}

func (p *Parser) parseMatchClause() (MatchClause, error) {
	if err := p.expectKeyword("MATCH"); err != nil {
		return MatchClause{}, err
	}
	pattern, err := p.parsePattern()
	if err != nil {
		return MatchClause{}, err
	}
	clause := MatchClause{Pattern: pattern}
	if p.isKeyword("WHERE") {
		p.advance()
		expr, err := p.parseExpr()
		if err != nil {
			return MatchClause{}, err
		}
		clause.Where = expr
	}
	return clause, nil
}

func (p *Parser) parsePattern() (Pattern, error) {
	var pattern Pattern
	first, err := p.parseElement()
	if err != nil {
		return pattern, err
	}
	pattern.Elements = append(pattern.Elements, first)

	for p.cur().Type == TokenDash {
		p.advance()
		edge, err := p.parseEdgeSpec()
		if err != nil {
			return pattern, err
		}
		if _, err := p.expect(TokenArrow, "->"); err != nil {
			return pattern, err
		}
		next, err := p.parseElement()
		if err != nil {
			return pattern, err
		}
		pattern.Edges = append(pattern.Edges, edge)
		pattern.Elements = append(pattern.Elements, next)
	}
	return pattern, nil
}

func (p *Parser) parseElement() (Element, error) {
	if _, err := p.expect(TokenLParen, "("); err != nil {
		return Element{}, err
	}
	var el Element
	if p.cur().Type == TokenIdent {
		el.Var = p.advance().Text
	}
	if p.cur().Type == TokenColon {
		p.advance()
		tok, err := p.expect(TokenIdent, "a node type")
		if err != nil {
			return Element{}, err
		}
		el.Type = tok.Text
	}
	if p.cur().Type == TokenLBrace {
		props, err := p.parseProps()
		if err != nil {
			return Element{}, err
		}
		el.Props = props
	}
	if _, err := p.expect(TokenRParen, ")"); err != nil {
		return Element{}, err
	}
	return el, nil
}

func (p *Parser) parseEdgeSpec() (EdgeSpec, error) {
	if _, err := p.expect(TokenLBracket, "["); err != nil {
		return EdgeSpec{}, err
	}
	var edge EdgeSpec
	if p.cur().Type == TokenIdent {
		edge.Var = p.advance().Text
	}
	if p.cur().Type == TokenColon {
		p.advance()
		tok, err := p.expect(TokenIdent, "an edge label")
		if err != nil {
			return EdgeSpec{}, err
		}
		edge.Labels = append(edge.Labels, strings.ToUpper(tok.Text))
		for p.cur().Type == TokenPipe {
			p.advance()
			tok, err := p.expect(TokenIdent, "an edge label")
			if err != nil {
				return EdgeSpec{}, err
			}
			edge.Labels = append(edge.Labels, strings.ToUpper(tok.Text))
		}
	}
	if p.cur().Type == TokenStar {
		p.advance()
		edge.Variable = true
		edge.MinHop = 1
		edge.MaxHop = 0 // 0 means unbounded until the executor resolves it to max_depth
		if p.cur().Type == TokenNumber {
			n, _ := strconv.Atoi(p.advance().Text)
			edge.MinHop = n
			edge.MaxHop = n
		}
		if p.cur().Type == TokenDotDot {
			p.advance()
			if p.cur().Type == TokenNumber {
				n, _ := strconv.Atoi(p.advance().Text)
				edge.MaxHop = n
			} else {
				edge.MaxHop = 0
			}
		}
	}
	if p.cur().Type == TokenLBrace {
		props, err := p.parseProps()
		if err != nil {
			return EdgeSpec{}, err
		}
		edge.Props = props
	}
	if _, err := p.expect(TokenRBracket, "]"); err != nil {
		return EdgeSpec{}, err
	}
	return edge, nil
}

func (p *Parser) parseProps() (map[string]interface{}, error) {
	if _, err := p.expect(TokenLBrace, "{"); err != nil {
		return nil, err
	}
	props := make(map[string]interface{})
	for {
		keyTok, err := p.expect(TokenIdent, "a property name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenColon, ":"); err != nil {
			return nil, err
		}
		value, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		props[keyTok.Text] = value
		if p.cur().Type == TokenComma {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(TokenRBrace, "}"); err != nil {
		return nil, err
	}
	return props, nil
}

func (p *Parser) parseLiteral() (interface{}, error) {
	t := p.cur()
	switch {
	case t.Type == TokenNumber:
		p.advance()
		if strings.Contains(t.Text, ".") {
			f, _ := strconv.ParseFloat(t.Text, 64)
			return f, nil
		}
		n, _ := strconv.ParseInt(t.Text, 10, 64)
		return float64(n), nil
	case t.Type == TokenString:
		p.advance()
		return t.Text, nil
	case t.Type == TokenKeyword && t.Text == "TRUE":
		p.advance()
		return true, nil
	case t.Type == TokenKeyword && t.Text == "FALSE":
		p.advance()
		return false, nil
	case t.Type == TokenKeyword && t.Text == "NULL":
		p.advance()
		return nil, nil
	default:
		return nil, p.errf("a literal value")
	}
}

// parseExpr parses the lowest-precedence OR level.
func (p *Parser) parseExpr() (Expr, error) {
	left, err := p.parseAndExpr()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("OR") {
		p.advance()
		right, err := p.parseAndExpr()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Op: "OR", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAndExpr() (Expr, error) {
	left, err := p.parseUnaryExpr()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("AND") {
		p.advance()
		right, err := p.parseUnaryExpr()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Op: "AND", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnaryExpr() (Expr, error) {
	if p.isKeyword("NOT") {
		p.advance()
		if noOut, ok, err := p.tryParseNoOutbound(); err != nil {
			return nil, err
		} else if ok {
			return noOut, nil
		}
		inner, err := p.parseUnaryExpr()
		if err != nil {
			return nil, err
		}
		return NotExpr{Inner: inner}, nil
	}
	return p.parsePrimaryExpr()
}

// tryParseNoOutbound attempts the "(x)-[:L]->()" shape right after a
// consumed NOT keyword. It only commits (advances) if the shape matches.
func (p *Parser) tryParseNoOutbound() (Expr, bool, error) {
	if p.cur().Type != TokenLParen {
		return nil, false, nil
	}
	start := p.pos
	p.advance() // (
	var varName string
	if p.cur().Type == TokenIdent {
		varName = p.advance().Text
	}
	if p.cur().Type != TokenRParen {
		p.pos = start
		return nil, false, nil
	}
	p.advance() // )
	if p.cur().Type != TokenDash {
		p.pos = start
		return nil, false, nil
	}
	p.advance() // -
	edge, err := p.parseEdgeSpec()
	if err != nil {
		p.pos = start
		return nil, false, nil
	}
	if p.cur().Type != TokenArrow {
		p.pos = start
		return nil, false, nil
	}
	p.advance() // ->
	if p.cur().Type != TokenLParen {
		p.pos = start
		return nil, false, nil
	}
	p.advance() // (
	if p.cur().Type != TokenRParen {
		p.pos = start
		return nil, false, nil
	}
	p.advance() // )
	label := ""
	if len(edge.Labels) > 0 {
		label = edge.Labels[0]
	}
	return NoOutbound{Var: varName, Label: label}, true, nil
}

func (p *Parser) parsePrimaryExpr() (Expr, error) {
	if p.isKeyword("EXISTS") {
		p.advance()
		if _, err := p.expect(TokenLParen, "("); err != nil {
			return nil, err
		}
		ref, err := p.parseFieldRef()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen, ")"); err != nil {
			return nil, err
		}
		return PropertyExists{Field: ref}, nil
	}
	if p.cur().Type == TokenLParen {
		p.advance()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen, ")"); err != nil {
			return nil, err
		}
		return inner, nil
	}

	ref, err := p.parseFieldRef()
	if err != nil {
		return nil, err
	}
	op, err := p.parseCompareOp()
	if err != nil {
		return nil, err
	}
	value, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	return Comparison{Left: ref, Op: op, Value: value}, nil
}

func (p *Parser) parseCompareOp() (string, error) {
	t := p.cur()
	switch t.Type {
	case TokenEquals, TokenNotEquals, TokenLess, TokenLessEq, TokenGreater, TokenGreaterEq:
		p.advance()
		return t.Text, nil
	default:
		return "", p.errf("a comparison operator")
	}
}

func (p *Parser) parseFieldRef() (FieldRef, error) {
	tok, err := p.expect(TokenIdent, "a variable")
	if err != nil {
		return FieldRef{}, err
	}
	ref := FieldRef{Var: tok.Text}
	if p.cur().Type == TokenDot {
		p.advance()
		field, err := p.expect(TokenIdent, "a field name")
		if err != nil {
			return FieldRef{}, err
		}
		ref.Field = field.Text
	}
	return ref, nil
}

func (p *Parser) parseProjection() (Projection, error) {
	var proj Projection
	for {
		item, err := p.parseProjectionItem()
		if err != nil {
			return proj, err
		}
		proj.Items = append(proj.Items, item)
		if p.cur().Type == TokenComma {
			p.advance()
			continue
		}
		break
	}
	return proj, nil
}

var aggKeywords = map[string]bool{"COUNT": true, "SUM": true, "AVG": true, "MIN": true, "MAX": true, "DISTINCT": true}

func (p *Parser) parseProjectionItem() (ProjectionItem, error) {
	if p.cur().Type == TokenKeyword && aggKeywords[p.cur().Text] {
		agg := p.advance().Text
		if _, err := p.expect(TokenLParen, "("); err != nil {
			return ProjectionItem{}, err
		}
		item := ProjectionItem{Agg: agg}
		if p.cur().Type == TokenStar {
			p.advance()
		} else {
			ref, err := p.parseFieldRef()
			if err != nil {
				return ProjectionItem{}, err
			}
			item.Var = ref.Var
			item.Field = ref.Field
		}
		if _, err := p.expect(TokenRParen, ")"); err != nil {
			return ProjectionItem{}, err
		}
		return item, nil
	}

	ref, err := p.parseFieldRef()
	if err != nil {
		return ProjectionItem{}, err
	}
	return ProjectionItem{Var: ref.Var, Field: ref.Field}, nil
}

func (p *Parser) parseOrderTerm() (OrderTerm, error) {
	item, err := p.parseProjectionItem()
	if err != nil {
		return OrderTerm{}, err
	}
	term := OrderTerm{Var: item.Var, Field: item.Field, Agg: item.Agg}
	if p.isKeyword("ASC") {
		p.advance()
	} else if p.isKeyword("DESC") {
		p.advance()
		term.Desc = true
	}
	return term, nil
}
