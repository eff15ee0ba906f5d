package fql

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/HMB-research/fql/internal/value"
)

// Parse turns an FQL script into its ordered statement list. Statements are
// separated by semicolons; a trailing semicolon is optional. On error no
// statements are returned.
func Parse(input string) ([]Statement, error) {
	tokens, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	var statements []Statement
	for {
		for p.cur().Type == TokenSemicolon {
			p.advance()
		}
		if p.cur().Type == TokenEOF {
			return statements, nil
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		statements = append(statements, stmt)
		switch p.cur().Type {
		case TokenSemicolon, TokenEOF:
		default:
			return nil, p.errorAt(p.cur(), "expected ';' or end of input")
		}
	}
}

type parser struct {
	tokens []Token
	pos    int
}

func (p *parser) cur() Token {
	return p.tokens[p.pos]
}

func (p *parser) peek(offset int) Token {
	if p.pos+offset >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+offset]
}

func (p *parser) advance() Token {
	tok := p.tokens[p.pos]
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return tok
}

func (p *parser) errorAt(tok Token, msg string) error {
	return &ParseError{Line: tok.Line, Col: tok.Col, Msg: msg}
}

func (p *parser) expect(typ TokenType) (Token, error) {
	tok := p.cur()
	if tok.Type != typ {
		return Token{}, p.errorAt(tok, "expected "+typ.String())
	}
	return p.advance(), nil
}

func isKeywordTok(tok Token, kw string) bool {
	return tok.Type == TokenIdent && strings.EqualFold(tok.Text, kw)
}

func (p *parser) atKeyword(kw string) bool {
	return isKeywordTok(p.cur(), kw)
}

func (p *parser) expectKeyword(kw string) error {
	if !p.atKeyword(kw) {
		return p.errorAt(p.cur(), "expected "+kw)
	}
	p.advance()
	return nil
}

func (p *parser) parseStatement() (Statement, error) {
	tok := p.cur()
	switch {
	case p.atKeyword("CREATE"):
		p.advance()
		switch {
		case p.atKeyword("ACCOUNT"):
			p.advance()
			return p.parseCreateAccount()
		case p.atKeyword("JOURNAL"):
			p.advance()
			return p.parseCreateJournal()
		case p.atKeyword("RATE"):
			p.advance()
			return p.parseCreateRate()
		}
		return nil, p.errorAt(p.cur(), "expected ACCOUNT, JOURNAL or RATE")
	case p.atKeyword("GET"):
		p.advance()
		return p.parseGet()
	case p.atKeyword("SET"):
		p.advance()
		return p.parseSetRate()
	case p.atKeyword("ACCRUE"):
		p.advance()
		return p.parseAccrue()
	case p.atKeyword("BEGIN"):
		p.advance()
		return &BeginStatement{}, nil
	case p.atKeyword("COMMIT"):
		p.advance()
		return &CommitStatement{}, nil
	case p.atKeyword("ROLLBACK"):
		p.advance()
		return &RollbackStatement{}, nil
	}
	return nil, p.errorAt(tok, "expected statement")
}

var accountTypes = map[string]value.AccountType{
	"ASSET":     value.AccountTypeAsset,
	"LIABILITY": value.AccountTypeLiability,
	"EQUITY":    value.AccountTypeEquity,
	"INCOME":    value.AccountTypeIncome,
	"EXPENSE":   value.AccountTypeExpense,
}

func (p *parser) parseCreateAccount() (Statement, error) {
	account, err := p.expect(TokenAccount)
	if err != nil {
		return nil, err
	}
	tok := p.cur()
	accountType, ok := accountTypes[strings.ToUpper(tok.Text)]
	if tok.Type != TokenIdent || !ok {
		return nil, p.errorAt(tok, "expected account type")
	}
	p.advance()
	return &CreateAccountStatement{AccountID: account.Text, Type: accountType}, nil
}

func (p *parser) parseCreateRate() (Statement, error) {
	id, err := p.expect(TokenIdent)
	if err != nil {
		return nil, err
	}
	return &CreateRateStatement{ID: id.Text}, nil
}

func (p *parser) parseCreateJournal() (Statement, error) {
	date, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenComma); err != nil {
		return nil, err
	}
	amount, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenComma); err != nil {
		return nil, err
	}
	description, err := p.parseExpression()
	if err != nil {
		return nil, err
	}

	var dims []DimensionAssignment
	if p.atKeyword("FOR") {
		p.advance()
		dims, err = p.parseDimensionAssignments()
		if err != nil {
			return nil, err
		}
	}

	ops, err := p.parseLedgerOperations()
	if err != nil {
		return nil, err
	}

	return &CreateJournalStatement{
		Date:        date,
		Amount:      amount,
		Description: description,
		Dimensions:  dims,
		Operations:  ops,
	}, nil
}

// parseDimensionAssignments reads name=expr pairs. The list ends when a comma
// is not followed by another assignment, so the DEBIT/CREDIT operations that
// follow are left untouched.
func (p *parser) parseDimensionAssignments() ([]DimensionAssignment, error) {
	var dims []DimensionAssignment
	for {
		name, err := p.expect(TokenIdent)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenEq); err != nil {
			return nil, err
		}
		val, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		dims = append(dims, DimensionAssignment{Name: name.Text, Value: val})

		next := p.peek(1)
		if p.cur().Type != TokenComma || next.Type != TokenIdent ||
			isKeywordTok(next, "DEBIT") || isKeywordTok(next, "CREDIT") {
			return dims, nil
		}
		p.advance()
	}
}

func (p *parser) parseLedgerOperations() ([]LedgerOperation, error) {
	var ops []LedgerOperation
	for {
		op, err := p.parseLedgerOperation()
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
		if p.cur().Type != TokenComma {
			return ops, nil
		}
		p.advance()
	}
}

func (p *parser) parseLedgerOperation() (LedgerOperation, error) {
	var side OperationSide
	switch {
	case p.atKeyword("DEBIT"):
		side = SideDebit
	case p.atKeyword("CREDIT"):
		side = SideCredit
	default:
		return LedgerOperation{}, p.errorAt(p.cur(), "expected DEBIT or CREDIT")
	}
	p.advance()
	account, err := p.expect(TokenAccount)
	if err != nil {
		return LedgerOperation{}, err
	}

	op := LedgerOperation{Side: side, AccountID: account.Text}
	switch p.cur().Type {
	case TokenComma, TokenSemicolon, TokenEOF:
		return op, nil
	}
	amount, err := p.parseExpression()
	if err != nil {
		return LedgerOperation{}, err
	}
	op.Amount = amount
	return op, nil
}

func (p *parser) parseSetRate() (Statement, error) {
	if err := p.expectKeyword("RATE"); err != nil {
		return nil, err
	}
	id, err := p.expect(TokenIdent)
	if err != nil {
		return nil, err
	}
	rate, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	date, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &SetRateStatement{ID: id.Text, Rate: rate, Date: date}, nil
}

func (p *parser) parseGet() (Statement, error) {
	var projections []Expression
	for {
		proj, err := p.parseProjection()
		if err != nil {
			return nil, err
		}
		projections = append(projections, proj)
		if p.cur().Type != TokenComma {
			return &GetStatement{Projections: projections}, nil
		}
		p.advance()
	}
}

func (p *parser) parseProjection() (Expression, error) {
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if p.atKeyword("AS") {
		p.advance()
		alias, err := p.expect(TokenIdent)
		if err != nil {
			return nil, err
		}
		return &AliasExpression{Source: expr, Alias: alias.Text}, nil
	}
	return expr, nil
}

func (p *parser) parseAccrue() (Statement, error) {
	account, err := p.expect(TokenAccount)
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	start, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("TO"); err != nil {
		return nil, err
	}
	end, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("WITH"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("RATE"); err != nil {
		return nil, err
	}
	rateID, err := p.expect(TokenIdent)
	if err != nil {
		return nil, err
	}

	compounding := CompoundingNone
	if p.atKeyword("COMPOUND") {
		p.advance()
		switch {
		case p.atKeyword("DAILY"):
			compounding = CompoundingDaily
		case p.atKeyword("CONTINUOUS"):
			compounding = CompoundingContinuous
		default:
			return nil, p.errorAt(p.cur(), "expected DAILY or CONTINUOUS")
		}
		p.advance()
	}

	if err := p.expectKeyword("BY"); err != nil {
		return nil, err
	}
	byDimension, err := p.expect(TokenIdent)
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("JOURNAL"); err != nil {
		return nil, err
	}
	date, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenComma); err != nil {
		return nil, err
	}
	description, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	ops, err := p.parseLedgerOperations()
	if err != nil {
		return nil, err
	}

	return &AccrueStatement{
		AccountID:   account.Text,
		RateID:      rateID.Text,
		Compounding: compounding,
		StartDate:   start,
		EndDate:     end,
		ByDimension: byDimension.Text,
		Into: IntoJournal{
			Date:        date,
			Description: description,
			Operations:  ops,
		},
	}, nil
}

// Expression precedence, loosest first: OR, AND, NOT, comparisons/IN,
// additive, multiplicative, modulo, exponent, IS [NOT] NULL, primary.

func (p *parser) parseExpression() (Expression, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (Expression, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("OR") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpression{Op: OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expression, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("AND") {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpression{Op: OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Expression, error) {
	if p.atKeyword("NOT") {
		p.advance()
		expr, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &NotExpression{Expr: expr}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Expression, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		var op BinaryOp
		switch {
		case p.cur().Type == TokenEq:
			op = OpEq
		case p.cur().Type == TokenNe:
			op = OpNe
		case p.cur().Type == TokenLt:
			op = OpLt
		case p.cur().Type == TokenLe:
			op = OpLe
		case p.cur().Type == TokenGt:
			op = OpGt
		case p.cur().Type == TokenGe:
			op = OpGe
		case p.atKeyword("IN"):
			op = OpIn
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpression{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseAdditive() (Expression, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		var op BinaryOp
		switch p.cur().Type {
		case TokenPlus:
			op = OpAdd
		case TokenMinus:
			op = OpSubtract
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpression{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseMultiplicative() (Expression, error) {
	left, err := p.parseModulo()
	if err != nil {
		return nil, err
	}
	for {
		var op BinaryOp
		switch p.cur().Type {
		case TokenStar:
			op = OpMultiply
		case TokenSlash:
			op = OpDivide
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseModulo()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpression{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseModulo() (Expression, error) {
	left, err := p.parseExponent()
	if err != nil {
		return nil, err
	}
	for p.cur().Type == TokenPercent {
		p.advance()
		right, err := p.parseExponent()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpression{Op: OpModulo, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseExponent() (Expression, error) {
	left, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	for p.cur().Type == TokenCaret {
		p.advance()
		right, err := p.parsePostfix()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpression{Op: OpExponent, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parsePostfix() (Expression, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("IS") {
		p.advance()
		negate := false
		if p.atKeyword("NOT") {
			p.advance()
			negate = true
		}
		if err := p.expectKeyword("NULL"); err != nil {
			return nil, err
		}
		expr = &IsNullExpression{Expr: expr, Negate: negate}
	}
	return expr, nil
}

func (p *parser) parsePrimary() (Expression, error) {
	tok := p.cur()
	switch tok.Type {
	case TokenInt:
		p.advance()
		return p.intLiteral(tok, false)
	case TokenDecimal:
		p.advance()
		return p.decimalLiteral(tok, false)
	case TokenPercentage:
		p.advance()
		return p.percentageLiteral(tok, false)
	case TokenDate:
		p.advance()
		d, err := value.ParseDate(tok.Text)
		if err != nil {
			return nil, p.errorAt(tok, "invalid date")
		}
		return &DateLiteral{Value: d}, nil
	case TokenString:
		p.advance()
		return &StringLiteral{Value: tok.Text}, nil
	case TokenAccount:
		p.advance()
		return &AccountLiteral{ID: tok.Text}, nil
	case TokenParam:
		p.advance()
		return &ParameterExpression{Name: tok.Text}, nil
	case TokenMinus:
		next := p.peek(1)
		switch next.Type {
		case TokenInt:
			p.advance()
			p.advance()
			return p.intLiteral(next, true)
		case TokenDecimal:
			p.advance()
			p.advance()
			return p.decimalLiteral(next, true)
		case TokenPercentage:
			p.advance()
			p.advance()
			return p.percentageLiteral(next, true)
		}
		return nil, p.errorAt(tok, "expected expression")
	case TokenLParen:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return expr, nil
	case TokenLBracket:
		p.advance()
		var elements []Expression
		if p.cur().Type != TokenRBracket {
			for {
				elem, err := p.parseExpression()
				if err != nil {
					return nil, err
				}
				elements = append(elements, elem)
				if p.cur().Type != TokenComma {
					break
				}
				p.advance()
			}
		}
		if _, err := p.expect(TokenRBracket); err != nil {
			return nil, err
		}
		return &ListExpression{Elements: elements}, nil
	case TokenIdent:
		return p.parseIdentExpression()
	}
	return nil, p.errorAt(tok, "expected expression")
}

func (p *parser) parseIdentExpression() (Expression, error) {
	tok := p.cur()
	switch {
	case isKeywordTok(tok, "TRUE"):
		p.advance()
		return &BoolLiteral{Value: true}, nil
	case isKeywordTok(tok, "FALSE"):
		p.advance()
		return &BoolLiteral{Value: false}, nil
	case isKeywordTok(tok, "NULL"):
		p.advance()
		return &NullLiteral{}, nil
	case isKeywordTok(tok, "CASE"):
		p.advance()
		return p.parseCase()
	case isKeywordTok(tok, "WITH"):
		p.advance()
		if err := p.expectKeyword("RATE"); err != nil {
			return nil, err
		}
		rate, err := p.expect(TokenIdent)
		if err != nil {
			return nil, err
		}
		return &RateExpression{RateID: rate.Text}, nil
	}

	p.advance()
	switch p.cur().Type {
	case TokenLParen:
		p.advance()
		var args []Expression
		if p.cur().Type != TokenRParen {
			for {
				arg, err := p.parseExpression()
				if err != nil {
					return nil, err
				}
				args = append(args, arg)
				if p.cur().Type != TokenComma {
					break
				}
				p.advance()
			}
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return &FunctionExpression{Name: tok.Text, Args: args, Line: tok.Line, Col: tok.Col}, nil
	case TokenDot:
		p.advance()
		key, err := p.expect(TokenIdent)
		if err != nil {
			return nil, err
		}
		return &PropertyExpression{Name: tok.Text, Key: key.Text}, nil
	case TokenEq:
		p.advance()
		val, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &DimensionExpression{Name: tok.Text, Value: val}, nil
	}
	return &IdentifierExpression{Name: tok.Text}, nil
}

func (p *parser) parseCase() (Expression, error) {
	var match Expression
	if !p.atKeyword("WHEN") {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		match = expr
	}

	var whens []CaseWhen
	for p.atKeyword("WHEN") {
		p.advance()
		when, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("THEN"); err != nil {
			return nil, err
		}
		then, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		whens = append(whens, CaseWhen{When: when, Then: then})
	}
	if len(whens) == 0 {
		return nil, p.errorAt(p.cur(), "expected WHEN")
	}

	var elseExpr Expression
	if p.atKeyword("ELSE") {
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		elseExpr = expr
	}
	if err := p.expectKeyword("END"); err != nil {
		return nil, err
	}
	return &CaseExpression{Match: match, Whens: whens, Else: elseExpr}, nil
}

func (p *parser) intLiteral(tok Token, negate bool) (Expression, error) {
	n, err := strconv.ParseInt(tok.Text, 10, 64)
	if err != nil {
		return nil, p.errorAt(tok, "invalid integer")
	}
	if negate {
		n = -n
	}
	return &IntLiteral{Value: n}, nil
}

func (p *parser) decimalLiteral(tok Token, negate bool) (Expression, error) {
	d, err := decimal.NewFromString(tok.Text)
	if err != nil {
		return nil, p.errorAt(tok, "invalid decimal")
	}
	if negate {
		d = d.Neg()
	}
	return &DecimalLiteral{Value: d}, nil
}

func (p *parser) percentageLiteral(tok Token, negate bool) (Expression, error) {
	d, err := decimal.NewFromString(tok.Text)
	if err != nil {
		return nil, p.errorAt(tok, "invalid percentage")
	}
	if negate {
		d = d.Neg()
	}
	return &PercentageLiteral{Value: d}, nil
}
