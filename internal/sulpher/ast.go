package sulpher

// Query is the top-level parsed Sulpher statement, per §4.6's grammar.
type Query struct {
	Algo     string // "BFS" or "DFS", default "BFS"
	Clauses  []MatchClause
	With     *Projection
	Return   Projection
	OrderBy  []OrderTerm
	Limit    *int
}

// MatchClause is one MATCH pattern with an optional WHERE predicate.
type MatchClause struct {
	Pattern Pattern
	Where   Expr
}

// Pattern is a chain of elements connected by edge specs:
// Elements[0] -Edges[0]-> Elements[1] -Edges[1]-> Elements[2] ...
type Pattern struct {
	Elements []Element
	Edges    []EdgeSpec
}

// Element is one node reference in a pattern: (var:Type {props}).
type Element struct {
	Var   string
	Type  string
	Props map[string]interface{}
}

// EdgeSpec is one edge reference in a pattern: [var:LABEL|LABEL2*n..m{props}].
type EdgeSpec struct {
	Var      string
	Labels   []string
	MinHop   int
	MaxHop   int
	Variable bool // true if a *range was present at all
	Props    map[string]interface{}
	Negated  bool // NOT (x)-[:L]->() form
}

// Expr is a WHERE predicate node.
type Expr interface{ isExpr() }

// FieldRef names a bound variable's field, or just the variable itself
// when Field is empty.
type FieldRef struct {
	Var   string
	Field string
}

// Comparison is `Var.Field <op> Literal`.
type Comparison struct {
	Left  FieldRef
	Op    string // "=", "!=", "<", "<=", ">", ">="
	Value interface{}
}

func (Comparison) isExpr() {}

// PropertyExists is `EXISTS(Var.Field)`.
type PropertyExists struct {
	Field FieldRef
}

func (PropertyExists) isExpr() {}

// BinaryExpr is `Left AND|OR Right`.
type BinaryExpr struct {
	Op    string
	Left  Expr
	Right Expr
}

func (BinaryExpr) isExpr() {}

// NotExpr is `NOT Inner`.
type NotExpr struct {
	Inner Expr
}

func (NotExpr) isExpr() {}

// NoOutbound is `NOT (Var)-[:Label]->()`  — "Var has no outbound Label edge".
type NoOutbound struct {
	Var   string
	Label string
}

func (NoOutbound) isExpr() {}

// Projection is a RETURN/WITH clause: an ordered list of items.
type Projection struct {
	Items []ProjectionItem
}

// ProjectionItem is one projected column: a bare variable, a field
// reference, or an aggregation call.
type ProjectionItem struct {
	Var      string
	Field    string
	Agg      string // "COUNT", "SUM", "AVG", "MIN", "MAX", "DISTINCT", or ""
	Alias    string
}

// OrderTerm is one ORDER BY column.
type OrderTerm struct {
	Var   string
	Field string
	Agg   string
	Desc  bool
}
