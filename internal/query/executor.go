package query

import (
	"rserv/internal/apperr"
	"rserv/internal/graphidx"
	"rserv/internal/sulpher"
)

// DefaultMaxDepth is used when a request does not override max_depth.
const DefaultMaxDepth = 10

// Binding maps pattern variable names to the node each is currently bound
// to, for one candidate match of a MATCH clause.
type Binding map[string]graphidx.NodeRef

// Row is one fully projected, post-aggregation result row.
type Row map[string]interface{}

// Engine executes Sulpher queries against an edge index.
type Engine struct {
	index *graphidx.Index
}

// New builds an Engine over index.
func New(index *graphidx.Index) *Engine {
	return &Engine{index: index}
}

// Execute runs q to completion (pattern matching, predicate filtering,
// projection, aggregation, ORDER BY, LIMIT) and returns the result rows.
// maxDepth bounds unbounded variable-length edges and caps path search.
func (e *Engine) Execute(q *sulpher.Query, maxDepth int) ([]Row, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	bindings := []Binding{{}}
	for _, clause := range q.Clauses {
		var err error
		bindings, err = e.runClause(clause, bindings, q.Algo, maxDepth)
		if err != nil {
			return nil, err
		}
		if len(bindings) == 0 {
			break
		}
	}

	firstProj := q.Return
	if q.With != nil {
		firstProj = *q.With
	}
	rows, err := e.project(firstProj, bindings)
	if err != nil {
		return nil, err
	}

	if q.With != nil {
		rows = selectColumns(rows, q.Return)
	}

	rows = applyOrderBy(rows, q.OrderBy)
	if q.Limit != nil && len(rows) > *q.Limit {
		rows = rows[:*q.Limit]
	}
	return rows, nil
}

// selectColumns re-labels a WITH-projected row set for the RETURN clause
// that follows it. RETURN items name the same (var, field, agg) shape
// WITH already computed, so they are looked up by column label; a RETURN
// item with no matching WITH column falls back to its bare variable name.
func selectColumns(rows []Row, proj sulpher.Projection) []Row {
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		next := make(Row, len(proj.Items))
		for _, item := range proj.Items {
			label := columnLabel(item)
			if v, ok := row[label]; ok {
				next[label] = v
				continue
			}
			if v, ok := row[item.Var]; ok {
				next[label] = v
			}
		}
		out = append(out, next)
	}
	return out
}

// runClause matches clause against the current set of bindings. For the
// first clause, bindings starts as [{}] (the empty binding) and seeding
// populates it from the index; for subsequent clauses, existing variable
// bindings constrain which nodes satisfy the new pattern too.
func (e *Engine) runClause(clause sulpher.MatchClause, bindings []Binding, algo string, maxDepth int) ([]Binding, error) {
	plan := planSeed(clause)
	if plan.varName == "" {
		return bindings, nil
	}

	var seeded []Binding
	for _, b := range bindings {
		if existing, ok := b[plan.varName]; ok {
			seeded = append(seeded, cloneBinding(b))
			_ = existing
			continue
		}
		for _, node := range e.seedNodes(plan) {
			nb := cloneBinding(b)
			nb[plan.varName] = node
			seeded = append(seeded, nb)
		}
	}

	results := seeded
	for i, edge := range clause.Pattern.Edges {
		fromVar := clause.Pattern.Elements[i].Var
		toElement := clause.Pattern.Elements[i+1]
		var next []Binding
		for _, b := range results {
			next = append(next, e.extend(b, fromVar, edge, toElement, algo, maxDepth)...)
		}
		results = next
		if len(results) == 0 {
			break
		}
	}

	if clause.Where != nil {
		filtered := results[:0]
		for _, b := range results {
			ok, err := evalExpr(clause.Where, b, e.index)
			if err != nil {
				return nil, err
			}
			if ok {
				filtered = append(filtered, b)
			}
		}
		results = filtered
	}

	return results, nil
}

// seedNodes resolves a seed plan's candidate set: an indexed property
// lookup when a constraint narrows it, else every node of the declared
// type, else every node known to the index.
func (e *Engine) seedNodes(plan seedPlan) []graphidx.NodeRef {
	if plan.field != "" {
		return e.index.Lookup(plan.nodeType, plan.field, plan.value)
	}
	if plan.nodeType != "" {
		return e.index.NodesByType(plan.nodeType)
	}
	return e.index.AllNodes()
}

// extend grows binding b by matching edge from the node bound to fromVar
// toward candidate nodes for toElement, handling fixed-length and
// variable-length (*n..m) edges alike. algo ("BFS" or "DFS") selects the
// traversal discipline used to enumerate those candidates.
func (e *Engine) extend(b Binding, fromVar string, edge sulpher.EdgeSpec, toElement sulpher.Element, algo string, maxDepth int) []Binding {
	from, ok := b[fromVar]
	if !ok {
		return nil
	}
	// Edges carry no properties, so a non-empty edge property filter
	// matches no edge.
	if len(edge.Props) > 0 {
		return nil
	}

	minHop, maxHop := 1, 1
	if edge.Variable {
		minHop = edge.MinHop
		maxHop = edge.MaxHop
		if maxHop == 0 {
			maxHop = maxDepth
		}
	}

	candidates := e.reachableWithinHops(from, edge.Labels, minHop, maxHop, algo)

	var out []Binding
	for _, node := range candidates {
		if toElement.Type != "" && !graphidx.MatchesEntity(node.Entity, toElement.Type) {
			continue
		}
		if toElement.Var != "" {
			if existing, bound := b[toElement.Var]; bound && existing != node {
				continue
			}
		}
		nb := cloneBinding(b)
		if toElement.Var != "" {
			nb[toElement.Var] = node
		}
		out = append(out, nb)
	}
	return out
}

// reachableWithinHops returns the distinct nodes reachable from start via
// outbound edges matching labels, at a hop count in [minHop, maxHop],
// enumerated in the order algo ("BFS" or "DFS") prescribes. Both orders
// visit the same reachable set; only the enumeration order of bindings
// (and therefore, absent ORDER BY, the result row order) differs.
func (e *Engine) reachableWithinHops(start graphidx.NodeRef, labels []string, minHop, maxHop int, algo string) []graphidx.NodeRef {
	if algo == "DFS" {
		return e.reachableDFS(start, labels, minHop, maxHop)
	}
	return e.reachableBFS(start, labels, minHop, maxHop)
}

// reachableBFS expands start hop by hop, matching clause.Pattern's default
// traversal discipline.
func (e *Engine) reachableBFS(start graphidx.NodeRef, labels []string, minHop, maxHop int) []graphidx.NodeRef {
	visitedAtHop := map[graphidx.NodeRef]int{start: 0}
	frontier := []graphidx.NodeRef{start}
	var result []graphidx.NodeRef

	for hop := 1; hop <= maxHop; hop++ {
		var next []graphidx.NodeRef
		for _, node := range frontier {
			for _, edge := range e.index.Outbound(node.Entity, node.ID, labels) {
				if _, seen := visitedAtHop[edge.Node]; seen {
					continue
				}
				visitedAtHop[edge.Node] = hop
				next = append(next, edge.Node)
				if hop >= minHop {
					result = append(result, edge.Node)
				}
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}
	return result
}

// reachableDFS walks each outbound branch to maxHop before backtracking to
// the next sibling, per DFS MATCH's declared traversal discipline; ties
// within a node's adjacency are already label/target-id ordered (§4.7), so
// depth-first recursion over that order is itself deterministic. A node
// reached again by a shorter route is walked again from that depth, so each
// node ends at its shortest hop count, as in reachableBFS.
func (e *Engine) reachableDFS(start graphidx.NodeRef, labels []string, minHop, maxHop int) []graphidx.NodeRef {
	depthOf := map[graphidx.NodeRef]int{start: 0}
	var order []graphidx.NodeRef

	var walk func(node graphidx.NodeRef, depth int)
	walk = func(node graphidx.NodeRef, depth int) {
		if depth >= maxHop {
			return
		}
		for _, edge := range e.index.Outbound(node.Entity, node.ID, labels) {
			nextDepth := depth + 1
			d, seen := depthOf[edge.Node]
			if seen && d <= nextDepth {
				continue
			}
			if !seen {
				order = append(order, edge.Node)
			}
			depthOf[edge.Node] = nextDepth
			walk(edge.Node, nextDepth)
		}
	}
	walk(start, 0)

	var result []graphidx.NodeRef
	for _, node := range order {
		if depthOf[node] >= minHop {
			result = append(result, node)
		}
	}
	return result
}

func cloneBinding(b Binding) Binding {
	out := make(Binding, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// fieldValue resolves a FieldRef against a binding: "id" reads the node's
// id, anything else reads the index's property snapshot.
func fieldValue(ref sulpher.FieldRef, b Binding, idx *graphidx.Index) (interface{}, bool) {
	node, ok := b[ref.Var]
	if !ok {
		return nil, false
	}
	if ref.Field == "" || ref.Field == "id" {
		return float64(node.ID), true
	}
	props, ok := idx.Properties(node.Entity, node.ID)
	if !ok {
		return nil, false
	}
	v, present := props[ref.Field]
	return v, present
}

func evalExpr(expr sulpher.Expr, b Binding, idx *graphidx.Index) (bool, error) {
	switch e := expr.(type) {
	case sulpher.Comparison:
		value, present := fieldValue(e.Left, b, idx)
		if !present {
			return false, nil
		}
		return compareValues(value, e.Value, e.Op), nil
	case sulpher.PropertyExists:
		_, present := fieldValue(e.Field, b, idx)
		return present, nil
	case sulpher.BinaryExpr:
		left, err := evalExpr(e.Left, b, idx)
		if err != nil {
			return false, err
		}
		if e.Op == "AND" && !left {
			return false, nil
		}
		if e.Op == "OR" && left {
			return true, nil
		}
		return evalExpr(e.Right, b, idx)
	case sulpher.NotExpr:
		inner, err := evalExpr(e.Inner, b, idx)
		if err != nil {
			return false, err
		}
		return !inner, nil
	case sulpher.NoOutbound:
		node, ok := b[e.Var]
		if !ok {
			return false, nil
		}
		var labels []string
		if e.Label != "" {
			labels = []string{e.Label}
		}
		return len(idx.Outbound(node.Entity, node.ID, labels)) == 0, nil
	default:
		return false, apperr.New(apperr.KindQueryRuntime, "unsupported predicate type %T", expr)
	}
}

func compareValues(a, b interface{}, op string) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return compareOrdered(af, bf, op)
		}
	}
	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			return compareOrdered(compareStrings(as, bs), 0, op)
		}
	}
	switch op {
	case "=":
		return a == b
	case "!=":
		return a != b
	default:
		return false
	}
}

func compareStrings(a, b string) float64 {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareOrdered(a, b float64, op string) bool {
	switch op {
	case "=":
		return a == b
	case "!=":
		return a != b
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case ">=":
		return a >= b
	default:
		return false
	}
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
