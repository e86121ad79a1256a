// Package query implements the planner and executor of §4.7: seed
// selection, BFS/DFS pattern extension over the edge index, WHERE
// filtering, aggregation, and ORDER BY/LIMIT. WHERE is evaluated once per
// fully extended binding; it is not pushed down into the extension steps.
package query

import "rserv/internal/sulpher"

// seedPlan names which pattern variable to seed bindings from, and how.
type seedPlan struct {
	varName  string
	nodeType string
	field    string // non-empty if an equality constraint narrows the seed
	value    interface{}
}

// planSeed picks the seed variable for clause, per §4.7's ordering:
// 1. the variable most constrained by a WHERE equality on a property,
// 2. else the variable whose pattern element carries a type + inline
//    property constraint,
// 3. else the first pattern element.
func planSeed(clause sulpher.MatchClause) seedPlan {
	elementType := make(map[string]string, len(clause.Pattern.Elements))
	elementOrder := make([]string, 0, len(clause.Pattern.Elements))
	for _, el := range clause.Pattern.Elements {
		if el.Var == "" {
			continue
		}
		elementType[el.Var] = el.Type
		elementOrder = append(elementOrder, el.Var)
	}

	if clause.Where != nil {
		if field, value, v, ok := firstEqualityConstraint(clause.Where); ok {
			return seedPlan{varName: v, nodeType: elementType[v], field: field, value: value}
		}
	}

	for _, el := range clause.Pattern.Elements {
		if el.Var == "" {
			continue
		}
		if el.Type != "" && len(el.Props) > 0 {
			for field, value := range el.Props {
				return seedPlan{varName: el.Var, nodeType: el.Type, field: field, value: value}
			}
		}
	}

	if len(elementOrder) > 0 {
		first := clause.Pattern.Elements[0]
		return seedPlan{varName: first.Var, nodeType: first.Type}
	}
	return seedPlan{}
}

// firstEqualityConstraint scans expr (which may be a conjunction) for the
// first top-level `Var.Field = literal` comparison.
func firstEqualityConstraint(expr sulpher.Expr) (field string, value interface{}, varName string, ok bool) {
	for _, conjunct := range splitAnd(expr) {
		if cmp, isCmp := conjunct.(sulpher.Comparison); isCmp && cmp.Op == "=" && cmp.Left.Field != "" {
			return cmp.Left.Field, cmp.Value, cmp.Left.Var, true
		}
	}
	return "", nil, "", false
}

// splitAnd flattens the top-level AND-conjunction of expr into its parts.
// OR and non-binary nodes are returned as a single-element slice.
func splitAnd(expr sulpher.Expr) []sulpher.Expr {
	if expr == nil {
		return nil
	}
	if bin, ok := expr.(sulpher.BinaryExpr); ok && bin.Op == "AND" {
		return append(splitAnd(bin.Left), splitAnd(bin.Right)...)
	}
	return []sulpher.Expr{expr}
}
