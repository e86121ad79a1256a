package query

import (
	"fmt"
	"sort"

	"rserv/internal/apperr"
	"rserv/internal/graphidx"
	"rserv/internal/sulpher"
)

// columnLabel is the result-row key a projection item is stored under.
func columnLabel(item sulpher.ProjectionItem) string {
	if item.Agg != "" {
		if item.Var == "" {
			return fmt.Sprintf("%s(*)", item.Agg)
		}
		if item.Field == "" {
			return fmt.Sprintf("%s(%s)", item.Agg, item.Var)
		}
		return fmt.Sprintf("%s(%s.%s)", item.Agg, item.Var, item.Field)
	}
	if item.Field == "" {
		return item.Var
	}
	return fmt.Sprintf("%s.%s", item.Var, item.Field)
}

// project materialises proj over bindings. When proj has no aggregation
// items, it emits one row per binding. When it does, bindings are grouped
// by the non-aggregate projection columns (SQL group-by semantics) and one
// row is emitted per group.
func (e *Engine) project(proj sulpher.Projection, bindings []Binding) ([]Row, error) {
	hasAgg := false
	for _, item := range proj.Items {
		if item.Agg != "" {
			hasAgg = true
			break
		}
	}

	if !hasAgg {
		rows := make([]Row, 0, len(bindings))
		for _, b := range bindings {
			row := make(Row, len(proj.Items))
			for _, item := range proj.Items {
				value, _ := fieldValue(sulpher.FieldRef{Var: item.Var, Field: item.Field}, b, e.index)
				row[columnLabel(item)] = value
			}
			rows = append(rows, row)
		}
		return rows, nil
	}

	return e.projectAggregated(proj, bindings)
}

func (e *Engine) projectAggregated(proj sulpher.Projection, bindings []Binding) ([]Row, error) {
	var groupItems, aggItems []sulpher.ProjectionItem
	for _, item := range proj.Items {
		if item.Agg == "" {
			groupItems = append(groupItems, item)
		} else {
			aggItems = append(aggItems, item)
		}
	}

	type group struct {
		key    []interface{}
		values Row
		group  []Binding
	}
	order := []string{}
	groups := map[string]*group{}

	for _, b := range bindings {
		key := make([]interface{}, len(groupItems))
		values := make(Row, len(groupItems))
		for i, item := range groupItems {
			v, _ := fieldValue(sulpher.FieldRef{Var: item.Var, Field: item.Field}, b, e.index)
			key[i] = v
			values[columnLabel(item)] = v
		}
		keyStr := fmt.Sprintf("%v", key)
		g, ok := groups[keyStr]
		if !ok {
			g = &group{key: key, values: values}
			groups[keyStr] = g
			order = append(order, keyStr)
		}
		g.group = append(g.group, b)
	}

	rows := make([]Row, 0, len(order))
	for _, k := range order {
		g := groups[k]
		row := make(Row, len(proj.Items))
		for col, v := range g.values {
			row[col] = v
		}
		for _, item := range aggItems {
			value, err := aggregate(item, g.group, e.index)
			if err != nil {
				return nil, err
			}
			row[columnLabel(item)] = value
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func aggregate(item sulpher.ProjectionItem, group []Binding, idx *graphidx.Index) (interface{}, error) {
	switch item.Agg {
	case "COUNT":
		if item.Var == "" {
			return float64(len(group)), nil
		}
		count := 0
		for _, b := range group {
			if _, ok := b[item.Var]; ok {
				count++
			}
		}
		return float64(count), nil
	case "DISTINCT":
		seen := map[interface{}]bool{}
		for _, b := range group {
			v, ok := fieldValue(sulpher.FieldRef{Var: item.Var, Field: item.Field}, b, idx)
			if ok {
				seen[v] = true
			}
		}
		return float64(len(seen)), nil
	case "SUM", "AVG", "MIN", "MAX":
		var values []float64
		for _, b := range group {
			v, ok := fieldValue(sulpher.FieldRef{Var: item.Var, Field: item.Field}, b, idx)
			if !ok {
				continue
			}
			f, numeric := asFloat(v)
			if !numeric {
				return nil, apperr.New(apperr.KindValidation, "cannot aggregate non-numeric value for %s.%s", item.Var, item.Field)
			}
			values = append(values, f)
		}
		return reduceNumeric(item.Agg, values), nil
	default:
		return nil, apperr.New(apperr.KindQueryRuntime, "unsupported aggregation function %q", item.Agg)
	}
}

func reduceNumeric(agg string, values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	switch agg {
	case "SUM":
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum
	case "AVG":
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values))
	case "MIN":
		m := values[0]
		for _, v := range values[1:] {
			if v < m {
				m = v
			}
		}
		return m
	case "MAX":
		m := values[0]
		for _, v := range values[1:] {
			if v > m {
				m = v
			}
		}
		return m
	}
	return 0
}

// applyOrderBy sorts rows by terms in order, stable so ties preserve
// enumeration order per §4.7's determinism rule.
func applyOrderBy(rows []Row, terms []sulpher.OrderTerm) []Row {
	if len(terms) == 0 {
		return rows
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, term := range terms {
			label := columnLabel(sulpher.ProjectionItem{Var: term.Var, Field: term.Field, Agg: term.Agg})
			vi, vj := rows[i][label], rows[j][label]
			cmp := compareAny(vi, vj)
			if cmp == 0 {
				continue
			}
			if term.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	return rows
}

func compareAny(a, b interface{}) int {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		default:
			return 0
		}
	}
	return 0
}
