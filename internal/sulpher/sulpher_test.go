package sulpher

import (
	"testing"

	"rserv/internal/apperr"
)

func TestParseSimpleMatchReturn(t *testing.T) {
	q, err := Parse(`MATCH (u:User) RETURN u`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Algo != "BFS" {
		t.Fatalf("expected default algo BFS, got %s", q.Algo)
	}
	if len(q.Clauses) != 1 {
		t.Fatalf("expected 1 clause, got %d", len(q.Clauses))
	}
	if q.Clauses[0].Pattern.Elements[0].Var != "u" || q.Clauses[0].Pattern.Elements[0].Type != "User" {
		t.Fatalf("unexpected element: %+v", q.Clauses[0].Pattern.Elements[0])
	}
	if q.Return.Items[0].Var != "u" {
		t.Fatalf("unexpected return item: %+v", q.Return.Items[0])
	}
}

func TestParseAlgoPrefix(t *testing.T) {
	q, err := Parse(`DFS MATCH (u:User) RETURN u`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Algo != "DFS" {
		t.Fatalf("expected DFS, got %s", q.Algo)
	}
}

func TestParseEdgePatternWithLabelAndVariableLength(t *testing.T) {
	q, err := Parse(`MATCH (u:User)-[:FOLLOWS*1..3]->(v:User) RETURN u, v`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	edge := q.Clauses[0].Pattern.Edges[0]
	if len(edge.Labels) != 1 || edge.Labels[0] != "FOLLOWS" {
		t.Fatalf("unexpected edge labels: %+v", edge.Labels)
	}
	if !edge.Variable || edge.MinHop != 1 || edge.MaxHop != 3 {
		t.Fatalf("unexpected variable-length range: %+v", edge)
	}
}

func TestParseMultipleEdgeLabels(t *testing.T) {
	q, err := Parse(`MATCH (u)-[:FOLLOWS|BLOCKS]->(v) RETURN u`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	labels := q.Clauses[0].Pattern.Edges[0].Labels
	if len(labels) != 2 || labels[0] != "FOLLOWS" || labels[1] != "BLOCKS" {
		t.Fatalf("unexpected labels: %+v", labels)
	}
}

func TestParseWhereComparison(t *testing.T) {
	q, err := Parse(`MATCH (u:User) WHERE u.age >= 18 RETURN u`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cmp, ok := q.Clauses[0].Where.(Comparison)
	if !ok {
		t.Fatalf("expected Comparison, got %T", q.Clauses[0].Where)
	}
	if cmp.Left.Var != "u" || cmp.Left.Field != "age" || cmp.Op != ">=" {
		t.Fatalf("unexpected comparison: %+v", cmp)
	}
}

func TestParseWhereAndOr(t *testing.T) {
	q, err := Parse(`MATCH (u:User) WHERE u.age >= 18 AND u.active = true RETURN u`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bin, ok := q.Clauses[0].Where.(BinaryExpr)
	if !ok || bin.Op != "AND" {
		t.Fatalf("expected AND BinaryExpr, got %+v", q.Clauses[0].Where)
	}
}

func TestParseNotOutbound(t *testing.T) {
	q, err := Parse(`MATCH (u:User) WHERE NOT (u)-[:FOLLOWS]->() RETURN u`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	no, ok := q.Clauses[0].Where.(NoOutbound)
	if !ok || no.Var != "u" || no.Label != "FOLLOWS" {
		t.Fatalf("expected NoOutbound, got %+v", q.Clauses[0].Where)
	}
}

func TestParseAggregationWithAndReturn(t *testing.T) {
	q, err := Parse(`MATCH (u:User)-[:AUTHOR_ID]->(p:Post) WITH u, COUNT(p) RETURN u, COUNT(p) ORDER BY COUNT(p) DESC LIMIT 10`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.With == nil || len(q.With.Items) != 2 {
		t.Fatalf("expected WITH projection with 2 items: %+v", q.With)
	}
	agg := q.Return.Items[1]
	if agg.Agg != "COUNT" || agg.Var != "p" {
		t.Fatalf("unexpected aggregation item: %+v", agg)
	}
	if len(q.OrderBy) != 1 || !q.OrderBy[0].Desc {
		t.Fatalf("expected DESC order term: %+v", q.OrderBy)
	}
	if q.Limit == nil || *q.Limit != 10 {
		t.Fatalf("expected limit 10, got %v", q.Limit)
	}
}

func TestParseSyntaxErrorReportsTokenAndPosition(t *testing.T) {
	_, err := Parse(`MATCH (u:User) WHERE RETURN u`)
	if err == nil {
		t.Fatal("expected a syntax error")
	}
	appErr, ok := err.(*apperr.Error)
	if !ok {
		t.Fatalf("expected *apperr.Error, got %T", err)
	}
	if appErr.Kind != apperr.KindQuerySyntax {
		t.Fatalf("expected QuerySyntaxError, got %s", appErr.Kind)
	}
	if appErr.Token == "" {
		t.Fatal("expected offending token to be recorded")
	}
}

func TestParseMissingMatchFails(t *testing.T) {
	_, err := Parse(`RETURN u`)
	if err == nil {
		t.Fatal("expected error for query missing MATCH")
	}
}
