package query

import (
	"testing"

	"rserv/internal/graphidx"
	"rserv/internal/logging"
	"rserv/internal/schema"
	"rserv/internal/sulpher"
)

func buildSocialGraph(t *testing.T) *graphidx.Index {
	t.Helper()
	idx := graphidx.New(false, "", logging.Noop())
	idx.Upsert("users", 1, map[string]interface{}{"name": "Alice", "age": float64(30)}, nil)
	idx.Upsert("users", 2, map[string]interface{}{"name": "Bob", "age": float64(25)}, nil)
	idx.Upsert("users", 3, map[string]interface{}{"name": "Carol", "age": float64(40)}, nil)
	idx.Upsert("follows", 1, map[string]interface{}{}, []schema.Reference{
		{Field: "source_id", TargetEntity: "users", TargetID: 1},
		{Field: "target_id", TargetEntity: "users", TargetID: 2},
	})
	return idx
}

func mustParse(t *testing.T, q string) *sulpher.Query {
	t.Helper()
	parsed, err := sulpher.Parse(q)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return parsed
}

func TestExecuteSimpleTypeScan(t *testing.T) {
	idx := graphidx.New(false, "", logging.Noop())
	idx.Upsert("users", 1, map[string]interface{}{"name": "Alice"}, nil)
	idx.Upsert("users", 2, map[string]interface{}{"name": "Bob"}, nil)

	eng := New(idx)
	q := mustParse(t, `MATCH (u:User) RETURN u.name`)
	rows, err := eng.Execute(q, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d: %+v", len(rows), rows)
	}
}

func TestExecuteWhereEqualitySeedsByIndex(t *testing.T) {
	idx := graphidx.New(false, "", logging.Noop())
	idx.Upsert("users", 1, map[string]interface{}{"name": "Alice"}, nil)
	idx.Upsert("users", 2, map[string]interface{}{"name": "Bob"}, nil)

	eng := New(idx)
	q := mustParse(t, `MATCH (u:User) WHERE u.name = 'Bob' RETURN u.name`)
	rows, err := eng.Execute(q, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0]["u.name"] != "Bob" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestExecuteEdgeTraversal(t *testing.T) {
	idx := graphidx.New(false, "", logging.Noop())
	idx.Upsert("users", 1, map[string]interface{}{"name": "Alice"}, nil)
	idx.Upsert("users", 2, map[string]interface{}{"name": "Bob"}, nil)
	idx.Upsert("posts", 1, map[string]interface{}{"title": "hi"}, []schema.Reference{
		{Field: "author_id", TargetEntity: "users", TargetID: 1},
	})

	eng := New(idx)
	q := mustParse(t, `MATCH (p:Post)-[:AUTHOR_ID]->(u:User) RETURN u.name`)
	rows, err := eng.Execute(q, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0]["u.name"] != "Alice" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestExecuteAggregationGroupsByNonAggColumn(t *testing.T) {
	idx := graphidx.New(false, "", logging.Noop())
	idx.Upsert("users", 1, map[string]interface{}{"name": "Alice"}, nil)
	idx.Upsert("users", 2, map[string]interface{}{"name": "Bob"}, nil)
	idx.Upsert("posts", 1, map[string]interface{}{"title": "a"}, []schema.Reference{{Field: "author_id", TargetEntity: "users", TargetID: 1}})
	idx.Upsert("posts", 2, map[string]interface{}{"title": "b"}, []schema.Reference{{Field: "author_id", TargetEntity: "users", TargetID: 1}})
	idx.Upsert("posts", 3, map[string]interface{}{"title": "c"}, []schema.Reference{{Field: "author_id", TargetEntity: "users", TargetID: 2}})

	eng := New(idx)
	q := mustParse(t, `MATCH (p:Post)-[:AUTHOR_ID]->(u:User) RETURN u.name, COUNT(p) ORDER BY COUNT(p) DESC`)
	rows, err := eng.Execute(q, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 groups, got %d: %+v", len(rows), rows)
	}
	if rows[0]["u.name"] != "Alice" || rows[0]["COUNT(p)"] != float64(2) {
		t.Fatalf("unexpected top row: %+v", rows[0])
	}
}

func TestExecuteLimit(t *testing.T) {
	idx := graphidx.New(false, "", logging.Noop())
	for i := int64(1); i <= 5; i++ {
		idx.Upsert("users", i, map[string]interface{}{"name": "user"}, nil)
	}
	eng := New(idx)
	q := mustParse(t, `MATCH (u:User) RETURN u.name LIMIT 2`)
	rows, err := eng.Execute(q, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows after limit, got %d", len(rows))
	}
}

// buildBranchingChain gives node 1 two outbound edges (to 4, then to 2 by
// label order: ALT_ID < NEXT_ID) where only the 4-branch continues one hop
// further, to 5 — a shape where BFS and DFS enumerate the same reachable
// set in different orders.
func buildBranchingChain(t *testing.T) *graphidx.Index {
	t.Helper()
	idx := graphidx.New(false, "", logging.Noop())
	idx.Upsert("nodes", 1, map[string]interface{}{"name": "root"}, []schema.Reference{
		{Field: "alt_id", TargetEntity: "nodes", TargetID: 4},
		{Field: "next_id", TargetEntity: "nodes", TargetID: 2},
	})
	idx.Upsert("nodes", 2, map[string]interface{}{"name": "n2"}, nil)
	idx.Upsert("nodes", 4, map[string]interface{}{"name": "n4"}, []schema.Reference{
		{Field: "next_id", TargetEntity: "nodes", TargetID: 5},
	})
	idx.Upsert("nodes", 5, map[string]interface{}{"name": "n5"}, nil)
	return idx
}

func TestExecuteBFSOrdersByHop(t *testing.T) {
	idx := buildBranchingChain(t)
	eng := New(idx)
	q := mustParse(t, `MATCH (a:Node {name: "root"})-[*1..2]->(b:Node) RETURN b.id`)
	rows, err := eng.Execute(q, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := make([]float64, len(rows))
	for i, row := range rows {
		got[i] = row["b.id"].(float64)
	}
	want := []float64{4, 2, 5}
	if len(got) != len(want) {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("BFS order = %v, want %v", got, want)
		}
	}
}

func TestExecuteDFSOrdersByBranch(t *testing.T) {
	idx := buildBranchingChain(t)
	eng := New(idx)
	q := mustParse(t, `DFS MATCH (a:Node {name: "root"})-[*1..2]->(b:Node) RETURN b.id`)
	rows, err := eng.Execute(q, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := make([]float64, len(rows))
	for i, row := range rows {
		got[i] = row["b.id"].(float64)
	}
	want := []float64{4, 5, 2}
	if len(got) != len(want) {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("DFS order = %v, want %v", got, want)
		}
	}
}

func TestExecuteNotOutboundPredicate(t *testing.T) {
	idx := buildSocialGraph(t)
	eng := New(idx)
	q := mustParse(t, `MATCH (f:Follow) WHERE NOT (f)-[:NONEXISTENT]->() RETURN f.source_id`)
	rows, err := eng.Execute(q, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d: %+v", len(rows), rows)
	}
}
