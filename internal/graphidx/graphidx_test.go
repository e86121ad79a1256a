package graphidx

import (
	"os"
	"path/filepath"
	"testing"

	"rserv/internal/logging"
	"rserv/internal/schema"
)

func TestNodeTypeAndMatchesEntity(t *testing.T) {
	if NodeType("users") != "User" {
		t.Fatalf("expected User, got %s", NodeType("users"))
	}
	if !MatchesEntity("users", "User") {
		t.Fatal("expected users to match User")
	}
	if !MatchesEntity("users", "") {
		t.Fatal("empty type name should match anything")
	}
	if MatchesEntity("users", "Post") {
		t.Fatal("users should not match Post")
	}
}

func TestLabelUppercases(t *testing.T) {
	if Label("author_id") != "AUTHOR_ID" {
		t.Fatalf("unexpected label: %s", Label("author_id"))
	}
}

func TestUpsertAndOutboundInbound(t *testing.T) {
	idx := New(false, "", logging.Noop())

	idx.Upsert("users", 1, map[string]interface{}{"name": "Alice"}, nil)
	idx.Upsert("posts", 1, map[string]interface{}{"title": "hi"}, []schema.Reference{
		{Field: "author_id", TargetEntity: "users", TargetID: 1},
	})

	out := idx.Outbound("posts", 1, nil)
	if len(out) != 1 || out[0].Label != "AUTHOR_ID" || out[0].Node != (NodeRef{Entity: "users", ID: 1}) {
		t.Fatalf("unexpected outbound: %+v", out)
	}

	in := idx.Inbound("users", 1, nil)
	if len(in) != 1 || in[0].Node != (NodeRef{Entity: "posts", ID: 1}) {
		t.Fatalf("unexpected inbound: %+v", in)
	}
}

func TestUpsertReplacesPreviousEdges(t *testing.T) {
	idx := New(false, "", logging.Noop())
	idx.Upsert("users", 1, nil, nil)
	idx.Upsert("users", 2, nil, nil)
	idx.Upsert("posts", 1, nil, []schema.Reference{{Field: "author_id", TargetEntity: "users", TargetID: 1}})
	idx.Upsert("posts", 1, nil, []schema.Reference{{Field: "author_id", TargetEntity: "users", TargetID: 2}})

	if len(idx.Inbound("users", 1, nil)) != 0 {
		t.Fatal("expected stale inbound edge on user 1 to be gone")
	}
	if len(idx.Inbound("users", 2, nil)) != 1 {
		t.Fatal("expected inbound edge to have moved to user 2")
	}
}

func TestRemoveClearsBothSides(t *testing.T) {
	idx := New(false, "", logging.Noop())
	idx.Upsert("users", 1, nil, nil)
	idx.Upsert("posts", 1, nil, []schema.Reference{{Field: "author_id", TargetEntity: "users", TargetID: 1}})

	idx.Remove("posts", 1)
	if len(idx.Inbound("users", 1, nil)) != 0 {
		t.Fatal("expected inbound edge removed along with source node")
	}
	if len(idx.Outbound("posts", 1, nil)) != 0 {
		t.Fatal("expected outbound edges gone after removal")
	}
}

func TestDegreeCountsBothDirections(t *testing.T) {
	idx := New(false, "", logging.Noop())
	idx.Upsert("users", 1, nil, nil)
	idx.Upsert("posts", 1, nil, []schema.Reference{{Field: "author_id", TargetEntity: "users", TargetID: 1}})
	idx.Upsert("posts", 2, nil, []schema.Reference{{Field: "author_id", TargetEntity: "users", TargetID: 1}})

	if got := idx.Degree("users", 1, DirIn); got != 2 {
		t.Fatalf("expected in-degree 2, got %d", got)
	}
	if got := idx.Degree("posts", 1, DirOut); got != 1 {
		t.Fatalf("expected out-degree 1, got %d", got)
	}
	if got := idx.Degree("users", 1, DirAll); got != 2 {
		t.Fatalf("expected total degree 2, got %d", got)
	}
}

func TestNodesByTypeAndLookup(t *testing.T) {
	idx := New(false, "", logging.Noop())
	idx.Upsert("users", 1, map[string]interface{}{"name": "Alice"}, nil)
	idx.Upsert("users", 2, map[string]interface{}{"name": "Bob"}, nil)

	nodes := idx.NodesByType("User")
	if len(nodes) != 2 {
		t.Fatalf("expected 2 users, got %d", len(nodes))
	}

	found := idx.Lookup("User", "name", "Bob")
	if len(found) != 1 || found[0].ID != 2 {
		t.Fatalf("unexpected lookup result: %+v", found)
	}
}

func TestShortestPathAndPathExists(t *testing.T) {
	idx := New(false, "", logging.Noop())
	idx.Upsert("users", 1, nil, nil)
	idx.Upsert("users", 2, nil, nil)
	idx.Upsert("users", 3, nil, nil)
	idx.Upsert("follows", 1, nil, []schema.Reference{{Field: "target_id", TargetEntity: "users", TargetID: 2}})
	idx.Upsert("follows", 2, nil, []schema.Reference{{Field: "source_id", TargetEntity: "users", TargetID: 2}, {Field: "target_id", TargetEntity: "users", TargetID: 3}})

	a := NodeRef{Entity: "follows", ID: 1}
	c := NodeRef{Entity: "users", ID: 3}
	path, ok := idx.ShortestPath(a, c, 5)
	if !ok {
		t.Fatal("expected a path to exist")
	}
	if len(path) == 0 || path[len(path)-1].Node != c {
		t.Fatalf("unexpected path: %+v", path)
	}

	if idx.PathExists(a, c, 0) {
		t.Fatal("maxDepth 0 should not find a multi-hop path")
	}
}

func TestShortestPathRespectsExactMaxDepthBound(t *testing.T) {
	idx := New(false, "", logging.Noop())
	idx.Upsert("nodes", 1, nil, []schema.Reference{{Field: "next_id", TargetEntity: "nodes", TargetID: 2}})
	idx.Upsert("nodes", 2, nil, []schema.Reference{{Field: "next_id", TargetEntity: "nodes", TargetID: 3}})
	idx.Upsert("nodes", 3, nil, []schema.Reference{{Field: "next_id", TargetEntity: "nodes", TargetID: 4}})

	start := NodeRef{Entity: "nodes", ID: 1}
	end := NodeRef{Entity: "nodes", ID: 4}

	if _, ok := idx.ShortestPath(start, end, 2); ok {
		t.Fatal("a 3-hop path must not be found within max_depth 2")
	}
	path, ok := idx.ShortestPath(start, end, 3)
	if !ok || len(path) != 4 {
		t.Fatalf("expected the exact 3-hop path within max_depth 3, got %+v (ok=%v)", path, ok)
	}
}

func TestShortestPathTraversesUndirectedUnionOfEdges(t *testing.T) {
	idx := New(false, "", logging.Noop())
	idx.Upsert("nodes", 1, nil, []schema.Reference{
		{Field: "a_id", TargetEntity: "nodes", TargetID: 2},
		{Field: "b_id", TargetEntity: "nodes", TargetID: 3},
	})
	idx.Upsert("nodes", 4, nil, []schema.Reference{{Field: "c_id", TargetEntity: "nodes", TargetID: 1}})

	two := NodeRef{Entity: "nodes", ID: 2}
	four := NodeRef{Entity: "nodes", ID: 4}

	path, ok := idx.ShortestPath(two, four, 2)
	if !ok {
		t.Fatal("expected an undirected path 2-1-4 via the inbound edge into node 1")
	}
	if len(path) != 3 || path[2].Node != four {
		t.Fatalf("unexpected path: %+v", path)
	}
}

func TestCommonNeighbors(t *testing.T) {
	idx := New(false, "", logging.Noop())
	target := schema.Reference{Field: "x", TargetEntity: "users", TargetID: 9}
	idx.Upsert("a", 1, nil, []schema.Reference{target})
	idx.Upsert("a", 2, nil, []schema.Reference{target})

	common := idx.CommonNeighbors(NodeRef{Entity: "a", ID: 1}, NodeRef{Entity: "a", ID: 2})
	if len(common) != 1 || common[0] != (NodeRef{Entity: "users", ID: 9}) {
		t.Fatalf("unexpected common neighbors: %+v", common)
	}
}

func TestNeighborhoodAggregate(t *testing.T) {
	idx := New(false, "", logging.Noop())
	idx.Upsert("users", 1, map[string]interface{}{}, nil)
	idx.Upsert("users", 2, map[string]interface{}{"age": float64(20)}, []schema.Reference{{Field: "a", TargetEntity: "users", TargetID: 3}})
	idx.Upsert("users", 3, map[string]interface{}{"age": float64(40)}, nil)
	idx.Upsert("follows", 1, nil, []schema.Reference{{Field: "a", TargetEntity: "users", TargetID: 2}})
	idx.Upsert("follows", 2, nil, []schema.Reference{{Field: "a", TargetEntity: "users", TargetID: 3}})
	root := NodeRef{Entity: "follows", ID: 1}

	avg, err := idx.NeighborhoodAggregate(root, 3, "age", AggAvg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if avg != 30 {
		t.Fatalf("expected avg 30, got %v", avg)
	}
}

func TestStatistics(t *testing.T) {
	idx := New(false, "", logging.Noop())
	idx.Upsert("users", 1, nil, nil)
	idx.Upsert("posts", 1, nil, []schema.Reference{{Field: "author_id", TargetEntity: "users", TargetID: 1}})

	nodes, edges, avg := idx.Statistics()
	if nodes != 2 {
		t.Fatalf("expected 2 nodes, got %d", nodes)
	}
	if edges != 1 {
		t.Fatalf("expected 1 edge, got %d", edges)
	}
	if avg != 0.5 {
		t.Fatalf("expected avg out-degree 0.5, got %v", avg)
	}
}

func TestFlushAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.index")

	idx := New(true, path, logging.Noop())
	idx.Upsert("users", 1, map[string]interface{}{"name": "Alice"}, nil)
	idx.Upsert("posts", 1, map[string]interface{}{"title": "hi"}, []schema.Reference{
		{Field: "author_id", TargetEntity: "users", TargetID: 1},
	})
	if err := idx.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	loaded := New(true, path, logging.Noop())
	if err := loaded.Load(); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	in := loaded.Inbound("users", 1, nil)
	if len(in) != 1 || in[0].Node != (NodeRef{Entity: "posts", ID: 1}) {
		t.Fatalf("unexpected loaded inbound: %+v", in)
	}
	props, ok := loaded.Properties("users", 1)
	if !ok || props["name"] != "Alice" {
		t.Fatalf("unexpected loaded properties: %+v", props)
	}
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.index")

	idx := New(true, path, logging.Noop())
	idx.Upsert("users", 1, nil, nil)
	if err := idx.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	data[len(data)-1] ^= 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	loaded := New(true, path, logging.Noop())
	if err := loaded.Load(); err == nil {
		t.Fatal("expected checksum mismatch error")
	}
}
