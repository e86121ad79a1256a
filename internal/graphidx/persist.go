package graphidx

import (
	"bytes"
	"encoding/binary"
	"os"

	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/crypto/blake2b"

	"rserv/internal/apperr"
)

// wireEdge/wireIndex are the bson-serialisable mirrors of the in-memory
// adjacency structures. Maps keyed by struct types don't round-trip
// through bson cleanly, so the persisted form flattens each adjacency map
// into a slice of records.
type wireEdge struct {
	Label        string `bson:"label"`
	TargetEntity string `bson:"target_entity"`
	TargetID     int64  `bson:"target_id"`
}

type wireNode struct {
	Entity string                 `bson:"entity"`
	ID     int64                  `bson:"id"`
	Out    []wireEdge             `bson:"out"`
	Props  map[string]interface{} `bson:"props"`
}

type wireIndex struct {
	Nodes []wireNode `bson:"nodes"`
}

// magic precedes the checksum in the persisted file so a truncated or
// foreign file is rejected before the checksum check even runs.
var magic = [4]byte{'r', 'g', 'x', '1'}

// Flush writes the current index to idx.path as a blake2b-checksummed bson
// document (the graph.index file, see §4.5). Only outbound
// edges are recorded — inbound is reconstructed on Load since it is fully
// derivable from the outbound set.
func (idx *Index) Flush() error {
	if !idx.persisted {
		return nil
	}

	idx.mu.RLock()
	wire := wireIndex{Nodes: make([]wireNode, 0, len(idx.out)+len(idx.props))}
	seen := make(map[NodeRef]bool)
	addNode := func(n NodeRef) {
		if seen[n] {
			return
		}
		seen[n] = true
		edges := idx.out[n]
		wireEdges := make([]wireEdge, len(edges))
		for i, e := range edges {
			wireEdges[i] = wireEdge{Label: e.Label, TargetEntity: e.Node.Entity, TargetID: e.Node.ID}
		}
		wire.Nodes = append(wire.Nodes, wireNode{
			Entity: n.Entity,
			ID:     n.ID,
			Out:    wireEdges,
			Props:  idx.props[n],
		})
	}
	for n := range idx.props {
		addNode(n)
	}
	for n := range idx.out {
		addNode(n)
	}
	for n := range idx.in {
		addNode(n)
	}
	idx.mu.RUnlock()

	payload, err := bson.Marshal(wire)
	if err != nil {
		return apperr.Storage(err, "failed to encode graph index")
	}

	sum := blake2b.Sum256(payload)

	var buf bytes.Buffer
	buf.Write(magic[:])
	buf.Write(sum[:])
	binary.Write(&buf, binary.LittleEndian, uint64(len(payload)))
	buf.Write(payload)

	tmp, err := os.CreateTemp(parentDir(idx.path), ".graph-index-*")
	if err != nil {
		return apperr.Storage(err, "failed to create temp file for graph index")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return apperr.Storage(err, "failed to write graph index")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return apperr.Storage(err, "failed to sync graph index")
	}
	if err := tmp.Close(); err != nil {
		return apperr.Storage(err, "failed to close graph index temp file")
	}
	if err := os.Rename(tmp.Name(), idx.path); err != nil {
		return apperr.Storage(err, "failed to install graph index")
	}
	return nil
}

// Load reads the persisted index from idx.path, verifying the blake2b
// checksum before trusting its contents. Inbound edges and the by-type
// index are rebuilt from the loaded outbound set and properties.
func (idx *Index) Load() error {
	data, err := os.ReadFile(idx.path)
	if err != nil {
		return apperr.Storage(err, "failed to read graph index")
	}
	if len(data) < len(magic)+blake2b.Size256+8 {
		return apperr.Storage(nil, "graph index file truncated")
	}
	if !bytes.Equal(data[:len(magic)], magic[:]) {
		return apperr.Storage(nil, "graph index file has unrecognised header")
	}
	offset := len(magic)
	wantSum := data[offset : offset+blake2b.Size256]
	offset += blake2b.Size256
	size := binary.LittleEndian.Uint64(data[offset : offset+8])
	offset += 8
	if uint64(len(data)-offset) != size {
		return apperr.Storage(nil, "graph index file length mismatch")
	}
	payload := data[offset:]

	gotSum := blake2b.Sum256(payload)
	if !bytes.Equal(wantSum, gotSum[:]) {
		return apperr.Storage(nil, "graph index checksum mismatch")
	}

	var wire wireIndex
	if err := bson.Unmarshal(payload, &wire); err != nil {
		return apperr.Storage(err, "failed to decode graph index")
	}

	out := make(map[NodeRef][]Edge)
	in := make(map[NodeRef][]Edge)
	props := make(map[NodeRef]map[string]interface{})
	byType := make(map[string]map[NodeRef]struct{})

	addType := func(n NodeRef) {
		typ := NodeType(n.Entity)
		set, ok := byType[typ]
		if !ok {
			set = make(map[NodeRef]struct{})
			byType[typ] = set
		}
		set[n] = struct{}{}
	}

	for _, wn := range wire.Nodes {
		node := NodeRef{Entity: wn.Entity, ID: wn.ID}
		props[node] = wn.Props
		addType(node)
		for _, we := range wn.Out {
			target := NodeRef{Entity: we.TargetEntity, ID: we.TargetID}
			out[node] = append(out[node], Edge{Label: we.Label, Node: target})
			in[target] = append(in[target], Edge{Label: we.Label, Node: node})
		}
	}
	for n := range out {
		sortEdges(out[n])
	}
	for n := range in {
		sortEdges(in[n])
	}

	idx.mu.Lock()
	idx.out = out
	idx.in = in
	idx.props = props
	idx.byType = byType
	idx.mu.Unlock()
	return nil
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
