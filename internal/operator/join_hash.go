package operator

import (
	"github.com/syncbase/ivmcore/internal/fetch"
	"github.com/syncbase/ivmcore/internal/row"
)

// HashJoin is the same logical join as Join — same output shape, same
// incremental-maintenance semantics on push — but a different fetch-time
// execution strategy: instead of probing inner once per outer row (good
// when inner has an index or a selective constraint), it materializes
// inner fully into an in-memory hash map keyed by the join column, once,
// and looks outer rows up against that map. The planner picks between the
// two based on which side it is cheaper to fully scan versus repeatedly
// probe (spec §4.3 "picks drive sides").
type HashJoin struct {
	*Join
}

// NewHashJoin builds a HashJoin over the same (outer, inner, columns, kind)
// contract as NewJoin.
func NewHashJoin(outer, inner fetch.Input, outerCol, innerCol string, kind Kind) *HashJoin {
	return &HashJoin{Join: NewJoin(outer, inner, outerCol, innerCol, kind)}
}

func (h *HashJoin) Fetch(req fetch.Request) (fetch.Stream, error) {
	index, err := h.buildIndex()
	if err != nil {
		return nil, err
	}
	outerStream, err := h.outer.Fetch(req)
	if err != nil {
		return nil, err
	}
	return &hashJoinStream{j: h.Join, outer: outerStream, index: index}, nil
}

func (h *HashJoin) buildIndex() (map[string][]row.Row, error) {
	stream, err := h.inner.Fetch(fetch.Request{})
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	nodes, err := fetch.Collect(stream)
	if err != nil {
		return nil, err
	}
	idx := make(map[string][]row.Row, len(nodes))
	for _, n := range nodes {
		v, _ := n.Row.Get(h.innerCol)
		k := hashKey(v)
		idx[k] = append(idx[k], n.Row)
	}
	return idx, nil
}

func hashKey(v row.Value) string {
	if v == nil {
		return "\x00nil"
	}
	return toKeyPart(v)
}

type hashJoinStream struct {
	j     *Join
	outer fetch.Stream
	index map[string][]row.Row
}

func (s *hashJoinStream) Poll() (fetch.Poll, error) {
	for {
		p, err := s.outer.Poll()
		if err != nil || p.Kind != fetch.KindNode {
			return p, err
		}
		v, _ := p.Node.Row.Get(s.j.outerCol)
		matches := s.index[hashKey(v)]
		switch s.j.kind {
		case Inner:
			if len(matches) == 0 {
				continue
			}
			nodes := make([]*fetch.Node, len(matches))
			for i, m := range matches {
				nodes[i] = &fetch.Node{Row: m}
			}
			node := *p.Node
			node.Children = map[string]*fetch.ChildStream{
				"related": {RelationName: "related", Stream: fetch.NewSliceStream(nodes)},
			}
			return fetch.Poll{Kind: fetch.KindNode, Node: &node}, nil
		case Semi:
			if len(matches) == 0 {
				continue
			}
			return p, nil
		case Anti:
			if len(matches) > 0 {
				continue
			}
			return p, nil
		}
	}
}

func (s *hashJoinStream) Close() error { return s.outer.Close() }
