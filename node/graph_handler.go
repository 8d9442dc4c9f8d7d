package node

import (
	"net/http"

	"go.miragespace.co/keyval/membership"
	"go.miragespace.co/keyval/spec/ring"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
)

func formatMember(m ring.Member) string {
	return m.String()
}

var vOptions = []func(*graph.VertexProperties){
	graph.VertexAttribute("shape", "box"),
}

var selfVOptions = append(vOptions,
	graph.VertexAttribute("style", "filled"),
	graph.VertexAttribute("color", "yellow"),
)

// RingGraph renders the local view of the ring in DOT. Solid edges point to
// the next member, dashed edges to the other replicas of each member's range.
func RingGraph(view *membership.View) graph.Graph[string, ring.Member] {
	g := graph.New(formatMember, graph.Directed())

	for _, id := range view.Nodes {
		m := view.Member(id)
		if id == view.Self.ID {
			g.AddVertex(m, selfVOptions...)
		} else {
			g.AddVertex(m, vOptions...)
		}
	}

	size := len(view.Nodes)
	if size < 2 {
		return g
	}
	for i, id := range view.Nodes {
		from := formatMember(view.Member(id))
		g.AddEdge(from, formatMember(view.Member(membership.Offset(view.Nodes, i, 1))))
		for k := 2; k <= view.Replicas && k < size; k++ {
			g.AddEdge(from, formatMember(view.Member(membership.Offset(view.Nodes, i, k))),
				graph.EdgeAttribute("style", "dashed"),
			)
		}
	}
	return g
}

func (n *LocalNode) RingGraphHandler(w http.ResponseWriter, r *http.Request) {
	g := RingGraph(n.table.View())

	w.Header().Set("content-type", "text/plain")
	if err := draw.DOT(g, w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
