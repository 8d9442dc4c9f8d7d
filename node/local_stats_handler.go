package node

import (
	"cmp"
	"fmt"
	"net/http"
	"slices"
	"time"

	"go.miragespace.co/keyval/spec/ring"

	"github.com/jedib0t/go-pretty/v6/table"
)

func (n *LocalNode) printSummary(w http.ResponseWriter, r *http.Request) {
	view := n.table.View()

	fmt.Fprintf(w, "Current state: %s\n", n.state.Get().String())
	fmt.Fprintf(w, "State history: %v\n", n.state.History())
	fmt.Fprintf(w, "---\n")
	fmt.Fprintf(w, " Membership version: %d\n", view.Version)
	fmt.Fprintf(w, "  Membership digest: %016x\n", view.Digest)
	fmt.Fprintf(w, " Replication factor: %d\n", view.Replicas)
	fmt.Fprintf(w, "        Last gossip: %s\n", n.lastGossip.Load().Format(time.RFC3339))
	fmt.Fprintf(w, "---\n")
	fmt.Fprintf(w, "  Client qps: %.2f\n", n.clientRate.RatePer(time.Second))
	fmt.Fprintf(w, " Replica qps: %.2f\n", n.replicaRate.RatePer(time.Second))
	fmt.Fprintf(w, "  Gossip qps: %.2f\n", n.gossipRate.RatePer(time.Second))
	if n.OutboundRate != nil {
		fmt.Fprintf(w, "Outbound qps: %.2f\n", n.OutboundRate.RatePer(time.Second))
	}
	fmt.Fprintf(w, "---\n")

	nodesTable := table.NewWriter()
	nodesTable.SetOutputMirror(w)
	nodesTable.AppendHeader(table.Row{"Where", "ID", "Address", "RTT (-10s)"})
	for i, id := range view.Nodes {
		where := fmt.Sprintf("%d", i)
		if id == n.self.ID {
			where = fmt.Sprintf("%d (local)", i)
		}
		addr := view.Members[id]
		rtt := ""
		if n.NodesRTT != nil {
			rtt = n.NodesRTT.Snapshot(addr, time.Second*10).String()
		}
		nodesTable.AppendRow(table.Row{where, id, addr, rtt})
	}
	nodesTable.SetCaption("(%d members)", len(view.Nodes))
	nodesTable.SetStyle(table.StyleDefault)
	nodesTable.Render()

	fmt.Fprintf(w, "---\n")

	entries, err := n.KVProvider.ScanAll(r.Context())
	if err != nil {
		fmt.Fprintf(w, "error listing keys: %v\n", err)
		return
	}
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		return cmp.Compare(ring.Hash(a), ring.Hash(b))
	})

	keysTable := table.NewWriter()
	keysTable.SetOutputMirror(w)
	keysTable.AppendHeader(table.Row{"replica", "hash(key)", "key", "size"})
	misplaced := 0
	for _, k := range keys {
		replica := ""
		if !view.Owns([]byte(k)) {
			replica = "X"
			misplaced++
		}
		keysTable.AppendRow(table.Row{replica, ring.Hash(k), k, len(entries[k])})
	}
	keysTable.SetCaption("(With %d keys, %d misplaced; X in replica column indicates this node should not hold the key)", len(keys), misplaced)
	keysTable.SetStyle(table.StyleDefault)
	keysTable.Render()
}

func (n *LocalNode) printKey(w http.ResponseWriter, r *http.Request, key string) {
	val, err := n.KVProvider.Get(r.Context(), []byte(key))
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "error getting kv: %v", err)
		return
	}
	if val == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Write(val)
}

func (n *LocalNode) StatsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("content-type", "text/plain; charset=utf-8")

	query := r.URL.Query()
	if query.Has("key") {
		n.printKey(w, r, query.Get("key"))
		return
	}
	n.printSummary(w, r)
}
