package gateway

import (
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.miragespace.co/keyval/rpc"
	"go.miragespace.co/keyval/spec/ring"
	"go.miragespace.co/keyval/util"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func (g *Gateway) mountPeer(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Recoverer)

		small := r.With(util.LimitBody(peerBodyLimit))
		small.Get("/nodes", g.handleGetNodes)
		small.Post("/nodes", g.handlePostNodes)
		small.Delete("/nodes", g.handleDeleteNodes)
		small.Post("/ring", g.handleJoin)

		r.Get("/keys", g.handleGetKeys)
		r.Delete("/keys", g.handlePurgeKeys)

		replica := r.With(util.LimitBody(g.MaxBodySize))
		replica.Get("/{key}", g.handleReplicaGet)
		replica.Post("/{key}", g.handleReplicaPut)
		replica.Delete("/{key}", g.handleReplicaDelete)
	})
}

func (g *Gateway) handleGetNodes(w http.ResponseWriter, r *http.Request) {
	members, version := g.Node.Membership()
	body, err := rpc.EncodeMembership(members)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", rpc.ContentTypeJSON)
	rpc.SetVersion(w.Header(), version)
	w.Write(body)
}

func (g *Gateway) handlePostNodes(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	marker, found, err := rpc.ParseVersion(r.Header)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	if !found {
		g.Logger.Debug("Ignoring membership push without version marker", zap.String("remote", r.RemoteAddr))
		w.WriteHeader(http.StatusOK)
		return
	}
	remote, err := rpc.DecodeMembership(body)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	if _, err := g.Node.MergeMembership(remote, marker); err != nil {
		g.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (g *Gateway) handleDeleteNodes(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	addr := strings.TrimSpace(string(body))
	if addr == "" {
		http.Error(w, "missing address", http.StatusBadRequest)
		return
	}
	evicted := g.Node.Evict(addr)
	w.Write([]byte(strconv.FormatBool(evicted)))
}

func (g *Gateway) handleJoin(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	bootstrap := strings.TrimSpace(string(body))
	if bootstrap == "" {
		http.Error(w, "missing bootstrap address", http.StatusBadRequest)
		return
	}
	if err := g.Node.Join(r.Context(), bootstrap); err != nil {
		g.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (g *Gateway) handleGetKeys(w http.ResponseWriter, r *http.Request) {
	hr, err := ring.ParseHashRange(r.URL.Query())
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	entries, err := g.Node.LocalKeys(r.Context(), hr)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	// JSON object keys must be text
	for k := range entries {
		if !utf8.ValidString(k) {
			g.Logger.Warn("Skipping key that is not valid UTF-8 in key dump", zap.Binary("key", []byte(k)))
			delete(entries, k)
		}
	}
	body, err := rpc.EncodeEntries(entries)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", rpc.ContentTypeJSON)
	w.Write(body)
}

func (g *Gateway) handlePurgeKeys(w http.ResponseWriter, r *http.Request) {
	hr, err := ring.ParseHashRange(r.URL.Query())
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	removed, err := g.Node.LocalPurge(r.Context(), hr)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	w.Write([]byte(strconv.Itoa(removed)))
}

func (g *Gateway) handleReplicaGet(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	value, err := g.Node.LocalGet(r.Context(), key)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	if value == nil {
		http.Error(w, ring.ErrKeyNotFound.Error(), http.StatusNotFound)
		return
	}
	writeValue(w, value)
}

func (g *Gateway) handleReplicaPut(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	value, ok := readBody(w, r)
	if !ok {
		return
	}
	committed, err := g.Node.LocalPut(r.Context(), key, value)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeValue(w, committed)
}

func (g *Gateway) handleReplicaDelete(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	removed, err := g.Node.LocalDelete(r.Context(), key)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	if removed == nil {
		http.Error(w, ring.ErrKeyNotFound.Error(), http.StatusNotFound)
		return
	}
	writeValue(w, removed)
}
