package gateway

import (
	"errors"
	"io"
	"net/http"
	"time"

	"go.miragespace.co/keyval/util"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"kon.nect.sh/httprate"
)

func (g *Gateway) mountClient(r chi.Router) {
	r.Route("/db", func(r chi.Router) {
		if g.ClientRateLimit > 0 {
			r.Use(httprate.LimitAll(g.ClientRateLimit, time.Second))
		}
		r.Use(middleware.Recoverer)
		r.Use(util.LimitBody(g.MaxBodySize))
		r.Get("/{key}", g.handleClientGet)
		r.Post("/{key}", g.handleClientPut)
		r.Delete("/{key}", g.handleClientDelete)
	})
}

func writeValue(w http.ResponseWriter, value []byte) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(value)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		} else {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
		return nil, false
	}
	return body, true
}

func (g *Gateway) handleClientGet(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	value, err := g.Node.Get(r.Context(), key)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeValue(w, value)
}

func (g *Gateway) handleClientPut(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	value, ok := readBody(w, r)
	if !ok {
		return
	}
	committed, err := g.Node.Put(r.Context(), key, value)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeValue(w, committed)
}

func (g *Gateway) handleClientDelete(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	removed, err := g.Node.Delete(r.Context(), key)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeValue(w, removed)
}
