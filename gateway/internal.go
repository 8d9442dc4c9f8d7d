package gateway

import (
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (g *Gateway) mountInternal(r chi.Router) {
	r.Route("/_internal", func(r chi.Router) {
		r.Use(middleware.Recoverer)
		r.Use(middleware.NoCache)
		if g.AdminUser != "" && g.AdminPass != "" {
			r.Use(middleware.BasicAuth("internal", map[string]string{
				g.AdminUser: g.AdminPass,
			}))
		}
		if g.Handlers.Stats != nil {
			r.Handle("/stats", g.Handlers.Stats)
		}
		if g.Handlers.Graph != nil {
			r.Handle("/graph", g.Handlers.Graph)
		}
		r.Mount("/debug", middleware.Profiler())

		// anything else lists what is available
		index := internalIndex(r)
		r.HandleFunc("/*", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusNotFound)
			w.Write(index)
		})
	})
}

func internalIndex(r chi.Routes) []byte {
	var routes []string
	chi.Walk(r, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		if method != http.MethodGet || strings.HasSuffix(route, "*") {
			return nil
		}
		routes = append(routes, fmt.Sprintf("GET /_internal%s", route))
		return nil
	})
	slices.Sort(routes)
	return []byte(strings.Join(slices.Compact(routes), "\n") + "\n")
}
