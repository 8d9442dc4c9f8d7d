package util

import "net/http"

// LimitBody caps request bodies at size bytes. Requests announcing a larger
// Content-Length are rejected before the handler runs; the rest fail with
// *http.MaxBytesError once they read past the cap.
func LimitBody(size int64) func(h http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > size {
				http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, size)
			h.ServeHTTP(w, r)
		})
	}
}
