package gateway

import (
	"fmt"
	"net/http"
	"net/url"

	"go.miragespace.co/keyval/spec/ring"

	"github.com/go-chi/chi/v5"
)

// keyParam returns the raw bytes of the {key} segment. Keys are sent
// path-escaped; chi matches on the escaped path whenever it differs from the
// decoded one.
func keyParam(r *http.Request) ([]byte, error) {
	param := chi.URLParam(r, "key")
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(param)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ring.ErrMalformedPayload, err)
		}
		param = unescaped
	}
	if param == "" {
		return nil, fmt.Errorf("%w: empty key", ring.ErrMalformedPayload)
	}
	return []byte(param), nil
}
