package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"go.miragespace.co/keyval/spec/ring"
)

const (
	// HeaderVersion carries the MembershipVersion of a membership snapshot
	HeaderVersion = "Last-Modified"

	ContentTypeJSON = "application/json"
)

func EncodeMembership(m ring.Membership) ([]byte, error) {
	return json.Marshal(m)
}

func DecodeMembership(b []byte) (ring.Membership, error) {
	m := make(ring.Membership)
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ring.ErrMalformedPayload, err)
	}
	return m, nil
}

// EncodeEntries serializes a key dump. Values are base64 encoded.
func EncodeEntries(entries map[string][]byte) ([]byte, error) {
	return json.Marshal(entries)
}

func DecodeEntries(b []byte) (map[string][]byte, error) {
	entries := make(map[string][]byte)
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("%w: %w", ring.ErrMalformedPayload, err)
	}
	for k, v := range entries {
		if v == nil {
			entries[k] = []byte{}
		}
	}
	return entries, nil
}

// ParseVersion reads the version marker from h. The second return is false
// when the header is missing.
func ParseVersion(h http.Header) (int64, bool, error) {
	v := h.Get(HeaderVersion)
	if v == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, true, fmt.Errorf("%w: version marker %q", ring.ErrMalformedPayload, v)
	}
	return n, true, nil
}

func SetVersion(h http.Header, version int64) {
	h.Set(HeaderVersion, strconv.FormatInt(version, 10))
}
