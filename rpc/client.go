package rpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.miragespace.co/keyval/spec/ring"
	"go.miragespace.co/keyval/spec/rtt"
	"go.miragespace.co/keyval/util/ratecounter"

	"go.uber.org/zap"
)

type ClientConfig struct {
	Logger *zap.Logger
	// HTTPClient defaults to a client with its own pooled transport
	HTTPClient *http.Client
	// Recorder receives the latency of every successful call, keyed by address
	Recorder rtt.Recorder
	// Counter is incremented on every outbound call
	Counter *ratecounter.Rate
}

// Client talks to peers over plain HTTP
type Client struct {
	logger   *zap.Logger
	http     *http.Client
	recorder rtt.Recorder
	counter  *ratecounter.Rate
}

var _ ring.Transport = (*Client)(nil)

func NewClient(cfg ClientConfig) *Client {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.HTTPClient == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.MaxIdleConnsPerHost = 8
		cfg.HTTPClient = &http.Client{
			Transport: t,
		}
	}
	return &Client{
		logger:   cfg.Logger,
		http:     cfg.HTTPClient,
		recorder: cfg.Recorder,
		counter:  cfg.Counter,
	}
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

func (r *response) unexpected(method, path string) error {
	msg := strings.TrimSpace(string(r.body))
	if len(msg) > 128 {
		msg = msg[:128]
	}
	return fmt.Errorf("%w: %s %s: %d %s", ring.ErrUnexpectedStatus, method, path, r.status, msg)
}

func keyPath(prefix string, key []byte) string {
	return prefix + url.PathEscape(string(key))
}

func (c *Client) do(ctx context.Context, method, addr, path string, query url.Values, header http.Header, body []byte) (*response, error) {
	target := "http://" + addr + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}

	if c.counter != nil {
		c.counter.Increment()
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ring.ErrPeerUnreachable, addr, err)
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: reading response: %w", ring.ErrPeerUnreachable, addr, err)
	}
	if c.recorder != nil {
		c.recorder.Record(addr, time.Since(start))
	}

	c.logger.Debug("Outbound call",
		zap.String("method", method),
		zap.String("peer", addr),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)

	return &response{
		status: resp.StatusCode,
		header: resp.Header,
		body:   buf,
	}, nil
}

func (c *Client) GetMembership(ctx context.Context, addr string) (ring.Membership, int64, error) {
	resp, err := c.do(ctx, http.MethodGet, addr, "/nodes", nil, nil, nil)
	if err != nil {
		return nil, 0, err
	}
	if !resp.ok() {
		return nil, 0, resp.unexpected(http.MethodGet, "/nodes")
	}
	version, found, err := ParseVersion(resp.header)
	if err != nil {
		return nil, 0, err
	}
	if !found {
		return nil, 0, fmt.Errorf("%w: missing version marker from %s", ring.ErrMalformedPayload, addr)
	}
	m, err := DecodeMembership(resp.body)
	if err != nil {
		return nil, 0, err
	}
	return m, version, nil
}

func (c *Client) PushMembership(ctx context.Context, addr string, m ring.Membership, version int64) error {
	body, err := EncodeMembership(m)
	if err != nil {
		return err
	}
	header := http.Header{}
	header.Set("Content-Type", ContentTypeJSON)
	SetVersion(header, version)

	resp, err := c.do(ctx, http.MethodPost, addr, "/nodes", nil, header, body)
	if err != nil {
		return err
	}
	if !resp.ok() {
		return resp.unexpected(http.MethodPost, "/nodes")
	}
	return nil
}

func (c *Client) Evict(ctx context.Context, addr string, member string) error {
	resp, err := c.do(ctx, http.MethodDelete, addr, "/nodes", nil, nil, []byte(member))
	if err != nil {
		return err
	}
	if !resp.ok() {
		return resp.unexpected(http.MethodDelete, "/nodes")
	}
	return nil
}

func (c *Client) Join(ctx context.Context, addr string, bootstrap string) error {
	resp, err := c.do(ctx, http.MethodPost, addr, "/ring", nil, nil, []byte(bootstrap))
	if err != nil {
		return err
	}
	switch {
	case resp.ok():
		return nil
	case resp.status == http.StatusConflict:
		return fmt.Errorf("%w: %s", ring.ErrDuplicateNodeID, addr)
	default:
		return resp.unexpected(http.MethodPost, "/ring")
	}
}

func (c *Client) getKey(ctx context.Context, addr, path string) ([]byte, bool, error) {
	resp, err := c.do(ctx, http.MethodGet, addr, path, nil, nil, nil)
	if err != nil {
		return nil, false, err
	}
	switch {
	case resp.ok():
		return resp.body, true, nil
	case resp.status == http.StatusNotFound:
		return nil, false, nil
	default:
		return nil, false, resp.unexpected(http.MethodGet, path)
	}
}

func (c *Client) putKey(ctx context.Context, addr, path string, value []byte) ([]byte, error) {
	if value == nil {
		value = []byte{}
	}
	resp, err := c.do(ctx, http.MethodPost, addr, path, nil, nil, value)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.unexpected(http.MethodPost, path)
	}
	return resp.body, nil
}

func (c *Client) deleteKey(ctx context.Context, addr, path string) ([]byte, bool, error) {
	resp, err := c.do(ctx, http.MethodDelete, addr, path, nil, nil, nil)
	if err != nil {
		return nil, false, err
	}
	switch {
	case resp.ok():
		return resp.body, true, nil
	case resp.status == http.StatusNotFound:
		return nil, false, nil
	default:
		return nil, false, resp.unexpected(http.MethodDelete, path)
	}
}

// GetKey reads the local engine of a replica
func (c *Client) GetKey(ctx context.Context, addr string, key []byte) ([]byte, bool, error) {
	return c.getKey(ctx, addr, keyPath("/", key))
}

// PutKey writes to the local engine of a replica
func (c *Client) PutKey(ctx context.Context, addr string, key, value []byte) ([]byte, error) {
	return c.putKey(ctx, addr, keyPath("/", key), value)
}

// DeleteKey removes from the local engine of a replica
func (c *Client) DeleteKey(ctx context.Context, addr string, key []byte) ([]byte, bool, error) {
	return c.deleteKey(ctx, addr, keyPath("/", key))
}

func (c *Client) FetchRange(ctx context.Context, addr string, r ring.HashRange) (map[string][]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, addr, "/keys", r.Query(), nil, nil)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.unexpected(http.MethodGet, "/keys")
	}
	return DecodeEntries(resp.body)
}

func (c *Client) PurgeRange(ctx context.Context, addr string, r ring.HashRange) (int, error) {
	resp, err := c.do(ctx, http.MethodDelete, addr, "/keys", r.Query(), nil, nil)
	if err != nil {
		return 0, err
	}
	if !resp.ok() {
		return 0, resp.unexpected(http.MethodDelete, "/keys")
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(resp.body)))
	if err != nil {
		return 0, fmt.Errorf("%w: purge count %q", ring.ErrMalformedPayload, resp.body)
	}
	return n, nil
}

// ClientGet performs a coordinated read through the node at addr
func (c *Client) ClientGet(ctx context.Context, addr string, key []byte) ([]byte, bool, error) {
	return c.getKey(ctx, addr, keyPath("/db/", key))
}

// ClientPut performs a coordinated write through the node at addr
func (c *Client) ClientPut(ctx context.Context, addr string, key, value []byte) ([]byte, error) {
	return c.putKey(ctx, addr, keyPath("/db/", key), value)
}

// ClientDelete performs a coordinated delete through the node at addr
func (c *Client) ClientDelete(ctx context.Context, addr string, key []byte) ([]byte, bool, error) {
	return c.deleteKey(ctx, addr, keyPath("/db/", key))
}
