package gateway

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"go.miragespace.co/keyval/spec/ring"
	"go.miragespace.co/keyval/util"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"moul.io/zapfilter"
)

const (
	DefaultMaxBodySize = 1 << 20 // 1MiB
	// membership and address bodies are tiny
	peerBodyLimit = 1 << 16
)

// Node is what the gateway needs from a ring member
type Node interface {
	Get(ctx context.Context, key []byte) ([]byte, error)
	Put(ctx context.Context, key, value []byte) ([]byte, error)
	Delete(ctx context.Context, key []byte) ([]byte, error)

	LocalGet(ctx context.Context, key []byte) ([]byte, error)
	LocalPut(ctx context.Context, key, value []byte) ([]byte, error)
	LocalDelete(ctx context.Context, key []byte) ([]byte, error)
	LocalKeys(ctx context.Context, r ring.HashRange) (map[string][]byte, error)
	LocalPurge(ctx context.Context, r ring.HashRange) (int, error)

	Membership() (ring.Membership, int64)
	MergeMembership(remote ring.Membership, marker int64) (bool, error)
	Evict(addr string) bool
	Join(ctx context.Context, bootstrap string) error
}

type InternalHandlers struct {
	Stats http.Handler
	Graph http.Handler
}

type GatewayConfig struct {
	Logger   *zap.Logger
	Node     Node
	Listener net.Listener
	Handlers InternalHandlers
	// MaxBodySize limits the size of values accepted on write
	MaxBodySize int64
	// ClientRateLimit is the number of /db requests allowed per second, 0 disables it
	ClientRateLimit int
	AdminUser       string
	AdminPass       string
}

type Gateway struct {
	GatewayConfig
	httpServer *http.Server
}

func New(conf GatewayConfig) *Gateway {
	if conf.MaxBodySize <= 0 {
		conf.MaxBodySize = DefaultMaxBodySize
	}
	if conf.AdminUser == "" || conf.AdminPass == "" {
		conf.Logger.Info("Missing credentials for internal endpoint, serving it without authentication")
	}

	g := &Gateway{
		GatewayConfig: conf,
	}

	// filter out unproductive messages
	filteredLogger := zap.New(zapfilter.NewFilteringCore(
		g.Logger.Core(),
		func(e zapcore.Entry, f []zapcore.Field) bool {
			if strings.HasPrefix(e.Message, "http: URL query contains semicolon") {
				return false
			}
			if strings.HasPrefix(e.Message, "http: TLS handshake error") {
				return false
			}
			return true
		}),
	)

	g.httpServer = &http.Server{
		ReadHeaderTimeout: time.Second * 5,
		IdleTimeout:       time.Second * 60,
		Handler:           g.Router(),
		ErrorLog:          util.StdLogger(filteredLogger, "httpServer", zapcore.WarnLevel),
	}

	return g
}

// Router builds the complete HTTP surface of a node
func (g *Gateway) Router() http.Handler {
	r := chi.NewRouter()
	g.mountPeer(r)
	g.mountClient(r)
	g.mountInternal(r)
	return r
}

func (g *Gateway) Start(ctx context.Context) {
	g.httpServer.BaseContext = func(l net.Listener) context.Context { return ctx }

	go g.httpServer.Serve(g.Listener)

	g.Logger.Info("Gateway server started", zap.String("listen", g.Listener.Addr().String()))
}

// Shutdown stops accepting requests and waits for in-flight ones
func (g *Gateway) Shutdown(ctx context.Context) error {
	return g.httpServer.Shutdown(ctx)
}

func (g *Gateway) Close() {
	g.httpServer.Close()
}
