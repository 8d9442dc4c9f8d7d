package client

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"go.miragespace.co/keyval/gateway"
	"go.miragespace.co/keyval/kv/memory"
	"go.miragespace.co/keyval/node"
	"go.miragespace.co/keyval/rpc"
	"go.miragespace.co/keyval/spec/ring"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zaptest"
)

func startNode(t *testing.T, as *require.Assertions) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	as.NoError(err)
	addr := l.Addr().String()

	logger := zaptest.NewLogger(t)
	n := node.NewLocalNode(node.NodeConfig{
		Logger:         logger,
		Address:        addr,
		KVProvider:     memory.WithHashFn(ring.HashKey),
		Transport:      rpc.NewClient(rpc.ClientConfig{Logger: logger}),
		MaxReplicas:    2,
		GossipDelay:    time.Hour,
		GossipInterval: time.Second,
		RPCTimeout:     time.Second,
	})
	as.NoError(n.Start())

	gw := gateway.New(gateway.GatewayConfig{
		Logger:   logger,
		Node:     n,
		Listener: l,
		Handlers: gateway.InternalHandlers{
			Stats: http.HandlerFunc(n.StatsHandler),
		},
	})
	gw.Start(context.Background())

	t.Cleanup(func() {
		gw.Close()
		n.Stop()
	})
	return addr
}

func run(addr string, args ...string) (string, error) {
	var out bytes.Buffer
	app := &cli.App{
		Name:     "keyval",
		Writer:   &out,
		Commands: []*cli.Command{Generate()},
	}
	err := app.Run(append([]string{"keyval", "client", "--addr", addr}, args...))
	return out.String(), err
}

func TestClientCommands(t *testing.T) {
	as := require.New(t)

	addr := startNode(t, as)

	out, err := run(addr, "put", "greeting", "hello world")
	as.NoError(err)
	as.Contains(out, "11 bytes written")

	out, err = run(addr, "get", "greeting")
	as.NoError(err)
	as.Equal("hello world", out)

	out, err = run(addr, "nodes")
	as.NoError(err)
	as.Contains(out, addr)
	as.Contains(out, "1 members")

	out, err = run(addr, "keys")
	as.NoError(err)
	as.Contains(out, "greeting")

	_, err = run(addr, "delete", "greeting")
	as.NoError(err)

	_, err = run(addr, "get", "greeting")
	as.ErrorIs(err, ring.ErrKeyNotFound)

	_, err = run(addr, "get")
	as.Error(err)

	_, err = run(addr, "join", addr)
	as.ErrorIs(err, ring.ErrUnexpectedStatus)
}
